package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/xion-cctp-bridge/amount"
	"github.com/strangelove-ventures/xion-cctp-bridge/bridge"
)

func initApp(a *AppState) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a.InitAppState()
		return nil
	}
}

func bridgeCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "bridge",
		Short:             "Move USDC from xion to a recipient on base",
		Long:              "Transfers USDC from xion to noble over IBC, burns it with CCTP, waits for the attestation and mints it on base.",
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s bridge --recipient 0x71562b71999873DB5b286dF957af199Ec94617F7
$ %s bridge --recipient 0x71562b71999873DB5b286dF957af199Ec94617F7 --amount 1.5
$ %s bridge --recipient 0x71562b71999873DB5b286dF957af199Ec94617F7 --skip-source`, appName, appName, appName)),
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipient, err := cmd.Flags().GetString(flagRecipient)
			if err != nil {
				return err
			}
			amt, err := cmd.Flags().GetString(flagAmount)
			if err != nil {
				return err
			}
			skipSource, err := cmd.Flags().GetBool(flagSkipSource)
			if err != nil {
				return err
			}

			app, err := a.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			route := bridge.RouteFull
			if skipSource {
				route = bridge.RouteBridgeOnly
			}
			transfer, runErr := app.Orchestrator.Run(cmd.Context(), bridge.Request{Amount: amt, Recipient: recipient, Route: route})
			if err := printOutput(cmd, transfer); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().String(flagRecipient, "", "20 byte EVM address receiving USDC on base")
	cmd.Flags().Bool(flagSkipSource, false, "burn USDC already on noble instead of transferring from xion")
	_ = cmd.MarkFlagRequired(flagRecipient)
	addAmountFlag(cmd, "amount of USDC to bridge, e.g. 1.5 (default: full balance minus gas reserves)")
	addJsonFlag(cmd)
	return cmd
}

func resumeCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "resume [burn-tx-hash]",
		Short:             "Wait for the attestation of a noble burn and mint it on base",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s resume 5002A249B1353FA59C1660EBAE5FA7FC652AC1E77F69CEF3A4533B0DF2864012`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			transfer, runErr := app.Orchestrator.Resume(cmd.Context(), args[0])
			if err := printOutput(cmd, transfer); err != nil {
				return err
			}
			return runErr
		},
	}
	addJsonFlag(cmd)
	return cmd
}

func pendingCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "pending",
		Short:             "List burns that have not been minted yet",
		PersistentPreRunE: initApp(a),
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(a.Config.Store)
			if err != nil {
				return err
			}
			defer db.Close()

			burns, err := db.PendingBurns()
			if err != nil {
				return err
			}
			return printOutput(cmd, burns)
		},
	}
	addJsonFlag(cmd)
	return cmd
}

func historyCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "history",
		Short:             "List recorded bridge transfers",
		PersistentPreRunE: initApp(a),
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(a.Config.Store)
			if err != nil {
				return err
			}
			defer db.Close()

			transfers, err := db.Transfers()
			if err != nil {
				return err
			}
			return printOutput(cmd, transfers)
		},
	}
	addJsonFlag(cmd)
	return cmd
}

func reverseCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "reverse",
		Short:             "Send USDC on noble back to xion",
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s reverse
$ %s reverse --amount 2`, appName, appName)),
		RunE: func(cmd *cobra.Command, _ []string) error {
			amt, err := cmd.Flags().GetString(flagAmount)
			if err != nil {
				return err
			}

			app, err := a.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Reverser == nil {
				return fmt.Errorf("reverse needs chains.xion and route.reverse-channel in the config")
			}
			res, sent, err := app.Reverser.Reverse(cmd.Context(), amt)
			if err != nil {
				return err
			}
			return printOutput(cmd, map[string]string{
				"tx_hash": res.TxHash,
				"amount":  amount.FormatUnits(sent, amount.USDCExponent),
			})
		},
	}
	addAmountFlag(cmd, "amount of USDC to return, e.g. 2 (default: full balance minus gas reserve)")
	addJsonFlag(cmd)
	return cmd
}
