package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/xion-cctp-bridge/offramp"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// newWithdrawer builds the app and checks an off-ramp is configured.
func newWithdrawer(cmd *cobra.Command, a *AppState) (*App, error) {
	if err := a.Config.ValidateOffRamp(); err != nil {
		return nil, err
	}
	app, err := a.NewApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	if app.Withdrawer == nil {
		app.Close()
		return nil, fmt.Errorf("no off-ramp configured")
	}
	return app, nil
}

func quoteCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "quote",
		Short:             "Get off-ramp fees for withdrawing USDC from base",
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s quote --amount 25`, appName)),
		RunE: func(cmd *cobra.Command, _ []string) error {
			amt, err := cmd.Flags().GetString(flagAmount)
			if err != nil {
				return err
			}

			app, err := newWithdrawer(cmd, a)
			if err != nil {
				return err
			}
			defer app.Close()

			quote, err := app.Withdrawer.GetQuote(cmd.Context(), amt)
			if err != nil {
				return err
			}
			return printOutput(cmd, quote)
		},
	}
	addAmountFlag(cmd, "amount of USDC to withdraw")
	_ = cmd.MarkFlagRequired(flagAmount)
	addJsonFlag(cmd)
	return cmd
}

func withdrawCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "withdraw",
		Short:             "Withdraw USDC on base to a bank account through the off-ramp",
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s withdraw --amount 25 --bank-account ba_123 --speed standard
$ %s withdraw --amount 25 --bank-account ba_123 --speed instant --mode gasless`, appName, appName)),
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			amt, err := flags.GetString(flagAmount)
			if err != nil {
				return err
			}
			bankAccount, err := flags.GetString(flagBankAccount)
			if err != nil {
				return err
			}
			speed, err := flags.GetString(flagSpeed)
			if err != nil {
				return err
			}
			mode, err := flags.GetString(flagMode)
			if err != nil {
				return err
			}

			app, err := newWithdrawer(cmd, a)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Withdrawer.Withdraw(cmd.Context(), offramp.WithdrawRequest{
				Amount:           amt,
				BankAccountToken: bankAccount,
				Speed:            speed,
				Mode:             types.WithdrawalMode(mode),
			})

			var partial *offramp.PartialWithdrawalError
			if errors.As(err, &partial) {
				a.Logger.Error("Withdrawal needs manual completion", "withdrawal", partial.WithdrawalID, "tx", partial.TxHash, "signature", partial.Signature)
				if printErr := printOutput(cmd, partialDetails(partial)); printErr != nil {
					return printErr
				}
			}
			if err != nil {
				return err
			}
			return printOutput(cmd, res)
		},
	}
	addAmountFlag(cmd, "amount of USDC to withdraw")
	cmd.Flags().String(flagBankAccount, "", "off-ramp token of the linked bank account")
	cmd.Flags().String(flagSpeed, types.SpeedStandard, "settlement speed (standard, instant)")
	cmd.Flags().String(flagMode, string(types.ModeGas), "gas: send the transfer from the wallet, gasless: sign a permit")
	_ = cmd.MarkFlagRequired(flagAmount)
	_ = cmd.MarkFlagRequired(flagBankAccount)
	addJsonFlag(cmd)
	return cmd
}

// partialDetails is what an operator needs to finish a withdrawal by hand.
func partialDetails(e *offramp.PartialWithdrawalError) map[string]string {
	details := map[string]string{
		"mode":          string(e.Mode),
		"withdrawal_id": e.WithdrawalID,
		"error":         e.Err.Error(),
	}
	if e.TxHash != "" {
		details["tx_hash"] = e.TxHash
	}
	if e.Signature != "" {
		details["signature"] = e.Signature
	}
	if e.Permit != nil {
		if bz, err := json.Marshal(e.Permit); err == nil {
			details["permit"] = string(bz)
		}
	}
	return details
}
