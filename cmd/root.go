package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	appName           = "xion-cctp-bridge"
	defaultConfigPath = "./config.yaml"
)

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd(a *AppState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Bridge USDC from Xion to Base over Noble with CCTP, and withdraw it to a bank account",
	}

	// .env is optional, keys may come from the environment directly
	cobra.OnInitialize(func() { _ = godotenv.Load() })

	addAppPersistantFlags(rootCmd, a)

	rootCmd.AddCommand(
		bridgeCmd(a),
		resumeCmd(a),
		pendingCmd(a),
		historyCmd(a),
		reverseCmd(a),
		quoteCmd(a),
		withdrawCmd(a),
		serveCmd(a),
		configShowCmd(a),
		versionCmd(),
	)

	return rootCmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(NewAppState()).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
