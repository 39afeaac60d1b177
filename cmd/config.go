package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// Command for printing current configuration
func configShowCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "showConfig",
		Aliases:           []string{"sc"},
		Short:             "Prints current configuration. By default it prints in yaml",
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s showConfig --config %s
$ %s sc`, appName, defaultConfigPath, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOutput(cmd, a.Config)
		},
	}
	addJsonFlag(cmd)
	return cmd
}

// printOutput writes v as yaml, or as json when --json is set.
func printOutput(cmd *cobra.Command, v any) error {
	jsn, _ := cmd.Flags().GetBool(flagJSON)

	switch {
	case jsn:
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	default:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
}
