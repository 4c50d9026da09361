// File: cmd/probe.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tabpilot/internal/bridge"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Checks bridge liveness and lists its models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := bridge.New(cfg.Bridge, observability.GetLogger())
			models, err := client.Probe(cmd.Context())
			if err != nil {
				return fmt.Errorf("bridge probe failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Bridge at %s is healthy.\n", cfg.Bridge.BaseURL)
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models reported.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Models:")
			for _, m := range models {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", m)
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newProbeCmd())
}
