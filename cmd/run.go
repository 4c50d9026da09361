// File: cmd/run.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/artifacts"
	"github.com/xkilldash9x/tabpilot/internal/browser"
	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/executor"
	"github.com/xkilldash9x/tabpilot/internal/llmclient"
	"github.com/xkilldash9x/tabpilot/internal/loop"
	"github.com/xkilldash9x/tabpilot/internal/observability"
	"github.com/xkilldash9x/tabpilot/internal/snapshot"
)

func newRunCmd() *cobra.Command {
	var startURL string

	runCmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Runs a task against a live browser tab",
		Long: `Opens a browser, navigates to the start URL and hands control to the
configured LLM backend until the task completes, is cancelled or the loop
budget runs out.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("agent.mode", cmd.Flags().Lookup("mode")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.max_loops", cmd.Flags().Lookup("max-loops")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("llm.backend", cmd.Flags().Lookup("backend")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			task := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := llmclient.New(cfg, logger)
			if err != nil {
				return err
			}
			if adapter, ok := client.(*llmclient.BridgeAdapter); ok {
				if _, err := adapter.Probe(ctx); err != nil {
					return fmt.Errorf("bridge is not ready: %w", err)
				}
			}

			root, err := cfg.ArtifactRoot()
			if err != nil {
				return err
			}
			store, err := artifacts.NewStore(root, logger)
			if err != nil {
				return err
			}

			mgr := browser.NewManager(cfg.Browser, logger)
			defer mgr.Close(ctx)

			session, err := mgr.NewSession(ctx)
			if err != nil {
				return fmt.Errorf("failed to start browser session: %w", err)
			}
			if startURL != "" {
				if err := session.Navigate(ctx, startURL); err != nil {
					return fmt.Errorf("failed to open start URL %s: %w", startURL, err)
				}
			}

			exec := executor.New(session, cfg.Executor, logger)
			snap := snapshot.New(session, cfg.Snapshot, logger)
			controller := loop.NewController(cfg.Agent, client, exec, snap, store, logger)

			logger.Info("Running task.",
				zap.String("task", task),
				zap.String("mode", cfg.Agent.Mode),
				zap.String("backend", cfg.LLM.Backend),
				zap.String("start_url", startURL))

			outcome, err := controller.Run(ctx, task)
			if err != nil {
				return err
			}

			switch outcome.State {
			case loop.StateCompleted:
				fmt.Fprintf(cmd.OutOrStdout(), "Task completed in %d cycle(s).\n", outcome.Cycles)
				if outcome.FinalResponse != "" {
					fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(outcome.FinalResponse))
				}
			case loop.StateBudgetExhausted:
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped: loop budget of %d cycle(s) exhausted before the task finished.\n", cfg.Agent.MaxLoops)
			case loop.StateCancelled:
				fmt.Fprintln(cmd.OutOrStdout(), "Run cancelled.")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Artifacts directory: %s\n", store.Root())
			return nil
		},
	}

	runCmd.Flags().StringVar(&startURL, "url", "", "URL to open before the first cycle")
	runCmd.Flags().String("mode", config.ModeAgentHybrid, "operating mode: manual, agent-text or agent-hybrid")
	runCmd.Flags().Int("max-loops", 15, "maximum number of LLM cycles per run")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().String("backend", config.BackendBridge, "LLM backend: bridge or direct")

	return runCmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
