package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"newsroom/internal/app"
	"newsroom/internal/config"
	"newsroom/internal/domain"
	"newsroom/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "newsroom",
		Short:         "Aggregate publications from feeds and video channels into a content database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newBackfillCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	var (
		since  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one ingestion pass over the configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}

			var override *domain.RunWindow
			if since != "" {
				from, err := parseTime(since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				override = &domain.RunWindow{Since: from, Until: time.Now().UTC()}
			}

			return execute(cmd, cfg, override)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "override window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log what would be written without touching the destination")
	return cmd
}

func newBackfillCmd(configPath *string) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest a historical window without advancing the run marker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			from, err := parseTime(fromStr)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			until := time.Now().UTC()
			if toStr != "" {
				if until, err = parseTime(toStr); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			if !until.After(from) {
				return fmt.Errorf("--to must be after --from")
			}

			return execute(cmd, cfg, &domain.RunWindow{Since: from, Until: until})
		},
	}
	cmd.Flags().StringVar(&fromStr, "from", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "window end, defaults to now")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func execute(cmd *cobra.Command, cfg config.Config, override *domain.RunWindow) error {
	logger := logging.New(cfg.Logging.Level)
	application := app.New(cfg, logger)
	logger.Info("starting", "sources", application.Describe())

	summary, err := application.Run(cmd.Context(), override)
	fmt.Fprintln(cmd.OutOrStdout(), summary)

	if err != nil && summary.TotalLoaded() > 0 {
		// Some batches committed before the failure; report and succeed.
		logger.Error("run finished with partial results", "error", err)
		return nil
	}
	return err
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
