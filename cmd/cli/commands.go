package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"goamcc/app"
	"goamcc/domain/explain"
	"goamcc/domain/run"
	"goamcc/domain/transition"
	"goamcc/internal"
	"goamcc/internal/config"
	"goamcc/internal/container"
	"goamcc/internal/report"
	"goamcc/internal/session"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		workers    int
		timeoutSec int
		reportPath string
		outputFile string
		storeDir   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search counterfactuals for every undesired test instance",
		Long: `Train the classifier on the configured dataset, explain each test
instance predicted with the undesired label and search for the fewest
feature changes that flip the prediction.

Example: amcc run --config config.yaml --workers 4 --report out.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRunConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if cmd.Flags().Changed("timeout") {
				cfg.TimeoutSeconds = timeoutSec
			}
			if cmd.Flags().Changed("output") {
				cfg.OutputFile = outputFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := internal.NewDefaultLogger()
			defer logger.Sync()

			var opts []app.ServiceOption
			if storeDir != "" {
				store, err := session.NewLocalRunStore(storeDir)
				if err != nil {
					return err
				}
				opts = append(opts, app.WithRepository(store))
			}

			rep, err := app.NewCounterfactualService(logger, opts...).Run(cmd.Context(), *cfg, nil)
			if rep != nil {
				printSummary(cmd, rep)
				if reportPath != "" {
					if werr := os.WriteFile(reportPath, report.Markdown(rep), 0644); werr != nil {
						return fmt.Errorf("failed to write report: %w", werr)
					}
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath(), "Run configuration file (YAML or JSON)")
	cmd.Flags().IntVar(&workers, "workers", config.DefaultWorkers, "Concurrent searches")
	cmd.Flags().IntVar(&timeoutSec, "timeout", config.DefaultTimeoutSeconds, "Per-instance search timeout in seconds")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Markdown report to this path")
	cmd.Flags().StringVar(&outputFile, "output", "", "Write per-instance results to this .csv or .xlsx file")
	cmd.Flags().StringVar(&storeDir, "store", "", "Keep run reports as JSON under this directory")

	return cmd
}

func printSummary(cmd *cobra.Command, rep *run.Report) {
	out := cmd.OutOrStdout()
	s := rep.Summary
	fmt.Fprintf(out, "Run %s\n", rep.RunID)
	fmt.Fprintf(out, "Instances: %d  Successes: %d  Failures: %d  Timeouts: %d\n",
		s.Instances, s.Successes, s.Failures, s.Timeouts)
	fmt.Fprintf(out, "Success rate: %.1f%%  Mean time: %.4fs  Median time: %.4fs\n",
		s.SuccessRate*100, s.MeanTime, s.MedianTime)
	if rep.OutputFile != "" {
		fmt.Fprintf(out, "Results written to %s\n", rep.OutputFile)
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <rule>",
		Short: "Print the feature names referenced by an explanation rule",
		Long: `Print one feature name per line, in rule order.

Example: amcc extract "employment = unemployed AND 25.00 < age <= 40.00"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, skipped := explain.ExtractClauses(args[0])
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			for _, clause := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped clause %q\n", clause)
			}
			return nil
		},
	}
}

func newRulesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate transition rules against the dataset's features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRunConfig(configPath)
			if err != nil {
				return err
			}
			data, err := app.NewCounterfactualService(internal.NewNopLogger()).LoadDataset(*cfg, internal.NewNopLogger())
			if err != nil {
				return err
			}

			rules, dropped, err := transition.ParseWithDropped(cfg.TransitionRules, data.FeatureNames())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, idx := range rules.Indices() {
				name := data.Features[idx].Name
				fmt.Fprintf(out, "%d\t%s\t%s\n", idx, name, cfg.TransitionRules[name])
			}
			for _, d := range dropped {
				fmt.Fprintf(cmd.ErrOrStderr(), "ignored rule %q for feature %q\n", d.Symbol, d.Feature)
			}
			if len(rules) == 0 {
				fmt.Fprintln(out, "no transition rules")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath(), "Run configuration file (YAML or JSON)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		Long: `Serve the run form and API on $PORT. Runs are kept in PostgreSQL when
DATABASE_URL is set and in memory otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}
			logger := internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))

			c, err := container.Bootstrap(cmd.Context(), appConfig, logger)
			if err != nil {
				return err
			}
			return c.ListenAndServe(cmd.Context())
		},
	}
}
