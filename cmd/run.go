package main

import (
	"context"
	"popgrid/internal/config"
	"popgrid/internal/pipeline"
	"popgrid/pkg/domain"
	"popgrid/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCommand constructs the 'run' subcommand that executes a single
// aggregation run synchronously and writes the output files, without
// touching the database or the job queue.
func runCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Executes one aggregation run and writes summary files",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			countries, _ := cmd.Flags().GetStringSlice("countries")
			ageGroups, _ := cmd.Flags().GetStringSlice("age-groups")
			sexes, _ := cmd.Flags().GetStringSlice("sexes")
			outputDir, _ := cmd.Flags().GetString("output")
			if outputDir == "" {
				outputDir = cfg.Pipeline.OutputDir
			}

			params, err := pipeline.NormalizeParams(domain.RunParams{
				Countries: countries,
				AgeGroups: ageGroups,
				Sexes:     sexes,
			}, pipeline.Defaults{
				Countries: cfg.Pipeline.Countries,
				AgeGroups: cfg.Pipeline.AgeGroups,
				Sexes:     cfg.Pipeline.Sexes,
			})
			if err != nil {
				logger.Fatal(ctx, "invalid run parameters", zap.Error(err))
			}

			pipe := getPipeline(ctx, cfg)

			logger.Info(ctx, "executing run",
				zap.Strings("countries", params.Countries),
				zap.Strings("ageGroups", params.AgeGroups),
				zap.Strings("sexes", params.Sexes))

			res, err := pipe.Execute(ctx, params)
			if err != nil {
				logger.Fatal(ctx, "run failed", zap.Error(err))
			}

			if err := pipeline.WriteOutputs(outputDir, res); err != nil {
				logger.Fatal(ctx, "could not write output files", zap.Error(err))
			}

			logger.Info(ctx, "run complete",
				zap.String("outputDir", outputDir),
				zap.Int("rows", res.Table.Metadata.RowCount),
				zap.Int("skippedUnits", len(res.Table.Metadata.SkippedUnits)))
		},
	}

	cmd.Flags().StringSlice("countries", nil, "ISO3 country codes (default: configured set)")
	cmd.Flags().StringSlice("age-groups", nil, "WorldPop age group labels (default: configured set)")
	cmd.Flags().StringSlice("sexes", nil, "Sex labels M,F (default: configured set)")
	cmd.Flags().String("output", "", "Output directory (default: configured outputDir)")

	return cmd
}
