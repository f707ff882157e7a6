package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zeu5/lux-rl-env/core"
)

func TrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train tabular agents against the scheduled opponents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			results := core.RunParallel(ctx, &trainer{flags: flags}, &core.RunConfig{
				TotalSteps:                   flags.TotalSteps,
				ThresholdConsecutiveFailures: flags.MaxConsecutiveFailures,
			}, flags.Parallelism, os.Stdout)

			var firstErr error
			for worker, r := range results {
				if r == nil {
					continue
				}
				event := log.Info()
				if r.IsError() {
					event = log.Error().Err(r.Error)
					if firstErr == nil {
						firstErr = r.Error
					}
				}
				event.
					Int("worker", worker).
					Int("episodes", r.Episodes).
					Int("completed", r.CompletedEpisodes).
					Int("failed", r.FailedEpisodes).
					Int("truncated", r.TruncatedEpisodes).
					Int("steps", r.TotalTimeSteps).
					Float64("mean_return", r.MeanReturn).
					Msg("worker finished")
			}
			return firstErr
		},
	}
	return cmd
}
