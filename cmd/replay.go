package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zeu5/lux-rl-env/policies"
	"github.com/zeu5/lux-rl-env/util"
)

type replaySummary struct {
	File    string
	Actions int
	Turns   int
	Score0  float32
	Score1  float32
}

// summarizeReplays reads back the replay files written for a checkpoint step.
func summarizeReplays(dir, prefix string, step int) ([]replaySummary, error) {
	files, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%s_step%d_seed*.parquet", prefix, step)))
	if err != nil {
		return nil, err
	}
	out := make([]replaySummary, 0, len(files))
	for _, file := range files {
		rows, err := util.ReadReplayParquet(file)
		if err != nil {
			return nil, err
		}
		s := replaySummary{File: file, Actions: len(rows)}
		if len(rows) > 0 {
			last := rows[len(rows)-1]
			s.Turns = int(last.Turn) + 1
			s.Score0 = last.Score0
			s.Score1 = last.Score1
		}
		out = append(out, s)
	}
	return out, nil
}

func ReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [model]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Replay seeded episodes for a saved checkpoint, the latest one by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			lineage := policies.NewLineage(flags.ModelPath(), policies.SnapshotPattern(flags.Replay.Prefix))
			var snap policies.Snapshot
			if len(args) == 1 {
				snap = policies.Snapshot{Path: args[0]}
			} else {
				latest, err := lineage.Latest()
				if err != nil {
					return err
				}
				snap = latest
			}

			sidecar, player, err := newSidecar(flags, nil, log.Logger)
			if err != nil {
				return err
			}
			if err := player.LoadModel(snap.Path); err != nil {
				return err
			}
			stats := sidecar.Checkpoint(snap.Step)
			log.Info().
				Str("model", snap.Path).
				Int("runs", stats.Runs).
				Int("step_failures", stats.StepFailures).
				Int("errors", stats.Errors).
				Msg("replays finished")

			summaries, err := summarizeReplays(flags.ModelPath(), flags.Replay.Prefix, snap.Step)
			if err != nil {
				return err
			}
			for _, s := range summaries {
				log.Info().
					Str("replay", s.File).
					Int("actions", s.Actions).
					Int("turns", s.Turns).
					Float32("score_0", s.Score0).
					Float32("score_1", s.Score1).
					Msg("replay summary")
			}
			return nil
		},
	}
	return cmd
}
