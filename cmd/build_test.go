package cmd

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeu5/lux-rl-env/common"
	"github.com/zeu5/lux-rl-env/core"
	"github.com/zeu5/lux-rl-env/match"
	"github.com/zeu5/lux-rl-env/policies"
)

func testFlags(t *testing.T) *common.Flags {
	t.Helper()
	f := common.DefaultFlags()
	f.SavePath = t.TempDir()
	f.Game.Width = 6
	f.Game.Height = 4
	f.Game.MaxTurns = 4
	f.Game.Seed = 1
	f.Tabular.Seed = 5
	f.TotalSteps = 60
	f.UpdateEvery = 10
	f.Weights = []string{"three-way"}
	f.Replay.SaveEvery = 20
	f.Replay.Episodes = 2
	return f
}

func TestTrainerWiresSidecarOnFirstWorker(t *testing.T) {
	f := testFlags(t)
	tr := &trainer{flags: f}

	runner, err := tr.NewRunner(0)
	require.NoError(t, err)
	require.Len(t, runner.Callbacks, 1)
	action, _, ok := runner.Environment.Spaces()
	require.True(t, ok)
	require.Equal(t, match.NumActions, action.N)

	result := runner.Run(context.Background(), &core.RunConfig{TotalSteps: f.TotalSteps}, io.Discard)
	require.NoError(t, result.Error)
	require.Equal(t, f.TotalSteps, result.TotalTimeSteps)
	require.Equal(t, 0, result.FailedEpisodes)

	lineage := policies.NewLineage(f.ModelPath(), policies.SnapshotPattern(f.Replay.Prefix))
	snaps, err := lineage.Snapshots()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(snaps), 3)
	require.Equal(t, 20, snaps[0].Step)

	replays, err := filepath.Glob(filepath.Join(f.ModelPath(), "rl_model_step20_seed*.parquet"))
	require.NoError(t, err)
	require.Len(t, replays, 2)

	summaries, err := summarizeReplays(f.ModelPath(), f.Replay.Prefix, 20)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		require.Greater(t, s.Actions, 0)
		require.Equal(t, f.Game.MaxTurns, s.Turns)
	}

	other, err := tr.NewRunner(1)
	require.NoError(t, err)
	require.Empty(t, other.Callbacks)
}

func TestFailureRewardSelection(t *testing.T) {
	f := common.DefaultFlags()
	_, err := failureReward(f)
	require.NoError(t, err)

	f.FailureReward = common.FailureRewardLosing
	f.LosingReward = -3
	fr, err := failureReward(f)
	require.NoError(t, err)
	r, err := fr(nil, nil, true)
	require.NoError(t, err)
	require.Equal(t, -3.0, r)

	f.FailureReward = "sometimes"
	_, err = failureReward(f)
	require.Error(t, err)
}

func TestImitationModelMustExist(t *testing.T) {
	f := testFlags(t)
	f.ImitationModel = filepath.Join(t.TempDir(), "missing.json")
	_, err := (&trainer{flags: f}).NewRunner(0)
	require.Error(t, err)
}
