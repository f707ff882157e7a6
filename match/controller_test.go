package match

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	erand "golang.org/x/exp/rand"

	"github.com/zeu5/lux-rl-env/core"
	"github.com/zeu5/lux-rl-env/policies"
)

// scriptedAgent is a learning agent whose actions are chosen by the test.
type scriptedAgent struct {
	team core.Team
}

func (a *scriptedAgent) Type() core.AgentType                             { return core.LearningAgent }
func (a *scriptedAgent) Team() core.Team                                  { return a.team }
func (a *scriptedAgent) SetTeam(t core.Team)                              { a.team = t }
func (a *scriptedAgent) Decide(core.Game, core.DecisionPoint) core.Action { return 0 }

func newTestController(t *testing.T, seat0 core.Agent, validate Validator) *Controller {
	t.Helper()
	c, err := NewController(NewGame(smallConfig()), []core.Agent{seat0, policies.NewSeededRandomAgent(5)}, validate)
	require.NoError(t, err)
	c.SetRand(erand.New(erand.NewSource(9)))
	return c
}

func TestNewControllerNeedsTwoAgents(t *testing.T) {
	_, err := NewController(NewGame(smallConfig()), []core.Agent{policies.NewRandomAgent()}, nil)
	require.Error(t, err)
}

func TestInferenceOnlyRunsToCompletion(t *testing.T) {
	c := newTestController(t, policies.NewSeededRandomAgent(1), nil)
	require.NoError(t, c.Reset(false))

	seq := c.RunToNextObservation()
	_, err := seq.Next()
	require.ErrorIs(t, err, core.ErrEpisodeDone)
	require.Equal(t, smallConfig().MaxTurns, c.Game().Turn())
	require.Greater(t, c.Decisions(), 0)

	// The terminal result is sticky.
	_, err = seq.Next()
	require.ErrorIs(t, err, core.ErrEpisodeDone)
}

func TestLearningSeatPauses(t *testing.T) {
	learner := &scriptedAgent{}
	c := newTestController(t, learner, nil)
	require.NoError(t, c.Reset(false))
	require.Equal(t, core.Team(0), learner.Team())

	seq := c.RunToNextObservation()
	g := c.Game()
	turns := make(map[int]int)
	for {
		dp, err := seq.Next()
		if errors.Is(err, core.ErrEpisodeDone) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, learner.Team(), dp.Team)
		if turns[g.Turn()] == 0 {
			require.True(t, dp.NewTurn)
		} else {
			require.False(t, dp.NewTurn)
		}
		turns[g.Turn()]++
		require.NoError(t, g.Apply(dp, 0))
	}
	require.Len(t, turns, smallConfig().MaxTurns)
	for _, n := range turns {
		// Two units and one city per turn.
		require.GreaterOrEqual(t, n, 3)
	}
}

func TestIllegalActionIsStepFailure(t *testing.T) {
	learner := &scriptedAgent{}
	c := newTestController(t, learner, nil)
	require.NoError(t, c.Reset(false))

	seq := c.RunToNextObservation()
	dp, err := seq.Next()
	require.NoError(t, err)
	require.Equal(t, core.UnitActor, dp.Kind)
	require.NoError(t, c.Game().Apply(dp, BuildCity))

	_, err = seq.Next()
	require.True(t, core.IsStepFailed(err))
	_, err = seq.Next()
	require.True(t, core.IsStepFailed(err))
}

func TestValidatorFailureIsStepFailure(t *testing.T) {
	c := newTestController(t, policies.NewSeededRandomAgent(1), func(*Game) error {
		return errors.New("replay does not match")
	})
	require.NoError(t, c.Reset(false))

	_, err := c.RunToNextObservation().Next()
	require.True(t, core.IsStepFailed(err))
	require.Contains(t, err.Error(), "replay does not match")
}

func TestSetAgentKeepsTeam(t *testing.T) {
	c := newTestController(t, &scriptedAgent{}, nil)
	require.NoError(t, c.Reset(false))
	replacement := policies.NewSeededRandomAgent(2)
	replacement.SetTeam(0)

	c.SetAgent(core.OpponentSeat, replacement)
	require.Equal(t, core.Team(1), replacement.Team())
	require.Same(t, replacement, c.Agents()[core.OpponentSeat])
}

func TestResetRandomizesTeams(t *testing.T) {
	learner := &scriptedAgent{}
	c := newTestController(t, learner, nil)
	seen := make(map[core.Team]bool)
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Reset(true))
		seen[learner.Team()] = true
		require.NotEqual(t, learner.Team(), c.Agents()[1].Team())
	}
	require.Len(t, seen, 2)

	require.NoError(t, c.Reset(false))
	require.Equal(t, core.Team(0), learner.Team())
}

func TestEnvironmentOverMatch(t *testing.T) {
	cfg := policies.DefaultTabularConfig()
	cfg.Seed = 21
	learner := policies.NewTabularAgent(core.LearningAgent, cfg)
	c := newTestController(t, learner, nil)
	env, err := core.NewEnvironment(c.Game(), c, learner, core.WithFailureReward(core.LosingReward(-2)))
	require.NoError(t, err)

	for episode := 0; episode < 3; episode++ {
		obs, err := env.Reset()
		require.NoError(t, err)
		for {
			action := learner.PickAction(nil, obs)
			res, err := env.Step(action)
			require.NoError(t, err)
			learner.UpdateStep(nil, obs, action, res)
			if res.Done {
				require.False(t, res.StepFailed())
				break
			}
			obs = res.Observation
		}
	}
	require.Greater(t, learner.Model().Size(), 0)

	// An illegal action ends the episode with the configured losing reward.
	obs, err := env.Reset()
	require.NoError(t, err)
	so := obs.(*policies.StateObservation)
	illegal := BuildCity
	if so.Key[0] == 'c' {
		illegal = core.Action(7)
	}
	res, err := env.Step(illegal)
	require.NoError(t, err)
	require.True(t, res.Done)
	require.True(t, res.StepFailed())
	require.Equal(t, -2.0, res.Reward)
}

func TestRunToCompletionWritesReplay(t *testing.T) {
	dir := t.TempDir()
	player := policies.NewTabularAgent(core.InferenceAgent, policies.DefaultTabularConfig())
	c := newTestController(t, player, nil)
	env, err := core.NewEnvironment(c.Game(), c, player, core.WithReplay(dir, "seed0"))
	require.NoError(t, err)

	failed, err := env.RunToCompletion()
	require.NoError(t, err)
	require.False(t, failed)
	require.Equal(t, c.Decisions(), env.CurrentStep())

	_, err = os.Stat(filepath.Join(dir, "seed0.parquet"))
	require.NoError(t, err)
}
