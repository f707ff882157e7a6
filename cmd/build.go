package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	erand "golang.org/x/exp/rand"

	"github.com/zeu5/lux-rl-env/common"
	"github.com/zeu5/lux-rl-env/core"
	"github.com/zeu5/lux-rl-env/match"
	"github.com/zeu5/lux-rl-env/policies"
	"github.com/zeu5/lux-rl-env/replay"
)

func failureReward(f *common.Flags) (core.FailureReward, error) {
	switch f.FailureReward {
	case "", common.FailureRewardAdapter:
		return core.AdapterFailureReward, nil
	case common.FailureRewardLosing:
		return core.LosingReward(f.LosingReward), nil
	}
	return nil, errors.Errorf("unknown failure reward %q", f.FailureReward)
}

func workerSeed(base uint64, worker int) uint64 {
	if base == 0 {
		return 0
	}
	return base + uint64(worker)*1000
}

func buildOpponents(f *common.Flags, seed uint64) (map[string]core.Agent, error) {
	cfg := f.Tabular
	cfg.Seed = seed
	opponents := map[string]core.Agent{
		policies.SelfPlay: policies.NewTabularAgent(core.InferenceAgent, cfg),
	}
	if seed == 0 {
		opponents[policies.Random] = policies.NewRandomAgent()
	} else {
		opponents[policies.Random] = policies.NewSeededRandomAgent(seed + 1)
	}
	if f.ImitationModel != "" {
		imitation, err := policies.NewImitationAgent(f.ImitationModel, cfg)
		if err != nil {
			return nil, err
		}
		opponents[policies.Imitation] = imitation
	}
	return opponents, nil
}

// trainer builds one independent training runner per worker. Worker 0 also
// carries the checkpoint and replay sidecar.
type trainer struct {
	flags *common.Flags
}

var _ core.RunnerConstructor = &trainer{}

func (t *trainer) NewRunner(worker int) (*core.Runner, error) {
	f := t.flags
	logger := log.With().Int("worker", worker).Logger()
	seed := workerSeed(f.Tabular.Seed, worker)

	cfg := f.Tabular
	cfg.Seed = seed
	learner := policies.NewTabularAgent(core.LearningAgent, cfg)

	gameConfig := f.Game
	if gameConfig.Seed != 0 {
		gameConfig.Seed += int64(worker)
	}
	game := match.NewGame(gameConfig)
	controller, err := match.NewController(game, []core.Agent{learner, policies.NewRandomAgent()}, nil)
	if err != nil {
		return nil, err
	}

	opponents, err := buildOpponents(f, seed)
	if err != nil {
		return nil, err
	}
	weights, err := f.PolicyWeights()
	if err != nil {
		return nil, err
	}
	source := policies.FromMemory
	if f.SelfPlayFromDisk {
		source = policies.FromDisk
	}
	schedulerConfig := policies.SchedulerConfig{
		Initial:         f.InitialPolicy,
		Weights:         weights,
		Source:          source,
		Learner:         learner,
		Lineage:         policies.NewLineage(f.ModelPath(), policies.SnapshotPattern(f.Replay.Prefix)),
		RefreshOnUpdate: f.RefreshOnUpdate,
		Logger:          &logger,
	}
	if seed != 0 {
		schedulerConfig.Rand = erand.New(erand.NewSource(seed + 2))
	}
	scheduler, err := policies.NewScheduler(opponents, schedulerConfig)
	if err != nil {
		return nil, err
	}

	fr, err := failureReward(f)
	if err != nil {
		return nil, err
	}
	env, err := core.NewEnvironment(game, controller, learner,
		core.WithScheduler(scheduler, f.UpdateEvery),
		core.WithFailureReward(fr),
		core.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if action, observation, ok := env.Spaces(); ok {
		logger.Debug().
			Str("action_space", action.Name).
			Int("actions", action.N).
			Str("observation_space", observation.Name).
			Msg("learner spaces")
	}

	runner := &core.Runner{
		Name:        fmt.Sprintf("%d", worker),
		Environment: env,
		Learner:     learner,
		Callbacks:   make([]core.Callback, 0),
	}
	if worker == 0 && f.Replay.SaveEvery > 0 {
		sidecar, player, err := newSidecar(f, learner, logger)
		if err != nil {
			return nil, err
		}
		sidecar.Followers = append(sidecar.Followers, player)
		runner.Callbacks = append(runner.Callbacks, sidecar)
	}
	return runner, nil
}

// newReplayEnv builds an environment where a greedy tabular player faces a
// random opponent. Both are inference agents so the episode runs unattended.
func newReplayEnv(f *common.Flags, logger zerolog.Logger) (*core.Environment, *policies.TabularAgent, error) {
	cfg := f.Tabular
	player := policies.NewTabularAgent(core.InferenceAgent, cfg)
	game := match.NewGame(f.Game)
	controller, err := match.NewController(game, []core.Agent{player, policies.NewRandomAgent()}, nil)
	if err != nil {
		return nil, nil, err
	}
	fr, err := failureReward(f)
	if err != nil {
		return nil, nil, err
	}
	env, err := core.NewEnvironment(game, controller, player,
		core.WithFailureReward(fr),
		core.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	return env, player, nil
}

func newSidecar(f *common.Flags, saver replay.ModelSaver, logger zerolog.Logger) (*replay.Sidecar, *policies.TabularAgent, error) {
	env, player, err := newReplayEnv(f, logger)
	if err != nil {
		return nil, nil, err
	}
	cfg := f.Replay
	cfg.SavePath = f.ModelPath()
	sidecar, err := replay.NewSidecar(cfg, saver, env, logger)
	if err != nil {
		return nil, nil, err
	}
	return sidecar, player, nil
}
