package replay

import (
	"fmt"
	"path"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zeu5/lux-rl-env/core"
	"github.com/zeu5/lux-rl-env/policies"
	"github.com/zeu5/lux-rl-env/util"
)

type Config struct {
	// SaveEvery is the number of training steps between checkpoints.
	SaveEvery int    `yaml:"save_every" json:"save_every"`
	SavePath  string `yaml:"save_path" json:"save_path"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	// Episodes is the number of replays run after each checkpoint, seeded 0..Episodes-1.
	Episodes int `yaml:"episodes" json:"episodes"`
}

func DefaultConfig() Config {
	return Config{
		SaveEvery: 10000,
		SavePath:  "results/models",
		Prefix:    "rl_model",
		Episodes:  5,
	}
}

type ModelSaver interface {
	SaveModel(path string) error
}

// Env is the environment the replays are played in. All of its seated agents
// must be inference agents.
type Env interface {
	Game() core.Game
	SetReplayPath(folder, prefix string)
	RunToCompletion() (bool, error)
}

// Stats summarises the replays of one checkpoint.
type Stats struct {
	Checkpoint   string
	Runs         int
	StepFailures int
	Errors       int
}

// Sidecar saves the learner's model on a fixed cadence and replays a few
// seeded episodes against it. Replay problems never abort training.
type Sidecar struct {
	config   Config
	saver    ModelSaver
	env      Env
	reporter *ErrorReporter
	logger   zerolog.Logger

	// Followers load every saved checkpoint before the replays run.
	Followers []policies.ModelLoader

	calls int
}

var _ core.Callback = &Sidecar{}

func NewSidecar(config Config, saver ModelSaver, env Env, logger zerolog.Logger) (*Sidecar, error) {
	if config.Prefix == "" {
		config.Prefix = DefaultConfig().Prefix
	}
	if err := util.EnsureDir(config.SavePath); err != nil {
		return nil, err
	}
	reporter, err := NewErrorReporter(config.SavePath)
	if err != nil {
		return nil, err
	}
	return &Sidecar{
		config:   config,
		saver:    saver,
		env:      env,
		reporter: reporter,
		logger:   logger.With().Str("component", "replay").Logger(),
	}, nil
}

func (s *Sidecar) OnStep(numTimesteps int) bool {
	s.calls++
	if s.config.SaveEvery > 0 && s.calls%s.config.SaveEvery == 0 {
		s.Checkpoint(numTimesteps)
	}
	return true
}

// Checkpoint saves the model as <prefix>_<step>_steps.json and runs the replays.
func (s *Sidecar) Checkpoint(step int) Stats {
	stats := Stats{}
	if s.saver != nil {
		file := path.Join(s.config.SavePath, policies.SnapshotName(s.config.Prefix, step))
		if err := s.saver.SaveModel(file); err != nil {
			s.logger.Error().Err(err).Int("step", step).Msg("failed to save checkpoint")
		} else {
			stats.Checkpoint = file
			s.logger.Info().Str("path", file).Int("step", step).Msg("saved checkpoint")
			for _, f := range s.Followers {
				if err := f.LoadModel(file); err != nil {
					s.logger.Warn().Err(err).Str("path", file).Msg("replay agent could not load checkpoint")
				}
			}
		}
	}

	for seed := 0; seed < s.config.Episodes; seed++ {
		name := fmt.Sprintf("%s_step%d_seed%d", s.config.Prefix, step, seed)
		stats.Runs++
		failed, err := s.replay(name, int64(seed))
		switch {
		case err != nil:
			stats.Errors++
			s.logger.Error().Str("replay", name).Msgf("replay failed: %+v", err)
			board := ""
			if s.env.Game() != nil {
				board = s.safeBoard()
			}
			if file, rerr := s.reporter.Report(name, int64(seed), err, board); rerr != nil {
				s.logger.Error().Err(rerr).Msg("failed to write error report")
			} else {
				s.logger.Info().Str("path", file).Msg("error report written")
			}
		case failed:
			stats.StepFailures++
			s.logger.Warn().Str("replay", name).Msg("replay ended by step failure")
		default:
			s.logger.Debug().Str("replay", name).Msg("replay finished")
		}
	}
	if stats.Errors > 0 {
		s.logger.Warn().Int("step", step).Int("errors", stats.Errors).Str("reports", s.reporter.Dir()).Msg("replays failed")
	}
	return stats
}

func (s *Sidecar) replay(name string, seed int64) (failed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			failed = false
			err = errors.Errorf("replay panicked: %v", r)
		}
	}()
	s.env.Game().SetSeed(seed)
	s.env.SetReplayPath(s.config.SavePath, name)
	failed, err = s.env.RunToCompletion()
	if err != nil {
		err = errors.WithStack(err)
	}
	return failed, err
}

func (s *Sidecar) safeBoard() (board string) {
	defer func() {
		if recover() != nil {
			board = ""
		}
	}()
	return s.env.Game().MapString()
}
