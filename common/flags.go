package common

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/zeu5/lux-rl-env/match"
	"github.com/zeu5/lux-rl-env/policies"
	"github.com/zeu5/lux-rl-env/replay"
	"github.com/zeu5/lux-rl-env/util"
)

const (
	FailureRewardAdapter = "adapter"
	FailureRewardLosing  = "losing"
)

type Flags struct {
	SavePath string `yaml:"save_path" json:"save_path"`
	Config   string `yaml:"-" json:"-"`
	Debug    bool   `yaml:"debug" json:"debug"`

	TrainFlags    `yaml:",inline"`
	OpponentFlags `yaml:",inline"`

	Game    match.Config           `yaml:"game" json:"game"`
	Tabular policies.TabularConfig `yaml:"tabular" json:"tabular"`
	Replay  replay.Config          `yaml:"replay" json:"replay"`
}

type TrainFlags struct {
	TotalSteps             int     `yaml:"total_steps" json:"total_steps"`
	Parallelism            int     `yaml:"parallelism" json:"parallelism"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	FailureReward          string  `yaml:"failure_reward" json:"failure_reward"`
	LosingReward           float64 `yaml:"losing_reward" json:"losing_reward"`
}

type OpponentFlags struct {
	UpdateEvery      int      `yaml:"update_every" json:"update_every"`
	InitialPolicy    string   `yaml:"initial_policy" json:"initial_policy"`
	Weights          []string `yaml:"weights" json:"weights"`
	SelfPlayFromDisk bool     `yaml:"self_play_from_disk" json:"self_play_from_disk"`
	RefreshOnUpdate  bool     `yaml:"refresh_on_update" json:"refresh_on_update"`
	ImitationModel   string   `yaml:"imitation_model" json:"imitation_model"`
}

func DefaultFlags() *Flags {
	f := &Flags{
		SavePath: "results",
		Game:     match.DefaultConfig(),
		TrainFlags: TrainFlags{
			TotalSteps:             100000,
			Parallelism:            1,
			MaxConsecutiveFailures: 20,
			FailureReward:          FailureRewardAdapter,
			LosingReward:           -1,
		},
		OpponentFlags: OpponentFlags{
			UpdateEvery:   1000,
			InitialPolicy: policies.SelfPlay,
			Weights:       []string{"two-way"},
		},
		Tabular: policies.DefaultTabularConfig(),
		Replay:  replay.Config{SaveEvery: 10000, Prefix: "rl_model", Episodes: 5},
	}
	f.Tabular.Actions = match.NumActions
	return f
}

func AddFlags(fs *pflag.FlagSet, f *Flags) {
	fs.StringVar(&f.SavePath, "save-path", f.SavePath, "Path to save results")
	fs.StringVar(&f.Config, "config", f.Config, "YAML config file; flags set on the command line take precedence")
	fs.BoolVar(&f.Debug, "debug", f.Debug, "Enable debug logging")

	fs.IntVar(&f.Game.Width, "width", f.Game.Width, "Map width")
	fs.IntVar(&f.Game.Height, "height", f.Game.Height, "Map height")
	fs.IntVar(&f.Game.UnitsPerTeam, "units", f.Game.UnitsPerTeam, "Starting units per team")
	fs.IntVar(&f.Game.MaxTurns, "max-turns", f.Game.MaxTurns, "Turns per episode")
	fs.Int64Var(&f.Game.Seed, "seed", f.Game.Seed, "Game seed (0 draws a new map every episode)")

	fs.IntVar(&f.TotalSteps, "total-steps", f.TotalSteps, "Training steps per worker")
	fs.IntVar(&f.Parallelism, "parallelism", f.Parallelism, "Number of training workers")
	fs.IntVar(&f.MaxConsecutiveFailures, "max-consecutive-failures", f.MaxConsecutiveFailures, "Stop a worker after this many consecutive failed episodes (0 disables)")
	fs.StringVar(&f.FailureReward, "failure-reward", f.FailureReward, "Reward on step failure: adapter or losing")
	fs.Float64Var(&f.LosingReward, "losing-reward", f.LosingReward, "Reward used when failure-reward is losing")

	fs.IntVar(&f.UpdateEvery, "update-every", f.UpdateEvery, "Steps between opponent updates (0 disables)")
	fs.StringVar(&f.InitialPolicy, "initial-policy", f.InitialPolicy, "Initial opponent policy")
	fs.StringSliceVar(&f.Weights, "weights", f.Weights, "Opponent weights as name=weight, or a preset: two-way, three-way")
	fs.BoolVar(&f.SelfPlayFromDisk, "self-play-from-disk", f.SelfPlayFromDisk, "Load self-play opponents from saved checkpoints")
	fs.BoolVar(&f.RefreshOnUpdate, "refresh-on-update", f.RefreshOnUpdate, "Refresh opponent weights on every update")
	fs.StringVar(&f.ImitationModel, "imitation-model", f.ImitationModel, "Model file played by the imitation opponent")

	fs.Float64Var(&f.Tabular.Alpha, "alpha", f.Tabular.Alpha, "Learning rate")
	fs.Float64Var(&f.Tabular.Gamma, "gamma", f.Tabular.Gamma, "Discount factor")
	fs.Float64Var(&f.Tabular.Temperature, "temperature", f.Tabular.Temperature, "Softmax temperature")

	fs.StringVar(&f.Replay.SavePath, "model-path", f.Replay.SavePath, "Checkpoint and replay directory (default <save-path>/models)")
	fs.IntVar(&f.Replay.SaveEvery, "save-every", f.Replay.SaveEvery, "Steps between checkpoints")
	fs.StringVar(&f.Replay.Prefix, "prefix", f.Replay.Prefix, "Checkpoint and replay file prefix")
	fs.IntVar(&f.Replay.Episodes, "replay-episodes", f.Replay.Episodes, "Replays per checkpoint")
}

// Load applies the config file, if any, under the flags changed on the command line.
func Load(fs *pflag.FlagSet, f *Flags) error {
	if f.Config == "" {
		return nil
	}
	changed := make(map[string]*pflag.Flag)
	scalars := make(map[string]string)
	slices := make(map[string][]string)
	fs.Visit(func(fl *pflag.Flag) {
		changed[fl.Name] = fl
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			slices[fl.Name] = sv.GetSlice()
			return
		}
		scalars[fl.Name] = fl.Value.String()
	})

	if err := f.LoadFile(f.Config); err != nil {
		return err
	}

	for name, fl := range changed {
		if s, ok := slices[name]; ok {
			if err := fl.Value.(pflag.SliceValue).Replace(s); err != nil {
				return errors.Wrapf(err, "restore flag %s", name)
			}
			continue
		}
		if err := fl.Value.Set(scalars[name]); err != nil {
			return errors.Wrapf(err, "restore flag %s", name)
		}
	}
	return nil
}

func (f *Flags) LoadFile(file string) error {
	bs, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "read config %s", file)
	}
	if err := yaml.Unmarshal(bs, f); err != nil {
		return errors.Wrapf(err, "parse config %s", file)
	}
	return nil
}

func (f *Flags) Record() error {
	return util.SaveJson(path.Join(f.SavePath, "config.json"), f)
}

// ModelPath is where checkpoints and replays go, <save-path>/models unless set.
func (f *Flags) ModelPath() string {
	if f.Replay.SavePath != "" {
		return f.Replay.SavePath
	}
	return path.Join(f.SavePath, "models")
}

func (f *Flags) PolicyWeights() ([]policies.PolicyWeight, error) {
	return ParseWeights(f.Weights)
}

// ParseWeights reads name=weight pairs. A single preset name selects one of
// the built-in splits.
func ParseWeights(specs []string) ([]policies.PolicyWeight, error) {
	if len(specs) == 0 {
		return policies.TwoWaySplit, nil
	}
	if len(specs) == 1 {
		switch specs[0] {
		case "two-way":
			return policies.TwoWaySplit, nil
		case "three-way":
			return policies.ThreeWaySplit, nil
		}
	}
	out := make([]policies.PolicyWeight, 0, len(specs))
	for _, entry := range specs {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, errors.Errorf("invalid weight %q, expected name=weight", entry)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid weight %q", entry)
		}
		out = append(out, policies.PolicyWeight{Name: strings.TrimSpace(name), Weight: w})
	}
	return out, nil
}
