package policies

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/zeu5/lux-rl-env/core"
)

const (
	SelfPlay  = "self-play"
	Imitation = "imitation"
	Random    = "random"
)

// PolicyWeight is the width of the sub-range of [0,1) mapped to a policy.
type PolicyWeight struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

var (
	TwoWaySplit = []PolicyWeight{
		{Name: SelfPlay, Weight: 0.5},
		{Name: Imitation, Weight: 0.5},
	}
	ThreeWaySplit = []PolicyWeight{
		{Name: Imitation, Weight: 0.4},
		{Name: Random, Weight: 0.2},
		{Name: SelfPlay, Weight: 0.4},
	}
)

type SelfPlaySource int

const (
	// FromMemory copies the learner's in-process model.
	FromMemory SelfPlaySource = iota
	// FromDisk loads a snapshot from the lineage.
	FromDisk
)

// ModelSource exposes the learner's current model.
type ModelSource interface {
	Model() *Model
}

type ModelSetter interface {
	SetModel(*Model)
}

type ModelLoader interface {
	LoadModel(path string) error
}

type Reloader interface {
	Reload() error
}

type SchedulerConfig struct {
	Initial string
	Weights []PolicyWeight
	Source  SelfPlaySource
	Learner ModelSource
	Lineage *Lineage
	// RefreshOnUpdate refreshes the active opponent's weights on every update
	// even when the policy did not change.
	RefreshOnUpdate bool
	Rand            *erand.Rand
	Logger          *zerolog.Logger
}

// Scheduler owns the opponent registry and the active policy.
type Scheduler struct {
	opponents map[string]core.Agent
	active    string

	names      []string
	cumulative []float64

	source          SelfPlaySource
	learner         ModelSource
	lineage         *Lineage
	refreshOnUpdate bool
	rand            *erand.Rand
	logger          zerolog.Logger

	numSwitch int
	step      int
}

var _ core.OpponentScheduler = &Scheduler{}

func NewScheduler(opponents map[string]core.Agent, config SchedulerConfig) (*Scheduler, error) {
	if len(opponents) == 0 {
		return nil, errors.New("opponent registry is empty")
	}
	weights := config.Weights
	if len(weights) == 0 {
		weights = TwoWaySplit
	}
	names := make([]string, len(weights))
	widths := make([]float64, len(weights))
	for i, w := range weights {
		if w.Weight < 0 {
			return nil, errors.Errorf("negative weight %v for policy %q", w.Weight, w.Name)
		}
		names[i] = w.Name
		widths[i] = w.Weight
	}
	cumulative := floats.CumSum(make([]float64, len(widths)), widths)
	if total := cumulative[len(cumulative)-1]; total > 1 {
		floats.Scale(1/total, cumulative)
	}

	s := &Scheduler{
		opponents:       opponents,
		names:           names,
		cumulative:      cumulative,
		source:          config.Source,
		learner:         config.Learner,
		lineage:         config.Lineage,
		refreshOnUpdate: config.RefreshOnUpdate,
		rand:            config.Rand,
		logger:          log.Logger,
	}
	if config.Logger != nil {
		s.logger = *config.Logger
	}
	if s.rand == nil {
		s.rand = erand.New(erand.NewSource(uint64(time.Now().UnixNano())))
	}
	if s.source == FromDisk && s.lineage == nil {
		return nil, errors.New("self-play from disk needs a snapshot lineage")
	}

	if _, ok := opponents[config.Initial]; ok {
		s.active = config.Initial
	} else {
		keys := make([]string, 0, len(opponents))
		for k := range opponents {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.active = keys[0]
	}
	s.logger.Info().Str("policy", s.active).Msg("initial opponent policy")
	return s, nil
}

func (s *Scheduler) Active() core.Agent {
	return s.opponents[s.active]
}

func (s *Scheduler) ActiveName() string {
	return s.active
}

// Switches is the number of switch draws so far.
func (s *Scheduler) Switches() int {
	return s.numSwitch
}

// Update runs on the controller's update cadence.
func (s *Scheduler) Update(totalSteps int) bool {
	s.step = totalSteps
	prev := s.active
	if len(s.opponents) > 1 {
		s.SwitchPolicy()
	}
	changed := prev != s.active
	if !changed && s.refreshOnUpdate {
		s.refresh()
	}
	return changed
}

// draw maps p to the policy whose sub-range contains it.
func (s *Scheduler) draw(p float64) (string, bool) {
	i := sort.Search(len(s.cumulative), func(i int) bool { return p < s.cumulative[i] })
	if i == len(s.cumulative) {
		return "", false
	}
	return s.names[i], true
}

func (s *Scheduler) eligible(name string) bool {
	if _, ok := s.opponents[name]; !ok {
		return false
	}
	if name == SelfPlay && s.source == FromDisk {
		return s.lineage.Len() > 0
	}
	return true
}

// SwitchPolicy draws a policy and makes it active when it differs from the current one.
func (s *Scheduler) SwitchPolicy() {
	s.numSwitch++
	next := s.active
	if name, ok := s.draw(s.rand.Float64()); ok && s.eligible(name) {
		next = name
	}
	if next == s.active {
		return
	}
	prev := s.active
	s.active = next
	s.refresh()
	s.logger.Info().
		Int("step", s.step).
		Int("switch", s.numSwitch).
		Str("from", prev).
		Str("to", next).
		Msg("switch opponent agent")
}

func (s *Scheduler) refresh() {
	switch s.active {
	case SelfPlay:
		s.RefreshSelfPlayWeights()
	case Imitation:
		s.RefreshImitationWeights()
	}
}

// RefreshSelfPlayWeights replaces the self-play opponent's model with a copy
// of the learner's model or with a snapshot from disk. Failures are logged.
func (s *Scheduler) RefreshSelfPlayWeights() {
	if s.active != SelfPlay {
		return
	}
	agent := s.opponents[SelfPlay]
	logger := s.logger.With().Str("policy", SelfPlay).Int("step", s.step).Logger()

	switch s.source {
	case FromMemory:
		setter, ok := agent.(ModelSetter)
		if !ok || s.learner == nil {
			logger.Warn().Msg("self-play opponent cannot take the learner's model")
			return
		}
		setter.SetModel(s.learner.Model().Clone())
		logger.Debug().Msg("self-play weights copied from learner")
	case FromDisk:
		loader, ok := agent.(ModelLoader)
		if !ok {
			logger.Warn().Msg("self-play opponent cannot load snapshots")
			return
		}
		snap, err := s.lineage.Pick(s.rand)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping self-play refresh")
			return
		}
		if err := loader.LoadModel(snap.Path); err != nil {
			logger.Error().Err(err).Str("path", snap.Path).Msg("failed to load self-play snapshot")
			return
		}
		logger.Debug().Str("path", snap.Path).Int("snapshot", snap.Step).Msg("self-play weights loaded")
	}
}

// RefreshImitationWeights reloads the imitation opponent's reference model.
func (s *Scheduler) RefreshImitationWeights() {
	if s.active != Imitation {
		return
	}
	r, ok := s.opponents[Imitation].(Reloader)
	if !ok {
		return
	}
	if err := r.Reload(); err != nil {
		s.logger.Error().Err(err).Str("policy", Imitation).Msg("failed to reload imitation model")
	}
}
