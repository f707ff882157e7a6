package policies

import (
	"math"
	"time"

	"github.com/pkg/errors"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/zeu5/lux-rl-env/core"
)

// StateObservation is the observation built by TabularAgent.
type StateObservation struct {
	Key     string
	Actions []core.Action
}

type TabularConfig struct {
	Alpha       float64 `yaml:"alpha" json:"alpha"`
	Gamma       float64 `yaml:"gamma" json:"gamma"`
	Temperature float64 `yaml:"temperature" json:"temperature"`

	WinReward       float64 `yaml:"win_reward" json:"win_reward"`
	LossReward      float64 `yaml:"loss_reward" json:"loss_reward"`
	ErrorReward     float64 `yaml:"error_reward" json:"error_reward"`
	TurnRewardScale float64 `yaml:"turn_reward_scale" json:"turn_reward_scale"`

	// Actions is the size of the discrete action space, zero if unknown.
	Actions int    `yaml:"actions" json:"actions"`
	Seed    uint64 `yaml:"seed" json:"seed"`
}

func DefaultTabularConfig() TabularConfig {
	return TabularConfig{
		Alpha:           0.2,
		Gamma:           0.95,
		Temperature:     1,
		WinReward:       1,
		LossReward:      -1,
		ErrorReward:     -1,
		TurnRewardScale: 0.01,
	}
}

// TabularAgent keeps a Model of action values. As a learning agent it is the
// Environment's adapter and the Runner's learner; as an inference agent it
// plays greedily from its model.
type TabularAgent struct {
	config    TabularConfig
	agentType core.AgentType
	team      core.Team
	model     *Model

	src       erand.Source
	rand      *erand.Rand
	lastScore float64
}

var (
	_ core.Adapter            = &TabularAgent{}
	_ core.ObservationBuilder = &TabularAgent{}
	_ core.Learner            = &TabularAgent{}
	_ core.Spaces             = &TabularAgent{}
)

func NewTabularAgent(agentType core.AgentType, config TabularConfig) *TabularAgent {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := erand.NewSource(seed)
	return &TabularAgent{
		config:    config,
		agentType: agentType,
		model:     NewModel(),
		src:       src,
		rand:      erand.New(src),
	}
}

func (t *TabularAgent) Type() core.AgentType { return t.agentType }

func (t *TabularAgent) Team() core.Team { return t.team }

func (t *TabularAgent) SetTeam(team core.Team) { t.team = team }

func (t *TabularAgent) Model() *Model { return t.model }

func (t *TabularAgent) SetModel(m *Model) { t.model = m }

func (t *TabularAgent) LoadModel(path string) error {
	m, err := LoadModel(path)
	if err != nil {
		return err
	}
	t.model = m
	return nil
}

func (t *TabularAgent) SaveModel(path string) error {
	return t.model.Save(path)
}

func (t *TabularAgent) Decide(g core.Game, dp core.DecisionPoint) core.Action {
	actions := g.LegalActions(dp)
	if len(actions) == 0 {
		return 0
	}
	a, _ := t.model.MaxAmong(g.StateKey(dp), actions, 0, t.rand)
	return a
}

func (t *TabularAgent) Observation(g core.Game, dp core.DecisionPoint) (core.Observation, error) {
	return &StateObservation{
		Key:     g.StateKey(dp),
		Actions: g.LegalActions(dp),
	}, nil
}

func (t *TabularAgent) TakeAction(a core.Action, g core.Game, dp core.DecisionPoint) error {
	return g.Apply(dp, a)
}

func (t *TabularAgent) Reward(g core.Game, gameOver, newTurn, gameError bool) (float64, error) {
	if gameError {
		t.lastScore = 0
		return t.config.ErrorReward, nil
	}
	if gameOver {
		t.lastScore = 0
		winner, ok := g.Winner()
		switch {
		case !ok:
			return 0, nil
		case winner == t.team:
			return t.config.WinReward, nil
		default:
			return t.config.LossReward, nil
		}
	}
	if !newTurn {
		return 0, nil
	}
	score := g.Score(t.team)
	r := (score - t.lastScore) * t.config.TurnRewardScale
	t.lastScore = score
	return r, nil
}

func (t *TabularAgent) ActionSpace() core.Space {
	return core.Space{Name: "discrete", N: t.config.Actions}
}

// ObservationSpace is the set of state keys, which is not enumerated up front.
func (t *TabularAgent) ObservationSpace() core.Space {
	return core.Space{Name: "state-key"}
}

func (t *TabularAgent) ResetEpisode(_ *core.EpisodeContext) {
	t.lastScore = 0
}

func (t *TabularAgent) UpdateEpisode(_ *core.EpisodeContext) {}

func (t *TabularAgent) Reset() {}

// PickAction samples from the softmax of the action values at the
// configured temperature. A zero temperature picks greedily.
func (t *TabularAgent) PickAction(_ *core.StepContext, obs core.Observation) core.Action {
	so, ok := obs.(*StateObservation)
	if !ok || len(so.Actions) == 0 {
		return 0
	}
	if t.config.Temperature <= 0 {
		a, _ := t.model.MaxAmong(so.Key, so.Actions, 0, t.rand)
		return a
	}

	vals := make([]float64, len(so.Actions))
	largest := math.Inf(-1)
	for i, a := range so.Actions {
		vals[i] = t.model.Get(so.Key, a, 0) / t.config.Temperature
		if vals[i] > largest {
			largest = vals[i]
		}
	}
	sum := 0.0
	for i := range vals {
		vals[i] = math.Exp(vals[i] - largest)
		sum += vals[i]
	}
	for i := range vals {
		vals[i] /= sum
	}
	i, ok := sampleuv.NewWeighted(vals, t.src).Take()
	if !ok {
		return so.Actions[0]
	}
	return so.Actions[i]
}

func (t *TabularAgent) UpdateStep(_ *core.StepContext, obs core.Observation, action core.Action, res *core.StepResult) {
	so, ok := obs.(*StateObservation)
	if !ok {
		return
	}
	next := 0.0
	if !res.Done {
		if nextObs, ok := res.Observation.(*StateObservation); ok && len(nextObs.Actions) > 0 {
			_, next = t.model.MaxAmong(nextObs.Key, nextObs.Actions, 0, t.rand)
		}
	}
	cur := t.model.Get(so.Key, action, 0)
	t.model.Set(so.Key, action, (1-t.config.Alpha)*cur+t.config.Alpha*(res.Reward+t.config.Gamma*next))
}

// ImitationAgent plays from a fixed reference model.
type ImitationAgent struct {
	*TabularAgent
	reference string
}

func NewImitationAgent(reference string, config TabularConfig) (*ImitationAgent, error) {
	a := &ImitationAgent{
		TabularAgent: NewTabularAgent(core.InferenceAgent, config),
		reference:    reference,
	}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload reads the reference model again.
func (a *ImitationAgent) Reload() error {
	if err := a.LoadModel(a.reference); err != nil {
		return errors.Wrap(err, "load imitation reference")
	}
	return nil
}
