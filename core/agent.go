package core

// AgentType separates agents driven by the trainer from agents that decide on their own.
type AgentType int

const (
	InferenceAgent AgentType = iota
	LearningAgent
)

func (t AgentType) String() string {
	if t == LearningAgent {
		return "learning"
	}
	return "inference"
}

// Agent occupies one seat of a match.
type Agent interface {
	Type() AgentType
	Team() Team
	SetTeam(Team)
	// Decide picks an action without the trainer. The driver only calls it
	// for inference agents.
	Decide(Game, DecisionPoint) Action
}

// Adapter is the learning agent as seen by the Environment.
type Adapter interface {
	Agent
	TakeAction(Action, Game, DecisionPoint) error
	Reward(g Game, gameOver, newTurn, gameError bool) (float64, error)
}

// ObservationBuilder builds an observation from the current decision point only.
type ObservationBuilder interface {
	Observation(Game, DecisionPoint) (Observation, error)
}

// HistoryObservationBuilder builds a base observation that depends on the
// previous one, then specialises it for the decision point.
type HistoryObservationBuilder interface {
	BaseObservation(g Game, team Team, prior Observation) (Observation, error)
	ObservationFrom(g Game, dp DecisionPoint, base Observation) (Observation, error)
}

// Space describes the actions or observations a learner exchanges with the
// Environment. N is zero when the values cannot be enumerated.
type Space struct {
	Name string
	N    int
}

// Spaces is implemented by adapters that can describe their action and
// observation spaces to a trainer.
type Spaces interface {
	ActionSpace() Space
	ObservationSpace() Space
}

// Learner picks actions from observations and learns from transitions.
type Learner interface {
	ResetEpisode(*EpisodeContext)
	UpdateEpisode(*EpisodeContext)
	PickAction(*StepContext, Observation) Action
	UpdateStep(*StepContext, Observation, Action, *StepResult)
	Reset()
}

// Callback is notified after every trainer step. Returning false stops the run.
type Callback interface {
	OnStep(numTimesteps int) bool
}

type CallbackFunc func(numTimesteps int) bool

func (f CallbackFunc) OnStep(numTimesteps int) bool {
	return f(numTimesteps)
}
