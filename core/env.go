package core

import (
	"context"
	"fmt"
)

// Team identifies one side of a two-team match.
type Team int

// ActorKind tells whether a decision point belongs to a unit or a city tile.
type ActorKind int

const (
	UnitActor ActorKind = iota
	CityActor
)

func (k ActorKind) String() string {
	switch k {
	case UnitActor:
		return "unit"
	case CityActor:
		return "city"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Actor is a game entity that can be asked for an action.
type Actor interface {
	ID() string
}

// DecisionPoint identifies the next entity that needs an action.
// NewTurn is set on the first decision point of a team within a simulated turn.
type DecisionPoint struct {
	Actor   Actor
	Kind    ActorKind
	Team    Team
	NewTurn bool
}

// Action is the flat action code submitted by the trainer.
type Action int

// Observation is opaque to the controller; adapters decide its shape.
type Observation interface{}

// Game is the state engine that owns map, resources, units and cities.
type Game interface {
	Turn() int
	SetSeed(int64)
	Seed() int64
	// Apply applies the effect of one decision.
	Apply(DecisionPoint, Action) error
	LegalActions(DecisionPoint) []Action
	StateKey(DecisionPoint) string
	Score(Team) float64
	// Winner reports the winning team once the game is over. ok is false on a draw.
	Winner() (team Team, ok bool)
	MapString() string
	StartReplayLogging(folder, prefix string, stateful bool) error
}

// Sequence is a resumable walk over the decision points of one episode.
// Next returns ErrEpisodeDone on ordinary completion and a *StepFailedError
// when the game rejected an action or turn.
type Sequence interface {
	Next() (DecisionPoint, error)
}

// OpponentSeat is the driver seat occupied by the adversary.
const OpponentSeat = 1

// TurnDriver walks the units and cities of a match and pauses at every
// decision point owned by a learning agent.
type TurnDriver interface {
	Reset(randomizeTeamOrder bool) error
	RunToNextObservation() Sequence
	Agents() []Agent
	SetAgent(seat int, a Agent)
	// Decisions is the number of decision points resolved in the current episode.
	Decisions() int
}

// OpponentScheduler decides which opponent occupies OpponentSeat.
type OpponentScheduler interface {
	// Update is invoked on the update cadence and reports whether the active agent changed.
	Update(totalSteps int) bool
	Active() Agent
	ActiveName() string
}

type EpisodeContext struct {
	Context       context.Context
	Episode       int
	StartTimeStep int
	Return        float64

	Trace *Trace

	err    error
	failed bool
}

func NewEpisodeContext(ctx context.Context) *EpisodeContext {
	return &EpisodeContext{
		Context: ctx,
		Trace:   NewTrace(),
	}
}

// Fail marks the episode as ended by a step failure.
func (e *EpisodeContext) Fail(err error) {
	e.err = err
	e.failed = true
}

func (e *EpisodeContext) IsFailed() bool {
	return e.failed
}

func (e *EpisodeContext) Err() error {
	return e.err
}

type StepContext struct {
	Step int
	*EpisodeContext
}
