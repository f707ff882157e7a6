package core

import (
	"fmt"
)

type fakeActor string

func (a fakeActor) ID() string { return string(a) }

func unitPoint(id string, team Team, newTurn bool) DecisionPoint {
	return DecisionPoint{Actor: fakeActor(id), Kind: UnitActor, Team: team, NewTurn: newTurn}
}

type replayCall struct {
	folder   string
	prefix   string
	stateful bool
}

type fakeGame struct {
	seed    int64
	applied []Action
	replays []replayCall
}

var _ Game = &fakeGame{}

func (g *fakeGame) Turn() int                           { return len(g.applied) }
func (g *fakeGame) SetSeed(s int64)                     { g.seed = s }
func (g *fakeGame) Seed() int64                         { return g.seed }
func (g *fakeGame) LegalActions(DecisionPoint) []Action { return []Action{0, 1} }
func (g *fakeGame) StateKey(dp DecisionPoint) string    { return dp.Actor.ID() }
func (g *fakeGame) Score(Team) float64                  { return 0 }
func (g *fakeGame) Winner() (Team, bool)                { return 0, true }
func (g *fakeGame) MapString() string                   { return "..\n.." }

func (g *fakeGame) Apply(_ DecisionPoint, a Action) error {
	g.applied = append(g.applied, a)
	return nil
}

func (g *fakeGame) StartReplayLogging(folder, prefix string, stateful bool) error {
	g.replays = append(g.replays, replayCall{folder, prefix, stateful})
	return nil
}

// outcome is one scripted result of Sequence.Next. Inline outcomes are
// resolved by the driver itself, like decisions of inference agents.
type outcome struct {
	dp     DecisionPoint
	err    error
	inline bool
}

type fakeDriver struct {
	script    []outcome
	agents    []Agent
	resets    int
	decisions int
	seated    []Agent
}

var _ TurnDriver = &fakeDriver{}

func newFakeDriver(script []outcome, agents ...Agent) *fakeDriver {
	return &fakeDriver{script: script, agents: agents}
}

func (d *fakeDriver) Reset(bool) error {
	d.resets++
	d.decisions = 0
	return nil
}

func (d *fakeDriver) RunToNextObservation() Sequence {
	return &fakeSequence{d: d}
}

func (d *fakeDriver) Agents() []Agent { return d.agents }

func (d *fakeDriver) SetAgent(seat int, a Agent) {
	d.seated = append(d.seated, a)
	if seat < len(d.agents) {
		d.agents[seat] = a
	}
}

func (d *fakeDriver) Decisions() int { return d.decisions }

type fakeSequence struct {
	d   *fakeDriver
	idx int
}

func (s *fakeSequence) Next() (DecisionPoint, error) {
	for s.idx < len(s.d.script) {
		o := s.d.script[s.idx]
		s.idx++
		if o.err != nil {
			return DecisionPoint{}, o.err
		}
		s.d.decisions++
		if o.inline {
			continue
		}
		return o.dp, nil
	}
	return DecisionPoint{}, ErrEpisodeDone
}

type rewardCall struct {
	gameOver  bool
	newTurn   bool
	gameError bool
}

// fakeAdapter builds observations from the decision point only.
type fakeAdapter struct {
	agentType AgentType
	team      Team
	takeErr   error
	rewards   []rewardCall
}

var (
	_ Adapter            = &fakeAdapter{}
	_ ObservationBuilder = &fakeAdapter{}
)

func (a *fakeAdapter) Type() AgentType                   { return a.agentType }
func (a *fakeAdapter) Team() Team                        { return a.team }
func (a *fakeAdapter) SetTeam(t Team)                    { a.team = t }
func (a *fakeAdapter) Decide(Game, DecisionPoint) Action { return 0 }

func (a *fakeAdapter) TakeAction(act Action, g Game, dp DecisionPoint) error {
	if a.takeErr != nil {
		return a.takeErr
	}
	return g.Apply(dp, act)
}

func (a *fakeAdapter) Reward(_ Game, gameOver, newTurn, gameError bool) (float64, error) {
	a.rewards = append(a.rewards, rewardCall{gameOver, newTurn, gameError})
	switch {
	case gameError:
		return -1, nil
	case gameOver:
		return 1, nil
	}
	return 0.1, nil
}

func (a *fakeAdapter) Observation(_ Game, dp DecisionPoint) (Observation, error) {
	return dp.Actor.ID(), nil
}

// historyAdapter numbers its base observations and remembers the prior it was given.
type historyAdapter struct {
	fakeAdapter
	bases  int
	priors []Observation
}

var _ HistoryObservationBuilder = &historyAdapter{}

func (a *historyAdapter) BaseObservation(_ Game, team Team, prior Observation) (Observation, error) {
	a.priors = append(a.priors, prior)
	a.bases++
	return fmt.Sprintf("base%d", a.bases), nil
}

func (a *historyAdapter) ObservationFrom(_ Game, dp DecisionPoint, base Observation) (Observation, error) {
	return fmt.Sprintf("%v/%s", base, dp.Actor.ID()), nil
}

// bareAdapter cannot build observations.
type bareAdapter struct {
	fakeInference
}

func (a *bareAdapter) TakeAction(Action, Game, DecisionPoint) error { return nil }

func (a *bareAdapter) Reward(Game, bool, bool, bool) (float64, error) { return 0, nil }

type fakeInference struct {
	team Team
	name string
}

func (a *fakeInference) Type() AgentType                   { return InferenceAgent }
func (a *fakeInference) Team() Team                        { return a.team }
func (a *fakeInference) SetTeam(t Team)                    { a.team = t }
func (a *fakeInference) Decide(Game, DecisionPoint) Action { return 0 }

type fakeScheduler struct {
	change  bool
	updates []int
	agents  []Agent
	active  int
}

var _ OpponentScheduler = &fakeScheduler{}

func (s *fakeScheduler) Update(total int) bool {
	s.updates = append(s.updates, total)
	if s.change {
		s.active = (s.active + 1) % len(s.agents)
	}
	return s.change
}

func (s *fakeScheduler) Active() Agent { return s.agents[s.active] }

func (s *fakeScheduler) ActiveName() string {
	return s.agents[s.active].(*fakeInference).name
}

// spacedAdapter describes a discrete action space.
type spacedAdapter struct {
	fakeAdapter
}

func (a *spacedAdapter) ActionSpace() Space      { return Space{Name: "discrete", N: 6} }
func (a *spacedAdapter) ObservationSpace() Space { return Space{Name: "state-key"} }
