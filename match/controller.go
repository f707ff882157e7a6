package match

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	erand "golang.org/x/exp/rand"

	"github.com/zeu5/lux-rl-env/core"
)

// Validator checks a finished game before it is reported as done.
// A non-nil error turns the end of the episode into a step failure.
type Validator func(*Game) error

// Controller drives a Game for two seated agents. Inference agents are asked
// for their action inline; decision points of learning agents are handed to
// the caller through the Sequence.
type Controller struct {
	game     *Game
	agents   []core.Agent
	validate Validator
	rand     *erand.Rand

	decisions int
	logger    zerolog.Logger
}

var _ core.TurnDriver = &Controller{}

func NewController(game *Game, agents []core.Agent, validate Validator) (*Controller, error) {
	if len(agents) != 2 {
		return nil, errors.Errorf("a match needs exactly two agents, got %d", len(agents))
	}
	c := &Controller{
		game:     game,
		agents:   append([]core.Agent{}, agents...),
		validate: validate,
		rand:     erand.New(erand.NewSource(uint64(time.Now().UnixNano()))),
		logger:   log.With().Str("component", "match").Logger(),
	}
	c.assignTeams(false)
	return c, nil
}

// SetRand replaces the source used to randomize team order.
func (c *Controller) SetRand(r *erand.Rand) {
	c.rand = r
}

func (c *Controller) Game() *Game {
	return c.game
}

func (c *Controller) assignTeams(swap bool) {
	if swap {
		c.agents[0].SetTeam(1)
		c.agents[1].SetTeam(0)
		return
	}
	c.agents[0].SetTeam(0)
	c.agents[1].SetTeam(1)
}

func (c *Controller) Reset(randomizeTeamOrder bool) error {
	c.game.Reset()
	c.decisions = 0
	c.assignTeams(randomizeTeamOrder && c.rand.Float64() < 0.5)
	return nil
}

func (c *Controller) Agents() []core.Agent {
	return append([]core.Agent{}, c.agents...)
}

// SetAgent seats a at the given seat. The new agent plays the team of the
// agent it replaces.
func (c *Controller) SetAgent(seat int, a core.Agent) {
	if seat < 0 || seat >= len(c.agents) {
		return
	}
	a.SetTeam(c.agents[seat].Team())
	c.agents[seat] = a
}

func (c *Controller) Decisions() int {
	return c.decisions
}

func (c *Controller) agentFor(team core.Team) core.Agent {
	for _, a := range c.agents {
		if a.Team() == team {
			return a
		}
	}
	return nil
}

func (c *Controller) RunToNextObservation() core.Sequence {
	return &sequence{c: c}
}

type pending struct {
	actor core.Actor
	kind  core.ActorKind
	team  core.Team
}

// sequence walks the turns of one episode. Each turn queues the units of
// both teams followed by their cities; the team that moves first alternates.
type sequence struct {
	c       *Controller
	queue   []pending
	fresh   map[core.Team]bool
	started bool
	err     error
}

func (s *sequence) Next() (core.DecisionPoint, error) {
	if s.err != nil {
		return core.DecisionPoint{}, s.err
	}
	g := s.c.game
	for {
		if err := g.TakeFault(); err != nil {
			return s.stop(core.StepFailed(g.Turn(), err))
		}
		if len(s.queue) == 0 {
			if s.started {
				g.EndTurn()
			}
			if g.Done() {
				return s.finish()
			}
			s.begin()
			continue
		}

		p := s.queue[0]
		s.queue = s.queue[1:]
		if !g.alive(p.actor) {
			continue
		}
		dp := core.DecisionPoint{Actor: p.actor, Kind: p.kind, Team: p.team, NewTurn: s.fresh[p.team]}
		s.fresh[p.team] = false
		s.c.decisions++

		agent := s.c.agentFor(p.team)
		if agent == nil {
			return s.stop(errors.Errorf("no agent plays team %d", p.team))
		}
		if agent.Type() == core.LearningAgent {
			return dp, nil
		}
		if err := g.Apply(dp, agent.Decide(g, dp)); err != nil {
			return s.stop(err)
		}
	}
}

func (s *sequence) begin() {
	s.started = true
	g := s.c.game
	s.fresh = map[core.Team]bool{0: true, 1: true}
	order := []core.Team{0, 1}
	if g.Turn()%2 == 1 {
		order = []core.Team{1, 0}
	}
	s.queue = s.queue[:0]
	for _, team := range order {
		for _, u := range g.Units(team) {
			s.queue = append(s.queue, pending{actor: u, kind: core.UnitActor, team: team})
		}
	}
	for _, team := range order {
		for _, city := range g.Cities(team) {
			s.queue = append(s.queue, pending{actor: city, kind: core.CityActor, team: team})
		}
	}
}

func (s *sequence) finish() (core.DecisionPoint, error) {
	if s.c.validate != nil {
		if err := s.c.validate(s.c.game); err != nil {
			return s.stop(core.StepFailed(s.c.game.Turn(), errors.Wrap(err, "validate finished game")))
		}
	}
	return s.stop(core.ErrEpisodeDone)
}

// stop makes err the terminal result of the sequence and flushes the replay.
func (s *sequence) stop(err error) (core.DecisionPoint, error) {
	s.err = err
	path, rerr := s.c.game.FinishReplay()
	if rerr != nil {
		s.c.logger.Warn().Err(rerr).Msg("failed to write replay")
	} else if path != "" {
		s.c.logger.Debug().Str("path", path).Int("decisions", s.c.decisions).Msg("replay written")
	}
	return core.DecisionPoint{}, err
}
