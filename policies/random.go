package policies

import (
	"time"

	erand "golang.org/x/exp/rand"

	"github.com/zeu5/lux-rl-env/core"
)

// RandomAgent picks uniformly among the legal actions.
type RandomAgent struct {
	team core.Team
	rand *erand.Rand
}

var _ core.Agent = &RandomAgent{}

func NewRandomAgent() *RandomAgent {
	return NewSeededRandomAgent(uint64(time.Now().UnixNano()))
}

func NewSeededRandomAgent(seed uint64) *RandomAgent {
	return &RandomAgent{
		rand: erand.New(erand.NewSource(seed)),
	}
}

func (r *RandomAgent) Type() core.AgentType { return core.InferenceAgent }

func (r *RandomAgent) Team() core.Team { return r.team }

func (r *RandomAgent) SetTeam(t core.Team) { r.team = t }

func (r *RandomAgent) Decide(g core.Game, dp core.DecisionPoint) core.Action {
	actions := g.LegalActions(dp)
	if len(actions) == 0 {
		return 0
	}
	return actions[r.rand.Intn(len(actions))]
}
