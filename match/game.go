package match

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	erand "golang.org/x/exp/rand"

	"github.com/zeu5/lux-rl-env/core"
	"github.com/zeu5/lux-rl-env/util"
)

// Unit actions.
const (
	UnitStay core.Action = iota
	MoveNorth
	MoveEast
	MoveSouth
	MoveWest
	BuildCity
)

// City actions.
const (
	CityIdle core.Action = iota
	SpawnUnit
)

// NumActions bounds the action codes of both units and cities.
const NumActions = int(BuildCity) + 1

type Config struct {
	Width           int     `yaml:"width" json:"width"`
	Height          int     `yaml:"height" json:"height"`
	UnitsPerTeam    int     `yaml:"units_per_team" json:"units_per_team"`
	MaxTurns        int     `yaml:"max_turns" json:"max_turns"`
	CityCost        int     `yaml:"city_cost" json:"city_cost"`
	UnitCost        int     `yaml:"unit_cost" json:"unit_cost"`
	ResourceDensity float64 `yaml:"resource_density" json:"resource_density"`
	// Seed fixes the map. Zero draws a new seed on every Reset.
	Seed int64 `yaml:"seed" json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Width:           8,
		Height:          8,
		UnitsPerTeam:    2,
		MaxTurns:        20,
		CityCost:        3,
		UnitCost:        4,
		ResourceDensity: 0.2,
	}
}

type Unit struct {
	id    string
	Team  core.Team
	X, Y  int
	Cargo int
}

func (u *Unit) ID() string { return u.id }

type City struct {
	id   string
	Team core.Team
	X, Y int
	Fuel int
}

func (c *City) ID() string { return c.id }

type replayLog struct {
	folder    string
	prefix    string
	stateful  bool
	rows      []util.ReplayRow
	boardTurn int
}

// Game is a small two-team grid game: units gather resources and found
// cities, cities spawn units. The team with the higher score after MaxTurns wins.
type Game struct {
	config Config
	rand   *erand.Rand

	seed  int64
	fixed bool
	seeds *erand.Rand

	turn      int
	resources [][]int
	units     []*Unit
	cities    []*City
	nextID    int

	// fault is an invalid action waiting to be reported by the driver.
	fault  error
	replay *replayLog
}

var _ core.Game = &Game{}

func NewGame(config Config) *Game {
	g := &Game{
		config: config,
		seed:   config.Seed,
		fixed:  config.Seed != 0,
		seeds:  erand.New(erand.NewSource(uint64(time.Now().UnixNano()))),
	}
	g.Reset()
	return g
}

func (g *Game) Config() Config { return g.config }

// SetSeed pins the map to seed for every following Reset, zero included.
func (g *Game) SetSeed(seed int64) {
	g.seed = seed
	g.fixed = true
}

// Seed is the seed the current map was built from.
func (g *Game) Seed() int64 { return g.seed }

func (g *Game) Turn() int { return g.turn }

// Reset rebuilds the map and drops replay logging. Without a fixed seed
// every Reset draws a fresh one.
func (g *Game) Reset() {
	if !g.fixed {
		g.seed = int64(g.seeds.Uint64() >> 1)
	}
	g.rand = erand.New(erand.NewSource(uint64(g.seed)))
	g.turn = 0
	g.units = make([]*Unit, 0)
	g.cities = make([]*City, 0)
	g.nextID = 0
	g.fault = nil
	g.replay = nil

	g.resources = make([][]int, g.config.Height)
	for y := range g.resources {
		g.resources[y] = make([]int, g.config.Width)
	}
	// Resources are mirrored so neither side starts ahead.
	for y := 0; y < g.config.Height; y++ {
		for x := 0; x < (g.config.Width+1)/2; x++ {
			if g.rand.Float64() < g.config.ResourceDensity {
				amount := 2 + g.rand.Intn(4)
				g.resources[y][x] = amount
				g.resources[y][g.config.Width-1-x] = amount
			}
		}
	}

	mid := g.config.Height / 2
	g.addCity(0, 0, mid)
	g.addCity(1, g.config.Width-1, mid)
	for i := 0; i < g.config.UnitsPerTeam; i++ {
		y := (mid + i) % g.config.Height
		g.addUnit(0, util.MinInt(1, g.config.Width-1), y)
		g.addUnit(1, util.MaxInt(g.config.Width-2, 0), y)
	}
}

func (g *Game) newID(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s_%d", prefix, g.nextID)
}

func (g *Game) addUnit(team core.Team, x, y int) *Unit {
	u := &Unit{id: g.newID("u"), Team: team, X: x, Y: y}
	g.units = append(g.units, u)
	return u
}

func (g *Game) addCity(team core.Team, x, y int) *City {
	c := &City{id: g.newID("c"), Team: team, X: x, Y: y}
	g.cities = append(g.cities, c)
	return c
}

func (g *Game) Units(team core.Team) []*Unit {
	out := make([]*Unit, 0)
	for _, u := range g.units {
		if u.Team == team {
			out = append(out, u)
		}
	}
	return out
}

func (g *Game) Cities(team core.Team) []*City {
	out := make([]*City, 0)
	for _, c := range g.cities {
		if c.Team == team {
			out = append(out, c)
		}
	}
	return out
}

func (g *Game) cityAt(x, y int) *City {
	for _, c := range g.cities {
		if c.X == x && c.Y == y {
			return c
		}
	}
	return nil
}

func (g *Game) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.config.Width && y < g.config.Height
}

func (g *Game) alive(a core.Actor) bool {
	switch actor := a.(type) {
	case *Unit:
		for _, u := range g.units {
			if u == actor {
				return true
			}
		}
	case *City:
		for _, c := range g.cities {
			if c == actor {
				return true
			}
		}
	}
	return false
}

func moveDelta(a core.Action) (int, int) {
	switch a {
	case MoveNorth:
		return 0, -1
	case MoveEast:
		return 1, 0
	case MoveSouth:
		return 0, 1
	case MoveWest:
		return -1, 0
	}
	return 0, 0
}

func (g *Game) unitLegal(u *Unit, a core.Action) bool {
	switch a {
	case UnitStay:
		return true
	case MoveNorth, MoveEast, MoveSouth, MoveWest:
		dx, dy := moveDelta(a)
		x, y := u.X+dx, u.Y+dy
		if !g.inBounds(x, y) {
			return false
		}
		c := g.cityAt(x, y)
		return c == nil || c.Team == u.Team
	case BuildCity:
		return u.Cargo >= g.config.CityCost && g.cityAt(u.X, u.Y) == nil
	}
	return false
}

func (g *Game) cityLegal(c *City, a core.Action) bool {
	switch a {
	case CityIdle:
		return true
	case SpawnUnit:
		return c.Fuel >= g.config.UnitCost
	}
	return false
}

func (g *Game) LegalActions(dp core.DecisionPoint) []core.Action {
	out := make([]core.Action, 0)
	switch actor := dp.Actor.(type) {
	case *Unit:
		for a := UnitStay; a <= BuildCity; a++ {
			if g.unitLegal(actor, a) {
				out = append(out, a)
			}
		}
	case *City:
		for a := CityIdle; a <= SpawnUnit; a++ {
			if g.cityLegal(actor, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// Apply executes one decision. An unknown actor is an integration error and
// is returned; an illegal action is held back and reported by the driver as
// a step failure.
func (g *Game) Apply(dp core.DecisionPoint, a core.Action) error {
	if !g.alive(dp.Actor) {
		return errors.Errorf("actor %v is not part of this game", dp.Actor)
	}
	switch actor := dp.Actor.(type) {
	case *Unit:
		if actor.Team != dp.Team {
			return errors.Errorf("unit %s does not belong to team %d", actor.id, dp.Team)
		}
		if !g.unitLegal(actor, a) {
			g.fault = errors.Errorf("illegal action %d for unit %s at (%d,%d)", a, actor.id, actor.X, actor.Y)
			return nil
		}
		switch a {
		case MoveNorth, MoveEast, MoveSouth, MoveWest:
			dx, dy := moveDelta(a)
			actor.X += dx
			actor.Y += dy
		case BuildCity:
			actor.Cargo -= g.config.CityCost
			g.addCity(actor.Team, actor.X, actor.Y)
		}
		g.record(dp, a, actor.X, actor.Y)
	case *City:
		if actor.Team != dp.Team {
			return errors.Errorf("city %s does not belong to team %d", actor.id, dp.Team)
		}
		if !g.cityLegal(actor, a) {
			g.fault = errors.Errorf("illegal action %d for city %s", a, actor.id)
			return nil
		}
		if a == SpawnUnit {
			actor.Fuel -= g.config.UnitCost
			g.addUnit(actor.Team, actor.X, actor.Y)
		}
		g.record(dp, a, actor.X, actor.Y)
	}
	return nil
}

// TakeFault returns and clears the pending illegal-action error.
func (g *Game) TakeFault() error {
	err := g.fault
	g.fault = nil
	return err
}

// EndTurn harvests resources, fuels cities and advances the turn counter.
func (g *Game) EndTurn() {
	for _, u := range g.units {
		if g.resources[u.Y][u.X] > 0 {
			g.resources[u.Y][u.X]--
			u.Cargo++
		}
	}
	for _, c := range g.cities {
		c.Fuel++
	}
	g.turn++
}

func (g *Game) Done() bool {
	if g.turn >= g.config.MaxTurns {
		return true
	}
	for _, team := range []core.Team{0, 1} {
		if len(g.Units(team)) == 0 && len(g.Cities(team)) == 0 {
			return true
		}
	}
	return false
}

func (g *Game) Score(team core.Team) float64 {
	score := 0.0
	for _, c := range g.cities {
		if c.Team == team {
			score += 10
		}
	}
	for _, u := range g.units {
		if u.Team == team {
			score += 1 + 0.1*float64(u.Cargo)
		}
	}
	return score
}

func (g *Game) Winner() (core.Team, bool) {
	s0, s1 := g.Score(0), g.Score(1)
	switch {
	case s0 > s1:
		return 0, true
	case s1 > s0:
		return 1, true
	}
	return 0, false
}

func (g *Game) StateKey(dp core.DecisionPoint) string {
	switch actor := dp.Actor.(type) {
	case *Unit:
		here := util.MinInt(g.resources[actor.Y][actor.X], 1)
		return fmt.Sprintf("u|res=%d|cargo=%d|city=%t|dir=%d",
			here, util.MinInt(actor.Cargo, g.config.CityCost), g.cityAt(actor.X, actor.Y) != nil, g.nearestResource(actor.X, actor.Y))
	case *City:
		return fmt.Sprintf("c|fuel=%d|units=%d",
			util.MinInt(actor.Fuel, g.config.UnitCost), util.MinInt(len(g.Units(actor.Team)), 4))
	}
	return ""
}

// nearestResource returns the move action heading to the closest resource, or UnitStay.
func (g *Game) nearestResource(x, y int) core.Action {
	best := -1
	bestAction := UnitStay
	for ry := range g.resources {
		for rx, amount := range g.resources[ry] {
			if amount == 0 {
				continue
			}
			d := util.AbsInt(rx-x) + util.AbsInt(ry-y)
			if best != -1 && d >= best {
				continue
			}
			best = d
			switch {
			case rx > x:
				bestAction = MoveEast
			case rx < x:
				bestAction = MoveWest
			case ry > y:
				bestAction = MoveSouth
			case ry < y:
				bestAction = MoveNorth
			default:
				bestAction = UnitStay
			}
		}
	}
	return bestAction
}

// MapString renders the board: '*' resources, 'a'/'b' units, 'A'/'B' cities.
func (g *Game) MapString() string {
	grid := make([][]byte, g.config.Height)
	for y := range grid {
		grid[y] = make([]byte, g.config.Width)
		for x := range grid[y] {
			grid[y][x] = '.'
			if g.resources[y][x] > 0 {
				grid[y][x] = '*'
			}
		}
	}
	for _, c := range g.cities {
		grid[c.Y][c.X] = 'A' + byte(c.Team)
	}
	for _, u := range g.units {
		if grid[u.Y][u.X] == '.' || grid[u.Y][u.X] == '*' {
			grid[u.Y][u.X] = 'a' + byte(u.Team)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "turn %d/%d score %.1f:%.1f\n", g.turn, g.config.MaxTurns, g.Score(0), g.Score(1))
	for _, row := range grid {
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String()
}

// StartReplayLogging records every decision of the current episode until
// FinishReplay. Stateful logging also stores the board once per turn.
func (g *Game) StartReplayLogging(folder, prefix string, stateful bool) error {
	if err := util.EnsureDir(folder); err != nil {
		return err
	}
	g.replay = &replayLog{
		folder:    folder,
		prefix:    prefix,
		stateful:  stateful,
		rows:      make([]util.ReplayRow, 0),
		boardTurn: -1,
	}
	return nil
}

func (g *Game) record(dp core.DecisionPoint, a core.Action, x, y int) {
	if g.replay == nil {
		return
	}
	row := util.ReplayRow{
		Turn:      int32(g.turn),
		Team:      int32(dp.Team),
		ActorID:   dp.Actor.ID(),
		ActorKind: dp.Kind.String(),
		Action:    int32(a),
		X:         int32(x),
		Y:         int32(y),
		Score0:    float32(g.Score(0)),
		Score1:    float32(g.Score(1)),
	}
	if g.replay.stateful && g.replay.boardTurn != g.turn {
		row.Board = []byte(g.MapString())
		g.replay.boardTurn = g.turn
	}
	g.replay.rows = append(g.replay.rows, row)
}

// FinishReplay writes the pending replay and returns its path. It is a no-op
// when replay logging is not armed.
func (g *Game) FinishReplay() (string, error) {
	if g.replay == nil {
		return "", nil
	}
	r := g.replay
	g.replay = nil
	path := filepath.Join(r.folder, r.prefix+".parquet")
	if err := util.WriteReplayParquet(path, r.rows, g.seed); err != nil {
		return "", err
	}
	return path, nil
}
