package match

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeu5/lux-rl-env/core"
	"github.com/zeu5/lux-rl-env/util"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 6
	cfg.Height = 4
	cfg.MaxTurns = 5
	cfg.Seed = 3
	return cfg
}

func unitPoint(u *Unit) core.DecisionPoint {
	return core.DecisionPoint{Actor: u, Kind: core.UnitActor, Team: u.Team}
}

func cityPoint(c *City) core.DecisionPoint {
	return core.DecisionPoint{Actor: c, Kind: core.CityActor, Team: c.Team}
}

func TestNewGameIsDeterministic(t *testing.T) {
	a := NewGame(smallConfig())
	b := NewGame(smallConfig())
	require.Equal(t, a.MapString(), b.MapString())

	for _, team := range []core.Team{0, 1} {
		require.Len(t, a.Units(team), 2)
		require.Len(t, a.Cities(team), 1)
		require.Equal(t, 12.0, a.Score(team))
	}
	_, ok := a.Winner()
	require.False(t, ok)

	a.SetSeed(4)
	a.Reset()
	require.Equal(t, int64(4), a.Seed())
	require.Equal(t, 0, a.Turn())
}

func TestUnseededGameDrawsSeedPerReset(t *testing.T) {
	cfg := smallConfig()
	cfg.Seed = 0
	g := NewGame(cfg)

	seeds := map[int64]bool{g.Seed(): true}
	for i := 0; i < 5; i++ {
		g.Reset()
		seeds[g.Seed()] = true
	}
	require.Len(t, seeds, 6)

	// An explicit zero seed is pinned like any other.
	g.SetSeed(0)
	g.Reset()
	board := g.MapString()
	g.Reset()
	require.Equal(t, int64(0), g.Seed())
	require.Equal(t, board, g.MapString())
}

func TestLegalActions(t *testing.T) {
	g := NewGame(smallConfig())
	u := g.Units(0)[0]
	actions := g.LegalActions(unitPoint(u))
	require.Contains(t, actions, UnitStay)
	require.NotContains(t, actions, BuildCity)

	u.Cargo = g.Config().CityCost
	u.X, u.Y = 2, 0
	require.Contains(t, g.LegalActions(unitPoint(u)), BuildCity)
	require.NotContains(t, g.LegalActions(unitPoint(u)), MoveNorth)

	c := g.Cities(1)[0]
	require.Equal(t, []core.Action{CityIdle}, g.LegalActions(cityPoint(c)))
	c.Fuel = g.Config().UnitCost
	require.Equal(t, []core.Action{CityIdle, SpawnUnit}, g.LegalActions(cityPoint(c)))
}

func TestApply(t *testing.T) {
	g := NewGame(smallConfig())
	c := g.Cities(0)[0]

	// Spawning without fuel is held back as a fault.
	require.NoError(t, g.Apply(cityPoint(c), SpawnUnit))
	require.Error(t, g.TakeFault())
	require.NoError(t, g.TakeFault())

	c.Fuel = g.Config().UnitCost
	require.NoError(t, g.Apply(cityPoint(c), SpawnUnit))
	require.NoError(t, g.TakeFault())
	require.Len(t, g.Units(0), 3)
	require.Equal(t, 0, c.Fuel)

	u := g.Units(0)[0]
	u.Cargo = g.Config().CityCost
	u.X, u.Y = 2, 0
	require.NoError(t, g.Apply(unitPoint(u), BuildCity))
	require.Len(t, g.Cities(0), 2)
	require.Equal(t, 0, u.Cargo)

	stranger := &Unit{id: "ghost", Team: 0}
	require.Error(t, g.Apply(unitPoint(stranger), UnitStay))

	wrongTeam := unitPoint(g.Units(1)[0])
	wrongTeam.Team = 0
	require.Error(t, g.Apply(wrongTeam, UnitStay))
}

func TestEndTurnAndDone(t *testing.T) {
	g := NewGame(smallConfig())
	c := g.Cities(0)[0]
	for i := 0; i < g.Config().MaxTurns; i++ {
		require.False(t, g.Done())
		g.EndTurn()
	}
	require.True(t, g.Done())
	require.Equal(t, g.Config().MaxTurns, c.Fuel)
	require.Equal(t, g.Config().MaxTurns, g.Turn())
}

func TestReplayLogging(t *testing.T) {
	dir := t.TempDir()
	g := NewGame(smallConfig())

	path, err := g.FinishReplay()
	require.NoError(t, err)
	require.Empty(t, path)

	require.NoError(t, g.StartReplayLogging(dir, "episode", true))
	u := g.Units(0)[0]
	require.NoError(t, g.Apply(unitPoint(u), UnitStay))
	require.NoError(t, g.Apply(cityPoint(g.Cities(1)[0]), CityIdle))
	g.EndTurn()
	require.NoError(t, g.Apply(unitPoint(u), UnitStay))

	path, err = g.FinishReplay()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "episode.parquet"), path)

	rows, err := util.ReadReplayParquet(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.NotEmpty(t, rows[0].Board)
	require.Empty(t, rows[1].Board)
	require.NotEmpty(t, rows[2].Board)
	require.Equal(t, "city", rows[1].ActorKind)
	require.Equal(t, int32(1), rows[2].Turn)

	// Reset drops a pending replay.
	require.NoError(t, g.StartReplayLogging(dir, "dropped", false))
	g.Reset()
	path, err = g.FinishReplay()
	require.NoError(t, err)
	require.Empty(t, path)
}
