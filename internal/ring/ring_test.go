package ring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

func newTestRing(t *testing.T) *Ring {
	t.Helper()
	r, err := New(Config{
		Name:         "test-ring",
		StrategyKind: StrategyKetama,
		Strategy:     strategy.NewKetama(strategy.DefaultKetamaConfig(1)),
		Seed:         1,
	})
	require.NoError(t, err)
	return r
}

func addUpNodes(t *testing.T, r *Ring, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, r.AddNode(NodeConfig{ID: id, Name: "n", Weight: 100, InitialState: topology.Up}))
	}
}

func TestNewRejectsMissingStrategy(t *testing.T) {
	_, err := New(Config{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddNodeRejectsDuplicate(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1)
	err := r.AddNode(NodeConfig{ID: 1})
	assert.ErrorIs(t, err, ErrExists)
}

func TestAddRemoveRoundTrip(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1, 2, 3)
	v0 := r.Version()
	stats0 := r.Stats()

	require.NoError(t, r.AddNode(NodeConfig{ID: 4, Weight: 100, InitialState: topology.Up}))
	require.NoError(t, r.RemoveNode(4))

	stats1 := r.Stats()
	assert.Equal(t, stats0.NodeCount, stats1.NodeCount)
	assert.Equal(t, stats0.HealthyCount, stats1.HealthyCount)
	assert.GreaterOrEqual(t, r.Version(), v0+2)
}

func TestRemoveNodeNotFound(t *testing.T) {
	r := newTestRing(t)
	err := r.RemoveNode(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHealthyCountInvariant(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1, 2, 3)
	require.NoError(t, r.AddNode(NodeConfig{ID: 4, Weight: 100, InitialState: topology.Joining}))

	healthy := 0
	r.IterateNodes(func(n Node) bool {
		if n.State == topology.Up {
			healthy++
		}
		return true
	})
	assert.Equal(t, healthy, r.Stats().HealthyCount)
	assert.Equal(t, 3, healthy)
}

func TestSetNodeStateNoOpWhenUnchanged(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1)
	v0 := r.Version()
	require.NoError(t, r.SetNodeState(1, topology.Up))
	assert.Equal(t, v0, r.Version())
}

func TestUpdateNodeHealthDemotesAfterThreeFailures(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1)

	for i := 0; i < 2; i++ {
		require.NoError(t, r.UpdateNodeHealth(1, HealthReport{Reachable: false}))
		n, _ := r.NodeByID(1)
		assert.Equal(t, topology.Up, n.State)
	}
	require.NoError(t, r.UpdateNodeHealth(1, HealthReport{Reachable: false}))
	n, _ := r.NodeByID(1)
	assert.Equal(t, topology.Suspect, n.State)
	assert.Equal(t, 0, r.Stats().HealthyCount)
}

func TestUpdateNodeHealthRecoversFromSuspect(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.UpdateNodeHealth(1, HealthReport{Reachable: false}))
	}
	n, _ := r.NodeByID(1)
	require.Equal(t, topology.Suspect, n.State)

	require.NoError(t, r.UpdateNodeHealth(1, HealthReport{Reachable: true}))
	n, _ = r.NodeByID(1)
	assert.Equal(t, topology.Up, n.State)
	assert.Equal(t, 0, n.ConsecutiveFailures)
	assert.Equal(t, 1, r.Stats().HealthyCount)
}

func TestUpdateNodeLoadSyncsUsedBytes(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1)
	require.NoError(t, r.UpdateNodeLoad(1, LoadReport{UsedBytes: 500, CapacityBytes: 1000}))
	n, _ := r.NodeByID(1)
	assert.EqualValues(t, 500, n.UsedBytes)
	assert.EqualValues(t, 1000, n.CapacityBytes)
}

func TestLocateDeterministicAndDistinct(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1, 2, 3, 4, 5)

	got := r.Locate([]byte("test-key"), 3)
	require.Len(t, got, 3)
	seen := map[uint64]bool{}
	for _, id := range got {
		assert.False(t, seen[id])
		seen[id] = true
	}

	again := r.Locate([]byte("test-key"), 3)
	assert.Equal(t, got, again)
}

func TestLocateFailoverOnNodeDown(t *testing.T) {
	r := newTestRing(t)
	addUpNodes(t, r, 1, 2, 3, 4, 5)

	got := r.Locate([]byte("failover-key"), 1)
	require.Len(t, got, 1)
	primary := got[0]

	require.NoError(t, r.SetNodeState(primary, topology.Down))
	got2 := r.Locate([]byte("failover-key"), 1)
	require.Len(t, got2, 1)
	assert.NotEqual(t, primary, got2[0])

	require.NoError(t, r.SetNodeState(primary, topology.Up))
	got3 := r.Locate([]byte("failover-key"), 1)
	assert.Equal(t, primary, got3[0])
}

func TestLocateNoNodesReturnsEmpty(t *testing.T) {
	r := newTestRing(t)
	got := r.Locate([]byte("anything"), 3)
	assert.Empty(t, got)
}

func TestIterateNodesByLocation(t *testing.T) {
	r := newTestRing(t)
	require.NoError(t, r.AddNode(NodeConfig{ID: 1, Weight: 100, InitialState: topology.Up, Location: topology.Location{Rack: 7}}))
	require.NoError(t, r.AddNode(NodeConfig{ID: 2, Weight: 100, InitialState: topology.Up, Location: topology.Location{Rack: 8}}))

	var matched []uint64
	r.IterateNodesByLocation(topology.LevelRack, 7, func(n Node) bool {
		matched = append(matched, n.ID)
		return true
	})
	assert.Equal(t, []uint64{1}, matched)
}

func TestPlanRebalancePairsDeparturesWithArrivals(t *testing.T) {
	r := newTestRing(t)
	plan := r.PlanRebalance([]uint64{1, 2, 3}, []uint64{1, 2, 4})
	require.Len(t, plan.Moves, 1)
	assert.EqualValues(t, 3, plan.Moves[0].Source)
	assert.EqualValues(t, 4, plan.Moves[0].Destination)
	assert.Equal(t, MovePending, plan.Moves[0].State)
}

func TestMoveAdvanceRejectsInvalidTransition(t *testing.T) {
	m := &Move{State: MovePending}
	err := m.Advance(MoveCompleted)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestMoveAdvanceHappyPath(t *testing.T) {
	m := &Move{State: MovePending}
	require.NoError(t, m.Advance(MoveInProgress))
	require.NoError(t, m.Advance(MoveCompleted))
	assert.Equal(t, MoveCompleted, m.State)
}
