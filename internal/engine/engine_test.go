package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementcore/internal/affinity"
	"placementcore/internal/keyspace"
	"placementcore/internal/ring"
	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

func newTestEngine(t *testing.T, ids []uint64) *Engine {
	t.Helper()
	e, err := New(Config{
		Name:         "test-ring",
		StrategyKind: ring.StrategyKetama,
		Strategy:     strategy.NewKetama(strategy.DefaultKetamaConfig(7)),
		Seed:         7,
	})
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, e.AddNode(ring.NodeConfig{
			ID: id, Weight: 100, InitialState: topology.Up,
			Location: topology.Location{Rack: uint32(id)},
		}))
	}
	return e
}

func TestNewGeneratesInstanceIDWhenEmpty(t *testing.T) {
	e, err := New(Config{
		Name:         "r",
		StrategyKind: ring.StrategyJump,
		Strategy:     strategy.NewJump(1),
		Seed:         1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.InstanceID())
}

func TestNewHonorsExplicitInstanceID(t *testing.T) {
	e, err := New(Config{
		Name:         "r",
		StrategyKind: ring.StrategyJump,
		Strategy:     strategy.NewJump(1),
		Seed:         1,
		InstanceID:   "fixed-id",
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", e.InstanceID())
}

func TestAddRemoveNodeDelegates(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	assert.Equal(t, 3, e.GetStats().NodeCount)
	require.NoError(t, e.RemoveNode(2))
	assert.Equal(t, 2, e.GetStats().NodeCount)
}

func TestLocateAndPlanWrite(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3, 4, 5})
	p, err := e.Locate([]byte("hello"), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Replicas)

	ws, err := e.PlanWrite([]byte("hello"), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ws.Targets)
}

func TestLocateInKeyspaceUnknownName(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	_, err := e.LocateInKeyspace([]byte("k"), "missing")
	assert.ErrorIs(t, err, ring.ErrNotFound)
}

func TestLocateInKeyspaceKnownName(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	require.NoError(t, e.AddKeyspace(keyspace.Keyspace{
		Name:   "sessions",
		Quorum: ring.BalancedQuorum(),
	}))
	p, err := e.LocateInKeyspace([]byte("k"), "sessions")
	require.NoError(t, err)
	require.NotNil(t, p.Keyspace)
	assert.Equal(t, "sessions", p.Keyspace.Name)
}

func TestCheckAffinitySkipsUnknownNodes(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	report := e.CheckAffinity([]uint64{1, 2, 999}, []affinity.Rule{affinity.RackSpread(2)})
	assert.True(t, report.Ok)
}

func TestSerializeDeserializeRoundTripThroughEngine(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	require.NoError(t, e.AddKeyspace(keyspace.Keyspace{Name: "ks", Quorum: ring.EventualQuorum()}))

	data := e.Serialize()
	require.NotEmpty(t, data)

	e2, err := Deserialize(data, "")
	require.NoError(t, err)
	assert.Equal(t, e.GetStats().NodeCount, e2.GetStats().NodeCount)

	_, ok := e2.GetKeyspace("ks")
	assert.True(t, ok)
}

func TestSerializeDeltaAndApplyDelta(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	before := e.GetVersion()
	require.NoError(t, e.AddNode(ring.NodeConfig{ID: 4, Weight: 100, InitialState: topology.Up}))

	delta := e.SerializeDelta(before)
	assert.NotEmpty(t, delta)

	err := e.ApplyDelta(delta)
	assert.ErrorIs(t, err, ring.ErrGeneric)
}

func TestPlanRebalanceStampsUUID(t *testing.T) {
	e := newTestEngine(t, []uint64{1, 2, 3})
	plan := e.PlanRebalance([]uint64{1, 2, 3}, []uint64{1, 3, 4})
	assert.NotEmpty(t, plan.ID)
}

func TestSetNodeStateCallbackFires(t *testing.T) {
	e := newTestEngine(t, []uint64{1})
	var gotFrom, gotTo topology.NodeState
	called := false
	e.SetNodeStateCallback(func(id uint64, from, to topology.NodeState) {
		called = true
		gotFrom, gotTo = from, to
	})
	require.NoError(t, e.SetNodeState(1, topology.Maintenance))
	assert.True(t, called)
	assert.Equal(t, topology.Up, gotFrom)
	assert.Equal(t, topology.Maintenance, gotTo)
}

type fakeHealthProvider struct{}

func (fakeHealthProvider) CheckHealth(nodeID uint64) ring.HealthReport { return ring.HealthReport{} }
func (fakeHealthProvider) GetLoad(nodeID uint64) ring.LoadReport       { return ring.LoadReport{} }

func TestSetHealthProviderStored(t *testing.T) {
	e := newTestEngine(t, []uint64{1})
	e.SetHealthProvider(fakeHealthProvider{})
	assert.NotNil(t, e.Ring().HealthProvider())
}
