package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementcore/internal/keyspace"
	"placementcore/internal/ring"
	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

func newTestRing(t *testing.T, ids []uint64) *ring.Ring {
	t.Helper()
	r, err := ring.New(ring.Config{
		Name:         "test",
		StrategyKind: ring.StrategyKetama,
		Strategy:     strategy.NewKetama(strategy.DefaultKetamaConfig(1)),
		Seed:         1,
	})
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, r.AddNode(ring.NodeConfig{ID: id, Weight: 100, InitialState: topology.Up}))
	}
	return r
}

func TestLocateEmptyKeyRejected(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3})
	_, err := Locate(r, []byte(""), nil)
	assert.ErrorIs(t, err, ring.ErrGeneric)
}

func TestLocateNoDuplicatesAndHealthyCount(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3, 4, 5})
	p, err := Locate(r, []byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, p.HealthyCount, len(p.Replicas))
	seen := map[uint64]bool{}
	for _, id := range p.Replicas {
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestPlanWriteQuorumFailedStillPopulatesSet(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3})
	q := ring.StrongQuorum() // requires all 3 replicas healthy
	require.NoError(t, r.SetNodeState(2, topology.Down))

	ws, err := PlanWrite(r, []byte("k"), &q)
	assert.ErrorIs(t, err, ring.ErrQuorumFailed)
	require.NotNil(t, ws)
	assert.NotEmpty(t, ws.Targets)
}

func TestPlanWriteSuccess(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3})
	q := ring.BalancedQuorum()
	ws, err := PlanWrite(r, []byte("k"), &q)
	require.NoError(t, err)
	assert.Equal(t, 100+ws.SyncRequired*50, ws.TimeoutMS)
	assert.Equal(t, len(ws.Targets), ws.SyncRequired+ws.AsyncAllowed)
}

func TestPlanReadQuorumFailed(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3})
	q := ring.StrongQuorum()
	require.NoError(t, r.SetNodeState(1, topology.Down))
	require.NoError(t, r.SetNodeState(2, topology.Down))

	_, err := PlanRead(r, []byte("k"), &q)
	assert.ErrorIs(t, err, ring.ErrQuorumFailed)
}

func TestSelectReadNodePicksFirstUpWithoutProvider(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3, 4, 5})
	p, err := Locate(r, []byte("k"), nil)
	require.NoError(t, err)

	primary := p.Replicas[0]
	require.NoError(t, r.SetNodeState(primary, topology.Down))
	p2, err := Locate(r, []byte("k"), nil)
	require.NoError(t, err)

	chosen, err := SelectReadNode(r, p2)
	require.NoError(t, err)
	assert.Equal(t, p2.Replicas[0], chosen)
}

func TestSelectReadNodeNilPlacement(t *testing.T) {
	r := newTestRing(t, []uint64{1})
	_, err := SelectReadNode(r, nil)
	assert.ErrorIs(t, err, ring.ErrNoNodes)
}

func TestLocateBulkSmallAndLargeBatches(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3, 4, 5})

	small := [][]byte{[]byte("a"), []byte("b")}
	results, err := LocateBulk(r, small, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotNil(t, results[0])

	large := make([][]byte, 10)
	for i := range large {
		large[i] = []byte{byte(i)}
	}
	results2, err := LocateBulk(r, large, nil)
	require.NoError(t, err)
	for _, p := range results2 {
		require.NotNil(t, p)
		assert.NotZero(t, p.KeyHash)
	}
}

func TestLocateInKeyspaceAttachesBorrow(t *testing.T) {
	r := newTestRing(t, []uint64{1, 2, 3})
	ks := &keyspace.Keyspace{Name: "sessions", Quorum: ring.BalancedQuorum()}
	p, err := LocateInKeyspace(r, []byte("k"), ks)
	require.NoError(t, err)
	assert.Same(t, ks, p.Keyspace)
}
