// Package placement implements the read/write placement pipeline
// (spec.md §4.4) as free functions over a *ring.Ring, rather than
// methods on Ring itself: this keeps internal/ring free of any
// dependency on internal/keyspace, which placement in turn depends on
// for the optional keyspace borrow a Placement can carry.
package placement

import (
	"fmt"
	"math"

	"placementcore/internal/keyspace"
	"placementcore/internal/ring"
	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

// Placement is the value produced by a single locate call: the
// computed key hash, the primary replica, the full ordered replica
// list (primary first, no duplicates), how many of those replicas are
// currently Up, and — when the lookup was scoped to a keyspace — a
// borrow of the Keyspace that governed it.
type Placement struct {
	KeyHash      uint64
	Primary      uint64
	Replicas     []uint64
	HealthyCount int
	Keyspace     *keyspace.Keyspace
}

// WriteSet is plan_write's output: ordered targets, how many must ack
// synchronously vs. may complete asynchronously, and a suggested
// client-side timeout.
type WriteSet struct {
	Targets      []uint64
	SyncRequired int
	AsyncAllowed int
	TimeoutMS    int
}

// ReadSet is plan_read's output: candidates in preference order, how
// many responses are required, and whether read-repair should run.
type ReadSet struct {
	Candidates        []uint64
	RequiredResponses int
	ReadRepair        bool
}

// resolveQuorum returns q if non-nil, else the ring's configured
// default.
func resolveQuorum(r *ring.Ring, q *ring.Quorum) ring.Quorum {
	if q != nil {
		return *q
	}
	return r.DefaultQuorum()
}

// Locate computes a Placement for keyBytes against r's default (or
// overridden) quorum. An empty key is rejected with ErrGeneric,
// matching spec.md's concrete scenario 3.
func Locate(r *ring.Ring, keyBytes []byte, q *ring.Quorum) (*Placement, error) {
	if len(keyBytes) == 0 {
		return nil, fmt.Errorf("%w: key must not be empty", ring.ErrGeneric)
	}
	quorum := resolveQuorum(r, q)
	replicaCount := quorum.ReplicaCount
	if replicaCount <= 0 {
		replicaCount = 1
	}

	ids := r.Locate(keyBytes, replicaCount)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w", ring.ErrNoNodes)
	}

	healthy := 0
	for _, id := range ids {
		if n, ok := r.NodeByID(id); ok && n.State == topology.Up {
			healthy++
		}
	}

	return &Placement{
		KeyHash:      strategy.H64(keyBytes, r.Seed()),
		Primary:      ids[0],
		Replicas:     ids,
		HealthyCount: healthy,
	}, nil
}

// LocateInKeyspace behaves like Locate but uses ks's Quorum and
// attaches ks to the returned Placement. The replica selection itself
// still goes through the ring's own configured strategy (spec.md
// §4.6): applying ks.StrategyOverride, if set, is left to the caller.
func LocateInKeyspace(r *ring.Ring, keyBytes []byte, ks *keyspace.Keyspace) (*Placement, error) {
	quorum := ks.Quorum
	p, err := Locate(r, keyBytes, &quorum)
	if p != nil {
		p.Keyspace = ks
	}
	return p, err
}

// PlanWrite locates keyBytes and derives a WriteSet. The set is
// populated even when the healthy count falls short of the write
// quorum (ErrQuorumFailed is still returned so the caller can observe
// what was attempted) — an intentional behavior per spec.md's Open
// Question, recorded in DESIGN.md.
func PlanWrite(r *ring.Ring, keyBytes []byte, q *ring.Quorum) (*WriteSet, error) {
	quorum := resolveQuorum(r, q)
	p, err := Locate(r, keyBytes, &quorum)
	if err != nil {
		return nil, err
	}

	targetCount := len(p.Replicas)
	syncRequired := quorum.WriteSync
	if syncRequired > targetCount {
		syncRequired = targetCount
	}
	ws := &WriteSet{
		Targets:      p.Replicas,
		SyncRequired: syncRequired,
		AsyncAllowed: targetCount - syncRequired,
		TimeoutMS:    100 + syncRequired*50,
	}

	if p.HealthyCount < quorum.WriteQuorum {
		return ws, fmt.Errorf("%w", ring.ErrQuorumFailed)
	}
	return ws, nil
}

// PlanRead locates keyBytes and derives a ReadSet, mirroring PlanWrite.
func PlanRead(r *ring.Ring, keyBytes []byte, q *ring.Quorum) (*ReadSet, error) {
	quorum := resolveQuorum(r, q)
	p, err := Locate(r, keyBytes, &quorum)
	if err != nil {
		return nil, err
	}

	required := quorum.ReadQuorum
	if required > len(p.Replicas) {
		required = len(p.Replicas)
	}
	rs := &ReadSet{
		Candidates:        p.Replicas,
		RequiredResponses: required,
		ReadRepair:        quorum.ReadRepair,
	}

	if p.HealthyCount < quorum.ReadQuorum {
		return rs, fmt.Errorf("%w", ring.ErrQuorumFailed)
	}
	return rs, nil
}

// SelectReadNode picks which replica in p a caller should read from.
// When r has a health provider attached, it picks the Up replica with
// the lowest cached CPU-usage load (as recorded by the most recent
// UpdateNodeLoad, not a fresh provider call — the provider only gates
// whether load-aware routing is active). Otherwise it returns the
// first Up replica in placement order.
func SelectReadNode(r *ring.Ring, p *Placement) (uint64, error) {
	if p == nil || len(p.Replicas) == 0 {
		return 0, fmt.Errorf("%w", ring.ErrNoNodes)
	}

	if r.HealthProvider() != nil {
		best := uint64(0)
		bestLoad := math.MaxFloat64
		found := false
		for _, id := range p.Replicas {
			n, ok := r.NodeByID(id)
			if !ok || n.State != topology.Up {
				continue
			}
			if !found || n.Load.CPUUsage < bestLoad {
				best, bestLoad, found = id, n.Load.CPUUsage, true
			}
		}
		if found {
			return best, nil
		}
	}

	for _, id := range p.Replicas {
		if n, ok := r.NodeByID(id); ok && n.State == topology.Up {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w", ring.ErrNoNodes)
}

// locateBulkSmallBatch is the threshold below which LocateBulk just
// loops, per spec.md §4.4.
const locateBulkSmallBatch = 4

// LocateBulk processes keys via the simple loop for small batches; for
// larger ones it precomputes every key's hash upfront (better
// locality) before running placement decisions, then patches each
// resulting Placement's KeyHash from the precomputed value. It keeps
// going after an individual key's failure, returning every successful
// Placement (nil at the failed indices) plus the last error seen.
func LocateBulk(r *ring.Ring, keys [][]byte, q *ring.Quorum) ([]*Placement, error) {
	results := make([]*Placement, len(keys))
	var lastErr error

	if len(keys) <= locateBulkSmallBatch {
		for i, k := range keys {
			p, err := Locate(r, k, q)
			if err != nil {
				lastErr = err
				continue
			}
			results[i] = p
		}
		return results, lastErr
	}

	seed := r.Seed()
	hashes := make([]uint64, len(keys))
	for i, k := range keys {
		hashes[i] = strategy.H64(k, seed)
	}
	for i, k := range keys {
		p, err := Locate(r, k, q)
		if err != nil {
			lastErr = err
			continue
		}
		p.KeyHash = hashes[i]
		results[i] = p
	}
	return results, lastErr
}
