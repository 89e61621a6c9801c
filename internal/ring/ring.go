// Package ring owns cluster membership and dispatches placement
// lookups to a configured strategy.Strategy. It is single-writer per
// spec: a sync.RWMutex gives readers concurrent access while mutations
// (AddNode, RemoveNode, state/weight changes, health/load intake) are
// serialized, mirroring ppriyankuu-godkv/internal/cluster/ring.go's
// locking discipline.
package ring

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

// StrategyKind identifies which built-in algorithm (or custom hook) a
// Ring is configured with. It is tracked alongside the live
// strategy.Strategy value so the snapshot format can record a 4-byte
// strategy type without the strategy package needing to expose one.
type StrategyKind uint32

const (
	StrategyKetama StrategyKind = iota
	StrategyJump
	StrategyRendezvous
	StrategyMaglev
	StrategyBounded
	StrategyCustom
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyKetama:
		return "ketama"
	case StrategyJump:
		return "jump"
	case StrategyRendezvous:
		return "rendezvous"
	case StrategyMaglev:
		return "maglev"
	case StrategyBounded:
		return "bounded"
	case StrategyCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Config configures a new Ring.
type Config struct {
	Name          string
	StrategyKind  StrategyKind
	Strategy      strategy.Strategy
	VnodeConfig   strategy.KetamaConfig // only meaningful for Ketama/Bounded
	Seed          uint64
	DefaultQuorum Quorum // zero value is replaced with BalancedQuorum()
}

// Ring is cluster membership plus a placement strategy. All exported
// methods are safe for concurrent use; mutations take the write lock,
// lookups and introspection take the read lock.
type Ring struct {
	mu sync.RWMutex

	name          string
	strategyKind  StrategyKind
	strategy      strategy.Strategy
	vnodeConfig   strategy.KetamaConfig
	seed          uint64
	defaultQuorum Quorum

	nodes []*Node
	index map[uint64]int

	healthyCount int
	version      uint64

	healthProvider    HealthProvider
	stateCallback     func(nodeID uint64, from, to topology.NodeState)
	rebalanceCallback func(plan *RebalancePlan)

	log zerolog.Logger
}

// New builds an empty Ring. A nil Strategy or an empty Name is an
// InvalidConfig error.
func New(cfg Config) (*Ring, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("%w: strategy is required", ErrInvalidConfig)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	quorum := cfg.DefaultQuorum
	if quorum == (Quorum{}) {
		quorum = BalancedQuorum()
	}
	return &Ring{
		name:          cfg.Name,
		strategyKind:  cfg.StrategyKind,
		strategy:      cfg.Strategy,
		vnodeConfig:   cfg.VnodeConfig,
		seed:          cfg.Seed,
		defaultQuorum: quorum,
		index:         make(map[uint64]int),
		log:           zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("ring", cfg.Name).Logger(),
	}, nil
}

// SetLogger overrides the ring's logger, e.g. to point at the
// engine's structured sink instead of the default console writer.
func (r *Ring) SetLogger(l zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = l
}

func (r *Ring) Name() string               { r.mu.RLock(); defer r.mu.RUnlock(); return r.name }
func (r *Ring) Seed() uint64               { r.mu.RLock(); defer r.mu.RUnlock(); return r.seed }
func (r *Ring) StrategyKind() StrategyKind { r.mu.RLock(); defer r.mu.RUnlock(); return r.strategyKind }
func (r *Ring) StrategyName() string       { r.mu.RLock(); defer r.mu.RUnlock(); return r.strategy.Name() }
func (r *Ring) VnodeConfig() strategy.KetamaConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vnodeConfig
}
func (r *Ring) DefaultQuorum() Quorum { r.mu.RLock(); defer r.mu.RUnlock(); return r.defaultQuorum }
func (r *Ring) Version() uint64       { r.mu.RLock(); defer r.mu.RUnlock(); return r.version }

// Stats is the point-in-time statistics block returned by get_stats.
type Stats struct {
	Name         string
	NodeCount    int
	HealthyCount int
	Version      uint64
	StrategyName string
}

func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Name:         r.name,
		NodeCount:    len(r.nodes),
		HealthyCount: r.healthyCount,
		Version:      r.version,
		StrategyName: r.strategy.Name(),
	}
}

// AddNode registers a new node. Duplicate identifiers are rejected.
// The initial state is Joining unless the caller explicitly requests
// Up; any other requested initial state is folded to Joining, per
// spec.md §4.9's "Initial state is Joining or Up per caller choice."
func (r *Ring) AddNode(cfg NodeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[cfg.ID]; exists {
		return fmt.Errorf("%w: node %d", ErrExists, cfg.ID)
	}

	weight := cfg.Weight
	if weight == 0 {
		weight = 100
	}
	initial := topology.Joining
	if cfg.InitialState == topology.Up {
		initial = topology.Up
	}

	n := &Node{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Address:        cfg.Address,
		Location:       cfg.Location,
		Weight:         weight,
		CapacityBytes:  cfg.CapacityBytes,
		State:          initial,
		StateChangedAt: time.Now(),
	}

	// Go's append already amortizes growth by doubling; there is no
	// distinct "alloc failure" path to roll back here the way a
	// manually-managed array would need (an OOM panics rather than
	// returning an error), so no partial-state rollback is needed.
	idx := len(r.nodes)
	r.nodes = append(r.nodes, n)
	r.index[cfg.ID] = idx

	if initial == topology.Up {
		r.healthyCount++
	}

	r.strategy.AddNode(strategy.NodeSnapshot{ID: n.ID, Weight: n.Weight})
	r.strategy.MarkDirty()
	r.version++
	r.log.Info().Uint64("node_id", cfg.ID).Uint64("ring_version", r.version).
		Str("state", initial.String()).Msg("node added")
	r.fireStateCallback(cfg.ID, topology.Down, initial)
	return nil
}

// RemoveNode evicts a node, compacting the dense array by moving the
// last entry into the freed slot.
func (r *Ring) RemoveNode(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}

	n := r.nodes[idx]
	prior := n.State

	last := len(r.nodes) - 1
	moved := r.nodes[last]
	r.nodes[idx] = moved
	r.nodes[last] = nil
	r.nodes = r.nodes[:last]
	delete(r.index, id)
	if moved.ID != id {
		r.index[moved.ID] = idx
	}

	if prior == topology.Up {
		r.healthyCount--
	}

	r.strategy.RemoveNode(id)
	r.strategy.MarkDirty()
	r.version++
	r.log.Info().Uint64("node_id", id).Uint64("ring_version", r.version).Msg("node removed")
	r.fireStateCallback(id, prior, topology.Down)
	return nil
}

// SetNodeState transitions a node's lifecycle state. A no-op if the
// node is already in newState.
func (r *Ring) SetNodeState(id uint64, newState topology.NodeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	n := r.nodes[idx]
	if n.State == newState {
		return nil
	}
	prior := n.State
	r.transitionLocked(n, newState)
	r.strategy.MarkDirty()
	r.version++
	r.log.Info().Uint64("node_id", id).Uint64("ring_version", r.version).
		Str("from", prior.String()).Str("to", newState.String()).Msg("node state transition")
	r.fireStateCallback(id, prior, newState)
	return nil
}

// SetNodeWeight updates a node's replication weight. Ketama/Bounded
// remove-and-reinsert vnodes at the new weight via strategy.SetWeight;
// other strategies ignore the call entirely.
func (r *Ring) SetNodeWeight(id uint64, weight uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	if weight == 0 {
		weight = 100
	}
	r.nodes[idx].Weight = weight
	r.strategy.SetWeight(id, weight)
	r.version++
	return nil
}

// transitionLocked applies a state change and keeps healthyCount in
// sync. Caller must hold the write lock.
func (r *Ring) transitionLocked(n *Node, newState topology.NodeState) {
	wasUp := n.State == topology.Up
	willBeUp := newState == topology.Up
	if wasUp && !willBeUp {
		r.healthyCount--
	} else if !wasUp && willBeUp {
		r.healthyCount++
	}
	n.State = newState
	n.StateChangedAt = time.Now()
}

// UpdateNodeHealth records a reachability check and drives the
// Up<->Suspect half of the state machine (spec.md §4.8): three
// consecutive unreachable reports while Up demotes to Suspect; any
// reachable report resets the failure counter, and one while Suspect
// also promotes back to Up. Other lifecycle transitions (Joining, Leaving,
// Maintenance, explicit operator Down/Up) are driven by SetNodeState,
// not by health reports.
func (r *Ring) UpdateNodeHealth(id uint64, report HealthReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	n := r.nodes[idx]
	report.CheckedAt = time.Now()
	n.Health = report

	if !report.Reachable {
		if n.State == topology.Up {
			n.ConsecutiveFailures++
			if n.ConsecutiveFailures >= 3 {
				prior := n.State
				r.transitionLocked(n, topology.Suspect)
				r.strategy.MarkDirty()
				r.version++
				r.fireStateCallback(id, prior, topology.Suspect)
			}
		}
		return nil
	}

	n.ConsecutiveFailures = 0
	if n.State == topology.Suspect {
		prior := n.State
		r.transitionLocked(n, topology.Up)
		r.strategy.MarkDirty()
		r.version++
		r.fireStateCallback(id, prior, topology.Up)
	}
	return nil
}

// UpdateNodeLoad records a capacity/usage sample. UsedBytes feeds back
// into the node's UsedBytes counter (consulted by Bounded and
// serialized in snapshots); CapacityBytes, if nonzero, overrides the
// node's configured capacity.
func (r *Ring) UpdateNodeLoad(id uint64, report LoadReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	report.CheckedAt = time.Now()
	n := r.nodes[idx]
	n.Load = report
	n.UsedBytes = report.UsedBytes
	if report.CapacityBytes > 0 {
		n.CapacityBytes = report.CapacityBytes
	}
	return nil
}

// RestoreNodeUsage sets a node's UsedBytes (and CapacityBytes, if
// nonzero) by direct field write, without touching Load.CheckedAt.
// It exists for snapshot restore: UpdateNodeLoad stamps CheckedAt as a
// live-load-report signal that Bounded's averageMaxLoad() uses to
// decide whether load tracking is active, so routing a restored
// counter through UpdateNodeLoad would wrongly mark every node as
// having a live report even when only some of them did before the
// ring was serialized.
func (r *Ring) RestoreNodeUsage(id uint64, usedBytes, capacityBytes uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	n := r.nodes[idx]
	n.UsedBytes = usedBytes
	if capacityBytes > 0 {
		n.CapacityBytes = capacityBytes
	}
	return nil
}

// NodeByID returns a read-only copy of a node, if present.
func (r *Ring) NodeByID(id uint64) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[id]
	if !ok {
		return Node{}, false
	}
	return r.nodes[idx].snapshot(), true
}

// IterateNodes walks every node in dense-array order, stopping early
// if cb returns false.
func (r *Ring) IterateNodes(cb func(Node) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if !cb(n.snapshot()) {
			return
		}
	}
}

// IterateNodesByState walks only nodes currently in state.
func (r *Ring) IterateNodesByState(state topology.NodeState, cb func(Node) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.State != state {
			continue
		}
		if !cb(n.snapshot()) {
			return
		}
	}
}

// IterateNodesByLocation walks only nodes whose Location field at
// level equals value.
func (r *Ring) IterateNodesByLocation(level topology.SpreadLevel, value uint32, cb func(Node) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Location.ValueAt(level) != value {
			continue
		}
		if !cb(n.snapshot()) {
			return
		}
	}
}

// Locate is the dispatch primitive used by internal/placement: it
// takes the read lock for the duration of the strategy call so the
// ring is observed atomically, then hands the strategy a view of
// current membership via nodeSourceView.
func (r *Ring) Locate(keyBytes []byte, maxNodes int) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nodes) == 0 || maxNodes <= 0 {
		return nil
	}
	return r.strategy.Locate(nodeSourceView{r}, keyBytes, maxNodes)
}

// HealthProvider is the external collaborator consumed by
// select_read_node's load-aware routing. The ring never calls it from
// within Locate; a caller application is expected to pump reports in
// via UpdateNodeHealth/UpdateNodeLoad on its own schedule.
type HealthProvider interface {
	CheckHealth(nodeID uint64) HealthReport
	GetLoad(nodeID uint64) LoadReport
}

func (r *Ring) SetHealthProvider(p HealthProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthProvider = p
}

func (r *Ring) HealthProvider() HealthProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthProvider
}

// SetNodeStateCallback installs cb, fired synchronously from
// AddNode/RemoveNode/SetNodeState/UpdateNodeHealth after the
// transition has been applied. cb must not mutate the ring.
func (r *Ring) SetNodeStateCallback(cb func(nodeID uint64, from, to topology.NodeState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateCallback = cb
}

func (r *Ring) SetRebalanceCallback(cb func(plan *RebalancePlan)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebalanceCallback = cb
}

func (r *Ring) fireStateCallback(id uint64, from, to topology.NodeState) {
	if r.stateCallback != nil {
		r.stateCallback(id, from, to)
	}
}

func (r *Ring) fireRebalanceCallback(plan *RebalancePlan) {
	if r.rebalanceCallback != nil {
		r.rebalanceCallback(plan)
	}
}

// nodeSourceView adapts a Ring, already held under a read lock by the
// caller, to strategy.NodeSource without taking the lock itself
// (doing so would deadlock against the held RLock — sync.RWMutex is
// not reentrant).
type nodeSourceView struct{ r *Ring }

func (v nodeSourceView) Nodes() []strategy.NodeSnapshot {
	out := make([]strategy.NodeSnapshot, len(v.r.nodes))
	for i, n := range v.r.nodes {
		out[i] = strategy.NodeSnapshot{ID: n.ID, Weight: n.Weight}
	}
	return out
}

func (v nodeSourceView) StateOf(id uint64) (topology.NodeState, bool) {
	idx, ok := v.r.index[id]
	if !ok {
		return 0, false
	}
	return v.r.nodes[idx].State, true
}

func (v nodeSourceView) LoadOf(id uint64) (usedBytes, capacityBytes uint64, ok bool) {
	idx, found := v.r.index[id]
	if !found {
		return 0, 0, false
	}
	n := v.r.nodes[idx]
	if n.Load.CheckedAt.IsZero() {
		return 0, 0, false
	}
	return n.UsedBytes, n.CapacityBytes, true
}

func (v nodeSourceView) NodeCount() int { return len(v.r.nodes) }

func (v nodeSourceView) IndexOf(id uint64) (int, bool) {
	idx, ok := v.r.index[id]
	return idx, ok
}
