// Package engine is the public facade: it composes a *ring.Ring with
// a *keyspace.Registry and exposes spec.md §6's full external
// interface as one coherent API, the way
// ppriyankuu-godkv/internal/cluster/node.go composes a hash ring, a
// store, and a replicator behind one Node type.
package engine

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"placementcore/internal/affinity"
	"placementcore/internal/keyspace"
	"placementcore/internal/placement"
	"placementcore/internal/ring"
	"placementcore/internal/snapshot"
	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

// Config configures a new Engine. InstanceID, if empty, is generated
// with google/uuid and stamped into logs. Rebalance plan IDs are
// separate, freshly generated UUIDs.
type Config struct {
	Name          string
	StrategyKind  ring.StrategyKind
	Strategy      strategy.Strategy
	VnodeConfig   strategy.KetamaConfig
	Seed          uint64
	DefaultQuorum ring.Quorum
	InstanceID    string
}

// Engine is the top-level handle an application holds: one ring, one
// keyspace registry, one instance identity.
type Engine struct {
	ring       *ring.Ring
	keyspaces  *keyspace.Registry
	instanceID string
	log        zerolog.Logger
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	r, err := ring.New(ring.Config{
		Name:          cfg.Name,
		StrategyKind:  cfg.StrategyKind,
		Strategy:      cfg.Strategy,
		VnodeConfig:   cfg.VnodeConfig,
		Seed:          cfg.Seed,
		DefaultQuorum: cfg.DefaultQuorum,
	})
	if err != nil {
		return nil, err
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("instance_id", instanceID).Str("ring", cfg.Name).Logger()
	r.SetLogger(log)

	return &Engine{
		ring:       r,
		keyspaces:  keyspace.NewRegistry(),
		instanceID: instanceID,
		log:        log,
	}, nil
}

// InstanceID returns this engine's stable identity.
func (e *Engine) InstanceID() string { return e.instanceID }

// Ring exposes the underlying ring for callers that need direct
// access (e.g. cmd/demo reading the default quorum).
func (e *Engine) Ring() *ring.Ring { return e.ring }

// --- membership ---

func (e *Engine) AddNode(cfg ring.NodeConfig) error      { return e.ring.AddNode(cfg) }
func (e *Engine) RemoveNode(id uint64) error             { return e.ring.RemoveNode(id) }
func (e *Engine) SetNodeState(id uint64, s topology.NodeState) error {
	return e.ring.SetNodeState(id, s)
}
func (e *Engine) SetNodeWeight(id uint64, w uint32) error { return e.ring.SetNodeWeight(id, w) }

// --- health / load intake ---

func (e *Engine) UpdateNodeHealth(id uint64, report ring.HealthReport) error {
	return e.ring.UpdateNodeHealth(id, report)
}
func (e *Engine) UpdateNodeLoad(id uint64, report ring.LoadReport) error {
	return e.ring.UpdateNodeLoad(id, report)
}

// --- placement pipeline ---

func (e *Engine) Locate(keyBytes []byte, q *ring.Quorum) (*placement.Placement, error) {
	return placement.Locate(e.ring, keyBytes, q)
}

// LocateInKeyspace scopes a lookup to a registered keyspace, using its
// quorum and attaching it to the returned Placement.
func (e *Engine) LocateInKeyspace(keyBytes []byte, keyspaceName string) (*placement.Placement, error) {
	ks, ok := e.keyspaces.Get(keyspaceName)
	if !ok {
		return nil, fmt.Errorf("%w: keyspace %q", ring.ErrNotFound, keyspaceName)
	}
	return placement.LocateInKeyspace(e.ring, keyBytes, ks)
}

func (e *Engine) PlanWrite(keyBytes []byte, q *ring.Quorum) (*placement.WriteSet, error) {
	return placement.PlanWrite(e.ring, keyBytes, q)
}

func (e *Engine) PlanRead(keyBytes []byte, q *ring.Quorum) (*placement.ReadSet, error) {
	return placement.PlanRead(e.ring, keyBytes, q)
}

func (e *Engine) SelectReadNode(p *placement.Placement) (uint64, error) {
	return placement.SelectReadNode(e.ring, p)
}

func (e *Engine) LocateBulk(keys [][]byte, q *ring.Quorum) ([]*placement.Placement, error) {
	return placement.LocateBulk(e.ring, keys, q)
}

// --- affinity ---

// CheckAffinity resolves nodeIDs to their current locations and
// evaluates rules against them. Unknown node IDs are skipped.
func (e *Engine) CheckAffinity(nodeIDs []uint64, rules []affinity.Rule) affinity.Report {
	locs := make([]topology.Location, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if n, ok := e.ring.NodeByID(id); ok {
			locs = append(locs, n.Location)
		}
	}
	return affinity.CheckAffinity(locs, rules)
}

// --- keyspace registry ---

func (e *Engine) AddKeyspace(ks keyspace.Keyspace) error { return e.keyspaces.Add(ks) }
func (e *Engine) RemoveKeyspace(name string) error       { return e.keyspaces.Remove(name) }
func (e *Engine) GetKeyspace(name string) (*keyspace.Keyspace, bool) {
	return e.keyspaces.Get(name)
}

// --- stats / iteration ---

func (e *Engine) GetStats() ring.Stats { return e.ring.Stats() }

func (e *Engine) IterateNodes(cb func(ring.Node) bool) { e.ring.IterateNodes(cb) }
func (e *Engine) IterateNodesByState(state topology.NodeState, cb func(ring.Node) bool) {
	e.ring.IterateNodesByState(state, cb)
}
func (e *Engine) IterateNodesByLocation(level topology.SpreadLevel, value uint32, cb func(ring.Node) bool) {
	e.ring.IterateNodesByLocation(level, value, cb)
}

// --- rebalance ---

// PlanRebalance computes and logs a rebalance plan, stamping its ID
// with a fresh UUID so it can be correlated in logs and by callers.
func (e *Engine) PlanRebalance(oldNodeIDs, newNodeIDs []uint64) *ring.RebalancePlan {
	plan := e.ring.PlanRebalance(oldNodeIDs, newNodeIDs)
	plan.ID = uuid.NewString()
	e.log.Info().Str("plan_id", plan.ID).Int("moves", len(plan.Moves)).Msg("rebalance plan computed")
	return plan
}

func (e *Engine) SetHealthProvider(p ring.HealthProvider) { e.ring.SetHealthProvider(p) }
func (e *Engine) SetNodeStateCallback(cb func(nodeID uint64, from, to topology.NodeState)) {
	e.ring.SetNodeStateCallback(cb)
}
func (e *Engine) SetRebalanceCallback(cb func(plan *ring.RebalancePlan)) {
	e.ring.SetRebalanceCallback(cb)
}

// --- serialization ---

// Serialize snapshots the engine's ring and keyspace registry.
func (e *Engine) Serialize() []byte {
	size := snapshot.SerializeSize(e.ring, e.keyspaces)
	buf := make([]byte, size)
	snapshot.Serialize(e.ring, e.keyspaces, buf)
	return buf
}

// Deserialize rebuilds a full Engine (ring + keyspace registry) from a
// snapshot produced by Serialize.
func Deserialize(data []byte, instanceID string) (*Engine, error) {
	r, reg, err := snapshot.Deserialize(data)
	if err != nil {
		return nil, err
	}
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("instance_id", instanceID).Str("ring", r.Name()).Logger()
	r.SetLogger(log)
	return &Engine{ring: r, keyspaces: reg, instanceID: instanceID, log: log}, nil
}

func (e *Engine) GetVersion() uint64 { return e.ring.Version() }

func (e *Engine) SerializeDelta(sinceVersion uint64) []byte {
	size := snapshot.SerializeSize(e.ring, e.keyspaces)
	buf := make([]byte, size)
	n := snapshot.SerializeDelta(e.ring, e.keyspaces, sinceVersion, buf)
	return buf[:n]
}

func (e *Engine) ApplyDelta(delta []byte) error {
	return snapshot.ApplyDelta(e.ring, delta)
}
