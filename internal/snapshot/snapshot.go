// Package snapshot implements the versioned binary ring format from
// spec.md §4.7: fixed magic "DKCR", version 2, little-endian
// fixed-width fields, length-prefixed strings. It is pure encode/decode
// over *ring.Ring and *keyspace.Registry — no I/O of its own, matching
// the core's "no I/O, synchronous" concurrency model.
package snapshot

import (
	"encoding/binary"
	"fmt"

	"placementcore/internal/affinity"
	"placementcore/internal/keyspace"
	"placementcore/internal/ring"
	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

// Magic is the fixed 4-byte snapshot header.
var Magic = [4]byte{'D', 'K', 'C', 'R'}

// Version is the only version this package accepts on read.
const Version uint32 = 2

// noStrategyOverride marks a keyspace with no strategy override in the
// serialized form.
const noStrategyOverride uint32 = 0xFFFFFFFF

var strategyKindByName = map[string]ring.StrategyKind{
	"ketama":     ring.StrategyKetama,
	"jump":       ring.StrategyJump,
	"rendezvous": ring.StrategyRendezvous,
	"maglev":     ring.StrategyMaglev,
	"bounded":    ring.StrategyBounded,
	"custom":     ring.StrategyCustom,
}

const (
	quorumBlockSize   = 4*4 + 1 + 4 // ReplicaCount,WriteQuorum,WriteSync,ReadQuorum (u32) + ReadRepair (u8) + Consistency (u32)
	vnodeConfigSize   = 4 * 3       // Multiplier,MinVnodes,MaxVnodes
	locationBlockSize = 4*6 + 2 + 1 // six u32 fields + Country u16 + Continent u8
	ruleSize          = 1 + 4 + 1   // Level (u8) + MinSpread (u32) + Required (u8)
)

func stringSize(s string) int { return 4 + len(s) }

func putString(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
	off += 4
	copy(buf[off:], s)
	return off + len(s)
}

func getString(data []byte, off int) (string, int, error) {
	if off+4 > len(data) {
		return "", 0, fmt.Errorf("%w: truncated string length", ring.ErrGeneric)
	}
	n := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+n > len(data) {
		return "", 0, fmt.Errorf("%w: truncated string body", ring.ErrGeneric)
	}
	return string(data[off : off+n]), off + n, nil
}

func putQuorum(buf []byte, off int, q ring.Quorum) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(q.ReplicaCount))
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(q.WriteQuorum))
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(q.WriteSync))
	binary.LittleEndian.PutUint32(buf[off+12:], uint32(q.ReadQuorum))
	if q.ReadRepair {
		buf[off+16] = 1
	} else {
		buf[off+16] = 0
	}
	binary.LittleEndian.PutUint32(buf[off+17:], uint32(q.Consistency))
	return off + quorumBlockSize
}

func getQuorum(data []byte, off int) (ring.Quorum, int, error) {
	if off+quorumBlockSize > len(data) {
		return ring.Quorum{}, 0, fmt.Errorf("%w: truncated quorum block", ring.ErrGeneric)
	}
	q := ring.Quorum{
		ReplicaCount: int(binary.LittleEndian.Uint32(data[off:])),
		WriteQuorum:  int(binary.LittleEndian.Uint32(data[off+4:])),
		WriteSync:    int(binary.LittleEndian.Uint32(data[off+8:])),
		ReadQuorum:   int(binary.LittleEndian.Uint32(data[off+12:])),
		ReadRepair:   data[off+16] != 0,
		Consistency:  ring.ConsistencyLevel(binary.LittleEndian.Uint32(data[off+17:])),
	}
	return q, off + quorumBlockSize, nil
}

func putLocation(buf []byte, off int, loc topology.Location) int {
	binary.LittleEndian.PutUint32(buf[off:], loc.Node)
	binary.LittleEndian.PutUint32(buf[off+4:], loc.Rack)
	binary.LittleEndian.PutUint32(buf[off+8:], loc.Cage)
	binary.LittleEndian.PutUint32(buf[off+12:], loc.Datacenter)
	binary.LittleEndian.PutUint32(buf[off+16:], loc.AvailabilityZone)
	binary.LittleEndian.PutUint32(buf[off+20:], loc.Region)
	binary.LittleEndian.PutUint16(buf[off+24:], loc.Country)
	buf[off+26] = loc.Continent
	return off + locationBlockSize
}

func getLocation(data []byte, off int) (topology.Location, int, error) {
	if off+locationBlockSize > len(data) {
		return topology.Location{}, 0, fmt.Errorf("%w: truncated location block", ring.ErrGeneric)
	}
	loc := topology.Location{
		Node:             binary.LittleEndian.Uint32(data[off:]),
		Rack:             binary.LittleEndian.Uint32(data[off+4:]),
		Cage:             binary.LittleEndian.Uint32(data[off+8:]),
		Datacenter:       binary.LittleEndian.Uint32(data[off+12:]),
		AvailabilityZone: binary.LittleEndian.Uint32(data[off+16:]),
		Region:           binary.LittleEndian.Uint32(data[off+20:]),
		Country:          binary.LittleEndian.Uint16(data[off+24:]),
		Continent:        data[off+26],
	}
	return loc, off + locationBlockSize, nil
}

// SerializeSize computes the exact buffer length Serialize needs for
// the given ring and keyspace registry.
func SerializeSize(r *ring.Ring, reg *keyspace.Registry) int {
	size := 4 /* magic */ + 4 /* version */
	size += stringSize(r.Name())
	size += quorumBlockSize // default quorum
	size += vnodeConfigSize
	size += 4 /* strategy kind */
	size += 8 /* seed */
	size += 4 /* node count */

	r.IterateNodes(func(n ring.Node) bool {
		size += 8 /* id */
		size += stringSize(n.Name)
		size += stringSize(n.Address)
		size += locationBlockSize
		size += 4 /* weight */
		size += 8 /* capacity */
		size += 4 /* state */
		size += 8 /* used bytes */
		return true
	})

	size += 4 /* keyspace count */
	if reg != nil {
		for _, name := range reg.Names() {
			ks, _ := reg.Get(name)
			size += stringSize(ks.Name)
			size += quorumBlockSize
			size += 4 /* strategy override */
			size += 1 /* rule count */
			size += len(ks.AffinityRules) * ruleSize
		}
	}
	return size
}

// Serialize writes the ring (and optional keyspace registry) into buf.
// It returns the number of bytes written, or 0 if buf is smaller than
// SerializeSize requires.
func Serialize(r *ring.Ring, reg *keyspace.Registry, buf []byte) int {
	need := SerializeSize(r, reg)
	if len(buf) < need {
		return 0
	}

	off := 0
	copy(buf[off:], Magic[:])
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], Version)
	off += 4
	off = putString(buf, off, r.Name())
	off = putQuorum(buf, off, r.DefaultQuorum())

	vc := r.VnodeConfig()
	binary.LittleEndian.PutUint32(buf[off:], vc.Multiplier)
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(vc.MinVnodes))
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(vc.MaxVnodes))
	off += vnodeConfigSize

	binary.LittleEndian.PutUint32(buf[off:], uint32(r.StrategyKind()))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], r.Seed())
	off += 8

	var nodes []ring.Node
	r.IterateNodes(func(n ring.Node) bool {
		nodes = append(nodes, n)
		return true
	})
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(nodes)))
	off += 4

	for _, n := range nodes {
		binary.LittleEndian.PutUint64(buf[off:], n.ID)
		off += 8
		off = putString(buf, off, n.Name)
		off = putString(buf, off, n.Address)
		off = putLocation(buf, off, n.Location)
		binary.LittleEndian.PutUint32(buf[off:], n.Weight)
		off += 4
		binary.LittleEndian.PutUint64(buf[off:], n.CapacityBytes)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(n.State))
		off += 4
		binary.LittleEndian.PutUint64(buf[off:], n.UsedBytes)
		off += 8
	}

	var keyspaceNames []string
	if reg != nil {
		keyspaceNames = reg.Names()
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(keyspaceNames)))
	off += 4

	for _, name := range keyspaceNames {
		ks, _ := reg.Get(name)
		off = putString(buf, off, ks.Name)
		off = putQuorum(buf, off, ks.Quorum)

		kind := noStrategyOverride
		if ks.StrategyOverride != "" {
			if k, ok := strategyKindByName[ks.StrategyOverride]; ok {
				kind = uint32(k)
			}
		}
		binary.LittleEndian.PutUint32(buf[off:], kind)
		off += 4

		buf[off] = byte(len(ks.AffinityRules))
		off++
		for _, rule := range ks.AffinityRules {
			buf[off] = byte(rule.Level)
			binary.LittleEndian.PutUint32(buf[off+1:], uint32(rule.MinSpread))
			if rule.Required {
				buf[off+5] = 1
			} else {
				buf[off+5] = 0
			}
			off += ruleSize
		}
	}

	return off
}

// strategyFactoryByKind builds a fresh strategy.Strategy of the given
// kind, using vc for Ketama/Bounded's vnode tuning. Jump/Maglev/
// Rendezvous ignore vc.
func strategyFactoryByKind(kind ring.StrategyKind, seed uint64, vc strategy.KetamaConfig) (strategy.Strategy, error) {
	switch kind {
	case ring.StrategyKetama:
		vc.Seed = seed
		return strategy.NewKetama(vc), nil
	case ring.StrategyJump:
		return strategy.NewJump(seed), nil
	case ring.StrategyRendezvous:
		return strategy.NewRendezvous(seed), nil
	case ring.StrategyMaglev:
		return strategy.NewMaglev(seed), nil
	case ring.StrategyBounded:
		vc.Seed = seed
		return strategy.NewBounded(vc, 0), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy kind %d (custom strategies cannot be reconstructed from a snapshot alone)", ring.ErrInvalidConfig, kind)
	}
}

// Deserialize verifies the magic and version, then reconstructs a ring
// via the standard AddNode/AddKeyspace-equivalent path (preserving
// every invariant) and restores each node's UsedBytes by direct write
// after AddNode, per spec.md §4.7 — see RestoreNodeUsage.
func Deserialize(data []byte) (*ring.Ring, *keyspace.Registry, error) {
	if len(data) < 8 || string(data[:4]) != string(Magic[:]) {
		return nil, nil, fmt.Errorf("%w: bad magic", ring.ErrGeneric)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != Version {
		return nil, nil, fmt.Errorf("%w: unsupported snapshot version %d", ring.ErrGeneric, version)
	}

	off := 8
	name, off, err := getString(data, off)
	if err != nil {
		return nil, nil, err
	}
	quorum, off, err := getQuorum(data, off)
	if err != nil {
		return nil, nil, err
	}

	if off+vnodeConfigSize > len(data) {
		return nil, nil, fmt.Errorf("%w: truncated vnode config", ring.ErrGeneric)
	}
	vc := strategy.KetamaConfig{
		Multiplier: binary.LittleEndian.Uint32(data[off:]),
		MinVnodes:  int(binary.LittleEndian.Uint32(data[off+4:])),
		MaxVnodes:  int(binary.LittleEndian.Uint32(data[off+8:])),
	}
	off += vnodeConfigSize

	if off+4+8 > len(data) {
		return nil, nil, fmt.Errorf("%w: truncated strategy header", ring.ErrGeneric)
	}
	kind := ring.StrategyKind(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	seed := binary.LittleEndian.Uint64(data[off:])
	off += 8

	strat, err := strategyFactoryByKind(kind, seed, vc)
	if err != nil {
		return nil, nil, err
	}

	r, err := ring.New(ring.Config{
		Name:          name,
		StrategyKind:  kind,
		Strategy:      strat,
		VnodeConfig:   vc,
		Seed:          seed,
		DefaultQuorum: quorum,
	})
	if err != nil {
		return nil, nil, err
	}

	if off+4 > len(data) {
		return nil, nil, fmt.Errorf("%w: truncated node count", ring.ErrGeneric)
	}
	nodeCount := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	for i := 0; i < nodeCount; i++ {
		if off+8 > len(data) {
			return nil, nil, fmt.Errorf("%w: truncated node record", ring.ErrGeneric)
		}
		id := binary.LittleEndian.Uint64(data[off:])
		off += 8

		var nodeName, address string
		nodeName, off, err = getString(data, off)
		if err != nil {
			return nil, nil, err
		}
		address, off, err = getString(data, off)
		if err != nil {
			return nil, nil, err
		}

		var loc topology.Location
		loc, off, err = getLocation(data, off)
		if err != nil {
			return nil, nil, err
		}

		if off+4+8+4+8 > len(data) {
			return nil, nil, fmt.Errorf("%w: truncated node fixed fields", ring.ErrGeneric)
		}
		weight := binary.LittleEndian.Uint32(data[off:])
		off += 4
		capacity := binary.LittleEndian.Uint64(data[off:])
		off += 8
		state := topology.NodeState(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		usedBytes := binary.LittleEndian.Uint64(data[off:])
		off += 8

		if err := r.AddNode(ring.NodeConfig{
			ID: id, Name: nodeName, Address: address, Location: loc,
			Weight: weight, CapacityBytes: capacity, InitialState: state,
		}); err != nil {
			return nil, nil, err
		}
		// InitialState above only distinguishes Joining vs Up; force
		// the exact persisted state (e.g. Suspect, Maintenance).
		if err := r.SetNodeState(id, state); err != nil {
			return nil, nil, err
		}
		// Restore UsedBytes by direct write, per spec.md §4.7 — not via
		// UpdateNodeLoad, which would stamp Load.CheckedAt on every
		// node and make Bounded treat nodes that never reported load
		// before serialization as if they just did.
		if err := r.RestoreNodeUsage(id, usedBytes, capacity); err != nil {
			return nil, nil, err
		}
	}

	reg := keyspace.NewRegistry()
	if off+4 > len(data) {
		return nil, nil, fmt.Errorf("%w: truncated keyspace count", ring.ErrGeneric)
	}
	ksCount := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	for i := 0; i < ksCount; i++ {
		var ksName string
		ksName, off, err = getString(data, off)
		if err != nil {
			return nil, nil, err
		}
		var ksQuorum ring.Quorum
		ksQuorum, off, err = getQuorum(data, off)
		if err != nil {
			return nil, nil, err
		}

		if off+4+1 > len(data) {
			return nil, nil, fmt.Errorf("%w: truncated keyspace strategy/rule-count", ring.ErrGeneric)
		}
		overrideKind := binary.LittleEndian.Uint32(data[off:])
		off += 4
		override := ""
		if overrideKind != noStrategyOverride {
			for n, k := range strategyKindByName {
				if uint32(k) == overrideKind {
					override = n
					break
				}
			}
		}

		ruleCount := int(data[off])
		off++

		rules := make([]affinity.Rule, 0, ruleCount)
		for j := 0; j < ruleCount; j++ {
			if off+ruleSize > len(data) {
				return nil, nil, fmt.Errorf("%w: truncated affinity rule", ring.ErrGeneric)
			}
			rules = append(rules, affinity.Rule{
				Level:     topology.SpreadLevel(data[off]),
				MinSpread: int(binary.LittleEndian.Uint32(data[off+1:])),
				Required:  data[off+5] != 0,
			})
			off += ruleSize
		}

		if err := reg.Add(keyspace.Keyspace{
			Name: ksName, Quorum: ksQuorum, StrategyOverride: override, AffinityRules: rules,
		}); err != nil {
			return nil, nil, err
		}
	}

	return r, reg, nil
}

// SerializeDelta emits a full serialization if r's version is newer
// than sinceVersion, and zero bytes otherwise — the minimum conforming
// implementation spec.md §4.7 allows.
func SerializeDelta(r *ring.Ring, reg *keyspace.Registry, sinceVersion uint64, buf []byte) int {
	if r.Version() <= sinceVersion {
		return 0
	}
	return Serialize(r, reg, buf)
}

// ApplyDelta is not supported by this implementation, per spec.md's
// Open Question ("the apply_delta operation is not implemented in the
// source"); this mirrors that by always failing rather than guessing
// an incremental-merge semantics the spec never defines.
func ApplyDelta(*ring.Ring, []byte) error {
	return fmt.Errorf("%w: delta apply is not supported", ring.ErrGeneric)
}
