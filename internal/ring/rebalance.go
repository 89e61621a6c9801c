package ring

import (
	"fmt"
	"math"
)

// MoveState is a rebalance move's lifecycle, per spec.md's data model:
// Pending, InProgress, Completed, Failed.
type MoveState int

const (
	MovePending MoveState = iota
	MoveInProgress
	MoveCompleted
	MoveFailed
)

func (s MoveState) String() string {
	switch s {
	case MovePending:
		return "pending"
	case MoveInProgress:
		return "in_progress"
	case MoveCompleted:
		return "completed"
	case MoveFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Move is one hash-range transfer from Source to Destination. The
// engine never executes moves itself (there is no data-transfer
// component in this core); a caller's migration worker advances State
// as it copies the range.
type Move struct {
	Source         uint64
	Destination    uint64
	HashRangeStart uint64
	HashRangeEnd   uint64
	EstimatedBytes uint64
	State          MoveState
}

// Advance validates and applies a state transition. Only
// Pending->InProgress and InProgress->{Completed,Failed} are legal;
// anything else is ErrInvalidState.
func (m *Move) Advance(newState MoveState) error {
	switch {
	case m.State == MovePending && newState == MoveInProgress:
	case m.State == MoveInProgress && (newState == MoveCompleted || newState == MoveFailed):
	default:
		return fmt.Errorf("%w: move %d->%d cannot go from %s to %s",
			ErrInvalidState, m.Source, m.Destination, m.State, newState)
	}
	m.State = newState
	return nil
}

// RebalancePlan is an ordered list of moves produced by PlanRebalance.
// It is a pure data product: the ring never executes it.
type RebalancePlan struct {
	ID    string
	Moves []*Move
}

// Progress returns the ratio of Completed moves to total moves.
func (p *RebalancePlan) Progress() float64 {
	if len(p.Moves) == 0 {
		return 1
	}
	done := 0
	for _, m := range p.Moves {
		if m.State == MoveCompleted {
			done++
		}
	}
	return float64(done) / float64(len(p.Moves))
}

// PlanRebalance computes the moves implied by a membership change from
// oldNodeIDs to newNodeIDs: every node present in oldNodeIDs but
// absent from newNodeIDs is "departing" and its share of the keyspace
// must move somewhere; every node present in newNodeIDs but absent
// from oldNodeIDs is "arriving" and takes over some range. The 64-bit
// hash space is partitioned evenly across the departing nodes, one
// Move per departing node, and each departure is paired round-robin
// with an arrival; arrivals beyond the number of departures receive
// no Move. This is
// descriptive bookkeeping, not an instruction to actually move bytes:
// EstimatedBytes is left at zero since the ring has no way to know a
// departing node's real per-range byte distribution without the
// caller supplying it.
//
// If planID is required by a caller wanting to correlate a plan with
// external logs, wrap the returned plan (its ID is left empty here;
// internal/engine stamps one using google/uuid before returning it to
// callers).
func (r *Ring) PlanRebalance(oldNodeIDs, newNodeIDs []uint64) *RebalancePlan {
	oldSet := make(map[uint64]bool, len(oldNodeIDs))
	for _, id := range oldNodeIDs {
		oldSet[id] = true
	}
	newSet := make(map[uint64]bool, len(newNodeIDs))
	for _, id := range newNodeIDs {
		newSet[id] = true
	}

	var departing, arriving []uint64
	for _, id := range oldNodeIDs {
		if !newSet[id] {
			departing = append(departing, id)
		}
	}
	for _, id := range newNodeIDs {
		if !oldSet[id] {
			arriving = append(arriving, id)
		}
	}

	plan := &RebalancePlan{}
	if len(departing) == 0 || len(arriving) == 0 {
		r.mu.RLock()
		defer r.mu.RUnlock()
		r.fireRebalanceCallback(plan)
		return plan
	}

	rangeWidth := uint64(math.MaxUint64) / uint64(len(departing))
	for i, src := range departing {
		start := uint64(i) * rangeWidth
		end := start + rangeWidth
		if i == len(departing)-1 {
			end = math.MaxUint64
		}
		dst := arriving[i%len(arriving)]
		plan.Moves = append(plan.Moves, &Move{
			Source:         src,
			Destination:    dst,
			HashRangeStart: start,
			HashRangeEnd:   end,
			State:          MovePending,
		})
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	r.fireRebalanceCallback(plan)
	return plan
}
