package strategy

// boundedDefaultLoadFactor is the spec's default: a node may carry up
// to 25% more than the current average load before Bounded skips it
// during a walk.
const boundedDefaultLoadFactor = 1.25

// Bounded wraps a Ketama ring with a per-node load check. It shares
// Ketama's vnode array and walk entirely (spec.md §4.2.5: "behaves
// like Ketama but additionally checks per-node load"); the only new
// behavior is the overload predicate passed into Ketama.walk.
type Bounded struct {
	*Ketama
	loadFactor float64
}

// NewBounded builds a Bounded strategy. loadFactor <= 0 uses the
// spec's default of 1.25.
func NewBounded(cfg KetamaConfig, loadFactor float64) *Bounded {
	if loadFactor <= 0 {
		loadFactor = boundedDefaultLoadFactor
	}
	return &Bounded{Ketama: NewKetama(cfg), loadFactor: loadFactor}
}

func (b *Bounded) Name() string { return "bounded" }

func (b *Bounded) Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64 {
	b.resortIfDirty()

	avg, populated := averageMaxLoad(src)
	if !populated {
		// No load reports recorded anywhere: degrade gracefully to
		// plain Ketama, per spec.md's Open Question resolution in
		// DESIGN.md (this is the intended long-term behavior, not a
		// placeholder).
		return b.walk(src, H64(keyBytes, b.cfg.Seed), maxNodes, nil)
	}

	threshold := avg * b.loadFactor
	overloaded := func(id uint64) bool {
		used, capacity, ok := src.LoadOf(id)
		if !ok || capacity == 0 {
			return false
		}
		return float64(used) > threshold*float64(capacity)/avgCapacityUnit
	}
	return b.walk(src, H64(keyBytes, b.cfg.Seed), maxNodes, overloaded)
}

// avgCapacityUnit normalizes the threshold comparison: averageMaxLoad
// returns an average *fraction* of capacity used (0..1-ish), so the
// per-node check re-expands it against that node's own capacity.
const avgCapacityUnit = 1.0

// averageMaxLoad computes the mean used/capacity fraction across every
// node that has ever reported load. It returns populated=false when no
// node has a load report yet, in which case Bounded must not attempt
// any threshold comparison.
func averageMaxLoad(src NodeSource) (avg float64, populated bool) {
	var sum float64
	var n int
	for _, node := range src.Nodes() {
		used, capacity, ok := src.LoadOf(node.ID)
		if !ok || capacity == 0 {
			continue
		}
		sum += float64(used) / float64(capacity)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
