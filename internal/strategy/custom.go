package strategy

// LocateFunc is the shape an external caller implements to plug a
// custom placement algorithm into the ring, per spec.md §4.2.6. Its
// contract is identical to every built-in strategy's Locate.
type LocateFunc func(state any, src NodeSource, keyBytes []byte, maxNodes int) []uint64

// Custom adapts an external LocateFunc (plus its opaque state) into
// the Strategy interface, so the ring can delegate to caller-supplied
// logic exactly as it would to a built-in.
type Custom struct {
	name    string
	state   any
	locate  LocateFunc
	onAdd   func(state any, n NodeSnapshot)
	onRemove func(state any, id uint64)
	onWeight func(state any, id uint64, weight uint32)
	onDirty  func(state any)
}

// NewCustom wraps locate (required) with optional membership hooks.
// Any hook left nil is a no-op, matching how Jump/Rendezvous leave
// hooks they don't need unimplemented.
func NewCustom(name string, state any, locate LocateFunc) *Custom {
	return &Custom{name: name, state: state, locate: locate}
}

// WithNodeHooks attaches optional AddNode/RemoveNode/SetWeight/MarkDirty
// callbacks driven by the same opaque state passed to NewCustom.
func (c *Custom) WithNodeHooks(
	onAdd func(state any, n NodeSnapshot),
	onRemove func(state any, id uint64),
	onWeight func(state any, id uint64, weight uint32),
	onDirty func(state any),
) *Custom {
	c.onAdd, c.onRemove, c.onWeight, c.onDirty = onAdd, onRemove, onWeight, onDirty
	return c
}

func (c *Custom) Name() string {
	if c.name == "" {
		return "custom"
	}
	return c.name
}

func (c *Custom) AddNode(n NodeSnapshot) {
	if c.onAdd != nil {
		c.onAdd(c.state, n)
	}
}

func (c *Custom) RemoveNode(id uint64) {
	if c.onRemove != nil {
		c.onRemove(c.state, id)
	}
}

func (c *Custom) SetWeight(id uint64, weight uint32) {
	if c.onWeight != nil {
		c.onWeight(c.state, id, weight)
	}
}

func (c *Custom) MarkDirty() {
	if c.onDirty != nil {
		c.onDirty(c.state)
	}
}

func (c *Custom) Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64 {
	if c.locate == nil {
		return nil
	}
	return c.locate(c.state, src, keyBytes, maxNodes)
}
