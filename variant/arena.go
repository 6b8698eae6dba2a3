package variant

// Ref is a generational index into an Arena: (slot, generation). It
// replaces the raw owning pointers of the source implementation (design
// note, spec.md §9) with a stable handle to a buffered Variant, and
// detects use of a Ref after its slot has been recycled. A pending
// multi-allelic container holds cloned child records, not Refs.
type Ref struct {
	slot int
	gen  uint32
}

// Valid reports whether r refers to any slot at all (the zero Ref is
// invalid).
func (r Ref) Valid() bool { return r.gen != 0 }

type cell struct {
	v     *Variant
	gen   uint32
	alive bool
}

// Arena is an indexed pool of Variant cells. The Sliding Window Buffer
// (Window) stores only Refs into the arena, never pointers, so a freed
// slot can be reused without leaving dangling references alive in
// buffer order.
type Arena struct {
	cells []cell
	free  []int
	curGen uint32
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{} }

// Alloc stores v in a free (or new) slot and returns a Ref to it.
func (a *Arena) Alloc(v *Variant) Ref {
	a.curGen++
	gen := a.curGen
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]
		a.cells[slot] = cell{v: v, gen: gen, alive: true}
		return Ref{slot: slot, gen: gen}
	}
	a.cells = append(a.cells, cell{v: v, gen: gen, alive: true})
	return Ref{slot: len(a.cells) - 1, gen: gen}
}

// Get returns the Variant for r, or (nil, false) if r's slot has since
// been freed and recycled (a stale Ref).
func (a *Arena) Get(r Ref) (*Variant, bool) {
	if r.slot < 0 || r.slot >= len(a.cells) {
		return nil, false
	}
	c := a.cells[r.slot]
	if !c.alive || c.gen != r.gen {
		return nil, false
	}
	return c.v, true
}

// Free releases r's slot for reuse. It is a no-op if r is already stale.
func (a *Arena) Free(r Ref) {
	if r.slot < 0 || r.slot >= len(a.cells) {
		return
	}
	c := &a.cells[r.slot]
	if !c.alive || c.gen != r.gen {
		return
	}
	c.alive = false
	c.v = nil
	a.free = append(a.free, r.slot)
}

// Len returns the number of live cells, for tests and memory-bound
// assertions (spec.md §5: buffer residency is O(density x H)).
func (a *Arena) Len() int {
	n := 0
	for _, c := range a.cells {
		if c.alive {
			n++
		}
	}
	return n
}
