package variant

// Window is the sliding window buffer of spec.md §3: a deque of Variant
// instances ordered most-recent-first. Insertion always prepends (the
// incoming stream is non-decreasing in (RID, Beg1)), and eviction always
// removes from the back (the oldest entry), establishing the interaction
// horizon invariant (spec.md §4.1 step 2).
//
// Entries are addressed through an Arena, so a Ref from PushFront or
// Snapshot stays a stable handle to its entry without a raw pointer
// (spec.md §9).
type Window struct {
	arena *Arena
	order []Ref // order[0] = front = most recent; order[len-1] = back = oldest
}

// NewWindow returns an empty window backed by a fresh arena.
func NewWindow() *Window {
	return &Window{arena: NewArena()}
}

// Len returns the number of entries currently buffered.
func (w *Window) Len() int { return len(w.order) }

// PushFront inserts v at the front of the buffer (step 4 of spec.md
// §4.1's ingestion algorithm) and returns a stable Ref to it.
func (w *Window) PushFront(v *Variant) Ref {
	ref := w.arena.Alloc(v)
	w.order = append(w.order, Ref{})
	copy(w.order[1:], w.order[:len(w.order)-1])
	w.order[0] = ref
	return ref
}

// At returns the i'th entry counting from the front (0 = most recent).
func (w *Window) At(i int) (*Variant, Ref) {
	ref := w.order[i]
	v, ok := w.arena.Get(ref)
	if !ok {
		panic("variant: stale Ref in window order; arena/window out of sync")
	}
	return v, ref
}

// Snapshot returns a copy of the current buffer order (front to back).
// A caller walking a snapshot is immune to PushFront calls made by its
// own loop body: new entries land in the live window but never appear
// in a snapshot taken before they were pushed, and indices already
// visited in the snapshot never shift out from under the caller the way
// they would walking w.order directly by index (matching how a
// std::list iterator is unaffected by a push_front elsewhere in the
// list).
func (w *Window) Snapshot() []Ref {
	out := make([]Ref, len(w.order))
	copy(out, w.order)
	return out
}

// Resolve looks up the Variant for ref, exactly like Arena.Get.
func (w *Window) Resolve(ref Ref) (*Variant, bool) {
	return w.arena.Get(ref)
}

// Back returns the oldest buffered entry, or ok=false if the window is
// empty.
func (w *Window) Back() (*Variant, Ref, bool) {
	if len(w.order) == 0 {
		return nil, Ref{}, false
	}
	i := len(w.order) - 1
	v, ok := w.arena.Get(w.order[i])
	if !ok {
		panic("variant: stale Ref at back of window")
	}
	return v, w.order[i], true
}

// PopBack removes and returns the oldest buffered entry, freeing its
// arena slot.
func (w *Window) PopBack() (*Variant, bool) {
	v, ref, ok := w.Back()
	if !ok {
		return nil, false
	}
	w.order = w.order[:len(w.order)-1]
	w.arena.Free(ref)
	return v, true
}

// Remove drops the entry identified by ref from the buffer order,
// wherever it sits, and frees its arena slot. The consolidator does not
// call it; it evicts only through PopBack. Returns false if ref is not
// currently in the window.
func (w *Window) Remove(ref Ref) bool {
	for i, r := range w.order {
		if r == ref {
			w.order = append(w.order[:i], w.order[i+1:]...)
			w.arena.Free(ref)
			return true
		}
	}
	return false
}
