package bus

import "sort"

// registry is the ordered list of every live binding. Order is bind order
// and doubles as delivery order for the slow path.
type registry struct {
	bindings []*binding
	byHandle map[Handle]*binding
}

func newRegistry() registry {
	return registry{byHandle: make(map[Handle]*binding)}
}

func (r *registry) add(b *binding) {
	r.bindings = append(r.bindings, b)
	r.byHandle[b.handle] = b
}

func (r *registry) has(h Handle) bool {
	_, ok := r.byHandle[h]
	return ok
}

func (r *registry) len() int {
	return len(r.bindings)
}

// snapshot returns a copy that stays stable while listeners mutate r.
func (r *registry) snapshot() []*binding {
	out := make([]*binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// after returns the bindings whose handle is greater than h. Handles grow
// with bind order, so these are the bindings added since h was assigned.
func (r *registry) after(h Handle) []*binding {
	i := sort.Search(len(r.bindings), func(i int) bool { return r.bindings[i].handle > h })
	return r.bindings[i:]
}

// remove drops every binding whose handle is in set, preserving the order
// of the rest, and returns how many were dropped.
func (r *registry) remove(set map[Handle]struct{}) int {
	kept := r.bindings[:0]
	removed := 0
	for _, b := range r.bindings {
		if _, drop := set[b.handle]; drop {
			delete(r.byHandle, b.handle)
			removed++
			continue
		}
		kept = append(kept, b)
	}
	// Clear the tail so dropped bindings can be collected.
	for i := len(kept); i < len(r.bindings); i++ {
		r.bindings[i] = nil
	}
	r.bindings = kept
	return removed
}

func (r *registry) infos() []Info {
	out := make([]Info, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.info()
	}
	return out
}
