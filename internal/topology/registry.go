package topology

// Registry hands out device indices in first-seen order. Indices are never reused.
type Registry struct {
	identifiers []string
	index       map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Resolve returns the index of identifier, registering it on first sight.
func (r *Registry) Resolve(identifier string) int {
	if idx, ok := r.index[identifier]; ok {
		return idx
	}
	idx := len(r.identifiers)
	r.identifiers = append(r.identifiers, identifier)
	r.index[identifier] = idx
	return idx
}

// Lookup returns the index of identifier without registering it.
func (r *Registry) Lookup(identifier string) (int, bool) {
	idx, ok := r.index[identifier]
	return idx, ok
}

// Identifier returns the identifier registered at idx, or "" if out of range.
func (r *Registry) Identifier(idx int) string {
	if idx < 0 || idx >= len(r.identifiers) {
		return ""
	}
	return r.identifiers[idx]
}

func (r *Registry) Len() int {
	return len(r.identifiers)
}

// Identifiers returns a copy of all identifiers in index order.
func (r *Registry) Identifiers() []string {
	out := make([]string, len(r.identifiers))
	copy(out, r.identifiers)
	return out
}
