package rules

// Bindings maps rule-local variable names to bound values: *graph.Node,
// *graph.Edge, *graph.Path, or a scalar. Insertion order is preserved so
// result rows and merge semantics are deterministic.
//
// Bindings are short-lived: one per candidate match during rule evaluation.
// Bound entities are shared pointers into the graph; Clone copies the
// mapping, not the entities.
type Bindings struct {
	order  []string
	values map[string]any
}

// NewBindings creates an empty binding context.
func NewBindings() *Bindings {
	return &Bindings{values: make(map[string]any)}
}

// Has reports whether the name is bound.
func (b *Bindings) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

// Get returns the bound value, or (nil, false) when the name is not bound.
// Signaling ErrUnboundVariable is the caller's job.
func (b *Bindings) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Set binds a name, overwriting any previous value.
func (b *Bindings) Set(name string, value any) {
	if _, exists := b.values[name]; !exists {
		b.order = append(b.order, name)
	}
	b.values[name] = value
}

// Names returns the bound names in insertion order.
func (b *Bindings) Names() []string {
	return append([]string(nil), b.order...)
}

// Len returns the number of bound names.
func (b *Bindings) Len() int {
	return len(b.order)
}

// Clone returns an independent copy: mutating either context afterwards
// does not affect the other.
func (b *Bindings) Clone() *Bindings {
	clone := &Bindings{
		order:  append([]string(nil), b.order...),
		values: make(map[string]any, len(b.values)),
	}
	for k, v := range b.values {
		clone.values[k] = v
	}
	return clone
}

// Merge copies every entry of other into b, overwriting on conflict.
func (b *Bindings) Merge(other *Bindings) {
	if other == nil {
		return
	}
	for _, name := range other.order {
		b.Set(name, other.values[name])
	}
}
