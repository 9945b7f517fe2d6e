package indicators

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Builder collects indicator declarations before the registry is frozen.
type Builder struct {
	defs []Definition
	base map[string]bool
}

// NewBuilder returns a builder that accepts BaseColumns as raw inputs.
func NewBuilder() *Builder {
	b := &Builder{base: make(map[string]bool)}
	for _, c := range BaseColumns {
		b.base[c] = true
	}
	return b
}

// Add appends a declaration. Validation happens in Build.
func (b *Builder) Add(defs ...Definition) *Builder {
	b.defs = append(b.defs, defs...)
	return b
}

// Build validates the declarations and freezes them into a Registry.
// Duplicate names, unknown predecessors and cycles are all fatal.
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		defs:  make(map[string]Definition, len(b.defs)),
		owner: make(map[string]string),
		index: make(map[string]int),
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
		cache: make(map[string][]Definition),
	}

	// Nodes: each indicator followed by its extra outputs, in declaration order.
	var nodes []string
	addNode := func(name string) error {
		if b.base[name] {
			return fmt.Errorf("%w: %q shadows a base column", ErrDuplicateIndicator, name)
		}
		if _, ok := r.index[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateIndicator, name)
		}
		r.index[name] = len(nodes)
		nodes = append(nodes, name)
		return nil
	}

	for _, d := range b.defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrBadOutput)
		}
		if d.Compute == nil {
			return nil, fmt.Errorf("%w: %q has no compute function", ErrBadOutput, d.Name)
		}
		if err := addNode(d.Name); err != nil {
			return nil, err
		}
		r.defs[d.Name] = d
		for _, o := range d.extraOutputs() {
			if err := addNode(o); err != nil {
				return nil, err
			}
			r.owner[o] = d.Name
		}
	}

	link := func(from, to string) {
		r.succ[from] = append(r.succ[from], to)
		r.pred[to] = append(r.pred[to], from)
	}
	for _, d := range b.defs {
		for _, p := range d.Predecessors {
			if b.base[p] {
				continue
			}
			if _, ok := r.index[p]; !ok {
				return nil, fmt.Errorf("%w: %q (required by %q)", ErrUnknownIndicator, p, d.Name)
			}
			link(p, d.Name)
		}
		for _, o := range d.extraOutputs() {
			link(d.Name, o)
		}
	}

	order, err := r.topoSort(nodes)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// Registry is the frozen indicator graph. It is safe for concurrent use.
type Registry struct {
	defs  map[string]Definition
	owner map[string]string // extra output -> owning indicator
	index map[string]int    // node -> declaration position
	succ  map[string][]string
	pred  map[string][]string
	order []string // all nodes, topologically sorted

	mu    sync.Mutex
	cache map[string][]Definition
}

// topoSort is Kahn's algorithm; among ready nodes the earliest declared wins,
// so the order is stable for a given set of declarations.
func (r *Registry) topoSort(nodes []string) ([]string, error) {
	indeg := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indeg[n] = len(r.pred[n])
	}

	var ready []string
	for _, n := range nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return r.index[ready[i]] < r.index[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, s := range r.succ[n] {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
			}
		}
	}

	if len(order) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if indeg[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Has reports whether name is a declared indicator or output column.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Resolve returns the indicators needed to produce the requested columns, in
// execution order. Every indicator appears after all of its predecessors.
// With no arguments every declared indicator is returned.
//
// An indicator is kept when it is requested or when one of its successors is
// in the closure of the requested set; unused branches are dropped. Requesting
// an extra output pulls in the indicator that produces it.
func (r *Registry) Resolve(requested ...string) ([]Definition, error) {
	key := cacheKey(requested)

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return append([]Definition(nil), cached...), nil
	}
	r.mu.Unlock()

	needed, err := r.closure(requested)
	if err != nil {
		return nil, err
	}

	var out []Definition
	for _, n := range r.order {
		d, isIndicator := r.defs[n]
		if !isIndicator {
			continue
		}
		if needed == nil || needed[n] {
			out = append(out, d)
		}
	}

	r.mu.Lock()
	r.cache[key] = out
	r.mu.Unlock()

	return append([]Definition(nil), out...), nil
}

// closure returns the requested nodes plus all their ancestors. A nil map
// means "everything".
func (r *Registry) closure(requested []string) (map[string]bool, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	stack := make([]string, 0, len(requested))
	for _, n := range requested {
		if isBase(n) {
			continue
		}
		if !r.Has(n) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, n)
		}
		stack = append(stack, n)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, r.pred[n]...)
	}
	return seen, nil
}

func cacheKey(requested []string) string {
	set := make(map[string]bool, len(requested))
	for _, n := range requested {
		set[n] = true
	}
	keys := make([]string, 0, len(set))
	for n := range set {
		keys = append(keys, n)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}

func isBase(name string) bool {
	for _, c := range BaseColumns {
		if c == name {
			return true
		}
	}
	return false
}
