// Package backend models fixed-topology quantum processors: a qubit
// count, a coupling map, and the set of supported operations.
package backend

import (
	"fmt"
	"hash/fnv"
	"sort"

	"qcpack/internal/errdefs"
)

// Backend is an immutable description of one processor. Construct it
// with New; the derived neighbor sets and the architecture hash are
// computed once up front.
type Backend struct {
	name       string
	numQubits  int
	neighbors  []map[int]bool
	edges      [][2]int
	operations map[string]bool
	archHash   uint64
	cost       float64
}

// New builds a backend from its coupling map. Couplers are treated as
// undirected; duplicates and reversed pairs collapse into one edge.
func New(name string, numQubits int, couplers [][2]int, operations []string) (*Backend, error) {
	if numQubits <= 0 {
		return nil, fmt.Errorf("%w: backend %q needs a positive qubit count", errdefs.ErrInvalidParameter, name)
	}
	b := &Backend{
		name:       name,
		numQubits:  numQubits,
		neighbors:  make([]map[int]bool, numQubits),
		operations: make(map[string]bool, len(operations)),
		cost:       1,
	}
	for i := range b.neighbors {
		b.neighbors[i] = make(map[int]bool)
	}
	for _, c := range couplers {
		a, z := c[0], c[1]
		if a < 0 || a >= numQubits || z < 0 || z >= numQubits {
			return nil, fmt.Errorf("%w: coupler (%d, %d) out of range for %d qubits",
				errdefs.ErrInvalidParameter, a, z, numQubits)
		}
		if a == z {
			continue
		}
		b.neighbors[a][z] = true
		b.neighbors[z][a] = true
	}
	for q := 0; q < numQubits; q++ {
		for n := range b.neighbors[q] {
			if q < n {
				b.edges = append(b.edges, [2]int{q, n})
			}
		}
	}
	sort.Slice(b.edges, func(i, j int) bool {
		if b.edges[i][0] != b.edges[j][0] {
			return b.edges[i][0] < b.edges[j][0]
		}
		return b.edges[i][1] < b.edges[j][1]
	})
	for _, op := range operations {
		b.operations[op] = true
	}
	b.archHash = b.computeArchHash()
	return b, nil
}

func (b *Backend) Name() string   { return b.name }
func (b *Backend) NumQubits() int { return b.numQubits }

// Cost is the relative price weight used when ranking candidate bins
// across backends. Defaults to 1.
func (b *Backend) Cost() float64 { return b.cost }

// SetCost overrides the ranking weight. Values must be positive;
// anything else keeps the current weight.
func (b *Backend) SetCost(cost float64) {
	if cost > 0 {
		b.cost = cost
	}
}

// Neighbors returns the neighbor set of a physical qubit. The returned
// map is shared; callers must not modify it.
func (b *Backend) Neighbors(phys int) map[int]bool {
	if phys < 0 || phys >= b.numQubits {
		return nil
	}
	return b.neighbors[phys]
}

// Adjacent reports whether two physical qubits share a coupler.
func (b *Backend) Adjacent(a, z int) bool {
	if a < 0 || a >= b.numQubits {
		return false
	}
	return b.neighbors[a][z]
}

// Edges returns the canonical edge list, each edge once with the lower
// index first, sorted.
func (b *Backend) Edges() [][2]int {
	out := make([][2]int, len(b.edges))
	copy(out, b.edges)
	return out
}

// EdgesBidir returns every edge in both directions.
func (b *Backend) EdgesBidir() [][2]int {
	out := make([][2]int, 0, 2*len(b.edges))
	for _, e := range b.edges {
		out = append(out, e, [2]int{e[1], e[0]})
	}
	return out
}

// Degree is the coupler count of a physical qubit.
func (b *Backend) Degree(phys int) int {
	if phys < 0 || phys >= b.numQubits {
		return 0
	}
	return len(b.neighbors[phys])
}

// Supports reports whether the backend implements the named operation.
func (b *Backend) Supports(op string) bool {
	return b.operations[op]
}

// Operations returns the supported operation names in sorted order.
func (b *Backend) Operations() []string {
	out := make([]string, 0, len(b.operations))
	for op := range b.operations {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Distance returns the BFS hop count between two physical qubits,
// skipping blocked indices. Returns -1 when no path exists.
func (b *Backend) Distance(from, to int, blocked map[int]bool) int {
	if from < 0 || from >= b.numQubits || to < 0 || to >= b.numQubits {
		return -1
	}
	if blocked[from] || blocked[to] {
		return -1
	}
	if from == to {
		return 0
	}
	seen := map[int]bool{from: true}
	frontier := []int{from}
	for dist := 1; len(frontier) > 0; dist++ {
		var next []int
		for _, q := range frontier {
			for n := range b.neighbors[q] {
				if seen[n] || blocked[n] {
					continue
				}
				if n == to {
					return dist
				}
				seen[n] = true
				next = append(next, n)
			}
		}
		frontier = next
	}
	return -1
}

// ArchHash identifies the backend architecture: two backends with the
// same qubit count, coupling map and operation set hash equal
// regardless of name.
func (b *Backend) ArchHash() uint64 {
	return b.archHash
}

func (b *Backend) computeArchHash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "q%d;", b.numQubits)
	for _, e := range b.edges {
		fmt.Fprintf(h, "e%d-%d;", e[0], e[1])
	}
	for _, op := range b.Operations() {
		fmt.Fprintf(h, "o%s;", op)
	}
	return h.Sum64()
}

// Linear returns a line-topology backend, qubit i coupled to i+1.
func Linear(name string, numQubits int, operations []string) (*Backend, error) {
	couplers := make([][2]int, 0, numQubits-1)
	for i := 0; i+1 < numQubits; i++ {
		couplers = append(couplers, [2]int{i, i + 1})
	}
	return New(name, numQubits, couplers, operations)
}

// Grid returns a rows-by-cols lattice backend.
func Grid(name string, rows, cols int, operations []string) (*Backend, error) {
	var couplers [][2]int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			q := r*cols + c
			if c+1 < cols {
				couplers = append(couplers, [2]int{q, q + 1})
			}
			if r+1 < rows {
				couplers = append(couplers, [2]int{q, q + cols})
			}
		}
	}
	return New(name, rows*cols, couplers, operations)
}
