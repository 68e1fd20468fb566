// Package circuit holds a minimal gate-level circuit representation:
// qubit and classical-bit counts, a flat operation list, named
// classical registers, and free-form metadata. A circuit may carry a
// layout binding its virtual qubits to physical backend qubits.
package circuit

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"qcpack/internal/layout"
)

// Operation is one gate application. Qubits are virtual indices;
// Clbits index the circuit's flat classical bit space. Params carries
// gate angles and similar numeric arguments.
type Operation struct {
	Name   string
	Qubits []int
	Clbits []int
	Params []float64
}

// Register is a named classical register of a given width. A
// circuit's registers partition its classical bit space in order.
type Register struct {
	Name string
	Size int
}

type Circuit struct {
	Name       string
	NumQubits  int
	NumClbits  int
	Operations []Operation
	Registers  []Register
	Metadata   map[string]any

	layout *layout.Layout
}

func New(name string, numQubits, numClbits int) *Circuit {
	return &Circuit{
		Name:      name,
		NumQubits: numQubits,
		NumClbits: numClbits,
	}
}

// Append adds an operation to the end of the circuit.
func (c *Circuit) Append(op Operation) {
	c.Operations = append(c.Operations, op)
}

// Layout returns the attached layout, or nil.
func (c *Circuit) Layout() *layout.Layout {
	return c.layout
}

// SetLayout attaches a layout in place.
func (c *Circuit) SetLayout(l *layout.Layout) {
	c.layout = l
}

// WithLayout returns a shallow copy of the circuit carrying the given
// layout. Operations and registers are shared with the receiver.
func (c *Circuit) WithLayout(l *layout.Layout) *Circuit {
	cp := *c
	cp.layout = l
	return &cp
}

// Copy returns a deep copy, layout included.
func (c *Circuit) Copy() *Circuit {
	cp := New(c.Name, c.NumQubits, c.NumClbits)
	cp.Operations = make([]Operation, len(c.Operations))
	for i, op := range c.Operations {
		cp.Operations[i] = Operation{
			Name:   op.Name,
			Qubits: append([]int(nil), op.Qubits...),
			Clbits: append([]int(nil), op.Clbits...),
			Params: append([]float64(nil), op.Params...),
		}
	}
	cp.Registers = append([]Register(nil), c.Registers...)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	if c.layout != nil {
		cp.layout = c.layout.Copy()
	}
	return cp
}

// GateCounts returns operation name to occurrence count.
func (c *Circuit) GateCounts() map[string]int {
	counts := make(map[string]int)
	for _, op := range c.Operations {
		counts[op.Name]++
	}
	return counts
}

// interacting reports whether an operation couples its operands.
// Barriers order execution without introducing qubit interaction.
func interacting(op Operation) bool {
	return op.Name != "barrier" && len(op.Qubits) > 1
}

// NeighborSets returns, per virtual qubit, the set of qubits it shares
// a multi-qubit operation with.
func (c *Circuit) NeighborSets() []map[int]bool {
	sets := make([]map[int]bool, c.NumQubits)
	for i := range sets {
		sets[i] = make(map[int]bool)
	}
	for _, op := range c.Operations {
		if !interacting(op) {
			continue
		}
		for _, a := range op.Qubits {
			for _, b := range op.Qubits {
				if a != b {
					sets[a][b] = true
				}
			}
		}
	}
	return sets
}

// Edges returns the interaction graph as canonical undirected edges,
// lower index first, sorted.
func (c *Circuit) Edges() [][2]int {
	sets := c.NeighborSets()
	var edges [][2]int
	for q, set := range sets {
		for n := range set {
			if q < n {
				edges = append(edges, [2]int{q, n})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// ConnectedComponents partitions the virtual qubits by interaction
// graph connectivity. Idle qubits form singleton components.
// Components are ordered by their smallest member.
func (c *Circuit) ConnectedComponents() [][]int {
	sets := c.NeighborSets()
	seen := make([]bool, c.NumQubits)
	var components [][]int
	for start := 0; start < c.NumQubits; start++ {
		if seen[start] {
			continue
		}
		var comp []int
		frontier := []int{start}
		seen[start] = true
		for len(frontier) > 0 {
			q := frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
			comp = append(comp, q)
			for n := range sets[q] {
				if !seen[n] {
					seen[n] = true
					frontier = append(frontier, n)
				}
			}
		}
		sort.Ints(comp)
		components = append(components, comp)
	}
	return components
}

// ActiveQubits returns the set of virtual qubits touched by at least
// one non-barrier operation.
func (c *Circuit) ActiveQubits() map[int]bool {
	active := make(map[int]bool)
	for _, op := range c.Operations {
		if op.Name == "barrier" {
			continue
		}
		for _, q := range op.Qubits {
			active[q] = true
		}
	}
	return active
}

// Depth is the length of the longest dependency chain over qubits and
// classical bits. Barriers synchronize but add no depth.
func (c *Circuit) Depth() int {
	qDepth := make([]int, c.NumQubits)
	cDepth := make([]int, c.NumClbits)
	max := 0
	for _, op := range c.Operations {
		level := 0
		for _, q := range op.Qubits {
			if qDepth[q] > level {
				level = qDepth[q]
			}
		}
		for _, b := range op.Clbits {
			if cDepth[b] > level {
				level = cDepth[b]
			}
		}
		if op.Name != "barrier" {
			level++
		}
		for _, q := range op.Qubits {
			qDepth[q] = level
		}
		for _, b := range op.Clbits {
			cDepth[b] = level
		}
		if level > max {
			max = level
		}
	}
	return max
}

// Hash fingerprints the circuit structure: qubit and clbit counts plus
// the ordered operation stream. With meta set, the name and a
// JSON-serialized view of the metadata are mixed in as well.
func (c *Circuit) Hash(meta bool) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "q%d;c%d;", c.NumQubits, c.NumClbits)
	for _, op := range c.Operations {
		fmt.Fprintf(h, "%s%v%v%v;", op.Name, op.Qubits, op.Clbits, op.Params)
	}
	if meta {
		fmt.Fprintf(h, "n%s;", c.Name)
		if c.Metadata != nil {
			keys := make([]string, 0, len(c.Metadata))
			for k := range c.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v, err := json.Marshal(c.Metadata[k])
				if err != nil {
					fmt.Fprintf(h, "m%s=?;", k)
					continue
				}
				fmt.Fprintf(h, "m%s=%s;", k, v)
			}
		}
	}
	return h.Sum64()
}

// RemoveIdleQubits drops qubits no operation touches, compacting the
// remaining indices, and shifts the layout to match. When the circuit
// has no idle qubits the inputs are returned unchanged, same pointers.
func RemoveIdleQubits(c *Circuit, l *layout.Layout) (*Circuit, *layout.Layout) {
	active := c.ActiveQubits()
	if len(active) == c.NumQubits {
		return c, l
	}
	remap := make(map[int]int, len(active))
	next := 0
	for q := 0; q < c.NumQubits; q++ {
		if active[q] {
			remap[q] = next
			next++
		}
	}
	out := New(c.Name, next, c.NumClbits)
	out.Registers = append([]Register(nil), c.Registers...)
	out.Metadata = c.Metadata
	for _, op := range c.Operations {
		qubits := make([]int, 0, len(op.Qubits))
		for _, q := range op.Qubits {
			nq, ok := remap[q]
			if !ok {
				continue
			}
			qubits = append(qubits, nq)
		}
		if len(qubits) == 0 && len(op.Clbits) == 0 {
			continue
		}
		out.Append(Operation{Name: op.Name, Qubits: qubits, Clbits: op.Clbits, Params: op.Params})
	}
	var outLayout *layout.Layout
	if l != nil {
		outLayout = l.Copy()
		for q := c.NumQubits - 1; q >= 0; q-- {
			if !active[q] {
				outLayout.RemoveVirtual(q, true)
			}
		}
	}
	out.layout = outLayout
	return out, outLayout
}
