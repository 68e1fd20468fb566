package packer

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/bin"
	"qcpack/internal/circuit"
	"qcpack/internal/layout"
)

// Embed finds layouts by backtracking search for an injective mapping
// of the circuit's interaction graph into the backend's free coupling
// graph. With MinIntraDistance=1 the embedding is induced: circuit
// non-edges must land on backend non-edges too. Exploration is bounded
// by CallBudget extension attempts and the configured timeout.
//
// Two policies share the enumeration: first-match commits to the first
// embedding found, best-of-budget keeps enumerating until the budget
// or deadline runs out and returns the best-scoring embedding seen,
// ties won by discovery order.
type Embed struct {
	base
	best bool
}

func NewEmbed(opts Options, log logrus.FieldLogger) (*Embed, error) {
	b, err := newBase(opts, log)
	if err != nil {
		return nil, err
	}
	return &Embed{base: b}, nil
}

func NewEmbedBest(opts Options, log logrus.FieldLogger) (*Embed, error) {
	b, err := newBase(opts, log)
	if err != nil {
		return nil, err
	}
	return &Embed{base: b, best: true}, nil
}

func (p *Embed) FindLayout(ctx context.Context, b *bin.Bin, c *circuit.Circuit, blocked map[int]bool) (*layout.Layout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	be := b.Backend()
	freeCount := 0
	for q := 0; q < be.NumQubits(); q++ {
		if !blocked[q] {
			freeCount++
		}
	}
	if c.NumQubits > freeCount {
		return nil, nil
	}

	fixed := map[int]int{}
	if l := c.Layout(); l != nil {
		for v, phys := range l.V2P() {
			if blocked[phys] {
				return nil, nil
			}
			fixed[v] = phys
		}
	}

	e := &embedding{
		backend:  be,
		sets:     c.NeighborSets(),
		blocked:  blocked,
		fixed:    fixed,
		induced:  p.opts.MinIntraDistance == 1,
		budget:   p.opts.CallBudget,
		deadline: time.Now().Add(p.opts.Timeout),
		ctx:      ctx,
	}
	e.order = e.visitOrder(c.NumQubits, p.opts.Order)

	var found *layout.Layout
	bestScore := 0.0
	e.emit = func(v2p map[int]int) bool {
		l := assembled(c, v2p)
		if !p.best {
			found = l
			return false
		}
		score := p.Evaluate(b, l)
		if found == nil || score > bestScore {
			found, bestScore = l, score
		}
		return true
	}
	e.search(0, make(map[int]int, c.NumQubits), make(map[int]bool, c.NumQubits))
	if err := ctx.Err(); err != nil && found == nil {
		return nil, err
	}
	return found, nil
}

// embedding is the state of one bounded backtracking enumeration.
type embedding struct {
	backend  *backend.Backend
	sets     []map[int]bool
	blocked  map[int]bool
	fixed    map[int]int
	induced  bool
	order    []int
	budget   int
	deadline time.Time
	ctx      context.Context

	// emit receives each complete embedding; returning false stops the
	// enumeration.
	emit func(v2p map[int]int) bool
}

// visitOrder decides which virtual qubit to extend at each depth.
// Index order is plain 0..n-1; connectivity order greedily picks the
// qubit with the most already-ordered neighbors, breaking ties by
// degree then index, so the partial mapping stays connected and prunes
// early.
func (e *embedding) visitOrder(n int, order string) []int {
	if order != OrderConnectivity {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	placed := make([]bool, n)
	out := make([]int, 0, n)
	// Fixed qubits first: their positions are predetermined.
	for v := range e.fixed {
		if v >= 0 && v < n {
			placed[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	for len(out) < n {
		bestV, bestAnchored, bestDeg := -1, -1, -1
		for v := 0; v < n; v++ {
			if placed[v] {
				continue
			}
			anchored := 0
			for u := range e.sets[v] {
				if u < n && placed[u] {
					anchored++
				}
			}
			deg := len(e.sets[v])
			if anchored > bestAnchored || (anchored == bestAnchored && deg > bestDeg) {
				bestV, bestAnchored, bestDeg = v, anchored, deg
			}
		}
		placed[bestV] = true
		out = append(out, bestV)
	}
	return out
}

// search extends the partial mapping at depth d. Each candidate
// position tried costs one unit of budget.
func (e *embedding) search(d int, v2p map[int]int, used map[int]bool) bool {
	if d == len(e.order) {
		out := make(map[int]int, len(v2p))
		for v, p := range v2p {
			out[v] = p
		}
		return e.emit(out)
	}
	v := e.order[d]
	if phys, ok := e.fixed[v]; ok {
		if used[phys] || !e.consistent(v, phys, v2p) {
			return true
		}
		v2p[v] = phys
		used[phys] = true
		cont := e.search(d+1, v2p, used)
		delete(v2p, v)
		delete(used, phys)
		return cont
	}
	for phys := 0; phys < e.backend.NumQubits(); phys++ {
		if e.blocked[phys] || used[phys] {
			continue
		}
		if e.exhausted() {
			return false
		}
		e.budget--
		if !e.consistent(v, phys, v2p) {
			continue
		}
		v2p[v] = phys
		used[phys] = true
		cont := e.search(d+1, v2p, used)
		delete(v2p, v)
		delete(used, phys)
		if !cont {
			return false
		}
	}
	return true
}

func (e *embedding) exhausted() bool {
	if e.budget <= 0 {
		return true
	}
	if e.budget%256 == 0 {
		if e.ctx.Err() != nil || time.Now().After(e.deadline) {
			return true
		}
	}
	return false
}

// consistent checks v->phys against every mapped qubit: interaction
// edges must land on couplers, and under induced semantics non-edges
// must stay off couplers.
func (e *embedding) consistent(v, phys int, v2p map[int]int) bool {
	for u, up := range v2p {
		adj := e.backend.Adjacent(up, phys)
		if e.sets[v][u] {
			if !adj {
				return false
			}
		} else if e.induced && adj {
			return false
		}
	}
	return true
}

func assembled(c *circuit.Circuit, v2p map[int]int) *layout.Layout {
	var l *layout.Layout
	if existing := c.Layout(); existing != nil {
		l = existing.Copy()
	} else {
		l = layout.New()
	}
	for v, p := range v2p {
		l.Add(v, p)
	}
	return l
}
