package packer

import (
	"context"
	"fmt"

	"github.com/gitrdm/gokanlogic/pkg/minikanren"
	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/bin"
	"qcpack/internal/circuit"
	"qcpack/internal/layout"
)

// Exact solves placement as a finite-domain constraint problem: one
// position variable per virtual qubit over the free physical indices,
// an all-different constraint for injectivity, and one extensional
// table per circuit edge restricting the pair to the backend's
// couplers. Unsatisfiable means definitively no layout; a timeout is
// indecisive and retried with a different search seed.
type Exact struct {
	base
	optimize bool
}

func NewExact(opts Options, log logrus.FieldLogger) (*Exact, error) {
	b, err := newBase(opts, log)
	if err != nil {
		return nil, err
	}
	return &Exact{base: b}, nil
}

// NewExactOptimizing returns an exact packer that additionally
// minimizes a degree-weighted position penalty, steering circuits away
// from highly connected positions they do not need.
func NewExactOptimizing(opts Options, log logrus.FieldLogger) (*Exact, error) {
	b, err := newBase(opts, log)
	if err != nil {
		return nil, err
	}
	return &Exact{base: b, optimize: true}, nil
}

// formulation is one built model plus the handles needed to read a
// solution back.
type formulation struct {
	model *minikanren.Model
	vars  []*minikanren.FDVariable
	total *minikanren.FDVariable
	unsat bool
}

func (p *Exact) FindLayout(ctx context.Context, b *bin.Bin, c *circuit.Circuit, blocked map[int]bool) (*layout.Layout, error) {
	be := b.Backend()
	free := make([]int, 0, be.NumQubits())
	for q := 0; q < be.NumQubits(); q++ {
		if !blocked[q] {
			free = append(free, q)
		}
	}
	if c.NumQubits > len(free) {
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

	log := p.log.WithFields(logrus.Fields{
		"bin":     b.Label(),
		"circuit": c.Name,
	})
	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		f, err := p.formulate(c, be, free, fixed)
		if err != nil {
			return nil, err
		}
		if f.unsat {
			return nil, nil
		}
		sol, indecisive, err := p.solveOnce(ctx, f, attempt)
		if err != nil {
			return nil, err
		}
		if sol != nil {
			return solutionLayout(c, f, sol), nil
		}
		if !indecisive {
			return nil, nil
		}
		log.WithField("attempt", attempt).Debug("Solver timed out, retrying with a new seed")
	}
	log.Debug("All solver attempts were indecisive")
	return nil, nil
}

// solveOnce runs one seeded attempt. indecisive means the deadline
// expired before the search settled either way.
func (p *Exact) solveOnce(ctx context.Context, f *formulation, attempt int) (sol []int, indecisive bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	cfg := minikanren.DefaultSolverConfig()
	cfg.RandomSeed = p.opts.Seed*31 + int64(attempt)
	solver := minikanren.NewSolverWithConfig(f.model, cfg)

	sctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if p.optimize && f.total != nil {
		// An incumbent returned on deadline is still a valid placement.
		sol, _, serr := solver.SolveOptimalWithOptions(sctx, f.total, true,
			minikanren.WithTimeLimit(p.opts.Timeout))
		if sol != nil {
			return sol, false, nil
		}
		return nil, serr != nil, nil
	}

	sols, serr := solver.Solve(sctx, 1)
	if len(sols) > 0 {
		return sols[0], false, nil
	}
	return nil, serr != nil, nil
}

// formulate builds the FD model. Domains are 1-based: physical index p
// is encoded as value p+1.
func (p *Exact) formulate(c *circuit.Circuit, be *backend.Backend, free []int, fixed map[int]int) (*formulation, error) {
	m := minikanren.NewModel()

	freeVals := make([]int, len(free))
	freeSet := make(map[int]bool, len(free))
	for i, q := range free {
		freeVals[i] = q + 1
		freeSet[q] = true
	}
	vars := make([]*minikanren.FDVariable, c.NumQubits)
	for v := 0; v < c.NumQubits; v++ {
		name := fmt.Sprintf("q%d", v)
		if phys, ok := fixed[v]; ok {
			vars[v] = m.NewVariableWithName(minikanren.DomainValues(phys+1), name)
			continue
		}
		vars[v] = m.NewVariableWithName(minikanren.DomainValues(freeVals...), name)
	}
	if err := m.AllDifferent(vars...); err != nil {
		return nil, fmt.Errorf("exact packer: %w", err)
	}

	edges := c.Edges()
	hasEdge := make(map[[2]int]bool, len(edges))
	adjacent := pairRows(be, freeSet, true)
	for _, e := range edges {
		hasEdge[e] = true
		if len(adjacent) == 0 {
			return &formulation{unsat: true}, nil
		}
		t, err := minikanren.NewTable([]*minikanren.FDVariable{vars[e[0]], vars[e[1]]}, adjacent)
		if err != nil {
			return nil, fmt.Errorf("exact packer: %w", err)
		}
		m.AddConstraint(t)
	}

	if p.opts.MinIntraDistance == 1 && c.NumQubits > 1 {
		apart := pairRows(be, freeSet, false)
		for a := 0; a < c.NumQubits; a++ {
			for z := a + 1; z < c.NumQubits; z++ {
				if hasEdge[[2]int{a, z}] {
					continue
				}
				if len(apart) == 0 {
					return &formulation{unsat: true}, nil
				}
				t, err := minikanren.NewTable([]*minikanren.FDVariable{vars[a], vars[z]}, apart)
				if err != nil {
					return nil, fmt.Errorf("exact packer: %w", err)
				}
				m.AddConstraint(t)
			}
		}
	}

	f := &formulation{model: m, vars: vars}
	if p.optimize {
		if err := addDegreeObjective(f, be, free, freeSet); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// pairRows lists the ordered free position pairs that are adjacent
// (or, with adjacent=false, non-adjacent), 1-based for table rows.
func pairRows(be *backend.Backend, freeSet map[int]bool, adjacent bool) [][]int {
	var rows [][]int
	for a := range freeSet {
		for z := range freeSet {
			if a == z {
				continue
			}
			if be.Adjacent(a, z) == adjacent {
				rows = append(rows, []int{a + 1, z + 1})
			}
		}
	}
	return rows
}

// addDegreeObjective posts the soft position penalty: each used free
// position costs its degree within the free subgraph, and the solver
// minimizes the weighted total. Count variables encode count+1, which
// only shifts the objective by a constant.
func addDegreeObjective(f *formulation, be *backend.Backend, free []int, freeSet map[int]bool) error {
	var countVars []*minikanren.FDVariable
	var weights []int
	sum := 0
	for _, q := range free {
		deg := 0
		for n := range be.Neighbors(q) {
			if freeSet[n] {
				deg++
			}
		}
		if deg == 0 {
			continue
		}
		cv := f.model.IntVar(1, len(f.vars)+1, fmt.Sprintf("use%d", q))
		if _, err := minikanren.NewCount(f.model, f.vars, q+1, cv); err != nil {
			return fmt.Errorf("exact packer: %w", err)
		}
		countVars = append(countVars, cv)
		weights = append(weights, deg)
		sum += deg
	}
	if len(countVars) == 0 {
		return nil
	}
	total := f.model.IntVar(sum, sum*(len(f.vars)+1), "penalty")
	if err := f.model.LinearSum(countVars, weights, total); err != nil {
		return fmt.Errorf("exact packer: %w", err)
	}
	f.total = total
	return nil
}

// solutionLayout decodes a raw solution vector into a completed copy
// of the circuit's layout.
func solutionLayout(c *circuit.Circuit, f *formulation, sol []int) *layout.Layout {
	var l *layout.Layout
	if existing := c.Layout(); existing != nil {
		l = existing.Copy()
	} else {
		l = layout.New()
	}
	for v, fdv := range f.vars {
		l.Add(v, sol[fdv.ID()]-1)
	}
	return l
}
