package manager

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
	"qcpack/internal/packer"
	"qcpack/internal/translate"
)

// IndexKey is the metadata key carrying each circuit's position in the
// caller's input order, so results can be matched back after packing.
const IndexKey = "index"

// RearrangeOptions configures one end-to-end packing run.
type RearrangeOptions struct {
	// Packer selects and parameterizes the layout solver.
	Packer packer.Packer

	// Translator adapts circuits to backend operation sets. Nil means
	// the basis-checking default.
	Translator translate.Translator

	// AllowReorder lets the run sort circuits before packing: circuits
	// with larger pre-set layouts first, then denser interaction
	// graphs, then more qubits. Results keep their original index in
	// metadata either way.
	AllowReorder bool

	Logger logrus.FieldLogger
}

// Result is a finished packing run.
type Result struct {
	// Hosts maps backend name to realized host circuits, one per
	// non-empty bin in creation order.
	Hosts map[string][]*circuit.Circuit

	// Manager retains the run's bins for inspection.
	Manager *Manager
}

// Rearrange packs a batch of circuits onto the given backends and
// realizes the resulting bins. Each input circuit is tagged with its
// original index, pruned of idle qubits, optionally reordered, then
// placed.
func Rearrange(ctx context.Context, circuits []*circuit.Circuit, backends []*backend.Backend, opts RearrangeOptions) (*Result, error) {
	if len(circuits) == 0 {
		return nil, fmt.Errorf("%w: no circuits to pack", errdefs.ErrMissingParameter)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no backends to pack onto", errdefs.ErrMissingParameter)
	}
	if opts.Packer == nil {
		return nil, fmt.Errorf("%w: no packer configured", errdefs.ErrMissingParameter)
	}
	if err := validateLayouts(circuits, backends); err != nil {
		return nil, err
	}

	prepared := make([]*circuit.Circuit, len(circuits))
	for i, c := range circuits {
		p := c.Copy()
		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		p.Metadata[IndexKey] = i
		p, _ = circuit.RemoveIdleQubits(p, p.Layout())
		prepared[i] = p
	}
	if opts.AllowReorder {
		sortForPacking(prepared)
	}

	table := translate.NewTable(opts.Translator, opts.Logger)
	m, err := New(backends, opts.Packer, table, opts.Logger)
	if err != nil {
		return nil, err
	}
	if err := m.Place(ctx, prepared); err != nil {
		return nil, err
	}
	return &Result{Hosts: m.Realize(), Manager: m}, nil
}

// validateLayouts rejects the ambiguous combination of explicit
// per-circuit layouts with multiple target backends, and checks that
// any supplied layout is internally consistent.
func validateLayouts(circuits []*circuit.Circuit, backends []*backend.Backend) error {
	withLayout := 0
	for _, c := range circuits {
		l := c.Layout()
		if l == nil || l.Size() == 0 {
			continue
		}
		withLayout++
		if err := l.Validate(); err != nil {
			return fmt.Errorf("circuit %q: %w", c.Name, err)
		}
	}
	if withLayout > 0 && len(backends) > 1 {
		return fmt.Errorf("%w: explicit circuit layouts cannot be combined with multiple backends",
			errdefs.ErrInvalidParameter)
	}
	return nil
}

// sortForPacking orders circuits so the hardest-to-place go first:
// larger pre-set layouts, then denser interaction graphs, then higher
// qubit counts.
func sortForPacking(circuits []*circuit.Circuit) {
	density := func(c *circuit.Circuit) float64 {
		if c.NumQubits < 2 {
			return 0
		}
		possible := c.NumQubits * (c.NumQubits - 1) / 2
		return float64(len(c.Edges())) / float64(possible)
	}
	layoutSize := func(c *circuit.Circuit) int {
		if l := c.Layout(); l != nil {
			return l.Size()
		}
		return 0
	}
	sort.SliceStable(circuits, func(i, j int) bool {
		if a, b := layoutSize(circuits[i]), layoutSize(circuits[j]); a != b {
			return a > b
		}
		if a, b := density(circuits[i]), density(circuits[j]); a != b {
			return a > b
		}
		return circuits[i].NumQubits > circuits[j].NumQubits
	})
}

// OriginalIndex reads back the input position a hosted circuit had
// before any reordering.
func OriginalIndex(meta map[string]any) (int, error) {
	raw, ok := meta[IndexKey]
	if !ok {
		return 0, fmt.Errorf("%w: hosted circuit carries no index", errdefs.ErrMissingInformation)
	}
	idx, ok := raw.(int)
	if !ok {
		return 0, fmt.Errorf("%w: hosted circuit index has unexpected type %T", errdefs.ErrMissingInformation, raw)
	}
	return idx, nil
}
