// Package packer decides where a circuit's virtual qubits land on a
// bin's backend. Every concrete packer satisfies the same contract:
// given a bin, a circuit with a possibly partial layout, and a set of
// forbidden physical indices, either complete the layout so that every
// circuit edge sits on a backend coupler, or report that no such
// completion exists. "No layout" is a normal negative result, not an
// error.
package packer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"qcpack/internal/bin"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
	"qcpack/internal/layout"
	"qcpack/internal/logging"
)

// Exploration orders for the embedding packers.
const (
	OrderIndex        = "index"
	OrderConnectivity = "connectivity"
)

// Options are the policy knobs shared by all packers.
type Options struct {
	// MinIntraDistance is the minimum separation between two
	// same-circuit qubits that do not share an interaction edge.
	// 0 allows arbitrarily dense packing; 1 forbids placing
	// non-interacting qubits on adjacent positions. Other values are
	// rejected.
	MinIntraDistance int

	// MinInterDistance expands the blocked set outward by this many
	// topology hops around taken positions, spacing circuits apart.
	MinInterDistance int

	// MaxBinsPerBackend caps how many bins one backend may grow.
	// 0 means unlimited.
	MaxBinsPerBackend int

	// MaxCandidates is how many successful placements the manager
	// evaluates before committing to the best. 0 or 1 means the first
	// success wins.
	MaxCandidates int

	// Timeout bounds one solve call.
	Timeout time.Duration

	// Seed feeds the exact solver's search randomization. Retry
	// attempts derive their own seeds from it.
	Seed int64

	// MaxAttempts is how often an indecisive (timed out) exact solve
	// is retried before it counts as "no layout".
	MaxAttempts int

	// CallBudget caps the embedding packers' extension attempts per
	// solve.
	CallBudget int

	// Order selects the embedding exploration order, OrderIndex or
	// OrderConnectivity.
	Order string
}

func (o Options) withDefaults() Options {
	if o.MaxCandidates < 1 {
		o.MaxCandidates = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.CallBudget < 1 {
		o.CallBudget = 100000
	}
	if o.Order == "" {
		o.Order = OrderConnectivity
	}
	return o
}

// Packer is the layout-solving policy the bin manager drives.
type Packer interface {
	Options() Options

	// Blocked computes the forbidden physical set for a bin: its taken
	// positions, expanded outward by MinInterDistance hops.
	Blocked(b *bin.Bin) map[int]bool

	// Evaluate scores a candidate placement; higher is better.
	Evaluate(b *bin.Bin, candidate *layout.Layout) float64

	// FindLayout completes the circuit's layout on the bin's backend,
	// avoiding blocked positions. Returns (nil, nil) when no layout
	// exists or the search budget ran out. The input circuit is never
	// mutated.
	FindLayout(ctx context.Context, b *bin.Bin, c *circuit.Circuit, blocked map[int]bool) (*layout.Layout, error)
}

// base carries the shared knobs and the default blocked/evaluate
// policies.
type base struct {
	opts Options
	log  logrus.FieldLogger
}

func newBase(opts Options, log logrus.FieldLogger) (base, error) {
	if opts.MinIntraDistance != 0 && opts.MinIntraDistance != 1 {
		return base{}, fmt.Errorf("%w: min_intra_distance must be 0 or 1, got %d",
			errdefs.ErrInvalidParameter, opts.MinIntraDistance)
	}
	if opts.MinInterDistance < 0 {
		return base{}, fmt.Errorf("%w: min_inter_distance must be non-negative, got %d",
			errdefs.ErrInvalidParameter, opts.MinInterDistance)
	}
	opts = opts.withDefaults()
	if log == nil {
		log = logging.GetPackerLogger()
	}
	if opts.MinInterDistance < opts.MinIntraDistance {
		log.WithFields(logrus.Fields{
			"min_intra_distance": opts.MinIntraDistance,
			"min_inter_distance": opts.MinInterDistance,
		}).Warn("Inter-circuit distance is smaller than intra-circuit distance")
	}
	return base{opts: opts, log: log}, nil
}

func (p *base) Options() Options { return p.opts }

func (p *base) Blocked(b *bin.Bin) map[int]bool {
	blocked := b.Taken()
	for hop := 0; hop < p.opts.MinInterDistance; hop++ {
		grown := make(map[int]bool, len(blocked))
		for q := range blocked {
			grown[q] = true
			for n := range b.Backend().Neighbors(q) {
				grown[n] = true
			}
		}
		blocked = grown
	}
	return blocked
}

// Evaluate returns the negative count of backend edges the candidate
// newly consumes: edges touching a candidate position that no earlier
// placement already touched. Fewer newly consumed edges scores higher,
// so filling a partly used bin is not penalized for what it already
// holds.
func (p *base) Evaluate(b *bin.Bin, candidate *layout.Layout) float64 {
	occupied := b.Occupied()
	placed := make(map[int]bool, candidate.Size())
	for _, phys := range candidate.V2P() {
		placed[phys] = true
	}
	consumed := 0
	for _, e := range b.Backend().Edges() {
		if occupied[e[0]] || occupied[e[1]] {
			continue
		}
		if placed[e[0]] || placed[e[1]] {
			consumed++
		}
	}
	return float64(-consumed)
}

// New selects a concrete packer by implementation name. Valid names:
// "exact", "exact-optimizing", "embed", "embed-best".
func New(implementation string, opts Options, log logrus.FieldLogger) (Packer, error) {
	switch implementation {
	case "exact":
		return NewExact(opts, log)
	case "exact-optimizing":
		return NewExactOptimizing(opts, log)
	case "embed":
		return NewEmbed(opts, log)
	case "embed-best":
		return NewEmbedBest(opts, log)
	case "":
		return nil, fmt.Errorf("%w: packer implementation not set", errdefs.ErrMissingParameter)
	default:
		return nil, fmt.Errorf("%w: unknown packer implementation %q", errdefs.ErrInvalidParameter, implementation)
	}
}
