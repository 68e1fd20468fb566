// Package manager orchestrates one packing run: it ranks candidate
// bins across backends, drives the packer to find layouts, commits
// placements one circuit at a time, and finally realizes every bin
// into a host circuit.
package manager

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/bin"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
	"qcpack/internal/logging"
	"qcpack/internal/packer"
	"qcpack/internal/translate"
)

// Manager owns the bins of one packing run. It is single-writer:
// circuits are placed strictly one after another, because each
// placement's blocked and compatibility checks read the occupancy the
// previous one left behind.
type Manager struct {
	backends []*backend.Backend
	pk       packer.Packer
	table    *translate.Table
	bins     map[string][]*bin.Bin
	order    []string
	log      logrus.FieldLogger
}

func New(backends []*backend.Backend, pk packer.Packer, table *translate.Table, log logrus.FieldLogger) (*Manager, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: at least one backend is required", errdefs.ErrMissingParameter)
	}
	if pk == nil {
		return nil, fmt.Errorf("%w: a packer is required", errdefs.ErrMissingParameter)
	}
	if table == nil {
		table = translate.NewTable(nil, log)
	}
	if log == nil {
		log = logging.GetPackerLogger()
	}
	m := &Manager{
		backends: backends,
		pk:       pk,
		table:    table,
		bins:     make(map[string][]*bin.Bin, len(backends)),
		log:      log,
	}
	seen := make(map[string]bool, len(backends))
	for _, b := range backends {
		if seen[b.Name()] {
			return nil, fmt.Errorf("%w: duplicate backend name %q", errdefs.ErrInvalidParameter, b.Name())
		}
		seen[b.Name()] = true
		m.bins[b.Name()] = nil
		m.order = append(m.order, b.Name())
	}
	return m, nil
}

// Bins returns the bins of one backend in creation order.
func (m *Manager) Bins(backendName string) []*bin.Bin {
	return m.bins[backendName]
}

// NumBins counts all bins across backends.
func (m *Manager) NumBins() int {
	n := 0
	for _, bins := range m.bins {
		n += len(bins)
	}
	return n
}

// Place packs the circuits in order. Any circuit that no backend, bin
// and layout combination can host fails the whole run with
// ErrBackendCompatibility.
func (m *Manager) Place(ctx context.Context, circuits []*circuit.Circuit) error {
	for _, c := range circuits {
		if err := m.placeCircuit(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) placeCircuit(ctx context.Context, c *circuit.Circuit) error {
	hosts, err := m.table.Best(c, m.backends)
	if err != nil {
		return err
	}
	hostNames := make(map[string]bool, len(hosts))
	for _, b := range hosts {
		hostNames[b.Name()] = true
	}

	log := m.log.WithField("circuit", c.Name)
	var best *placement
	successes := 0
	maxCandidates := m.pk.Options().MaxCandidates
	for _, cb := range m.candidateBins(hostNames) {
		translated, err := m.table.Translated(c, cb.Backend())
		if err != nil {
			return err
		}
		if translated == nil || !cb.Compatible(translated) {
			continue
		}
		blocked := m.pk.Blocked(cb)
		l, err := m.pk.FindLayout(ctx, cb, translated, blocked)
		if err != nil {
			return err
		}
		if l == nil {
			continue
		}
		value := m.pk.Evaluate(cb, l)
		// Stable tie-break: the first candidate found keeps the slot.
		if best == nil || value > best.value {
			best = &placement{bin: cb, circ: translated.WithLayout(l), value: value}
		}
		successes++
		if successes >= maxCandidates {
			break
		}
	}
	if best == nil {
		return fmt.Errorf("%w: circuit %q", errdefs.ErrBackendCompatibility, c.Name)
	}
	if err := m.commit(best); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"bin":     best.bin.Label(),
		"backend": best.bin.Backend().Name(),
		"score":   best.value,
	}).Info("Placed circuit")
	return nil
}

type placement struct {
	bin   *bin.Bin
	circ  *circuit.Circuit
	value float64
}

func (m *Manager) commit(p *placement) error {
	if err := p.bin.Place(p.circ); err != nil {
		return err
	}
	name := p.bin.Backend().Name()
	for _, existing := range m.bins[name] {
		if existing == p.bin {
			return nil
		}
	}
	m.bins[name] = append(m.bins[name], p.bin)
	return nil
}

// candidateBins lists existing bins of the eligible backends plus one
// fresh lazy bin per backend still under its admission cap, ranked
// cheapest-first: by bin count times backend cost, then non-empty
// before empty, then smaller backends first.
func (m *Manager) candidateBins(eligible map[string]bool) []*bin.Bin {
	type ranked struct {
		b     *bin.Bin
		cost  float64
		empty bool
		size  int
		pos   int
	}
	var out []ranked
	maxBins := m.pk.Options().MaxBinsPerBackend
	for _, name := range m.order {
		if !eligible[name] {
			continue
		}
		var be *backend.Backend
		for _, b := range m.backends {
			if b.Name() == name {
				be = b
				break
			}
		}
		existing := m.bins[name]
		for _, b := range existing {
			out = append(out, ranked{
				b:     b,
				cost:  float64(len(existing)) * be.Cost(),
				empty: b.NumCircuits() == 0,
				size:  be.NumQubits(),
				pos:   len(out),
			})
		}
		if maxBins == 0 || len(existing) < maxBins {
			fresh := bin.New(fmt.Sprintf("%s-%d", name, len(existing)), be)
			out = append(out, ranked{
				b:     fresh,
				cost:  float64(len(existing)+1) * be.Cost(),
				empty: true,
				size:  be.NumQubits(),
				pos:   len(out),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].cost != out[j].cost {
			return out[i].cost < out[j].cost
		}
		if out[i].empty != out[j].empty {
			return !out[i].empty
		}
		if out[i].size != out[j].size {
			return out[i].size < out[j].size
		}
		return out[i].pos < out[j].pos
	})
	bins := make([]*bin.Bin, len(out))
	for i, r := range out {
		bins[i] = r.b
	}
	return bins
}

// Realize flattens every non-empty bin, returning the host circuits
// per backend name in bin creation order.
func (m *Manager) Realize() map[string][]*circuit.Circuit {
	out := make(map[string][]*circuit.Circuit, len(m.bins))
	for _, name := range m.order {
		for _, b := range m.bins[name] {
			if b.NumCircuits() == 0 {
				continue
			}
			out[name] = append(out[name], b.Realize())
		}
	}
	return out
}
