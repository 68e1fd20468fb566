// Package translate is the boundary to gate-set translation. The
// engine never rewrites gates itself; it asks a Translator whether a
// circuit can run on a backend's operation set and memoizes the
// answers per circuit and architecture.
package translate

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
	"qcpack/internal/logging"
)

// Translator converts a circuit into one using only the target
// backend's operations, at most two operands each. It may relabel
// qubits but must keep the qubit count and any partial layout
// meaningful. Returning (nil, nil) means the circuit cannot be
// translated for this backend, a normal negative outcome.
type Translator interface {
	Translate(c *circuit.Circuit, target *backend.Backend) (*circuit.Circuit, error)
}

// BasisChecker is the default Translator: it performs no rewriting,
// it only admits circuits already expressed in the backend's basis.
type BasisChecker struct{}

func (BasisChecker) Translate(c *circuit.Circuit, target *backend.Backend) (*circuit.Circuit, error) {
	for _, op := range c.Operations {
		if len(op.Qubits) > 2 {
			return nil, nil
		}
		if !target.Supports(op.Name) {
			return nil, nil
		}
	}
	return c, nil
}

// tableKey identifies one translation: a circuit structure on one
// architecture. Equivalent architectures share entries.
type tableKey struct {
	arch uint64
	circ uint64
}

type tableEntry struct {
	translated *circuit.Circuit
	depth      int
	ok         bool
}

// Table memoizes translation results across circuits and backends.
// Identical circuits and architecture-equivalent backends hit the same
// entry, so a batch of repeated circuits is translated once.
type Table struct {
	translator Translator
	entries    map[tableKey]tableEntry
	log        logrus.FieldLogger
}

func NewTable(translator Translator, log logrus.FieldLogger) *Table {
	if translator == nil {
		translator = BasisChecker{}
	}
	if log == nil {
		log = logging.GetLogger()
	}
	return &Table{
		translator: translator,
		entries:    make(map[tableKey]tableEntry),
		log:        log,
	}
}

// Translated returns the memoized translation of c for the backend's
// architecture; (nil, nil) when the circuit cannot run there.
func (t *Table) Translated(c *circuit.Circuit, target *backend.Backend) (*circuit.Circuit, error) {
	key := tableKey{arch: target.ArchHash(), circ: c.Hash(false)}
	if e, ok := t.entries[key]; ok {
		if !e.ok {
			return nil, nil
		}
		return withIdentity(e.translated, c), nil
	}
	translated, err := t.translator.Translate(c, target)
	if err != nil {
		return nil, fmt.Errorf("translating circuit %q for backend %s: %w", c.Name, target.Name(), err)
	}
	if translated == nil {
		t.entries[key] = tableEntry{}
		t.log.WithFields(logrus.Fields{
			"circuit": c.Name,
			"backend": target.Name(),
		}).Debug("Circuit not translatable for backend")
		return nil, nil
	}
	t.entries[key] = tableEntry{translated: translated, depth: translated.Depth(), ok: true}
	return withIdentity(translated, c), nil
}

// withIdentity rebinds a memoized translation to one concrete source
// circuit: its name, metadata and layout, which the structural memo
// key deliberately ignores.
func withIdentity(translated, src *circuit.Circuit) *circuit.Circuit {
	out := translated.WithLayout(src.Layout())
	out.Name = src.Name
	out.Metadata = src.Metadata
	return out
}

// Best returns the backends on which the circuit translates with
// minimal depth, in input order. A circuit translatable nowhere fails
// with ErrBackendCompatibility.
func (t *Table) Best(c *circuit.Circuit, backends []*backend.Backend) ([]*backend.Backend, error) {
	bestDepth := -1
	var best []*backend.Backend
	for _, b := range backends {
		translated, err := t.Translated(c, b)
		if err != nil {
			return nil, err
		}
		if translated == nil {
			continue
		}
		d := t.entries[tableKey{arch: b.ArchHash(), circ: c.Hash(false)}].depth
		switch {
		case bestDepth < 0 || d < bestDepth:
			bestDepth = d
			best = []*backend.Backend{b}
		case d == bestDepth:
			best = append(best, b)
		}
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("%w: circuit %q cannot be translated for any backend",
			errdefs.ErrBackendCompatibility, c.Name)
	}
	return best, nil
}
