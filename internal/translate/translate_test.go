package translate

import (
	"errors"
	"testing"

	"qcpack/internal/backend"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
)

// countingTranslator wraps BasisChecker and counts actual translation
// calls, exposing memoization behavior.
type countingTranslator struct {
	calls int
}

func (ct *countingTranslator) Translate(c *circuit.Circuit, target *backend.Backend) (*circuit.Circuit, error) {
	ct.calls++
	return BasisChecker{}.Translate(c, target)
}

func bell(name string) *circuit.Circuit {
	c := circuit.New(name, 2, 0)
	c.Append(circuit.Operation{Name: "h", Qubits: []int{0}})
	c.Append(circuit.Operation{Name: "cx", Qubits: []int{0, 1}})
	return c
}

func TestBasisChecker(t *testing.T) {
	full, _ := backend.Linear("full", 3, []string{"h", "cx"})
	narrow, _ := backend.Linear("narrow", 3, []string{"cx"})

	if out, err := (BasisChecker{}).Translate(bell("a"), full); err != nil || out == nil {
		t.Fatalf("expected success, got (%v, %v)", out, err)
	}
	if out, err := (BasisChecker{}).Translate(bell("a"), narrow); err != nil || out != nil {
		t.Fatalf("expected negative result, got (%v, %v)", out, err)
	}

	wide := circuit.New("wide", 3, 0)
	wide.Append(circuit.Operation{Name: "ccx", Qubits: []int{0, 1, 2}})
	three, _ := backend.Linear("three", 3, []string{"ccx"})
	if out, _ := (BasisChecker{}).Translate(wide, three); out != nil {
		t.Fatalf("3-operand operations must be rejected")
	}
}

func TestTableMemoizes(t *testing.T) {
	ct := &countingTranslator{}
	table := NewTable(ct, nil)
	ba, _ := backend.Linear("a", 3, []string{"h", "cx"})
	bb, _ := backend.Linear("b", 3, []string{"h", "cx"})

	if _, err := table.Translated(bell("one"), ba); err != nil {
		t.Fatalf("translate: %v", err)
	}
	// Same structure, same architecture (different name): both hits.
	if _, err := table.Translated(bell("two"), ba); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if _, err := table.Translated(bell("three"), bb); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if ct.calls != 1 {
		t.Fatalf("expected 1 translator call, got %d", ct.calls)
	}
}

func TestTranslatedKeepsIdentity(t *testing.T) {
	table := NewTable(nil, nil)
	b, _ := backend.Linear("b", 3, []string{"h", "cx"})

	one := bell("one")
	one.Metadata = map[string]any{"tag": 1}
	if _, err := table.Translated(one, b); err != nil {
		t.Fatalf("translate: %v", err)
	}
	two := bell("two")
	two.Metadata = map[string]any{"tag": 2}
	out, err := table.Translated(two, b)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Name != "two" || out.Metadata["tag"] != 2 {
		t.Fatalf("memoized result must carry the caller's identity, got %q %v", out.Name, out.Metadata)
	}
}

func TestBest(t *testing.T) {
	table := NewTable(nil, nil)
	yes, _ := backend.Linear("yes", 3, []string{"h", "cx"})
	no, _ := backend.Linear("no", 3, []string{"rz"})

	best, err := table.Best(bell("a"), []*backend.Backend{no, yes})
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if len(best) != 1 || best[0].Name() != "yes" {
		t.Fatalf("unexpected best set: %v", best)
	}

	_, err = table.Best(bell("a"), []*backend.Backend{no})
	if !errors.Is(err, errdefs.ErrBackendCompatibility) {
		t.Fatalf("expected ErrBackendCompatibility, got %v", err)
	}
}
