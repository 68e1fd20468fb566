package manager

import (
	"context"
	"errors"
	"strings"
	"testing"

	"qcpack/internal/backend"
	"qcpack/internal/bin"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
	"qcpack/internal/layout"
	"qcpack/internal/packer"
)

var testOps = []string{"h", "cx", "measure", "barrier"}

func mustBackend(t *testing.T, name string, n int) *backend.Backend {
	t.Helper()
	b, err := backend.Linear(name, n, testOps)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	return b
}

func mustPacker(t *testing.T, opts packer.Options) packer.Packer {
	t.Helper()
	p, err := packer.NewEmbed(opts, nil)
	if err != nil {
		t.Fatalf("packer: %v", err)
	}
	return p
}

func pair(name string) *circuit.Circuit {
	c := circuit.New(name, 2, 2)
	c.Registers = []circuit.Register{{Name: "m", Size: 2}}
	c.Append(circuit.Operation{Name: "h", Qubits: []int{0}})
	c.Append(circuit.Operation{Name: "cx", Qubits: []int{0, 1}})
	c.Append(circuit.Operation{Name: "measure", Qubits: []int{0}, Clbits: []int{0}})
	c.Append(circuit.Operation{Name: "measure", Qubits: []int{1}, Clbits: []int{1}})
	return c
}

func ghz(name string, n int) *circuit.Circuit {
	c := circuit.New(name, n, 0)
	for i := 0; i+1 < n; i++ {
		c.Append(circuit.Operation{Name: "cx", Qubits: []int{i, i + 1}})
	}
	return c
}

func TestBinReuse(t *testing.T) {
	be := mustBackend(t, "line4", 4)
	m, err := New([]*backend.Backend{be}, mustPacker(t, packer.Options{MaxBinsPerBackend: 1}), nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if err := m.Place(context.Background(), []*circuit.Circuit{pair("a"), pair("b")}); err != nil {
		t.Fatalf("place: %v", err)
	}
	bins := m.Bins("line4")
	if len(bins) != 1 {
		t.Fatalf("expected both circuits in one bin, got %d bins", len(bins))
	}
	if bins[0].NumCircuits() != 2 {
		t.Fatalf("expected 2 circuits in the bin, got %d", bins[0].NumCircuits())
	}
	// Non-overlap: every position claimed at most once.
	if got := len(bins[0].Occupied()); got != 4 {
		t.Fatalf("expected 4 distinct occupied positions, got %d", got)
	}
}

func TestMaxCandidatesReusesBin(t *testing.T) {
	be := mustBackend(t, "line6", 6)
	m, err := New([]*backend.Backend{be}, mustPacker(t, packer.Options{MaxCandidates: 2}), nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if err := m.Place(context.Background(), []*circuit.Circuit{pair("a"), pair("b")}); err != nil {
		t.Fatalf("place: %v", err)
	}
	// Scoring only newly consumed couplers, the half-full bin ties the
	// fresh one and wins as the first candidate. Scoring total consumed
	// couplers would wrongly open a second bin here.
	bins := m.Bins("line6")
	if len(bins) != 1 {
		t.Fatalf("expected the non-empty bin to be reused, got %d bins", len(bins))
	}
	if bins[0].NumCircuits() != 2 {
		t.Fatalf("expected 2 circuits in the bin, got %d", bins[0].NumCircuits())
	}
}

func TestExhaustionAborts(t *testing.T) {
	be := mustBackend(t, "line5", 5)
	m, err := New([]*backend.Backend{be}, mustPacker(t, packer.Options{}), nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	err = m.Place(context.Background(), []*circuit.Circuit{ghz("big", 6)})
	if !errors.Is(err, errdefs.ErrBackendCompatibility) {
		t.Fatalf("expected ErrBackendCompatibility, got %v", err)
	}
}

func TestOverflowOpensSecondBin(t *testing.T) {
	be := mustBackend(t, "line3", 3)
	m, err := New([]*backend.Backend{be}, mustPacker(t, packer.Options{}), nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	circuits := []*circuit.Circuit{pair("a"), pair("b")}
	if err := m.Place(context.Background(), circuits); err != nil {
		t.Fatalf("place: %v", err)
	}
	// 2+2 qubits exceed 3 positions, so a second bin must open.
	if len(m.Bins("line3")) != 2 {
		t.Fatalf("expected 2 bins, got %d", len(m.Bins("line3")))
	}
}

func TestCheaperBackendPreferred(t *testing.T) {
	cheap := mustBackend(t, "cheap", 5)
	pricey := mustBackend(t, "pricey", 5)
	pricey.SetCost(10)
	m, err := New([]*backend.Backend{pricey, cheap}, mustPacker(t, packer.Options{}), nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if err := m.Place(context.Background(), []*circuit.Circuit{pair("a")}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(m.Bins("cheap")) != 1 || len(m.Bins("pricey")) != 0 {
		t.Fatalf("expected the cheap backend to host the circuit")
	}
}

func TestUnsupportedBackendSkipped(t *testing.T) {
	narrow, err := backend.Linear("narrow", 5, []string{"cx"})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	full := mustBackend(t, "full", 5)
	m, err := New([]*backend.Backend{narrow, full}, mustPacker(t, packer.Options{}), nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if err := m.Place(context.Background(), []*circuit.Circuit{pair("a")}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(m.Bins("full")) != 1 || len(m.Bins("narrow")) != 0 {
		t.Fatalf("circuit should land on the backend supporting its gates")
	}
}

func TestRearrangeIdlePruning(t *testing.T) {
	be := mustBackend(t, "line5", 5)
	c := circuit.New("gappy", 5, 0)
	c.Append(circuit.Operation{Name: "cx", Qubits: []int{0, 1}})
	c.Append(circuit.Operation{Name: "cx", Qubits: []int{3, 4}})
	c.SetLayout(layout.Trivial(5))

	r, err := Rearrange(context.Background(), []*circuit.Circuit{c}, []*backend.Backend{be},
		RearrangeOptions{Packer: mustPacker(t, packer.Options{})})
	if err != nil {
		t.Fatalf("rearrange: %v", err)
	}
	hosts := r.Hosts["line5"]
	if len(hosts) != 1 {
		t.Fatalf("expected one host circuit, got %d", len(hosts))
	}
	hosted, err := bin.Hosted(hosts[0])
	if err != nil {
		t.Fatalf("hosted: %v", err)
	}
	// Qubit 2 was idle: the pruned circuit has 4 qubits mapped to the
	// identity layout's surviving targets 0,1,3,4.
	want := []int{0, 1, 3, 4}
	got := hosted[0].PhysicalQubits
	if len(got) != len(want) {
		t.Fatalf("expected 4 physical qubits, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected physical qubits %v, got %v", want, got)
		}
	}
}

func TestRearrangeRejectsLayoutsWithMultipleBackends(t *testing.T) {
	a := mustBackend(t, "a", 5)
	b := mustBackend(t, "b", 5)
	c := pair("pinned")
	c.SetLayout(layout.FromV2P(map[int]int{0: 0, 1: 1}))

	_, err := Rearrange(context.Background(), []*circuit.Circuit{c}, []*backend.Backend{a, b},
		RearrangeOptions{Packer: mustPacker(t, packer.Options{})})
	if !errors.Is(err, errdefs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRearrangeMissingInputs(t *testing.T) {
	be := mustBackend(t, "line5", 5)
	if _, err := Rearrange(context.Background(), nil, []*backend.Backend{be},
		RearrangeOptions{Packer: mustPacker(t, packer.Options{})}); !errors.Is(err, errdefs.ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter for empty circuits, got %v", err)
	}
	if _, err := Rearrange(context.Background(), []*circuit.Circuit{pair("a")}, nil,
		RearrangeOptions{Packer: mustPacker(t, packer.Options{})}); !errors.Is(err, errdefs.ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter for empty backends, got %v", err)
	}
}

func TestRearrangeKeepsOriginalIndices(t *testing.T) {
	be := mustBackend(t, "line8", 8)
	circuits := []*circuit.Circuit{pair("small"), ghz("large", 4)}
	r, err := Rearrange(context.Background(), circuits, []*backend.Backend{be},
		RearrangeOptions{Packer: mustPacker(t, packer.Options{}), AllowReorder: true})
	if err != nil {
		t.Fatalf("rearrange: %v", err)
	}
	seen := map[int]bool{}
	for _, hosts := range r.Hosts {
		for _, host := range hosts {
			hosted, err := bin.Hosted(host)
			if err != nil {
				t.Fatalf("hosted: %v", err)
			}
			for _, h := range hosted {
				idx, err := OriginalIndex(h.Metadata)
				if err != nil {
					t.Fatalf("index: %v", err)
				}
				seen[idx] = true
			}
		}
	}
	if !seen[0] || !seen[1] {
		t.Fatalf("expected both original indices, got %v", seen)
	}
}

func TestRearrangeDoesNotMutateInputs(t *testing.T) {
	be := mustBackend(t, "line5", 5)
	c := pair("a")
	if _, err := Rearrange(context.Background(), []*circuit.Circuit{c}, []*backend.Backend{be},
		RearrangeOptions{Packer: mustPacker(t, packer.Options{})}); err != nil {
		t.Fatalf("rearrange: %v", err)
	}
	if c.Layout() != nil || c.Metadata != nil {
		t.Fatalf("input circuit was mutated")
	}
}

func TestDescribe(t *testing.T) {
	be := mustBackend(t, "line5", 5)
	r, err := Rearrange(context.Background(), []*circuit.Circuit{pair("a")}, []*backend.Backend{be},
		RearrangeOptions{Packer: mustPacker(t, packer.Options{})})
	if err != nil {
		t.Fatalf("rearrange: %v", err)
	}
	var sb strings.Builder
	if err := Describe(&sb, r); err != nil {
		t.Fatalf("describe: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"backend line5", "circ0.m[2]", "1 circuits packed into 1 bins"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
