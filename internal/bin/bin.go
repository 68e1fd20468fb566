// Package bin accumulates placed circuits on one backend instance and
// flattens them into a single host circuit.
package bin

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/circuit"
	"qcpack/internal/errdefs"
	"qcpack/internal/logging"
)

// slot is one occupancy-table entry: which placed circuit claims a
// physical index, and which of its virtual qubits sits there.
type slot struct {
	circ int
	virt int
}

// HostedCircuit is the per-circuit metadata embedded in a realized
// host circuit. Downstream result splitting depends on it.
type HostedCircuit struct {
	Name           string             `json:"name"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	PhysicalQubits []int              `json:"physical_qubits"`
	Couplers       [][2]int           `json:"couplers"`
	Registers      []circuit.Register `json:"registers"`
}

// MetadataKey indexes the []HostedCircuit list in a realized host
// circuit's metadata.
const MetadataKey = "hosted_circuits"

// Bin is one live backend instance. It only grows: placed circuits
// are never removed within a packing run.
type Bin struct {
	id       string
	backend  *backend.Backend
	circuits []*circuit.Circuit
	occupied map[int]slot
	blocked  map[int]bool
	log      logrus.FieldLogger
}

func New(id string, b *backend.Backend) *Bin {
	return &Bin{
		id:       id,
		backend:  b,
		occupied: make(map[int]slot),
		blocked:  make(map[int]bool),
		log:      logging.GetPackerLogger().WithField("bin", id),
	}
}

func (b *Bin) ID() string                { return b.id }
func (b *Bin) Backend() *backend.Backend { return b.backend }

// Circuits returns the placed circuits in placement order. The slice
// is shared; callers must not modify it.
func (b *Bin) Circuits() []*circuit.Circuit { return b.circuits }

func (b *Bin) NumCircuits() int { return len(b.circuits) }

// Label summarizes a bin as <id>-<qubits>qb-<circuits>c.
func (b *Bin) Label() string {
	return fmt.Sprintf("%s-%dqb-%dc", b.id, b.backend.NumQubits(), len(b.circuits))
}

// Taken returns the set of physical indices that are occupied or
// blocked.
func (b *Bin) Taken() map[int]bool {
	out := make(map[int]bool, len(b.occupied)+len(b.blocked))
	for p := range b.occupied {
		out[p] = true
	}
	for p := range b.blocked {
		out[p] = true
	}
	return out
}

// Occupied returns the set of physical indices claimed by a placed
// circuit.
func (b *Bin) Occupied() map[int]bool {
	out := make(map[int]bool, len(b.occupied))
	for p := range b.occupied {
		out[p] = true
	}
	return out
}

// FreeCount is the number of physical indices neither occupied nor
// blocked.
func (b *Bin) FreeCount() int {
	return b.backend.NumQubits() - len(b.occupied) - len(b.blocked)
}

// Compatible reports whether a circuit could still be placed here:
// enough free positions, and every physical index its layout already
// names is free. A nil or empty layout constrains nothing beyond the
// count.
func (b *Bin) Compatible(c *circuit.Circuit) bool {
	if c.NumQubits > b.FreeCount() {
		return false
	}
	l := c.Layout()
	if l == nil {
		return true
	}
	for _, p := range l.V2P() {
		if p < 0 || p >= b.backend.NumQubits() {
			return false
		}
		if _, taken := b.occupied[p]; taken || b.blocked[p] {
			return false
		}
	}
	return true
}

// Place appends a circuit whose layout maps every virtual qubit, and
// claims its physical indices. Callers must have checked Compatible
// first; an incompatible or incomplete placement here is a caller bug
// and fails with ErrBackendCompatibility or ErrInvalidLayout.
func (b *Bin) Place(c *circuit.Circuit) error {
	l := c.Layout()
	if l == nil || l.Size() != c.NumQubits {
		return fmt.Errorf("%w: circuit %q placed with an incomplete layout", errdefs.ErrInvalidLayout, c.Name)
	}
	if !b.Compatible(c) {
		return fmt.Errorf("%w: circuit %q does not fit bin %s", errdefs.ErrBackendCompatibility, c.Name, b.Label())
	}
	idx := len(b.circuits)
	for v, p := range l.V2P() {
		b.occupied[p] = slot{circ: idx, virt: v}
		delete(b.blocked, p)
	}
	for p := range l.Blocked() {
		if _, taken := b.occupied[p]; !taken {
			b.blocked[p] = true
		}
	}
	b.circuits = append(b.circuits, c)
	return nil
}

// Realize flattens the placed circuits into one backend-wide host
// circuit. Classical registers are namespaced circ<i>.<name> in
// placement order; qubit operands go through each circuit's layout.
// Operations naming an unmapped qubit are dropped with a warning.
func (b *Bin) Realize() *circuit.Circuit {
	totalClbits := 0
	for _, c := range b.circuits {
		totalClbits += c.NumClbits
	}
	host := circuit.New(b.Label(), b.backend.NumQubits(), totalClbits)
	hosted := make([]HostedCircuit, 0, len(b.circuits))

	clbitOffset := 0
	for i, c := range b.circuits {
		v2p := c.Layout().V2P()
		host.Registers = append(host.Registers, namespacedRegisters(i, c)...)
		dropped := 0
		for _, op := range c.Operations {
			qubits := make([]int, len(op.Qubits))
			covered := true
			for j, q := range op.Qubits {
				p, ok := v2p[q]
				if !ok {
					covered = false
					break
				}
				qubits[j] = p
			}
			if !covered {
				dropped++
				continue
			}
			clbits := make([]int, len(op.Clbits))
			for j, cb := range op.Clbits {
				clbits[j] = cb + clbitOffset
			}
			host.Append(circuit.Operation{Name: op.Name, Qubits: qubits, Clbits: clbits, Params: op.Params})
		}
		if dropped > 0 {
			b.log.WithFields(logrus.Fields{
				"circuit": c.Name,
				"dropped": dropped,
			}).Warn("Dropped operations with qubits outside the layout")
		}
		hosted = append(hosted, b.hostedEntry(i, c, v2p))
		clbitOffset += c.NumClbits
	}
	host.Metadata = map[string]any{MetadataKey: hosted}
	return host
}

func namespacedRegisters(idx int, c *circuit.Circuit) []circuit.Register {
	regs := c.Registers
	if len(regs) == 0 && c.NumClbits > 0 {
		regs = []circuit.Register{{Name: "c", Size: c.NumClbits}}
	}
	out := make([]circuit.Register, len(regs))
	for i, r := range regs {
		out[i] = circuit.Register{Name: fmt.Sprintf("circ%d.%s", idx, r.Name), Size: r.Size}
	}
	return out
}

func (b *Bin) hostedEntry(idx int, c *circuit.Circuit, v2p map[int]int) HostedCircuit {
	phys := make([]int, c.NumQubits)
	for i := range phys {
		phys[i] = -1
	}
	for v, p := range v2p {
		if v >= 0 && v < c.NumQubits {
			phys[v] = p
		}
	}
	// Only the circuit's own mapped interaction edges count as its
	// couplers, not every backend edge inside its footprint.
	var couplers [][2]int
	for _, e := range c.Edges() {
		a, z := v2p[e[0]], v2p[e[1]]
		if a > z {
			a, z = z, a
		}
		couplers = append(couplers, [2]int{a, z})
	}
	meta := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return HostedCircuit{
		Name:           c.Name,
		Metadata:       meta,
		PhysicalQubits: phys,
		Couplers:       couplers,
		Registers:      namespacedRegisters(idx, c),
	}
}

// Hosted extracts the per-circuit metadata list from a realized host
// circuit.
func Hosted(host *circuit.Circuit) ([]HostedCircuit, error) {
	if host.Metadata == nil {
		return nil, fmt.Errorf("%w: host circuit %q carries no metadata", errdefs.ErrMissingInformation, host.Name)
	}
	raw, ok := host.Metadata[MetadataKey]
	if !ok {
		return nil, fmt.Errorf("%w: host circuit %q has no hosted-circuit records", errdefs.ErrMissingInformation, host.Name)
	}
	hosted, ok := raw.([]HostedCircuit)
	if !ok {
		return nil, fmt.Errorf("%w: host circuit %q has malformed hosted-circuit records", errdefs.ErrMissingInformation, host.Name)
	}
	return hosted, nil
}
