package config

import (
	"time"

	"qcpack/internal/backend"
	"qcpack/internal/circuit"
	"qcpack/internal/layout"
	"qcpack/internal/packer"
)

type RunConfig struct {
	Run      RunInfo         `yaml:"run"`
	Backends []BackendConfig `yaml:"backends"`
	Circuits []CircuitConfig `yaml:"circuits"`
}

type RunInfo struct {
	Name     string       `yaml:"name"`
	LogLevel string       `yaml:"log_level"`
	Packer   PackerConfig `yaml:"packer"`
	Data     DataConfig   `yaml:"data"`
}

type PackerConfig struct {
	Implementation    string `yaml:"implementation"`
	MinIntraDistance  int    `yaml:"min_intra_distance"`
	MinInterDistance  int    `yaml:"min_inter_distance"`
	MaxBinsPerBackend int    `yaml:"max_bins_per_backend"`
	MaxCandidates     int    `yaml:"max_candidates"`
	TimeoutMS         int    `yaml:"timeout_ms"`
	Seed              int64  `yaml:"seed"`
	MaxAttempts       int    `yaml:"max_attempts"`
	CallBudget        int    `yaml:"call_budget"`
	Order             string `yaml:"order"`
	AllowReorder      bool   `yaml:"allow_reorder"`
}

type DataConfig struct {
	DB DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Host   string `yaml:"host"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled reports whether run recording is configured at all.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type BackendConfig struct {
	Name       string   `yaml:"name"`
	Qubits     int      `yaml:"qubits"`
	Couplers   [][]int  `yaml:"couplers"`
	Operations []string `yaml:"operations"`
	Cost       float64  `yaml:"cost"`
}

type CircuitConfig struct {
	Name       string            `yaml:"name"`
	Qubits     int               `yaml:"qubits"`
	Clbits     int               `yaml:"clbits"`
	Registers  []RegisterConfig  `yaml:"registers"`
	Operations []OperationConfig `yaml:"operations"`
	Layout     map[int]int       `yaml:"layout"`
	Blocked    []int             `yaml:"blocked"`
}

type RegisterConfig struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

type OperationConfig struct {
	Name   string    `yaml:"name"`
	Qubits []int     `yaml:"qubits"`
	Clbits []int     `yaml:"clbits"`
	Params []float64 `yaml:"params"`
}

// Options converts the packer section into the engine's option set.
func (p PackerConfig) Options() packer.Options {
	return packer.Options{
		MinIntraDistance:  p.MinIntraDistance,
		MinInterDistance:  p.MinInterDistance,
		MaxBinsPerBackend: p.MaxBinsPerBackend,
		MaxCandidates:     p.MaxCandidates,
		Timeout:           time.Duration(p.TimeoutMS) * time.Millisecond,
		Seed:              p.Seed,
		MaxAttempts:       p.MaxAttempts,
		CallBudget:        p.CallBudget,
		Order:             p.Order,
	}
}

// Build constructs the backend this section describes.
func (b BackendConfig) Build() (*backend.Backend, error) {
	couplers := make([][2]int, len(b.Couplers))
	for i, c := range b.Couplers {
		couplers[i] = [2]int{c[0], c[1]}
	}
	be, err := backend.New(b.Name, b.Qubits, couplers, b.Operations)
	if err != nil {
		return nil, err
	}
	if b.Cost > 0 {
		be.SetCost(b.Cost)
	}
	return be, nil
}

// Build constructs the circuit this section describes, including its
// optional explicit layout and blocked positions.
func (c CircuitConfig) Build() (*circuit.Circuit, error) {
	out := circuit.New(c.Name, c.Qubits, c.Clbits)
	for _, r := range c.Registers {
		out.Registers = append(out.Registers, circuit.Register{Name: r.Name, Size: r.Size})
	}
	for _, op := range c.Operations {
		out.Append(circuit.Operation{
			Name:   op.Name,
			Qubits: op.Qubits,
			Clbits: op.Clbits,
			Params: op.Params,
		})
	}
	if len(c.Layout) > 0 || len(c.Blocked) > 0 {
		l := layout.FromV2P(c.Layout)
		l.Block(c.Blocked...)
		if err := l.Validate(); err != nil {
			return nil, err
		}
		out.SetLayout(l)
	}
	return out, nil
}
