package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"qcpack/internal/errdefs"
)

const validConfig = `
run:
  name: smoke
  log_level: info
  packer:
    implementation: embed
    min_inter_distance: 1
    max_candidates: 2
    timeout_ms: 2000
backends:
  - name: line5
    qubits: 5
    couplers: [[0, 1], [1, 2], [2, 3], [3, 4]]
    operations: [h, cx, measure]
circuits:
  - name: bell
    qubits: 2
    clbits: 2
    registers:
      - name: m
        size: 2
    operations:
      - name: h
        qubits: [0]
      - name: cx
        qubits: [0, 1]
      - name: measure
        qubits: [1]
        clbits: [1]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.Name != "smoke" || cfg.Run.Packer.Implementation != "embed" {
		t.Fatalf("unexpected run section: %+v", cfg.Run)
	}
	if len(cfg.Backends) != 1 || len(cfg.Circuits) != 1 {
		t.Fatalf("unexpected section sizes: %d backends, %d circuits", len(cfg.Backends), len(cfg.Circuits))
	}

	be, err := cfg.Backends[0].Build()
	if err != nil {
		t.Fatalf("build backend: %v", err)
	}
	if be.NumQubits() != 5 || !be.Adjacent(1, 2) {
		t.Fatalf("backend not built from couplers")
	}

	c, err := cfg.Circuits[0].Build()
	if err != nil {
		t.Fatalf("build circuit: %v", err)
	}
	if c.NumQubits != 2 || len(c.Operations) != 3 {
		t.Fatalf("circuit not built: %+v", c)
	}

	opts := cfg.Run.Packer.Options()
	if opts.MinInterDistance != 1 || opts.MaxCandidates != 2 {
		t.Fatalf("options not mapped: %+v", opts)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("QCPACK_TEST_RUN_NAME", "expanded")
	content := `
run:
  name: ${QCPACK_TEST_RUN_NAME}
  packer:
    implementation: embed
backends:
  - name: b
    qubits: 2
    couplers: [[0, 1]]
    operations: [cx]
circuits:
  - name: c
    qubits: 2
    operations:
      - name: cx
        qubits: [0, 1]
`
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.Name != "expanded" {
		t.Fatalf("env var not expanded: %q", cfg.Run.Name)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  string
		wantErr error
	}{
		{
			name: "missing packer",
			mutate: `
run:
  name: x
backends:
  - {name: b, qubits: 2}
circuits:
  - {name: c, qubits: 1}
`,
			wantErr: errdefs.ErrMissingParameter,
		},
		{
			name: "no backends",
			mutate: `
run:
  name: x
  packer: {implementation: embed}
circuits:
  - {name: c, qubits: 1}
`,
			wantErr: errdefs.ErrMissingParameter,
		},
		{
			name: "qubit out of range",
			mutate: `
run:
  name: x
  packer: {implementation: embed}
backends:
  - {name: b, qubits: 2}
circuits:
  - name: c
    qubits: 1
    operations:
      - {name: x, qubits: [3]}
`,
			wantErr: errdefs.ErrInvalidParameter,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.mutate))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
