package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"qcpack/internal/errdefs"
	"qcpack/internal/logging"
)

func LoadConfig(filepath string) (*RunConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*RunConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	// Expand environment variables
	expanded := expandEnvVars(originalContent)

	var config RunConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	if err := validateConfig(&config); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}

	return &config, originalContent, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func validateConfig(config *RunConfig) error {
	if config.Run.Name == "" {
		return fmt.Errorf("%w: run.name is required", errdefs.ErrMissingParameter)
	}
	if config.Run.Packer.Implementation == "" {
		return fmt.Errorf("%w: run.packer.implementation is required", errdefs.ErrMissingParameter)
	}
	if len(config.Backends) == 0 {
		return fmt.Errorf("%w: at least one backend is required", errdefs.ErrMissingParameter)
	}
	if len(config.Circuits) == 0 {
		return fmt.Errorf("%w: at least one circuit is required", errdefs.ErrMissingParameter)
	}

	names := make(map[string]bool, len(config.Backends))
	for i, b := range config.Backends {
		if b.Name == "" {
			return fmt.Errorf("%w: backends[%d].name is required", errdefs.ErrMissingParameter, i)
		}
		if names[b.Name] {
			return fmt.Errorf("%w: duplicate backend name %q", errdefs.ErrInvalidParameter, b.Name)
		}
		names[b.Name] = true
		if b.Qubits <= 0 {
			return fmt.Errorf("%w: backend %q needs a positive qubit count", errdefs.ErrInvalidParameter, b.Name)
		}
		if b.Cost < 0 {
			return fmt.Errorf("%w: backend %q has a negative cost", errdefs.ErrInvalidParameter, b.Name)
		}
		for j, c := range b.Couplers {
			if len(c) != 2 {
				return fmt.Errorf("%w: backend %q coupler %d must name exactly two qubits",
					errdefs.ErrInvalidParameter, b.Name, j)
			}
		}
	}

	for i, c := range config.Circuits {
		if c.Qubits <= 0 {
			return fmt.Errorf("%w: circuits[%d] needs a positive qubit count", errdefs.ErrInvalidParameter, i)
		}
		for j, op := range c.Operations {
			if op.Name == "" {
				return fmt.Errorf("%w: circuits[%d].operations[%d].name is required", errdefs.ErrMissingParameter, i, j)
			}
			for _, q := range op.Qubits {
				if q < 0 || q >= c.Qubits {
					return fmt.Errorf("%w: circuits[%d].operations[%d] names qubit %d outside [0,%d)",
						errdefs.ErrInvalidParameter, i, j, q, c.Qubits)
				}
			}
			for _, cb := range op.Clbits {
				if cb < 0 || cb >= c.Clbits {
					return fmt.Errorf("%w: circuits[%d].operations[%d] names clbit %d outside [0,%d)",
						errdefs.ErrInvalidParameter, i, j, cb, c.Clbits)
				}
			}
		}
		for v := range c.Layout {
			if v < 0 || v >= c.Qubits {
				return fmt.Errorf("%w: circuits[%d].layout names virtual qubit %d outside [0,%d)",
					errdefs.ErrInvalidParameter, i, v, c.Qubits)
			}
		}
	}
	return nil
}
