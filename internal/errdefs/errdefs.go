// Package errdefs defines the error kinds shared across the packing
// engine. Callers classify failures with errors.Is against these
// sentinels; the concrete messages are produced at the failure site
// with fmt.Errorf and %w.
package errdefs

import "errors"

var (
	// ErrMissingParameter indicates a required input was omitted.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidParameter indicates a parameter has the wrong type or
	// shape, or two parameters are in mutual conflict (for example
	// explicit circuit layouts combined with multiple backends).
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidLayout indicates a supplied or computed layout is not
	// bijective, incomplete where completeness was required, or clashes
	// with its own blocked indices.
	ErrInvalidLayout = errors.New("invalid layout")

	// ErrBackendCompatibility indicates no backend, bin, or layout
	// combination could host a given circuit. This is the terminal
	// failure for an unplaceable circuit and aborts the packing run.
	ErrBackendCompatibility = errors.New("circuit is not compatible with any backend")

	// ErrMissingInformation indicates expected structural metadata was
	// absent from a downstream artifact.
	ErrMissingInformation = errors.New("missing information")
)
