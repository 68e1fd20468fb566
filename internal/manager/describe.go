package manager

import (
	"fmt"
	"io"
	"sort"

	"qcpack/internal/bin"
)

// Describe writes a human-readable summary of a packing result: every
// realized bin per backend with its hosted circuits, their physical
// positions and classical registers.
func Describe(w io.Writer, r *Result) error {
	names := make([]string, 0, len(r.Hosts))
	for name := range r.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		fmt.Fprintf(w, "backend %s (%d bins)\n", name, len(r.Hosts[name]))
		for _, host := range r.Hosts[name] {
			hosted, err := bin.Hosted(host)
			if err != nil {
				return err
			}
			total += len(hosted)
			fmt.Fprintf(w, "  %s: %d circuits, depth %d\n", host.Name, len(hosted), host.Depth())
			for _, h := range hosted {
				idx, err := OriginalIndex(h.Metadata)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "    [%d] %s qubits=%v couplers=%d", idx, h.Name, h.PhysicalQubits, len(h.Couplers))
				for _, reg := range h.Registers {
					fmt.Fprintf(w, " %s[%d]", reg.Name, reg.Size)
				}
				fmt.Fprintln(w)
			}
		}
	}
	fmt.Fprintf(w, "%d circuits packed into %d bins\n", total, countHosts(r))
	return nil
}

func countHosts(r *Result) int {
	n := 0
	for _, hosts := range r.Hosts {
		n += len(hosts)
	}
	return n
}
