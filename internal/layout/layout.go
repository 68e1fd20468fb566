// Package layout implements one-to-one index mappings between virtual
// circuit qubits and physical backend qubits. A layout may be partial:
// only some virtual indices are mapped. Physical indices can
// additionally be marked blocked, meaning reserved but unmapped.
package layout

import (
	"fmt"
	"sort"
	"strings"

	"qcpack/internal/errdefs"
)

// Layout holds two synchronized maps, virtual-to-physical and
// physical-to-virtual, plus a set of blocked physical indices. The two
// maps are always mutually consistent; a physical index is never both
// mapped and blocked.
type Layout struct {
	v2p     map[int]int
	p2v     map[int]int
	blocked map[int]bool
}

func New() *Layout {
	return &Layout{
		v2p:     make(map[int]int),
		p2v:     make(map[int]int),
		blocked: make(map[int]bool),
	}
}

// FromV2P builds a layout from a virtual-to-physical mapping. The
// input map is copied.
func FromV2P(v2p map[int]int) *Layout {
	l := New()
	for v, p := range v2p {
		l.Add(v, p)
	}
	return l
}

// FromP2V builds a layout from a physical-to-virtual mapping. The
// input map is copied.
func FromP2V(p2v map[int]int) *Layout {
	l := New()
	for p, v := range p2v {
		l.Add(v, p)
	}
	return l
}

// Trivial returns the identity layout over numQubits indices.
func Trivial(numQubits int) *Layout {
	l := New()
	for i := 0; i < numQubits; i++ {
		l.Add(i, i)
	}
	return l
}

// Copy returns a deep copy with independent maps.
func (l *Layout) Copy() *Layout {
	c := New()
	for v, p := range l.v2p {
		c.v2p[v] = p
		c.p2v[p] = v
	}
	for p := range l.blocked {
		c.blocked[p] = true
	}
	return c
}

// Size is the number of mapped virtual indices. Blocked indices do not
// count.
func (l *Layout) Size() int {
	return len(l.v2p)
}

// V2P returns a copy of the virtual-to-physical mapping.
func (l *Layout) V2P() map[int]int {
	out := make(map[int]int, len(l.v2p))
	for v, p := range l.v2p {
		out[v] = p
	}
	return out
}

// P2V returns a copy of the physical-to-virtual mapping.
func (l *Layout) P2V() map[int]int {
	out := make(map[int]int, len(l.p2v))
	for p, v := range l.p2v {
		out[p] = v
	}
	return out
}

// Physical returns the physical index mapped to the given virtual
// index.
func (l *Layout) Physical(virt int) (int, bool) {
	p, ok := l.v2p[virt]
	return p, ok
}

// Virtual returns the virtual index mapped to the given physical
// index.
func (l *Layout) Virtual(phys int) (int, bool) {
	v, ok := l.p2v[phys]
	return v, ok
}

// Add maps a virtual index onto a physical index. Existing mappings
// involving either index are replaced so that the layout stays
// bijective. Adding onto a blocked physical index unblocks it.
func (l *Layout) Add(virt, phys int) {
	if old, ok := l.v2p[virt]; ok {
		delete(l.p2v, old)
	}
	if old, ok := l.p2v[phys]; ok {
		delete(l.v2p, old)
	}
	delete(l.blocked, phys)
	l.v2p[virt] = phys
	l.p2v[phys] = virt
}

// RemoveVirtual removes the mapping for the given virtual index. If
// decrementKeys is true, every virtual index greater than the removed
// one is shifted down by one, preserving each one's physical target.
// This keeps a layout valid after a circuit's idle-qubit compaction.
func (l *Layout) RemoveVirtual(virt int, decrementKeys bool) {
	phys, ok := l.v2p[virt]
	if ok {
		delete(l.v2p, virt)
		delete(l.p2v, phys)
	}
	if decrementKeys {
		l.decrementAbove(virt)
	}
}

// RemovePhysical removes the mapping for the given physical index,
// with the same decrementKeys semantics as RemoveVirtual. Removing a
// blocked index clears the block.
func (l *Layout) RemovePhysical(phys int, decrementKeys bool) {
	virt, ok := l.p2v[phys]
	if !ok {
		delete(l.blocked, phys)
		return
	}
	delete(l.v2p, virt)
	delete(l.p2v, phys)
	if decrementKeys {
		l.decrementAbove(virt)
	}
}

func (l *Layout) decrementAbove(virt int) {
	var above []int
	for v := range l.v2p {
		if v > virt {
			above = append(above, v)
		}
	}
	// Ascending order so each shifted key lands on a free slot.
	sort.Ints(above)
	for _, v := range above {
		p := l.v2p[v]
		delete(l.v2p, v)
		l.v2p[v-1] = p
		l.p2v[p] = v - 1
	}
}

// Block marks physical indices as blocked. Blocked indices are
// excluded from the mappings; blocking a mapped index removes its
// mapping first.
func (l *Layout) Block(phys ...int) {
	for _, p := range phys {
		if v, ok := l.p2v[p]; ok {
			delete(l.v2p, v)
			delete(l.p2v, p)
		}
		l.blocked[p] = true
	}
}

// IsBlocked reports whether the given physical index is blocked.
func (l *Layout) IsBlocked(phys int) bool {
	return l.blocked[phys]
}

// Blocked returns a copy of the blocked physical index set.
func (l *Layout) Blocked() map[int]bool {
	out := make(map[int]bool, len(l.blocked))
	for p := range l.blocked {
		out[p] = true
	}
	return out
}

// WithEntry returns a copy of the layout with one additional mapping.
func (l *Layout) WithEntry(virt, phys int) *Layout {
	c := l.Copy()
	c.Add(virt, phys)
	return c
}

// WithBlocked returns a copy of the layout with the given physical
// indices additionally blocked.
func (l *Layout) WithBlocked(phys ...int) *Layout {
	c := l.Copy()
	c.Block(phys...)
	return c
}

// InsertBlockedIndices blocks a set of physical indices as if those
// qubits were freshly inserted into the backend: every existing
// physical index at or above an inserted one is shifted up to make
// room, then the inserted indices are blocked.
func (l *Layout) InsertBlockedIndices(phys map[int]bool) {
	shift := make(map[int]int, len(l.p2v))
	for p := range l.p2v {
		shift[p] = p
	}
	inserted := make([]int, 0, len(phys))
	for p := range phys {
		inserted = append(inserted, p)
	}
	sort.Ints(inserted)
	for _, b := range inserted {
		for p := range shift {
			if shift[p] >= b {
				shift[p]++
			}
		}
	}
	newP2V := make(map[int]int, len(l.p2v))
	newV2P := make(map[int]int, len(l.v2p))
	for p, v := range l.p2v {
		newP2V[shift[p]] = v
		newV2P[v] = shift[p]
	}
	l.p2v = newP2V
	l.v2p = newV2P
	newBlocked := make(map[int]bool, len(l.blocked)+len(phys))
	for p := range l.blocked {
		np := p
		for _, b := range inserted {
			if np >= b {
				np++
			}
		}
		newBlocked[np] = true
	}
	for _, b := range inserted {
		newBlocked[b] = true
	}
	l.blocked = newBlocked
}

// ToPhysicalList returns a dense array indexed by virtual position.
// Unmapped positions hold -1.
func (l *Layout) ToPhysicalList(numQubits int) []int {
	out := make([]int, numQubits)
	for i := range out {
		out[i] = -1
	}
	for v, p := range l.v2p {
		if v >= 0 && v < numQubits {
			out[v] = p
		}
	}
	return out
}

// Validate checks bijectivity and the mapped/blocked separation.
func (l *Layout) Validate() error {
	if len(l.v2p) != len(l.p2v) {
		return fmt.Errorf("%w: %d virtual entries but %d physical entries",
			errdefs.ErrInvalidLayout, len(l.v2p), len(l.p2v))
	}
	for v, p := range l.v2p {
		back, ok := l.p2v[p]
		if !ok || back != v {
			return fmt.Errorf("%w: virtual %d maps to physical %d but the reverse entry is missing",
				errdefs.ErrInvalidLayout, v, p)
		}
		if l.blocked[p] {
			return fmt.Errorf("%w: physical %d is both mapped and blocked",
				errdefs.ErrInvalidLayout, p)
		}
	}
	return nil
}

func (l *Layout) String() string {
	type entry struct {
		p       int
		v       int
		blocked bool
	}
	entries := make([]entry, 0, len(l.p2v)+len(l.blocked))
	for p, v := range l.p2v {
		entries = append(entries, entry{p: p, v: v})
	}
	for p := range l.blocked {
		entries = append(entries, entry{p: p, blocked: true})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].blocked != entries[j].blocked {
			return !entries[i].blocked
		}
		return entries[i].p < entries[j].p
	})
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.blocked {
			parts = append(parts, fmt.Sprintf("!p%d", e.p))
		} else {
			parts = append(parts, fmt.Sprintf("v%d~p%d", e.v, e.p))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
