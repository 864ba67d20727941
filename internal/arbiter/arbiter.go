// Package arbiter implements the host-wide global action slot (spec.md
// §3, §4.7) and the per-deployment phase cell (spec.md §3). Both are
// single-writer cells guarded by compare-and-set; the global slot's
// CAS compares only the variant tag, never the payload.
package arbiter

import "sync"

// Variant is the tag of the global action slot.
type Variant int32

const (
	Idle Variant = iota
	Executing
	RollingBack
)

// Global is the host-wide action register described in spec.md §3 and
// §4.7. Exactly one Global exists per agent process.
type Global struct {
	mu      sync.Mutex
	variant Variant
	payload any
}

// NewGlobal returns an arbiter starting in Idle.
func NewGlobal() *Global {
	return &Global{variant: Idle}
}

// CompareAndSetByVariant succeeds iff the current variant equals
// expected; on success it installs newVariant/payload atomically. This
// implements the "variant-only CAS" primitive of spec.md §4.7: the
// payload of the prior state is never consulted.
func (g *Global) CompareAndSetByVariant(expected, newVariant Variant, payload any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.variant != expected {
		return false
	}
	g.variant = newVariant
	g.payload = payload
	return true
}

// Snapshot returns the current variant and payload under the lock.
func (g *Global) Snapshot() (Variant, any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.variant, g.payload
}

// Release unconditionally returns the slot to Idle. Used when a
// mutating action terminates (published, deleted, rollback done) or an
// operator deletes a Prepared deployment.
func (g *Global) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.variant = Idle
	g.payload = nil
}
