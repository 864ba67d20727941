package arbiter

import "sync/atomic"

// Phase is a deployment's lifecycle state (spec.md §3):
//
//	Preparing --init ok--> Prepared
//	                      │
//	              publish ├──> Publishing --ok--> Published
//	              delete  └──> Deleting   --ok--> Deleted
type Phase int32

const (
	Preparing Phase = iota
	Prepared
	Publishing
	Published
	Deleting
	Deleted
)

// PhaseCell is the single-writer phase field owned by a deployment
// object. Only compare-and-set transitions listed in spec.md §3 are
// meaningful; callers attempting any other transition get a failed CAS
// and must surface a precondition error.
type PhaseCell struct {
	v int32
}

// NewPhaseCell starts a cell in Preparing.
func NewPhaseCell() *PhaseCell {
	return &PhaseCell{v: int32(Preparing)}
}

// Load returns the current phase.
func (c *PhaseCell) Load() Phase {
	return Phase(atomic.LoadInt32(&c.v))
}

// allowedTransitions lists the edges of the phase diagram above.
var allowedTransitions = map[[2]Phase]bool{
	{Preparing, Prepared}:   true,
	{Prepared, Publishing}:  true,
	{Publishing, Published}: true,
	{Prepared, Deleting}:    true,
	{Deleting, Deleted}:     true,
}

// CompareAndSet succeeds iff expected->next is one of the listed
// transitions and the cell currently holds expected.
func (c *PhaseCell) CompareAndSet(expected, next Phase) bool {
	if !allowedTransitions[[2]Phase{expected, next}] {
		return false
	}
	return atomic.CompareAndSwapInt32(&c.v, int32(expected), int32(next))
}
