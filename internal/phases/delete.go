package phases

import (
	"context"
	"os"

	"easydep/internal/arbiter"
	"easydep/internal/process"
	"easydep/internal/scripts"
)

// Delete runs the delete phase (spec.md §4.5.3): run delete scripts,
// remove the checkout directory, release the global slot.
func (e *Executor) Delete(ctx context.Context, d *Deployment, out chan<- process.Frame) error {
	if err := scripts.Execute(ctx, e.Resolver, d.Profile, scripts.PhaseDelete, d.CheckoutPath, d.Release.ID, out); err != nil {
		e.Global.Release()
		return err
	}

	if err := os.RemoveAll(d.CheckoutPath); err != nil {
		e.Log.Printf("unable to remove checkout directory %s: %v", d.CheckoutPath, err)
	}

	if !d.Phase.CompareAndSet(arbiter.Deleting, arbiter.Deleted) {
		e.Log.Printf("deployment %d left Deleting state concurrently", d.Release.ID)
	}
	e.Global.Release()
	return nil
}
