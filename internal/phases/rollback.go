package phases

import (
	"context"
	"os"

	"easydep/internal/apperr"
	"easydep/internal/config"
	"easydep/internal/process"
	"easydep/internal/scripts"
)

// Rollback runs the rollback composition (spec.md §4.5.4): re-run
// init scripts against the previous release's existing checkout (no
// re-clone), publish it, then remove the now-superseded current
// checkout. Preconditions (global slot CAS to RollingBack) are the
// caller's responsibility.
func (e *Executor) Rollback(ctx context.Context, p config.Profile, out chan<- process.Frame) error {
	entries, err := e.Store.Enumerate(p)
	if err != nil {
		e.Global.Release()
		return err
	}
	if len(entries) < 2 {
		e.Global.Release()
		return apperr.New(apperr.CodeNothingToRollBackTo, "fewer than two releases on disk")
	}

	current := entries[0]
	previous := entries[1]

	prevMeta, err := e.Collab.Release(ctx, p, previous.ID)
	if err != nil {
		e.Log.Printf("rollback: unable to resolve previous release %d metadata: %v", previous.ID, err)
	}
	releaseID := previous.ID
	if prevMeta.ID != 0 {
		releaseID = prevMeta.ID
	}

	if err := scripts.Execute(ctx, e.Resolver, p, scripts.PhaseInit, previous.Path, releaseID, out); err != nil {
		e.Global.Release()
		return err
	}

	if err := e.publishPath(ctx, p.ID, previous.Path, releaseID, prevMeta.TagName, prevMeta.TargetCommitish, nil, out); err != nil {
		return err
	}

	if err := os.RemoveAll(current.Path); err != nil {
		e.Log.Printf("rollback: unable to remove superseded release %d: %v", current.ID, err)
	}
	return nil
}
