package phases

import (
	"context"

	"easydep/internal/apperr"
	"easydep/internal/arbiter"
	"easydep/internal/process"
	"easydep/internal/release"
	"easydep/internal/scripts"
)

// Publish runs the publish phase (spec.md §4.5.2): swap the current
// symlink, run publish scripts, trim retention, then release the
// global slot.
func (e *Executor) Publish(ctx context.Context, d *Deployment, out chan<- process.Frame) error {
	return e.publishPath(ctx, d.Profile.ID, d.CheckoutPath, d.Release.ID, d.Release.TagName, d.Release.TargetCommitish, d, out)
}

// publishPath is factored out so Rollback (§4.5.4) can reuse the exact
// publish behaviour against a previous release's checkout path. Every
// failure path releases the global slot before returning — a deployment
// that never reaches Published must not leave the host wedged in
// Executing/RollingBack forever.
func (e *Executor) publishPath(ctx context.Context, profileID string, checkoutPath string, releaseID uint64, tagName, targetCommit string, d *Deployment, out chan<- process.Frame) error {
	profile, ok := e.Resolver.Profile(profileID)
	if !ok {
		e.Global.Release()
		return apperr.New(apperr.CodeFailedPrecondition, "unknown profile: "+profileID)
	}

	if err := e.Store.ReplaceCurrentSymlink(profile, checkoutPath); err != nil {
		e.Global.Release()
		return err
	}

	if err := scripts.Execute(ctx, e.Resolver, profile, scripts.PhasePublish, checkoutPath, releaseID, out); err != nil {
		e.Global.Release()
		return err
	}

	if e.Retained > 1 {
		entries, err := e.Store.Enumerate(profile)
		if err != nil {
			e.Log.Printf("retention enumerate failed for %s: %v", profile.Target, err)
		} else if removedID, removed := release.PruneOldest(entries, e.Retained); removed {
			e.Log.Printf("pruned release %d for target %s", removedID, profile.Target)
		}
	}

	if e.Status != nil {
		if err := e.Status.RecordPublish(ctx, profile.ID, releaseID, tagName, targetCommit); err != nil {
			e.Log.Printf("recording published status for %s failed: %v", profile.ID, err)
		}
	}

	if d != nil {
		if !d.Phase.CompareAndSet(arbiter.Publishing, arbiter.Published) {
			e.Log.Printf("deployment %d left Publishing state concurrently", d.Release.ID)
		}
	}
	e.Global.Release()
	return nil
}
