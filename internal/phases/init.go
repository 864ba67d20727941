package phases

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"easydep/internal/apperr"
	"easydep/internal/arbiter"
	"easydep/internal/process"
	"easydep/internal/scripts"
)

// Init runs the init phase (spec.md §4.5.1): existence guard, git
// clone, optional revision file, symlinks, then init scripts.
func (e *Executor) Init(ctx context.Context, d *Deployment, out chan<- process.Frame) error {
	if _, err := os.Stat(d.CheckoutPath); err == nil {
		return apperr.New(apperr.CodeFailedPrecondition, "deployment directory already exists")
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.CodeStorageUnavailable, "stat checkout directory", err)
	}

	if err := e.clone(ctx, d, out); err != nil {
		return err
	}

	if d.Profile.RevisionFile != "" {
		if err := e.writeRevisionFile(ctx, d); err != nil {
			return err
		}
	}

	e.createSymlinks(d, out)

	if err := scripts.Execute(ctx, e.Resolver, d.Profile, scripts.PhaseInit, d.CheckoutPath, d.Release.ID, out); err != nil {
		return err
	}

	if !d.Phase.CompareAndSet(arbiter.Preparing, arbiter.Prepared) {
		return apperr.New(apperr.CodeFailedPrecondition, "deployment left Preparing state concurrently")
	}
	return nil
}

func (e *Executor) clone(ctx context.Context, d *Deployment, out chan<- process.Frame) error {
	url := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", d.Token.Reveal(), d.Profile.RepoOwner, d.Profile.RepoName)
	cmd := exec.CommandContext(ctx, "git",
		"clone",
		"-c", "advice.detachedHead=false",
		"--depth", "1",
		"--branch", d.Release.TagName,
		url,
		d.CheckoutPath,
	)
	return process.Run(ctx, cmd, process.ActionGitClone, d.Release.ID, out)
}

func (e *Executor) writeRevisionFile(ctx context.Context, d *Deployment) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = d.CheckoutPath
	output, err := cmd.Output()
	if err != nil {
		return apperr.Wrap(apperr.CodeChildStreamError, "git rev-parse HEAD", err)
	}
	revPath := filepath.Join(d.CheckoutPath, d.Profile.RevisionFile)
	// The raw stdout (including trailing newline, if any) is written
	// verbatim, matching the upstream behaviour this was ported from.
	if err := os.WriteFile(revPath, output, 0o644); err != nil {
		e.Log.Printf("unable to write revision file %s: %v", revPath, err)
	}
	return nil
}

func (e *Executor) createSymlinks(d *Deployment, out chan<- process.Frame) {
	for _, sl := range d.Profile.Symlinks() {
		sourcePath := filepath.Join(d.CheckoutPath, sl.Source)
		out <- process.Frame{
			ReleaseID: d.Release.ID,
			Action:    process.ActionSymlinkCreate,
			Status:    process.StatusRunning,
			Log: &process.LogEntry{
				Stream:  process.StreamStdout,
				Content: fmt.Sprintf("creating symlink %s -> %s", sourcePath, sl.Target),
			},
		}

		if err := os.MkdirAll(filepath.Dir(sourcePath), 0o755); err != nil {
			e.Log.Printf("unable to create parent dir for symlink %s: %v", sourcePath, err)
			continue
		}
		_ = os.Remove(sourcePath)
		if err := os.Symlink(sl.Target, sourcePath); err != nil {
			e.Log.Printf("unable to symlink %s -> %s: %v", sourcePath, sl.Target, err)
		}
	}
}
