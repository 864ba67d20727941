// Package scripts implements the script executor described in
// spec.md §4.4: for a (profile, phase) pair, run the extended
// profiles' scripts in order followed by the profile's own script,
// all sharing one output channel.
package scripts

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"easydep/internal/config"
	"easydep/internal/process"
)

// Phase is one of the three lifecycle phases that carry scripts.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePublish
	PhaseDelete
)

func (p Phase) scriptName() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhasePublish:
		return "publish"
	case PhaseDelete:
		return "delete"
	default:
		return "init"
	}
}

func (p Phase) action() process.Action {
	switch p {
	case PhaseInit:
		return process.ActionInitScript
	case PhasePublish:
		return process.ActionFinishScript
	case PhaseDelete:
		return process.ActionDeleteScript
	default:
		return process.ActionInitScript
	}
}

// Resolver resolves a profile id to its configuration, used to look up
// extended profiles.
type Resolver interface {
	Profile(id string) (config.Profile, bool)
}

// Execute runs phase's scripts for p against checkoutDir, in order:
// each extended profile's script first (stopping and propagating
// ScriptFailed on the first extended-script failure), then p's own
// script. A failing main script is reported on the output stream but
// does not return an error, unless p.FailDeploymentOnScriptError is
// set (spec.md §4.4, §9 open question #1).
func Execute(ctx context.Context, resolver Resolver, p config.Profile, phase Phase, checkoutDir string, releaseID uint64, out chan<- process.Frame) error {
	for _, extID := range p.ExtendedProfiles {
		ext, ok := resolver.Profile(extID)
		if !ok {
			continue
		}
		scriptPath := filepath.Join(".easydep", ext.ID, phase.scriptName()+".sh")
		ran, err := runIfExists(ctx, checkoutDir, scriptPath, phase.action(), releaseID, out)
		if ran && err != nil {
			return err
		}
	}

	scriptPath := filepath.Join(".easydep", p.ID, phase.scriptName()+".sh")
	ran, err := runIfExists(ctx, checkoutDir, scriptPath, phase.action(), releaseID, out)
	if ran && err != nil && p.FailDeploymentOnScriptError {
		return err
	}
	return nil
}

func runIfExists(ctx context.Context, checkoutDir, relPath string, action process.Action, releaseID uint64, out chan<- process.Frame) (bool, error) {
	abs := filepath.Join(checkoutDir, relPath)
	if !fileExists(abs) {
		return false, nil
	}

	cmd := exec.CommandContext(ctx, "bash", relPath)
	cmd.Dir = checkoutDir
	err := process.Run(ctx, cmd, action, releaseID, out)
	return true, err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
