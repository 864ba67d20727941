// Package phases implements the three mutating phase executors plus
// the rollback composition described in spec.md §4.5.
package phases

import (
	"context"
	"log"

	"easydep/internal/arbiter"
	"easydep/internal/config"
	"easydep/internal/githubapp"
	"easydep/internal/release"
	"easydep/internal/scripts"
)

// Deployment is the one object that lives from RPC acceptance through
// terminal phase or error (spec.md §3). Its Phase field is the only
// mutable part; the rest is fixed at construction time.
type Deployment struct {
	Release      githubapp.ReleaseMeta
	CheckoutPath string
	Token        githubapp.Token
	Profile      config.Profile
	Phase        *arbiter.PhaseCell
}

// NewDeployment builds a Deployment parked in Preparing.
func NewDeployment(rel githubapp.ReleaseMeta, checkoutPath string, token githubapp.Token, p config.Profile) *Deployment {
	return &Deployment{
		Release:      rel,
		CheckoutPath: checkoutPath,
		Token:        token,
		Profile:      p,
		Phase:        arbiter.NewPhaseCell(),
	}
}

// StatusRecorder persists the last published release for a profile, so
// GetDeploymentStatus reflects what publishPath actually did, whether
// it was reached via a direct publish or a rollback's re-publish step.
type StatusRecorder interface {
	RecordPublish(ctx context.Context, profileID string, releaseID uint64, tagName, targetCommit string) error
}

// Executor bundles the collaborators every phase routine needs.
type Executor struct {
	Store    *release.Store
	Collab   githubapp.Collaborator
	Resolver scripts.Resolver
	Global   *arbiter.Global
	Status   StatusRecorder
	Retained uint16
	Log      *log.Logger
}

// NewExecutor wires an Executor from the agent configuration.
func NewExecutor(store *release.Store, collab githubapp.Collaborator, resolver scripts.Resolver, global *arbiter.Global, status StatusRecorder, retained uint16, logger *log.Logger) *Executor {
	return &Executor{Store: store, Collab: collab, Resolver: resolver, Global: global, Status: status, Retained: retained, Log: logger}
}
