package rpc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"easydep/internal/apperr"
	"easydep/internal/arbiter"
	"easydep/internal/config"
	"easydep/internal/githubapp"
	"easydep/internal/phases"
	"easydep/internal/process"
	"easydep/internal/release"
	"easydep/internal/store"
)

// streamCapacity is the bounded output channel capacity fixed by
// spec.md §4.6.
const streamCapacity = 50

const version = "easydep-agent/1"

// Server hosts the agent's deployment + status RPC surface.
type Server struct {
	cfg    config.AgentConfig
	collab githubapp.Collaborator
	relstore *release.Store
	status *store.Store
	global *arbiter.Global
	exec   *phases.Executor
	log    *log.Logger

	mu     sync.Mutex
	active *phases.Deployment
}

// New wires a Server from its collaborators.
func New(cfg config.AgentConfig, collab githubapp.Collaborator, relstore *release.Store, status *store.Store, global *arbiter.Global, exec *phases.Executor, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "easydep-agent ", log.LstdFlags|log.LUTC)
	}
	return &Server{cfg: cfg, collab: collab, relstore: relstore, status: status, global: global, exec: exec, log: logger}
}

// Router builds the chi router exposing the agent's surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleGetStatus)
		r.Post("/deployments/start", s.handleStart)
		r.Post("/deployments/{release_id}/publish", s.handlePublish)
		r.Post("/deployments/{release_id}/delete", s.handleDelete)
		r.Post("/rollback", s.handleRollback)
		r.Get("/profiles/{profile}/status", s.handleDeploymentStatus)
	})

	return r
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	variant, payload := s.global.Snapshot()

	resp := StatusResponse{
		Version:                  version,
		CurrentAction:            "Idle",
		DeploymentConfigurations: s.cfg.DeployableProfileIDs(),
	}
	switch variant {
	case arbiter.Executing:
		resp.CurrentAction = "Deploying"
		if d, ok := payload.(*phases.Deployment); ok {
			id := d.Release.ID
			tag := d.Release.TagName
			resp.ReleaseID = &id
			resp.ReleaseTag = &tag
		}
	case arbiter.RollingBack:
		resp.CurrentAction = "RollingBack"
		if meta, ok := payload.(githubapp.ReleaseMeta); ok {
			id := meta.ID
			tag := meta.TagName
			resp.ReleaseID = &id
			resp.ReleaseTag = &tag
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "invalid request body"))
		return
	}

	profile, ok := s.cfg.Profile(req.Profile)
	if !ok || profile.ExtendOnly {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "unknown or extend-only profile: "+req.Profile))
		return
	}

	ctx := r.Context()
	meta, err := s.collab.Release(ctx, profile, req.ReleaseID)
	if err != nil {
		httpError(w, err)
		return
	}
	if !profile.IsBranchAllowed(meta.TargetCommitish) {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "branch not allowed for this profile: "+meta.TargetCommitish))
		return
	}
	token, err := s.collab.CloneToken(ctx, profile)
	if err != nil {
		httpError(w, err)
		return
	}

	checkoutPath := s.relstore.ReleaseDir(profile, meta.ID)
	deployment := phases.NewDeployment(meta, checkoutPath, token, profile)

	if !s.global.CompareAndSetByVariant(arbiter.Idle, arbiter.Executing, deployment) {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "another action was started first on this host"))
		return
	}
	s.setActive(deployment)

	s.stream(w, r, func(ctx context.Context, out chan<- process.Frame) error {
		err := s.exec.Init(ctx, deployment, out)
		if err != nil {
			// Init failure means the deployment never reaches Prepared, so
			// there is no later RPC (publish/delete) that could recover it —
			// release the host here or it stays wedged in Executing forever.
			s.clearActive(deployment)
			s.global.Release()
		}
		return err
	}, deployment.Profile.ID, deployment.Release.ID, "InitScript")
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	releaseID, err := strconv.ParseUint(chi.URLParam(r, "release_id"), 10, 64)
	if err != nil {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "invalid release id"))
		return
	}

	d := s.getActive()
	if d == nil || d.Release.ID != releaseID {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "no matching prepared deployment"))
		return
	}
	if !d.Phase.CompareAndSet(arbiter.Prepared, arbiter.Publishing) {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "deployment is not in Prepared phase"))
		return
	}

	s.stream(w, r, func(ctx context.Context, out chan<- process.Frame) error {
		err := s.exec.Publish(ctx, d, out)
		if err == nil {
			s.clearActive(d)
		}
		return err
	}, d.Profile.ID, d.Release.ID, "FinishScript")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	releaseID, err := strconv.ParseUint(chi.URLParam(r, "release_id"), 10, 64)
	if err != nil {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "invalid release id"))
		return
	}

	d := s.getActive()
	if d == nil || d.Release.ID != releaseID {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "no matching prepared deployment"))
		return
	}
	if !d.Phase.CompareAndSet(arbiter.Prepared, arbiter.Deleting) {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "deployment is not in Prepared phase"))
		return
	}

	s.stream(w, r, func(ctx context.Context, out chan<- process.Frame) error {
		err := s.exec.Delete(ctx, d, out)
		s.clearActive(d)
		return err
	}, d.Profile.ID, d.Release.ID, "DeleteScript")
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "invalid request body"))
		return
	}
	profile, ok := s.cfg.Profile(req.Profile)
	if !ok || profile.ExtendOnly {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "unknown or extend-only profile: "+req.Profile))
		return
	}

	if !s.global.CompareAndSetByVariant(arbiter.Idle, arbiter.RollingBack, githubapp.ReleaseMeta{}) {
		httpError(w, apperr.New(apperr.CodeFailedPrecondition, "another action was started first on this host"))
		return
	}

	s.stream(w, r, func(ctx context.Context, out chan<- process.Frame) error {
		return s.exec.Rollback(ctx, profile, out)
	}, profile.ID, 0, "InitScript")
}

func (s *Server) handleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profile")
	st, err := s.status.GetStatus(r.Context(), profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpError(w, apperr.New(apperr.CodeFailedPrecondition, "no release has been executed for this profile"))
			return
		}
		httpError(w, apperr.Wrap(apperr.CodeStorageUnavailable, "read deployment status", err))
		return
	}
	writeJSON(w, http.StatusOK, DeploymentStatusResponse{
		Profile:      st.ProfileID,
		ReleaseID:    st.ReleaseID,
		TagName:      st.TagName,
		TargetCommit: st.TargetCommit,
	})
}

// stream spawns phaseFn as a detached task wired to a bounded channel
// (capacity 50, spec.md §4.6), and forwards every frame to the HTTP
// response as one NDJSON line, flushed immediately. This realizes the
// "return the receiver end of the channel to the caller immediately"
// behaviour of §4.6 over net/http instead of a generated streaming RPC.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, phaseFn func(ctx context.Context, out chan<- process.Frame) error, profileID string, releaseIDHint uint64, defaultAction string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, apperr.New(apperr.CodeInternal, "streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	out := make(chan process.Frame, streamCapacity)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		errCh <- phaseFn(r.Context(), out)
	}()

	enc := json.NewEncoder(w)
	for frame := range out {
		entry := toEntry(frame)
		_ = enc.Encode(entry)
		flusher.Flush()
		if frame.Status == process.StatusCompletedSuccess || frame.Status == process.StatusCompletedFailure {
			_ = s.status.AppendActionLog(r.Context(), profileID, frame.ReleaseID, entry.CurrentAction, entry.ActionStatus)
		}
	}

	if err := <-errCh; err != nil {
		_ = enc.Encode(StreamEnvelope{Error: err.Error()})
		flusher.Flush()
		s.log.Printf("phase error profile=%s: %v", profileID, err)
	}
}

func (s *Server) setActive(d *phases.Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = d
}

func (s *Server) getActive() *phases.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Server) clearActive(d *phases.Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == d {
		s.active = nil
	}
}

func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.CodeFailedPrecondition, apperr.CodeReleaseNotFound, apperr.CodeNothingToRollBackTo:
		status = http.StatusPreconditionFailed
	case apperr.CodeConfigInvalid:
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
