// Package rpc realizes the RPC surface of spec.md §4.6/§6 as chi HTTP
// handlers. The spec puts the RPC wire format explicitly out of scope
// (§1) and only fixes the message shapes at the contract level; this
// implementation serializes ExecutedActionEntry as newline-delimited
// JSON over a chunked HTTP response, flushed frame-by-frame, which is
// the teacher's own transport (net/http + chi) rather than a
// generated protobuf/gRPC stack.
package rpc

import "easydep/internal/process"

// ExecutedActionEntry mirrors spec.md §6's message of the same name.
type ExecutedActionEntry struct {
	ReleaseID      uint64    `json:"release_id"`
	CurrentAction  string    `json:"current_action"`
	ActionStatus   string    `json:"action_status"`
	ActionLogEntry *LogEntry `json:"action_log_entry,omitempty"`
}

// LogEntry mirrors the nested action_log_entry message.
type LogEntry struct {
	StreamType string `json:"stream_type"`
	Content    string `json:"content"`
}

func toEntry(f process.Frame) ExecutedActionEntry {
	e := ExecutedActionEntry{
		ReleaseID:     f.ReleaseID,
		CurrentAction: f.Action.String(),
		ActionStatus:  statusName(f.Status),
	}
	if f.Log != nil {
		e.ActionLogEntry = &LogEntry{
			StreamType: streamName(f.Log.Stream),
			Content:    f.Log.Content,
		}
	}
	return e
}

func statusName(s process.Status) string {
	switch s {
	case process.StatusStarted:
		return "Started"
	case process.StatusRunning:
		return "Running"
	case process.StatusCompletedSuccess:
		return "CompletedSuccess"
	case process.StatusCompletedFailure:
		return "CompletedFailure"
	default:
		return "Unknown"
	}
}

func streamName(s process.StreamType) string {
	if s == process.StreamStderr {
		return "Stderr"
	}
	return "Stdout"
}

// StreamEnvelope is the final NDJSON line of a stream when the phase
// fails; a clean stream close (EOF, no trailing envelope) means
// success, matching spec.md §6's "terminal successful stream = normal
// stream close" rule.
type StreamEnvelope struct {
	Error string `json:"error,omitempty"`
}

// StartRequest is the body of POST /api/deployments/start.
type StartRequest struct {
	Profile   string `json:"profile"`
	ReleaseID uint64 `json:"release_id"`
}

// RollbackRequest is the body of POST /api/rollback.
type RollbackRequest struct {
	Profile string `json:"profile"`
}

// StatusResponse mirrors spec.md §6's GetStatus response.
type StatusResponse struct {
	Version                  string   `json:"version"`
	CurrentAction            string   `json:"current_action"`
	ReleaseID                *uint64  `json:"release_id,omitempty"`
	ReleaseTag               *string  `json:"release_tag,omitempty"`
	DeploymentConfigurations []string `json:"deployment_configurations"`
}

// DeploymentStatusResponse mirrors spec.md §6's GetDeploymentStatus.
type DeploymentStatusResponse struct {
	Profile      string `json:"profile"`
	ReleaseID    uint64 `json:"release_id"`
	TagName      string `json:"tag_name"`
	TargetCommit string `json:"target_commit"`
}
