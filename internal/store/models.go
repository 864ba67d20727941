package store

import (
	"context"
	"database/sql"
	"time"
)

// DeploymentStatus is the durable record backing GetDeploymentStatus
// (spec.md §6).
type DeploymentStatus struct {
	ProfileID    string
	ReleaseID    uint64
	TagName      string
	TargetCommit string
	UpdatedAt    time.Time
}

// RecordPublish upserts the status row for profileID, called at the
// end of a successful publish (including the publish step of a
// rollback composition).
func (s *Store) RecordPublish(ctx context.Context, profileID string, releaseID uint64, tagName, targetCommit string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployment_status (profile_id, release_id, tag_name, target_commit, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			release_id=excluded.release_id,
			tag_name=excluded.tag_name,
			target_commit=excluded.target_commit,
			updated_at=excluded.updated_at
	`, profileID, releaseID, tagName, targetCommit, now)
	return err
}

// GetStatus returns the last published release for profileID.
// sql.ErrNoRows is returned verbatim when no release has ever been
// published for this profile, matching the precondition in spec.md §6.
func (s *Store) GetStatus(ctx context.Context, profileID string) (DeploymentStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT profile_id, release_id, tag_name, target_commit, updated_at
		FROM deployment_status WHERE profile_id = ?
	`, profileID)
	var st DeploymentStatus
	var updated string
	if err := row.Scan(&st.ProfileID, &st.ReleaseID, &st.TagName, &st.TargetCommit, &updated); err != nil {
		if err == sql.ErrNoRows {
			return DeploymentStatus{}, sql.ErrNoRows
		}
		return DeploymentStatus{}, err
	}
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return st, nil
}

// AppendActionLog records one completed action-frame for audit
// purposes; failures are non-fatal to callers by design (logging must
// never abort a deployment phase).
func (s *Store) AppendActionLog(ctx context.Context, profileID string, releaseID uint64, action, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_log (profile_id, release_id, action, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, profileID, releaseID, action, status, now)
	return err
}
