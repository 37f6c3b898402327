package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/lessonsync/internal/activity"
)

// AddPending persists a deferred submission so a later retry can complete it.
func (s *Store) AddPending(ctx context.Context, p activity.PendingSubmission) error {
	if p.ID == "" {
		return errors.New("pending submission id required")
	}
	answers, err := json.Marshal(p.Answers)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO pending_submissions (id, subject, assignment_id, answers_json, attempts, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (id) DO UPDATE SET
			answers_json=$4,
			attempts=$5,
			last_error=$6,
			updated_at=$7`,
		p.ID, p.Subject, p.AssignmentID, string(answers), p.Attempts, p.LastError, now)
	return err
}

// ListPending returns every deferred submission, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]activity.PendingSubmission, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, subject, assignment_id, answers_json, attempts, last_error, created_at, updated_at
		FROM pending_submissions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.PendingSubmission
	for rows.Next() {
		var p activity.PendingSubmission
		var answers string
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Subject, &p.AssignmentID, &answers, &p.Attempts, &p.LastError, &created, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &p.Answers); err != nil {
			return nil, fmt.Errorf("%w: pending %s: %v", ErrCacheCorrupt, p.ID, err)
		}
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) RemovePending(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id=$1`, id)
	return err
}

// MarkPendingAttempt records one more failed retry for a deferred submission.
func (s *Store) MarkPendingAttempt(ctx context.Context, id, lastErr string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE pending_submissions
		   SET attempts=attempts+1, last_error=$2, updated_at=$3
		 WHERE id=$1`, id, lastErr, time.Now().Unix())
	return err
}
