package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/lessonsync/internal/activity"
)

var (
	// ErrNotFound means no value is persisted under the requested key.
	ErrNotFound = errors.New("not found")
	// ErrCacheCorrupt means a persisted value failed validation. Callers
	// treat it as absent; it is never fatal.
	ErrCacheCorrupt = errors.New("cache corrupt")
)

const sessionKey = "current_session"

func snapshotKey(subject string) string { return "active_assignment/" + subject }
func progressKey(subject string) string { return "progress/" + subject }

// Store is the durable device-local state: the per-subject active-assignment
// snapshot, the single current session, per-subject progress, and the
// deferred-submission queue. Each key is written atomically in one row, so a
// reader never observes a half-written value.
type Store struct{ DB *sql.DB }

func New(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) get(ctx context.Context, key string, out any) error {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT v FROM kv_state WHERE k=$1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrCacheCorrupt, key, err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO kv_state (k, v, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (k) DO UPDATE SET v=$2, updated_at=$3`,
		key, string(raw), time.Now().Unix())
	return err
}

func (s *Store) delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM kv_state WHERE k=$1`, key)
	return err
}

// Snapshot returns the cached active-assignment snapshot for a subject.
func (s *Store) Snapshot(ctx context.Context, subject string) (activity.Snapshot, error) {
	var snap activity.Snapshot
	if err := s.get(ctx, snapshotKey(subject), &snap); err != nil {
		return activity.Snapshot{}, err
	}
	if snap.Subject != subject {
		return activity.Snapshot{}, fmt.Errorf("%w: snapshot subject %q under key for %q", ErrCacheCorrupt, snap.Subject, subject)
	}
	return snap, nil
}

// PutSnapshot replaces the subject's snapshot. At most one snapshot per
// subject is kept; keys are namespaced by subject so one subject's
// assignment can never bleed into another's resolution.
func (s *Store) PutSnapshot(ctx context.Context, snap activity.Snapshot) error {
	if snap.Subject == "" {
		return errors.New("snapshot subject required")
	}
	return s.set(ctx, snapshotKey(snap.Subject), snap)
}

func (s *Store) DeleteSnapshot(ctx context.Context, subject string) error {
	return s.delete(ctx, snapshotKey(subject))
}

// CurrentSession returns the single persisted session, or ErrNotFound when
// the device is idle.
func (s *Store) CurrentSession(ctx context.Context) (activity.Session, error) {
	var sess activity.Session
	if err := s.get(ctx, sessionKey, &sess); err != nil {
		return activity.Session{}, err
	}
	if sess.Subject == "" {
		return activity.Session{}, fmt.Errorf("%w: session missing subject", ErrCacheCorrupt)
	}
	return sess, nil
}

func (s *Store) PutSession(ctx context.Context, sess activity.Session) error {
	if sess.Subject == "" {
		return errors.New("session subject required")
	}
	return s.set(ctx, sessionKey, sess)
}

func (s *Store) ClearSession(ctx context.Context) error {
	return s.delete(ctx, sessionKey)
}

// Progress returns the last reconciled result for a subject.
func (s *Store) Progress(ctx context.Context, subject string) (activity.Progress, error) {
	var p activity.Progress
	if err := s.get(ctx, progressKey(subject), &p); err != nil {
		return activity.Progress{}, err
	}
	return p, nil
}

func (s *Store) PutProgress(ctx context.Context, p activity.Progress) error {
	if p.Subject == "" {
		return errors.New("progress subject required")
	}
	return s.set(ctx, progressKey(p.Subject), p)
}
