package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/resolve"
	"github.com/mind-engage/lessonsync/internal/session"
	"github.com/mind-engage/lessonsync/internal/stages"
	"github.com/mind-engage/lessonsync/internal/store"
)

/* ------------- fakes satisfying session.Store & session.Resolver ------------- */

type fakeSessionStore struct {
	sess    *activity.Session
	corrupt bool
}

func (s *fakeSessionStore) CurrentSession(context.Context) (activity.Session, error) {
	if s.corrupt {
		return activity.Session{}, store.ErrCacheCorrupt
	}
	if s.sess == nil {
		return activity.Session{}, store.ErrNotFound
	}
	return *s.sess, nil
}

func (s *fakeSessionStore) PutSession(_ context.Context, sess activity.Session) error {
	s.sess = &sess
	return nil
}

func (s *fakeSessionStore) ClearSession(context.Context) error {
	s.sess = nil
	return nil
}

type fakeResolver struct {
	decision activity.Decision
	err      error
}

func (r *fakeResolver) Resolve(context.Context, string) (activity.Decision, error) {
	return r.decision, r.err
}

func newManager(st *fakeSessionStore, r *fakeResolver) *session.Manager {
	return session.NewManager(st, r, stages.Default(), zerolog.Nop())
}

/* ------------------------------------------ tests ------------------------------------------ */

func TestCommit_ReplacesSessionAcrossSubjects(t *testing.T) {
	ctx := context.Background()
	st := &fakeSessionStore{}
	mgr := newManager(st, &fakeResolver{})

	if _, err := mgr.Commit(ctx, activity.Decision{
		Subject: "Math", Source: activity.SourceTeacher, AssignmentID: "7", DisplayTitle: "Basic Algebra Quiz",
	}); err != nil {
		t.Fatalf("commit math: %v", err)
	}
	if _, err := mgr.Commit(ctx, activity.Decision{
		Subject: "Science", Source: activity.SourceDefault, DisplayTitle: "Plant Life",
	}); err != nil {
		t.Fatalf("commit science: %v", err)
	}

	sess, ok, err := mgr.Current(ctx)
	if err != nil || !ok {
		t.Fatalf("current: ok=%v err=%v", ok, err)
	}
	// Only one session is ever live, device-wide.
	if sess.Subject != "Science" || sess.Source != activity.SourceDefault {
		t.Fatalf("expected the science session, got %+v", sess)
	}
}

func TestCommit_TeacherDecisionNeedsAssignmentID(t *testing.T) {
	mgr := newManager(&fakeSessionStore{}, &fakeResolver{})
	_, err := mgr.Commit(context.Background(), activity.Decision{
		Subject: "Math", Source: activity.SourceTeacher, DisplayTitle: "Quiz",
	})
	if err == nil {
		t.Fatalf("expected error for teacher decision without assignment id")
	}
}

func TestEnd_ReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	st := &fakeSessionStore{}
	mgr := newManager(st, &fakeResolver{})

	if _, err := mgr.Commit(ctx, activity.Decision{Subject: "Math", Source: activity.SourceDefault, DisplayTitle: "Number Explorer"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mgr.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, ok, _ := mgr.Current(ctx); ok {
		t.Fatalf("expected idle after end")
	}
	if mgr.State() != session.Idle {
		t.Fatalf("expected Idle state, got %v", mgr.State())
	}
}

func TestResolve_TerminalFailureSynthesizesDefault(t *testing.T) {
	mgr := newManager(&fakeSessionStore{}, &fakeResolver{err: errors.New("store exploded")})

	d, err := mgr.Resolve(context.Background(), "Math")
	if err != nil {
		t.Fatalf("terminal resolver failure must not block the student: %v", err)
	}
	if d.Source != activity.SourceDefault || d.Subject != "Math" {
		t.Fatalf("expected synthesized default decision, got %+v", d)
	}
}

func TestResolve_SupersededPropagates(t *testing.T) {
	mgr := newManager(&fakeSessionStore{}, &fakeResolver{err: resolve.ErrSuperseded})

	_, err := mgr.Resolve(context.Background(), "Math")
	if !errors.Is(err, resolve.ErrSuperseded) {
		t.Fatalf("superseded must propagate so the stale caller drops it, got %v", err)
	}
}

func TestCurrent_CorruptSessionReadsAsIdle(t *testing.T) {
	mgr := newManager(&fakeSessionStore{corrupt: true}, &fakeResolver{})

	_, ok, err := mgr.Current(context.Background())
	if err != nil {
		t.Fatalf("corrupt session must not be fatal: %v", err)
	}
	if ok {
		t.Fatalf("corrupt session must read as idle")
	}
}

func TestSubmitLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(&fakeSessionStore{}, &fakeResolver{})

	if err := mgr.BeginSubmit(); err == nil {
		t.Fatalf("submit without a committed session must fail")
	}

	if _, err := mgr.Commit(ctx, activity.Decision{Subject: "Math", Source: activity.SourceTeacher, AssignmentID: "7", DisplayTitle: "Quiz"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mgr.BeginSubmit(); err != nil {
		t.Fatalf("begin submit: %v", err)
	}
	if err := mgr.BeginSubmit(); err == nil {
		t.Fatalf("second concurrent submission must be rejected")
	}

	mgr.EndSubmit()
	// Submission completion returns to Committed, never to Idle.
	if mgr.State() != session.Committed {
		t.Fatalf("expected Committed after submit, got %v", mgr.State())
	}
	if _, ok, _ := mgr.Current(ctx); !ok {
		t.Fatalf("session must survive submission")
	}
}

func TestRestore_DerivesCommittedFromPersistedSession(t *testing.T) {
	sess := activity.Session{Subject: "Math", AssignmentID: "7", Title: "Quiz", Source: activity.SourceTeacher}
	mgr := newManager(&fakeSessionStore{sess: &sess}, &fakeResolver{})

	mgr.Restore(context.Background())
	if mgr.State() != session.Committed {
		t.Fatalf("expected Committed after restore, got %v", mgr.State())
	}
}
