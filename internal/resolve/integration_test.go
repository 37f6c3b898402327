package resolve_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/directory"
	"github.com/mind-engage/lessonsync/internal/resolve"
	"github.com/mind-engage/lessonsync/internal/session"
	"github.com/mind-engage/lessonsync/internal/stages"
	"github.com/mind-engage/lessonsync/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "state.db")
	db, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}

func wiredEngine(t *testing.T, st *store.Store, baseURL string, timeout time.Duration) *resolve.Engine {
	t.Helper()
	dir := directory.NewHTTPClient(directory.Config{
		BaseURL:   baseURL,
		StudentID: "student-1",
		Timeout:   timeout,
	}, zerolog.Nop())
	return resolve.NewEngine(st, dir, stages.Default(), timeout, zerolog.Nop())
}

// Scenario: empty cache, directory returns one Math assignment. Resolution
// picks it and commit persists the session.
func TestEndToEnd_FreshAssignmentResolvedAndCommitted(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"assignments": []map[string]any{{
				"assignment_id": 7,
				"title":         "Basic Algebra Quiz",
				"subject":       "Math",
				"questions": []map[string]any{
					{"question_id": 1, "text": "2+2?", "type": "fill_in_blank", "correct_answer": "4"},
					{"question_id": 2, "text": "Is 5 even?", "type": "yes_no", "correct_answer": "no"},
				},
			}},
		})
	}))
	defer ts.Close()

	engine := wiredEngine(t, st, ts.URL, 2*time.Second)
	d, err := engine.Resolve(ctx, "Math")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Source != activity.SourceTeacher || d.AssignmentID != "7" || d.DisplayTitle != "Basic Algebra Quiz" {
		t.Fatalf("unexpected decision: %+v", d)
	}

	mgr := session.NewManager(st, engine, stages.Default(), zerolog.Nop())
	sess, err := mgr.Commit(ctx, d)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if sess.Subject != "Math" || sess.AssignmentID != "7" || sess.Source != activity.SourceTeacher {
		t.Fatalf("unexpected session: %+v", sess)
	}

	persisted, err := st.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if persisted != sess {
		t.Fatalf("persisted session mismatch: %+v vs %+v", persisted, sess)
	}
}

// Scenario: cached Science snapshot, directory call times out. The stale
// snapshot still drives a teacher decision.
func TestEndToEnd_TimeoutFallsBackToCachedSnapshot(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	if err := st.PutSnapshot(ctx, activity.Snapshot{
		Subject:      "Science",
		AssignmentID: "PLANTS_QUIZ_001",
		Title:        "Quiz 1: Plants",
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() { close(block); ts.Close() }()

	engine := wiredEngine(t, st, ts.URL, 100*time.Millisecond)
	d, err := engine.Resolve(ctx, "Science")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Source != activity.SourceTeacher || d.AssignmentID != "PLANTS_QUIZ_001" {
		t.Fatalf("expected cached teacher decision, got %+v", d)
	}
}

// Scenario: stale Science snapshot, directory answers with an empty list.
// The decision is default and the cache is cleared.
func TestEndToEnd_EmptyListClearsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	if err := st.PutSnapshot(ctx, activity.Snapshot{
		Subject:      "Science",
		AssignmentID: "PLANTS_QUIZ_001",
		Title:        "Quiz 1: Plants",
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"assignments": []any{}})
	}))
	defer ts.Close()

	engine := wiredEngine(t, st, ts.URL, 2*time.Second)
	d, err := engine.Resolve(ctx, "Science")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Source != activity.SourceDefault {
		t.Fatalf("expected default decision, got %+v", d)
	}

	if _, err := st.Snapshot(ctx, "Science"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cleared snapshot, got %v", err)
	}
}
