// Package session owns the transition from a resolved Decision to the
// single live gameplay Session, and the lifecycle around it:
//
//	Idle -> Resolving -> Committed -> (Submitting -> Committed | Idle)
//
// The manager is the sole mutator of the persisted session; gameplay and
// the submission coordinator only read it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/resolve"
	"github.com/mind-engage/lessonsync/internal/stages"
	"github.com/mind-engage/lessonsync/internal/store"
)

type State int

const (
	Idle State = iota
	Resolving
	Committed
	Submitting
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Committed:
		return "committed"
	case Submitting:
		return "submitting"
	default:
		return "idle"
	}
}

// Store is the slice of the local state store the manager needs.
type Store interface {
	CurrentSession(ctx context.Context) (activity.Session, error)
	PutSession(ctx context.Context, sess activity.Session) error
	ClearSession(ctx context.Context) error
}

type Resolver interface {
	Resolve(ctx context.Context, subject string) (activity.Decision, error)
}

type Manager struct {
	store    Store
	resolver Resolver
	catalog  *stages.Catalog
	log      zerolog.Logger

	mu        sync.Mutex
	state     State
	resolving int // in-flight resolutions; state stays Resolving until the last returns
}

func NewManager(st Store, r Resolver, catalog *stages.Catalog, log zerolog.Logger) *Manager {
	return &Manager{store: st, resolver: r, catalog: catalog, log: log}
}

// Restore derives the lifecycle state from persisted data, run once at
// startup. A committed session survives a process restart.
func (m *Manager) Restore(ctx context.Context) {
	if _, ok, _ := m.Current(ctx); ok {
		m.mu.Lock()
		m.state = Committed
		m.mu.Unlock()
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resolve computes a Decision for the subject. A terminal resolver failure
// never blocks the student: it degrades to a synthesized Default decision.
// A superseded resolution propagates resolve.ErrSuperseded so the stale
// caller can drop it.
func (m *Manager) Resolve(ctx context.Context, subject string) (activity.Decision, error) {
	m.beginResolving()
	defer m.endResolving()

	d, err := m.resolver.Resolve(ctx, subject)
	if err != nil {
		if errors.Is(err, resolve.ErrSuperseded) {
			return activity.Decision{}, err
		}
		m.log.Error().Err(err).Str("subject", subject).Msg("resolution failed, synthesizing default decision")
		return activity.Decision{
			Subject:      subject,
			Source:       activity.SourceDefault,
			DisplayTitle: m.catalog.DisplayTitle(subject),
		}, nil
	}
	return d, nil
}

func (m *Manager) beginResolving() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolving++
	if m.state == Idle {
		m.state = Resolving
	}
}

func (m *Manager) endResolving() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolving--
	if m.state == Resolving && m.resolving == 0 {
		m.state = Idle
	}
}

// Commit persists the Decision as the current Session, replacing any prior
// session even for a different subject. Exactly one session is live,
// device-wide.
func (m *Manager) Commit(ctx context.Context, d activity.Decision) (activity.Session, error) {
	if d.Subject == "" {
		return activity.Session{}, errors.New("decision subject required")
	}
	if d.Source == activity.SourceTeacher && d.AssignmentID == "" {
		return activity.Session{}, errors.New("teacher decision missing assignment id")
	}

	sess := activity.Session{
		Subject:      d.Subject,
		AssignmentID: d.AssignmentID,
		Title:        d.DisplayTitle,
		Source:       d.Source,
	}
	if err := m.store.PutSession(ctx, sess); err != nil {
		return activity.Session{}, fmt.Errorf("persist session: %w", err)
	}

	m.mu.Lock()
	m.state = Committed
	m.mu.Unlock()

	m.log.Info().
		Str("subject", sess.Subject).
		Str("assignment_id", sess.AssignmentID).
		Str("source", sess.Source.String()).
		Msg("session committed")
	return sess, nil
}

// Current returns the live session, or ok=false when the device is idle.
// Malformed persisted data reads as idle; it never blocks the student.
func (m *Manager) Current(ctx context.Context) (activity.Session, bool, error) {
	sess, err := m.store.CurrentSession(ctx)
	switch {
	case err == nil:
		return sess, true, nil
	case errors.Is(err, store.ErrNotFound):
		return activity.Session{}, false, nil
	case errors.Is(err, store.ErrCacheCorrupt):
		m.log.Warn().Err(err).Msg("corrupt session treated as idle")
		return activity.Session{}, false, nil
	default:
		return activity.Session{}, false, err
	}
}

// End explicitly clears the session. Submission completion never does this
// automatically; the session stays committed until the student leaves.
func (m *Manager) End(ctx context.Context) error {
	if err := m.store.ClearSession(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = Idle
	m.mu.Unlock()
	return nil
}

// BeginSubmit moves a committed session into Submitting. The coordinator
// calls this before sending results so a second submission cannot start
// while one is in flight.
func (m *Manager) BeginSubmit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Committed:
		m.state = Submitting
		return nil
	case Submitting:
		return errors.New("submission already in progress")
	default:
		return fmt.Errorf("no committed session (state %s)", m.state)
	}
}

// EndSubmit returns to Committed on success or terminal failure, never to
// Idle.
func (m *Manager) EndSubmit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Submitting {
		m.state = Committed
	}
}
