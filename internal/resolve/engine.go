// Package resolve decides, per subject, whether a teacher assignment or the
// default stage sequence is presented. The precedence rule is the heart of
// the client: a reachable server is always authoritative, including when it
// answers "no assignments"; an unreachable server never is, so a transient
// outage falls back to the cached snapshot instead of silently dropping a
// teacher's assignment.
package resolve

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/directory"
	"github.com/mind-engage/lessonsync/internal/stages"
	"github.com/mind-engage/lessonsync/internal/store"
)

// ErrSuperseded means a newer resolution for a different subject started
// while this one was in flight. The result was discarded, not applied;
// callers drop it and wait for the newer resolution.
var ErrSuperseded = errors.New("resolution superseded")

// Cache is the slice of the local state store the engine reads and writes.
type Cache interface {
	Snapshot(ctx context.Context, subject string) (activity.Snapshot, error)
	PutSnapshot(ctx context.Context, snap activity.Snapshot) error
	DeleteSnapshot(ctx context.Context, subject string) error
}

type Fetcher interface {
	FetchActiveAssignments(ctx context.Context, subject string) ([]directory.RemoteAssignment, error)
}

type Engine struct {
	cache   Cache
	dir     Fetcher
	catalog *stages.Catalog
	timeout time.Duration
	log     zerolog.Logger

	group singleflight.Group

	mu      sync.Mutex
	seq     uint64
	subject string
}

func NewEngine(cache Cache, dir Fetcher, catalog *stages.Catalog, fetchTimeout time.Duration, log zerolog.Logger) *Engine {
	if fetchTimeout <= 0 {
		fetchTimeout = 4 * time.Second
	}
	return &Engine{
		cache:   cache,
		dir:     dir,
		catalog: catalog,
		timeout: fetchTimeout,
		log:     log,
	}
}

// begin assigns a generation token. A request for the same subject joins the
// in-flight generation; a request for a different subject starts a new one,
// superseding whatever is still in flight.
func (e *Engine) begin(subject string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subject != subject {
		e.seq++
		e.subject = subject
	}
	return e.seq
}

func (e *Engine) superseded(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq != gen
}

// Resolve computes the Decision for a subject. It mutates only the snapshot
// cache, never the session: commitment is the session manager's job, so the
// caller can show a preview step between the two.
func (e *Engine) Resolve(ctx context.Context, subject string) (activity.Decision, error) {
	if subject == "" {
		return activity.Decision{}, errors.New("subject required")
	}
	gen := e.begin(subject)

	// Concurrent requests for the same subject join the in-flight
	// resolution rather than issuing a duplicate fetch.
	v, err, _ := e.group.Do(subject, func() (any, error) {
		return e.resolveOnce(ctx, subject, gen)
	})
	if err != nil {
		return activity.Decision{}, err
	}
	return v.(activity.Decision), nil
}

func (e *Engine) resolveOnce(ctx context.Context, subject string, gen uint64) (activity.Decision, error) {
	cached, cacheOK := e.readSnapshot(ctx, subject)

	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	assignments, err := e.dir.FetchActiveAssignments(fctx, subject)

	if e.superseded(gen) {
		// A newer resolution for another subject started while we were on
		// the wire. Discard this result without touching the cache.
		e.log.Debug().Str("subject", subject).Msg("resolution superseded, result discarded")
		return activity.Decision{}, ErrSuperseded
	}

	if err == nil {
		if len(assignments) > 0 {
			// Server order is authoritative; first wins.
			first := assignments[0]
			snap := snapshotFrom(subject, first)
			if werr := e.cache.PutSnapshot(ctx, snap); werr != nil {
				e.log.Error().Err(werr).Str("subject", subject).Msg("snapshot write failed")
			}
			return activity.Decision{
				Subject:      subject,
				Source:       activity.SourceTeacher,
				AssignmentID: snap.AssignmentID,
				DisplayTitle: snap.Title,
			}, nil
		}
		// Zero assignments is an explicit, authoritative "no assignment":
		// the stale snapshot must not resurrect it later.
		if werr := e.cache.DeleteSnapshot(ctx, subject); werr != nil {
			e.log.Error().Err(werr).Str("subject", subject).Msg("snapshot clear failed")
		}
		return e.defaultDecision(subject), nil
	}

	e.log.Warn().Err(err).Str("subject", subject).Msg("assignment fetch failed, falling back")
	if cacheOK && cached.HasAssignment() {
		// Stale data accepted over silently dropping a teacher assignment.
		return activity.Decision{
			Subject:      subject,
			Source:       activity.SourceTeacher,
			AssignmentID: cached.AssignmentID,
			DisplayTitle: cached.Title,
		}, nil
	}
	return e.defaultDecision(subject), nil
}

func (e *Engine) readSnapshot(ctx context.Context, subject string) (activity.Snapshot, bool) {
	cached, err := e.cache.Snapshot(ctx, subject)
	switch {
	case err == nil:
		return cached, true
	case errors.Is(err, store.ErrNotFound):
		return activity.Snapshot{}, false
	case errors.Is(err, store.ErrCacheCorrupt):
		e.log.Warn().Err(err).Str("subject", subject).Msg("corrupt snapshot treated as absent")
		return activity.Snapshot{}, false
	default:
		e.log.Error().Err(err).Str("subject", subject).Msg("snapshot read failed")
		return activity.Snapshot{}, false
	}
}

func (e *Engine) defaultDecision(subject string) activity.Decision {
	return activity.Decision{
		Subject:      subject,
		Source:       activity.SourceDefault,
		DisplayTitle: e.catalog.DisplayTitle(subject),
	}
}

func snapshotFrom(subject string, a directory.RemoteAssignment) activity.Snapshot {
	return activity.Snapshot{
		Subject:      subject,
		AssignmentID: strconv.FormatInt(a.ID, 10),
		Title:        a.Title,
		Content:      a.Description,
		CreatedAt:    time.Now(),
		Questions:    a.Questions,
	}
}
