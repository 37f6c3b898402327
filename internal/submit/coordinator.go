// Package submit packages gameplay results, attaches the session identity,
// and reconciles local progress with the server's scoring response. A
// submission that cannot reach the directory service is deferred to durable
// storage, never dropped.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/directory"
)

// ErrDuplicateAnswer means the same question id appears twice in one
// submission.
var ErrDuplicateAnswer = errors.New("duplicate answer for question")

// ErrIncompleteAnswers means the answer set does not cover every question
// of the active assignment exactly once.
var ErrIncompleteAnswers = errors.New("answers do not cover assignment questions")

// Scorer scores default-stage play. It is a collaborator: the coordinator
// only routes its result.
type Scorer interface {
	Score(subject string, answers []activity.Answer) (activity.SubmissionResult, error)
}

// Store is the slice of the local state store the coordinator needs.
type Store interface {
	Snapshot(ctx context.Context, subject string) (activity.Snapshot, error)
	PutProgress(ctx context.Context, p activity.Progress) error
	AddPending(ctx context.Context, p activity.PendingSubmission) error
	ListPending(ctx context.Context) ([]activity.PendingSubmission, error)
	RemovePending(ctx context.Context, id string) error
	MarkPendingAttempt(ctx context.Context, id, lastErr string) error
}

type Submitter interface {
	SubmitAnswers(ctx context.Context, assignmentID string, answers []activity.Answer) (activity.SubmissionResult, error)
}

// Outcome is what a submission produced: a result, or a deferral that will
// be retried later.
type Outcome struct {
	Result    activity.SubmissionResult `json:"result"`
	Deferred  bool                      `json:"deferred"`
	PendingID string                    `json:"pending_id,omitempty"`
}

type Coordinator struct {
	store      Store
	dir        Submitter
	scorer     Scorer
	retryDelay time.Duration
	log        zerolog.Logger
	sleep      func(time.Duration) // test seam
}

func NewCoordinator(st Store, dir Submitter, scorer Scorer, retryDelay time.Duration, log zerolog.Logger) *Coordinator {
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &Coordinator{
		store:      st,
		dir:        dir,
		scorer:     scorer,
		retryDelay: retryDelay,
		log:        log,
		sleep:      time.Sleep,
	}
}

// Submit sends the session's results. Default-source sessions are scored
// locally and never leave the device. Teacher-source sessions go to the
// directory service, with one retry; a second failure defers the submission
// durably and reports it as such.
func (c *Coordinator) Submit(ctx context.Context, sess activity.Session, answers []activity.Answer) (Outcome, error) {
	if len(answers) == 0 {
		return Outcome{}, errors.New("no answers to submit")
	}
	if err := checkDuplicates(answers); err != nil {
		return Outcome{}, err
	}

	if sess.Source == activity.SourceDefault {
		result, err := c.scorer.Score(sess.Subject, answers)
		if err != nil {
			return Outcome{}, fmt.Errorf("local scoring: %w", err)
		}
		c.recordProgress(ctx, sess, result)
		return Outcome{Result: result}, nil
	}

	if err := c.checkCoverage(ctx, sess, answers); err != nil {
		return Outcome{}, err
	}

	result, err := c.dir.SubmitAnswers(ctx, sess.AssignmentID, answers)
	if err != nil && retryable(err) {
		c.log.Warn().Err(err).Str("assignment_id", sess.AssignmentID).Msg("submission failed, retrying once")
		c.sleep(c.retryDelay)
		result, err = c.dir.SubmitAnswers(ctx, sess.AssignmentID, answers)
	}
	if err != nil {
		if !retryable(err) {
			// The server says the assignment is gone; deferring would never
			// succeed. Surfaced to the user as "assignment expired".
			return Outcome{}, err
		}
		return c.deferSubmission(ctx, sess, answers, err)
	}

	c.recordProgress(ctx, sess, result)
	return Outcome{Result: result}, nil
}

// FlushDeferred retries every persisted pending submission once. Triggered
// externally: at agent startup and via the flush endpoint. Returns how many
// completed.
func (c *Coordinator) FlushDeferred(ctx context.Context) (int, error) {
	pendings, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, p := range pendings {
		result, err := c.dir.SubmitAnswers(ctx, p.AssignmentID, p.Answers)
		switch {
		case err == nil:
			c.recordProgress(ctx, activity.Session{
				Subject:      p.Subject,
				AssignmentID: p.AssignmentID,
				Source:       activity.SourceTeacher,
			}, result)
			if rerr := c.store.RemovePending(ctx, p.ID); rerr != nil {
				c.log.Error().Err(rerr).Str("pending_id", p.ID).Msg("pending cleanup failed")
			}
			flushed++
		case errors.Is(err, directory.ErrInvalidAssignment):
			c.log.Warn().Str("pending_id", p.ID).Str("assignment_id", p.AssignmentID).
				Msg("deferred submission dropped: assignment expired server-side")
			if rerr := c.store.RemovePending(ctx, p.ID); rerr != nil {
				c.log.Error().Err(rerr).Str("pending_id", p.ID).Msg("pending cleanup failed")
			}
		default:
			if merr := c.store.MarkPendingAttempt(ctx, p.ID, err.Error()); merr != nil {
				c.log.Error().Err(merr).Str("pending_id", p.ID).Msg("pending attempt mark failed")
			}
		}
	}
	return flushed, nil
}

func (c *Coordinator) deferSubmission(ctx context.Context, sess activity.Session, answers []activity.Answer, cause error) (Outcome, error) {
	pending := activity.PendingSubmission{
		ID:           uuid.NewString(),
		Subject:      sess.Subject,
		AssignmentID: sess.AssignmentID,
		Answers:      answers,
		Attempts:     2,
		LastError:    cause.Error(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := c.store.AddPending(ctx, pending); err != nil {
		// Persisting the deferral failed too; surface the original cause
		// rather than pretending the submission is safe.
		return Outcome{}, fmt.Errorf("defer submission: %v (original: %w)", err, cause)
	}
	c.log.Warn().
		Str("pending_id", pending.ID).
		Str("assignment_id", sess.AssignmentID).
		Msg("submission deferred for later retry")
	return Outcome{Deferred: true, PendingID: pending.ID}, nil
}

// checkCoverage validates the answer set against the cached assignment when
// the cache still describes this session's assignment. Order is free; every
// question must be answered exactly once. When the cache cannot vouch for
// the question set, the server's validation is authoritative instead.
func (c *Coordinator) checkCoverage(ctx context.Context, sess activity.Session, answers []activity.Answer) error {
	snap, err := c.store.Snapshot(ctx, sess.Subject)
	if err != nil || snap.AssignmentID != sess.AssignmentID || len(snap.Questions) == 0 {
		return nil
	}
	if len(answers) != len(snap.Questions) {
		return fmt.Errorf("%w: %d answers for %d questions", ErrIncompleteAnswers, len(answers), len(snap.Questions))
	}
	answered := make(map[int64]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	for _, q := range snap.Questions {
		if !answered[q.ID] {
			return fmt.Errorf("%w: question %d unanswered", ErrIncompleteAnswers, q.ID)
		}
	}
	return nil
}

func (c *Coordinator) recordProgress(ctx context.Context, sess activity.Session, result activity.SubmissionResult) {
	err := c.store.PutProgress(ctx, activity.Progress{
		Subject:      sess.Subject,
		AssignmentID: sess.AssignmentID,
		Result:       result,
		UpdatedAt:    time.Now(),
	})
	if err != nil {
		c.log.Error().Err(err).Str("subject", sess.Subject).Msg("progress write failed")
	}
}

func checkDuplicates(answers []activity.Answer) error {
	seen := make(map[int64]bool, len(answers))
	for _, a := range answers {
		if seen[a.QuestionID] {
			return fmt.Errorf("%w: %d", ErrDuplicateAnswer, a.QuestionID)
		}
		seen[a.QuestionID] = true
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, directory.ErrUnreachable) || errors.Is(err, directory.ErrServerError)
}
