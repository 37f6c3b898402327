// Package directory talks to the remote assignment directory service, the
// system of record for teacher-authored assignments. Transport failures are
// normalized into the typed errors below; nothing here decides what the
// student sees, that is the resolver's job.
package directory

import (
	"context"
	"errors"

	"github.com/mind-engage/lessonsync/internal/activity"
)

var (
	// ErrUnreachable is a transport-level failure (no network, timeout).
	// Transient and retry-eligible. Never to be confused with "the server
	// says there are no assignments".
	ErrUnreachable = errors.New("directory unreachable")
	// ErrServerError means the service was reached but rejected the request.
	ErrServerError = errors.New("directory server error")
	// ErrInvalidAssignment means the referenced assignment id is unknown or
	// expired server-side.
	ErrInvalidAssignment = errors.New("invalid assignment")
)

// RemoteAssignment is server-owned and read-only to this client. Question
// order is significant: it is the presentation and grading order.
type RemoteAssignment struct {
	ID          int64               `json:"assignment_id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Subject     string              `json:"subject"`
	CreatedBy   string              `json:"created_by"`
	DueDate     string              `json:"due_date"`
	Questions   []activity.Question `json:"questions"`
}

type Client interface {
	// FetchActiveAssignments returns the active assignments for a subject.
	// An empty slice is a valid, authoritative answer; an error means the
	// answer is unknown.
	FetchActiveAssignments(ctx context.Context, subject string) ([]RemoteAssignment, error)
	// SubmitAnswers submits a completed attempt for server-side scoring.
	SubmitAnswers(ctx context.Context, assignmentID string, answers []activity.Answer) (activity.SubmissionResult, error)
}
