package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mind-engage/lessonsync/internal/activity"
)

type Config struct {
	BaseURL   string
	StudentID string
	Timeout   time.Duration
}

type HTTPClient struct {
	base      string
	studentID string
	http      *http.Client
	log       zerolog.Logger
}

func NewHTTPClient(cfg Config, log zerolog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		base:      cfg.BaseURL,
		studentID: cfg.StudentID,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

func (c *HTTPClient) FetchActiveAssignments(ctx context.Context, subject string) ([]RemoteAssignment, error) {
	body, _ := json.Marshal(map[string]string{
		"student_id": c.studentID,
		"subject":    subject,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", c.base+"/api/student/assignments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("subject", subject).Msg("assignment fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: fetch assignments: %s", ErrServerError, res.Status)
	}

	var out struct {
		Assignments []RemoteAssignment `json:"assignments"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode assignments: %v", ErrServerError, err)
	}
	// An empty array is authoritative: the teacher has no active assignment.
	if out.Assignments == nil {
		out.Assignments = []RemoteAssignment{}
	}
	return out.Assignments, nil
}

func (c *HTTPClient) SubmitAnswers(ctx context.Context, assignmentID string, answers []activity.Answer) (activity.SubmissionResult, error) {
	body, _ := json.Marshal(map[string]any{
		"answers": answers,
	})
	endpoint := c.base + "/api/submit/" + url.PathEscape(assignmentID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return activity.SubmissionResult{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("assignment_id", assignmentID).Msg("submission failed")
		return activity.SubmissionResult{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return activity.SubmissionResult{}, fmt.Errorf("%w: assignment %s", ErrInvalidAssignment, assignmentID)
	case res.StatusCode/100 != 2:
		return activity.SubmissionResult{}, fmt.Errorf("%w: submit: %s", ErrServerError, res.Status)
	}

	var result activity.SubmissionResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return activity.SubmissionResult{}, fmt.Errorf("%w: decode result: %v", ErrServerError, err)
	}
	return result, nil
}
