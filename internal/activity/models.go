package activity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source says who authored the activity a student is sent into. Resolution
// and submission routing dispatch on this value, never on titles or ids.
type Source int

const (
	SourceDefault Source = iota
	SourceTeacher
)

func (s Source) String() string {
	if s == SourceTeacher {
		return "teacher"
	}
	return "default"
}

func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Source) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v {
	case "teacher":
		*s = SourceTeacher
	case "default":
		*s = SourceDefault
	default:
		return fmt.Errorf("unknown source %q", v)
	}
	return nil
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FillInBlank    QuestionType = "fill_in_blank"
	YesNo          QuestionType = "yes_no"
	Enumeration    QuestionType = "enumeration"
)

type Question struct {
	ID            int64        `json:"question_id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"` // MultipleChoice only
	CorrectAnswer string       `json:"correct_answer,omitempty"`
}

// Snapshot is the locally cached copy of one subject's active assignment.
// An empty AssignmentID means "no active assignment cached". Questions are
// cached alongside the header so gameplay can run from a stale snapshot when
// the directory service is unreachable.
type Snapshot struct {
	Subject      string     `json:"subject"`
	AssignmentID string     `json:"assignment_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	CreatedAt    time.Time  `json:"created_at"`
	Questions    []Question `json:"questions,omitempty"`
}

func (s Snapshot) HasAssignment() bool { return s.AssignmentID != "" }

// Decision is the resolved choice for one navigation event. It is ephemeral:
// recomputed per navigation, never persisted.
type Decision struct {
	Subject      string `json:"subject"`
	Source       Source `json:"source"`
	AssignmentID string `json:"assignment_id,omitempty"` // Teacher source only
	DisplayTitle string `json:"display_title"`
}

// Session is the single globally-active assignment identity driving gameplay
// and submission. Exactly one is live, device-wide.
type Session struct {
	Subject      string `json:"subject"`
	AssignmentID string `json:"assignment_id,omitempty"`
	Title        string `json:"title"`
	Source       Source `json:"source"`
}

type Answer struct {
	QuestionID    int64  `json:"question_id"`
	StudentAnswer string `json:"student_answer"`
}

// SubmissionResult is authoritative only when produced by the directory
// service; default-stage results come from the local scorer collaborator.
type SubmissionResult struct {
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	PointsEarned   int     `json:"points_earned"`
}

// Progress is the per-subject record of the last reconciled result.
type Progress struct {
	Subject      string           `json:"subject"`
	AssignmentID string           `json:"assignment_id,omitempty"`
	Result       SubmissionResult `json:"result"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// PendingSubmission is a submission that failed to reach the directory
// service and is retained for a later retry. Never dropped silently.
type PendingSubmission struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	AssignmentID string    `json:"assignment_id"`
	Answers      []Answer  `json:"answers"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
