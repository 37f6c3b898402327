// Package grading scores default-stage play locally. Teacher assignments are
// never scored here: the directory service is the only authority for those.
package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/stages"
)

const pointsPerQuestion = 10

// StageScorer scores answers against the default stage catalog.
type StageScorer struct {
	catalog *stages.Catalog
}

func NewStageScorer(catalog *stages.Catalog) *StageScorer {
	return &StageScorer{catalog: catalog}
}

func (s *StageScorer) Score(subject string, answers []activity.Answer) (activity.SubmissionResult, error) {
	questions := s.catalog.Questions(subject)
	if len(questions) == 0 {
		return activity.SubmissionResult{}, fmt.Errorf("no default stages for subject %q", subject)
	}

	byID := make(map[int64]string, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = a.StudentAnswer
	}

	correct := 0
	for _, q := range questions {
		resp, ok := byID[q.ID]
		if !ok {
			continue
		}
		if answerMatches(q, resp) {
			correct++
		}
	}

	total := len(questions)
	return activity.SubmissionResult{
		Score:          math.Round(float64(correct) / float64(total) * 100),
		CorrectAnswers: correct,
		TotalQuestions: total,
		PointsEarned:   correct * pointsPerQuestion,
	}, nil
}

func answerMatches(q activity.Question, resp string) bool {
	switch q.Type {
	case activity.Enumeration:
		// Order-insensitive: "stem, roots, leaves" matches "roots,stem,leaves".
		return equalStringSets(splitList(resp), splitList(q.CorrectAnswer))
	default:
		return normalize(resp) == normalize(q.CorrectAnswer)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if n := normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]int{}
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
