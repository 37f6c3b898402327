// Package stages holds the built-in default activity sequences presented
// when no teacher assignment is active for a subject.
package stages

import "github.com/mind-engage/lessonsync/internal/activity"

type Stage struct {
	ID        string
	Title     string
	Questions []activity.Question
}

// Catalog maps a subject to its ordered default stage sequence. The zero
// subject falls back to a generic sequence so resolution never blocks on a
// missing catalog entry.
type Catalog struct {
	stages map[string][]Stage
}

func NewCatalog() *Catalog {
	return &Catalog{stages: map[string][]Stage{}}
}

// Register replaces the default sequence for a subject.
func (c *Catalog) Register(subject string, seq []Stage) {
	c.stages[subject] = seq
}

// SequenceFor returns the default stage sequence for a subject, in
// presentation order.
func (c *Catalog) SequenceFor(subject string) []Stage {
	return c.stages[subject]
}

// DisplayTitle is the title shown for a Default decision: the first stage's
// title when one exists.
func (c *Catalog) DisplayTitle(subject string) string {
	if seq := c.stages[subject]; len(seq) > 0 {
		return seq[0].Title
	}
	return subject + " Practice"
}

// Questions returns the full question set across a subject's stage
// sequence, for local scoring of default-stage play.
func (c *Catalog) Questions(subject string) []activity.Question {
	var out []activity.Question
	for _, st := range c.stages[subject] {
		out = append(out, st.Questions...)
	}
	return out
}

// Default is the catalog shipped with the client. Product content updates
// land here.
func Default() *Catalog {
	c := NewCatalog()
	c.Register("Math", []Stage{
		{ID: "math-1", Title: "Number Explorer", Questions: []activity.Question{
			{ID: 9001, Text: "What is 7 x 8?", Type: activity.FillInBlank, CorrectAnswer: "56"},
			{ID: 9002, Text: "Is 17 a prime number?", Type: activity.YesNo, CorrectAnswer: "yes"},
		}},
		{ID: "math-2", Title: "Fraction Quest", Questions: []activity.Question{
			{ID: 9003, Text: "Which is larger?", Type: activity.MultipleChoice, Options: []string{"1/2", "1/3"}, CorrectAnswer: "1/2"},
		}},
	})
	c.Register("Science", []Stage{
		{ID: "sci-1", Title: "Plant Life", Questions: []activity.Question{
			{ID: 9101, Text: "Do plants need sunlight to grow?", Type: activity.YesNo, CorrectAnswer: "yes"},
			{ID: 9102, Text: "Name the parts of a plant.", Type: activity.Enumeration, CorrectAnswer: "roots,stem,leaves"},
		}},
	})
	c.Register("English", []Stage{
		{ID: "eng-1", Title: "Word Builder", Questions: []activity.Question{
			{ID: 9201, Text: "A noun names a person, place, or ____.", Type: activity.FillInBlank, CorrectAnswer: "thing"},
		}},
	})
	return c
}
