// Package marking scores stored answers against their questions. Strategies
// are pure: one call per (question, answer) pair, no storage access.
package marking

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/aetuition/testing-service/internal/models"
)

// Answer is the decoded, type-tagged payload of a stored response. Exactly
// one field is meaningful for a given question type.
type Answer struct {
	Text       *string           // free-text and completion answers
	Selected   []string          // selected answer-option ids
	Selections map[string]string // blank label -> selected text (dropdown/cloze select)
	FillIns    map[string]string // blank label -> entered text
	Pattern    json.RawMessage   // structured pattern payload
}

// DecodeAnswer extracts the tagged payload from a persisted response row.
func DecodeAnswer(r *models.QuestionResponse) Answer {
	if r == nil {
		return Answer{}
	}
	ans := Answer{Text: r.AnswerText}
	if len(r.SelectedOptions) > 0 {
		_ = json.Unmarshal(r.SelectedOptions, &ans.Selected)
	}
	if len(r.DropdownSelections) > 0 {
		_ = json.Unmarshal(r.DropdownSelections, &ans.Selections)
	}
	if len(r.FillInAnswers) > 0 {
		_ = json.Unmarshal(r.FillInAnswers, &ans.FillIns)
	}
	if len(r.PatternResponse) > 0 {
		ans.Pattern = json.RawMessage(r.PatternResponse)
	}
	return ans
}

// Outcome is the result of marking a single answer. PartialScore is the
// fraction of the question the answer got right, reported whether or not
// partial credit affects PointsEarned.
type Outcome struct {
	IsCorrect    bool
	PointsEarned int
	PartialScore float64

	// Unsupported marks answers no strategy exists for; they score zero and
	// are flagged for manual review rather than failing the submission.
	Unsupported bool
}

// Mark scores one answer. maxPoints is the per-test points value for the
// question, which may differ from the question's default.
func Mark(q *models.Question, maxPoints int, ans Answer) Outcome {
	switch q.QuestionType {
	case models.MultipleChoice, models.TrueFalse, models.ReadingComprehension,
		models.SynonymSelection, models.AntonymSelection, models.OddOneOut,
		models.DoubleMeaningMatch:
		return markChoice(q, maxPoints, ans.Selected)

	case models.FillBlank, models.TextEntry, models.SentenceCompletion:
		return markText(q, maxPoints, ans.Text, textCorrectAnswer(q))

	case models.SynonymCompletion, models.AntonymCompletion, models.WordCompletion:
		return markText(q, maxPoints, ans.Text, completionCorrectAnswer(q))

	case models.FillMissingLetters, models.ClozeTest, models.WordBankCloze:
		return markBlanks(q, maxPoints, ans.FillIns)

	case models.ClozeSelect, models.DropdownSelect:
		return markBlanks(q, maxPoints, ans.Selections)

	case models.PatternRecognition:
		return markPattern(q, maxPoints, ans.Pattern)

	case models.SentenceRearrangement:
		// No real scoring strategy exists for this type; route to manual
		// review instead of guessing.
		return Outcome{Unsupported: true}
	}

	return Outcome{Unsupported: true}
}

// markChoice grades selection questions: correct iff the selected id set
// equals the correct id set. With partial credit the fraction is
// |selected ∩ correct| / |correct|.
func markChoice(q *models.Question, maxPoints int, selected []string) Outcome {
	if len(selected) == 0 {
		return Outcome{}
	}

	correct := make(map[string]bool)
	for _, opt := range q.AnswerOptions {
		if opt.IsCorrect {
			correct[opt.ID.String()] = true
		}
	}
	if len(correct) == 0 {
		return Outcome{}
	}

	selectedSet := make(map[string]bool, len(selected))
	for _, id := range selected {
		selectedSet[id] = true
	}

	if setsEqual(selectedSet, correct) {
		return Outcome{IsCorrect: true, PointsEarned: maxPoints, PartialScore: 1.0}
	}

	if q.AllowPartialCredit {
		hits := 0
		for id := range selectedSet {
			if correct[id] {
				hits++
			}
		}
		partial := float64(hits) / float64(len(correct))
		return Outcome{PointsEarned: int(float64(maxPoints) * partial), PartialScore: partial}
	}

	return Outcome{}
}

func markText(q *models.Question, maxPoints int, text *string, expected string) Outcome {
	if text == nil || strings.TrimSpace(*text) == "" || expected == "" {
		return Outcome{}
	}
	if !textEqual(strings.TrimSpace(*text), strings.TrimSpace(expected), q.CaseSensitive) {
		return Outcome{}
	}
	return Outcome{IsCorrect: true, PointsEarned: maxPoints, PartialScore: 1.0}
}

// markBlanks grades multi-blank answers against the question's expected map.
// Fully correct iff every blank matches; the matched/total fraction is always
// reported, and with partial credit it also floors into the awarded points.
func markBlanks(q *models.Question, maxPoints int, given map[string]string) Outcome {
	expected := blankAnswers(q)
	if len(given) == 0 || len(expected) == 0 {
		return Outcome{}
	}

	matched := 0
	for label, want := range expected {
		if textEqual(strings.TrimSpace(given[label]), strings.TrimSpace(want), q.CaseSensitive) {
			matched++
		}
	}

	partial := float64(matched) / float64(len(expected))
	allCorrect := matched == len(expected)

	out := Outcome{IsCorrect: allCorrect, PartialScore: partial}
	if q.AllowPartialCredit {
		out.PointsEarned = int(float64(maxPoints) * partial)
	} else if allCorrect {
		out.PointsEarned = maxPoints
	}
	return out
}

// markPattern requires exact structural equality with the expected sequence;
// no partial credit.
func markPattern(q *models.Question, maxPoints int, response json.RawMessage) Outcome {
	if len(response) == 0 || len(q.PatternSequence) == 0 {
		return Outcome{}
	}

	var got, want any
	if err := json.Unmarshal(response, &got); err != nil {
		return Outcome{}
	}
	if err := json.Unmarshal(q.PatternSequence, &want); err != nil {
		return Outcome{}
	}

	if reflect.DeepEqual(got, want) {
		return Outcome{IsCorrect: true, PointsEarned: maxPoints, PartialScore: 1.0}
	}
	return Outcome{}
}

// textCorrectAnswer resolves the expected string for free-text questions:
// the question-level correct answer, else the first option flagged correct.
func textCorrectAnswer(q *models.Question) string {
	if q.CorrectAnswer != nil && *q.CorrectAnswer != "" {
		return *q.CorrectAnswer
	}
	for _, opt := range q.AnswerOptions {
		if opt.IsCorrect {
			return opt.OptionText
		}
	}
	return ""
}

// completionCorrectAnswer resolves the expected word for letter-box
// completion questions, falling back to the letter template's answer field.
func completionCorrectAnswer(q *models.Question) string {
	if q.CorrectAnswer != nil && *q.CorrectAnswer != "" {
		return *q.CorrectAnswer
	}
	if len(q.LetterTemplate) > 0 {
		var tmpl struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(q.LetterTemplate, &tmpl); err == nil {
			return tmpl.Answer
		}
	}
	return ""
}

func blankAnswers(q *models.Question) map[string]string {
	if len(q.CorrectAnswers) == 0 {
		return nil
	}
	var expected map[string]string
	if err := json.Unmarshal(q.CorrectAnswers, &expected); err != nil {
		return nil
	}
	return expected
}

func textEqual(a, b string, caseSensitive bool) bool {
	if b == "" {
		return false
	}
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
