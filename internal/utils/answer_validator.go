package utils

import (
	"fmt"

	"github.com/aetuition/testing-service/internal/models"
)

// AnswerPayload is the shape-only view of a submitted answer used to check
// that the right payload field is populated for a question's type.
type AnswerPayload struct {
	HasText       bool
	HasSelections bool
	HasDropdowns  bool
	HasFillIns    bool
	HasPattern    bool
}

// ValidateAnswerPayload rejects answers whose payload does not match the
// question type. An entirely empty payload is allowed so clients can clear
// an answer.
func ValidateAnswerPayload(questionType models.QuestionType, payload AnswerPayload) error {
	if !payload.HasText && !payload.HasSelections && !payload.HasDropdowns &&
		!payload.HasFillIns && !payload.HasPattern {
		return nil
	}

	switch questionType {
	case models.MultipleChoice, models.TrueFalse, models.ReadingComprehension,
		models.SynonymSelection, models.AntonymSelection, models.OddOneOut,
		models.DoubleMeaningMatch:
		if !payload.HasSelections {
			return fmt.Errorf("question type %s requires selected options", questionType)
		}
	case models.FillBlank, models.TextEntry, models.SentenceCompletion,
		models.WordCompletion, models.SynonymCompletion, models.AntonymCompletion:
		if !payload.HasText {
			return fmt.Errorf("question type %s requires a text answer", questionType)
		}
	case models.ClozeTest, models.WordBankCloze, models.FillMissingLetters:
		if !payload.HasFillIns {
			return fmt.Errorf("question type %s requires fill-in answers", questionType)
		}
	case models.ClozeSelect, models.DropdownSelect:
		if !payload.HasDropdowns {
			return fmt.Errorf("question type %s requires dropdown selections", questionType)
		}
	case models.PatternRecognition:
		if !payload.HasPattern {
			return fmt.Errorf("question type %s requires a pattern response", questionType)
		}
	}
	return nil
}
