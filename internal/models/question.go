package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	// Basic types
	MultipleChoice       QuestionType = "multiple_choice"
	TrueFalse            QuestionType = "true_false"
	FillBlank            QuestionType = "fill_blank"
	DropdownSelect       QuestionType = "dropdown_select"
	PatternRecognition   QuestionType = "pattern_recognition"
	ReadingComprehension QuestionType = "reading_comprehension"
	WordCompletion       QuestionType = "word_completion"
	SentenceCompletion   QuestionType = "sentence_completion"
	ClozeTest            QuestionType = "cloze_test"

	// 11+ verbal reasoning types
	SynonymCompletion     QuestionType = "synonym_completion"
	AntonymCompletion     QuestionType = "antonym_completion"
	SynonymSelection      QuestionType = "synonym_selection"
	AntonymSelection      QuestionType = "antonym_selection"
	OddOneOut             QuestionType = "odd_one_out"
	SentenceRearrangement QuestionType = "sentence_rearrangement"
	ClozeSelect           QuestionType = "cloze_select"
	FillMissingLetters    QuestionType = "fill_missing_letters"
	WordBankCloze         QuestionType = "word_bank_cloze"
	DoubleMeaningMatch    QuestionType = "double_meaning_match"
	TextEntry             QuestionType = "text_entry"
)

// AllQuestionTypes lists every declared enumerant, for validation.
var AllQuestionTypes = []QuestionType{
	MultipleChoice, TrueFalse, FillBlank, DropdownSelect, PatternRecognition,
	ReadingComprehension, WordCompletion, SentenceCompletion, ClozeTest,
	SynonymCompletion, AntonymCompletion, SynonymSelection, AntonymSelection,
	OddOneOut, SentenceRearrangement, ClozeSelect, FillMissingLetters,
	WordBankCloze, DoubleMeaningMatch, TextEntry,
}

type Question struct {
	ID              uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	QuestionText    *string      `json:"question_text" gorm:"type:text"`
	QuestionType    QuestionType `json:"question_type" gorm:"not null;index" validate:"required,question_type"`
	Subject         *string      `json:"subject" gorm:"size:50"`
	Points          int          `json:"points" gorm:"default:1"`
	ImageURL        *string      `json:"image_url" gorm:"type:text"`
	Explanation     *string      `json:"explanation" gorm:"type:text"`
	InstructionText *string      `json:"instruction_text" gorm:"type:text"`

	// Expected structure for pattern recognition questions
	PatternSequence datatypes.JSON `json:"pattern_sequence" gorm:"type:jsonb"`

	// Auto-marking configuration
	CorrectAnswer      *string        `json:"correct_answer" gorm:"type:text"`
	CorrectAnswers     datatypes.JSON `json:"correct_answers" gorm:"type:jsonb"` // blank label -> expected text
	CaseSensitive      bool           `json:"case_sensitive" gorm:"default:false"`
	AllowPartialCredit bool           `json:"allow_partial_credit" gorm:"default:false"`
	WordBank           datatypes.JSON `json:"word_bank" gorm:"type:jsonb"`
	LetterTemplate     datatypes.JSON `json:"letter_template" gorm:"type:jsonb"` // {"template": "_ n t ...", "answer": "..."}
	GivenWord          *string        `json:"given_word" gorm:"size:100"`

	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	AnswerOptions []AnswerOption `json:"answer_options,omitempty" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

type OptionType string

const (
	OptionText         OptionType = "text"
	OptionImage        OptionType = "image"
	OptionDropdownItem OptionType = "dropdown_item"
	OptionPatternShape OptionType = "pattern_shape"
)

type AnswerOption struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	QuestionID uuid.UUID  `json:"question_id" gorm:"type:uuid;not null;index"`
	OptionText string     `json:"option_text" gorm:"type:text;not null"`
	OptionType OptionType `json:"option_type" gorm:"default:text"`

	// Groups options per blank for dropdown/cloze questions
	OptionGroup *string `json:"option_group" gorm:"size:20"`

	IsCorrect   bool           `json:"is_correct" gorm:"default:false"`
	OrderNum    *int           `json:"order_number" gorm:"column:order_number"`
	ImageURL    *string        `json:"image_url" gorm:"type:text"`
	PatternData datatypes.JSON `json:"pattern_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (AnswerOption) TableName() string {
	return "answer_options"
}
