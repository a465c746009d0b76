package parser

import (
	"errors"
	"iter"
	"regexp"
	"strings"

	"github.com/pavelanni/gradesheet/internal/model"
)

// ErrNoQuestions is returned when no question could be parsed from a solution document.
var ErrNoQuestions = errors.New("could not parse questions from the solution document")

// answerMarkerRegex matches "Answer" followed by a colon, en dash or whitespace
// and captures everything after it, newlines included.
var answerMarkerRegex = regexp.MustCompile(`(?is)answer[:–\s]+(.*)`)

// DropReason explains why a solution block produced no question.
type DropReason string

const (
	DropNoAnswerMarker DropReason = "no_answer_marker"
	DropNoNumber       DropReason = "no_question_number"
	DropEmptyAnswer    DropReason = "empty_answer"
)

// Dropped is a solution block that was excluded from the question set.
type Dropped struct {
	Block  Block
	Reason DropReason
}

// Extraction is the result of parsing a solution document.
type Extraction struct {
	Questions []model.SolutionQuestion
	Dropped   []Dropped
}

// ExtractSolution turns solution blocks into questions in document order.
// Blocks without an answer marker or a leading number are dropped.
func ExtractSolution(blocks iter.Seq[Block]) (Extraction, error) {
	var ex Extraction
	for b := range blocks {
		loc := answerMarkerRegex.FindStringSubmatchIndex(b.RawText)
		if loc == nil {
			ex.Dropped = append(ex.Dropped, Dropped{Block: b, Reason: DropNoAnswerMarker})
			continue
		}
		questionText := strings.TrimSpace(b.RawText[:loc[0]])
		answer := strings.TrimSpace(b.RawText[loc[2]:loc[3]])

		n, ok := leadingNumber(questionText)
		if !ok {
			ex.Dropped = append(ex.Dropped, Dropped{Block: b, Reason: DropNoNumber})
			continue
		}
		if answer == "" {
			ex.Dropped = append(ex.Dropped, Dropped{Block: b, Reason: DropEmptyAnswer})
			continue
		}
		ex.Questions = append(ex.Questions, model.SolutionQuestion{
			Number:          n,
			QuestionText:    questionText,
			CanonicalAnswer: answer,
		})
	}
	if len(ex.Questions) == 0 {
		return ex, ErrNoQuestions
	}
	return ex, nil
}
