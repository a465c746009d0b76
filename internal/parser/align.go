package parser

import (
	"iter"
	"strings"

	"github.com/pavelanni/gradesheet/internal/model"
)

// Align produces exactly one answer per solution question, in solution order.
// Student blocks are looked up by their leading number; when a number appears
// more than once the last block wins. Questions without a usable block get
// model.NoAnswer.
func Align(blocks iter.Seq[Block], questions []model.SolutionQuestion) []model.StudentAnswer {
	index := make(map[int]string)
	for b := range blocks {
		text := strings.TrimSpace(b.RawText)
		n, ok := leadingNumber(text)
		if !ok {
			continue
		}
		index[n] = text
	}

	answers := make([]model.StudentAnswer, 0, len(questions))
	for _, q := range questions {
		block, ok := index[q.Number]
		if !ok {
			answers = append(answers, model.StudentAnswer{
				Number:     q.Number,
				AnswerText: model.NoAnswer,
				Source:     model.SourceMissing,
			})
			continue
		}
		text, source := answerFromBlock(block, q.QuestionText)
		answers = append(answers, model.StudentAnswer{
			Number:     q.Number,
			AnswerText: text,
			Source:     source,
		})
	}
	return answers
}

// answerFromBlock prefers an explicit answer marker and falls back to
// removing the solution's question text from the block.
func answerFromBlock(block, questionText string) (string, model.AnswerSource) {
	if m := answerMarkerRegex.FindStringSubmatch(block); m != nil {
		if a := strings.TrimSpace(m[1]); a != "" {
			return a, model.SourceMarker
		}
	}

	if questionText != "" && strings.Contains(block, questionText) {
		rest := strings.TrimSpace(strings.Replace(block, questionText, "", 1))
		if rest != "" {
			return rest, model.SourceQuestionStripped
		}
	}
	return model.NoAnswer, model.SourceUnparsed
}
