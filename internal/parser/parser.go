// Package parser recovers numbered questions and answers from loosely
// structured document text.
//
// Parsing happens in three stages: Segment splits text into numbered blocks,
// ExtractSolution turns solution blocks into questions with canonical answers,
// and Align matches student blocks to those questions. The stages are
// heuristic; the Parser interface lets a stricter format replace them without
// touching the grading pipeline.
package parser

import "github.com/pavelanni/gradesheet/internal/model"

// Parser extracts question structure from document text.
type Parser interface {
	ParseSolution(text string) (Extraction, error)
	ParseStudent(text string, questions []model.SolutionQuestion) []model.StudentAnswer
}

// Heuristic is the pattern-based Parser for plain "N. question / Answer: ..." documents.
type Heuristic struct{}

// NewHeuristic returns the default pattern-based parser.
func NewHeuristic() Heuristic {
	return Heuristic{}
}

// ParseSolution segments and extracts a solution document.
func (Heuristic) ParseSolution(text string) (Extraction, error) {
	return ExtractSolution(Segment(text))
}

// ParseStudent segments a student document and aligns it to questions.
func (Heuristic) ParseStudent(text string, questions []model.SolutionQuestion) []model.StudentAnswer {
	return Align(Segment(text), questions)
}
