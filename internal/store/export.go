package store

import (
	"fmt"

	"github.com/pavelanni/gradesheet/internal/model"
)

// ExportAllSubmissions builds export-ready entries from all submissions.
func (s *Store) ExportAllSubmissions() ([]model.ExportedEntry, error) {
	subs, err := s.ListSubmissions()
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	quizzes := make(map[string]*model.Quiz)
	var entries []model.ExportedEntry
	for _, sub := range subs {
		quiz, ok := quizzes[sub.QuizID]
		if !ok {
			quiz, err = s.GetQuiz(sub.QuizID)
			if err != nil {
				return nil, fmt.Errorf("get quiz %s: %w", sub.QuizID, err)
			}
			quizzes[sub.QuizID] = quiz
		}

		results, err := s.getResults(sub.ID)
		if err != nil {
			return nil, fmt.Errorf("get results %s: %w", sub.ID, err)
		}

		entry := model.ExportedEntry{
			SubmissionID:  sub.ID,
			StudentFile:   sub.FileName,
			Status:        sub.Status,
			PromptVariant: sub.PromptVariant,
			CreatedAt:     sub.CreatedAt,
			Results:       results,
			OverallScore:  sub.OverallScore,
		}
		if quiz != nil {
			entry.QuizFile = quiz.FileName
			entry.Questions = quiz.Questions
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
