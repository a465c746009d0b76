package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/gradesheet/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("not found")

// Store persists quizzes, submissions, results and users in SQLite or PostgreSQL.
type Store struct {
	db       *sql.DB
	postgres bool
}

// New opens the database. DSNs starting with postgres:// or postgresql://
// use PostgreSQL; anything else is a SQLite file path (or ":memory:").
func New(dsn string) (*Store, error) {
	driver, source, postgres := "sqlite", sqliteSource(dsn), false
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source, postgres = "pgx", dsn, true
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !postgres {
		// SQLite allows a single writer; :memory: databases are per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, postgres: postgres}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func sqliteSource(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			solution_path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			quiz_id TEXT NOT NULL REFERENCES quizzes(id),
			position INTEGER NOT NULL,
			number INTEGER NOT NULL,
			question_text TEXT NOT NULL,
			answer_text TEXT NOT NULL,
			PRIMARY KEY (quiz_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL REFERENCES quizzes(id),
			file_name TEXT NOT NULL,
			student_path TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			prompt_variant TEXT NOT NULL DEFAULT '',
			overall_score INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			position INTEGER NOT NULL,
			number INTEGER NOT NULL,
			student_answer TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			score INTEGER NOT NULL,
			feedback TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (submission_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateUpload stores a new quiz and its submission in one transaction.
func (s *Store) CreateUpload(quiz model.Quiz, sub model.Submission) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.Status == "" {
		sub.Status = model.StatusPending
	}

	_, err = tx.Exec(s.rebind(
		`INSERT INTO quizzes (id, file_name, solution_path, created_at) VALUES (?, ?, ?, ?)`),
		quiz.ID, quiz.FileName, quiz.SolutionPath, quiz.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	_, err = tx.Exec(s.rebind(
		`INSERT INTO submissions (id, quiz_id, file_name, student_path, status, prompt_variant, overall_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`),
		sub.ID, quiz.ID, sub.FileName, sub.StudentPath, sub.Status, sub.PromptVariant, sub.CreatedAt, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return tx.Commit()
}

// SetQuizQuestions replaces the questions of a quiz, keeping their order.
func (s *Store) SetQuizQuestions(quizID string, questions []model.SolutionQuestion) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.rebind(`DELETE FROM questions WHERE quiz_id = ?`), quizID); err != nil {
		return err
	}
	for i, q := range questions {
		_, err := tx.Exec(s.rebind(
			`INSERT INTO questions (quiz_id, position, number, question_text, answer_text) VALUES (?, ?, ?, ?, ?)`),
			quizID, i, q.Number, q.QuestionText, q.CanonicalAnswer,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetQuiz returns a quiz with its questions, or nil if it does not exist.
func (s *Store) GetQuiz(id string) (*model.Quiz, error) {
	var q model.Quiz
	err := s.db.QueryRow(s.rebind(
		`SELECT id, file_name, solution_path, created_at FROM quizzes WHERE id = ?`), id,
	).Scan(&q.ID, &q.FileName, &q.SolutionPath, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Questions, err = s.getQuestions(id)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) getQuestions(quizID string) ([]model.SolutionQuestion, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT number, question_text, answer_text FROM questions WHERE quiz_id = ? ORDER BY position`), quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.SolutionQuestion
	for rows.Next() {
		var q model.SolutionQuestion
		if err := rows.Scan(&q.Number, &q.QuestionText, &q.CanonicalAnswer); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

const submissionColumns = `id, quiz_id, file_name, student_path, status, prompt_variant, overall_score, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (model.Submission, error) {
	var sub model.Submission
	err := row.Scan(&sub.ID, &sub.QuizID, &sub.FileName, &sub.StudentPath, &sub.Status,
		&sub.PromptVariant, &sub.OverallScore, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, err
}

// GetSubmission returns a submission with its results, or nil if it does not exist.
func (s *Store) GetSubmission(id string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(s.rebind(
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.Results, err = s.getResults(id)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) getResults(submissionID string) ([]model.GradedResult, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT number, student_answer, correct_answer, score, feedback
		 FROM results WHERE submission_id = ? ORDER BY position`), submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.GradedResult
	for rows.Next() {
		var r model.GradedResult
		if err := rows.Scan(&r.Number, &r.StudentAnswer, &r.CorrectAnswer, &r.Score, &r.Feedback); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetSubmissionView returns a submission joined with its quiz file name, or nil.
func (s *Store) GetSubmissionView(id string) (*model.SubmissionView, error) {
	sub, err := s.GetSubmission(id)
	if err != nil || sub == nil {
		return nil, err
	}
	quiz, err := s.GetQuiz(sub.QuizID)
	if err != nil {
		return nil, err
	}
	view := &model.SubmissionView{Submission: *sub}
	if quiz != nil {
		view.QuizFileName = quiz.FileName
	}
	return view, nil
}

// UpdateSubmissionStatus updates the submission status.
func (s *Store) UpdateSubmissionStatus(id string, status model.SubmissionStatus) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE submissions SET status = ?, updated_at = ? WHERE id = ?`),
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// CompleteSubmission stores the graded results and marks the submission completed.
func (s *Store) CompleteSubmission(id string, results []model.GradedResult, overallScore int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(s.rebind(
		`UPDATE submissions SET status = ?, overall_score = ?, updated_at = ? WHERE id = ?`),
		model.StatusCompleted, overallScore, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}

	if _, err := tx.Exec(s.rebind(`DELETE FROM results WHERE submission_id = ?`), id); err != nil {
		return err
	}
	for i, r := range results {
		_, err := tx.Exec(s.rebind(
			`INSERT INTO results (submission_id, position, number, student_answer, correct_answer, score, feedback)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			id, i, r.Number, r.StudentAnswer, r.CorrectAnswer, r.Score, r.Feedback,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSubmissions returns all submissions, newest first, without results.
func (s *Store) ListSubmissions() ([]model.Submission, error) {
	rows, err := s.db.Query(`SELECT ` + submissionColumns + ` FROM submissions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
