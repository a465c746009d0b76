// Package grader runs the grading pipeline for uploaded submissions.
//
// Submit records a quiz and a submission in the processing state and queues
// a job; Run drains the queue with a fixed pool of workers. Each job extracts
// both documents, parses the solution, aligns the student answers and scores
// every question in order. The persisted submission is the only progress
// channel: it ends either completed with results or failed without them.
package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/gradesheet/internal/document"
	"github.com/pavelanni/gradesheet/internal/llm"
	"github.com/pavelanni/gradesheet/internal/model"
	"github.com/pavelanni/gradesheet/internal/parser"
)

var (
	// ErrQueueClosed is returned by Submit after the workers have stopped.
	ErrQueueClosed = errors.New("grading queue is closed")
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("grading queue is full")
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 64
)

// Store persists quizzes and submissions.
type Store interface {
	CreateUpload(quiz model.Quiz, sub model.Submission) error
	SetQuizQuestions(quizID string, questions []model.SolutionQuestion) error
	UpdateSubmissionStatus(id string, status model.SubmissionStatus) error
	CompleteSubmission(id string, results []model.GradedResult, overallScore int) error
}

// Scorer grades one answer pair without failing.
type Scorer interface {
	Score(ctx context.Context, correctAnswer, studentAnswer string) llm.Outcome
}

// Upload describes the two stored documents of a new submission.
type Upload struct {
	SolutionPath string
	SolutionName string
	StudentPath  string
	StudentName  string
}

// Job is one queued submission.
type Job struct {
	QuizID       string
	SubmissionID string
	SolutionPath string
	StudentPath  string
}

// Grader owns the grading queue.
type Grader struct {
	store   Store
	docs    document.Extractor
	parser  parser.Parser
	scorer  Scorer
	workers int
	variant string

	mu       sync.Mutex
	closed   bool
	jobs     chan Job
	stopOnce sync.Once
}

// New creates a Grader. Workers and QueueSize come from cfg.
func New(st Store, docs document.Extractor, p parser.Parser, sc Scorer, cfg model.GradeConfig) *Grader {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Grader{
		store:   st,
		docs:    docs,
		parser:  p,
		scorer:  sc,
		workers: workers,
		variant: cfg.PromptVariant,
		jobs:    make(chan Job, queueSize),
	}
}

// Submit records the upload as processing and queues it for grading.
// It never waits for a queue slot: a full or stopped queue fails the
// submission at once with ErrQueueFull or ErrQueueClosed.
func (g *Grader) Submit(ctx context.Context, up Upload) (string, error) {
	job, err := g.create(up)
	if err != nil {
		return "", err
	}
	if err := g.enqueue(ctx, job); err != nil {
		g.markFailed(job.SubmissionID)
		return "", err
	}
	slog.Info("submission queued", "submission_id", job.SubmissionID, "quiz_id", job.QuizID)
	return job.SubmissionID, nil
}

func (g *Grader) enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrQueueClosed
	}
	select {
	case g.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// stop closes intake and fails every job still waiting in the queue.
func (g *Grader) stop() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	for {
		select {
		case job := <-g.jobs:
			slog.Warn("grading stopped before submission started", "submission_id", job.SubmissionID)
			g.markFailed(job.SubmissionID)
		default:
			return
		}
	}
}

// GradeNow records the upload and grades it on the calling goroutine.
func (g *Grader) GradeNow(ctx context.Context, up Upload) (string, error) {
	job, err := g.create(up)
	if err != nil {
		return "", err
	}
	return job.SubmissionID, g.Process(ctx, job)
}

func (g *Grader) create(up Upload) (Job, error) {
	job := Job{
		QuizID:       uuid.NewString(),
		SubmissionID: uuid.NewString(),
		SolutionPath: up.SolutionPath,
		StudentPath:  up.StudentPath,
	}
	err := g.store.CreateUpload(
		model.Quiz{ID: job.QuizID, FileName: up.SolutionName, SolutionPath: up.SolutionPath},
		model.Submission{
			ID:            job.SubmissionID,
			QuizID:        job.QuizID,
			FileName:      up.StudentName,
			StudentPath:   up.StudentPath,
			Status:        model.StatusProcessing,
			PromptVariant: g.variant,
		},
	)
	if err != nil {
		return Job{}, fmt.Errorf("create upload: %w", err)
	}
	return job, nil
}

// Run processes queued jobs until ctx is canceled. Jobs still queued when it
// returns are marked failed, and later submissions get ErrQueueClosed.
func (g *Grader) Run(ctx context.Context) error {
	defer g.stopOnce.Do(g.stop)

	eg, ctx := errgroup.WithContext(ctx)
	for i := range g.workers {
		eg.Go(func() error {
			slog.Debug("grading worker started", "worker", i)
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-g.jobs:
					if ctx.Err() != nil {
						g.markFailed(job.SubmissionID)
						return nil
					}
					_ = g.Process(ctx, job)
				}
			}
		})
	}
	return eg.Wait()
}

// Process grades one job and persists the outcome. Any error leaves the
// submission failed.
func (g *Grader) Process(ctx context.Context, job Job) error {
	log := slog.With("submission_id", job.SubmissionID)

	results, err := g.grade(ctx, job)
	if err == nil {
		err = g.store.CompleteSubmission(job.SubmissionID, results, OverallScore(results))
	}
	if err != nil {
		log.Error("an error occurred during grading", "error", err)
		g.markFailed(job.SubmissionID)
		return err
	}

	log.Info("grading completed", "questions", len(results), "overall_score", OverallScore(results))
	return nil
}

func (g *Grader) grade(ctx context.Context, job Job) ([]model.GradedResult, error) {
	solutionText, err := g.docs.ExtractText(ctx, job.SolutionPath)
	if err != nil {
		return nil, fmt.Errorf("extract solution text: %w", err)
	}
	studentText, err := g.docs.ExtractText(ctx, job.StudentPath)
	if err != nil {
		return nil, fmt.Errorf("extract student text: %w", err)
	}

	ex, err := g.parser.ParseSolution(solutionText)
	for _, d := range ex.Dropped {
		slog.Debug("solution block dropped", "submission_id", job.SubmissionID, "reason", d.Reason, "number", d.Block.Number)
	}
	if err != nil {
		return nil, fmt.Errorf("parse solution: %w", err)
	}

	if err := g.store.SetQuizQuestions(job.QuizID, ex.Questions); err != nil {
		return nil, fmt.Errorf("save questions: %w", err)
	}

	answers := make(map[int]string)
	for _, a := range g.parser.ParseStudent(studentText, ex.Questions) {
		if _, seen := answers[a.Number]; !seen {
			answers[a.Number] = a.AnswerText
		}
	}

	results := make([]model.GradedResult, 0, len(ex.Questions))
	for _, q := range ex.Questions {
		studentAnswer, ok := answers[q.Number]
		if !ok || studentAnswer == "" {
			studentAnswer = model.NoAnswer
		}

		out := g.scorer.Score(ctx, q.CanonicalAnswer, studentAnswer)
		if out.Degraded() {
			slog.Warn("question scored with fallback", "submission_id", job.SubmissionID,
				"question", q.Number, "reason", out.Reason)
		}
		results = append(results, model.GradedResult{
			Number:        q.Number,
			StudentAnswer: studentAnswer,
			CorrectAnswer: q.CanonicalAnswer,
			Score:         out.Score,
			Feedback:      out.Feedback,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grading interrupted: %w", err)
	}
	return results, nil
}

func (g *Grader) markFailed(id string) {
	if err := g.store.UpdateSubmissionStatus(id, model.StatusFailed); err != nil {
		slog.Error("could not mark submission failed", "submission_id", id, "error", err)
	}
}

// OverallScore is the mean of the result scores rounded half up, or 0 with no results.
func OverallScore(results []model.GradedResult) int {
	if len(results) == 0 {
		return 0
	}
	total := 0
	for _, r := range results {
		total += r.Score
	}
	return int(math.Floor(float64(total)/float64(len(results)) + 0.5))
}
