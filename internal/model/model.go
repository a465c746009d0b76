package model

import (
	"context"
	"time"
)

// NoAnswer is recorded when no student answer can be located for a question.
const NoAnswer = "No answer provided."

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleAdmin can list every submission.
	UserRoleAdmin UserRole = "admin"
)

// User represents an operator account for the admin endpoints.
type User struct {
	Username     string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// SubmissionStatus represents the grading state of a submission.
type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusCompleted  SubmissionStatus = "completed"
	StatusFailed     SubmissionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AnswerSource records how a student answer was located.
type AnswerSource string

const (
	// SourceMarker means the answer followed an explicit "Answer:" marker.
	SourceMarker AnswerSource = "marker"
	// SourceQuestionStripped means the answer is what remained after removing the question text.
	SourceQuestionStripped AnswerSource = "question_stripped"
	// SourceMissing means the student document has no block for the question.
	SourceMissing AnswerSource = "missing"
	// SourceUnparsed means a block exists but no answer could be isolated from it.
	SourceUnparsed AnswerSource = "unparsed"
)

// SolutionQuestion is one question of the solution key.
type SolutionQuestion struct {
	Number          int    `json:"number" yaml:"number"`
	QuestionText    string `json:"question_text" yaml:"question_text"`
	CanonicalAnswer string `json:"canonical_answer" yaml:"canonical_answer"`
}

// StudentAnswer is the student's answer aligned to a solution question.
type StudentAnswer struct {
	Number     int          `json:"number"`
	AnswerText string       `json:"answer_text"`
	Source     AnswerSource `json:"source"`
}

// GradedResult holds the oracle's assessment of one question.
type GradedResult struct {
	Number        int    `json:"number" yaml:"number"`
	StudentAnswer string `json:"student_answer" yaml:"student_answer"`
	CorrectAnswer string `json:"correct_answer" yaml:"correct_answer"`
	Score         int    `json:"score" yaml:"score"`
	Feedback      string `json:"feedback" yaml:"feedback"`
}

// Quiz is a solution document and the questions extracted from it.
type Quiz struct {
	ID           string             `json:"id" yaml:"id"`
	FileName     string             `json:"file_name" yaml:"file_name"`
	SolutionPath string             `json:"-" yaml:"-"`
	Questions    []SolutionQuestion `json:"questions" yaml:"questions"`
	CreatedAt    time.Time          `json:"created_at" yaml:"created_at"`
}

// Submission is a student document graded against a quiz.
type Submission struct {
	ID            string           `json:"id" yaml:"id"`
	QuizID        string           `json:"quiz_id" yaml:"quiz_id"`
	FileName      string           `json:"file_name" yaml:"file_name"`
	StudentPath   string           `json:"-" yaml:"-"`
	Status        SubmissionStatus `json:"status" yaml:"status"`
	PromptVariant string           `json:"prompt_variant" yaml:"prompt_variant"`
	Results       []GradedResult   `json:"results,omitempty" yaml:"results,omitempty"`
	OverallScore  int              `json:"overall_score" yaml:"overall_score"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"updated_at"`
}

// SubmissionView combines a submission with its quiz for display.
type SubmissionView struct {
	Submission   `yaml:",inline"`
	QuizFileName string `json:"quiz_file_name" yaml:"quiz_file_name"`
}

// GradeConfig holds runtime grading parameters set via CLI flags.
type GradeConfig struct {
	UploadDir     string
	MaxUploadMB   int64
	Workers       int
	QueueSize     int
	PromptVariant string // Scoring prompt variant (strict, standard, lenient)
}
