package model

import "time"

// GradingExport is the top-level structure for result export.
type GradingExport struct {
	ExportedAt     time.Time       `json:"exported_at" yaml:"exported_at"`
	NumSubmissions int             `json:"num_submissions" yaml:"num_submissions"`
	Submissions    []ExportedEntry `json:"submissions" yaml:"submissions"`
}

// ExportedEntry holds one submission's data for export. PromptVariant is the
// scoring prompt variant the submission was graded with.
type ExportedEntry struct {
	SubmissionID  string             `json:"submission_id" yaml:"submission_id"`
	QuizFile      string             `json:"quiz_file" yaml:"quiz_file"`
	StudentFile   string             `json:"student_file" yaml:"student_file"`
	Status        SubmissionStatus   `json:"status" yaml:"status"`
	PromptVariant string             `json:"prompt_variant" yaml:"prompt_variant"`
	CreatedAt     time.Time          `json:"created_at" yaml:"created_at"`
	Questions     []SolutionQuestion `json:"questions" yaml:"questions"`
	Results       []GradedResult     `json:"results" yaml:"results"`
	OverallScore  int                `json:"overall_score" yaml:"overall_score"`
}
