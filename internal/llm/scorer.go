package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/gradesheet/internal/llm/prompts"
)

// Feedback strings recorded when scoring degrades.
const (
	FeedbackMissing     = "Could not generate feedback."
	FeedbackError       = "Error during AI grading."
	FeedbackUnavailable = "AI model is currently unavailable after multiple retries."
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// Reason explains why an Outcome is degraded. The zero value means success.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMalformed        Reason = "malformed_response"
	ReasonOracleError      Reason = "oracle_error"
	ReasonRetriesExhausted Reason = "retries_exhausted"
	ReasonCanceled         Reason = "canceled"
)

// Outcome is the score and feedback for one answer pair.
type Outcome struct {
	Score    int
	Feedback string
	Reason   Reason
	Attempts int
}

// Degraded reports whether the outcome is a fallback rather than an oracle verdict.
func (o Outcome) Degraded() bool {
	return o.Reason != ReasonNone
}

// Scorer grades answer pairs with an Oracle. It keeps no state between calls.
type Scorer struct {
	oracle      Oracle
	variant     prompts.PromptVariant
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(context.Context, time.Duration) error
}

// NewScorer creates a Scorer using the given prompt variant.
func NewScorer(o Oracle, variant string) *Scorer {
	return &Scorer{
		oracle:      o,
		variant:     prompts.PromptVariant(variant),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       sleepContext,
	}
}

// Score asks the oracle to compare studentAnswer with correctAnswer.
// It never fails: every error path yields a zero score with diagnostic feedback.
// Overload errors are retried with exponential backoff (2s, 4s, ...).
func (s *Scorer) Score(ctx context.Context, correctAnswer, studentAnswer string) Outcome {
	prompt, err := prompts.BuildScorePrompt(s.variant, correctAnswer, studentAnswer)
	if err != nil {
		slog.Error("build scoring prompt", "error", err)
		return Outcome{Feedback: FeedbackError, Reason: ReasonOracleError}
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.oracle.Complete(ctx, prompt)
		if err == nil {
			out, perr := parseScore(raw)
			if perr != nil {
				slog.Error("malformed scoring response", "error", perr, "raw", raw)
				return Outcome{Feedback: FeedbackMissing, Reason: ReasonMalformed, Attempts: attempt}
			}
			out.Attempts = attempt
			return out
		}

		if !errors.Is(err, ErrOverloaded) {
			slog.Error("scoring oracle failed", "error", err, "attempt", attempt)
			return Outcome{Feedback: FeedbackError, Reason: ReasonOracleError, Attempts: attempt}
		}
		if attempt == s.maxAttempts {
			break
		}

		delay := s.baseDelay << (attempt - 1)
		slog.Warn("model is overloaded, retrying", "delay", delay, "attempt", attempt)
		if err := s.sleep(ctx, delay); err != nil {
			return Outcome{Feedback: FeedbackError, Reason: ReasonCanceled, Attempts: attempt}
		}
	}

	slog.Error("scoring oracle unavailable", "attempts", s.maxAttempts)
	return Outcome{Feedback: FeedbackUnavailable, Reason: ReasonRetriesExhausted, Attempts: s.maxAttempts}
}

// parseScore decodes a {"score": n, "feedback": "..."} reply, tolerating code fences.
func parseScore(raw string) (Outcome, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Score:    coerceScore(fields["score"]),
		Feedback: FeedbackMissing,
	}
	if fb, ok := fields["feedback"].(string); ok && fb != "" {
		out.Feedback = fb
	}
	return out, nil
}

// coerceScore converts a JSON value to an integer in [0, 100]; anything unusable is 0.
func coerceScore(v any) int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
