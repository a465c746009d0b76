package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/gradesheet/internal/llm"
	"github.com/pavelanni/gradesheet/internal/model"
	"github.com/pavelanni/gradesheet/internal/store"
)

func TestEncode(t *testing.T) {
	export := model.GradingExport{
		ExportedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		NumSubmissions: 1,
		Submissions: []model.ExportedEntry{{
			SubmissionID: "s1",
			Status:       model.StatusCompleted,
			Results:      []model.GradedResult{{Number: 1, Score: 90, Feedback: "good"}},
			OverallScore: 90,
		}},
	}

	data, err := encode("json", export)
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	if !strings.Contains(string(data), `"submission_id": "s1"`) {
		t.Errorf("json output missing submission id:\n%s", data)
	}

	data, err = encode("YAML", export)
	if err != nil {
		t.Fatalf("encode yaml: %v", err)
	}
	for _, want := range []string{"submission_id: s1", "overall_score: 90", "feedback: good"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("yaml output missing %q:\n%s", want, data)
		}
	}

	if _, err := encode("xml", export); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestEncodeSubmissionViewYAMLInline(t *testing.T) {
	view := model.SubmissionView{
		Submission:   model.Submission{ID: "s1", StudentPath: "/secret/path.pdf"},
		QuizFileName: "key.pdf",
	}
	data, err := encode("yaml", view)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "\nid: s1") && !strings.HasPrefix(out, "id: s1") {
		t.Errorf("expected inlined id:\n%s", out)
	}
	if strings.Contains(out, "/secret/path.pdf") {
		t.Errorf("stored path should not be exported:\n%s", out)
	}
}

func TestWriteOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeOutput(path, "json", map[string]int{"n": 1}); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{\n  \"n\": 1\n}" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestPromptVariant(t *testing.T) {
	v := viper.New()
	v.Set("prompt-variant", " Strict ")
	if got := promptVariant(v); got != "strict" {
		t.Errorf("promptVariant = %q, want strict", got)
	}
	v.Set("prompt-variant", "harsh")
	if got := promptVariant(v); got != "standard" {
		t.Errorf("promptVariant = %q, want standard fallback", got)
	}
}

func TestNewOracle(t *testing.T) {
	v := viper.New()
	v.Set("llm-provider", "openai")
	v.Set("llm-url", "http://localhost:1/v1")
	v.Set("skip-llm-check", true)

	oracle, cleanup, err := newOracle(context.Background(), v)
	if err != nil {
		t.Fatalf("newOracle: %v", err)
	}
	defer cleanup()
	if _, ok := oracle.(*llm.Client); !ok {
		t.Errorf("expected *llm.Client, got %T", oracle)
	}

	v.Set("llm-provider", "claude")
	if _, _, err := newOracle(context.Background(), v); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSeedAdmin(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	// No password: nothing is created.
	if err := seedAdmin(db, ""); err != nil {
		t.Fatalf("seedAdmin empty: %v", err)
	}
	if n, _ := db.UserCount(); n != 0 {
		t.Fatalf("expected no users, got %d", n)
	}

	if err := seedAdmin(db, "s3cret"); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	u, err := db.GetUserByUsername("admin")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v, %v", u, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")) != nil {
		t.Error("stored hash does not match password")
	}

	// Existing users are left alone.
	if err := seedAdmin(db, "other"); err != nil {
		t.Fatalf("seedAdmin again: %v", err)
	}
	if n, _ := db.UserCount(); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}
