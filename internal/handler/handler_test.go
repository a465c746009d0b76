package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/gradesheet/internal/grader"
	appI18n "github.com/pavelanni/gradesheet/internal/i18n"
	"github.com/pavelanni/gradesheet/internal/model"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeStore struct {
	views   map[string]*model.SubmissionView
	subs    []model.Submission
	users   map[string]*model.User
	viewErr error
}

func (f *fakeStore) GetSubmissionView(id string) (*model.SubmissionView, error) {
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	return f.views[id], nil
}

func (f *fakeStore) ListSubmissions() ([]model.Submission, error) {
	return f.subs, nil
}

func (f *fakeStore) GetUserByUsername(username string) (*model.User, error) {
	return f.users[username], nil
}

type fakeSubmitter struct {
	uploads []grader.Upload
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, up grader.Upload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, up)
	return "sub-1", nil
}

func newTestServer(t *testing.T, st *fakeStore, sub *fakeSubmitter, maxMB int64) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	h := New(st, sub, model.GradeConfig{UploadDir: dir, MaxUploadMB: maxMB})
	r := chi.NewRouter()
	h.Routes(r)
	return r, dir
}

type part struct {
	field, name string
	content     []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(p.content)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp messageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Message
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, &fakeStore{}, &fakeSubmitter{}, 0)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "API is running") {
		t.Errorf("unexpected banner %q", rec.Body.String())
	}
}

func TestUploadAccepted(t *testing.T) {
	sub := &fakeSubmitter{}
	srv, dir := newTestServer(t, &fakeStore{}, sub, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, multipartRequest(t,
		part{"solution", "Key.PDF", []byte("%PDF-1.4 key")},
		part{"student", "answers.txt", []byte("1. Answer: 4")},
	))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SubmissionID != "sub-1" {
		t.Errorf("expected submissionId sub-1, got %q", resp.SubmissionID)
	}
	if !strings.Contains(resp.Message, "Grading is in progress") {
		t.Errorf("unexpected message %q", resp.Message)
	}

	if len(sub.uploads) != 1 {
		t.Fatalf("expected 1 submitted upload, got %d", len(sub.uploads))
	}
	up := sub.uploads[0]
	if up.SolutionName != "Key.PDF" || up.StudentName != "answers.txt" {
		t.Errorf("unexpected original names %q, %q", up.SolutionName, up.StudentName)
	}
	if filepath.Dir(up.SolutionPath) != dir || filepath.Ext(up.SolutionPath) != ".pdf" {
		t.Errorf("unexpected solution path %q", up.SolutionPath)
	}
	if filepath.Ext(up.StudentPath) != ".txt" {
		t.Errorf("unexpected student path %q", up.StudentPath)
	}
	data, err := os.ReadFile(up.StudentPath)
	if err != nil {
		t.Fatalf("read stored student file: %v", err)
	}
	if string(data) != "1. Answer: 4" {
		t.Errorf("stored content = %q", data)
	}
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name  string
		parts []part
		maxMB int64
		want  int
	}{
		{
			name:  "missing student",
			parts: []part{{"solution", "key.pdf", []byte("x")}},
			want:  http.StatusBadRequest,
		},
		{
			name:  "missing both",
			parts: nil,
			want:  http.StatusBadRequest,
		},
		{
			name:  "unsupported type",
			parts: []part{{"solution", "key.docx", []byte("x")}, {"student", "a.txt", []byte("x")}},
			want:  http.StatusUnsupportedMediaType,
		},
		{
			name:  "too large",
			parts: []part{{"solution", "key.txt", bytes.Repeat([]byte("a"), 1<<20+1)}, {"student", "a.txt", []byte("x")}},
			maxMB: 1,
			want:  http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			srv, _ := newTestServer(t, &fakeStore{}, sub, tt.maxMB)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, multipartRequest(t, tt.parts...))

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if decodeMessage(t, rec) == "" {
				t.Error("expected a message")
			}
			if len(sub.uploads) != 0 {
				t.Error("rejected upload should not be submitted")
			}
		})
	}
}

func TestUploadNotMultipart(t *testing.T) {
	srv, _ := newTestServer(t, &fakeStore{}, &fakeSubmitter{}, 0)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeMessage(t, rec); got != "Both solution and student files are required." {
		t.Errorf("unexpected message %q", got)
	}
}

func TestUploadSubmitFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"queue full", grader.ErrQueueFull, http.StatusServiceUnavailable,
			"Too many submissions are waiting to be graded. Please try again shortly."},
		{"queue closed", grader.ErrQueueClosed, http.StatusServiceUnavailable,
			"Grading is not accepting new submissions right now."},
		{"store error", errors.New("disk I/O error"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, dir := newTestServer(t, &fakeStore{}, &fakeSubmitter{err: tt.err}, 0)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, multipartRequest(t,
				part{"solution", "key.txt", []byte("1. Q Answer: a")},
				part{"student", "s.txt", []byte("1. a")},
			))
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := decodeMessage(t, rec); tt.wantMsg != "" && got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}

			// Nothing will grade the rejected upload, so its files must not stay behind.
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("expected empty upload dir, found %d files", len(entries))
			}
		})
	}
}

func TestResults(t *testing.T) {
	results := []model.GradedResult{{Number: 1, StudentAnswer: "4", CorrectAnswer: "4", Score: 100, Feedback: "ok"}}
	st := &fakeStore{views: map[string]*model.SubmissionView{
		"done": {
			Submission:   model.Submission{ID: "done", Status: model.StatusCompleted, Results: results, OverallScore: 100},
			QuizFileName: "key.pdf",
		},
		"busy": {
			Submission:   model.Submission{ID: "busy", Status: model.StatusProcessing, OverallScore: 55},
			QuizFileName: "key.pdf",
		},
	}}
	srv, _ := newTestServer(t, st, &fakeSubmitter{}, 0)

	get := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/"+id, nil))
		return rec
	}

	rec := get("done")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view model.SubmissionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.QuizFileName != "key.pdf" || view.OverallScore != 100 || len(view.Results) != 1 {
		t.Errorf("unexpected completed view %#v", view)
	}

	rec = get("busy")
	var busy map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&busy); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if busy["status"] != "processing" {
		t.Errorf("expected processing, got %v", busy["status"])
	}
	if _, ok := busy["results"]; ok {
		t.Error("results must not be exposed before completion")
	}
	if busy["overall_score"] != float64(0) {
		t.Errorf("overall score must not be exposed before completion, got %v", busy["overall_score"])
	}

	rec = get("missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeMessage(t, rec); got != "Submission not found." {
		t.Errorf("unexpected message %q", got)
	}

	st.viewErr = errors.New("db down")
	rec = get("done")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decodeMessage(t, rec); got != "Server error while fetching results." {
		t.Errorf("unexpected message %q", got)
	}
}

func TestListSubmissionsAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	st := &fakeStore{
		subs: []model.Submission{{ID: "b"}, {ID: "a"}},
		users: map[string]*model.User{
			"admin":    {Username: "admin", PasswordHash: string(hash), Role: model.UserRoleAdmin, Active: true},
			"disabled": {Username: "disabled", PasswordHash: string(hash), Role: model.UserRoleAdmin},
			"viewer":   {Username: "viewer", PasswordHash: string(hash), Role: "viewer", Active: true},
		},
	}
	srv, _ := newTestServer(t, st, &fakeSubmitter{}, 0)

	tests := []struct {
		name, user, pass string
		want             int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"unknown user", "ghost", "secret", http.StatusUnauthorized},
		{"inactive user", "disabled", "secret", http.StatusUnauthorized},
		{"wrong role", "viewer", "secret", http.StatusForbidden},
		{"admin", "admin", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/submissions", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp submissionsResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Submissions) != 2 || resp.Submissions[0].ID != "b" {
				t.Errorf("unexpected submissions %#v", resp.Submissions)
			}
			if resp.Message != "2 submissions found." {
				t.Errorf("unexpected message %q", resp.Message)
			}
		})
	}
}
