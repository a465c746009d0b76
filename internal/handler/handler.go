package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/gradesheet/internal/document"
	"github.com/pavelanni/gradesheet/internal/grader"
	appI18n "github.com/pavelanni/gradesheet/internal/i18n"
	"github.com/pavelanni/gradesheet/internal/model"
)

const defaultMaxUploadMB = 10

// Store is the read side of persistence used by the HTTP handlers.
type Store interface {
	GetSubmissionView(id string) (*model.SubmissionView, error)
	ListSubmissions() ([]model.Submission, error)
	GetUserByUsername(username string) (*model.User, error)
}

// Submitter queues uploads for grading.
type Submitter interface {
	Submit(ctx context.Context, up grader.Upload) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  Store
	grader Submitter
	config model.GradeConfig
}

// New creates a new Handler.
func New(s Store, g Submitter, cfg model.GradeConfig) *Handler {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = defaultMaxUploadMB
	}
	return &Handler{store: s, grader: g, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(appI18n.Middleware)
	r.Get("/", h.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.handleUpload)
		r.Get("/results/{submissionID}", h.handleResults)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/submissions", h.handleListSubmissions)
		})
	})
}

type messageResponse struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	Message      string `json:"message"`
	SubmissionID string `json:"submissionId"`
}

type submissionsResponse struct {
	Message     string             `json:"message"`
	Submissions []model.Submission `json:"submissions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, appI18n.T(r.Context(), "APIRunning"))
}

// uploadError is a client-facing rejection of an upload.
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := h.config.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge,
				appI18n.Td(ctx, "FileTooLarge", map[string]any{"Name": "upload", "Limit": h.config.MaxUploadMB}))
			return
		}
		writeMessage(w, http.StatusBadRequest, appI18n.T(ctx, "FilesRequired"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	solution, solErr := h.formFile(r, "solution")
	student, stuErr := h.formFile(r, "student")
	if solution == nil || student == nil {
		writeMessage(w, http.StatusBadRequest, appI18n.T(ctx, "FilesRequired"))
		return
	}
	for _, err := range []error{solErr, stuErr} {
		var ue *uploadError
		if errors.As(err, &ue) {
			writeMessage(w, ue.status, ue.msg)
			return
		}
	}

	up := grader.Upload{SolutionName: solution.Filename, StudentName: student.Filename}
	var err error
	if up.SolutionPath, err = h.saveUpload(solution); err == nil {
		up.StudentPath, err = h.saveUpload(student)
	}
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		removeUploads(up.SolutionPath, up.StudentPath)
		writeMessage(w, http.StatusInternalServerError, appI18n.T(ctx, "UploadFailed"))
		return
	}

	id, err := h.grader.Submit(ctx, up)
	if err != nil {
		removeUploads(up.SolutionPath, up.StudentPath)
		switch {
		case errors.Is(err, grader.ErrQueueFull):
			writeMessage(w, http.StatusServiceUnavailable, appI18n.T(ctx, "QueueFull"))
		case errors.Is(err, grader.ErrQueueClosed):
			writeMessage(w, http.StatusServiceUnavailable, appI18n.T(ctx, "QueueUnavailable"))
		default:
			slog.Error("failed to submit upload", "error", err)
			writeMessage(w, http.StatusInternalServerError, appI18n.T(ctx, "UploadFailed"))
		}
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		Message:      appI18n.T(ctx, "UploadAccepted"),
		SubmissionID: id,
	})
}

// formFile returns the header for a form field. A nil header means the field
// is missing; a non-nil header with an error means the file was rejected.
func (h *Handler) formFile(r *http.Request, field string) (*multipart.FileHeader, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]
	ctx := r.Context()
	if !document.Supported(fh.Filename) {
		return fh, &uploadError{http.StatusUnsupportedMediaType,
			appI18n.Td(ctx, "UnsupportedFileType", map[string]any{"Name": fh.Filename})}
	}
	if fh.Size > h.config.MaxUploadMB<<20 {
		return fh, &uploadError{http.StatusRequestEntityTooLarge,
			appI18n.Td(ctx, "FileTooLarge", map[string]any{"Name": fh.Filename, "Limit": h.config.MaxUploadMB})}
	}
	return fh, nil
}

// saveUpload copies an uploaded file into the upload directory under a
// generated name that keeps the original extension.
func (h *Handler) saveUpload(fh *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	path := filepath.Join(h.config.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, dst.Close()
}

// removeUploads deletes stored files that no queued submission will read.
func removeUploads(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove upload", "path", p, "error", err)
		}
	}
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "submissionID")

	view, err := h.store.GetSubmissionView(id)
	if err != nil {
		slog.Error("error fetching results", "submission_id", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, appI18n.T(ctx, "ResultsError"))
		return
	}
	if view == nil {
		writeMessage(w, http.StatusNotFound, appI18n.T(ctx, "SubmissionNotFound"))
		return
	}

	if view.Status != model.StatusCompleted {
		view.Results = nil
		view.OverallScore = 0
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := h.store.ListSubmissions()
	if err != nil {
		slog.Error("failed to list submissions", "error", err)
		writeMessage(w, http.StatusInternalServerError, appI18n.T(ctx, "ListError"))
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, submissionsResponse{
		Message:     appI18n.Tp(ctx, "SubmissionsFound", len(subs)),
		Submissions: subs,
	})
}
