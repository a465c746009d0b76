// Package document turns uploaded documents into plain text.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsupported is returned for documents whose format has no extractor.
var ErrUnsupported = errors.New("unsupported document type")

var pageBreakRegex = regexp.MustCompile(`-{16}Page\s\(\d+\)\sBreak-{16}`)

// Extractor returns the full text of a document. A document that parses but
// contains no text yields "" and a nil error.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// StripPageBreaks removes page break marker artifacts and surrounding whitespace.
func StripPageBreaks(text string) string {
	text = pageBreakRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Supported reports whether a file name has an extension some extractor handles.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".text", ".md":
		return true
	}
	return false
}

// Auto dispatches by file extension.
type Auto struct {
	PDF   Extractor
	Plain Extractor
}

// NewAuto creates an extractor that handles PDF and plain-text files.
func NewAuto(pdftotextPath string) *Auto {
	return &Auto{
		PDF:   NewPDFToText(pdftotextPath),
		Plain: Plain{},
	}
}

// ExtractText routes .pdf files to the PDF extractor and text files to the
// plain one. Other extensions fail with ErrUnsupported.
func (a *Auto) ExtractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return a.PDF.ExtractText(ctx, path)
	case ".txt", ".text", ".md":
		return a.Plain.ExtractText(ctx, path)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

// Plain reads UTF-8 text files.
type Plain struct{}

// ExtractText reads the file, normalises line endings and strips page breaks.
func (Plain) ExtractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return StripPageBreaks(strings.ReplaceAll(string(data), "\r\n", "\n")), nil
}
