package document

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PDFToText extracts PDF text with the poppler pdftotext tool.
type PDFToText struct {
	bin string
}

// NewPDFToText creates a PDF extractor. An empty path looks pdftotext up in PATH.
func NewPDFToText(bin string) *PDFToText {
	if bin == "" {
		bin = "pdftotext"
	}
	return &PDFToText{bin: bin}
}

// ExtractText runs pdftotext on path. A non-zero exit is an error carrying
// the tool's stderr.
func (p *PDFToText) ExtractText(ctx context.Context, path string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin, "-enc", "UTF-8", path, "-")
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	// pdftotext separates pages with form feeds.
	text := strings.ReplaceAll(string(output), "\f", "\n")
	return StripPageBreaks(text), nil
}
