package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// TextExtractor normalizes a document into one text blob. Page
// boundaries become plain newlines; no page metadata survives.
type TextExtractor interface {
	Text(ctx context.Context, path string) (string, error)
}

// PDFText shells out to pdftotext, which keeps the layout close enough
// to the printed page for line-anchored patterns to work.
type PDFText struct {
	// Binary overrides the pdftotext executable name, mostly for tests.
	Binary string
}

func (p PDFText) Text(ctx context.Context, path string) (string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext %q: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out.String(), nil
}
