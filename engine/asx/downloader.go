package asx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/pkg/fn"
)

// downloadChunk is the streaming buffer size. Documents can run to many
// megabytes; the body is never held in memory whole.
const downloadChunk = 1024

// Download streams the document at u to destPath. Each attempt truncates
// the destination, so partial files from failed attempts are never
// appended to. Non-200 responses and transport errors are retried with
// exponential backoff (2^attempt seconds) up to the configured bound;
// exhaustion yields a *domain.DownloadError carrying the last cause.
// The caller must ensure destPath's parent directory exists.
func (c *Client) Download(ctx context.Context, u, destPath string) error {
	_, err := fn.Retry(ctx, fn.RetryOpts{
		MaxAttempts: c.maxRetries,
		Backoff:     fn.ExpBackoff(time.Second),
		Sleep:       c.retrySleep,
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.gate.Do(ctx, func(ctx context.Context) error {
			return c.downloadOnce(ctx, u, destPath)
		})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.DownloadError{URL: u, Attempts: c.maxRetries, Cause: err}
}

func (c *Client) downloadOnce(ctx context.Context, u, destPath string) error {
	resp, err := c.get(ctx, u)
	if err != nil {
		return fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.StatusError{URL: u, Code: resp.StatusCode}
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", destPath, err)
	}

	// Hide the file's ReaderFrom so the copy really runs through the
	// fixed-size buffer.
	buf := make([]byte, downloadChunk)
	_, copyErr := io.CopyBuffer(struct{ io.Writer }{f}, resp.Body, buf)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", destPath, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", destPath, closeErr)
	}
	return nil
}
