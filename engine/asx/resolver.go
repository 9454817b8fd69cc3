package asx

import (
	"context"
	"fmt"
	"strings"

	"github.com/ratedesk/disclosure-engine/engine/domain"
)

// ResolveMaskURL fetches the indirection page behind a listing link and
// returns the direct document URL embedded in it. The caller owns any
// retry policy; this layer surfaces failures as-is.
func (c *Client) ResolveMaskURL(ctx context.Context, maskURL string) (string, error) {
	doc, err := c.fetchDocument(ctx, maskURL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", maskURL, err)
	}

	val, ok := doc.Find("input[name=pdfURL]").First().Attr("value")
	if !ok || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("resolve %s: %w", maskURL, domain.ErrResolution)
	}
	return c.resolveRef(strings.TrimSpace(val)), nil
}
