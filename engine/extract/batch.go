package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/pkg/events"
	"github.com/ratedesk/disclosure-engine/pkg/fn"
)

// FileOutcome is the structured result of parsing one document in a
// batch.
type FileOutcome struct {
	File     string
	Result   domain.Result
	Valid    bool
	Problems []string
	Err      error
}

// batchPatterns are the document types a batch parse picks up.
var batchPatterns = []string{"*.pdf", "*.xlsx", "*.xls"}

// BatchParseFolder parses every supported document in dir with the
// named template. Per-file failures are captured in the outcome list
// and never abort the rest of the batch.
func (e *Engine) BatchParseFolder(ctx context.Context, dir, template string) ([]FileOutcome, error) {
	var files []string
	for _, pat := range batchPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	parse := fn.Then(
		fn.Stage[string, domain.Result](func(ctx context.Context, path string) fn.Result[domain.Result] {
			return fn.FromPair(e.ExtractFile(ctx, path, template))
		}),
		fn.Stage[domain.Result, domain.Result](func(_ context.Context, res domain.Result) fn.Result[domain.Result] {
			return fn.Ok(ApplyRules(res, template))
		}),
	)

	outcomes := make([]FileOutcome, 0, len(files))
	for i, path := range files {
		start := time.Now()
		out := FileOutcome{File: path}

		res, err := parse(ctx, path).Unwrap()
		if err != nil {
			out.Err = err
			e.log.Error("parse failed", "file", path, "error", err)
			e.metrics.Counter("parse_files_failed_total").Inc()
		} else {
			out.Result = res
			out.Valid, out.Problems = domain.Validate(res)
			e.metrics.Counter("parse_files_total").Inc()
		}
		e.metrics.Histogram("parse_duration_seconds", nil).Since(start)
		outcomes = append(outcomes, out)

		e.notify.Notify(ctx, events.Progress{
			Operation: "batch_parse",
			Current:   i + 1,
			Total:     len(files),
			Detail:    filepath.Base(path),
		})

		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}
