package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/pkg/events"
	"github.com/ratedesk/disclosure-engine/pkg/metrics"
)

// dateLayouts is the ordered list tried when coercing date fields. The
// day-first slash form sits first so "25/12/2024" never parses as ISO.
var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"2 Jan 2006",
	"2 January 2006",
	"20060102",
}

// Deps carries the engine's collaborators.
type Deps struct {
	Registry *Registry
	Text     TextExtractor
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	Notifier events.Notifier
}

// Engine extracts typed field maps from PDF and spreadsheet documents
// using the patterns of a named template.
type Engine struct {
	reg     *Registry
	text    TextExtractor
	log     *slog.Logger
	metrics *metrics.Registry
	notify  events.Notifier
}

// NewEngine wires an extraction engine. Registry and Text are required;
// the rest default to no-ops.
func NewEngine(d Deps) (*Engine, error) {
	if d.Registry == nil {
		return nil, fmt.Errorf("extract: registry is required")
	}
	if d.Text == nil {
		return nil, fmt.Errorf("extract: text extractor is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Notifier == nil {
		d.Notifier = events.NopNotifier{}
	}
	return &Engine{
		reg:     d.Registry,
		text:    d.Text,
		log:     d.Logger,
		metrics: d.Metrics,
		notify:  d.Notifier,
	}, nil
}

// ExtractFile applies the named template to one document, dispatching
// on the file extension.
func (e *Engine) ExtractFile(ctx context.Context, path, template string) (domain.Result, error) {
	fields, err := e.reg.TemplateFields(ctx, template)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.extractPDF(ctx, path, fields)
	case ".xlsx", ".xls":
		return e.extractSheet(path, fields)
	default:
		return nil, fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
}

func (e *Engine) extractPDF(ctx context.Context, path string, fields map[string]string) (domain.Result, error) {
	blob, err := e.text.Text(ctx, path)
	if err != nil {
		return nil, err
	}

	res := make(domain.Result, len(fields))
	for code, pattern := range fields {
		pattern = strings.TrimSpace(pattern)
		// "=" prefixes mark spreadsheet-formula patterns; they have no
		// meaning against flattened text.
		if pattern == "" || strings.HasPrefix(pattern, "=") {
			res[code] = domain.Field{Value: domain.Absent, Description: e.reg.Describe(code)}
			continue
		}
		re, err := regexp.Compile("(?ms)" + pattern)
		if err != nil {
			// The field still appears in the result, explicitly absent,
			// so a bad pattern reads the same as a pattern that never
			// matched.
			e.log.Warn("invalid field pattern, skipping",
				"field", code, "error", fmt.Errorf("%w: %v", domain.ErrPattern, err))
			e.metrics.Counter("extract_pattern_errors_total").Inc()
			res[code] = domain.Field{Value: domain.Absent, Description: e.reg.Describe(code)}
			continue
		}
		m := re.FindStringSubmatch(blob)
		if m == nil {
			res[code] = domain.Field{Value: domain.Absent, Description: e.reg.Describe(code)}
			continue
		}
		raw := m[0]
		if len(m) > 1 {
			raw = m[1]
		}
		res[code] = domain.Field{
			Value:       coerce(code, strings.TrimSpace(raw)),
			Description: e.reg.Describe(code),
		}
	}
	return res, nil
}

// extractSheet matches template fields against spreadsheet column
// headers instead of patterns: exact case-insensitive header match
// first, then substring containment in either direction. Values come
// from the first data row.
func (e *Engine) extractSheet(path string, fields map[string]string) (domain.Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %q: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	var headers, data []string
	if len(rows) > 0 {
		headers = rows[0]
	}
	if len(rows) > 1 {
		data = rows[1]
	}

	res := make(domain.Result, len(fields))
	for code := range fields {
		label := e.reg.Describe(code)
		if label == "" {
			label = code
		}
		col, partial := matchHeader(headers, label)
		if col < 0 || col >= len(data) {
			res[code] = domain.Field{Value: domain.Absent, Description: e.reg.Describe(code)}
			continue
		}
		field := domain.Field{
			Value:       coerce(code, strings.TrimSpace(data[col])),
			Description: e.reg.Describe(code),
		}
		if partial {
			field.Comment = "Matched by partial column name"
		}
		res[code] = field
	}
	return res, nil
}

// matchHeader finds the column whose header matches label. It reports
// the index and whether the match was only partial. Not found is -1.
func matchHeader(headers []string, label string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(label))
	for i, h := range headers {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i, false
		}
	}
	for i, h := range headers {
		got := strings.ToLower(strings.TrimSpace(h))
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return i, true
		}
	}
	return -1, false
}

// coerce types a trimmed raw value according to the field code's class.
// A value that fails to parse stays a string; extraction never fails on
// coercion.
func coerce(code, raw string) domain.Value {
	if raw == "" {
		return domain.Absent
	}
	if isNumericField(code) {
		v := domain.StringValue(raw)
		if f, ok := v.Float(); ok {
			return domain.NumberValue(f)
		}
		return v
	}
	if isDateField(code) {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return domain.DateValue(t)
			}
		}
		return domain.StringValue(raw)
	}
	return domain.StringValue(raw)
}

func isNumericField(code string) bool {
	for _, c := range domain.NumericFields {
		if c == code {
			return true
		}
	}
	return false
}

func isDateField(code string) bool {
	for _, c := range domain.DateFields {
		if c == code {
			return true
		}
	}
	return false
}
