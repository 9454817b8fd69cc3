// Package extract turns downloaded disclosure documents into typed
// field maps. Templates name the fields and the patterns that locate
// them; business rules then derive or default the handful of values a
// pattern cannot produce.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ratedesk/disclosure-engine/engine/domain"
)

// TemplateSource is the storage boundary the registry reads from.
type TemplateSource interface {
	TemplateNames(ctx context.Context, family domain.TemplateFamily) ([]string, error)
	TemplateFields(ctx context.Context, family domain.TemplateFamily, name string) (map[string]string, error)
	Descriptors(ctx context.Context) ([]domain.FieldDescriptor, error)
}

// fallbackTemplates are the well-known template names offered even when
// storage holds no rows for them yet.
var fallbackTemplates = []string{
	"vanguard_au",
	"asx_nz & tax_marker",
	"asx_dividend",
	"perpetual",
	"Hi-Trust UR",
}

// suggestions maps filename keywords to template names. Order matters:
// the first keyword hit wins.
var suggestions = []struct {
	template string
	keywords []string
}{
	{"vanguard_au", []string{"vanguard", "vgd", "vgs", "vas"}},
	{"asx_mit_notice", []string{"mit", "notice", "distribution"}},
	{"asx_dividend", []string{"dividend", "div"}},
	{"perpetual", []string{"perpetual", "ppt"}},
	{"Hi-Trust UR", []string{"hi-trust", "hitrust", "ur"}},
}

// Registry caches template field sets and descriptors from storage. The
// caches belong to the instance; Refresh repopulates them on demand.
type Registry struct {
	src TemplateSource

	mu     sync.Mutex
	fields map[string]map[string]string
	descs  map[string]domain.FieldDescriptor
}

// NewRegistry builds a registry and loads the descriptor dictionary.
func NewRegistry(ctx context.Context, src TemplateSource) (*Registry, error) {
	r := &Registry{
		src:    src,
		fields: make(map[string]map[string]string),
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh drops the field cache and reloads the descriptor dictionary.
func (r *Registry) Refresh(ctx context.Context) error {
	descs, err := r.src.Descriptors(ctx)
	if err != nil {
		return fmt.Errorf("load descriptors: %w", err)
	}
	byCode := make(map[string]domain.FieldDescriptor, len(descs))
	for _, d := range descs {
		byCode[d.Code] = d
	}
	r.mu.Lock()
	r.descs = byCode
	r.fields = make(map[string]map[string]string)
	r.mu.Unlock()
	return nil
}

// ListTemplates returns the union of both stored families and the fixed
// fallback names, deduplicated and sorted.
func (r *Registry) ListTemplates(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, fam := range []domain.TemplateFamily{domain.FamilyMR, domain.FamilyNZ} {
		names, err := r.src.TemplateNames(ctx, fam)
		if err != nil {
			return nil, fmt.Errorf("list %s templates: %w", fam, err)
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	for _, n := range fallbackTemplates {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// TemplateFields returns the field-code to pattern map for a template,
// trying the MR family first, then NZ. A template unknown to both
// families yields an empty map, not an error.
func (r *Registry) TemplateFields(ctx context.Context, name string) (map[string]string, error) {
	r.mu.Lock()
	if cached, ok := r.fields[name]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	for _, fam := range []domain.TemplateFamily{domain.FamilyMR, domain.FamilyNZ} {
		fields, err := r.src.TemplateFields(ctx, fam, name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load template %q: %w", name, err)
		}
		r.mu.Lock()
		r.fields[name] = fields
		r.mu.Unlock()
		return fields, nil
	}

	empty := map[string]string{}
	r.mu.Lock()
	r.fields[name] = empty
	r.mu.Unlock()
	return empty, nil
}

// Describe returns the human-readable description for a field code, or
// "" when the dictionary has none.
func (r *Registry) Describe(code string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.descs[code].Description
}

// SuggestTemplate guesses a template from a filename by case-insensitive
// keyword match. The first hit wins; no hit returns "".
func (r *Registry) SuggestTemplate(filename string) string {
	base := strings.ToLower(filepath.Base(filename))
	for _, s := range suggestions {
		for _, kw := range s.keywords {
			if strings.Contains(base, kw) {
				return s.template
			}
		}
	}
	return ""
}
