package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ratedesk/disclosure-engine/engine/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), "tester", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func testAnn(code, title string, day int) domain.Announcement {
	return domain.Announcement{
		IssuerCode: code,
		Title:      title,
		PubDate:    time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
		MaskURL:    "https://example.com/mask/" + code,
	}
}

func TestMigrateTemplateTables(t *testing.T) {
	// The family structs carry their columns through an embedded
	// struct; if the mapper stops seeing the embed the tables migrate
	// empty and every template query breaks.
	s := newTestStore(t)
	m := s.db.Migrator()
	for _, model := range []any{&templateRowMR{}, &templateRowNZ{}} {
		if !m.HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
		for _, col := range []string{"template_name", "field_code", "pattern", "is_valid"} {
			if !m.HasColumn(model, col) {
				t.Errorf("%T missing column %s", model, col)
			}
		}
	}
}

func TestSaveAllIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []domain.Announcement{
		testAnn("VAS", "Dividend Distribution", 10),
		testAnn("VGS", "Estimated Distribution", 11),
	}
	created, dups, err := s.SaveAll(ctx, batch)
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if created != 2 || dups != 0 {
		t.Fatalf("first save: got (%d, %d), want (2, 0)", created, dups)
	}

	created, dups, err = s.SaveAll(ctx, batch)
	if err != nil {
		t.Fatalf("SaveAll again: %v", err)
	}
	if created != 0 || dups != 2 {
		t.Fatalf("second save: got (%d, %d), want (0, 2)", created, dups)
	}
}

func TestCreateIfNotExistsNormalizesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orig := testAnn("vas", "  Dividend Distribution  ", 10)
	stored, isNew, err := s.CreateIfNotExists(ctx, orig)
	if err != nil {
		t.Fatalf("CreateIfNotExists: %v", err)
	}
	if !isNew {
		t.Fatal("expected first insert to be new")
	}
	if stored.IssuerCode != "VAS" || stored.Title != "Dividend Distribution" {
		t.Fatalf("stored key not normalized: %q / %q", stored.IssuerCode, stored.Title)
	}

	// Same announcement with different case, padding and a time-of-day
	// component must be recognized as a duplicate.
	dup := testAnn("VAS", "Dividend Distribution", 10)
	dup.PubDate = dup.PubDate.Add(9 * time.Hour)
	got, isNew, err := s.CreateIfNotExists(ctx, dup)
	if err != nil {
		t.Fatalf("CreateIfNotExists dup: %v", err)
	}
	if isNew {
		t.Fatal("expected duplicate, got new row")
	}
	if got.ID != stored.ID {
		t.Fatalf("duplicate resolved to id %d, want %d", got.ID, stored.ID)
	}

	// A zoned timestamp on the same calendar day is still the same
	// announcement: the day is compared, not the absolute instant.
	aest := time.FixedZone("AEST", 10*60*60)
	zoned := testAnn("VAS", "Dividend Distribution", 10)
	// 05:00 AEST is the previous day in UTC; only a calendar-day
	// comparison treats it as the same announcement.
	zoned.PubDate = time.Date(2024, 6, 10, 5, 0, 0, 0, aest)
	got, isNew, err = s.CreateIfNotExists(ctx, zoned)
	if err != nil {
		t.Fatalf("CreateIfNotExists zoned: %v", err)
	}
	if isNew {
		t.Fatal("zoned same-day variant inserted a second row")
	}
	if got.ID != stored.ID {
		t.Fatalf("zoned duplicate resolved to id %d, want %d", got.ID, stored.ID)
	}
}

func TestFindDuplicateNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindDuplicate(context.Background(), "XYZ", "Nothing", time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMarkDownloadedAndUndownloaded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _, err := s.CreateIfNotExists(ctx, testAnn("VAS", "A", 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _, err := s.CreateIfNotExists(ctx, testAnn("VGS", "B", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c, _, err := s.CreateIfNotExists(ctx, testAnn("VGB", "C", 3))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.MarkDownloaded(ctx, a.ID, domain.StateDownloaded); err != nil {
		t.Fatalf("mark downloaded: %v", err)
	}
	if err := s.MarkDownloaded(ctx, b.ID, domain.StateFailed); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := s.Undownloaded(ctx, 0)
	if err != nil {
		t.Fatalf("Undownloaded: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	// Failed rows stay eligible for retry, downloaded rows do not.
	if pending[0].ID != b.ID || pending[1].ID != c.ID {
		t.Fatalf("pending ids = %d, %d; want %d, %d", pending[0].ID, pending[1].ID, b.ID, c.ID)
	}

	if err := s.MarkDownloaded(ctx, 9999, domain.StateDownloaded); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing id: got %v, want ErrNotFound", err)
	}
}

func TestResolvedURLLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _, err := s.CreateIfNotExists(ctx, testAnn("VAS", "A", 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	missing, err := s.MissingResolvedURLs(ctx, 0)
	if err != nil {
		t.Fatalf("MissingResolvedURLs: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != a.ID {
		t.Fatalf("got %d missing, want the one unresolved row", len(missing))
	}

	if err := s.UpdateResolvedURL(ctx, a.ID, "https://example.com/doc.pdf"); err != nil {
		t.Fatalf("UpdateResolvedURL: %v", err)
	}
	missing, err = s.MissingResolvedURLs(ctx, 0)
	if err != nil {
		t.Fatalf("MissingResolvedURLs: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("got %d missing after resolve, want 0", len(missing))
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResolvedURL != "https://example.com/doc.pdf" {
		t.Fatalf("resolved url = %q", got.ResolvedURL)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mr := domain.Template{
		Name:   "asx_dividend",
		Family: domain.FamilyMR,
		Fields: map[string]string{
			"ex_date":  `(?ms)Ex Date[:\s]+(\d{2}/\d{2}/\d{4})`,
			"pay_date": `(?ms)Payment Date[:\s]+(\d{2}/\d{2}/\d{4})`,
		},
	}
	nz := domain.Template{
		Name:   "asx_nz & tax_marker",
		Family: domain.FamilyNZ,
		Fields: map[string]string{"tax_rate": `Tax Rate\s+([\d.]+)`},
	}
	if err := s.SaveTemplate(ctx, mr); err != nil {
		t.Fatalf("save mr: %v", err)
	}
	if err := s.SaveTemplate(ctx, nz); err != nil {
		t.Fatalf("save nz: %v", err)
	}

	names, err := s.TemplateNames(ctx, domain.FamilyMR)
	if err != nil {
		t.Fatalf("TemplateNames: %v", err)
	}
	if len(names) != 1 || names[0] != "asx_dividend" {
		t.Fatalf("mr names = %v", names)
	}

	fields, err := s.TemplateFields(ctx, domain.FamilyMR, "asx_dividend")
	if err != nil {
		t.Fatalf("TemplateFields: %v", err)
	}
	if len(fields) != 2 || fields["ex_date"] != mr.Fields["ex_date"] {
		t.Fatalf("fields = %v", fields)
	}

	// Re-saving replaces, never appends.
	mr.Fields = map[string]string{"ex_date": `new`}
	if err := s.SaveTemplate(ctx, mr); err != nil {
		t.Fatalf("resave mr: %v", err)
	}
	fields, err = s.TemplateFields(ctx, domain.FamilyMR, "asx_dividend")
	if err != nil {
		t.Fatalf("TemplateFields after resave: %v", err)
	}
	if len(fields) != 1 || fields["ex_date"] != "new" {
		t.Fatalf("fields after resave = %v", fields)
	}

	if _, err := s.TemplateFields(ctx, domain.FamilyNZ, "asx_dividend"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("wrong family lookup: got %v, want ErrNotFound", err)
	}
}

func TestDescriptorUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := domain.FieldDescriptor{Code: "ex_date", Description: "Ex distribution date", RemoteCode: "EXD"}
	if err := s.SaveDescriptor(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	d.Description = "Ex date"
	if err := s.SaveDescriptor(ctx, d); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	all, err := s.Descriptors(ctx)
	if err != nil {
		t.Fatalf("Descriptors: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(all))
	}
	if all[0].Description != "Ex date" {
		t.Fatalf("description = %q, want updated value", all[0].Description)
	}
}
