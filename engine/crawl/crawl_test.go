package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/pkg/events"
)

type memStore struct {
	mu     sync.Mutex
	anns   []domain.Announcement
	nextID uint
}

func (m *memStore) SaveAll(_ context.Context, batch []domain.Announcement) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created, dups := 0, 0
	for _, ann := range batch {
		ann.IssuerCode = strings.ToUpper(strings.TrimSpace(ann.IssuerCode))
		ann.Title = strings.TrimSpace(ann.Title)
		ann.PubDate = ann.PubDate.Truncate(24 * time.Hour)
		dup := false
		for _, have := range m.anns {
			if have.IssuerCode == ann.IssuerCode && have.Title == ann.Title && have.PubDate.Equal(ann.PubDate) {
				dup = true
				break
			}
		}
		if dup {
			dups++
			continue
		}
		m.nextID++
		ann.ID = m.nextID
		m.anns = append(m.anns, ann)
		created++
	}
	return created, dups, nil
}

func (m *memStore) MarkDownloaded(_ context.Context, id uint, state domain.DownloadState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.anns {
		if m.anns[i].ID == id {
			m.anns[i].Downloaded = state
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) UpdateResolvedURL(_ context.Context, id uint, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.anns {
		if m.anns[i].ID == id {
			m.anns[i].ResolvedURL = url
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) MissingResolvedURLs(_ context.Context, limit int) ([]domain.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Announcement
	for _, ann := range m.anns {
		if ann.MaskURL != "" && ann.ResolvedURL == "" {
			out = append(out, ann)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Undownloaded(_ context.Context, limit int) ([]domain.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Announcement
	for _, ann := range m.anns {
		if ann.Downloaded == domain.StateNotDownloaded || ann.Downloaded == domain.StateFailed {
			out = append(out, ann)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) state(id uint) domain.DownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ann := range m.anns {
		if ann.ID == id {
			return ann.Downloaded
		}
	}
	return domain.DownloadState(-1)
}

type fakeScraper struct {
	byCode map[string][]domain.Announcement
	errOn  map[string]error
	daily  []domain.Announcement
}

func (f *fakeScraper) ScrapeByCode(_ context.Context, code, _ string) ([]domain.Announcement, error) {
	if err, ok := f.errOn[code]; ok {
		return nil, err
	}
	return f.byCode[code], nil
}

func (f *fakeScraper) ScrapeByDay(context.Context, bool) ([]domain.Announcement, error) {
	return f.daily, nil
}

type fakeResolver struct {
	urls  map[string]string
	errOn map[string]error
}

func (f *fakeResolver) ResolveMaskURL(_ context.Context, mask string) (string, error) {
	if err, ok := f.errOn[mask]; ok {
		return "", err
	}
	u, ok := f.urls[mask]
	if !ok {
		return "", domain.ErrResolution
	}
	return u, nil
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	errOn map[string]error
}

func (f *fakeDownloader) Download(_ context.Context, url, _ string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.errOn[url]; ok {
		return err
	}
	return nil
}

func scraped(code, title string, day int) domain.Announcement {
	return domain.Announcement{
		IssuerCode: code,
		Title:      title,
		PubDate:    time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
		MaskURL:    "https://example.com/mask/" + code + title,
	}
}

func newTestOrchestrator(t *testing.T, d Deps) *Orchestrator {
	t.Helper()
	o, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestByCodesAggregateCounts(t *testing.T) {
	scraper := &fakeScraper{byCode: map[string][]domain.Announcement{}}
	codes := []string{"AAA", "BBB", "CCC"}
	for i, code := range codes {
		scraper.byCode[code] = []domain.Announcement{
			scraped(code, fmt.Sprintf("Notice %d-1", i), 1),
			scraped(code, fmt.Sprintf("Notice %d-2", i), 2),
		}
	}
	store := &memStore{}
	o := newTestOrchestrator(t, Deps{Scraper: scraper, Store: store})

	stats, err := o.ByCodes(context.Background(), codes, "2024")
	if err != nil {
		t.Fatalf("ByCodes: %v", err)
	}
	if stats.New != 6 || stats.Duplicates != 0 || stats.Total != 6 || stats.Errors != 0 {
		t.Fatalf("first crawl stats = %+v", stats)
	}
	if stats.RunID == "" {
		t.Fatal("missing run id")
	}

	stats, err = o.ByCodes(context.Background(), codes, "2024")
	if err != nil {
		t.Fatalf("ByCodes rerun: %v", err)
	}
	if stats.New != 0 || stats.Duplicates != 6 || stats.Total != 6 {
		t.Fatalf("rerun stats = %+v", stats)
	}
}

func TestByCodesIsolatesScrapeFailures(t *testing.T) {
	scraper := &fakeScraper{
		byCode: map[string][]domain.Announcement{
			"AAA": {scraped("AAA", "Notice", 1)},
			"CCC": {scraped("CCC", "Notice", 2)},
		},
		errOn: map[string]error{"BBB": errors.New("listing page unavailable")},
	}
	store := &memStore{}
	o := newTestOrchestrator(t, Deps{Scraper: scraper, Store: store})

	stats, err := o.ByCodes(context.Background(), []string{"AAA", "BBB", "CCC"}, "2024")
	if err != nil {
		t.Fatalf("ByCodes: %v", err)
	}
	if stats.Errors != 1 {
		t.Fatalf("errors = %d, want 1", stats.Errors)
	}
	if stats.New != 2 || stats.Total != 2 {
		t.Fatalf("partial stats = %+v, want the two healthy identifiers saved", stats)
	}
}

func TestByDay(t *testing.T) {
	scraper := &fakeScraper{daily: []domain.Announcement{
		scraped("AAA", "Daily A", 3),
		scraped("BBB", "Daily B", 3),
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, Deps{Scraper: scraper, Store: store})

	stats, err := o.ByDay(context.Background(), true)
	if err != nil {
		t.Fatalf("ByDay: %v", err)
	}
	if stats.New != 2 || stats.Total != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestSyncMissingURLsIsolatesFailures(t *testing.T) {
	store := &memStore{}
	if _, _, err := store.SaveAll(context.Background(), []domain.Announcement{
		scraped("AAA", "Good", 1),
		scraped("BBB", "Bad", 2),
	}); err != nil {
		t.Fatal(err)
	}
	good := store.anns[0]
	bad := store.anns[1]

	resolver := &fakeResolver{
		urls:  map[string]string{good.MaskURL: "https://example.com/doc.pdf"},
		errOn: map[string]error{bad.MaskURL: domain.ErrResolution},
	}
	capture := &captureNotifier{}
	o := newTestOrchestrator(t, Deps{
		Scraper:  &fakeScraper{},
		Store:    store,
		Resolver: resolver,
		Notifier: capture,
	})

	synced, err := o.SyncMissingURLs(context.Background(), 0)
	if err != nil {
		t.Fatalf("SyncMissingURLs: %v", err)
	}
	if synced != 1 {
		t.Fatalf("synced = %d, want 1", synced)
	}
	if store.anns[0].ResolvedURL != "https://example.com/doc.pdf" {
		t.Fatalf("resolved url not persisted: %+v", store.anns[0])
	}
	if store.anns[1].ResolvedURL != "" {
		t.Fatalf("failed record must stay unresolved: %+v", store.anns[1])
	}
	// Both records report progress, not just the one that resolved.
	if len(capture.events) != 2 {
		t.Fatalf("progress events = %d, want 2", len(capture.events))
	}
	for i, p := range capture.events {
		if p.Operation != "sync_urls" || p.Total != 2 || p.Current != i+1 {
			t.Fatalf("event %d = %+v", i, p)
		}
	}
}

func TestDownloadPendingStateMachine(t *testing.T) {
	store := &memStore{}
	if _, _, err := store.SaveAll(context.Background(), []domain.Announcement{
		scraped("AAA", "Works", 1),
		scraped("BBB", "Breaks", 2),
		scraped("CCC", "Unresolved", 3),
	}); err != nil {
		t.Fatal(err)
	}
	store.anns[0].ResolvedURL = "https://example.com/a.pdf"
	store.anns[1].ResolvedURL = "https://example.com/b.pdf"

	dl := &fakeDownloader{errOn: map[string]error{
		"https://example.com/b.pdf": &domain.DownloadError{URL: "https://example.com/b.pdf", Attempts: 3},
	}}
	capture := &captureNotifier{}
	o := newTestOrchestrator(t, Deps{
		Scraper:     &fakeScraper{},
		Store:       store,
		Downloader:  dl,
		Notifier:    capture,
		DownloadDir: t.TempDir(),
	})

	done, err := o.DownloadPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("DownloadPending: %v", err)
	}
	if done != 1 {
		t.Fatalf("done = %d, want 1", done)
	}
	if got := store.state(1); got != domain.StateDownloaded {
		t.Fatalf("record 1 state = %v, want downloaded", got)
	}
	if got := store.state(2); got != domain.StateFailed {
		t.Fatalf("record 2 state = %v, want failed", got)
	}
	// No resolved URL means no attempt and no state change.
	if got := store.state(3); got != domain.StateNotDownloaded {
		t.Fatalf("record 3 state = %v, want untouched", got)
	}
	if len(dl.calls) != 2 {
		t.Fatalf("downloader calls = %v", dl.calls)
	}
	if len(capture.events) != 1 || capture.events[0].Operation != "download" {
		t.Fatalf("progress events = %+v", capture.events)
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []events.Progress
}

func (c *captureNotifier) Notify(_ context.Context, p events.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, p)
}
