// Package crawl orchestrates listing scrapes, mask-URL resolution and
// document downloads across the ingestion store.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/pkg/events"
	"github.com/ratedesk/disclosure-engine/pkg/metrics"
)

// Scraper lists announcements from the disclosure source.
type Scraper interface {
	ScrapeByCode(ctx context.Context, issuerCode, year string) ([]domain.Announcement, error)
	ScrapeByDay(ctx context.Context, today bool) ([]domain.Announcement, error)
}

// Resolver turns a mask URL into the direct document URL.
type Resolver interface {
	ResolveMaskURL(ctx context.Context, maskURL string) (string, error)
}

// Downloader streams one document to disk.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Store is the persistence surface the orchestrator drives.
type Store interface {
	SaveAll(ctx context.Context, anns []domain.Announcement) (created, duplicates int, err error)
	MarkDownloaded(ctx context.Context, id uint, state domain.DownloadState) error
	UpdateResolvedURL(ctx context.Context, id uint, url string) error
	MissingResolvedURLs(ctx context.Context, limit int) ([]domain.Announcement, error)
	Undownloaded(ctx context.Context, limit int) ([]domain.Announcement, error)
}

// Stats summarizes one crawl invocation. Errors counts identifiers
// whose scrape failed; their announcements are simply missing from the
// totals.
type Stats struct {
	New        int
	Duplicates int
	Total      int
	Errors     int
	RunID      string
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Scraper     Scraper
	Resolver    Resolver
	Downloader  Downloader
	Store       Store
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	Notifier    events.Notifier
	DownloadDir string
}

// Orchestrator fans listing scrapes out across identifiers and drives
// resolution and download for stored records.
type Orchestrator struct {
	scraper  Scraper
	resolver Resolver
	dl       Downloader
	store    Store
	log      *slog.Logger
	metrics  *metrics.Registry
	notify   events.Notifier
	dir      string
}

// New validates deps and builds an orchestrator.
func New(d Deps) (*Orchestrator, error) {
	if d.Scraper == nil || d.Store == nil {
		return nil, fmt.Errorf("crawl: scraper and store are required")
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
	return &Orchestrator{
		scraper:  d.Scraper,
		resolver: d.Resolver,
		dl:       d.Downloader,
		store:    d.Store,
		log:      d.Logger,
		metrics:  d.Metrics,
		notify:   d.Notifier,
		dir:      d.DownloadDir,
	}, nil
}

// ByCodes scrapes the listing page for each identifier concurrently and
// saves the flattened batch. A failed identifier is recorded in
// Stats.Errors and never aborts the others; the save pass runs once,
// sequentially, after all scrapes return.
func (o *Orchestrator) ByCodes(ctx context.Context, codes []string, year string) (Stats, error) {
	runID := uuid.NewString()
	start := time.Now()
	o.log.Info("crawl started", "run_id", runID, "codes", len(codes), "year", year)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		gotten []domain.Announcement
		failed int
	)
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			anns, err := o.scraper.ScrapeByCode(ctx, code, year)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				o.log.Error("scrape failed", "run_id", runID, "code", code, "error", err)
				o.metrics.Counter("crawl_scrape_errors_total").Inc()
				return
			}
			gotten = append(gotten, anns...)
		}(code)
	}
	wg.Wait()

	stats, err := o.save(ctx, runID, gotten)
	stats.Errors = failed
	o.metrics.Histogram("crawl_duration_seconds", nil).Since(start)
	return stats, err
}

// ByDay scrapes the daily listing (today or the previous trading day)
// and saves the batch.
func (o *Orchestrator) ByDay(ctx context.Context, today bool) (Stats, error) {
	runID := uuid.NewString()
	start := time.Now()

	anns, err := o.scraper.ScrapeByDay(ctx, today)
	if err != nil {
		o.metrics.Counter("crawl_scrape_errors_total").Inc()
		return Stats{RunID: runID, Errors: 1}, err
	}
	stats, err := o.save(ctx, runID, anns)
	o.metrics.Histogram("crawl_duration_seconds", nil).Since(start)
	return stats, err
}

func (o *Orchestrator) save(ctx context.Context, runID string, anns []domain.Announcement) (Stats, error) {
	created, dups, err := o.store.SaveAll(ctx, anns)
	if err != nil {
		return Stats{RunID: runID}, fmt.Errorf("save crawl batch: %w", err)
	}
	o.metrics.Counter("crawl_announcements_new_total").Add(int64(created))
	o.metrics.Counter("crawl_announcements_duplicate_total").Add(int64(dups))
	o.log.Info("crawl saved", "run_id", runID, "new", created, "duplicates", dups, "total", len(anns))
	return Stats{New: created, Duplicates: dups, Total: len(anns), RunID: runID}, nil
}

// SyncMissingURLs resolves the direct document URL for records that
// only carry a mask URL. Failures on individual records are logged and
// skipped; the count of successful resolutions is returned.
func (o *Orchestrator) SyncMissingURLs(ctx context.Context, limit int) (int, error) {
	if o.resolver == nil {
		return 0, fmt.Errorf("crawl: no resolver configured")
	}
	pending, err := o.store.MissingResolvedURLs(ctx, limit)
	if err != nil {
		return 0, err
	}

	runID := uuid.NewString()
	synced := 0
	for i, ann := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		// Progress marks records processed, resolved or not.
		o.notify.Notify(ctx, events.Progress{
			Operation: "sync_urls",
			Current:   i + 1,
			Total:     len(pending),
			Detail:    ann.IssuerCode,
			RunID:     runID,
		})
		resolved, err := o.resolver.ResolveMaskURL(ctx, ann.MaskURL)
		if err != nil {
			o.log.Warn("resolution failed", "run_id", runID, "id", ann.ID, "error", err)
			o.metrics.Counter("sync_resolution_errors_total").Inc()
			continue
		}
		if err := o.store.UpdateResolvedURL(ctx, ann.ID, resolved); err != nil {
			o.log.Error("persist resolved url failed", "run_id", runID, "id", ann.ID, "error", err)
			continue
		}
		synced++
	}
	o.metrics.Counter("sync_resolved_total").Add(int64(synced))
	return synced, nil
}

// DownloadPending fetches documents for stored announcements that have
// a resolved URL and no successful download yet. Each record walks the
// state machine: in progress, then downloaded or failed. Per-record
// failures never abort the batch; the count downloaded is returned.
func (o *Orchestrator) DownloadPending(ctx context.Context, limit int) (int, error) {
	if o.dl == nil {
		return 0, fmt.Errorf("crawl: no downloader configured")
	}
	pending, err := o.store.Undownloaded(ctx, limit)
	if err != nil {
		return 0, err
	}

	runID := uuid.NewString()
	done := 0
	for i, ann := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if ann.ResolvedURL == "" {
			continue
		}
		if err := o.store.MarkDownloaded(ctx, ann.ID, domain.StateInProgress); err != nil {
			o.log.Error("mark in progress failed", "run_id", runID, "id", ann.ID, "error", err)
			continue
		}
		dest := filepath.Join(o.dir, documentFileName(ann))
		if err := o.dl.Download(ctx, ann.ResolvedURL, dest); err != nil {
			o.log.Warn("download failed", "run_id", runID, "id", ann.ID, "error", err)
			o.metrics.Counter("download_errors_total").Inc()
			if err := o.store.MarkDownloaded(ctx, ann.ID, domain.StateFailed); err != nil {
				o.log.Error("mark failed state", "run_id", runID, "id", ann.ID, "error", err)
			}
			continue
		}
		if err := o.store.MarkDownloaded(ctx, ann.ID, domain.StateDownloaded); err != nil {
			o.log.Error("mark downloaded failed", "run_id", runID, "id", ann.ID, "error", err)
			continue
		}
		done++
		o.metrics.Counter("download_files_total").Inc()
		o.notify.Notify(ctx, events.Progress{
			Operation: "download",
			Current:   i + 1,
			Total:     len(pending),
			Detail:    ann.IssuerCode,
			RunID:     runID,
		})
	}
	return done, nil
}

// documentFileName builds a stable on-disk name from the announcement
// identity.
func documentFileName(ann domain.Announcement) string {
	return fmt.Sprintf("%s_%s_%d.pdf", ann.IssuerCode, ann.PubDate.Format("20060102"), ann.ID)
}
