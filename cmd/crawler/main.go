// Command crawler polls the disclosure source for announcements, stores
// them idempotently, resolves masked document links and downloads the
// documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/ratedesk/disclosure-engine/engine/asx"
	"github.com/ratedesk/disclosure-engine/engine/crawl"
	"github.com/ratedesk/disclosure-engine/engine/store"
	"github.com/ratedesk/disclosure-engine/pkg/config"
	"github.com/ratedesk/disclosure-engine/pkg/events"
	"github.com/ratedesk/disclosure-engine/pkg/metrics"
	"github.com/ratedesk/disclosure-engine/pkg/netgate"
)

var met = metrics.New()

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to YAML config file")
		codes    = flag.String("codes", "", "comma-separated issuer codes to crawl")
		year     = flag.String("year", "", "listing year for -codes (default current)")
		day      = flag.String("day", "", "crawl a daily listing: today or prev")
		syncURLs = flag.Bool("sync-urls", false, "resolve mask URLs for stored records")
		download = flag.Bool("download", false, "download documents for resolved records")
		limit    = flag.Int("limit", 0, "max records for -sync-urls / -download (0 = all)")
		metPort  = flag.Int("metrics-port", 0, "override the config metrics port")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Defaults()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metPort > 0 {
		cfg.MetricsPort = *metPort
	}
	if cfg.MetricsPort > 0 {
		met.ServeAsync(cfg.MetricsPort)
	}

	gate := netgate.New(cfg.Crawl.Concurrency, cfg.Crawl.RatePerSecond)
	client, err := asx.New(asx.Options{
		BaseURL:    cfg.Source.BaseURL,
		Proxy:      cfg.Source.Proxy,
		Gate:       gate,
		MaxRetries: cfg.Crawl.MaxRetries,
		UserAgent:  cfg.Source.UserAgent,
		Timeout:    cfg.Timeout(),
		Logger:     log,
	})
	if err != nil {
		log.Error("build client", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Store.Path, cfg.User, log)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}

	notify := buildNotifier(cfg, log)

	orch, err := crawl.New(crawl.Deps{
		Scraper:     client,
		Resolver:    client,
		Downloader:  client,
		Store:       db,
		Logger:      log,
		Metrics:     met,
		Notifier:    notify,
		DownloadDir: cfg.DownloadDir,
	})
	if err != nil {
		log.Error("build orchestrator", "error", err)
		os.Exit(1)
	}

	ran := false
	if *codes != "" {
		ran = true
		list := splitCodes(*codes)
		stats, err := orch.ByCodes(ctx, list, *year)
		if err != nil {
			log.Error("crawl by codes", "error", err)
			os.Exit(1)
		}
		fmt.Printf("crawl %s: %d new, %d duplicates, %d total, %d errors\n",
			stats.RunID, stats.New, stats.Duplicates, stats.Total, stats.Errors)
	}
	if *day != "" {
		ran = true
		stats, err := orch.ByDay(ctx, *day == "today")
		if err != nil {
			log.Error("crawl by day", "error", err)
			os.Exit(1)
		}
		fmt.Printf("daily crawl %s: %d new, %d duplicates, %d total\n",
			stats.RunID, stats.New, stats.Duplicates, stats.Total)
	}
	if *syncURLs {
		ran = true
		n, err := orch.SyncMissingURLs(ctx, *limit)
		if err != nil {
			log.Error("sync urls", "error", err)
			os.Exit(1)
		}
		fmt.Printf("resolved %d mask URLs\n", n)
	}
	if *download {
		ran = true
		if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
			log.Error("create download dir", "error", err)
			os.Exit(1)
		}
		n, err := orch.DownloadPending(ctx, *limit)
		if err != nil {
			log.Error("download pending", "error", err)
			os.Exit(1)
		}
		fmt.Printf("downloaded %d documents\n", n)
	}

	if !ran {
		flag.Usage()
		os.Exit(2)
	}
}

func buildNotifier(cfg config.Config, log *slog.Logger) events.Notifier {
	notifiers := events.Multi{events.LogNotifier{Logger: log}}
	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL, nats.Name("disclosure-crawler"))
		if err != nil {
			log.Warn("nats unavailable, progress events stay local", "error", err)
		} else {
			notifiers = append(notifiers, &events.NATSNotifier{Conn: nc, Subject: cfg.Events.Subject})
		}
	}
	return notifiers
}

func splitCodes(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
