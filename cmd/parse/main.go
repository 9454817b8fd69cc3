// Command parse applies extraction templates to downloaded disclosure
// documents and prints the typed field maps.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/engine/extract"
	"github.com/ratedesk/disclosure-engine/engine/store"
	"github.com/ratedesk/disclosure-engine/pkg/config"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to YAML config file")
		template = flag.String("template", "", "template name (default: suggest from filename)")
		file     = flag.String("file", "", "parse a single document")
		dir      = flag.String("dir", "", "parse every document in a directory")
		list     = flag.Bool("list-templates", false, "list available templates")
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

	db, err := store.Open(cfg.Store.Path, cfg.User, log)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	reg, err := extract.NewRegistry(ctx, db)
	if err != nil {
		log.Error("build registry", "error", err)
		os.Exit(1)
	}
	eng, err := extract.NewEngine(extract.Deps{
		Registry: reg,
		Text:     extract.PDFText{},
		Logger:   log,
	})
	if err != nil {
		log.Error("build engine", "error", err)
		os.Exit(1)
	}

	switch {
	case *list:
		names, err := reg.ListTemplates(ctx)
		if err != nil {
			log.Error("list templates", "error", err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}

	case *file != "":
		name := pickTemplate(reg, *template, *file, log)
		res, err := eng.ExtractFile(ctx, *file, name)
		if err != nil {
			log.Error("parse failed", "file", *file, "error", err)
			os.Exit(1)
		}
		res = extract.ApplyRules(res, name)
		printResult(*file, name, res)

	case *dir != "":
		if *template == "" {
			log.Error("-dir requires -template")
			os.Exit(2)
		}
		outcomes, err := eng.BatchParseFolder(ctx, *dir, *template)
		if err != nil {
			log.Error("batch parse", "error", err)
			os.Exit(1)
		}
		failed := 0
		for _, out := range outcomes {
			if out.Err != nil {
				failed++
				log.Error("parse failed", "file", out.File, "error", out.Err)
				continue
			}
			printResult(out.File, *template, out.Result)
		}
		fmt.Fprintf(os.Stderr, "parsed %d documents, %d failed\n", len(outcomes)-failed, failed)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func pickTemplate(reg *extract.Registry, explicit, file string, log *slog.Logger) string {
	if explicit != "" {
		return explicit
	}
	name := reg.SuggestTemplate(file)
	if name == "" {
		log.Error("no template given and none could be suggested", "file", file)
		os.Exit(2)
	}
	log.Info("suggested template", "file", file, "template", name)
	return name
}

func printResult(file, template string, res domain.Result) {
	ok, problems := domain.Validate(res)
	out := struct {
		File     string        `json:"file"`
		Template string        `json:"template"`
		Valid    bool          `json:"valid"`
		Problems []string      `json:"problems,omitempty"`
		Fields   domain.Result `json:"fields"`
	}{file, template, ok, problems, res}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, "encode result:", err)
	}
}
