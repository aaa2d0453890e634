// Command extract ingests files from the command line and prints their
// combined extracted text.
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/ingest"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

func main() {
	mode := flag.String("mode", "", "page marker mode: plain or structured (default from PAGE_MARKER_MODE)")
	separator := flag.String("separator", "", "separator between files (default blank line)")
	timeout := flag.Duration("timeout", 0, "per-file extraction timeout (default from EXTRACTION_TIMEOUT)")
	level := flag.String("log-level", "warn", "log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Ingest.ExtractionTimeout = *timeout
	}
	if *mode != "" {
		m, err := pages.ParseMode(*mode)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cfg.Ingest.PageMarkerMode = string(m)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(*level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	svc, err := ingest.GetService(cfg, notify.LogHooks(log), log)
	if err != nil {
		log.Fatal("Failed to get ingest service", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	candidates, err := readCandidates(flag.Args())
	if err != nil {
		log.Fatal("Failed to read input", logger.Error(err))
	}

	failed := false
	for _, r := range svc.HandleFiles(ctx, candidates) {
		if !r.Accepted {
			failed = true
			fmt.Fprintf(os.Stderr, "%s: %s\n", r.Name, r.Reason)
		}
	}
	svc.Wait()

	for _, f := range svc.Registry().GetAll() {
		if f.Status() == models.StatusError {
			failed = true
		}
	}

	fmt.Println(svc.Registry().CombinedText(*separator))
	if failed {
		os.Exit(1)
	}
}

func readCandidates(paths []string) ([]models.Candidate, error) {
	candidates := make([]models.Candidate, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		candidates = append(candidates, models.Candidate{
			Name:      name,
			Size:      int64(len(data)),
			MediaType: mime.TypeByExtension(filepath.Ext(name)),
			Data:      data,
		})
	}
	return candidates, nil
}
