// Package coordinator runs extraction strategies for registered files and
// writes exactly one terminal result per file back to the registry.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultMaxConcurrent = 4
)

// Resolver picks the strategy for a category.
type Resolver interface {
	GetProcessor(category models.Category) (document.Processor, error)
}

// Sink receives the state transitions of a file.
type Sink interface {
	MarkExtracting(id string) bool
	WriteExtractionFor(id, text string, isError bool) bool
}

type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	Mode          pages.Mode
}

// Result is the terminal outcome recorded for one file.
type Result struct {
	Text     string
	IsError  bool
	TimedOut bool
	Duration time.Duration
	// Written is false when the entry disappeared before the write.
	Written bool
}

type Coordinator struct {
	resolver Resolver
	sink     Sink
	config   Config
	sem      chan struct{}
	wg       sync.WaitGroup
	hooks    notify.Hooks
	logger   logger.Logger
}

func New(resolver Resolver, sink Sink, cfg Config, hooks notify.Hooks, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Mode == pages.ModeNone {
		cfg.Mode = pages.ModePlain
	}
	return &Coordinator{
		resolver: resolver,
		sink:     sink,
		config:   cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		hooks:    hooks,
		logger:   log.Named("coordinator"),
	}
}

// Dispatch extracts file in the background. Files whose category needs no
// extraction are ignored. The run is detached from ctx cancellation; only
// the configured timeout ends it.
func (c *Coordinator) Dispatch(ctx context.Context, file models.IngestedFile) bool {
	if !file.Category.Extractable() {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Extract(ctx, file)
	}()
	return true
}

// Wait blocks until every dispatched run has written its result.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Extract runs the strategy for file and records the result. It returns
// once the result is written, at the latest when the timeout fires.
func (c *Coordinator) Extract(ctx context.Context, file models.IngestedFile) Result {
	log := logger.FromContext(ctx, c.logger).With(
		logger.String("file", file.Name),
		logger.String("category", string(file.Category)),
	)

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return c.finish(log, file, c.errorResult(ctx.Err()), time.Now())
	}
	defer func() { <-c.sem }()

	if !c.sink.MarkExtracting(file.ID) {
		log.Debug("File gone before extraction started")
		return Result{}
	}
	start := time.Now()

	processor, err := c.resolver.GetProcessor(file.Category)
	if err != nil {
		return c.finish(log, file, c.errorResult(err), start)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runCtx = document.WithProgress(runCtx, func(status string, progress float64) {
		c.hooks.ExtractionProgress(file.Name, status, progress)
	})

	// Buffered so a strategy that finishes after the timeout never blocks.
	done := make(chan Result, 1)
	go func() {
		var out models.Outcome
		err := document.Guard(processor.Name(), func() error {
			var err error
			out, err = processor.Extract(runCtx, document.Source{
				Name:      file.Name,
				MediaType: file.MediaType,
				Data:      file.Raw,
			})
			return err
		})
		if err != nil {
			done <- c.errorResult(err)
			return
		}
		done <- c.render(file.Name, out)
	}()

	timer := time.NewTimer(c.config.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return c.finish(log, file, res, start)
	case <-timer.C:
		cancel()
		log.Warn("Extraction timed out", logger.Duration("timeout", c.config.Timeout))
		res := c.errorResult(fmt.Errorf("%w after %s", models.ErrTimeout, c.config.Timeout))
		res.TimedOut = true
		return c.finish(log, file, res, start)
	case <-ctx.Done():
		return c.finish(log, file, c.errorResult(ctx.Err()), start)
	}
}

func (c *Coordinator) finish(log logger.Logger, file models.IngestedFile, res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	res.Written = c.sink.WriteExtractionFor(file.ID, res.Text, res.IsError)
	if res.IsError {
		log.Warn("Extraction failed",
			logger.String("result", res.Text),
			logger.Duration("elapsed", res.Duration),
		)
	} else {
		log.Info("Extraction finished",
			logger.Int("chars", len(res.Text)),
			logger.Duration("elapsed", res.Duration),
		)
	}
	if !res.Written {
		log.Debug("Result dropped, file no longer registered")
	}
	return res
}

// render applies the page-marker encoding to a strategy outcome.
func (c *Coordinator) render(name string, out models.Outcome) Result {
	if out.IsError {
		return Result{Text: models.ErrorOutcome(out.Text).Text, IsError: true}
	}
	if len(out.Pages) > 0 {
		return Result{Text: pages.Encode(c.config.Mode, name, out.Preamble, out.Pages)}
	}
	text := out.Text
	if p := strings.TrimSpace(out.Preamble); p != "" {
		text = p + "\n\n" + text
	}
	return Result{Text: text}
}

func (c *Coordinator) errorResult(err error) Result {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	if errors.Is(err, context.Canceled) {
		msg = "extraction cancelled"
	}
	return Result{Text: models.ErrorOutcome(msg).Text, IsError: true}
}
