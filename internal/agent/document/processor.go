package document

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/feichai0017/document-ingest/internal/models"
)

// Source is the raw input handed to a strategy.
type Source struct {
	Name      string
	MediaType string
	Data      []byte
}

// Extension returns the lowercase extension of the source name.
func (s Source) Extension() string {
	return models.Extension(s.Name)
}

// Processor is one extraction strategy. Extract returns exactly one result per
// call; a returned error is recorded as an error outcome by the caller.
type Processor interface {
	Name() string
	Extract(ctx context.Context, src Source) (models.Outcome, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc struct {
	Label string
	Fn    func(ctx context.Context, src Source) (models.Outcome, error)
}

func (f ProcessorFunc) Name() string { return f.Label }

func (f ProcessorFunc) Extract(ctx context.Context, src Source) (models.Outcome, error) {
	return f.Fn(ctx, src)
}

// Guard runs fn and converts a panic inside it into an error. Third-party
// parsers are called through it.
func Guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v\n%s", models.ErrExtraction, name, r, debug.Stack())
		}
	}()
	return fn()
}

// HasText reports whether an outcome carries any non-blank content.
func HasText(o models.Outcome) bool {
	if strings.TrimSpace(o.Text) != "" {
		return true
	}
	for _, p := range o.Pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// ProgressFunc receives progress updates from long running strategies.
type ProgressFunc func(status string, progress float64)

type progressKey struct{}

// WithProgress returns a copy of ctx that carries fn.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress forwards an update to the ProgressFunc carried by ctx, if any.
func ReportProgress(ctx context.Context, status string, progress float64) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		fn(status, progress)
	}
}
