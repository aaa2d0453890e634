package pdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const (
	// lineTolerance is the vertical distance above which two runs are on
	// different lines.
	lineTolerance = 1.0

	// A horizontal gap wider than max(minWordGap, fontSize*wordGapRatio)
	// is a word break.
	minWordGap   = 1.0
	wordGapRatio = 0.2

	defaultMaxWorkers = 4
)

var errNoText = errors.New("pdf text layer is empty")

type Processor struct {
	renderer   *deps.Provider[Renderer]
	logger     logger.Logger
	maxWorkers int
}

func NewProcessor(renderer *deps.Provider[Renderer], log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	if renderer == nil {
		renderer = NewRendererProvider(log)
	}
	return &Processor{
		renderer:   renderer,
		logger:     log.Named("pdf"),
		maxWorkers: defaultMaxWorkers,
	}
}

func (p *Processor) Name() string { return "pdf" }

// Extract reads the text layer page by page. When the renderer cannot be
// loaded, fails, or yields no text, the raw byte scan in fallback.go runs
// instead.
func (p *Processor) Extract(ctx context.Context, src document.Source) (models.Outcome, error) {
	renderer, err := p.renderer.Ensure(ctx)
	if err == nil {
		var out models.Outcome
		out, err = p.primary(ctx, renderer, src.Data)
		if err == nil {
			return out, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.Outcome{}, ctxErr
	}

	p.logger.Warn("PDF text layer unavailable, using basic extraction",
		logger.String("file", src.Name),
		logger.Error(err),
	)
	out, ferr := Fallback(src.Data)
	if ferr != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v (fallback: %v)", models.ErrExtraction, err, ferr)
	}
	return out, nil
}

func (p *Processor) primary(ctx context.Context, renderer Renderer, data []byte) (models.Outcome, error) {
	doc, err := renderer.Open(data)
	if err != nil {
		return models.Outcome{}, err
	}

	numPages := doc.NumPage()
	if numPages <= 0 {
		return models.Outcome{}, errNoText
	}

	// The bundled renderer serializes PageRuns on its document lock, so with it
	// the group only buys cancellation and first-error propagation. The limit
	// matters for Renderer implementations that decode pages concurrently.
	bodies := make([]string, numPages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			runs, err := doc.PageRuns(pageNum)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNum, err)
			}
			bodies[pageNum-1] = Reconstruct(runs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Outcome{}, err
	}

	out := models.Outcome{Pages: bodies}
	if !document.HasText(out) {
		return models.Outcome{}, errNoText
	}
	p.logger.Debug("PDF pages extracted", logger.Int("pages", numPages))
	return out, nil
}

// Reconstruct rebuilds page text from positioned runs: a change of baseline
// starts a new line and a visible horizontal gap becomes a single space.
func Reconstruct(runs []TextRun) string {
	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			prev := runs[i-1]
			switch {
			case math.Abs(r.Y-prev.Y) > lineTolerance:
				b.WriteByte('\n')
			case r.X-(prev.X+prev.W) > wordGap(prev):
				if !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(r.S, " ") {
					b.WriteByte(' ')
				}
			}
		}
		b.WriteString(r.S)
	}

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func wordGap(r TextRun) float64 {
	return math.Max(minWordGap, r.FontSize*wordGapRatio)
}
