package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// TextRun is one positioned piece of text reported by the renderer.
type TextRun struct {
	X, Y     float64
	W        float64
	FontSize float64
	S        string
}

// PagedDocument is an opened PDF.
type PagedDocument interface {
	NumPage() int
	// PageRuns returns the runs of page n (1-based) in renderer order.
	PageRuns(n int) ([]TextRun, error)
}

// Renderer opens PDF bytes as a paged document.
type Renderer interface {
	Open(data []byte) (PagedDocument, error)
}

// NewRendererProvider returns the provider for the ledongthuc/pdf text layer.
func NewRendererProvider(log logger.Logger) *deps.Provider[Renderer] {
	return deps.NewProvider[Renderer]("pdf-renderer", func(context.Context) (Renderer, error) {
		return ledongthucRenderer{}, nil
	}, log)
}

type ledongthucRenderer struct{}

func (ledongthucRenderer) Open(data []byte) (PagedDocument, error) {
	var reader *pdf.Reader
	err := document.Guard("pdf.NewReader", func() error {
		var err error
		reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &ledongthucDocument{reader: reader}, nil
}

// ledongthucDocument serializes access to the reader: page decoding
// touches reader state, so each call holds mu for its whole duration and
// releases it on every exit path, panics included.
type ledongthucDocument struct {
	mu     sync.Mutex
	reader *pdf.Reader
}

func (d *ledongthucDocument) NumPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reader.NumPage()
}

func (d *ledongthucDocument) PageRuns(n int) ([]TextRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var runs []TextRun
	err := document.Guard(fmt.Sprintf("pdf page %d", n), func() error {
		page := d.reader.Page(n)
		if page.V.IsNull() {
			return nil
		}
		for _, t := range page.Content().Text {
			runs = append(runs, TextRun{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
