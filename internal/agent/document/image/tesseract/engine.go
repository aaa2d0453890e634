// Package tesseract binds the Tesseract OCR engine through gosseract. It
// needs cgo and the tesseract/leptonica libraries at build time.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document/image"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/storage"
)

type Config struct {
	// TessdataDir overrides the system tessdata location when set.
	TessdataDir string
	Languages   string
	PageSegMode gosseract.PageSegMode
	// MinConfidence drops words below this confidence from the mean.
	MinConfidence float64
}

type Engine struct {
	config Config
}

func New(cfg Config) *Engine {
	if cfg.PageSegMode == 0 {
		cfg.PageSegMode = gosseract.PSM_AUTO
	}
	return &Engine{config: cfg}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize creates a fresh client per call; gosseract clients are not safe
// for concurrent use.
func (e *Engine) Recognize(ctx context.Context, req image.Request, progress image.ProgressFunc) (image.Result, error) {
	if err := ctx.Err(); err != nil {
		return image.Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.config.TessdataDir != "" {
		client.TessdataPrefix = e.config.TessdataDir
	}
	langs := image.SplitLanguages(req.Language)
	if len(langs) == 0 {
		langs = image.SplitLanguages(e.config.Languages)
	}
	if err := client.SetLanguage(langs...); err != nil {
		return image.Result{}, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(e.config.PageSegMode); err != nil {
		return image.Result{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImage(req.Path); err != nil {
		return image.Result{}, fmt.Errorf("failed to set image: %w", err)
	}

	if progress != nil {
		progress("recognizing text", 0)
	}
	text, err := client.Text()
	if err != nil {
		return image.Result{}, fmt.Errorf("failed to get text: %w", err)
	}
	if progress != nil {
		progress("recognizing text", 1)
	}

	confidence := 0.0
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		confidence = meanConfidence(boxes, e.config.MinConfidence)
	}
	return image.Result{Text: strings.TrimSpace(text), Confidence: confidence}, nil
}

func meanConfidence(boxes []gosseract.BoundingBox, threshold float64) float64 {
	var total float64
	var n int
	for _, b := range boxes {
		if b.Confidence >= threshold {
			total += b.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// NewProvider returns the lazily loaded engine. Loading makes sure the
// language data is present, downloading it from store when configured.
func NewProvider(cfg Config, store func(context.Context) (storage.Storage, error), prefix string, log logger.Logger) *deps.Provider[image.Engine] {
	return deps.NewProvider[image.Engine]("tesseract", func(ctx context.Context) (image.Engine, error) {
		if cfg.TessdataDir != "" {
			var st storage.Storage
			if store != nil {
				s, err := store(ctx)
				if err != nil {
					return nil, fmt.Errorf("open language data store: %w", err)
				}
				st = s
			}
			langs := image.SplitLanguages(cfg.Languages)
			if err := image.EnsureLanguageData(ctx, st, cfg.TessdataDir, prefix, langs, log); err != nil {
				return nil, err
			}
		}
		return New(cfg), nil
	}, log)
}
