package image

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const (
	// Heading is prefixed to recognized text.
	Heading = "## Texto extraído de la imagen (OCR)"
	// NoTextMessage is the error outcome for an image without text.
	NoTextMessage = "No se detectó texto en la imagen."

	DefaultLanguages = "spa+eng"
)

var blankRunRe = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*)+\n`)

// Processor runs OCR on images through a lazily loaded Engine. There is no
// fallback: when the engine cannot be loaded the file gets an error result.
type Processor struct {
	engine    *deps.Provider[Engine]
	pipeline  []ImagePreprocessor
	languages string
	logger    logger.Logger
}

type Option func(*Processor)

func WithLanguages(langs string) Option {
	return func(p *Processor) {
		if langs != "" {
			p.languages = langs
		}
	}
}

func WithPipeline(steps []ImagePreprocessor) Option {
	return func(p *Processor) { p.pipeline = steps }
}

func NewProcessor(engine *deps.Provider[Engine], log logger.Logger, opts ...Option) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	p := &Processor{
		engine:    engine,
		pipeline:  NewPipeline(DefaultPreprocessConfig()),
		languages: DefaultLanguages,
		logger:    log.Named("image"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Name() string { return "image" }

func (p *Processor) Extract(ctx context.Context, src document.Source) (models.Outcome, error) {
	engine, err := p.engine.Ensure(ctx)
	if err != nil {
		return models.Outcome{}, err
	}

	data, err := Preprocess(src.Data, p.pipeline)
	if err != nil {
		p.logger.Debug("Preprocessing skipped", logger.String("file", src.Name), logger.Error(err))
		data = src.Data
	}

	path, release, err := transientFile(src.Extension(), data)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	defer release()

	log := p.logger.With(logger.String("file", src.Name), logger.String("engine", engine.Name()))
	res, err := engine.Recognize(ctx, Request{Path: path, MediaType: src.MediaType, Language: p.languages},
		func(status string, progress float64) {
			log.Debug("OCR progress", logger.String("status", status), logger.Float64("progress", progress))
			document.ReportProgress(ctx, status, progress)
		})
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: OCR failed: %v", models.ErrExtraction, err)
	}

	text := CleanText(res.Text)
	if text == "" {
		log.Info("OCR found no text", logger.Float64("confidence", res.Confidence))
		return models.ErrorOutcome(NoTextMessage), nil
	}

	log.Info("OCR completed",
		logger.Float64("confidence", res.Confidence),
		logger.Int("chars", len(text)),
	)
	return models.Outcome{Pages: []string{Heading + "\n\n" + text}}, nil
}

// CleanText normalizes line endings, collapses runs of blank lines into one
// and trims the result.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// transientFile writes data to a temporary file. release removes it and is
// safe to call more than once.
func transientFile(ext string, data []byte) (string, func(), error) {
	pattern := "ocr-*"
	if ext != "" {
		pattern += "." + ext
	}
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create transient image: %w", err)
	}
	path := f.Name()
	release := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("write transient image: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close transient image: %w", err)
	}
	return path, release, nil
}
