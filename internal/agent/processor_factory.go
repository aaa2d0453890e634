package agent

import (
	"context"
	"fmt"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/agent/document/excel"
	"github.com/feichai0017/document-ingest/internal/agent/document/image"
	"github.com/feichai0017/document-ingest/internal/agent/document/image/tesseract"
	"github.com/feichai0017/document-ingest/internal/agent/document/pdf"
	"github.com/feichai0017/document-ingest/internal/agent/document/ppt"
	"github.com/feichai0017/document-ingest/internal/agent/document/text"
	"github.com/feichai0017/document-ingest/internal/agent/document/word"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/storage"
)

// ProcessorFactory maps categories to extraction strategies.
type ProcessorFactory struct {
	processors map[models.Category]document.Processor
	logger     logger.Logger
}

// NewProcessorFactory wires the default strategies. The ZIP reader is shared
// between the Word and PowerPoint strategies.
func NewProcessorFactory(cfg config.OCRConfig, log logger.Logger) *ProcessorFactory {
	if log == nil {
		log = logger.NewNop()
	}
	zip := deps.NewZipProvider(log)

	return NewProcessorFactoryWith(map[models.Category]document.Processor{
		models.CategoryText:  text.NewProcessor(log),
		models.CategoryPDF:   pdf.NewProcessor(pdf.NewRendererProvider(log), log),
		models.CategoryWord:  word.NewProcessor(zip, log),
		models.CategoryExcel: excel.NewProcessor(log),
		models.CategoryPPT:   ppt.NewProcessor(zip, log),
		models.CategoryImage: image.NewProcessor(NewOCREngineProvider(cfg, log), log, image.WithLanguages(cfg.Languages)),
	}, log)
}

// NewProcessorFactoryWith builds a factory from explicit strategies.
func NewProcessorFactoryWith(processors map[models.Category]document.Processor, log logger.Logger) *ProcessorFactory {
	if log == nil {
		log = logger.NewNop()
	}
	return &ProcessorFactory{processors: processors, logger: log.Named("factory")}
}

func (f *ProcessorFactory) GetProcessor(category models.Category) (document.Processor, error) {
	p, ok := f.processors[category]
	if !ok || !category.Extractable() {
		f.logger.Debug("No processor for category", logger.String("category", string(category)))
		return nil, fmt.Errorf("%w: category %q", models.ErrUnsupported, category)
	}
	return p, nil
}

// NewOCREngineProvider returns the lazily loaded OCR engine selected by
// cfg.Engine.
func NewOCREngineProvider(cfg config.OCRConfig, log logger.Logger) *deps.Provider[image.Engine] {
	switch cfg.Engine {
	case "textract":
		return deps.NewProvider[image.Engine]("textract", func(ctx context.Context) (image.Engine, error) {
			tc := config.GetTextractConfig()
			client, err := image.NewTextractClient(ctx, tc)
			if err != nil {
				return nil, err
			}
			return image.NewTextractEngine(client, tc.MinConfidence, log), nil
		}, log)
	case "ollama":
		return deps.Static[image.Engine]("ollama", image.NewOllamaEngine(image.OllamaConfig{
			Endpoint: cfg.OllamaEndpoint,
			Model:    cfg.OllamaModel,
		}))
	case "", "tesseract":
		var store func(context.Context) (storage.Storage, error)
		if cfg.TessdataStorage != "" {
			store = func(ctx context.Context) (storage.Storage, error) {
				return storage.NewStorage(ctx, storage.StorageType(cfg.TessdataStorage), log)
			}
		}
		return tesseract.NewProvider(tesseract.Config{
			TessdataDir: cfg.TessdataDir,
			Languages:   cfg.Languages,
		}, store, cfg.TessdataPrefix, log)
	default:
		return deps.Unavailable[image.Engine](cfg.Engine, fmt.Errorf("unknown OCR engine %q", cfg.Engine))
	}
}
