package notify

import (
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// LogHooks writes every lifecycle event to log.
func LogHooks(log logger.Logger) Hooks {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("lifecycle")
	return Hooks{
		OnFileAdded: func(f models.IngestedFile) {
			log.Info("File added",
				logger.String("file", f.Name),
				logger.String("category", string(f.Category)),
				logger.Int64("size", f.Size))
		},
		OnFileRemoved: func(f models.IngestedFile) {
			log.Info("File removed", logger.String("file", f.Name))
		},
		OnTextExtracted: func(f models.IngestedFile) {
			log.Info("Text extracted",
				logger.String("file", f.Name),
				logger.Bool("isError", f.IsError),
				logger.Int("chars", len(f.ExtractedText)))
		},
		OnAllFilesProcessed: func(files []models.IngestedFile) {
			log.Info("All files processed", logger.Int("count", len(files)))
		},
		OnFileRejected: func(name string, res models.ValidationResult) {
			log.Warn("File rejected",
				logger.String("file", name),
				logger.String("code", res.Code),
				logger.String("reason", res.Reason))
		},
		OnTaskExecuted: func(name string, _ any) {
			log.Info("Task executed", logger.String("task", name))
		},
		OnExtractionProgress: func(name, status string, progress float64) {
			log.Debug("Extraction progress",
				logger.String("file", name),
				logger.String("status", status),
				logger.Float64("progress", progress))
		},
	}
}
