// Package notify carries the lifecycle callbacks of the ingestion pipeline
// and a hub that broadcasts them to stream subscribers.
package notify

import (
	"github.com/feichai0017/document-ingest/internal/models"
)

// Hooks is a set of optional callbacks. A nil field is skipped.
type Hooks struct {
	OnFileAdded          func(file models.IngestedFile)
	OnFileRemoved        func(file models.IngestedFile)
	OnTextExtracted      func(file models.IngestedFile)
	OnAllFilesProcessed  func(files []models.IngestedFile)
	OnFileRejected       func(name string, result models.ValidationResult)
	OnTaskExecuted       func(name string, payload any)
	OnExtractionProgress func(name, status string, progress float64)
}

func (h Hooks) FileAdded(f models.IngestedFile) {
	if h.OnFileAdded != nil {
		h.OnFileAdded(f)
	}
}

func (h Hooks) FileRemoved(f models.IngestedFile) {
	if h.OnFileRemoved != nil {
		h.OnFileRemoved(f)
	}
}

func (h Hooks) TextExtracted(f models.IngestedFile) {
	if h.OnTextExtracted != nil {
		h.OnTextExtracted(f)
	}
}

func (h Hooks) AllFilesProcessed(files []models.IngestedFile) {
	if h.OnAllFilesProcessed != nil {
		h.OnAllFilesProcessed(files)
	}
}

func (h Hooks) FileRejected(name string, res models.ValidationResult) {
	if h.OnFileRejected != nil {
		h.OnFileRejected(name, res)
	}
}

func (h Hooks) TaskExecuted(name string, payload any) {
	if h.OnTaskExecuted != nil {
		h.OnTaskExecuted(name, payload)
	}
}

func (h Hooks) ExtractionProgress(name, status string, progress float64) {
	if h.OnExtractionProgress != nil {
		h.OnExtractionProgress(name, status, progress)
	}
}

// Join returns Hooks that call every set in order.
func Join(sets ...Hooks) Hooks {
	return Hooks{
		OnFileAdded: func(f models.IngestedFile) {
			for _, h := range sets {
				h.FileAdded(f)
			}
		},
		OnFileRemoved: func(f models.IngestedFile) {
			for _, h := range sets {
				h.FileRemoved(f)
			}
		},
		OnTextExtracted: func(f models.IngestedFile) {
			for _, h := range sets {
				h.TextExtracted(f)
			}
		},
		OnAllFilesProcessed: func(files []models.IngestedFile) {
			for _, h := range sets {
				h.AllFilesProcessed(files)
			}
		},
		OnFileRejected: func(name string, res models.ValidationResult) {
			for _, h := range sets {
				h.FileRejected(name, res)
			}
		},
		OnTaskExecuted: func(name string, payload any) {
			for _, h := range sets {
				h.TaskExecuted(name, payload)
			}
		},
		OnExtractionProgress: func(name, status string, progress float64) {
			for _, h := range sets {
				h.ExtractionProgress(name, status, progress)
			}
		},
	}
}
