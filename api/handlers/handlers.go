package handlers

import (
	"github.com/feichai0017/document-ingest/internal/service/ingest"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type Handlers struct {
	Files  *FileHandler
	Tasks  *TaskHandler
	Events *EventHandler
}

// NewHandlers wires the HTTP handlers. statuses may be nil when no task
// queue is configured.
func NewHandlers(
	service *ingest.Service,
	hub *notify.Hub,
	statuses TaskStatusReader,
	log logger.Logger,
) *Handlers {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handlers{
		Files:  NewFileHandler(service, log),
		Tasks:  NewTaskHandler(service, statuses, log),
		Events: NewEventHandler(hub, log),
	}
}
