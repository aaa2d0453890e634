package notify

import (
	"sync"
	"time"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type EventType string

const (
	EventFileAdded          EventType = "file_added"
	EventFileRemoved        EventType = "file_removed"
	EventTextExtracted      EventType = "text_extracted"
	EventAllFilesProcessed  EventType = "all_files_processed"
	EventFileRejected       EventType = "file_rejected"
	EventTaskExecuted       EventType = "task_executed"
	EventExtractionProgress EventType = "extraction_progress"
)

// RejectionTTL is how long a rejection notice stays relevant to clients.
const RejectionTTL = 5 * time.Second

// Event is one lifecycle notification as sent to subscribers.
type Event struct {
	Type     EventType               `json:"type"`
	File     string                  `json:"file,omitempty"`
	ID       string                  `json:"id,omitempty"`
	Status   models.ExtractionStatus `json:"status,omitempty"`
	IsError  bool                    `json:"isError,omitempty"`
	Reason   string                  `json:"reason,omitempty"`
	Code     string                  `json:"code,omitempty"`
	Progress float64                 `json:"progress,omitempty"`
	Payload  any                     `json:"payload,omitempty"`
	Count    int                     `json:"count,omitempty"`
	At       time.Time               `json:"at"`
	// ExpiresAt is set on rejections; clients hide the notice afterwards.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Hub fans events out to subscribers. Slow subscribers lose events rather
// than block the pipeline.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
	now    func() time.Time
	logger logger.Logger
}

func NewHub(buffer int, log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
		now:    time.Now,
		logger: log.Named("hub"),
	}
}

// Subscribe registers a new subscriber. The returned cancel func closes the
// channel and must be called once the subscriber is done.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("Dropping event for slow subscriber", logger.String("type", string(e.Type)))
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Hooks returns callbacks that publish every lifecycle event on h.
func (h *Hub) Hooks() Hooks {
	fileEvent := func(t EventType, f models.IngestedFile) Event {
		return Event{Type: t, File: f.Name, ID: f.ID, Status: f.Status(), IsError: f.Status() == models.StatusError}
	}
	return Hooks{
		OnFileAdded:     func(f models.IngestedFile) { h.Publish(fileEvent(EventFileAdded, f)) },
		OnFileRemoved:   func(f models.IngestedFile) { h.Publish(fileEvent(EventFileRemoved, f)) },
		OnTextExtracted: func(f models.IngestedFile) { h.Publish(fileEvent(EventTextExtracted, f)) },
		OnAllFilesProcessed: func(files []models.IngestedFile) {
			h.Publish(Event{Type: EventAllFilesProcessed, Count: len(files)})
		},
		OnFileRejected: func(name string, res models.ValidationResult) {
			at := h.now()
			expires := at.Add(RejectionTTL)
			h.Publish(Event{
				Type:      EventFileRejected,
				File:      name,
				Reason:    res.Reason,
				Code:      res.Code,
				IsError:   true,
				At:        at,
				ExpiresAt: &expires,
			})
		},
		OnTaskExecuted: func(name string, payload any) {
			h.Publish(Event{Type: EventTaskExecuted, File: name, Payload: payload})
		},
		OnExtractionProgress: func(name, status string, progress float64) {
			h.Publish(Event{Type: EventExtractionProgress, File: name, Reason: status, Progress: progress})
		},
	}
}
