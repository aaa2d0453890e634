// Package ingest is the single entry point for files arriving from the HTTP
// surface, the clipboard and the CLI.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/agent"
	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/coordinator"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/internal/service/registry"
	"github.com/feichai0017/document-ingest/internal/utils/validator"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

const pastedImagePrefix = "pasted-image-"

// CodeUnreadable marks an accepted candidate whose content could not be read.
const CodeUnreadable = "UNREADABLE_FILE"

type Service struct {
	validator   *validator.FileValidator
	maxFileSize int64
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	queue       queue.Queue
	hooks       notify.Hooks
	logger      logger.Logger
	now         func() time.Time
}

type Option func(*Service)

// WithQueue sends executed task files to q for background execution.
func WithQueue(q queue.Queue) Option {
	return func(s *Service) { s.queue = q }
}

// TaskExecution is the result of ExecuteTask.
type TaskExecution struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
	// TaskID is set when the task was queued.
	TaskID string `json:"taskId,omitempty"`
}

type ServiceConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
	ExtractionTimeout time.Duration
	MaxConcurrent     int
	PageMarkerMode    pages.Mode
}

// ConfigFrom maps the ingest section of the service configuration.
func ConfigFrom(cfg config.IngestConfig) (*ServiceConfig, error) {
	mode, err := pages.ParseMode(cfg.PageMarkerMode)
	if err != nil {
		return nil, err
	}
	return &ServiceConfig{
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: cfg.AllowedExtensions,
		ExtractionTimeout: cfg.ExtractionTimeout,
		MaxConcurrent:     cfg.MaxConcurrent,
		PageMarkerMode:    mode,
	}, nil
}

func NewService(resolver coordinator.Resolver, hooks notify.Hooks, log logger.Logger, cfg *ServiceConfig, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg == nil {
		cfg = &ServiceConfig{
			MaxFileSize:       10 * 1024 * 1024,
			ExtractionTimeout: coordinator.DefaultTimeout,
			MaxConcurrent:     coordinator.DefaultMaxConcurrent,
			PageMarkerMode:    pages.ModePlain,
		}
	}

	reg := registry.New(cfg.PageMarkerMode, hooks, log)
	s := &Service{
		validator: validator.NewFileValidator(log, validator.ValidatorConfig{
			MaxFileSize:       cfg.MaxFileSize,
			AllowedExtensions: cfg.AllowedExtensions,
		}),
		maxFileSize: cfg.MaxFileSize,
		registry:    reg,
		coordinator: coordinator.New(resolver, reg, coordinator.Config{
			Timeout:       cfg.ExtractionTimeout,
			MaxConcurrent: cfg.MaxConcurrent,
			Mode:          cfg.PageMarkerMode,
		}, hooks, log),
		hooks:  hooks,
		logger: log.Named("ingest"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetService wires the service from the process configuration.
func GetService(cfg *config.Config, hooks notify.Hooks, log logger.Logger, opts ...Option) (*Service, error) {
	svcCfg, err := ConfigFrom(cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("invalid ingest configuration: %w", err)
	}
	factory := agent.NewProcessorFactory(cfg.OCR, log)
	return NewService(factory, hooks, log, svcCfg, opts...), nil
}

func (s *Service) Registry() *registry.Registry { return s.registry }

// Wait blocks until every dispatched extraction has finished.
func (s *Service) Wait() { s.coordinator.Wait() }

// HandleFiles validates each candidate on its own, registers the accepted
// ones and dispatches extraction for those that need it. Rejections are
// reported through OnFileRejected.
func (s *Service) HandleFiles(ctx context.Context, files []models.Candidate) []models.Receipt {
	receipts := make([]models.Receipt, 0, len(files))
	for _, f := range files {
		receipts = append(receipts, s.handle(ctx, f))
	}
	return receipts
}

func (s *Service) handle(ctx context.Context, c models.Candidate) models.Receipt {
	log := logger.FromContext(ctx, s.logger)
	if c.Size == 0 {
		c.Size = int64(len(c.Data))
	}

	res := s.validator.Validate(c, s.registry)
	if !res.Accepted {
		return s.reject(log, c.Name, res)
	}
	if c.Data == nil && c.Open != nil {
		data, res := s.load(c)
		if !res.Accepted {
			return s.reject(log, c.Name, res)
		}
		c.Data, c.Size = data, int64(len(data))
	}

	category := agent.Classify(c.Name, c.MediaType)
	entry, ok := s.registry.Register(models.IngestedFile{
		Name:      c.Name,
		Size:      c.Size,
		MediaType: c.MediaType,
		Category:  category,
		Raw:       c.Data,
	})
	if !ok {
		// Lost a race with a concurrent upload of the same name.
		return s.reject(log, c.Name, models.ValidationResult{
			Code:   validator.CodeDuplicateName,
			Reason: fmt.Sprintf("a file named %q has already been added", c.Name),
			Err:    models.ErrDuplicateName,
		})
	}

	dispatched := s.coordinator.Dispatch(ctx, entry)
	log.Info("File accepted",
		logger.String("file", entry.Name),
		logger.String("category", string(category)),
		logger.Bool("extracting", dispatched),
	)
	return models.Receipt{
		Name:      entry.Name,
		ID:        entry.ID,
		Accepted:  true,
		Category:  category,
		Extracted: dispatched,
	}
}

// load reads the content of an accepted candidate. At most one byte more
// than the size limit is read; a candidate that turns out larger than its
// declared size is rejected like an oversized one.
func (s *Service) load(c models.Candidate) ([]byte, models.ValidationResult) {
	rc, err := c.Open()
	if err == nil {
		var r io.Reader = rc
		if s.maxFileSize > 0 {
			r = io.LimitReader(rc, s.maxFileSize+1)
		}
		var data []byte
		data, err = io.ReadAll(r)
		rc.Close()
		if err == nil {
			if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
				c.Size = int64(len(data))
				return nil, s.validator.Validate(c, s.registry)
			}
			return data, models.ValidationResult{Accepted: true}
		}
	}
	return nil, models.ValidationResult{
		Code:   CodeUnreadable,
		Reason: fmt.Sprintf("file %q could not be read", c.Name),
		Err:    fmt.Errorf("read %s: %w", c.Name, err),
	}
}

func (s *Service) reject(log logger.Logger, name string, res models.ValidationResult) models.Receipt {
	log.Info("File rejected",
		logger.String("file", name),
		logger.String("code", res.Code),
		logger.String("reason", res.Reason),
	)
	s.hooks.FileRejected(name, res)
	return models.Receipt{Name: name, Reason: res.Reason, Code: res.Code}
}

// HandlePastedImage turns clipboard image data into a file named after the
// current time and ingests it.
func (s *Service) HandlePastedImage(ctx context.Context, mediaType string, data []byte) models.Receipt {
	name := PastedImageName(s.now(), mediaType)
	receipts := s.HandleFiles(ctx, []models.Candidate{{
		Name:      name,
		Size:      int64(len(data)),
		MediaType: mediaType,
		Data:      data,
	}})
	return receipts[0]
}

// HandlePastedReader is HandlePastedImage for a body that is read only after
// the metadata passes validation. size is the declared length, or zero when
// unknown.
func (s *Service) HandlePastedReader(ctx context.Context, mediaType string, size int64, body io.Reader) models.Receipt {
	if size < 0 {
		size = 0
	}
	return s.handle(ctx, models.Candidate{
		Name:      PastedImageName(s.now(), mediaType),
		Size:      size,
		MediaType: mediaType,
		Open:      func() (io.ReadCloser, error) { return io.NopCloser(body), nil },
	})
}

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
}

// PastedImageName builds pasted-image-<unix millis>.<ext>; unknown media
// types get png.
func PastedImageName(at time.Time, mediaType string) string {
	mt, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mediaType)), ";")
	ext, ok := imageExtensions[strings.TrimSpace(mt)]
	if !ok {
		ext = "png"
	}
	return fmt.Sprintf("%s%d.%s", pastedImagePrefix, at.UnixMilli(), ext)
}

// ExecuteTask parses the task file called name, queues it when a queue is
// configured and hands the payload to OnTaskExecuted under the file's
// display name.
func (s *Service) ExecuteTask(ctx context.Context, name string) (TaskExecution, error) {
	log := logger.FromContext(ctx, s.logger).With(logger.String("file", name))

	f, ok := s.registry.Get(name)
	if !ok {
		return TaskExecution{}, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	if !agent.IsTaskFile(f.Name) {
		return TaskExecution{}, fmt.Errorf("%w: %s", models.ErrNotTaskFile, name)
	}

	data := f.Raw
	if len(data) == 0 {
		data = []byte(f.ExtractedText)
	}
	payload, err := ParseTaskPayload(data)
	if err != nil {
		log.Warn("Task file could not be parsed", logger.Error(err))
		return TaskExecution{}, fmt.Errorf("%s: %w", name, err)
	}

	exec := TaskExecution{Name: TaskName(f.Name), Payload: payload}
	if s.queue != nil {
		task := &queue.Task{
			ID:      uuid.New().String(),
			Type:    queue.TaskTypeExecute,
			Name:    exec.Name,
			Payload: payload,
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return TaskExecution{}, fmt.Errorf("queue task %s: %w", name, err)
		}
		exec.TaskID = task.ID
		log.Info("Task queued", logger.String("taskId", task.ID))
	}

	s.hooks.TaskExecuted(exec.Name, payload)
	return exec, nil
}

// TaskName is the display name of a task file without its task suffix.
func TaskName(filename string) string {
	display := models.DisplayName(filename)
	if i := strings.Index(strings.ToLower(display), ".task"); i > 0 {
		display = display[:i]
	}
	return display
}

// ParseTaskPayload decodes JSON, falling back to YAML. Only objects and
// lists are accepted.
func ParseTaskPayload(data []byte) (any, error) {
	var payload any
	jsonErr := json.Unmarshal(data, &payload)
	if jsonErr != nil {
		payload = nil
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrTaskParse, jsonErr)
		}
	}
	switch payload.(type) {
	case map[string]any, []any:
		return payload, nil
	default:
		return nil, fmt.Errorf("%w: payload must be an object or a list", models.ErrTaskParse)
	}
}
