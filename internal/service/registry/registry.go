// Package registry holds the ingested files and their extraction results.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// DefaultSeparator joins file texts in CombinedText when none is given.
const DefaultSeparator = "\n\n"

// Registry is the in-memory, insertion-ordered store of ingested files.
// Names are unique. Hooks run after the lock is released, so they may call
// back into the registry.
type Registry struct {
	mu           sync.Mutex
	files        []*models.IngestedFile
	mode         pages.Mode
	allProcessed bool

	hooks  notify.Hooks
	logger logger.Logger
	now    func() time.Time
}

func New(mode pages.Mode, hooks notify.Hooks, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	if mode == pages.ModeNone {
		mode = pages.ModePlain
	}
	return &Registry{
		mode:   mode,
		hooks:  hooks,
		logger: log.Named("registry"),
		now:    time.Now,
	}
}

// Register appends f when its name is free and returns the stored entry.
// A duplicate name leaves the registry unchanged and reports false.
func (r *Registry) Register(f models.IngestedFile) (models.IngestedFile, bool) {
	r.mu.Lock()
	if r.indexByName(f.Name) >= 0 {
		r.mu.Unlock()
		r.logger.Debug("Duplicate registration ignored", logger.String("file", f.Name))
		return models.IngestedFile{}, false
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.AddedAt.IsZero() {
		f.AddedAt = r.now()
	}
	entry := f
	r.files = append(r.files, &entry)
	r.allProcessed = r.computeAllProcessed()
	added := entry
	r.mu.Unlock()

	r.logger.Info("File registered",
		logger.String("file", added.Name),
		logger.String("id", added.ID),
		logger.String("category", string(added.Category)),
	)
	r.hooks.FileAdded(added)
	return added, true
}

// MarkExtracting flags the entry with id as in flight. It reports false when
// the entry is gone or already has a result.
func (r *Registry) MarkExtracting(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexByID(id)
	if i < 0 || r.files[i].HasResult {
		return false
	}
	r.files[i].Extracting = true
	return true
}

// WriteExtraction records the result for the file called name. A missing
// entry makes it a no-op.
func (r *Registry) WriteExtraction(name, text string, isError bool) bool {
	r.mu.Lock()
	return r.write(r.indexByName(name), text, isError)
}

// WriteExtractionFor records the result for the entry with id. Writes for an
// entry that was removed, or removed and re-ingested under the same name,
// are dropped.
func (r *Registry) WriteExtractionFor(id, text string, isError bool) bool {
	r.mu.Lock()
	return r.write(r.indexByID(id), text, isError)
}

// write expects r.mu to be held and releases it.
func (r *Registry) write(i int, text string, isError bool) bool {
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	f := r.files[i]
	f.ExtractedText = text
	f.HasResult = true
	f.IsError = isError || strings.HasPrefix(text, models.ErrorMarker)
	f.Extracting = false
	f.ExtractedAt = r.now()
	if f.Category != models.CategoryText {
		f.Raw = nil
	}
	written := *f

	was := r.allProcessed
	r.allProcessed = r.computeAllProcessed()
	var snapshot []models.IngestedFile
	if r.allProcessed && !was {
		snapshot = r.snapshot()
	}
	r.mu.Unlock()

	r.logger.Info("Extraction recorded",
		logger.String("file", written.Name),
		logger.String("status", string(written.Status())),
		logger.Int("chars", len(text)),
	)
	r.hooks.TextExtracted(written)
	if snapshot != nil {
		r.hooks.AllFilesProcessed(snapshot)
	}
	return true
}

// Remove deletes the file called name.
func (r *Registry) Remove(name string) (models.IngestedFile, error) {
	r.mu.Lock()
	i := r.indexByName(name)
	if i < 0 {
		r.mu.Unlock()
		return models.IngestedFile{}, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	removed := *r.files[i]
	r.files = append(r.files[:i], r.files[i+1:]...)
	r.allProcessed = r.computeAllProcessed()
	r.mu.Unlock()

	r.logger.Info("File removed", logger.String("file", name))
	r.hooks.FileRemoved(removed)
	return removed, nil
}

// Clear removes every entry, firing the removal hook for each.
func (r *Registry) Clear() int {
	r.mu.Lock()
	removed := r.snapshot()
	r.files = nil
	r.allProcessed = false
	r.mu.Unlock()

	for _, f := range removed {
		r.hooks.FileRemoved(f)
	}
	r.logger.Info("Registry cleared", logger.Int("count", len(removed)))
	return len(removed)
}

// GetAll returns a copy of every entry in registration order.
func (r *Registry) GetAll() []models.IngestedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Registry) Get(name string) (models.IngestedFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexByName(name); i >= 0 {
		return *r.files[i], true
	}
	return models.IngestedFile{}, false
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexByName(name) >= 0
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// AllProcessed reports whether every file that needs extraction has a result.
func (r *Registry) AllProcessed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allProcessed
}

func (r *Registry) Mode() pages.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode changes the encoding CombinedText and FileText normalize to.
func (r *Registry) SetMode(mode pages.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// FileText returns the extracted text of name in the registry mode.
func (r *Registry) FileText(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexByName(name)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	f := r.files[i]
	return pages.Convert(f.ExtractedText, f.Name, r.mode), nil
}

// CombinedText joins the text of every file with a result, in registry
// order, re-encoding page markers to the registry mode. Error results are
// included. Text without markers passes through unchanged.
func (r *Registry) CombinedText(separator string) string {
	return r.CombinedTextIn(pages.ModeNone, separator)
}

// CombinedTextIn is CombinedText rendered in mode without changing the
// registry mode. ModeNone means the registry mode.
func (r *Registry) CombinedTextIn(mode pages.Mode, separator string) string {
	if separator == "" {
		separator = DefaultSeparator
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == pages.ModeNone {
		mode = r.mode
	}

	parts := make([]string, 0, len(r.files))
	for _, f := range r.files {
		if !f.HasResult || f.ExtractedText == "" {
			continue
		}
		parts = append(parts, pages.Convert(f.ExtractedText, f.Name, mode))
	}
	return strings.Join(parts, separator)
}

func (r *Registry) indexByName(name string) int {
	for i, f := range r.files {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (r *Registry) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i, f := range r.files {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) snapshot() []models.IngestedFile {
	out := make([]models.IngestedFile, len(r.files))
	for i, f := range r.files {
		out[i] = *f
	}
	return out
}

// computeAllProcessed is true when at least one file needs extraction and
// all of those have a result.
func (r *Registry) computeAllProcessed() bool {
	needing := 0
	for _, f := range r.files {
		if !f.Category.Extractable() {
			continue
		}
		needing++
		if !f.HasResult {
			return false
		}
	}
	return needing > 0
}
