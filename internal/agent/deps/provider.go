// Package deps provides lazily loaded collaborators (PDF renderer, ZIP
// reader, OCR engine). Strategies call Ensure before using one and fall back
// when it reports unavailable.
package deps

import (
	"context"
	"fmt"
	"sync"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// LoadFunc loads a dependency.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Provider loads a dependency on first use. A successful load is cached;
// a failed one is retried on the next Ensure.
type Provider[T any] struct {
	name   string
	load   LoadFunc[T]
	logger logger.Logger

	mu     sync.Mutex
	loaded bool
	value  T
}

func NewProvider[T any](name string, load LoadFunc[T], log logger.Logger) *Provider[T] {
	if log == nil {
		log = logger.NewNop()
	}
	return &Provider[T]{name: name, load: load, logger: log.Named("deps")}
}

// Static wraps an always-available value.
func Static[T any](name string, value T) *Provider[T] {
	return NewProvider(name, func(context.Context) (T, error) { return value, nil }, nil)
}

// Unavailable returns a provider whose load always fails with err.
func Unavailable[T any](name string, err error) *Provider[T] {
	return NewProvider(name, func(context.Context) (T, error) {
		var zero T
		return zero, err
	}, nil)
}

// Ensure returns the dependency, loading it if needed. Errors wrap models.ErrLoad.
func (p *Provider[T]) Ensure(ctx context.Context) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.value, nil
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", models.ErrLoad, p.name, err)
	}

	v, err := p.load(ctx)
	if err != nil {
		p.logger.Warn("Dependency load failed",
			logger.String("dependency", p.name),
			logger.Error(err),
		)
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", models.ErrLoad, p.name, err)
	}

	p.logger.Info("Dependency loaded", logger.String("dependency", p.name))
	p.loaded = true
	p.value = v
	return v, nil
}

// Name returns the dependency name used in logs and error messages.
func (p *Provider[T]) Name() string {
	return p.name
}
