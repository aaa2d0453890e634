package image

import (
	"context"
	"strings"
)

// Request describes one recognition job. Path points at a transient copy of
// the image that the caller removes once Recognize returns.
type Request struct {
	Path      string
	MediaType string
	// Language is a plus-joined list of language codes, e.g. "spa+eng".
	Language string
}

// Result is the recognized text and the engine's mean confidence (0-100).
type Result struct {
	Text       string
	Confidence float64
}

// ProgressFunc receives engine progress in [0, 1].
type ProgressFunc func(status string, progress float64)

// Engine recognizes text in an image file.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request, progress ProgressFunc) (Result, error)
}

// SplitLanguages turns "spa+eng" into ["spa", "eng"].
func SplitLanguages(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
