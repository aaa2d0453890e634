package models

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Category is the content family a file is classified into.
type Category string

const (
	CategoryWord    Category = "word"
	CategoryExcel   Category = "excel"
	CategoryPPT     Category = "ppt"
	CategoryPDF     Category = "pdf"
	CategoryText    Category = "text"
	CategoryImage   Category = "image"
	CategoryUnknown Category = "unknown"
)

// Extractable reports whether files of this category go through a strategy.
func (c Category) Extractable() bool {
	switch c {
	case CategoryWord, CategoryExcel, CategoryPPT, CategoryPDF, CategoryText, CategoryImage:
		return true
	default:
		return false
	}
}

// ExtractionStatus is derived from the extraction fields of an IngestedFile.
type ExtractionStatus string

const (
	StatusPending     ExtractionStatus = "pending"
	StatusExtracting  ExtractionStatus = "extracting"
	StatusDone        ExtractionStatus = "done"
	StatusError       ExtractionStatus = "error"
	StatusUnsupported ExtractionStatus = "unsupported"
)

// ErrorMarker prefixes every error outcome written into the text channel.
const ErrorMarker = "Error:"

// Candidate is a file offered to the ingestion surface, before validation.
// Content is either Data or, when Data is nil, read through Open once the
// metadata has been accepted.
type Candidate struct {
	Name      string
	Size      int64
	MediaType string
	Data      []byte
	Open      func() (io.ReadCloser, error)
}

// Extension returns the lowercase extension without the leading dot.
func (c Candidate) Extension() string {
	return Extension(c.Name)
}

// Extension returns the lowercase extension of name without the leading dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// IngestedFile is a registry entry. Name is unique within a registry.
type IngestedFile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Size      int64    `json:"size"`
	MediaType string   `json:"mediaType"`
	Category  Category `json:"category"`

	// Raw is dropped after the terminal write unless Category is text.
	Raw []byte `json:"-"`

	ExtractedText string    `json:"extractedText,omitempty"`
	HasResult     bool      `json:"hasResult"`
	IsError       bool      `json:"isError"`
	Extracting    bool      `json:"-"`
	AddedAt       time.Time `json:"addedAt"`
	ExtractedAt   time.Time `json:"extractedAt,omitempty"`
}

// Status derives the extraction state.
func (f IngestedFile) Status() ExtractionStatus {
	if !f.Category.Extractable() && !f.HasResult {
		return StatusUnsupported
	}
	if !f.HasResult {
		if f.Extracting {
			return StatusExtracting
		}
		return StatusPending
	}
	if f.IsError || strings.HasPrefix(f.ExtractedText, ErrorMarker) {
		return StatusError
	}
	return StatusDone
}

// DisplayName is the name without its extension.
func (f IngestedFile) DisplayName() string {
	return DisplayName(f.Name)
}

func DisplayName(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// ValidationResult is the verdict of the validator for one candidate.
type ValidationResult struct {
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Err      error  `json:"-"`
}

// Outcome is what a strategy produces for one file. Either Pages (paginated
// output) or Text (unpaginated) is set; Preamble precedes the first page.
type Outcome struct {
	Preamble string
	Pages    []string
	Text     string
	IsError  bool
}

// ErrorOutcome builds an error outcome carrying the error marker.
func ErrorOutcome(msg string) Outcome {
	if !strings.HasPrefix(msg, ErrorMarker) {
		msg = ErrorMarker + " " + msg
	}
	return Outcome{Text: msg, IsError: true}
}

// Receipt reports what the ingestion surface did with one candidate.
type Receipt struct {
	Name      string   `json:"name"`
	ID        string   `json:"id,omitempty"`
	Accepted  bool     `json:"accepted"`
	Category  Category `json:"category,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Code      string   `json:"code,omitempty"`
	Extracted bool     `json:"extracted"`
}
