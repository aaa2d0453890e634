package converters

import (
	"fmt"
	"time"

	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
)

// DocumentConverter turns a registry entry into its paged JSON view.
type DocumentConverter interface {
	Convert(file models.IngestedFile) (*ProcessedDocument, error)
}

// ProcessedDocument is the paged view of one file's extracted text.
type ProcessedDocument struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	Preamble    string           `json:"preamble,omitempty"`
	Content     []PageContent    `json:"content"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt,omitempty"`
}

type PageContent struct {
	Text     string `json:"text"`
	Position int    `json:"position"`
	Chars    int    `json:"chars"`
}

type DocumentMetadata struct {
	FileName  string          `json:"fileName"`
	FileType  models.Category `json:"fileType"`
	MediaType string          `json:"mediaType,omitempty"`
	FileSize  int64           `json:"fileSize"`
	PageCount int             `json:"pageCount"`
	Encoding  pages.Mode      `json:"encoding,omitempty"`
}

// JSONConverter splits extracted text on its page markers.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(file models.IngestedFile) (*ProcessedDocument, error) {
	if !file.HasResult {
		return nil, fmt.Errorf("file %s has no extracted text yet", file.Name)
	}

	doc := pages.Parse(file.ExtractedText)
	preamble, parsed := pages.Split(file.ExtractedText)

	out := &ProcessedDocument{
		ID:          file.ID,
		Status:      string(file.Status()),
		Preamble:    preamble,
		Content:     make([]PageContent, 0, len(parsed)),
		ProcessedAt: file.ExtractedAt,
		Metadata: DocumentMetadata{
			FileName:  file.Name,
			FileType:  file.Category,
			MediaType: file.MediaType,
			FileSize:  file.Size,
			Encoding:  doc.Mode,
		},
	}
	for _, p := range parsed {
		out.Content = append(out.Content, PageContent{
			Text:     p.Body,
			Position: p.Number,
			Chars:    len([]rune(p.Body)),
		})
	}
	out.Metadata.PageCount = len(out.Content)
	return out, nil
}

// Page returns page n (1-based) of doc.
func (d *ProcessedDocument) Page(n int) (PageContent, error) {
	for _, p := range d.Content {
		if p.Position == n {
			return p, nil
		}
	}
	return PageContent{}, fmt.Errorf("%w: page %d of %s", models.ErrNotFound, n, d.Metadata.FileName)
}
