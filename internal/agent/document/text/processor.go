package text

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// Processor decodes text files. JSON documents are re-indented with two
// spaces; invalid JSON is kept as decoded.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("text")}
}

func (p *Processor) Name() string { return "text" }

func (p *Processor) Extract(ctx context.Context, src document.Source) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}

	decoded := Decode(src.Data, src.MediaType)
	if isJSON(src) {
		decoded = PrettyJSON(decoded)
	}
	return models.Outcome{Text: decoded}, nil
}

func isJSON(src document.Source) bool {
	if src.Extension() == "json" {
		return true
	}
	lower := strings.ToLower(src.Name)
	return strings.HasSuffix(lower, ".task") && strings.Contains(strings.ToLower(src.MediaType), "json")
}

// Decode converts raw bytes to a UTF-8 string. Valid UTF-8 is kept as is;
// anything else is decoded with the encoding found from a BOM, the media
// type charset or content sniffing.
func Decode(data []byte, mediaType string) string {
	if len(data) == 0 {
		return ""
	}
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	}
	enc, _, _ := charset.DetermineEncoding(data, mediaType)
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(bytes.TrimPrefix(out, []byte("\xef\xbb\xbf")))
}

// PrettyJSON re-indents s with two spaces. The result is stable: formatting
// its own output again returns the same string. Invalid JSON is returned
// unchanged.
func PrettyJSON(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return s
	}
	return buf.String()
}
