package word

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const documentXML = "word/document.xml"

// Processor extracts Word documents. go-docx provides the paragraph text;
// the raw document.xml scan is used when go-docx fails or when the document
// carries explicit page breaks, which go-docx does not report.
type Processor struct {
	zip    *deps.Provider[deps.ZipOpener]
	logger logger.Logger
}

func NewProcessor(zipProvider *deps.Provider[deps.ZipOpener], log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	if zipProvider == nil {
		zipProvider = deps.NewZipProvider(log)
	}
	return &Processor{zip: zipProvider, logger: log.Named("word")}
}

func (p *Processor) Name() string { return "word" }

func (p *Processor) Extract(ctx context.Context, src document.Source) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}

	text, err := p.rawText(ctx, src)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}

	pages := Paginate(text)
	if len(pages) == 0 {
		return models.Outcome{}, fmt.Errorf("%w: document contains no text", models.ErrExtraction)
	}
	p.logger.Debug("Word document paginated",
		logger.String("file", src.Name),
		logger.Int("pages", len(pages)),
	)
	return models.Outcome{Pages: pages}, nil
}

func (p *Processor) rawText(ctx context.Context, src document.Source) (string, error) {
	text, docxErr := ParagraphText(src.Data)

	open, zipErr := p.zip.Ensure(ctx)
	if zipErr != nil {
		if docxErr != nil {
			return "", errors.Join(docxErr, zipErr)
		}
		return text, nil
	}

	var scanned string
	scanErr := document.Guard("word xml scan", func() error {
		zr, err := open(src.Data)
		if err != nil {
			return err
		}
		scanned, err = scanArchive(zr)
		return err
	})

	switch {
	case docxErr != nil || strings.TrimSpace(text) == "":
		if scanErr != nil {
			return "", errors.Join(docxErr, scanErr)
		}
		p.logger.Info("Using document.xml scan", logger.String("file", src.Name), logger.Error(docxErr))
		return scanned, nil
	case scanErr == nil && strings.Contains(scanned, PageBreak):
		return scanned, nil
	default:
		return text, nil
	}
}

// ParagraphText returns the text of every body paragraph, separated by a
// blank line.
func ParagraphText(data []byte) (string, error) {
	var paragraphs []string
	err := document.Guard("docx.Parse", func() error {
		doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("parse docx: %w", err)
		}
		for _, item := range doc.Document.Body.Items {
			para, ok := item.(*docx.Paragraph)
			if !ok {
				continue
			}
			if t := paragraphText(para); t != "" {
				paragraphs = append(paragraphs, t)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func scanArchive(zr *zip.Reader) (string, error) {
	data, err := deps.ReadEntry(zr, documentXML)
	if err != nil {
		return "", err
	}
	return ScanDocumentXML(data)
}

// ScanDocumentXML walks WordprocessingML and returns its run text. Paragraphs
// end with a blank line, <w:br w:type="page"/> becomes PageBreak and other
// breaks become newlines. A malformed tail keeps whatever was read before it.
func ScanDocumentXML(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var b strings.Builder
	inText := false
	runDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if b.Len() > 0 {
				break
			}
			return "", fmt.Errorf("scan %s: %w", documentXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "r":
				runDepth++
			case "t":
				inText = runDepth > 0
			case "tab":
				if runDepth > 0 {
					b.WriteByte('\t')
				}
			case "br", "cr":
				if attr(t, "type") == "page" {
					b.WriteString(PageBreak)
				} else {
					b.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				if runDepth > 0 {
					runDepth--
				}
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
