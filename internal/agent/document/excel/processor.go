package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/agent/document/text"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// SheetHeading introduces each sheet in the rendered workbook.
const SheetHeading = "### Hoja: "

// Sheet is one named grid of cell values. Rows may be ragged.
type Sheet struct {
	Name string
	Rows [][]string
}

// Processor renders every sheet of a workbook as a Markdown table. The whole
// workbook is a single page.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("excel")}
}

func (p *Processor) Name() string { return "excel" }

func (p *Processor) Extract(ctx context.Context, src document.Source) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}

	var sheets []Sheet
	err := document.Guard("spreadsheet reader", func() error {
		var err error
		if src.Extension() == "csv" || strings.Contains(strings.ToLower(src.MediaType), "csv") {
			sheets, err = ReadCSV(src.Name, src.Data, src.MediaType)
		} else {
			sheets, err = ReadWorkbook(src.Data)
		}
		return err
	})
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	if len(sheets) == 0 {
		return models.Outcome{}, fmt.Errorf("%w: workbook has no sheets", models.ErrExtraction)
	}

	p.logger.Debug("Workbook read",
		logger.String("file", src.Name),
		logger.Int("sheets", len(sheets)),
	)
	return models.Outcome{Pages: []string{Render(sheets)}}, nil
}

// ReadWorkbook reads every sheet of an .xlsx workbook in tab order.
func ReadWorkbook(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// ReadCSV reads a delimited text file as a single sheet named after the file.
// The separator is whichever of comma, semicolon or tab occurs most on the
// first line.
func ReadCSV(name string, data []byte, mediaType string) ([]Sheet, error) {
	decoded := text.Decode(data, mediaType)

	r := csv.NewReader(strings.NewReader(decoded))
	r.Comma = sniffSeparator(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}

	base := filepath.Base(name)
	return []Sheet{{Name: strings.TrimSuffix(base, filepath.Ext(base)), Rows: rows}}, nil
}

func sniffSeparator(s string) rune {
	first, _, _ := strings.Cut(s, "\n")
	best, bestCount := ',', 0
	for _, sep := range []rune{',', ';', '\t'} {
		if n := strings.Count(first, string(sep)); n > bestCount {
			best, bestCount = sep, n
		}
	}
	return best
}

// Render formats sheets as Markdown: a heading per sheet followed by its
// table. Sheets are separated by a blank line.
func Render(sheets []Sheet) string {
	parts := make([]string, 0, len(sheets))
	for _, s := range sheets {
		parts = append(parts, SheetHeading+s.Name+"\n\n"+Table(s.Rows))
	}
	return strings.Join(parts, "\n\n")
}

// Table renders rows as a GFM table using the first row as header. Short
// rows are padded with empty cells.
func Table(rows [][]string) string {
	rows = trimTrailingEmpty(rows)
	if len(rows) == 0 {
		return "_(hoja vacía)_"
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	var b strings.Builder
	writeRow(&b, rows[0], width)
	b.WriteString("\n|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	for _, r := range rows[1:] {
		b.WriteByte('\n')
		writeRow(&b, r, width)
	}
	return b.String()
}

func writeRow(b *strings.Builder, row []string, width int) {
	b.WriteString("|")
	for i := 0; i < width; i++ {
		cell := ""
		if i < len(row) {
			cell = escapeCell(row[i])
		}
		b.WriteString(" " + cell + " |")
	}
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCell(s string) string {
	return strings.TrimSpace(cellReplacer.Replace(s))
}

func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
