package ppt

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const (
	// bulletMaxLen is the length under which a non-final run is a bullet.
	bulletMaxLen = 100

	emptySlide = "_(diapositiva sin texto)_"
)

var (
	slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	textRunRe   = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)

	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&apos;", "'",
	)

	errNoSlides = errors.New("no slide entries in presentation")
)

// Processor extracts PowerPoint presentations one page per slide. When the
// container cannot be opened the raw bytes are mined instead (fallback.go).
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
	return &Processor{zip: zipProvider, logger: log.Named("ppt")}
}

func (p *Processor) Name() string { return "ppt" }

func (p *Processor) Extract(ctx context.Context, src document.Source) (models.Outcome, error) {
	open, err := p.zip.Ensure(ctx)
	if err == nil {
		var pages []string
		err = document.Guard("pptx slides", func() error {
			zr, err := open(src.Data)
			if err != nil {
				return err
			}
			pages, err = slidePages(zr)
			return err
		})
		if err == nil {
			return models.Outcome{Pages: pages}, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.Outcome{}, ctxErr
	}

	p.logger.Warn("Presentation container unreadable, mining raw bytes",
		logger.String("file", src.Name),
		logger.Error(err),
	)
	return Fallback(src.Data), nil
}

type slideEntry struct {
	index int
	file  *zip.File
}

func slidePages(zr *zip.Reader) ([]string, error) {
	var slides []slideEntry
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideEntry{index: n, file: f})
	}
	if len(slides) == 0 {
		return nil, errNoSlides
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].index < slides[j].index })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		data, err := deps.ReadFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.index, err)
		}
		pages = append(pages, RenderSlide(TextRuns(string(data))))
	}
	return pages, nil
}

// TextRuns returns the decoded, trimmed, non-empty <a:t> contents of xml.
func TextRuns(xml string) []string {
	var runs []string
	for _, m := range textRunRe.FindAllStringSubmatch(xml, -1) {
		if s := strings.TrimSpace(entityReplacer.Replace(m[1])); s != "" {
			runs = append(runs, s)
		}
	}
	return runs
}

// RenderSlide lays out one slide: the first meaningful run is the title,
// later short runs are bullets, and the rest (including the last run) is
// body text.
func RenderSlide(runs []string) string {
	title := -1
	for i, r := range runs {
		if meaningful(r) {
			title = i
			break
		}
	}
	if title < 0 {
		return emptySlide
	}

	lines := []string{"## " + runs[title]}
	rest := runs[title+1:]
	for i, r := range rest {
		if i < len(rest)-1 && len([]rune(r)) < bulletMaxLen {
			lines = append(lines, "- "+r)
		} else {
			lines = append(lines, r)
		}
	}
	return strings.Join(lines, "\n")
}

func meaningful(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
