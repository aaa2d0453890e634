// Package pages encodes and converts the page markers that delimit pages
// inside extracted text.
//
// Two encodings exist:
//
//	plain:       --- Página 3 ---
//	             body
//	structured:  <page file="report.pdf" number="3">
//	             body
//	             </page>
//
// Structured bodies are HTML-escaped so a body can never close its own
// element; Parse unescapes them. Page numbers are 1-based and contiguous in
// emission order. Bodies are compared with their surrounding newlines
// trimmed.
package pages

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Mode selects the page-marker encoding.
type Mode string

const (
	ModePlain      Mode = "plain"
	ModeStructured Mode = "structured"
	// ModeNone is reported by Parse for text without markers.
	ModeNone Mode = ""
)

// PlainLabel is the word used in emitted plain markers. Parsing also accepts "Page".
const PlainLabel = "Página"

const segmentSeparator = "\n\n"

var (
	plainMarker      = regexp.MustCompile(`(?m)^--- (?:Página|Pagina|Page) (\d+) ---[ \t]*$`)
	structuredMarker = regexp.MustCompile(`(?s)<page file="([^"]*)" number="(\d+)">(.*?)</page>`)
)

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePlain, "":
		return ModePlain, nil
	case ModeStructured:
		return ModeStructured, nil
	default:
		return ModeNone, fmt.Errorf("unknown page marker mode %q", s)
	}
}

// Page is one logical page.
type Page struct {
	Number int
	Body   string
}

// Document is extracted text split into pages.
type Document struct {
	Mode     Mode
	File     string
	Preamble string
	Pages    []Page
}

// PlainMarker renders the plain marker for page n.
func PlainMarker(n int) string {
	return fmt.Sprintf("--- %s %d ---", PlainLabel, n)
}

// Encode renders bodies as numbered pages in mode. filename is only used by
// the structured encoding.
func Encode(mode Mode, filename, preamble string, bodies []string) string {
	pages := make([]Page, len(bodies))
	for i, b := range bodies {
		pages[i] = Page{Number: i + 1, Body: b}
	}
	return Document{Mode: mode, File: filename, Preamble: preamble, Pages: pages}.String()
}

// String renders the document in its mode.
func (d Document) String() string {
	var b strings.Builder
	if p := strings.Trim(d.Preamble, "\n"); p != "" {
		b.WriteString(p)
		if len(d.Pages) > 0 {
			b.WriteString(segmentSeparator)
		}
	}
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteString(segmentSeparator)
		}
		body := strings.Trim(p.Body, "\n")
		switch d.Mode {
		case ModeStructured:
			fmt.Fprintf(&b, `<page file="%s" number="%d">`, html.EscapeString(d.File), p.Number)
			b.WriteString("\n")
			b.WriteString(html.EscapeString(body))
			b.WriteString("\n</page>")
		default:
			b.WriteString(PlainMarker(p.Number))
			b.WriteString("\n")
			b.WriteString(body)
		}
	}
	return b.String()
}

// Parse detects the encoding used by text and splits it. The encoding whose
// first marker comes first wins. Text without any marker yields ModeNone and
// no pages.
func Parse(text string) Document {
	first := plainMarker.FindStringIndex(text)
	if locs := structuredMarker.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 && (first == nil || locs[0][0] < first[0]) {
		doc := Document{Mode: ModeStructured, Preamble: strings.Trim(text[:locs[0][0]], "\n")}
		for _, loc := range locs {
			n, _ := strconv.Atoi(text[loc[4]:loc[5]])
			if doc.File == "" {
				doc.File = html.UnescapeString(text[loc[2]:loc[3]])
			}
			body := html.UnescapeString(strings.Trim(text[loc[6]:loc[7]], "\n"))
			doc.Pages = append(doc.Pages, Page{Number: n, Body: body})
		}
		return doc
	}

	locs := plainMarker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return Document{Mode: ModeNone, Preamble: text}
	}
	doc := Document{Mode: ModePlain, Preamble: strings.Trim(text[:locs[0][0]], "\n")}
	for i, loc := range locs {
		n, _ := strconv.Atoi(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		doc.Pages = append(doc.Pages, Page{Number: n, Body: strings.Trim(text[loc[1]:end], "\n")})
	}
	return doc
}

// Convert re-encodes text into mode. Text without markers, or already in
// mode, is returned unchanged.
func Convert(text, filename string, mode Mode) string {
	doc := Parse(text)
	if doc.Mode == ModeNone || doc.Mode == mode {
		return text
	}
	doc.Mode = mode
	if filename != "" {
		doc.File = filename
	}
	return doc.String()
}

// Split returns the page bodies of text, treating unmarked text as one page.
func Split(text string) (preamble string, pages []Page) {
	doc := Parse(text)
	if doc.Mode == ModeNone {
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		return "", []Page{{Number: 1, Body: text}}
	}
	return doc.Preamble, doc.Pages
}
