package ppt

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/feichai0017/document-ingest/internal/models"
)

const (
	// FallbackNote flags output produced without opening the container.
	FallbackNote = "[Nota: la presentación no pudo abrirse normalmente; se usó una extracción alternativa y el texto puede estar incompleto.]"

	// NothingRecovered is the single page emitted when mining finds no text.
	NothingRecovered = "No se pudo recuperar texto de esta presentación. El archivo parece estar dañado o no contiene texto legible."

	minTagMatches   = 5
	pseudoSlides    = 5
	headingMaxLen   = 60
	maxSalvageEntry = 16 << 20
)

var (
	localHeader = []byte("PK\x03\x04")

	quotedAttrRe = regexp.MustCompile(`[\w:]+="([^"<>]{4,})"`)
	printableRe  = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N} ,.;:!?¿¡'()%€$-]{9,}`)
	noiseRe      = regexp.MustCompile(`(?i)xmlns|https?://|www\.|urn:|schemas|openxmlformats|<\?xml|\.xml\b|\.rels\b|^rId\d+$|^[\d\s.,-]+$`)
)

// Fallback mines raw presentation bytes for text. Slide XML salvaged from
// intact local file headers is scanned together with the printable
// characters of the buffer. It always returns at least one page.
func Fallback(data []byte) models.Outcome {
	scan := salvageEntries(data) + "\n" + printable(data)

	found := TextRuns(scan)
	if len(found) < minTagMatches {
		found = append(found, mineAttributes(scan)...)
		found = append(found, minePrintable(scan)...)
	}
	found = dedupe(found)

	if len(found) == 0 {
		return models.Outcome{Preamble: FallbackNote, Pages: []string{NothingRecovered}}
	}
	return models.Outcome{Preamble: FallbackNote, Pages: pseudoPages(found)}
}

// salvageEntries inflates slide XML found behind local file headers. It
// does not need the central directory, so a truncated archive still yields
// its complete entries.
func salvageEntries(data []byte) string {
	var b strings.Builder
	for off := 0; ; {
		i := bytes.Index(data[off:], localHeader)
		if i < 0 {
			break
		}
		start := off + i
		off = start + len(localHeader)
		if start+30 > len(data) {
			break
		}

		method := binary.LittleEndian.Uint16(data[start+8:])
		compressed := int(binary.LittleEndian.Uint32(data[start+18:]))
		nameLen := int(binary.LittleEndian.Uint16(data[start+26:]))
		extraLen := int(binary.LittleEndian.Uint16(data[start+28:]))
		body := start + 30 + nameLen + extraLen
		if body > len(data) {
			break
		}
		name := string(data[start+30 : start+30+nameLen])
		if !slideNameRe.MatchString(name) {
			continue
		}

		var content []byte
		switch method {
		case 0:
			end := body + compressed
			if compressed == 0 || end > len(data) {
				end = nextHeader(data, body)
			}
			content = data[body:end]
		case 8:
			fr := flate.NewReader(bytes.NewReader(data[body:]))
			// A damaged stream still yields its readable prefix.
			content, _ = io.ReadAll(io.LimitReader(fr, maxSalvageEntry))
			fr.Close()
		default:
			continue
		}
		b.Write(content)
		b.WriteByte('\n')
	}
	return b.String()
}

func nextHeader(data []byte, from int) int {
	if i := bytes.Index(data[from:], []byte("PK")); i >= 0 {
		return from + i
	}
	return len(data)
}

// printable keeps valid text runes and replaces everything else with a space.
func printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r == utf8.RuneError || !(unicode.IsPrint(r) || r == '\n') {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mineAttributes(s string) []string {
	var out []string
	for _, m := range quotedAttrRe.FindAllStringSubmatch(s, -1) {
		v := strings.TrimSpace(entityReplacer.Replace(m[1]))
		if strings.Contains(v, " ") && !noise(v) && meaningful(v) {
			out = append(out, v)
		}
	}
	return out
}

func minePrintable(s string) []string {
	var out []string
	for _, m := range printableRe.FindAllString(s, -1) {
		if v := strings.TrimSpace(m); len([]rune(v)) >= 10 && !noise(v) {
			out = append(out, v)
		}
	}
	return out
}

func noise(s string) bool {
	return noiseRe.MatchString(s)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// pseudoPages groups strings into about five pseudo-slides.
func pseudoPages(items []string) []string {
	per := (len(items) + pseudoSlides - 1) / pseudoSlides
	if per < 1 {
		per = 1
	}
	var pages []string
	for i := 0; i < len(items); i += per {
		end := min(i+per, len(items))
		lines := make([]string, 0, end-i)
		for _, s := range items[i:end] {
			if IsHeading(s) {
				lines = append(lines, "## "+s)
			} else {
				lines = append(lines, s)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// IsHeading reports whether a mined string reads like a title: short, and
// either all caps, ending with a colon or starting with a capital letter.
// The length cap applies to every form, including a trailing colon, which is
// stricter than treating the conditions as alternatives. Long capitalised
// sentences would otherwise all be taken as titles.
func IsHeading(s string) bool {
	if len([]rune(s)) > headingMaxLen {
		return false
	}
	if strings.HasSuffix(s, ":") {
		return true
	}
	if strings.ToUpper(s) == s && strings.ToLower(s) != s {
		return true
	}
	first, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(first)
}
