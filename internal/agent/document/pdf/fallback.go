package pdf

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/feichai0017/document-ingest/internal/models"
)

// FallbackNote is prepended to text recovered by the byte scan.
const FallbackNote = "[Nota: se utilizó la extracción básica de PDF; el texto puede estar incompleto o desordenado.]"

// maxInflated caps the output of a single decompressed stream.
const maxInflated = 16 << 20

var errNoReadable = errors.New("no readable text found")

var (
	streamRe   = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	textObjRe  = regexp.MustCompile(`(?s)\bBT\b(.*?)\bET\b`)
	literalRe  = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
	longLitRe  = regexp.MustCompile(`\(((?:\\.|[^\\)]){4,})\)`)
	pageTypeRe = regexp.MustCompile(`/Type\s*/Page\b`)
	showOpRe   = regexp.MustCompile(`\b(?:Tj|TJ|T\*|Td|TD|Tm)\b|'|"`)
)

// Fallback recovers text from raw PDF bytes without a renderer. Text
// objects are scanned first; when none carry text, any parenthesized
// literal longer than three characters is taken. Matches are spread evenly
// over the number of /Page objects.
func Fallback(data []byte) (models.Outcome, error) {
	content := scanSpace(data)

	matches := textObjects(content)
	if len(matches) == 0 {
		matches = looseLiterals(content)
	}
	if len(matches) == 0 {
		return models.Outcome{}, errNoReadable
	}

	return models.Outcome{
		Preamble: FallbackNote,
		Pages:    distribute(matches, CountPages(data)),
	}, nil
}

// CountPages counts /Type /Page dictionaries (not /Pages), with a minimum of one.
func CountPages(data []byte) int {
	n := len(pageTypeRe.FindAllIndex(data, -1))
	if n < 1 {
		return 1
	}
	return n
}

// scanSpace returns the raw bytes followed by every stream that inflates.
func scanSpace(data []byte) []byte {
	var buf bytes.Buffer
	buf.Write(data)
	for _, m := range streamRe.FindAllSubmatchIndex(data, -1) {
		raw := data[m[2]:m[3]]
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		// A truncated stream still yields its readable prefix.
		inflated, _ := io.ReadAll(io.LimitReader(zr, maxInflated))
		zr.Close()
		if len(inflated) == 0 {
			continue
		}
		buf.WriteByte('\n')
		buf.Write(inflated)
	}
	return buf.Bytes()
}

func textObjects(content []byte) []string {
	var out []string
	for _, obj := range textObjRe.FindAllSubmatch(content, -1) {
		body := obj[1]
		var b strings.Builder
		last := 0
		for _, lit := range literalRe.FindAllSubmatchIndex(body, -1) {
			if b.Len() > 0 && showOpRe.Match(body[last:lit[0]]) {
				b.WriteByte(' ')
			}
			b.WriteString(decodeLiteral(body[lit[2]:lit[3]]))
			last = lit[1]
		}
		if s := clean(b.String()); readable(s) {
			out = append(out, s)
		}
	}
	return out
}

func looseLiterals(content []byte) []string {
	var out []string
	for _, m := range longLitRe.FindAllSubmatch(content, -1) {
		if s := clean(decodeLiteral(m[1])); len(s) > 3 && readable(s) {
			out = append(out, s)
		}
	}
	return out
}

// distribute spreads matches over pages so that no page is left empty.
func distribute(matches []string, pages int) []string {
	if pages > len(matches) {
		pages = len(matches)
	}
	bodies := make([]string, pages)
	for i := 0; i < pages; i++ {
		lo := i * len(matches) / pages
		hi := (i + 1) * len(matches) / pages
		bodies[i] = strings.Join(matches[lo:hi], "\n")
	}
	return bodies
}

// decodeLiteral resolves PDF string escapes. Bytes map to runes one to one
// (Latin-1), which is what simple fonts encode.
func decodeLiteral(raw []byte) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			b.WriteRune(rune(c))
			continue
		}
		i++
		switch e := raw[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b', 'f':
		case '(', ')', '\\':
			b.WriteByte(e)
		case '\n':
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		default:
			if e >= '0' && e <= '7' {
				v := int(e - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					v = v*8 + int(raw[i]-'0')
				}
				b.WriteRune(rune(v & 0xff))
				continue
			}
			b.WriteByte(e)
		}
	}
	return b.String()
}

func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}

// readable rejects binary noise: at least half the runes must be letters,
// digits or spaces.
func readable(s string) bool {
	if s == "" {
		return false
	}
	var good, total int
	hasLetter := false
	for _, r := range s {
		total++
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
			good++
		case unicode.IsDigit(r), unicode.IsSpace(r), unicode.IsPunct(r):
			good++
		}
	}
	return hasLetter && good*2 >= total
}
