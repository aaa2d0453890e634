package word

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// PageBreak is the explicit page-break marker in raw text.
	PageBreak = "\f"

	targetPageChars = 1500

	// Up to this many double-blank-line fragments are pages of their own.
	maxLooseFragments = 5
)

var (
	tripleBlankRe = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)
	doubleBlankRe = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
)

// Paginate splits raw document text into pages. The first rule that yields
// more than one fragment wins: explicit page breaks, then runs of three or
// more blank lines, then runs of two blank lines. Fragments of the last rule
// are coalesced into pages of roughly 1500 characters when there are more
// than five of them. Otherwise the whole text is one page.
func Paginate(raw string) []string {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	if strings.Contains(text, PageBreak) {
		if pages := fragments(strings.Split(text, PageBreak)); len(pages) > 1 {
			return pages
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, PageBreak, "\n"))
	}

	if pages := fragments(tripleBlankRe.Split(text, -1)); len(pages) > 1 {
		return pages
	}

	if parts := fragments(doubleBlankRe.Split(text, -1)); len(parts) > 1 {
		if len(parts) > maxLooseFragments {
			return coalesce(parts, targetPageChars)
		}
		return parts
	}

	return []string{text}
}

func fragments(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// coalesce joins consecutive paragraphs until a page reaches about target
// characters. A single paragraph longer than target is kept whole.
func coalesce(parts []string, target int) []string {
	var pages []string
	var cur strings.Builder
	curLen := 0
	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+n > target {
			pages = append(pages, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		pages = append(pages, cur.String())
	}
	return pages
}
