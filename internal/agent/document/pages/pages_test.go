package pages

import (
	"strings"
	"testing"
)

func TestEncodePlain(t *testing.T) {
	got := Encode(ModePlain, "report.pdf", "", []string{"uno", "dos", "tres"})
	want := "--- Página 1 ---\nuno\n\n--- Página 2 ---\ndos\n\n--- Página 3 ---\ntres"
	if got != want {
		t.Fatalf("Encode plain:\n%q\nwant\n%q", got, want)
	}
}

func TestEncodeStructuredEscapesFilename(t *testing.T) {
	got := Encode(ModeStructured, `a"b.pdf`, "", []string{"x"})
	if !strings.HasPrefix(got, `<page file="a&#34;b.pdf" number="1">`) {
		t.Fatalf("unexpected structured output %q", got)
	}
	doc := Parse(got)
	if doc.File != `a"b.pdf` {
		t.Errorf("File = %q", doc.File)
	}
}

func TestPlainStructuredRoundTrip(t *testing.T) {
	original := "[Nota: extracción básica]\n\n" +
		"--- Página 1 ---\nPrimera línea\nsegunda línea\n\n" +
		"--- Página 2 ---\n\n\nTabla | con | pipes\n\n\n" +
		"--- Página 3 ---\núltima"

	structured := Convert(original, "report.pdf", ModeStructured)
	if !strings.Contains(structured, `<page file="report.pdf" number="2">`) {
		t.Fatalf("structured output missing marker: %q", structured)
	}
	back := Convert(structured, "report.pdf", ModePlain)

	a, b := Parse(original), Parse(back)
	if a.Preamble != b.Preamble {
		t.Errorf("preamble changed: %q vs %q", a.Preamble, b.Preamble)
	}
	if len(a.Pages) != 3 || len(a.Pages) != len(b.Pages) {
		t.Fatalf("page count changed: %d vs %d", len(a.Pages), len(b.Pages))
	}
	for i := range a.Pages {
		if a.Pages[i] != b.Pages[i] {
			t.Errorf("page %d changed: %+v vs %+v", i+1, a.Pages[i], b.Pages[i])
		}
	}
}

func TestParseAcceptsEnglishLabel(t *testing.T) {
	doc := Parse("--- Page 1 ---\nhello\n--- Page 2 ---\nworld")
	if doc.Mode != ModePlain || len(doc.Pages) != 2 || doc.Pages[1].Body != "world" {
		t.Fatalf("unexpected parse %+v", doc)
	}
	if got := Convert("--- Page 1 ---\nhello", "", ModePlain); got != "--- Page 1 ---\nhello" {
		t.Errorf("same-mode conversion must not rewrite text, got %q", got)
	}
}

func TestConvertPassesThroughUnmarkedText(t *testing.T) {
	for _, mode := range []Mode{ModePlain, ModeStructured} {
		if got := Convert("{\n  \"a\": 1\n}", "a.json", mode); got != "{\n  \"a\": 1\n}" {
			t.Errorf("mode %s rewrote unmarked text: %q", mode, got)
		}
	}
}

func TestSplit(t *testing.T) {
	if _, p := Split("   "); len(p) != 0 {
		t.Errorf("blank text should have no pages, got %d", len(p))
	}
	if _, p := Split("plain body"); len(p) != 1 || p[0].Number != 1 {
		t.Errorf("unmarked text should be one page, got %+v", p)
	}
	pre, p := Split(Encode(ModePlain, "", "intro", []string{"a", "b"}))
	if pre != "intro" || len(p) != 2 {
		t.Errorf("got preamble %q pages %+v", pre, p)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Structured"); err != nil || m != ModeStructured {
		t.Errorf("got %q %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModePlain {
		t.Errorf("got %q %v", m, err)
	}
	if _, err := ParseMode("xml"); err == nil {
		t.Error("expected error")
	}
}

func TestStructuredRoundTripKeepsMarkupInBodies(t *testing.T) {
	bodies := []string{"Use </page> to close", `<page file="x" number="9">a & b</page>`, "second"}
	plain := Encode(ModePlain, "x.pdf", "", bodies)

	structured := Convert(plain, "x.pdf", ModeStructured)
	if n := strings.Count(structured, "</page>"); n != len(bodies) {
		t.Fatalf("structured output has %d closing tags, want %d: %q", n, len(bodies), structured)
	}
	if back := Convert(structured, "x.pdf", ModePlain); back != plain {
		t.Fatalf("round trip changed text:\n%q\nwant\n%q", back, plain)
	}

	_, pages := Split(structured)
	if len(pages) != len(bodies) {
		t.Fatalf("got %d pages, want %d", len(pages), len(bodies))
	}
	for i, p := range pages {
		if p.Body != bodies[i] {
			t.Errorf("page %d body = %q, want %q", i+1, p.Body, bodies[i])
		}
	}
}
