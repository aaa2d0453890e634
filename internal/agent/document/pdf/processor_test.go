package pdf

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/feichai0017/document-ingest/internal/agent/deps"
	"github.com/feichai0017/document-ingest/internal/agent/document"
)

type fakeDoc struct {
	pages [][]TextRun
	fail  int
	calls atomic.Int32
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) PageRuns(n int) ([]TextRun, error) {
	d.calls.Add(1)
	if n == d.fail {
		return nil, errors.New("broken page")
	}
	return d.pages[n-1], nil
}

type fakeRenderer struct{ doc *fakeDoc }

func (r fakeRenderer) Open([]byte) (PagedDocument, error) { return r.doc, nil }

func line(y float64, words ...string) []TextRun {
	var runs []TextRun
	x := 10.0
	for _, w := range words {
		width := float64(len(w)) * 5
		runs = append(runs, TextRun{X: x, Y: y, W: width, FontSize: 10, S: w})
		x += width + 4
	}
	return runs
}

func TestExtractOrdersPages(t *testing.T) {
	doc := &fakeDoc{pages: [][]TextRun{
		line(700, "Primera", "página"),
		append(line(700, "Segunda"), line(680, "línea", "dos")...),
		line(700, "Tercera"),
	}}
	p := NewProcessor(deps.Static[Renderer]("pdf", fakeRenderer{doc: doc}), nil)

	out, err := p.Extract(context.Background(), document.Source{Name: "report.pdf"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []string{"Primera página", "Segunda\nlínea dos", "Tercera"}
	if len(out.Pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(out.Pages), len(want))
	}
	for i := range want {
		if out.Pages[i] != want[i] {
			t.Errorf("page %d = %q, want %q", i+1, out.Pages[i], want[i])
		}
	}
	if out.Preamble != "" {
		t.Errorf("primary path must not add a preamble, got %q", out.Preamble)
	}
}

func TestReconstructJoinsAdjacentRuns(t *testing.T) {
	runs := []TextRun{
		{X: 10, Y: 100, W: 10, FontSize: 10, S: "Ho"},
		{X: 20, Y: 100, W: 10, FontSize: 10, S: "la"},
		{X: 40, Y: 100, W: 20, FontSize: 10, S: "mundo"},
		{X: 10, Y: 80, W: 10, FontSize: 10, S: "fin"},
	}
	if got := Reconstruct(runs); got != "Hola mundo\nfin" {
		t.Errorf("Reconstruct = %q", got)
	}
}

func minimalPDF(streams ...[]byte) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n1 0 obj << /Type /Pages /Kids [2 0 R 3 0 R] /Count 2 >> endobj\n")
	b.WriteString("2 0 obj << /Type /Page /Parent 1 0 R >> endobj\n")
	b.WriteString("3 0 obj << /Type/Page /Parent 1 0 R >> endobj\n")
	for i, s := range streams {
		fmt.Fprintf(&b, "%d 0 obj << /Length %d >>\nstream\n", 4+i, len(s))
		b.Write(s)
		b.WriteString("\nendstream\nendobj\n")
	}
	b.WriteString("%%EOF")
	return b.Bytes()
}

func TestFallbackWhenRendererUnavailable(t *testing.T) {
	data := minimalPDF(
		[]byte("BT /F1 12 Tf 72 700 Td (Informe anual) Tj ET\nBT (Ventas \\(Q1\\)) Tj 0 -14 Td (crecieron) Tj ET"),
	)
	p := NewProcessor(deps.Unavailable[Renderer]("pdf", errors.New("no renderer")), nil)

	out, err := p.Extract(context.Background(), document.Source{Name: "scan.pdf", Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Preamble != FallbackNote {
		t.Errorf("missing fallback note, got %q", out.Preamble)
	}
	if len(out.Pages) != 2 {
		t.Fatalf("expected text spread over 2 pages, got %d: %q", len(out.Pages), out.Pages)
	}
	if out.Pages[0] != "Informe anual" || out.Pages[1] != "Ventas (Q1) crecieron" {
		t.Errorf("unexpected pages %q", out.Pages)
	}
}

func TestFallbackWhenPrimaryEmpty(t *testing.T) {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write([]byte("BT (Texto comprimido) Tj ET"))
	zw.Close()
	data := minimalPDF(z.Bytes())

	doc := &fakeDoc{pages: [][]TextRun{nil, nil}}
	p := NewProcessor(deps.Static[Renderer]("pdf", fakeRenderer{doc: doc}), nil)

	out, err := p.Extract(context.Background(), document.Source{Name: "empty.pdf", Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(out.Pages) != 1 || out.Pages[0] != "Texto comprimido" {
		t.Errorf("unexpected pages %q", out.Pages)
	}
}

func TestFallbackLooseLiterals(t *testing.T) {
	data := []byte("%PDF-1.1\n<< /Title (Acta de la reunión) /X (ab) >>\n%%EOF")
	out, err := Fallback(data)
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if len(out.Pages) != 1 || !strings.Contains(out.Pages[0], "Acta de la reuni") {
		t.Errorf("unexpected pages %q", out.Pages)
	}
	if strings.Contains(out.Pages[0], "\nab") {
		t.Errorf("short literal must be skipped: %q", out.Pages[0])
	}
}

func TestFallbackFailsOnGarbage(t *testing.T) {
	doc := &fakeDoc{pages: [][]TextRun{line(1, "x")}, fail: 1}
	p := NewProcessor(deps.Static[Renderer]("pdf", fakeRenderer{doc: doc}), nil)

	_, err := p.Extract(context.Background(), document.Source{Name: "bad.pdf", Data: []byte{0, 1, 2, 3}})
	if err == nil {
		t.Fatal("expected an error when both paths fail")
	}
}

func TestCountPages(t *testing.T) {
	if n := CountPages(minimalPDF()); n != 2 {
		t.Errorf("CountPages = %d, want 2", n)
	}
	if n := CountPages([]byte("nothing here")); n != 1 {
		t.Errorf("CountPages on empty = %d, want 1", n)
	}
}

func TestDecodeLiteral(t *testing.T) {
	tests := map[string]string{
		`a\(b\)`:      "a(b)",
		`l\355nea`:    "línea",
		`tab\there`:   "tab\there",
		"split\\\nup": "splitup",
	}
	for in, want := range tests {
		if got := decodeLiteral([]byte(in)); got != want {
			t.Errorf("decodeLiteral(%q) = %q, want %q", in, got, want)
		}
	}
}
