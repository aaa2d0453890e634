package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/notify"
)

func file(name string, c models.Category) models.IngestedFile {
	return models.IngestedFile{Name: name, Category: c, Raw: []byte("raw")}
}

func TestRegisterDuplicateIsNoop(t *testing.T) {
	added := 0
	r := New(pages.ModePlain, notify.Hooks{OnFileAdded: func(models.IngestedFile) { added++ }}, nil)

	first, ok := r.Register(file("notes.txt", models.CategoryText))
	if !ok || first.ID == "" || first.AddedAt.IsZero() {
		t.Fatalf("first registration: ok=%v entry=%+v", ok, first)
	}
	if _, ok := r.Register(file("notes.txt", models.CategoryText)); ok {
		t.Error("duplicate registration reported success")
	}
	if r.Len() != 1 || added != 1 {
		t.Errorf("len=%d added=%d, want 1 and 1", r.Len(), added)
	}
}

func TestWriteExtractionUpdatesEntry(t *testing.T) {
	var extracted []models.IngestedFile
	r := New(pages.ModePlain, notify.Hooks{OnTextExtracted: func(f models.IngestedFile) { extracted = append(extracted, f) }}, nil)
	r.Register(file("report.pdf", models.CategoryPDF))
	r.Register(file("notes.txt", models.CategoryText))

	if !r.WriteExtraction("report.pdf", "--- Página 1 ---\nhola", false) {
		t.Fatal("write returned false")
	}
	r.WriteExtraction("notes.txt", "Error: could not decode", false)

	pdf, _ := r.Get("report.pdf")
	if pdf.Status() != models.StatusDone || pdf.Raw != nil {
		t.Errorf("pdf entry = %+v", pdf)
	}
	txt, _ := r.Get("notes.txt")
	if !txt.IsError || txt.Status() != models.StatusError {
		t.Errorf("error marker not detected: %+v", txt)
	}
	if string(txt.Raw) != "raw" {
		t.Error("text files keep their raw bytes")
	}
	if len(extracted) != 2 {
		t.Errorf("TextExtracted fired %d times", len(extracted))
	}
}

func TestWriteForMissingFileIsNoop(t *testing.T) {
	r := New(pages.ModePlain, notify.Hooks{}, nil)
	if r.WriteExtraction("ghost.pdf", "x", false) {
		t.Error("write for missing file should be a no-op")
	}
}

func TestWriteForReingestedFileIsDropped(t *testing.T) {
	r := New(pages.ModePlain, notify.Hooks{}, nil)
	old, _ := r.Register(file("a.pdf", models.CategoryPDF))
	if _, err := r.Remove("a.pdf"); err != nil {
		t.Fatal(err)
	}
	fresh, _ := r.Register(file("a.pdf", models.CategoryPDF))

	if r.WriteExtractionFor(old.ID, "stale", false) {
		t.Error("stale write accepted")
	}
	got, _ := r.Get("a.pdf")
	if got.HasResult || got.ID != fresh.ID {
		t.Errorf("entry changed by stale write: %+v", got)
	}
}

func TestAllFilesProcessedFiresOncePerTransition(t *testing.T) {
	fired := 0
	r := New(pages.ModePlain, notify.Hooks{OnAllFilesProcessed: func([]models.IngestedFile) { fired++ }}, nil)
	r.Register(file("a.pdf", models.CategoryPDF))
	r.Register(file("b.docx", models.CategoryWord))
	r.Register(file("song.mp3", models.CategoryUnknown))

	r.WriteExtraction("a.pdf", "x", false)
	if fired != 0 {
		t.Fatal("fired before every file had a result")
	}
	r.WriteExtraction("b.docx", "y", false)
	r.WriteExtraction("b.docx", "y again", false)
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}

	r.Register(file("c.pptx", models.CategoryPPT))
	if r.AllProcessed() {
		t.Error("new pending file must reset the state")
	}
	r.WriteExtraction("c.pptx", "z", false)
	if fired != 2 {
		t.Errorf("fired %d times after second transition, want 2", fired)
	}
}

func TestHooksMayCallBack(t *testing.T) {
	var r *Registry
	var seen int
	r = New(pages.ModePlain, notify.Hooks{
		OnFileAdded: func(f models.IngestedFile) { seen = r.Len() },
	}, nil)
	r.Register(file("a.txt", models.CategoryText))
	if seen != 1 {
		t.Errorf("hook saw len %d", seen)
	}
}

func TestClearFiresRemovalPerFile(t *testing.T) {
	var removed []string
	r := New(pages.ModePlain, notify.Hooks{OnFileRemoved: func(f models.IngestedFile) { removed = append(removed, f.Name) }}, nil)
	r.Register(file("a.txt", models.CategoryText))
	r.Register(file("b.txt", models.CategoryText))

	if n := r.Clear(); n != 2 {
		t.Errorf("Clear = %d", n)
	}
	if strings.Join(removed, ",") != "a.txt,b.txt" || r.Len() != 0 {
		t.Errorf("removed = %v, len = %d", removed, r.Len())
	}
	if _, err := r.Remove("a.txt"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Remove after clear: %v", err)
	}
}

func TestCombinedTextNormalizesMode(t *testing.T) {
	r := New(pages.ModeStructured, notify.Hooks{}, nil)
	r.Register(file("report.pdf", models.CategoryPDF))
	r.Register(file("notes.txt", models.CategoryText))
	r.Register(file("pending.docx", models.CategoryWord))
	r.WriteExtraction("report.pdf", pages.Encode(pages.ModePlain, "report.pdf", "", []string{"uno", "dos"}), false)
	r.WriteExtraction("notes.txt", "texto libre", false)

	got := r.CombinedText("\n---\n")
	want := "<page file=\"report.pdf\" number=\"1\">\nuno\n</page>\n\n" +
		"<page file=\"report.pdf\" number=\"2\">\ndos\n</page>" +
		"\n---\n" +
		"texto libre"
	if got != want {
		t.Errorf("CombinedText:\n%q\nwant:\n%q", got, want)
	}

	r.SetMode(pages.ModePlain)
	text, err := r.FileText("report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if text != "--- Página 1 ---\nuno\n\n--- Página 2 ---\ndos" {
		t.Errorf("FileText = %q", text)
	}
}

func TestCombinedTextInLeavesModeAlone(t *testing.T) {
	r := New(pages.ModePlain, notify.Hooks{}, nil)
	r.Register(file("report.pdf", models.CategoryPDF))
	r.WriteExtraction("report.pdf", pages.Encode(pages.ModePlain, "report.pdf", "", []string{"uno"}), false)

	got := r.CombinedTextIn(pages.ModeStructured, "")
	if got != "<page file=\"report.pdf\" number=\"1\">\nuno\n</page>" {
		t.Errorf("CombinedTextIn = %q", got)
	}
	if r.Mode() != pages.ModePlain {
		t.Errorf("mode changed to %q", r.Mode())
	}
	if got := r.CombinedText(""); got != "--- Página 1 ---\nuno" {
		t.Errorf("CombinedText = %q", got)
	}
}
