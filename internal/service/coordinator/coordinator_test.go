package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/internal/service/registry"
)

type fakeResolver map[models.Category]document.Processor

func (r fakeResolver) GetProcessor(c models.Category) (document.Processor, error) {
	if p, ok := r[c]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: category %q", models.ErrUnsupported, c)
}

func factory(c models.Category, fn func(ctx context.Context, src document.Source) (models.Outcome, error)) fakeResolver {
	return fakeResolver{c: document.ProcessorFunc{Label: "fake", Fn: fn}}
}

func register(t *testing.T, reg *registry.Registry, name string, c models.Category) models.IngestedFile {
	t.Helper()
	f, ok := reg.Register(models.IngestedFile{Name: name, Category: c, Raw: []byte("data")})
	if !ok {
		t.Fatalf("register %s", name)
	}
	return f
}

func TestReportPDFScenario(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	file := register(t, reg, "report.pdf", models.CategoryPDF)
	resolver := factory(models.CategoryPDF, func(context.Context, document.Source) (models.Outcome, error) {
		return models.Outcome{Pages: []string{"uno", "dos", "tres"}}, nil
	})

	c := New(resolver, reg, Config{Timeout: time.Second}, notify.Hooks{}, nil)
	c.Dispatch(context.Background(), file)
	c.Wait()

	got, _ := reg.Get("report.pdf")
	if got.Status() != models.StatusDone {
		t.Fatalf("status = %s", got.Status())
	}
	i1 := strings.Index(got.ExtractedText, "--- Página 1 ---")
	i2 := strings.Index(got.ExtractedText, "--- Página 2 ---")
	i3 := strings.Index(got.ExtractedText, "--- Página 3 ---")
	if i1 < 0 || i2 < i1 || i3 < i2 {
		t.Errorf("markers missing or out of order:\n%s", got.ExtractedText)
	}
}

func TestTimeoutWinsOverLateCallback(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	file := register(t, reg, "slow.docx", models.CategoryWord)

	release := make(chan struct{})
	finished := make(chan struct{})
	resolver := factory(models.CategoryWord, func(ctx context.Context, src document.Source) (models.Outcome, error) {
		defer close(finished)
		<-release
		return models.Outcome{Pages: []string{"late"}}, nil
	})

	c := New(resolver, reg, Config{Timeout: 20 * time.Millisecond}, notify.Hooks{}, nil)
	res := c.Extract(context.Background(), file)
	if !res.TimedOut || !res.IsError || !res.Written {
		t.Fatalf("result = %+v", res)
	}

	close(release)
	<-finished
	time.Sleep(10 * time.Millisecond)

	got, _ := reg.Get("slow.docx")
	if got.Status() != models.StatusError || !strings.Contains(got.ExtractedText, "timed out") {
		t.Errorf("late callback overwrote timeout: %+v", got)
	}
}

func TestStrategyErrorsAndPanicsBecomeErrorText(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, document.Source) (models.Outcome, error)
		want string
	}{
		{"error", func(context.Context, document.Source) (models.Outcome, error) {
			return models.Outcome{}, errors.New("broken header")
		}, "Error: broken header"},
		{"panic", func(context.Context, document.Source) (models.Outcome, error) {
			panic("index out of range")
		}, "Error: extraction failed: fake panicked: index out of range"},
		{"error outcome", func(context.Context, document.Source) (models.Outcome, error) {
			return models.ErrorOutcome("No se detectó texto en la imagen."), nil
		}, "Error: No se detectó texto en la imagen."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
			file := register(t, reg, "x.png", models.CategoryImage)
			c := New(factory(models.CategoryImage, tt.fn), reg, Config{Timeout: time.Second}, notify.Hooks{}, nil)

			res := c.Extract(context.Background(), file)
			if !res.IsError || res.Text != tt.want {
				t.Errorf("text = %q, want %q", res.Text, tt.want)
			}
			got, _ := reg.Get("x.png")
			if got.Status() != models.StatusError {
				t.Errorf("status = %s", got.Status())
			}
		})
	}
}

func TestUnsupportedCategoryIsNotDispatched(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	file := register(t, reg, "song.mp3", models.CategoryUnknown)
	c := New(factory(models.CategoryPDF, nil), reg, Config{}, notify.Hooks{}, nil)

	if c.Dispatch(context.Background(), file) {
		t.Error("unknown category dispatched")
	}
}

func TestMissingStrategyWritesError(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	file := register(t, reg, "a.xlsx", models.CategoryExcel)
	c := New(factory(models.CategoryPDF, nil), reg, Config{}, notify.Hooks{}, nil)

	res := c.Extract(context.Background(), file)
	if !res.IsError || !strings.Contains(res.Text, "unsupported") {
		t.Errorf("result = %+v", res)
	}
}

func TestRemovedFileResultIsDropped(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	file := register(t, reg, "gone.pdf", models.CategoryPDF)
	resolver := factory(models.CategoryPDF, func(context.Context, document.Source) (models.Outcome, error) {
		if _, err := reg.Remove("gone.pdf"); err != nil {
			t.Error(err)
		}
		return models.Outcome{Pages: []string{"x"}}, nil
	})

	c := New(resolver, reg, Config{Timeout: time.Second}, notify.Hooks{}, nil)
	if res := c.Extract(context.Background(), file); res.Written {
		t.Error("write for removed file reported as written")
	}
	if reg.Len() != 0 {
		t.Error("removed file came back")
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	var running, peak int32
	resolver := factory(models.CategoryText, func(context.Context, document.Source) (models.Outcome, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return models.Outcome{Text: "ok"}, nil
	})
	c := New(resolver, reg, Config{Timeout: time.Second, MaxConcurrent: 2}, notify.Hooks{}, nil)

	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		c.Dispatch(context.Background(), register(t, reg, name, models.CategoryText))
	}
	c.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency %d exceeds 2", peak)
	}
	if !reg.AllProcessed() {
		t.Error("not every file was processed")
	}
}

func TestProgressIsForwarded(t *testing.T) {
	reg := registry.New(pages.ModePlain, notify.Hooks{}, nil)
	file := register(t, reg, "scan.png", models.CategoryImage)
	resolver := factory(models.CategoryImage, func(ctx context.Context, src document.Source) (models.Outcome, error) {
		document.ReportProgress(ctx, "recognizing text", 0.5)
		return models.Outcome{Pages: []string{"texto"}}, nil
	})

	var got []string
	hooks := notify.Hooks{OnExtractionProgress: func(name, status string, progress float64) {
		got = append(got, name+":"+status)
	}}
	c := New(resolver, reg, Config{Timeout: time.Second}, hooks, nil)
	c.Extract(context.Background(), file)

	if len(got) != 1 || got[0] != "scan.png:recognizing text" {
		t.Errorf("progress = %v", got)
	}
}
