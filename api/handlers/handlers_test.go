package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-ingest/api/handlers"
	"github.com/feichai0017/document-ingest/api/middleware"
	"github.com/feichai0017/document-ingest/api/routes"
	"github.com/feichai0017/document-ingest/internal/agent/document"
	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/agent/document/text"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/ingest"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/converters"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

type resolver map[models.Category]document.Processor

func (r resolver) GetProcessor(c models.Category) (document.Processor, error) {
	if p, ok := r[c]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnsupported, c)
}

type staticStatuses map[string]*queue.TaskStatus

func (s staticStatuses) GetTaskStatus(_ context.Context, id string) (*queue.TaskStatus, error) {
	if st, ok := s[id]; ok {
		return st, nil
	}
	return nil, queue.ErrStatusNotFound
}

type harness struct {
	router  *gin.Engine
	service *ingest.Service
	hub     *notify.Hub
}

func newHarness(t *testing.T, statuses handlers.TaskStatusReader, opts ...routes.Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := notify.NewHub(16, nil)
	svc := ingest.NewService(resolver{
		models.CategoryText: text.NewProcessor(nil),
		models.CategoryPDF: document.ProcessorFunc{Label: "pdf", Fn: func(context.Context, document.Source) (models.Outcome, error) {
			return models.Outcome{Pages: []string{"uno", "dos", "tres"}}, nil
		}},
	}, hub.Hooks(), nil, &ingest.ServiceConfig{
		MaxFileSize:       1 << 20,
		AllowedExtensions: []string{"pdf", "txt", "task"},
		ExtractionTimeout: time.Second,
		MaxConcurrent:     2,
		PageMarkerMode:    pages.ModePlain,
	})

	var ro routes.Options
	if len(opts) > 0 {
		ro = opts[0]
	}
	r := gin.New()
	routes.SetupRoutes(r, handlers.NewHandlers(svc, hub, statuses, nil), ro)
	return &harness{router: r, service: svc, hub: hub}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (h *harness) upload(t *testing.T, files map[string]string) handlers.UploadResponse {
	t.Helper()
	body, ct := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", ct)
	w := h.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp handlers.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	h.service.Wait()
	return resp
}

func TestUploadAndReadBack(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.upload(t, map[string]string{
		"report.pdf": "%PDF-1.4",
		"data.csv":   "a,b",
	})
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/report.pdf/text", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "--- Página 3 ---")

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/report.pdf/pages", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc converters.ProcessedDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, 3, doc.Metadata.PageCount)

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/report.pdf/pages/2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"text":"dos"`)

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/report.pdf/pages/9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"done"`)
	assert.Contains(t, w.Body.String(), `"allProcessed":true`)
}

func TestCombinedTextModeSwitch(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, map[string]string{"report.pdf": "%PDF", "notes.txt": "hola"})

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/text?mode=structured", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<page file="report.pdf" number="2">`)
	assert.Contains(t, w.Body.String(), "hola")

	// the query only shapes this response
	assert.Equal(t, pages.ModePlain, h.service.Registry().Mode())
	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/text", nil))
	assert.Contains(t, w.Body.String(), "--- Página 2 ---")

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/text?mode=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/text/mode", strings.NewReader(`{"mode":"structured"}`))
	req.Header.Set("Content-Type", "application/json")
	w = h.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, pages.ModeStructured, h.service.Registry().Mode())

	req = httptest.NewRequest(http.MethodPut, "/api/v1/text/mode", strings.NewReader(`{"mode":"xml"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, h.do(req).Code)
}

func TestDeleteAndClear(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, map[string]string{"a.txt": "a", "b.txt": "b"})

	w := h.do(httptest.NewRequest(http.MethodDelete, "/api/v1/files/a.txt", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(httptest.NewRequest(http.MethodDelete, "/api/v1/files/a.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to remove file", resp.Message)

	w = h.do(httptest.NewRequest(http.MethodDelete, "/api/v1/files", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())
}

func TestPasteImage(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/paste", bytes.NewReader([]byte("\x89PNG")))
	req.Header.Set("Content-Type", "image/png")
	w := h.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Regexp(t, `^pasted-image-\d+\.png$`, resp.Files[0].Name)
	// png is not in the allow-list of this harness
	assert.False(t, resp.Files[0].Accepted)
}

func TestExecuteTaskAndStatus(t *testing.T) {
	h := newHarness(t, staticStatuses{"t-1": {TaskID: "t-1", Status: queue.StatusCompleted}})
	h.upload(t, map[string]string{"deploy.task": `{"steps":["build"]}`, "bad.task": "{oops", "notes.txt": "x"})

	w := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/files/deploy.task/execute", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"name":"deploy","payload":{"steps":["build"]}}`, w.Body.String())

	w = h.do(httptest.NewRequest(http.MethodPost, "/api/v1/files/bad.task/execute", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = h.do(httptest.NewRequest(http.MethodPost, "/api/v1/files/notes.txt/execute", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskStatusWithoutQueue(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t-1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w := h.do(req)
	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIDHeader))

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestPasteOversizedImageIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/paste", bytes.NewReader(make([]byte, 1<<20+1)))
	req.Header.Set("Content-Type", "image/png")
	w := h.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "FILE_TOO_LARGE", resp.Files[0].Code)
	assert.Equal(t, 0, h.service.Registry().Len())
}

func TestUploadBodyLimit(t *testing.T) {
	h := newHarness(t, nil, routes.Options{MaxBodyBytes: 512})
	body, ct := multipartBody(t, map[string]string{"big.txt": strings.Repeat("x", 2048)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", ct)

	w := h.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, h.service.Registry().Len())
}
