package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/internal/agent/document/pages"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/ingest"
	"github.com/feichai0017/document-ingest/pkg/converters"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type FileHandler struct {
	service   *ingest.Service
	converter converters.DocumentConverter
	logger    logger.Logger
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// UploadResponse reports what happened to every uploaded file.
type UploadResponse struct {
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
	Files    []models.Receipt `json:"files"`
}

// FileView is the JSON shape of a registry entry.
type FileView struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Size        int64                   `json:"size"`
	MediaType   string                  `json:"mediaType,omitempty"`
	Category    models.Category         `json:"category"`
	Status      models.ExtractionStatus `json:"status"`
	AddedAt     time.Time               `json:"addedAt"`
	ExtractedAt *time.Time              `json:"extractedAt,omitempty"`
}

func NewFileHandler(service *ingest.Service, log logger.Logger) *FileHandler {
	return &FileHandler{
		service:   service,
		converter: converters.NewJSONConverter(),
		logger:    log.Named("files"),
	}
}

func viewOf(f models.IngestedFile) FileView {
	v := FileView{
		ID:        f.ID,
		Name:      f.Name,
		Size:      f.Size,
		MediaType: f.MediaType,
		Category:  f.Category,
		Status:    f.Status(),
		AddedAt:   f.AddedAt,
	}
	if f.HasResult {
		at := f.ExtractedAt
		v.ExtractedAt = &at
	}
	return v
}

// Upload ingests every file of a multipart form (fields "files" and "file").
func (h *FileHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(c, http.StatusRequestEntityTooLarge, "Request body too large", err)
			return
		}
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	// parts are opened only after their metadata passes validation
	candidates := make([]models.Candidate, 0, len(headers))
	for _, fh := range headers {
		candidates = append(candidates, models.Candidate{
			Name:      fh.Filename,
			Size:      fh.Size,
			MediaType: fh.Header.Get("Content-Type"),
			Open:      openPart(fh),
		})
	}

	receipts := h.service.HandleFiles(c.Request.Context(), candidates)
	c.JSON(http.StatusOK, summarize(receipts))
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return fh.Open() }
}

func summarize(receipts []models.Receipt) UploadResponse {
	resp := UploadResponse{Files: receipts}
	for _, r := range receipts {
		if r.Accepted {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	return resp
}

// Paste ingests a clipboard image sent as the raw request body.
func (h *FileHandler) Paste(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		h.handleError(c, http.StatusBadRequest, "Empty image", nil)
		return
	}

	receipt := h.service.HandlePastedReader(c.Request.Context(), c.ContentType(), c.Request.ContentLength, c.Request.Body)
	c.JSON(http.StatusOK, summarize([]models.Receipt{receipt}))
}

func (h *FileHandler) List(c *gin.Context) {
	reg := h.service.Registry()
	files := reg.GetAll()
	views := make([]FileView, len(files))
	for i, f := range files {
		views[i] = viewOf(f)
	}
	c.JSON(http.StatusOK, gin.H{
		"files":        views,
		"allProcessed": reg.AllProcessed(),
		"mode":         reg.Mode(),
	})
}

func (h *FileHandler) Get(c *gin.Context) {
	f, ok := h.service.Registry().Get(c.Param("name"))
	if !ok {
		h.handleError(c, http.StatusNotFound, "File not found", models.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, viewOf(f))
}

func (h *FileHandler) Delete(c *gin.Context) {
	removed, err := h.service.Registry().Remove(c.Param("name"))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to remove file", err)
		return
	}
	c.JSON(http.StatusOK, viewOf(removed))
}

func (h *FileHandler) Clear(c *gin.Context) {
	n := h.service.Registry().Clear()
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// Text returns one file's extracted text in the registry encoding.
func (h *FileHandler) Text(c *gin.Context) {
	text, err := h.service.Registry().FileText(c.Param("name"))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get text", err)
		return
	}
	c.String(http.StatusOK, text)
}

// Pages returns the paged view of a file, or one page when :page is set.
func (h *FileHandler) Pages(c *gin.Context) {
	f, ok := h.service.Registry().Get(c.Param("name"))
	if !ok {
		h.handleError(c, http.StatusNotFound, "File not found", models.ErrNotFound)
		return
	}
	doc, err := h.converter.Convert(f)
	if err != nil {
		h.handleError(c, http.StatusConflict, "File has not been extracted yet", err)
		return
	}

	raw := c.Param("page")
	if raw == "" {
		c.JSON(http.StatusOK, doc)
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.handleError(c, http.StatusBadRequest, "Invalid page number", err)
		return
	}
	page, err := doc.Page(n)
	if err != nil {
		h.handleError(c, statusFor(err), "Page not found", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CombinedText exports every file's text. ?mode= renders this response in
// another encoding; ?separator= overrides the default separator.
func (h *FileHandler) CombinedText(c *gin.Context) {
	mode := pages.ModeNone
	if raw, ok := c.GetQuery("mode"); ok {
		var err error
		if mode, err = pages.ParseMode(raw); err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid page marker mode", err)
			return
		}
	}
	c.String(http.StatusOK, h.service.Registry().CombinedTextIn(mode, c.Query("separator")))
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetMode switches the page-marker encoding used by every text export.
func (h *FileHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	mode, err := pages.ParseMode(req.Mode)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid page marker mode", err)
		return
	}
	h.service.Registry().SetMode(mode)
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotTaskFile), errors.Is(err, models.ErrTaskParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrDuplicateName):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError 统一错误处理
func (h *FileHandler) handleError(c *gin.Context, status int, message string, err error) {
	respondError(c, h.logger, status, message, err)
}

func respondError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	l := logger.FromContext(c.Request.Context(), log)
	fields := []logger.Field{logger.String("path", c.Request.URL.Path), logger.Int("status", status)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		l.Error(message, fields...)
	} else {
		l.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
