package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/internal/service/ingest"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

// TaskStatusReader looks up queued task statuses.
type TaskStatusReader interface {
	GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error)
}

type TaskHandler struct {
	service  *ingest.Service
	statuses TaskStatusReader
	logger   logger.Logger
}

func NewTaskHandler(service *ingest.Service, statuses TaskStatusReader, log logger.Logger) *TaskHandler {
	return &TaskHandler{service: service, statuses: statuses, logger: log.Named("tasks")}
}

// Execute parses a registered task file and runs it.
func (h *TaskHandler) Execute(c *gin.Context) {
	exec, err := h.service.ExecuteTask(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to execute task", err)
		return
	}
	status := http.StatusOK
	if exec.TaskID != "" {
		status = http.StatusAccepted
	}
	c.JSON(status, exec)
}

// GetStatus 获取处理状态
func (h *TaskHandler) GetStatus(c *gin.Context) {
	if h.statuses == nil {
		respondError(c, h.logger, http.StatusServiceUnavailable, "Task queue is not configured", nil)
		return
	}
	taskID := c.Param("taskId")
	if taskID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	status, err := h.statuses.GetTaskStatus(c.Request.Context(), taskID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, queue.ErrStatusNotFound) {
			code = http.StatusNotFound
		}
		respondError(c, h.logger, code, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
