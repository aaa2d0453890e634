package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/api/handlers"
	"github.com/feichai0017/document-ingest/api/middleware"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64 // upload body cap, zero disables it
	Logger       logger.Logger
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(opts.Logger))
	r.Use(middleware.CORS(opts.CORSOrigins))

	v1 := r.Group("/api/v1")

	v1.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	files := v1.Group("/files")
	{
		files.POST("", middleware.BodyLimit(opts.MaxBodyBytes), h.Files.Upload)
		files.POST("/paste", h.Files.Paste)
		files.GET("", h.Files.List)
		files.DELETE("", h.Files.Clear)
		files.GET("/:name", h.Files.Get)
		files.DELETE("/:name", h.Files.Delete)
		files.GET("/:name/text", h.Files.Text)
		files.GET("/:name/pages", h.Files.Pages)
		files.GET("/:name/pages/:page", h.Files.Pages)
		files.POST("/:name/execute", h.Tasks.Execute)
	}

	v1.GET("/text", h.Files.CombinedText)
	v1.PUT("/text/mode", h.Files.SetMode)
	v1.GET("/tasks/:taskId", h.Tasks.GetStatus)
	v1.GET("/events", h.Events.Stream)
}
