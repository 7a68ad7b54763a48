package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/syllabridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/syllabridge-backend/internal/http/middleware"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware
	// SubmitLimit guards POST /api/ingest. Nil means unlimited.
	SubmitLimit gin.HandlerFunc

	IngestHandler *httpH.IngestHandler
	CourseHandler *httpH.CourseHandler
	EventsHandler *httpH.EventsHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Ingest
		if cfg.IngestHandler != nil {
			submit := []gin.HandlerFunc{}
			if cfg.SubmitLimit != nil {
				submit = append(submit, cfg.SubmitLimit)
			}
			submit = append(submit, cfg.IngestHandler.Submit)
			protected.POST("/ingest", submit...)
			protected.GET("/ingest/:id", cfg.IngestHandler.Status)
			protected.POST("/ingest/:id/decision", cfg.IngestHandler.Decide)
			protected.POST("/ingest/:id/cancel", cfg.IngestHandler.Cancel)
		}

		// Realtime (SSE)
		if cfg.EventsHandler != nil {
			protected.GET("/ingest/events", cfg.EventsHandler.Stream)
		}

		// Courses
		if cfg.CourseHandler != nil {
			protected.GET("/courses", cfg.CourseHandler.ListUserCourses)
			protected.GET("/courses/:id", cfg.CourseHandler.GetCourse)
			protected.DELETE("/courses/:id", cfg.CourseHandler.DeleteCourse)
		}
	}

	return r
}
