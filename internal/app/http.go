package app

import (
	"github.com/yungbote/syllabridge-backend/internal/http"
	httpH "github.com/yungbote/syllabridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/syllabridge-backend/internal/http/middleware"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, c *Clients, s *Services) *http.Server {
	log.Info("Wiring HTTP...")
	rc := http.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		CORSOrigins:    cfg.CORSOrigins,
		Metrics:        observability.Current(),
		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWTSecret),
		SubmitLimit: httpMW.RateLimit(log, c.Redis, httpMW.RateLimitConfig{
			Limit:  cfg.SubmitRateLimit,
			Window: cfg.SubmitRateEvery,
		}),
		IngestHandler: httpH.NewIngestHandler(log, s.Orchestrator, cfg.Validation.MaxBytes),
		CourseHandler: httpH.NewCourseHandler(log, s.Courses, s.Creator),
		HealthHandler: httpH.NewHealthHandler(c.DB),
	}
	if c.Bus != nil {
		rc.EventsHandler = httpH.NewEventsHandler(log, c.Bus)
	}
	return http.NewServer(rc)
}
