package app

import (
	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	jobsrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/syllabridge-backend/internal/jobs/ingest"
	"github.com/yungbote/syllabridge-backend/internal/jobs/worker"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/catalog"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/extract"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/similarity"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/validation"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// Services is the domain graph built on top of Clients.
type Services struct {
	Jobs         jobsrepo.IngestJobRepo
	Courses      coursesrepo.CourseRepo
	Cache        duplicates.Cache
	Creator      *catalog.Creator
	Pipeline     *ingest.Pipeline
	Orchestrator *ingest.Orchestrator
	Sweeper      *ingest.Sweeper
	Worker       *worker.Worker
}

func wireServices(log *logger.Logger, cfg Config, c *Clients) *Services {
	log.Info("Wiring services...")
	jobRepo := jobsrepo.NewIngestJobRepo(c.DB, log)
	courseRepo := coursesrepo.NewCourseRepo(c.DB, log)

	var cache duplicates.Cache = duplicates.NewMemoryCache()
	if c.Redis != nil {
		cache = duplicates.NewRedisCache(c.Redis, "")
	}
	scorer := similarity.NewScorer(cfg.Weights)
	creator := catalog.NewCreator(log, aggregates.NewGormTxRunner(c.DB), courseRepo, scorer, cache, cfg.Catalog)
	pipeline := ingest.NewPipeline(ingest.Deps{
		Log:       log,
		Jobs:      jobRepo,
		Blobs:     c.Blobs,
		Validator: validation.New(cfg.Validation),
		Extractor: extract.NewDocumentExtractor(log, c.OCR),
		Parser:    c.Parser,
		Finder:    duplicates.NewFinder(log, courseRepo, scorer, cache, cfg.Duplicates),
		Creator:   creator,
		Events:    c.Events,
	}, cfg.Pipeline)

	return &Services{
		Jobs:         jobRepo,
		Courses:      courseRepo,
		Cache:        cache,
		Creator:      creator,
		Pipeline:     pipeline,
		Orchestrator: ingest.NewOrchestrator(pipeline, courseRepo),
		Sweeper:      ingest.NewSweeper(pipeline),
		Worker:       worker.NewWorker(log, jobRepo, pipeline, cfg.Workers),
	}
}
