package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	jobsrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/jobs/ingest"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
}

// Runner processes one claimed job.
type Runner interface {
	Run(ctx context.Context, job *jobs.IngestJob) error
	Abort(ctx context.Context, job *jobs.IngestJob, cause error) error
}

type Worker struct {
	log    *logger.Logger
	repo   jobsrepo.IngestJobRepo
	runner Runner
	cfg    Config
	now    func() time.Time
}

func NewWorker(baseLog *logger.Logger, repo jobsrepo.IngestJobRepo, runner Runner, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{
		log:    baseLog.With("component", "JobWorker"),
		repo:   repo,
		runner: runner,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ Runner = (*ingest.Pipeline)(nil)

// Run blocks until ctx is done and every loop has returned.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("job run failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was claimed.
func (w *Worker) RunOnce(ctx context.Context) (ran bool, err error) {
	job, err := w.repo.ClaimNextQueued(dbctx.New(ctx), w.now())
	if err != nil {
		return false, fmt.Errorf("claim next queued: %w", err)
	}
	if job == nil {
		return false, nil
	}
	observability.Current().IncTransition(jobs.StateQueued, jobs.StateValidating)

	defer func() {
		if r := recover(); r != nil {
			observability.Current().IncWorkerPanic()
			w.log.Error("Job handler panic",
				"job_id", job.ID,
				"state", job.State,
				"panic", r,
			)
			ran, err = true, &panicError{Val: r}
			if aerr := w.runner.Abort(ctx, job, err); aerr != nil {
				w.log.Warn("could not record panic on job", "job_id", job.ID, "error", aerr)
			}
		}
	}()
	return true, w.runner.Run(ctx, job)
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
