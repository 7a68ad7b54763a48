package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// Sweeper reclassifies in-flight jobs nobody has touched for StaleAfter.
// Each mark is a CAS on the observed state and age, so it never overrides a
// worker that made progress after the scan.
type Sweeper struct {
	pipeline *Pipeline
}

func NewSweeper(p *Pipeline) *Sweeper { return &Sweeper{pipeline: p} }

// Sweep runs one pass and returns how many jobs it ended: in-flight jobs
// marked STALE plus abandoned course writes marked FAILED.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	p := s.pipeline
	now := p.now()
	cutoff := now.Add(-p.cfg.StaleAfter)
	dbc := dbctx.New(ctx)
	candidates, err := p.deps.Jobs.ListStale(dbc, cutoff, p.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, job := range candidates {
		msg := fmt.Sprintf("no progress in %s since %s (state %s)", p.cfg.StaleAfter, job.UpdatedAt.UTC().Format(time.RFC3339), job.State)
		ok, err := p.deps.Jobs.MarkStale(dbc, job.ID, job.State, cutoff, msg, now)
		if err != nil {
			return marked, err
		}
		if !ok {
			continue
		}
		observability.Current().IncTransition(job.State, jobs.StateStale)
		job.State = jobs.StateStale
		job.ErrorKind = string(jobs.KindStale)
		job.ErrorMessage = msg
		job.UpdatedAt = now
		p.publish(ctx, job)
		p.release(ctx, job)
		marked++
	}
	if marked > 0 {
		p.log.Warn("stale jobs swept", "count", marked, "cutoff", cutoff.Format(time.RFC3339))
	}
	failed, err := s.failAbandonedWrites(ctx, now)
	return marked + failed, err
}

// failAbandonedWrites fails jobs whose course write outlived any live
// writer. CREATING_COURSE is never STALE; the write may or may not have
// committed, so the job ends FAILED and the message says so.
func (s *Sweeper) failAbandonedWrites(ctx context.Context, now time.Time) (int, error) {
	p := s.pipeline
	cutoff := now.Add(-p.cfg.AbandonAfter)
	dbc := dbctx.New(ctx)
	candidates, err := p.deps.Jobs.ListUntouched(dbc, []jobs.State{jobs.StateCreatingCourse}, cutoff, p.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, job := range candidates {
		msg := fmt.Sprintf("course write interrupted, no progress since %s; check your courses before resubmitting", job.UpdatedAt.UTC().Format(time.RFC3339))
		ok, err := p.deps.Jobs.FailUntouched(dbc, job.ID, jobs.StateCreatingCourse, cutoff, jobs.KindInternal, msg, now)
		if err != nil {
			return failed, err
		}
		if !ok {
			continue
		}
		observability.Current().IncTransition(jobs.StateCreatingCourse, jobs.StateFailed)
		observability.Current().IncFailure(jobs.KindInternal)
		job.State = jobs.StateFailed
		job.ErrorKind = string(jobs.KindInternal)
		job.ErrorMessage = msg
		job.UpdatedAt = now
		p.publish(ctx, job)
		p.release(ctx, job)
		failed++
	}
	if failed > 0 {
		p.log.Warn("abandoned course writes failed", "count", failed, "cutoff", cutoff.Format(time.RFC3339))
	}
	return failed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.pipeline.cfg.StaleAfter / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.pipeline.log.Warn("stale sweep failed", "error", err)
			}
		}
	}
}
