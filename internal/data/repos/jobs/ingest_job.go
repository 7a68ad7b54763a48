package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

const table = "ingest_jobs"

type IngestJobRepo interface {
	Create(dbc dbctx.Context, job *jobs.IngestJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.IngestJob, error)
	GetForOwner(dbc dbctx.Context, id, ownerID uuid.UUID) (*jobs.IngestJob, error)
	ClaimNextQueued(dbc dbctx.Context, now time.Time) (*jobs.IngestJob, error)
	Transition(dbc dbctx.Context, id uuid.UUID, from, to jobs.State, updates map[string]any, now time.Time) (bool, error)
	UpdateInStage(dbc dbctx.Context, id uuid.UUID, state jobs.State, updates map[string]any, now time.Time) (bool, error)
	ListStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]*jobs.IngestJob, error)
	MarkStale(dbc dbctx.Context, id uuid.UUID, from jobs.State, cutoff time.Time, message string, now time.Time) (bool, error)
	ListUntouched(dbc dbctx.Context, states []jobs.State, cutoff time.Time, limit int) ([]*jobs.IngestJob, error)
	FailUntouched(dbc dbctx.Context, id uuid.UUID, from jobs.State, cutoff time.Time, kind jobs.ErrorKind, message string, now time.Time) (bool, error)
	List(dbc dbctx.Context, filter ListFilter) ([]*jobs.IngestJob, error)
	CountByState(dbc dbctx.Context) (map[jobs.State]int64, error)
}

type ListFilter struct {
	OwnerID *uuid.UUID
	State   jobs.State
	Limit   int
}

type ingestJobRepo struct {
	db    *gorm.DB
	guard aggregates.CASGuard
	log   *logger.Logger
}

func NewIngestJobRepo(db *gorm.DB, baseLog *logger.Logger) IngestJobRepo {
	return &ingestJobRepo{
		db:    db,
		guard: aggregates.NewCASGuard(db),
		log:   baseLog.With("repo", "IngestJobRepo"),
	}
}

func (r *ingestJobRepo) Create(dbc dbctx.Context, job *jobs.IngestJob) error {
	if job == nil || job.OwnerID == uuid.Nil {
		return aggregates.MapError("jobs.create", aggregates.ValidationError("job with owner is required"))
	}
	if job.State == "" {
		job.State = jobs.StateQueued
	}
	if job.State != jobs.StateQueued {
		return aggregates.MapError("jobs.create", aggregates.ValidationError("jobs are created QUEUED"))
	}
	if err := dbc.DB(r.db).Create(job).Error; err != nil {
		return aggregates.MapError("jobs.create", err)
	}
	return nil
}

func (r *ingestJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.IngestJob, error) {
	var job jobs.IngestJob
	if err := dbc.DB(r.db).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, aggregates.MapError("jobs.get", err)
	}
	return &job, nil
}

// GetForOwner reports not_found for jobs of other owners so job ids cannot
// be enumerated.
func (r *ingestJobRepo) GetForOwner(dbc dbctx.Context, id, ownerID uuid.UUID) (*jobs.IngestJob, error) {
	var job jobs.IngestJob
	if err := dbc.DB(r.db).Where("id = ? AND owner_id = ?", id, ownerID).First(&job).Error; err != nil {
		return nil, aggregates.MapError("jobs.get_for_owner", err)
	}
	return &job, nil
}

// ClaimNextQueued moves the oldest QUEUED job to VALIDATING. Candidates are
// scanned with SKIP LOCKED and the move itself is a CAS, so two workers can
// never claim the same job. Returns nil when nothing is queued.
func (r *ingestJobRepo) ClaimNextQueued(dbc dbctx.Context, now time.Time) (*jobs.IngestJob, error) {
	var claimed *jobs.IngestJob
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var candidates []*jobs.IngestJob
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ?", jobs.StateQueued).
			Order("created_at ASC").
			Limit(5).
			Find(&candidates).Error; err != nil {
			return err
		}
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		for _, job := range candidates {
			ok, err := r.Transition(inner, job.ID, jobs.StateQueued, jobs.StateValidating, nil, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			job.State = jobs.StateValidating
			job.ProgressPercent = jobs.StageProgress(jobs.StateValidating)
			job.UpdatedAt = now
			claimed = job
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError("jobs.claim", err)
	}
	return claimed, nil
}

// Transition is the single write path for state changes: it checks the edge
// against the lifecycle DAG, then CASes on the expected prior state. It
// returns false when another writer moved the job first.
func (r *ingestJobRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to jobs.State, updates map[string]any, now time.Time) (bool, error) {
	if !jobs.CanTransition(from, to) {
		return false, aggregates.MapError("jobs.transition", aggregates.ValidationError(fmt.Sprintf("illegal transition %s -> %s", from, to)))
	}
	set := make(map[string]any, len(updates)+3)
	for k, v := range updates {
		set[k] = v
	}
	set["state"] = string(to)
	set["updated_at"] = now
	if p := jobs.StageProgress(to); p >= 0 {
		set["progress_percent"] = monotonicProgress(p)
	}
	ok, err := r.guard.UpdateByStatus(dbc, table, "state", id, []string{string(from)}, set)
	if err != nil {
		return false, aggregates.MapError("jobs.transition", err)
	}
	if !ok {
		r.log.Debug("transition lost", "job_id", id, "from", from, "to", to)
	}
	return ok, nil
}

// UpdateInStage writes fields without leaving state (progress, attempt
// bumps, warnings). It still CASes on state and advances updated_at.
func (r *ingestJobRepo) UpdateInStage(dbc dbctx.Context, id uuid.UUID, state jobs.State, updates map[string]any, now time.Time) (bool, error) {
	if state.Terminal() {
		return false, aggregates.MapError("jobs.update_in_stage", aggregates.ValidationError("terminal jobs are immutable"))
	}
	set := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		if k == "state" {
			continue
		}
		if k == "progress_percent" {
			if p, ok := v.(int); ok {
				v = monotonicProgress(p)
			}
		}
		set[k] = v
	}
	set["updated_at"] = now
	ok, err := r.guard.UpdateByStatus(dbc, table, "state", id, []string{string(state)}, set)
	if err != nil {
		return false, aggregates.MapError("jobs.update_in_stage", err)
	}
	return ok, nil
}

func (r *ingestJobRepo) ListStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]*jobs.IngestJob, error) {
	return r.ListUntouched(dbc, jobs.InFlightStates, cutoff, limit)
}

// ListUntouched returns jobs in one of states whose updated_at is before
// cutoff, oldest first.
func (r *ingestJobRepo) ListUntouched(dbc dbctx.Context, states []jobs.State, cutoff time.Time, limit int) ([]*jobs.IngestJob, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*jobs.IngestJob
	if err := dbc.DB(r.db).
		Where("state IN ? AND updated_at < ?", jobs.StateStrings(states), cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, aggregates.MapError("jobs.list_untouched", err)
	}
	return out, nil
}

// MarkStale CASes on both the observed state and the age cutoff, so a worker
// that advanced the job after the scan wins and the sweep backs off.
func (r *ingestJobRepo) MarkStale(dbc dbctx.Context, id uuid.UUID, from jobs.State, cutoff time.Time, message string, now time.Time) (bool, error) {
	return r.endUntouched("jobs.mark_stale", dbc, id, from, jobs.StateStale, cutoff, jobs.KindStale, message, now)
}

// FailUntouched moves a job that nobody has written since cutoff to FAILED,
// under the same guard as MarkStale.
func (r *ingestJobRepo) FailUntouched(dbc dbctx.Context, id uuid.UUID, from jobs.State, cutoff time.Time, kind jobs.ErrorKind, message string, now time.Time) (bool, error) {
	return r.endUntouched("jobs.fail_untouched", dbc, id, from, jobs.StateFailed, cutoff, kind, message, now)
}

func (r *ingestJobRepo) endUntouched(op string, dbc dbctx.Context, id uuid.UUID, from, to jobs.State, cutoff time.Time, kind jobs.ErrorKind, message string, now time.Time) (bool, error) {
	if !jobs.CanTransition(from, to) {
		return false, aggregates.MapError(op, aggregates.ValidationError(fmt.Sprintf("%s cannot go to %s", from, to)))
	}
	ok, err := r.guard.Update(dbc, table, id, aggregates.Guard{
		Column:    "state",
		Allowed:   []string{string(from)},
		Extra:     "updated_at < ?",
		ExtraArgs: []any{cutoff},
	}, map[string]any{
		"state":         string(to),
		"error_kind":    string(kind),
		"error_message": message,
		"updated_at":    now,
	})
	if err != nil {
		return false, aggregates.MapError(op, err)
	}
	return ok, nil
}

func (r *ingestJobRepo) List(dbc dbctx.Context, filter ListFilter) ([]*jobs.IngestJob, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := dbc.DB(r.db).Order("created_at DESC").Limit(limit)
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", string(filter.State))
	}
	var out []*jobs.IngestJob
	if err := q.Find(&out).Error; err != nil {
		return nil, aggregates.MapError("jobs.list", err)
	}
	return out, nil
}

func (r *ingestJobRepo) CountByState(dbc dbctx.Context) (map[jobs.State]int64, error) {
	var rows []struct {
		State string
		Count int64
	}
	if err := dbc.DB(r.db).Model(&jobs.IngestJob{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, aggregates.MapError("jobs.count_by_state", err)
	}
	out := make(map[jobs.State]int64, len(rows))
	for _, row := range rows {
		out[jobs.State(row.State)] = row.Count
	}
	return out, nil
}

func monotonicProgress(p int) any {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return gorm.Expr("CASE WHEN progress_percent < ? THEN ? ELSE progress_percent END", p, p)
}

// IsNotFound reports whether err is a missing-job error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || domainagg.IsCode(err, domainagg.CodeNotFound)
}
