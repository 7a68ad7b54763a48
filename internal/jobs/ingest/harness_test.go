package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	jobsrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/syllabridge-backend/internal/data/repos/testutil"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/catalog"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/extract"
	"github.com/yungbote/syllabridge-backend/internal/platform/blob"
	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/realtime/bus"
)

const bioSyllabus = `BIO 210: Cell Biology
Spring 2025
Instructor: Rosalind Franklin
Lectures TR 09:30-10:45
2025-02-04: Quiz 1
2025-03-11: Midterm Exam`

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	jobs    jobsrepo.IngestJobRepo
	courses coursesrepo.CourseRepo
	blobs   *blob.LocalStore
	events  *bus.Recorder
	clock   *clock
	orch    *Orchestrator
	sweeper *Sweeper
	owner   ctxutil.Requester
}

type harnessOpts struct {
	cfg        Config
	extractor  extract.TextExtractor
	parser     extract.Parser
	cache      duplicates.Cache
	courseRepo func(coursesrepo.CourseRepo) coursesrepo.CourseRepo
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	courseRepo := coursesrepo.NewCourseRepo(db, log)
	finderRepo := courseRepo
	if opts.courseRepo != nil {
		finderRepo = opts.courseRepo(courseRepo)
	}
	cache := opts.cache
	if cache == nil {
		cache = duplicates.NewMemoryCache()
	}
	extractor := opts.extractor
	if extractor == nil {
		extractor = extract.NewDocumentExtractor(log, nil)
	}
	parser := opts.parser
	if parser == nil {
		parser = extract.NewHeuristicParser()
	}
	cfg := opts.cfg
	if cfg.HardTimeout == 0 {
		cfg.HardTimeout = 5 * time.Second
		cfg.SoftTimeout = 4 * time.Second
	}
	clk := &clock{t: time.Now().UTC().Truncate(time.Second)}
	events := bus.NewRecorder(256)
	jobRepo := jobsrepo.NewIngestJobRepo(db, log)
	p := NewPipeline(Deps{
		Log:       log,
		Jobs:      jobRepo,
		Blobs:     store,
		Extractor: extractor,
		Parser:    parser,
		Finder:    duplicates.NewFinder(log, finderRepo, nil, cache, duplicates.Config{}),
		Creator:   catalog.NewCreator(log, aggregates.NewGormTxRunner(db), courseRepo, nil, cache, catalog.DefaultConfig()),
		Events:    events,
		Now:       clk.Now,
	}, cfg)
	inst := uuid.New()
	return &harness{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		jobs:    jobRepo,
		courses: courseRepo,
		blobs:   store,
		events:  events,
		clock:   clk,
		orch:    NewOrchestrator(p, courseRepo),
		sweeper: NewSweeper(p),
		owner:   ctxutil.Requester{OwnerID: uuid.New(), InstitutionID: &inst},
	}
}

func (h *harness) submit(name, body string, bypass bool) *jobs.IngestJob {
	h.t.Helper()
	job, err := h.orch.Submit(h.ctx, SubmitRequest{Requester: h.owner, Filename: name, Data: []byte(body), BypassDuplicates: bypass})
	if err != nil {
		h.t.Fatalf("Submit: %v", err)
	}
	return job
}

// claim moves this specific job to VALIDATING, like ClaimNextQueued does,
// without touching jobs other tests may have queued.
func (h *harness) claim(job *jobs.IngestJob) *jobs.IngestJob {
	h.t.Helper()
	ok, err := h.jobs.Transition(dbctx.New(h.ctx), job.ID, jobs.StateQueued, jobs.StateValidating, nil, h.clock.Now())
	if err != nil || !ok {
		h.t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	return h.reload(job.ID)
}

func (h *harness) run(job *jobs.IngestJob) *jobs.IngestJob {
	h.t.Helper()
	claimed := h.claim(job)
	if err := h.orch.Pipeline().Run(h.ctx, claimed); err != nil {
		h.t.Fatalf("Run: %v", err)
	}
	return h.reload(job.ID)
}

func (h *harness) reload(id uuid.UUID) *jobs.IngestJob {
	h.t.Helper()
	job, err := h.jobs.GetByID(dbctx.New(h.ctx), id)
	if err != nil {
		h.t.Fatalf("GetByID: %v", err)
	}
	return job
}

func (h *harness) ownedCourses() []*courses.Course {
	h.t.Helper()
	list, err := h.courses.ListByOwner(dbctx.New(h.ctx), h.owner.OwnerID, true)
	if err != nil {
		h.t.Fatalf("ListByOwner: %v", err)
	}
	return list
}

func (h *harness) blobGone(job *jobs.IngestJob) bool {
	_, err := h.blobs.Get(h.ctx, job.BlobKey)
	return errors.Is(err, blob.ErrNotFound)
}

type extractorFunc func(ctx context.Context, data []byte, mimeType string) (string, error)

func (f extractorFunc) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f(ctx, data, mimeType)
}

type parserFunc func(ctx context.Context, text string) (*syllabus.CandidateCourse, error)

func (f parserFunc) Parse(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
	return f(ctx, text)
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, fp duplicates.Fingerprint) ([]syllabus.DuplicateMatch, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Put(ctx context.Context, fp duplicates.Fingerprint, m []syllabus.DuplicateMatch, ttl time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Invalidate(ctx context.Context, owner uuid.UUID) error {
	return errors.New("cache down")
}

type brokenScopeRepo struct {
	coursesrepo.CourseRepo
}

func (brokenScopeRepo) ListInScope(dbc dbctx.Context, scope courses.SearchScope, limit int) ([]*courses.Course, error) {
	return nil, errors.New("connection reset")
}
