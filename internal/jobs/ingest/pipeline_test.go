package ingest

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/extract"
)

func TestPipelineCreatesCourse(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))

	if job.State != jobs.StateCompleted || job.ProgressPercent != 100 {
		t.Fatalf("state=%s progress=%d err=%s", job.State, job.ProgressPercent, job.ErrorMessage)
	}
	if job.ResultCourseID == nil || job.ResultEventCount != 2 {
		t.Fatalf("result = %v / %d", job.ResultCourseID, job.ResultEventCount)
	}
	if job.ContentType != "text/plain" {
		t.Fatalf("content type = %q", job.ContentType)
	}
	owned := h.ownedCourses()
	if len(owned) != 1 || owned[0].ID != *job.ResultCourseID || len(owned[0].Events) != 2 {
		t.Fatalf("owned = %+v", owned)
	}
	if owned[0].CourseCode != "BIO 210" || owned[0].Term != "Spring 2025" {
		t.Fatalf("course metadata = %+v", owned[0])
	}
	if !h.blobGone(job) {
		t.Fatalf("upload should be deleted after completion")
	}

	var states []jobs.State
	for _, ev := range h.events.Drain() {
		if ev.JobID == job.ID {
			states = append(states, ev.State)
		}
	}
	want := []jobs.State{
		jobs.StateQueued, jobs.StateValidating, jobs.StateExtracting, jobs.StateAIParsing,
		jobs.StateCheckingDuplicates, jobs.StateCreatingCourse, jobs.StateCompleted,
	}
	if len(states) != len(want) {
		t.Fatalf("events = %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestPipelineRejectsInvalidUpload(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	job := h.run(h.submit("empty.txt", "", false))
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindValidationFailed) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if !strings.Contains(job.ErrorMessage, "EMPTY_FILE") {
		t.Fatalf("message = %q", job.ErrorMessage)
	}
	if len(h.ownedCourses()) != 0 {
		t.Fatalf("no course may be written for a rejected upload")
	}
	if !h.blobGone(job) {
		t.Fatalf("upload should be deleted after failure")
	}
}

func TestPipelineParksDuplicateAndMergesOnDecision(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	first := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if first.State != jobs.StateCompleted {
		t.Fatalf("first upload: %s %s", first.State, first.ErrorMessage)
	}

	second := h.run(h.submit("bio210-again.txt", bioSyllabus, false))
	if second.State != jobs.StateAwaitingDecision || second.ProgressPercent != 80 {
		t.Fatalf("second upload: state=%s progress=%d", second.State, second.ProgressPercent)
	}
	st := second.ToStatus()
	if len(st.Matches) != 1 || st.Matches[0].AccessLevel != syllabus.AccessOwner || *st.Matches[0].CourseID != *first.ResultCourseID {
		t.Fatalf("matches = %+v", st.Matches)
	}
	if h.blobGone(second) {
		t.Fatalf("parked job keeps its upload until it finishes")
	}

	target := *first.ResultCourseID
	got, err := h.orch.Decide(h.ctx, second.ID, h.owner.OwnerID, syllabus.Decision{Action: syllabus.DecisionMerge, CourseID: &target})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.State != jobs.StateCompleted || got.Result == nil || got.Result.CourseID != target {
		t.Fatalf("status after merge = %+v", got)
	}
	if n := len(h.ownedCourses()); n != 1 {
		t.Fatalf("merge must not add a course, have %d", n)
	}
	if !h.blobGone(second) {
		t.Fatalf("upload should be deleted after the decision completes")
	}
}

func TestPipelineBypassSkipsDuplicateCheck(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.run(h.submit("bio210.txt", bioSyllabus, false))
	job := h.run(h.submit("bio210.txt", bioSyllabus, true))
	if job.State != jobs.StateCompleted {
		t.Fatalf("state = %s (%s)", job.State, job.ErrorMessage)
	}
	if n := len(h.ownedCourses()); n != 2 {
		t.Fatalf("bypass should create a second course, have %d", n)
	}
}

func TestPipelineExtractionTimeout(t *testing.T) {
	blocking := parserFunc(func(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newHarness(t, harnessOpts{
		parser: blocking,
		cfg:    Config{SoftTimeout: 20 * time.Millisecond, HardTimeout: 150 * time.Millisecond},
	})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindExtractionTimeout) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	warnings := job.WarningList()
	if len(warnings) != 1 || warnings[0] != jobs.WarningExtractionSlow {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestPipelineHardTimeoutDoesNotWaitForStubbornParser(t *testing.T) {
	stubborn := parserFunc(func(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
		time.Sleep(600 * time.Millisecond)
		return extract.NewHeuristicParser().Parse(context.Background(), text)
	})
	h := newHarness(t, harnessOpts{
		parser: stubborn,
		cfg:    Config{SoftTimeout: 100 * time.Millisecond, HardTimeout: 200 * time.Millisecond},
	})
	start := time.Now()
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	elapsed := time.Since(start)
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindExtractionTimeout) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if elapsed >= 550*time.Millisecond {
		t.Fatalf("pipeline waited %s for a parser past its deadline", elapsed)
	}
	if got := h.ownedCourses(); len(got) != 0 {
		t.Fatalf("timed out job created %d courses", len(got))
	}
}

func TestRunBoundedRecoversPanics(t *testing.T) {
	err := runBounded(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	if f := jobs.AsFailure(err); f == nil || f.Kind != jobs.KindInternal {
		t.Fatalf("panic surfaced as %v", err)
	}
}

func TestPipelineRetriesRetryableFailures(t *testing.T) {
	var calls atomic.Int32
	flaky := parserFunc(func(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
		if calls.Add(1) == 1 {
			return nil, jobs.Retryable(jobs.KindExtractionFailed, "rate limited", nil)
		}
		return extract.NewHeuristicParser().Parse(ctx, text)
	})
	h := newHarness(t, harnessOpts{parser: flaky})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if job.State != jobs.StateCompleted || job.AttemptCount != 1 {
		t.Fatalf("state=%s attempts=%d err=%s", job.State, job.AttemptCount, job.ErrorMessage)
	}
}

func TestPipelineRetryBudgetIsPerStage(t *testing.T) {
	var extractCalls, parseCalls atomic.Int32
	flakyExtract := extractorFunc(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		if extractCalls.Add(1) == 1 {
			return "", jobs.Retryable(jobs.KindExtractionFailed, "ocr busy", nil)
		}
		return string(data), nil
	})
	flakyParse := parserFunc(func(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
		if parseCalls.Add(1) == 1 {
			return nil, jobs.Retryable(jobs.KindExtractionFailed, "rate limited", nil)
		}
		return extract.NewHeuristicParser().Parse(ctx, text)
	})
	h := newHarness(t, harnessOpts{extractor: flakyExtract, parser: flakyParse, cfg: Config{MaxAttempts: 2}})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if job.State != jobs.StateCompleted {
		t.Fatalf("state=%s kind=%s err=%s", job.State, job.ErrorKind, job.ErrorMessage)
	}
	// attempt_count is the job-wide retry total; each stage still had its own two tries.
	if job.AttemptCount != 2 || extractCalls.Load() != 2 || parseCalls.Load() != 2 {
		t.Fatalf("attempts=%d extract=%d parse=%d", job.AttemptCount, extractCalls.Load(), parseCalls.Load())
	}
}

func TestPipelineGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	down := parserFunc(func(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
		calls.Add(1)
		return nil, jobs.Retryable(jobs.KindExtractionFailed, "upstream 503", nil)
	})
	h := newHarness(t, harnessOpts{parser: down, cfg: Config{MaxAttempts: 3}})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindExtractionFailed) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if calls.Load() != 3 || job.AttemptCount != 2 {
		t.Fatalf("calls=%d attempt_count=%d", calls.Load(), job.AttemptCount)
	}
}

func TestPipelineDegradedCacheStillCompletes(t *testing.T) {
	h := newHarness(t, harnessOpts{cache: failingCache{}})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if job.State != jobs.StateCompleted {
		t.Fatalf("state = %s (%s)", job.State, job.ErrorMessage)
	}
	warnings := job.WarningList()
	if len(warnings) != 1 || warnings[0] != string(jobs.KindDuplicateCheckDegraded) {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestPipelineStoreFailureFailsDuplicateCheck(t *testing.T) {
	h := newHarness(t, harnessOpts{courseRepo: func(r coursesrepo.CourseRepo) coursesrepo.CourseRepo {
		return brokenScopeRepo{CourseRepo: r}
	}})
	job := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindDuplicateCheckFailed) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if len(h.ownedCourses()) != 0 {
		t.Fatalf("no course may be written when matching failed")
	}
}
