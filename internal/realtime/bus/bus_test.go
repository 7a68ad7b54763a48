package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, ev Event) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestFanoutContinuesPastFailures(t *testing.T) {
	bad := &failingPublisher{}
	rec := NewRecorder(4)
	f := NewFanout(logger.Nop(), bad, nil, rec)
	ev := Event{JobID: uuid.New(), OwnerID: uuid.New(), State: jobs.StateCompleted, Progress: 100}
	if err := f.Publish(context.Background(), ev); err == nil {
		t.Fatalf("expected joined error")
	}
	got := rec.Drain()
	if bad.calls != 1 || len(got) != 1 || got[0].JobID != ev.JobID {
		t.Fatalf("bad.calls=%d recorded=%v", bad.calls, got)
	}
}

func TestNamesAndKeys(t *testing.T) {
	owner := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	if got := OwnerChannel(owner); got != "jobs:00000000-0000-0000-0000-000000000001" {
		t.Fatalf("OwnerChannel = %q", got)
	}
	if got := RoutingKey(jobs.StateAwaitingDecision); got != "job.awaiting_decision" {
		t.Fatalf("RoutingKey = %q", got)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	rec := NewRecorder(1)
	_ = rec.Publish(context.Background(), Event{State: jobs.StateQueued})
	_ = rec.Publish(context.Background(), Event{State: jobs.StateValidating})
	if got := rec.Drain(); len(got) != 1 || got[0].State != jobs.StateQueued {
		t.Fatalf("drained %v", got)
	}
}
