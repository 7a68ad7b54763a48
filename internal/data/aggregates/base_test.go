package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

func TestExecuteObservesSuccessStatus(t *testing.T) {
	hooks := &spyHooks{}
	err := Execute(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks},
		"aggregate.test.success", func(_ dbctx.Context) error { return nil })
	if err != nil {
		t.Fatalf("Execute success: %v", err)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status != "success" {
		t.Fatalf("unexpected operations: %+v", hooks.Operations)
	}
}

func TestExecuteMapsValidationStatus(t *testing.T) {
	hooks := &spyHooks{}
	err := Execute(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks},
		"aggregate.test.validation", func(_ dbctx.Context) error { return ValidationError("bad input") })
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got=%v", err)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status != string(domainagg.CodeValidation) {
		t.Fatalf("unexpected operations: %+v", hooks.Operations)
	}
}

func TestExecuteTracksConflictAndRetryCounters(t *testing.T) {
	t.Run("conflict", func(t *testing.T) {
		hooks := &spyHooks{}
		err := Execute(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks},
			"aggregate.test.conflict", func(_ dbctx.Context) error { return ConflictError("stale version") })
		if !domainagg.IsCode(err, domainagg.CodeConflict) {
			t.Fatalf("expected conflict code, got=%v", err)
		}
		if len(hooks.Conflicts) != 1 || hooks.Conflicts[0] != "aggregate.test.conflict" {
			t.Fatalf("conflict hooks: %+v", hooks.Conflicts)
		}
		if len(hooks.Retries) != 0 {
			t.Fatalf("retry hooks should be empty, got=%+v", hooks.Retries)
		}
	})

	t.Run("retried until success", func(t *testing.T) {
		hooks := &spyHooks{}
		r := &scriptedRunner{errs: []error{RetryableError("busy"), RetryableError("busy")}}
		err := Execute(context.Background(), BaseDeps{Runner: r, Hooks: hooks, Retry: RetryPolicy{Attempts: 3}},
			"aggregate.test.retry", func(_ dbctx.Context) error { return nil })
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(hooks.Retries) != 2 {
			t.Fatalf("retries=%d want 2", len(hooks.Retries))
		}
		if len(hooks.Conflicts) != 0 {
			t.Fatalf("conflict hooks should be empty, got=%+v", hooks.Conflicts)
		}
		if hooks.Operations[0].Status != "success" {
			t.Fatalf("status=%s", hooks.Operations[0].Status)
		}
	})
}

func TestExecuteDefaultsToSingleAttempt(t *testing.T) {
	r := &scriptedRunner{errs: []error{RetryableError("busy")}}
	err := Execute(context.Background(), BaseDeps{Runner: r}, "", func(_ dbctx.Context) error { return nil })
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("expected retryable, got %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("calls=%d want 1", r.calls)
	}
}

func TestAggregateErrorStatus(t *testing.T) {
	if got := aggregateErrorStatus(nil); got != "success" {
		t.Fatalf("nil status: want=success got=%s", got)
	}
	if got := aggregateErrorStatus(ConflictError("x")); got != string(domainagg.CodeConflict) {
		t.Fatalf("conflict status: got=%s", got)
	}
	if got := aggregateErrorStatus(RetryableError("x")); got != string(domainagg.CodeRetryable) {
		t.Fatalf("retry status: got=%s", got)
	}
	if got := aggregateErrorStatus(context.DeadlineExceeded); got != string(domainagg.CodeRetryable) {
		t.Fatalf("deadline status: got=%s", got)
	}
	if got := aggregateErrorStatus(errors.New("boom")); got != string(domainagg.CodeInternal) {
		t.Fatalf("plain status: got=%s", got)
	}
}

type spyTxRunner struct{}

func (spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) {
	h.Conflicts = append(h.Conflicts, name)
}

func (h *spyHooks) IncRetry(name string) {
	h.Retries = append(h.Retries, name)
}

func TestNewHooksWithoutSinksIsNoop(t *testing.T) {
	if _, ok := NewHooks(nil, nil).(noopHooks); !ok {
		t.Fatalf("expected noop hooks without logger or metrics")
	}
	h := NewHooks(logger.Nop(), nil)
	h.ObserveOperation("op", "retryable", time.Millisecond)
	h.IncRetry("op")
	h.IncConflict("op")
}
