package aggregates

import (
	"context"
	"strings"
	"time"

	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// BaseDeps is what an aggregate write needs to run: a transaction runner, a
// retry policy and observability hooks.
type BaseDeps struct {
	Runner TxRunner
	Retry  RetryPolicy
	Hooks  Hooks
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Retry.Attempts < 1 {
		d.Retry.Attempts = 1
	}
	return d
}

// Execute runs fn in a transaction under op, re-running it per deps.Retry,
// and reports the outcome to deps.Hooks. The returned error is mapped.
func Execute(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}

	runner := &countingRunner{inner: deps.Runner, onRetry: func() { deps.Hooks.IncRetry(op) }}
	err := InTxWithRetry(ctx, runner, deps.Retry, op, fn)

	status := "success"
	if err != nil {
		status = aggregateErrorStatus(err)
		if domainagg.IsCode(err, domainagg.CodeConflict) {
			deps.Hooks.IncConflict(op)
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return err
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}

type countingRunner struct {
	inner   TxRunner
	calls   int
	onRetry func()
}

func (r *countingRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r.calls > 0 {
		r.onRetry()
	}
	r.calls++
	return r.inner.InTx(ctx, fn)
}
