package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// InjectedTxRunner wraps a real runner (or none) and injects begin/commit
// failures so rollback paths can be exercised deterministically.
type InjectedTxRunner struct {
	mu sync.Mutex

	Inner aggregates.TxRunner

	FailBegin  error
	FailCommit error
	// FailBeginTimes limits FailBegin to the first N calls when > 0.
	FailBeginTimes int

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	if r.FailBeginTimes > 0 && r.BeginCalls > r.FailBeginTimes {
		failBegin = nil
	}
	failCommit := r.FailCommit
	inner := r.Inner
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		// Returning an error from the body makes the inner runner roll back,
		// which is how a commit failure looks from the caller's side.
		return failCommit
	}
	var err error
	if inner != nil {
		err = inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.RollbackCalls++
		return err
	}
	r.CommitCalls++
	return nil
}
