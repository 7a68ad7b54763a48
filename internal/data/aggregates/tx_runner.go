package aggregates

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// TxRunner is the transaction boundary shared by write paths.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// RetryPolicy bounds how often a retryable transaction is re-run.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// InTxWithRetry re-runs fn in a fresh transaction while the mapped error is
// retryable or a conflict. The last mapped error is returned.
func InTxWithRetry(ctx context.Context, runner TxRunner, policy RetryPolicy, op string, fn func(dbc dbctx.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && policy.Backoff > 0 {
			wait := policy.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return MapError(op, ctx.Err())
			case <-time.After(wait):
			}
		}
		err := runner.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = MapError(op, err)
		if !domainagg.Transient(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
