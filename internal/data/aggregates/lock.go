package aggregates

import (
	"crypto/sha256"

	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// LockID folds the parts into a stable int64 advisory-lock key.
func LockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	var id int64
	for i := 0; i < 8; i++ {
		id = (id << 8) | int64(sum[i])
	}
	return id
}

// TryXactLock takes a transaction-scoped advisory lock without waiting.
// It must run inside a transaction. On dialects without advisory locks
// (sqlite) it reports success: sqlite already serializes writers.
func TryXactLock(dbc dbctx.Context, parts ...string) (bool, error) {
	if dbc.Tx == nil {
		return false, ValidationError("advisory lock requires a transaction")
	}
	if dbc.Tx.Dialector.Name() != "postgres" {
		return true, nil
	}
	var acquired bool
	if err := dbc.DB(nil).Raw("SELECT pg_try_advisory_xact_lock(?)", LockID(parts...)).Scan(&acquired).Error; err != nil {
		return false, err
	}
	return acquired, nil
}
