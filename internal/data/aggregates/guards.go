package aggregates

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// CASGuard performs compare-and-set row updates: the write only lands when the
// guarded column still holds one of the expected values.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

// Guard describes the precondition of a CAS update. Extra is an optional SQL
// fragment ANDed onto the id/column match.
type Guard struct {
	Column    string
	Allowed   []string
	Extra     string
	ExtraArgs []any
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx == nil && g.db == nil {
		return nil, ValidationError("missing db transaction context")
	}
	return dbc.DB(g.db), nil
}

func (g CASGuard) Update(dbc dbctx.Context, table string, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	column := strings.TrimSpace(guard.Column)
	if table == "" || id == uuid.Nil || column == "" {
		return false, ValidationError("table, id and guard column are required")
	}
	if len(guard.Allowed) == 0 {
		return false, ValidationError("guard must allow at least one value")
	}
	if len(updates) == 0 {
		return false, ValidationError("updates must not be empty")
	}
	q := db.Table(table).Where("id = ?", id).Where(column+" IN ?", guard.Allowed)
	if extra := strings.TrimSpace(guard.Extra); extra != "" {
		q = q.Where(extra, guard.ExtraArgs...)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateByStatus is the common single-column form of Update.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, table, column string, id uuid.UUID, allowed []string, updates map[string]any) (bool, error) {
	return g.Update(dbc, table, id, Guard{Column: column, Allowed: allowed}, updates)
}

// RequireCASSuccess converts a lost compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}

func RequireStatusAllowed(current string, allowed ...string) error {
	current = strings.TrimSpace(current)
	if len(allowed) == 0 {
		return ValidationError("allowed statuses cannot be empty")
	}
	for _, s := range allowed {
		if strings.EqualFold(current, strings.TrimSpace(s)) {
			return nil
		}
	}
	return ConflictError("status transition not allowed")
}
