package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// Delete removes a course and its events. With ownerID set, courses owned by
// someone else read as not found. The owner's duplicate cache is dropped
// after commit.
func (c *Creator) Delete(ctx context.Context, courseID uuid.UUID, ownerID *uuid.UUID) error {
	var owner uuid.UUID
	err := aggregates.Execute(ctx, aggregates.BaseDeps{Runner: c.deps.Runner, Hooks: c.deps.Hooks}, "courses.delete", func(dbc dbctx.Context) error {
		if ownerID != nil {
			course, err := c.courses.GetForOwner(dbc, courseID, *ownerID, false)
			if err != nil {
				return err
			}
			owner = course.OwnerID
		} else {
			course, err := c.courses.GetByID(dbc, courseID, false)
			if err != nil {
				return err
			}
			owner = course.OwnerID
		}
		return c.courses.Delete(dbc, courseID)
	})
	if err != nil {
		return err
	}
	c.log.Info("course deleted", "course_id", courseID, "owner_id", owner)
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, owner); err != nil {
			c.log.Warn("duplicate cache invalidation failed", "error", err, "owner_id", owner)
		}
	}
	return nil
}
