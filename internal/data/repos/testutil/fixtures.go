package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, c *courses.Course) *courses.Course {
	tb.Helper()
	if c.Title == "" {
		c.Title = "Seed Course"
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedEvents(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, n int) {
	tb.Helper()
	base := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := &courses.CourseEvent{
			CourseID:  courseID,
			Title:     "Seed event",
			Category:  string(syllabus.CategoryLecture),
			StartTime: base.AddDate(0, 0, 7*i),
		}
		if err := tx.WithContext(ctx).Create(e).Error; err != nil {
			tb.Fatalf("seed event: %v", err)
		}
	}
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, j *jobs.IngestJob) *jobs.IngestJob {
	tb.Helper()
	if j.OwnerID == uuid.Nil {
		j.OwnerID = uuid.New()
	}
	if j.Filename == "" {
		j.Filename = "syllabus.txt"
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}

func MustJSON(tb testing.TB, v any) datatypes.JSON {
	tb.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}
