package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&jobs.IngestJob{},
		&courses.Course{},
		&courses.CourseEvent{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
