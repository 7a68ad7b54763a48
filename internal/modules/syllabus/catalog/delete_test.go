package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

func TestDeleteScopesToOwnerAndInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil)
	owner := Owner{ID: uuid.New()}
	out, err := f.creator.CreateOrMerge(ctx, sampleCandidate(), syllabus.Decision{Action: syllabus.DecisionCreateNew}, owner)
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}

	fp := duplicates.NewFingerprint(sampleCandidate(), courses.SearchScope{RequesterID: owner.ID, Mode: courses.ScopeOwner})
	if err := f.cache.Put(ctx, fp, []syllabus.DuplicateMatch{{Score: 0.9}}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stranger := uuid.New()
	if err := f.creator.Delete(ctx, out.Course.ID, &stranger); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("delete by stranger: %v", err)
	}
	if err := f.creator.Delete(ctx, out.Course.ID, &owner.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.repo.GetByID(dbctx.New(ctx), out.Course.ID, false); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("course still present: %v", err)
	}
	var events int64
	if err := f.db.Model(&courses.CourseEvent{}).Where("course_id = ?", out.Course.ID).Count(&events).Error; err != nil || events != 0 {
		t.Fatalf("events left = %d, %v", events, err)
	}
	if _, hit, _ := f.cache.Get(ctx, fp); hit {
		t.Fatalf("cache entry survived delete")
	}
	if err := f.creator.Delete(ctx, out.Course.ID, nil); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
