package courses

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type CourseRepo interface {
	Create(dbc dbctx.Context, course *courses.Course) error
	UpdateMetadata(dbc dbctx.Context, course *courses.Course) error
	GetForOwner(dbc dbctx.Context, id, ownerID uuid.UUID, withEvents bool) (*courses.Course, error)
	GetByID(dbc dbctx.Context, id uuid.UUID, withEvents bool) (*courses.Course, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, withEvents bool) ([]*courses.Course, error)
	FindByTitle(dbc dbctx.Context, title string, ownerID *uuid.UUID) ([]*courses.Course, error)
	ListInScope(dbc dbctx.Context, scope courses.SearchScope, limit int) ([]*courses.Course, error)
	CountByOwner(dbc dbctx.Context, ownerID uuid.UUID) (int64, error)
	ReplaceEvents(dbc dbctx.Context, courseID uuid.UUID, events []courses.CourseEvent) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Counts(dbc dbctx.Context) (Counts, error)
}

type Counts struct {
	Courses       int64
	Events        int64
	DistinctOwner int64
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func eventsByStart(db *gorm.DB) *gorm.DB {
	return db.Order("start_time ASC")
}

func (r *courseRepo) Create(dbc dbctx.Context, course *courses.Course) error {
	if course == nil || course.OwnerID == uuid.Nil || strings.TrimSpace(course.Title) == "" {
		return aggregates.MapError("courses.create", aggregates.ValidationError("course owner and title are required"))
	}
	if err := dbc.DB(r.db).Omit("Events").Create(course).Error; err != nil {
		return aggregates.MapError("courses.create", err)
	}
	return nil
}

func (r *courseRepo) UpdateMetadata(dbc dbctx.Context, course *courses.Course) error {
	res := dbc.DB(r.db).Model(&courses.Course{}).
		Where("id = ? AND owner_id = ?", course.ID, course.OwnerID).
		Updates(map[string]any{
			"title":       course.Title,
			"course_code": course.CourseCode,
			"instructor":  course.Instructor,
			"term":        course.Term,
			"identifier":  course.Identifier,
			"description": course.Description,
			"meetings":    course.Meetings,
		})
	if res.Error != nil {
		return aggregates.MapError("courses.update_metadata", res.Error)
	}
	if res.RowsAffected == 0 {
		return aggregates.MapError("courses.update_metadata", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *courseRepo) GetForOwner(dbc dbctx.Context, id, ownerID uuid.UUID, withEvents bool) (*courses.Course, error) {
	q := dbc.DB(r.db).Where("id = ? AND owner_id = ?", id, ownerID)
	if withEvents {
		q = q.Preload("Events", eventsByStart)
	}
	var c courses.Course
	if err := q.First(&c).Error; err != nil {
		return nil, aggregates.MapError("courses.get_for_owner", err)
	}
	return &c, nil
}

func (r *courseRepo) GetByID(dbc dbctx.Context, id uuid.UUID, withEvents bool) (*courses.Course, error) {
	q := dbc.DB(r.db).Where("id = ?", id)
	if withEvents {
		q = q.Preload("Events", eventsByStart)
	}
	var c courses.Course
	if err := q.First(&c).Error; err != nil {
		return nil, aggregates.MapError("courses.get", err)
	}
	return &c, nil
}

func (r *courseRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, withEvents bool) ([]*courses.Course, error) {
	q := dbc.DB(r.db).Where("owner_id = ?", ownerID).Order("created_at ASC")
	if withEvents {
		q = q.Preload("Events", eventsByStart)
	}
	var out []*courses.Course
	if err := q.Find(&out).Error; err != nil {
		return nil, aggregates.MapError("courses.list_by_owner", err)
	}
	return out, nil
}

func (r *courseRepo) FindByTitle(dbc dbctx.Context, title string, ownerID *uuid.UUID) ([]*courses.Course, error) {
	q := dbc.DB(r.db).Where("LOWER(title) = ?", strings.ToLower(strings.TrimSpace(title))).
		Preload("Events", eventsByStart).
		Order("created_at ASC")
	if ownerID != nil {
		q = q.Where("owner_id = ?", *ownerID)
	}
	var out []*courses.Course
	if err := q.Find(&out).Error; err != nil {
		return nil, aggregates.MapError("courses.find_by_title", err)
	}
	return out, nil
}

// ListInScope returns only courses the requester may be compared against.
// The restriction lives in SQL so out-of-scope rows never reach the scorer.
func (r *courseRepo) ListInScope(dbc dbctx.Context, scope courses.SearchScope, limit int) ([]*courses.Course, error) {
	if scope.RequesterID == uuid.Nil {
		return nil, aggregates.MapError("courses.list_in_scope", aggregates.ValidationError("requester is required"))
	}
	if limit <= 0 {
		limit = 500
	}
	q := dbc.DB(r.db).Preload("Events", eventsByStart).Limit(limit).Order("updated_at DESC")
	switch scope.Mode {
	case courses.ScopeOwner, "":
		q = q.Where("owner_id = ?", scope.RequesterID)
	case courses.ScopeInstitution:
		if scope.InstitutionID == nil {
			q = q.Where("owner_id = ?", scope.RequesterID)
			break
		}
		q = q.Where("owner_id = ? OR (institution_id = ? AND visibility IN ?)",
			scope.RequesterID, *scope.InstitutionID,
			[]string{string(courses.VisibilityPublic), string(courses.VisibilityInstitution)})
	case courses.ScopePublic:
		q = q.Where("owner_id = ? OR visibility = ?", scope.RequesterID, string(courses.VisibilityPublic))
	default:
		return nil, aggregates.MapError("courses.list_in_scope", aggregates.ValidationError("unknown scope "+string(scope.Mode)))
	}
	var out []*courses.Course
	if err := q.Find(&out).Error; err != nil {
		return nil, aggregates.MapError("courses.list_in_scope", err)
	}
	return out, nil
}

func (r *courseRepo) CountByOwner(dbc dbctx.Context, ownerID uuid.UUID) (int64, error) {
	var n int64
	if err := dbc.DB(r.db).Model(&courses.Course{}).Where("owner_id = ?", ownerID).Count(&n).Error; err != nil {
		return 0, aggregates.MapError("courses.count_by_owner", err)
	}
	return n, nil
}

// ReplaceEvents deletes every event of the course and inserts events. Call it
// inside a transaction; on its own it is not atomic.
func (r *courseRepo) ReplaceEvents(dbc dbctx.Context, courseID uuid.UUID, events []courses.CourseEvent) error {
	db := dbc.DB(r.db)
	if err := db.Where("course_id = ?", courseID).Delete(&courses.CourseEvent{}).Error; err != nil {
		return aggregates.MapError("courses.replace_events", err)
	}
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		events[i].CourseID = courseID
	}
	if err := db.CreateInBatches(&events, 200).Error; err != nil {
		return aggregates.MapError("courses.replace_events", err)
	}
	return nil
}

func (r *courseRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	db := dbc.DB(r.db)
	if err := db.Where("course_id = ?", id).Delete(&courses.CourseEvent{}).Error; err != nil {
		return aggregates.MapError("courses.delete", err)
	}
	res := db.Where("id = ?", id).Delete(&courses.Course{})
	if res.Error != nil {
		return aggregates.MapError("courses.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return aggregates.MapError("courses.delete", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *courseRepo) Counts(dbc dbctx.Context) (Counts, error) {
	var out Counts
	db := dbc.DB(r.db)
	if err := db.Model(&courses.Course{}).Count(&out.Courses).Error; err != nil {
		return out, aggregates.MapError("courses.counts", err)
	}
	if err := db.Model(&courses.CourseEvent{}).Count(&out.Events).Error; err != nil {
		return out, aggregates.MapError("courses.counts", err)
	}
	if err := db.Model(&courses.Course{}).Distinct("owner_id").Count(&out.DistinctOwner).Error; err != nil {
		return out, aggregates.MapError("courses.counts", err)
	}
	return out, nil
}
