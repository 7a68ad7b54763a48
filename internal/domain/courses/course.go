package courses

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

// Visibility governs who besides the owner may learn a course exists.
type Visibility string

const (
	VisibilityPrivate     Visibility = "private"
	VisibilityInstitution Visibility = "institution"
	VisibilityPublic      Visibility = "public"
)

const (
	CourseTypeSyllabus = "syllabus"
	CourseTypeManual   = "manual"

	EventSourceSyllabus = "syllabus_upload"
)

type Course struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	InstitutionID *uuid.UUID     `gorm:"type:uuid;index" json:"institution_id,omitempty"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	CourseCode    string         `gorm:"column:course_code" json:"course_code,omitempty"`
	Instructor    string         `gorm:"column:instructor" json:"instructor,omitempty"`
	Term          string         `gorm:"column:term;index" json:"term,omitempty"`
	Identifier    string         `gorm:"column:identifier" json:"identifier,omitempty"`
	Description   string         `gorm:"column:description" json:"description,omitempty"`
	Meetings      datatypes.JSON `gorm:"column:meetings" json:"meetings,omitempty"`
	Visibility    Visibility     `gorm:"column:visibility;type:varchar(16);not null;default:'private';index" json:"visibility"`
	CourseType    string         `gorm:"column:course_type;type:varchar(16);not null;default:'syllabus'" json:"course_type"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`

	Events []CourseEvent `gorm:"foreignKey:CourseID" json:"events,omitempty"`
}

func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Visibility == "" {
		c.Visibility = VisibilityPrivate
	}
	if c.CourseType == "" {
		c.CourseType = CourseTypeSyllabus
	}
	return nil
}

func (c *Course) MeetingList() []syllabus.Meeting {
	if len(c.Meetings) == 0 {
		return nil
	}
	var out []syllabus.Meeting
	if err := json.Unmarshal(c.Meetings, &out); err != nil {
		return nil
	}
	return out
}

type CourseEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_course_events_course_start,priority:1" json:"course_id"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Description string     `gorm:"column:description" json:"description,omitempty"`
	Category    string     `gorm:"column:category;type:varchar(16);not null" json:"category"`
	StartTime   time.Time  `gorm:"column:start_time;not null;index:idx_course_events_course_start,priority:2" json:"start_time"`
	EndTime     *time.Time `gorm:"column:end_time" json:"end_time,omitempty"`
	Location    string     `gorm:"column:location" json:"location,omitempty"`
	EventSource string     `gorm:"column:event_source;type:varchar(32);not null" json:"event_source"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

func (CourseEvent) TableName() string { return "course_events" }

func (e *CourseEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.EventSource == "" {
		e.EventSource = EventSourceSyllabus
	}
	return nil
}

// ApplyCandidate overwrites the course's descriptive metadata from c.
// Ownership, visibility and identity are left alone.
func (c *Course) ApplyCandidate(cand *syllabus.CandidateCourse) {
	c.Title = cand.Title
	c.CourseCode = cand.CourseCode
	c.Instructor = cand.Instructor
	c.Term = cand.Term
	c.Identifier = cand.Identifier
	c.Description = cand.Description
	raw, _ := json.Marshal(cand.Meetings)
	c.Meetings = datatypes.JSON(raw)
}

// EventsFromCandidate builds fresh event rows for courseID.
func EventsFromCandidate(courseID uuid.UUID, cand *syllabus.CandidateCourse) []CourseEvent {
	out := make([]CourseEvent, 0, len(cand.Events))
	for _, e := range cand.Events {
		out = append(out, CourseEvent{
			CourseID:    courseID,
			Title:       e.Title,
			Description: e.Description,
			Category:    string(e.Category),
			StartTime:   e.Start,
			EndTime:     e.End,
			Location:    e.Location,
			EventSource: EventSourceSyllabus,
		})
	}
	return out
}
