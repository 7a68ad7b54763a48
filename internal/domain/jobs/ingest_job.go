package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

// IngestJob tracks one uploaded syllabus from submission to a catalog course.
type IngestJob struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	OwnerInstitutionID *uuid.UUID `gorm:"type:uuid;column:owner_institution_id" json:"-"`

	State           State `gorm:"column:state;type:varchar(32);not null;index:idx_ingest_jobs_state_updated,priority:1" json:"state"`
	ProgressPercent int   `gorm:"column:progress_percent;not null;default:0" json:"progress_percent"`
	AttemptCount    int   `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`

	ErrorKind    string `gorm:"column:error_kind;type:varchar(48)" json:"error_kind,omitempty"`
	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`

	ResultCourseID   *uuid.UUID `gorm:"type:uuid;column:result_course_id" json:"result_course_id,omitempty"`
	ResultEventCount int        `gorm:"column:result_event_count;not null;default:0" json:"result_event_count"`

	Filename         string `gorm:"column:filename;not null" json:"filename"`
	ContentType      string `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes        int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	BlobKey          string `gorm:"column:blob_key" json:"-"`
	BypassDuplicates bool   `gorm:"column:bypass_duplicates;not null;default:false" json:"bypass_duplicates"`

	Candidate datatypes.JSON `gorm:"column:candidate" json:"-"`
	Matches   datatypes.JSON `gorm:"column:matches" json:"-"`
	Decision  datatypes.JSON `gorm:"column:decision" json:"-"`
	Warnings  datatypes.JSON `gorm:"column:warnings" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index:idx_ingest_jobs_state_updated,priority:2" json:"updated_at"`
}

func (IngestJob) TableName() string { return "ingest_jobs" }

func (j *IngestJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.State == "" {
		j.State = StateQueued
	}
	return nil
}

func (j *IngestJob) CandidateCourse() (*syllabus.CandidateCourse, error) {
	if len(j.Candidate) == 0 {
		return nil, nil
	}
	var c syllabus.CandidateCourse
	if err := json.Unmarshal(j.Candidate, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (j *IngestJob) DuplicateMatches() ([]syllabus.DuplicateMatch, error) {
	if len(j.Matches) == 0 {
		return nil, nil
	}
	var out []syllabus.DuplicateMatch
	if err := json.Unmarshal(j.Matches, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *IngestJob) WarningList() []string {
	if len(j.Warnings) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(j.Warnings, &out); err != nil {
		return nil
	}
	return out
}

// WithWarning returns the warnings column with kind appended once.
func (j *IngestJob) WithWarning(kind string) datatypes.JSON {
	list := j.WarningList()
	for _, w := range list {
		if w == kind {
			return j.Warnings
		}
	}
	list = append(list, kind)
	raw, _ := json.Marshal(list)
	return datatypes.JSON(raw)
}

// Status is the externally visible view of a job.
type Status struct {
	ID              uuid.UUID                 `json:"id"`
	State           State                     `json:"state"`
	ProgressPercent int                       `json:"progress_percent"`
	Error           *StatusError              `json:"error,omitempty"`
	Result          *StatusResult             `json:"result,omitempty"`
	Matches         []syllabus.DuplicateMatch `json:"matches,omitempty"`
	Warnings        []string                  `json:"warnings,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type StatusError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type StatusResult struct {
	CourseID   uuid.UUID `json:"course_id"`
	EventCount int       `json:"event_count"`
}

// ToStatus projects the job. Error is only set for FAILED/STALE and result
// only for COMPLETED, whatever the columns hold.
func (j *IngestJob) ToStatus() Status {
	st := Status{
		ID:              j.ID,
		State:           j.State,
		ProgressPercent: j.ProgressPercent,
		Warnings:        j.WarningList(),
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	switch j.State {
	case StateFailed, StateStale:
		st.Error = &StatusError{Kind: j.ErrorKind, Message: j.ErrorMessage}
	case StateCompleted:
		if j.ResultCourseID != nil {
			st.Result = &StatusResult{CourseID: *j.ResultCourseID, EventCount: j.ResultEventCount}
		}
	case StateAwaitingDecision:
		st.Matches, _ = j.DuplicateMatches()
	}
	return st
}
