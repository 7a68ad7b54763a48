package syllabus

import "github.com/google/uuid"

// AccessLevel controls how much of a matched course the requester may see.
type AccessLevel string

const (
	AccessOwner         AccessLevel = "owner"
	AccessPublicLimited AccessLevel = "public-limited"
	AccessNone          AccessLevel = "none"
)

// SimilarCoursePlaceholder stands in for anything identifying a course the
// requester may not see.
const SimilarCoursePlaceholder = "A similar course already exists"

// DuplicateMatch is one scored hit shaped for the requester. Only owner
// matches carry CourseID and detail fields.
type DuplicateMatch struct {
	CourseID    *uuid.UUID  `json:"course_id,omitempty"`
	Score       float64     `json:"score"`
	AccessLevel AccessLevel `json:"access_level"`
	Title       string      `json:"title,omitempty"`
	CourseCode  string      `json:"course_code,omitempty"`
	Term        string      `json:"term,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
}

// DecisionAction is the user's answer to a parked duplicate prompt.
type DecisionAction string

const (
	DecisionMerge     DecisionAction = "merge"
	DecisionCreateNew DecisionAction = "create_new"
	DecisionBypass    DecisionAction = "bypass_duplicates"
	// DecisionAuto is used internally when no duplicates were found.
	DecisionAuto DecisionAction = "auto"
)

type Decision struct {
	Action   DecisionAction `json:"action"`
	CourseID *uuid.UUID     `json:"course_id,omitempty"`
}

func (d Decision) ValidUserChoice() bool {
	switch d.Action {
	case DecisionMerge:
		return d.CourseID != nil && *d.CourseID != uuid.Nil
	case DecisionCreateNew, DecisionBypass:
		return d.CourseID == nil
	default:
		return false
	}
}
