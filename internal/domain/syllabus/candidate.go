package syllabus

import (
	"fmt"
	"strings"
	"time"
)

// EventCategory classifies a calendar entry pulled from a syllabus.
type EventCategory string

const (
	CategoryLecture    EventCategory = "lecture"
	CategoryAssignment EventCategory = "assignment"
	CategoryExam       EventCategory = "exam"
	CategoryQuiz       EventCategory = "quiz"
	CategoryProject    EventCategory = "project"
	CategoryHoliday    EventCategory = "holiday"
	CategoryOther      EventCategory = "other"
)

var validCategories = map[EventCategory]bool{
	CategoryLecture: true, CategoryAssignment: true, CategoryExam: true, CategoryQuiz: true,
	CategoryProject: true, CategoryHoliday: true, CategoryOther: true,
}

func (c EventCategory) Valid() bool { return validCategories[c] }

// Meeting is one recurring class meeting pattern. Times are "HH:MM", 24h.
type Meeting struct {
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Location  string   `json:"location,omitempty"`
}

type CandidateEvent struct {
	Title       string        `json:"title"`
	Category    EventCategory `json:"category"`
	Start       time.Time     `json:"start"`
	End         *time.Time    `json:"end,omitempty"`
	Location    string        `json:"location,omitempty"`
	Description string        `json:"description,omitempty"`
}

// CandidateCourse is the parser's structured view of one syllabus. It is not
// yet part of anyone's catalog.
type CandidateCourse struct {
	Title       string           `json:"title"`
	CourseCode  string           `json:"course_code,omitempty"`
	Instructor  string           `json:"instructor,omitempty"`
	Term        string           `json:"term,omitempty"`
	Identifier  string           `json:"identifier,omitempty"`
	Description string           `json:"description,omitempty"`
	Meetings    []Meeting        `json:"meetings,omitempty"`
	Events      []CandidateEvent `json:"events"`
}

var weekdays = map[string]bool{"MON": true, "TUE": true, "WED": true, "THU": true, "FRI": true, "SAT": true, "SUN": true}

// Validate rejects shapes the rest of the pipeline cannot work with.
func (c *CandidateCourse) Validate() error {
	if c == nil {
		return fmt.Errorf("candidate is nil")
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("candidate title is required")
	}
	for i, m := range c.Meetings {
		if len(m.Days) == 0 {
			return fmt.Errorf("meeting %d has no days", i)
		}
		for _, d := range m.Days {
			if !weekdays[strings.ToUpper(strings.TrimSpace(d))] {
				return fmt.Errorf("meeting %d has invalid day %q", i, d)
			}
		}
		start, err := ParseClock(m.StartTime)
		if err != nil {
			return fmt.Errorf("meeting %d start: %w", i, err)
		}
		end, err := ParseClock(m.EndTime)
		if err != nil {
			return fmt.Errorf("meeting %d end: %w", i, err)
		}
		if end <= start {
			return fmt.Errorf("meeting %d ends before it starts", i)
		}
	}
	for i, e := range c.Events {
		if strings.TrimSpace(e.Title) == "" {
			return fmt.Errorf("event %d title is required", i)
		}
		if !e.Category.Valid() {
			return fmt.Errorf("event %d has invalid category %q", i, e.Category)
		}
		if e.Start.IsZero() {
			return fmt.Errorf("event %d start is required", i)
		}
		if e.End != nil && e.End.Before(e.Start) {
			return fmt.Errorf("event %d ends before it starts", i)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
