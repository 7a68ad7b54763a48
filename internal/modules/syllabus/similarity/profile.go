package similarity

import (
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

// Profile is the subset of a course the scorer compares. Candidates and
// stored courses are both reduced to a Profile first.
type Profile struct {
	Title       string
	CourseCode  string
	Instructor  string
	Identifier  string
	Description string
	Meetings    []syllabus.Meeting
	EventTitles []string
}

func FromCandidate(c *syllabus.CandidateCourse) Profile {
	if c == nil {
		return Profile{}
	}
	p := Profile{
		Title:       c.Title,
		CourseCode:  c.CourseCode,
		Instructor:  c.Instructor,
		Identifier:  c.Identifier,
		Description: c.Description,
		Meetings:    c.Meetings,
	}
	for _, e := range c.Events {
		p.EventTitles = append(p.EventTitles, e.Title)
	}
	return p
}

func FromCourse(c *courses.Course) Profile {
	if c == nil {
		return Profile{}
	}
	p := Profile{
		Title:       c.Title,
		CourseCode:  c.CourseCode,
		Instructor:  c.Instructor,
		Identifier:  c.Identifier,
		Description: c.Description,
		Meetings:    c.MeetingList(),
	}
	for _, e := range c.Events {
		p.EventTitles = append(p.EventTitles, e.Title)
	}
	return p
}
