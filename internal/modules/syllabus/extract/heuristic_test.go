package extract

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

const sampleSyllabus = `CS 101: Introduction to Computer Science
Fall 2024 - CRN: 48213
Instructor: Ada Lovelace
Room: Hall 210
Lectures MWF 10:00-10:50
Lab TTh 1:00-2:15pm
Description: Programming fundamentals and problem solving.

2024-09-04: First lecture
2024-09-13: Quiz 1
2024-10-15: Midterm Exam
2024-11-27 - 2024-11-29: Thanksgiving Break
12/06/2024: Final project due
2024-12-01: Office visit`

func TestHeuristicParse(t *testing.T) {
	cand, err := NewHeuristicParser().Parse(context.Background(), sampleSyllabus)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cand.Title != "CS 101: Introduction to Computer Science" || cand.CourseCode != "CS 101" {
		t.Fatalf("title=%q code=%q", cand.Title, cand.CourseCode)
	}
	if cand.Term != "Fall 2024" || cand.Identifier != "48213" || cand.Instructor != "Ada Lovelace" {
		t.Fatalf("term=%q identifier=%q instructor=%q", cand.Term, cand.Identifier, cand.Instructor)
	}
	if cand.Description != "Programming fundamentals and problem solving." {
		t.Fatalf("description=%q", cand.Description)
	}
	if len(cand.Meetings) != 2 {
		t.Fatalf("meetings = %+v", cand.Meetings)
	}
	mwf := cand.Meetings[0]
	if len(mwf.Days) != 3 || mwf.Days[0] != "MON" || mwf.Days[2] != "FRI" || mwf.StartTime != "10:00" || mwf.EndTime != "10:50" {
		t.Fatalf("mwf = %+v", mwf)
	}
	if mwf.Location != "Hall 210" {
		t.Fatalf("location = %q", mwf.Location)
	}
	lab := cand.Meetings[1]
	if len(lab.Days) != 2 || lab.Days[1] != "THU" || lab.StartTime != "13:00" || lab.EndTime != "14:15" {
		t.Fatalf("lab = %+v", lab)
	}

	want := []struct {
		title    string
		category syllabus.EventCategory
	}{
		{"First lecture", syllabus.CategoryLecture},
		{"Quiz 1", syllabus.CategoryQuiz},
		{"Midterm Exam", syllabus.CategoryExam},
		{"Thanksgiving Break", syllabus.CategoryHoliday},
		{"Final project due", syllabus.CategoryExam},
		{"Office visit", syllabus.CategoryOther},
	}
	if len(cand.Events) != len(want) {
		t.Fatalf("events = %+v", cand.Events)
	}
	for i, w := range want {
		if cand.Events[i].Title != w.title || cand.Events[i].Category != w.category {
			t.Fatalf("event %d = %q/%s, want %q/%s", i, cand.Events[i].Title, cand.Events[i].Category, w.title, w.category)
		}
	}
	brk := cand.Events[3]
	if brk.End == nil || !brk.End.Equal(time.Date(2024, 11, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("break end = %v", brk.End)
	}
	if !cand.Events[4].Start.Equal(time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("slash date = %v", cand.Events[4].Start)
	}
}

func TestHeuristicEmptyInput(t *testing.T) {
	_, err := NewHeuristicParser().Parse(context.Background(), "  \n ")
	if f := jobs.AsFailure(err); f == nil || f.Kind != jobs.KindExtractionFailed || f.Retryable {
		t.Fatalf("want permanent EXTRACTION_FAILED, got %v", err)
	}
}

func TestHeuristicHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHeuristicParser().Parse(ctx, sampleSyllabus); err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestParseDaysAndClock(t *testing.T) {
	cases := map[string]int{"MWF": 3, "TTh": 2, "TR": 2, "Mon/Wed": 2, "Tuesday and Thursday": 2}
	for raw, n := range cases {
		if got := parseDays(raw); len(got) != n {
			t.Fatalf("parseDays(%q) = %v", raw, got)
		}
	}
	if m, ok := meetingFrom("MW", "11:00", "", "12:15", "pm"); !ok || m.StartTime != "11:00" || m.EndTime != "12:15" {
		t.Fatalf("11:00-12:15pm = %+v ok=%v", m, ok)
	}
	if _, ok := meetingFrom("MW", "14:00", "", "13:00", ""); ok {
		t.Fatalf("end before start accepted")
	}
}
