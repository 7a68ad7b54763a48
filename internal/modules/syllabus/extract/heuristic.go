package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

var (
	courseCodeRe = regexp.MustCompile(`\b([A-Z]{2,5})\s*[- ]?\s*(\d{3,4}[A-Z]?)\b`)
	termRe       = regexp.MustCompile(`(?i)\b(fall|spring|summer|winter)\s+(\d{4})\b`)
	identifierRe = regexp.MustCompile(`(?i)\b(?:crn|ref(?:erence)?\s*(?:no\.?|number|#)|section)\s*[:#]?\s*([A-Za-z0-9-]*\d[A-Za-z0-9-]*)`)
	letterDaysRe = regexp.MustCompile(`^(?:[MTWRFSU]|Th)+$`)
	labeledRe    = regexp.MustCompile(`(?i)^(instructor|professor|lecturer|teacher|description|course description|location|room)\s*:\s*(.+)$`)
	meetingRe    = regexp.MustCompile(`\b([MTWRFSU]{1,5}|TTh|MWTh|(?i:(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?(?:\s*(?:,|/|&|and)\s*(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?)*))\s+(\d{1,2}:\d{2})\s*((?i:am|pm))?\s*(?:-|–|to)\s*(\d{1,2}:\d{2})\s*((?i:am|pm))?`)
	datedLineRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})(?:\s*(?:-|–|to)\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}))?\s*[:\-–|]?\s*(.+)$`)
)

var dayLetters = map[byte]string{'M': "MON", 'T': "TUE", 'W': "WED", 'R': "THU", 'F': "FRI", 'S': "SAT", 'U': "SUN"}

var categoryKeywords = []struct {
	category syllabus.EventCategory
	words    []string
}{
	{syllabus.CategoryExam, []string{"exam", "midterm", "final"}},
	{syllabus.CategoryQuiz, []string{"quiz"}},
	{syllabus.CategoryProject, []string{"project", "presentation"}},
	{syllabus.CategoryAssignment, []string{"assignment", "homework", "hw", "problem set", "essay", "paper", "due", "lab report"}},
	{syllabus.CategoryHoliday, []string{"holiday", "break", "no class", "recess", "thanksgiving"}},
	{syllabus.CategoryLecture, []string{"lecture", "class", "lab", "seminar", "discussion"}},
}

// HeuristicParser reads line-oriented syllabi without an AI backend. It
// recognises labelled fields, meeting patterns like "MWF 10:00-10:50" and
// dated schedule lines like "2024-09-10: Quiz 1".
type HeuristicParser struct{}

func NewHeuristicParser() *HeuristicParser { return &HeuristicParser{} }

func (p *HeuristicParser) Parse(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cand := &syllabus.CandidateCourse{Events: []syllabus.CandidateEvent{}}
	var location string
	for _, line := range strings.Split(normalizeLines(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cand.Title == "" {
			cand.Title = line
			if m := courseCodeRe.FindStringSubmatch(line); m != nil {
				cand.CourseCode = m[1] + " " + m[2]
			}
			continue
		}
		if m := labeledRe.FindStringSubmatch(line); m != nil {
			val := strings.TrimSpace(m[2])
			switch strings.ToLower(m[1]) {
			case "instructor", "professor", "lecturer", "teacher":
				if cand.Instructor == "" {
					cand.Instructor = val
				}
			case "description", "course description":
				cand.Description = strings.TrimSpace(cand.Description + " " + val)
			case "location", "room":
				location = val
			}
			continue
		}
		if m := datedLineRe.FindStringSubmatch(line); m != nil {
			if ev, ok := eventFromLine(m[1], m[2], m[3]); ok {
				cand.Events = append(cand.Events, ev)
				continue
			}
		}
		if cand.Term == "" {
			if m := termRe.FindStringSubmatch(line); m != nil {
				cand.Term = strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:]) + " " + m[2]
			}
		}
		idMatch := identifierRe.FindStringSubmatch(line)
		if cand.Identifier == "" && idMatch != nil {
			cand.Identifier = idMatch[1]
		}
		if cand.CourseCode == "" && idMatch == nil {
			if m := courseCodeRe.FindStringSubmatch(line); m != nil {
				cand.CourseCode = m[1] + " " + m[2]
			}
		}
		for _, m := range meetingRe.FindAllStringSubmatch(line, -1) {
			if mt, ok := meetingFrom(m[1], m[2], m[3], m[4], m[5]); ok {
				cand.Meetings = append(cand.Meetings, mt)
			}
		}
	}
	if location != "" {
		for i := range cand.Meetings {
			cand.Meetings[i].Location = location
		}
	}
	if cand.Term == "" {
		if m := termRe.FindStringSubmatch(cand.Title); m != nil {
			cand.Term = strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:]) + " " + m[2]
		}
	}
	if err := cand.Validate(); err != nil {
		return nil, jobs.Fail(jobs.KindExtractionFailed, "parse syllabus", err)
	}
	return cand, nil
}

func eventFromLine(startRaw, endRaw, title string) (syllabus.CandidateEvent, bool) {
	start, ok := parseDate(startRaw)
	if !ok {
		return syllabus.CandidateEvent{}, false
	}
	title = strings.TrimSpace(strings.TrimLeft(title, ":-–| "))
	if title == "" {
		return syllabus.CandidateEvent{}, false
	}
	ev := syllabus.CandidateEvent{Title: title, Category: Categorize(title), Start: start}
	if endRaw != "" {
		if end, ok := parseDate(endRaw); ok && !end.Before(start) {
			ev.End = &end
		}
	}
	return ev, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "1/2/2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Categorize maps an event title to a category by keyword, first match wins.
func Categorize(title string) syllabus.EventCategory {
	lower := " " + strings.ToLower(title) + " "
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if containsWord(lower, w) {
				return ck.category
			}
		}
	}
	return syllabus.CategoryOther
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := haystack[i-1]
		after := byte(' ')
		if j := i + len(word); j < len(haystack) {
			after = haystack[j]
		}
		if !isLetter(before) && !isLetter(after) {
			return true
		}
		idx = i + 1
	}
}

func isLetter(b byte) bool { return b >= 'a' && b <= 'z' }

func meetingFrom(daysRaw, startRaw, startSuffix, endRaw, endSuffix string) (syllabus.Meeting, bool) {
	days := parseDays(daysRaw)
	if len(days) == 0 {
		return syllabus.Meeting{}, false
	}
	endMin, ok := clockMinutes(endRaw, strings.ToLower(endSuffix))
	if !ok {
		return syllabus.Meeting{}, false
	}
	startSuffix = strings.ToLower(startSuffix)
	if startSuffix == "" && strings.EqualFold(endSuffix, "pm") {
		// "1:00-2:15pm": start inherits pm unless that would put it after the end.
		if pm, ok := clockMinutes(startRaw, "pm"); ok && pm < endMin {
			startSuffix = "pm"
		} else {
			startSuffix = "am"
		}
	}
	startMin, ok := clockMinutes(startRaw, startSuffix)
	if !ok || endMin <= startMin {
		return syllabus.Meeting{}, false
	}
	return syllabus.Meeting{Days: days, StartTime: formatClock(startMin), EndTime: formatClock(endMin)}, true
}

func parseDays(raw string) []string {
	raw = strings.TrimSpace(raw)
	seen := map[string]bool{}
	var out []string
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	if !letterDaysRe.MatchString(raw) {
		for _, part := range strings.FieldsFunc(strings.ToUpper(raw), func(r rune) bool {
			return r == ',' || r == '/' || r == '&' || r == ' ' || r == '.'
		}) {
			if part == "AND" || len(part) < 3 {
				continue
			}
			if d := part[:3]; weekday(d) {
				add(d)
			}
		}
		return out
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == 'T' && i+1 < len(raw) && raw[i+1] == 'h' {
			add("THU")
			i++
			continue
		}
		add(dayLetters[raw[i]])
	}
	return out
}

func weekday(d string) bool {
	switch d {
	case "MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN":
		return true
	}
	return false
}

func clockMinutes(raw, suffix string) (int, bool) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || m > 59 {
		return 0, false
	}
	switch suffix {
	case "am":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h != 12 {
			h += 12
		}
	default:
		if h > 23 {
			return 0, false
		}
	}
	return h*60 + m, true
}

func formatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
