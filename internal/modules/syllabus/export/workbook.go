package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
)

const (
	CoursesSheet = "Courses"
	EventsSheet  = "Events"
)

var (
	courseHeaders = []string{"Course ID", "Title", "Course Code", "Instructor", "Term", "Visibility", "Events", "Created At"}
	eventHeaders  = []string{"Course ID", "Course", "Title", "Category", "Start", "End", "Location", "Description"}
)

// Workbook renders courses and their events into a two-sheet xlsx file.
// Courses are expected to have Events preloaded.
func Workbook(list []*courses.Course) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", CoursesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(EventsSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(CoursesSheet)
	f.SetActiveSheet(idx)

	writeRow(f, CoursesSheet, 1, toAny(courseHeaders))
	writeRow(f, EventsSheet, 1, toAny(eventHeaders))

	courseRow, eventRow := 2, 2
	for _, c := range list {
		if c == nil {
			continue
		}
		writeRow(f, CoursesSheet, courseRow, []any{
			c.ID.String(),
			c.Title,
			c.CourseCode,
			c.Instructor,
			c.Term,
			string(c.Visibility),
			len(c.Events),
			c.CreatedAt.UTC().Format("2006-01-02 15:04"),
		})
		courseRow++

		for _, e := range c.Events {
			end := ""
			if e.EndTime != nil {
				end = e.EndTime.UTC().Format("2006-01-02 15:04")
			}
			writeRow(f, EventsSheet, eventRow, []any{
				c.ID.String(),
				c.Title,
				e.Title,
				e.Category,
				e.StartTime.UTC().Format("2006-01-02 15:04"),
				end,
				e.Location,
				truncate(e.Description, 200),
			})
			eventRow++
		}
	}

	_ = f.SetColWidth(CoursesSheet, "A", "A", 38)
	_ = f.SetColWidth(CoursesSheet, "B", "B", 40)
	_ = f.SetColWidth(CoursesSheet, "C", "F", 16)
	_ = f.SetColWidth(EventsSheet, "A", "A", 38)
	_ = f.SetColWidth(EventsSheet, "B", "C", 32)
	_ = f.SetColWidth(EventsSheet, "E", "F", 18)
	_ = f.SetColWidth(EventsSheet, "H", "H", 60)
	return f, nil
}

// Bytes renders the workbook to memory.
func Bytes(list []*courses.Course) ([]byte, error) {
	f, err := Workbook(list)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
