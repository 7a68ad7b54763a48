package jobs

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

func TestToStatus_ErrorOnlyWhenFailed(t *testing.T) {
	j := &IngestJob{ID: uuid.New(), State: StateExtracting, ErrorKind: "LEFTOVER", ErrorMessage: "x"}
	if j.ToStatus().Error != nil {
		t.Fatalf("in-flight job must not expose an error")
	}
	j.State = StateFailed
	st := j.ToStatus()
	if st.Error == nil || st.Error.Kind != "LEFTOVER" {
		t.Fatalf("failed job must expose its error: %+v", st.Error)
	}
	if st.Result != nil {
		t.Fatalf("failed job must not expose a result")
	}
}

func TestToStatus_ResultOnlyWhenCompleted(t *testing.T) {
	cid := uuid.New()
	j := &IngestJob{ID: uuid.New(), State: StateCompleted, ResultCourseID: &cid, ResultEventCount: 4}
	st := j.ToStatus()
	if st.Result == nil || st.Result.EventCount != 4 || st.Result.CourseID != cid {
		t.Fatalf("unexpected result: %+v", st.Result)
	}
}

func TestToStatus_MatchesWhileParked(t *testing.T) {
	raw, _ := json.Marshal([]syllabus.DuplicateMatch{{Score: 0.9, AccessLevel: syllabus.AccessNone, Placeholder: syllabus.SimilarCoursePlaceholder}})
	j := &IngestJob{ID: uuid.New(), State: StateAwaitingDecision, Matches: datatypes.JSON(raw)}
	st := j.ToStatus()
	if len(st.Matches) != 1 || st.Matches[0].AccessLevel != syllabus.AccessNone {
		t.Fatalf("unexpected matches: %+v", st.Matches)
	}
}

func TestWithWarningDedupes(t *testing.T) {
	j := &IngestJob{}
	j.Warnings = j.WithWarning(string(KindDuplicateCheckDegraded))
	j.Warnings = j.WithWarning(string(KindDuplicateCheckDegraded))
	j.Warnings = j.WithWarning(WarningExtractionSlow)
	if got := j.WarningList(); len(got) != 2 {
		t.Fatalf("expected two distinct warnings, got %v", got)
	}
}
