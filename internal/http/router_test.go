package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	jobsrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/syllabridge-backend/internal/data/repos/testutil"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	httpH "github.com/yungbote/syllabridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/syllabridge-backend/internal/http/middleware"
	"github.com/yungbote/syllabridge-backend/internal/jobs/ingest"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/catalog"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/extract"
	"github.com/yungbote/syllabridge-backend/internal/platform/authtoken"
	"github.com/yungbote/syllabridge-backend/internal/platform/blob"
	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/realtime/bus"
)

const testSecret = "router-test-secret"

type api struct {
	t      *testing.T
	engine *gin.Engine
	token  string
	owner  uuid.UUID
	seed   func(title string) *courses.Course
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	courseRepo := coursesrepo.NewCourseRepo(db, log)
	cache := duplicates.NewMemoryCache()
	creator := catalog.NewCreator(log, aggregates.NewGormTxRunner(db), courseRepo, nil, cache, catalog.DefaultConfig())
	p := ingest.NewPipeline(ingest.Deps{
		Log:       log,
		Jobs:      jobsrepo.NewIngestJobRepo(db, log),
		Blobs:     store,
		Extractor: extract.NewDocumentExtractor(log, nil),
		Parser:    extract.NewHeuristicParser(),
		Finder:    duplicates.NewFinder(log, courseRepo, nil, cache, duplicates.Config{}),
		Creator:   creator,
		Events:    bus.NewRecorder(16),
	}, ingest.DefaultConfig())
	orch := ingest.NewOrchestrator(p, courseRepo)

	engine := NewRouter(RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, testSecret),
		IngestHandler:  httpH.NewIngestHandler(log, orch, 1<<20),
		CourseHandler:  httpH.NewCourseHandler(log, courseRepo, creator),
		HealthHandler:  httpH.NewHealthHandler(db),
	})

	owner := uuid.New()
	token, err := authtoken.Issue(testSecret, ctxutil.Requester{OwnerID: owner}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return &api{
		t:      t,
		engine: engine,
		token:  token,
		owner:  owner,
		seed: func(title string) *courses.Course {
			return testutil.SeedCourse(t, context.Background(), db, &courses.Course{OwnerID: owner, Title: title})
		},
	}
}

func (a *api) do(method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	a.t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func (a *api) upload(name, content string, fields map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		a.t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	return a.do(http.MethodPost, "/api/ingest", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthcheckIsPublic(t *testing.T) {
	a := newAPI(t)
	a.token = ""
	if rec := a.do(http.MethodGet, "/healthcheck", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("healthcheck = %d", rec.Code)
	}
	if rec := a.do(http.MethodGet, "/api/courses", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("courses without token = %d", rec.Code)
	}
}

func TestIngestLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	rec := a.upload("bio.txt", "BIO 210: Cell Biology\n2025-02-04: Quiz 1", map[string]string{"bypass_duplicates": "true"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body.String())
	}
	sub := decode[struct {
		JobID uuid.UUID  `json:"job_id"`
		State jobs.State `json:"state"`
	}](t, rec)
	if sub.JobID == uuid.Nil || sub.State != jobs.StateQueued {
		t.Fatalf("submit body = %+v", sub)
	}

	rec = a.do(http.MethodGet, "/api/ingest/"+sub.JobID.String(), nil, "")
	st := decode[jobs.Status](t, rec)
	if rec.Code != http.StatusOK || st.State != jobs.StateQueued {
		t.Fatalf("status = %d %+v", rec.Code, st)
	}

	rec = a.do(http.MethodPost, "/api/ingest/"+sub.JobID.String()+"/decision", bytes.NewBufferString(`{"action":"create_new"}`), "application/json")
	if rec.Code != http.StatusConflict {
		t.Fatalf("decision on queued job = %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(http.MethodPost, "/api/ingest/"+sub.JobID.String()+"/cancel", nil, "")
	st = decode[jobs.Status](t, rec)
	if rec.Code != http.StatusOK || st.State != jobs.StateFailed || st.Error == nil || st.Error.Kind != string(jobs.KindCanceled) {
		t.Fatalf("cancel = %d %+v", rec.Code, st)
	}

	other, _ := authtoken.Issue(testSecret, ctxutil.Requester{OwnerID: uuid.New()}, time.Hour)
	a.token = other
	if rec := a.do(http.MethodGet, "/api/ingest/"+sub.JobID.String(), nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign status = %d", rec.Code)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	a := newAPI(t)
	if rec := a.do(http.MethodPost, "/api/ingest", bytes.NewBufferString("{}"), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart submit = %d", rec.Code)
	}
	if rec := a.upload("a.txt", "hello", map[string]string{"bypass_duplicates": "maybe"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad bypass flag = %d", rec.Code)
	}
	if rec := a.do(http.MethodGet, "/api/ingest/not-a-uuid", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", rec.Code)
	}
}

func TestCoursesOverHTTP(t *testing.T) {
	a := newAPI(t)
	course := a.seed("CHEM 101 General Chemistry")

	rec := a.do(http.MethodGet, "/api/courses", nil, "")
	list := decode[struct {
		Courses []courses.Course `json:"courses"`
	}](t, rec)
	if rec.Code != http.StatusOK || len(list.Courses) != 1 || list.Courses[0].ID != course.ID {
		t.Fatalf("list = %d %+v", rec.Code, list)
	}
	if rec := a.do(http.MethodGet, "/api/courses/"+course.ID.String(), nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	if rec := a.do(http.MethodDelete, "/api/courses/"+course.ID.String(), nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}
	if rec := a.do(http.MethodGet, "/api/courses/"+course.ID.String(), nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
}
