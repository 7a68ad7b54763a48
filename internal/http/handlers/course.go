package handlers

import (
	"github.com/gin-gonic/gin"

	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	"github.com/yungbote/syllabridge-backend/internal/http/response"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/catalog"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type CourseHandler struct {
	log     *logger.Logger
	courses coursesrepo.CourseRepo
	catalog *catalog.Creator
}

func NewCourseHandler(log *logger.Logger, courses coursesrepo.CourseRepo, creator *catalog.Creator) *CourseHandler {
	return &CourseHandler{
		log:     log.With("handler", "CourseHandler"),
		courses: courses,
		catalog: creator,
	}
}

// GET /api/courses
func (h *CourseHandler) ListUserCourses(c *gin.Context) {
	rq, ok := requester(c)
	if !ok {
		return
	}
	list, err := h.courses.ListByOwner(dbctx.New(c.Request.Context()), rq.OwnerID, false)
	if err != nil {
		h.log.Error("ListUserCourses failed", "error", err, "owner_id", rq.OwnerID)
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": list})
}

// GET /api/courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	rq, id, ok := requesterAndID(c)
	if !ok {
		return
	}
	course, err := h.courses.GetForOwner(dbctx.New(c.Request.Context()), id, rq.OwnerID, true)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}

// DELETE /api/courses/:id
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	rq, id, ok := requesterAndID(c)
	if !ok {
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id, &rq.OwnerID); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondNoContent(c)
}
