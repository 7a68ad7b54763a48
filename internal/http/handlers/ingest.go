package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/http/response"
	"github.com/yungbote/syllabridge-backend/internal/jobs/ingest"
	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// multipart framing allowance on top of the file itself
const formOverhead = 1 << 20

type IngestHandler struct {
	log      *logger.Logger
	orch     *ingest.Orchestrator
	maxBytes int64
}

// NewIngestHandler reads at most maxBytes+1 of an upload so the validator can
// still report FILE_TOO_LARGE without the server buffering the whole body.
func NewIngestHandler(log *logger.Logger, orch *ingest.Orchestrator, maxBytes int64) *IngestHandler {
	return &IngestHandler{
		log:      log.With("handler", "IngestHandler"),
		orch:     orch,
		maxBytes: maxBytes,
	}
}

// POST /api/ingest
func (h *IngestHandler) Submit(c *gin.Context) {
	rq, ok := requester(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+formOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Errorf("upload exceeds %d bytes", h.maxBytes))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	bypass := false
	if raw := strings.TrimSpace(c.PostForm("bypass_duplicates")); raw != "" {
		bypass, err = strconv.ParseBool(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_bypass_duplicates", err)
			return
		}
	}

	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_upload", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_upload", err)
		return
	}

	job, err := h.orch.Submit(c.Request.Context(), ingest.SubmitRequest{
		Requester:        *rq,
		Filename:         fh.Filename,
		Data:             data,
		BypassDuplicates: bypass,
	})
	if err != nil {
		h.log.Warn("submit failed", "error", err, "owner_id", rq.OwnerID)
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": job.ID, "state": job.State})
}

// GET /api/ingest/:id
func (h *IngestHandler) Status(c *gin.Context) {
	rq, jobID, ok := requesterAndID(c)
	if !ok {
		return
	}
	st, err := h.orch.Status(c.Request.Context(), jobID, rq.OwnerID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}

// POST /api/ingest/:id/decision
func (h *IngestHandler) Decide(c *gin.Context) {
	rq, jobID, ok := requesterAndID(c)
	if !ok {
		return
	}
	var req syllabus.Decision
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_decision", err)
		return
	}
	st, err := h.orch.Decide(c.Request.Context(), jobID, rq.OwnerID, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}

// POST /api/ingest/:id/cancel
func (h *IngestHandler) Cancel(c *gin.Context) {
	rq, jobID, ok := requesterAndID(c)
	if !ok {
		return
	}
	st, err := h.orch.Cancel(c.Request.Context(), jobID, rq.OwnerID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}

func requester(c *gin.Context) (*ctxutil.Requester, bool) {
	rq := ctxutil.GetRequester(c.Request.Context())
	if rq == nil || rq.OwnerID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return nil, false
	}
	return rq, true
}

func requesterAndID(c *gin.Context) (*ctxutil.Requester, uuid.UUID, bool) {
	rq, ok := requester(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return nil, uuid.Nil, false
	}
	return rq, id, true
}
