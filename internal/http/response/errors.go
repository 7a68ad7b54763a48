package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
)

var codeStatus = map[domainagg.ErrorCode]int{
	domainagg.CodeValidation:         http.StatusBadRequest,
	domainagg.CodeNotFound:           http.StatusNotFound,
	domainagg.CodeConflict:           http.StatusConflict,
	domainagg.CodePreconditionFailed: http.StatusConflict,
	domainagg.CodeRetryable:          http.StatusServiceUnavailable,
}

// StatusFor maps an aggregate error code to its HTTP status. Anything
// unclassified is a 500.
func StatusFor(err error) (int, string) {
	code := domainagg.CodeOf(err)
	if st, ok := codeStatus[code]; ok {
		return st, string(code)
	}
	return http.StatusInternalServerError, string(domainagg.CodeInternal)
}

// RespondErr writes err with its mapped status. Internal details stay in the
// log.
func RespondErr(c *gin.Context, err error) {
	status, code := StatusFor(err)
	_ = c.Error(err)
	switch {
	case status == http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		RespondError(c, status, code, errors.New("temporarily unavailable, retry shortly"))
		return
	case status >= 500:
		RespondError(c, status, code, errors.New("internal error"))
		return
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) && aggErr.Message != "" {
		RespondError(c, status, code, errors.New(aggErr.Message))
		return
	}
	RespondError(c, status, code, err)
}
