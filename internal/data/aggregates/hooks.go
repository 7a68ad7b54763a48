package aggregates

import (
	"time"

	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// Hooks receives the outcome of every Execute call.
type Hooks interface {
	ObserveOperation(op, status string, dur time.Duration)
	IncConflict(op string)
	IncRetry(op string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

// NewHooks reports to metrics (when enabled) and logs retries, conflicts and
// failed writes. Either argument may be nil.
func NewHooks(log *logger.Logger, metrics *observability.Metrics) Hooks {
	if log == nil && metrics == nil {
		return noopHooks{}
	}
	return &writeHooks{log: log, metrics: metrics}
}

type writeHooks struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

func (h *writeHooks) ObserveOperation(op, status string, dur time.Duration) {
	h.metrics.ObserveAggregateOperation(op, status, dur)
	switch status {
	case "success", "not_found", "validation", "precondition_failed":
		return
	}
	if h.log != nil {
		h.log.Warn("transactional write failed", "op", op, "status", status, "duration_ms", dur.Milliseconds())
	}
}

func (h *writeHooks) IncConflict(op string) {
	h.metrics.IncAggregateConflict(op)
}

func (h *writeHooks) IncRetry(op string) {
	h.metrics.IncAggregateRetry(op)
	if h.log != nil {
		h.log.Debug("retrying transactional write", "op", op)
	}
}
