package bus

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// Event is published on every job state change.
type Event struct {
	JobID     uuid.UUID  `json:"job_id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	State     jobs.State `json:"state"`
	Progress  int        `json:"progress"`
	ErrorKind string     `json:"error_kind,omitempty"`
	At        time.Time  `json:"at"`
}

// Publisher delivers job events somewhere. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Bus is a Publisher that local consumers can also subscribe to.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, ownerID uuid.UUID, onEvent func(Event)) error
}

// OwnerChannel is the pub/sub channel an owner's events go to.
func OwnerChannel(ownerID uuid.UUID) string { return "jobs:" + ownerID.String() }

// RoutingKey is the topic routing key for a state, e.g. "job.completed".
func RoutingKey(s jobs.State) string { return "job." + strings.ToLower(string(s)) }

// Fanout publishes to every target. A failing target neither blocks nor
// hides the others.
type Fanout struct {
	log     *logger.Logger
	targets []Publisher
}

func NewFanout(log *logger.Logger, targets ...Publisher) *Fanout {
	out := &Fanout{log: log.With("component", "EventFanout")}
	for _, t := range targets {
		if t != nil {
			out.targets = append(out.targets, t)
		}
	}
	return out
}

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, t := range f.targets {
		if err := t.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		f.log.Warn("job event publish failed", "job_id", ev.JobID, "state", ev.State, "error", err)
	}
	return err
}

func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, t := range f.targets {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

// Recorder keeps events in memory. Used by tests and by the CLI when no
// broker is configured.
type Recorder struct {
	events chan Event
}

func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 64
	}
	return &Recorder{events: make(chan Event, size)}
}

func (r *Recorder) Publish(ctx context.Context, ev Event) error {
	select {
	case r.events <- ev:
	default:
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
