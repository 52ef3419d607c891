package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ExhaustedFunc receives a notification that will not be retried again.
// Kind is the notification kind without the "registration_" job prefix.
type ExhaustedFunc func(ctx context.Context, kind string, err error)

// DeliveryErrorHandler logs failed notification deliveries. Transient
// failures are warnings; the final attempt is an error and is reported
// through Exhausted.
type DeliveryErrorHandler struct {
	Logger    *slog.Logger
	Exhausted ExhaustedFunc
}

func NewDeliveryErrorHandler(logger *slog.Logger, exhausted ExhaustedFunc) *DeliveryErrorHandler {
	return &DeliveryErrorHandler{Logger: logger, Exhausted: exhausted}
}

func (h *DeliveryErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.report(ctx, job, err, "")
	return nil
}

func (h *DeliveryErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.report(ctx, job, fmt.Errorf("panic: %v", panicVal), trace)
	return nil
}

func (h *DeliveryErrorHandler) report(ctx context.Context, job *rivertype.JobRow, err error, trace string) {
	if job == nil {
		return
	}
	final := job.Attempt >= job.MaxAttempts
	if h.Logger != nil {
		level := slog.LevelWarn
		msg := "notification delivery failed; will retry"
		if final {
			level = slog.LevelError
			msg = "notification delivery abandoned"
		}
		attrs := []any{"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "max_attempts", job.MaxAttempts, "error", err}
		if trace != "" {
			attrs = append(attrs, "trace", trace)
		}
		h.Logger.Log(ctx, level, msg, attrs...)
	}
	if final && h.Exhausted != nil {
		h.Exhausted(ctx, NotificationKind(job.Kind), err)
	}
}

// NotificationKind strips the job prefix so "registration_confirmation"
// becomes "confirmation".
func NotificationKind(jobKind string) string {
	return strings.TrimPrefix(jobKind, "registration_")
}
