// Package traceutil closes spans with a status derived from an operation's
// error.
package traceutil

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrHandler ends span. A non-nil err is logged with message, recorded on
// the span and returned unchanged.
func ErrHandler(span trace.Span, err error, message string, l *slog.Logger) error {
	defer span.End()

	if err != nil {
		if l != nil {
			l.Error(message, "err", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Errorf("%s: %w", message, err).Error())
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	return err
}
