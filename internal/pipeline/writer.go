package pipeline

import (
	"context"
	"log/slog"

	"zapgw/internal/observability"
	"zapgw/internal/store"
)

type LogStore interface {
	AppendLog(ctx context.Context, in store.LogEntry) (int64, error)
}

// Writer appends delivery-log rows best-effort: a failed append never fails
// the caller's send, but it is counted so a broken log is visible on the
// metrics endpoint. Returns the new row id, 0 when the write was lost.
type Writer struct {
	Store LogStore
}

func (w *Writer) Append(ctx context.Context, in store.LogEntry) int64 {
	id, err := w.Store.AppendLog(ctx, in)
	if err != nil {
		observability.LogWriteFailures.Inc()
		slog.Error("delivery log append failed",
			"err", err,
			"tenant_id", in.TenantID,
			"direction", in.Direction,
			"number", in.Number,
			"message_id", in.MessageID,
		)
		return 0
	}
	return id
}
