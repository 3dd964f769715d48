package receipts

import (
	"context"
	"log/slog"

	"zapgw/internal/domain"
	"zapgw/internal/observability"
	"zapgw/internal/providers"
	"zapgw/internal/store"
)

type Store interface {
	FindOutByMessageIDs(ctx context.Context, tenantID int64, ids []string) (store.LogEntry, bool, error)
	ApplyReceiptPatch(ctx context.Context, in store.ReceiptPatch) error
	InsertReceipt(ctx context.Context, in store.Receipt) error
	ReceiptsByMessageIDs(ctx context.Context, tenantID int64, ids []string) ([]store.Receipt, error)
}

type Reconciler struct {
	Store Store
}

// ApplyStatus merges one normalized status event into its OUT row. The event
// is also appended to the receipt side table so a missed merge can be
// replayed later. Returns whether an OUT row was found.
func (r *Reconciler) ApplyStatus(ctx context.Context, ev domain.Event) (bool, error) {
	if ev.MessageID == "" {
		// A keyless receipt can never be matched by a replay; fall through to
		// the raw-payload lookup without polluting the side table.
		return r.merge(ctx, ev)
	}
	if err := r.Store.InsertReceipt(ctx, store.Receipt{
		TenantID:  ev.TenantID,
		Provider:  string(ev.Provider),
		MessageID: ev.MessageID,
		Status:    string(ev.State),
		TS:        ev.TS.UTC(),
		Raw:       ev.Raw,
	}); err != nil {
		slog.Error("receipt side-table insert failed", "err", err, "message_id", ev.MessageID)
	}
	return r.merge(ctx, ev)
}

func (r *Reconciler) merge(ctx context.Context, ev domain.Event) (bool, error) {
	row, found, err := r.Store.FindOutByMessageIDs(ctx, ev.TenantID, candidateIDs(ev))
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if Apply(&row, ev.State, ev.TS) {
		if err := r.Store.ApplyReceiptPatch(ctx, store.ReceiptPatch{
			ID:          row.ID,
			Status:      row.Status,
			DeliveredAt: row.DeliveredAt,
			ReadAt:      row.ReadAt,
		}); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Replay runs one pass of the receipt side table over the given OUT rows,
// merging anything the live webhook path missed. Rows whose delivered/read
// columns are already both set are skipped. The returned slice carries the
// merged state.
func (r *Reconciler) Replay(ctx context.Context, tenantID int64, rows []store.LogEntry) ([]store.LogEntry, error) {
	var ids []string
	for _, row := range rows {
		if row.Direction != domain.DirectionOut || row.MessageID == "" {
			continue
		}
		if row.DeliveredAt != nil && row.ReadAt != nil {
			continue
		}
		ids = append(ids, row.MessageID)
	}
	if len(ids) == 0 {
		return rows, nil
	}
	observability.ReceiptReplays.Inc()

	receipts, err := r.Store.ReceiptsByMessageIDs(ctx, tenantID, ids)
	if err != nil {
		return rows, err
	}
	byID := make(map[string][]store.Receipt)
	for _, rec := range receipts {
		byID[rec.MessageID] = append(byID[rec.MessageID], rec)
	}

	for i := range rows {
		row := &rows[i]
		recs := byID[row.MessageID]
		if len(recs) == 0 {
			continue
		}
		changed := false
		for _, rec := range recs {
			state, ok := StateFromLabel(rec.Status)
			if !ok {
				continue
			}
			if Apply(row, state, rec.TS) {
				changed = true
			}
		}
		if changed {
			if err := r.Store.ApplyReceiptPatch(ctx, store.ReceiptPatch{
				ID:          row.ID,
				Status:      row.Status,
				DeliveredAt: row.DeliveredAt,
				ReadAt:      row.ReadAt,
			}); err != nil {
				slog.Error("receipt replay patch failed", "err", err, "row_id", row.ID)
			}
		}
	}
	return rows, nil
}

// candidateIDs gathers the equivalent ids a provider may report the same send
// under: the event's own id plus anything extractable from its raw payload.
func candidateIDs(ev domain.Event) []string {
	ids := []string{}
	if ev.MessageID != "" {
		ids = append(ids, ev.MessageID)
	}
	if extra := providers.ExtractMessageID(ev.Raw); extra != "" && extra != ev.MessageID {
		ids = append(ids, extra)
	}
	return ids
}
