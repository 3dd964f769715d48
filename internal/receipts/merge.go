// Package receipts applies provider delivery/read receipts onto OUT rows of
// the delivery log under monotonic merge rules: receipts arriving out of
// order or more than once can never regress visible state.
package receipts

import (
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/store"
)

// StateFromLabel normalizes the status labels the providers use on receipts.
func StateFromLabel(label string) (domain.ReceiptState, bool) {
	switch label {
	case "sent", "queued", "accepted", "SERVER_ACK", "ENVIADO":
		return domain.ReceiptSent, true
	case "delivered", "delivery", "DELIVERY_ACK", "ENTREGUE":
		return domain.ReceiptDelivered, true
	case "read", "played", "READ", "VISUALIZADO":
		return domain.ReceiptRead, true
	case "failed", "undelivered", "error", "ERROR", "FALHA":
		return domain.ReceiptFailed, true
	}
	return "", false
}

// Apply merges one receipt into the OUT row and reports whether anything
// changed. The rules:
//
//   - the status lattice ENVIADO -> ENTREGUE -> VISUALIZADO only moves
//     forward; FALHA absorbs status but not timestamps;
//   - delivered_at never precedes the send timestamp; an explicit delivered
//     receipt overrides the delivery time a read receipt implied;
//   - read_at never precedes delivered_at.
//
// The merge is commutative over event order and idempotent over replays.
func Apply(e *store.LogEntry, state domain.ReceiptState, ts time.Time) bool {
	ts = ts.UTC()
	changed := false

	switch state {
	case domain.ReceiptSent:
		// A send's own echo; the row was created ENVIADO already.
		return false

	case domain.ReceiptDelivered:
		t := laterOf(ts, e.TS)
		switch {
		case e.DeliveredAt == nil:
			e.DeliveredAt = &t
			changed = true
		case t.Before(*e.DeliveredAt):
			// The explicit receipt carries the real delivery time; an earlier
			// read event may have implied a later one.
			e.DeliveredAt = &t
			changed = true
		}
		if e.ReadAt != nil && e.ReadAt.Before(*e.DeliveredAt) {
			r := *e.DeliveredAt
			e.ReadAt = &r
			changed = true
		}
		if e.Status == domain.StatusEnviado {
			e.Status = domain.StatusEntregue
			changed = true
		}

	case domain.ReceiptRead:
		if e.DeliveredAt == nil {
			// A read implies delivery.
			t := laterOf(ts, e.TS)
			e.DeliveredAt = &t
			changed = true
		}
		r := laterOf(laterOf(ts, *e.DeliveredAt), e.TS)
		if e.ReadAt == nil || r.After(*e.ReadAt) {
			e.ReadAt = &r
			changed = true
		}
		if e.Status == domain.StatusEnviado || e.Status == domain.StatusEntregue {
			e.Status = domain.StatusVisualizado
			changed = true
		}

	case domain.ReceiptFailed:
		if e.Status != domain.StatusFalha {
			e.Status = domain.StatusFalha
			changed = true
		}
	}
	return changed
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
