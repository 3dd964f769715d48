package receipts

import (
	"testing"
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/store"
)

func outRow(sendTS int64) store.LogEntry {
	return store.LogEntry{
		ID:        1,
		Direction: domain.DirectionOut,
		Status:    domain.StatusEnviado,
		TS:        time.Unix(sendTS, 0).UTC(),
	}
}

func ts(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func TestApplyOrderedDeliveryThenRead(t *testing.T) {
	row := outRow(1700000000)

	if !Apply(&row, domain.ReceiptDelivered, ts(1700000100)) {
		t.Fatal("delivered receipt made no change")
	}
	if !Apply(&row, domain.ReceiptRead, ts(1700000160)) {
		t.Fatal("read receipt made no change")
	}

	if row.Status != domain.StatusVisualizado {
		t.Fatalf("status = %s, want VISUALIZADO", row.Status)
	}
	if !row.DeliveredAt.Equal(ts(1700000100)) {
		t.Fatalf("delivered_at = %v, want 1700000100", row.DeliveredAt)
	}
	if !row.ReadAt.Equal(ts(1700000160)) {
		t.Fatalf("read_at = %v, want 1700000160", row.ReadAt)
	}
}

func TestApplyReadBeforeDelivered(t *testing.T) {
	row := outRow(1700000000)

	// Read arrives first: it implies delivery at its own timestamp, then the
	// explicit delivered receipt corrects the delivery time downward.
	Apply(&row, domain.ReceiptRead, ts(1700000160))
	if row.Status != domain.StatusVisualizado {
		t.Fatalf("status after read = %s, want VISUALIZADO", row.Status)
	}
	if !row.DeliveredAt.Equal(ts(1700000160)) {
		t.Fatalf("implied delivered_at = %v, want 1700000160", row.DeliveredAt)
	}

	Apply(&row, domain.ReceiptDelivered, ts(1700000100))
	if row.Status != domain.StatusVisualizado {
		t.Fatalf("status regressed to %s", row.Status)
	}
	if !row.DeliveredAt.Equal(ts(1700000100)) {
		t.Fatalf("delivered_at = %v, want 1700000100", row.DeliveredAt)
	}
	if !row.ReadAt.Equal(ts(1700000160)) {
		t.Fatalf("read_at = %v, want 1700000160", row.ReadAt)
	}
}

func TestApplyCommutative(t *testing.T) {
	a := outRow(1700000000)
	Apply(&a, domain.ReceiptDelivered, ts(1700000100))
	Apply(&a, domain.ReceiptRead, ts(1700000160))

	b := outRow(1700000000)
	Apply(&b, domain.ReceiptRead, ts(1700000160))
	Apply(&b, domain.ReceiptDelivered, ts(1700000100))

	if a.Status != b.Status {
		t.Fatalf("status diverged: %s vs %s", a.Status, b.Status)
	}
	if !a.DeliveredAt.Equal(*b.DeliveredAt) {
		t.Fatalf("delivered_at diverged: %v vs %v", a.DeliveredAt, b.DeliveredAt)
	}
	if !a.ReadAt.Equal(*b.ReadAt) {
		t.Fatalf("read_at diverged: %v vs %v", a.ReadAt, b.ReadAt)
	}
}

func TestApplyIdempotent(t *testing.T) {
	row := outRow(1700000000)
	Apply(&row, domain.ReceiptDelivered, ts(1700000100))
	Apply(&row, domain.ReceiptRead, ts(1700000160))

	if Apply(&row, domain.ReceiptDelivered, ts(1700000100)) {
		t.Fatal("replayed delivered receipt reported a change")
	}
	if Apply(&row, domain.ReceiptRead, ts(1700000160)) {
		t.Fatal("replayed read receipt reported a change")
	}
	if row.Status != domain.StatusVisualizado ||
		!row.DeliveredAt.Equal(ts(1700000100)) ||
		!row.ReadAt.Equal(ts(1700000160)) {
		t.Fatalf("replay mutated the row: %+v", row)
	}
}

func TestApplySentIsNoop(t *testing.T) {
	row := outRow(1700000000)
	Apply(&row, domain.ReceiptRead, ts(1700000160))
	before := row

	if Apply(&row, domain.ReceiptSent, ts(1700000005)) {
		t.Fatal("sent receipt reported a change")
	}
	if row.Status != before.Status || !row.ReadAt.Equal(*before.ReadAt) {
		t.Fatalf("sent receipt mutated the row: %+v", row)
	}
}

func TestApplyDeliveredNeverPrecedesSend(t *testing.T) {
	row := outRow(1700000000)
	Apply(&row, domain.ReceiptDelivered, ts(1699999000))
	if !row.DeliveredAt.Equal(ts(1700000000)) {
		t.Fatalf("delivered_at = %v, want clamp to send time", row.DeliveredAt)
	}
}

func TestApplyFailedAbsorbsStatus(t *testing.T) {
	row := outRow(1700000000)
	Apply(&row, domain.ReceiptFailed, ts(1700000050))
	if row.Status != domain.StatusFalha {
		t.Fatalf("status = %s, want FALHA", row.Status)
	}

	// Later receipts still record timestamps but never lift FALHA.
	Apply(&row, domain.ReceiptDelivered, ts(1700000100))
	Apply(&row, domain.ReceiptRead, ts(1700000160))
	if row.Status != domain.StatusFalha {
		t.Fatalf("FALHA was overwritten by %s", row.Status)
	}
	if row.DeliveredAt == nil || !row.DeliveredAt.Equal(ts(1700000100)) {
		t.Fatalf("delivered_at not recorded under FALHA: %v", row.DeliveredAt)
	}
}

func TestStateFromLabel(t *testing.T) {
	for label, want := range map[string]domain.ReceiptState{
		"DELIVERY_ACK": domain.ReceiptDelivered,
		"READ":         domain.ReceiptRead,
		"delivered":    domain.ReceiptDelivered,
		"undelivered":  domain.ReceiptFailed,
		"queued":       domain.ReceiptSent,
		"played":       domain.ReceiptRead,
	} {
		got, ok := StateFromLabel(label)
		if !ok || got != want {
			t.Fatalf("StateFromLabel(%q) = %q, %v; want %q", label, got, ok, want)
		}
	}
	if _, ok := StateFromLabel("banana"); ok {
		t.Fatal("unknown label accepted")
	}
}
