package domain

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventKind string

const (
	EventStatus   EventKind = "status"
	EventInbound  EventKind = "inbound"
	EventPresence EventKind = "presence"
)

// ReceiptState is the normalized status carried by a provider receipt.
type ReceiptState string

const (
	ReceiptSent      ReceiptState = "sent"
	ReceiptDelivered ReceiptState = "delivered"
	ReceiptRead      ReceiptState = "read"
	ReceiptFailed    ReceiptState = "failed"
)

// Event is the uniform record every webhook decoder produces. Downstream
// components never see the provider's raw JSON tree; Raw is kept only for the
// audit column on the delivery log.
type Event struct {
	ID       string
	Provider ProviderKind
	TenantID int64
	Kind     EventKind

	// Status events.
	MessageID string
	State     ReceiptState

	// Inbound events.
	Number string
	Text   string
	Name   string

	// Presence events.
	Presence string

	TS  time.Time
	Raw json.RawMessage
}

// NewEventID returns a sortable ulid-based event id.
func NewEventID() string {
	t := time.Now().UTC()
	return "evt_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
