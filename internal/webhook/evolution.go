package webhook

import (
	"encoding/json"
	"strings"
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/receipts"
)

type evoEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
	DateTime string          `json:"date_time"`
}

type evoData struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Status   string `json:"status"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
	} `json:"message"`
	MessageTimestamp int64 `json:"messageTimestamp"`

	// presence.update shape.
	ID        string                     `json:"id"`
	Presences map[string]json.RawMessage `json:"presences"`
}

type evoPresence struct {
	LastKnownPresence string `json:"lastKnownPresence"`
}

// DecodeEvolution handles the instance-manager event envelope. The event name
// selects the shape: messages.update carries ack statuses, messages.upsert
// carries inbound traffic (fromMe rows are our own sends echoed back and are
// skipped), presence.update carries typing/online signals.
func DecodeEvolution(tenantID int64, body []byte) (Decoded, error) {
	var env evoEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Decoded{}, domain.Wrap(domain.KindProviderError, err, "malformed instance webhook body")
	}

	var d evoData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return Decoded{Unhandled: []json.RawMessage{body}}, nil
		}
	}

	var out Decoded
	switch env.Event {
	case "messages.update", "send.message":
		state, ok := receipts.StateFromLabel(d.Status)
		if !ok || state == domain.ReceiptSent {
			return out, nil
		}
		out.Events = append(out.Events, domain.Event{
			ID:        domain.NewEventID(),
			Provider:  domain.ProviderEvolution,
			TenantID:  tenantID,
			Kind:      domain.EventStatus,
			MessageID: d.Key.ID,
			State:     state,
			Number:    jidNumber(d.Key.RemoteJid),
			TS:        evoTS(d.MessageTimestamp, env.DateTime),
			Raw:       body,
		})

	case "messages.upsert":
		if d.Key.FromMe {
			return out, nil
		}
		text := d.Message.Conversation
		if text == "" {
			text = d.Message.ExtendedTextMessage.Text
		}
		out.Events = append(out.Events, domain.Event{
			ID:        domain.NewEventID(),
			Provider:  domain.ProviderEvolution,
			TenantID:  tenantID,
			Kind:      domain.EventInbound,
			MessageID: d.Key.ID,
			Number:    jidNumber(d.Key.RemoteJid),
			Text:      text,
			Name:      d.PushName,
			TS:        evoTS(d.MessageTimestamp, env.DateTime),
			Raw:       body,
		})

	case "presence.update":
		for jid, raw := range d.Presences {
			var p evoPresence
			if err := json.Unmarshal(raw, &p); err != nil || p.LastKnownPresence == "" {
				continue
			}
			out.Events = append(out.Events, domain.Event{
				ID:       domain.NewEventID(),
				Provider: domain.ProviderEvolution,
				TenantID: tenantID,
				Kind:     domain.EventPresence,
				Number:   jidNumber(jid),
				Presence: p.LastKnownPresence,
				TS:       evoTS(0, env.DateTime),
				Raw:      body,
			})
		}

	default:
		out.Unhandled = append(out.Unhandled, body)
	}
	return out, nil
}

// jidNumber strips the @s.whatsapp.net / @g.us suffix and any device part.
func jidNumber(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

func evoTS(sec int64, dateTime string) time.Time {
	if sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t.UTC()
		}
	}
	return domain.NowUTC()
}
