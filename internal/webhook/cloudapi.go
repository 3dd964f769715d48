// Package webhook decodes provider callback payloads into the normalized
// event stream the reconciler and correlator consume. Each provider has its
// own decoder; fragments no decoder understands are surfaced raw so the
// caller can still log them for audit.
package webhook

import (
	"encoding/json"
	"strconv"
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/receipts"
)

// Decoded is one webhook body after normalization. Unhandled carries the
// change fragments that are not message traffic (account updates, template
// status and so on); they get logged but never correlated.
type Decoded struct {
	Events    []domain.Event
	Unhandled []json.RawMessage
}

type cloudEnvelope struct {
	Entry []struct {
		Changes []struct {
			Field string          `json:"field"`
			Value json.RawMessage `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
		Button struct {
			Text string `json:"text"`
		} `json:"button"`
		Interactive struct {
			ButtonReply struct {
				Title string `json:"title"`
			} `json:"button_reply"`
		} `json:"interactive"`
	} `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

// DecodeCloudAPI walks the Graph webhook envelope. Every change whose field
// is "messages" yields status and inbound events; anything else is unhandled.
func DecodeCloudAPI(tenantID int64, body []byte) (Decoded, error) {
	var env cloudEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Decoded{}, domain.Wrap(domain.KindProviderError, err, "malformed cloud webhook body")
	}

	var out Decoded
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				out.Unhandled = append(out.Unhandled, change.Value)
				continue
			}
			var v cloudValue
			if err := json.Unmarshal(change.Value, &v); err != nil {
				out.Unhandled = append(out.Unhandled, change.Value)
				continue
			}

			names := map[string]string{}
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, st := range v.Statuses {
				state, ok := receipts.StateFromLabel(st.Status)
				if !ok {
					continue
				}
				out.Events = append(out.Events, domain.Event{
					ID:        domain.NewEventID(),
					Provider:  domain.ProviderCloudAPI,
					TenantID:  tenantID,
					Kind:      domain.EventStatus,
					MessageID: st.ID,
					State:     state,
					Number:    st.RecipientID,
					TS:        unixSecString(st.Timestamp),
					Raw:       change.Value,
				})
			}

			for _, msg := range v.Messages {
				text := msg.Text.Body
				if text == "" {
					text = msg.Button.Text
				}
				if text == "" {
					text = msg.Interactive.ButtonReply.Title
				}
				out.Events = append(out.Events, domain.Event{
					ID:        domain.NewEventID(),
					Provider:  domain.ProviderCloudAPI,
					TenantID:  tenantID,
					Kind:      domain.EventInbound,
					MessageID: msg.ID,
					Number:    msg.From,
					Text:      text,
					Name:      names[msg.From],
					TS:        unixSecString(msg.Timestamp),
					Raw:       change.Value,
				})
			}
		}
	}
	return out, nil
}

func unixSecString(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec == 0 {
		return domain.NowUTC()
	}
	return time.Unix(sec, 0).UTC()
}
