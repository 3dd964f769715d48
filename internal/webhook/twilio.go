package webhook

import (
	"encoding/json"
	"net/url"
	"strings"

	"zapgw/internal/domain"
	"zapgw/internal/receipts"
)

// DecodeTwilioStatus maps one status callback form post. Returns ok=false
// when the post carries no recognizable status.
func DecodeTwilioStatus(tenantID int64, form url.Values) (domain.Event, bool) {
	sid := firstOf(form, "MessageSid", "SmsSid")
	label := firstOf(form, "MessageStatus", "SmsStatus")
	state, ok := receipts.StateFromLabel(label)
	if sid == "" || !ok || state == domain.ReceiptSent {
		return domain.Event{}, false
	}
	return domain.Event{
		ID:        domain.NewEventID(),
		Provider:  domain.ProviderTwilio,
		TenantID:  tenantID,
		Kind:      domain.EventStatus,
		MessageID: sid,
		State:     state,
		Number:    stripAddressScheme(form.Get("To")),
		TS:        domain.NowUTC(),
		Raw:       formRaw(form),
	}, true
}

// DecodeTwilioInbound maps one inbound-message form post.
func DecodeTwilioInbound(tenantID int64, form url.Values) (domain.Event, bool) {
	from := stripAddressScheme(form.Get("From"))
	if from == "" {
		return domain.Event{}, false
	}
	return domain.Event{
		ID:        domain.NewEventID(),
		Provider:  domain.ProviderTwilio,
		TenantID:  tenantID,
		Kind:      domain.EventInbound,
		MessageID: firstOf(form, "MessageSid", "SmsSid"),
		Number:    from,
		Text:      form.Get("Body"),
		Name:      form.Get("ProfileName"),
		TS:        domain.NowUTC(),
		Raw:       formRaw(form),
	}, true
}

func firstOf(form url.Values, keys ...string) string {
	for _, k := range keys {
		if v := form.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// stripAddressScheme removes the channel prefix from addresses like
// "whatsapp:+5531999990000".
func stripAddressScheme(addr string) string {
	if i := strings.IndexByte(addr, ':'); i >= 0 {
		addr = addr[i+1:]
	}
	return strings.TrimPrefix(addr, "+")
}

// formRaw flattens the form into a one-value-per-key JSON object for the
// audit column.
func formRaw(form url.Values) json.RawMessage {
	flat := make(map[string]string, len(form))
	for k, vs := range form {
		if len(vs) > 0 {
			flat[k] = vs[0]
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return raw
}
