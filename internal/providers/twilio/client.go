// Package twilio is the telephony adapter. It covers the SMS, MMS and
// WhatsApp channels of the Messages API, including content-template sends.
package twilio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"zapgw/internal/domain"
	"zapgw/internal/providers"
	"zapgw/internal/store"
)

const defaultBaseURL = "https://api.twilio.com"

type Client struct {
	HTTP    *http.Client
	Breaker *gobreaker.CircuitBreaker
}

type sendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

// Send issues one Messages API call. The WhatsApp channel wraps both ends in
// the whatsapp: address scheme; MMS/WhatsApp media rides along as MediaUrl.
func (c *Client) Send(ctx context.Context, cfg store.ProviderConfig, req domain.SendRequest) (domain.SendResult, error) {
	form := url.Values{}
	form.Set("To", address(req.Channel, req.To))

	from := req.FromOverride
	if from == "" {
		from = cfg.DisplayNumber
	}
	if from != "" {
		form.Set("From", address(req.Channel, from))
	} else if cfg.MessagingServiceID != "" {
		form.Set("MessagingServiceSid", cfg.MessagingServiceID)
	}

	switch {
	case req.ContentSID != "":
		form.Set("ContentSid", req.ContentSID)
		if len(req.ContentVariables) > 0 {
			vars, err := json.Marshal(req.ContentVariables)
			if err != nil {
				return domain.SendResult{}, domain.Wrap(domain.KindInternal, err, "encode content variables")
			}
			form.Set("ContentVariables", string(vars))
		}
	default:
		if req.Body != "" {
			form.Set("Body", req.Body)
		}
		if req.MediaURL != "" {
			form.Set("MediaUrl", req.MediaURL)
		}
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	endpoint := "/2010-04-01/Accounts/" + cfg.APIKey + "/Messages.json"
	encoded := form.Encode()

	out, err := providers.DoCandidates(ctx, c.HTTP, c.Breaker, []string{strings.TrimRight(base, "/")}, func(b string) (*http.Request, error) {
		hr, err := http.NewRequest(http.MethodPost, b+endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		hr.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		hr.SetBasicAuth(cfg.APIKey, cfg.APISecret)
		return hr, nil
	})
	if err != nil {
		return domain.SendResult{}, err
	}

	var parsed sendResponse
	_ = json.Unmarshal(out.Body, &parsed)

	if out.Status < 200 || out.Status >= 300 {
		kind := domain.KindProviderError
		if out.Status == http.StatusUnauthorized {
			kind = domain.KindCredentialInvalid
		}
		detail := "telephony provider returned " + http.StatusText(out.Status)
		if parsed.Message != "" {
			detail = parsed.Message
		}
		return domain.SendResult{}, &domain.Error{Kind: kind, Detail: detail, UpstreamStatus: out.Status}
	}

	id := parsed.Sid
	if id == "" {
		id = providers.ExtractMessageID(out.Body)
	}
	return domain.SendResult{
		MessageIDs:     []string{id},
		ProviderStatus: parsed.Status,
		Raw:            out.Body,
	}, nil
}

// address applies the whatsapp: scheme on the WhatsApp channel.
func address(ch domain.Channel, number string) string {
	if ch == domain.ChannelWhatsApp && !strings.HasPrefix(number, "whatsapp:") {
		return "whatsapp:" + number
	}
	return number
}
