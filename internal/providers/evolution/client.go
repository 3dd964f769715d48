// Package evolution is the adapter for the self-hosted WhatsApp instance
// manager. Auth is an apikey header; sends are instance-scoped endpoints and
// responses carry the message id under key.id.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/sony/gobreaker"

	"zapgw/internal/domain"
	"zapgw/internal/providers"
	"zapgw/internal/store"
)

type Client struct {
	HTTP       *http.Client
	Breaker    *gobreaker.CircuitBreaker
	Colocation providers.Colocation
}

type textPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type mediaPayload struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
}

// Send issues one or two instance-manager calls depending on the text
// position and returns the ordered message ids.
func (c *Client) Send(ctx context.Context, cfg store.ProviderConfig, req domain.SendRequest) (domain.SendResult, error) {
	type call struct {
		endpoint string
		payload  any
	}
	var calls []call

	text := call{"/message/sendText/" + cfg.InstanceName, textPayload{Number: req.To, Text: req.Body}}
	media := call{"/message/sendMedia/" + cfg.InstanceName, mediaPayload{
		Number:    req.To,
		MediaType: mediaKind(req.MediaType),
		Media:     req.MediaURL,
	}}

	switch {
	case req.MediaURL == "":
		calls = []call{text}
	case req.Body == "":
		calls = []call{media}
	case req.TextPosition == domain.TextTop:
		// Two independent sends, text strictly first.
		calls = []call{text, media}
	default:
		// Caption ride-along keeps it a single send.
		media.payload = mediaPayload{
			Number:    req.To,
			MediaType: mediaKind(req.MediaType),
			Media:     req.MediaURL,
			Caption:   req.Body,
		}
		calls = []call{media}
	}

	bases := providers.Candidates(cfg.BaseURL, c.Colocation)
	var result domain.SendResult
	for _, cl := range calls {
		body, err := json.Marshal(cl.payload)
		if err != nil {
			return result, domain.Wrap(domain.KindInternal, err, "encode payload")
		}
		out, err := providers.DoCandidates(ctx, c.HTTP, c.Breaker, bases, func(base string) (*http.Request, error) {
			hr, err := http.NewRequest(http.MethodPost, base+cl.endpoint, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			hr.Header.Set("Content-Type", "application/json")
			hr.Header.Set("apikey", cfg.APIKey)
			return hr, nil
		})
		if err != nil {
			return result, err
		}
		if out.Status < 200 || out.Status >= 300 {
			return result, apiError(out)
		}
		result.MessageIDs = append(result.MessageIDs, providers.ExtractMessageID(out.Body))
		result.ProviderStatus = "PENDING"
		result.Raw = out.Body
	}
	return result, nil
}

type probePayload struct {
	Numbers []string `json:"numbers"`
}

type ProbeRow struct {
	Number     string `json:"number"`
	IsWhatsApp bool   `json:"is_whatsapp"`
	JID        string `json:"jid,omitempty"`
}

// ProbeNumbers asks whether the numbers are registered on WhatsApp.
func (c *Client) ProbeNumbers(ctx context.Context, cfg store.ProviderConfig, numbers []string) ([]ProbeRow, error) {
	body, err := json.Marshal(probePayload{Numbers: numbers})
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "encode probe payload")
	}
	bases := providers.Candidates(cfg.BaseURL, c.Colocation)
	out, err := providers.DoCandidates(ctx, c.HTTP, c.Breaker, bases, func(base string) (*http.Request, error) {
		hr, err := http.NewRequest(http.MethodPost, base+"/chat/whatsappNumbers/"+cfg.InstanceName, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		hr.Header.Set("Content-Type", "application/json")
		hr.Header.Set("apikey", cfg.APIKey)
		return hr, nil
	})
	if err != nil {
		return nil, err
	}
	if out.Status < 200 || out.Status >= 300 {
		return nil, apiError(out)
	}

	var raw []struct {
		Number string `json:"number"`
		Exists bool   `json:"exists"`
		JID    string `json:"jid"`
	}
	if err := json.Unmarshal(out.Body, &raw); err != nil {
		return nil, domain.Wrap(domain.KindProviderError, err, "decode probe response")
	}
	rows := make([]ProbeRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, ProbeRow{Number: r.Number, IsWhatsApp: r.Exists, JID: r.JID})
	}
	return rows, nil
}

func mediaKind(mediaType string) string {
	switch {
	case mediaType == "":
		return "image"
	case mediaType == "video" || mediaType == "audio" || mediaType == "document" || mediaType == "image":
		return mediaType
	}
	// MIME form like image/png.
	for _, k := range []string{"image", "video", "audio"} {
		if len(mediaType) > len(k) && mediaType[:len(k)] == k {
			return k
		}
	}
	return "document"
}

func apiError(out providers.Outcome) error {
	kind := domain.KindProviderError
	if out.Status == http.StatusUnauthorized || out.Status == http.StatusForbidden {
		kind = domain.KindCredentialInvalid
	}
	return &domain.Error{
		Kind:           kind,
		Detail:         "instance manager returned " + http.StatusText(out.Status),
		UpstreamStatus: out.Status,
	}
}
