// Package cloudapi is the Meta Cloud API adapter: bearer-token Graph calls,
// HMAC-SHA256 webhook signatures and the hub.challenge verification handshake.
package cloudapi

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

const defaultGraphBase = "https://graph.facebook.com"
const defaultAPIVersion = "v19.0"

type Client struct {
	HTTP    *http.Client
	Breaker *gobreaker.CircuitBreaker
}

type message struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Image            *mediaBody    `json:"image,omitempty"`
	Video            *mediaBody    `json:"video,omitempty"`
	Audio            *mediaBody    `json:"audio,omitempty"`
	Document         *mediaBody    `json:"document,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type mediaBody struct {
	ID      string `json:"id,omitempty"`
	Link    string `json:"link,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type templateBody struct {
	Name     string       `json:"name"`
	Language templateLang `json:"language"`
}

type templateLang struct {
	Code string `json:"code"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send issues the Graph call(s) for req. text_position=top produces two sends
// (text first); otherwise media carries the body as caption.
func (c *Client) Send(ctx context.Context, cfg store.ProviderConfig, req domain.SendRequest) (domain.SendResult, error) {
	var msgs []message

	switch {
	case req.TemplateName != "":
		lang := req.TemplateLang
		if lang == "" {
			lang = "pt_BR"
		}
		msgs = []message{{
			To: req.To, Type: "template",
			Template: &templateBody{Name: req.TemplateName, Language: templateLang{Code: lang}},
		}}
	case req.MediaURL == "" && req.MediaID == "":
		msgs = []message{{To: req.To, Type: "text", Text: &textBody{Body: req.Body}}}
	case req.Body != "" && req.TextPosition == domain.TextTop:
		msgs = []message{
			{To: req.To, Type: "text", Text: &textBody{Body: req.Body}},
			mediaMessage(req.To, req.MediaType, req.MediaURL, req.MediaID, ""),
		}
	default:
		msgs = []message{mediaMessage(req.To, req.MediaType, req.MediaURL, req.MediaID, req.Body)}
	}

	var result domain.SendResult
	for i := range msgs {
		msgs[i].MessagingProduct = "whatsapp"
		out, err := c.post(ctx, cfg, msgs[i])
		if err != nil {
			return result, err
		}
		result.MessageIDs = append(result.MessageIDs, out.id)
		result.ProviderStatus = "accepted"
		result.Raw = out.raw
	}
	return result, nil
}

type postResult struct {
	id  string
	raw []byte
}

func (c *Client) post(ctx context.Context, cfg store.ProviderConfig, msg message) (postResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return postResult{}, domain.Wrap(domain.KindInternal, err, "encode cloud message")
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultGraphBase
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	endpoint := "/" + version + "/" + cfg.PhoneNumberID + "/messages"

	out, err := providers.DoCandidates(ctx, c.HTTP, c.Breaker, []string{base}, func(b string) (*http.Request, error) {
		hr, err := http.NewRequest(http.MethodPost, b+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		hr.Header.Set("Content-Type", "application/json")
		hr.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
		return hr, nil
	})
	if err != nil {
		return postResult{}, err
	}

	var parsed sendResponse
	_ = json.Unmarshal(out.Body, &parsed)

	if out.Status < 200 || out.Status >= 300 {
		kind := domain.KindProviderError
		if out.Status == http.StatusUnauthorized || out.Status == http.StatusForbidden {
			kind = domain.KindCredentialInvalid
		}
		detail := "cloud api returned " + http.StatusText(out.Status)
		if parsed.Error != nil && parsed.Error.Message != "" {
			detail = parsed.Error.Message
		}
		return postResult{}, &domain.Error{Kind: kind, Detail: detail, UpstreamStatus: out.Status}
	}

	id := ""
	if len(parsed.Messages) > 0 {
		id = parsed.Messages[0].ID
	}
	if id == "" {
		id = providers.ExtractMessageID(out.Body)
	}
	return postResult{id: id, raw: out.Body}, nil
}

func mediaMessage(to, mediaType, link, id, caption string) message {
	m := message{To: to}
	body := &mediaBody{ID: id, Link: link, Caption: caption}
	switch mediaType {
	case "video":
		m.Type, m.Video = "video", body
	case "audio":
		body.Caption = ""
		m.Type, m.Audio = "audio", body
	case "document":
		m.Type, m.Document = "document", body
	default:
		m.Type, m.Image = "image", body
	}
	return m
}
