package domain

import "time"

type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
	ChannelMMS      Channel = "MMS"
)

type Direction string

const (
	DirectionOut     Direction = "OUT"
	DirectionIn      Direction = "IN"
	DirectionWebhook Direction = "WEBHOOK"
)

// Status is the delivery-state lattice. ENVIADO <= ENTREGUE <= VISUALIZADO;
// FALHA is absorbing; RECEBIDO marks inbound rows.
type Status string

const (
	StatusEnviado     Status = "ENVIADO"
	StatusEntregue    Status = "ENTREGUE"
	StatusVisualizado Status = "VISUALIZADO"
	StatusFalha       Status = "FALHA"
	StatusRecebido    Status = "RECEBIDO"
)

// Rank positions a status on the lattice. FALHA and RECEBIDO sit outside it.
func (s Status) Rank() int {
	switch s {
	case StatusEnviado:
		return 1
	case StatusEntregue:
		return 2
	case StatusVisualizado:
		return 3
	}
	return 0
}

type ProviderKind string

const (
	ProviderEvolution ProviderKind = "evolution"
	ProviderCloudAPI  ProviderKind = "cloudapi"
	ProviderTwilio    ProviderKind = "twilio"
)

type TextPosition string

const (
	TextTop    TextPosition = "top"
	TextBottom TextPosition = "bottom"
)

// SendRequest is the provider-agnostic outbound request handed to the pipeline.
type SendRequest struct {
	TenantID    int64
	CampaignID  *int64
	Channel     Channel
	To          string
	ContactName string

	Body         string
	MediaURL     string
	MediaID      string
	MediaType    string
	TextPosition TextPosition

	// Cloud API template sends.
	TemplateName string
	TemplateLang string

	// Telephony content sends.
	ContentSID       string
	ContentVariables map[string]string

	FromOverride string

	// When set, pins a specific provider config instead of the most recent.
	ProviderConfigID *int64

	// Forwarded-header base derived from the caller's request, consumed by the
	// media resolver when no configured public base exists.
	PublicBaseHint string
}

// SendResult is the adapter's normalized outcome. MessageIDs preserves the
// order sends were issued in (text-then-media produces two ids).
type SendResult struct {
	MessageIDs     []string
	ProviderStatus string
	Raw            []byte
}

func (r SendResult) FirstID() string {
	if len(r.MessageIDs) == 0 {
		return ""
	}
	return r.MessageIDs[0]
}

type OptInStatus string

const (
	OptIn  OptInStatus = "OPT_IN"
	OptOut OptInStatus = "OPT_OUT"
)

// ResponseClass is the SIM/NAO classification of a correlated inbound reply.
type ResponseClass int

const (
	RespostaSim ResponseClass = 1
	RespostaNao ResponseClass = 2
)

func (c ResponseClass) Label() string {
	switch c {
	case RespostaSim:
		return "SIM"
	case RespostaNao:
		return "NAO"
	}
	return ""
}

// NowUTC returns the current time UTC-naive, the storage convention for every
// timestamp in the delivery log.
func NowUTC() time.Time { return time.Now().UTC() }
