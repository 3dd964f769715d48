package store

import (
	"encoding/json"
	"time"

	"zapgw/internal/domain"
)

type Tenant struct {
	ID   int64
	Slug string
}

// ProviderConfig is one per-tenant provider profile. Secrets arrive decrypted;
// the pg layer owns at-rest encryption.
type ProviderConfig struct {
	ID       int64
	TenantID int64
	Kind     domain.ProviderKind
	Slug     string

	BaseURL    string
	APIVersion string

	AccessToken   string
	APIKey        string
	APISecret     string
	SigningSecret string
	VerifyToken   string

	PhoneNumberID      string
	DisplayNumber      string
	MessagingServiceID string
	InstanceName       string

	Channels          []domain.Channel
	ValidateSignature bool
	Enabled           bool

	CreatedAt time.Time
}

func (c ProviderConfig) ChannelEnabled(ch domain.Channel) bool {
	for _, have := range c.Channels {
		if have == ch {
			return true
		}
	}
	return false
}

// LogEntry is one delivery-log row: an outbound attempt, an inbound message or
// an unclassified webhook fragment. Append-mostly; only the receipt reconciler
// and the correlator patch it.
type LogEntry struct {
	ID         int64
	TenantID   int64
	CampaignID *int64
	Channel    domain.Channel
	Direction  domain.Direction

	Number string
	Name   string
	Body   string
	Media  string

	Status      domain.Status
	TS          time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time

	MessageID string
	Provider  string
	Raw       json.RawMessage

	// Set on IN rows matched to a campaign.
	RepliedToID *int64
	Resposta    string
	// Reason an IN row stayed uncorrelated (no_matching_out, conflict, ...).
	ReasonTag string
}

// Contact is one element of a campaign's embedded contact list.
type Contact struct {
	Nome      string     `json:"nome"`
	Telefone  string     `json:"telefone"`
	Status    string     `json:"status,omitempty"`
	Erro      string     `json:"erro,omitempty"`
	EnviadoEm *time.Time `json:"enviado_em,omitempty"`

	// 1 = SIM, 2 = NAO; immutable once set (first reply wins).
	Resposta     int        `json:"resposta,omitempty"`
	RespondidoEm *time.Time `json:"respondido_em,omitempty"`
}

type CampaignConfig struct {
	ResponseMode  string `json:"response_mode,omitempty"`
	UsarEleitores bool   `json:"usar_eleitores,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
}

const ResponseModeSimNao = "SIM_NAO"

type Campaign struct {
	ID       int64
	TenantID int64
	Nome     string

	Config   CampaignConfig
	Contatos []Contact

	Enviados   int
	Positivos  int
	Negativos  int
	Aguardando int

	CreatedAt time.Time
}

// Receipt is one provider receipt row in the side table, replayed by the grid
// materializer when the delivery log missed the live event.
type Receipt struct {
	ID        int64
	TenantID  int64
	Provider  string
	MessageID string
	Status    string
	TS        time.Time
	Raw       json.RawMessage
}

type OptInRow struct {
	TenantID int64
	Number   string
	Provider string
	Status   domain.OptInStatus
	Source   string
	TS       time.Time
}

// Voter is a row of the tenant's voter table, the substitute contact source
// for campaigns flagged usar_eleitores.
type Voter struct {
	Nome     string
	Telefone string
}

// ReceiptPatch is the reconciler's write-back against one OUT row.
type ReceiptPatch struct {
	ID          int64
	Status      domain.Status
	DeliveredAt *time.Time
	ReadAt      *time.Time
}
