package correlate

import (
	"context"
	"log/slog"

	"zapgw/internal/domain"
	"zapgw/internal/observability"
	"zapgw/internal/phone"
	"zapgw/internal/pipeline"
	"zapgw/internal/store"
)

// Reason tags left on IN rows that stayed uncorrelated.
const (
	ReasonNotSimNao            = "not_sim_nao"
	ReasonNoMatchingOut        = "no_matching_out"
	ReasonNoApplicableCampaign = "no_applicable_campaign"
	ReasonConflict             = "conflict"
)

const outstandingWindow = 500

type Store interface {
	OutstandingSimNaoOut(ctx context.Context, tenantID int64, limit int) ([]store.LogEntry, error)
	WithCampaignLock(ctx context.Context, tenantID, campaignID int64, fn func(c *store.Campaign) (bool, error)) error
	PatchInRow(ctx context.Context, id, campaignID, repliedToID int64, resposta string) error
	TagInRow(ctx context.Context, id int64, reason string) error
	UpsertOptIn(ctx context.Context, in store.OptInRow) error
}

type Correlator struct {
	Store  Store
	Writer *pipeline.Writer
}

// HandleInbound processes one normalized inbound event end to end: it appends
// the IN log row, honors subscription keywords, classifies the reply and
// walks the outstanding OUT window looking for the campaign contact that
// solicited it. Errors are absorbed; the webhook caller only ever sees a
// success so the provider does not retry fragments that already landed.
func (c *Correlator) HandleInbound(ctx context.Context, ev domain.Event) {
	rowID := c.Writer.Append(ctx, store.LogEntry{
		TenantID:  ev.TenantID,
		Channel:   domain.ChannelWhatsApp,
		Direction: domain.DirectionIn,
		Number:    phone.DigitsOnly(ev.Number),
		Name:      ev.Name,
		Body:      ev.Text,
		Status:    domain.StatusRecebido,
		TS:        ev.TS.UTC(),
		MessageID: ev.MessageID,
		Provider:  string(ev.Provider),
		Raw:       ev.Raw,
	})

	if status, ok := ClassifyOptKeyword(ev.Text); ok {
		if err := c.Store.UpsertOptIn(ctx, store.OptInRow{
			TenantID: ev.TenantID,
			Number:   phone.DigitsOnly(ev.Number),
			Provider: string(ev.Provider),
			Status:   status,
			Source:   "keyword",
			TS:       ev.TS.UTC(),
		}); err != nil {
			slog.Error("opt keyword upsert failed", "err", err, "number", ev.Number)
		}
		observability.Correlations.WithLabelValues("opt_keyword").Inc()
		return
	}

	class, ok := Classify(ev.Text)
	if !ok {
		c.tag(ctx, rowID, ReasonNotSimNao)
		observability.Correlations.WithLabelValues(ReasonNotSimNao).Inc()
		return
	}

	window, err := c.Store.OutstandingSimNaoOut(ctx, ev.TenantID, outstandingWindow)
	if err != nil {
		slog.Error("outstanding window load failed", "err", err, "tenant_id", ev.TenantID)
		return
	}

	matched := false
	for _, out := range window {
		if out.CampaignID == nil || !phone.Match(ev.Number, out.Number) {
			continue
		}
		matched = true
		if c.tryApply(ctx, ev, class, rowID, out) {
			observability.Correlations.WithLabelValues("correlated").Inc()
			return
		}
	}

	reason := ReasonNoMatchingOut
	if matched {
		reason = ReasonNoApplicableCampaign
	}
	c.tag(ctx, rowID, reason)
	observability.Correlations.WithLabelValues(reason).Inc()
}

// tryApply takes the campaign row lock and applies first-reply-wins. Returns
// true when this event claimed the contact.
func (c *Correlator) tryApply(ctx context.Context, ev domain.Event, class domain.ResponseClass, rowID int64, out store.LogEntry) bool {
	applied := false
	err := c.Store.WithCampaignLock(ctx, ev.TenantID, *out.CampaignID, func(camp *store.Campaign) (bool, error) {
		if camp.Config.ResponseMode != store.ResponseModeSimNao {
			return false, nil
		}
		for i := range camp.Contatos {
			ct := &camp.Contatos[i]
			if !phone.Match(ev.Number, ct.Telefone) {
				continue
			}
			if ct.Resposta == int(domain.RespostaSim) || ct.Resposta == int(domain.RespostaNao) {
				// First reply wins; a second classification never overwrites.
				return false, nil
			}
			ts := ev.TS.UTC()
			ct.Resposta = int(class)
			ct.RespondidoEm = &ts
			if class == domain.RespostaSim {
				camp.Positivos++
			} else {
				camp.Negativos++
			}
			camp.Aguardando = camp.Enviados - camp.Positivos - camp.Negativos
			if camp.Aguardando < 0 {
				camp.Aguardando = 0
			}
			applied = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		slog.Error("campaign lock apply failed", "err", err, "campaign_id", *out.CampaignID)
		return false
	}
	if !applied {
		return false
	}

	if rowID != 0 {
		if err := c.Store.PatchInRow(ctx, rowID, *out.CampaignID, out.ID, class.Label()); err != nil {
			slog.Error("in-row patch failed", "err", err, "row_id", rowID)
		}
	}
	return true
}

func (c *Correlator) tag(ctx context.Context, rowID int64, reason string) {
	if rowID == 0 {
		return
	}
	if err := c.Store.TagInRow(ctx, rowID, reason); err != nil {
		slog.Error("in-row tag failed", "err", err, "row_id", rowID)
	}
}
