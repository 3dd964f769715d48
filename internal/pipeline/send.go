// Package pipeline is the provider-agnostic send path: config resolution,
// validation, consent, media resolution, adapter dispatch and log writes.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/media"
	"zapgw/internal/observability"
	"zapgw/internal/phone"
	"zapgw/internal/store"
)

type Store interface {
	ActiveProviderConfig(ctx context.Context, tenantID int64, kind domain.ProviderKind, pinnedID *int64) (store.ProviderConfig, bool, error)
	OptInStatus(ctx context.Context, tenantID int64, number, provider string) (domain.OptInStatus, bool, error)
}

// Adapter is the uniform provider contract. Adapters never touch the
// delivery log or campaign state.
type Adapter interface {
	Send(ctx context.Context, cfg store.ProviderConfig, req domain.SendRequest) (domain.SendResult, error)
}

type Pipeline struct {
	Store    Store
	Writer   *Writer
	Media    *media.Resolver
	Adapters map[domain.ProviderKind]Adapter

	DefaultCC     string
	OptInEnforced bool
}

// Send runs the full outbound path for one request. Every surfaced error
// leaves a FALHA row behind carrying the error kind; every successful adapter
// call leaves one ENVIADO row per message id.
func (p *Pipeline) Send(ctx context.Context, kind domain.ProviderKind, req domain.SendRequest) (domain.SendResult, error) {
	cfg, found, err := p.Store.ActiveProviderConfig(ctx, req.TenantID, kind, req.ProviderConfigID)
	if err != nil {
		return domain.SendResult{}, domain.Internal(err, "load provider config")
	}
	if !found {
		return domain.SendResult{}, domain.Ef(domain.KindConfigMissing, "no %s config for tenant", kind)
	}
	if !cfg.Enabled {
		return domain.SendResult{}, domain.Ef(domain.KindConfigDisabled, "%s config is disabled", kind)
	}

	if req.Channel == "" {
		req.Channel = domain.ChannelWhatsApp
	}
	req.To = phone.DigitsOnly(phone.NormalizeE164(req.To, p.DefaultCC))
	if req.To == "" {
		err := domain.E(domain.KindDestinationInvalid, "destination empty after normalization")
		p.recordFailure(ctx, kind, req, err, "")
		return domain.SendResult{}, err
	}
	if req.Body == "" && req.MediaURL == "" && req.MediaID == "" && req.TemplateName == "" && req.ContentSID == "" {
		err := domain.E(domain.KindContentMissing, "nothing to send: body, media, template and content are all empty")
		p.recordFailure(ctx, kind, req, err, "")
		return domain.SendResult{}, err
	}
	if len(cfg.Channels) > 0 && !cfg.ChannelEnabled(req.Channel) {
		err := domain.Ef(domain.KindChannelNotEnabled, "channel %s not enabled for this config", req.Channel)
		p.recordFailure(ctx, kind, req, err, "")
		return domain.SendResult{}, err
	}

	if p.OptInEnforced && kind == domain.ProviderTwilio && req.Channel == domain.ChannelWhatsApp {
		status, found, oerr := p.Store.OptInStatus(ctx, req.TenantID, req.To, string(kind))
		if oerr != nil {
			return domain.SendResult{}, domain.Internal(oerr, "opt-in lookup")
		}
		if !found || status != domain.OptIn {
			err := domain.E(domain.KindConsentMissing, "no opt-in registered for destination")
			p.recordFailure(ctx, kind, req, err, "SEM_OPTIN")
			return domain.SendResult{}, err
		}
	}

	if req.MediaURL != "" {
		resolved, merr := p.Media.Resolve(req.MediaURL, req.PublicBaseHint, media.PolicyFor(kind, req.Channel))
		if merr != nil {
			p.recordFailure(ctx, kind, req, merr, "")
			return domain.SendResult{}, merr
		}
		req.MediaURL = resolved
	}

	adapter, ok := p.Adapters[kind]
	if !ok {
		return domain.SendResult{}, domain.Ef(domain.KindInternal, "no adapter registered for %s", kind)
	}

	start := time.Now()
	result, err := adapter.Send(ctx, cfg, req)
	observability.SendLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.Sends.WithLabelValues(string(kind), "error").Inc()
		p.recordFailure(ctx, kind, req, err, "")
		return domain.SendResult{}, err
	}
	observability.Sends.WithLabelValues(string(kind), "ok").Inc()

	now := domain.NowUTC()
	for _, msgID := range result.MessageIDs {
		p.Writer.Append(ctx, store.LogEntry{
			TenantID:   req.TenantID,
			CampaignID: req.CampaignID,
			Channel:    req.Channel,
			Direction:  domain.DirectionOut,
			Number:     req.To,
			Name:       req.ContactName,
			Body:       req.Body,
			Media:      req.MediaURL,
			Status:     domain.StatusEnviado,
			TS:         now,
			MessageID:  msgID,
			Provider:   string(kind),
			Raw:        result.Raw,
		})
	}
	return result, nil
}

// recordFailure writes the FALHA row for a surfaced error, embedding the
// taxonomy kind in the raw payload so the campaign grid can show the reason.
func (p *Pipeline) recordFailure(ctx context.Context, kind domain.ProviderKind, req domain.SendRequest, cause error, reason string) {
	payload := map[string]string{
		"error_kind": string(domain.KindOf(cause)),
		"detail":     cause.Error(),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	raw, _ := json.Marshal(payload)

	p.Writer.Append(ctx, store.LogEntry{
		TenantID:   req.TenantID,
		CampaignID: req.CampaignID,
		Channel:    req.Channel,
		Direction:  domain.DirectionOut,
		Number:     req.To,
		Name:       req.ContactName,
		Body:       req.Body,
		Media:      req.MediaURL,
		Status:     domain.StatusFalha,
		TS:         domain.NowUTC(),
		Provider:   string(kind),
		Raw:        raw,
	})
}
