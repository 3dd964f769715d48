package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"zapgw/internal/correlate"
	"zapgw/internal/domain"
	"zapgw/internal/observability"
	"zapgw/internal/pipeline"
	"zapgw/internal/presence"
	"zapgw/internal/providers/cloudapi"
	"zapgw/internal/providers/twilio"
	"zapgw/internal/receipts"
	"zapgw/internal/store"
	"zapgw/internal/webhook"
)

const maxWebhookBody = 1 << 20

type Webhook struct {
	Configs    ConfigStore
	Reconciler *receipts.Reconciler
	Correlator *correlate.Correlator
	Writer     *pipeline.Writer
	Dedup      *webhook.Dedup
	Presence   *presence.Cache

	// PublicURL is the externally visible base used to reconstruct the
	// telephony signature input.
	PublicURL string
}

func (h *Webhook) Register(m *mux.Router) {
	m.HandleFunc("/integrations/whatsapp/webhook", h.handleInstance).Methods(http.MethodPost)
	m.HandleFunc("/cloud/webhook", h.handleCloudChallenge).Methods(http.MethodGet)
	m.HandleFunc("/cloud/webhook", h.handleCloud).Methods(http.MethodPost)
	m.HandleFunc("/telephony/webhook/inbound", h.handleTelephonyInbound).Methods(http.MethodPost)
	m.HandleFunc("/telephony/webhook/status", h.handleTelephonyStatus).Methods(http.MethodPost)
}

func (h *Webhook) handleInstance(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	t := TenantFrom(r.Context())

	dec, err := webhook.DecodeEvolution(t.ID, body)
	if err != nil {
		observability.WebhookRejected.WithLabelValues("evolution", "malformed").Inc()
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	h.dispatch(r.Context(), t.ID, "evolution", dec)
	w.WriteHeader(http.StatusOK)
}

func (h *Webhook) handleCloudChallenge(w http.ResponseWriter, r *http.Request) {
	t := TenantFrom(r.Context())
	cfg, found, err := h.Configs.ActiveProviderConfig(r.Context(), t.ID, domain.ProviderCloudAPI, nil)
	if err != nil || !found {
		http.Error(w, errUnknownTenant, http.StatusForbidden)
		return
	}
	q := r.URL.Query()
	echo, ok := cloudapi.VerifyChallenge(cfg.VerifyToken, q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		observability.WebhookRejected.WithLabelValues("cloudapi", "challenge").Inc()
		http.Error(w, errInvalidSignature, http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte(echo))
}

func (h *Webhook) handleCloud(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	t := TenantFrom(r.Context())

	cfg, found, err := h.Configs.ActiveProviderConfig(r.Context(), t.ID, domain.ProviderCloudAPI, nil)
	if err != nil {
		slog.Error("cloud webhook config load failed", "err", err, "tenant_id", t.ID)
		http.Error(w, "dependency error", http.StatusBadGateway)
		return
	}
	if found && cfg.ValidateSignature {
		if !cloudapi.VerifySignature(cfg.SigningSecret, body, r.Header.Get("X-Hub-Signature-256")) {
			observability.WebhookRejected.WithLabelValues("cloudapi", "signature").Inc()
			http.Error(w, errInvalidSignature, http.StatusForbidden)
			return
		}
	}

	dec, err := webhook.DecodeCloudAPI(t.ID, body)
	if err != nil {
		observability.WebhookRejected.WithLabelValues("cloudapi", "malformed").Inc()
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	h.dispatch(r.Context(), t.ID, "cloudapi", dec)
	w.WriteHeader(http.StatusOK)
}

func (h *Webhook) handleTelephonyInbound(w http.ResponseWriter, r *http.Request) {
	form, ok := h.telephonyForm(w, r, "/telephony/webhook/inbound")
	if !ok {
		return
	}
	t := TenantFrom(r.Context())
	ev, ok := webhook.DecodeTwilioInbound(t.ID, form)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.dispatch(r.Context(), t.ID, "twilio", webhook.Decoded{Events: []domain.Event{ev}})
	w.WriteHeader(http.StatusOK)
}

func (h *Webhook) handleTelephonyStatus(w http.ResponseWriter, r *http.Request) {
	form, ok := h.telephonyForm(w, r, "/telephony/webhook/status")
	if !ok {
		return
	}
	t := TenantFrom(r.Context())
	ev, ok := webhook.DecodeTwilioStatus(t.ID, form)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.dispatch(r.Context(), t.ID, "twilio", webhook.Decoded{Events: []domain.Event{ev}})
	w.WriteHeader(http.StatusOK)
}

func (h *Webhook) telephonyForm(w http.ResponseWriter, r *http.Request, path string) (url.Values, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, errBadForm, http.StatusBadRequest)
		return nil, false
	}
	t := TenantFrom(r.Context())
	cfg, found, err := h.Configs.ActiveProviderConfig(r.Context(), t.ID, domain.ProviderTwilio, nil)
	if err != nil {
		slog.Error("telephony webhook config load failed", "err", err, "tenant_id", t.ID)
		http.Error(w, "dependency error", http.StatusBadGateway)
		return nil, false
	}
	if found && cfg.ValidateSignature {
		if !twilio.VerifySignature(cfg.APISecret, h.PublicURL+path, r.Header.Get("X-Twilio-Signature"), r.PostForm) {
			observability.WebhookRejected.WithLabelValues("twilio", "signature").Inc()
			http.Error(w, errInvalidSignature, http.StatusForbidden)
			return nil, false
		}
	}
	return r.PostForm, true
}

// dispatch routes each normalized event: statuses to the reconciler, inbound
// messages to the correlator (behind the dedup filter), presence to the
// cache. Unhandled fragments land in the log as WEBHOOK rows. Errors are
// absorbed so the provider never retries fragments that already landed.
func (h *Webhook) dispatch(ctx context.Context, tenantID int64, provider string, dec webhook.Decoded) {
	for _, ev := range dec.Events {
		observability.WebhookEvents.WithLabelValues(provider, string(ev.Kind)).Inc()
		switch ev.Kind {
		case domain.EventStatus:
			if _, err := h.Reconciler.ApplyStatus(ctx, ev); err != nil {
				slog.Error("receipt apply failed", "err", err, "provider", provider, "message_id", ev.MessageID)
			}
		case domain.EventInbound:
			if !h.Dedup.FirstSeen(ctx, ev) {
				observability.WebhookRejected.WithLabelValues(provider, "duplicate").Inc()
				continue
			}
			h.Correlator.HandleInbound(ctx, ev)
		case domain.EventPresence:
			if err := h.Presence.Set(ctx, tenantID, ev.Number, ev.Presence); err != nil {
				slog.Warn("presence cache set failed", "err", err, "number", ev.Number)
			}
		}
	}
	for _, raw := range dec.Unhandled {
		h.Writer.Append(ctx, store.LogEntry{
			TenantID:  tenantID,
			Channel:   domain.ChannelWhatsApp,
			Direction: domain.DirectionWebhook,
			Status:    domain.StatusRecebido,
			TS:        domain.NowUTC(),
			Provider:  provider,
			Raw:       raw,
		})
	}
}
