package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"zapgw/internal/domain"
	"zapgw/internal/pipeline"
	"zapgw/internal/providers/evolution"
	"zapgw/internal/report"
	"zapgw/internal/store"
)

type ConfigStore interface {
	ActiveProviderConfig(ctx context.Context, tenantID int64, kind domain.ProviderKind, pinnedID *int64) (store.ProviderConfig, bool, error)
}

type API struct {
	Pipeline *pipeline.Pipeline
	Probe    *evolution.Client
	Configs  ConfigStore
	Grid     *report.Materializer
}

func (a *API) Register(m *mux.Router) {
	m.HandleFunc("/integrations/whatsapp/send", a.handleInstanceSend).Methods(http.MethodPost)
	m.HandleFunc("/integrations/whatsapp/whatsapp-numbers", a.handleProbeNumbers).Methods(http.MethodPost)
	m.HandleFunc("/cloud/send", a.handleCloudSend).Methods(http.MethodPost)
	m.HandleFunc("/telephony/send", a.handleTelephonySend).Methods(http.MethodPost)
	m.HandleFunc("/campaigns/{id}/grid", a.handleGrid).Methods(http.MethodGet)
}

type instanceSendRequest struct {
	Phone        string `json:"phone"`
	Message      string `json:"message"`
	MediaURL     string `json:"media_url"`
	MediaType    string `json:"media_type"`
	TextPosition string `json:"text_position"`
	CampanhaID   *int64 `json:"campanha_id"`
	ContatoNome  string `json:"contato_nome"`
	ProviderID   *int64 `json:"provider_id"`
}

func (a *API) handleInstanceSend(w http.ResponseWriter, r *http.Request) {
	var in instanceSendRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	if in.Phone == "" {
		http.Error(w, errMissingFields, http.StatusBadRequest)
		return
	}

	req := domain.SendRequest{
		TenantID:         TenantFrom(r.Context()).ID,
		CampaignID:       in.CampanhaID,
		To:               in.Phone,
		ContactName:      in.ContatoNome,
		Body:             in.Message,
		MediaURL:         in.MediaURL,
		MediaType:        in.MediaType,
		TextPosition:     domain.TextPosition(in.TextPosition),
		ProviderConfigID: in.ProviderID,
		PublicBaseHint:   requestBase(r),
	}
	a.send(w, r, domain.ProviderEvolution, req)
}

type cloudSendRequest struct {
	To           string `json:"to"`
	Body         string `json:"body"`
	MediaID      string `json:"media_id"`
	MediaURL     string `json:"media_url"`
	MediaType    string `json:"media_type"`
	TextPosition string `json:"text_position"`
	Template     *struct {
		Name     string `json:"name"`
		Language string `json:"language"`
	} `json:"template"`
}

func (a *API) handleCloudSend(w http.ResponseWriter, r *http.Request) {
	var in cloudSendRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	if in.To == "" {
		http.Error(w, errMissingFields, http.StatusBadRequest)
		return
	}

	req := domain.SendRequest{
		TenantID:       TenantFrom(r.Context()).ID,
		To:             in.To,
		Body:           in.Body,
		MediaID:        in.MediaID,
		MediaURL:       in.MediaURL,
		MediaType:      in.MediaType,
		TextPosition:   domain.TextPosition(in.TextPosition),
		PublicBaseHint: requestBase(r),
	}
	if in.Template != nil {
		req.TemplateName = in.Template.Name
		req.TemplateLang = in.Template.Language
	}
	a.send(w, r, domain.ProviderCloudAPI, req)
}

type telephonySendRequest struct {
	To               string            `json:"to"`
	Channel          string            `json:"channel"`
	Body             string            `json:"body"`
	MediaURLs        []string          `json:"media_urls"`
	FromOverride     string            `json:"from_override"`
	ContentSID       string            `json:"content_sid"`
	ContentVariables map[string]string `json:"content_variables"`
}

func (a *API) handleTelephonySend(w http.ResponseWriter, r *http.Request) {
	var in telephonySendRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	if in.To == "" {
		http.Error(w, errMissingFields, http.StatusBadRequest)
		return
	}

	req := domain.SendRequest{
		TenantID:         TenantFrom(r.Context()).ID,
		Channel:          domain.Channel(in.Channel),
		To:               in.To,
		Body:             in.Body,
		FromOverride:     in.FromOverride,
		ContentSID:       in.ContentSID,
		ContentVariables: in.ContentVariables,
		PublicBaseHint:   requestBase(r),
	}
	if len(in.MediaURLs) > 0 {
		req.MediaURL = in.MediaURLs[0]
	}
	a.send(w, r, domain.ProviderTwilio, req)
}

type sendResponse struct {
	MessageIDs     []string `json:"message_ids"`
	ProviderStatus string   `json:"provider_status,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (a *API) send(w http.ResponseWriter, r *http.Request, kind domain.ProviderKind, req domain.SendRequest) {
	res, err := a.Pipeline.Send(r.Context(), kind, req)
	if err != nil {
		slog.Error("send failed",
			"err", err,
			"provider", kind,
			"tenant_id", req.TenantID,
			"to", req.To,
		)
		writeJSON(w, domain.HTTPStatusOf(err), errorResponse{
			Error:  string(domain.KindOf(err)),
			Detail: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{MessageIDs: res.MessageIDs, ProviderStatus: res.ProviderStatus})
}

type probeRequest struct {
	Numbers []string `json:"numbers"`
}

type probeResponse struct {
	Rows []probeRow `json:"rows"`
}

type probeRow struct {
	Number     string `json:"number"`
	IsWhatsApp bool   `json:"is_whatsapp"`
	JID        string `json:"jid,omitempty"`
}

func (a *API) handleProbeNumbers(w http.ResponseWriter, r *http.Request) {
	var in probeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, errInvalidJSON, http.StatusBadRequest)
		return
	}
	if len(in.Numbers) == 0 {
		http.Error(w, errMissingFields, http.StatusBadRequest)
		return
	}

	t := TenantFrom(r.Context())
	cfg, found, err := a.Configs.ActiveProviderConfig(r.Context(), t.ID, domain.ProviderEvolution, nil)
	if err != nil {
		slog.Error("probe config load failed", "err", err, "tenant_id", t.ID)
		http.Error(w, "dependency error", http.StatusBadGateway)
		return
	}
	if !found || !cfg.Enabled {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(domain.KindConfigMissing)})
		return
	}

	rows, err := a.Probe.ProbeNumbers(r.Context(), cfg, in.Numbers)
	if err != nil {
		slog.Error("number probe failed", "err", err, "tenant_id", t.ID)
		writeJSON(w, domain.HTTPStatusOf(err), errorResponse{
			Error:  string(domain.KindOf(err)),
			Detail: err.Error(),
		})
		return
	}

	out := probeResponse{Rows: make([]probeRow, 0, len(rows))}
	for _, row := range rows {
		out.Rows = append(out.Rows, probeRow{Number: row.Number, IsWhatsApp: row.IsWhatsApp, JID: row.JID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGrid(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "bad campaign id", http.StatusBadRequest)
		return
	}
	t := TenantFrom(r.Context())
	grid, err := a.Grid.Build(r.Context(), t.ID, id)
	if err != nil {
		slog.Error("grid build failed", "err", err, "tenant_id", t.ID, "campaign_id", id)
		writeJSON(w, domain.HTTPStatusOf(err), errorResponse{
			Error:  string(domain.KindOf(err)),
			Detail: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestBase reconstructs the caller-visible base URL, honoring forwarded
// headers, for the media resolver's public-base fallback.
func requestBase(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}
	return scheme + "://" + host
}
