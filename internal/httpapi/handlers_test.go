package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"zapgw/internal/domain"
	"zapgw/internal/media"
	"zapgw/internal/pipeline"
	"zapgw/internal/store"
	"zapgw/internal/tenant"
)

type fakeAdapter struct {
	result domain.SendResult
	err    error
	gotReq domain.SendRequest
}

func (f *fakeAdapter) Send(_ context.Context, _ store.ProviderConfig, req domain.SendRequest) (domain.SendResult, error) {
	f.gotReq = req
	return f.result, f.err
}

func (f *gatewayFake) OptInStatus(_ context.Context, _ int64, _, _ string) (domain.OptInStatus, bool, error) {
	return "", false, nil
}

func newSendRouter(f *gatewayFake, adapter *fakeAdapter) *mux.Router {
	writer := &pipeline.Writer{Store: f}
	p := &pipeline.Pipeline{
		Store:  f,
		Writer: writer,
		Media:  &media.Resolver{PublicBase: "https://gw.example.com"},
		Adapters: map[domain.ProviderKind]pipeline.Adapter{
			domain.ProviderEvolution: adapter,
			domain.ProviderCloudAPI:  adapter,
			domain.ProviderTwilio:    adapter,
		},
		DefaultCC: "55",
	}
	api := &API{Pipeline: p, Configs: f}
	m := mux.NewRouter()
	api.Register(m)
	m.Use(WithTenant(tenant.NewResolver(f, "captar")))
	return m
}

func TestInstanceSendHappyPath(t *testing.T) {
	f := defaultFake()
	f.config.Kind = domain.ProviderEvolution
	adapter := &fakeAdapter{result: domain.SendResult{MessageIDs: []string{"3EB0"}, ProviderStatus: "PENDING"}}
	m := newSendRouter(f, adapter)

	body := `{"phone":"+55 (31) 99999-0000","message":"Olá","campanha_id":7}`
	req := httptest.NewRequest(http.MethodPost, "/integrations/whatsapp/send", strings.NewReader(body))
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp sendResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.MessageIDs) != 1 || resp.MessageIDs[0] != "3EB0" {
		t.Fatalf("resp %+v", resp)
	}
	if adapter.gotReq.To != "5531999990000" {
		t.Fatalf("normalized to = %q", adapter.gotReq.To)
	}
	if len(f.appended) != 1 || f.appended[0].Status != domain.StatusEnviado || *f.appended[0].CampaignID != 7 {
		t.Fatalf("log row %+v", f.appended)
	}
}

func TestSendErrorReturnsKindJSON(t *testing.T) {
	f := defaultFake()
	f.config.Kind = domain.ProviderEvolution
	adapter := &fakeAdapter{err: domain.E(domain.KindProviderUnreachable, "all candidates failed")}
	m := newSendRouter(f, adapter)

	body := `{"phone":"5531999990000","message":"Olá"}`
	req := httptest.NewRequest(http.MethodPost, "/integrations/whatsapp/send", strings.NewReader(body))
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != string(domain.KindProviderUnreachable) {
		t.Fatalf("error = %q", resp.Error)
	}
	if len(f.appended) != 1 || f.appended[0].Status != domain.StatusFalha {
		t.Fatalf("failure row missing: %+v", f.appended)
	}
}

func TestSendPoolExhaustedAnswers503(t *testing.T) {
	f := defaultFake()
	f.configErr = domain.E(domain.KindPoolExhausted, "db pool saturated, acquire timed out")
	m := newSendRouter(f, &fakeAdapter{})

	body := `{"phone":"5531999990000","message":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/integrations/whatsapp/send", strings.NewReader(body))
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rr.Code, rr.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != string(domain.KindPoolExhausted) {
		t.Fatalf("error = %q", resp.Error)
	}
	if len(f.appended) != 0 {
		t.Fatalf("no rows should be written, got %d", len(f.appended))
	}
}

func TestSendMissingPhone(t *testing.T) {
	f := defaultFake()
	m := newSendRouter(f, &fakeAdapter{})

	req := httptest.NewRequest(http.MethodPost, "/integrations/whatsapp/send", strings.NewReader(`{"message":"x"}`))
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestTelephonySendPassesContentRef(t *testing.T) {
	f := defaultFake()
	f.config.Kind = domain.ProviderTwilio
	adapter := &fakeAdapter{result: domain.SendResult{MessageIDs: []string{"SM1"}}}
	m := newSendRouter(f, adapter)

	body := `{"to":"5531999990000","content_sid":"HX123","content_variables":{"1":"Maria"},"channel":"WHATSAPP"}`
	req := httptest.NewRequest(http.MethodPost, "/telephony/send", strings.NewReader(body))
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if adapter.gotReq.ContentSID != "HX123" || adapter.gotReq.ContentVariables["1"] != "Maria" {
		t.Fatalf("content ref not forwarded: %+v", adapter.gotReq)
	}
}
