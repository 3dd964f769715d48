package correlate

import (
	"context"
	"testing"
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/pipeline"
	"zapgw/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want domain.ResponseClass
		ok   bool
	}{
		{"1", domain.RespostaSim, true},
		{"SIM", domain.RespostaSim, true},
		{"  Sim, pode contar comigo ", domain.RespostaSim, true},
		{"s", domain.RespostaSim, true},
		{"ok", domain.RespostaSim, true},
		{"NÃO", domain.RespostaNao, true},
		{"nao quero", domain.RespostaNao, true},
		{"2", domain.RespostaNao, true},
		{"n", domain.RespostaNao, true},
		{"talvez", 0, false},
		{"", 0, false},
		{"simulado", 0, false},
	}
	for _, tc := range cases {
		got, ok := Classify(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Classify(%q) = %v, %v; want %v, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestClassifyOptKeyword(t *testing.T) {
	if s, ok := ClassifyOptKeyword("SAIR"); !ok || s != domain.OptOut {
		t.Fatalf("SAIR => %v, %v", s, ok)
	}
	if s, ok := ClassifyOptKeyword("entrar"); !ok || s != domain.OptIn {
		t.Fatalf("entrar => %v, %v", s, ok)
	}
	if _, ok := ClassifyOptKeyword("sim"); ok {
		t.Fatal("sim is not an opt keyword")
	}
}

type fakeCorrStore struct {
	window   []store.LogEntry
	campaign store.Campaign

	appended []store.LogEntry
	patches  []int64
	tags     map[int64]string
	optIns   []store.OptInRow
	patchedR string
}

func (f *fakeCorrStore) AppendLog(_ context.Context, in store.LogEntry) (int64, error) {
	f.appended = append(f.appended, in)
	return int64(len(f.appended)), nil
}

func (f *fakeCorrStore) OutstandingSimNaoOut(_ context.Context, _ int64, _ int) ([]store.LogEntry, error) {
	return f.window, nil
}

func (f *fakeCorrStore) WithCampaignLock(_ context.Context, _, campaignID int64, fn func(c *store.Campaign) (bool, error)) error {
	changed, err := fn(&f.campaign)
	_ = changed
	return err
}

func (f *fakeCorrStore) PatchInRow(_ context.Context, id, _, _ int64, resposta string) error {
	f.patches = append(f.patches, id)
	f.patchedR = resposta
	return nil
}

func (f *fakeCorrStore) TagInRow(_ context.Context, id int64, reason string) error {
	if f.tags == nil {
		f.tags = map[int64]string{}
	}
	f.tags[id] = reason
	return nil
}

func (f *fakeCorrStore) UpsertOptIn(_ context.Context, in store.OptInRow) error {
	f.optIns = append(f.optIns, in)
	return nil
}

func campaignFixture() store.Campaign {
	return store.Campaign{
		ID:       10,
		TenantID: 1,
		Config:   store.CampaignConfig{ResponseMode: store.ResponseModeSimNao},
		Contatos: []store.Contact{
			{Nome: "Maria", Telefone: "5531999990000"},
			{Nome: "Joao", Telefone: "5531888880000"},
		},
		Enviados: 2, Aguardando: 2,
	}
}

func inboundEvent(number, text string) domain.Event {
	return domain.Event{
		TenantID: 1,
		Provider: domain.ProviderEvolution,
		Kind:     domain.EventInbound,
		Number:   number,
		Text:     text,
		TS:       time.Unix(1700000500, 0).UTC(),
	}
}

func newCorrelator(fs *fakeCorrStore) *Correlator {
	return &Correlator{Store: fs, Writer: &pipeline.Writer{Store: fs}}
}

func TestHandleInboundCorrelates(t *testing.T) {
	cid := int64(10)
	fs := &fakeCorrStore{
		campaign: campaignFixture(),
		window: []store.LogEntry{
			{ID: 100, CampaignID: &cid, Number: "5531999990000", Status: domain.StatusEntregue},
		},
	}
	c := newCorrelator(fs)

	c.HandleInbound(context.Background(), inboundEvent("5531999990000", "SIM"))

	ct := fs.campaign.Contatos[0]
	if ct.Resposta != 1 || ct.RespondidoEm == nil {
		t.Fatalf("contact not claimed: %+v", ct)
	}
	if fs.campaign.Positivos != 1 || fs.campaign.Negativos != 0 || fs.campaign.Aguardando != 1 {
		t.Fatalf("tallies %d/%d/%d", fs.campaign.Positivos, fs.campaign.Negativos, fs.campaign.Aguardando)
	}
	if len(fs.patches) != 1 || fs.patchedR != "SIM" {
		t.Fatalf("in-row patch missing: %v %q", fs.patches, fs.patchedR)
	}
	if len(fs.appended) != 1 || fs.appended[0].Direction != domain.DirectionIn {
		t.Fatalf("IN row not appended: %+v", fs.appended)
	}
}

func TestHandleInboundNinthDigitVariant(t *testing.T) {
	cid := int64(10)
	fs := &fakeCorrStore{
		campaign: campaignFixture(),
		window: []store.LogEntry{
			{ID: 100, CampaignID: &cid, Number: "5531999990000", Status: domain.StatusEnviado},
		},
	}
	c := newCorrelator(fs)

	// Reply arrives without the BR ninth digit.
	c.HandleInbound(context.Background(), inboundEvent("553199990000", "nao"))

	if fs.campaign.Contatos[0].Resposta != 2 || fs.campaign.Negativos != 1 {
		t.Fatalf("ninth-digit variant not matched: %+v", fs.campaign)
	}
}

func TestHandleInboundFirstReplyWins(t *testing.T) {
	cid := int64(10)
	fs := &fakeCorrStore{
		campaign: campaignFixture(),
		window: []store.LogEntry{
			{ID: 100, CampaignID: &cid, Number: "5531999990000", Status: domain.StatusEnviado},
		},
	}
	c := newCorrelator(fs)

	c.HandleInbound(context.Background(), inboundEvent("5531999990000", "1"))
	c.HandleInbound(context.Background(), inboundEvent("5531999990000", "2"))

	if fs.campaign.Contatos[0].Resposta != 1 {
		t.Fatalf("second reply overwrote the first: %+v", fs.campaign.Contatos[0])
	}
	if fs.campaign.Positivos != 1 || fs.campaign.Negativos != 0 {
		t.Fatalf("tallies %d/%d", fs.campaign.Positivos, fs.campaign.Negativos)
	}
	if fs.tags[2] != ReasonNoApplicableCampaign {
		t.Fatalf("second IN row tag = %q", fs.tags[2])
	}
}

func TestHandleInboundUnclassifiedLeavesTallies(t *testing.T) {
	cid := int64(10)
	fs := &fakeCorrStore{
		campaign: campaignFixture(),
		window: []store.LogEntry{
			{ID: 100, CampaignID: &cid, Number: "5531999990000", Status: domain.StatusEnviado},
		},
	}
	c := newCorrelator(fs)

	c.HandleInbound(context.Background(), inboundEvent("5531999990000", "talvez depois"))

	if len(fs.appended) != 1 {
		t.Fatal("IN row should still be appended")
	}
	if fs.campaign.Positivos != 0 || fs.campaign.Negativos != 0 {
		t.Fatal("unclassified text changed tallies")
	}
	if fs.tags[1] != ReasonNotSimNao {
		t.Fatalf("tag = %q", fs.tags[1])
	}
}

func TestHandleInboundNoMatchingOut(t *testing.T) {
	fs := &fakeCorrStore{campaign: campaignFixture()}
	c := newCorrelator(fs)

	c.HandleInbound(context.Background(), inboundEvent("5599111112222", "sim"))

	if fs.tags[1] != ReasonNoMatchingOut {
		t.Fatalf("tag = %q", fs.tags[1])
	}
}

func TestHandleInboundOptOutKeyword(t *testing.T) {
	fs := &fakeCorrStore{campaign: campaignFixture()}
	c := newCorrelator(fs)

	c.HandleInbound(context.Background(), inboundEvent("5531999990000", "SAIR"))

	if len(fs.optIns) != 1 || fs.optIns[0].Status != domain.OptOut {
		t.Fatalf("opt-out not recorded: %+v", fs.optIns)
	}
	if fs.campaign.Positivos != 0 && fs.campaign.Negativos != 0 {
		t.Fatal("keyword reply changed tallies")
	}
}
