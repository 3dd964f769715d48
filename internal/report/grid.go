// Package report materializes the per-campaign response grid: one row per
// contact carrying send, delivery, read and reply columns, plus aggregate
// tallies. The grid is derived on demand; the only write is the receipt
// backfill it triggers before reading.
package report

import (
	"context"
	"time"

	"zapgw/internal/domain"
	"zapgw/internal/phone"
	"zapgw/internal/receipts"
	"zapgw/internal/store"
)

const (
	StatusPendente   = "PENDENTE"
	StatusAguardando = "AGUARDANDO"
)

type Store interface {
	CampaignByID(ctx context.Context, tenantID, id int64) (store.Campaign, bool, error)
	CampaignLogRows(ctx context.Context, tenantID, campaignID int64) ([]store.LogEntry, error)
	Voters(ctx context.Context, tenantID int64, limit int) ([]store.Voter, error)
}

// Presence reads the last cached presence state for a number, empty when
// unknown.
type Presence interface {
	Get(ctx context.Context, tenantID int64, number string) (string, error)
}

type Row struct {
	Nome     string `json:"nome"`
	Telefone string `json:"telefone"`

	EnvioDatahora *time.Time `json:"envio_datahora,omitempty"`
	EnvioStatus   string     `json:"envio_status"`
	EnvioErro     string     `json:"envio_erro,omitempty"`
	EntregueEm    *time.Time `json:"entregue_em,omitempty"`
	VisualizadoEm *time.Time `json:"visualizado_em,omitempty"`

	RespostaDatahora      *time.Time `json:"resposta_datahora,omitempty"`
	RespostaClassificacao string     `json:"resposta_classificacao"`
	RespostaTexto         string     `json:"resposta_texto,omitempty"`

	UltimaPresenca string `json:"ultima_presenca,omitempty"`
}

type Stats struct {
	Enviados     int `json:"enviados"`
	Falhas       int `json:"falhas"`
	Entregues    int `json:"entregues"`
	Visualizados int `json:"visualizados"`
	Respostas    int `json:"respostas"`
	Positivos    int `json:"positivos"`
	Negativos    int `json:"negativos"`
	Aguardando   int `json:"aguardando"`
}

type Grid struct {
	CampaignID int64  `json:"campaign_id"`
	Nome       string `json:"nome"`
	Prompt     string `json:"prompt,omitempty"`
	Stats      Stats  `json:"stats"`
	Rows       []*Row `json:"rows"`
}

type Materializer struct {
	Store      Store
	Reconciler *receipts.Reconciler

	// Presence fills the last-seen column from the webhook presence cache.
	// Optional; the column stays empty without it.
	Presence Presence

	// MaxVoterRows caps the substitute contact source for usar_eleitores
	// campaigns.
	MaxVoterRows int
}

// Build assembles the grid for one campaign. Receipt columns missing from the
// live webhook path are backfilled from the receipt side table first.
func (m *Materializer) Build(ctx context.Context, tenantID, campaignID int64) (Grid, error) {
	camp, found, err := m.Store.CampaignByID(ctx, tenantID, campaignID)
	if err != nil {
		return Grid{}, err
	}
	if !found {
		return Grid{}, domain.Ef(domain.KindConfigMissing, "campaign %d not found", campaignID)
	}

	contacts := camp.Contatos
	if camp.Config.UsarEleitores {
		voters, err := m.Store.Voters(ctx, tenantID, m.MaxVoterRows)
		if err != nil {
			return Grid{}, err
		}
		contacts = make([]store.Contact, 0, len(voters))
		for _, v := range voters {
			contacts = append(contacts, store.Contact{Nome: v.Nome, Telefone: v.Telefone})
		}
	}

	grid := Grid{
		CampaignID: camp.ID,
		Nome:       camp.Nome,
		Prompt:     camp.Config.Prompt,
		Rows:       make([]*Row, 0, len(contacts)),
	}

	byDigits := map[string]*Row{}
	byTail := map[string]*Row{}
	for _, ct := range contacts {
		row := &Row{
			Nome:                  ct.Nome,
			Telefone:              ct.Telefone,
			EnvioStatus:           StatusPendente,
			RespostaClassificacao: StatusAguardando,
		}
		seedContactHints(row, ct)
		grid.Rows = append(grid.Rows, row)
		d := phone.DigitsOnly(ct.Telefone)
		if d != "" {
			byDigits[d] = row
			byTail[phone.Last11(d)] = row
		}
	}

	rows, err := m.Store.CampaignLogRows(ctx, tenantID, campaignID)
	if err != nil {
		return Grid{}, err
	}
	rows, err = m.Reconciler.Replay(ctx, tenantID, rows)
	if err != nil {
		return Grid{}, err
	}

	lookup := func(number string) *Row {
		d := phone.DigitsOnly(number)
		if r, ok := byDigits[d]; ok {
			return r
		}
		if r, ok := byTail[phone.Last11(d)]; ok {
			return r
		}
		// Maps miss on ninth-digit variants; fall back to the full matcher.
		for _, r := range grid.Rows {
			if phone.Match(r.Telefone, number) {
				return r
			}
		}
		return nil
	}

	for i := range rows {
		lr := &rows[i]
		switch lr.Direction {
		case domain.DirectionOut:
			if r := lookup(lr.Number); r != nil {
				applyOut(r, lr)
			}
		case domain.DirectionIn:
			if r := lookup(lr.Number); r != nil {
				applyIn(r, lr)
			}
		}
	}

	if m.Presence != nil {
		for _, r := range grid.Rows {
			if r.Telefone == "" {
				continue
			}
			// Presence is advisory; a cache outage leaves the column empty.
			if p, err := m.Presence.Get(ctx, tenantID, r.Telefone); err == nil {
				r.UltimaPresenca = p
			}
		}
	}

	for _, r := range grid.Rows {
		tallyRow(&grid.Stats, r)
	}
	return grid, nil
}

// seedContactHints layers in the send/response state embedded in the campaign
// row itself; log rows applied later win over these.
func seedContactHints(r *Row, ct store.Contact) {
	if ct.Status != "" {
		r.EnvioStatus = ct.Status
	}
	r.EnvioErro = ct.Erro
	if ct.EnviadoEm != nil {
		t := ct.EnviadoEm.UTC()
		r.EnvioDatahora = &t
	}
	if ct.Resposta == int(domain.RespostaSim) || ct.Resposta == int(domain.RespostaNao) {
		r.RespostaClassificacao = domain.ResponseClass(ct.Resposta).Label()
		if ct.RespondidoEm != nil {
			t := ct.RespondidoEm.UTC()
			r.RespostaDatahora = &t
		}
	}
}

// applyOut folds one OUT log row into the contact row. A newer send replaces
// an older one wholesale; receipt timestamps are clamped so delivery never
// precedes the send and the read never precedes the delivery.
func applyOut(r *Row, lr *store.LogEntry) {
	ts := lr.TS.UTC()
	if r.EnvioDatahora != nil && ts.Before(*r.EnvioDatahora) {
		return
	}
	r.EnvioDatahora = &ts
	r.EnvioStatus = string(lr.Status)
	r.EntregueEm = nil
	r.VisualizadoEm = nil

	if lr.DeliveredAt != nil {
		d := laterOf(lr.DeliveredAt.UTC(), ts)
		r.EntregueEm = &d
	}
	if lr.ReadAt != nil {
		v := lr.ReadAt.UTC()
		if r.EntregueEm == nil {
			r.EntregueEm = &v
		} else if v.Before(*r.EntregueEm) {
			v = *r.EntregueEm
		}
		r.VisualizadoEm = &v
	}
}

// applyIn folds one correlated IN row into the contact row, then enforces the
// visual-before-reply rule: a read timestamp later than the reply, when the
// read equals the delivery, is snapped back to the reply time.
func applyIn(r *Row, lr *store.LogEntry) {
	ts := lr.TS.UTC()
	if r.RespostaDatahora != nil && ts.Before(*r.RespostaDatahora) {
		return
	}
	r.RespostaDatahora = &ts
	if lr.Resposta != "" {
		r.RespostaClassificacao = lr.Resposta
	}
	r.RespostaTexto = lr.Body

	if r.VisualizadoEm != nil && r.VisualizadoEm.After(ts) &&
		r.EntregueEm != nil && r.EntregueEm.Equal(*r.VisualizadoEm) {
		snapped := ts
		r.VisualizadoEm = &snapped
	}
}

func tallyRow(s *Stats, r *Row) {
	switch r.EnvioStatus {
	case StatusPendente:
	case string(domain.StatusFalha):
		s.Falhas++
	default:
		s.Enviados++
	}
	if r.EntregueEm != nil {
		s.Entregues++
	}
	if r.VisualizadoEm != nil {
		s.Visualizados++
	}
	switch r.RespostaClassificacao {
	case "SIM":
		s.Respostas++
		s.Positivos++
	case "NAO":
		s.Respostas++
		s.Negativos++
	default:
		if r.EnvioStatus != StatusPendente && r.EnvioStatus != string(domain.StatusFalha) {
			s.Aguardando++
		}
	}
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
