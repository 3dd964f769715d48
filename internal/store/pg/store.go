package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zapgw/internal/crypt"
	"zapgw/internal/domain"
	"zapgw/internal/store"
)

type Store struct {
	DB    *pgxpool.Pool
	Codec *crypt.Codec

	// Acquisition gate, see Gate.
	sem         chan struct{}
	acquireWait time.Duration
}

func New(db *pgxpool.Pool, codec *crypt.Codec) *Store {
	return &Store{DB: db, Codec: codec}
}

// receiptIDPaths are the jsonb paths a provider message id may hide under in
// the stored raw payload. Ordered; extend here when onboarding a provider that
// reports ids under a new key.
var receiptIDPaths = []string{
	`{key,id}`,
	`{data,key,id}`,
	`{messageId}`,
	`{keyId}`,
}

func (s *Store) TenantBySlug(ctx context.Context, slug string) (store.Tenant, bool, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return store.Tenant{}, false, gerr
	}
	defer release()
	var t store.Tenant
	err := s.DB.QueryRow(ctx, `
		SELECT "id", "slug" FROM "tenants" WHERE "slug"=$1
	`, slug).Scan(&t.ID, &t.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Tenant{}, false, nil
		}
		return store.Tenant{}, false, err
	}
	return t, true, nil
}

// ActiveProviderConfig returns the newest config for tenant+kind, or the
// pinned one when pinnedID is non-nil. Disabled configs are returned as-is;
// the send pipeline rejects them so the caller sees CONFIG_DISABLED rather
// than a silent fallback to an older row.
func (s *Store) ActiveProviderConfig(ctx context.Context, tenantID int64, kind domain.ProviderKind, pinnedID *int64) (store.ProviderConfig, bool, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return store.ProviderConfig{}, false, gerr
	}
	defer release()
	q := `
		SELECT "id", "tenant_id", "kind", "slug", "base_url", "api_version",
		       COALESCE("access_token",''), COALESCE("api_key",''), COALESCE("api_secret",''),
		       COALESCE("signing_secret",''), COALESCE("verify_token",''),
		       COALESCE("phone_number_id",''), COALESCE("display_number",''),
		       COALESCE("messaging_service_id",''), COALESCE("instance_name",''),
		       "channels", "validate_signature", "enabled", "created_at"
		FROM "provider_configs"
		WHERE "tenant_id"=$1 AND "kind"=$2`
	args := []any{tenantID, string(kind)}
	if pinnedID != nil {
		q += ` AND "id"=$3`
		args = append(args, *pinnedID)
	}
	q += ` ORDER BY "created_at" DESC LIMIT 1`

	row := s.DB.QueryRow(ctx, q, args...)
	cfg, err := s.scanProviderConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ProviderConfig{}, false, nil
		}
		return store.ProviderConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *Store) scanProviderConfig(row pgx.Row) (store.ProviderConfig, error) {
	var c store.ProviderConfig
	var kind string
	var channels []string
	err := row.Scan(&c.ID, &c.TenantID, &kind, &c.Slug, &c.BaseURL, &c.APIVersion,
		&c.AccessToken, &c.APIKey, &c.APISecret, &c.SigningSecret, &c.VerifyToken,
		&c.PhoneNumberID, &c.DisplayNumber, &c.MessagingServiceID, &c.InstanceName,
		&channels, &c.ValidateSignature, &c.Enabled, &c.CreatedAt)
	if err != nil {
		return store.ProviderConfig{}, err
	}
	c.Kind = domain.ProviderKind(kind)
	for _, ch := range channels {
		c.Channels = append(c.Channels, domain.Channel(ch))
	}
	for _, secret := range []*string{&c.AccessToken, &c.APIKey, &c.APISecret, &c.SigningSecret} {
		plain, derr := s.Codec.Decrypt(*secret)
		if derr != nil {
			return store.ProviderConfig{}, fmt.Errorf("decrypt credential: %w", derr)
		}
		*secret = plain
	}
	return c, nil
}

func (s *Store) AppendLog(ctx context.Context, in store.LogEntry) (int64, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return 0, gerr
	}
	defer release()
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO "delivery_log"
			("tenant_id", "campaign_id", "channel", "direction", "number", "name",
			 "body", "media", "status", "ts", "delivered_at", "read_at",
			 "message_id", "provider", "raw_payload", "replied_to_id", "resposta", "reason_tag")
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING "id"
	`, in.TenantID, in.CampaignID, string(in.Channel), string(in.Direction), in.Number,
		nullIfEmpty(in.Name), in.Body, nullIfEmpty(in.Media), string(in.Status), in.TS,
		in.DeliveredAt, in.ReadAt, nullIfEmpty(in.MessageID), in.Provider,
		rawOrNull(in.Raw), in.RepliedToID, nullIfEmpty(in.Resposta), nullIfEmpty(in.ReasonTag)).Scan(&id)
	return id, err
}

// FindOutByMessageIDs locates the OUT row for any of the candidate ids, first
// by the dedicated column, then across the known raw-payload paths.
func (s *Store) FindOutByMessageIDs(ctx context.Context, tenantID int64, ids []string) (store.LogEntry, bool, error) {
	if len(ids) == 0 {
		return store.LogEntry{}, false, nil
	}
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return store.LogEntry{}, false, gerr
	}
	defer release()
	var paths strings.Builder
	for _, p := range receiptIDPaths {
		fmt.Fprintf(&paths, ` OR "raw_payload" #>> '%s' = ANY($2)`, p)
	}
	q := fmt.Sprintf(`
		SELECT %s
		FROM "delivery_log"
		WHERE "tenant_id"=$1 AND "direction"='OUT' AND ("message_id" = ANY($2)%s)
		ORDER BY "id" DESC LIMIT 1
	`, logColumns, paths.String())

	row := s.DB.QueryRow(ctx, q, tenantID, ids)
	entry, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LogEntry{}, false, nil
		}
		return store.LogEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) ApplyReceiptPatch(ctx context.Context, in store.ReceiptPatch) error {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return gerr
	}
	defer release()
	_, err := s.DB.Exec(ctx, `
		UPDATE "delivery_log"
		SET "status"=$2, "delivered_at"=$3, "read_at"=$4
		WHERE "id"=$1
	`, in.ID, string(in.Status), in.DeliveredAt, in.ReadAt)
	return err
}

func (s *Store) InsertReceipt(ctx context.Context, in store.Receipt) error {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return gerr
	}
	defer release()
	_, err := s.DB.Exec(ctx, `
		INSERT INTO "provider_receipts" ("tenant_id", "provider", "message_id", "status", "ts", "raw_payload")
		VALUES ($1,$2,$3,$4,$5,$6)
	`, in.TenantID, in.Provider, in.MessageID, in.Status, in.TS, rawOrNull(in.Raw))
	return err
}

func (s *Store) ReceiptsByMessageIDs(ctx context.Context, tenantID int64, ids []string) ([]store.Receipt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return nil, gerr
	}
	defer release()
	rows, err := s.DB.Query(ctx, `
		SELECT "id", "tenant_id", "provider", "message_id", "status", "ts", COALESCE("raw_payload",'{}'::jsonb)
		FROM "provider_receipts"
		WHERE "tenant_id"=$1 AND "message_id" = ANY($2)
		ORDER BY "id"
	`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Receipt
	for rows.Next() {
		var r store.Receipt
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Provider, &r.MessageID, &r.Status, &r.TS, &r.Raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutstandingSimNaoOut loads the correlation window: the most recent OUT rows
// of SIM_NAO campaigns still on the send lattice.
func (s *Store) OutstandingSimNaoOut(ctx context.Context, tenantID int64, limit int) ([]store.LogEntry, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return nil, gerr
	}
	defer release()
	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM "delivery_log" l
		JOIN "campaigns" c ON c."id" = l."campaign_id" AND c."tenant_id" = l."tenant_id"
		WHERE l."tenant_id"=$1 AND l."direction"='OUT'
		  AND l."status" IN ('ENVIADO','ENTREGUE','VISUALIZADO')
		  AND c."config"->>'response_mode' = 'SIM_NAO'
		ORDER BY l."id" DESC
		LIMIT $2
	`, logColumnsL), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogEntries(rows)
}

func (s *Store) PatchInRow(ctx context.Context, id, campaignID, repliedToID int64, resposta string) error {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return gerr
	}
	defer release()
	_, err := s.DB.Exec(ctx, `
		UPDATE "delivery_log"
		SET "campaign_id"=$2, "replied_to_id"=$3, "resposta"=$4, "reason_tag"=NULL
		WHERE "id"=$1
	`, id, campaignID, repliedToID, resposta)
	return err
}

func (s *Store) TagInRow(ctx context.Context, id int64, reason string) error {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return gerr
	}
	defer release()
	_, err := s.DB.Exec(ctx, `
		UPDATE "delivery_log" SET "reason_tag"=$2 WHERE "id"=$1
	`, id, reason)
	return err
}

// WithCampaignLock runs fn against the campaign row under FOR UPDATE. fn
// returns true to persist the mutated contact list and tallies; false commits
// nothing.
func (s *Store) WithCampaignLock(ctx context.Context, tenantID, campaignID int64, fn func(c *store.Campaign) (bool, error)) error {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return gerr
	}
	defer release()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT "id", "tenant_id", "nome", "config", "contatos",
		       "enviados", "positivos", "negativos", "aguardando", "created_at"
		FROM "campaigns"
		WHERE "tenant_id"=$1 AND "id"=$2
		FOR UPDATE
	`, tenantID, campaignID)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	changed, err := fn(&c)
	if err != nil || !changed {
		return err
	}

	contatos, err := json.Marshal(c.Contatos)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE "campaigns"
		SET "contatos"=$3, "positivos"=$4, "negativos"=$5, "aguardando"=$6
		WHERE "tenant_id"=$1 AND "id"=$2
	`, tenantID, campaignID, contatos, c.Positivos, c.Negativos, c.Aguardando); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CampaignByID(ctx context.Context, tenantID, id int64) (store.Campaign, bool, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return store.Campaign{}, false, gerr
	}
	defer release()
	row := s.DB.QueryRow(ctx, `
		SELECT "id", "tenant_id", "nome", "config", "contatos",
		       "enviados", "positivos", "negativos", "aguardando", "created_at"
		FROM "campaigns"
		WHERE "tenant_id"=$1 AND "id"=$2
	`, tenantID, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Campaign{}, false, nil
		}
		return store.Campaign{}, false, err
	}
	return c, true, nil
}

// CampaignLogRows returns the campaign's OUT/IN rows in append order.
func (s *Store) CampaignLogRows(ctx context.Context, tenantID, campaignID int64) ([]store.LogEntry, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return nil, gerr
	}
	defer release()
	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM "delivery_log"
		WHERE "tenant_id"=$1 AND "campaign_id"=$2 AND "direction" IN ('OUT','IN')
		ORDER BY "id"
	`, logColumns), tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogEntries(rows)
}

func (s *Store) Voters(ctx context.Context, tenantID int64, limit int) ([]store.Voter, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return nil, gerr
	}
	defer release()
	rows, err := s.DB.Query(ctx, `
		SELECT COALESCE("nome",''), COALESCE("telefone",'')
		FROM "voters"
		WHERE "tenant_id"=$1 AND COALESCE("telefone",'') <> ''
		ORDER BY "id"
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Voter
	for rows.Next() {
		var v store.Voter
		if err := rows.Scan(&v.Nome, &v.Telefone); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) OptInStatus(ctx context.Context, tenantID int64, number, provider string) (domain.OptInStatus, bool, error) {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return "", false, gerr
	}
	defer release()
	var st string
	err := s.DB.QueryRow(ctx, `
		SELECT "status" FROM "opt_ins"
		WHERE "tenant_id"=$1 AND "number"=$2 AND "provider"=$3
	`, tenantID, number, provider).Scan(&st)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.OptInStatus(st), true, nil
}

func (s *Store) UpsertOptIn(ctx context.Context, in store.OptInRow) error {
	release, gerr := s.slot(ctx)
	if gerr != nil {
		return gerr
	}
	defer release()
	_, err := s.DB.Exec(ctx, `
		INSERT INTO "opt_ins" ("tenant_id", "number", "provider", "status", "source", "ts")
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT ("tenant_id", "number", "provider")
		DO UPDATE SET "status"=EXCLUDED."status", "source"=EXCLUDED."source", "ts"=EXCLUDED."ts"
	`, in.TenantID, in.Number, in.Provider, string(in.Status), in.Source, in.TS)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

const logColumns = `"id", "tenant_id", "campaign_id", "channel", "direction",
	"number", COALESCE("name",''), "body", COALESCE("media",''), "status", "ts",
	"delivered_at", "read_at", COALESCE("message_id",''), "provider",
	COALESCE("raw_payload",'{}'::jsonb), "replied_to_id", COALESCE("resposta",''), COALESCE("reason_tag",'')`

const logColumnsL = `l."id", l."tenant_id", l."campaign_id", l."channel", l."direction",
	l."number", COALESCE(l."name",''), l."body", COALESCE(l."media",''), l."status", l."ts",
	l."delivered_at", l."read_at", COALESCE(l."message_id",''), l."provider",
	COALESCE(l."raw_payload",'{}'::jsonb), l."replied_to_id", COALESCE(l."resposta",''), COALESCE(l."reason_tag",'')`

func scanLogEntry(row pgx.Row) (store.LogEntry, error) {
	var e store.LogEntry
	var channel, direction, status string
	err := row.Scan(&e.ID, &e.TenantID, &e.CampaignID, &channel, &direction,
		&e.Number, &e.Name, &e.Body, &e.Media, &status, &e.TS,
		&e.DeliveredAt, &e.ReadAt, &e.MessageID, &e.Provider,
		&e.Raw, &e.RepliedToID, &e.Resposta, &e.ReasonTag)
	if err != nil {
		return store.LogEntry{}, err
	}
	e.Channel = domain.Channel(channel)
	e.Direction = domain.Direction(direction)
	e.Status = domain.Status(status)
	return e, nil
}

func collectLogEntries(rows pgx.Rows) ([]store.LogEntry, error) {
	var out []store.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCampaign(row pgx.Row) (store.Campaign, error) {
	var c store.Campaign
	var configJSON, contatosJSON []byte
	err := row.Scan(&c.ID, &c.TenantID, &c.Nome, &configJSON, &contatosJSON,
		&c.Enviados, &c.Positivos, &c.Negativos, &c.Aguardando, &c.CreatedAt)
	if err != nil {
		return store.Campaign{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &c.Config); err != nil {
			return store.Campaign{}, fmt.Errorf("campaign %d config: %w", c.ID, err)
		}
	}
	if len(contatosJSON) > 0 {
		if err := json.Unmarshal(contatosJSON, &c.Contatos); err != nil {
			return store.Campaign{}, fmt.Errorf("campaign %d contatos: %w", c.ID, err)
		}
	}
	return c, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNull(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
