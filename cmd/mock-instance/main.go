// mock-instance is a stand-in for the WhatsApp instance manager, for local
// development of the gateway. It accepts the send and probe endpoints the
// evolution adapter calls and, when MOCK_WEBHOOK_URL is set, posts the
// delivery and read acks back the way a real instance would.
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"zapgw/internal/logging"
)

type config struct {
	Port       string `envconfig:"PORT" default:"8081"`
	APIKey     string `envconfig:"MOCK_API_KEY" default:"mock-key"`
	WebhookURL string `envconfig:"MOCK_WEBHOOK_URL" default:""`

	DeliveredDelayMs int     `envconfig:"MOCK_DELIVERED_DELAY_MS" default:"400"`
	ReadDelayMs      int     `envconfig:"MOCK_READ_DELAY_MS" default:"1500"`
	ReadRate         float64 `envconfig:"MOCK_READ_RATE" default:"0.8"`
	LogFormat        string  `envconfig:"LOG_FORMAT" default:"text"`
}

type sendPayload struct {
	Number string `json:"number"`
}

type keyRef struct {
	ID        string `json:"id"`
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

type ackEnvelope struct {
	Event    string  `json:"event"`
	Instance string  `json:"instance"`
	Data     ackData `json:"data"`
	DateTime string  `json:"date_time"`
}

type ackData struct {
	Key              keyRef `json:"key"`
	Status           string `json:"status"`
	MessageTimestamp int64  `json:"messageTimestamp"`
}

type server struct {
	cfg    config
	client *http.Client
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("mock-instance", cfg.LogFormat, "info")

	s := &server{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}

	m := mux.NewRouter()
	m.HandleFunc("/message/sendText/{instance}", s.handleSend).Methods(http.MethodPost)
	m.HandleFunc("/message/sendMedia/{instance}", s.handleSend).Methods(http.MethodPost)
	m.HandleFunc("/chat/whatsappNumbers/{instance}", s.handleProbe).Methods(http.MethodPost)

	slog.Info("mock instance listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, m); err != nil {
		slog.Error("mock instance failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != s.cfg.APIKey {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var in sendPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Number == "" {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	instance := mux.Vars(r)["instance"]
	id := newID()
	jid := strings.TrimPrefix(in.Number, "+") + "@s.whatsapp.net"

	go s.emitAcks(instance, id, jid)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"key":    keyRef{ID: id, RemoteJid: jid, FromMe: true},
		"status": "PENDING",
	})
}

func (s *server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != s.cfg.APIKey {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var in struct {
		Numbers []string `json:"numbers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	rows := make([]map[string]any, 0, len(in.Numbers))
	for _, n := range in.Numbers {
		// Numbers ending in 0 are "not on WhatsApp" so both paths are easy to
		// exercise.
		exists := !strings.HasSuffix(n, "0")
		row := map[string]any{"number": n, "exists": exists}
		if exists {
			row["jid"] = strings.TrimPrefix(n, "+") + "@s.whatsapp.net"
		}
		rows = append(rows, row)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// emitAcks posts DELIVERY_ACK and, for a fraction of sends, READ back to the
// configured webhook.
func (s *server) emitAcks(instance, id, jid string) {
	if s.cfg.WebhookURL == "" {
		return
	}
	time.Sleep(time.Duration(s.cfg.DeliveredDelayMs) * time.Millisecond)
	s.postAck(instance, id, jid, "DELIVERY_ACK")

	if mrand.Float64() >= s.cfg.ReadRate {
		return
	}
	time.Sleep(time.Duration(s.cfg.ReadDelayMs) * time.Millisecond)
	s.postAck(instance, id, jid, "READ")
}

func (s *server) postAck(instance, id, jid, status string) {
	env := ackEnvelope{
		Event:    "messages.update",
		Instance: instance,
		Data: ackData{
			Key:              keyRef{ID: id, RemoteJid: jid, FromMe: true},
			Status:           status,
			MessageTimestamp: time.Now().Unix(),
		},
		DateTime: time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(env)

	resp, err := s.client.Post(s.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("ack post failed", "err", err, "status", status, "id", id)
		return
	}
	_ = resp.Body.Close()
	slog.Info("ack posted", "status", status, "id", id, "code", resp.StatusCode)
}

func newID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return strings.ToUpper(hex.EncodeToString(b[:]))
}
