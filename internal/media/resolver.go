// Package media turns whatever media reference a caller supplies (data URI,
// /static/ path, bare filename, full URL) into a URL the target provider can
// actually fetch.
package media

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"zapgw/internal/domain"
)

// Policy is the reachability contract a provider imposes on media URLs.
type Policy struct {
	// RequireHTTPS rejects plain-http results (telephony WhatsApp channel).
	RequireHTTPS bool
	// RejectPrivateHost rejects loopback/private hosts (any off-box provider).
	RejectPrivateHost bool
}

// PolicyFor derives the policy from the provider kind and channel. The
// instance manager is co-located and fetches anything; the cloud and
// telephony APIs fetch from outside and need a public host, and the telephony
// WhatsApp channel additionally insists on HTTPS.
func PolicyFor(kind domain.ProviderKind, ch domain.Channel) Policy {
	switch kind {
	case domain.ProviderEvolution:
		return Policy{}
	case domain.ProviderTwilio:
		return Policy{RequireHTTPS: ch == domain.ChannelWhatsApp, RejectPrivateHost: true}
	default:
		return Policy{RejectPrivateHost: true}
	}
}

type Resolver struct {
	// PublicBase is the configured public origin, highest priority.
	PublicBase string
	// StaticDir receives content-addressed files decoded from data URIs.
	StaticDir string
	// MaxDataURIBytes bounds decoded data URI payloads.
	MaxDataURIBytes int64
}

// Resolve produces the provider-facing URL for raw. baseHint is the origin
// derived from the caller's forwarded headers, used when no public base is
// configured. Returns ("", nil) for an empty reference.
func (r *Resolver) Resolve(raw, baseHint string, pol Policy) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if strings.HasPrefix(raw, "data:") {
		path, err := r.persistDataURI(raw)
		if err != nil {
			return "", err
		}
		raw = path
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if err := checkURL(raw, pol); err != nil {
			return "", err
		}
		return raw, nil
	}

	base := strings.TrimRight(r.PublicBase, "/")
	if base == "" {
		base = strings.TrimRight(baseHint, "/")
	}
	if base == "" {
		return "", domain.E(domain.KindMediaUnreachable, "no public base URL available for local media")
	}

	p := raw
	if !strings.HasPrefix(p, "/") {
		p = "/static/" + p
	}
	full := base + p
	if err := checkURL(full, pol); err != nil {
		return "", err
	}
	return full, nil
}

// persistDataURI decodes the payload, stores it under a content-addressed
// name and returns the /static/ path.
func (r *Resolver) persistDataURI(raw string) (string, error) {
	meta, data, ok := strings.Cut(raw, ",")
	if !ok {
		return "", domain.E(domain.KindMediaUnreachable, "malformed data URI")
	}
	meta = strings.TrimPrefix(meta, "data:")
	mime, _, _ := strings.Cut(meta, ";")

	var payload []byte
	var err error
	if strings.Contains(meta, "base64") {
		payload, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", domain.Wrap(domain.KindMediaUnreachable, err, "invalid base64 payload")
		}
	} else {
		unescaped, uerr := url.QueryUnescape(data)
		if uerr != nil {
			return "", domain.Wrap(domain.KindMediaUnreachable, uerr, "invalid data URI payload")
		}
		payload = []byte(unescaped)
	}

	if r.MaxDataURIBytes > 0 && int64(len(payload)) > r.MaxDataURIBytes {
		return "", domain.Ef(domain.KindMediaUnreachable, "data URI payload exceeds %d bytes", r.MaxDataURIBytes)
	}

	sum := sha256.Sum256(payload)
	name := hex.EncodeToString(sum[:8]) + extFor(mime)
	if err := os.MkdirAll(r.StaticDir, 0o755); err != nil {
		return "", domain.Wrap(domain.KindMediaUnreachable, err, "static dir unavailable")
	}
	dst := filepath.Join(r.StaticDir, name)
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		if err := os.WriteFile(dst, payload, 0o644); err != nil {
			return "", domain.Wrap(domain.KindMediaUnreachable, err, "persist media")
		}
	}
	return "/static/" + name, nil
}

func extFor(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	}
	return ".bin"
}

func checkURL(full string, pol Policy) error {
	u, err := url.Parse(full)
	if err != nil {
		return domain.Wrap(domain.KindMediaUnreachable, err, "invalid media URL")
	}
	if pol.RequireHTTPS && u.Scheme != "https" {
		return domain.Ef(domain.KindMediaUnreachable, "provider requires HTTPS media, got %s", u.Scheme)
	}
	if pol.RejectPrivateHost && privateHost(u.Hostname()) {
		return domain.Ef(domain.KindMediaUnreachable, "media host %q not reachable by provider", u.Hostname())
	}
	return nil
}

func privateHost(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// Bare container names have no dots and never resolve publicly.
		return !strings.Contains(host, ".")
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}
