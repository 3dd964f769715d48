package media

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"zapgw/internal/domain"
)

func TestResolveEmpty(t *testing.T) {
	r := &Resolver{}
	got, err := r.Resolve("", "", Policy{})
	if err != nil || got != "" {
		t.Fatalf("empty reference: got %q err=%v", got, err)
	}
}

func TestResolveAbsoluteURL(t *testing.T) {
	r := &Resolver{}
	got, err := r.Resolve("https://cdn.example.com/x.jpg", "", Policy{RequireHTTPS: true, RejectPrivateHost: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://cdn.example.com/x.jpg" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveStaticPathUsesConfiguredBase(t *testing.T) {
	r := &Resolver{PublicBase: "https://gw.example.com"}
	got, err := r.Resolve("/static/x.jpg", "http://fallback.example.com", Policy{RejectPrivateHost: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://gw.example.com/static/x.jpg" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveBareFilenameUsesHint(t *testing.T) {
	r := &Resolver{}
	got, err := r.Resolve("x.jpg", "https://fwd.example.com", Policy{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://fwd.example.com/static/x.jpg" {
		t.Fatalf("got %q", got)
	}
}

// The only derivable base is loopback and the provider is off-box.
func TestResolveLoopbackBaseRejected(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve("/static/x.jpg", "http://127.0.0.1:8000", Policy{RejectPrivateHost: true})
	if domain.KindOf(err) != domain.KindMediaUnreachable {
		t.Fatalf("expected MediaUnreachable, got %v", err)
	}
}

func TestResolveNoBaseAtAll(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve("/static/x.jpg", "", Policy{})
	if domain.KindOf(err) != domain.KindMediaUnreachable {
		t.Fatalf("expected MediaUnreachable, got %v", err)
	}
}

func TestRequireHTTPS(t *testing.T) {
	r := &Resolver{PublicBase: "http://gw.example.com"}
	_, err := r.Resolve("/static/x.jpg", "", Policy{RequireHTTPS: true})
	if domain.KindOf(err) != domain.KindMediaUnreachable {
		t.Fatalf("expected MediaUnreachable for http scheme, got %v", err)
	}
}

func TestDataURIPersisted(t *testing.T) {
	dir := t.TempDir()
	r := &Resolver{PublicBase: "https://gw.example.com", StaticDir: dir, MaxDataURIBytes: 1 << 20}
	raw := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))

	got, err := r.Resolve(raw, "", Policy{RejectPrivateHost: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "https://gw.example.com/static/") || !strings.HasSuffix(got, ".png") {
		t.Fatalf("unexpected resolved URL %q", got)
	}

	// Content-addressed: same payload resolves to the same URL.
	again, err := r.Resolve(raw, "", Policy{})
	if err != nil || again != got {
		t.Fatalf("expected stable URL, got %q err=%v", again, err)
	}
}

// Oversized data URIs fail before any provider call.
func TestDataURISizeCap(t *testing.T) {
	r := &Resolver{StaticDir: t.TempDir(), MaxDataURIBytes: 8}
	raw := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("payload-too-large"))
	_, err := r.Resolve(raw, "https://gw.example.com", Policy{})
	if domain.KindOf(err) != domain.KindMediaUnreachable {
		t.Fatalf("expected MediaUnreachable, got %v", err)
	}
}

func TestMalformedDataURI(t *testing.T) {
	r := &Resolver{StaticDir: t.TempDir()}
	_, err := r.Resolve("data:image/png;base64", "https://gw.example.com", Policy{})
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindMediaUnreachable {
		t.Fatalf("expected MediaUnreachable, got %v", err)
	}
}

func TestPolicyFor(t *testing.T) {
	if p := PolicyFor(domain.ProviderEvolution, domain.ChannelWhatsApp); p.RejectPrivateHost || p.RequireHTTPS {
		t.Fatalf("instance manager should accept local media")
	}
	if p := PolicyFor(domain.ProviderTwilio, domain.ChannelWhatsApp); !p.RequireHTTPS || !p.RejectPrivateHost {
		t.Fatalf("telephony whatsapp must require public https")
	}
	if p := PolicyFor(domain.ProviderCloudAPI, domain.ChannelWhatsApp); !p.RejectPrivateHost {
		t.Fatalf("cloud api must reject private hosts")
	}
}
