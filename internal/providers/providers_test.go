package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"zapgw/internal/domain"
)

func TestCandidatesPlainBase(t *testing.T) {
	got := Candidates("https://api.example.com/", Colocation{ContainerHost: "evolution-api", HostPort: "8080"})
	if len(got) != 1 || got[0] != "https://api.example.com" {
		t.Fatalf("non-colocated base must not be rewritten, got %v", got)
	}
}

func TestCandidatesColocated(t *testing.T) {
	got := Candidates("http://localhost:3000", Colocation{ContainerHost: "evolution-api", HostPort: "8080"})
	if got[0] != "http://localhost:3000" {
		t.Fatalf("configured base must come first, got %v", got)
	}
	want := map[string]bool{
		"http://evolution-api:8080": false,
		"http://127.0.0.1:8080":     false,
		"https://localhost:3000":    false,
	}
	for _, c := range got[1:] {
		if _, ok := want[c]; ok {
			want[c] = true
		}
	}
	for c, seen := range want {
		if !seen {
			t.Fatalf("missing candidate %q in %v", c, got)
		}
	}
}

func TestCandidatesContainerHostBase(t *testing.T) {
	got := Candidates("http://evolution-api:8080", Colocation{ContainerHost: "evolution-api", HostPort: "9090"})
	if len(got) < 2 {
		t.Fatalf("expected rewrites for container-host base, got %v", got)
	}
}

func TestDoCandidatesFallsOverOnConnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	// First candidate points at a closed port; the driver must advance.
	bases := []string{"http://127.0.0.1:1", srv.URL}
	out, err := DoCandidates(context.Background(), srv.Client(), nil, bases, func(base string) (*http.Request, error) {
		return http.NewRequest(http.MethodPost, base+"/send", nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != http.StatusCreated || string(out.Body) != `{"id":"abc"}` {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestDoCandidatesHTTPErrorIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	out, err := DoCandidates(context.Background(), srv.Client(), nil, []string{srv.URL, srv.URL}, func(base string) (*http.Request, error) {
		return http.NewRequest(http.MethodPost, base+"/send", nil)
	})
	if err != nil {
		t.Fatalf("an HTTP status is a terminal outcome, got err %v", err)
	}
	if out.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", out.Status)
	}
	if calls != 1 {
		t.Fatalf("driver must not retry HTTP errors, saw %d calls", calls)
	}
}

func TestDoCandidatesAllUnreachable(t *testing.T) {
	_, err := DoCandidates(context.Background(), &http.Client{}, nil, []string{"http://127.0.0.1:1"}, func(base string) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, base+"/x", nil)
	})
	if domain.KindOf(err) != domain.KindProviderUnreachable {
		t.Fatalf("expected ProviderUnreachable, got %v", err)
	}
}

func TestExtractMessageID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"key":{"id":"EV123"}}`, "EV123"},
		{`{"data":{"key":{"id":"EV456"}}}`, "EV456"},
		{`{"messages":[{"id":"wamid.A"}]}`, "wamid.A"},
		{`{"messageId":"m1"}`, "m1"},
		{`{"sid":"SM999"}`, "SM999"},
		{`{"nothing":"here"}`, ""},
		{`not json`, ""},
	}
	for _, c := range cases {
		if got := ExtractMessageID([]byte(c.raw)); got != c.want {
			t.Fatalf("ExtractMessageID(%s) = %q, want %q", c.raw, got, c.want)
		}
	}
}
