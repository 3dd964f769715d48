package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyzFailingCheck(t *testing.T) {
	h := Readyz(0, func(ctx context.Context) error { return errors.New("db down") })
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestReadyzDefaultTimeout(t *testing.T) {
	var hasDeadline bool
	h := Readyz(0, func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !hasDeadline {
		t.Fatal("checks must run under a deadline even when none is passed")
	}
}
