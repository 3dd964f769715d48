package pg

import (
	"context"
	"net/http"
	"testing"
	"time"

	"zapgw/internal/domain"
)

func TestGateSaturatedSurfacesPoolExhausted(t *testing.T) {
	s := New(nil, nil).Gate(1, 10*time.Millisecond)

	release, err := s.slot(context.Background())
	if err != nil {
		t.Fatalf("first slot: %v", err)
	}
	defer release()

	// The single slot is held, so any store call must time out before it
	// ever touches the pool.
	err = s.TagInRow(context.Background(), 1, "x")
	if domain.KindOf(err) != domain.KindPoolExhausted {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
	if domain.HTTPStatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", domain.HTTPStatusOf(err))
	}
}

func TestGateReleaseReadmits(t *testing.T) {
	s := New(nil, nil).Gate(1, 10*time.Millisecond)

	release, err := s.slot(context.Background())
	if err != nil {
		t.Fatalf("first slot: %v", err)
	}
	release()

	release, err = s.slot(context.Background())
	if err != nil {
		t.Fatalf("slot after release: %v", err)
	}
	release()
}

func TestGateCanceledContext(t *testing.T) {
	s := New(nil, nil).Gate(1, time.Minute)

	release, err := s.slot(context.Background())
	if err != nil {
		t.Fatalf("first slot: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.slot(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGateDisabledAdmitsEverything(t *testing.T) {
	s := New(nil, nil)
	for i := 0; i < 100; i++ {
		release, err := s.slot(context.Background())
		if err != nil {
			t.Fatalf("ungated slot %d: %v", i, err)
		}
		release()
	}
}
