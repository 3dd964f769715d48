package pg

import (
	"context"
	"time"

	"zapgw/internal/domain"
)

// Gate bounds how long a statement may wait for pool capacity. Beyond maxConns
// concurrent statements, waiters time out after wait and surface
// POOL_EXHAUSTED, which handlers answer with a 503. pgxpool itself queues
// Acquire on the request context with no cap of its own.
func (s *Store) Gate(maxConns int32, wait time.Duration) *Store {
	if maxConns > 0 && wait > 0 {
		s.sem = make(chan struct{}, maxConns)
		s.acquireWait = wait
	}
	return s
}

// slot reserves pool capacity for one statement. The returned release must be
// called once the statement is done. A nil gate admits everything.
func (s *Store) slot(ctx context.Context) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	default:
	}
	t := time.NewTimer(s.acquireWait)
	defer t.Stop()
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-t.C:
		return nil, domain.E(domain.KindPoolExhausted, "db pool saturated, acquire timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
