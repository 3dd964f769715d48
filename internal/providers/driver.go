package providers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/sony/gobreaker"

	"zapgw/internal/domain"
)

// IsConnError reports whether err is a connection-class failure (dial refused,
// reset, timeout, DNS). Only these advance the driver to the next base-URL
// candidate; an HTTP response of any status is a terminal outcome.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.EOF) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// Outcome is the terminal result of one candidate attempt.
type Outcome struct {
	Status int
	Body   []byte
}

// DoCandidates runs build against each candidate base in order, stopping at
// the first non-connection outcome. The optional breaker wraps every attempt;
// an open breaker fails fast as ProviderUnreachable.
func DoCandidates(ctx context.Context, client *http.Client, breaker *gobreaker.CircuitBreaker, bases []string, build func(base string) (*http.Request, error)) (Outcome, error) {
	var lastErr error
	for _, base := range bases {
		req, err := build(base)
		if err != nil {
			return Outcome{}, domain.Wrap(domain.KindInternal, err, "build provider request")
		}
		req = req.WithContext(ctx)

		res, err := execute(client, breaker, req)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return Outcome{}, domain.Wrap(domain.KindProviderUnreachable, err, "provider circuit open")
			}
			if IsConnError(err) {
				lastErr = err
				continue
			}
			return Outcome{}, domain.Wrap(domain.KindProviderUnreachable, err, "provider call failed")
		}
		return res, nil
	}
	return Outcome{}, domain.Wrap(domain.KindProviderUnreachable, lastErr, "all provider endpoints unreachable")
}

func execute(client *http.Client, breaker *gobreaker.CircuitBreaker, req *http.Request) (Outcome, error) {
	call := func() (any, error) {
		res, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return Outcome{Status: res.StatusCode, Body: body}, nil
	}

	if breaker == nil {
		out, err := call()
		if err != nil {
			return Outcome{}, err
		}
		return out.(Outcome), nil
	}
	out, err := breaker.Execute(call)
	if err != nil {
		return Outcome{}, err
	}
	return out.(Outcome), nil
}

// NewBreaker builds the shared per-provider circuit breaker. Connection errors
// count as failures; HTTP error statuses do not trip it.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
