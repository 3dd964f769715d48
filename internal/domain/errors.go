package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure. The set is closed; handlers map kinds to
// HTTP statuses and the pipeline records the kind on FAILED log rows.
type Kind string

const (
	KindConfigMissing       Kind = "CONFIG_MISSING"
	KindConfigDisabled      Kind = "CONFIG_DISABLED"
	KindCredentialInvalid   Kind = "CREDENTIAL_INVALID"
	KindDestinationInvalid  Kind = "DESTINATION_INVALID"
	KindContentMissing      Kind = "CONTENT_MISSING"
	KindChannelNotEnabled   Kind = "CHANNEL_NOT_ENABLED"
	KindConsentMissing      Kind = "CONSENT_MISSING"
	KindMediaUnreachable    Kind = "MEDIA_UNREACHABLE"
	KindProviderUnreachable Kind = "PROVIDER_UNREACHABLE"
	KindProviderError       Kind = "PROVIDER_ERROR"
	KindSignatureInvalid    Kind = "SIGNATURE_INVALID"
	KindConflict            Kind = "CONFLICT"
	KindPoolExhausted       Kind = "POOL_EXHAUSTED"
	KindInternal            Kind = "INTERNAL"
)

type Error struct {
	Kind   Kind
	Detail string
	// Upstream HTTP status from the provider, when one exists.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind onto the response status. ProviderError preserves
// the upstream status when it is a client error.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindConfigMissing, KindConfigDisabled, KindCredentialInvalid,
		KindDestinationInvalid, KindContentMissing, KindChannelNotEnabled,
		KindConsentMissing, KindMediaUnreachable:
		return http.StatusBadRequest
	case KindSignatureInvalid:
		return http.StatusForbidden
	case KindPoolExhausted:
		return http.StatusServiceUnavailable
	case KindProviderUnreachable:
		return http.StatusBadGateway
	case KindProviderError:
		if e.UpstreamStatus >= 400 && e.UpstreamStatus < 500 {
			return e.UpstreamStatus
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func E(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Internal classifies an unexpected failure, passing through errors that
// already carry a kind so their HTTP mapping survives.
func Internal(err error, detail string) error {
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return Wrap(KindInternal, err, detail)
}

// KindOf extracts the taxonomy kind from any error chain, defaulting to
// Internal for unclassified failures.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// HTTPStatusOf resolves the response status for any error chain.
func HTTPStatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.HTTPStatus()
	}
	return http.StatusInternalServerError
}
