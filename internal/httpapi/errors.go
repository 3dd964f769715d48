package httpapi

const (
	errInvalidJSON      = "invalid json"
	errMissingFields    = "missing fields"
	errBadForm          = "bad form"
	errInvalidSignature = "invalid signature"
	errUnknownTenant    = "unknown tenant"
	errRateLimited      = "rate limit exceeded"
)
