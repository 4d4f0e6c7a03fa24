package services

import "errors"

// Sentinel errors shared by the provisioning and settlement services.
// Handlers map these to stable HTTP error codes without leaking upstream
// internals.
var (
	ErrValidation                = errors.New("invalid input")
	ErrNotFound                  = errors.New("not found")
	ErrUpstreamUnavailable       = errors.New("upstream provider unavailable")
	ErrGateway                   = errors.New("payment gateway error")
	ErrMissingSignature          = errors.New("missing signature")
	ErrSignatureMismatch         = errors.New("signature mismatch")
	ErrUnknownOrder              = errors.New("unknown order")
	ErrInconsistency             = errors.New("upstream succeeded but local state could not be written")
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
)
