package domain

import "errors"

var (
	ErrValidation                = errors.New("invalid request")
	ErrNotFound                  = errors.New("not found")
	ErrUnknownNode               = errors.New("unknown node")
	ErrOriginRejected            = errors.New("request origin rejected")
	ErrRateLimited               = errors.New("rate limit exceeded")
	ErrInvalidAudience           = errors.New("invalid audience")
	ErrSigningUnavailable        = errors.New("signing unavailable")
	ErrDecryptionFailed          = errors.New("key decryption failed")
	ErrUnsupportedAuthMethod     = errors.New("unsupported auth method")
	ErrEndpointRejected          = errors.New("token endpoint rejected by policy")
	ErrUpstreamUnreachable       = errors.New("token exchange endpoint unreachable")
	ErrUpstreamRejected          = errors.New("token exchange rejected by endpoint")
	ErrMalformedUpstreamResponse = errors.New("malformed token exchange response")
)
