// Package errors provides structured error handling for the auth broker.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Signed-state (CSRF) errors
	CodeStateMissing          Code = "STATE_MISSING"
	CodeStateMalformed        Code = "STATE_MALFORMED"
	CodeStateSignatureInvalid Code = "STATE_SIGNATURE_INVALID"
	CodeStateExpired          Code = "STATE_EXPIRED"

	// Redirect validation errors
	CodeRedirectRejected Code = "REDIRECT_REJECTED"

	// Identity provider errors
	CodeProviderError       Code = "PROVIDER_ERROR"
	CodeTokenExchangeFailed Code = "TOKEN_EXCHANGE_FAILED"
	CodeNoAccessToken       Code = "NO_ACCESS_TOKEN"
	CodeProfileFetchFailed  Code = "PROFILE_FETCH_FAILED"

	// Membership resolution errors
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeUnexpectedStatus    Code = "UNEXPECTED_STATUS"

	// Device flow states
	CodeAuthorizationPending    Code = "AUTHORIZATION_PENDING"
	CodeSlowDown                Code = "SLOW_DOWN"
	CodeMissingDeviceCode       Code = "MISSING_DEVICE_CODE"
	CodeDeviceCodeRequestFailed Code = "DEVICE_CODE_REQUEST_FAILED"

	// Secret storage errors
	CodeSecretUnavailable Code = "SECRET_UNAVAILABLE"
)

// wireCodes maps codes to the OAuth-style identifiers sent to clients.
var wireCodes = map[Code]string{
	CodeUnknown:                 "internal_error",
	CodeStateMissing:            "missing_state",
	CodeStateMalformed:          "invalid_state_format",
	CodeStateSignatureInvalid:   "invalid_state_signature",
	CodeStateExpired:            "state_expired",
	CodeRedirectRejected:        "redirect_rejected",
	CodeProviderError:           "provider_error",
	CodeTokenExchangeFailed:     "token_exchange_failed",
	CodeNoAccessToken:           "no_access_token",
	CodeProfileFetchFailed:      "profile_fetch_failed",
	CodeRateLimited:             "rate_limited",
	CodeUpstreamUnavailable:     "upstream_unavailable",
	CodeUnexpectedStatus:        "unexpected_status",
	CodeAuthorizationPending:    "authorization_pending",
	CodeSlowDown:                "slow_down",
	CodeMissingDeviceCode:       "missing_device_code",
	CodeDeviceCodeRequestFailed: "device_code_request_failed",
	CodeSecretUnavailable:       "secret_unavailable",
}

// WireCode returns the OAuth-style error identifier for the code.
func (c Code) WireCode() string {
	if wire, ok := wireCodes[c]; ok {
		return wire
	}
	return wireCodes[CodeUnknown]
}

// HTTPStatus returns the HTTP status for the code on JSON surfaces.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthorizationPending, CodeSlowDown:
		return http.StatusAccepted
	case CodeStateMissing, CodeStateMalformed, CodeStateSignatureInvalid,
		CodeStateExpired, CodeRedirectRejected, CodeMissingDeviceCode,
		CodeProviderError:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
