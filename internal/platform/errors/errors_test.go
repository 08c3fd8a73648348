package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeStateExpired, "State has expired")
	if err.Error() != "STATE_EXPIRED: State has expired" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(CodeUpstreamUnavailable, "membership check failed", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped cause to unwrap")
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeRateLimited, "slow down"))
	if got := CodeOf(err); got != CodeRateLimited {
		t.Errorf("expected RATE_LIMITED, got %s", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Errorf("expected UNKNOWN for plain error, got %s", got)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Errorf("expected UNKNOWN for nil, got %s", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeAuthorizationPending, http.StatusAccepted},
		{CodeSlowDown, http.StatusAccepted},
		{CodeStateSignatureInvalid, http.StatusBadRequest},
		{CodeMissingDeviceCode, http.StatusBadRequest},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUpstreamUnavailable, http.StatusBadGateway},
		{CodeNoAccessToken, http.StatusInternalServerError},
		{CodeDeviceCodeRequestFailed, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.code, tc.want, got)
		}
	}
}
