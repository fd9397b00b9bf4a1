package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("crossref overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("crossref query failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	err := errors.New("malformed query: empty title")
	if IsTransient(err) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("ECONNRESET should be transient")
	}
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	if !IsTransient(err) {
		t.Error("ECONNREFUSED should be transient")
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		err := errors.New(p)
		if !IsTransient(err) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}

	permanent := []int{200, 201, 400, 401, 403, 404, 405, 409, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}

	if te.StatusCode != 500 {
		t.Errorf("expected StatusCode 500, got %d", te.StatusCode)
	}
}

func TestTransientError_ErrorMessage(t *testing.T) {
	inner := errors.New("something went wrong")
	te := NewTransientError(inner, 503)

	if te.Error() != "something went wrong" {
		t.Errorf("unexpected message: %q", te.Error())
	}
}

func TestNewTransientHTTPError_RetryAfterSeconds(t *testing.T) {
	resp := &http.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": {"7"}},
	}
	te := NewTransientHTTPError(errors.New("too many requests"), resp)

	if te.StatusCode != 429 {
		t.Errorf("expected StatusCode 429, got %d", te.StatusCode)
	}
	if te.RetryAfter != 7*time.Second {
		t.Errorf("expected RetryAfter 7s, got %v", te.RetryAfter)
	}
}

func TestNewTransientHTTPError_NoHeader(t *testing.T) {
	resp := &http.Response{StatusCode: 503, Header: http.Header{}}
	te := NewTransientHTTPError(errors.New("unavailable"), resp)
	if te.RetryAfter != 0 {
		t.Errorf("expected zero RetryAfter, got %v", te.RetryAfter)
	}
}

func TestNewTransientHTTPError_NilResponse(t *testing.T) {
	te := NewTransientHTTPError(errors.New("no response"), nil)
	if te.StatusCode != 0 || te.RetryAfter != 0 {
		t.Errorf("expected zero values, got code=%d after=%v", te.StatusCode, te.RetryAfter)
	}
}

func TestParseRetryAfter_Invalid(t *testing.T) {
	for _, v := range []string{"", "soon", "-3", "Wed, 21 Oct 2026 07:28:00 GMT"} {
		if d := parseRetryAfter(v); d != 0 {
			t.Errorf("parseRetryAfter(%q) = %v, want 0", v, d)
		}
	}
}

func TestRetryAfter_FromChain(t *testing.T) {
	te := &TransientError{Err: errors.New("throttled"), StatusCode: 429, RetryAfter: 2 * time.Second}
	wrapped := fmt.Errorf("dblp: %w", te)

	if d := RetryAfter(wrapped); d != 2*time.Second {
		t.Errorf("expected 2s, got %v", d)
	}
	if d := RetryAfter(errors.New("plain")); d != 0 {
		t.Errorf("expected 0 for plain error, got %v", d)
	}
}
