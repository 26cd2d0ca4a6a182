package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestCountsTowardBreaker(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", Transport(errors.New("socket closed")), true},
		{"timeout", Timeout(errors.New("deadline")), true},
		{"navigate upstream", Navigate(FaultUpstream, errors.New("dns")), true},
		{"navigate client", Navigate(FaultClient, errors.New("bad url")), false},
		{"extract", Extract(errors.New("no node")), false},
		{"policy", Policy("blocked"), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CountsTowardBreaker(tc.err); got != tc.want {
				t.Errorf("CountsTowardBreaker(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestShouldCondemnSession(t *testing.T) {
	if !ShouldCondemnSession(Timeout(nil)) {
		t.Error("timeout should condemn session")
	}
	if !ShouldCondemnSession(Transport(nil)) {
		t.Error("transport should condemn session")
	}
	if ShouldCondemnSession(Extract(nil)) {
		t.Error("extract should not condemn session")
	}
	if ShouldCondemnSession(Navigate(FaultUpstream, nil)) {
		t.Error("navigate should not condemn session")
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(Policy("blocked")); got != http.StatusForbidden {
		t.Errorf("Policy status = %d, want 403", got)
	}
	if got := HTTPStatus(Timeout(nil)); got != http.StatusGatewayTimeout {
		t.Errorf("Timeout status = %d, want 504", got)
	}
	if got := HTTPStatus(UpstreamOpen()); got != http.StatusBadGateway {
		t.Errorf("UpstreamOpen status = %d, want 502", got)
	}
	if got := HTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("plain error status = %d, want 500", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Transport(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should unwrap to the cause")
	}
}
