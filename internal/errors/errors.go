// Package errors defines the gateway's error taxonomy (spec §7) as typed
// errors carrying the HTTP status the front door should map them to.
package errors

import (
	"fmt"
	"net/http"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind string

const (
	KindTransport = Kind("transport") // CDP socket lost; session condemned.
	KindNavigate  = Kind("navigate")  // browser reported navigation failure.
	KindTimeout   = Kind("timeout")   // render deadline reached.
	KindExtract   = Kind("extract")   // CDP refused the extraction call.
	KindPolicy    = Kind("policy")    // request violates the domain allow-list.
	KindPool      = Kind("pool")      // acquisition timed out on the waitlist.
	KindUpstream  = Kind("upstream")  // circuit breaker is OPEN.
	KindCancelled = Kind("cancelled") // caller abandoned the request.
)

// NavigateFault distinguishes the two navigation failure causes spec §7
// calls out: only upstream-fault counts toward the circuit breaker.
type NavigateFault string

const (
	FaultUpstream NavigateFault = "upstream" // DNS, connection refused, etc.
	FaultClient   NavigateFault = "client"   // invalid URL.
)

// AppError is the gateway's single error type; Kind selects behavior
// (breaker accounting, HTTP status) and Cause carries the underlying error.
type AppError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Fault      NavigateFault // only meaningful when Kind == KindNavigate
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func newErr(kind Kind, status int, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, HTTPStatus: status, Cause: cause}
}

// Transport returns a terminal transport error; the owning session is
// already dead by the time this is constructed.
func Transport(cause error) *AppError {
	return newErr(KindTransport, http.StatusBadGateway, "CDP transport failed", cause)
}

// Navigate returns a navigation error classified by fault.
func Navigate(fault NavigateFault, cause error) *AppError {
	status := http.StatusBadGateway
	if fault == FaultClient {
		status = http.StatusBadRequest
	}
	err := newErr(KindNavigate, status, "navigation failed", cause)
	err.Fault = fault
	return err
}

// Timeout returns a deadline-exceeded error; the session is condemned.
func Timeout(cause error) *AppError {
	return newErr(KindTimeout, http.StatusGatewayTimeout, "render deadline exceeded", cause)
}

// Extract returns an extraction error; the session survives.
func Extract(cause error) *AppError {
	return newErr(KindExtract, http.StatusBadGateway, "artifact extraction failed", cause)
}

// Policy returns a policy-violation error, raised before pool acquisition.
func Policy(message string) *AppError {
	return newErr(KindPolicy, http.StatusForbidden, message, nil)
}

// Pool returns a pool-acquisition-timeout error.
func Pool(cause error) *AppError {
	return newErr(KindPool, http.StatusBadGateway, "no page available", cause)
}

// UpstreamOpen returns an error for a circuit breaker in the OPEN state.
func UpstreamOpen() *AppError {
	return newErr(KindUpstream, http.StatusBadGateway, "upstream browser circuit open", nil)
}

// Cancelled returns an error for a caller-abandoned render.
func Cancelled(cause error) *AppError {
	return newErr(KindCancelled, http.StatusBadGateway, "render cancelled", cause)
}

// CountsTowardBreaker reports whether err should be recorded as a circuit
// breaker failure, per spec §4.5: TransportError, upstream-fault
// NavigateError, and TimeoutError count; ExtractError does not.
func CountsTowardBreaker(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Kind {
	case KindTransport, KindTimeout:
		return true
	case KindNavigate:
		return appErr.Fault == FaultUpstream
	default:
		return false
	}
}

// ShouldCondemnSession reports whether the session that produced err must
// not be returned to the pool healthy (spec §4.4 step 7: only TimeoutError
// and TransportError condemn the session).
func ShouldCondemnSession(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Kind == KindTimeout || appErr.Kind == KindTransport
}

// HTTPStatus returns the HTTP status code for err, defaulting to 500 for
// errors outside the taxonomy.
func HTTPStatus(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
