package yahoo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an upstream failure.
type Kind uint8

const (
	KindNetwork Kind = iota + 1
	KindUnauthorized
	KindNotFound
	KindRateLimited
	KindBadRequest
	KindServer
	KindDecode
)

// Sentinels matched by errors.Is against any *Error of the same Kind.
var (
	ErrNetwork      = errors.New("yahoo: network error")
	ErrUnauthorized = errors.New("yahoo: unauthorized")
	ErrNotFound     = errors.New("yahoo: not found")
	ErrRateLimited  = errors.New("yahoo: rate limited")
	ErrBadRequest   = errors.New("yahoo: bad request")
	ErrServer       = errors.New("yahoo: server error")
	ErrDecode       = errors.New("yahoo: malformed response")
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindBadRequest:
		return "bad_request"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindBadRequest:
		return ErrBadRequest
	case KindServer:
		return ErrServer
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

// Error is returned by every transport and response-parsing failure.
type Error struct {
	Kind   Kind
	Route  string
	Status int    // HTTP status, 0 when no response was received
	Detail string // upstream description or truncated body
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("yahoo: ")
	b.WriteString(e.Route)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf reports the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var ye *Error
	if errors.As(err, &ye) {
		return ye.Kind
	}
	return 0
}

// StatusKind maps an HTTP status to a Kind. 2xx maps to 0.
func StatusKind(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return 0
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}

// UpstreamError converts the in-body {"code","description"} error object that
// several endpoints return alongside a null result.
func UpstreamError(route, code, description string) *Error {
	kind := KindBadRequest
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "not found":
		kind = KindNotFound
	case "unauthorized", "forbidden":
		kind = KindUnauthorized
	case "too many requests":
		kind = KindRateLimited
	case "internal server error", "service unavailable":
		kind = KindServer
	}
	return &Error{Kind: kind, Route: route, Detail: strings.TrimSpace(code + ": " + description)}
}

// DecodeError wraps a JSON decoding failure for route.
func DecodeError(route string, err error) *Error {
	return &Error{Kind: KindDecode, Route: route, Err: err}
}
