package sessionbridge

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why the Gateway failed a request.
type Kind int

const (
	// KindTransport is a network-level failure; it is never retried.
	KindTransport Kind = iota + 1
	// KindSessionExpired is a 401 that could not be recovered: the request was
	// already replayed once, or the refresh itself failed. Only a failed refresh
	// tears the session down; a 401 after a successful refresh is returned as is.
	KindSessionExpired
	// KindAccessDenied is a 403 carrying a blocklist message.
	KindAccessDenied
	// KindRefreshInFlight is a 401 dropped because another refresh was pending.
	KindRefreshInFlight
	// KindUnknownRole is a 401 on a path that maps to no role. A blocklisted 403
	// on such a path is KindAccessDenied wrapping ErrUnknownRole.
	KindUnknownRole
	// KindUnexpectedStatus is any other status >= 400, passed through untouched.
	KindUnexpectedStatus
)

var (
	ErrTransport        = errors.New("transport error")
	ErrSessionExpired   = errors.New("session expired")
	ErrAccessDenied     = errors.New("access denied")
	ErrRefreshInFlight  = errors.New("session refresh already in flight")
	ErrUnknownRole      = errors.New("no role configured for request path")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindSessionExpired:
		return ErrSessionExpired
	case KindAccessDenied:
		return ErrAccessDenied
	case KindRefreshInFlight:
		return ErrRefreshInFlight
	case KindUnknownRole:
		return ErrUnknownRole
	case KindUnexpectedStatus:
		return ErrUnexpectedStatus
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// GatewayError is returned by Gateway.Send for every failed request.
// Response is the response that ended the chain: the request's own response,
// or the refresh response when the refresh failed.
type GatewayError struct {
	Kind       Kind
	Role       string
	StatusCode int
	Response   *NormalizedResponse
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Kind.String()
	if e.Role != "" {
		msg += " (role " + e.Role + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSessionExpired) and friends match on Kind.
func (e *GatewayError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// RefreshError describes a failed call to a role's refresh endpoint.
type RefreshError struct {
	Role       string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh %s for role %s: %v", e.Endpoint, e.Role, e.Err)
	}
	return fmt.Sprintf("refresh %s for role %s: status %d", e.Endpoint, e.Role, e.StatusCode)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func statusError(kind Kind, role string, resp *NormalizedResponse, cause error) *GatewayError {
	ge := &GatewayError{Kind: kind, Role: role, Response: resp, Err: cause}
	if resp != nil {
		ge.StatusCode = resp.StatusCode
		if ge.Err == nil {
			if msg := resp.Message(); msg != "" {
				ge.Err = errors.New(msg)
			}
		}
	}
	return ge
}
