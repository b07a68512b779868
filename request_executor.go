package sessionbridge

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

var errNoResponse = errors.New("transport returned no response")

// RequestExecutor runs the per-request recovery state machine:
// SENT -> OK | AUTH_FAILED -> REFRESHING -> RETRIED -> OK | FAILED.
type RequestExecutor struct {
	gw *Gateway
}

func NewRequestExecutor(gw *Gateway) *RequestExecutor {
	return &RequestExecutor{gw: gw}
}

func (re *RequestExecutor) Execute(ctx context.Context, req *NormalizedRequest) (*NormalizedResponse, error) {
	gw := re.gw
	log := gw.logger()
	role := gw.roleFor(req.Endpoint)
	name := roleName(role)

	log.V(1).Info("sending request", "method", req.Method, "endpoint", req.Endpoint, "role", name, "retried", req.Retried)
	resp, err := gw.transport.ExecuteRequest(ctx, re.outgoing(req, role))
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		log.V(1).Info("transport error", "endpoint", req.Endpoint, "error", err.Error())
		return nil, &GatewayError{Kind: KindTransport, Role: name, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return re.handleUnauthorized(ctx, req, resp, role)
	case resp.StatusCode == http.StatusForbidden && gw.isBlocklisted(resp):
		return re.handleBlocked(ctx, req, resp, role)
	case resp.StatusCode >= 400:
		log.V(1).Info("unexpected status, not retrying", "endpoint", req.Endpoint, "status", resp.StatusCode)
		return resp, statusError(KindUnexpectedStatus, name, resp, nil)
	}

	if req.Retried {
		log.V(1).Info("request succeeded after session refresh", "endpoint", req.Endpoint, "role", name)
	}
	return resp, nil
}

func (re *RequestExecutor) handleUnauthorized(ctx context.Context, req *NormalizedRequest, resp *NormalizedResponse, role *RoleConfig) (*NormalizedResponse, error) {
	gw := re.gw
	log := gw.logger()

	if req.Retried {
		log.V(1).Info("401 on replayed request, giving up", "endpoint", req.Endpoint, "role", roleName(role))
		return resp, statusError(KindSessionExpired, roleName(role), resp, nil)
	}
	if role == nil {
		return resp, statusError(KindUnknownRole, "", resp, errors.Wrap(ErrUnknownRole, req.Endpoint))
	}

	req.Retried = true
	refreshResp, err := gw.refresher.refresh(ctx, role)
	if err != nil {
		var rerr *RefreshError
		switch {
		case errors.Is(err, ErrRefreshInFlight):
			log.V(1).Info("refresh already pending, dropping request", "endpoint", req.Endpoint, "role", role.Name)
			gw.instruments().observeDropped(role.Name)
			return resp, statusError(KindRefreshInFlight, role.Name, resp, ErrRefreshInFlight)
		case errors.As(err, &rerr):
			ge := &GatewayError{Kind: KindSessionExpired, Role: role.Name, StatusCode: rerr.StatusCode, Response: refreshResp, Err: err}
			return refreshResp, ge
		default:
			// no refresh verdict: the caller stopped waiting, or another role held
			// the refresh slot past refreshTimeout
			log.V(1).Info("no refresh verdict", "endpoint", req.Endpoint, "role", role.Name, "error", err.Error())
			return resp, &GatewayError{Kind: KindTransport, Role: role.Name, Response: resp, Err: err}
		}
	}

	log.V(1).Info("session refreshed, replaying request", "endpoint", req.Endpoint, "role", role.Name)
	replayResp, replayErr := re.Execute(ctx, req)
	gw.instruments().observeReplay(role.Name, replayErr)
	return replayResp, replayErr
}

func (re *RequestExecutor) handleBlocked(ctx context.Context, req *NormalizedRequest, resp *NormalizedResponse, role *RoleConfig) (*NormalizedResponse, error) {
	gw := re.gw

	if role == nil {
		// still a denial, but there is no session to tear down
		return resp, statusError(KindAccessDenied, "", resp, errors.Wrap(ErrUnknownRole, req.Endpoint))
	}
	if !req.Retried {
		gw.logger().Info("access denied by blocklist, ending session", "endpoint", req.Endpoint, "role", role.Name, "message", resp.Message())
		gw.teardown(ctx, role, teardownBlocked, gw.config.AccessDeniedNotice)
	}
	return resp, statusError(KindAccessDenied, role.Name, resp, nil)
}

// outgoing returns the request handed to the transport: a shallow copy with the
// role's stored bearer token attached unless the caller set Authorization itself.
func (re *RequestExecutor) outgoing(req *NormalizedRequest, role *RoleConfig) *NormalizedRequest {
	if role == nil {
		return req
	}
	if _, ok := req.header("Authorization"); ok {
		return req
	}
	tok := re.gw.tokens.Get(role.Name)
	if tok == nil {
		return req
	}

	out := *req
	out.Headers = make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		out.Headers[k] = v
	}
	out.setHeader("Authorization", tok.Type()+" "+tok.AccessToken)
	return &out
}
