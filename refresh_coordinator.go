// refresh_coordinator.go
// ----------------------
// This file defines the refreshCoordinator, which owns the gateway's RefreshState.
// It guarantees that at most one refresh call is outstanding per Gateway and decides,
// according to GatewayConfig.ConcurrentRefresh, what happens to 401s that arrive
// while a refresh is already running.
//
// Responsibilities:
// - Tracking the pending flag for the lifetime of the Gateway.
// - Sharing one refresh call between concurrent 401s of the same role (queue policy).
// - Serializing refreshes of different roles behind a weight-1 semaphore.
// - Running teardown exactly once per failed refresh attempt.
package sessionbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

type refreshCoordinator struct {
	gw    *Gateway
	group singleflight.Group
	sem   *semaphore.Weighted

	pending atomic.Bool
	// waiting counts callers currently blocked on a shared refresh; mirrored
	// by the sessionbridge_refresh_waiters gauge.
	waiting atomic.Int32
}

func newRefreshCoordinator(gw *Gateway) *refreshCoordinator {
	return &refreshCoordinator{gw: gw, sem: semaphore.NewWeighted(1)}
}

// refresh renews role's session. It returns the refresh response and, on failure,
// a *RefreshError, ErrRefreshInFlight (drop policy) or a context error. Only a
// *RefreshError means a refresh call was made and failed.
func (c *refreshCoordinator) refresh(ctx context.Context, role *RoleConfig) (*NormalizedResponse, error) {
	if c.gw.config.ConcurrentRefresh == RefreshDrop {
		return c.refreshOrDrop(ctx, role)
	}

	ch := c.group.DoChan(role.Name, func() (interface{}, error) {
		// The shared call outlives the first caller's context; waiters bail out on their own.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.gw.config.RefreshTimeout.Duration)
		defer cancel()

		if err := c.sem.Acquire(rctx, 1); err != nil {
			// no refresh call was made, so the session is not known to be dead
			return nil, errors.Wrapf(err, "waiting to refresh role %s", role.Name)
		}
		defer c.sem.Release(1)

		c.setPending(true)
		defer c.setPending(false)
		return c.run(rctx, role)
	})

	c.addWaiter(1)
	defer c.addWaiter(-1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		resp, _ := res.Val.(*NormalizedResponse)
		return resp, res.Err
	}
}

func (c *refreshCoordinator) refreshOrDrop(ctx context.Context, role *RoleConfig) (*NormalizedResponse, error) {
	if !c.pending.CompareAndSwap(false, true) {
		return nil, ErrRefreshInFlight
	}
	c.gw.instruments().setPending(true)
	defer c.setPending(false)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.gw.config.RefreshTimeout.Duration)
	defer cancel()
	return c.run(rctx, role)
}

func (c *refreshCoordinator) setPending(pending bool) {
	c.pending.Store(pending)
	c.gw.instruments().setPending(pending)
}

func (c *refreshCoordinator) addWaiter(delta int32) {
	c.waiting.Add(delta)
	c.gw.instruments().addWaiters(float64(delta))
}

// run performs one refresh call. The refresh request is marked Retried so it can
// never recurse into another refresh.
func (c *refreshCoordinator) run(ctx context.Context, role *RoleConfig) (*NormalizedResponse, error) {
	gw := c.gw
	log := gw.logger()

	req := &NormalizedRequest{
		Method:   role.RefreshMethod,
		Endpoint: role.RefreshEndpoint,
		Retried:  true,
	}
	if rt := gw.tokens.refreshToken(role.Name); rt != "" {
		body, _ := json.Marshal(map[string]string{"refresh_token": rt})
		req.Headers = map[string]string{"Content-Type": "application/json"}
		req.Body = body
	}

	log.V(1).Info("refreshing session", "role", role.Name, "endpoint", role.RefreshEndpoint)
	start := time.Now()
	resp, err := gw.transport.ExecuteRequest(ctx, req)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		err = &RefreshError{Role: role.Name, Endpoint: role.RefreshEndpoint, Err: err}
	} else if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err = &RefreshError{Role: role.Name, Endpoint: role.RefreshEndpoint, StatusCode: resp.StatusCode}
	}
	gw.instruments().observeRefresh(role.Name, err)

	if err != nil {
		log.Info("session refresh failed, ending session", "role", role.Name, "error", err.Error(), "elapsed", time.Since(start).String())
		gw.teardown(context.WithoutCancel(ctx), role, teardownRefreshFailed, gw.config.SessionExpiredNotice)
		return resp, err
	}

	if tok, ok := tokenFromRefresh(resp, time.Now()); ok {
		gw.tokens.Set(role.Name, tok)
	}
	log.V(1).Info("session refreshed", "role", role.Name, "elapsed", time.Since(start).String())
	return resp, nil
}
