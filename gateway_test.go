package sessionbridge_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	sessionbridge "github.com/opengovern/session-bridge"
	"github.com/opengovern/session-bridge/mock"
)

const (
	bookings      = "/_cl/bookings"
	profile       = "/_cl/profile"
	clientRefresh = "/client/refresh-token"
	vendorRefresh = "/vendor/refresh-token"
	adminRefresh  = "/admin/refresh-token"
)

var (
	ok200        = mock.Reply{StatusCode: 200, Body: `{"success":true}`}
	unauthorized = mock.Reply{StatusCode: 401, Body: `{"message":"Unauthorized"}`}
)

type fixture struct {
	gw        *sessionbridge.Gateway
	transport *mock.Transport
	session   *mock.Session
	notifier  *mock.Notifier
}

func newFixture(t *testing.T, mutate func(*sessionbridge.GatewayConfig)) *fixture {
	t.Helper()
	cfg := sessionbridge.DefaultGatewayConfig()
	if mutate != nil {
		mutate(cfg)
	}
	f := &fixture{
		transport: mock.NewTransport(),
		session:   &mock.Session{},
		notifier:  &mock.Notifier{},
	}
	gw, err := sessionbridge.NewGateway(f.transport, f.session, f.notifier, cfg)
	require.NoError(t, err)
	f.gw = gw
	return f
}

func get(endpoint string) *sessionbridge.NormalizedRequest {
	return &sessionbridge.NormalizedRequest{Method: "GET", Endpoint: endpoint}
}

func gatewayError(t *testing.T, err error) *sessionbridge.GatewayError {
	t.Helper()
	var ge *sessionbridge.GatewayError
	require.True(t, errors.As(err, &ge), "expected *GatewayError, got %T: %v", err, err)
	return ge
}

func TestSendSuccessPassesThrough(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, mock.Reply{StatusCode: 200, Body: `{"items":[1,2]}`, Headers: map[string]string{"x-request-id": "abc"}})

	resp, err := f.gw.Send(context.Background(), get(bookings))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `{"items":[1,2]}`, string(resp.Data))
	assert.Equal(t, "abc", resp.Header("X-Request-ID"))
	assert.Equal(t, 0, f.transport.Calls(clientRefresh))
}

// A 401 on a client path refreshes the client session once and replays the request.
func TestSendRefreshesAndReplays(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(clientRefresh, ok200)

	req := get(bookings)
	resp, err := f.gw.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	assert.Equal(t, 2, f.transport.Calls(bookings))
	assert.True(t, req.Retried)
	assert.False(t, f.gw.RefreshPending())

	reqs := f.transport.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, bookings, reqs[0].Endpoint)
	assert.False(t, reqs[0].Retried)
	assert.Equal(t, clientRefresh, reqs[1].Endpoint)
	assert.Equal(t, "POST", reqs[1].Method)
	assert.Equal(t, bookings, reqs[2].Endpoint)
	assert.True(t, reqs[2].Retried)

	cleared, _ := f.session.Snapshot()
	assert.Empty(t, cleared)
	assert.Empty(t, f.notifier.Snapshot())
}

func TestSendReplaysIdenticalBody(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(clientRefresh, ok200)

	req := &sessionbridge.NormalizedRequest{
		Method:   "POST",
		Endpoint: bookings,
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     []byte(`{"date":"2024-12-24"}`),
	}
	_, err := f.gw.Send(context.Background(), req)
	require.NoError(t, err)

	reqs := f.transport.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, reqs[0].Body, reqs[2].Body)
	assert.Equal(t, reqs[0].Headers, reqs[2].Headers)
}

// A failing refresh reaches the caller, tears the client session down and redirects to "/".
func TestSendRefreshFailureTearsDown(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized)
	f.transport.Respond(clientRefresh, mock.Reply{StatusCode: 500, Body: `{"message":"boom"}`})

	resp, err := f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))

	ge := gatewayError(t, err)
	assert.Equal(t, "client", ge.Role)
	assert.Equal(t, 500, ge.StatusCode)
	require.NotNil(t, resp)
	assert.Equal(t, 500, resp.StatusCode)

	var rerr *sessionbridge.RefreshError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, clientRefresh, rerr.Endpoint)
	assert.Equal(t, 500, rerr.StatusCode)

	cleared, redirects := f.session.Snapshot()
	assert.Equal(t, []string{"client"}, cleared)
	assert.Equal(t, []string{"/"}, redirects)
	assert.Equal(t, []string{sessionbridge.DefaultSessionExpiredNotice}, f.notifier.Snapshot())
	assert.Equal(t, 1, f.transport.Calls(bookings), "request must not be replayed after a failed refresh")
	assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	assert.False(t, f.gw.RefreshPending())
}

func TestSendRefreshTransportFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized)
	f.transport.Respond(clientRefresh, mock.Reply{Err: errors.New("connection reset")})

	_, err := f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
	assert.Contains(t, err.Error(), "connection reset")

	cleared, _ := f.session.Snapshot()
	assert.Equal(t, []string{"client"}, cleared)
}

func TestSendRetriedRequestIsNotRefreshed(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized)

	req := get(bookings)
	req.Retried = true

	for i := 0; i < 2; i++ {
		resp, err := f.gw.Send(context.Background(), req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
		assert.Equal(t, 401, resp.StatusCode)
	}
	assert.Equal(t, 0, f.transport.Calls(clientRefresh))
	cleared, _ := f.session.Snapshot()
	assert.Empty(t, cleared)
}

func TestSendSecond401AfterReplayIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized)
	f.transport.Respond(clientRefresh, ok200)

	resp, err := f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	assert.Equal(t, 2, f.transport.Calls(bookings))
}

// Two 401s racing for the same role share one refresh and are both replayed.
func TestConcurrent401sQueueBehindRefresh(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(profile, unauthorized, ok200)
	f.transport.Respond(clientRefresh, ok200)
	entered, release := f.transport.Gate(clientRefresh)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	resps := make([]*sessionbridge.NormalizedResponse, 2)
	send := func(i int, endpoint string) {
		defer wg.Done()
		resps[i], errs[i] = f.gw.Send(context.Background(), get(endpoint))
	}

	wg.Add(1)
	go send(0, bookings)
	<-entered
	assert.True(t, f.gw.RefreshPending())

	wg.Add(1)
	go send(1, profile)
	require.Eventually(t, func() bool { return f.gw.RefreshWaiters() == 2 }, 2*time.Second, time.Millisecond)

	release()
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, 200, resps[i].StatusCode)
	}
	assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	assert.Equal(t, 2, f.transport.Calls(bookings))
	assert.Equal(t, 2, f.transport.Calls(profile))
	assert.False(t, f.gw.RefreshPending())
}

// With the drop policy a 401 arriving during a refresh is not replayed.
func TestConcurrent401sDropPolicy(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, func(c *sessionbridge.GatewayConfig) { c.ConcurrentRefresh = sessionbridge.RefreshDrop })
	f.gw.SetMetrics(sessionbridge.NewMetrics(reg))
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(profile, unauthorized, ok200)
	f.transport.Respond(clientRefresh, ok200)
	entered, release := f.transport.Gate(clientRefresh)

	done := make(chan error, 1)
	go func() {
		_, err := f.gw.Send(context.Background(), get(bookings))
		done <- err
	}()
	<-entered
	require.True(t, f.gw.RefreshPending())

	resp, err := f.gw.Send(context.Background(), get(profile))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrRefreshInFlight))
	assert.Equal(t, 401, resp.StatusCode)

	release()
	require.NoError(t, <-done)

	assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	assert.Equal(t, 1, f.transport.Calls(profile), "dropped request must not be replayed")
	assert.Equal(t, 2, f.transport.Calls(bookings))
	assert.False(t, f.gw.RefreshPending())

	expected := `
# HELP sessionbridge_dropped_total 401 responses not retried because a refresh was already pending.
# TYPE sessionbridge_dropped_total counter
sessionbridge_dropped_total{role="client"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "sessionbridge_dropped_total"))
}

// A blocklisted 403 tears the vendor session down without any refresh.
func TestSendBlocklisted403TearsDown(t *testing.T) {
	f := newFixture(t, nil)
	listings := "/_vd/listings"
	f.transport.Respond(listings, mock.Reply{StatusCode: 403, Body: `{"message":"Access denied: Your account has been blocked"}`})

	resp, err := f.gw.Send(context.Background(), get(listings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrAccessDenied))
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "vendor", gatewayError(t, err).Role)

	assert.Equal(t, 0, f.transport.Calls(clientRefresh))
	assert.Equal(t, 0, f.transport.Calls(vendorRefresh))
	assert.Equal(t, 0, f.transport.Calls(adminRefresh))

	cleared, redirects := f.session.Snapshot()
	assert.Equal(t, []string{"vendor"}, cleared)
	assert.Equal(t, []string{"/vendor"}, redirects)
	assert.Equal(t, []string{sessionbridge.DefaultAccessDeniedNotice}, f.notifier.Snapshot())
}

func TestSendBlocklistMatching(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		retried  bool
		wantErr  error
		teardown bool
	}{
		{name: "blacklisted token", body: `{"message":"Token is blacklisted"}`, wantErr: sessionbridge.ErrAccessDenied, teardown: true},
		{name: "case insensitive", body: `{"error":"TOKEN IS BLACKLISTED"}`, wantErr: sessionbridge.ErrAccessDenied, teardown: true},
		{name: "plain text body", body: `your account has been blocked`, wantErr: sessionbridge.ErrAccessDenied, teardown: true},
		{name: "already retried", body: `{"message":"Token is blacklisted"}`, retried: true, wantErr: sessionbridge.ErrAccessDenied},
		{name: "ordinary forbidden", body: `{"message":"Insufficient permissions"}`, wantErr: sessionbridge.ErrUnexpectedStatus},
		{name: "empty body", body: ``, wantErr: sessionbridge.ErrUnexpectedStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.transport.Respond("/_ad/users", mock.Reply{StatusCode: 403, Body: tt.body})

			req := get("/_ad/users")
			req.Retried = tt.retried
			_, err := f.gw.Send(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			cleared, redirects := f.session.Snapshot()
			if tt.teardown {
				assert.Equal(t, []string{"admin"}, cleared)
				assert.Equal(t, []string{"/admin"}, redirects)
			} else {
				assert.Empty(t, cleared)
			}
			assert.Equal(t, 0, f.transport.Calls(adminRefresh))
		})
	}
}

func TestSendTransportErrorNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, mock.Reply{Err: errors.New("dial tcp: connection refused")})

	resp, err := f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, sessionbridge.ErrTransport))
	assert.Equal(t, 1, f.transport.Calls(bookings))
	assert.Equal(t, 0, f.transport.Calls(clientRefresh))
}

func TestSendUnrecognizedStatusPassesThrough(t *testing.T) {
	for _, status := range []int{400, 404, 409, 429, 500, 503} {
		f := newFixture(t, nil)
		f.transport.Respond(bookings, mock.Reply{StatusCode: status, Body: `{"message":"nope"}`})

		resp, err := f.gw.Send(context.Background(), get(bookings))
		require.Error(t, err)
		assert.True(t, errors.Is(err, sessionbridge.ErrUnexpectedStatus))
		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, status, gatewayError(t, err).StatusCode)
		assert.Equal(t, 1, f.transport.Calls(bookings))
		assert.Equal(t, 0, f.transport.Calls(clientRefresh))
	}
}

func TestSendUnknownRole(t *testing.T) {
	t.Run("no default role", func(t *testing.T) {
		f := newFixture(t, nil)
		f.transport.Respond("/public/events", unauthorized)

		_, err := f.gw.Send(context.Background(), get("/public/events"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, sessionbridge.ErrUnknownRole))
		assert.Equal(t, 0, f.transport.Calls(clientRefresh))
		cleared, _ := f.session.Snapshot()
		assert.Empty(t, cleared)
	})

	t.Run("blocklisted 403 is still a denial", func(t *testing.T) {
		f := newFixture(t, nil)
		f.transport.Respond("/public/events", mock.Reply{StatusCode: 403, Body: `{"message":"Token is blacklisted"}`})

		resp, err := f.gw.Send(context.Background(), get("/public/events"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, sessionbridge.ErrAccessDenied))
		assert.True(t, errors.Is(err, sessionbridge.ErrUnknownRole))
		assert.Equal(t, 403, resp.StatusCode)
		cleared, redirects := f.session.Snapshot()
		assert.Empty(t, cleared)
		assert.Empty(t, redirects)
		assert.Empty(t, f.notifier.Snapshot())
	})

	t.Run("falls back to default role", func(t *testing.T) {
		f := newFixture(t, func(c *sessionbridge.GatewayConfig) { c.DefaultRole = "client" })
		f.transport.Respond("/public/events", unauthorized, ok200)
		f.transport.Respond(clientRefresh, ok200)

		resp, err := f.gw.Send(context.Background(), get("/public/events"))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	})
}

func TestSendRoleFromAbsoluteURL(t *testing.T) {
	f := newFixture(t, nil)
	endpoint := "https://api.example.com/_ad/reports?page=2"
	f.transport.Respond(endpoint, unauthorized, ok200)
	f.transport.Respond(adminRefresh, ok200)

	_, err := f.gw.Send(context.Background(), get(endpoint))
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.Calls(adminRefresh))
	assert.Equal(t, 0, f.transport.Calls(clientRefresh))
}

func TestSendAttachesRefreshedBearerToken(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(clientRefresh, mock.Reply{StatusCode: 200, Body: `{"accessToken":"` + token + `","refreshToken":"r-1"}`})

	_, err = f.gw.Send(context.Background(), get(bookings))
	require.NoError(t, err)

	reqs := f.transport.Requests()
	require.Len(t, reqs, 3)
	assert.Empty(t, reqs[0].Headers["Authorization"])
	assert.Equal(t, "Bearer "+token, reqs[2].Headers["Authorization"])

	tok := f.gw.Tokens().Get("client")
	require.NotNil(t, tok)
	assert.WithinDuration(t, exp, tok.Expiry, time.Second)

	// a later refresh presents the stored refresh token
	f.transport.Respond(profile, unauthorized, ok200)
	f.gw.Tokens().Get("client").Expiry = time.Now().Add(-time.Minute)
	_, err = f.gw.Send(context.Background(), get(profile))
	require.NoError(t, err)
	reqs = f.transport.Requests()
	assert.JSONEq(t, `{"refresh_token":"r-1"}`, string(reqs[4].Body))
}

func TestSendKeepsCallerAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, ok200)
	f.gw.Tokens().Set("client", &oauth2.Token{AccessToken: "stored", Expiry: time.Now().Add(time.Hour)})

	req := get(bookings)
	req.Headers = map[string]string{"authorization": "Basic abc"}
	_, err := f.gw.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Basic abc", f.transport.Requests()[0].Headers["authorization"])
}

func TestTeardownClearsStoredToken(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized, ok200, unauthorized)
	f.transport.Respond(clientRefresh,
		mock.Reply{StatusCode: 200, Body: `{"access_token":"opaque-1","token_type":"bearer","expires_in":600}`},
		mock.Reply{StatusCode: 401},
	)

	_, err := f.gw.Send(context.Background(), get(bookings))
	require.NoError(t, err)
	require.NotNil(t, f.gw.Tokens().Get("client"))

	_, err = f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
	assert.Nil(t, f.gw.Tokens().Get("client"))
}

// The first caller giving up does not cancel the refresh shared with others.
func TestCallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(profile, unauthorized, ok200)
	f.transport.Respond(clientRefresh, ok200)
	entered, release := f.transport.Gate(clientRefresh)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.gw.Send(ctx, get(bookings))
		first <- err
	}()
	<-entered

	second := make(chan error, 1)
	go func() {
		_, err := f.gw.Send(context.Background(), get(profile))
		second <- err
	}()
	require.Eventually(t, func() bool { return f.gw.RefreshWaiters() == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	err := <-first
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	release()
	require.NoError(t, <-second)
	assert.Equal(t, 1, f.transport.Calls(clientRefresh))
	assert.Equal(t, 1, f.transport.Calls(bookings))
}

func TestRefreshTimeoutTearsDown(t *testing.T) {
	f := newFixture(t, func(c *sessionbridge.GatewayConfig) {
		c.RefreshTimeout = sessionbridge.Duration{Duration: 20 * time.Millisecond}
	})
	f.transport.Respond(bookings, unauthorized)
	f.transport.Respond(clientRefresh, ok200)
	_, release := f.transport.Gate(clientRefresh)
	defer release()

	_, err := f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	cleared, _ := f.session.Snapshot()
	assert.Equal(t, []string{"client"}, cleared)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, nil)
	f.gw.SetMetrics(sessionbridge.NewMetrics(reg))
	f.transport.Respond(bookings, unauthorized, ok200)
	f.transport.Respond(clientRefresh, ok200)
	f.transport.Respond("/_vd/listings", mock.Reply{StatusCode: 403, Body: `{"message":"Token is blacklisted"}`})

	_, err := f.gw.Send(context.Background(), get(bookings))
	require.NoError(t, err)
	_, err = f.gw.Send(context.Background(), get("/_vd/listings"))
	require.Error(t, err)

	expected := `
# HELP sessionbridge_refresh_total Session refresh calls by role and result.
# TYPE sessionbridge_refresh_total counter
sessionbridge_refresh_total{result="success",role="client"} 1
# HELP sessionbridge_replay_total Requests replayed after a refresh, by role and result.
# TYPE sessionbridge_replay_total counter
sessionbridge_replay_total{result="success",role="client"} 1
# HELP sessionbridge_teardown_total Session teardowns by role and reason.
# TYPE sessionbridge_teardown_total counter
sessionbridge_teardown_total{reason="blocked",role="vendor"} 1
# HELP sessionbridge_refresh_pending 1 while a session refresh is in flight.
# TYPE sessionbridge_refresh_pending gauge
sessionbridge_refresh_pending 0
# HELP sessionbridge_refresh_waiters Requests blocked waiting on a session refresh.
# TYPE sessionbridge_refresh_waiters gauge
sessionbridge_refresh_waiters 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sessionbridge_refresh_total", "sessionbridge_replay_total", "sessionbridge_teardown_total",
		"sessionbridge_refresh_pending", "sessionbridge_refresh_waiters"))
}

func TestNewGatewayValidation(t *testing.T) {
	_, err := sessionbridge.NewGateway(nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = sessionbridge.NewGateway(mock.NewTransport(), nil, nil, &sessionbridge.GatewayConfig{})
	assert.Error(t, err)

	gw, err := sessionbridge.NewGateway(mock.NewTransport(), nil, nil, nil)
	require.NoError(t, err)
	role, ok := gw.Role("vendor")
	require.True(t, ok)
	assert.Equal(t, "POST", role.RefreshMethod)
}

func TestRegisterRole(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.gw.RegisterRole(sessionbridge.RoleConfig{
		Name: "partner", PathPrefix: "/_pt/", RefreshEndpoint: "/partner/refresh-token", LoginRedirect: "/partner",
	}))
	assert.Error(t, f.gw.RegisterRole(sessionbridge.RoleConfig{Name: "other", PathPrefix: "_pt", RefreshEndpoint: "/x"}))
	assert.Error(t, f.gw.RegisterRole(sessionbridge.RoleConfig{Name: "broken"}))

	f.transport.Respond("/_pt/payouts", unauthorized)
	f.transport.Respond("/partner/refresh-token", mock.Reply{StatusCode: 403})

	_, err := f.gw.Send(context.Background(), get("/_pt/payouts"))
	require.Error(t, err)
	_, redirects := f.session.Snapshot()
	assert.Equal(t, []string{"/partner"}, redirects)
}

func TestNilCollaborators(t *testing.T) {
	transport := mock.NewTransport()
	transport.Respond(bookings, unauthorized)
	transport.Respond(clientRefresh, mock.Reply{StatusCode: 500})

	gw, err := sessionbridge.NewGateway(transport, nil, nil, nil)
	require.NoError(t, err)
	_, err = gw.Send(context.Background(), get(bookings))
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
}

func TestCollaboratorErrorsDoNotMaskGatewayError(t *testing.T) {
	f := newFixture(t, nil)
	f.session.ClearErr = errors.New("store unavailable")
	f.transport.Respond(bookings, unauthorized)
	f.transport.Respond(clientRefresh, mock.Reply{StatusCode: 500})

	_, err := f.gw.Send(context.Background(), get(bookings))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionbridge.ErrSessionExpired))
	assert.NotContains(t, err.Error(), "store unavailable")

	_, redirects := f.session.Snapshot()
	assert.Equal(t, []string{"/"}, redirects)
}
