// gateway.go
// ----------
// The gateway.go file contains the core Gateway struct and its methods.
// This is the main entry point of the library for users.
//
// Key functionalities include:
// - Building a Gateway with NewGateway() from a Transport, the session collaborators
//   and a GatewayConfig
// - Registering additional roles with RegisterRole()
// - Sending requests via gw.Send(), which transparently refreshes expired sessions
//
// The Gateway relies on a RequestExecutor for the per-request recovery state machine
// and on a refreshCoordinator that keeps at most one refresh call in flight.
package sessionbridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

type Gateway struct {
	mu       sync.Mutex
	byPrefix map[string]*RoleConfig
	byName   map[string]*RoleConfig
	config   *GatewayConfig

	transport Transport
	session   SessionCollaborator
	notifier  Notifier
	tokens    *TokenStore
	metrics   *Metrics
	log       logr.Logger

	refresher *refreshCoordinator
	executor  *RequestExecutor
}

// NewGateway validates config (DefaultGatewayConfig when nil) and registers its roles.
// session and notifier may be nil, in which case teardown only clears stored tokens.
func NewGateway(transport Transport, session SessionCollaborator, notifier Notifier, config *GatewayConfig) (*Gateway, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if config == nil {
		config = DefaultGatewayConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	gw := &Gateway{
		byPrefix:  make(map[string]*RoleConfig),
		byName:    make(map[string]*RoleConfig),
		config:    config,
		transport: transport,
		session:   session,
		notifier:  notifier,
		tokens:    NewTokenStore(),
		log:       logr.Discard(),
	}
	for _, role := range config.Roles {
		if err := gw.RegisterRole(role); err != nil {
			return nil, err
		}
	}
	gw.refresher = newRefreshCoordinator(gw)
	gw.executor = NewRequestExecutor(gw)
	return gw, nil
}

// SetLogger replaces the logger. Per-request chatter is logged at V(1).
func (g *Gateway) SetLogger(log logr.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = log.WithName("sessionbridge")
}

// SetMetrics enables Prometheus instrumentation.
func (g *Gateway) SetMetrics(m *Metrics) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics = m
}

// RegisterRole adds or replaces a role, keyed by its path prefix.
func (g *Gateway) RegisterRole(role RoleConfig) error {
	role.PathPrefix = strings.Trim(role.PathPrefix, "/")
	if role.Name == "" || role.PathPrefix == "" || role.RefreshEndpoint == "" {
		return fmt.Errorf("role needs a name, pathPrefix and refreshEndpoint: %+v", role)
	}
	if role.RefreshMethod == "" {
		role.RefreshMethod = "POST"
	}
	if role.LoginRedirect == "" {
		role.LoginRedirect = "/"
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.byPrefix[role.PathPrefix]; ok && existing.Name != role.Name {
		return fmt.Errorf("pathPrefix %q already registered for role %q", role.PathPrefix, existing.Name)
	}
	if old, ok := g.byName[role.Name]; ok {
		delete(g.byPrefix, old.PathPrefix)
	}
	r := role
	g.byPrefix[r.PathPrefix] = &r
	g.byName[r.Name] = &r
	g.log.V(1).Info("registered role", "role", r.Name, "prefix", r.PathPrefix, "refresh", r.RefreshEndpoint)
	return nil
}

// Send issues req and recovers from an expired session at most once.
// On success the response is returned unchanged. Every failure is a *GatewayError;
// the response that ended the chain is returned alongside it when there is one.
func (g *Gateway) Send(ctx context.Context, req *NormalizedRequest) (*NormalizedResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	return g.executor.Execute(ctx, req)
}

// RefreshPending reports whether a refresh call is currently in flight.
func (g *Gateway) RefreshPending() bool {
	return g.refresher.pending.Load()
}

// Tokens exposes the bearer tokens collected from refresh responses.
func (g *Gateway) Tokens() *TokenStore {
	return g.tokens
}

// Role returns the registered role with the given name.
func (g *Gateway) Role(name string) (RoleConfig, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.byName[name]
	if !ok {
		return RoleConfig{}, false
	}
	return *r, true
}

// roleFor maps the first path segment of endpoint to a role, falling back to the
// default role. It returns nil when neither applies.
func (g *Gateway) roleFor(endpoint string) *RoleConfig {
	path := endpoint
	if u, err := url.Parse(endpoint); err == nil {
		path = u.Path
	}
	segment := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(segment, '/'); i >= 0 {
		segment = segment[:i]
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byPrefix[segment]; ok {
		return r
	}
	if g.config.DefaultRole != "" {
		return g.byName[g.config.DefaultRole]
	}
	return nil
}

func (g *Gateway) isBlocklisted(resp *NormalizedResponse) bool {
	msg := strings.ToLower(resp.Message())
	if msg == "" {
		return false
	}
	for _, blocked := range g.config.BlocklistMessages {
		if blocked != "" && strings.Contains(msg, strings.ToLower(blocked)) {
			return true
		}
	}
	return false
}

func (g *Gateway) logger() logr.Logger {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.log
}

func (g *Gateway) instruments() *Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics
}

func roleName(role *RoleConfig) string {
	if role == nil {
		return ""
	}
	return role.Name
}
