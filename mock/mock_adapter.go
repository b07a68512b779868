// Package mock provides scripted collaborators for exercising a Gateway without a
// backend: a Transport that replays queued replies per endpoint, and
// SessionCollaborator / Notifier fakes that record what teardown asked of them.
package mock

import (
	"context"
	"sync"

	sessionbridge "github.com/opengovern/session-bridge"
)

// Reply is one scripted transport outcome. A non-nil Err is returned as a
// transport failure instead of a response.
type Reply struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Err        error
}

type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Transport answers requests from per-endpoint reply queues. When a queue holds a
// single reply it is repeated; endpoints without replies answer 404.
type Transport struct {
	mu       sync.Mutex
	replies  map[string][]Reply
	calls    map[string]int
	requests []sessionbridge.NormalizedRequest
	gates    map[string]*gate
}

func NewTransport() *Transport {
	return &Transport{
		replies: make(map[string][]Reply),
		calls:   make(map[string]int),
		gates:   make(map[string]*gate),
	}
}

// Respond appends replies for endpoint.
func (m *Transport) Respond(endpoint string, replies ...Reply) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[endpoint] = append(m.replies[endpoint], replies...)
	return m
}

// Gate makes the next calls to endpoint block until release is called. entered is
// closed once the first call reaches the gate.
func (m *Transport) Gate(endpoint string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	m.gates[endpoint] = g
	m.mu.Unlock()
	return g.entered, func() { close(g.release) }
}

func (m *Transport) ExecuteRequest(ctx context.Context, req *sessionbridge.NormalizedRequest) (*sessionbridge.NormalizedResponse, error) {
	m.mu.Lock()
	m.calls[req.Endpoint]++
	m.requests = append(m.requests, copyRequest(req))
	g := m.gates[req.Endpoint]
	reply, ok := m.next(req.Endpoint)
	m.mu.Unlock()

	if g != nil {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return &sessionbridge.NormalizedResponse{StatusCode: 404, Headers: map[string]string{}, Data: []byte(`{"error":"not found"}`)}, nil
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	headers := make(map[string]string, len(reply.Headers))
	for k, v := range reply.Headers {
		headers[k] = v
	}
	return &sessionbridge.NormalizedResponse{
		StatusCode: reply.StatusCode,
		Headers:    headers,
		Data:       []byte(reply.Body),
	}, nil
}

// next pops the endpoint's next reply; the caller holds m.mu.
func (m *Transport) next(endpoint string) (Reply, bool) {
	queue := m.replies[endpoint]
	if len(queue) == 0 {
		return Reply{}, false
	}
	reply := queue[0]
	if len(queue) > 1 {
		m.replies[endpoint] = queue[1:]
	}
	return reply, true
}

// Calls returns how many requests reached endpoint.
func (m *Transport) Calls(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[endpoint]
}

// Requests returns copies of every request received, in arrival order.
func (m *Transport) Requests() []sessionbridge.NormalizedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sessionbridge.NormalizedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func copyRequest(req *sessionbridge.NormalizedRequest) sessionbridge.NormalizedRequest {
	out := *req
	if req.Headers != nil {
		out.Headers = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			out.Headers[k] = v
		}
	}
	if req.Body != nil {
		out.Body = append([]byte(nil), req.Body...)
	}
	return out
}

// Session records teardown calls.
type Session struct {
	mu        sync.Mutex
	Cleared   []string
	Redirects []string
	ClearErr  error
}

func (s *Session) Clear(_ context.Context, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cleared = append(s.Cleared, role)
	return s.ClearErr
}

func (s *Session) Redirect(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Redirects = append(s.Redirects, path)
	return nil
}

// Snapshot returns copies of the recorded clears and redirects.
func (s *Session) Snapshot() (cleared, redirects []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Cleared...), append([]string(nil), s.Redirects...)
}

// Notifier records notices.
type Notifier struct {
	mu       sync.Mutex
	Messages []string
}

func (n *Notifier) Notify(_ context.Context, _ string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, message)
	return nil
}

func (n *Notifier) Snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.Messages...)
}
