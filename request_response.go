package sessionbridge

import (
	"encoding/json"
	"strings"
)

// NormalizedRequest is a single call issued through the Gateway.
// Retried is set by the Gateway once the request has been replayed after a
// session refresh; a retried request is never refreshed again.
type NormalizedRequest struct {
	Method   string
	Endpoint string
	Headers  map[string]string
	Body     []byte

	Retried bool
}

type NormalizedResponse struct {
	StatusCode int
	Headers    map[string]string // keys are lower-case
	Data       []byte
}

// Header returns the response header value for key, matched case-insensitively.
func (r *NormalizedResponse) Header(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(key)]
}

// Message extracts the server-provided message from a JSON error body
// ("message", "error" or "detail"), falling back to the raw body text.
func (r *NormalizedResponse) Message() string {
	if r == nil || len(r.Data) == 0 {
		return ""
	}
	var body map[string]interface{}
	if err := json.Unmarshal(r.Data, &body); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}
	return strings.TrimSpace(string(r.Data))
}

func (r *NormalizedRequest) header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (r *NormalizedRequest) setHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}
