// http_adapter.go
// ---------------
// This adapter sends gateway requests to a backend over HTTP. Sessions in the observed
// deployments are cookie based, so the adapter owns a cookie jar: the refresh endpoint
// rotates the session cookie and later requests carry it without the gateway ever
// reading it.
//
// Key Points:
// - Endpoints are joined to BaseURL unless they are already absolute URLs.
// - The client comes from go-cleanhttp (pooled transport, no shared global state).
// - Bodies default to application/json when the caller set no Content-Type.
// - Response header keys are lower-cased.

package adapters

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	sessionbridge "github.com/opengovern/session-bridge"
)

const DefaultRequestTimeout = 30 * time.Second

type HTTPAdapter struct {
	BaseURL string

	client *http.Client
}

// NewHTTPAdapter returns an adapter for baseURL with a pooled client and an empty cookie jar.
func NewHTTPAdapter(baseURL string) (*HTTPAdapter, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}

	client := cleanhttp.DefaultPooledClient()
	client.Jar = jar
	client.Timeout = DefaultRequestTimeout
	return &HTTPAdapter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

// SetHTTPClient swaps the underlying client, e.g. for a custom TLS config.
// The client's cookie jar, if any, is used as-is.
func (h *HTTPAdapter) SetHTTPClient(client *http.Client) {
	h.client = client
}

// Jar returns the cookie jar carrying the session cookies.
func (h *HTTPAdapter) Jar() http.CookieJar {
	return h.client.Jar
}

func (h *HTTPAdapter) ExecuteRequest(ctx context.Context, req *sessionbridge.NormalizedRequest) (*sessionbridge.NormalizedResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, h.resolve(req.Endpoint), body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		if len(vals) > 0 {
			headers[strings.ToLower(k)] = vals[0]
		}
	}

	return &sessionbridge.NormalizedResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Data:       data,
	}, nil
}

func (h *HTTPAdapter) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return h.BaseURL + endpoint
}
