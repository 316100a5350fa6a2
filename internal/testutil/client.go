package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

// TestClient makes requests against a TestServer.
type TestClient struct {
	*http.Client
	t  *testing.T
	ts *TestServer
}

// NewClient returns a client for ts.
func NewClient(t *testing.T, ts *TestServer) *TestClient {
	t.Helper()
	return &TestClient{
		Client: &http.Client{Timeout: 30 * time.Second},
		t:      t,
		ts:     ts,
	}
}

// RequestWithHeaders makes an HTTP request with custom headers.
func (c *TestClient) RequestWithHeaders(method, path string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.ts.URL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Client.Do(req)
}

// Get makes a GET request to the test server.
func (c *TestClient) Get(path string) (*http.Response, error) {
	return c.RequestWithHeaders(http.MethodGet, path, nil)
}

// GetJSON makes a GET request, requires the expected status and decodes the body into v.
func (c *TestClient) GetJSON(path string, expected int, v any) {
	c.t.Helper()
	resp, err := c.Get(path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	RequireStatus(c.t, resp, expected)
	ParseJSON(c.t, resp, v)
}

// ParseJSON decodes the response body as JSON into v and closes the body.
func ParseJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("failed to decode response JSON: %v. Body: %s", err, string(body))
	}
}

// RequireStatus checks that the response has the expected status code.
// If not, it fails the test with the response body for debugging.
func RequireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d. Body: %s", expected, resp.StatusCode, string(body))
	}
}
