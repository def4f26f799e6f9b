package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// Error is the transport failure raised when a response cannot be retrieved
// or decoded. Query adapters rewrap it; it never reaches callers raw.
type Error struct {
	Base   string
	URI    string
	Method string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (base: %s, uri: %s, method: %s)", e.Reason, e.Base, e.URI, e.Method)
}

// Client fetches JSON documents from a RESTful API under a fixed base URL.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the given base URL. A non-positive timeout falls
// back to 30 seconds.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: parsed,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// GetJSON issues a GET request against the base URL joined with uri and
// decodes the JSON response body into out. Non-2xx statuses and undecodable
// bodies both fail with *Error.
func (c *Client) GetJSON(ctx context.Context, uri string, params url.Values, out any) error {
	u := *c.base
	u.Path = path.Join(c.base.Path, uri)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return c.wrap(uri, "unable to build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrap(uri, "unable to fetch data")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.wrap(uri, "unable to fetch data")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.wrap(uri, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.wrap(uri, "unable to decode response")
	}
	return nil
}

func (c *Client) wrap(uri, reason string) *Error {
	return &Error{
		Base:   c.base.String(),
		URI:    uri,
		Method: http.MethodGet,
		Reason: reason,
	}
}
