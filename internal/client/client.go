// Package client is a thin HTTP client over gafferd's control plane
// (internal/httpapi), used by cmd/gafferctl. Every call takes the caller's
// context and carries the configured API key in X-Api-Key, matching
// internal/httpapi/auth.go's expectations.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one gafferd endpoint over HTTP (TCP or Unix socket).
type Client struct {
	http   *http.Client
	base   string
	apiKey string
}

// New constructs a Client against bind, a gafferd [endpoint:*] "bind" URI
// (tcp://host:port or unix:/path/to.sock). apiKey may be empty when talking
// to a --no-auth daemon.
func New(bind, apiKey string) (*Client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	base := "http://gafferd"

	switch {
	case strings.HasPrefix(bind, "unix:"):
		sockPath := strings.TrimPrefix(bind, "unix:")
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sockPath)
			},
		}
	case strings.HasPrefix(bind, "tcp://"):
		base = "http://" + strings.TrimPrefix(bind, "tcp://")
	case strings.HasPrefix(bind, "tcp:"):
		base = "http://" + strings.TrimPrefix(bind, "tcp:")
	default:
		return nil, fmt.Errorf("client: unrecognized bind uri %q", bind)
	}

	return &Client{http: httpClient, base: base, apiKey: apiKey}, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("client: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// ListJobs returns every job the authenticated key can read.
func (c *Client) ListJobs(ctx context.Context) ([]JobView, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs", nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var views []JobView
	if err := decodeJSON(resp, &views); err != nil {
		return nil, fmt.Errorf("client: decode jobs: %w", err)
	}
	return views, nil
}

// GetJob returns one job's current state.
func (c *Client) GetJob(ctx context.Context, name string) (*JobView, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var view JobView
	if err := decodeJSON(resp, &view); err != nil {
		return nil, fmt.Errorf("client: decode job: %w", err)
	}
	return &view, nil
}

// AddJob registers a new job.
func (c *Client) AddJob(ctx context.Context, req AddJobRequest) error {
	resp, err := c.do(ctx, http.MethodPost, "/jobs", req)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusCreated)
}

// RemoveJob stops and removes a job.
func (c *Client) RemoveJob(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// StartJob clears an operator stop, resuming reconciliation.
func (c *Client) StartJob(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(name)+"/start", nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

// StopJob drains a job's live processes and pauses reconciliation.
func (c *Client) StopJob(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(name)+"/stop", nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

// UpdateNumProcesses changes a job's target process count.
func (c *Client) UpdateNumProcesses(ctx context.Context, name string, n int) error {
	resp, err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(name)+"/numprocesses",
		UpdateNumProcessesRequest{NumProcesses: n})
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

// ListKeys returns every persisted key. Requires a superuser key.
func (c *Client) ListKeys(ctx context.Context) ([]KeyRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/keys", nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var recs []KeyRecord
	if err := decodeJSON(resp, &recs); err != nil {
		return nil, fmt.Errorf("client: decode keys: %w", err)
	}
	return recs, nil
}

// WatchEvents streams the daemon's event bus over SSE, calling handler for
// each frame received. Blocks until ctx is cancelled or the connection
// drops.
func (c *Client) WatchEvents(ctx context.Context, handler func(Event)) error {
	resp, err := c.do(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}

	return scanSSE(resp.Body, handler)
}

// scanSSE parses the minimal "event: <type>\ndata: <payload>\n\n" framing
// internal/httpapi/handlers.go's eventsHandler writes, ignoring comment
// lines (the leading ": connected" keepalive).
func scanSSE(r io.Reader, handler func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Type != "" {
				handler(cur)
				cur = Event{}
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			cur.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = append(cur.Data, []byte(strings.TrimPrefix(line, "data:"))...)
		}
	}
	return scanner.Err()
}
