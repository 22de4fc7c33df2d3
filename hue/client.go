// Package hue is a thin client for the Philips Hue Bridge REST API: the
// link-button pairing ceremony plus verbatim passthrough of resource
// requests for authenticated callers.
package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrLinkButtonNotPressed is returned when pairing is attempted before
	// the bridge's physical link button has been pressed.
	ErrLinkButtonNotPressed = errors.New("link button not pressed")
	// ErrBridgeUnreachable indicates the bridge did not answer in time.
	ErrBridgeUnreachable = errors.New("bridge unreachable")
)

const defaultTimeout = 5 * time.Second

// linkButtonErrorType is the bridge's numeric error code for an unpressed
// link button.
const linkButtonErrorType = 101

// Client talks to a Hue Bridge. The zero value is not usable; use New.
type Client struct {
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every bridge call. An unreachable bridge surfaces as
// ErrBridgeUnreachable, never an indefinite hang.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

func New(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

// bridgeResult is one element of the bridge's response array.
type bridgeResult struct {
	Success map[string]json.RawMessage `json:"success"`
	Error   *bridgeError               `json:"error"`
}

type bridgeError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// Pair performs the link-button pairing ceremony and returns the long-lived
// API key ("username") the bridge issues for appName.
func (c *Client) Pair(ctx context.Context, bridgeIP, appName string) (string, error) {
	body, err := json.Marshal(map[string]string{"devicetype": appName})
	if err != nil {
		return "", fmt.Errorf("encoding pairing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/api", bridgeIP), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building pairing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBridgeUnreachable, err)
	}
	defer resp.Body.Close()

	var results []bridgeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("decoding pairing response: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("empty pairing response from bridge")
	}

	first := results[0]
	if first.Error != nil {
		if first.Error.Type == linkButtonErrorType {
			return "", ErrLinkButtonNotPressed
		}
		return "", fmt.Errorf("bridge error %d: %s", first.Error.Type, first.Error.Description)
	}

	var username string
	if raw, ok := first.Success["username"]; ok {
		if err := json.Unmarshal(raw, &username); err != nil {
			return "", fmt.Errorf("decoding username: %w", err)
		}
	}
	if username == "" {
		return "", fmt.Errorf("pairing response missing username")
	}
	return username, nil
}

// Get forwards a GET for the given resource path (e.g. "lights") and
// returns the raw JSON payload.
func (c *Client) Get(ctx context.Context, bridgeIP, username, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, bridgeIP, username, path, nil)
}

// Put forwards a PUT with the given JSON body (e.g. a light state change).
func (c *Client) Put(ctx context.Context, bridgeIP, username, path string, body json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, bridgeIP, username, path, body)
}

func (c *Client) do(ctx context.Context, method, bridgeIP, username, path string, body json.RawMessage) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	url := fmt.Sprintf("http://%s/api/%s/%s", bridgeIP, username, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building bridge request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading bridge response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return payload, nil
}
