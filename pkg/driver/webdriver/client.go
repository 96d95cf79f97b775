// Package webdriver implements core.Driver over the W3C WebDriver protocol
// (chromedriver, geckodriver, Selenium Grid and cloud hubs).
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// Client handles HTTP communication with a WebDriver endpoint.
type Client struct {
	serverURL    string
	sessionID    string
	client       *http.Client
	capabilities map[string]interface{} // as returned by the server
}

// NewClient creates a new WebDriver client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Minute, // session creation can start a browser
		},
	}
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	value, err := c.post(ctx, "/session", body)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid session response")
	}

	c.sessionID, _ = obj["sessionId"].(string)
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}
	c.capabilities, _ = obj["capabilities"].(map[string]interface{})
	return nil
}

// Attach reuses an existing session instead of creating one.
func (c *Client) Attach(sessionID string) {
	c.sessionID = sessionID
}

// Disconnect closes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(ctx, c.sessionPath())
	c.sessionID = ""
	return err
}

// SessionID returns the current session ID.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Capability returns a capability reported by the server.
func (c *Client) Capability(name string) string {
	v, _ := c.capabilities[name].(string)
	return v
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(ctx context.Context, path string) (interface{}, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (interface{}, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	return c.request(ctx, http.MethodPost, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (interface{}, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

// request performs one command and returns the "value" member of the reply.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	var result struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}

	var value interface{}
	if len(result.Value) > 0 {
		if err := json.Unmarshal(result.Value, &value); err != nil {
			return nil, fmt.Errorf("failed to parse response value: %w", err)
		}
	}

	// Check for WebDriver error
	if obj, ok := value.(map[string]interface{}); ok {
		if code, ok := obj["error"].(string); ok {
			msg, _ := obj["message"].(string)
			return nil, mapError(code, msg)
		}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webdriver: HTTP %d for %s %s", resp.StatusCode, method, path)
	}
	return value, nil
}

// transportError classifies failures to reach the server. Shutdown
// cancellation is passed through untouched.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var urlErr *url.Error
	var netErr *net.OpError
	if errors.As(err, &netErr) || (errors.As(err, &urlErr) && !urlErr.Timeout()) {
		return core.ErrServerUnreachable.WithCause(err)
	}
	return err
}

// mapError translates a W3C error code into the engine's taxonomy.
func mapError(code, msg string) error {
	details := map[string]interface{}{"w3c": code}
	var proto *core.ExecutionError
	switch code {
	case "no such element":
		proto = core.ErrElementNotFound
	case "stale element reference", "detached shadow root":
		proto = core.ErrStaleElement
	case "element not interactable", "element click intercepted":
		proto = core.ErrNotInteractable
	case "no such window", "no such frame":
		proto = core.ErrNoSuchWindow
	case "invalid session id", "session not created":
		proto = core.ErrSessionLost
	case "timeout", "script timeout":
		proto = core.ErrWaitTimeout
	case "invalid selector", "invalid argument":
		proto = core.ErrInvalidConfig
	default:
		return fmt.Errorf("%s: %s", code, firstLine(msg))
	}
	return proto.WithDetails(details).WithCause(errors.New(firstLine(msg)))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func extractElementID(value interface{}) string {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return ""
	}
	// W3C format
	if id, ok := obj[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := obj["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
