package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"campusconnect.org/internal/auth"
)

// Client is a thin HTTP client for the auth API, used by smoke checks and
// internal tooling.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New constructs a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.StatusCode, e.Message)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var session auth.Session
	err := c.post(ctx, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	return session, err
}

// Refresh rotates the refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var session auth.Session
	err := c.post(ctx, "/v1/auth/refresh", "", map[string]string{
		"refreshToken": refreshToken,
	}, &session)
	return session, err
}

// Logout revokes the refresh token.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return c.post(ctx, "/v1/auth/logout", accessToken, map[string]string{
		"refreshToken": refreshToken,
	}, nil)
}

// Me returns the caller's verified identity.
func (c *Client) Me(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.get(ctx, "/v1/auth/me", accessToken, &out)
	return out, err
}

// RegisteredDevice is the registration response, including the one-time key.
type RegisteredDevice struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	AllowedIP string `json:"allowedIp"`
	APIKey    string `json:"apiKey"`
}

// RegisterDevice creates a device record (requires an admin token).
func (c *Client) RegisterDevice(ctx context.Context, accessToken, code, name, location, allowedIP string) (RegisteredDevice, error) {
	var out RegisteredDevice
	err := c.post(ctx, "/v1/devices", accessToken, map[string]string{
		"code":      code,
		"name":      name,
		"location":  location,
		"allowedIp": allowedIP,
	}, &out)
	return out, err
}

// ReportDeviceHealth sends a heartbeat authenticated by the device API key.
func (c *Client) ReportDeviceHealth(ctx context.Context, deviceID, apiKey, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/devices/health", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Id", deviceID)
	req.Header.Set("X-Device-Key", apiKey)
	return c.do(req, nil)
}

// RevokeChain revokes a refresh token and all of its descendants. Returns the
// number of records newly revoked.
func (c *Client) RevokeChain(ctx context.Context, accessToken, refreshToken string) (int, error) {
	var out struct {
		Revoked int `json:"revoked"`
	}
	err := c.post(ctx, "/v1/admin/tokens/revoke-chain", accessToken, map[string]string{
		"refreshToken": refreshToken,
	}, &out)
	return out.Revoked, err
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &payload)
		msg := payload.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
