package vaillant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/rate"
)

const (
	Provider = "vaillant"

	defaultAPIURL   = "https://appapi.vaillant-plus.com"
	defaultTokenURL = "https://appapi.vaillant-plus.com/app/user/token"
)

// TokenSource is the slice of the auth manager the client needs.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	TriggerRefresh(ctx context.Context)
}

// Client talks to the Vaillant app API over HTTP. The websocket
// session is the primary transport for attribute pushes and commands;
// the client covers device discovery, full snapshots, and the command
// fallback.
type Client struct {
	baseURL string
	tokens  TokenSource

	httpClient *http.Client
}

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("vaillant api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Config defines runtime configuration for the Vaillant client.
type Config struct {
	APIURL       string
	WebsocketURL string
}

// DefaultTokenURL returns the identity endpoint for the auth manager.
func DefaultTokenURL(apiURL string) string {
	base := strings.TrimSpace(apiURL)
	if base == "" {
		return defaultTokenURL
	}
	return strings.TrimRight(base, "/") + "/app/user/token"
}

// RateLimits declares how hard we are willing to hit the app API.
func RateLimits() rate.Declaration {
	return rate.Provider(Provider).
		MaxRequestsPer(rate.Minute, 30).
		CacheFor(30 * time.Second).
		CooldownFor(time.Minute)
}

func NewClient(cfg Config, tokens TokenSource) *Client {
	baseURL := strings.TrimSpace(cfg.APIURL)
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: rate.WrapHTTP(RateLimits(), &http.Client{Timeout: 15 * time.Second}),
	}
}

// Bindings lists the devices bound to the account.
func (c *Client) Bindings(ctx context.Context) ([]Binding, error) {
	var resp struct {
		Devices []struct {
			DID            string `json:"did"`
			MAC            string `json:"mac"`
			ProductName    string `json:"product_name"`
			SerialNumber   string `json:"sno"`
			MCUSoftVersion string `json:"mcu_soft_version"`
			IsOnline       bool   `json:"is_online"`
		} `json:"devices"`
	}

	if err := c.getJSON(ctx, "/app/bindings", &resp); err != nil {
		return nil, err
	}

	bindings := make([]Binding, 0, len(resp.Devices))
	for _, device := range resp.Devices {
		bindings = append(bindings, Binding{
			DeviceID:        device.DID,
			MAC:             device.MAC,
			ProductName:     device.ProductName,
			SerialNumber:    device.SerialNumber,
			FirmwareVersion: device.MCUSoftVersion,
			Online:          device.IsOnline,
		})
	}
	return bindings, nil
}

// DeviceAttrsSnapshot pulls the full reported attribute set.
func (c *Client) DeviceAttrsSnapshot(ctx context.Context, deviceID string) (hub.Attrs, error) {
	var resp struct {
		DID       string         `json:"did"`
		UpdatedAt int64          `json:"updated_at"`
		Attr      map[string]any `json:"attr"`
	}

	if err := c.getJSON(ctx, "/app/devdata/"+deviceID+"/latest", &resp); err != nil {
		return nil, err
	}
	return hub.Attrs(resp.Attr), nil
}

// ControlDevice writes attributes over HTTP. Used when the websocket
// session is down.
func (c *Client) ControlDevice(ctx context.Context, deviceID string, attrs hub.Attrs) error {
	payload := map[string]any{
		"attrs": map[string]any(attrs),
	}
	return c.postJSON(ctx, "/app/control/"+deviceID, payload)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return HTTPStatusError{Status: resp.StatusCode, Body: string(data)}
	}

	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	resp.Body.Close()
	c.tokens.TriggerRefresh(ctx)
	return nil, fmt.Errorf("vaillant api unauthorized; refresh triggered")
}
