package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.ProvisioningClient = (*PanelClient)(nil)

// PanelClient talks to the VPN management panel's REST API. One authenticated
// session is held per target and reused across calls, so a sweep touching
// many clients on the same backend logs in once.
//
// The panel is not assumed idempotent: "already exists", "already disabled"
// and "unknown client on delete" responses are normalised to success here,
// which makes every call safe for the orchestrator and retry sweep to replay.
type PanelClient struct {
	targets map[string]config.PanelTarget
	client  *http.Client

	mu       sync.Mutex
	sessions map[string]string // targetID -> bearer token
}

func NewPanelClient(targets []config.PanelTarget) (*PanelClient, error) {
	if len(targets) == 0 {
		return nil, errors.New("no panel targets configured")
	}
	m := make(map[string]config.PanelTarget, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	return &PanelClient{
		targets:  m,
		client:   &http.Client{Timeout: 15 * time.Second},
		sessions: make(map[string]string),
	}, nil
}

func (c *PanelClient) target(id string) (config.PanelTarget, error) {
	t, ok := c.targets[id]
	if !ok {
		return config.PanelTarget{}, domain.Integrity(fmt.Errorf("unknown provisioning target %q", id))
	}
	return t, nil
}

// login authenticates against a target and caches the session token.
func (c *PanelClient) login(ctx context.Context, t config.PanelTarget) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username": t.Username,
		"password": t.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.BaseURL, "/")+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", domain.Transient(fmt.Errorf("panel login %s: status %d", t.ID, resp.StatusCode))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return "", domain.Transient(fmt.Errorf("panel login %s: bad response", t.ID))
	}
	c.mu.Lock()
	c.sessions[t.ID] = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

func (c *PanelClient) session(ctx context.Context, t config.PanelTarget) (string, error) {
	c.mu.Lock()
	tok := c.sessions[t.ID]
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return c.login(ctx, t)
}

// call performs one authenticated request, re-logging in once on a stale
// session. Returns the response status code; the caller decides what 4xx
// codes mean for its operation.
func (c *PanelClient) call(ctx context.Context, targetID, method, path string, body []byte, out interface{}) (int, error) {
	t, err := c.target(targetID)
	if err != nil {
		return 0, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := c.session(ctx, t)
		if err != nil {
			return 0, err
		}
		req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(t.BaseURL, "/")+path, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := c.client.Do(req)
		if err != nil {
			return 0, domain.Transient(err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			c.mu.Lock()
			delete(c.sessions, t.ID)
			c.mu.Unlock()
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return resp.StatusCode, domain.Transient(fmt.Errorf("panel %s %s: status %d", method, path, resp.StatusCode))
		}
		if out != nil && resp.StatusCode < 300 {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, domain.Transient(err)
			}
		}
		return resp.StatusCode, nil
	}
	return 0, domain.Transient(errors.New("panel session could not be established"))
}

func durationDays(d time.Duration) int {
	days := int(d / (24 * time.Hour))
	if days <= 0 {
		days = 1
	}
	return days
}

type panelClient struct {
	ClientID  string `json:"client_id"`
	AccessURL string `json:"access_url"`
}

func (c *PanelClient) Provision(ctx context.Context, ownerRef, targetID string, duration time.Duration) (*adapter.Provisioned, error) {
	body, _ := json.Marshal(map[string]any{
		"owner_ref":     ownerRef,
		"duration_days": durationDays(duration),
	})
	var out panelClient
	code, err := c.call(ctx, targetID, http.MethodPost, "/api/clients", body, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case code == http.StatusConflict:
		// Already provisioned (an earlier attempt partially succeeded).
		// Resolve the existing client instead of failing the retry.
		var existing panelClient
		code, err = c.call(ctx, targetID, http.MethodGet, "/api/clients/by-owner/"+ownerRef, nil, &existing)
		if err != nil {
			return nil, err
		}
		if code != http.StatusOK || existing.ClientID == "" {
			return nil, domain.Transient(fmt.Errorf("panel: conflict but existing client not resolvable (status %d)", code))
		}
		out = existing
	case code >= 300:
		return nil, domain.Transient(fmt.Errorf("panel create client: status %d", code))
	}
	if out.ClientID == "" || out.AccessURL == "" {
		// The backend resource may exist without a retrievable descriptor;
		// surfacing this as transient lets the retry sweep pick it up.
		return nil, domain.Transient(errors.New("panel: client created but access descriptor missing"))
	}
	return &adapter.Provisioned{ExternalClientID: out.ClientID, AccessDescriptor: out.AccessURL}, nil
}

func (c *PanelClient) Renew(ctx context.Context, targetID, externalClientID string, duration time.Duration) error {
	body, _ := json.Marshal(map[string]any{"duration_days": durationDays(duration)})
	code, err := c.call(ctx, targetID, http.MethodPost, "/api/clients/"+externalClientID+"/renew", body, nil)
	if err != nil {
		return err
	}
	if code >= 300 {
		return domain.Transient(fmt.Errorf("panel renew client: status %d", code))
	}
	return nil
}

func (c *PanelClient) SetEnabled(ctx context.Context, targetID, externalClientID string, enabled bool) error {
	body, _ := json.Marshal(map[string]bool{"enabled": enabled})
	code, err := c.call(ctx, targetID, http.MethodPost, "/api/clients/"+externalClientID+"/enabled", body, nil)
	if err != nil {
		return err
	}
	switch {
	case code == http.StatusConflict:
		return nil // already in the requested state
	case code >= 300:
		return domain.Transient(fmt.Errorf("panel set enabled: status %d", code))
	}
	return nil
}

func (c *PanelClient) Revoke(ctx context.Context, targetID, externalClientID string) error {
	code, err := c.call(ctx, targetID, http.MethodDelete, "/api/clients/"+externalClientID, nil, nil)
	if err != nil {
		return err
	}
	switch {
	case code == http.StatusNotFound:
		return nil // already gone
	case code >= 300:
		return domain.Transient(fmt.Errorf("panel revoke client: status %d", code))
	}
	return nil
}
