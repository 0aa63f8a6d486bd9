// Package cli is the HTTP client for the pressbox daemon API, used by
// the pressbox command.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// Client talks to a running pressbox daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// Lifecycle calls block until liveness confirms or times out, so
		// the client timeout sits well above the daemon's probe budget.
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// CreateSiteRequest mirrors the daemon's create payload.
type CreateSiteRequest struct {
	Name             string `json:"name"`
	Domain           string `json:"domain,omitempty"`
	Port             int    `json:"port,omitempty"`
	PHPVersion       string `json:"php_version,omitempty"`
	WordPressVersion string `json:"wordpress_version,omitempty"`
	WebServer        string `json:"web_server,omitempty"`
	Environment      string `json:"environment,omitempty"`
	DatabaseEngine   string `json:"database_engine,omitempty"`
	SSL              bool   `json:"ssl,omitempty"`
	Multisite        bool   `json:"multisite,omitempty"`
	AdminUser        string `json:"admin_user,omitempty"`
	AdminPassword    string `json:"admin_password,omitempty"`
	AdminEmail       string `json:"admin_email,omitempty"`
}

func (c *Client) CreateSite(ctx context.Context, req CreateSiteRequest) (*model.Site, error) {
	var site model.Site
	if err := c.do(ctx, http.MethodPost, "/api/v1/sites", req, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (c *Client) ListSites(ctx context.Context) ([]*model.Site, error) {
	var sites []*model.Site
	if err := c.do(ctx, http.MethodGet, "/api/v1/sites", nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// ResolveSite finds a site by id or name.
func (c *Client) ResolveSite(ctx context.Context, ref string) (*model.Site, error) {
	sites, err := c.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sites {
		if s.ID == ref || s.Name == ref {
			return s, nil
		}
	}
	return nil, model.E(model.KindNotFound, "no site with id or name %q", ref)
}

func (c *Client) GetSite(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	if err := c.do(ctx, http.MethodGet, "/api/v1/sites/"+id, nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (c *Client) StartSite(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	if err := c.do(ctx, http.MethodPost, "/api/v1/sites/"+id+"/start", nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (c *Client) StopSite(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	if err := c.do(ctx, http.MethodPost, "/api/v1/sites/"+id+"/stop", nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (c *Client) DeleteSite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sites/"+id, nil, nil)
}

func (c *Client) MigrateSite(ctx context.Context, id, to string) (*model.Site, error) {
	var site model.Site
	body := map[string]string{"to": to}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sites/"+id+"/migrate", body, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (c *Client) SiteLogs(ctx context.Context, id string, lines int) (string, error) {
	var out struct {
		Logs string `json:"logs"`
	}
	path := fmt.Sprintf("/api/v1/sites/%s/logs?lines=%d", id, lines)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

func (c *Client) DBServers(ctx context.Context) ([]model.DBServer, error) {
	var servers []model.DBServer
	if err := c.do(ctx, http.MethodGet, "/api/v1/dbservers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (c *Client) StopDBServers(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/dbservers/stop", nil, nil)
}

func (c *Client) PortLeases(ctx context.Context) ([]model.PortLease, error) {
	var leases []model.PortLease
	if err := c.do(ctx, http.MethodGet, "/api/v1/ports", nil, &leases); err != nil {
		return nil, err
	}
	return leases, nil
}

func (c *Client) HostsEntries(ctx context.Context) ([]model.HostsEntry, error) {
	var entries []model.HostsEntry
	if err := c.do(ctx, http.MethodGet, "/api/v1/hosts", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if body.Kind != "" {
		return model.E(model.ErrorKind(body.Kind), "%s", body.Error)
	}
	return fmt.Errorf("%s", body.Error)
}
