package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/amaumene/malsync/internal/api/handlers"
	"github.com/amaumene/malsync/internal/config"
	"github.com/amaumene/malsync/internal/models"
)

// adminClient drives the admin API of a running server, which holds the
// database while it serves
type adminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAdminClient(cfg *config.Config) *adminClient {
	return &adminClient{
		baseURL:    "http://127.0.0.1:" + cfg.ServerPort,
		token:      cfg.AdminToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *adminClient) PutUser(ctx context.Context, userID string, req handlers.UserRequest) (*handlers.AdminResponse, error) {
	return c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), req)
}

func (c *adminClient) RemoveUser(ctx context.Context, userID string) (*handlers.AdminResponse, error) {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), nil)
}

func (c *adminClient) TriggerImport(ctx context.Context) (*handlers.AdminResponse, error) {
	return c.do(ctx, http.MethodPost, "/admin/mappings/import", nil)
}

func (c *adminClient) do(ctx context.Context, method, path string, body interface{}) (*handlers.AdminResponse, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach running server: %w", err)
	}
	defer resp.Body.Close()

	var result handlers.AdminResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("unexpected admin response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		return &result, fmt.Errorf("server answered %d: %s", resp.StatusCode, result.Message)
	}
	return &result, nil
}

// withStore runs local against the database. When a running server holds
// the database, remote runs against that server's admin API instead.
func withStore(local func(a *app) error, remote func(c *adminClient) error) error {
	a, err := newApp()
	if errors.Is(err, models.ErrDatabaseLocked) {
		cfg, cfgErr := config.Load()
		if cfgErr != nil {
			return cfgErr
		}
		if cfg.AdminToken == "" {
			return fmt.Errorf("%w: stop malsync serve first, or set ADMIN_TOKEN to go through its admin API", err)
		}
		return remote(newAdminClient(cfg))
	}
	if err != nil {
		return err
	}
	defer a.Close()
	return local(a)
}
