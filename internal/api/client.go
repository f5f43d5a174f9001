// Package api implements the typed HTTP client for the meal-planning
// backend: whole-document and partial-field operations on the shared grocery
// state, plus the read endpoints served through the query cache.
package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mealmate/internal/config"
	"mealmate/internal/grocery"

	"github.com/golang-jwt/jwt/v5"
)

// writeRetries is the number of extra attempts for mutating requests.
// Read retries are the query cache's concern.
const writeRetries = 1

// Client is the remote store boundary. All grocery operations act on the
// single per-household document.
type Client interface {
	grocery.RemoteStore

	FetchRecipes(ctx context.Context) (json.RawMessage, error)
	FetchRecipe(ctx context.Context, id string) (json.RawMessage, error)
	FetchMealPlan(ctx context.Context, weekStart string) (json.RawMessage, error)
	FetchMe(ctx context.Context) (json.RawMessage, error)
}

// apiClient is the concrete implementation of the backend API client.
type apiClient struct {
	httpClient *http.Client
	cfg        *config.Config
	device     string
}

// NewClient creates a new backend API client. The device name identifies
// this writer in the document's advisory last-write metadata.
func NewClient(cfg *config.Config, device string) Client {
	return &apiClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		device:     device,
	}
}

func (c *apiClient) stateURL() string {
	return fmt.Sprintf("%s/v1/households/%s/grocery-state",
		strings.TrimRight(c.cfg.APIBaseURL, "/"), url.PathEscape(c.cfg.HouseholdID))
}

// FetchState retrieves the authoritative shared grocery document.
func (c *apiClient) FetchState(ctx context.Context) (*grocery.Document, error) {
	body, err := c.get(ctx, c.stateURL())
	if err != nil {
		return nil, err
	}

	var doc grocery.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode grocery state: %w", err)
	}
	return &doc, nil
}

// ReplaceState overwrites the whole remote document with the given state.
func (c *apiClient) ReplaceState(ctx context.Context, state grocery.ListState) error {
	return c.write(ctx, http.MethodPut, c.stateURL(), state)
}

// PatchState merges a partial field update into the remote document.
func (c *apiClient) PatchState(ctx context.Context, patch grocery.Patch) error {
	return c.write(ctx, http.MethodPatch, c.stateURL(), patch)
}

// DeleteState resets the remote document to its empty seed.
func (c *apiClient) DeleteState(ctx context.Context) error {
	return c.write(ctx, http.MethodDelete, c.stateURL(), nil)
}

// FetchRecipes fetches the household's recipe library.
func (c *apiClient) FetchRecipes(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("%s/v1/recipes", strings.TrimRight(c.cfg.APIBaseURL, "/")))
}

// FetchRecipe fetches a single recipe by ID.
func (c *apiClient) FetchRecipe(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("%s/v1/recipes/%s",
		strings.TrimRight(c.cfg.APIBaseURL, "/"), url.PathEscape(id)))
}

// FetchMealPlan fetches the weekly meal plan starting at the given date
// (YYYY-MM-DD).
func (c *apiClient) FetchMealPlan(ctx context.Context, weekStart string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/v1/households/%s/meal-plan?week=%s",
		strings.TrimRight(c.cfg.APIBaseURL, "/"),
		url.PathEscape(c.cfg.HouseholdID), url.QueryEscape(weekStart))
	return c.get(ctx, u)
}

// FetchMe fetches the current session user record.
func (c *apiClient) FetchMe(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("%s/v1/me", strings.TrimRight(c.cfg.APIBaseURL, "/")))
}

func (c *apiClient) get(ctx context.Context, u string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// write issues a mutating request, retrying once on failure.
func (c *apiClient) write(ctx context.Context, method, u string, payload interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= writeRetries; attempt++ {
		if err := c.writeOnce(ctx, method, u, body); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (c *apiClient) writeOnce(ctx context.Context, method, u string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("state api error: status %d", resp.StatusCode)
	}
	return nil
}

func (c *apiClient) authorize(req *http.Request) error {
	token, err := c.createToken()
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Device-Name", c.device)
	return nil
}

// createToken generates a short-lived JWT from the "id:secret" API key.
func (c *apiClient) createToken() (string, error) {
	keyParts := strings.Split(c.cfg.APIKey, ":")
	if len(keyParts) != 2 {
		return "", fmt.Errorf("invalid api key format: expected id:secret")
	}

	id := keyParts[0]
	secretHex := keyParts[1]

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"aud": "/v1/",
		"sub": c.cfg.HouseholdID,
	})
	token.Header["kid"] = id

	return token.SignedString(secret)
}
