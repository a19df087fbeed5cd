package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IdempotencyKeyHeader carries the deterministic creation key so the server
// can deduplicate retried creates.
const IdempotencyKeyHeader = "Idempotency-Key"

// defaultTimeout bounds every request so a hung call degrades to a
// retry-later failure instead of stalling the whole sync pass.
const defaultTimeout = 30 * time.Second

// HTTPClient is the JSON-over-HTTP implementation of Client for one entity
// collection, e.g. /api/categories.
type HTTPClient[T any] struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

// NewHTTPClient creates a client for one collection path under baseURL.
func NewHTTPClient[T any](baseURL, path string) *HTTPClient[T] {
	return &HTTPClient[T]{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "/" + strings.Trim(path, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Create implements Client.Create.
func (c *HTTPClient[T]) Create(ctx context.Context, entity T, idempotencyKey string) (T, error) {
	var zero T

	body, err := json.Marshal(entity)
	if err != nil {
		return zero, fmt.Errorf("marshal create payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return zero, ErrConflict
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return zero, statusError(resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("decode create response: %w", err)
	}
	return out, nil
}

// Update implements Client.Update.
func (c *HTTPClient[T]) Update(ctx context.Context, id string, entity T) (T, error) {
	var zero T

	body, err := json.Marshal(entity)
	if err != nil {
		return zero, fmt.Errorf("marshal update payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.itemURL(id), bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("update request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return zero, ErrNotFound
	case http.StatusConflict:
		return zero, ErrConflict
	}
	if resp.StatusCode != http.StatusOK {
		return zero, statusError(resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("decode update response: %w", err)
	}
	return out, nil
}

// Delete implements Client.Delete.
func (c *HTTPClient[T]) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.itemURL(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	}
	return statusError(resp)
}

// List implements Client.List.
func (c *HTTPClient[T]) List(ctx context.Context) ([]T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out []T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return out, nil
}

func (c *HTTPClient[T]) itemURL(id string) string {
	return c.baseURL + c.path + "/" + id
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
