package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	chiTransport "github.com/kailas-cloud/unisearch/internal/transport/chi"
)

// client talks to a running unisearch server.
type client struct {
	base   string
	apiKey string
	tenant string
	user   string
	http   *http.Client
}

// apiError is a non-2xx answer decoded from the server's error body.
type apiError struct {
	Status int
	chiTransport.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server answered %d", e.Status)
	}
	return fmt.Sprintf("server answered %d: %s: %s", e.Status, e.Code, e.Message)
}

func newClient(base, apiKey string, timeout time.Duration) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// do sends one request and returns the raw response body of a 2xx answer.
func (c *client) do(ctx context.Context, method, path string, params url.Values, body any, header http.Header) ([]byte, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.tenant != "" {
		req.Header.Set(chiTransport.HeaderTenantID, c.tenant)
	}
	if c.user != "" {
		req.Header.Set(chiTransport.HeaderUserID, c.user)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.ErrorResponse)
		return nil, apiErr
	}
	return data, nil
}

func idempotency(token string) http.Header {
	if token == "" {
		return nil
	}
	return http.Header{chiTransport.HeaderIdempotencyKey: []string{token}}
}
