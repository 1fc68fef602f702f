// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport speaks the grid's HTTP surfaces: the bridge
// prim's request URL, which takes and returns LLSD-wrapped strings,
// and the script-upload capability, a two-stage POST handshake.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const llsdContentType = "application/llsd+xml"

// maxResponseBytes caps how much of a response body is read. Bridge
// replies are short command strings.
const maxResponseBytes = 1 << 20

// HTTPError is a non-2xx response from the grid.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("transport: %s: %s", e.Status, body)
}

// Client posts command strings to a bridge prim's request URL.
type Client struct {
	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Post sends one command string to the bridge URL and returns the
// reply string. Both directions are LLSD string documents.
func (c *Client) Post(ctx context.Context, url, command string) (string, error) {
	body := encodeLLSDString(command)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("transport: building request: %w", err)
	}
	request.Header.Set("Content-Type", llsdContentType)

	response, err := c.httpClient().Do(request)
	if err != nil {
		return "", fmt.Errorf("transport: posting to bridge: %w", err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("transport: reading response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", &HTTPError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			Body:       string(data),
		}
	}
	reply, err := decodeLLSDString(data)
	if err != nil {
		return "", err
	}
	c.logger().Debug("bridge round trip", "url", url, "command_bytes", len(command), "reply_bytes", len(reply))
	return reply, nil
}
