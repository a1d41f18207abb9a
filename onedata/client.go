package onedata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// client is a small JSON client for the onezone and onepanel REST APIs. The
// auth token is passed per call because the two APIs use different schemes:
// onezone calls carry the federated access token prefixed with the Check-in
// identity provider id, while onepanel calls carry a raw provider token.
type client struct {
	httpClient *http.Client
	logger     hclog.Logger
}

// egiAuthToken formats a federated Check-in access token for the onezone
// x-auth-token header.
func egiAuthToken(accessToken string) string {
	return "egi:" + accessToken
}

func (c *client) get(ctx context.Context, rawURL, authToken string, out interface{}) error {
	return c.do(ctx, http.MethodGet, rawURL, authToken, nil, out)
}

func (c *client) post(ctx context.Context, rawURL, authToken string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, rawURL, authToken, body, out)
}

// do issues one request and classifies the response status: 2xx decodes into
// out when given, 404 returns ErrNotFound, anything else returns ErrUpstream
// carrying the status and a snippet of the response body.
func (c *client) do(ctx context.Context, method, rawURL, authToken string, body, out interface{}) error {
	const op = "onedata.(client).do"
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: unable to encode request body: %w", op, err)
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w: %v", op, method, rawURL, ErrUpstream, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: %s %s: unable to read response: %w", op, method, rawURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %s %s: %w", op, method, rawURL, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Debug("onedata request failed", "method", method, "url", rawURL, "status", resp.StatusCode)
		return fmt.Errorf("%s: %s %s returned %d (%s): %w", op, method, rawURL, resp.StatusCode, snippet(respBody), ErrUpstream)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: %s %s: unable to decode response: %w", op, method, rawURL, err)
		}
	}
	return nil
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
