// Package publicip queries public "what is my IP" services.
package publicip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

const maxResponseSize = 64 * 1024

type Client struct {
	httpClient *http.Client
	userAgent  string
}

func NewClient(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, userAgent: userAgent}
}

// Lookup fetches svc and extracts the reported address without validating
// its family.
func (c *Client) Lookup(ctx context.Context, svc domain.LookupService) (string, error) {
	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if svc.Format == domain.FormatJSON {
		return jsonField(body, svc.JSONField)
	}
	return strings.TrimSpace(string(body)), nil
}

func jsonField(body []byte, field string) (string, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to decode JSON response: %w", err)
	}
	v, ok := doc[field]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrFieldMissing, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s is %T, not a string", field, v)
	}
	return strings.TrimSpace(s), nil
}
