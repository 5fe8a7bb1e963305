// Package mastodon is a minimal client for the Mastodon status API and
// the OAuth handshake used to obtain posting credentials.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rsstoot/models"
)

// RequestTimeout bounds every outbound API call.
const RequestTimeout = 15 * time.Second

// Client posts statuses to Mastodon-compatible instances. One HTTP call
// per publish; retry policy, if any, belongs to the caller.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: RequestTimeout}}
}

type statusResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// PostStatus publishes one formatted status to the account's instance
// with public visibility. Success is a response carrying a non-empty
// remote id; anything else is an error with a short diagnostic.
func (c *Client) PostStatus(ctx context.Context, account models.Account, status string) (string, error) {
	endpoint := strings.TrimRight(account.InstanceURL, "/") + "/api/v1/statuses"

	form := url.Values{}
	form.Set("status", status)
	form.Set("visibility", "public")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.ID == "" {
		return "", fmt.Errorf("API: %s", apiDiagnostic(parsed, body))
	}
	return parsed.ID, nil
}

func apiDiagnostic(parsed statusResponse, body []byte) string {
	if parsed.Error != "" {
		return parsed.Error
	}
	diag := strings.TrimSpace(string(body))
	if runes := []rune(diag); len(runes) > 50 {
		diag = string(runes[:50])
	}
	return diag
}

// DisplayLabel renders an account as "name @ host" for detail lines.
func DisplayLabel(account models.Account) string {
	host := account.InstanceURL
	if u, err := url.Parse(account.InstanceURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	name := account.AccountName
	if name == "" {
		name = "?"
	}
	return name + " @ " + host
}
