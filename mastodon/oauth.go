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

	"github.com/cenkalti/backoff/v4"
)

const (
	appName     = "rsstoot"
	oauthScopes = "write:statuses read:accounts"
)

// AppCredentials identify this application on one instance.
type AppCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// RegisterApp self-registers an OAuth client on the instance. Transient
// transport errors are retried with exponential backoff.
func (c *Client) RegisterApp(ctx context.Context, instance, redirectURI string) (AppCredentials, error) {
	form := url.Values{}
	form.Set("client_name", appName)
	form.Set("redirect_uris", redirectURI)
	form.Set("scopes", oauthScopes)

	var creds AppCredentials
	err := c.postForm(ctx, strings.TrimRight(instance, "/")+"/api/v1/apps", form, &creds)
	if err != nil {
		return AppCredentials{}, fmt.Errorf("register app: %w", err)
	}
	if creds.ClientID == "" {
		return AppCredentials{}, fmt.Errorf("register app: no client id in response")
	}
	return creds, nil
}

// AuthorizeURL builds the URL the user grants access at.
func AuthorizeURL(instance, clientID, redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", oauthScopes)
	q.Set("state", state)
	return strings.TrimRight(instance, "/") + "/oauth/authorize?" + q.Encode()
}

// ExchangeCode swaps an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, instance string, creds AppCredentials, redirectURI, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("scope", oauthScopes)

	var token struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := c.postForm(ctx, strings.TrimRight(instance, "/")+"/oauth/token", form, &token); err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if token.AccessToken == "" {
		if token.Error != "" {
			return "", fmt.Errorf("token exchange: %s", token.Error)
		}
		return "", fmt.Errorf("token exchange: no access token in response")
	}
	return token.AccessToken, nil
}

// CredentialInfo is the account identity behind an access token.
type CredentialInfo struct {
	Acct string `json:"acct"`
	URL  string `json:"url"`
}

// VerifyCredentials resolves the account name and profile URL for a token.
func (c *Client) VerifyCredentials(ctx context.Context, instance, token string) (CredentialInfo, error) {
	endpoint := strings.TrimRight(instance, "/") + "/api/v1/accounts/verify_credentials"

	var info CredentialInfo
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return decodeBody(resp.Body, &info)
	}
	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return CredentialInfo{}, fmt.Errorf("verify credentials: %w", err)
	}
	return info, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return decodeBody(resp.Body, out)
	}
	return backoff.Retry(op, retryPolicy(ctx))
}

func decodeBody(r io.Reader, out any) error {
	body, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(policy, ctx)
}
