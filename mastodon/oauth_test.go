package mastodon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsstoot/mastodon"
)

func TestAuthorizeURL(t *testing.T) {
	got := mastodon.AuthorizeURL("https://mstdn.example/", "client-1", "https://me.example/oauth/callback", "state-xyz")

	assert.True(t, len(got) > 0)
	assert.Contains(t, got, "https://mstdn.example/oauth/authorize?")
	assert.Contains(t, got, "client_id=client-1")
	assert.Contains(t, got, "response_type=code")
	assert.Contains(t, got, "state=state-xyz")
	assert.Contains(t, got, "redirect_uri=https%3A%2F%2Fme.example%2Foauth%2Fcallback")
}

func TestRegisterApp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/apps", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "rsstoot", r.PostFormValue("client_name"))
		_, _ = w.Write([]byte(`{"client_id": "cid", "client_secret": "csecret"}`))
	}))
	defer server.Close()

	creds, err := mastodon.NewClient().RegisterApp(context.Background(), server.URL, "https://me.example/oauth/callback")
	require.NoError(t, err)
	assert.Equal(t, "cid", creds.ClientID)
	assert.Equal(t, "csecret", creds.ClientSecret)
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostFormValue("grant_type"))
		assert.Equal(t, "the-code", r.PostFormValue("code"))
		_, _ = w.Write([]byte(`{"access_token": "token-abc"}`))
	}))
	defer server.Close()

	creds := mastodon.AppCredentials{ClientID: "cid", ClientSecret: "csecret"}
	token, err := mastodon.NewClient().ExchangeCode(context.Background(), server.URL, creds, "https://me.example/oauth/callback", "the-code")
	require.NoError(t, err)
	assert.Equal(t, "token-abc", token)
}

func TestExchangeCodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	creds := mastodon.AppCredentials{ClientID: "cid", ClientSecret: "csecret"}
	_, err := mastodon.NewClient().ExchangeCode(context.Background(), server.URL, creds, "https://me.example/oauth/callback", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestVerifyCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/accounts/verify_credentials", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"acct": "bot", "url": "https://mstdn.example/@bot"}`))
	}))
	defer server.Close()

	info, err := mastodon.NewClient().VerifyCredentials(context.Background(), server.URL, "token-abc")
	require.NoError(t, err)
	assert.Equal(t, "bot", info.Acct)
	assert.Equal(t, "https://mstdn.example/@bot", info.URL)
}
