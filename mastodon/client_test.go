package mastodon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsstoot/mastodon"
	"rsstoot/models"
)

func TestPostStatus(t *testing.T) {
	var gotAuth, gotStatus, gotVisibility string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/statuses", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotAuth = r.Header.Get("Authorization")
		gotStatus = r.PostFormValue("status")
		gotVisibility = r.PostFormValue("visibility")
		_, _ = w.Write([]byte(`{"id": "109"}`))
	}))
	defer server.Close()

	account := models.Account{InstanceURL: server.URL + "/", AccessToken: "secret"}
	id, err := mastodon.NewClient().PostStatus(context.Background(), account, "hello fediverse")

	require.NoError(t, err)
	assert.Equal(t, "109", id)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "hello fediverse", gotStatus)
	assert.Equal(t, "public", gotVisibility)
}

func TestPostStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		expected string
	}{
		{
			name: "API error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"error": "Validation failed: Text too long"}`))
			},
			expected: "Validation failed",
		},
		{
			name: "missing id in response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			expected: "API:",
		},
		{
			name: "non-JSON response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream timeout"))
			},
			expected: "upstream timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			account := models.Account{InstanceURL: server.URL, AccessToken: "secret"}
			_, err := mastodon.NewClient().PostStatus(context.Background(), account, "hello")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestDisplayLabel(t *testing.T) {
	tests := []struct {
		name     string
		account  models.Account
		expected string
	}{
		{
			name:     "standard account",
			account:  models.Account{InstanceURL: "https://mstdn.example", AccountName: "@bot"},
			expected: "@bot @ mstdn.example",
		},
		{
			name:     "unparseable instance keeps the raw URL",
			account:  models.Account{InstanceURL: "not a url", AccountName: "@bot"},
			expected: "@bot @ not a url",
		},
		{
			name:     "missing name",
			account:  models.Account{InstanceURL: "https://mstdn.example"},
			expected: "? @ mstdn.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mastodon.DisplayLabel(tt.account))
		})
	}
}
