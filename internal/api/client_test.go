package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantInText string
	}{
		{
			name:    "404 maps to ErrNotFound",
			status:  http.StatusNotFound,
			body:    `{"error":"no such session"}`,
			wantErr: ErrNotFound,
		},
		{
			name:    "401 maps to ErrUnauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error":"token expired"}`,
			wantErr: ErrUnauthorized,
		},
		{
			name:       "500 with server message",
			status:     http.StatusInternalServerError,
			body:       `{"error":"clustering backend crashed"}`,
			wantInText: "clustering backend crashed",
		},
		{
			name:       "500 with message field",
			status:     http.StatusInternalServerError,
			body:       `{"message":"out of memory"}`,
			wantInText: "out of memory",
		},
		{
			name:       "503 with unparseable body falls back to status",
			status:     http.StatusServiceUnavailable,
			body:       `<html>gateway</html>`,
			wantInText: "HTTP error, status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := New(ts.URL)
			var out map[string]any
			err := client.getJSON(context.Background(), "/api/clustering/results/x", &out)
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantInText != "" {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.StatusCode)
				assert.Contains(t, err.Error(), tt.wantInText)
			}
		})
	}
}

func TestDo_MalformedSuccessBodyIsSuccess(t *testing.T) {
	// A 2xx with an unparseable body counts as success with a nil
	// payload; reconciliation corrects the local view afterwards.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{truncated`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	var out struct {
		Message string `json:"message"`
	}
	err := client.getJSON(context.Background(), "/x", &out)
	assert.NoError(t, err)
	assert.Empty(t, out.Message)
}

func TestDo_NoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := New(ts.URL)
	var out map[string]any
	assert.NoError(t, client.getJSON(context.Background(), "/x", &out))
	assert.Nil(t, out)
}

func TestDo_UnauthorizedHookFires(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"expired"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	fired := 0
	client := New(ts.URL, WithToken("stale"), WithUnauthorizedHook(func() { fired++ }))

	var out map[string]any
	err := client.getJSON(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, fired)
}

func TestDo_BearerTokenSent(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(ts.URL, WithToken("tok-123"))
	var out map[string]any
	require.NoError(t, client.getJSON(context.Background(), "/x", &out))
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestLogin_InstallsToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			_, _ = w.Write([]byte(`{"access_token":"jwt-abc","user":{"id":7,"username":"ada","email":"ada@example.com"}}`))
		case "/api/me":
			if r.Header.Get("Authorization") != "Bearer jwt-abc" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"user":{"id":7,"username":"ada","email":"ada@example.com"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := New(ts.URL)
	ctx := context.Background()

	creds, err := client.Login(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", creds.AccessToken)
	assert.Equal(t, "ada", creds.User.Username)

	// The token from login is used for subsequent calls.
	user, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
}

func TestLogin_BadPassword(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := New(ts.URL)
	_, err := client.Login(context.Background(), "ada@example.com", "wrong")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestAPIError_Message(t *testing.T) {
	withMsg := &APIError{StatusCode: 500, Message: "boom"}
	assert.Equal(t, "boom", withMsg.Error())

	bare := &APIError{StatusCode: 502}
	assert.Equal(t, "HTTP error, status 502", bare.Error())
}
