package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matval/catalog-crawler/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testToken() session.Token {
	return session.Token{
		Challenge: "waf-token-value",
		CSRF:      "csrf-token-value",
		Cookies:   map[string]string{"sid": "abc"},
		IssuedAt:  time.Now(),
	}
}

func TestClient_AttachesCredentials(t *testing.T) {
	var gotChallenge, gotSID, gotCSRF, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("aws-waf-token"); err == nil {
			gotChallenge = c.Value
		}
		if c, err := r.Cookie("sid"); err == nil {
			gotSID = c.Value
		}
		gotCSRF = r.Header.Get("x-csrf-token")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, "crawler-agent", testLogger())

	body, err := client.Do(context.Background(), &Request{
		Method:      http.MethodPut,
		URL:         server.URL,
		WriteShaped: true,
	}, testToken())

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "waf-token-value", gotChallenge)
	assert.Equal(t, "abc", gotSID)
	assert.Equal(t, "csrf-token-value", gotCSRF)
	assert.Equal(t, "crawler-agent", gotAgent)
}

func TestClient_CSRFOnlyOnWriteShaped(t *testing.T) {
	var gotCSRF string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCSRF = r.Header.Get("x-csrf-token")
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, "crawler-agent", testLogger())

	_, err := client.Do(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	}, testToken())

	require.NoError(t, err)
	assert.Empty(t, gotCSRF)
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "202 is a soft block",
			status: http.StatusAccepted,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrChallengeRequired)
			},
		},
		{
			name:   "403 is an auth rejection",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrAuthRejected)
			},
		},
		{
			name:   "500 is transient",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name:   "429 is transient",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name:   "404 is neither",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.False(t, IsTransient(err))
				assert.False(t, errors.Is(err, ErrChallengeRequired))
				assert.False(t, errors.Is(err, ErrAuthRejected))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(5*time.Second, "crawler-agent", testLogger())
			_, err := client.Do(context.Background(), &Request{
				Method: http.MethodGet,
				URL:    server.URL,
			}, testToken())

			tt.check(t, err)
		})
	}
}

func TestClient_ConnectionFailureIsTransient(t *testing.T) {
	client := NewClient(time.Second, "crawler-agent", testLogger())

	// Nothing listens here.
	_, err := client.Do(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    "http://127.0.0.1:1",
	}, testToken())

	assert.True(t, IsTransient(err))
}
