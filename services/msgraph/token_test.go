package msgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/internal/logger"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func newTokenTestServer(t *testing.T, exchanges *int64, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		atomic.AddInt64(exchanges, 1)
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "token-" + r.FormValue("client_id") + "-" + time.Now().Format("150405.000000000"),
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
		})
	}))
}

func newTokenService(cfg *config.MailProviderConfig) *tokenService {
	return NewTokenService(testLogger(), cfg).(*tokenService)
}

func TestTokenService_ReusesCachedToken(t *testing.T) {
	var exchanges int64
	server := newTokenTestServer(t, &exchanges, 3600)
	defer server.Close()

	svc := newTokenService(&config.MailProviderConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		LoginBaseURL: server.URL,
		TokenScope:   "https://graph.microsoft.com/.default",
	})

	ctx := context.Background()
	first, err := svc.GetAccessToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	for i := 0; i < 5; i++ {
		token, err := svc.GetAccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, token)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&exchanges))
}

func TestTokenService_RefreshesInsideExpiryMargin(t *testing.T) {
	var exchanges int64
	// expires_in below the safety margin forces a refresh on every call
	server := newTokenTestServer(t, &exchanges, 200)
	defer server.Close()

	svc := newTokenService(&config.MailProviderConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		LoginBaseURL: server.URL,
		TokenScope:   "https://graph.microsoft.com/.default",
	})

	ctx := context.Background()
	_, err := svc.GetAccessToken(ctx)
	require.NoError(t, err)
	_, err = svc.GetAccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&exchanges))
}

func TestTokenService_ConcurrentCallersShareOneExchange(t *testing.T) {
	var exchanges int64
	server := newTokenTestServer(t, &exchanges, 3600)
	defer server.Close()

	svc := newTokenService(&config.MailProviderConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		LoginBaseURL: server.URL,
		TokenScope:   "https://graph.microsoft.com/.default",
	})

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := svc.GetAccessToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&exchanges))
	for _, token := range tokens {
		assert.Equal(t, tokens[0], token)
	}
}

func TestTokenService_MissingCredentials(t *testing.T) {
	svc := newTokenService(&config.MailProviderConfig{})

	_, err := svc.GetAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestTokenService_AuthFailureNotCached(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	svc := newTokenService(&config.MailProviderConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "wrong",
		LoginBaseURL: server.URL,
		TokenScope:   "https://graph.microsoft.com/.default",
	})

	ctx := context.Background()
	_, err := svc.GetAccessToken(ctx)
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)

	_, err = svc.GetAccessToken(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}
