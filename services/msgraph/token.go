package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

// tokenExpiryMargin is subtracted from the provider's expires_in so a token
// is refreshed before it can expire mid-request.
const tokenExpiryMargin = 300 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenService struct {
	log        logger.Logger
	cfg        *config.MailProviderConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewTokenService(log logger.Logger, cfg *config.MailProviderConfig) interfaces.TokenProvider {
	return &tokenService{
		log:        log,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAccessToken returns the cached token while it is still inside the
// expiry margin, otherwise performs one client-credentials exchange.
// Concurrent callers share a single exchange.
func (s *tokenService) GetAccessToken(ctx context.Context) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TokenService.GetAccessToken")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)

	if s.cfg.TenantID == "" || s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		tracing.TraceErr(span, ErrMissingCredentials)
		return "", ErrMissingCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && utils.Now().Before(s.expiresAt) {
		span.LogKV("result", "cache_hit")
		return s.accessToken, nil
	}

	token, expiresIn, err := s.exchangeCredentials(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	s.accessToken = token
	s.expiresAt = utils.Now().Add(time.Duration(expiresIn)*time.Second - tokenExpiryMargin)
	span.LogKV("result", "refreshed")

	return s.accessToken, nil
}

func (s *tokenService) exchangeCredentials(ctx context.Context) (string, int, error) {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(s.cfg.LoginBaseURL, "/"), s.cfg.TenantID)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("scope", s.cfg.TokenScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", 0, err
	}
	if tokenResp.AccessToken == "" {
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Body: "empty access_token in response"}
	}

	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}
