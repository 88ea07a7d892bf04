// GitHub App authentication: mints short-lived app JWTs and exchanges them
// for cached installation access tokens.

package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// appTokenSource implements oauth2.TokenSource backed by a GitHub App
// installation. Tokens are cached and refreshed when they near expiry.
type appTokenSource struct {
	appID          int64
	privateKey     *rsa.PrivateKey
	installationID int64
	baseURL        string
	httpClient     *http.Client

	mu     sync.Mutex
	cached *oauth2.Token
}

func newAppTokenSource(appID int64, privateKeyPEM []byte, installationID int64, baseURL string) (oauth2.TokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &appTokenSource{
		appID:          appID,
		privateKey:     key,
		installationID: installationID,
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// appJWT creates a signed JWT for GitHub App authentication.
// Valid for 10 minutes per GitHub's requirements.
func (s *appTokenSource) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)), // 60s clock drift
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(s.appID, 10),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// Token returns a valid installation access token, using the cache when it
// expires more than 5 minutes from now.
func (s *appTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && time.Until(s.cached.Expiry) > 5*time.Minute {
		return s.cached, nil
	}

	jwtToken, err := s.appJWT()
	if err != nil {
		return nil, fmt.Errorf("generate app JWT: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.baseURL, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub App token error %d: %s", resp.StatusCode, truncate(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	s.cached = &oauth2.Token{AccessToken: result.Token, Expiry: result.ExpiresAt}
	return s.cached, nil
}
