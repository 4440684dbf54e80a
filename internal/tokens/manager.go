// Package tokens manages the single OAuth2 token used for registry calls.
package tokens

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/citybenefits/casebridge/internal/config"
	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured means no token has ever been stored.
	ErrNotConfigured = errors.New("no oauth token configured")
	// ErrTokenExpired means the stored token's expiry has passed. This is
	// fatal for an entire batch run, not per item.
	ErrTokenExpired = errors.New("stored oauth token has expired")
	// ErrNoRefreshToken means the stored token cannot be refreshed.
	ErrNoRefreshToken = errors.New("stored token has no refresh token")
)

// RetrievalError reports a non-2xx response from the token endpoint.
type RetrievalError struct {
	Status int
	Body   string
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Body)
}

// Manager obtains, refreshes, and persists the single active token.
type Manager struct {
	db     *sql.DB
	cfg    *config.Config
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewManager builds a Manager using the config's token endpoint and
// client credentials.
func NewManager(database *sql.DB, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		db:     database,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
		now:    time.Now,
	}
}

// Current returns the stored token. It fails with ErrNotConfigured when no
// token exists and ErrTokenExpired when its expiry has passed.
func (m *Manager) Current() (*models.Token, error) {
	tok, err := db.GetToken(m.db)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok == nil {
		return nil, ErrNotConfigured
	}
	if tok.Expired(m.now().UTC()) {
		return nil, ErrTokenExpired
	}
	return tok, nil
}

// Refresh exchanges the stored refresh token for a new token pair and
// atomically replaces the stored row.
func (m *Manager) Refresh(ctx context.Context) (*models.Token, error) {
	stored, err := db.GetToken(m.db)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if stored == nil {
		return nil, ErrNotConfigured
	}
	if stored.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {stored.RefreshToken},
	}
	return m.requestToken(ctx, form)
}

// Exchange performs the initial authorization_code grant.
func (m *Manager) Exchange(ctx context.Context, code string) (*models.Token, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.cfg.RedirectURI},
	}
	return m.requestToken(ctx, form)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *Manager) requestToken(ctx context.Context, form url.Values) (*models.Token, error) {
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RetrievalError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	tok, err := db.ReplaceToken(m.db, tr.AccessToken, tr.RefreshToken, tr.ExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	m.logger.Info("token replaced",
		zap.Int64("expires_in", tok.ExpiresIn),
		zap.Time("expires_at", tok.ExpiresAt()))

	return tok, nil
}
