// Package registry implements the HTTP client for the case-management
// registry. One Send performs one blocking call under a fixed timeout and
// classifies the outcome into an explicit Result or an error; callers treat
// every per-item failure mode identically.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/citybenefits/casebridge/internal/config"
	"github.com/citybenefits/casebridge/internal/logging"
	"github.com/citybenefits/casebridge/internal/models"
	"github.com/citybenefits/casebridge/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the outcome of a successful dispatch. CorrelationID is parsed
// from the response body, or generated when the body carries none.
type Result struct {
	Application   *models.Application
	CorrelationID string
}

// StatusError reports a non-2xx response from the registry.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned %d: %s", e.Code, e.Body)
}

// Client executes typed requests against the registry.
type Client struct {
	baseURL      string
	callbackBase string
	http         *http.Client
	logger       *zap.Logger
}

// NewClient builds a Client from the service configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.RegistryBaseURL, "/"),
		callbackBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		http:         &http.Client{Timeout: cfg.RequestTimeout},
		logger:       logger,
	}
}

// CallbackURL returns the URL the registry posts its asynchronous result
// to, unique per (request type, application).
func (c *Client) CallbackURL(req request.Request) string {
	return fmt.Sprintf("%s/cases/%s/callback/%s", c.callbackBase, req.Application().UUID, req.Type())
}

// Send validates the request's preconditions, then issues one HTTP call
// authenticated with the run's token. Precondition, HTTP, and transport
// failures are logged and returned as errors; no state is touched.
func (c *Client) Send(ctx context.Context, req request.Request, tok *models.Token) (*Result, error) {
	app := req.Application()

	if err := req.Validate(); err != nil {
		c.logger.Warn("request preconditions not met",
			logging.AppID(app.UUID),
			logging.RequestType(req.Type()),
			zap.Error(err))
		return nil, err
	}

	target, err := req.URL(c.baseURL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload := req.Payload(); payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("serialize payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.NeedsCallback() {
		httpReq.Header.Set("X-CallbackURL", c.CallbackURL(req))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("registry call failed",
			logging.AppID(app.UUID),
			logging.RequestType(req.Type()),
			zap.Error(err))
		return nil, fmt.Errorf("call registry: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		c.logger.Warn("registry rejected request",
			logging.AppID(app.UUID),
			logging.RequestType(req.Type()),
			zap.Int("status", resp.StatusCode))
		return nil, statusErr
	}

	correlation := strings.TrimSpace(string(respBody))
	if correlation == "" {
		correlation = uuid.NewString()
	}

	return &Result{Application: app, CorrelationID: correlation}, nil
}

// GetDecision pulls the signed decision document for a case synchronously
// and returns the raw JSON for the extractor.
func (c *Client) GetDecision(ctx context.Context, tok *models.Token, caseID string) ([]byte, error) {
	target := fmt.Sprintf("%s/cases/%s", c.baseURL, caseID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call registry: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
