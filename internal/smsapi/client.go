// internal/smsapi/client.go

// Package smsapi is the HTTP client for the external code-delivery source
// and the credential store. Every call is defensively guarded: a lost round
// trip is "no new information yet", never a fatal condition for the flow.
package smsapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/pkonomy/sellerflow/api/schemas"
)

// ErrUpdateRejected is returned when the credential store acknowledges the
// request but refuses the update.
var ErrUpdateRejected = errors.New("smsapi: password update rejected")

const apiKeyHeader = "X-API-Key"

// Client talks to the code source and the credential store.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Client. baseURL carries any path prefix the deployment uses
// (e.g. "http://host:8080/api").
func New(baseURL, apiKey string, logger *zap.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("building cookie jar: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
		// The OTP poller ticks once a second; the limiter only kicks in when
		// something misbehaves.
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		logger:  logger.Named("smsapi"),
	}, nil
}

// AuthCode is one reported one-time code. A nil Time means the source could
// not attach a delivery timestamp.
type AuthCode struct {
	Code *string `json:"code"`
	Time *string `json:"time"`
}

// LatestAuthCode queries the single most-recent code (GET /sms/auth-code),
// used by simpler flows.
func (c *Client) LatestAuthCode(ctx context.Context) (AuthCode, error) {
	var out AuthCode
	if err := c.getJSON(ctx, "/sms/auth-code", &out); err != nil {
		return AuthCode{}, err
	}
	return out, nil
}

type statusResponse struct {
	AuthCodes map[string]json.RawMessage `json:"auth_codes"`
}

// AuthCodeStatus queries the multi-source view (GET /sms/status). A bare
// string value for a source means no timestamp is available there.
func (c *Client) AuthCodeStatus(ctx context.Context) (map[string]AuthCode, error) {
	var raw statusResponse
	if err := c.getJSON(ctx, "/sms/status", &raw); err != nil {
		return nil, err
	}

	out := make(map[string]AuthCode, len(raw.AuthCodes))
	for source, payload := range raw.AuthCodes {
		var bare string
		if err := json.Unmarshal(payload, &bare); err == nil {
			code := bare
			out[source] = AuthCode{Code: &code}
			continue
		}
		var full AuthCode
		if err := json.Unmarshal(payload, &full); err != nil {
			c.logger.Warn("Unparseable auth-code entry; skipping source.",
				zap.String("source", source), zap.Error(err))
			continue
		}
		out[source] = full
	}
	return out, nil
}

// UpdatePasswordRequest is the credential-store update payload.
type UpdatePasswordRequest struct {
	Platform    schemas.Platform `json:"platform"`
	LoginID     string           `json:"login_id"`
	NewPassword string           `json:"new_password"`
}

type updatePasswordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// UpdatePassword reports a rotated secret to the credential store
// (POST /update-password). Callers must invoke this before mutating any
// local state so a failed report never leaves the store behind reality.
func (c *Client) UpdatePassword(ctx context.Context, req UpdatePasswordRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding update-password request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update-password", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building update-password request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp updatePasswordResponse
	if err := c.do(httpReq, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrUpdateRejected, resp.Message)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}
