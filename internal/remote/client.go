package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/cache"
	"go.uber.org/zap"
)

const (
	maxErrorBody    = 64 * 1024
	maxResponseSize = 10 * 1024 * 1024
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client  // Default: a client with Timeout
	Timeout        time.Duration // Zero means no timeout
	Retry          RetryConfig
	Circuit        CircuitBreakerConfig
	NominationsTTL time.Duration // Zero disables the nominations cache
	Logger         *zap.Logger
}

// Client talks to the award API. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  *zap.Logger

	nominationsTTL time.Duration
	nominations    *cache.Cache[[]Nomination]
}

var _ awardwizard.ProfileService = (*Client)(nil)

// New creates a client for the API rooted at opts.BaseURL.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, &ValidationError{Field: "base_url", Reason: "base url is required"}
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &ValidationError{Field: "base_url", Reason: fmt.Sprintf("invalid url %q", opts.BaseURL)}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("remote")

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retry.Multiplier == 0 {
		opts.Retry.Multiplier = 2.0
	}
	if opts.Circuit.FailureThreshold == 0 {
		opts.Circuit = DefaultCircuitBreakerConfig()
	}

	c := &Client{
		base:           base,
		http:           hc,
		retry:          opts.Retry,
		breaker:        NewCircuitBreaker("award-api", opts.Circuit, logger),
		logger:         logger,
		nominationsTTL: opts.NominationsTTL,
	}
	if opts.NominationsTTL > 0 {
		c.nominations = cache.New[[]Nomination]()
	}
	return c, nil
}

// Close releases the nominations cache.
func (c *Client) Close() {
	if c.nominations != nil {
		c.nominations.Stop()
	}
}

// Breaker exposes the circuit breaker, for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Mobile   string `json:"mobile,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type messageResponse struct {
	Message json.RawMessage `json:"message"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Register creates an account and returns the server's confirmation.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	return c.postMessage(ctx, "/auth/register", req)
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	var out loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", req, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &RequestError{Endpoint: "POST /auth/login", Operation: "decode", Err: errors.New("response has no access_token")}
	}
	return out.AccessToken, nil
}

// ForgotPassword asks the API to mail a one-time password to email.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.postMessage(ctx, "/auth/forgot-password", map[string]string{"email": email})
}

// VerifyOTP checks a one-time password.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	return c.postMessage(ctx, "/auth/verify-otp", map[string]string{"email": email, "otp": otp})
}

// ResetPassword sets a new password using a verified one-time password.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	return c.postMessage(ctx, "/auth/reset-password", req)
}

func (c *Client) postMessage(ctx context.Context, path string, body any) (string, error) {
	var out messageResponse
	if err := c.doJSON(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return "", err
	}
	return decodeMessage(out.Message), nil
}

// SubmitProfile posts the profile fields of subjectID.
func (c *Client) SubmitProfile(ctx context.Context, subjectID, token string, profile map[string]any) error {
	if subjectID == "" {
		return &ValidationError{Field: "subject", Reason: "subject id is required"}
	}
	path := "/nominee-details/" + url.PathEscape(subjectID) + "/profile"
	return c.doJSON(ctx, http.MethodPost, path, token, profile, nil)
}

// UploadFile uploads file as the multipart field "file" for fieldType.
func (c *Client) UploadFile(ctx context.Context, subjectID, fieldType, token string, file *awardwizard.FileRef) error {
	if subjectID == "" {
		return &ValidationError{Field: "subject", Reason: "subject id is required"}
	}
	if file == nil || file.Data == nil {
		return &ValidationError{Field: fieldType, Reason: "no file content"}
	}
	path := "/nominee-details/" + url.PathEscape(subjectID) + "/upload/" + url.PathEscape(fieldType)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return &RequestError{Endpoint: "POST " + path, Operation: "encode", Err: err}
	}
	if _, err := part.Write(file.Data); err != nil {
		return &RequestError{Endpoint: "POST " + path, Operation: "encode", Err: err}
	}
	if err := mw.Close(); err != nil {
		return &RequestError{Endpoint: "POST " + path, Operation: "encode", Err: err}
	}

	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, token, bytes.NewReader(buf.Bytes()), mw.FormDataContentType(), nil)
	})
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return &RequestError{Endpoint: method + " " + path, Operation: "encode", Err: err}
		}
	}
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		var r io.Reader
		if data != nil {
			r = bytes.NewReader(data)
		}
		return c.do(ctx, method, path, token, r, "application/json", out)
	})
}

// do performs one request. A non-2xx status becomes an *HTTPError.
func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, out any) error {
	endpoint := method + " " + path
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return &RequestError{Endpoint: endpoint, Operation: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return newRequestError(endpoint, "request", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newHTTPError(endpoint, resp.StatusCode, raw)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &RequestError{Endpoint: endpoint, Operation: "read response", Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Endpoint: endpoint, Operation: "decode", Err: err}
	}
	return nil
}

func newHTTPError(endpoint string, status int, raw []byte) *HTTPError {
	e := &HTTPError{Endpoint: endpoint, StatusCode: status, Body: strings.TrimSpace(string(raw))}
	var m messageResponse
	if json.Unmarshal(raw, &m) == nil {
		e.Message = decodeMessage(m.Message)
	}
	return e
}

// decodeMessage accepts "message" as a string or as a list of strings.
func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, ", ")
	}
	return ""
}
