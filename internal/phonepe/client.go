// Package phonepe talks to the PhonePe PG v1 API: pay-page initiation,
// status checks, refunds and server-to-server callback validation.
package phonepe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status"
	refundPath = "/pg/v1/refund"
)

var ErrMalformedCallback = errors.New("malformed callback body")

// GatewayError is returned when PhonePe could not be reached or refused the
// call. Temporary errors were retried until attempts ran out.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Temporary  bool
	RetryAfter time.Duration
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "phonepe %s failed", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL    string
	MerchantID string
	SaltKey    string
	SaltIndex  int

	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64

	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	return c
}

// rawResponse is one HTTP exchange, read fully so the breaker can judge it.
type rawResponse struct {
	status     int
	retryAfter time.Duration
	body       []byte
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.Breaker[*rawResponse]
	metrics *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) *Client {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.Nop()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[*rawResponse](circuitbreaker.Settings{
			Name:                "phonepe",
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerOpenTimeout,
			IsFailure:           isTransient,
		}),
		metrics: m,
	}
}

// Initiate opens a pay-page session and returns where to send the shopper.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	payload, err := encodePayload(payRequest{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: req.MerchantRef,
		MerchantUserID:        req.UserID,
		Amount:                ToPaise(req.Amount),
		RedirectURL:           req.RedirectURL,
		RedirectMode:          "POST",
		CallbackURL:           req.CallbackURL,
		MobileNumber:          req.Phone,
		PaymentInstrument:     instrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, "initiate", http.MethodPost, payPath, payload, checksum(c.cfg.SaltKey, c.cfg.SaltIndex, payload, payPath))
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &GatewayError{Op: "initiate", Code: env.Code, Err: errors.New(env.Message)}
	}

	var d payData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, &GatewayError{Op: "initiate", Code: env.Code, Err: fmt.Errorf("decode data: %w", err)}
	}
	if d.InstrumentResponse.RedirectInfo.URL == "" {
		return nil, &GatewayError{Op: "initiate", Code: env.Code, Err: errors.New("no redirect url in response")}
	}
	return &InitiateResult{RedirectURL: d.InstrumentResponse.RedirectInfo.URL, Code: env.Code, Raw: env.raw()}, nil
}

// Status asks PhonePe for the current state of merchantRef.
func (c *Client) Status(ctx context.Context, merchantRef string) (*StatusResult, error) {
	path := fmt.Sprintf("%s/%s/%s", statusPath, c.cfg.MerchantID, merchantRef)
	env, err := c.call(ctx, "status", http.MethodGet, path, "", checksum(c.cfg.SaltKey, c.cfg.SaltIndex, path))
	if err != nil {
		return nil, err
	}
	res, err := env.status()
	if err != nil {
		return nil, &GatewayError{Op: "status", Code: env.Code, Err: fmt.Errorf("decode data: %w", err)}
	}
	if res.MerchantRef == "" {
		res.MerchantRef = merchantRef
	}
	return res, nil
}

// ValidateCallback checks the X-VERIFY header of a server-to-server callback
// and decodes its base64 response.
func (c *Client) ValidateCallback(xVerify string, body []byte) (*StatusResult, error) {
	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil || cb.Response == "" {
		return nil, ErrMalformedCallback
	}
	if err := verifyChecksum(xVerify, c.cfg.SaltKey, c.cfg.SaltIndex, cb.Response); err != nil {
		return nil, err
	}

	decoded, err := base64.StdEncoding.DecodeString(cb.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	var env envelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	res, err := env.status()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if res.MerchantRef == "" {
		return nil, fmt.Errorf("%w: missing merchantTransactionId", ErrMalformedCallback)
	}
	return res, nil
}

// Refund asks PhonePe to return amount of the original transaction.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	payload, err := encodePayload(refundRequest{
		MerchantID:            c.cfg.MerchantID,
		MerchantUserID:        req.UserID,
		OriginalTransactionID: req.OriginalRef,
		MerchantTransactionID: req.RefundRef,
		Amount:                ToPaise(req.Amount),
		CallbackURL:           req.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, "refund", http.MethodPost, refundPath, payload, checksum(c.cfg.SaltKey, c.cfg.SaltIndex, payload, refundPath))
	if err != nil {
		return nil, err
	}
	res, err := env.status()
	if err != nil {
		return nil, &GatewayError{Op: "refund", Code: env.Code, Err: fmt.Errorf("decode data: %w", err)}
	}
	if !env.Success && res.State != StatePending {
		return nil, &GatewayError{Op: "refund", Code: env.Code, Err: errors.New(env.Message)}
	}
	return &RefundResult{
		RefundRef:     req.RefundRef,
		ProviderTxnID: res.ProviderTxnID,
		State:         res.State,
		Code:          env.Code,
		Raw:           res.Raw,
	}, nil
}

func encodePayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// call sends one request with retries for transient failures. 4xx other than
// 429 are not retried.
func (c *Client) call(ctx context.Context, op, method, path, payload, xVerify string) (*envelope, error) {
	log := logger.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.Multiplier = c.cfg.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	var (
		resp    *rawResponse
		lastErr error
	)
	err := backoff.RetryNotify(func() error {
		r, err := c.breaker.Execute(func() (*rawResponse, error) {
			return c.send(ctx, method, path, payload, xVerify)
		})
		resp = r
		lastErr = err
		switch {
		case err == nil:
			return nil
		case errors.Is(err, circuitbreaker.ErrOpen):
			return backoff.Permanent(err)
		case isTransient(err):
			return err
		}
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		log.Warn("phonepe call failed, retrying", "operation", op, "wait", wait, "error", err)
	})

	if err != nil {
		c.metrics.GatewayCalls.WithLabelValues(op, "error").Inc()
		return nil, toGatewayError(op, err, lastErr)
	}
	c.metrics.GatewayCalls.WithLabelValues(op, "ok").Inc()

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &env, nil
}

// httpError carries a non-2xx response out of send.
type httpError struct {
	status     int
	retryAfter time.Duration
	body       []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, bytes.TrimSpace(e.body))
}

func (c *Client) send(ctx context.Context, method, path, payload, xVerify string) (*rawResponse, error) {
	var body io.Reader
	if payload != "" {
		b, _ := json.Marshal(map[string]string{"request": payload})
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-VERIFY", xVerify)
	if method == http.MethodGet {
		req.Header.Set("X-MERCHANT-ID", c.cfg.MerchantID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	out := &rawResponse{status: res.StatusCode, retryAfter: parseRetryAfter(res.Header.Get("Retry-After")), body: data}
	if res.StatusCode >= 300 {
		return nil, &httpError{status: res.StatusCode, retryAfter: out.retryAfter, body: data}
	}
	return out, nil
}

// isTransient reports whether err is worth retrying: transport failures,
// 5xx and 429.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 500 || he.status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func toGatewayError(op string, err, last error) *GatewayError {
	ge := &GatewayError{Op: op, Err: err}
	var he *httpError
	if errors.As(last, &he) {
		ge.StatusCode = he.status
		ge.RetryAfter = he.retryAfter
		var env envelope
		if json.Unmarshal(he.body, &env) == nil {
			ge.Code = env.Code
		}
	}
	ge.Temporary = errors.Is(err, circuitbreaker.ErrOpen) || isTransient(last)
	return ge
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
