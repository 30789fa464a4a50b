// Package portone is the payment gateway client for the PortOne (iamport) REST API.
package portone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"

	"github.com/cenkalti/backoff"
)

const (
	DefaultBaseURL = "https://api.iamport.kr"
	tokenSkew      = 30 * time.Second
	maxLookupTries = 3
)

type Config struct {
	BaseURL string
	Key     string
	Secret  string
	Timeout time.Duration
}

// Client implements the application payment gateway port.
type Client struct {
	cfg  Config
	http *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func New(cfg Config, hc *http.Client) (*Client, error) {
	if cfg.Key == "" || cfg.Secret == "" {
		return nil, errors.New("portone: key and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("portone: base url: %w", err)
	}
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: hc, now: time.Now}, nil
}

// envelope is the wrapper of every API response; code 0 means success.
type envelope struct {
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiredAt   int64  `json:"expired_at"`
}

type paymentResponse struct {
	ImpUID       string `json:"imp_uid"`
	MerchantUID  string `json:"merchant_uid"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	CancelAmount int64  `json:"cancel_amount"`
	UpdatedAt    int64  `json:"updated_at"`
}

func (c *Client) Prepare(ctx context.Context, orderRef string, amount int64) error {
	body := map[string]any{"merchant_uid": orderRef, "amount": amount}
	if err := c.call(ctx, http.MethodPost, "/payments/prepare", body, nil); err != nil {
		return fmt.Errorf("portone: prepare %s: %w", orderRef, err)
	}
	return nil
}

func (c *Client) Cancel(ctx context.Context, orderRef string, amount int64, reason string) error {
	body := map[string]any{"merchant_uid": orderRef, "amount": amount, "reason": reason}
	if err := c.call(ctx, http.MethodPost, "/payments/cancel", body, nil); err != nil {
		return fmt.Errorf("portone: cancel %s: %w", orderRef, err)
	}
	return nil
}

// Lookup is idempotent and retried with exponential backoff on transport errors.
func (c *Client) Lookup(ctx context.Context, transactionID string) (*dompay.Payment, error) {
	var out paymentResponse
	op := func() error {
		err := c.call(ctx, http.MethodGet, "/payments/"+url.PathEscape(transactionID), nil, &out)
		if err == nil || !retryable(err) {
			return permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxLookupTries-1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("portone: lookup %s: %w", transactionID, err)
	}

	status := dompay.Status(out.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("portone: lookup %s: %w: unknown status %q", transactionID, dompay.ErrGatewayFailure, out.Status)
	}
	p := &dompay.Payment{
		TransactionID:   out.ImpUID,
		OrderRef:        out.MerchantUID,
		Status:          status,
		Amount:          out.Amount,
		CancelledAmount: out.CancelAmount,
	}
	if out.UpdatedAt > 0 {
		p.UpdatedAt = time.Unix(out.UpdatedAt, 0).UTC()
	}
	return p, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// permanent stops backoff.Retry; nil stays nil.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// transportError marks failures that never reached a decided API answer.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, token, in, out)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Add(tokenSkew).Before(c.expires) {
		return c.token, nil
	}
	var tok tokenResponse
	body := map[string]string{"imp_key": c.cfg.Key, "imp_secret": c.cfg.Secret}
	if err := c.do(ctx, http.MethodPost, "/users/getToken", "", body, &tok); err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("get token: %w: empty access token", dompay.ErrGatewayFailure)
	}
	c.token = tok.AccessToken
	c.expires = time.Unix(tok.ExpiredAt, 0)
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", dompay.ErrGatewayFailure, &transportError{err: err})
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %w", dompay.ErrGatewayFailure, &transportError{err: fmt.Errorf("http %d", resp.StatusCode)})
		}
		return fmt.Errorf("%w: http %d: decode: %v", dompay.ErrGatewayFailure, resp.StatusCode, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", dompay.ErrNotFound, env.Message)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %w", dompay.ErrGatewayFailure, &transportError{err: fmt.Errorf("http %d: %s", resp.StatusCode, env.Message)})
	case resp.StatusCode >= 400 || env.Code != 0:
		return fmt.Errorf("%w: code %d: %s", dompay.ErrGatewayFailure, env.Code, env.Message)
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", dompay.ErrGatewayFailure, err)
		}
	}
	return nil
}
