// Package jupiter is an HTTP client for a Jupiter v6 style swap aggregator.
//
// Each method makes exactly one request. Failures worth retrying (transport
// errors, 429, 5xx) are returned as plain errors; everything else is wrapped
// with retry.Permanent so a caller's retry loop stops immediately.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/retry"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://quote-api.jup.ag/v6"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 4 << 20
)

// Client errors
var (
	ErrMissingField      = errors.New("response missing required field")
	ErrMalformedResponse = errors.New("malformed aggregator response")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client talks to the aggregator's quote and swap endpoints.
type Client struct {
	baseURL string
	client  *http.Client
	apiKey  string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient creates a new aggregator client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote requests a swap quote. The full response body is kept as Quote.Raw.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.AmountBaseUnits, 10))
	q.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	out := gjson.GetBytes(body, "outAmount")
	if !out.Exists() || out.String() == "" {
		return nil, retry.Permanent(fmt.Errorf("quote: %w: outAmount", ErrMissingField))
	}

	var labels []string
	for _, l := range gjson.GetBytes(body, "routePlan.#.swapInfo.label").Array() {
		if l.String() != "" {
			labels = append(labels, l.String())
		}
	}

	return &domain.Quote{
		Raw:        json.RawMessage(body),
		OutAmount:  out.String(),
		RouteToken: strings.Join(labels, ">"),
	}, nil
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

// SwapTransaction asks for the unsigned transaction bound to quote and
// returns its decoded bytes.
func (c *Client) SwapTransaction(ctx context.Context, quote *domain.Quote, userPublicKey string) ([]byte, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, retry.Permanent(fmt.Errorf("swap: %w: quote", ErrMissingField))
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal swap request: %w", err))
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", payload)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	encoded := gjson.GetBytes(body, "swapTransaction")
	if encoded.Type != gjson.String || encoded.Str == "" {
		return nil, retry.Permanent(fmt.Errorf("swap: %w: swapTransaction", ErrMissingField))
	}

	raw, err := DecodeTransaction(encoded.Str)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("swap: %w", err))
	}
	return raw, nil
}

// DecodeTransaction decodes a base64 (aggregator default) or base58 transaction.
func DecodeTransaction(s string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) > 0 {
		return raw, nil
	}
	if raw, err := base58.Decode(s); err == nil && len(raw) > 0 {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: transaction is neither base64 nor base58", ErrMalformedResponse)
}

// do performs one request and classifies the failure.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
		if serr.Transient() {
			return nil, serr
		}
		return nil, retry.Permanent(serr)
	}

	if !gjson.ValidBytes(body) {
		return nil, retry.Permanent(fmt.Errorf("%w: invalid JSON", ErrMalformedResponse))
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.Type != gjson.Null {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrMalformedResponse, e.String()))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
