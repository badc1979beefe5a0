package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Client talks to the hosted checkout provider over its JSON API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: httpClient,
	}
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return "checkout api error (" + http.StatusText(e.StatusCode) + "): " + e.Code + ": " + e.Message
	}
	return "checkout api error (" + http.StatusText(e.StatusCode) + "): " + e.Message
}

type sessionResponse struct {
	ID            string                    `json:"id"`
	URL           string                    `json:"url"`
	PaymentStatus string                    `json:"payment_status"`
	CustomerEmail string                    `json:"customer_email"`
	Currency      string                    `json:"currency"`
	AmountTotal   int64                     `json:"amount_total"`
	LineItems     []domain.CheckoutLineItem `json:"line_items"`
}

type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.CheckoutSession{}, errors.Wrap(err, "encode session request")
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", body, &resp); err != nil {
		return domain.CheckoutSession{}, err
	}
	if resp.URL == "" {
		return domain.CheckoutSession{}, errors.New("checkout api returned empty session url")
	}
	return resp.toDomain(), nil
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return domain.CheckoutSession{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != nil {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (r sessionResponse) toDomain() domain.CheckoutSession {
	return domain.CheckoutSession{
		ID:            r.ID,
		URL:           r.URL,
		PaymentStatus: domain.PaymentStatus(r.PaymentStatus),
		CustomerEmail: r.CustomerEmail,
		Currency:      r.Currency,
		AmountTotal:   r.AmountTotal,
		LineItems:     r.LineItems,
	}
}
