// Package gateway is a client for the hosted-checkout charges API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	headerAPIKey  = "X-CC-Api-Key"
	headerVersion = "X-CC-Version"

	chargesPath = "/charges"

	PricingFixed = "fixed_price"
)

var ErrMalformedCharge = errors.New("malformed charge response")

// StatusError is returned for any non-2xx answer. Code lets callers decide
// whether a retry makes sense.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded with status %d", e.Code)
}

type Config struct {
	BaseURL    string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type ChargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	LocalPrice  Money             `json:"local_price"`
	PricingType string            `json:"pricing_type"`
	RedirectURL string            `json:"redirect_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata"`
}

type Charge struct {
	ID        string
	HostedURL string
}

type chargeResponse struct {
	Data struct {
		ID        string `json:"id"`
		HostedURL string `json:"hosted_url"`
	} `json:"data"`
}

type Client struct {
	http *resty.Client
}

func New(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader(headerAPIKey, cfg.APIKey).
		SetHeader(headerVersion, cfg.APIVersion).
		SetHeader("Accept", "application/json")

	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	return &Client{http: c}
}

// CreateCharge makes exactly one POST /charges call. Retrying is up to the
// caller.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(chargesPath)
	if err != nil {
		return Charge{}, fmt.Errorf("post charge: %w", err)
	}

	if !resp.IsSuccess() {
		return Charge{}, &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
	}

	var cr chargeResponse

	err = json.Unmarshal(resp.Body(), &cr)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: %w", ErrMalformedCharge, err)
	}

	if cr.Data.HostedURL == "" || cr.Data.ID == "" {
		return Charge{}, fmt.Errorf("%w: missing hosted_url or id", ErrMalformedCharge)
	}

	return Charge{ID: cr.Data.ID, HostedURL: cr.Data.HostedURL}, nil
}
