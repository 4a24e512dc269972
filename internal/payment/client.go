// README: Payment gateway client (checkout init, verify, payout) over resty.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"platera/internal/config"
)

var ErrGateway = errors.New("payment gateway error")

type CheckoutSession struct {
	CheckoutURL string `json:"checkout_url"`
	Reference   string `json:"reference"`
}

type VerifyResult struct {
	Success  bool   `json:"success"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

type PayoutRequest struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference"`
}

type PayoutResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Gateway is the opaque provider boundary. Verify is only ever called from
// the webhook path; client-reported success is never trusted.
type Gateway interface {
	InitCheckout(ctx context.Context, amount decimal.Decimal, currency, orderCode string) (CheckoutSession, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
	Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error)
}

type restyGateway struct {
	client *resty.Client
}

func NewGateway(cfg config.GatewayConfig) Gateway {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
		SetAuthToken(cfg.Secret)
	return &restyGateway{client: client}
}

func (g *restyGateway) InitCheckout(ctx context.Context, amount decimal.Decimal, currency, orderCode string) (CheckoutSession, error) {
	var out CheckoutSession
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"amount":    amount.StringFixed(2),
			"currency":  currency,
			"reference": orderCode,
		}).
		SetResult(&out).
		Post("/checkout")
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if !resp.IsSuccess() {
		return CheckoutSession{}, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode())
	}
	return out, nil
}

const verifyRetries = 2

// Verify is an idempotent read, retried a bounded number of times.
func (g *restyGateway) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	var lastErr error
	for attempt := 0; attempt <= verifyRetries; attempt++ {
		var out VerifyResult
		resp, err := g.client.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/transactions/" + reference)
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.IsSuccess() {
			lastErr = fmt.Errorf("status %d", resp.StatusCode())
			continue
		}
		return out, nil
	}
	return VerifyResult{}, fmt.Errorf("%w: %v", ErrGateway, lastErr)
}

// Payout is never retried here: a duplicate initiation risks double payout.
// The webhook finalizes the outcome asynchronously.
func (g *restyGateway) Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error) {
	var out PayoutResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/payouts")
	if err != nil {
		return PayoutResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if !resp.IsSuccess() {
		return PayoutResult{}, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode())
	}
	return out, nil
}
