// README: Webhook endpoint tests: signature gate and event dispatch.
package handlers_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platera/internal/http/handlers"
	"platera/internal/modules/ledger"
	"platera/internal/modules/order"
	"platera/internal/modules/presence"
	"platera/internal/payment"
	"platera/internal/types"
)

const webhookSecret = "whsec_test"

type stubOrders struct {
	order  *order.Order
	marked bool
}

func (s *stubOrders) GetByCode(_ context.Context, code string, _ bool) (*order.Order, error) {
	if s.order == nil || s.order.Code != code {
		return nil, order.ErrNotFound
	}
	cp := *s.order
	return &cp, nil
}

func (s *stubOrders) MarkPaid(context.Context, string, string, []byte, string) (bool, error) {
	s.marked = true
	return true, nil
}

type stubLedger struct {
	finalized []bool
}

func (s *stubLedger) RecordDeposit(context.Context, ledger.Owner, decimal.Decimal, string, bool) (ledger.Entry, error) {
	return ledger.Entry{}, nil
}

func (s *stubLedger) FinalizeWithdraw(_ context.Context, _ string, success bool, _ string, _ []byte) error {
	s.finalized = append(s.finalized, success)
	return nil
}

type stubGateway struct {
	verify payment.VerifyResult
}

func (s *stubGateway) InitCheckout(context.Context, decimal.Decimal, string, string) (payment.CheckoutSession, error) {
	return payment.CheckoutSession{}, nil
}

func (s *stubGateway) Verify(context.Context, string) (payment.VerifyResult, error) {
	return s.verify, nil
}

func (s *stubGateway) Payout(context.Context, payment.PayoutRequest) (payment.PayoutResult, error) {
	return payment.PayoutResult{}, nil
}

type noopNotifier struct{}

func (noopNotifier) SendToUser(types.ID, string, any) error { return nil }

type noopTexter struct{}

func (noopTexter) Send(context.Context, string, string) error { return nil }

func newWebhookRouter(orders *stubOrders, led *stubLedger, gw *stubGateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	bridge := payment.NewBridge(orders, led, gw, noopNotifier{}, noopTexter{},
		presence.NewActiveDeliveries(), nil, zap.NewNop())
	h := handlers.NewWebhookHandler(bridge, webhookSecret, zap.NewNop())
	r := gin.New()
	r.POST("/api/webhooks/gateway", h.Handle)
	return r
}

func postWebhook(t *testing.T, r *gin.Engine, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(body))
	if sign {
		req.Header.Set(payment.SignatureHeader, payment.Sign(webhookSecret, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	orders := &stubOrders{order: &order.Order{
		Code:    "2603-000001",
		Total:   decimal.RequireFromString("100.00"),
		Payment: order.Payment{Status: order.PaymentUnpaid},
	}}
	r := newWebhookRouter(orders, &stubLedger{}, &stubGateway{
		verify: payment.VerifyResult{Success: true, Amount: "100.00"},
	})

	body := []byte(`{"type":"payment","reference":"tx_1","order_code":"2603-000001"}`)
	w := postWebhook(t, r, body, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned: expected 401, got %d", w.Code)
	}
	if orders.marked {
		t.Fatal("unsigned webhook must not mutate anything")
	}
}

func TestWebhookPaymentFlow(t *testing.T) {
	orders := &stubOrders{order: &order.Order{
		Code:    "2603-000001",
		Total:   decimal.RequireFromString("100.00"),
		Payment: order.Payment{Status: order.PaymentUnpaid},
	}}
	r := newWebhookRouter(orders, &stubLedger{}, &stubGateway{
		verify: payment.VerifyResult{Success: true, Amount: "100.00"},
	})

	body := []byte(`{"type":"payment","reference":"tx_1","order_code":"2603-000001"}`)
	w := postWebhook(t, r, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !orders.marked {
		t.Fatal("signed payment webhook should mark the order paid")
	}
}

func TestWebhookAmountMismatchIsPermanent(t *testing.T) {
	orders := &stubOrders{order: &order.Order{
		Code:    "2603-000001",
		Total:   decimal.RequireFromString("100.00"),
		Payment: order.Payment{Status: order.PaymentUnpaid},
	}}
	r := newWebhookRouter(orders, &stubLedger{}, &stubGateway{
		verify: payment.VerifyResult{Success: true, Amount: "1.00"},
	})

	body := []byte(`{"type":"payment","reference":"tx_1","order_code":"2603-000001"}`)
	w := postWebhook(t, r, body, true)
	// 400 tells the gateway not to retry a mismatch.
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if orders.marked {
		t.Fatal("mismatched amount must not mark the order paid")
	}
}

func TestWebhookUnknownOrderIsPermanent(t *testing.T) {
	r := newWebhookRouter(&stubOrders{}, &stubLedger{}, &stubGateway{
		verify: payment.VerifyResult{Success: true, Amount: "100.00"},
	})

	body := []byte(`{"type":"payment","reference":"tx_1","order_code":"2699-999999"}`)
	w := postWebhook(t, r, body, true)
	// An order code that does not exist never will; 400 stops the retries.
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhookPayoutFinalizes(t *testing.T) {
	led := &stubLedger{}
	r := newWebhookRouter(&stubOrders{}, led, &stubGateway{})

	body := []byte(`{"type":"payout","reference":"po_1","entry_id":"e1","success":true}`)
	w := postWebhook(t, r, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(led.finalized) != 1 || !led.finalized[0] {
		t.Fatalf("payout webhook should finalize success, got %v", led.finalized)
	}
}

func TestWebhookUnknownType(t *testing.T) {
	r := newWebhookRouter(&stubOrders{}, &stubLedger{}, &stubGateway{})
	body := []byte(`{"type":"mystery"}`)
	w := postWebhook(t, r, body, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
