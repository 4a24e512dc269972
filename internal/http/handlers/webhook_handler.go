// README: Payment-gateway webhook endpoint: signature check, then bridge dispatch.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"platera/internal/modules/order"
	"platera/internal/payment"
)

type WebhookHandler struct {
	bridge *payment.Bridge
	secret string
	log    *zap.Logger
}

func NewWebhookHandler(bridge *payment.Bridge, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{bridge: bridge, secret: secret, log: log}
}

type webhookEvent struct {
	Type      string `json:"type"` // "payment" or "payout"
	Reference string `json:"reference"`
	OrderCode string `json:"order_code,omitempty"`
	EntryID   string `json:"entry_id,omitempty"`
	Success   bool   `json:"success"`
}

// Handle verifies the HMAC over the raw body before anything else; an
// invalid signature mutates nothing. Non-2xx answers make the gateway
// retry, so permanent rejections answer 400.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if !payment.VerifySignature(h.secret, body, c.GetHeader(payment.SignatureHeader)) {
		writeError(c, http.StatusUnauthorized, "bad signature")
		return
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(c, http.StatusBadRequest, "malformed event")
		return
	}

	switch ev.Type {
	case "payment":
		err = h.bridge.ConfirmPayment(c.Request.Context(), ev.Reference, ev.OrderCode, body)
	case "payout":
		err = h.bridge.FinalizePayout(c.Request.Context(), ev.EntryID, ev.Success, ev.Reference, body)
	default:
		writeError(c, http.StatusBadRequest, "unknown event type")
		return
	}
	if err != nil {
		h.log.Warn("webhook rejected",
			zap.String("type", ev.Type), zap.String("ref", ev.Reference), zap.Error(err))
		// Unknown order codes never resolve; answering 500 would have the
		// gateway redeliver forever.
		if errors.Is(err, payment.ErrAmountMismatch) ||
			errors.Is(err, payment.ErrPaymentNotVerified) ||
			errors.Is(err, order.ErrNotFound) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "webhook processing failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
