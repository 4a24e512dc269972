// README: Balance, history, and withdraw handlers for restaurants and couriers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"platera/internal/http/middleware"
	"platera/internal/modules/ledger"
	"platera/internal/money"
	"platera/internal/payment"
	"platera/internal/types"
)

type LedgerHandler struct {
	ledger *ledger.Service
	bridge *payment.Bridge
}

func NewLedgerHandler(svc *ledger.Service, bridge *payment.Bridge) *LedgerHandler {
	return &LedgerHandler{ledger: svc, bridge: bridge}
}

func (h *LedgerHandler) Balance(c *gin.Context) {
	owner, ok := callerOwner(c)
	if !ok {
		return
	}
	balance, err := h.ledger.CurrentBalance(c.Request.Context(), owner)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(2)})
}

func (h *LedgerHandler) History(c *gin.Context) {
	owner, ok := callerOwner(c)
	if !ok {
		return
	}
	items, err := h.ledger.History(c.Request.Context(), owner)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	views := make([]gin.H, 0, len(items))
	for _, it := range items {
		views = append(views, gin.H{
			"entry_id":   it.ID,
			"type":       it.Type,
			"status":     it.Status,
			"amount":     it.Amount.StringFixed(2),
			"fee":        it.Fee.StringFixed(2),
			"net_amount": it.NetAmount.StringFixed(2),
			"running":    it.Running.StringFixed(2),
			"note":       it.Note,
			"created_at": it.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": views})
}

type withdrawReq struct {
	Amount      string `json:"amount"`
	BankName    string `json:"bank_name"`
	BankAccount string `json:"bank_account"`
	BankCode    string `json:"bank_code"`
}

// Withdraw creates the processing entry, then hands the transfer to the
// payment bridge. The payout result arrives later via webhook.
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	owner, ok := callerOwner(c)
	if !ok {
		return
	}
	var req withdrawReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid amount")
		return
	}
	entry, err := h.ledger.RequestWithdraw(c.Request.Context(), owner, amount, ledger.BankRef{
		Name:    req.BankName,
		Account: req.BankAccount,
		Code:    req.BankCode,
	})
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	if err := h.bridge.RequestPayout(c.Request.Context(), entry); err != nil {
		// The entry stays processing with the funds held; the payout
		// webhook settles it either way.
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"entry_id": entry.ID,
		"status":   ledger.StatusProcessing,
		"amount":   entry.NetAmount.StringFixed(2),
	})
}

// callerOwner maps the caller's role onto a ledger owner. Only couriers
// and restaurant managers hold balances.
func callerOwner(c *gin.Context) (ledger.Owner, bool) {
	ident := middleware.CallerIdentity(c)
	switch ident.Role {
	case types.RoleCourier:
		return ledger.Owner{Kind: money.OwnerCourier, ID: ident.UserID}, true
	case types.RoleManager:
		return ledger.Owner{Kind: money.OwnerRestaurant, ID: ident.UserID}, true
	default:
		writeError(c, http.StatusForbidden, "no balance for role")
		return ledger.Owner{}, false
	}
}
