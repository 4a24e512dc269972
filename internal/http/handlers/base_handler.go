// README: Shared response helpers and domain error to status mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"platera/internal/modules/assignment"
	"platera/internal/modules/ledger"
	"platera/internal/modules/order"
	"platera/internal/payment"
)

type errorResponse struct {
	Error string `json:"error"`
	// Present on transition conflicts so the client can reconcile.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// writeOrderError maps order-layer sentinels to HTTP statuses. Unknown
// errors stay opaque.
func writeOrderError(c *gin.Context, err error) {
	var te *order.TransitionError
	if errors.As(err, &te) {
		c.JSON(http.StatusConflict, errorResponse{
			Error: te.Error(),
			From:  string(te.From),
			To:    string(te.To),
		})
		return
	}
	switch {
	case errors.Is(err, order.ErrBadRequest),
		errors.Is(err, order.ErrInconsistentRestaurant):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotCourier),
		errors.Is(err, order.ErrCodeMismatch):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidState),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrCourierRequired),
		errors.Is(err, order.ErrNotPaid):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrGateway):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeClaimError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assignment.ErrAlreadyClaimed),
		errors.Is(err, assignment.ErrCourierActive),
		errors.Is(err, assignment.ErrNotReady),
		errors.Is(err, assignment.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, assignment.ErrNotDeliverable),
		errors.Is(err, assignment.ErrVehicleMismatch):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidBankAccount):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrGateway):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
