// README: Courier handlers: claim a cooked order, verify pickup possession.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"platera/internal/http/middleware"
	"platera/internal/modules/assignment"
	"platera/internal/modules/order"
	"platera/internal/types"
)

type CourierHandler struct {
	order      *order.Service
	assignment *assignment.Service
}

func NewCourierHandler(svc *order.Service, asg *assignment.Service) *CourierHandler {
	return &CourierHandler{order: svc, assignment: asg}
}

// Claim races against every other courier who saw the offer; at most one
// caller gets the pickup code back.
func (h *CourierHandler) Claim(c *gin.Context) {
	ident := middleware.CallerIdentity(c)
	res, err := h.assignment.Claim(c.Request.Context(), assignment.ClaimCommand{
		OrderID:      types.ID(c.Param("id")),
		CourierID:    ident.UserID,
		VehicleClass: ident.VehicleClass,
	})
	if err != nil {
		if errors.Is(err, assignment.ErrCourierActive) && res.Conflicting != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error":         err.Error(),
				"active_order":  res.Conflicting.OrderID,
				"active_status": res.Conflicting.Status,
			})
			return
		}
		writeClaimError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pickup_code": res.PickupCode})
}

func (h *CourierHandler) VerifyPickup(c *gin.Context) {
	var req verifyCodeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		writeError(c, http.StatusBadRequest, "missing code")
		return
	}
	ident := middleware.CallerIdentity(c)
	o, err := h.order.VerifyPickup(c.Request.Context(), order.VerifyPickupCommand{
		OrderID:   types.ID(c.Param("id")),
		CourierID: ident.UserID,
		Code:      req.Code,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}
