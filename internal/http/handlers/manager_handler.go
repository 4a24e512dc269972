// README: Restaurant-manager handlers driving the kitchen side of the state machine.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"platera/internal/http/middleware"
	"platera/internal/modules/assignment"
	"platera/internal/modules/order"
	"platera/internal/types"
)

type ManagerHandler struct {
	order      *order.Service
	assignment *assignment.Service
	log        *zap.Logger
}

func NewManagerHandler(svc *order.Service, asg *assignment.Service, log *zap.Logger) *ManagerHandler {
	return &ManagerHandler{order: svc, assignment: asg, log: log}
}

func (h *ManagerHandler) Accept(c *gin.Context) {
	h.transition(c, order.StatusPreparing)
}

// Ready marks the food cooked. For delivery orders this is also the
// moment the claim window opens, so the offer fans out to idle couriers.
func (h *ManagerHandler) Ready(c *gin.Context) {
	o := h.transition(c, order.StatusCooked)
	if o == nil {
		return
	}
	if n := h.assignment.OfferOrder(c.Request.Context(), o); n > 0 {
		h.log.Info("order offered", zap.String("order", o.Code), zap.Int("couriers", n))
	}
}

func (h *ManagerHandler) Cancel(c *gin.Context) {
	o := h.transition(c, order.StatusCancelled)
	// A cancelled delivery frees its courier for the next offer.
	if o != nil && o.CourierID != nil {
		h.assignment.Release(*o.CourierID)
	}
}

func (h *ManagerHandler) transition(c *gin.Context, to order.Status) *order.Order {
	ident := middleware.CallerIdentity(c)
	id := types.ID(c.Param("id"))

	o, err := h.order.Get(c.Request.Context(), id, false)
	if err != nil {
		writeOrderError(c, err)
		return nil
	}
	// Manager identity is the restaurant's identity.
	if o.RestaurantID != ident.UserID {
		writeError(c, http.StatusForbidden, "order belongs to another restaurant")
		return nil
	}

	o, err = h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID:   id,
		To:        to,
		ActorType: "manager",
		ActorID:   ident.UserID,
	})
	if err != nil {
		writeOrderError(c, err)
		return nil
	}
	c.JSON(http.StatusOK, orderView(o))
	return o
}
