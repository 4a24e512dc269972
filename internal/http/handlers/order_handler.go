// README: Customer-facing order handlers: create, get, list, handoff verify.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platera/internal/http/middleware"
	"platera/internal/modules/order"
	"platera/internal/payment"
	"platera/internal/types"
)

type OrderHandler struct {
	order    *order.Service
	gateway  payment.Gateway
	currency string
	log      *zap.Logger
}

func NewOrderHandler(svc *order.Service, gateway payment.Gateway, currency string, log *zap.Logger) *OrderHandler {
	return &OrderHandler{order: svc, gateway: gateway, currency: currency, log: log}
}

type createOrderReq struct {
	Items []struct {
		FoodID   string `json:"food_id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	Fulfillment    string   `json:"fulfillment"`
	VehicleClass   string   `json:"vehicle_class,omitempty"`
	DestLat        *float64 `json:"dest_lat,omitempty"`
	DestLng        *float64 `json:"dest_lng,omitempty"`
	Tip            string   `json:"tip,omitempty"`
	IsGift         bool     `json:"is_gift,omitempty"`
	RecipientPhone string   `json:"recipient_phone,omitempty"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	tip := decimal.Zero
	if req.Tip != "" {
		var err error
		if tip, err = decimal.NewFromString(req.Tip); err != nil {
			writeError(c, http.StatusBadRequest, "invalid tip")
			return
		}
	}
	ident := middleware.CallerIdentity(c)
	cmd := order.CreateCommand{
		CustomerID:     ident.UserID,
		CustomerPhone:  ident.Phone,
		Fulfillment:    order.FulfillmentType(req.Fulfillment),
		VehicleClass:   types.VehicleClass(req.VehicleClass),
		Tip:            tip,
		IsGift:         req.IsGift,
		RecipientPhone: req.RecipientPhone,
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, order.ItemInput{
			FoodID:   types.ID(it.FoodID),
			Quantity: it.Quantity,
		})
	}
	if req.DestLat != nil && req.DestLng != nil {
		cmd.Destination = &types.Point{Lat: *req.DestLat, Lng: *req.DestLng}
	}

	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}

	// Placement is not usable without a checkout session; a gateway failure
	// fails the attempt. The unpaid order stays invisible either way.
	session, err := h.gateway.InitCheckout(c.Request.Context(), o.Total, h.currency, o.Code)
	if err != nil {
		h.log.Error("checkout init failed", zap.String("order", o.Code), zap.Error(err))
		writeError(c, http.StatusBadGateway, "checkout unavailable")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order":        orderView(o),
		"checkout_url": session.CheckoutURL,
	})
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")), false)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	ident := middleware.CallerIdentity(c)
	if !canSeeOrder(ident.UserID, ident.Role, o) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func (h *OrderHandler) List(c *gin.Context) {
	ident := middleware.CallerIdentity(c)
	orders, err := h.order.ListByCustomer(c.Request.Context(), ident.UserID)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	views := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": views})
}

type verifyCodeReq struct {
	Code string `json:"code"`
}

// VerifyHandoff completes the order once the recipient's code matches.
// Couriers present it for delivery orders, customers for takeaway/dine-in.
func (h *OrderHandler) VerifyHandoff(c *gin.Context) {
	var req verifyCodeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		writeError(c, http.StatusBadRequest, "missing code")
		return
	}
	ident := middleware.CallerIdentity(c)
	o, err := h.order.VerifyHandoff(c.Request.Context(), order.VerifyHandoffCommand{
		OrderID:   types.ID(c.Param("id")),
		Code:      req.Code,
		ActorType: string(ident.Role),
		ActorID:   ident.UserID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func canSeeOrder(caller types.ID, role types.Role, o *order.Order) bool {
	switch role {
	case types.RoleAdmin:
		return true
	case types.RoleManager:
		return o.RestaurantID == caller
	case types.RoleCourier:
		return o.CourierID != nil && *o.CourierID == caller
	default:
		return o.CustomerID == caller
	}
}

// orderView is the external shape of an order. Verification codes never
// appear here; they travel over their own channels.
func orderView(o *order.Order) gin.H {
	items := make([]gin.H, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, gin.H{
			"food_id":    it.FoodID,
			"name":       it.Name,
			"quantity":   it.Quantity,
			"unit_price": it.UnitPrice.StringFixed(2),
		})
	}
	v := gin.H{
		"order_id":        o.ID,
		"order_code":      o.Code,
		"status":          o.Status,
		"fulfillment":     o.Fulfillment,
		"restaurant_name": o.RestaurantName,
		"items":           items,
		"subtotal":        o.Subtotal.StringFixed(2),
		"vat":             o.VATAmount.StringFixed(2),
		"delivery_fee":    o.DeliveryFee.StringFixed(2),
		"service_fee":     o.ServiceFee.StringFixed(2),
		"tip":             o.Tip.StringFixed(2),
		"total":           o.Total.StringFixed(2),
		"payment_status":  o.Payment.Status,
		"is_gift":         o.IsGift,
		"created_at":      o.CreatedAt,
	}
	if o.Fulfillment == order.FulfillmentDelivery {
		v["vehicle_class"] = o.VehicleClass
		if o.Destination != nil {
			v["dest_lat"] = o.Destination.Lat
			v["dest_lng"] = o.Destination.Lng
		}
		if o.CourierID != nil {
			v["courier_id"] = *o.CourierID
		}
	}
	return v
}
