// README: Route registration; groups by role, auth everywhere except webhook and health.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"platera/internal/auth"
	"platera/internal/http/handlers"
	"platera/internal/http/middleware"
	"platera/internal/logger"
	"platera/internal/transport/ws"
	"platera/internal/types"
)

type RouterDeps struct {
	Verifier auth.Verifier
	Order    *handlers.OrderHandler
	Manager  *handlers.ManagerHandler
	Courier  *handlers.CourierHandler
	Ledger   *handlers.LedgerHandler
	Webhook  *handlers.WebhookHandler
	WS       *ws.Handler
	Log      *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLog(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	// Webhooks authenticate by body signature, not bearer token.
	r.POST("/api/webhooks/gateway", deps.Webhook.Handle)
	// Websocket connect carries the token as a query parameter.
	r.GET("/ws", deps.WS.Connect)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	customer := api.Group("", middleware.RequireRole(types.RoleCustomer))
	customer.POST("/orders", deps.Order.Create)
	customer.GET("/orders", deps.Order.List)

	// Get and handoff are shared: each checks visibility per role itself.
	api.GET("/orders/:id", deps.Order.Get)
	api.POST("/orders/:id/handoff", deps.Order.VerifyHandoff)

	manager := api.Group("/manager", middleware.RequireRole(types.RoleManager))
	manager.POST("/orders/:id/accept", deps.Manager.Accept)
	manager.POST("/orders/:id/ready", deps.Manager.Ready)
	manager.POST("/orders/:id/cancel", deps.Manager.Cancel)

	courier := api.Group("/courier", middleware.RequireRole(types.RoleCourier))
	courier.POST("/orders/:id/claim", deps.Courier.Claim)
	courier.POST("/orders/:id/pickup", deps.Courier.VerifyPickup)

	// Balance endpoints self-gate on role: couriers and managers only.
	api.GET("/balance", deps.Ledger.Balance)
	api.GET("/balance/history", deps.Ledger.History)
	api.POST("/balance/withdraw", deps.Ledger.Withdraw)

	return r
}
