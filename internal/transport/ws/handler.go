// README: Websocket endpoint: authenticated connect, per-role dispatch, cleanup.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"platera/internal/auth"
	"platera/internal/modules/presence"
	"platera/internal/types"
)

type Handler struct {
	verifier auth.Verifier
	registry *presence.Registry
	relay    *presence.LocationRelay
	geo      *presence.GeoStore
	log      *zap.Logger
	upgrader websocket.Upgrader
	// One handler set per role, picked once at connect time.
	handlers map[types.Role]map[string]eventHandler
}

type session struct {
	conn     *wsConn
	identity auth.Identity
}

type eventHandler func(ctx context.Context, s *session, e envelope) error

func NewHandler(verifier auth.Verifier, registry *presence.Registry, relay *presence.LocationRelay, geo *presence.GeoStore, log *zap.Logger) *Handler {
	h := &Handler{
		verifier: verifier,
		registry: registry,
		relay:    relay,
		geo:      geo,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	h.handlers = map[types.Role]map[string]eventHandler{
		types.RoleCustomer: {},
		types.RoleCourier:  {"location": h.handleLocation},
		types.RoleManager:  {},
		types.RoleAdmin:    {},
	}
	return h
}

// Connect upgrades the socket, authenticates once, and registers the
// connection. A bad credential or role means cleanup and forced close.
func (h *Handler) Connect(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := newConn(ws)

	ident, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		_ = conn.Emit("error", map[string]string{"message": "unauthorized"})
		_ = conn.Close()
		return
	}
	table, ok := h.handlers[ident.Role]
	if !ok {
		_ = conn.Emit("error", map[string]string{"message": "unknown role"})
		_ = conn.Close()
		return
	}

	h.registry.Add(conn, presence.Member{
		UserID:       ident.UserID,
		Role:         ident.Role,
		VehicleClass: ident.VehicleClass,
	})
	h.log.Info("connection open",
		zap.String("user", string(ident.UserID)), zap.String("role", string(ident.Role)))

	s := &session{conn: conn, identity: ident}
	h.readLoop(c.Request.Context(), s, table)

	h.registry.Remove(conn.ID())
	if ident.Role == types.RoleCourier && h.geo != nil {
		_ = h.geo.Remove(context.Background(), ident.UserID, ident.VehicleClass)
	}
	_ = conn.Close()
	h.log.Info("connection closed", zap.String("user", string(ident.UserID)))
}

func (h *Handler) readLoop(ctx context.Context, s *session, table map[string]eventHandler) {
	for {
		_, raw, err := s.conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var e envelope
		if err := json.Unmarshal(raw, &e); err != nil {
			_ = s.conn.Emit("error", map[string]string{"message": "malformed frame"})
			continue
		}
		handler, ok := table[e.Event]
		if !ok {
			_ = s.conn.Emit("error", map[string]string{"message": "unknown event: " + e.Event})
			continue
		}
		if err := handler(ctx, s, e); err != nil {
			// Rejections are answered explicitly, never dropped.
			_ = s.conn.Emit("error", map[string]string{
				"event":   e.Event,
				"message": err.Error(),
			})
		}
	}
}

type locationPayload struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

func (h *Handler) handleLocation(ctx context.Context, s *session, e envelope) error {
	var p locationPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return err
	}
	return h.relay.HandlePing(ctx, s.identity.UserID, s.identity.VehicleClass, presence.LocationPing{
		OrderID:    types.ID(p.OrderID),
		CustomerID: types.ID(p.CustomerID),
		Position:   types.Point{Lat: p.Lat, Lng: p.Lng},
	})
}
