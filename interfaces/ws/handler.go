// Package ws exposes the collaborative editing transport. Clients open a
// websocket for a named document ("page.<pageID>"); every binary frame is
// a document update, and the first frame the server sends is the full
// document state.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pagespace/application/services"
	"pagespace/collab"
	"pagespace/pkg/auth"
	"pagespace/pkg/common"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// sendBuffer frames per client; a client that cannot drain them in
	// time is disconnected rather than allowed to stall the session
	sendBuffer = 64
)

// Handler upgrades document connections and pumps updates between the
// websocket and the page's session
type Handler struct {
	registry *collab.Registry
	pages    *services.PageService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a websocket handler
func NewHandler(registry *collab.Registry, pages *services.PageService, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		pages:    pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin is enforced by the CORS layer in front
			},
		},
		logger: logger,
	}
}

// Serve handles GET /sync/{document}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	pageID, err := collab.ParseDocumentName(chi.URLParam(r, "document"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	// Authorize before upgrading so a non-member never holds a socket.
	if _, err := h.pages.GetPage(r.Context(), userCtx.UserID, pageID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger,
	}

	session, err := h.registry.Attach(r.Context(), pageID, client)
	if err != nil {
		conn.Close()
		return
	}

	go client.writePump()

	// The full state goes out first so the client converges immediately.
	client.Send(session.State())

	h.readPump(client, session)
}

// readPump consumes frames until the connection dies, then detaches
func (h *Handler) readPump(client *wsClient, session *collab.Session) {
	defer func() {
		h.registry.Detach(session, client)
		client.close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly",
					zap.String("document", session.Name()), zap.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}

		if err := session.Apply(context.Background(), client, payload); err != nil {
			h.logger.Warn("dropped invalid update frame",
				zap.String("document", session.Name()), zap.Error(err))
		}
	}
}

// wsClient adapts one websocket connection to the session client interface
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// Send queues an update for delivery. A full buffer drops the connection;
// the client reconnects and resyncs from state.
func (c *wsClient) Send(update []byte) {
	select {
	case c.send <- update:
	default:
		c.logger.Warn("client send buffer full, closing connection")
		c.conn.Close()
	}
}

func (c *wsClient) close() {
	close(c.send)
}

// writePump drains the send channel and keeps the connection alive with pings
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, update); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
