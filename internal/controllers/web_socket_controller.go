package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"drone_routes/internal/middleware"
	"drone_routes/internal/realtime"
	"drone_routes/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // authenticated by the token query param
	},
}

// StatusSocket streams a route's status events over a websocket.
type StatusSocket struct {
	hub    *realtime.Hub
	routes *services.RouteService
	auth   *middleware.Auth
}

func NewStatusSocket(hub *realtime.Hub, routes *services.RouteService, auth *middleware.Auth) *StatusSocket {
	return &StatusSocket{hub: hub, routes: routes, auth: auth}
}

// HandleRouteStatus authenticates with ?token=, sends the current status and
// then every status change until the client goes away.
func (s *StatusSocket) HandleRouteStatus(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authentication token"})
		return
	}
	claims, err := s.auth.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	routeID, ok := parseID(c, "id")
	if !ok {
		return
	}
	current, err := s.routes.Status(c.Request.Context(), routeID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	client := s.hub.Register(routeID)
	defer s.hub.Unregister(client)

	log := logrus.WithFields(logrus.Fields{"route_id": routeID, "user_id": claims.UserID})
	log.WithField("subscribers", s.hub.Subscribers(routeID)).Info("Route status subscriber connected")

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	if err := writeEvent(conn, *current); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				log.Info("Route status subscriber dropped")
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			log.Info("Route status subscriber disconnected")
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev realtime.StatusEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(ev)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		logrus.WithError(err).WithField("route_id", ev.RouteID).Warn("Failed to send route status")
	}
	return err
}

// readUntilClosed drains client frames so pongs and close frames are processed.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
