package handler

import (
	"log"
	"net/http"
	"strings"

	"diffsync-server/internal/websocket"
	"diffsync-server/pkg/jwt"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager      *websocket.Manager
	jwtSecret    string
	authRequired bool
	upgrader     ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, jwtSecret string, authRequired bool, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:      manager,
		jwtSecret:    jwtSecret,
		authRequired: authRequired,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	userID := "anonymous"
	switch {
	case token != "":
		claims, err := jwt.ValidateToken(token, h.jwtSecret)
		if err != nil {
			log.Printf("[WebSocket] Token validation failed: %v", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	case h.authRequired:
		log.Printf("[WebSocket] Missing authorization token")
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), userID, conn, h.manager)
	log.Printf("[WebSocket] Connection %s upgraded for user: %s", client.ID, userID)

	h.manager.Serve(client)
}
