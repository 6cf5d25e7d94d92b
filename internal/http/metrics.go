package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

type MetricsHistoryResponse struct {
	Items []models.ServerMetricSample `json:"items"`
}

func (s *Server) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), services.DefaultHistoryLimit)
	items, err := s.Service.MetricsHistory(r.Context(), CurrentActor(r), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MetricsHistoryResponse{Items: items})
}

// EventsSocket upgrades admins to the live moderation and metrics feed.
// Browsers cannot set headers on WebSocket requests, so the access token
// comes in the token query parameter.
func (s *Server) EventsSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	actor, err := s.Service.Authenticate(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !actor.IsAdmin() {
		WriteError(w, http.StatusForbidden, "Admin privileges required")
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.Hub.Serve(s.baseCtx, conn)
}
