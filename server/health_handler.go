package server

import (
	"context"
	"net/http"
	"time"

	"Bt1QMedia/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// healthHandler reports store and cache reachability. A failing store is 503;
// a failing cache only degrades, since reads fall back to the store.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]interface{}{"status": "ok", "store": "ok", "cache": "disabled"}
	if err := s.store.Ping(ctx); err != nil {
		logger.Error("health: store unreachable", logger.ErrorField(err))
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		body["store"] = "error"
	}
	if s.cache != nil {
		body["cache"] = "ok"
		if err := s.cache.Ping(ctx); err != nil {
			logger.Warn("health: cache unreachable", logger.ErrorField(err))
			body["cache"] = "error"
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
		}
	}
	if s.hub != nil {
		body["listeners"] = s.hub.ClientCount()
	}
	writeJSON(w, status, body)
}

// catalogEventsHandler upgrades to a websocket that receives content_added and content_deleted events.
func (s *Server) catalogEventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Catalog events are disabled")
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	client := s.hub.Attach(r.Context(), conn)
	logger.Debug("catalog listener attached", logger.String("clientId", client.ID))
}
