package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/spotthespy/game-engine/internal/game"
	"github.com/spotthespy/game-engine/internal/notify"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscribe handles GET /v1/sessions/{id}/ws?player_id=
//
// The player is marked connected for as long as the socket is open. The
// first frame is the player's view; after that every committed change is
// pushed as a delta, followed by a fresh view whenever the phase changes so
// the player learns their new secret.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "player_id is required")
		return
	}
	if !h.authorized(r, id, playerID) {
		respondError(w, http.StatusUnauthorized, "invalid_token", "player token required")
		return
	}

	// Detached from the request so the subscription outlives the handshake.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	deltas, err := notify.Subscribe(ctx, h.broker, id)
	if err != nil {
		h.respondServiceError(w, r, game.ErrUnavailable)
		return
	}
	sess, err := h.games.SetPresence(ctx, id, playerID, true)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", logger.F("session_id", id), logger.Err(err))
		h.disconnect(id, playerID)
		return
	}
	defer conn.Close()

	h.metrics.SubscriberAdded()
	defer h.metrics.SubscriberRemoved()
	defer h.disconnect(id, playerID)

	log := h.logger.With(logger.F("session_id", id), logger.F("player_id", playerID))
	log.Info("Subscriber connected")
	defer log.Info("Subscriber disconnected")

	go h.readPump(conn, cancel)

	view := game.BuildView(sess, playerID)
	if err := writeMessage(conn, types.StreamMessage{Type: "view", View: &view}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case delta, ok := <-deltas:
			if !ok {
				return
			}
			if err := writeMessage(conn, types.StreamMessage{Type: "delta", Delta: &delta}); err != nil {
				return
			}
			if !phaseChanged(delta) {
				continue
			}
			fresh, err := h.games.View(ctx, id, playerID)
			if err != nil {
				log.Warn("Failed to refresh view", logger.Err(err))
				continue
			}
			if err := writeMessage(conn, types.StreamMessage{Type: "view", View: fresh}); err != nil {
				return
			}
			if fresh.Phase == types.PhaseClosed {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
		}
	}
}

// readPump drains client frames and cancels the stream once the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
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

func (h *Handler) disconnect(id, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := h.games.SetPresence(ctx, id, playerID, false); err != nil && game.KindOf(err) == game.KindUnavailable {
		h.logger.Warn("Failed to record disconnect", logger.F("session_id", id), logger.F("player_id", playerID), logger.Err(err))
	}
}

func writeMessage(conn *websocket.Conn, msg types.StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func phaseChanged(d types.Delta) bool {
	for _, f := range d.Changed {
		if f == notify.FieldPhase {
			return true
		}
	}
	return false
}
