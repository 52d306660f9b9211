package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spotthespy/game-engine/internal/auth"
	"github.com/spotthespy/game-engine/internal/catalog"
	"github.com/spotthespy/game-engine/internal/game"
	"github.com/spotthespy/game-engine/internal/invite"
	"github.com/spotthespy/game-engine/internal/metrics"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

const requestTimeout = 5 * time.Second

// PlayerTokenHeader carries the token issued on create and join.
const PlayerTokenHeader = "X-Player-Token"

// Handler holds HTTP handlers and dependencies
type Handler struct {
	games   *game.Service
	catalog catalog.Catalog
	invites *invite.Service
	broker  store.Broker
	metrics *metrics.Metrics
	tokens  *auth.Tokens
	apiKey  string
	logger  *logger.Logger
}

// Deps are the collaborators of a Handler. Metrics is optional. Without
// Tokens the player_id a caller sends is trusted as-is, so anyone holding
// the API key can read any player's secret.
type Deps struct {
	Games   *game.Service
	Catalog catalog.Catalog
	Invites *invite.Service
	Broker  store.Broker
	Metrics *metrics.Metrics
	Tokens  *auth.Tokens
	APIKey  string
}

// NewHandler creates a new HTTP handler
func NewHandler(d Deps, log *logger.Logger) *Handler {
	return &Handler{
		games:   d.Games,
		catalog: d.Catalog,
		invites: d.Invites,
		broker:  d.Broker,
		metrics: d.Metrics,
		tokens:  d.Tokens,
		apiKey:  d.APIKey,
		logger:  log.With(logger.F("component", "http")),
	}
}

// Routes sets up all HTTP routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(APIKeyMiddleware(h.apiKey))

		// The websocket stream is long-lived and stays outside the timeout group.
		r.Get("/sessions/{id}/ws", h.Subscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))

			r.Get("/catalog", h.ListCatalog)

			r.Post("/sessions", h.CreateSession)
			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/{id}", h.GetSession)
			r.Post("/sessions/{id}/join", h.JoinSession)
			r.Post("/sessions/{id}/leave", h.LeaveSession)
			r.Post("/sessions/{id}/start", h.StartRound)
			r.Post("/sessions/{id}/vote", h.CastVote)
			r.Post("/sessions/{id}/advance", h.AdvanceSession)
			r.Post("/sessions/{id}/restart", h.RestartSession)
			r.Post("/sessions/{id}/close", h.CloseSession)
			r.Post("/sessions/{id}/invite", h.CreateInvite)
			r.Get("/sessions/{id}/invite/qr.png", h.InviteQR)

			r.Post("/device-games", h.CreateDeviceGame)
			r.Get("/device-games/{id}", h.GetDeviceGame)
			r.Get("/device-games/{id}/seats/{seat}", h.RevealSeat)
			r.Post("/device-games/{id}/end", h.EndDeviceGame)

			r.Get("/players/{id}/session", h.GetPlayerSession)
		})
	})

	// Health check
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	return r
}

// Health handles health check requests
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListCatalog handles GET /v1/catalog?category=
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	entries, err := h.catalog.ListEntries(ctx)
	if err != nil {
		h.logger.Error("Failed to list catalog", logger.Err(err), logger.F("request_id", GetRequestID(r.Context())))
		respondError(w, http.StatusServiceUnavailable, "unavailable", "catalog unavailable")
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		entries = catalog.FilterCategory(entries, category)
	}
	if entries == nil {
		entries = []types.CatalogEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	sess, err := h.games.Create(ctx, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.issueToken(w, sess.ID, sess.Players[0].ID)
	respondJSON(w, http.StatusCreated, game.BuildView(sess, req.PlayerID))
}

// ListSessions handles GET /v1/sessions?limit=&offset=
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid offset", err.Error())
		return
	}

	resp, err := h.games.List(ctx, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /v1/sessions/{id}?player_id=
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	playerID := r.URL.Query().Get("player_id")
	if !h.authorized(r, id, playerID) {
		respondError(w, http.StatusUnauthorized, "invalid_token", "player token required")
		return
	}

	view, err := h.games.View(ctx, id, playerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// JoinSession handles POST /v1/sessions/{id}/join
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req types.PlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	sess, err := h.games.Join(ctx, chi.URLParam(r, "id"), req.PlayerID, req.Name)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.issueToken(w, sess.ID, req.PlayerID)
	respondJSON(w, http.StatusOK, game.BuildView(sess, req.PlayerID))
}

// LeaveSession handles POST /v1/sessions/{id}/leave
func (h *Handler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(ctx context.Context, id string, req types.PlayerRequest) (*types.Session, error) {
		return h.games.Leave(ctx, id, req.PlayerID)
	})
}

// StartRound handles POST /v1/sessions/{id}/start
func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(ctx context.Context, id string, req types.PlayerRequest) (*types.Session, error) {
		return h.games.Start(ctx, id, req.PlayerID)
	})
}

// AdvanceSession handles POST /v1/sessions/{id}/advance (host skips the timer)
func (h *Handler) AdvanceSession(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(ctx context.Context, id string, req types.PlayerRequest) (*types.Session, error) {
		return h.games.AdvanceNow(ctx, id, req.PlayerID)
	})
}

// RestartSession handles POST /v1/sessions/{id}/restart
func (h *Handler) RestartSession(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(ctx context.Context, id string, req types.PlayerRequest) (*types.Session, error) {
		return h.games.Restart(ctx, id, req.PlayerID)
	})
}

// CloseSession handles POST /v1/sessions/{id}/close
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, func(ctx context.Context, id string, req types.PlayerRequest) (*types.Session, error) {
		return h.games.Close(ctx, id, req.PlayerID)
	})
}

// CastVote handles POST /v1/sessions/{id}/vote
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req types.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !h.authorized(r, chi.URLParam(r, "id"), req.PlayerID) {
		respondError(w, http.StatusUnauthorized, "invalid_token", "player token required")
		return
	}

	sess, err := h.games.CastVote(ctx, chi.URLParam(r, "id"), req.PlayerID, req.AccusedID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, game.BuildView(sess, req.PlayerID))
}

// CreateDeviceGame handles POST /v1/device-games
func (h *Handler) CreateDeviceGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req types.CreateDeviceGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	g, err := h.games.CreateDeviceGame(ctx, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.issueToken(w, g.ID, g.HostID)
	respondJSON(w, http.StatusCreated, game.DeviceView(g))
}

// GetDeviceGame handles GET /v1/device-games/{id}
func (h *Handler) GetDeviceGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	g, err := h.games.DeviceGame(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, game.DeviceView(g))
}

// RevealSeat handles GET /v1/device-games/{id}/seats/{seat}. Secrets are
// shown on the host's device, so the host's token is required.
func (h *Handler) RevealSeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	seat, err := strconv.Atoi(chi.URLParam(r, "seat"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid seat", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	g, err := h.games.DeviceGame(ctx, id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if !h.authorized(r, id, g.HostID) {
		respondError(w, http.StatusUnauthorized, "invalid_token", "player token required")
		return
	}

	resp, err := h.games.RevealSeat(ctx, id, seat)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// EndDeviceGame handles POST /v1/device-games/{id}/end
func (h *Handler) EndDeviceGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req types.PlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if !h.authorized(r, id, req.PlayerID) {
		respondError(w, http.StatusUnauthorized, "invalid_token", "player token required")
		return
	}

	if err := h.games.EndDeviceGame(ctx, id, req.PlayerID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPlayerSession handles GET /v1/players/{id}/session
func (h *Handler) GetPlayerSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	playerID := chi.URLParam(r, "id")
	sessionID, err := h.games.PlayerSession(ctx, playerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, types.PlayerSessionResponse{PlayerID: playerID, SessionID: sessionID})
}

// CreateInvite handles POST /v1/sessions/{id}/invite
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sess, err := h.games.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if !sess.Phase.Active() {
		h.respondServiceError(w, r, game.ErrSessionNotJoinable)
		return
	}

	resp, err := h.invites.Create(ctx, sess.ID)
	if err != nil {
		h.logger.Error("Failed to create invite", logger.F("session_id", sess.ID), logger.Err(err))
		respondError(w, http.StatusServiceUnavailable, "unavailable", "failed to create invite")
		return
	}
	if resp.QRCodeURL == "" {
		resp.QRCodeURL = "/v1/sessions/" + sess.ID + "/invite/qr.png"
	}
	respondJSON(w, http.StatusCreated, resp)
}

// InviteQR handles GET /v1/sessions/{id}/invite/qr.png
func (h *Handler) InviteQR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sess, err := h.games.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	png, err := h.invites.QR(sess.ID)
	if err != nil {
		h.logger.Error("Failed to render QR code", logger.F("session_id", sess.ID), logger.Err(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type playerOp func(ctx context.Context, id string, req types.PlayerRequest) (*types.Session, error)

// playerAction decodes a PlayerRequest, runs op and answers with the
// caller's view of the resulting session.
func (h *Handler) playerAction(w http.ResponseWriter, r *http.Request, op playerOp) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req types.PlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if !h.authorized(r, id, req.PlayerID) {
		respondError(w, http.StatusUnauthorized, "invalid_token", "player token required")
		return
	}

	sess, err := op(ctx, id, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, game.BuildView(sess, req.PlayerID))
}

// authorized reports whether the request may act as playerID in the session.
// Anonymous reads carry no player and need no token.
func (h *Handler) authorized(r *http.Request, sessionID, playerID string) bool {
	if h.tokens == nil || playerID == "" {
		return true
	}
	token := r.Header.Get(PlayerTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("player_token")
	}
	return h.tokens.Verify(token, playerID, sessionID) == nil
}

func (h *Handler) issueToken(w http.ResponseWriter, sessionID, playerID string) {
	if h.tokens == nil {
		return
	}
	token, err := h.tokens.Issue(playerID, sessionID)
	if err != nil {
		h.logger.Error("Failed to issue player token", logger.F("session_id", sessionID), logger.Err(err))
		return
	}
	w.Header().Set(PlayerTokenHeader, token)
}

// respondServiceError maps a game error to its HTTP status.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := game.KindOf(err)
	status := statusFor(kind)

	code, message := "internal_error", "internal error"
	var gerr *game.Error
	if errors.As(err, &gerr) {
		code, message = gerr.Code, gerr.Message
		if kind == game.KindValidation && gerr.Err != nil {
			message = gerr.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			logger.F("method", r.Method),
			logger.F("path", r.URL.Path),
			logger.F("request_id", GetRequestID(r.Context())),
			logger.Err(err))
	}
	respondError(w, status, code, message)
}

func statusFor(kind game.Kind) int {
	switch kind {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindForbidden:
		return http.StatusForbidden
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, errorMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.ErrorResponse{
		Error:   errorMsg,
		Message: message,
	})
}
