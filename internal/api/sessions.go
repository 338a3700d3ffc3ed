package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/seren/internal/domain"
	"github.com/ashureev/seren/internal/identity"
	"github.com/ashureev/seren/internal/session"
	"github.com/ashureev/seren/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize is the maximum allowed request body size (64KB).
// Conversation turns are short; anything larger is abuse.
const maxRequestBodySize = 64 << 10

// SessionHandler exposes the guided-session lifecycle over HTTP. The
// handlers are thin: validation and status mapping only, everything else
// lives in the session service.
type SessionHandler struct {
	svc         *session.Service
	repo        store.Repository
	rateLimiter *RateLimiter
}

// NewSessionHandler creates the session handler.
func NewSessionHandler(svc *session.Service, repo store.Repository, rl *RateLimiter) *SessionHandler {
	return &SessionHandler{svc: svc, repo: repo, rateLimiter: rl}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/{conversationID}", h.Get)
		r.Post("/{conversationID}/messages", h.SendMessage)
		r.Patch("/{conversationID}/phase", h.UpdatePhase)
		r.Post("/{conversationID}/complete", h.Complete)
	})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type updatePhaseRequest struct {
	Phase         string   `json:"phase"`
	DistressLevel *float64 `json:"distress_level,omitempty"`
}

type completeRequest struct {
	DistressEnd *float64 `json:"distress_end,omitempty"`
}

// Start handles POST /api/sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Start(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, result)
}

// SendMessage handles POST /api/sessions/{conversationID}/messages.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	slog.Info("Session turn request",
		"user_id", user.UserID,
		"conversation_id", conversationID,
		"message_length", len(req.Message))

	result, err := h.svc.SendMessage(r.Context(), user, conversationID, req.Message)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// UpdatePhase handles PATCH /api/sessions/{conversationID}/phase.
func (h *SessionHandler) UpdatePhase(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req updatePhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phase == "" {
		Error(w, http.StatusBadRequest, "phase is required")
		return
	}

	updated, err := h.svc.UpdatePhase(r.Context(), user, conversationID, domain.Phase(req.Phase), req.DistressLevel)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, updated)
}

// Complete handles POST /api/sessions/{conversationID}/complete.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	completed, err := h.svc.Complete(r.Context(), user, conversationID, req.DistressEnd)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, completed)
}

// Get handles GET /api/sessions/{conversationID}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	sess, msgs, err := h.svc.Get(r.Context(), user, conversationID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session":  sess,
		"messages": msgs,
	})
}

// caller resolves the authenticated user and applies the request throttle.
func (h *SessionHandler) caller(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return nil, false
	}

	if !h.rateLimiter.Allow(user.UserID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return nil, false
	}

	return user, true
}

// writeServiceError maps orchestrator error conditions to status codes.
func (h *SessionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrQuotaExceeded):
		Error(w, http.StatusTooManyRequests, "monthly quota exceeded")
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionCompleted):
		Error(w, http.StatusConflict, "session already completed")
	case errors.Is(err, session.ErrInvalidSession):
		Error(w, http.StatusBadRequest, "invalid session operation")
	case errors.Is(err, session.ErrUpstreamUnavailable):
		Error(w, http.StatusBadGateway, "assistant temporarily unavailable, please retry")
	default:
		slog.Error("Unhandled session service error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
