// Package session implements the guided-exercise orchestrator: the
// lifecycle operations over sessions, their invariants, and the wiring
// between the conversation store, the quota gate, and the completion
// provider.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/seren/internal/domain"
	"github.com/ashureev/seren/internal/guidance"
	"github.com/ashureev/seren/internal/provider"
	"github.com/ashureev/seren/internal/quota"
	"github.com/ashureev/seren/internal/store"
	"github.com/ashureev/seren/internal/transcript"
	"github.com/google/uuid"
)

// openingUtterance is the fixed user turn that seeds the opening prompt of
// every new session. It is sent to the provider but never persisted.
const openingUtterance = "I'm ready to begin."

// Service orchestrates session lifecycle operations. Turn processing is
// single-writer per conversation.
type Service struct {
	repo       store.Repository
	completer  provider.Completer
	gate       quota.Gate
	deriver    *guidance.Deriver
	transcript transcript.Logger

	historyLimit int
	timing       domain.CueTiming

	locks *conversationLocks
}

// Config holds orchestrator configuration.
type Config struct {
	// HistoryLimit bounds how many recent messages form the provider
	// context window.
	HistoryLimit int

	// Timing is copied onto every new session.
	Timing domain.CueTiming
}

// NewService creates the orchestrator. A nil transcript logger disables
// transcript recording.
func NewService(repo store.Repository, completer provider.Completer, gate quota.Gate, deriver *guidance.Deriver, tl transcript.Logger, cfg Config) *Service {
	if deriver == nil {
		deriver = guidance.NewDeriver(nil)
	}
	if tl == nil {
		tl = transcript.Noop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	return &Service{
		repo:         repo,
		completer:    completer,
		gate:         gate,
		deriver:      deriver,
		transcript:   tl,
		historyLimit: cfg.HistoryLimit,
		timing:       cfg.Timing,
		locks:        newConversationLocks(),
	}
}

// TurnResult is the fully-populated outcome of Start and SendMessage.
type TurnResult struct {
	Session  *domain.Session  `json:"session"`
	Message  *domain.Message  `json:"message"`
	Guidance *domain.Guidance `json:"guidance"`
}

// Start creates a new session for the user and produces its opening
// assistant message.
//
// Quota is consumed before the provider call and is not refunded when the
// call fails; in that case no session is created at all.
func (s *Service) Start(ctx context.Context, user *domain.User) (*TurnResult, error) {
	if err := s.gateAndConsume(ctx, user); err != nil {
		return nil, err
	}

	prompt := guidance.Compose(domain.PhasePreparation, 0)
	raw, err := s.completer.Complete(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: prompt},
		{Role: provider.RoleUser, Content: openingUtterance},
	})
	if err != nil {
		slog.Error("Provider call failed on session start", "user_id", user.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	reply := guidance.Interpret(raw, domain.PhasePreparation, 0)

	now := time.Now()
	session := &domain.Session{
		ID:             uuid.NewString(),
		ConversationID: uuid.NewString(),
		UserID:         user.UserID,
		Phase:          domain.PhasePreparation,
		Timing:         s.timing,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	msg, err := s.appendMessage(ctx, session.ConversationID, domain.RoleAssistant, reply.Text)
	if err != nil {
		return nil, err
	}

	s.logTranscript(session, domain.RoleAssistant, reply.Text)
	slog.Info("Session started",
		"user_id", user.UserID,
		"session_id", session.ID,
		"conversation_id", session.ConversationID)

	g := reply.Guidance
	return &TurnResult{Session: session, Message: msg, Guidance: &g}, nil
}

// SendMessage processes one user turn: it builds the phase- and turn-aware
// context window, calls the provider, interprets the reply, and applies
// auto-advancement if the interpreted guidance suggests a legal forward
// move.
//
// The user and assistant messages are persisted together only after the
// provider call succeeds, so a provider failure never leaves a partial
// turn in the history.
func (s *Service) SendMessage(ctx context.Context, user *domain.User, conversationID, text string) (*TurnResult, error) {
	release := s.locks.acquire(conversationID)
	defer release()

	if err := s.gateQuota(ctx, user); err != nil {
		return nil, err
	}

	session, err := s.ownedSession(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted() {
		return nil, ErrSessionCompleted
	}

	if err := s.consumeQuota(ctx, user); err != nil {
		return nil, err
	}

	history, err := s.repo.GetRecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// The incoming message joins the context window and turn count before
	// it is persisted; persistence waits for the provider so a failed call
	// leaves no half-recorded turn.
	pending := domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        text,
	}
	window := append(history, pending)

	turnCount := s.deriver.TurnCount(window)
	prompt := guidance.Compose(session.Phase, turnCount)

	raw, err := s.completer.Complete(ctx, providerWindow(prompt, window))
	if err != nil {
		slog.Error("Provider call failed on turn",
			"user_id", user.UserID,
			"conversation_id", conversationID,
			"phase", session.Phase,
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	reply := guidance.Interpret(raw, session.Phase, turnCount)

	if _, err := s.appendMessage(ctx, conversationID, domain.RoleUser, text); err != nil {
		return nil, err
	}
	msg, err := s.appendMessage(ctx, conversationID, domain.RoleAssistant, reply.Text)
	if err != nil {
		return nil, err
	}

	s.logTranscript(session, domain.RoleUser, text)
	s.logTranscript(session, domain.RoleAssistant, reply.Text)

	s.applyGuidance(session, reply.Guidance)

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	g := reply.Guidance
	return &TurnResult{Session: session, Message: msg, Guidance: &g}, nil
}

// applyGuidance mutates the session from interpreted guidance. Automatic
// advancement only ever moves forward; a backward or unrecognized
// suggestion is ignored.
func (s *Service) applyGuidance(session *domain.Session, g domain.Guidance) {
	if g.ShowCue {
		session.CompletedSets++
	}

	if g.SuggestedNextPhase == nil {
		return
	}
	next := *g.SuggestedNextPhase
	if !domain.IsForwardMove(session.Phase, next) {
		slog.Debug("Ignoring non-forward phase suggestion",
			"session_id", session.ID,
			"current", session.Phase,
			"suggested", next)
		return
	}

	slog.Info("Auto-advancing session phase",
		"session_id", session.ID,
		"from", session.Phase,
		"to", next)
	if next == domain.PhaseCompleted {
		session.MarkCompleted(time.Now())
		return
	}
	session.Phase = next
}

// UpdatePhase is the explicit operator/user override. It bypasses the
// forward-only guard and is authoritative regardless of ordering.
//
// A distress rating is recorded as the start rating only when the session
// is currently in Preparation, and as the end rating only when it is in
// Integration; in any other phase the rating is silently ignored.
func (s *Service) UpdatePhase(ctx context.Context, user *domain.User, conversationID string, phase domain.Phase, distress *float64) (*domain.Session, error) {
	if _, ok := domain.ParsePhase(string(phase)); !ok {
		return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidSession, phase)
	}

	release := s.locks.acquire(conversationID)
	defer release()

	session, err := s.ownedSession(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}

	if distress != nil {
		switch session.Phase {
		case domain.PhasePreparation:
			session.DistressStart = distress
		case domain.PhaseIntegration:
			session.DistressEnd = distress
		default:
			slog.Debug("Distress rating ignored outside rating phases",
				"session_id", session.ID,
				"phase", session.Phase)
		}
	}

	if phase == domain.PhaseCompleted {
		session.MarkCompleted(time.Now())
	} else {
		session.Phase = phase
	}

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	slog.Info("Session phase updated",
		"user_id", user.UserID,
		"session_id", session.ID,
		"phase", session.Phase)
	return session, nil
}

// Complete marks the session terminal and records the end rating. The
// completion timestamp is stamped on the first call only; repeat calls are
// safe and keep the original timestamp.
func (s *Service) Complete(ctx context.Context, user *domain.User, conversationID string, distressEnd *float64) (*domain.Session, error) {
	release := s.locks.acquire(conversationID)
	defer release()

	session, err := s.ownedSession(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}

	if distressEnd != nil {
		session.DistressEnd = distressEnd
	}
	session.MarkCompleted(time.Now())

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	slog.Info("Session completed",
		"user_id", user.UserID,
		"session_id", session.ID,
		"completed_at", session.CompletedAt)
	return session, nil
}

// Get returns the session and its recent history for read-back.
func (s *Service) Get(ctx context.Context, user *domain.User, conversationID string) (*domain.Session, []domain.Message, error) {
	session, err := s.ownedSession(ctx, user, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.GetRecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}
	return session, msgs, nil
}

// ownedSession loads a session and verifies ownership. A missing session
// and a foreign session produce the same caller-visible error.
func (s *Service) ownedSession(ctx context.Context, user *domain.User, conversationID string) (*domain.Session, error) {
	session, err := s.repo.GetSessionByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.UserID != user.UserID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) gateQuota(ctx context.Context, user *domain.User) error {
	ok, err := s.gate.HasRemaining(ctx, user)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *Service) consumeQuota(ctx context.Context, user *domain.User) error {
	if err := s.gate.Consume(ctx, user); err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	return nil
}

func (s *Service) gateAndConsume(ctx context.Context, user *domain.User) error {
	if err := s.gateQuota(ctx, user); err != nil {
		return err
	}
	return s.consumeQuota(ctx, user)
}

func (s *Service) appendMessage(ctx context.Context, conversationID, role, content string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append %s message: %w", role, err)
	}
	return msg, nil
}

func (s *Service) logTranscript(session *domain.Session, role, content string) {
	s.transcript.Log(transcript.Event{
		UserID:         session.UserID,
		ConversationID: session.ConversationID,
		Role:           role,
		Phase:          string(session.Phase),
		Content:        content,
	})
}

// providerWindow assembles the provider context: the composed instruction
// followed by the bounded history.
func providerWindow(prompt string, history []domain.Message) []provider.Message {
	msgs := make([]provider.Message, 0, len(history)+1)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: prompt})
	for _, m := range history {
		role := provider.RoleUser
		if m.Role == domain.RoleAssistant {
			role = provider.RoleAssistant
		}
		msgs = append(msgs, provider.Message{Role: role, Content: m.Content})
	}
	return msgs
}
