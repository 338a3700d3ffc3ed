// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/seren/internal/domain"
)

// Repository defines the interface for persisting users, sessions,
// conversation history, and usage counters.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when the
	// user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateSession persists a new exercise session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSessionByConversation retrieves the session owning a conversation.
	// Returns (nil, nil) when no such session exists. Ownership is the
	// caller's check: the returned session carries its UserID.
	GetSessionByConversation(ctx context.Context, conversationID string) (*domain.Session, error)

	// UpdateSession persists mutated session state (phase, ratings,
	// completed sets, completion timestamp).
	UpdateSession(ctx context.Context, session *domain.Session) error

	// AppendMessage appends one message to a conversation's history.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// GetRecentMessages returns up to limit most recent messages for a
	// conversation, in chronological order.
	GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	// UsageCount returns the number of provider calls consumed by a user in
	// the given period ("YYYY-MM").
	UsageCount(ctx context.Context, userID, period string) (int, error)

	// IncrementUsage adds one provider call to a user's counter for the
	// given period.
	IncrementUsage(ctx context.Context, userID, period string) error

	// PruneUsageBefore deletes usage counters for periods older than the
	// given period. Returns the number of rows removed.
	PruneUsageBefore(ctx context.Context, period string) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
