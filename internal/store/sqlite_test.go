package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/seren/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seren.db")
	repo, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return repo
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing user, got %+v", got)
	}

	now := time.Now()
	user := &domain.User{
		UserID:     "anon_0123456789abcdef0123456789abcdef",
		Username:   "calm-river-42",
		Tier:       domain.TierFree,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	got, err = repo.GetUser(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected user after upsert")
	}
	if got.Username != user.Username || got.Tier != domain.TierFree {
		t.Fatalf("unexpected user: %+v", got)
	}

	// Upsert again with a tier change; the row must update, not duplicate.
	user.Tier = domain.TierPremium
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("second UpsertUser failed: %v", err)
	}
	got, err = repo.GetUser(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Tier != domain.TierPremium {
		t.Fatalf("expected premium tier after upsert, got %s", got.Tier)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetSessionByConversation(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSessionByConversation failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing session, got %+v", got)
	}

	now := time.Now()
	session := &domain.Session{
		ID:             "sess-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Phase:          domain.PhasePreparation,
		Timing: domain.CueTiming{
			MinInterval: 500 * time.Millisecond,
			MaxInterval: 1500 * time.Millisecond,
			CuesPerSet:  5,
			TapInterval: 800 * time.Millisecond,
		},
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err = repo.GetSessionByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetSessionByConversation failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	if got.Phase != domain.PhasePreparation {
		t.Fatalf("expected Preparation, got %s", got.Phase)
	}
	if got.Timing.MinInterval != 500*time.Millisecond || got.Timing.CuesPerSet != 5 {
		t.Fatalf("timing not preserved: %+v", got.Timing)
	}
	if got.DistressStart != nil || got.CompletedAt != nil {
		t.Fatalf("nullable columns must read back as nil: %+v", got)
	}

	distress := 6.5
	completed := time.Now()
	got.Phase = domain.PhaseCompleted
	got.DistressStart = &distress
	got.CompletedSets = 3
	got.CompletedAt = &completed
	if err := repo.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err = repo.GetSessionByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetSessionByConversation failed: %v", err)
	}
	if got.Phase != domain.PhaseCompleted || got.CompletedSets != 3 {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.DistressStart == nil || *got.DistressStart != 6.5 {
		t.Fatalf("expected distress_start 6.5, got %v", got.DistressStart)
	}
	if got.CompletedAt == nil || got.CompletedAt.Unix() != completed.Unix() {
		t.Fatalf("expected completed_at %v, got %v", completed, got.CompletedAt)
	}
}

func TestUpdateSessionMissingRow(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)

	err := repo.UpdateSession(context.Background(), &domain.Session{
		ID: "ghost", ConversationID: "conv-x", Phase: domain.PhasePreparation,
	})
	if err == nil {
		t.Fatal("expected error updating a session that was never created")
	}
}

func TestMessagesOrderedWindow(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	// Same created_at second for all rows; ordering must come from seq,
	// not the timestamp.
	now := time.Now()
	for i := 0; i < 6; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msg := &domain.Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-1",
			Role:           role,
			Content:        fmt.Sprintf("turn %d", i),
			CreatedAt:      now,
		}
		if err := repo.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	msgs, err := repo.GetRecentMessages(ctx, "conv-1", 4)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected window of 4, got %d", len(msgs))
	}
	for i, msg := range msgs {
		want := fmt.Sprintf("turn %d", i+2)
		if msg.Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, msg.Content)
		}
	}

	other, err := repo.GetRecentMessages(ctx, "conv-other", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no messages for foreign conversation, got %d", len(other))
	}
}

func TestUsageCounters(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	count, err := repo.UsageCount(ctx, "user-1", "2026-09")
	if err != nil {
		t.Fatalf("UsageCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for fresh counter, got %d", count)
	}

	for i := 0; i < 3; i++ {
		if err := repo.IncrementUsage(ctx, "user-1", "2026-09"); err != nil {
			t.Fatalf("IncrementUsage failed: %v", err)
		}
	}
	if err := repo.IncrementUsage(ctx, "user-1", "2026-08"); err != nil {
		t.Fatalf("IncrementUsage failed: %v", err)
	}
	if err := repo.IncrementUsage(ctx, "user-2", "2026-09"); err != nil {
		t.Fatalf("IncrementUsage failed: %v", err)
	}

	count, err = repo.UsageCount(ctx, "user-1", "2026-09")
	if err != nil {
		t.Fatalf("UsageCount failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}

	pruned, err := repo.PruneUsageBefore(ctx, "2026-09")
	if err != nil {
		t.Fatalf("PruneUsageBefore failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned counter, got %d", pruned)
	}

	count, err = repo.UsageCount(ctx, "user-1", "2026-08")
	if err != nil {
		t.Fatalf("UsageCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected pruned period to read 0, got %d", count)
	}
	count, err = repo.UsageCount(ctx, "user-1", "2026-09")
	if err != nil {
		t.Fatalf("UsageCount failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("current period must survive the prune, got %d", count)
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.IncrementUsage(ctx, "user-1", "2026-09"); err != nil {
				t.Errorf("IncrementUsage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := repo.UsageCount(ctx, "user-1", "2026-09")
	if err != nil {
		t.Fatalf("UsageCount failed: %v", err)
	}
	if count != workers {
		t.Fatalf("expected %d after concurrent increments, got %d", workers, count)
	}
}
