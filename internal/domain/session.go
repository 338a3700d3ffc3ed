package domain

import (
	"time"
)

// CueTiming holds the fixed stimulation timing parameters for a session.
// Copied from configuration at session creation; orchestration logic never
// mutates it.
type CueTiming struct {
	MinInterval time.Duration `json:"min_interval"`
	MaxInterval time.Duration `json:"max_interval"`
	CuesPerSet  int           `json:"cues_per_set"`
	TapInterval time.Duration `json:"tap_interval"`
}

// Session represents one guided exercise instance.
type Session struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"-"`
	Phase          Phase      `json:"phase"`
	Timing         CueTiming  `json:"timing"`
	DistressStart  *float64   `json:"distress_start,omitempty"`
	DistressEnd    *float64   `json:"distress_end,omitempty"`
	CompletedSets  int        `json:"completed_sets"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"-"`
	UpdatedAt      time.Time  `json:"-"`
}

// IsCompleted reports whether the session has reached its terminal phase.
func (s *Session) IsCompleted() bool {
	return IsTerminal(s.Phase)
}

// MarkCompleted moves the session to the terminal phase and stamps the
// completion time. The timestamp is set exactly once; repeated calls keep
// the first value.
func (s *Session) MarkCompleted(now time.Time) {
	s.Phase = PhaseCompleted
	if s.CompletedAt == nil {
		t := now
		s.CompletedAt = &t
	}
}
