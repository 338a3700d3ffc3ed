// Package transcript provides asynchronous NDJSON logging of session
// conversations for later review.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one logged conversation event.
type Event struct {
	Timestamp      string         `json:"ts"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Phase          string         `json:"phase,omitempty"`
	Content        string         `json:"content"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Logger records conversation events. Log is fire-and-forget: a full queue
// drops the event rather than blocking a turn.
type Logger interface {
	Log(event Event)
	Close() error
}

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// NewLogger creates a transcript logger. When disabled, a no-op logger is
// returned.
func NewLogger(cfg Config, log *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return noopLogger{}, nil
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global transcript directory: %w", err)
		}
	}

	l := &fileLogger{
		cfg:   cfg,
		log:   log,
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l, nil
}

type fileLogger struct {
	cfg       Config
	log       *slog.Logger
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Log enqueues an event, dropping it if the queue is full.
func (l *fileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case l.queue <- event:
	default:
		l.log.Warn("transcript queue full, dropping event",
			"user_id", event.UserID,
			"conversation_id", event.ConversationID)
	}
}

// Close stops the drain goroutine after flushing queued events.
func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.queue)
		<-l.done
	})
	return nil
}

func (l *fileLogger) drain() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *fileLogger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.log.Warn("failed to marshal transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	userDir := filepath.Join(l.cfg.Dir, event.UserID)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		l.log.Warn("failed to create transcript user directory", "error", err, "user_id", event.UserID)
		return
	}

	path := filepath.Join(userDir, event.ConversationID+".ndjson")
	if err := appendLine(path, line); err != nil {
		l.log.Warn("failed to append transcript line", "error", err, "path", path)
	}

	if l.cfg.GlobalEnabled {
		if err := appendLine(l.cfg.GlobalPath, line); err != nil {
			l.log.Warn("failed to append global transcript line", "error", err, "path", l.cfg.GlobalPath)
		}
	}
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close transcript file", "error", closeErr, "path", path)
		}
	}()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write transcript line: %w", err)
	}
	return nil
}

// Noop returns a logger that discards everything.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Log(Event) {}

func (noopLogger) Close() error { return nil }
