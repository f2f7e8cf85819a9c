package notify

import (
	"log/slog"
	"sync"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Notifier shows a transient, auto-dismissing message to the user. It must
// never block and must never be treated as having handled the underlying
// error.
type Notifier interface {
	Notify(level Level, message string)
}

type SlogNotifier struct {
	Log *slog.Logger
}

func (n *SlogNotifier) Notify(level Level, message string) {
	l := n.Log
	if l == nil {
		l = slog.Default()
	}
	switch level {
	case LevelWarn:
		l.Warn("notification", "msg", message)
	case LevelError:
		l.Error("notification", "msg", message)
	default:
		l.Info("notification", "msg", message, "level", string(level))
	}
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []string
	Levels   []Level
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, message)
	r.Levels = append(r.Levels, level)
}

func (r *Recorder) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Messages))
	copy(out, r.Messages)
	return out
}

func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1]
}
