package observability

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeCycle       EventType = "cycle"
	EventTypeScan        EventType = "scan"
	EventTypeGoal        EventType = "goal"
	EventTypeTransition  EventType = "transition"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeRecovery    EventType = "recovery"
	EventTypeNotify      EventType = "notify"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType
	GoalID    int64
	Step      int
	Message   string
	Data      any
	Timestamp time.Time
}

// Logger handles structured logging. The embedded zap logger is available for
// ad-hoc messages; Log emits typed events.
type Logger struct {
	*zap.Logger
}

// NewLogger builds a zap logger writing to stderr. Format is "json",
// "console", or "auto" (console when stderr is a terminal).
func NewLogger(level, format string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch format {
	case "", "auto":
		format = "json"
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		}
	case "json", "console":
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.Encoding = format
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{"stderr"}
	config.Sampling = nil

	z, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &Logger{Logger: z}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap adapts an existing zap logger, e.g. one built on zaptest/observer.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{Logger: z}
}

// Log emits evt at info level.
func (l *Logger) Log(evt Event) {
	l.Info(eventMessage(evt), eventFields(evt)...)
}

// LogError emits evt at error level with err attached.
func (l *Logger) LogError(evt Event, err error) {
	l.Error(eventMessage(evt), append(eventFields(evt), zap.Error(err))...)
}

func eventMessage(evt Event) string {
	if evt.Message != "" {
		return evt.Message
	}
	return string(evt.Type)
}

func eventFields(evt Event) []zap.Field {
	fields := []zap.Field{zap.String("type", string(evt.Type))}
	if evt.GoalID != 0 {
		fields = append(fields, zap.Int64("goal_id", evt.GoalID))
	}
	if evt.Step != 0 {
		fields = append(fields, zap.Int("step", evt.Step))
	}
	if evt.Data != nil {
		fields = append(fields, zap.Any("data", evt.Data))
	}
	if !evt.Timestamp.IsZero() {
		fields = append(fields, zap.Time("event_time", evt.Timestamp))
	}
	return fields
}

// Helper methods for common events

func (l *Logger) LogTransition(goalID int64, from, to, reason string) {
	l.Log(Event{
		Type:    EventTypeTransition,
		GoalID:  goalID,
		Message: "goal transition",
		Data: map[string]string{
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

func (l *Logger) LogStep(goalID int64, step int, action string, success bool, errMsg string) {
	l.Log(Event{
		Type:    EventTypeStep,
		GoalID:  goalID,
		Step:    step,
		Message: "step executed",
		Data: map[string]any{
			"action":  action,
			"success": success,
			"error":   errMsg,
		},
	})
}

func (l *Logger) LogPolicyCheck(goalID int64, action, effect, reason string) {
	l.Log(Event{
		Type:    EventTypePolicyCheck,
		GoalID:  goalID,
		Message: "policy evaluated",
		Data: map[string]string{
			"action": action,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Debug("heartbeat", zap.String("type", string(EventTypeHeartbeat)))
}
