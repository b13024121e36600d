package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_LogEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := Wrap(zap.New(core))

	l.LogTransition(7, "PENDING", "IN_PROGRESS", "selected")
	l.LogError(Event{Type: EventTypeStep, GoalID: 7, Step: 2, Message: "step failed"}, errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "goal transition", entries[0].Message)
	assert.Equal(t, int64(7), entries[0].ContextMap()["goal_id"])
	assert.Equal(t, "transition", entries[0].ContextMap()["type"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, int64(2), entries[1].ContextMap()["step"])
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", "json")
	require.NoError(t, err)
	assert.NotNil(t, l.Logger)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestSystemStatus(t *testing.T) {
	s := NewSystemStatus()
	s.SetPhase(PhaseExecuting)
	s.SetActiveGoal(3, "Add documentation")
	s.CycleDone()

	snap := s.Snapshot()
	assert.Equal(t, PhaseExecuting, snap.Phase)
	assert.Equal(t, int64(3), snap.ActiveGoalID)
	assert.Equal(t, int64(1), snap.Cycles)

	s.SetPhase(PhaseIdle)
	snap = s.Snapshot()
	assert.Zero(t, snap.ActiveGoalID)
	assert.Empty(t, snap.ActiveGoal)
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := StatusSnapshot{
		Phase:         PhaseExecuting,
		ActiveGoalID:  9,
		ActiveGoal:    "Reduce cpu utilization",
		Cycles:        4,
		LastHeartbeat: now.Add(-10 * time.Second),
		StartedAt:     now.Add(-time.Minute),
	}
	line := FormatStatus(snap, now)
	assert.Contains(t, line, "HEALTHY")
	assert.Contains(t, line, "#9 Reduce cpu utilization")
	assert.Contains(t, line, "cycles=4")

	snap.LastHeartbeat = now.Add(-5 * time.Minute)
	assert.Contains(t, FormatStatus(snap, now), "OFFLINE")
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.Cycles.Inc()
	m.ObserveStep("RUN_TESTS", false, 2*time.Second)
	status := NewSystemStatus()

	srv := httptest.NewServer(m.Handler(status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "autogoal_coordinator_cycles_total 1")
	assert.Contains(t, string(body), `autogoal_executor_steps_total{action="RUN_TESTS",outcome="failure"} 1`)

	resp2, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "application/json", resp2.Header.Get("Content-Type"))
}
