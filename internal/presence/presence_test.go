package presence

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/models"
)

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    Status
	}{
		{"just active", 0, StatusConnected},
		{"under connected window", 419 * time.Second, StatusConnected},
		{"at connected window", 420 * time.Second, StatusIdle},
		{"mid idle band", 500 * time.Second, StatusIdle},
		{"under idle window", 599 * time.Second, StatusIdle},
		{"at idle window", 600 * time.Second, StatusOffline},
		{"long gone", 24 * time.Hour, StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := now.Add(-tt.elapsed)
			if got := Classify(&last, now); got != tt.want {
				t.Errorf("Classify(%v ago) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}

	t.Run("no activity record", func(t *testing.T) {
		if got := Classify(nil, now); got != StatusOffline {
			t.Errorf("Classify(nil) = %v, want offline", got)
		}
	})
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil activity", func(t *testing.T) {
		got := BuildReport(nil, now)
		if got.Status != StatusOffline {
			t.Errorf("status = %v, want offline", got.Status)
		}
		if got.Message != "No agent connected" {
			t.Errorf("message = %q, want %q", got.Message, "No agent connected")
		}
		if got.LastActivity != nil || got.SecondsSinceActivity != nil {
			t.Error("nil activity should not report timestamps")
		}
	})

	t.Run("recent activity", func(t *testing.T) {
		activity := &models.AgentActivity{
			WorkspaceID:    uuid.New(),
			LastActivityAt: now.Add(-90 * time.Second),
		}
		got := BuildReport(activity, now)
		if got.Status != StatusConnected {
			t.Errorf("status = %v, want connected", got.Status)
		}
		if got.Message != "Agent is connected" {
			t.Errorf("message = %q, want %q", got.Message, "Agent is connected")
		}
		if got.SecondsSinceActivity == nil || *got.SecondsSinceActivity != 90 {
			t.Errorf("seconds_since_activity = %v, want 90", got.SecondsSinceActivity)
		}
	})

	t.Run("stale activity", func(t *testing.T) {
		activity := &models.AgentActivity{
			WorkspaceID:    uuid.New(),
			LastActivityAt: now.Add(-8 * time.Minute),
		}
		got := BuildReport(activity, now)
		if got.Status != StatusIdle {
			t.Errorf("status = %v, want idle", got.Status)
		}
		if got.Message != "Agent may be busy" {
			t.Errorf("message = %q, want %q", got.Message, "Agent may be busy")
		}
	})
}
