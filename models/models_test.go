package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contracker/models"
)

func TestMilestoneTemporalState(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	grace := 7

	tests := []struct {
		name string
		now  time.Time
		want models.TemporalState
	}{
		{"before due date", due.AddDate(0, 0, -10), models.Upcoming},
		{"moment before due", due.Add(-time.Second), models.Upcoming},
		{"exactly on due date", due, models.Due},
		{"inside grace period", due.AddDate(0, 0, 3), models.Due},
		{"last day of grace", due.AddDate(0, 0, grace), models.Due},
		{"past grace period", due.AddDate(0, 0, grace).Add(time.Second), models.Overdue},
		{"long overdue", due.AddDate(0, 1, 0), models.Overdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, models.MilestoneTemporalState(tt.now, due, grace))
		})
	}
}

func TestGraceEnd(t *testing.T) {
	m := models.Milestone{
		DueDate:         time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		GracePeriodDays: 14,
	}
	require.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), m.GraceEnd())
}

func TestZeroGracePeriod(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, models.Due, models.MilestoneTemporalState(due, due, 0))
	require.Equal(t, models.Overdue, models.MilestoneTemporalState(due.Add(time.Second), due, 0))
}
