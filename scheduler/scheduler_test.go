package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRejectsInvalidSpec(t *testing.T) {
	s := New()
	defer s.Stop()

	err := s.Schedule("sync", "not a cron spec", func(context.Context) {})
	assert.Error(t, err)
}

func TestScheduleAcceptsWeekdaySpec(t *testing.T) {
	s := New()
	defer s.Stop()

	// the default sync schedule: 08:00 UTC on weekdays
	require.NoError(t, s.Schedule("sync", "0 8 * * 1-5", func(context.Context) {}))
}

func TestScheduleReplacesExistingEntry(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.Schedule("sync", "0 8 * * 1-5", func(context.Context) {}))
	require.NoError(t, s.Schedule("sync", "30 9 * * *", func(context.Context) {}))
	assert.Len(t, s.entries, 1)

	s.Delete("sync")
	assert.Empty(t, s.entries)
}
