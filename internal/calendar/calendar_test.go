package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/calendar"
	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

func TestEvaluator_BusyIntervals_Idempotent(t *testing.T) {
	t.Parallel()

	e := calendar.NewEvaluator(time.Minute)
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(24 * time.Hour)
	expr := "DTSTART:20260801T000000Z\nFREQ=HOURLY;COUNT=24"

	first, err := e.BusyIntervals(expr, from, until)
	require.NoError(t, err)

	second, err := e.BusyIntervals(expr, from, until)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestEvaluator_BusyIntervals_EmptyExpression(t *testing.T) {
	t.Parallel()

	e := calendar.NewEvaluator(time.Minute)
	from := time.Now().UTC()
	slots, err := e.BusyIntervals("", from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestEvaluator_BusyIntervals_MalformedExpression(t *testing.T) {
	t.Parallel()

	e := calendar.NewEvaluator(time.Minute)
	from := time.Now().UTC()
	_, err := e.BusyIntervals("NOT-A-VALID-RRULE;;;", from, from.Add(time.Hour))
	require.Error(t, err)
}

func TestEvaluator_BusyIntervals_WindowEndBeforeStart(t *testing.T) {
	t.Parallel()

	e := calendar.NewEvaluator(time.Minute)
	from := time.Now().UTC()
	_, err := e.BusyIntervals("FREQ=DAILY", from, from.Add(-time.Hour))
	require.Error(t, err)
}

func TestFree_ComplementOfBusy(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	until := from.Add(time.Hour)
	busy := []domain.Timeslot{
		{Start: from.Add(10 * time.Minute), End: from.Add(20 * time.Minute)},
		{Start: from.Add(40 * time.Minute), End: from.Add(50 * time.Minute)},
	}

	free := calendar.Free(busy, from, until)

	require.Equal(t, []domain.Timeslot{
		{Start: from, End: from.Add(10 * time.Minute)},
		{Start: from.Add(20 * time.Minute), End: from.Add(40 * time.Minute)},
		{Start: from.Add(50 * time.Minute), End: until},
	}, free)
}

func TestFree_FullyBusyWindow(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	until := from.Add(time.Hour)
	busy := []domain.Timeslot{{Start: from, End: until}}

	free := calendar.Free(busy, from, until)
	require.Empty(t, free)
}
