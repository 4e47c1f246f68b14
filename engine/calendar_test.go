package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildwise/resource-engine/engine"
)

func TestProjectCalendar_OneEntryPerDay(t *testing.T) {
	// GIVEN: A resource valid June 1-30
	// WHEN: Projecting its calendar
	// THEN: 30 available entries, one per day, carrying capacity and label
	r := testResource()

	entries := engine.ProjectCalendar(r)

	require.Len(t, entries, 30)
	assert.Equal(t, day(2025, time.June, 1), entries[0].Day)
	assert.Equal(t, day(2025, time.June, 30), entries[29].Day)

	for _, e := range entries {
		assert.Equal(t, engine.CalendarAvailable, e.Status)
		assert.Equal(t, engine.ColorAvailable, e.Color)
		assert.Equal(t, 5, e.PersonCount)
		assert.Equal(t, 8.0, e.HoursAllocated)
		assert.Equal(t, "masonry - 5 persons", e.Label)
		assert.Nil(t, e.AllocationID)
	}
}

func TestReconcileEntry_AcceptedPaintsAllocated(t *testing.T) {
	entries := engine.ProjectCalendar(testResource())
	a := alloc("a-1", engine.StatusAccepted, 3, rng(day(2025, time.June, 10), day(2025, time.June, 12)))

	changed := engine.ReconcileCalendar(entries, a)

	require.Len(t, changed, 3)
	for _, e := range changed {
		assert.Equal(t, engine.CalendarAllocated, e.Status)
		assert.Equal(t, engine.ColorAllocated, e.Color)
		require.NotNil(t, e.AllocationID)
		assert.Equal(t, a.ID, *e.AllocationID)
	}

	// Days outside the allocation stay available.
	assert.Equal(t, engine.CalendarAvailable, entries[0].Status)
}

func TestReconcileEntry_StatusMapping(t *testing.T) {
	r := rng(day(2025, time.June, 10), day(2025, time.June, 10))

	cases := []struct {
		status    engine.AllocationStatus
		want      engine.CalendarStatus
		wantColor string
	}{
		{engine.StatusAccepted, engine.CalendarAllocated, engine.ColorAllocated},
		{engine.StatusConfirmed, engine.CalendarAllocated, engine.ColorAllocated},
		{engine.StatusCompleted, engine.CalendarCompleted, engine.ColorCompleted},
		{engine.StatusPreSelected, engine.CalendarTentative, engine.ColorTentative},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			entry := engine.CalendarEntry{Day: day(2025, time.June, 10), Status: engine.CalendarAvailable, Color: engine.ColorAvailable}
			changed := engine.ReconcileEntry(&entry, alloc("a-1", tc.status, 1, r))

			assert.True(t, changed)
			assert.Equal(t, tc.want, entry.Status)
			assert.Equal(t, tc.wantColor, entry.Color)
		})
	}
}

func TestReconcileEntry_NoOps(t *testing.T) {
	entry := engine.CalendarEntry{Day: day(2025, time.June, 1), Status: engine.CalendarAvailable, Color: engine.ColorAvailable}

	// Out of range.
	a := alloc("a-1", engine.StatusAccepted, 1, rng(day(2025, time.June, 10), day(2025, time.June, 12)))
	assert.False(t, engine.ReconcileEntry(&entry, a))
	assert.Equal(t, engine.CalendarAvailable, entry.Status)

	// Invited/rejected have no calendar representation.
	covering := rng(day(2025, time.June, 1), day(2025, time.June, 5))
	assert.False(t, engine.ReconcileEntry(&entry, alloc("a-2", engine.StatusInvited, 1, covering)))
	assert.False(t, engine.ReconcileEntry(&entry, alloc("a-3", engine.StatusRejected, 1, covering)))
}

func TestRebuildDayStates_ReleasesUncoveredDays(t *testing.T) {
	// GIVEN: A calendar painted by an accepted allocation June 10-12
	// WHEN: Rebuilding after that allocation is gone
	// THEN: The painted days return to available
	entries := engine.ProjectCalendar(testResource())
	a := alloc("a-1", engine.StatusAccepted, 3, rng(day(2025, time.June, 10), day(2025, time.June, 12)))
	engine.ReconcileCalendar(entries, a)

	changed := engine.RebuildDayStates(entries, nil)

	require.Len(t, changed, 3)
	for _, e := range changed {
		assert.Equal(t, engine.CalendarAvailable, e.Status)
		assert.Equal(t, engine.ColorAvailable, e.Color)
		assert.Nil(t, e.AllocationID)
	}
}

func TestRebuildDayStates_StrongestCoveringAllocationWins(t *testing.T) {
	entries := engine.ProjectCalendar(testResource())

	accepted := alloc("a-1", engine.StatusAccepted, 2, rng(day(2025, time.June, 10), day(2025, time.June, 15)))
	tentative := alloc("a-2", engine.StatusPreSelected, 2, rng(day(2025, time.June, 10), day(2025, time.June, 20)))

	engine.RebuildDayStates(entries, []*engine.Allocation{tentative, accepted})

	byDay := make(map[string]engine.CalendarEntry)
	for _, e := range entries {
		byDay[e.Day.String()] = e
	}

	assert.Equal(t, engine.CalendarAllocated, byDay["2025-06-12"].Status, "accepted beats tentative")
	assert.Equal(t, engine.CalendarTentative, byDay["2025-06-18"].Status, "only tentative covers the tail")
	assert.Equal(t, engine.CalendarAvailable, byDay["2025-06-25"].Status, "uncovered days stay available")
}

func TestRebuildDayStates_NoChangesReportedWhenAlreadyCorrect(t *testing.T) {
	entries := engine.ProjectCalendar(testResource())

	changed := engine.RebuildDayStates(entries, nil)
	assert.Empty(t, changed, "a fresh projection is already all-available")
}
