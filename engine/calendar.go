/*
calendar.go - Calendar projection and reconciliation

PURPOSE:
  Maintains the day-granular occupancy view of a resource. Projection
  derives one entry per day of the resource's range; reconciliation paints
  allocation state onto the days an allocation covers.

PROJECTION:
  ProjectCalendar produces one "available" entry per day in
  [start_date, end_date] inclusive, unique per (resource, day).
  Re-projection on resource edit is destructive-then-recreate: the store
  drops every existing entry and writes the fresh projection. Allocation
  coloring painted onto the old entries is discarded and is not re-applied
  until allocations are reconciled again.

RECONCILIATION:
  A day covered by an accepted/confirmed allocation is "allocated"; a day
  covered by a pre-selected allocation is "tentative"; days not covered by
  any active allocation remain or return to "available". Days outside the
  projected range are skipped, never an error.
*/
package engine

import "fmt"

// ProjectCalendar derives the full calendar for a resource: one entry per
// day of its range, initialized to available.
func ProjectCalendar(r *Resource) []CalendarEntry {
	entries := make([]CalendarEntry, 0, r.Range.DayCount())
	label := fmt.Sprintf("%s - %d persons", r.Category, r.PersonCount)

	for _, day := range r.Range.Days() {
		entries = append(entries, CalendarEntry{
			ResourceID:     r.ID,
			ProviderID:     r.ProviderID,
			Day:            day,
			PersonCount:    r.PersonCount,
			HoursAllocated: r.DailyHours,
			Status:         CalendarAvailable,
			Color:          ColorAvailable,
			Label:          label,
		})
	}
	return entries
}

// ReconcileEntry applies an allocation's state to a single day entry.
// Returns true if the entry changed. Entries outside the allocation's
// range and allocation statuses without a calendar representation are
// no-ops.
func ReconcileEntry(entry *CalendarEntry, a *Allocation) bool {
	if !a.Range.Contains(entry.Day) {
		return false
	}

	switch {
	case a.Status.ConsumesCapacity():
		entry.Status = CalendarAllocated
		entry.Color = ColorAllocated
		id := a.ID
		entry.AllocationID = &id
		return true

	case a.Status == StatusCompleted:
		entry.Status = CalendarCompleted
		entry.Color = ColorCompleted
		id := a.ID
		entry.AllocationID = &id
		return true

	case a.Status == StatusPreSelected:
		entry.Status = CalendarTentative
		entry.Color = ColorTentative
		return true
	}
	return false
}

// ReconcileCalendar applies an allocation to every covered entry and
// returns the entries that changed, ready for upsert.
func ReconcileCalendar(entries []CalendarEntry, a *Allocation) []CalendarEntry {
	var changed []CalendarEntry
	for i := range entries {
		if ReconcileEntry(&entries[i], a) {
			changed = append(changed, entries[i])
		}
	}
	return changed
}

// RebuildDayStates recomputes each entry's occupancy from the full set of
// a resource's allocations. Days no longer covered by any active
// allocation return to available. Used after a rejection or cancellation
// releases previously painted days.
func RebuildDayStates(entries []CalendarEntry, allocs []*Allocation) []CalendarEntry {
	var changed []CalendarEntry

	for i := range entries {
		e := &entries[i]

		// Strongest covering allocation wins: allocated > completed > tentative.
		var winner *Allocation
		for _, a := range allocs {
			if !a.Range.Contains(e.Day) {
				continue
			}
			switch {
			case a.Status.ConsumesCapacity():
				winner = a
			case a.Status == StatusCompleted && (winner == nil || !winner.Status.ConsumesCapacity()):
				winner = a
			case a.Status == StatusPreSelected && winner == nil:
				winner = a
			}
		}

		before := *e
		if winner != nil {
			ReconcileEntry(e, winner)
		} else {
			e.Status = CalendarAvailable
			e.Color = ColorAvailable
			e.AllocationID = nil
		}

		if !sameOccupancy(before, *e) {
			changed = append(changed, *e)
		}
	}
	return changed
}

func sameOccupancy(a, b CalendarEntry) bool {
	if a.Status != b.Status || a.Color != b.Color {
		return false
	}
	if (a.AllocationID == nil) != (b.AllocationID == nil) {
		return false
	}
	return a.AllocationID == nil || *a.AllocationID == *b.AllocationID
}
