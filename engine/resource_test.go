package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildwise/resource-engine/engine"
	"github.com/buildwise/resource-engine/engine/store"
)

func newResourceService() (*engine.ResourceService, *store.Memory) {
	mem := store.NewMemory()
	svc := engine.NewResourceService(mem)
	svc.Now = func() time.Time { return time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC) }
	return svc, mem
}

func TestResourceCreate_DefaultsAndProjection(t *testing.T) {
	// GIVEN: A minimal resource definition
	// WHEN: Creating it
	// THEN: Defaults fill in and the calendar is fully projected
	svc, mem := newResourceService()
	ctx := context.Background()

	r, err := svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 3,
		Category:    "scaffolding",
	})
	require.NoError(t, err)

	assert.Equal(t, 8.0, r.DailyHours, "daily hours default")
	assert.Equal(t, engine.VisibilityPublic, r.Visibility)
	assert.Equal(t, "EUR", r.Currency)
	assert.Equal(t, engine.ResourceAvailable, r.Status)
	// 30 days x 8 hours x 3 persons
	assert.Equal(t, 720.0, r.TotalHours)

	entries, err := mem.ListCalendarEntries(ctx, engine.CalendarFilter{ResourceID: &r.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 30)
}

func TestResourceCreate_Validation(t *testing.T) {
	svc, _ := newResourceService()
	ctx := context.Background()

	_, err := svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       rng(day(2025, time.June, 30), day(2025, time.June, 1)),
		PersonCount: 3,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidRange)

	_, err = svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 0,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidPersonCount)
}

func TestResourceUpdate_CapacityChangeReprojectsCalendar(t *testing.T) {
	// Shrinking the window re-derives total hours and replaces the
	// calendar wholesale, painted days included.
	svc, mem := newResourceService()
	ctx := context.Background()

	r, err := svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 3,
		Category:    "scaffolding",
	})
	require.NoError(t, err)

	newEnd := day(2025, time.June, 15)
	updated, err := svc.Update(ctx, r.ID, engine.ResourcePatch{EndDate: &newEnd})
	require.NoError(t, err)

	assert.Equal(t, newEnd, updated.Range.End)
	// 15 days x 8 hours x 3 persons
	assert.Equal(t, 360.0, updated.TotalHours)

	entries, err := mem.ListCalendarEntries(ctx, engine.CalendarFilter{ResourceID: &r.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 15)
	for _, e := range entries {
		assert.Equal(t, engine.CalendarAvailable, e.Status, "re-projection resets to available")
	}
}

func TestResourceUpdate_NonCapacityChangeKeepsCalendar(t *testing.T) {
	svc, mem := newResourceService()
	ctx := context.Background()

	r, err := svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 3,
		Category:    "scaffolding",
	})
	require.NoError(t, err)

	// Paint one day so we can detect a wipe.
	a := alloc("a-1", engine.StatusAccepted, 1, rng(day(2025, time.June, 10), day(2025, time.June, 10)))
	entries, err := mem.ListCalendarEntries(ctx, engine.CalendarFilter{ResourceID: &r.ID})
	require.NoError(t, err)
	require.NoError(t, mem.UpsertCalendarEntries(ctx, engine.ReconcileCalendar(entries, a)))

	desc := "steel scaffolding crew"
	_, err = svc.Update(ctx, r.ID, engine.ResourcePatch{Description: &desc})
	require.NoError(t, err)

	from, to := day(2025, time.June, 10), day(2025, time.June, 10)
	after, err := mem.ListCalendarEntries(ctx, engine.CalendarFilter{ResourceID: &r.ID, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, engine.CalendarAllocated, after[0].Status, "descriptive edits keep the painted calendar")
}

func TestResourceUpdate_InvalidPatchRejected(t *testing.T) {
	svc, _ := newResourceService()
	ctx := context.Background()

	r, err := svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 3,
	})
	require.NoError(t, err)

	badEnd := day(2025, time.May, 1)
	_, err = svc.Update(ctx, r.ID, engine.ResourcePatch{EndDate: &badEnd})
	assert.ErrorIs(t, err, engine.ErrInvalidRange)

	zero := 0
	_, err = svc.Update(ctx, r.ID, engine.ResourcePatch{PersonCount: &zero})
	assert.ErrorIs(t, err, engine.ErrInvalidPersonCount)
}

func TestResourceDelete_Cascades(t *testing.T) {
	svc, mem := newResourceService()
	ctx := context.Background()

	r, err := svc.Create(ctx, engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 3,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, r.ID))

	_, err = mem.GetResource(ctx, r.ID)
	assert.ErrorIs(t, err, engine.ErrResourceNotFound)

	entries, err := mem.ListCalendarEntries(ctx, engine.CalendarFilter{ResourceID: &r.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// GEO SEARCH
// =============================================================================

func TestSearchGeo_RadiusAndFilters(t *testing.T) {
	svc, _ := newResourceService()
	ctx := context.Background()

	mustCreate := func(category string, loc *engine.Coordinates, hourly float64) *engine.Resource {
		r, err := svc.Create(ctx, engine.CreateResourceInput{
			ProviderID:  "provider-1",
			Range:       june(),
			PersonCount: 2,
			Category:    category,
			Location:    loc,
			HourlyRate:  decimal.NewFromFloat(hourly),
		})
		require.NoError(t, err)
		return r
	}

	brussels := &engine.Coordinates{Latitude: 50.8503, Longitude: 4.3517}
	antwerp := &engine.Coordinates{Latitude: 51.2194, Longitude: 4.4025}
	lyon := &engine.Coordinates{Latitude: 45.7640, Longitude: 4.8357}

	near := mustCreate("masonry", brussels, 45)
	alsoNear := mustCreate("masonry", antwerp, 80)
	mustCreate("masonry", lyon, 45)    // far away
	mustCreate("masonry", nil, 45)     // no coordinates
	mustCreate("electrical", brussels, 45)

	// 100 km around Brussels, masonry only.
	category := "masonry"
	found, err := svc.SearchGeo(ctx, engine.GeoSearchInput{
		Latitude:  50.8503,
		Longitude: 4.3517,
		RadiusKm:  100,
		Category:  &category,
	})
	require.NoError(t, err)

	ids := make(map[engine.ResourceID]bool)
	for _, r := range found {
		ids[r.ID] = true
	}
	assert.Len(t, found, 2)
	assert.True(t, ids[near.ID])
	assert.True(t, ids[alsoNear.ID])

	// Rate cap excludes the expensive crew.
	max := decimal.NewFromInt(50)
	found, err = svc.SearchGeo(ctx, engine.GeoSearchInput{
		Latitude:      50.8503,
		Longitude:     4.3517,
		RadiusKm:      100,
		Category:      &category,
		MaxHourlyRate: &max,
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, near.ID, found[0].ID)
}

func TestSearchGeo_EmptyResultIsNotAnError(t *testing.T) {
	svc, _ := newResourceService()

	found, err := svc.SearchGeo(context.Background(), engine.GeoSearchInput{
		Latitude: 50.8503, Longitude: 4.3517, RadiusKm: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}
