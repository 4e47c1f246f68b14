package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildwise/resource-engine/engine"
	"github.com/buildwise/resource-engine/engine/store"
)

// recorder captures notifications for assertions.
type recorder struct {
	mu    sync.Mutex
	notes []engine.Notification
}

func (r *recorder) Notify(_ context.Context, n engine.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recorder) types() []engine.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.NotificationType
	for _, n := range r.notes {
		out = append(out, n.Type)
	}
	return out
}

type fixture struct {
	store       *store.Memory
	resources   *engine.ResourceService
	allocations *engine.AllocationService
	notifier    *recorder
	resource    *engine.Resource
}

// newFixture publishes a 5-person June resource and wires the services
// to a fixed clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	notifier := &recorder{}
	clock := func() time.Time { return time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC) }

	resources := engine.NewResourceService(mem)
	resources.Now = clock
	allocations := engine.NewAllocationService(mem, notifier)
	allocations.Now = clock

	r, err := resources.Create(context.Background(), engine.CreateResourceInput{
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 5,
		DailyHours:  8,
		Category:    "masonry",
	})
	require.NoError(t, err)

	return &fixture{store: mem, resources: resources, allocations: allocations, notifier: notifier, resource: r}
}

func (f *fixture) create(t *testing.T, in engine.CreateAllocationInput) *engine.Allocation {
	t.Helper()
	if in.ResourceID == "" {
		in.ResourceID = f.resource.ID
	}
	if in.TradeID == "" {
		in.TradeID = "trade-1"
	}
	a, err := f.allocations.Create(context.Background(), in)
	require.NoError(t, err)
	return a
}

// =============================================================================
// CREATION
// =============================================================================

func TestAllocationCreate_DefaultsAndDerivedHours(t *testing.T) {
	f := newFixture(t)

	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 12)),
		PersonCount: 2,
	})

	assert.Equal(t, engine.StatusPreSelected, a.Status)
	// 3 days x 8 hours x 2 persons
	assert.Equal(t, 48.0, a.Hours)
	assert.NotEmpty(t, a.ID)
}

func TestAllocationCreate_OutsideWindowRejected(t *testing.T) {
	// GIVEN: A resource valid through June
	// WHEN: Claiming a range leaking into July
	// THEN: Invalid-range error, nothing persisted
	f := newFixture(t)

	_, err := f.allocations.Create(context.Background(), engine.CreateAllocationInput{
		ResourceID:  f.resource.ID,
		TradeID:     "trade-1",
		Range:       rng(day(2025, time.June, 25), day(2025, time.July, 5)),
		PersonCount: 1,
	})

	assert.ErrorIs(t, err, engine.ErrInvalidRange)

	remaining, err := f.store.ListAllocations(context.Background(), engine.AllocationFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestAllocationCreate_InvalidInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.allocations.Create(ctx, engine.CreateAllocationInput{
		ResourceID:  f.resource.ID,
		Range:       rng(day(2025, time.June, 20), day(2025, time.June, 10)),
		PersonCount: 1,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidRange, "end before start")

	_, err = f.allocations.Create(ctx, engine.CreateAllocationInput{
		ResourceID:  f.resource.ID,
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 20)),
		PersonCount: 0,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidPersonCount)

	_, err = f.allocations.Create(ctx, engine.CreateAllocationInput{
		ResourceID:  "no-such-resource",
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 20)),
		PersonCount: 1,
	})
	assert.ErrorIs(t, err, engine.ErrResourceNotFound)
}

func TestAllocationCreate_CapacityConflictRollsBack(t *testing.T) {
	// GIVEN: 3 of 5 persons accepted June 10-20
	// WHEN: A 3-person overlapping claim arrives as accepted
	// THEN: Conflict error reports 2 available; nothing persisted
	f := newFixture(t)
	f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 20)),
		PersonCount: 3,
		Status:      engine.StatusAccepted,
	})

	_, err := f.allocations.Create(context.Background(), engine.CreateAllocationInput{
		ResourceID:  f.resource.ID,
		TradeID:     "trade-2",
		Range:       rng(day(2025, time.June, 15), day(2025, time.June, 25)),
		PersonCount: 3,
		Status:      engine.StatusAccepted,
	})

	assert.ErrorIs(t, err, engine.ErrCapacityConflict)

	var conflict *engine.CapacityConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Requested)
	assert.Equal(t, 2, conflict.Available)

	all, err := f.store.ListAllocations(context.Background(), engine.AllocationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed claim must persist nothing")
}

func TestAllocationCreate_AcceptedMarksResourceAndCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 12)),
		PersonCount: 2,
		Status:      engine.StatusAccepted,
	})

	r, err := f.store.GetResource(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceAllocated, r.Status)

	from, to := day(2025, time.June, 10), day(2025, time.June, 12)
	entries, err := f.store.ListCalendarEntries(ctx, engine.CalendarFilter{
		ResourceID: &f.resource.ID, From: &from, To: &to,
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, engine.CalendarAllocated, e.Status)
		require.NotNil(t, e.AllocationID)
		assert.Equal(t, a.ID, *e.AllocationID)
	}
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func TestUpdateStatus_WorkflowStampsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 20)),
		PersonCount: 2,
	})

	a, err := f.allocations.UpdateStatus(ctx, a.ID, engine.StatusInvited, "")
	require.NoError(t, err)
	assert.NotNil(t, a.InvitationSentAt)

	a, err = f.allocations.UpdateStatus(ctx, a.ID, engine.StatusOfferRequested, "")
	require.NoError(t, err)
	assert.NotNil(t, a.OfferRequestedAt)

	a, err = f.allocations.UpdateStatus(ctx, a.ID, engine.StatusOfferSubmitted, "")
	require.NoError(t, err)
	assert.NotNil(t, a.OfferSubmittedAt)

	a, err = f.allocations.UpdateStatus(ctx, a.ID, engine.StatusAccepted, "")
	require.NoError(t, err)
	assert.NotNil(t, a.DecisionMadeAt)

	assert.Equal(t, []engine.NotificationType{
		engine.NotifyInvitation,
		engine.NotifyOfferRequest,
		engine.NotifyOfferSubmitted,
		engine.NotifyAllocationOK,
	}, f.notifier.types())

	r, err := f.store.GetResource(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceAllocated, r.Status)
}

func TestUpdateStatus_UnknownStatusRejected(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 12)),
		PersonCount: 1,
	})

	_, err := f.allocations.UpdateStatus(context.Background(), a.ID, "approved", "")
	assert.Error(t, err)
}

func TestUpdateStatus_ConcurrentAcceptsCannotOverbook(t *testing.T) {
	// GIVEN: Two submitted 3-person offers on a 5-person resource
	// WHEN: Both get accepted in turn
	// THEN: The second acceptance fails its in-transaction capacity re-check
	f := newFixture(t)
	ctx := context.Background()
	claim := rng(day(2025, time.June, 10), day(2025, time.June, 20))

	first := f.create(t, engine.CreateAllocationInput{Range: claim, PersonCount: 3, Status: engine.StatusOfferSubmitted})
	second := f.create(t, engine.CreateAllocationInput{TradeID: "trade-2", Range: claim, PersonCount: 3, Status: engine.StatusOfferSubmitted})

	_, err := f.allocations.UpdateStatus(ctx, first.ID, engine.StatusAccepted, "")
	require.NoError(t, err)

	_, err = f.allocations.UpdateStatus(ctx, second.ID, engine.StatusAccepted, "")
	assert.ErrorIs(t, err, engine.ErrCapacityConflict)

	unchanged, err := f.store.GetAllocation(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOfferSubmitted, unchanged.Status, "failed transition must not stick")
}

func TestUpdateStatus_RejectionReleasesResourceAndCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 12)),
		PersonCount: 2,
		Status:      engine.StatusAccepted,
	})

	rejected, err := f.allocations.UpdateStatus(ctx, a.ID, engine.StatusRejected, "price too high")
	require.NoError(t, err)
	assert.NotNil(t, rejected.DecisionMadeAt)
	assert.Equal(t, "price too high", rejected.RejectionReason)

	r, err := f.store.GetResource(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceAvailable, r.Status, "last accepted allocation gone")

	from, to := day(2025, time.June, 10), day(2025, time.June, 12)
	entries, err := f.store.ListCalendarEntries(ctx, engine.CalendarFilter{
		ResourceID: &f.resource.ID, From: &from, To: &to,
	})
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, engine.CalendarAvailable, e.Status)
		assert.Nil(t, e.AllocationID)
	}

	assert.Contains(t, f.notifier.types(), engine.NotifyAllocationNo)
}

func TestUpdateStatus_RejectionKeepsResourceAllocatedWhileOthersRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 1), day(2025, time.June, 5)),
		PersonCount: 2,
		Status:      engine.StatusAccepted,
	})
	drop := f.create(t, engine.CreateAllocationInput{
		TradeID:     "trade-2",
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 15)),
		PersonCount: 2,
		Status:      engine.StatusAccepted,
	})

	_, err := f.allocations.UpdateStatus(ctx, drop.ID, engine.StatusRejected, "")
	require.NoError(t, err)

	r, err := f.store.GetResource(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceAllocated, r.Status, "another accepted allocation still holds it")

	kept, err := f.store.GetAllocation(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAccepted, kept.Status)
}

func TestMarkInvitationViewed(t *testing.T) {
	f := newFixture(t)

	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 12)),
		PersonCount: 1,
	})
	require.Nil(t, a.InvitationViewedAt)

	viewed, err := f.allocations.MarkInvitationViewed(context.Background(), a.ID)
	require.NoError(t, err)
	assert.NotNil(t, viewed.InvitationViewedAt)
}

// =============================================================================
// BULK CREATION
// =============================================================================

func TestCreateBulk_PerItemOutcomes(t *testing.T) {
	// The batch is not all-or-nothing: item 2 overbooks and fails alone.
	f := newFixture(t)
	claim := rng(day(2025, time.June, 10), day(2025, time.June, 20))

	results := f.allocations.CreateBulk(context.Background(), []engine.CreateAllocationInput{
		{ResourceID: f.resource.ID, TradeID: "trade-1", Range: claim, PersonCount: 4, Status: engine.StatusAccepted},
		{ResourceID: f.resource.ID, TradeID: "trade-2", Range: claim, PersonCount: 4, Status: engine.StatusAccepted},
		{ResourceID: f.resource.ID, TradeID: "trade-3", Range: claim, PersonCount: 1, Status: engine.StatusAccepted},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, engine.ErrCapacityConflict)
	assert.NoError(t, results[2].Err)

	all, err := f.store.ListAllocations(context.Background(), engine.AllocationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// DELETION
// =============================================================================

func TestAllocationDelete_RepairsSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.create(t, engine.CreateAllocationInput{
		Range:       rng(day(2025, time.June, 10), day(2025, time.June, 12)),
		PersonCount: 2,
		Status:      engine.StatusAccepted,
	})

	require.NoError(t, f.allocations.Delete(ctx, a.ID))

	_, err := f.store.GetAllocation(ctx, a.ID)
	assert.ErrorIs(t, err, engine.ErrAllocationNotFound)

	r, err := f.store.GetResource(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceAvailable, r.Status)

	from, to := day(2025, time.June, 10), day(2025, time.June, 12)
	entries, err := f.store.ListCalendarEntries(ctx, engine.CalendarFilter{
		ResourceID: &f.resource.ID, From: &from, To: &to,
	})
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, engine.CalendarAvailable, e.Status)
	}
}
