package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/buildwise/resource-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// Shared across the engine tests.

func june() engine.DateRange {
	return rng(day(2025, time.June, 1), day(2025, time.June, 30))
}

// testResource is a 5-person masonry crew available through June.
func testResource() *engine.Resource {
	return &engine.Resource{
		ID:          "res-1",
		ProviderID:  "provider-1",
		Range:       june(),
		PersonCount: 5,
		DailyHours:  8,
		Category:    "masonry",
		Status:      engine.ResourceAvailable,
		Visibility:  engine.VisibilityPublic,
		Currency:    "EUR",
	}
}

func alloc(id string, status engine.AllocationStatus, persons int, r engine.DateRange) *engine.Allocation {
	return &engine.Allocation{
		ID:          engine.AllocationID(id),
		ResourceID:  "res-1",
		TradeID:     "trade-1",
		Range:       r,
		PersonCount: persons,
		Status:      status,
	}
}

// =============================================================================
// AVAILABILITY TESTS
// =============================================================================

func TestCheckAvailability_PartialCapacityRemaining(t *testing.T) {
	// GIVEN: A 5-person resource with 3 persons accepted June 10-20
	// WHEN: Requesting 3 more persons over an overlapping range
	// THEN: Refused; 2 persons would still fit
	r := testResource()
	existing := []*engine.Allocation{
		alloc("a-1", engine.StatusAccepted, 3, rng(day(2025, time.June, 10), day(2025, time.June, 20))),
	}
	req := rng(day(2025, time.June, 15), day(2025, time.June, 25))

	assert.False(t, engine.CheckAvailability(r, req, 3, existing))
	assert.True(t, engine.CheckAvailability(r, req, 2, existing))
	assert.Equal(t, 2, engine.AvailablePersons(r, req, existing))
}

func TestCheckAvailability_NonConsumingStatusesDoNotBlock(t *testing.T) {
	// Pending offers are optimistic: only accepted/confirmed hold capacity.
	r := testResource()
	req := rng(day(2025, time.June, 10), day(2025, time.June, 20))

	existing := []*engine.Allocation{
		alloc("a-1", engine.StatusPreSelected, 5, req),
		alloc("a-2", engine.StatusInvited, 5, req),
		alloc("a-3", engine.StatusOfferRequested, 5, req),
		alloc("a-4", engine.StatusOfferSubmitted, 5, req),
		alloc("a-5", engine.StatusRejected, 5, req),
	}

	assert.True(t, engine.CheckAvailability(r, req, 5, existing))
	assert.Equal(t, 0, engine.AllocatedPersons(existing, req))
}

func TestCheckAvailability_ConfirmedConsumesLikeAccepted(t *testing.T) {
	r := testResource()
	req := rng(day(2025, time.June, 10), day(2025, time.June, 20))

	existing := []*engine.Allocation{
		alloc("a-1", engine.StatusConfirmed, 4, req),
	}

	assert.False(t, engine.CheckAvailability(r, req, 2, existing))
	assert.True(t, engine.CheckAvailability(r, req, 1, existing))
}

func TestCheckAvailability_NonOverlappingAllocationsIgnored(t *testing.T) {
	r := testResource()
	existing := []*engine.Allocation{
		alloc("a-1", engine.StatusAccepted, 5, rng(day(2025, time.June, 1), day(2025, time.June, 5))),
	}

	// June 6 onwards is untouched.
	assert.True(t, engine.CheckAvailability(r, rng(day(2025, time.June, 6), day(2025, time.June, 30)), 5, existing))
}

func TestCheckAvailability_OutsideValidityWindow(t *testing.T) {
	// A range leaking past the resource window has no capacity at all.
	r := testResource()

	assert.False(t, engine.CheckAvailability(r, rng(day(2025, time.May, 25), day(2025, time.June, 5)), 1, nil))
	assert.False(t, engine.CheckAvailability(r, rng(day(2025, time.June, 25), day(2025, time.July, 5)), 1, nil))
	assert.True(t, engine.CheckAvailability(r, june(), 5, nil))
}

func TestAllocatedPersons_SumsOverlappingConsumers(t *testing.T) {
	req := rng(day(2025, time.June, 10), day(2025, time.June, 20))

	allocs := []*engine.Allocation{
		alloc("a-1", engine.StatusAccepted, 2, rng(day(2025, time.June, 1), day(2025, time.June, 12))),
		alloc("a-2", engine.StatusConfirmed, 1, rng(day(2025, time.June, 18), day(2025, time.June, 30))),
		alloc("a-3", engine.StatusAccepted, 3, rng(day(2025, time.June, 1), day(2025, time.June, 5))), // disjoint
	}

	assert.Equal(t, 3, engine.AllocatedPersons(allocs, req))
}
