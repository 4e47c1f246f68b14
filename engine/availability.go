/*
availability.go - Capacity rules for allocation requests

The rules, in order:
 1. The requested range must be a subrange of the resource's validity
    window, otherwise no capacity exists.
 2. Sum allocated_person_count across existing accepted/confirmed
    allocations whose range overlaps the request.
 3. Capacity exists when resource.person_count minus that sum covers the
    requested headcount.

Only accepted/confirmed allocations consume capacity. Pending,
pre-selected and invited allocations do not block other offers from
being solicited concurrently.
*/
package engine

// AllocatedPersons sums the headcount of capacity-consuming allocations
// that overlap the given range.
func AllocatedPersons(allocs []*Allocation, rng DateRange) int {
	var sum int
	for _, a := range allocs {
		if a.Status.ConsumesCapacity() && a.Range.Overlaps(rng) {
			sum += a.PersonCount
		}
	}
	return sum
}

// AvailablePersons returns the free headcount of a resource over a range,
// given its existing allocations.
func AvailablePersons(r *Resource, rng DateRange, allocs []*Allocation) int {
	return r.PersonCount - AllocatedPersons(allocs, rng)
}

// CheckAvailability reports whether the resource can satisfy the requested
// headcount over the requested range.
func CheckAvailability(r *Resource, rng DateRange, persons int, allocs []*Allocation) bool {
	if rng.Start.Before(r.Range.Start) || rng.End.After(r.Range.End) {
		return false
	}
	return AvailablePersons(r, rng, allocs) >= persons
}
