// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/buildwise/resource-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.TxStore. WithTx runs against a deep copy of
// the data and swaps it in on success, so a failed unit of work leaves
// nothing behind.
type Memory struct {
	mu   sync.RWMutex
	data *memData
}

type kpiKey struct {
	Provider engine.ProviderID
	Start    string
	End      string
}

type memData struct {
	resources   map[engine.ResourceID]*engine.Resource
	allocations map[engine.AllocationID]*engine.Allocation
	calendar    map[engine.ResourceID]map[string]engine.CalendarEntry
	kpis        map[kpiKey]*engine.KPI
}

func newMemData() *memData {
	return &memData{
		resources:   make(map[engine.ResourceID]*engine.Resource),
		allocations: make(map[engine.AllocationID]*engine.Allocation),
		calendar:    make(map[engine.ResourceID]map[string]engine.CalendarEntry),
		kpis:        make(map[kpiKey]*engine.KPI),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

// WithTx clones the store, applies fn to the clone and swaps it in on
// success. An error from fn discards the clone entirely.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.data.clone()
	if err := fn(&view{data: clone}); err != nil {
		return err
	}
	m.data = clone
	return nil
}

// =============================================================================
// LOCKED PASS-THROUGHS
// =============================================================================

func (m *Memory) SaveResource(ctx context.Context, r *engine.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).SaveResource(ctx, r)
}

func (m *Memory) GetResource(ctx context.Context, id engine.ResourceID) (*engine.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{data: m.data}).GetResource(ctx, id)
}

func (m *Memory) ListResources(ctx context.Context, f engine.ResourceFilter) ([]*engine.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{data: m.data}).ListResources(ctx, f)
}

func (m *Memory) DeleteResource(ctx context.Context, id engine.ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).DeleteResource(ctx, id)
}

func (m *Memory) SaveAllocation(ctx context.Context, a *engine.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).SaveAllocation(ctx, a)
}

func (m *Memory) GetAllocation(ctx context.Context, id engine.AllocationID) (*engine.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{data: m.data}).GetAllocation(ctx, id)
}

func (m *Memory) ListAllocations(ctx context.Context, f engine.AllocationFilter) ([]*engine.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{data: m.data}).ListAllocations(ctx, f)
}

func (m *Memory) DeleteAllocation(ctx context.Context, id engine.AllocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).DeleteAllocation(ctx, id)
}

func (m *Memory) ReplaceCalendar(ctx context.Context, id engine.ResourceID, entries []engine.CalendarEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).ReplaceCalendar(ctx, id, entries)
}

func (m *Memory) UpsertCalendarEntries(ctx context.Context, entries []engine.CalendarEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).UpsertCalendarEntries(ctx, entries)
}

func (m *Memory) ListCalendarEntries(ctx context.Context, f engine.CalendarFilter) ([]engine.CalendarEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{data: m.data}).ListCalendarEntries(ctx, f)
}

func (m *Memory) UpsertKPI(ctx context.Context, k *engine.KPI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{data: m.data}).UpsertKPI(ctx, k)
}

func (m *Memory) GetKPI(ctx context.Context, provider engine.ProviderID, period engine.DateRange) (*engine.KPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{data: m.data}).GetKPI(ctx, provider, period)
}

// =============================================================================
// UNLOCKED VIEW - shared by top-level calls and WithTx bodies
// =============================================================================

type view struct {
	data *memData
}

func (v *view) SaveResource(_ context.Context, r *engine.Resource) error {
	v.data.resources[r.ID] = copyResource(r)
	return nil
}

func (v *view) GetResource(_ context.Context, id engine.ResourceID) (*engine.Resource, error) {
	r, ok := v.data.resources[id]
	if !ok {
		return nil, engine.ErrResourceNotFound
	}
	return copyResource(r), nil
}

func (v *view) ListResources(_ context.Context, f engine.ResourceFilter) ([]*engine.Resource, error) {
	var out []*engine.Resource
	for _, r := range v.data.resources {
		if f.ProviderID != nil && r.ProviderID != *f.ProviderID {
			continue
		}
		if f.Category != nil && r.Category != *f.Category {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.Overlaps != nil && !r.Range.Overlaps(*f.Overlaps) {
			continue
		}
		if f.MinPersons != nil && r.PersonCount < *f.MinPersons {
			continue
		}
		out = append(out, copyResource(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Limit, f.Offset), nil
}

func (v *view) DeleteResource(_ context.Context, id engine.ResourceID) error {
	if _, ok := v.data.resources[id]; !ok {
		return engine.ErrResourceNotFound
	}
	delete(v.data.resources, id)
	delete(v.data.calendar, id)
	for aid, a := range v.data.allocations {
		if a.ResourceID == id {
			delete(v.data.allocations, aid)
		}
	}
	return nil
}

func (v *view) SaveAllocation(_ context.Context, a *engine.Allocation) error {
	v.data.allocations[a.ID] = copyAllocation(a)
	return nil
}

func (v *view) GetAllocation(_ context.Context, id engine.AllocationID) (*engine.Allocation, error) {
	a, ok := v.data.allocations[id]
	if !ok {
		return nil, engine.ErrAllocationNotFound
	}
	return copyAllocation(a), nil
}

func (v *view) ListAllocations(_ context.Context, f engine.AllocationFilter) ([]*engine.Allocation, error) {
	var out []*engine.Allocation
	for _, a := range v.data.allocations {
		if f.ResourceID != nil && a.ResourceID != *f.ResourceID {
			continue
		}
		if f.TradeID != nil && a.TradeID != *f.TradeID {
			continue
		}
		if len(f.StatusIn) > 0 && !statusIn(a.Status, f.StatusIn) {
			continue
		}
		if f.Overlaps != nil && !a.Range.Overlaps(*f.Overlaps) {
			continue
		}
		out = append(out, copyAllocation(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) DeleteAllocation(_ context.Context, id engine.AllocationID) error {
	if _, ok := v.data.allocations[id]; !ok {
		return engine.ErrAllocationNotFound
	}
	delete(v.data.allocations, id)
	return nil
}

func (v *view) ReplaceCalendar(_ context.Context, id engine.ResourceID, entries []engine.CalendarEntry) error {
	days := make(map[string]engine.CalendarEntry, len(entries))
	for _, e := range entries {
		days[e.Day.String()] = copyEntry(e)
	}
	v.data.calendar[id] = days
	return nil
}

func (v *view) UpsertCalendarEntries(_ context.Context, entries []engine.CalendarEntry) error {
	for _, e := range entries {
		days := v.data.calendar[e.ResourceID]
		if days == nil {
			days = make(map[string]engine.CalendarEntry)
			v.data.calendar[e.ResourceID] = days
		}
		days[e.Day.String()] = copyEntry(e)
	}
	return nil
}

func (v *view) ListCalendarEntries(_ context.Context, f engine.CalendarFilter) ([]engine.CalendarEntry, error) {
	var out []engine.CalendarEntry
	for rid, days := range v.data.calendar {
		if f.ResourceID != nil && rid != *f.ResourceID {
			continue
		}
		for _, e := range days {
			if f.ProviderID != nil && e.ProviderID != *f.ProviderID {
				continue
			}
			if f.From != nil && e.Day.Before(*f.From) {
				continue
			}
			if f.To != nil && e.Day.After(*f.To) {
				continue
			}
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out, nil
}

func (v *view) UpsertKPI(_ context.Context, k *engine.KPI) error {
	key := kpiKey{Provider: k.ProviderID, Start: k.Period.Start.String(), End: k.Period.End.String()}
	cp := *k
	v.data.kpis[key] = &cp
	return nil
}

func (v *view) GetKPI(_ context.Context, provider engine.ProviderID, period engine.DateRange) (*engine.KPI, error) {
	key := kpiKey{Provider: provider, Start: period.Start.String(), End: period.End.String()}
	k, ok := v.data.kpis[key]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (d *memData) clone() *memData {
	c := newMemData()
	for id, r := range d.resources {
		c.resources[id] = copyResource(r)
	}
	for id, a := range d.allocations {
		c.allocations[id] = copyAllocation(a)
	}
	for id, days := range d.calendar {
		cd := make(map[string]engine.CalendarEntry, len(days))
		for day, e := range days {
			cd[day] = copyEntry(e)
		}
		c.calendar[id] = cd
	}
	for key, k := range d.kpis {
		cp := *k
		c.kpis[key] = &cp
	}
	return c
}

func copyResource(r *engine.Resource) *engine.Resource {
	cp := *r
	if r.Location != nil {
		loc := *r.Location
		cp.Location = &loc
	}
	cp.Skills = append([]string(nil), r.Skills...)
	cp.Equipment = append([]string(nil), r.Equipment...)
	return &cp
}

func copyAllocation(a *engine.Allocation) *engine.Allocation {
	cp := *a
	cp.InvitationSentAt = copyTime(a.InvitationSentAt)
	cp.InvitationViewedAt = copyTime(a.InvitationViewedAt)
	cp.OfferRequestedAt = copyTime(a.OfferRequestedAt)
	cp.OfferSubmittedAt = copyTime(a.OfferSubmittedAt)
	cp.DecisionMadeAt = copyTime(a.DecisionMadeAt)
	return &cp
}

func copyEntry(e engine.CalendarEntry) engine.CalendarEntry {
	cp := e
	if e.AllocationID != nil {
		id := *e.AllocationID
		cp.AllocationID = &id
	}
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func statusIn(s engine.AllocationStatus, set []engine.AllocationStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func paginate(rs []*engine.Resource, limit, offset int) []*engine.Resource {
	if offset > 0 {
		if offset >= len(rs) {
			return nil
		}
		rs = rs[offset:]
	}
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	return rs
}
