/*
resource.go - Resource lifecycle and search

PURPOSE:
  Handles creation, typed partial updates, deletion and search of
  resources. Creation projects the initial calendar; edits to the
  capacity-defining fields (dates, headcount, daily hours) recompute
  total hours and destructively re-project the calendar.

PARTIAL UPDATES:
  ResourcePatch models partial updates as one optional field per
  attribute: only explicitly set (non-nil) fields are applied. No dynamic
  field inspection.

RE-PROJECTION CAVEAT:
  Re-projection discards every existing calendar entry, including
  allocation-derived day coloring, and replaces them with fresh
  "available" entries. Coloring returns the next time the overlapping
  allocations are reconciled.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ResourceService struct {
	Store TxStore
	Now   func() time.Time
}

func NewResourceService(store TxStore) *ResourceService {
	return &ResourceService{Store: store, Now: time.Now}
}

func (s *ResourceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateResourceInput carries a new resource definition.
type CreateResourceInput struct {
	ProviderID  ProviderID
	ProjectID   string
	Range       DateRange
	PersonCount int
	DailyHours  float64
	Category    string
	Subcategory string
	Location    *Coordinates
	Visibility  Visibility
	HourlyRate  decimal.Decimal
	DailyRate   decimal.Decimal
	Currency    string
	Description string
	Skills      []string
	Equipment   []string
}

// Create persists a resource and its initial calendar projection
// atomically: one available entry per day of the range.
func (s *ResourceService) Create(ctx context.Context, in CreateResourceInput) (*Resource, error) {
	if !in.Range.Valid() {
		return nil, &InvalidRangeError{Range: in.Range, Reason: "end before start"}
	}
	if in.PersonCount <= 0 {
		return nil, ErrInvalidPersonCount
	}
	if in.DailyHours <= 0 {
		in.DailyHours = 8
	}
	if in.Visibility == "" {
		in.Visibility = VisibilityPublic
	}
	if in.Currency == "" {
		in.Currency = "EUR"
	}

	now := s.now()
	r := &Resource{
		ID:          ResourceID(uuid.NewString()),
		ProviderID:  in.ProviderID,
		ProjectID:   in.ProjectID,
		Range:       in.Range,
		PersonCount: in.PersonCount,
		DailyHours:  in.DailyHours,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Location:    in.Location,
		Status:      ResourceAvailable,
		Visibility:  in.Visibility,
		HourlyRate:  in.HourlyRate,
		DailyRate:   in.DailyRate,
		Currency:    in.Currency,
		Description: in.Description,
		Skills:      in.Skills,
		Equipment:   in.Equipment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.TotalHours = r.ComputeTotalHours()

	err := s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveResource(ctx, r); err != nil {
			return err
		}
		return st.ReplaceCalendar(ctx, r.ID, ProjectCalendar(r))
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ResourcePatch is a typed partial update: only non-nil fields apply.
type ResourcePatch struct {
	StartDate   *Day
	EndDate     *Day
	PersonCount *int
	DailyHours  *float64
	Category    *string
	Subcategory *string
	Location    *Coordinates
	Status      *ResourceStatus
	Visibility  *Visibility
	HourlyRate  *decimal.Decimal
	DailyRate   *decimal.Decimal
	Currency    *string
	Description *string
	Skills      *[]string
	Equipment   *[]string
}

// capacityChanged reports whether the patch touches the fields that define
// the calendar projection and total hours.
func (p ResourcePatch) capacityChanged() bool {
	return p.StartDate != nil || p.EndDate != nil || p.PersonCount != nil || p.DailyHours != nil
}

func (p ResourcePatch) apply(r *Resource) {
	if p.StartDate != nil {
		r.Range.Start = *p.StartDate
	}
	if p.EndDate != nil {
		r.Range.End = *p.EndDate
	}
	if p.PersonCount != nil {
		r.PersonCount = *p.PersonCount
	}
	if p.DailyHours != nil {
		r.DailyHours = *p.DailyHours
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Subcategory != nil {
		r.Subcategory = *p.Subcategory
	}
	if p.Location != nil {
		r.Location = p.Location
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Visibility != nil {
		r.Visibility = *p.Visibility
	}
	if p.HourlyRate != nil {
		r.HourlyRate = *p.HourlyRate
	}
	if p.DailyRate != nil {
		r.DailyRate = *p.DailyRate
	}
	if p.Currency != nil {
		r.Currency = *p.Currency
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Skills != nil {
		r.Skills = *p.Skills
	}
	if p.Equipment != nil {
		r.Equipment = *p.Equipment
	}
}

// Update applies a patch. When dates, headcount or daily hours change,
// total hours are recomputed and the calendar is destructively
// re-projected (see the file header caveat).
func (s *ResourceService) Update(ctx context.Context, id ResourceID, patch ResourcePatch) (*Resource, error) {
	var updated *Resource
	err := s.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetResource(ctx, id)
		if err != nil {
			return err
		}

		patch.apply(r)
		if !r.Range.Valid() {
			return &InvalidRangeError{Range: r.Range, Reason: "end before start"}
		}
		if r.PersonCount <= 0 {
			return ErrInvalidPersonCount
		}

		r.UpdatedAt = s.now()
		if patch.capacityChanged() {
			r.TotalHours = r.ComputeTotalHours()
		}
		if err := st.SaveResource(ctx, r); err != nil {
			return err
		}

		if patch.capacityChanged() {
			if err := st.ReplaceCalendar(ctx, r.ID, ProjectCalendar(r)); err != nil {
				return err
			}
		}

		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a resource. The store cascades its allocations and
// calendar entries.
func (s *ResourceService) Delete(ctx context.Context, id ResourceID) error {
	return s.Store.DeleteResource(ctx, id)
}

func (s *ResourceService) Get(ctx context.Context, id ResourceID) (*Resource, error) {
	return s.Store.GetResource(ctx, id)
}

func (s *ResourceService) List(ctx context.Context, f ResourceFilter) ([]*Resource, error) {
	return s.Store.ListResources(ctx, f)
}

// Calendar returns a provider's calendar entries over a window, ordered
// by day.
func (s *ResourceService) Calendar(ctx context.Context, provider ProviderID, rng DateRange) ([]CalendarEntry, error) {
	return s.Store.ListCalendarEntries(ctx, CalendarFilter{
		ProviderID: &provider,
		From:       &rng.Start,
		To:         &rng.End,
	})
}

// =============================================================================
// GEO SEARCH
// =============================================================================

// GeoSearchInput bounds a radius search around a point. Optional filters
// narrow by category, availability window and maximum hourly rate.
type GeoSearchInput struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64

	Category      *string
	Available     *DateRange
	MaxHourlyRate *decimal.Decimal
}

// SearchGeo returns resources within the radius, nearest-agnostic linear
// scan. Resources without stored coordinates are excluded, never an
// error. Empty results are a valid outcome.
func (s *ResourceService) SearchGeo(ctx context.Context, in GeoSearchInput) ([]*Resource, error) {
	f := ResourceFilter{Category: in.Category, Overlaps: in.Available}
	candidates, err := s.Store.ListResources(ctx, f)
	if err != nil {
		return nil, err
	}

	matches := make([]*Resource, 0, len(candidates))
	for _, r := range candidates {
		if r.Location == nil {
			continue
		}
		if in.MaxHourlyRate != nil && r.HourlyRate.GreaterThan(*in.MaxHourlyRate) {
			continue
		}
		d := Distance(in.Latitude, in.Longitude, r.Location.Latitude, r.Location.Longitude)
		if d <= in.RadiusKm {
			matches = append(matches, r)
		}
	}
	return matches, nil
}
