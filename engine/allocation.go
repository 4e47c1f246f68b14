/*
allocation.go - Allocation lifecycle and status transition machine

PURPOSE:
  Governs the full lifecycle of allocations against resource capacity:
  1. Creation: capacity-checked, persisted with its calendar side effects
  2. Status transitions: timestamps, resource status, calendar, notifications
  3. Bulk creation: sequential, per-item result reporting

STATUS FLOW:
  pre_selected -> invited -> offer_requested -> offer_submitted
                                                  |
                                       +----------+----------+
                                       v                     v
                                   accepted              rejected
                                       |
                                       v
                                   completed

  Transitions are not strictly sequential in enforcement: any status can
  be set directly. Each transition has defined side effects, enumerated in
  the transitions table below so they stay exhaustively testable.

ATOMICITY:
  Every create/update runs inside Store.WithTx: the allocation row, the
  owning resource's status and the touched calendar days commit or roll
  back together. Accept transitions re-check capacity inside the same
  transaction so two concurrent accepts cannot jointly overbook.

NOTIFICATIONS:
  Trigger points fire after the unit of work commits; delivery is the
  Notifier collaborator's problem and is best-effort here.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSITION TABLE - target status -> side-effect set
// =============================================================================

type transitionEffects struct {
	// stamp records the workflow timestamp for entering the status.
	stamp func(a *Allocation, now time.Time)

	// markAllocated sets the owning resource's status to "allocated".
	markAllocated bool

	// maybeRelease resets the resource to "available" when no other
	// accepted allocation remains on it.
	maybeRelease bool

	notify NotificationType
}

var transitions = map[AllocationStatus]transitionEffects{
	StatusInvited: {
		stamp:  func(a *Allocation, now time.Time) { a.InvitationSentAt = &now },
		notify: NotifyInvitation,
	},
	StatusOfferRequested: {
		stamp:  func(a *Allocation, now time.Time) { a.OfferRequestedAt = &now },
		notify: NotifyOfferRequest,
	},
	StatusOfferSubmitted: {
		stamp:  func(a *Allocation, now time.Time) { a.OfferSubmittedAt = &now },
		notify: NotifyOfferSubmitted,
	},
	StatusAccepted: {
		stamp:         func(a *Allocation, now time.Time) { a.DecisionMadeAt = &now },
		markAllocated: true,
		notify:        NotifyAllocationOK,
	},
	StatusConfirmed: {
		markAllocated: true,
	},
	StatusRejected: {
		stamp:        func(a *Allocation, now time.Time) { a.DecisionMadeAt = &now },
		maybeRelease: true,
		notify:       NotifyAllocationNo,
	},
	StatusPreSelected: {},
	StatusCompleted:   {},
}

// =============================================================================
// ALLOCATION SERVICE
// =============================================================================

type AllocationService struct {
	Store    TxStore
	Notifier Notifier

	// Now is the clock; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func NewAllocationService(store TxStore, notifier Notifier) *AllocationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AllocationService{Store: store, Notifier: notifier, Now: time.Now}
}

func (s *AllocationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateAllocationInput carries everything needed to claim capacity.
type CreateAllocationInput struct {
	ResourceID  ResourceID
	TradeID     TradeID
	QuoteID     string
	Range       DateRange
	PersonCount int

	// Initial status; defaults to pre_selected.
	Status AllocationStatus

	AgreedHourlyRate decimal.Decimal
	AgreedDailyRate  decimal.Decimal
	TotalCost        decimal.Decimal

	Priority  int
	Notes     string
	CreatedBy string
}

// Create validates availability and persists a new allocation together
// with its resource-status and calendar side effects, atomically.
// A failed capacity check persists nothing.
func (s *AllocationService) Create(ctx context.Context, in CreateAllocationInput) (*Allocation, error) {
	if in.Status == "" {
		in.Status = StatusPreSelected
	}
	if !in.Range.Valid() {
		return nil, &InvalidRangeError{Range: in.Range, Reason: "end before start"}
	}
	if in.PersonCount <= 0 {
		return nil, ErrInvalidPersonCount
	}

	var created *Allocation
	err := s.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetResource(ctx, in.ResourceID)
		if err != nil {
			return err
		}
		if !r.Range.ContainsRange(in.Range) {
			return &InvalidRangeError{
				Range:  in.Range,
				Window: r.Range,
				Reason: "allocation outside resource validity window",
			}
		}

		existing, err := st.ListAllocations(ctx, AllocationFilter{ResourceID: &in.ResourceID})
		if err != nil {
			return err
		}
		if !CheckAvailability(r, in.Range, in.PersonCount, existing) {
			return &CapacityConflictError{
				ResourceID: r.ID,
				Range:      in.Range,
				Requested:  in.PersonCount,
				Available:  AvailablePersons(r, in.Range, existing),
			}
		}

		now := s.now()
		a := &Allocation{
			ID:               AllocationID(uuid.NewString()),
			ResourceID:       r.ID,
			TradeID:          in.TradeID,
			QuoteID:          in.QuoteID,
			Range:            in.Range,
			PersonCount:      in.PersonCount,
			Hours:            float64(in.Range.DayCount()) * r.DailyHours * float64(in.PersonCount),
			Status:           in.Status,
			AgreedHourlyRate: in.AgreedHourlyRate,
			AgreedDailyRate:  in.AgreedDailyRate,
			TotalCost:        in.TotalCost,
			Priority:         in.Priority,
			Notes:            in.Notes,
			CreatedBy:        in.CreatedBy,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := st.SaveAllocation(ctx, a); err != nil {
			return err
		}

		if a.Status.ConsumesCapacity() {
			r.Status = ResourceAllocated
			r.UpdatedAt = now
			if err := st.SaveResource(ctx, r); err != nil {
				return err
			}
		}

		if err := s.reconcile(ctx, st, r, a, nil); err != nil {
			return err
		}

		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateStatus moves an allocation to the given status and applies the
// transition's side effects atomically. For rejections, notes doubles as
// the rejection reason.
func (s *AllocationService) UpdateStatus(ctx context.Context, id AllocationID, to AllocationStatus, notes string) (*Allocation, error) {
	eff, ok := transitions[to]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}

	var (
		updated  *Allocation
		resource *Resource
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		a, err := st.GetAllocation(ctx, id)
		if err != nil {
			return err
		}
		r, err := st.GetResource(ctx, a.ResourceID)
		if err != nil {
			return err
		}

		// Accepting starts consuming capacity: re-check inside the
		// transaction so concurrent accepts cannot jointly overbook.
		if to.ConsumesCapacity() && !a.Status.ConsumesCapacity() {
			others, err := s.otherAllocations(ctx, st, a)
			if err != nil {
				return err
			}
			if !CheckAvailability(r, a.Range, a.PersonCount, others) {
				return &CapacityConflictError{
					ResourceID: r.ID,
					Range:      a.Range,
					Requested:  a.PersonCount,
					Available:  AvailablePersons(r, a.Range, others),
				}
			}
		}

		now := s.now()
		a.Status = to
		if notes != "" {
			a.Notes = notes
			if to == StatusRejected {
				a.RejectionReason = notes
			}
		}
		if eff.stamp != nil {
			eff.stamp(a, now)
		}
		a.UpdatedAt = now
		if err := st.SaveAllocation(ctx, a); err != nil {
			return err
		}

		if eff.markAllocated {
			r.Status = ResourceAllocated
			r.UpdatedAt = now
			if err := st.SaveResource(ctx, r); err != nil {
				return err
			}
		}
		if eff.maybeRelease {
			accepted := []AllocationStatus{StatusAccepted}
			remaining, err := st.ListAllocations(ctx, AllocationFilter{
				ResourceID: &a.ResourceID,
				StatusIn:   accepted,
			})
			if err != nil {
				return err
			}
			count := 0
			for _, other := range remaining {
				if other.ID != a.ID {
					count++
				}
			}
			if count == 0 {
				r.Status = ResourceAvailable
				r.UpdatedAt = now
				if err := st.SaveResource(ctx, r); err != nil {
					return err
				}
			}
		}

		var others []*Allocation
		if to == StatusRejected {
			if others, err = s.otherAllocations(ctx, st, a); err != nil {
				return err
			}
		}
		if err := s.reconcile(ctx, st, r, a, others); err != nil {
			return err
		}

		updated = a
		resource = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if eff.notify != "" {
		// Delivery is best-effort and outside the committed unit of work.
		_ = s.Notifier.Notify(ctx, notification(eff.notify, resource, updated, s.now()))
	}
	return updated, nil
}

// MarkInvitationViewed stamps invitation_viewed_at.
func (s *AllocationService) MarkInvitationViewed(ctx context.Context, id AllocationID) (*Allocation, error) {
	var updated *Allocation
	err := s.Store.WithTx(ctx, func(st Store) error {
		a, err := st.GetAllocation(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		a.InvitationViewedAt = &now
		a.UpdatedAt = now
		if err := st.SaveAllocation(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get retrieves a single allocation.
func (s *AllocationService) Get(ctx context.Context, id AllocationID) (*Allocation, error) {
	return s.Store.GetAllocation(ctx, id)
}

// List returns allocations matching the filter.
func (s *AllocationService) List(ctx context.Context, f AllocationFilter) ([]*Allocation, error) {
	return s.Store.ListAllocations(ctx, f)
}

// Delete removes an allocation and repairs its side effects: the covered
// calendar days are rebuilt from the surviving allocations, and the
// resource returns to available when no accepted allocation remains.
func (s *AllocationService) Delete(ctx context.Context, id AllocationID) error {
	return s.Store.WithTx(ctx, func(st Store) error {
		a, err := st.GetAllocation(ctx, id)
		if err != nil {
			return err
		}
		r, err := st.GetResource(ctx, a.ResourceID)
		if err != nil {
			return err
		}
		survivors, err := s.otherAllocations(ctx, st, a)
		if err != nil {
			return err
		}
		if err := st.DeleteAllocation(ctx, id); err != nil {
			return err
		}

		stillAccepted := false
		for _, other := range survivors {
			if other.Status == StatusAccepted {
				stillAccepted = true
				break
			}
		}
		if !stillAccepted && r.Status == ResourceAllocated {
			r.Status = ResourceAvailable
			r.UpdatedAt = s.now()
			if err := st.SaveResource(ctx, r); err != nil {
				return err
			}
		}

		entries, err := st.ListCalendarEntries(ctx, CalendarFilter{
			ResourceID: &a.ResourceID,
			From:       &a.Range.Start,
			To:         &a.Range.End,
		})
		if err != nil {
			return err
		}
		if changed := RebuildDayStates(entries, survivors); len(changed) > 0 {
			return st.UpsertCalendarEntries(ctx, changed)
		}
		return nil
	})
}

// BulkResult reports the outcome of one item of a bulk creation.
type BulkResult struct {
	Allocation *Allocation
	Err        error
}

// CreateBulk creates allocations sequentially. The batch is not
// all-or-nothing: each item either succeeds or reports its own error,
// while each individual allocation's side effects stay atomic.
func (s *AllocationService) CreateBulk(ctx context.Context, inputs []CreateAllocationInput) []BulkResult {
	results := make([]BulkResult, 0, len(inputs))
	for _, in := range inputs {
		a, err := s.Create(ctx, in)
		results = append(results, BulkResult{Allocation: a, Err: err})
	}
	return results
}

// =============================================================================
// INTERNAL
// =============================================================================

// reconcile repaints the calendar days the allocation covers. For
// rejections the surviving allocations decide each day's state; otherwise
// the allocation itself is painted. Days without a calendar row (outside
// any projected range) are skipped, never an error.
func (s *AllocationService) reconcile(ctx context.Context, st Store, r *Resource, a *Allocation, others []*Allocation) error {
	entries, err := st.ListCalendarEntries(ctx, CalendarFilter{
		ResourceID: &a.ResourceID,
		From:       &a.Range.Start,
		To:         &a.Range.End,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var changed []CalendarEntry
	if a.Status == StatusRejected {
		changed = RebuildDayStates(entries, others)
	} else {
		changed = ReconcileCalendar(entries, a)
	}
	if len(changed) == 0 {
		return nil
	}
	return st.UpsertCalendarEntries(ctx, changed)
}

func (s *AllocationService) otherAllocations(ctx context.Context, st Store, a *Allocation) ([]*Allocation, error) {
	all, err := st.ListAllocations(ctx, AllocationFilter{ResourceID: &a.ResourceID})
	if err != nil {
		return nil, err
	}
	others := all[:0]
	for _, other := range all {
		if other.ID != a.ID {
			others = append(others, other)
		}
	}
	return others, nil
}

func notification(typ NotificationType, r *Resource, a *Allocation, now time.Time) Notification {
	var title, message string
	switch typ {
	case NotifyInvitation:
		title = "Resource invitation"
		message = fmt.Sprintf("Your resource %q was invited for trade %s (%s).", r.Category, a.TradeID, a.Range)
	case NotifyOfferRequest:
		title = "Offer requested"
		message = fmt.Sprintf("An offer was requested for your resource %q (%s).", r.Category, a.Range)
	case NotifyOfferSubmitted:
		title = "Offer submitted"
		message = fmt.Sprintf("An offer was submitted for trade %s (%s).", a.TradeID, a.Range)
	case NotifyAllocationOK:
		title = "Allocation accepted"
		message = fmt.Sprintf("Your offer for trade %s was accepted: %d persons, %s.", a.TradeID, a.PersonCount, a.Range)
	case NotifyAllocationNo:
		title = "Allocation rejected"
		message = fmt.Sprintf("Your offer for trade %s was rejected.", a.TradeID)
	}

	rid := r.ID
	aid := a.ID
	return Notification{
		ID:           uuid.NewString(),
		UserID:       string(r.ProviderID),
		Type:         typ,
		Title:        title,
		Message:      message,
		ResourceID:   &rid,
		AllocationID: &aid,
		CreatedAt:    now,
	}
}
