/*
Package engine provides the core resource allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for managing
  service-provider labor/equipment capacity over time: availability
  checking, the allocation offer/acceptance lifecycle, the day-granular
  calendar projection, and periodic KPI aggregation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Resource:      A block of capacity (people x days x hours) offered by a provider
  - Allocation:    A claim against a Resource's capacity for a trade/project
  - CalendarEntry: The per-day occupancy projection of a Resource
  - KPI:           A recomputable utilization/financial aggregate per provider+period
  - Notification:  A trigger record handed to the Notifier collaborator

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money (rates, costs, revenue)
  2. Type Safety: Strong typing for IDs prevents mixing resource/allocation IDs
  3. Explicit storage: Every operation receives a Store; no process-wide state
  4. Day granularity: All date math is inclusive [start, end] calendar days

SEE ALSO:
  - daterange.go:    Day and DateRange primitives
  - availability.go: Capacity rules
  - allocation.go:   Status transition table and side effects
  - calendar.go:     Calendar projection and reconciliation
  - kpi.go:          Period aggregation
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProviderID string
type ResourceID string
type AllocationID string
type TradeID string

// =============================================================================
// RESOURCE - Capacity offered by a service provider over a date range
// =============================================================================

type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceAllocated ResourceStatus = "allocated"
	ResourceCompleted ResourceStatus = "completed"
	ResourceCancelled ResourceStatus = "cancelled"
)

type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityPrivate    Visibility = "private"
	VisibilityRestricted Visibility = "restricted"
)

type Resource struct {
	ID         ResourceID
	ProviderID ProviderID
	ProjectID  string

	// Validity window. Allocations must be a subrange of this.
	Range DateRange

	// Capacity
	PersonCount int
	DailyHours  float64
	TotalHours  float64 // derived: days x daily hours x persons

	Category    string
	Subcategory string

	// Optional coordinates; resources without them are excluded from geo search.
	Location *Coordinates

	Status     ResourceStatus
	Visibility Visibility

	// Pricing
	HourlyRate decimal.Decimal
	DailyRate  decimal.Decimal
	Currency   string

	Description string
	Skills      []string
	Equipment   []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputeTotalHours derives the resource's total capacity in hours.
func (r *Resource) ComputeTotalHours() float64 {
	return float64(r.Range.DayCount()) * r.DailyHours * float64(r.PersonCount)
}

// =============================================================================
// ALLOCATION - A claim against resource capacity
// =============================================================================

type AllocationStatus string

const (
	StatusPreSelected    AllocationStatus = "pre_selected"
	StatusInvited        AllocationStatus = "invited"
	StatusOfferRequested AllocationStatus = "offer_requested"
	StatusOfferSubmitted AllocationStatus = "offer_submitted"
	StatusAccepted       AllocationStatus = "accepted"
	StatusConfirmed      AllocationStatus = "confirmed"
	StatusRejected       AllocationStatus = "rejected"
	StatusCompleted      AllocationStatus = "completed"
)

// ConsumesCapacity reports whether an allocation in this status blocks
// capacity during availability checks. Pending/pre-selected/invited
// allocations are optimistic: multiple simultaneous offers are allowed
// until one is accepted.
func (s AllocationStatus) ConsumesCapacity() bool {
	return s == StatusAccepted || s == StatusConfirmed
}

type Allocation struct {
	ID         AllocationID
	ResourceID ResourceID
	TradeID    TradeID
	QuoteID    string

	// Allocated subrange of the resource's validity window.
	Range       DateRange
	PersonCount int
	Hours       float64 // derived: days x resource daily hours x persons

	Status AllocationStatus

	// Pricing snapshot at agreement time
	AgreedHourlyRate decimal.Decimal
	AgreedDailyRate  decimal.Decimal
	TotalCost        decimal.Decimal

	// Workflow timestamps, stamped by status transitions
	InvitationSentAt   *time.Time
	InvitationViewedAt *time.Time
	OfferRequestedAt   *time.Time
	OfferSubmittedAt   *time.Time
	DecisionMadeAt     *time.Time

	Notes           string
	RejectionReason string
	Priority        int

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CALENDAR ENTRY - Per-day occupancy projection, unique per (resource, day)
// =============================================================================

type CalendarStatus string

const (
	CalendarAvailable CalendarStatus = "available"
	CalendarTentative CalendarStatus = "tentative"
	CalendarAllocated CalendarStatus = "allocated"
	CalendarCompleted CalendarStatus = "completed"
)

// Display colors per calendar status (HEX).
const (
	ColorAvailable = "#4CAF50"
	ColorTentative = "#2196F3"
	ColorAllocated = "#FF9800"
	ColorCompleted = "#9E9E9E"
)

func (s CalendarStatus) Color() string {
	switch s {
	case CalendarTentative:
		return ColorTentative
	case CalendarAllocated:
		return ColorAllocated
	case CalendarCompleted:
		return ColorCompleted
	default:
		return ColorAvailable
	}
}

type CalendarEntry struct {
	ResourceID ResourceID
	ProviderID ProviderID
	Day        Day

	PersonCount    int
	HoursAllocated float64

	Status CalendarStatus
	Color  string
	Label  string

	// Allocation currently occupying this day, if any.
	AllocationID *AllocationID
}

// =============================================================================
// KPI - Point-in-time aggregate per (provider, period), recomputed via upsert
// =============================================================================

type KPI struct {
	ProviderID      ProviderID
	CalculationDate Day
	Period          DateRange

	// Resource counts over resources overlapping the period
	ResourcesAvailable int
	ResourcesAllocated int
	ResourcesCompleted int

	// Capacity metrics (person-days clamped to the period)
	PersonDaysAvailable int
	PersonDaysAllocated int
	PersonDaysCompleted int

	// Percentage in [0, 100]; 0 when no capacity was available.
	UtilizationRate float64

	AverageHourlyRate decimal.Decimal
	AverageDailyRate  decimal.Decimal

	TotalRevenue          decimal.Decimal
	TotalPotentialRevenue decimal.Decimal

	InvitationsSent int
	OffersSubmitted int
	OffersAccepted  int
	SuccessRate     float64
}

// =============================================================================
// NOTIFICATION - Trigger record for the external notification collaborator
// =============================================================================

type NotificationType string

const (
	NotifyInvitation     NotificationType = "invitation"
	NotifyOfferRequest   NotificationType = "offer_request"
	NotifyOfferSubmitted NotificationType = "offer_submitted"
	NotifyAllocationOK   NotificationType = "allocation_confirmed"
	NotifyAllocationNo   NotificationType = "allocation_rejected"
)

type Notification struct {
	ID      string
	UserID  string
	Type    NotificationType
	Title   string
	Message string

	ResourceID   *ResourceID
	AllocationID *AllocationID

	CreatedAt time.Time
}
