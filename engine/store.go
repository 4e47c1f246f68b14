/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the contract between the engine and its external collaborators:
  durable storage and notification delivery. The engine issues read/write
  intents; the store owns the persistence technology.

KEY INTERFACES:
  Store:    Resources, allocations, calendar entries, KPI snapshots
  TxStore:  Store plus WithTx for atomic multi-write units of work
  Notifier: Notification trigger delivery (storage/transport out of scope)

ATOMIC UNITS OF WORK:
  Every allocation create/status-update is one transaction spanning the
  allocation row, the owning resource's status, and the touched calendar
  days. WithTx either commits all of it or none of it.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - engine/store: In-memory for testing
*/
package engine

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// ResourceFilter narrows resource listings. Nil fields are ignored.
type ResourceFilter struct {
	ProviderID *ProviderID
	Category   *string
	Status     *ResourceStatus

	// Matches resources whose range shares at least one day with this range.
	Overlaps *DateRange

	MinPersons *int

	Limit  int
	Offset int
}

// AllocationFilter narrows allocation listings. Nil fields are ignored.
type AllocationFilter struct {
	ResourceID *ResourceID
	TradeID    *TradeID
	StatusIn   []AllocationStatus
	Overlaps   *DateRange
}

// CalendarFilter narrows calendar queries. Nil fields are ignored.
type CalendarFilter struct {
	ProviderID *ProviderID
	ResourceID *ResourceID
	From       *Day
	To         *Day
}

// =============================================================================
// STORE
// =============================================================================

// Store is the durable-storage collaborator. A Resource exclusively owns
// its allocations and calendar entries: DeleteResource cascades both.
type Store interface {
	SaveResource(ctx context.Context, r *Resource) error
	GetResource(ctx context.Context, id ResourceID) (*Resource, error)
	ListResources(ctx context.Context, f ResourceFilter) ([]*Resource, error)
	DeleteResource(ctx context.Context, id ResourceID) error

	SaveAllocation(ctx context.Context, a *Allocation) error
	GetAllocation(ctx context.Context, id AllocationID) (*Allocation, error)
	ListAllocations(ctx context.Context, f AllocationFilter) ([]*Allocation, error)
	DeleteAllocation(ctx context.Context, id AllocationID) error

	// ReplaceCalendar discards every entry for the resource and writes the
	// given set. Used for initial projection and destructive re-projection.
	ReplaceCalendar(ctx context.Context, id ResourceID, entries []CalendarEntry) error

	// UpsertCalendarEntries writes entries keyed by (resource, day).
	UpsertCalendarEntries(ctx context.Context, entries []CalendarEntry) error
	ListCalendarEntries(ctx context.Context, f CalendarFilter) ([]CalendarEntry, error)

	// UpsertKPI writes a snapshot keyed by (provider, period start, period end).
	// Recomputation overwrites, never appends.
	UpsertKPI(ctx context.Context, k *KPI) error

	// GetKPI returns (nil, nil) when no snapshot exists for the period.
	GetKPI(ctx context.Context, provider ProviderID, period DateRange) (*KPI, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier is the notification collaborator. The engine only decides WHEN
// to notify; delivery and read-state tracking live outside the core.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, n Notification) error { return nil }
