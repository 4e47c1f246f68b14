/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.TxStore and engine.Notifier using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.TxStore:  Resources, allocations, calendar entries, KPI snapshots
  engine.Notifier: Notification trigger persistence

KEY TABLES:
  resources:                Capacity blocks offered by providers
  resource_allocations:     Claims against resource capacity (cascade on resource delete)
  resource_calendar_entries: Per-day occupancy, unique per (resource, day)
  resource_kpis:            Aggregates, unique per (provider, period)
  resource_notifications:   Workflow trigger records

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. All SQL helpers take a querier and
  never lock themselves, so WithTx bodies can reuse them on the open
  *sql.Tx without re-entering the mutex.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/resources.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/buildwise/resource-engine/engine"
)

// Store implements engine.TxStore and engine.Notifier using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A second pooled connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Resources (capacity blocks)
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		service_provider_id TEXT NOT NULL,
		project_id TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		person_count INTEGER NOT NULL,
		daily_hours REAL NOT NULL,
		total_hours REAL NOT NULL,
		category TEXT NOT NULL,
		subcategory TEXT,
		latitude REAL,
		longitude REAL,
		status TEXT NOT NULL,
		visibility TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		daily_rate TEXT NOT NULL,
		currency TEXT NOT NULL,
		description TEXT,
		skills_json TEXT,
		equipment_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_provider
		ON resources(service_provider_id);
	CREATE INDEX IF NOT EXISTS idx_resources_status
		ON resources(status);

	-- Composite index for availability windows (hot path)
	CREATE INDEX IF NOT EXISTS idx_resources_dates
		ON resources(start_date, end_date);

	-- Allocations (claims against capacity)
	CREATE TABLE IF NOT EXISTS resource_allocations (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
		trade_id TEXT NOT NULL,
		quote_id TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		person_count INTEGER NOT NULL,
		hours REAL NOT NULL,
		status TEXT NOT NULL,
		agreed_hourly_rate TEXT NOT NULL,
		agreed_daily_rate TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		invitation_sent_at TEXT,
		invitation_viewed_at TEXT,
		offer_requested_at TEXT,
		offer_submitted_at TEXT,
		decision_made_at TEXT,
		notes TEXT,
		rejection_reason TEXT,
		priority INTEGER DEFAULT 0,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_resource
		ON resource_allocations(resource_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_trade
		ON resource_allocations(trade_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_status
		ON resource_allocations(status);

	-- Composite index for overlap scans during availability checks (hot path)
	CREATE INDEX IF NOT EXISTS idx_allocations_resource_dates
		ON resource_allocations(resource_id, start_date, end_date);

	-- Calendar entries (per-day projection)
	CREATE TABLE IF NOT EXISTS resource_calendar_entries (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
		service_provider_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		person_count INTEGER NOT NULL,
		hours_allocated REAL NOT NULL,
		status TEXT NOT NULL,
		color TEXT NOT NULL,
		label TEXT,
		allocation_id TEXT,
		UNIQUE(resource_id, entry_date)
	);

	CREATE INDEX IF NOT EXISTS idx_calendar_provider_date
		ON resource_calendar_entries(service_provider_id, entry_date);

	-- KPI snapshots, recomputed via upsert
	CREATE TABLE IF NOT EXISTS resource_kpis (
		id TEXT PRIMARY KEY,
		service_provider_id TEXT NOT NULL,
		calculation_date TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		resources_available INTEGER NOT NULL,
		resources_allocated INTEGER NOT NULL,
		resources_completed INTEGER NOT NULL,
		person_days_available INTEGER NOT NULL,
		person_days_allocated INTEGER NOT NULL,
		person_days_completed INTEGER NOT NULL,
		utilization_rate REAL NOT NULL,
		average_hourly_rate TEXT NOT NULL,
		average_daily_rate TEXT NOT NULL,
		total_revenue TEXT NOT NULL,
		total_potential_revenue TEXT NOT NULL,
		invitations_sent INTEGER NOT NULL,
		offers_submitted INTEGER NOT NULL,
		offers_accepted INTEGER NOT NULL,
		success_rate REAL NOT NULL,
		UNIQUE(service_provider_id, period_start, period_end)
	);

	-- Notification trigger records
	CREATE TABLE IF NOT EXISTS resource_notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		resource_id TEXT,
		allocation_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON resource_notifications(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RESOURCES
// =============================================================================

// SaveResource inserts or replaces a resource row.
func (s *Store) SaveResource(ctx context.Context, r *engine.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveResource(ctx, s.db, r)
}

func saveResource(ctx context.Context, q querier, r *engine.Resource) error {
	skillsJSON, _ := json.Marshal(r.Skills)
	equipmentJSON, _ := json.Marshal(r.Equipment)

	var lat, lon any
	if r.Location != nil {
		lat, lon = r.Location.Latitude, r.Location.Longitude
	}

	query := `
		INSERT INTO resources
		(id, service_provider_id, project_id, start_date, end_date, person_count,
		 daily_hours, total_hours, category, subcategory, latitude, longitude,
		 status, visibility, hourly_rate, daily_rate, currency, description,
		 skills_json, equipment_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			service_provider_id = excluded.service_provider_id,
			project_id = excluded.project_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			person_count = excluded.person_count,
			daily_hours = excluded.daily_hours,
			total_hours = excluded.total_hours,
			category = excluded.category,
			subcategory = excluded.subcategory,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			status = excluded.status,
			visibility = excluded.visibility,
			hourly_rate = excluded.hourly_rate,
			daily_rate = excluded.daily_rate,
			currency = excluded.currency,
			description = excluded.description,
			skills_json = excluded.skills_json,
			equipment_json = excluded.equipment_json,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		string(r.ID),
		string(r.ProviderID),
		nullString(r.ProjectID),
		r.Range.Start.String(),
		r.Range.End.String(),
		r.PersonCount,
		r.DailyHours,
		r.TotalHours,
		r.Category,
		nullString(r.Subcategory),
		lat,
		lon,
		string(r.Status),
		string(r.Visibility),
		r.HourlyRate.String(),
		r.DailyRate.String(),
		r.Currency,
		nullString(r.Description),
		string(skillsJSON),
		string(equipmentJSON),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

const resourceColumns = `id, service_provider_id, project_id, start_date, end_date, person_count,
	daily_hours, total_hours, category, subcategory, latitude, longitude,
	status, visibility, hourly_rate, daily_rate, currency, description,
	skills_json, equipment_json, created_at, updated_at`

// GetResource retrieves a resource by ID.
func (s *Store) GetResource(ctx context.Context, id engine.ResourceID) (*engine.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getResource(ctx, s.db, id)
}

func getResource(ctx context.Context, q querier, id engine.ResourceID) (*engine.Resource, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+resourceColumns+" FROM resources WHERE id = ?", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query resource: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, engine.ErrResourceNotFound
	}
	return scanResource(rows)
}

// ListResources returns resources matching the filter.
func (s *Store) ListResources(ctx context.Context, f engine.ResourceFilter) ([]*engine.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listResources(ctx, s.db, f)
}

func listResources(ctx context.Context, q querier, f engine.ResourceFilter) ([]*engine.Resource, error) {
	var where []string
	var args []any

	if f.ProviderID != nil {
		where = append(where, "service_provider_id = ?")
		args = append(args, string(*f.ProviderID))
	}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *f.Category)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Overlaps != nil {
		// Inclusive day-range overlap
		where = append(where, "start_date <= ? AND end_date >= ?")
		args = append(args, f.Overlaps.End.String(), f.Overlaps.Start.String())
	}
	if f.MinPersons != nil {
		where = append(where, "person_count >= ?")
		args = append(args, *f.MinPersons)
	}

	query := "SELECT " + resourceColumns + " FROM resources"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	} else if f.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var out []*engine.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResource(rows *sql.Rows) (*engine.Resource, error) {
	var (
		r                      engine.Resource
		id, provider           string
		projectID, subcategory sql.NullString
		startDate, endDate     string
		lat, lon               sql.NullFloat64
		status, visibility     string
		hourlyRate, dailyRate  string
		description            sql.NullString
		skillsJSON             sql.NullString
		equipmentJSON          sql.NullString
		createdAt, updatedAt   string
	)

	err := rows.Scan(
		&id, &provider, &projectID, &startDate, &endDate, &r.PersonCount,
		&r.DailyHours, &r.TotalHours, &r.Category, &subcategory, &lat, &lon,
		&status, &visibility, &hourlyRate, &dailyRate, &r.Currency, &description,
		&skillsJSON, &equipmentJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}

	r.ID = engine.ResourceID(id)
	r.ProviderID = engine.ProviderID(provider)
	r.ProjectID = projectID.String
	r.Subcategory = subcategory.String
	r.Description = description.String
	r.Status = engine.ResourceStatus(status)
	r.Visibility = engine.Visibility(visibility)
	r.Range.Start, _ = engine.ParseDay(startDate)
	r.Range.End, _ = engine.ParseDay(endDate)
	r.HourlyRate = parseDecimal(hourlyRate)
	r.DailyRate = parseDecimal(dailyRate)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if lat.Valid && lon.Valid {
		r.Location = &engine.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if skillsJSON.Valid && skillsJSON.String != "" {
		json.Unmarshal([]byte(skillsJSON.String), &r.Skills)
	}
	if equipmentJSON.Valid && equipmentJSON.String != "" {
		json.Unmarshal([]byte(equipmentJSON.String), &r.Equipment)
	}

	return &r, nil
}

// DeleteResource removes a resource. Allocations and calendar entries
// cascade via foreign keys.
func (s *Store) DeleteResource(ctx context.Context, id engine.ResourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteResource(ctx, s.db, id)
}

func deleteResource(ctx context.Context, q querier, id engine.ResourceID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrResourceNotFound
	}
	return nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// SaveAllocation inserts or replaces an allocation row.
func (s *Store) SaveAllocation(ctx context.Context, a *engine.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAllocation(ctx, s.db, a)
}

func saveAllocation(ctx context.Context, q querier, a *engine.Allocation) error {
	query := `
		INSERT INTO resource_allocations
		(id, resource_id, trade_id, quote_id, start_date, end_date, person_count,
		 hours, status, agreed_hourly_rate, agreed_daily_rate, total_cost,
		 invitation_sent_at, invitation_viewed_at, offer_requested_at,
		 offer_submitted_at, decision_made_at, notes, rejection_reason,
		 priority, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			person_count = excluded.person_count,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			hours = excluded.hours,
			agreed_hourly_rate = excluded.agreed_hourly_rate,
			agreed_daily_rate = excluded.agreed_daily_rate,
			total_cost = excluded.total_cost,
			invitation_sent_at = excluded.invitation_sent_at,
			invitation_viewed_at = excluded.invitation_viewed_at,
			offer_requested_at = excluded.offer_requested_at,
			offer_submitted_at = excluded.offer_submitted_at,
			decision_made_at = excluded.decision_made_at,
			notes = excluded.notes,
			rejection_reason = excluded.rejection_reason,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		string(a.ID),
		string(a.ResourceID),
		string(a.TradeID),
		nullString(a.QuoteID),
		a.Range.Start.String(),
		a.Range.End.String(),
		a.PersonCount,
		a.Hours,
		string(a.Status),
		a.AgreedHourlyRate.String(),
		a.AgreedDailyRate.String(),
		a.TotalCost.String(),
		nullTime(a.InvitationSentAt),
		nullTime(a.InvitationViewedAt),
		nullTime(a.OfferRequestedAt),
		nullTime(a.OfferSubmittedAt),
		nullTime(a.DecisionMadeAt),
		nullString(a.Notes),
		nullString(a.RejectionReason),
		a.Priority,
		nullString(a.CreatedBy),
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

const allocationColumns = `id, resource_id, trade_id, quote_id, start_date, end_date, person_count,
	hours, status, agreed_hourly_rate, agreed_daily_rate, total_cost,
	invitation_sent_at, invitation_viewed_at, offer_requested_at,
	offer_submitted_at, decision_made_at, notes, rejection_reason,
	priority, created_by, created_at, updated_at`

// GetAllocation retrieves an allocation by ID.
func (s *Store) GetAllocation(ctx context.Context, id engine.AllocationID) (*engine.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAllocation(ctx, s.db, id)
}

func getAllocation(ctx context.Context, q querier, id engine.AllocationID) (*engine.Allocation, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+allocationColumns+" FROM resource_allocations WHERE id = ?", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, engine.ErrAllocationNotFound
	}
	return scanAllocation(rows)
}

// ListAllocations returns allocations matching the filter.
func (s *Store) ListAllocations(ctx context.Context, f engine.AllocationFilter) ([]*engine.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAllocations(ctx, s.db, f)
}

func listAllocations(ctx context.Context, q querier, f engine.AllocationFilter) ([]*engine.Allocation, error) {
	var where []string
	var args []any

	if f.ResourceID != nil {
		where = append(where, "resource_id = ?")
		args = append(args, string(*f.ResourceID))
	}
	if f.TradeID != nil {
		where = append(where, "trade_id = ?")
		args = append(args, string(*f.TradeID))
	}
	if len(f.StatusIn) > 0 {
		placeholders := make([]string, len(f.StatusIn))
		for i, st := range f.StatusIn {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Overlaps != nil {
		where = append(where, "start_date <= ? AND end_date >= ?")
		args = append(args, f.Overlaps.End.String(), f.Overlaps.Start.String())
	}

	query := "SELECT " + allocationColumns + " FROM resource_allocations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []*engine.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAllocation(rows *sql.Rows) (*engine.Allocation, error) {
	var (
		a                      engine.Allocation
		id, resourceID, trade  string
		quoteID                sql.NullString
		startDate, endDate     string
		status                 string
		hourlyRate, dailyRate  string
		totalCost              string
		invSent, invViewed     sql.NullString
		offerReq, offerSub     sql.NullString
		decided                sql.NullString
		notes, rejectionReason sql.NullString
		createdBy              sql.NullString
		createdAt, updatedAt   string
	)

	err := rows.Scan(
		&id, &resourceID, &trade, &quoteID, &startDate, &endDate, &a.PersonCount,
		&a.Hours, &status, &hourlyRate, &dailyRate, &totalCost,
		&invSent, &invViewed, &offerReq, &offerSub, &decided,
		&notes, &rejectionReason, &a.Priority, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan allocation: %w", err)
	}

	a.ID = engine.AllocationID(id)
	a.ResourceID = engine.ResourceID(resourceID)
	a.TradeID = engine.TradeID(trade)
	a.QuoteID = quoteID.String
	a.Status = engine.AllocationStatus(status)
	a.Range.Start, _ = engine.ParseDay(startDate)
	a.Range.End, _ = engine.ParseDay(endDate)
	a.AgreedHourlyRate = parseDecimal(hourlyRate)
	a.AgreedDailyRate = parseDecimal(dailyRate)
	a.TotalCost = parseDecimal(totalCost)
	a.InvitationSentAt = parseNullTime(invSent)
	a.InvitationViewedAt = parseNullTime(invViewed)
	a.OfferRequestedAt = parseNullTime(offerReq)
	a.OfferSubmittedAt = parseNullTime(offerSub)
	a.DecisionMadeAt = parseNullTime(decided)
	a.Notes = notes.String
	a.RejectionReason = rejectionReason.String
	a.CreatedBy = createdBy.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &a, nil
}

// DeleteAllocation removes a single allocation.
func (s *Store) DeleteAllocation(ctx context.Context, id engine.AllocationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAllocation(ctx, s.db, id)
}

func deleteAllocation(ctx context.Context, q querier, id engine.AllocationID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM resource_allocations WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrAllocationNotFound
	}
	return nil
}

// =============================================================================
// CALENDAR ENTRIES
// =============================================================================

// ReplaceCalendar discards the resource's calendar and writes the given set.
func (s *Store) ReplaceCalendar(ctx context.Context, id engine.ResourceID, entries []engine.CalendarEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceCalendar(ctx, s.db, id, entries)
}

func replaceCalendar(ctx context.Context, q querier, id engine.ResourceID, entries []engine.CalendarEntry) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM resource_calendar_entries WHERE resource_id = ?", string(id)); err != nil {
		return fmt.Errorf("failed to clear calendar: %w", err)
	}
	return upsertCalendarEntries(ctx, q, entries)
}

// UpsertCalendarEntries writes entries keyed by (resource, day).
func (s *Store) UpsertCalendarEntries(ctx context.Context, entries []engine.CalendarEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertCalendarEntries(ctx, s.db, entries)
}

func upsertCalendarEntries(ctx context.Context, q querier, entries []engine.CalendarEntry) error {
	query := `
		INSERT INTO resource_calendar_entries
		(id, resource_id, service_provider_id, entry_date, person_count,
		 hours_allocated, status, color, label, allocation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_id, entry_date) DO UPDATE SET
			person_count = excluded.person_count,
			hours_allocated = excluded.hours_allocated,
			status = excluded.status,
			color = excluded.color,
			label = excluded.label,
			allocation_id = excluded.allocation_id
	`

	for _, e := range entries {
		var allocID any
		if e.AllocationID != nil {
			allocID = string(*e.AllocationID)
		}
		_, err := q.ExecContext(ctx, query,
			uuid.NewString(),
			string(e.ResourceID),
			string(e.ProviderID),
			e.Day.String(),
			e.PersonCount,
			e.HoursAllocated,
			string(e.Status),
			e.Color,
			nullString(e.Label),
			allocID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert calendar entry: %w", err)
		}
	}
	return nil
}

// ListCalendarEntries returns entries matching the filter, ordered by day.
func (s *Store) ListCalendarEntries(ctx context.Context, f engine.CalendarFilter) ([]engine.CalendarEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCalendarEntries(ctx, s.db, f)
}

func listCalendarEntries(ctx context.Context, q querier, f engine.CalendarFilter) ([]engine.CalendarEntry, error) {
	var where []string
	var args []any

	if f.ProviderID != nil {
		where = append(where, "service_provider_id = ?")
		args = append(args, string(*f.ProviderID))
	}
	if f.ResourceID != nil {
		where = append(where, "resource_id = ?")
		args = append(args, string(*f.ResourceID))
	}
	if f.From != nil {
		where = append(where, "entry_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "entry_date <= ?")
		args = append(args, f.To.String())
	}

	query := `
		SELECT resource_id, service_provider_id, entry_date, person_count,
		       hours_allocated, status, color, label, allocation_id
		FROM resource_calendar_entries
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entry_date, resource_id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar entries: %w", err)
	}
	defer rows.Close()

	var out []engine.CalendarEntry
	for rows.Next() {
		var (
			e                     engine.CalendarEntry
			resourceID, provider  string
			entryDate, status     string
			label, allocID        sql.NullString
		)
		if err := rows.Scan(
			&resourceID, &provider, &entryDate, &e.PersonCount,
			&e.HoursAllocated, &status, &e.Color, &label, &allocID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan calendar entry: %w", err)
		}
		e.ResourceID = engine.ResourceID(resourceID)
		e.ProviderID = engine.ProviderID(provider)
		e.Day, _ = engine.ParseDay(entryDate)
		e.Status = engine.CalendarStatus(status)
		e.Label = label.String
		if allocID.Valid {
			id := engine.AllocationID(allocID.String)
			e.AllocationID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// KPI SNAPSHOTS
// =============================================================================

// UpsertKPI writes a snapshot, overwriting any prior computation for the
// same (provider, period).
func (s *Store) UpsertKPI(ctx context.Context, k *engine.KPI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertKPI(ctx, s.db, k)
}

func upsertKPI(ctx context.Context, q querier, k *engine.KPI) error {
	query := `
		INSERT INTO resource_kpis
		(id, service_provider_id, calculation_date, period_start, period_end,
		 resources_available, resources_allocated, resources_completed,
		 person_days_available, person_days_allocated, person_days_completed,
		 utilization_rate, average_hourly_rate, average_daily_rate,
		 total_revenue, total_potential_revenue,
		 invitations_sent, offers_submitted, offers_accepted, success_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_provider_id, period_start, period_end) DO UPDATE SET
			calculation_date = excluded.calculation_date,
			resources_available = excluded.resources_available,
			resources_allocated = excluded.resources_allocated,
			resources_completed = excluded.resources_completed,
			person_days_available = excluded.person_days_available,
			person_days_allocated = excluded.person_days_allocated,
			person_days_completed = excluded.person_days_completed,
			utilization_rate = excluded.utilization_rate,
			average_hourly_rate = excluded.average_hourly_rate,
			average_daily_rate = excluded.average_daily_rate,
			total_revenue = excluded.total_revenue,
			total_potential_revenue = excluded.total_potential_revenue,
			invitations_sent = excluded.invitations_sent,
			offers_submitted = excluded.offers_submitted,
			offers_accepted = excluded.offers_accepted,
			success_rate = excluded.success_rate
	`

	_, err := q.ExecContext(ctx, query,
		uuid.NewString(),
		string(k.ProviderID),
		k.CalculationDate.String(),
		k.Period.Start.String(),
		k.Period.End.String(),
		k.ResourcesAvailable,
		k.ResourcesAllocated,
		k.ResourcesCompleted,
		k.PersonDaysAvailable,
		k.PersonDaysAllocated,
		k.PersonDaysCompleted,
		k.UtilizationRate,
		k.AverageHourlyRate.String(),
		k.AverageDailyRate.String(),
		k.TotalRevenue.String(),
		k.TotalPotentialRevenue.String(),
		k.InvitationsSent,
		k.OffersSubmitted,
		k.OffersAccepted,
		k.SuccessRate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert kpi: %w", err)
	}
	return nil
}

// GetKPI returns the snapshot for a provider and period, or (nil, nil)
// when none has been computed.
func (s *Store) GetKPI(ctx context.Context, provider engine.ProviderID, period engine.DateRange) (*engine.KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getKPI(ctx, s.db, provider, period)
}

func getKPI(ctx context.Context, q querier, provider engine.ProviderID, period engine.DateRange) (*engine.KPI, error) {
	query := `
		SELECT service_provider_id, calculation_date, period_start, period_end,
		       resources_available, resources_allocated, resources_completed,
		       person_days_available, person_days_allocated, person_days_completed,
		       utilization_rate, average_hourly_rate, average_daily_rate,
		       total_revenue, total_potential_revenue,
		       invitations_sent, offers_submitted, offers_accepted, success_rate
		FROM resource_kpis
		WHERE service_provider_id = ? AND period_start = ? AND period_end = ?
	`

	var (
		k                      engine.KPI
		providerID             string
		calcDate, pStart, pEnd string
		avgHourly, avgDaily    string
		revenue, potential     string
	)

	err := q.QueryRowContext(ctx, query,
		string(provider), period.Start.String(), period.End.String(),
	).Scan(
		&providerID, &calcDate, &pStart, &pEnd,
		&k.ResourcesAvailable, &k.ResourcesAllocated, &k.ResourcesCompleted,
		&k.PersonDaysAvailable, &k.PersonDaysAllocated, &k.PersonDaysCompleted,
		&k.UtilizationRate, &avgHourly, &avgDaily,
		&revenue, &potential,
		&k.InvitationsSent, &k.OffersSubmitted, &k.OffersAccepted, &k.SuccessRate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query kpi: %w", err)
	}

	k.ProviderID = engine.ProviderID(providerID)
	k.CalculationDate, _ = engine.ParseDay(calcDate)
	k.Period.Start, _ = engine.ParseDay(pStart)
	k.Period.End, _ = engine.ParseDay(pEnd)
	k.AverageHourlyRate = parseDecimal(avgHourly)
	k.AverageDailyRate = parseDecimal(avgDaily)
	k.TotalRevenue = parseDecimal(revenue)
	k.TotalPotentialRevenue = parseDecimal(potential)

	return &k, nil
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open *sql.Tx. It never touches the
// parent mutex, which WithTx already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveResource(ctx context.Context, r *engine.Resource) error {
	return saveResource(ctx, ts.tx, r)
}

func (ts *txStore) GetResource(ctx context.Context, id engine.ResourceID) (*engine.Resource, error) {
	return getResource(ctx, ts.tx, id)
}

func (ts *txStore) ListResources(ctx context.Context, f engine.ResourceFilter) ([]*engine.Resource, error) {
	return listResources(ctx, ts.tx, f)
}

func (ts *txStore) DeleteResource(ctx context.Context, id engine.ResourceID) error {
	return deleteResource(ctx, ts.tx, id)
}

func (ts *txStore) SaveAllocation(ctx context.Context, a *engine.Allocation) error {
	return saveAllocation(ctx, ts.tx, a)
}

func (ts *txStore) GetAllocation(ctx context.Context, id engine.AllocationID) (*engine.Allocation, error) {
	return getAllocation(ctx, ts.tx, id)
}

func (ts *txStore) ListAllocations(ctx context.Context, f engine.AllocationFilter) ([]*engine.Allocation, error) {
	return listAllocations(ctx, ts.tx, f)
}

func (ts *txStore) DeleteAllocation(ctx context.Context, id engine.AllocationID) error {
	return deleteAllocation(ctx, ts.tx, id)
}

func (ts *txStore) ReplaceCalendar(ctx context.Context, id engine.ResourceID, entries []engine.CalendarEntry) error {
	return replaceCalendar(ctx, ts.tx, id, entries)
}

func (ts *txStore) UpsertCalendarEntries(ctx context.Context, entries []engine.CalendarEntry) error {
	return upsertCalendarEntries(ctx, ts.tx, entries)
}

func (ts *txStore) ListCalendarEntries(ctx context.Context, f engine.CalendarFilter) ([]engine.CalendarEntry, error) {
	return listCalendarEntries(ctx, ts.tx, f)
}

func (ts *txStore) UpsertKPI(ctx context.Context, k *engine.KPI) error {
	return upsertKPI(ctx, ts.tx, k)
}

func (ts *txStore) GetKPI(ctx context.Context, provider engine.ProviderID, period engine.DateRange) (*engine.KPI, error) {
	return getKPI(ctx, ts.tx, provider, period)
}

// =============================================================================
// NOTIFIER (engine.Notifier interface)
// =============================================================================

// Notify persists a notification trigger record.
func (s *Store) Notify(ctx context.Context, n engine.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resourceID, allocID any
	if n.ResourceID != nil {
		resourceID = string(*n.ResourceID)
	}
	if n.AllocationID != nil {
		allocID = string(*n.AllocationID)
	}

	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_notifications
		(id, user_id, type, title, message, resource_id, allocation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, n.UserID, string(n.Type), n.Title, nullString(n.Message),
		resourceID, allocID, n.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]engine.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, type, title, message, resource_id, allocation_id, created_at
		FROM resource_notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []engine.Notification
	for rows.Next() {
		var (
			n                 engine.Notification
			typ               string
			message           sql.NullString
			resourceID, alloc sql.NullString
			createdAt         string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &message,
			&resourceID, &alloc, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = engine.NotificationType(typ)
		n.Message = message.String
		if resourceID.Valid {
			id := engine.ResourceID(resourceID.String)
			n.ResourceID = &id
		}
		if alloc.Valid {
			id := engine.AllocationID(alloc.String)
			n.AllocationID = &id
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
