/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Resource:
    ResourceDTO, CreateResourceRequest, UpdateResourceRequest, GeoSearchRequest

  Allocation:
    AllocationDTO, CreateAllocationRequest, BulkAllocationRequest,
    UpdateAllocationStatusRequest, BulkItemResultDTO

  Calendar:
    CalendarEntryDTO

  KPI:
    KPIDTO, CalculateKPIRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain model these map onto
*/
package api

import (
	"time"

	"github.com/buildwise/resource-engine/engine"
)

// =============================================================================
// RESOURCE TYPES
// =============================================================================

// ResourceDTO represents a resource in API responses.
type ResourceDTO struct {
	ID                string   `json:"id"`
	ServiceProviderID string   `json:"service_provider_id"`
	ProjectID         string   `json:"project_id,omitempty"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	PersonCount       int      `json:"person_count"`
	DailyHours        float64  `json:"daily_hours"`
	TotalHours        float64  `json:"total_hours"`
	Category          string   `json:"category"`
	Subcategory       string   `json:"subcategory,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Status            string   `json:"status"`
	Visibility        string   `json:"visibility"`
	HourlyRate        float64  `json:"hourly_rate"`
	DailyRate         float64  `json:"daily_rate"`
	Currency          string   `json:"currency"`
	Description       string   `json:"description,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	Equipment         []string `json:"equipment,omitempty"`
	DistanceKm        *float64 `json:"distance_km,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

// CreateResourceRequest is the request to publish a resource.
type CreateResourceRequest struct {
	ProjectID   string   `json:"project_id,omitempty"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	PersonCount int      `json:"person_count"`
	DailyHours  float64  `json:"daily_hours,omitempty"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
	HourlyRate  float64  `json:"hourly_rate,omitempty"`
	DailyRate   float64  `json:"daily_rate,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Equipment   []string `json:"equipment,omitempty"`
}

// UpdateResourceRequest is a partial update: nil fields are left untouched.
type UpdateResourceRequest struct {
	StartDate   *string   `json:"start_date,omitempty"`
	EndDate     *string   `json:"end_date,omitempty"`
	PersonCount *int      `json:"person_count,omitempty"`
	DailyHours  *float64  `json:"daily_hours,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Subcategory *string   `json:"subcategory,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Visibility  *string   `json:"visibility,omitempty"`
	HourlyRate  *float64  `json:"hourly_rate,omitempty"`
	DailyRate   *float64  `json:"daily_rate,omitempty"`
	Currency    *string   `json:"currency,omitempty"`
	Description *string   `json:"description,omitempty"`
	Skills      *[]string `json:"skills,omitempty"`
	Equipment   *[]string `json:"equipment,omitempty"`
}

// GeoSearchRequest finds resources within a radius of a point.
type GeoSearchRequest struct {
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	RadiusKm      float64  `json:"radius_km"`
	Category      *string  `json:"category,omitempty"`
	StartDate     *string  `json:"start_date,omitempty"`
	EndDate       *string  `json:"end_date,omitempty"`
	MaxHourlyRate *float64 `json:"max_hourly_rate,omitempty"`
}

// =============================================================================
// ALLOCATION TYPES
// =============================================================================

// AllocationDTO represents an allocation in API responses.
type AllocationDTO struct {
	ID               string  `json:"id"`
	ResourceID       string  `json:"resource_id"`
	TradeID          string  `json:"trade_id"`
	QuoteID          string  `json:"quote_id,omitempty"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	PersonCount      int     `json:"person_count"`
	Hours            float64 `json:"hours"`
	Status           string  `json:"status"`
	AgreedHourlyRate float64 `json:"agreed_hourly_rate"`
	AgreedDailyRate  float64 `json:"agreed_daily_rate"`
	TotalCost        float64 `json:"total_cost"`

	InvitationSentAt   *string `json:"invitation_sent_at,omitempty"`
	InvitationViewedAt *string `json:"invitation_viewed_at,omitempty"`
	OfferRequestedAt   *string `json:"offer_requested_at,omitempty"`
	OfferSubmittedAt   *string `json:"offer_submitted_at,omitempty"`
	DecisionMadeAt     *string `json:"decision_made_at,omitempty"`

	Notes           string `json:"notes,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Priority        int    `json:"priority,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// CreateAllocationRequest is the request to claim resource capacity.
type CreateAllocationRequest struct {
	ResourceID       string  `json:"resource_id"`
	TradeID          string  `json:"trade_id"`
	QuoteID          string  `json:"quote_id,omitempty"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	PersonCount      int     `json:"person_count"`
	Status           string  `json:"status,omitempty"`
	AgreedHourlyRate float64 `json:"agreed_hourly_rate,omitempty"`
	AgreedDailyRate  float64 `json:"agreed_daily_rate,omitempty"`
	TotalCost        float64 `json:"total_cost,omitempty"`
	Priority         int     `json:"priority,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// BulkAllocationRequest creates several allocations in one call.
type BulkAllocationRequest struct {
	Allocations []CreateAllocationRequest `json:"allocations"`
}

// BulkItemResultDTO is the per-item outcome of a bulk creation.
type BulkItemResultDTO struct {
	Allocation *AllocationDTO `json:"allocation,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// UpdateAllocationStatusRequest moves an allocation through its workflow.
type UpdateAllocationStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// =============================================================================
// CALENDAR / KPI TYPES
// =============================================================================

// CalendarEntryDTO represents one projected day of a resource.
type CalendarEntryDTO struct {
	ResourceID     string  `json:"resource_id"`
	Date           string  `json:"date"`
	PersonCount    int     `json:"person_count"`
	HoursAllocated float64 `json:"hours_allocated"`
	Status         string  `json:"status"`
	Color          string  `json:"color"`
	Label          string  `json:"label,omitempty"`
	AllocationID   *string `json:"allocation_id,omitempty"`
}

// KPIDTO represents an aggregated provider snapshot.
type KPIDTO struct {
	ServiceProviderID string `json:"service_provider_id"`
	CalculationDate   string `json:"calculation_date"`
	PeriodStart       string `json:"period_start"`
	PeriodEnd         string `json:"period_end"`

	ResourcesAvailable int `json:"resources_available"`
	ResourcesAllocated int `json:"resources_allocated"`
	ResourcesCompleted int `json:"resources_completed"`

	PersonDaysAvailable int `json:"person_days_available"`
	PersonDaysAllocated int `json:"person_days_allocated"`
	PersonDaysCompleted int `json:"person_days_completed"`

	UtilizationRate float64 `json:"utilization_rate"`

	AverageHourlyRate     float64 `json:"average_hourly_rate"`
	AverageDailyRate      float64 `json:"average_daily_rate"`
	TotalRevenue          float64 `json:"total_revenue"`
	TotalPotentialRevenue float64 `json:"total_potential_revenue"`

	InvitationsSent int     `json:"invitations_sent"`
	OffersSubmitted int     `json:"offers_submitted"`
	OffersAccepted  int     `json:"offers_accepted"`
	SuccessRate     float64 `json:"success_rate"`
}

// CalculateKPIRequest triggers a recomputation for a period.
type CalculateKPIRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// NotificationDTO represents a workflow trigger record.
type NotificationDTO struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	Message      string  `json:"message,omitempty"`
	ResourceID   *string `json:"resource_id,omitempty"`
	AllocationID *string `json:"allocation_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toResourceDTO(r *engine.Resource) ResourceDTO {
	hourly, _ := r.HourlyRate.Float64()
	daily, _ := r.DailyRate.Float64()

	dto := ResourceDTO{
		ID:                string(r.ID),
		ServiceProviderID: string(r.ProviderID),
		ProjectID:         r.ProjectID,
		StartDate:         r.Range.Start.String(),
		EndDate:           r.Range.End.String(),
		PersonCount:       r.PersonCount,
		DailyHours:        r.DailyHours,
		TotalHours:        r.TotalHours,
		Category:          r.Category,
		Subcategory:       r.Subcategory,
		Status:            string(r.Status),
		Visibility:        string(r.Visibility),
		HourlyRate:        hourly,
		DailyRate:         daily,
		Currency:          r.Currency,
		Description:       r.Description,
		Skills:            r.Skills,
		Equipment:         r.Equipment,
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         r.UpdatedAt.Format(time.RFC3339),
	}
	if r.Location != nil {
		lat, lon := r.Location.Latitude, r.Location.Longitude
		dto.Latitude, dto.Longitude = &lat, &lon
	}
	return dto
}

func toResourceDTOs(rs []*engine.Resource) []ResourceDTO {
	dtos := make([]ResourceDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toResourceDTO(r)
	}
	return dtos
}

func toAllocationDTO(a *engine.Allocation) AllocationDTO {
	hourly, _ := a.AgreedHourlyRate.Float64()
	daily, _ := a.AgreedDailyRate.Float64()
	cost, _ := a.TotalCost.Float64()

	return AllocationDTO{
		ID:               string(a.ID),
		ResourceID:       string(a.ResourceID),
		TradeID:          string(a.TradeID),
		QuoteID:          a.QuoteID,
		StartDate:        a.Range.Start.String(),
		EndDate:          a.Range.End.String(),
		PersonCount:      a.PersonCount,
		Hours:            a.Hours,
		Status:           string(a.Status),
		AgreedHourlyRate: hourly,
		AgreedDailyRate:  daily,
		TotalCost:        cost,

		InvitationSentAt:   timeStr(a.InvitationSentAt),
		InvitationViewedAt: timeStr(a.InvitationViewedAt),
		OfferRequestedAt:   timeStr(a.OfferRequestedAt),
		OfferSubmittedAt:   timeStr(a.OfferSubmittedAt),
		DecisionMadeAt:     timeStr(a.DecisionMadeAt),

		Notes:           a.Notes,
		RejectionReason: a.RejectionReason,
		Priority:        a.Priority,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339),
	}
}

func toAllocationDTOs(as []*engine.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(as))
	for i, a := range as {
		dtos[i] = toAllocationDTO(a)
	}
	return dtos
}

func toCalendarEntryDTO(e engine.CalendarEntry) CalendarEntryDTO {
	dto := CalendarEntryDTO{
		ResourceID:     string(e.ResourceID),
		Date:           e.Day.String(),
		PersonCount:    e.PersonCount,
		HoursAllocated: e.HoursAllocated,
		Status:         string(e.Status),
		Color:          e.Color,
		Label:          e.Label,
	}
	if e.AllocationID != nil {
		id := string(*e.AllocationID)
		dto.AllocationID = &id
	}
	return dto
}

func toKPIDTO(k *engine.KPI) KPIDTO {
	avgHourly, _ := k.AverageHourlyRate.Float64()
	avgDaily, _ := k.AverageDailyRate.Float64()
	revenue, _ := k.TotalRevenue.Float64()
	potential, _ := k.TotalPotentialRevenue.Float64()

	return KPIDTO{
		ServiceProviderID: string(k.ProviderID),
		CalculationDate:   k.CalculationDate.String(),
		PeriodStart:       k.Period.Start.String(),
		PeriodEnd:         k.Period.End.String(),

		ResourcesAvailable: k.ResourcesAvailable,
		ResourcesAllocated: k.ResourcesAllocated,
		ResourcesCompleted: k.ResourcesCompleted,

		PersonDaysAvailable: k.PersonDaysAvailable,
		PersonDaysAllocated: k.PersonDaysAllocated,
		PersonDaysCompleted: k.PersonDaysCompleted,

		UtilizationRate: k.UtilizationRate,

		AverageHourlyRate:     avgHourly,
		AverageDailyRate:      avgDaily,
		TotalRevenue:          revenue,
		TotalPotentialRevenue: potential,

		InvitationsSent: k.InvitationsSent,
		OffersSubmitted: k.OffersSubmitted,
		OffersAccepted:  k.OffersAccepted,
		SuccessRate:     k.SuccessRate,
	}
}

func toNotificationDTO(n engine.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.ResourceID != nil {
		id := string(*n.ResourceID)
		dto.ResourceID = &id
	}
	if n.AllocationID != nil {
		id := string(*n.AllocationID)
		dto.AllocationID = &id
	}
	return dto
}

func timeStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
