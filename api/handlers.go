/*
handlers.go - HTTP API handlers for the resource allocation engine

PURPOSE:
  Exposes the allocation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Resources:
    POST   /api/v1/resources              Publish a resource
    GET    /api/v1/resources              List resources (filterable)
    GET    /api/v1/resources/my           Caller's resources
    POST   /api/v1/resources/search/geo   Radius search
    GET    /api/v1/resources/{id}         Get resource details
    PUT    /api/v1/resources/{id}         Partial update
    DELETE /api/v1/resources/{id}         Delete (cascades allocations/calendar)

  Allocations:
    POST   /api/v1/resources/allocations            Claim capacity
    POST   /api/v1/resources/allocations/bulk       Claim several at once
    GET    /api/v1/resources/allocations            List (by trade or resource)
    GET    /api/v1/resources/allocations/{id}       Get allocation
    PUT    /api/v1/resources/allocations/{id}/status  Workflow transition
    POST   /api/v1/resources/allocations/{id}/invite  Send invitation
    POST   /api/v1/resources/allocations/{id}/view  Mark invitation viewed
    DELETE /api/v1/resources/allocations/{id}       Remove allocation

  Calendar / KPIs / Notifications:
    GET    /api/v1/resources/calendar        Caller's calendar
    GET    /api/v1/resources/kpis            Cached or fresh snapshot
    POST   /api/v1/resources/kpis/calculate  Force recomputation
    GET    /api/v1/resources/notifications   Caller's notifications

IDENTITY:
  Caller identity comes from the X-Provider-ID header; there is no
  authentication layer here. Endpoints that need an identity return 400
  when the header is missing.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource/allocation not found
  - 409: Capacity conflict
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/buildwise/resource-engine/engine"
)

// providerHeader carries the caller's provider identity.
const providerHeader = "X-Provider-ID"

// NotificationLister reads back persisted notification triggers.
type NotificationLister interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]engine.Notification, error)
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Resources   *engine.ResourceService
	Allocations *engine.AllocationService
	KPIs        *engine.KPIAggregator

	// Optional; notification endpoints 404 when nil.
	Notifications NotificationLister
}

// NewHandler creates a handler wired to the given services.
func NewHandler(resources *engine.ResourceService, allocations *engine.AllocationService, kpis *engine.KPIAggregator) *Handler {
	return &Handler{
		Resources:   resources,
		Allocations: allocations,
		KPIs:        kpis,
	}
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// CreateResource publishes a new resource with its projected calendar.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	provider, ok := callerProvider(w, r)
	if !ok {
		return
	}

	var req CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	in := engine.CreateResourceInput{
		ProviderID:  provider,
		ProjectID:   req.ProjectID,
		Range:       rng,
		PersonCount: req.PersonCount,
		DailyHours:  req.DailyHours,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Visibility:  engine.Visibility(req.Visibility),
		HourlyRate:  decimal.NewFromFloat(req.HourlyRate),
		DailyRate:   decimal.NewFromFloat(req.DailyRate),
		Currency:    req.Currency,
		Description: req.Description,
		Skills:      req.Skills,
		Equipment:   req.Equipment,
	}
	if req.Latitude != nil && req.Longitude != nil {
		in.Location = &engine.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	created, err := h.Resources.Create(r.Context(), in)
	if err != nil {
		writeEngineError(w, "Failed to create resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceDTO(created))
}

// ListResources returns resources matching the query filters.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	f, err := resourceFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	resources, err := h.Resources.List(r.Context(), f)
	if err != nil {
		writeEngineError(w, "Failed to list resources", err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTOs(resources))
}

// ListMyResources returns the caller's resources.
func (h *Handler) ListMyResources(w http.ResponseWriter, r *http.Request) {
	provider, ok := callerProvider(w, r)
	if !ok {
		return
	}

	f, err := resourceFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	f.ProviderID = &provider

	resources, err := h.Resources.List(r.Context(), f)
	if err != nil {
		writeEngineError(w, "Failed to list resources", err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTOs(resources))
}

// GetResource returns a single resource.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id := engine.ResourceID(chi.URLParam(r, "id"))

	resource, err := h.Resources.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get resource", err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(resource))
}

// UpdateResource applies a partial update. Capacity changes re-project
// the whole calendar.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id := engine.ResourceID(chi.URLParam(r, "id"))

	var req UpdateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch, err := patchFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	updated, err := h.Resources.Update(r.Context(), id, patch)
	if err != nil {
		writeEngineError(w, "Failed to update resource", err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(updated))
}

// DeleteResource removes a resource and everything hanging off it.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id := engine.ResourceID(chi.URLParam(r, "id"))

	if err := h.Resources.Delete(r.Context(), id); err != nil {
		writeEngineError(w, "Failed to delete resource", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SearchGeo finds resources within a radius of a point.
func (h *Handler) SearchGeo(w http.ResponseWriter, r *http.Request) {
	var req GeoSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := engine.GeoSearchInput{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		RadiusKm:  req.RadiusKm,
		Category:  req.Category,
	}
	if req.StartDate != nil && req.EndDate != nil {
		rng, err := parseRange(*req.StartDate, *req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		in.Available = &rng
	}
	if req.MaxHourlyRate != nil {
		max := decimal.NewFromFloat(*req.MaxHourlyRate)
		in.MaxHourlyRate = &max
	}

	resources, err := h.Resources.SearchGeo(r.Context(), in)
	if err != nil {
		writeEngineError(w, "Geo search failed", err)
		return
	}

	origin := engine.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude}
	dtos := make([]ResourceDTO, len(resources))
	for i, res := range resources {
		dtos[i] = toResourceDTO(res)
		if res.Location != nil {
			d := origin.DistanceTo(*res.Location)
			dtos[i].DistanceKm = &d
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// CreateAllocation claims capacity on a resource.
func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req CreateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := allocationInputFromRequest(req, r.Header.Get(providerHeader))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	created, err := h.Allocations.Create(r.Context(), in)
	if err != nil {
		writeEngineError(w, "Failed to create allocation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationDTO(created))
}

// CreateAllocationsBulk creates several allocations; each item reports
// its own outcome.
func (h *Handler) CreateAllocationsBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inputs := make([]engine.CreateAllocationInput, 0, len(req.Allocations))
	for _, item := range req.Allocations {
		in, err := allocationInputFromRequest(item, r.Header.Get(providerHeader))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		inputs = append(inputs, in)
	}

	results := h.Allocations.CreateBulk(r.Context(), inputs)
	dtos := make([]BulkItemResultDTO, len(results))
	for i, res := range results {
		if res.Err != nil {
			dtos[i].Error = res.Err.Error()
			continue
		}
		dto := toAllocationDTO(res.Allocation)
		dtos[i].Allocation = &dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAllocations returns allocations filtered by trade or resource.
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	var f engine.AllocationFilter
	if v := r.URL.Query().Get("trade_id"); v != "" {
		id := engine.TradeID(v)
		f.TradeID = &id
	}
	if v := r.URL.Query().Get("resource_id"); v != "" {
		id := engine.ResourceID(v)
		f.ResourceID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		f.StatusIn = []engine.AllocationStatus{engine.AllocationStatus(v)}
	}

	allocations, err := h.Allocations.List(r.Context(), f)
	if err != nil {
		writeEngineError(w, "Failed to list allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(allocations))
}

// GetAllocation returns a single allocation.
func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	id := engine.AllocationID(chi.URLParam(r, "id"))

	a, err := h.Allocations.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(a))
}

// UpdateAllocationStatus moves an allocation through its workflow.
func (h *Handler) UpdateAllocationStatus(w http.ResponseWriter, r *http.Request) {
	id := engine.AllocationID(chi.URLParam(r, "id"))

	var req UpdateAllocationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required", nil)
		return
	}

	updated, err := h.Allocations.UpdateStatus(r.Context(), id, engine.AllocationStatus(req.Status), req.Notes)
	if err != nil {
		writeEngineError(w, "Failed to update allocation status", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(updated))
}

// InviteAllocation moves a pre-selected allocation to invited and
// notifies the resource owner.
func (h *Handler) InviteAllocation(w http.ResponseWriter, r *http.Request) {
	id := engine.AllocationID(chi.URLParam(r, "id"))

	updated, err := h.Allocations.UpdateStatus(r.Context(), id, engine.StatusInvited, "")
	if err != nil {
		writeEngineError(w, "Failed to send invitation", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(updated))
}

// MarkInvitationViewed stamps the invitation as seen by the provider.
func (h *Handler) MarkInvitationViewed(w http.ResponseWriter, r *http.Request) {
	id := engine.AllocationID(chi.URLParam(r, "id"))

	updated, err := h.Allocations.MarkInvitationViewed(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to mark invitation viewed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(updated))
}

// DeleteAllocation removes an allocation and repairs its side effects.
func (h *Handler) DeleteAllocation(w http.ResponseWriter, r *http.Request) {
	id := engine.AllocationID(chi.URLParam(r, "id"))

	if err := h.Allocations.Delete(r.Context(), id); err != nil {
		writeEngineError(w, "Failed to delete allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// CALENDAR / KPI / NOTIFICATION HANDLERS
// =============================================================================

// GetCalendar returns the caller's calendar entries for a date range.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	provider, ok := callerProvider(w, r)
	if !ok {
		return
	}

	rng, err := parseRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required (YYYY-MM-DD)", err)
		return
	}

	entries, err := h.Resources.Calendar(r.Context(), provider, rng)
	if err != nil {
		writeEngineError(w, "Failed to load calendar", err)
		return
	}

	dtos := make([]CalendarEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toCalendarEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetKPIs returns the caller's KPI snapshot for a period, computing it
// when no cached snapshot exists.
func (h *Handler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	provider, ok := callerProvider(w, r)
	if !ok {
		return
	}

	period, err := parseRange(r.URL.Query().Get("period_start"), r.URL.Query().Get("period_end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period_start and period_end are required (YYYY-MM-DD)", err)
		return
	}

	kpi, err := h.KPIs.Get(r.Context(), provider, period)
	if err != nil {
		writeEngineError(w, "Failed to load KPIs", err)
		return
	}
	writeJSON(w, http.StatusOK, toKPIDTO(kpi))
}

// CalculateKPIs forces a fresh computation and stores the snapshot.
func (h *Handler) CalculateKPIs(w http.ResponseWriter, r *http.Request) {
	provider, ok := callerProvider(w, r)
	if !ok {
		return
	}

	var req CalculateKPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := parseRange(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	kpi, err := h.KPIs.Compute(r.Context(), provider, period)
	if err != nil {
		writeEngineError(w, "Failed to compute KPIs", err)
		return
	}
	writeJSON(w, http.StatusOK, toKPIDTO(kpi))
}

// ListNotifications returns the caller's notification triggers.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	provider, ok := callerProvider(w, r)
	if !ok {
		return
	}
	if h.Notifications == nil {
		writeError(w, http.StatusNotFound, "Notifications not available", nil)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	notifications, err := h.Notifications.ListNotifications(r.Context(), string(provider), limit)
	if err != nil {
		writeEngineError(w, "Failed to list notifications", err)
		return
	}

	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST PARSING HELPERS
// =============================================================================

func callerProvider(w http.ResponseWriter, r *http.Request) (engine.ProviderID, bool) {
	v := r.Header.Get(providerHeader)
	if v == "" {
		writeError(w, http.StatusBadRequest, providerHeader+" header is required", nil)
		return "", false
	}
	return engine.ProviderID(v), true
}

func parseRange(start, end string) (engine.DateRange, error) {
	s, err := engine.ParseDay(start)
	if err != nil {
		return engine.DateRange{}, err
	}
	e, err := engine.ParseDay(end)
	if err != nil {
		return engine.DateRange{}, err
	}
	return engine.DateRange{Start: s, End: e}, nil
}

func resourceFilterFromQuery(r *http.Request) (engine.ResourceFilter, error) {
	var f engine.ResourceFilter
	q := r.URL.Query()

	if v := q.Get("category"); v != "" {
		f.Category = &v
	}
	if v := q.Get("status"); v != "" {
		status := engine.ResourceStatus(v)
		f.Status = &status
	}
	if q.Get("start_date") != "" && q.Get("end_date") != "" {
		rng, err := parseRange(q.Get("start_date"), q.Get("end_date"))
		if err != nil {
			return f, err
		}
		f.Overlaps = &rng
	}
	if v := q.Get("min_persons"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.MinPersons = &n
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}
	return f, nil
}

func patchFromRequest(req UpdateResourceRequest) (engine.ResourcePatch, error) {
	var p engine.ResourcePatch

	if req.StartDate != nil {
		d, err := engine.ParseDay(*req.StartDate)
		if err != nil {
			return p, err
		}
		p.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := engine.ParseDay(*req.EndDate)
		if err != nil {
			return p, err
		}
		p.EndDate = &d
	}
	p.PersonCount = req.PersonCount
	p.DailyHours = req.DailyHours
	p.Category = req.Category
	p.Subcategory = req.Subcategory
	if req.Latitude != nil && req.Longitude != nil {
		p.Location = &engine.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	if req.Status != nil {
		status := engine.ResourceStatus(*req.Status)
		p.Status = &status
	}
	if req.Visibility != nil {
		vis := engine.Visibility(*req.Visibility)
		p.Visibility = &vis
	}
	if req.HourlyRate != nil {
		d := decimal.NewFromFloat(*req.HourlyRate)
		p.HourlyRate = &d
	}
	if req.DailyRate != nil {
		d := decimal.NewFromFloat(*req.DailyRate)
		p.DailyRate = &d
	}
	p.Currency = req.Currency
	p.Description = req.Description
	p.Skills = req.Skills
	p.Equipment = req.Equipment

	return p, nil
}

func allocationInputFromRequest(req CreateAllocationRequest, createdBy string) (engine.CreateAllocationInput, error) {
	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return engine.CreateAllocationInput{}, err
	}

	return engine.CreateAllocationInput{
		ResourceID:       engine.ResourceID(req.ResourceID),
		TradeID:          engine.TradeID(req.TradeID),
		QuoteID:          req.QuoteID,
		Range:            rng,
		PersonCount:      req.PersonCount,
		Status:           engine.AllocationStatus(req.Status),
		AgreedHourlyRate: decimal.NewFromFloat(req.AgreedHourlyRate),
		AgreedDailyRate:  decimal.NewFromFloat(req.AgreedDailyRate),
		TotalCost:        decimal.NewFromFloat(req.TotalCost),
		Priority:         req.Priority,
		Notes:            req.Notes,
		CreatedBy:        createdBy,
	}, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps domain errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, engine.ErrCapacityConflict):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
