package incidents

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrEmptyTitle, Status: http.StatusBadRequest},
	{Error: ErrTitleTooLong, Status: http.StatusBadRequest},
	{Error: ErrInvalidPriority, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrEmptyAssignee, Status: http.StatusBadRequest},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrConflict, Status: http.StatusConflict, Message: "incident was modified concurrently, retry"},
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes (require an authenticated actor).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Patch("/{id}/status", h.SetStatus)
		r.Post("/{id}/assign", h.Assign)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/audit", h.AuditTrail)
	})
}

// CreateIncidentRequest represents request body for creating an incident.
type CreateIncidentRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
}

// UpdateIncidentRequest represents request body for updating incident fields.
// Absent fields are left untouched.
type UpdateIncidentRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
}

// SetStatusRequest represents request body for a status transition.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
}

// AssignRequest represents request body for assigning an incident.
type AssignRequest struct {
	AssignedTo string `json:"assigned_to" validate:"required"`
}

// ListResponse wraps a paginated incident listing.
type ListResponse struct {
	Items  []*domain.Incident `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// Create handles POST /incidents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.service.Create(r.Context(), CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.IncidentPriority(req.Priority),
	}, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, inc)
}

// Get handles GET /incidents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	inc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// List handles GET /incidents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := Filters{Limit: 20, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			httputil.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		filters.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.Error(w, http.StatusBadRequest, "offset must be non-negative")
			return
		}
		filters.Offset = n
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		filters.Status = &status
	}
	if v := r.URL.Query().Get("priority"); v != "" {
		priority := domain.IncidentPriority(v)
		filters.Priority = &priority
	}

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, ListResponse{
		Items:  items,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

// Update handles PUT /incidents/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Priority != nil {
		priority := domain.IncidentPriority(*req.Priority)
		input.Priority = &priority
	}

	inc, err := h.service.Update(r.Context(), id, input, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// SetStatus handles PATCH /incidents/{id}/status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.service.SetStatus(r.Context(), id, domain.IncidentStatus(req.Status), httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// Assign handles POST /incidents/{id}/assign.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.service.Assign(r.Context(), id, req.AssignedTo, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// Delete handles DELETE /incidents/{id} (soft delete).
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	if err := h.service.SoftDelete(r.Context(), id, httputil.GetActor(r.Context())); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuditTrail handles GET /incidents/{id}/audit.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.AuditTrail(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

func incidentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return 0, false
	}
	return id, true
}
