package notifications

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/pkg/httputil"
)

// Handler handles HTTP requests for the notification ledger.
type Handler struct {
	service *Service
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", h.List)
}

// ListResponse wraps a paginated ledger listing.
type ListResponse struct {
	Items  []*domain.Notification `json:"items"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// List handles GET /notifications.
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
		status := domain.NotificationStatus(v)
		filters.Status = &status
	}
	if v := r.URL.Query().Get("channel"); v != "" {
		channel := domain.NotificationChannel(v)
		if !channel.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "unknown channel")
			return
		}
		filters.Channel = &channel
	}

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, ListResponse{
		Items:  items,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}
