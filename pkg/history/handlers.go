package history

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Handler exposes the history query API
type Handler struct {
	logger *DBLogger
	applog *observability.Logger
}

// NewHandler creates a history API handler
func NewHandler(logger *DBLogger, applog *observability.Logger) *Handler {
	return &Handler{logger: logger, applog: applog}
}

// RegisterRoutes registers history routes on a router already scoped to
// the history path prefix.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.Search).Methods("GET")
	router.HandleFunc("/export", h.ExportEntries).Methods("GET")
	router.HandleFunc("/stats", h.GetStats).Methods("GET")
}

// parseFilter builds a SearchFilter from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	filter := SearchFilter{}

	if raw := r.URL.Query().Get("document_id"); raw != "" {
		id, err := httputil.ParseQueryInt(r, "document_id", 0)
		if err != nil {
			return filter, err
		}
		docID := int64(id)
		filter.DocumentID = &docID
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := httputil.ParseQueryInt(r, "user_id", 0)
		if err != nil {
			return filter, err
		}
		userID := int64(id)
		filter.UserID = &userID
	}
	if action := r.URL.Query().Get("action"); action != "" {
		filter.Actions = []Action{Action(action)}
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.StartTime = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.EndTime = &t
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		return filter, err
	}
	if limit > 1000 {
		limit = 1000
	}
	filter.Limit = limit

	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		return filter, err
	}
	filter.Offset = offset

	return filter, nil
}

// Search handles GET /history
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.logger.Search(r.Context(), filter)
	if err != nil {
		h.applog.WithError(err).Error("failed to search history")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, entries)
}

// ExportEntries handles GET /history/export
func (h *Handler) ExportEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	format := ExportFormat(httputil.ParseQueryString(r, "format", string(ExportFormatJSON)))

	entries, err := h.logger.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	data, err := Export(entries, format)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetStats handles GET /history/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var start, end *time.Time
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		start = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		end = &t
	}

	stats, err := h.logger.GetStats(r.Context(), start, end)
	if err != nil {
		h.applog.WithError(err).Error("failed to compute history stats")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}
