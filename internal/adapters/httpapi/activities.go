package httpapi

import (
	"net/http"
	"strconv"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/events"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

type activityItemResponse struct {
	Message  string `json:"message"`
	Date     string `json:"date"`
	FullName string `json:"fullName"`
}

type activityPageResponse struct {
	PageCount uint32                 `json:"pageCount"`
	Items     []activityItemResponse `json:"items"`
}

type eventTypeResponse struct {
	Kind      string `json:"kind"`
	EventType string `json:"eventType"`
	Name      string `json:"name"`
	Revision  uint32 `json:"revision"`
	Current   bool   `json:"current"`
	Schema    any    `json:"schema"`
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	page, ok := parsePositive(w, r, "page", defaultPage)
	if !ok {
		return
	}
	pageSize, ok := parsePositive(w, r, "pageSize", defaultPageSize)
	if !ok {
		return
	}

	ctx := r.Context()
	result, err := h.activity.GetActivityPage(ctx, tenantIDFromContext(ctx), kindFromContext(ctx), id, page, pageSize)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	items := make([]activityItemResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, activityItemResponse{
			Message:  item.Message,
			Date:     item.OccurredAt.UTC().Format(timeFormat),
			FullName: item.ActorFullName,
		})
	}
	writeJSON(w, r, http.StatusOK, activityPageResponse{PageCount: result.PageCount, Items: items})
}

func (h *Handler) eventTypes(w http.ResponseWriter, r *http.Request) {
	registry := h.activity.Registry()
	keys := registry.Keys()
	out := make([]eventTypeResponse, 0, len(keys))
	for _, key := range keys {
		f, _ := registry.Resolve(key)
		current, _ := registry.Current(key.Kind, key.EventType)
		out = append(out, eventTypeResponse{
			Kind:      string(key.Kind),
			EventType: key.EventType.String(),
			Name:      domain.EventName(key.Kind, key.EventType),
			Revision:  key.Revision,
			Current:   current == key.Revision,
			Schema:    schemaOf(f),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": out})
}

func schemaOf(f events.Factory) any {
	if f == nil {
		return nil
	}
	return f.Schema()
}

// parsePositive reads an optional query integer. A present value must be
// a positive integer.
func parsePositive(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		writeError(w, r, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return parsed, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}
