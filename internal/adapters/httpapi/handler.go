package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	tenantIDCtxKey  ctxKey = "tenant_id"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	subjects *usecase.SubjectService
	activity *usecase.ActivityService
	auth     *usecase.AuthService
	metrics  http.Handler
	log      logrus.FieldLogger
}

type Option func(*Handler)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(handler *Handler) { handler.metrics = h }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(handler *Handler) {
		if log != nil {
			handler.log = log
		}
	}
}

func NewHandler(subjects *usecase.SubjectService, activity *usecase.ActivityService, auth *usecase.AuthService, opts ...Option) *Handler {
	h := &Handler{subjects: subjects, activity: activity, auth: auth, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/v1/event-types", h.eventTypes)

		pr.Route("/v1/{kinds}", func(kr chi.Router) {
			kr.Use(requireKind)
			kr.Post("/", h.createSubject)
			kr.Get("/", h.listSubjects)
			kr.Get("/{id}", h.getSubject)
			kr.Put("/{id}", h.updateSubject)
			kr.Post("/{id}/deactivate", h.deactivateSubject)
			kr.Post("/{id}/activate", h.activateSubject)
			kr.Get("/{id}/activities", h.listActivities)

			kr.With(onlyKind(domain.KindContact)).Post("/{id}/links", h.linkContact)
			kr.With(onlyKind(domain.KindContact)).Delete("/{id}/links/{relatedId}", h.unlinkContact)
			kr.With(onlyKind(domain.KindEntity)).Post("/{id}/state-ids", h.addStateIDs)
			kr.With(onlyKind(domain.KindEntity)).Post("/{id}/state-ids/remove", h.removeStateIDs)
			kr.With(onlyKind(domain.KindUser)).Post("/{id}/roles", h.assignRoles)
			kr.With(onlyKind(domain.KindUser)).Post("/{id}/roles/revoke", h.revokeRoles)
			kr.With(onlyKind(domain.KindTeam)).Post("/{id}/members", h.addMembers)
			kr.With(onlyKind(domain.KindTeam)).Post("/{id}/members/remove", h.removeMembers)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			h.requestLog(r).WithError(err).Error("authenticate api key")
			writeError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDCtxKey, apiKey.TenantID)
		ctx = context.WithValue(ctx, apiActorCtxKey, apiKey.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type kindCtxKey struct{}

func requireKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := domain.KindFromSegment(chi.URLParam(r, "kinds"))
		if err != nil {
			writeError(w, r, http.StatusNotFound, "not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kindCtxKey{}, kind)))
	})
}

// onlyKind hides a kind-specific route from every other kind.
func onlyKind(want domain.SubjectKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if kindFromContext(r.Context()) != want {
				writeError(w, r, http.StatusNotFound, "not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logFromContext(r.Context()).WithError(err).Error("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logFromContext(r.Context()).WithError(err).Warn("write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, map[string]any{"error": message})
}

// handleDomainError maps core errors to responses. Not-found bodies never
// say which of "missing" or "other tenant" applied.
func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var violation *domain.ErrSchemaViolation
	var unresolved *domain.UnresolvedEventError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidKind):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidPage):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidSubject), errors.Is(err, domain.ErrInvalidActor):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &violation):
		writeJSON(w, r, http.StatusBadRequest, map[string]any{"error": "schema validation failed", "details": violation.Errors})
	case errors.Is(err, domain.ErrInactive), errors.Is(err, domain.ErrAlreadyActive), errors.Is(err, domain.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &unresolved):
		h.requestLog(r).WithError(err).Error("activity dispatch configuration error")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	case errors.Is(err, context.Canceled):
		h.requestLog(r).WithError(err).Info("request cancelled")
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.requestLog(r).WithError(err).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func tenantIDFromContext(ctx context.Context) uuid.UUID {
	tenant, _ := ctx.Value(tenantIDCtxKey).(uuid.UUID)
	return tenant
}

func actorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(apiActorCtxKey).(domain.Actor)
	return actor
}

func kindFromContext(ctx context.Context) domain.SubjectKind {
	kind, _ := ctx.Value(kindCtxKey{}).(domain.SubjectKind)
	return kind
}

// pathID parses a uuid path parameter; a malformed id is reported as not
// found like any other unknown subject.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	return id, true
}
