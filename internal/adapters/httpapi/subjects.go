package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/usecase"
)

type subjectRequest struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type subjectResponse struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Active     bool              `json:"active"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StateIDs   []string          `json:"stateIds,omitempty"`
	Roles      []string          `json:"roles,omitempty"`
	Links      []string          `json:"links,omitempty"`
	CreatedAt  string            `json:"createdAt"`
	UpdatedAt  string            `json:"updatedAt"`
}

type linkRequest struct {
	RelatedID string `json:"relatedId"`
}

type codesRequest struct {
	Codes []string `json:"codes"`
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

type membersRequest struct {
	UserIDs []string `json:"userIds"`
}

func toSubjectResponse(s domain.Subject) subjectResponse {
	links := make([]string, 0, len(s.Links))
	for _, id := range s.Links {
		links = append(links, id.String())
	}
	return subjectResponse{
		ID:         s.ID.String(),
		Kind:       string(s.Kind),
		Name:       s.Name,
		Active:     s.Active,
		Attributes: s.Attributes,
		StateIDs:   s.StateIDs,
		Roles:      s.Roles,
		Links:      links,
		CreatedAt:  s.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  s.UpdatedAt.UTC().Format(timeFormat),
	}
}

func (h *Handler) createSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.Create(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), kindFromContext(ctx), usecase.SubjectInput{Name: req.Name, Attributes: req.Attributes})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toSubjectResponse(subj))
}

func (h *Handler) listSubjects(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	var after uuid.UUID
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		after, err = uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a uuid")
			return
		}
	}

	ctx := r.Context()
	subjects, err := h.subjects.List(ctx, tenantIDFromContext(ctx), kindFromContext(ctx), domain.SubjectListFilter{After: after, Limit: limit})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	out := make([]subjectResponse, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, toSubjectResponse(s))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) getSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.Get(ctx, tenantIDFromContext(ctx), kindFromContext(ctx), id)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSubjectResponse(subj))
}

func (h *Handler) updateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.Update(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), kindFromContext(ctx), id, usecase.SubjectInput{Name: req.Name, Attributes: req.Attributes})
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) deactivateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.Deactivate(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), kindFromContext(ctx), id)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) activateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.Activate(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), kindFromContext(ctx), id)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) linkContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req linkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	related, err := uuid.Parse(req.RelatedID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "relatedId must be a uuid")
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.LinkContact(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), id, related)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) unlinkContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	related, ok := pathID(w, r, "relatedId")
	if !ok {
		return
	}
	ctx := r.Context()
	subj, err := h.subjects.UnlinkContact(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), id, related)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) addStateIDs(w http.ResponseWriter, r *http.Request) {
	h.changeCodes(w, r, h.subjects.AddStateIDs)
}

func (h *Handler) removeStateIDs(w http.ResponseWriter, r *http.Request) {
	h.changeCodes(w, r, h.subjects.RemoveStateIDs)
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	h.changeRoles(w, r, h.subjects.AssignRoles)
}

func (h *Handler) revokeRoles(w http.ResponseWriter, r *http.Request) {
	h.changeRoles(w, r, h.subjects.RevokeRoles)
}

func (h *Handler) addMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, h.subjects.AddMembers)
}

func (h *Handler) removeMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, h.subjects.RemoveMembers)
}

type listMutation[T any] func(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id uuid.UUID, values []T) (domain.Subject, error)

func (h *Handler) changeCodes(w http.ResponseWriter, r *http.Request, fn listMutation[string]) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req codesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	subj, err := fn(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), id, req.Codes)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) changeRoles(w http.ResponseWriter, r *http.Request, fn listMutation[string]) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rolesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	subj, err := fn(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), id, req.Roles)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) changeMembers(w http.ResponseWriter, r *http.Request, fn listMutation[uuid.UUID]) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req membersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userIDs := make([]uuid.UUID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		uid, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "userIds must be uuids")
			return
		}
		userIDs = append(userIDs, uid)
	}
	ctx := r.Context()
	subj, err := fn(ctx, tenantIDFromContext(ctx), actorFromContext(ctx), id, userIDs)
	h.respondSubject(w, r, subj, err)
}

func (h *Handler) respondSubject(w http.ResponseWriter, r *http.Request, subj domain.Subject, err error) {
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSubjectResponse(subj))
}
