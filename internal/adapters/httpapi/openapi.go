package httpapi

import (
	"strconv"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

func openapiSpec() map[string]any {
	pageParams := []any{
		map[string]any{"name": "page", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1}},
		map[string]any{"name": "pageSize", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1, "maximum": domain.MaxPageSize}},
	}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "activitylog",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/event-types": map[string]any{
				"get": map[string]any{"summary": "List registered event types with payload schemas"},
			},
			"/v1/{kinds}": map[string]any{
				"get":  map[string]any{"summary": "List subjects"},
				"post": map[string]any{"summary": "Create subject"},
			},
			"/v1/{kinds}/{id}": map[string]any{
				"get": map[string]any{"summary": "Get subject"},
				"put": map[string]any{"summary": "Update subject"},
			},
			"/v1/{kinds}/{id}/deactivate": map[string]any{
				"post": map[string]any{"summary": "Deactivate subject"},
			},
			"/v1/{kinds}/{id}/activate": map[string]any{
				"post": map[string]any{"summary": "Activate subject"},
			},
			"/v1/{kinds}/{id}/activities": map[string]any{
				"get": map[string]any{
					"summary":    "Get one page of the subject's activity log, newest first",
					"parameters": pageParams,
					"responses": map[string]any{
						"200": map[string]any{"description": "{pageCount, items:[{message, date, fullName}]}"},
						"400": map[string]any{"description": "page or pageSize is not a positive integer, or pageSize exceeds " + strconv.Itoa(domain.MaxPageSize)},
						"404": map[string]any{"description": "subject not found"},
					},
				},
			},
			"/v1/contacts/{id}/links": map[string]any{
				"post": map[string]any{"summary": "Link a related contact"},
			},
			"/v1/contacts/{id}/links/{relatedId}": map[string]any{
				"delete": map[string]any{"summary": "Unlink a related contact"},
			},
			"/v1/entities/{id}/state-ids": map[string]any{
				"post": map[string]any{"summary": "Add state identification codes"},
			},
			"/v1/entities/{id}/state-ids/remove": map[string]any{
				"post": map[string]any{"summary": "Remove state identification codes"},
			},
			"/v1/users/{id}/roles": map[string]any{
				"post": map[string]any{"summary": "Assign roles"},
			},
			"/v1/users/{id}/roles/revoke": map[string]any{
				"post": map[string]any{"summary": "Revoke roles"},
			},
			"/v1/teams/{id}/members": map[string]any{
				"post": map[string]any{"summary": "Add team members"},
			},
			"/v1/teams/{id}/members/remove": map[string]any{
				"post": map[string]any{"summary": "Remove team members"},
			},
		},
	}
}
