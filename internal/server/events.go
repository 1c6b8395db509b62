package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/repo"
)

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Read the audit log, newest first",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entityKind"`
		EntityID   string `query:"entityId"`
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
		Cursor     string `query:"cursor"`
	}) (*out[EventPage], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		if p.User.Role != domain.RoleAdmin && p.User.Role != domain.RoleSuperAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins can read the audit log", map[string]any{"action": "read events"})
		}
		var cursor int64
		if input.Cursor != "" {
			n, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || n < 0 {
				return nil, newAPIError(http.StatusBadRequest, "validation_failed", "cursor must be a positive event id", map[string]any{"field": "cursor"})
			}
			cursor = n
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		evts, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     cursor,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		page := EventPage{Items: evts}
		if len(evts) > limit {
			page.Items = evts[:limit]
			page.NextCursor = strconv.FormatInt(page.Items[limit-1].ID, 10)
		}
		if page.Items == nil {
			page.Items = []domain.Event{}
		}
		return reply(page), nil
	})
}
