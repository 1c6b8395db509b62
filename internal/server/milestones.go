package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
)

func registerMilestones(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-milestones",
		Method:      http.MethodGet,
		Path:        "/milestones",
		Summary:     "List milestones visible to the caller",
		Tags:        []string{"milestones"},
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Milestone], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ms, err := e.ListMilestones(ctx, uid)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if ms == nil {
			ms = []domain.Milestone{}
		}
		return reply(ms), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-milestone",
		Method:      http.MethodGet,
		Path:        "/milestones/active",
		Summary:     "Get the active milestone",
		Tags:        []string{"milestones"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*out[domain.Milestone], error) {
		m, err := e.ActiveMilestone(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-active-milestone",
		Method:      http.MethodPut,
		Path:        "/milestones/active",
		Summary:     "Create or update the active milestone",
		Tags:        []string{"milestones"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body MilestoneRequest
	}) (*out[domain.Milestone], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SetActiveMilestone(ctx, input.Body.options(uid))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-milestone",
		Method:        http.MethodPost,
		Path:          "/milestones",
		Summary:       "Create a team milestone",
		Tags:          []string{"milestones"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body MilestoneRequest
	}) (*out[domain.Milestone], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMilestone(ctx, input.Body.options(uid))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-milestone",
		Method:      http.MethodPatch,
		Path:        "/milestones/{id}",
		Summary:     "Update a milestone",
		Tags:        []string{"milestones"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body MilestoneRequest
	}) (*out[domain.Milestone], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateMilestone(ctx, input.ID, input.Body.options(uid))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "milestone-summary",
		Method:      http.MethodGet,
		Path:        "/milestones/{id}/summary",
		Summary:     "Task counts per status for a milestone",
		Tags:        []string{"milestones"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[engine.MilestoneSummary], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := e.SummarizeMilestone(ctx, uid, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(sum), nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams",
		Tags:        []string{"teams"},
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Team], error) {
		teams, err := e.ListTeams(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if teams == nil {
			teams = []domain.Team{}
		}
		return reply(teams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create a team",
		Tags:          []string{"teams"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest
	}) (*out[domain.Team], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTeam(ctx, uid, input.Body.Name, input.Body.AdminUID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-team-member",
		Method:      http.MethodPost,
		Path:        "/teams/{id}/members",
		Summary:     "Move a user into a team",
		Tags:        []string{"teams"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AddMemberRequest
	}) (*out[domain.Team], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddTeamMember(ctx, uid, input.ID, input.Body.UID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})
}
