package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/feed"
	"teamdesk/internal/repo"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest
	}) (*out[domain.Task], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ActorID:         uid,
			Title:           b.Title,
			Description:     b.Description,
			MilestoneID:     b.MilestoneID,
			AssignedUserIDs: b.AssignedUserIDs,
			AssignedRole:    b.AssignedRole,
			Priority:        b.Priority,
			DueAt:           b.DueAt,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		MilestoneID  string `query:"milestoneId"`
		Status       string `query:"status"`
		AssignedRole string `query:"assignedRole"`
		AssigneeID   string `query:"assigneeId"`
		Limit        int    `query:"limit" minimum:"0" maximum:"1000"`
	}) (*out[[]domain.Task], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.TaskFilters{
			Status:     domain.TaskStatus(input.Status),
			AssigneeID: input.AssigneeID,
			Limit:      input.Limit,
		}
		if f.Status != "" && !f.Status.Valid() {
			return nil, handleError(ctx, engine.ValidationError{Field: "status", Reason: "unknown task status " + input.Status})
		}
		if input.AssignedRole != "" {
			role, ok := domain.ParseRole(input.AssignedRole)
			if !ok {
				return nil, handleError(ctx, engine.ValidationError{Field: "assignedRole", Reason: "unknown role " + input.AssignedRole})
			}
			f.AssignedRole = role
		}
		if input.MilestoneID != "" {
			f.MilestoneIDs = []string{input.MilestoneID}
		}
		tasks, err := e.ListTasksFor(ctx, uid, f)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return reply(tasks), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-views",
		Method:      http.MethodGet,
		Path:        "/tasks/views",
		Summary:     "Tasks assigned to the caller and to people ranked below them",
		Tags:        []string{"tasks"},
	}, func(ctx context.Context, _ *struct{}) (*out[engine.Views], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.TaskViews(ctx, uid)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task with its resolved assignees",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[TaskDetail], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.TaskFor(ctx, uid, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		assignees, err := e.TaskAssignees(ctx, t)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(TaskDetail{Task: t, Assignees: summarize(assignees)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a task to another status",
		Tags:        []string{"tasks"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ChangeStatusRequest
	}) (*out[domain.Task], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ChangeTaskStatus(ctx, engine.TaskStatusOptions{
			ActorID:     uid,
			TaskID:      input.ID,
			Status:      input.Body.Status,
			BlockReason: input.Body.BlockReason,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a task",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, uid, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/comments",
		Summary:     "List a task's comments, oldest first",
		Tags:        []string{"comments"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.TaskComment], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cs, err := e.CommentsFor(ctx, uid, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if cs == nil {
			cs = []domain.TaskComment{}
		}
		return reply(cs), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/comments",
		Summary:       "Comment on a task",
		Tags:          []string{"comments"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AddCommentRequest
	}) (*out[domain.TaskComment], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, uid, input.ID, input.Body.Text)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(c), nil
	})
}

// viewEventPrefixes lists the event families that can move a task between
// views.
var viewEventPrefixes = []string{"task.", "user.role.", "user.status.", "milestone.", "team."}

func affectsViews(evtType string) bool {
	for _, p := range viewEventPrefixes {
		if strings.HasPrefix(evtType, p) {
			return true
		}
	}
	return false
}

// registerTaskStream serves the caller's views as server-sent events. The
// current views are sent on connect and again after every relevant change;
// bursts of changes collapse into one recomputation.
func registerTaskStream(api huma.API, e engine.Engine, hub *feed.Hub) {
	sse.Register(api, huma.Operation{
		OperationID: "stream-task-views",
		Method:      http.MethodGet,
		Path:        "/tasks/views/stream",
		Summary:     "Live task views",
		Tags:        []string{"tasks"},
	}, map[string]any{
		"views": engine.Views{},
		"error": apiErrorBody{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			_ = send.Data(apiErrorBody{Code: "unauthorized", Message: authErr.Error()})
			return
		}
		push := func() bool {
			v, err := e.TaskViews(ctx, uid)
			if err != nil {
				body := apiErrorBody{Code: "internal_error", Message: "internal error"}
				if se, ok := handleError(ctx, err).(*apiError); ok {
					body = se.Body
				}
				_ = send.Data(body)
				return false
			}
			return send.Data(v) == nil
		}
		if hub == nil {
			push()
			return
		}
		ch, cancel := hub.Subscribe(16)
		defer cancel()
		if !push() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				dirty := affectsViews(evt.Type)
			drain:
				for {
					select {
					case more, ok := <-ch:
						if !ok {
							return
						}
						dirty = dirty || affectsViews(more.Type)
					default:
						break drain
					}
				}
				if dirty && !push() {
					return
				}
			}
		}
	})
}
