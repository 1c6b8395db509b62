package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/repo"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "sign-up",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Create an account (starts as trial staff)",
		Tags:          []string{"auth"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SignUpRequest
	}) (*out[engine.Session], error) {
		s, err := e.SignUp(ctx, input.Body.Email, input.Body.Password, input.Body.DisplayName)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sign-in",
		Method:      http.MethodPost,
		Path:        "/auth/signin",
		Summary:     "Sign in and receive a session token",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body SignInRequest
	}) (*out[engine.Session], error) {
		s, err := e.SignIn(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "sign-out",
		Method:        http.MethodPost,
		Path:          "/auth/signout",
		Summary:       "Revoke the current session token",
		Tags:          []string{"auth"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		if p.Token == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "api keys have no session to sign out of", nil)
		}
		if err := e.SignOut(ctx, p.Token); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current profile and capabilities",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[MeResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return reply(MeResponse{User: p.User, Capabilities: e.Capabilities(p.User)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Change the display name",
		Tags:        []string{"users"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest
	}) (*out[domain.User], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateDisplayName(ctx, uid, input.Body.DisplayName)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "change-password",
		Method:        http.MethodPost,
		Path:          "/me/password",
		Summary:       "Change the password",
		Tags:          []string{"users"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body ChangePasswordRequest
	}) (*struct{}, error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ChangePassword(ctx, uid, input.Body.OldPassword, input.Body.NewPassword); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Tags:        []string{"users"},
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role"`
		Status string `query:"status"`
		TeamID string `query:"teamId"`
	}) (*out[[]domain.User], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsersFor(ctx, uid, repo.UserFilters{
			Role:   domain.Role(input.Role),
			Status: domain.UserStatus(input.Status),
			TeamID: input.TeamID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if users == nil {
			users = []domain.User{}
		}
		return reply(users), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user with a role the caller may assign",
		Tags:          []string{"users"},
		DefaultStatus: http.StatusCreated,
		Errors:        append(mutationErrors, http.StatusConflict),
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest
	}) (*out[domain.User], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateManagedUser(ctx, engine.ManagedUserOptions{
			ActorID:     uid,
			Email:       input.Body.Email,
			Password:    input.Body.Password,
			DisplayName: input.Body.DisplayName,
			Role:        input.Body.Role,
			TeamID:      input.Body.TeamID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assignable-users",
		Method:      http.MethodGet,
		Path:        "/users/assignable",
		Summary:     "Users the caller may assign tasks to",
		Tags:        []string{"users"},
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.User], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.AssignableUsers(ctx, uid)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(users), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{uid}",
		Summary:     "Get a user",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UID string `path:"uid"`
	}) (*out[domain.User], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UserFor(ctx, uid, input.UID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPatch,
		Path:        "/users/{uid}/role",
		Summary:     "Change a user's role",
		Tags:        []string{"users"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UID  string `path:"uid"`
		Body SetRoleRequest
	}) (*out[domain.User], error) {
		actorID, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.SetUserRole(ctx, actorID, input.UID, input.Body.Role)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-status",
		Method:      http.MethodPatch,
		Path:        "/users/{uid}/status",
		Summary:     "Ban, time out or reactivate a user",
		Tags:        []string{"users"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UID  string `path:"uid"`
		Body SetStatusRequest
	}) (*out[domain.User], error) {
		actorID, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.SetUserStatus(ctx, actorID, input.UID, input.Body.Status)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(u), nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create an API key for the caller",
		Tags:          []string{"apikeys"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest
	}) (*out[CreatedAPIKey], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := e.CreateAPIKey(ctx, uid, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(CreatedAPIKey{APIKey: key, Key: secret}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Tags:        []string{"apikeys"},
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.APIKey], error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, uid)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(keys), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/apikeys/{id}",
		Summary:       "Delete an API key",
		Tags:          []string{"apikeys"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		uid, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, uid, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
