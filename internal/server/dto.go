package server

import (
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
)

// Request payloads

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"displayName"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type CreateUserRequest struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	DisplayName string      `json:"displayName,omitempty"`
	Role        domain.Role `json:"role" enum:"super_admin,admin,developer,staff,trial_staff"`
	TeamID      string      `json:"teamId,omitempty"`
}

type SetRoleRequest struct {
	Role domain.Role `json:"role" enum:"super_admin,admin,developer,staff,trial_staff"`
}

type SetStatusRequest struct {
	Status domain.UserStatus `json:"status" enum:"active,banned,timeout"`
}

type MilestoneRequest struct {
	TeamID   string                  `json:"teamId,omitempty"`
	Title    *string                 `json:"title,omitempty"`
	Deadline *int64                  `json:"deadline,omitempty"`
	Status   *domain.MilestoneStatus `json:"status,omitempty" enum:"active,pending,completed"`
	Progress *int                    `json:"progress,omitempty"`
}

func (r MilestoneRequest) options(actorID string) engine.MilestoneOptions {
	return engine.MilestoneOptions{
		ActorID:  actorID,
		TeamID:   r.TeamID,
		Title:    r.Title,
		Deadline: r.Deadline,
		Status:   r.Status,
		Progress: r.Progress,
	}
}

type CreateTeamRequest struct {
	Name     string `json:"name"`
	AdminUID string `json:"adminUid,omitempty"`
}

type AddMemberRequest struct {
	UID string `json:"uid"`
}

type CreateTaskRequest struct {
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	MilestoneID     string          `json:"milestoneId,omitempty"`
	AssignedUserIDs []string        `json:"assignedUserIds,omitempty"`
	AssignedRole    domain.Role     `json:"assignedRole,omitempty"`
	Priority        domain.Priority `json:"priority,omitempty"`
	DueAt           *int64          `json:"dueAt,omitempty"`
}

type ChangeStatusRequest struct {
	Status      domain.TaskStatus `json:"status" enum:"todo,in-progress,review,done,blocked"`
	BlockReason string            `json:"blockReason,omitempty"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type MeResponse struct {
	User         domain.User         `json:"user"`
	Capabilities engine.Capabilities `json:"capabilities"`
}

type UserSummary struct {
	UID         string      `json:"uid"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
}

type TaskDetail struct {
	domain.Task
	Assignees []UserSummary `json:"assignees"`
}

type CreatedAPIKey struct {
	APIKey domain.APIKey `json:"apiKey"`
	// Key is shown once.
	Key string `json:"key"`
}

type EventPage struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func summarize(users []domain.User) []UserSummary {
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{UID: u.UID, DisplayName: u.DisplayName, Role: u.Role})
	}
	return out
}
