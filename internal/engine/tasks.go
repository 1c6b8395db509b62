package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/events"
	"teamdesk/internal/repo"
)

// TaskCreateOptions are parameters for creating a task. Exactly one of
// AssignedUserIDs and AssignedRole must be set.
type TaskCreateOptions struct {
	ActorID         string
	Title           string
	Description     string
	MilestoneID     string
	AssignedUserIDs []string
	AssignedRole    domain.Role
	Priority        domain.Priority
	DueAt           *int64
}

func cleanIDs(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CreateTask checks, in order: title, milestone, the actor's right to create
// tasks, the assignment target, then priority.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, required("title")
	}
	var t domain.Task
	err := e.withTx(ctx, "create task", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		milestone, err := e.milestoneForTask(ctx, tx, actor, opts.MilestoneID)
		if err != nil {
			return err
		}
		if !auth.CanCreateTask(actor.Role) {
			return e.deny("create task", actor, auth.ForbiddenError{Action: "create task", Reason: fmt.Sprintf("%s cannot create tasks", actor.Role)})
		}
		uids := cleanIDs(opts.AssignedUserIDs)
		var role *domain.Role
		switch {
		case len(uids) > 0 && opts.AssignedRole != "":
			return ValidationError{Field: "assignment", Reason: "assign to users or to a role, not both"}
		case opts.AssignedRole != "":
			if !opts.AssignedRole.Valid() {
				return ValidationError{Field: "assignedRole", Reason: fmt.Sprintf("unknown role %q", opts.AssignedRole)}
			}
			if !auth.CanAssignRole(actor.Role, opts.AssignedRole) {
				return e.deny("create task", actor, auth.ForbiddenError{
					Action: "assign task",
					Reason: fmt.Sprintf("%s cannot assign tasks to %s", actor.Role, opts.AssignedRole),
				})
			}
			r := opts.AssignedRole
			role = &r
		case len(uids) > 0:
			if err := e.ensureAssignable(ctx, tx, actor, uids); err != nil {
				return err
			}
		default:
			return ValidationError{Field: "assignedUserIds", Reason: "task must be assigned to at least one user or one role"}
		}
		priority := opts.Priority
		if priority == "" {
			priority = domain.PriorityMedium
		}
		if !priority.Valid() {
			return ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", priority)}
		}
		if uids == nil {
			uids = []string{}
		}
		t = domain.Task{
			ID:              uuid.NewString(),
			Title:           title,
			Description:     strings.TrimSpace(opts.Description),
			MilestoneID:     milestone.ID,
			AssignedUserIDs: uids,
			AssignedRole:    role,
			AssignedByID:    actor.UID,
			AssignedByName:  actor.DisplayName,
			AssignedByRole:  actor.Role,
			Priority:        priority,
			Status:          domain.StatusTodo,
			CreatedBy:       actor.UID,
			CreatedByName:   actor.DisplayName,
			CreatedByRole:   actor.Role,
			CreatedAt:       e.nowMillis(),
			DueAt:           opts.DueAt,
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return collab("insert task", err)
		}
		payload := events.EventPayload{"title": t.Title, "status": t.Status, "milestoneId": t.MilestoneID, "assignedUserIds": t.AssignedUserIDs}
		if role != nil {
			payload["assignedRole"] = *role
		}
		return collab("append event", e.eventWriter().Append(ctx, tx, events.TaskCreated, "task", t.ID, actor.UID, payload))
	})
	if err == nil {
		e.log().Debug("task created", zap.String("task", t.ID), zap.String("by", t.AssignedByID))
	}
	return t, err
}

func (e Engine) ensureAssignable(ctx context.Context, tx *sql.Tx, actor domain.User, uids []string) error {
	users, err := e.Repo.ListUsersTx(ctx, tx, repo.UserFilters{UIDs: uids})
	if err != nil {
		return collab("load assignees", err)
	}
	found := map[string]bool{}
	for _, u := range users {
		found[u.UID] = true
	}
	for _, uid := range uids {
		if !found[uid] {
			return ValidationError{Field: "assignedUserIds", Reason: fmt.Sprintf("user %s does not exist", uid)}
		}
	}
	for _, u := range users {
		if u.Status != domain.UserActive {
			return e.deny("assign task", actor, auth.ForbiddenError{
				Action: "assign task",
				Reason: fmt.Sprintf("%s is %s", u.DisplayName, u.Status),
			})
		}
	}
	allowed := e.Policy().AssignableUsers(actor, users)
	if len(allowed) != len(users) {
		ok := map[string]bool{}
		for _, u := range allowed {
			ok[u.UID] = true
		}
		for _, u := range users {
			if !ok[u.UID] {
				return e.deny("assign task", actor, auth.ForbiddenError{
					Action: "assign task",
					Reason: fmt.Sprintf("%s cannot assign tasks to %s", actor.Role, u.DisplayName),
				})
			}
		}
	}
	return nil
}

// TaskStatusOptions request a status change. BlockReason is only read when
// moving to blocked.
type TaskStatusOptions struct {
	ActorID     string
	TaskID      string
	Status      domain.TaskStatus
	BlockReason string
}

// ChangeTaskStatus re-reads task and actor, validates the transition and
// records it with a system log comment.
func (e Engine) ChangeTaskStatus(ctx context.Context, opts TaskStatusOptions) (domain.Task, error) {
	var out domain.Task
	err := e.withTx(ctx, "change task status", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, opts.TaskID)
		if err != nil {
			return collab("load task", err)
		}
		if err := e.ensureTaskVisible(ctx, tx, actor, t); err != nil {
			return err
		}
		tr, err := ensureTaskTransition(e.Policy(), actor, t, opts.Status, opts.BlockReason)
		if err != nil {
			return e.deny("change task status", actor, err)
		}
		if err := e.Repo.UpdateTaskStatus(ctx, tx, t.ID, tr.To, tr.BlockReason); err != nil {
			return collab("update task", err)
		}
		now := e.nowMillis()
		if err := e.Repo.InsertComment(ctx, tx, domain.TaskComment{
			ID:        uuid.NewString(),
			TaskID:    t.ID,
			UserID:    actor.UID,
			UserName:  actor.DisplayName,
			UserRole:  actor.Role,
			Text:      tr.logLine(),
			Timestamp: now,
			Type:      domain.CommentSystemLog,
		}); err != nil {
			return collab("insert system log", err)
		}
		payload := events.EventPayload{"from": tr.From, "to": tr.To}
		if tr.BlockReason != nil {
			payload["blockReason"] = *tr.BlockReason
		}
		if err := e.eventWriter().Append(ctx, tx, events.TaskStatusChanged, "task", t.ID, actor.UID, payload); err != nil {
			return collab("append event", err)
		}
		out = tr.apply(t)
		return nil
	})
	return out, err
}

// DeleteTask removes the task. Its comments stay until the orphan sweep.
func (e Engine) DeleteTask(ctx context.Context, actorID, taskID string) error {
	return e.withTx(ctx, "delete task", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return collab("load task", err)
		}
		if err := e.ensureTaskVisible(ctx, tx, actor, t); err != nil {
			return err
		}
		if !auth.CanDeleteTask(actor, t) {
			return e.deny("delete task", actor, auth.ForbiddenError{
				Action: "delete task",
				Reason: fmt.Sprintf("only the assigner or %s rank and above may delete it", t.AssignedByRole),
			})
		}
		if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
			return collab("delete task", err)
		}
		return collab("append event", e.eventWriter().Append(ctx, tx, events.TaskDeleted, "task", t.ID, actor.UID, events.EventPayload{"title": t.Title}))
	})
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	return t, collab("get task", err)
}

// TaskFor is GetTask under the actor's team scope.
func (e Engine) TaskFor(ctx context.Context, actorID, id string) (domain.Task, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.ensureTaskVisible(ctx, nil, actor, t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ensureTaskVisible rejects tasks whose milestone lies outside the actor's
// team. It is a no-op in single-tenant mode and for the super admin.
func (e Engine) ensureTaskVisible(ctx context.Context, tx *sql.Tx, actor domain.User, t domain.Task) error {
	p := e.Policy()
	if !p.TeamScoped || actor.Role == domain.RoleSuperAdmin {
		return nil
	}
	m, err := e.Repo.GetMilestoneTx(ctx, tx, t.MilestoneID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return collab("load milestone", err)
	}
	if err != nil || !p.CanSeeMilestone(actor, m) {
		return e.deny("view task", actor, auth.ForbiddenError{Action: "view task", Reason: "task belongs to another team"})
	}
	return nil
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasks(ctx, f)
	if tasks == nil && err == nil {
		tasks = []domain.Task{}
	}
	return tasks, collab("list tasks", err)
}

// ListTasksFor applies the actor's team scope to f: in multi-team mode non
// super admins only see tasks of their team's milestones.
func (e Engine) ListTasksFor(ctx context.Context, actorID string, f repo.TaskFilters) ([]domain.Task, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	if e.multiTeam() && actor.Role != domain.RoleSuperAdmin {
		ms, err := e.ListMilestones(ctx, actorID)
		if err != nil {
			return nil, err
		}
		visible := make(map[string]bool, len(ms))
		for _, m := range ms {
			visible[m.ID] = true
		}
		var scoped []string
		if len(f.MilestoneIDs) == 0 {
			for _, m := range ms {
				scoped = append(scoped, m.ID)
			}
		}
		for _, id := range f.MilestoneIDs {
			if visible[id] {
				scoped = append(scoped, id)
			}
		}
		if len(scoped) == 0 {
			return []domain.Task{}, nil
		}
		f.MilestoneIDs = scoped
	}
	return e.ListTasks(ctx, f)
}

// TaskViews partitions the current task snapshot for the viewer.
func (e Engine) TaskViews(ctx context.Context, viewerID string) (Views, error) {
	viewer, err := e.loadActor(ctx, nil, viewerID)
	if err != nil {
		return Views{}, err
	}
	tasks, err := e.ListTasksFor(ctx, viewerID, repo.TaskFilters{})
	if err != nil {
		return Views{}, err
	}
	users, err := e.Repo.ListUsers(ctx, repo.UserFilters{})
	if err != nil {
		return Views{}, collab("list users", err)
	}
	return Partition(tasks, &viewer, users), nil
}

// TaskAssignees resolves who currently holds the task.
func (e Engine) TaskAssignees(ctx context.Context, t domain.Task) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx, repo.UserFilters{})
	if err != nil {
		return nil, collab("list users", err)
	}
	return ResolveAssignees(t, users), nil
}

func (e Engine) AddComment(ctx context.Context, actorID, taskID, text string) (domain.TaskComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.TaskComment{}, required("text")
	}
	var c domain.TaskComment
	err := e.withTx(ctx, "add comment", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return collab("load task", err)
		}
		if err := e.ensureTaskVisible(ctx, tx, actor, t); err != nil {
			return err
		}
		c = domain.TaskComment{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			UserID:    actor.UID,
			UserName:  actor.DisplayName,
			UserRole:  actor.Role,
			Text:      text,
			Timestamp: e.nowMillis(),
			Type:      domain.CommentText,
		}
		if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
			return collab("insert comment", err)
		}
		return collab("append event", e.eventWriter().Append(ctx, tx, events.TaskCommented, "task", taskID, actor.UID, events.EventPayload{"commentId": c.ID}))
	})
	return c, err
}

func (e Engine) ListComments(ctx context.Context, taskID string) ([]domain.TaskComment, error) {
	comments, err := e.Repo.ListComments(ctx, taskID)
	if comments == nil && err == nil {
		comments = []domain.TaskComment{}
	}
	return comments, collab("list comments", err)
}

// CommentsFor lists the comments of a task the actor can see.
func (e Engine) CommentsFor(ctx context.Context, actorID, taskID string) ([]domain.TaskComment, error) {
	if _, err := e.TaskFor(ctx, actorID, taskID); err != nil {
		return nil, err
	}
	return e.ListComments(ctx, taskID)
}

// SweepOrphanComments deletes comments left behind by deleted tasks.
func (e Engine) SweepOrphanComments(ctx context.Context) (int64, error) {
	n, err := e.Repo.DeleteOrphanComments(ctx)
	return n, collab("sweep comments", err)
}
