package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/events"
	"teamdesk/internal/repo"
)

// MilestoneOptions carry the fields of a milestone write. Nil fields keep
// their current value on update.
type MilestoneOptions struct {
	ActorID  string
	TeamID   string
	Title    *string
	Deadline *int64
	Status   *domain.MilestoneStatus
	Progress *int
}

func clampProgress(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}

func (o MilestoneOptions) applyTo(m domain.Milestone) (domain.Milestone, error) {
	if o.Title != nil {
		m.Title = strings.TrimSpace(*o.Title)
	}
	if m.Title == "" {
		return m, required("title")
	}
	if o.Deadline != nil {
		m.Deadline = o.Deadline
	}
	if o.Status != nil {
		if !o.Status.Valid() {
			return m, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown milestone status %q", *o.Status)}
		}
		m.Status = *o.Status
	}
	if o.Progress != nil {
		m.Progress = *o.Progress
	}
	m.Progress = clampProgress(m.Progress)
	return m, nil
}

// SetActiveMilestone creates or replaces the single-tenant milestone.
func (e Engine) SetActiveMilestone(ctx context.Context, opts MilestoneOptions) (domain.Milestone, error) {
	if e.multiTeam() {
		return domain.Milestone{}, ValidationError{Field: "tenancy", Reason: "the shared active milestone only exists in single-tenant mode"}
	}
	var out domain.Milestone
	err := e.withTx(ctx, "set active milestone", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		now := e.nowMillis()
		current, err := e.Repo.GetMilestoneTx(ctx, tx, domain.ActiveMilestoneID)
		if errors.Is(err, repo.ErrNotFound) {
			current = domain.Milestone{
				ID:            domain.ActiveMilestoneID,
				Status:        domain.MilestoneActive,
				CreatedBy:     actor.UID,
				CreatedByName: actor.DisplayName,
				CreatedAt:     now,
			}
		} else if err != nil {
			return collab("load milestone", err)
		}
		if !e.Policy().CanManageMilestone(actor, current) {
			return e.deny("manage milestone", actor, auth.ForbiddenError{Action: "manage milestone", Reason: "only the super admin role may change the active milestone"})
		}
		m, err := opts.applyTo(current)
		if err != nil {
			return err
		}
		m.UpdatedAt = now
		out = m
		return e.writeMilestone(ctx, tx, m, actor.UID)
	})
	return out, err
}

// CreateMilestone adds a team milestone in multi-team mode.
func (e Engine) CreateMilestone(ctx context.Context, opts MilestoneOptions) (domain.Milestone, error) {
	if !e.multiTeam() {
		return domain.Milestone{}, ValidationError{Field: "tenancy", Reason: "team milestones require multi-team mode; use the active milestone"}
	}
	var out domain.Milestone
	err := e.withTx(ctx, "create milestone", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		teamID := strings.TrimSpace(opts.TeamID)
		if teamID == "" && actor.TeamID != nil {
			teamID = *actor.TeamID
		}
		if teamID == "" {
			return required("teamId")
		}
		if _, err := e.Repo.GetTeamTx(ctx, tx, teamID); err != nil {
			return collab("load team", err)
		}
		now := e.nowMillis()
		m := domain.Milestone{
			ID:            uuid.NewString(),
			TeamID:        &teamID,
			Status:        domain.MilestonePending,
			CreatedBy:     actor.UID,
			CreatedByName: actor.DisplayName,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if !e.Policy().CanManageMilestone(actor, m) {
			return e.deny("manage milestone", actor, auth.ForbiddenError{Action: "manage milestone", Reason: "only the super admin or an admin of the team may add milestones"})
		}
		if m, err = opts.applyTo(m); err != nil {
			return err
		}
		out = m
		return e.writeMilestone(ctx, tx, m, actor.UID)
	})
	return out, err
}

func (e Engine) UpdateMilestone(ctx context.Context, id string, opts MilestoneOptions) (domain.Milestone, error) {
	var out domain.Milestone
	err := e.withTx(ctx, "update milestone", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		current, err := e.Repo.GetMilestoneTx(ctx, tx, id)
		if err != nil {
			return collab("load milestone", err)
		}
		if !e.Policy().CanManageMilestone(actor, current) {
			return e.deny("manage milestone", actor, auth.ForbiddenError{Action: "manage milestone", Reason: "not allowed to change this milestone"})
		}
		m, err := opts.applyTo(current)
		if err != nil {
			return err
		}
		m.UpdatedAt = e.nowMillis()
		out = m
		return e.writeMilestone(ctx, tx, m, actor.UID)
	})
	return out, err
}

func (e Engine) writeMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone, actorID string) error {
	if err := e.Repo.UpsertMilestone(ctx, tx, m); err != nil {
		return collab("write milestone", err)
	}
	return collab("append event", e.eventWriter().Append(ctx, tx, events.MilestoneUpserted, "milestone", m.ID, actorID, events.EventPayload{
		"title": m.Title, "status": m.Status, "progress": m.Progress,
	}))
}

func (e Engine) ActiveMilestone(ctx context.Context) (domain.Milestone, error) {
	m, err := e.Repo.GetMilestone(ctx, domain.ActiveMilestoneID)
	return m, collab("load milestone", err)
}

// ListMilestones returns the milestones visible to the actor: all of them in
// single-tenant mode or for the super admin, otherwise the actor's team's.
func (e Engine) ListMilestones(ctx context.Context, actorID string) ([]domain.Milestone, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	teamID := ""
	if e.multiTeam() && actor.Role != domain.RoleSuperAdmin {
		if actor.TeamID == nil {
			return []domain.Milestone{}, nil
		}
		teamID = *actor.TeamID
	}
	ms, err := e.Repo.ListMilestones(ctx, teamID)
	if err != nil {
		return nil, collab("list milestones", err)
	}
	if ms == nil {
		ms = []domain.Milestone{}
	}
	return ms, nil
}

// MilestoneSummary is a milestone with its task counts per status.
type MilestoneSummary struct {
	Milestone domain.Milestone          `json:"milestone"`
	Counts    map[domain.TaskStatus]int `json:"counts"`
	Total     int                       `json:"total"`
	Done      int                       `json:"done"`
}

// SummarizeMilestone counts the tasks of a milestone the actor can see. An
// empty id means the active milestone.
func (e Engine) SummarizeMilestone(ctx context.Context, actorID, id string) (MilestoneSummary, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return MilestoneSummary{}, err
	}
	if strings.TrimSpace(id) == "" {
		id = domain.ActiveMilestoneID
	}
	m, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return MilestoneSummary{}, collab("load milestone", err)
	}
	if !e.Policy().CanSeeMilestone(actor, m) {
		return MilestoneSummary{}, e.deny("view milestone", actor, auth.ForbiddenError{Action: "view milestone", Reason: "milestone belongs to another team"})
	}
	counts, err := e.Repo.CountTasksByStatus(ctx, m.ID)
	if err != nil {
		return MilestoneSummary{}, collab("count tasks", err)
	}
	sum := MilestoneSummary{Milestone: m, Counts: counts}
	for status, n := range counts {
		sum.Total += n
		if status == domain.StatusDone {
			sum.Done += n
		}
	}
	return sum, nil
}

// milestoneForTask resolves and checks the milestone a new task anchors to.
func (e Engine) milestoneForTask(ctx context.Context, tx *sql.Tx, actor domain.User, requested string) (domain.Milestone, error) {
	id := strings.TrimSpace(requested)
	if !e.multiTeam() {
		if id != "" && id != domain.ActiveMilestoneID {
			return domain.Milestone{}, ValidationError{Field: "milestoneId", Reason: "tasks must reference the active milestone"}
		}
		id = domain.ActiveMilestoneID
	}
	if id == "" {
		return domain.Milestone{}, required("milestoneId")
	}
	m, err := e.Repo.GetMilestoneTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Milestone{}, ValidationError{Field: "milestoneId", Reason: "an active milestone is required"}
	}
	if err != nil {
		return domain.Milestone{}, collab("load milestone", err)
	}
	if m.Status == domain.MilestoneCompleted {
		return domain.Milestone{}, ValidationError{Field: "milestoneId", Reason: "milestone is completed"}
	}
	if !e.Policy().CanSeeMilestone(actor, m) {
		return domain.Milestone{}, ValidationError{Field: "milestoneId", Reason: "milestone belongs to another team"}
	}
	return m, nil
}
