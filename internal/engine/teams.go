package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/events"
)

// CreateTeam is reserved to the super admin role. The optional admin becomes
// the first member and has their team updated in the same transaction.
func (e Engine) CreateTeam(ctx context.Context, actorID, name, adminUID string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, required("name")
	}
	var team domain.Team
	err := e.withTx(ctx, "create team", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if actor.Role != domain.RoleSuperAdmin {
			return e.deny("create team", actor, auth.ForbiddenError{Action: "create team", Reason: "only the super admin role may create teams"})
		}
		team = domain.Team{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedBy: actor.UID,
			Members:   []string{},
			CreatedAt: e.nowMillis(),
		}
		if adminUID = strings.TrimSpace(adminUID); adminUID != "" {
			admin, err := e.Repo.GetUserTx(ctx, tx, adminUID)
			if err != nil {
				return collab("load team admin", err)
			}
			if admin.Role != domain.RoleAdmin {
				return ValidationError{Field: "adminUid", Reason: "team admin must have the admin role"}
			}
			team.Members = append(team.Members, adminUID)
		}
		if err := e.Repo.InsertTeam(ctx, tx, team); err != nil {
			return collab("insert team", err)
		}
		for _, uid := range team.Members {
			if err := e.moveToTeam(ctx, tx, uid, team.ID); err != nil {
				return err
			}
		}
		return collab("append event", e.eventWriter().Append(ctx, tx, events.TeamCreated, "team", team.ID, actor.UID, events.EventPayload{
			"name": team.Name, "members": team.Members,
		}))
	})
	return team, err
}

// AddTeamMember moves uid into the team, leaving any previous team.
func (e Engine) AddTeamMember(ctx context.Context, actorID, teamID, uid string) (domain.Team, error) {
	var team domain.Team
	err := e.withTx(ctx, "add team member", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !e.Policy().CanManageTeam(actor, teamID) {
			return e.deny("manage team", actor, auth.ForbiddenError{Action: "manage team", Reason: "only the super admin or an admin of the team may add members"})
		}
		member, err := e.Repo.GetUserTx(ctx, tx, uid)
		if err != nil {
			return collab("load user", err)
		}
		if actor.Role != domain.RoleSuperAdmin && !auth.CanAssignRole(actor.Role, member.Role) {
			return e.deny("manage team", actor, auth.ForbiddenError{Action: "manage team", Reason: "cannot add a member of equal or higher rank"})
		}
		if _, err := e.Repo.GetTeamTx(ctx, tx, teamID); err != nil {
			return collab("load team", err)
		}
		if member.TeamID != nil && *member.TeamID != teamID {
			if err := e.Repo.RemoveTeamMember(ctx, tx, *member.TeamID, uid); err != nil {
				e.log().Debug("previous membership missing", zap.String("uid", uid), zap.String("team", *member.TeamID))
			}
		}
		if err := e.Repo.AddTeamMember(ctx, tx, teamID, uid, e.nowMillis()); err != nil {
			return collab("add team member", err)
		}
		if err := e.moveToTeam(ctx, tx, uid, teamID); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, events.TeamMemberAdded, "team", teamID, actor.UID, events.EventPayload{"uid": uid}); err != nil {
			return collab("append event", err)
		}
		team, err = e.Repo.GetTeamTx(ctx, tx, teamID)
		return collab("load team", err)
	})
	return team, err
}

func (e Engine) moveToTeam(ctx context.Context, tx *sql.Tx, uid, teamID string) error {
	return collab("update user team", e.Repo.UpdateUserTeam(ctx, tx, uid, &teamID))
}

func (e Engine) ListTeams(ctx context.Context) ([]domain.Team, error) {
	teams, err := e.Repo.ListTeams(ctx)
	if teams == nil && err == nil {
		teams = []domain.Team{}
	}
	return teams, collab("list teams", err)
}
