package auth

import (
	"fmt"

	"teamdesk/internal/domain"
)

// ForbiddenError reports an action the actor's role or identity does not allow.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not allowed to %s", e.Action)
	}
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

type CompletionPolicy string

const (
	// CompleteByAssignerRole lets only holders of the assigner's exact role mark a task done.
	CompleteByAssignerRole CompletionPolicy = "assigner_role"
	// CompleteByMinRank lets anyone ranked at or above the assigner mark a task done.
	CompleteByMinRank CompletionPolicy = "min_rank"
)

func (p CompletionPolicy) Valid() bool {
	return p == CompleteByAssignerRole || p == CompleteByMinRank
}

// Policy bundles the deployment-specific inputs of the authorization rules.
// All predicates are pure.
type Policy struct {
	SuperAdminUID string
	Completion    CompletionPolicy
	TeamScoped    bool
}

func CanAssignRole(actor, target domain.Role) bool {
	for _, r := range domain.AssignableRoles(actor) {
		if r == target {
			return true
		}
	}
	return false
}

func CanCreateTask(r domain.Role) bool {
	return r.Valid() && r != domain.RoleTrialStaff
}

func (p Policy) IsSuperAdmin(uid string) bool {
	return p.SuperAdminUID != "" && uid == p.SuperAdminUID
}

// CanManageUser is false for the designated super admin regardless of who
// asks, including the super admin itself.
func (p Policy) CanManageUser(actor, target domain.User) bool {
	if p.IsSuperAdmin(target.UID) {
		return false
	}
	if actor.Role == domain.RoleSuperAdmin {
		return true
	}
	return actor.Role.Outranks(target.Role)
}

// CanChangeRole additionally requires the actor to be able to hand out both
// the target's current role and the new one.
func (p Policy) CanChangeRole(actor, target domain.User, newRole domain.Role) bool {
	return p.CanManageUser(actor, target) &&
		CanAssignRole(actor.Role, target.Role) &&
		CanAssignRole(actor.Role, newRole)
}

func (p Policy) CanChangeUserStatus(actor, target domain.User, status domain.UserStatus) bool {
	if !status.Valid() {
		return false
	}
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSuperAdmin {
		return false
	}
	return p.CanManageUser(actor, target)
}

// AssignableUsers keeps the candidates whose role the actor may assign. With
// team scoping, non super admins only see their own team.
func (p Policy) AssignableUsers(actor domain.User, pool []domain.User) []domain.User {
	var out []domain.User
	for _, u := range pool {
		if !CanAssignRole(actor.Role, u.Role) {
			continue
		}
		if p.TeamScoped && actor.Role != domain.RoleSuperAdmin && !sameTeam(actor, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func sameTeam(a, b domain.User) bool {
	return a.TeamID != nil && b.TeamID != nil && *a.TeamID == *b.TeamID
}

// CanSeeMilestone applies the team scope to milestones and, through them, to
// tasks and their comments.
func (p Policy) CanSeeMilestone(actor domain.User, m domain.Milestone) bool {
	if !p.TeamScoped || actor.Role == domain.RoleSuperAdmin {
		return true
	}
	return actor.TeamID != nil && m.TeamID != nil && *actor.TeamID == *m.TeamID
}

// CanSeeUser lets team scoped actors see themselves and their own team.
func (p Policy) CanSeeUser(actor, u domain.User) bool {
	if !p.TeamScoped || actor.Role == domain.RoleSuperAdmin || actor.UID == u.UID {
		return true
	}
	return sameTeam(actor, u)
}

func CanDeleteTask(actor domain.User, t domain.Task) bool {
	if actor.UID != "" && actor.UID == t.AssignedByID {
		return true
	}
	return actor.Role.Valid() && actor.Role.Rank() >= t.AssignedByRole.Rank()
}

// IsAssignee resolves role assignments against the actor's current role.
func IsAssignee(actor domain.User, t domain.Task) bool {
	if t.AssignedRole != nil && actor.Role.Valid() && *t.AssignedRole == actor.Role {
		return true
	}
	for _, uid := range t.AssignedUserIDs {
		if uid == actor.UID {
			return true
		}
	}
	return false
}

func CanUpdateTaskStatus(actor domain.User, t domain.Task) bool {
	return IsAssignee(actor, t) || CanDeleteTask(actor, t)
}

func (p Policy) CanCompleteTask(actor domain.User, t domain.Task) bool {
	if !actor.Role.Valid() {
		return false
	}
	if p.Completion == CompleteByMinRank {
		return actor.Role.Rank() >= t.AssignedByRole.Rank()
	}
	return actor.Role == t.AssignedByRole
}

// CanManageMilestone: single-tenant milestones belong to the super admin
// role; team milestones may also be managed by an admin of that team.
func (p Policy) CanManageMilestone(actor domain.User, m domain.Milestone) bool {
	if actor.Role == domain.RoleSuperAdmin {
		return true
	}
	if !p.TeamScoped || actor.Role != domain.RoleAdmin {
		return false
	}
	return m.TeamID != nil && actor.TeamID != nil && *m.TeamID == *actor.TeamID
}

func (p Policy) CanManageTeam(actor domain.User, teamID string) bool {
	if actor.Role == domain.RoleSuperAdmin {
		return true
	}
	return actor.Role == domain.RoleAdmin && actor.TeamID != nil && *actor.TeamID == teamID
}
