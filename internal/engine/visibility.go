package engine

import (
	"sort"

	"teamdesk/internal/domain"
)

// Views is a viewer's partition of the task list.
type Views struct {
	Mine         []domain.Task `json:"mine"`
	Subordinates []domain.Task `json:"subordinates"`
}

// Partition splits tasks into those assigned to viewer and those assigned to
// people ranked below the viewer. Role assignments resolve against the
// current role of each user, so promotions and demotions move tasks between
// views immediately. A nil viewer sees nothing.
func Partition(tasks []domain.Task, viewer *domain.User, users []domain.User) Views {
	v := Views{Mine: []domain.Task{}, Subordinates: []domain.Task{}}
	if viewer == nil || !viewer.Role.Valid() {
		return v
	}
	byUID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byUID[u.UID] = u
	}
	var open, done []domain.Task
	for _, t := range tasks {
		switch {
		case isMine(*viewer, t):
			if t.Done() {
				done = append(done, t)
			} else {
				open = append(open, t)
			}
		case viewer.Role != domain.RoleTrialStaff && isSubordinates(*viewer, t, byUID):
			v.Subordinates = append(v.Subordinates, t)
		}
	}
	sortByDue(open)
	sortByDue(done)
	v.Mine = append(append(v.Mine, open...), done...)
	sortByDue(v.Subordinates)
	return v
}

func isMine(viewer domain.User, t domain.Task) bool {
	if t.AssignedRole != nil && *t.AssignedRole == viewer.Role {
		return true
	}
	for _, uid := range t.AssignedUserIDs {
		if uid == viewer.UID {
			return true
		}
	}
	return false
}

func isSubordinates(viewer domain.User, t domain.Task, users map[string]domain.User) bool {
	if t.AssignedRole != nil && t.AssignedRole.Valid() && viewer.Role.Outranks(*t.AssignedRole) {
		return true
	}
	for _, uid := range t.AssignedUserIDs {
		u, ok := users[uid]
		if ok && u.Role.Valid() && viewer.Role.Outranks(u.Role) {
			return true
		}
	}
	return false
}

// sortByDue orders by ascending due date, tasks without one last. Ties keep
// their input order.
func sortByDue(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueAt, tasks[j].DueAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
}

// ResolveAssignees lists the users currently holding a task: the named users
// that still exist, or every active holder of the assigned role.
func ResolveAssignees(t domain.Task, users []domain.User) []domain.User {
	out := []domain.User{}
	if t.AssignedRole != nil {
		for _, u := range users {
			if u.Role == *t.AssignedRole && u.Status == domain.UserActive {
				out = append(out, u)
			}
		}
		return out
	}
	byUID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byUID[u.UID] = u
	}
	for _, uid := range t.AssignedUserIDs {
		if u, ok := byUID[uid]; ok {
			out = append(out, u)
		}
	}
	return out
}
