package engine

import (
	"fmt"
	"strings"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
)

// transition is the outcome of a validated status change.
type transition struct {
	From        domain.TaskStatus
	To          domain.TaskStatus
	BlockReason *string
}

// ensureTaskTransition validates moving t to status `to` on behalf of actor.
// Any status may follow any other; blocking needs a reason and completion is
// gated by the policy.
func ensureTaskTransition(p auth.Policy, actor domain.User, t domain.Task, to domain.TaskStatus, reason string) (transition, error) {
	if !to.Valid() {
		return transition{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	reason = strings.TrimSpace(reason)
	if to == domain.StatusBlocked && reason == "" {
		return transition{}, ValidationError{Field: "blockReason", Reason: "block reason is required"}
	}
	if !auth.CanUpdateTaskStatus(actor, t) {
		return transition{}, auth.ForbiddenError{Action: "change task status", Reason: "not an assignee or supervisor of this task"}
	}
	if to == domain.StatusDone && !p.CanCompleteTask(actor, t) {
		return transition{}, auth.ForbiddenError{
			Action: "mark task done",
			Reason: completionReason(p, t.AssignedByRole),
		}
	}
	tr := transition{From: t.Status, To: to}
	if to == domain.StatusBlocked {
		tr.BlockReason = &reason
	}
	return tr, nil
}

func completionReason(p auth.Policy, assignedBy domain.Role) string {
	if p.Completion == auth.CompleteByMinRank {
		return fmt.Sprintf("only %s rank or above can complete it", assignedBy)
	}
	return fmt.Sprintf("only %s rank can complete it", assignedBy)
}

// apply returns t with the transition applied.
func (tr transition) apply(t domain.Task) domain.Task {
	t.Status = tr.To
	t.BlockReason = tr.BlockReason
	return t
}

func (tr transition) logLine() string {
	if tr.To == domain.StatusBlocked {
		return fmt.Sprintf("status changed from %s to %s: %s", tr.From, tr.To, *tr.BlockReason)
	}
	return fmt.Sprintf("status changed from %s to %s", tr.From, tr.To)
}
