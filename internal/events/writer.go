package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	UserCreated        = "user.created"
	UserRoleChanged    = "user.role.changed"
	UserStatusChanged  = "user.status.changed"
	UserProfileUpdated = "user.profile.updated"
	MilestoneUpserted  = "milestone.upserted"
	TeamCreated        = "team.created"
	TeamMemberAdded    = "team.member.added"
	TaskCreated        = "task.created"
	TaskStatusChanged  = "task.status.changed"
	TaskDeleted        = "task.deleted"
	TaskCommented      = "task.commented"
	APIKeyCreated      = "apikey.created"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an audit row inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		w.Now().UnixMilli(), evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
