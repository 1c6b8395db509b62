package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/events"
	"teamdesk/internal/repo"
)

const apiKeyPrefix = "td_"

func newAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// CreateAPIKey issues a key that authenticates as the actor. The plain key is
// only returned here; storage keeps its hash.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	secret, err := newAPIKeySecret()
	if err != nil {
		return domain.APIKey{}, "", collab("generate api key", err)
	}
	var key domain.APIKey
	err = e.withTx(ctx, "create api key", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		key = domain.APIKey{
			ID:        uuid.NewString(),
			UID:       actor.UID,
			Name:      strings.TrimSpace(name),
			KeyHash:   repo.HashAPIKey(secret),
			CreatedAt: e.nowMillis(),
		}
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return collab("insert api key", err)
		}
		return collab("append event", e.eventWriter().Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, actor.UID, events.EventPayload{"name": key.Name}))
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// ListAPIKeys lists the actor's keys, or every key for the super admin role.
func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	owner := actor.UID
	if actor.Role == domain.RoleSuperAdmin {
		owner = ""
	}
	keys, err := e.Repo.ListAPIKeys(ctx, owner)
	if keys == nil && err == nil {
		keys = []domain.APIKey{}
	}
	return keys, collab("list api keys", err)
}

func (e Engine) DeleteAPIKey(ctx context.Context, actorID, id string) error {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return err
	}
	keys, err := e.ListAPIKeys(ctx, actor.UID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			return collab("delete api key", e.Repo.DeleteAPIKey(ctx, id))
		}
	}
	if _, err := e.findAPIKey(ctx, id); err != nil {
		return err
	}
	return e.deny("delete api key", actor, auth.ForbiddenError{Action: "delete api key", Reason: "key belongs to another user"})
}

func (e Engine) findAPIKey(ctx context.Context, id string) (domain.APIKey, error) {
	all, err := e.Repo.ListAPIKeys(ctx, "")
	if err != nil {
		return domain.APIKey{}, collab("list api keys", err)
	}
	for _, k := range all {
		if k.ID == id {
			return k, nil
		}
	}
	return domain.APIKey{}, collab("find api key", repo.ErrNotFound)
}

// AuthenticateAPIKey resolves an API key to its owner's active profile.
func (e Engine) AuthenticateAPIKey(ctx context.Context, key string) (domain.User, error) {
	if strings.TrimSpace(key) == "" {
		return domain.User{}, required("apiKey")
	}
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return domain.User{}, collab("load api key", err)
	}
	return e.loadActor(ctx, nil, k.UID)
}
