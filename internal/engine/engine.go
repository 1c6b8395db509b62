package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"teamdesk/internal/config"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/events"
	"teamdesk/internal/identity"
	"teamdesk/internal/repo"
)

// IdentityProvider is the authentication collaborator.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (identity.Session, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error
	Verify(ctx context.Context, token string) (identity.Claims, error)
	OnIdentityChange(fn func(identity.Change)) func()
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Identity IdentityProvider
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, idp IdentityProvider, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Identity: idp,
		Log:      log,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// SuperAdminUID is the configured uid, or the uid derived from the
// configured super admin email.
func (e Engine) SuperAdminUID() string {
	if e.Config == nil {
		return ""
	}
	if e.Config.Auth.SuperAdminUID != "" {
		return e.Config.Auth.SuperAdminUID
	}
	if e.Config.Auth.SuperAdminEmail != "" {
		return identity.UIDForEmail(e.Config.Auth.SuperAdminEmail)
	}
	return ""
}

// Policy builds the authorization inputs from config.
func (e Engine) Policy() auth.Policy {
	p := auth.Policy{SuperAdminUID: e.SuperAdminUID(), Completion: auth.CompleteByAssignerRole}
	if e.Config != nil {
		if c := auth.CompletionPolicy(e.Config.Policies.Completion); c.Valid() {
			p.Completion = c
		}
		p.TeamScoped = e.Config.MultiTeam()
	}
	return p
}

func (e Engine) multiTeam() bool {
	return e.Config != nil && e.Config.MultiTeam()
}

// loadActor reads the acting user inside tx. Only active accounts may act.
func (e Engine) loadActor(ctx context.Context, tx *sql.Tx, uid string) (domain.User, error) {
	if strings.TrimSpace(uid) == "" {
		return domain.User{}, auth.ForbiddenError{Action: "act", Reason: "authentication required"}
	}
	u, err := e.Repo.GetUserTx(ctx, tx, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ForbiddenError{Action: "act", Reason: "no profile for this account"}
	}
	if err != nil {
		return domain.User{}, collab("load actor", err)
	}
	if u.Status != domain.UserActive {
		return domain.User{}, auth.ForbiddenError{Action: "act", Reason: "account is " + string(u.Status)}
	}
	return u, nil
}

// Actor returns the active profile of uid, for callers that authenticate
// requests.
func (e Engine) Actor(ctx context.Context, uid string) (domain.User, error) {
	return e.loadActor(ctx, nil, uid)
}

func (e Engine) deny(action string, actor domain.User, err error) error {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		e.log().Info("denied", zap.String("action", action), zap.String("actor", actor.UID), zap.String("role", string(actor.Role)), zap.String("reason", fe.Reason))
	}
	return err
}

func (e Engine) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return collab(op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return collab(op, tx.Commit())
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
