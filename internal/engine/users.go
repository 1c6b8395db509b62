package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/events"
	"teamdesk/internal/identity"
	"teamdesk/internal/repo"
)

// Session is a signed-in account together with its profile.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// Capabilities summarises what a user may do, for clients that hide
// controls they cannot use.
type Capabilities struct {
	AssignableRoles []domain.Role `json:"assignableRoles"`
	CanCreateTask   bool          `json:"canCreateTask"`
	CanManageUsers  bool          `json:"canManageUsers"`
	IsSuperAdmin    bool          `json:"isSuperAdmin"`
}

func (e Engine) Capabilities(u domain.User) Capabilities {
	return Capabilities{
		AssignableRoles: domain.AssignableRoles(u.Role),
		CanCreateTask:   auth.CanCreateTask(u.Role),
		CanManageUsers:  u.Role == domain.RoleAdmin || u.Role == domain.RoleSuperAdmin,
		IsSuperAdmin:    e.Policy().IsSuperAdmin(u.UID),
	}
}

func validateCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", required("email")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ValidationError{Field: "email", Reason: "email is not a valid address"}
	}
	if len(password) < identity.MinPasswordLength {
		return "", ValidationError{Field: "password", Reason: identity.ErrWeakPassword.Error()}
	}
	return email, nil
}

func displayNameOrDefault(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// SignUp registers a new account. Self-registered users start as trial
// staff, except the configured super admin.
func (e Engine) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return Session{}, err
	}
	s, err := e.Identity.SignUp(ctx, email, password)
	if err != nil {
		return Session{}, identityErr("sign up", err)
	}
	role := domain.RoleTrialStaff
	if e.Policy().IsSuperAdmin(s.UID) {
		role = domain.RoleSuperAdmin
	}
	u := domain.User{
		UID:         s.UID,
		Email:       email,
		DisplayName: displayNameOrDefault(displayName, email),
		Role:        role,
		Status:      domain.UserActive,
		CreatedAt:   e.nowMillis(),
	}
	if err := e.insertUser(ctx, u, s.UID); err != nil {
		return Session{}, err
	}
	return Session{Token: s.Token, ExpiresAt: s.ExpiresAt, User: u}, nil
}

// SignIn authenticates and loads the profile. The super admin profile is
// created on its first sign-in; banned or timed-out accounts are signed
// straight back out.
func (e Engine) SignIn(ctx context.Context, email, password string) (Session, error) {
	s, err := e.Identity.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, identityErr("sign in", err)
	}
	u, err := e.Repo.GetUser(ctx, s.UID)
	switch {
	case errors.Is(err, repo.ErrNotFound) && e.Policy().IsSuperAdmin(s.UID):
		u = domain.User{
			UID:         s.UID,
			Email:       s.Email,
			DisplayName: displayNameOrDefault("", s.Email),
			Role:        domain.RoleSuperAdmin,
			Status:      domain.UserActive,
			CreatedAt:   e.nowMillis(),
		}
		if err := e.insertUser(ctx, u, s.UID); err != nil {
			return Session{}, err
		}
		e.log().Info("super admin bootstrapped", zap.String("uid", u.UID))
	case errors.Is(err, repo.ErrNotFound):
		_ = e.Identity.SignOut(ctx, s.Token)
		return Session{}, auth.ForbiddenError{Action: "sign in", Reason: "no profile for this account"}
	case err != nil:
		return Session{}, collab("load profile", err)
	}
	if u.Status != domain.UserActive {
		if err := e.Identity.SignOut(ctx, s.Token); err != nil {
			e.log().Warn("sign out of inactive account failed", zap.String("uid", u.UID), zap.Error(err))
		}
		return Session{}, auth.ForbiddenError{Action: "sign in", Reason: "account is " + string(u.Status)}
	}
	return Session{Token: s.Token, ExpiresAt: s.ExpiresAt, User: u}, nil
}

func (e Engine) SignOut(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return required("token")
	}
	return identityErr("sign out", e.Identity.SignOut(ctx, token))
}

// identityErr passes the identity sentinel errors through so callers can
// map them, and wraps everything else.
func identityErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrWeakPassword):
		return ValidationError{Field: "password", Reason: err.Error()}
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, identity.ErrInvalidToken):
		return err
	}
	return collab(op, err)
}

func (e Engine) insertUser(ctx context.Context, u domain.User, actorID string) error {
	return e.withTx(ctx, "create user", func(tx *sql.Tx) error {
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return collab("insert user", err)
		}
		if u.TeamID != nil {
			if err := e.Repo.AddTeamMember(ctx, tx, *u.TeamID, u.UID, u.CreatedAt); err != nil {
				return collab("add team member", err)
			}
		}
		return collab("append event", e.eventWriter().Append(ctx, tx, events.UserCreated, "user", u.UID, actorID, events.EventPayload{
			"role": u.Role, "email": u.Email,
		}))
	})
}

// ManagedUserOptions describe an account created by another user.
type ManagedUserOptions struct {
	ActorID     string
	Email       string
	Password    string
	DisplayName string
	Role        domain.Role
	TeamID      string
}

// CreateManagedUser creates an account with a role the creator may hand out.
// In multi-team mode only the super admin may place users outside their own
// team.
func (e Engine) CreateManagedUser(ctx context.Context, opts ManagedUserOptions) (domain.User, error) {
	email, err := validateCredentials(opts.Email, opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	if !opts.Role.Valid() {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}
	actor, err := e.loadActor(ctx, nil, opts.ActorID)
	if err != nil {
		return domain.User{}, err
	}
	if !auth.CanAssignRole(actor.Role, opts.Role) {
		return domain.User{}, e.deny("create user", actor, auth.ForbiddenError{
			Action: "create user",
			Reason: fmt.Sprintf("%s cannot create %s accounts", actor.Role, opts.Role),
		})
	}
	teamID := optionalString(opts.TeamID)
	if e.multiTeam() && actor.Role != domain.RoleSuperAdmin {
		teamID = actor.TeamID
	}
	if teamID != nil {
		if _, err := e.Repo.GetTeam(ctx, *teamID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.User{}, ValidationError{Field: "teamId", Reason: fmt.Sprintf("team %s does not exist", *teamID)}
			}
			return domain.User{}, collab("load team", err)
		}
	}
	s, err := e.Identity.SignUp(ctx, email, opts.Password)
	if err != nil {
		return domain.User{}, identityErr("create account", err)
	}
	u := domain.User{
		UID:         s.UID,
		Email:       email,
		DisplayName: displayNameOrDefault(opts.DisplayName, email),
		Role:        opts.Role,
		Status:      domain.UserActive,
		TeamID:      teamID,
		CreatedAt:   e.nowMillis(),
	}
	if err := e.insertUser(ctx, u, actor.UID); err != nil {
		return domain.User{}, err
	}
	e.log().Debug("user created", zap.String("uid", u.UID), zap.String("role", string(u.Role)), zap.String("by", actor.UID))
	return u, nil
}

func (e Engine) SetUserRole(ctx context.Context, actorID, uid string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	var updated domain.User
	err := e.withTx(ctx, "set user role", func(tx *sql.Tx) error {
		actor, target, err := e.loadActorAndTarget(ctx, tx, actorID, uid)
		if err != nil {
			return err
		}
		p := e.Policy()
		if p.IsSuperAdmin(target.UID) {
			return e.deny("change role", actor, auth.ForbiddenError{Action: "change role", Reason: "the super admin role cannot be changed"})
		}
		if !p.CanChangeRole(actor, target, role) {
			return e.deny("change role", actor, auth.ForbiddenError{
				Action: "change role",
				Reason: fmt.Sprintf("%s cannot move %s to %s", actor.Role, target.Role, role),
			})
		}
		if err := e.Repo.UpdateUserRole(ctx, tx, uid, role); err != nil {
			return collab("update role", err)
		}
		if err := e.eventWriter().Append(ctx, tx, events.UserRoleChanged, "user", uid, actor.UID, events.EventPayload{
			"from": target.Role, "to": role,
		}); err != nil {
			return collab("append event", err)
		}
		target.Role = role
		updated = target
		return nil
	})
	return updated, err
}

func (e Engine) SetUserStatus(ctx context.Context, actorID, uid string, status domain.UserStatus) (domain.User, error) {
	if !status.Valid() {
		return domain.User{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	var updated domain.User
	err := e.withTx(ctx, "set user status", func(tx *sql.Tx) error {
		actor, target, err := e.loadActorAndTarget(ctx, tx, actorID, uid)
		if err != nil {
			return err
		}
		p := e.Policy()
		if p.IsSuperAdmin(target.UID) {
			return e.deny("change status", actor, auth.ForbiddenError{Action: "change status", Reason: "the super admin status cannot be changed"})
		}
		if !p.CanChangeUserStatus(actor, target, status) {
			return e.deny("change status", actor, auth.ForbiddenError{
				Action: "change status",
				Reason: fmt.Sprintf("%s cannot change the status of %s", actor.Role, target.Role),
			})
		}
		if err := e.Repo.UpdateUserStatus(ctx, tx, uid, status); err != nil {
			return collab("update status", err)
		}
		if err := e.eventWriter().Append(ctx, tx, events.UserStatusChanged, "user", uid, actor.UID, events.EventPayload{
			"from": target.Status, "to": status,
		}); err != nil {
			return collab("append event", err)
		}
		target.Status = status
		updated = target
		return nil
	})
	return updated, err
}

func (e Engine) loadActorAndTarget(ctx context.Context, tx *sql.Tx, actorID, uid string) (domain.User, domain.User, error) {
	actor, err := e.loadActor(ctx, tx, actorID)
	if err != nil {
		return domain.User{}, domain.User{}, err
	}
	target, err := e.Repo.GetUserTx(ctx, tx, uid)
	if err != nil {
		return domain.User{}, domain.User{}, collab("load user", err)
	}
	return actor, target, nil
}

// UpdateDisplayName changes the caller's own display name.
func (e Engine) UpdateDisplayName(ctx context.Context, actorID, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, required("displayName")
	}
	var updated domain.User
	err := e.withTx(ctx, "update profile", func(tx *sql.Tx) error {
		actor, err := e.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if err := e.Repo.UpdateUserDisplayName(ctx, tx, actor.UID, name); err != nil {
			return collab("update profile", err)
		}
		actor.DisplayName = name
		updated = actor
		return collab("append event", e.eventWriter().Append(ctx, tx, events.UserProfileUpdated, "user", actor.UID, actor.UID, events.EventPayload{"displayName": name}))
	})
	return updated, err
}

func (e Engine) ChangePassword(ctx context.Context, actorID, oldPassword, newPassword string) error {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return err
	}
	if len(newPassword) < identity.MinPasswordLength {
		return ValidationError{Field: "newPassword", Reason: identity.ErrWeakPassword.Error()}
	}
	return identityErr("change password", e.Identity.ChangePassword(ctx, actor.Email, oldPassword, newPassword))
}

func (e Engine) GetUser(ctx context.Context, uid string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, uid)
	return u, collab("get user", err)
}

func (e Engine) ListUsers(ctx context.Context, f repo.UserFilters) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx, f)
	return users, collab("list users", err)
}

// UserFor is GetUser under the actor's team scope.
func (e Engine) UserFor(ctx context.Context, actorID, uid string) (domain.User, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.GetUser(ctx, uid)
	if err != nil {
		return domain.User{}, err
	}
	if !e.Policy().CanSeeUser(actor, u) {
		return domain.User{}, e.deny("view user", actor, auth.ForbiddenError{Action: "view user", Reason: "user belongs to another team"})
	}
	return u, nil
}

// ListUsersFor narrows f to the users the actor can see.
func (e Engine) ListUsersFor(ctx context.Context, actorID string, f repo.UserFilters) ([]domain.User, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	users, err := e.ListUsers(ctx, f)
	if err != nil {
		return nil, err
	}
	p := e.Policy()
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if p.CanSeeUser(actor, u) {
			out = append(out, u)
		}
	}
	return out, nil
}

// AssignableUsers lists the active users the actor may assign tasks to.
func (e Engine) AssignableUsers(ctx context.Context, actorID string) ([]domain.User, error) {
	actor, err := e.loadActor(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	pool, err := e.Repo.ListUsers(ctx, repo.UserFilters{Status: domain.UserActive})
	if err != nil {
		return nil, collab("list users", err)
	}
	out := e.Policy().AssignableUsers(actor, pool)
	if out == nil {
		out = []domain.User{}
	}
	return out, nil
}
