package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"teamdesk/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

const (
	issuer            = "teamdesk"
	MinPasswordLength = 6
)

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://teamdesk.local/users"))

// UIDForEmail derives the stable uid of an account from its email, so the
// super admin uid is known before the account exists.
func UIDForEmail(email string) string {
	return uuid.NewSHA1(uidNamespace, []byte(normalizeEmail(email))).String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Session struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type Claims struct {
	UID       string
	Email     string
	TokenID   string
	ExpiresAt int64
}

type ChangeKind string

const (
	SignedUp  ChangeKind = "signed_up"
	SignedIn  ChangeKind = "signed_in"
	SignedOut ChangeKind = "signed_out"
)

type Change struct {
	Kind  ChangeKind
	UID   string
	Email string
	At    int64
}

// Provider authenticates email/password accounts stored next to the profile
// data and issues HS256 session tokens.
type Provider struct {
	Repo   repo.Repo
	Secret []byte
	TTL    time.Duration
	Cost   int
	Now    func() time.Time

	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(Change)
}

func New(r repo.Repo, secret string, ttl time.Duration) *Provider {
	return &Provider{
		Repo:   r,
		Secret: []byte(secret),
		TTL:    ttl,
		Cost:   bcrypt.DefaultCost,
		Now:    time.Now,
	}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// OnIdentityChange registers fn for sign-up, sign-in and sign-out
// notifications. The returned func unregisters it.
func (p *Provider) OnIdentityChange(fn func(Change)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners == nil {
		p.listeners = map[int]func(Change){}
	}
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) notify(c Change) {
	p.mu.RLock()
	fns := make([]func(Change), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, ErrInvalidCredentials
	}
	if len(password) < MinPasswordLength {
		return Session{}, ErrWeakPassword
	}
	if _, err := p.Repo.GetCredentialByEmail(ctx, email); err == nil {
		return Session{}, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	uid := UIDForEmail(email)
	if err := p.Repo.InsertCredential(ctx, repo.Credential{UID: uid, Email: email, PasswordHash: string(hash), CreatedAt: p.now().UnixMilli()}); err != nil {
		return Session{}, fmt.Errorf("store credential: %w", err)
	}
	s, err := p.issue(uid, email)
	if err != nil {
		return Session{}, err
	}
	p.notify(Change{Kind: SignedUp, UID: uid, Email: email, At: p.now().UnixMilli()})
	return s, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := p.Repo.GetCredentialByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	s, err := p.issue(cred.UID, cred.Email)
	if err != nil {
		return Session{}, err
	}
	p.notify(Change{Kind: SignedIn, UID: cred.UID, Email: cred.Email, At: p.now().UnixMilli()})
	return s, nil
}

// SignOut revokes the token until it would have expired.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	c, err := p.Verify(ctx, token)
	if err != nil {
		return err
	}
	if err := p.Repo.RevokeToken(ctx, c.TokenID, c.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	p.notify(Change{Kind: SignedOut, UID: c.UID, Email: c.Email, At: p.now().UnixMilli()})
	return nil
}

func (p *Provider) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	cred, err := p.Repo.GetCredentialByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.Cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return p.Repo.UpdatePasswordHash(ctx, cred.UID, string(hash))
}

// Verify checks signature, expiry and revocation of a session token.
func (p *Provider) Verify(ctx context.Context, token string) (Claims, error) {
	if len(p.Secret) == 0 {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.Secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}
	revoked, err := p.Repo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		UID:       claims.Subject,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UnixMilli(),
	}, nil
}

// PruneRevoked forgets revocations of tokens that have expired.
func (p *Provider) PruneRevoked(ctx context.Context) (int64, error) {
	return p.Repo.PruneRevokedTokens(ctx, p.now().UnixMilli())
}

func (p *Provider) issue(uid, email string) (Session, error) {
	if len(p.Secret) == 0 {
		return Session{}, errors.New("jwt secret not configured")
	}
	now := p.now()
	exp := now.Add(p.TTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   uid,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
	})
	signed, err := tok.SignedString(p.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{UID: uid, Email: email, Token: signed, ExpiresAt: exp.UnixMilli()}, nil
}
