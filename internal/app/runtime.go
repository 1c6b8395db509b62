// Package app wires storage, config, logging, identity and the engine into a
// runtime shared by the CLI and the HTTP server.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"teamdesk/internal/config"
	"teamdesk/internal/db"
	"teamdesk/internal/engine"
	"teamdesk/internal/identity"
	"teamdesk/internal/logger"
	"teamdesk/internal/migrate"
	"teamdesk/internal/repo"
)

const secretFile = "jwt.secret"

type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/teamdesk.yml.
	ConfigPath string
	// JWTSecret overrides the workspace secret file.
	JWTSecret string
	// Logger replaces the logger built from config.
	Logger *zap.Logger
}

type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Log       *zap.Logger
	Identity  *identity.Provider
	Engine    engine.Engine

	unwatch func()
}

// Open loads config, opens and migrates the workspace database and builds
// the engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		if log, err = logger.New(cfg.Log); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	secret, err := ResolveSecret(opts.Workspace, opts.JWTSecret)
	if err != nil {
		conn.Close()
		return nil, err
	}
	idp := identity.New(repo.Repo{DB: conn}, secret, cfg.Auth.TokenTTL)
	rt := &Runtime{
		Workspace: opts.Workspace,
		DB:        conn,
		Config:    cfg,
		Log:       log,
		Identity:  idp,
		Engine:    engine.New(conn, cfg, idp, log),
	}
	rt.unwatch = rt.Engine.Identity.OnIdentityChange(logIdentityChange(log))
	log.Debug("runtime ready", zap.String("db", db.Path(opts.Workspace)), zap.String("tenancy", cfg.Tenancy))
	return rt, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

// logIdentityChange writes one info line per identity change.
func logIdentityChange(log *zap.Logger) func(identity.Change) {
	return func(c identity.Change) {
		log.Info("identity", zap.String("kind", string(c.Kind)), zap.String("uid", c.UID), zap.Int64("at", c.At))
	}
}

func (rt *Runtime) Close() error {
	if rt.unwatch != nil {
		rt.unwatch()
	}
	_ = rt.Log.Sync()
	return rt.DB.Close()
}

// ResolveSecret returns the override if set, otherwise the workspace secret,
// generating it on first use so the CLI and the server share tokens.
func ResolveSecret(workspace, override string) (string, error) {
	if s := strings.TrimSpace(override); s != "" {
		return s, nil
	}
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, secretFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read jwt secret: %w", err)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	s := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(s+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write jwt secret: %w", err)
	}
	return s, nil
}
