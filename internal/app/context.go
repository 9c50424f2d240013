package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"checkline/internal/config"
	"checkline/internal/db"
	"checkline/internal/engine"
	"checkline/internal/events"
	"checkline/internal/migrate"
	"checkline/internal/repo"
)

// Workspace is an opened, migrated workspace database with its resolved config.
type Workspace struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time
}

// Open opens and migrates the workspace at dir.
func Open(ctx context.Context, dir string, log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	r := repo.Repo{DB: conn}
	cfg, err := ResolveConfig(ctx, r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{DB: conn, Repo: r, Config: cfg, Log: log, Now: time.Now}, nil
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// ResolveConfig returns the imported config, or the built-in one when none was imported.
func ResolveConfig(ctx context.Context, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// LoadSession restores the working draft; an empty workspace yields a fresh session.
func (w *Workspace) LoadSession(ctx context.Context) (*engine.Session, error) {
	rec, err := w.Repo.LoadSession(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return engine.NewSession(), nil
	}
	if err != nil {
		return nil, err
	}
	s := engine.NewSession()
	s.State = engine.State(rec.State)
	s.FileName = rec.FileName
	s.Doc = rec.Document
	if s.Doc == nil && (s.State == engine.StateLoaded || s.State == engine.StateActive) {
		s.State = engine.StateNone
	}
	return s, nil
}

// Engine binds the session to the workspace config and logger.
func (w *Workspace) Engine(s *engine.Session) engine.Engine {
	e := engine.New(s, w.Config, w.Log)
	if w.Now != nil {
		e.Now = w.Now
	}
	return e
}

// Persist writes the session and the changes recorded since the last call in one transaction.
// A session without pending changes is left as stored.
func (w *Workspace) Persist(ctx context.Context, s *engine.Session, actorID string) error {
	changes := s.Drain()
	if len(changes) == 0 {
		return nil
	}
	if actorID == "" {
		actorID = "local-user"
	}
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	rec := repo.SessionRecord{State: string(s.State), FileName: s.FileName, Document: s.Doc}
	if err := w.Repo.SaveSessionTx(ctx, tx, rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := (events.Writer{Now: w.Now}).Append(ctx, tx, actorID, changes...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.Log.Debug("session persisted", zap.String("state", string(s.State)), zap.Int("events", len(changes)))
	return nil
}
