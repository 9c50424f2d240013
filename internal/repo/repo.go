package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkline/internal/config"
	"checkline/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

const configKey = "config"

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// SessionRecord is the persisted working copy of the current session.
type SessionRecord struct {
	State     string
	FileName  string
	Document  *domain.Document
	UpdatedAt string
}

// LoadSession returns ErrNotFound when the workspace never held a session.
func (r Repo) LoadSession(ctx context.Context) (SessionRecord, error) {
	var (
		rec      SessionRecord
		fileName sql.NullString
		docJSON  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `SELECT state,file_name,document_json,updated_at FROM session WHERE id=1`).
		Scan(&rec.State, &fileName, &docJSON, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.FileName = fileName.String
	if docJSON.Valid && docJSON.String != "" {
		var doc domain.Document
		if err := json.Unmarshal([]byte(docJSON.String), &doc); err != nil {
			return rec, fmt.Errorf("decode stored document: %w", err)
		}
		rec.Document = &doc
	}
	return rec, nil
}

// SaveSessionTx replaces the stored session.
func (r Repo) SaveSessionTx(ctx context.Context, tx *sql.Tx, rec SessionRecord) error {
	var docJSON any
	if rec.Document != nil {
		b, err := json.Marshal(rec.Document)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		docJSON = string(b)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO session(id,state,file_name,document_json,updated_at) VALUES (1,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET state=excluded.state, file_name=excluded.file_name, document_json=excluded.document_json, updated_at=excluded.updated_at`,
		rec.State, nullable(rec.FileName), docJSON, r.now())
	return err
}

func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) UpsertSetting(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, r.now())
	return err
}

// GetConfig returns the imported tool config or ErrNotFound.
func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	raw, err := r.GetSetting(ctx, configKey)
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(raw))
}

func (r Repo) UpsertConfig(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	return r.UpsertSetting(ctx, configKey, string(data))
}

// LatestEvents returns up to n events, newest first.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	var (
		where []string
		args  []any
	)
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		where = append(where, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, entityID)
	}
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
