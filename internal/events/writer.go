package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the free-form detail of an entry, stored as JSON.
type Payload map[string]any

// Entry is one change to the document, before it is attributed and stamped.
type Entry struct {
	Type       string
	EntityKind string
	EntityID   string
	Payload    Payload
}

// Writer appends entries to the workspace change log. It never updates or deletes rows.
type Writer struct {
	Now func() time.Time
}

// Append writes entries inside tx, all stamped with the same time and actor.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, actorID string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		payload := e.Payload
		if payload == nil {
			payload = Payload{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		var entityID any
		if e.EntityID != "" {
			entityID = e.EntityID
		}
		if _, err := stmt.ExecContext(ctx, ts, e.Type, e.EntityKind, entityID, actorID, string(data)); err != nil {
			return fmt.Errorf("append %s: %w", e.Type, err)
		}
	}
	return nil
}
