package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends rows to the event log inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Entry describes one domain change.
type Entry struct {
	Type       string
	OrgID      string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,org_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, nullable(e.OrgID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
