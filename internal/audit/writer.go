package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Writer appends MissionProgressEvent rows. Append runs inside the
// caller's transaction so the audit trail can never drift from the
// state it describes.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, profileID, missionCode, eventType string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO mission_progress_events(id,profile_id,mission_code,event_type,payload_json,occurred_at) VALUES (?,?,?,?,?,?)`,
		uuid.New().String(), profileID, missionCode, eventType, string(data), ts)
	return err
}
