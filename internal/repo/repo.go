package repo

import (
	"context"
	"database/sql"
	"errors"

	"questmill/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrVersionConflict signals a lost optimistic-concurrency race on a
// mission state row. Callers re-read and retry.
var ErrVersionConflict = errors.New("mission state version conflict")

func (r Repo) InsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,handle,created_at) VALUES (?,?,?)`,
		p.ID, nullable(p.Handle), p.CreatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	err := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(handle,''),created_at FROM profiles WHERE id=?`, id).
		Scan(&p.ID, &p.Handle, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// EnsureProfile inserts the profile if it does not exist yet.
func (r Repo) EnsureProfile(ctx context.Context, id, handle, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,handle,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO NOTHING`, id, nullable(handle), now)
	return err
}

func (r Repo) ListProgressEvents(ctx context.Context, profileID, missionCode string, limit int) ([]domain.MissionProgressEvent, error) {
	query := `SELECT id,profile_id,mission_code,event_type,payload_json,occurred_at
FROM mission_progress_events WHERE profile_id=?`
	args := []any{profileID}
	if missionCode != "" {
		query += ` AND mission_code=?`
		args = append(args, missionCode)
	}
	query += ` ORDER BY occurred_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionProgressEvent
	for rows.Next() {
		var e domain.MissionProgressEvent
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.MissionCode, &e.EventType, &e.PayloadJSON, &e.OccurredAt); err != nil {
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
