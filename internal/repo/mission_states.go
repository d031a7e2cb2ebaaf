package repo

import (
	"context"
	"database/sql"

	"questmill/internal/domain"
)

const missionStateCols = `profile_id,mission_code,status,COALESCE(progress_json,''),streak_counter,attempts,version,
started_at,completed_at,next_eligible_at,last_event_at,created_at,updated_at`

func scanMissionState(scan func(dest ...any) error) (domain.MissionState, error) {
	var s domain.MissionState
	err := scan(&s.ProfileID, &s.MissionCode, &s.Status, &s.ProgressJSON, &s.StreakCounter, &s.Attempts, &s.Version,
		&s.StartedAt, &s.CompletedAt, &s.NextEligibleAt, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetMissionState(ctx context.Context, profileID, missionCode string) (domain.MissionState, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+missionStateCols+` FROM mission_states WHERE profile_id=? AND mission_code=?`,
		profileID, missionCode)
	return scanMissionState(row.Scan)
}

func (r Repo) ListMissionStates(ctx context.Context, profileID string) (map[string]domain.MissionState, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionStateCols+` FROM mission_states WHERE profile_id=?`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.MissionState{}
	for rows.Next() {
		s, err := scanMissionState(rows.Scan)
		if err != nil {
			return nil, err
		}
		res[s.MissionCode] = s
	}
	return res, rows.Err()
}

// InsertMissionState creates the lazily-materialized row. A concurrent
// insert of the same (profile, mission) surfaces as ErrVersionConflict.
func (r Repo) InsertMissionState(ctx context.Context, tx *sql.Tx, s domain.MissionState) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO mission_states(
profile_id,mission_code,status,progress_json,streak_counter,attempts,version,
started_at,completed_at,next_eligible_at,last_event_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,1,?,?,?,?,?,?)
ON CONFLICT(profile_id,mission_code) DO NOTHING`,
		s.ProfileID, s.MissionCode, s.Status, nullable(s.ProgressJSON), s.StreakCounter, s.Attempts,
		s.StartedAt, s.CompletedAt, s.NextEligibleAt, s.LastEventAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateMissionState writes the row only if nobody else bumped the
// version since it was read.
func (r Repo) UpdateMissionState(ctx context.Context, tx *sql.Tx, s domain.MissionState, expectedVersion int) error {
	res, err := tx.ExecContext(ctx, `UPDATE mission_states SET
status=?, progress_json=?, streak_counter=?, attempts=?, version=version+1,
started_at=?, completed_at=?, next_eligible_at=?, last_event_at=?, updated_at=?
WHERE profile_id=? AND mission_code=? AND version=?`,
		s.Status, nullable(s.ProgressJSON), s.StreakCounter, s.Attempts,
		s.StartedAt, s.CompletedAt, s.NextEligibleAt, s.LastEventAt, s.UpdatedAt,
		s.ProfileID, s.MissionCode, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	return nil
}
