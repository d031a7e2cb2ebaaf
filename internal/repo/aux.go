package repo

import (
	"context"
	"database/sql"

	"questmill/internal/domain"
)

// Read-only auxiliary queries. The underlying tables are owned by other
// subsystems; the engine only consumes them.

func (r Repo) GarmentCategories(ctx context.Context, profileID string) ([]string, error) {
	return r.stringColumn(ctx, `SELECT DISTINCT category FROM garments WHERE profile_id=?`, profileID)
}

func (r Repo) SizeLabelCategories(ctx context.Context, profileID string) ([]string, error) {
	return r.stringColumn(ctx, `SELECT DISTINCT category FROM size_labels WHERE profile_id=?`, profileID)
}

func (r Repo) MeasurementCategories(ctx context.Context, profileID string) ([]string, error) {
	return r.stringColumn(ctx, `SELECT DISTINCT category FROM measurements WHERE profile_id=?`, profileID)
}

// MatchedWishlistCount counts wishlist rows matched to a known size.
func (r Repo) MatchedWishlistCount(ctx context.Context, profileID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wishlist_items WHERE profile_id=? AND size_label_id IS NOT NULL`, profileID).Scan(&n)
	return n, err
}

func (r Repo) Progression(ctx context.Context, profileID string) (domain.ProfileProgression, error) {
	var p domain.ProfileProgression
	err := r.DB.QueryRowContext(ctx,
		`SELECT profile_id,current_streak,longest_streak,freeze_count,updated_at FROM profile_progression WHERE profile_id=?`,
		profileID).Scan(&p.ProfileID, &p.CurrentStreak, &p.LongestStreak, &p.FreezeCount, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// CircleProgress returns the shared progress of the circle the profile
// belongs to, 0 when it belongs to none.
func (r Repo) CircleProgress(ctx context.Context, profileID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(m.progress),0) FROM circle_members m
WHERE m.circle_id IN (SELECT circle_id FROM circle_members WHERE profile_id=?)`, profileID).Scan(&n)
	return n, err
}

func (r Repo) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Seed inserts, used by `qm seed` and tests to materialize the read
// models locally.

func (r Repo) InsertGarment(ctx context.Context, g domain.Garment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO garments(id,profile_id,category,created_at) VALUES (?,?,?,?)`,
		g.ID, g.ProfileID, g.Category, g.CreatedAt)
	return err
}

func (r Repo) InsertSizeLabel(ctx context.Context, s domain.SizeLabel) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO size_labels(id,profile_id,category,label) VALUES (?,?,?,?)`,
		s.ID, s.ProfileID, s.Category, s.Label)
	return err
}

func (r Repo) InsertMeasurement(ctx context.Context, m domain.Measurement) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO measurements(id,profile_id,category,value) VALUES (?,?,?,?)`,
		m.ID, m.ProfileID, m.Category, m.Value)
	return err
}

func (r Repo) InsertWishlistItem(ctx context.Context, w domain.WishlistItem) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO wishlist_items(id,profile_id,title,size_label_id,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.ProfileID, w.Title, w.SizeLabelID, w.CreatedAt)
	return err
}

func (r Repo) UpsertCircleMember(ctx context.Context, m domain.CircleMember) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO circle_members(circle_id,profile_id,progress) VALUES (?,?,?)
ON CONFLICT(circle_id,profile_id) DO UPDATE SET progress=excluded.progress`,
		m.CircleID, m.ProfileID, m.Progress)
	return err
}

func (r Repo) UpsertProgression(ctx context.Context, p domain.ProfileProgression) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profile_progression(profile_id,current_streak,longest_streak,freeze_count,updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(profile_id) DO UPDATE SET current_streak=excluded.current_streak,
longest_streak=excluded.longest_streak, freeze_count=excluded.freeze_count, updated_at=excluded.updated_at`,
		p.ProfileID, p.CurrentStreak, p.LongestStreak, p.FreezeCount, p.UpdatedAt)
	return err
}

func (r Repo) ListRewardGrants(ctx context.Context, profileID string) ([]domain.RewardGrant, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,profile_id,mission_code,kind,amount,granted_at FROM reward_grants WHERE profile_id=? ORDER BY granted_at DESC`,
		profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RewardGrant
	for rows.Next() {
		var g domain.RewardGrant
		if err := rows.Scan(&g.ID, &g.ProfileID, &g.MissionCode, &g.Kind, &g.Amount, &g.GrantedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}
