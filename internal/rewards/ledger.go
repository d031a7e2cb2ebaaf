// Package rewards is the entitlement-grant collaborator invoked from
// claim. The engine only knows the Ledger interface; the local binary
// records grants in its own table.
package rewards

import (
	"context"
	"database/sql"

	"questmill/internal/domain"
)

type Ledger interface {
	// Grant runs inside the claim transaction so a rolled-back claim
	// never leaves a dangling grant.
	Grant(ctx context.Context, tx *sql.Tx, g domain.RewardGrant) error
}

// SQLLedger writes grants to the reward_grants table.
type SQLLedger struct{}

func (SQLLedger) Grant(ctx context.Context, tx *sql.Tx, g domain.RewardGrant) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reward_grants(id,profile_id,mission_code,kind,amount,granted_at) VALUES (?,?,?,?,?,?)`,
		g.ID, g.ProfileID, g.MissionCode, g.Kind, g.Amount, g.GrantedAt)
	return err
}
