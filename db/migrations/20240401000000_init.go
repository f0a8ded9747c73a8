package migrations

import (
	"context"

	"github.com/satstash/satstash/db/models"
	"github.com/uptrace/bun"
)

/* Since this init will reflect the latest model fields when run on fresh db
make sure that when you add/remove columns in subsequent migrations IfNotExists/IfExists is used
otherwise it's going to result in errors.
*/
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if _, err := db.NewCreateTable().Model((*models.User)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Account)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Invoice)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.LedgerEntry)(nil)).Exec(ctx); err != nil {
			return err
		}

		// one account of each type per user
		if _, err := db.NewCreateIndex().
			Model((*models.Account)(nil)).
			Index("accounts_user_id_type_idx").
			Column("user_id", "type").
			Unique().
			Exec(ctx); err != nil {
			return err
		}
		// system accounts have no user id, at most one per type
		if _, err := db.NewCreateIndex().
			Model((*models.Account)(nil)).
			Index("accounts_system_type_idx").
			Column("type").
			Unique().
			Where("user_id IS NULL").
			Exec(ctx); err != nil {
			return err
		}
		// the invoice directory: a payment hash maps to exactly one receiver
		if _, err := db.NewCreateIndex().
			Model((*models.Invoice)(nil)).
			Index("invoices_incoming_r_hash_idx").
			Column("r_hash").
			Unique().
			Where("type = 'incoming' AND r_hash IS NOT NULL").
			Exec(ctx); err != nil {
			return err
		}
		// at most one onboarding earn entry per (user, reward)
		if _, err := db.NewCreateIndex().
			Model((*models.LedgerEntry)(nil)).
			Index("ledger_entries_user_reward_idx").
			Column("user_id", "reward_id").
			Unique().
			Where("reward_id IS NOT NULL").
			Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().
			Model((*models.LedgerEntry)(nil)).
			Index("ledger_entries_account_id_idx").
			Column("account_id").
			Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().
			Model((*models.LedgerEntry)(nil)).
			Index("ledger_entries_r_hash_idx").
			Column("r_hash").
			Exec(ctx); err != nil {
			return err
		}

		return nil
	}, nil)
}
