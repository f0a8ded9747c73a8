package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if db.Dialect().Name().String() != "pg" {
			fmt.Printf("\033[1;31m%s\033[0m", "You are not using PostgreSQL. DB level checks can not be enabled!\n")
			return nil
		}
		sql := `
			-- make sure that user account balances never go negative
				CREATE OR REPLACE FUNCTION check_balance()
					RETURNS TRIGGER AS $$
				DECLARE
					sum BIGINT;
					account_type VARCHAR;
				BEGIN
					-- system accounts (network, fees, rewards) may carry a negative balance,
					-- user current accounts may not
					SELECT INTO account_type type
					FROM accounts
					WHERE id = NEW.account_id AND type = 'current'
					-- IMPORTANT: lock rows but do not wait for another lock to be released.
					--   Waiting would result in a deadlock because two parallel transactions could try to lock the same rows
					--   NOWAIT reports an error rather than waiting for the lock to be released
					FOR UPDATE NOWAIT;

					IF account_type IS NULL
					THEN
						RETURN NEW;
					END IF;

					SELECT INTO sum SUM(amount)
					FROM ledger_entries
					WHERE ledger_entries.account_id = NEW.account_id;

					IF sum < 0
					THEN
						RAISE EXCEPTION 'invalid balance [user_id:%] [account_id:%] balance [%]',
						NEW.user_id,
						NEW.account_id,
						sum;
					END IF;
					RETURN NEW;
				END;
				$$ LANGUAGE plpgsql;

				DROP TRIGGER IF EXISTS check_balance ON ledger_entries;

				-- deferrable trigger executed at the end of the transaction to check the balance for each inserted entry
				CREATE CONSTRAINT TRIGGER check_balance
				AFTER INSERT OR UPDATE ON ledger_entries
				DEFERRABLE
				FOR EACH ROW EXECUTE PROCEDURE check_balance();
		`
		if _, err := db.Exec(sql); err != nil {
			return err
		}
		return nil
	}, nil)
}
