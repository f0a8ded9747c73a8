package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/uptrace/bun"
)

// AccountFor returns the account of the given type owned by the user.
// User accounts are created at signup, so a missing row is an error.
func (svc *SatstashService) AccountFor(ctx context.Context, accountType string, userId int64) (models.Account, error) {
	account := models.Account{}
	err := svc.DB.NewSelect().Model(&account).Where("user_id = ? AND type = ?", userId, accountType).Limit(1).Scan(ctx)
	return account, err
}

// SystemAccount returns the service-owned account of the given type,
// creating it on first use. System accounts have no user id.
func (svc *SatstashService) SystemAccount(ctx context.Context, accountType string) (models.Account, error) {
	account := models.Account{}
	err := svc.DB.NewSelect().Model(&account).Where("user_id IS NULL AND type = ?", accountType).Limit(1).Scan(ctx)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return account, err
	}
	account = models.Account{Type: accountType}
	if _, err = svc.DB.NewInsert().Model(&account).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return account, err
		}
		// another instance created it concurrently
		err = svc.DB.NewSelect().Model(&account).Where("user_id IS NULL AND type = ?", accountType).Limit(1).Scan(ctx)
	}
	return account, err
}

func (svc *SatstashService) BalanceOf(ctx context.Context, accountId int64) (int64, error) {
	var balance int64
	err := svc.DB.NewSelect().
		Model((*models.LedgerEntry)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("account_id = ?", accountId).
		Scan(ctx, &balance)
	return balance, err
}

// CurrentUserBalance is the confirmed balance of the user's current
// account: the plain sum of all its entries, pending debits included.
func (svc *SatstashService) CurrentUserBalance(ctx context.Context, userId int64) (int64, error) {
	account, err := svc.AccountFor(ctx, common.AccountTypeCurrent, userId)
	if err != nil {
		return 0, err
	}
	return svc.BalanceOf(ctx, account.ID)
}

// AppendBalanced commits a set of ledger entries atomically. The set must
// sum to zero or nothing is written. After the insert every user account
// debited by the set is re-read inside the transaction; if any went
// negative the whole set is rolled back. Committed entries are never
// mutated afterwards except for their state column.
func (svc *SatstashService) AppendBalanced(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) < 2 {
		return ErrUnbalancedEntrySet
	}
	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	if sum != 0 {
		return ErrUnbalancedEntrySet
	}

	debitedUserAccounts := map[int64]bool{}
	for _, entry := range entries {
		if entry.Amount < 0 && entry.UserID != 0 {
			debitedUserAccounts[entry.AccountID] = true
		}
	}

	return svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&entries).Exec(ctx); err != nil {
			return err
		}
		// compare-and-commit: the payer lock keeps concurrent sends of the
		// same user out, this re-check catches everything else (and the
		// deferred trigger backs it up on postgres)
		for accountId := range debitedUserAccounts {
			var balance int64
			err := tx.NewSelect().
				Model((*models.LedgerEntry)(nil)).
				ColumnExpr("COALESCE(SUM(amount), 0)").
				Where("account_id = ?", accountId).
				Scan(ctx, &balance)
			if err != nil {
				return err
			}
			if balance < 0 {
				return ErrInsufficientBalance
			}
		}
		return nil
	})
}

// EntriesFor lists an account's entries newest-first, optionally filtered
// by correlation hash.
func (svc *SatstashService) EntriesFor(ctx context.Context, accountId int64, rHash string) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	query := svc.DB.NewSelect().Model(&entries).Where("account_id = ?", accountId).OrderExpr("id DESC")
	if rHash != "" {
		query.Where("r_hash = ?", rHash)
	}
	err := query.Scan(ctx)
	return entries, err
}

// CheckLedgerBalance verifies that the entire ledger sums to zero. Run
// periodically; a non-zero sum means money was created or destroyed.
func (svc *SatstashService) CheckLedgerBalance(ctx context.Context) error {
	var sum int64
	err := svc.DB.NewSelect().
		Model((*models.LedgerEntry)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Scan(ctx, &sum)
	if err != nil {
		return err
	}
	if sum != 0 {
		return fmt.Errorf("ledger out of balance: sum of all entries is %d", sum)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
