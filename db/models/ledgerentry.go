package models

import (
	"time"
)

// LedgerEntry : Ledger Entry Model
//
// A single signed bookkeeping row. Every economic event is recorded as a
// set of entries sharing the same correlation hash (r_hash) whose amounts
// sum to zero. Amounts are immutable once committed; the only column that
// may change afterwards is State (pending -> settled / pending -> reversed).
type LedgerEntry struct {
	ID        int64     `bun:",pk,autoincrement"`
	AccountID int64     `bun:",notnull"`
	Account   *Account  `bun:"rel:belongs-to,join:account_id=id"`
	UserID    int64     `bun:",nullzero"`
	User      *User     `bun:"rel:belongs-to,join:user_id=id"`
	Amount    int64     `bun:",notnull"`
	Currency  string    `bun:",notnull,default:'BTC'"`
	RHash     string    `bun:",notnull"`
	EntryType string    `bun:",notnull"`
	State     string    `bun:",notnull,default:'settled'"`
	RewardID  string    `bun:",nullzero"`
	Memo      string    `bun:",nullzero"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
