package models

import (
	"context"
	"math"
	"time"

	"github.com/uptrace/bun"
)

// Invoice : Invoice Model
//
// Incoming invoices double as the invoice directory: they bind a payment
// hash to the user entitled to receive funds against it (the r_hash is
// unique among incoming invoices).
type Invoice struct {
	ID                   int64        `json:"id" bun:",pk,autoincrement"`
	Type                 string       `json:"type" validate:"required"`
	UserID               int64        `json:"user_id" validate:"required"`
	User                 *User        `json:"-" bun:"rel:belongs-to,join:user_id=id"`
	Amount               int64        `json:"amount" validate:"gte=0"`
	Fee                  int64        `json:"fee" bun:",nullzero"`
	Memo                 string       `json:"memo" bun:",nullzero"`
	PaymentRequest       string       `json:"payment_request" bun:",nullzero"`
	DestinationPubkeyHex string       `json:"destination_pubkey_hex" bun:",nullzero"`
	RHash                string       `json:"r_hash" bun:",nullzero"`
	Preimage             string       `json:"preimage" bun:",nullzero"`
	Internal             bool         `json:"-" bun:",nullzero"`
	Keysend              bool         `json:"keysend" bun:",nullzero"`
	State                string       `json:"state" bun:",default:'initialized'"`
	ErrorMessage         string       `json:"error_message,omitempty" bun:",nullzero"`
	AddIndex             uint64       `json:"-" bun:",nullzero"`
	CreatedAt            time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	ExpiresAt            bun.NullTime `json:"expires_at" bun:",nullzero"`
	UpdatedAt            bun.NullTime `json:"updated_at"`
	SettledAt            bun.NullTime `json:"settled_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

// CalcFeeLimit returns the conservative routing fee ceiling for the given
// amount: 10 sat for small payments, 1% + 1 sat above 1000 sat.
func CalcFeeLimit(amount int64) int64 {
	limit := int64(10)
	if amount > 1000 {
		limit = int64(math.Ceil(float64(amount)*float64(0.01)) + 1)
	}
	return limit
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
