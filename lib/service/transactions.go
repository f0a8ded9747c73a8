package service

import (
	"context"

	"github.com/satstash/satstash/common"
)

// Transaction is a user-facing view of one ledger entry on the user's
// current account. Amounts keep their sign: negative means funds left the
// account.
type Transaction struct {
	RHash       string `json:"payment_hash"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	State       string `json:"state"`
	Memo        string `json:"memo,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func (svc *SatstashService) TransactionsFor(ctx context.Context, userID int64) ([]Transaction, error) {
	account, err := svc.AccountFor(ctx, common.AccountTypeCurrent, userID)
	if err != nil {
		return nil, err
	}
	entries, err := svc.EntriesFor(ctx, account.ID, "")
	if err != nil {
		return nil, err
	}
	transactions := make([]Transaction, 0, len(entries))
	for _, entry := range entries {
		transactions = append(transactions, Transaction{
			RHash:       entry.RHash,
			Type:        entry.EntryType,
			Description: describeEntry(entry.EntryType),
			Amount:      entry.Amount,
			State:       entry.State,
			Memo:        entry.Memo,
			Timestamp:   entry.CreatedAt.Unix(),
		})
	}
	return transactions, nil
}

func describeEntry(entryType string) string {
	switch entryType {
	case common.EntryTypeOnUsSend, common.EntryTypeExternalSend:
		return "Payment sent"
	case common.EntryTypeOnUsReceive, common.EntryTypeExternalReceive:
		return "Payment received"
	case common.EntryTypeOnboardingEarn:
		return "Earn reward"
	case common.EntryTypeExternalSendReversal, common.EntryTypeFeeReversal:
		return "Payment refund"
	default:
		return "Ledger adjustment"
	}
}
