package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getsentry/sentry-go"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/satstash/satstash/lnd"
	"github.com/uptrace/bun"
)

// ProcessInvoiceUpdate credits an inbound settlement reported by the node.
// Updates for hashes we never issued (or for invoices already settled) are
// ignored. The credited amount is the amount actually paid, which can
// exceed the invoice amount.
func (svc *SatstashService) ProcessInvoiceUpdate(ctx context.Context, rawInvoice *lnrpc.Invoice) error {
	rHash := hex.EncodeToString(rawInvoice.RHash)

	var invoice models.Invoice
	err := svc.DB.NewSelect().
		Model(&invoice).
		Where("type = ? AND r_hash = ? AND state <> ?", common.InvoiceTypeIncoming, rHash, common.InvoiceStateSettled).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			svc.Logger.Infof("Invoice update ignored, no open invoice r_hash:%s", rHash)
			return nil
		}
		return err
	}

	if rawInvoice.State != lnrpc.Invoice_SETTLED {
		invoice.State = strings.ToLower(rawInvoice.State.String())
		_, err = svc.DB.NewUpdate().Model(&invoice).WherePK().Exec(ctx)
		return err
	}

	amountPaid := rawInvoice.AmtPaidSat
	if amountPaid == 0 {
		amountPaid = invoice.Amount
	}

	userAccount, err := svc.AccountFor(ctx, common.AccountTypeCurrent, invoice.UserID)
	if err != nil {
		return err
	}
	networkAccount, err := svc.SystemAccount(ctx, common.AccountTypeNetwork)
	if err != nil {
		return err
	}
	entries := []*models.LedgerEntry{
		{
			AccountID: userAccount.ID,
			UserID:    invoice.UserID,
			Amount:    amountPaid,
			RHash:     rHash,
			EntryType: common.EntryTypeExternalReceive,
			State:     common.EntryStateSettled,
			Memo:      invoice.Memo,
		},
		{
			AccountID: networkAccount.ID,
			Amount:    -amountPaid,
			RHash:     rHash,
			EntryType: common.EntryTypeExternalReceive,
			State:     common.EntryStateSettled,
		},
	}
	if err := svc.AppendBalanced(ctx, entries); err != nil {
		return err
	}

	invoice.State = common.InvoiceStateSettled
	invoice.Preimage = hex.EncodeToString(rawInvoice.RPreimage)
	invoice.SettledAt = bun.NullTime{Time: time.Unix(rawInvoice.SettleDate, 0)}
	if invoice.Amount == 0 {
		invoice.Amount = amountPaid
	}
	if _, err := svc.DB.NewUpdate().Model(&invoice).WherePK().Exec(ctx); err != nil {
		return err
	}

	svc.Logger.Infof("Incoming payment settled user_id:%v r_hash:%s amount:%v", invoice.UserID, rHash, amountPaid)
	svc.publishNotification(NotificationEvent{
		UserID: invoice.UserID,
		Type:   common.NotificationPaymentReceived,
		Amount: amountPaid,
		Memo:   invoice.Memo,
		RHash:  rHash,
	})
	return nil
}

// ConnectInvoiceSubscription opens the invoice stream from the add index
// of our oldest open invoice, so settlements that happened while we were
// down are replayed.
func (svc *SatstashService) ConnectInvoiceSubscription(ctx context.Context) (lnd.SubscribeInvoicesWrapper, error) {
	var invoice models.Invoice
	invoiceSubscriptionOptions := lnrpc.InvoiceSubscription{}
	err := svc.DB.NewSelect().
		Model(&invoice).
		Where("type = ? AND state = ? AND add_index IS NOT NULL", common.InvoiceTypeIncoming, common.InvoiceStateOpen).
		OrderExpr("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if invoice.AddIndex > 0 {
		invoiceSubscriptionOptions = lnrpc.InvoiceSubscription{AddIndex: invoice.AddIndex - 1}
	}
	svc.Logger.Infof("Subscribing to invoice updates add_index:%v", invoiceSubscriptionOptions.AddIndex)
	return svc.LndClient.SubscribeInvoices(ctx, &invoiceSubscriptionOptions)
}

// InvoiceUpdateSubscription consumes invoice updates until the context is
// cancelled, reconnecting with backoff when the stream breaks.
func (svc *SatstashService) InvoiceUpdateSubscription(ctx context.Context) error {
	operation := func() error {
		invoiceSubscriptionStream, err := svc.ConnectInvoiceSubscription(ctx)
		if err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			default:
			}
			rawInvoice, err := invoiceSubscriptionStream.Recv()
			if err != nil {
				svc.Logger.Errorf("Invoice stream broke, reconnecting error:%v", err)
				return err
			}
			if err := svc.ProcessInvoiceUpdate(ctx, rawInvoice); err != nil {
				svc.Logger.Errorf("Failed to process invoice update r_hash:%s error:%v", hex.EncodeToString(rawInvoice.RHash), err)
				sentry.CaptureException(err)
			}
		}
	}
	return backoff.Retry(operation, backoff.WithContext(newRetryBackoff(), ctx))
}

// newRetryBackoff never gives up; the subscription must outlive transient
// node outages.
func newRetryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}
