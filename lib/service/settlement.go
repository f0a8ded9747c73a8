package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getsentry/sentry-go"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/uptrace/bun"
)

// reconcilePaymentOutcome turns the node's report on an outgoing payment
// into ledger state. FAILED leaves the ledger untouched; the invoice row
// alone records the attempt.
func (svc *SatstashService) reconcilePaymentOutcome(ctx context.Context, invoice *models.Invoice, payment *lnrpc.Payment, amount, feeReserve int64) (*PaymentResponse, error) {
	switch payment.Status {
	case lnrpc.Payment_SUCCEEDED:
		if err := svc.HandleSuccessfulPayment(ctx, invoice, payment); err != nil {
			return nil, err
		}
		return &PaymentResponse{
			Invoice:     invoice,
			Status:      PaymentStatusSuccess,
			RHash:       invoice.RHash,
			PreimageHex: payment.PaymentPreimage,
			FeeSat:      payment.FeeSat,
		}, nil

	case lnrpc.Payment_IN_FLIGHT:
		if err := svc.HandlePendingPayment(ctx, invoice, amount, feeReserve); err != nil {
			return nil, err
		}
		// the tracker mutates the invoice on settlement, the caller
		// still reads ours for the response
		tracked := *invoice
		go svc.TrackOutgoingPayment(context.Background(), &tracked)
		return &PaymentResponse{
			Invoice: invoice,
			Status:  PaymentStatusPending,
			RHash:   invoice.RHash,
			FeeSat:  feeReserve,
		}, nil

	case lnrpc.Payment_FAILED:
		failure := failureReasonError(payment.FailureReason)
		svc.Logger.Infof("Payment failed user_id:%v r_hash:%s reason:%s", invoice.UserID, invoice.RHash, payment.FailureReason.String())
		svc.markInvoiceError(ctx, invoice, failure)
		return nil, failure

	default:
		svc.Logger.Errorf("Unexpected payment status user_id:%v r_hash:%s status:%s", invoice.UserID, invoice.RHash, payment.Status.String())
		svc.markInvoiceError(ctx, invoice, ErrPaymentRejected)
		return nil, ErrPaymentRejected
	}
}

func failureReasonError(reason lnrpc.PaymentFailureReason) error {
	switch reason {
	case lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE:
		return ErrRouteNotFound
	case lnrpc.PaymentFailureReason_FAILURE_REASON_TIMEOUT:
		return ErrPaymentTimeout
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INSUFFICIENT_BALANCE:
		return ErrRemoteCapacity
	default:
		return ErrPaymentRejected
	}
}

// HandleSuccessfulPayment books a settled external send: the payer is
// debited amount plus the actual routing fee, the network clearing account
// absorbs the amount and the fee account the fee.
func (svc *SatstashService) HandleSuccessfulPayment(ctx context.Context, invoice *models.Invoice, payment *lnrpc.Payment) error {
	payerAccount, err := svc.AccountFor(ctx, common.AccountTypeCurrent, invoice.UserID)
	if err != nil {
		return err
	}
	networkAccount, err := svc.SystemAccount(ctx, common.AccountTypeNetwork)
	if err != nil {
		return err
	}

	fee := payment.FeeSat
	entries := []*models.LedgerEntry{
		{
			AccountID: payerAccount.ID,
			UserID:    invoice.UserID,
			Amount:    -(invoice.Amount + fee),
			RHash:     invoice.RHash,
			EntryType: common.EntryTypeExternalSend,
			State:     common.EntryStateSettled,
			Memo:      invoice.Memo,
		},
		{
			AccountID: networkAccount.ID,
			Amount:    invoice.Amount,
			RHash:     invoice.RHash,
			EntryType: common.EntryTypeExternalSend,
			State:     common.EntryStateSettled,
		},
	}
	if fee > 0 {
		feesAccount, err := svc.SystemAccount(ctx, common.AccountTypeFees)
		if err != nil {
			return err
		}
		entries = append(entries, &models.LedgerEntry{
			AccountID: feesAccount.ID,
			Amount:    fee,
			RHash:     invoice.RHash,
			EntryType: common.EntryTypeFee,
			State:     common.EntryStateSettled,
		})
	}
	if err := svc.AppendBalanced(ctx, entries); err != nil {
		return err
	}

	invoice.Fee = fee
	invoice.Preimage = payment.PaymentPreimage
	invoice.State = common.InvoiceStateSettled
	invoice.SettledAt = bun.NullTime{Time: time.Now()}
	if _, err := svc.DB.NewUpdate().Model(invoice).WherePK().Exec(ctx); err != nil {
		return err
	}

	svc.publishNotification(NotificationEvent{
		UserID: invoice.UserID,
		Type:   common.NotificationPaymentSent,
		Amount: invoice.Amount,
		Memo:   invoice.Memo,
		RHash:  invoice.RHash,
	})
	return nil
}

// HandlePendingPayment books the provisional debit for an in-flight
// payment. The full fee reserve is debited up front; settlement flips the
// entry states and reversal compensates them, the amounts themselves are
// never edited.
func (svc *SatstashService) HandlePendingPayment(ctx context.Context, invoice *models.Invoice, amount, feeReserve int64) error {
	payerAccount, err := svc.AccountFor(ctx, common.AccountTypeCurrent, invoice.UserID)
	if err != nil {
		return err
	}
	networkAccount, err := svc.SystemAccount(ctx, common.AccountTypeNetwork)
	if err != nil {
		return err
	}
	feesAccount, err := svc.SystemAccount(ctx, common.AccountTypeFees)
	if err != nil {
		return err
	}

	entries := []*models.LedgerEntry{
		{
			AccountID: payerAccount.ID,
			UserID:    invoice.UserID,
			Amount:    -(amount + feeReserve),
			RHash:     invoice.RHash,
			EntryType: common.EntryTypeExternalSend,
			State:     common.EntryStatePending,
			Memo:      invoice.Memo,
		},
		{
			AccountID: networkAccount.ID,
			Amount:    amount,
			RHash:     invoice.RHash,
			EntryType: common.EntryTypeExternalSend,
			State:     common.EntryStatePending,
		},
		{
			AccountID: feesAccount.ID,
			Amount:    feeReserve,
			RHash:     invoice.RHash,
			EntryType: common.EntryTypeFee,
			State:     common.EntryStatePending,
		},
	}
	if err := svc.AppendBalanced(ctx, entries); err != nil {
		return err
	}

	invoice.Fee = feeReserve
	invoice.State = common.InvoiceStatePending
	_, err = svc.DB.NewUpdate().Model(invoice).WherePK().Exec(ctx)
	return err
}

// SettlePendingPayment marks the provisional entries settled. The balance
// does not move: the fee reserve was already debited when the payment went
// pending, so settlement is a pure state flip. The invoice row records the
// actual routing fee the node reported.
func (svc *SatstashService) SettlePendingPayment(ctx context.Context, invoice *models.Invoice, payment *lnrpc.Payment) error {
	res, err := svc.DB.NewUpdate().
		Model((*models.LedgerEntry)(nil)).
		Set("state = ?", common.EntryStateSettled).
		Where("r_hash = ? AND state = ?", invoice.RHash, common.EntryStatePending).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// already settled or reversed by another path
		return nil
	}

	invoice.Fee = payment.FeeSat
	invoice.Preimage = payment.PaymentPreimage
	invoice.State = common.InvoiceStateSettled
	invoice.SettledAt = bun.NullTime{Time: time.Now()}
	if _, err := svc.DB.NewUpdate().Model(invoice).WherePK().Exec(ctx); err != nil {
		return err
	}

	svc.Logger.Infof("Pending payment settled user_id:%v r_hash:%s fee:%v", invoice.UserID, invoice.RHash, payment.FeeSat)
	svc.publishNotification(NotificationEvent{
		UserID: invoice.UserID,
		Type:   common.NotificationPaymentSent,
		Amount: invoice.Amount,
		Memo:   invoice.Memo,
		RHash:  invoice.RHash,
	})
	return nil
}

// errReversalRaced aborts a reversal whose pending rows were settled by the
// tracking stream after they were read.
var errReversalRaced = errors.New("pending entries changed state during reversal")

// ReversePendingPayment refunds a failed or expired pending payment with
// compensating entries. The original rows stay in place, flagged reversed,
// so the audit trail survives; the ledger keeps summing to zero.
func (svc *SatstashService) ReversePendingPayment(ctx context.Context, invoice *models.Invoice) error {
	pending := []models.LedgerEntry{}
	err := svc.DB.NewSelect().
		Model(&pending).
		Where("r_hash = ? AND state = ?", invoice.RHash, common.EntryStatePending).
		Scan(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	reversals := make([]*models.LedgerEntry, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, entry := range pending {
		reversals = append(reversals, &models.LedgerEntry{
			AccountID: entry.AccountID,
			UserID:    entry.UserID,
			Amount:    -entry.Amount,
			RHash:     entry.RHash,
			EntryType: reversalTypeFor(entry.EntryType),
			State:     common.EntryStateSettled,
			Memo:      entry.Memo,
		})
		ids = append(ids, entry.ID)
	}

	err = svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.LedgerEntry)(nil)).
			Set("state = ?", common.EntryStateReversed).
			Where("id IN (?) AND state = ?", bun.In(ids), common.EntryStatePending).
			Exec(ctx)
		if err != nil {
			return err
		}
		// settle and reversal are mutually exclusive: if the tracking
		// stream settled any of these rows after our read, back off
		if rows, _ := res.RowsAffected(); rows != int64(len(pending)) {
			return errReversalRaced
		}
		_, err = tx.NewInsert().Model(&reversals).Exec(ctx)
		return err
	})
	if errors.Is(err, errReversalRaced) {
		svc.Logger.Infof("Skipping reversal, entries settled meanwhile r_hash:%s", invoice.RHash)
		return nil
	}
	if err != nil {
		return err
	}

	invoice.State = common.InvoiceStateError
	invoice.ErrorMessage = "payment failed, reserved funds were returned"
	if _, err := svc.DB.NewUpdate().Model(invoice).WherePK().Exec(ctx); err != nil {
		return err
	}

	svc.Logger.Infof("Pending payment reversed user_id:%v r_hash:%s", invoice.UserID, invoice.RHash)
	return nil
}

func reversalTypeFor(entryType string) string {
	switch entryType {
	case common.EntryTypeFee:
		return common.EntryTypeFeeReversal
	default:
		return common.EntryTypeExternalSendReversal
	}
}

// TrackOutgoingPayment follows the node's view of an in-flight payment
// until it resolves. Stream errors are retried with backoff; if the stream
// never resolves the expiry sweep picks the payment up later.
func (svc *SatstashService) TrackOutgoingPayment(ctx context.Context, invoice *models.Invoice) {
	rawHash, err := hex.DecodeString(invoice.RHash)
	if err != nil {
		svc.Logger.Errorf("Invalid payment hash r_hash:%s error:%v", invoice.RHash, err)
		return
	}
	operation := func() error {
		stream, err := svc.LndClient.SubscribePayment(ctx, &routerrpc.TrackPaymentRequest{
			PaymentHash:       rawHash,
			NoInflightUpdates: true,
		})
		if err != nil {
			return err
		}
		for {
			payment, err := stream.Recv()
			if err != nil {
				return err
			}
			switch payment.Status {
			case lnrpc.Payment_SUCCEEDED:
				return svc.SettlePendingPayment(ctx, invoice, payment)
			case lnrpc.Payment_FAILED:
				return svc.ReversePendingPayment(ctx, invoice)
			}
		}
	}
	err = backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
	if err != nil {
		svc.Logger.Errorf("Gave up tracking payment r_hash:%s error:%v", invoice.RHash, err)
		sentry.CaptureException(err)
	}
}

// CheckPendingOutgoingPayments reverses pending payments whose invoice has
// expired. Safety net for payments whose tracking stream died: funds must
// not stay locked forever.
func (svc *SatstashService) CheckPendingOutgoingPayments(ctx context.Context) error {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().
		Model(&invoices).
		Where("type = ? AND state = ? AND expires_at < ?", common.InvoiceTypeOutgoing, common.InvoiceStatePending, time.Now()).
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range invoices {
		if err := svc.ReversePendingPayment(ctx, &invoices[i]); err != nil {
			svc.Logger.Errorf("Failed to reverse expired payment r_hash:%s error:%v", invoices[i].RHash, err)
			sentry.CaptureException(err)
		}
	}
	return nil
}

// StartTrackingPendingPayments re-arms payment tracking for everything
// that was in flight when the process last stopped.
func (svc *SatstashService) StartTrackingPendingPayments(ctx context.Context) error {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().
		Model(&invoices).
		Where("type = ? AND state = ?", common.InvoiceTypeOutgoing, common.InvoiceStatePending).
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range invoices {
		invoice := invoices[i]
		go svc.TrackOutgoingPayment(ctx, &invoice)
	}
	return nil
}
