package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/satstash/satstash/lib/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outgoingInvoice(t *testing.T, svc *service.SatstashService, rHashHex string) models.Invoice {
	t.Helper()
	var invoice models.Invoice
	err := svc.DB.NewSelect().Model(&invoice).
		Where("type = ? AND r_hash = ?", common.InvoiceTypeOutgoing, rHashHex).
		Scan(context.Background())
	require.NoError(t, err)
	return invoice
}

func invoiceState(t *testing.T, svc *service.SatstashService, rHashHex string) string {
	t.Helper()
	return outgoingInvoice(t, svc, rHashHex).State
}

func TestPendingPaymentSettles(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()
	alice := createTestUser(t, svc)
	fundUser(t, svc, alice.ID, 1000)

	paymentRequest, rHashHex := mock.registerExternalInvoice(500, "slow payment")
	mock.scriptSendOutcome(rHashHex, &lnrpc.Payment{
		PaymentHash: rHashHex,
		Status:      lnrpc.Payment_IN_FLIGHT,
	}, nil)

	response, err := svc.Pay(ctx, alice.ID, paymentRequest, 0)
	require.NoError(t, err)
	assert.Equal(t, service.PaymentStatusPending, response.Status)

	// amount plus the full fee reserve are debited while in flight
	feeReserve := svc.FeeLimitFor(500)
	assert.Equal(t, 1000-500-feeReserve, userBalance(t, svc, alice.ID))
	assertLedgerBalanced(t, svc)

	mock.paymentUpdates(rHashHex) <- &lnrpc.Payment{
		PaymentHash:     rHashHex,
		PaymentPreimage: "hodl-preimage",
		Status:          lnrpc.Payment_SUCCEEDED,
		FeeSat:          3,
	}
	waitFor(t, func() bool {
		return invoiceState(t, svc, rHashHex) == common.InvoiceStateSettled
	})

	// settlement flips entry states, it does not move the balance again
	assert.Equal(t, 1000-500-feeReserve, userBalance(t, svc, alice.ID))
	pendingCount, err := svc.DB.NewSelect().Model((*models.LedgerEntry)(nil)).
		Where("r_hash = ? AND state = ?", rHashHex, common.EntryStatePending).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pendingCount)
	assertLedgerBalanced(t, svc)

	// the invoice row records the fee the node actually charged, not the
	// reserve that stays debited in the ledger
	settled := outgoingInvoice(t, svc, rHashHex)
	assert.Equal(t, int64(3), settled.Fee)
	assert.Equal(t, "hodl-preimage", settled.Preimage)

	// the tracker settled on its own copy, the caller's response still
	// describes the payment as it was handed back
	assert.Equal(t, common.InvoiceStatePending, response.Invoice.State)
	assert.Equal(t, feeReserve, response.Invoice.Fee)
}

func TestPendingPaymentReversed(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()
	alice := createTestUser(t, svc)
	fundUser(t, svc, alice.ID, 1000)

	paymentRequest, rHashHex := mock.registerExternalInvoice(500, "doomed payment")
	mock.scriptSendOutcome(rHashHex, &lnrpc.Payment{
		PaymentHash: rHashHex,
		Status:      lnrpc.Payment_IN_FLIGHT,
	}, nil)

	_, err := svc.Pay(ctx, alice.ID, paymentRequest, 0)
	require.NoError(t, err)

	mock.paymentUpdates(rHashHex) <- &lnrpc.Payment{
		PaymentHash:   rHashHex,
		Status:        lnrpc.Payment_FAILED,
		FailureReason: lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE,
	}
	waitFor(t, func() bool {
		return invoiceState(t, svc, rHashHex) == common.InvoiceStateError
	})

	// compensating entries restored the balance, originals are flagged
	assert.Equal(t, int64(1000), userBalance(t, svc, alice.ID))
	reversedCount, err := svc.DB.NewSelect().Model((*models.LedgerEntry)(nil)).
		Where("r_hash = ? AND state = ?", rHashHex, common.EntryStateReversed).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, reversedCount)

	reversalCount, err := svc.DB.NewSelect().Model((*models.LedgerEntry)(nil)).
		Where("r_hash = ? AND entry_type IN (?, ?)", rHashHex, common.EntryTypeExternalSendReversal, common.EntryTypeFeeReversal).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, reversalCount)
	assertLedgerBalanced(t, svc)
}

func TestExpiredPendingPaymentIsSweptBack(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()
	alice := createTestUser(t, svc)
	fundUser(t, svc, alice.ID, 1000)

	paymentRequest, rHashHex := mock.registerExternalInvoice(200, "stuck payment")
	mock.scriptSendOutcome(rHashHex, &lnrpc.Payment{
		PaymentHash: rHashHex,
		Status:      lnrpc.Payment_IN_FLIGHT,
	}, nil)
	_, err := svc.Pay(ctx, alice.ID, paymentRequest, 0)
	require.NoError(t, err)

	// force the invoice past its expiry, then run the sweep
	_, err = svc.DB.NewUpdate().Model((*models.Invoice)(nil)).
		Set("expires_at = ?", time.Now().Add(-time.Minute)).
		Where("type = ? AND r_hash = ?", common.InvoiceTypeOutgoing, rHashHex).
		Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.CheckPendingOutgoingPayments(ctx))

	assert.Equal(t, int64(1000), userBalance(t, svc, alice.ID))
	assert.Equal(t, common.InvoiceStateError, invoiceState(t, svc, rHashHex))
	assertLedgerBalanced(t, svc)
}

func TestSettledPaymentIsNotReversed(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()
	alice := createTestUser(t, svc)
	fundUser(t, svc, alice.ID, 1000)

	paymentRequest, rHashHex := mock.registerExternalInvoice(500, "settles at expiry")
	mock.scriptSendOutcome(rHashHex, &lnrpc.Payment{
		PaymentHash: rHashHex,
		Status:      lnrpc.Payment_IN_FLIGHT,
	}, nil)
	_, err := svc.Pay(ctx, alice.ID, paymentRequest, 0)
	require.NoError(t, err)

	mock.paymentUpdates(rHashHex) <- &lnrpc.Payment{
		PaymentHash:     rHashHex,
		PaymentPreimage: "eleventh-hour",
		Status:          lnrpc.Payment_SUCCEEDED,
		FeeSat:          2,
	}
	waitFor(t, func() bool {
		return invoiceState(t, svc, rHashHex) == common.InvoiceStateSettled
	})

	// the payment succeeded right at expiry, the sweep must not refund it
	_, err = svc.DB.NewUpdate().Model((*models.Invoice)(nil)).
		Set("expires_at = ?", time.Now().Add(-time.Minute)).
		Where("type = ? AND r_hash = ?", common.InvoiceTypeOutgoing, rHashHex).
		Exec(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.CheckPendingOutgoingPayments(ctx))

	invoice := outgoingInvoice(t, svc, rHashHex)
	require.NoError(t, svc.ReversePendingPayment(ctx, &invoice))

	feeReserve := svc.FeeLimitFor(500)
	assert.Equal(t, 1000-500-feeReserve, userBalance(t, svc, alice.ID))
	assert.Equal(t, common.InvoiceStateSettled, invoiceState(t, svc, rHashHex))
	reversalCount, err := svc.DB.NewSelect().Model((*models.LedgerEntry)(nil)).
		Where("r_hash = ? AND entry_type IN (?, ?)", rHashHex, common.EntryTypeExternalSendReversal, common.EntryTypeFeeReversal).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reversalCount)
	assertLedgerBalanced(t, svc)
}

func TestLateSettlementAfterReversalIgnored(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()
	alice := createTestUser(t, svc)
	fundUser(t, svc, alice.ID, 1000)

	paymentRequest, rHashHex := mock.registerExternalInvoice(300, "reversed first")
	mock.scriptSendOutcome(rHashHex, &lnrpc.Payment{
		PaymentHash: rHashHex,
		Status:      lnrpc.Payment_IN_FLIGHT,
	}, nil)
	_, err := svc.Pay(ctx, alice.ID, paymentRequest, 0)
	require.NoError(t, err)

	_, err = svc.DB.NewUpdate().Model((*models.Invoice)(nil)).
		Set("expires_at = ?", time.Now().Add(-time.Minute)).
		Where("type = ? AND r_hash = ?", common.InvoiceTypeOutgoing, rHashHex).
		Exec(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.CheckPendingOutgoingPayments(ctx))
	require.Equal(t, int64(1000), userBalance(t, svc, alice.ID))

	// a success report arriving after the refund must not settle anything
	invoice := outgoingInvoice(t, svc, rHashHex)
	err = svc.SettlePendingPayment(ctx, &invoice, &lnrpc.Payment{
		PaymentHash:     rHashHex,
		PaymentPreimage: "too-late",
		Status:          lnrpc.Payment_SUCCEEDED,
		FeeSat:          2,
	})
	require.NoError(t, err)

	assert.Equal(t, common.InvoiceStateError, invoiceState(t, svc, rHashHex))
	assert.Equal(t, int64(1000), userBalance(t, svc, alice.ID))
	settledCount, err := svc.DB.NewSelect().Model((*models.LedgerEntry)(nil)).
		Where("r_hash = ? AND entry_type = ? AND state = ?", rHashHex, common.EntryTypeExternalSend, common.EntryStateSettled).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settledCount)
	assertLedgerBalanced(t, svc)
}

func TestIncomingSettlementCreditsAmountPaid(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()
	alice := createTestUser(t, svc)

	invoice, err := svc.AddIncomingInvoice(ctx, alice.ID, 100, "overpay me")
	require.NoError(t, err)
	rawHash, err := hex.DecodeString(invoice.RHash)
	require.NoError(t, err)

	// payer sent more than the invoice asked for
	err = svc.ProcessInvoiceUpdate(ctx, &lnrpc.Invoice{
		RHash:      rawHash,
		State:      lnrpc.Invoice_SETTLED,
		AmtPaidSat: 150,
		SettleDate: time.Now().Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), userBalance(t, svc, alice.ID))
	assertLedgerBalanced(t, svc)

	// a second settlement report for the same hash is ignored
	err = svc.ProcessInvoiceUpdate(ctx, &lnrpc.Invoice{
		RHash:      rawHash,
		State:      lnrpc.Invoice_SETTLED,
		AmtPaidSat: 150,
		SettleDate: time.Now().Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), userBalance(t, svc, alice.ID))
}

func TestUnknownInvoiceUpdateIgnored(t *testing.T) {
	mock := newLndMock()
	svc := newTestService(t, mock)
	ctx := context.Background()

	unknown := sha256.Sum256([]byte("never issued"))
	err := svc.ProcessInvoiceUpdate(ctx, &lnrpc.Invoice{
		RHash:      unknown[:],
		State:      lnrpc.Invoice_SETTLED,
		AmtPaidSat: 999,
		SettleDate: time.Now().Unix(),
	})
	require.NoError(t, err)

	count, err := svc.DB.NewSelect().Model((*models.LedgerEntry)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
