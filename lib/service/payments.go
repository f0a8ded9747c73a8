package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/uptrace/bun"
)

const (
	PaymentStatusSuccess = "success"
	PaymentStatusPending = "pending"
)

// keysend records the preimage in this custom TLV record
const keySendPreimageType uint64 = 5482373484

type PaymentResponse struct {
	Invoice     *models.Invoice `json:"-"`
	Status      string          `json:"status"`
	RHash       string          `json:"payment_hash"`
	PreimageHex string          `json:"payment_preimage,omitempty"`
	FeeSat      int64           `json:"fee"`
}

// Pay executes a payment against a bolt11 invoice on behalf of userID.
// amount is only consulted for zero-amount invoices. The payment is routed
// internally when the invoice was issued by another user of this service,
// externally through the node otherwise.
func (svc *SatstashService) Pay(ctx context.Context, userID int64, paymentRequest string, amount int64) (*PaymentResponse, error) {
	paymentRequest = strings.ToLower(paymentRequest)
	decodedPaymentRequest, err := svc.LndClient.DecodeBolt11(ctx, paymentRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentRequest, err)
	}

	resolvedAmount, err := resolveAmount(decodedPaymentRequest.NumSatoshis, amount)
	if err != nil {
		return nil, err
	}

	incomingInvoice, err := svc.FindIncomingInvoice(ctx, decodedPaymentRequest.PaymentHash)
	if err != nil {
		return nil, err
	}
	if incomingInvoice != nil {
		if incomingInvoice.UserID == userID {
			return nil, ErrSelfPayment
		}
		return svc.sendInternalPayment(ctx, userID, paymentRequest, decodedPaymentRequest, incomingInvoice, resolvedAmount)
	}
	return svc.sendExternalPayment(ctx, userID, paymentRequest, decodedPaymentRequest, resolvedAmount)
}

// resolveAmount reconciles the invoice amount with an explicitly supplied
// one. Exactly one source must be authoritative.
func resolveAmount(invoiceAmount, explicitAmount int64) (int64, error) {
	if explicitAmount < 0 {
		return 0, ErrAmountRequired
	}
	if invoiceAmount == 0 && explicitAmount == 0 {
		return 0, ErrAmountRequired
	}
	if invoiceAmount != 0 && explicitAmount != 0 && invoiceAmount != explicitAmount {
		return 0, ErrAmountMismatch
	}
	if invoiceAmount != 0 {
		return invoiceAmount, nil
	}
	return explicitAmount, nil
}

// FeeLimitFor is both the fee limit handed to the node and the balance
// headroom reserved while a payment is in flight.
func (svc *SatstashService) FeeLimitFor(amount int64) int64 {
	limit := models.CalcFeeLimit(amount)
	if limit > svc.Config.MaxFeeAmount {
		limit = svc.Config.MaxFeeAmount
	}
	return limit
}

// sendInternalPayment settles an on-us payment: a balanced pair of entries
// moves the amount between the two current accounts, no network call and
// no fee.
func (svc *SatstashService) sendInternalPayment(ctx context.Context, userID int64, paymentRequest string, decodedPaymentRequest *lnrpc.PayReq, incomingInvoice *models.Invoice, amount int64) (*PaymentResponse, error) {
	if incomingInvoice.State == common.InvoiceStateSettled {
		return nil, fmt.Errorf("%w: invoice is already settled", ErrInvalidPaymentRequest)
	}
	if !incomingInvoice.ExpiresAt.Time.IsZero() && incomingInvoice.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("%w: invoice is expired", ErrInvalidPaymentRequest)
	}

	unlock := svc.lockUser(userID)
	defer unlock()

	balance, err := svc.CurrentUserBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientBalance
	}

	payerAccount, err := svc.AccountFor(ctx, common.AccountTypeCurrent, userID)
	if err != nil {
		return nil, err
	}
	payeeAccount, err := svc.AccountFor(ctx, common.AccountTypeCurrent, incomingInvoice.UserID)
	if err != nil {
		return nil, err
	}

	memo := incomingInvoice.Memo
	if memo == "" {
		memo = decodedPaymentRequest.Description
	}
	entries := []*models.LedgerEntry{
		{
			AccountID: payerAccount.ID,
			UserID:    userID,
			Amount:    -amount,
			RHash:     incomingInvoice.RHash,
			EntryType: common.EntryTypeOnUsSend,
			State:     common.EntryStateSettled,
			Memo:      memo,
		},
		{
			AccountID: payeeAccount.ID,
			UserID:    incomingInvoice.UserID,
			Amount:    amount,
			RHash:     incomingInvoice.RHash,
			EntryType: common.EntryTypeOnUsReceive,
			State:     common.EntryStateSettled,
			Memo:      memo,
		},
	}
	if err := svc.AppendBalanced(ctx, entries); err != nil {
		return nil, err
	}

	now := bun.NullTime{Time: time.Now()}
	preimage := fmt.Sprintf("internal payment (from:%v to:%v)", userID, incomingInvoice.UserID)
	outgoingInvoice := &models.Invoice{
		Type:                 common.InvoiceTypeOutgoing,
		UserID:               userID,
		Amount:               amount,
		Memo:                 memo,
		PaymentRequest:       paymentRequest,
		DestinationPubkeyHex: decodedPaymentRequest.Destination,
		RHash:                incomingInvoice.RHash,
		Preimage:             preimage,
		Internal:             true,
		State:                common.InvoiceStateSettled,
		SettledAt:            now,
	}
	if _, err := svc.DB.NewInsert().Model(outgoingInvoice).Exec(ctx); err != nil {
		return nil, err
	}

	incomingInvoice.State = common.InvoiceStateSettled
	incomingInvoice.Preimage = preimage
	incomingInvoice.Internal = true
	incomingInvoice.SettledAt = now
	if incomingInvoice.Amount == 0 {
		incomingInvoice.Amount = amount
	}
	if _, err := svc.DB.NewUpdate().Model(incomingInvoice).WherePK().Exec(ctx); err != nil {
		return nil, err
	}

	svc.publishNotification(NotificationEvent{
		UserID: userID,
		Type:   common.NotificationPaymentSent,
		Amount: amount,
		Memo:   memo,
		RHash:  incomingInvoice.RHash,
	})
	svc.publishNotification(NotificationEvent{
		UserID: incomingInvoice.UserID,
		Type:   common.NotificationPaymentReceived,
		Amount: amount,
		Memo:   memo,
		RHash:  incomingInvoice.RHash,
	})

	return &PaymentResponse{
		Invoice:     outgoingInvoice,
		Status:      PaymentStatusSuccess,
		RHash:       incomingInvoice.RHash,
		PreimageHex: preimage,
		FeeSat:      0,
	}, nil
}

// sendExternalPayment hands the payment to the node and records the
// outcome. Nothing is written to the ledger before the node reports
// either success or an in-flight HTLC.
func (svc *SatstashService) sendExternalPayment(ctx context.Context, userID int64, paymentRequest string, decodedPaymentRequest *lnrpc.PayReq, amount int64) (*PaymentResponse, error) {
	feeLimit := svc.FeeLimitFor(amount)

	unlock := svc.lockUser(userID)
	defer unlock()

	balance, err := svc.CurrentUserBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount+feeLimit {
		return nil, ErrInsufficientBalance
	}

	invoice, err := svc.AddOutgoingInvoice(ctx, userID, paymentRequest, decodedPaymentRequest, false, amount)
	if err != nil {
		return nil, err
	}

	sendRequest := &routerrpc.SendPaymentRequest{
		PaymentRequest: paymentRequest,
		FeeLimitSat:    feeLimit,
		TimeoutSeconds: svc.Config.PaymentTimeoutSeconds,
	}
	if decodedPaymentRequest.NumSatoshis == 0 {
		sendRequest.Amt = amount
	}
	// leave the node a little room to report before we stop waiting
	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(svc.Config.PaymentTimeoutSeconds+10)*time.Second)
	defer cancel()

	payment, err := svc.LndClient.SendPayment(sendCtx, sendRequest)
	if err != nil {
		svc.Logger.Errorf("Payment call failed user_id:%v r_hash:%s error:%v", userID, invoice.RHash, err)
		svc.markInvoiceError(context.Background(), invoice, err)
		return nil, fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}

	return svc.reconcilePaymentOutcome(ctx, invoice, payment, amount, feeLimit)
}

// PayToDestination sends a spontaneous (keysend) payment to a node pubkey.
// The preimage is generated locally and transported in a custom record.
func (svc *SatstashService) PayToDestination(ctx context.Context, userID int64, destination string, amount int64, memo string) (*PaymentResponse, error) {
	if len(destination) != common.DestinationPubkeyHexSize {
		return nil, fmt.Errorf("%w: invalid destination pubkey", ErrInvalidPaymentRequest)
	}
	if svc.LndClient.IsIdentityPubkey(destination) {
		return nil, ErrSelfPayment
	}
	if amount <= 0 {
		return nil, ErrAmountRequired
	}

	preimage, err := makePreimageHex()
	if err != nil {
		return nil, err
	}
	paymentHash := sha256.Sum256(preimage)

	feeLimit := svc.FeeLimitFor(amount)

	unlock := svc.lockUser(userID)
	defer unlock()

	balance, err := svc.CurrentUserBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount+feeLimit {
		return nil, ErrInsufficientBalance
	}

	decoded := &lnrpc.PayReq{
		Destination: destination,
		PaymentHash: hex.EncodeToString(paymentHash[:]),
		NumSatoshis: amount,
		Description: memo,
		Timestamp:   time.Now().Unix(),
		Expiry:      svc.Config.InvoiceExpirySeconds,
	}
	invoice, err := svc.AddOutgoingInvoice(ctx, userID, "", decoded, true, amount)
	if err != nil {
		return nil, err
	}

	sendRequest := &routerrpc.SendPaymentRequest{
		Dest:              mustDecodeHex(destination),
		Amt:               amount,
		PaymentHash:       paymentHash[:],
		FeeLimitSat:       feeLimit,
		TimeoutSeconds:    svc.Config.PaymentTimeoutSeconds,
		DestCustomRecords: map[uint64][]byte{keySendPreimageType: preimage},
	}
	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(svc.Config.PaymentTimeoutSeconds+10)*time.Second)
	defer cancel()

	payment, err := svc.LndClient.SendPayment(sendCtx, sendRequest)
	if err != nil {
		svc.Logger.Errorf("Keysend call failed user_id:%v r_hash:%s error:%v", userID, invoice.RHash, err)
		svc.markInvoiceError(context.Background(), invoice, err)
		return nil, fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}

	return svc.reconcilePaymentOutcome(ctx, invoice, payment, amount, feeLimit)
}

func mustDecodeHex(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
