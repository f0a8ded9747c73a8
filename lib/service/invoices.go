package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/uptrace/bun"
)

func (svc *SatstashService) DecodePaymentRequest(ctx context.Context, bolt11 string) (*lnrpc.PayReq, error) {
	return svc.LndClient.DecodeBolt11(ctx, bolt11)
}

// AddIncomingInvoice asks the node for a new invoice and registers it in
// the invoice directory so incoming settlements (and on-us sends) can be
// matched back to the user.
func (svc *SatstashService) AddIncomingInvoice(ctx context.Context, userID int64, amount int64, memo string) (*models.Invoice, error) {
	expiry := time.Duration(svc.Config.InvoiceExpirySeconds) * time.Second
	invoice := models.Invoice{
		Type:      common.InvoiceTypeIncoming,
		UserID:    userID,
		Amount:    amount,
		Memo:      memo,
		State:     common.InvoiceStateInitialized,
		ExpiresAt: bun.NullTime{Time: time.Now().Add(expiry)},
	}
	if _, err := svc.DB.NewInsert().Model(&invoice).Exec(ctx); err != nil {
		return nil, err
	}

	preimage, err := makePreimageHex()
	if err != nil {
		return nil, err
	}
	lnInvoice := lnrpc.Invoice{
		Memo:      memo,
		Value:     amount,
		RPreimage: preimage,
		Expiry:    svc.Config.InvoiceExpirySeconds,
	}
	lnInvoiceResult, err := svc.LndClient.AddInvoice(ctx, &lnInvoice)
	if err != nil {
		return nil, err
	}

	invoice.PaymentRequest = lnInvoiceResult.PaymentRequest
	invoice.RHash = hex.EncodeToString(lnInvoiceResult.RHash)
	invoice.AddIndex = lnInvoiceResult.AddIndex
	invoice.DestinationPubkeyHex = svc.LndClient.GetMainPubkey()
	invoice.Preimage = hex.EncodeToString(preimage)
	invoice.State = common.InvoiceStateOpen

	if err := svc.RegisterIncomingInvoice(ctx, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// RegisterIncomingInvoice persists the open invoice, enforcing that no
// other incoming invoice carries the same payment hash.
func (svc *SatstashService) RegisterIncomingInvoice(ctx context.Context, invoice *models.Invoice) error {
	count, err := svc.DB.NewSelect().
		Model((*models.Invoice)(nil)).
		Where("type = ? AND r_hash = ? AND id != ?", common.InvoiceTypeIncoming, invoice.RHash, invoice.ID).
		Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateInvoice
	}
	_, err = svc.DB.NewUpdate().Model(invoice).WherePK().Exec(ctx)
	if isUniqueViolation(err) {
		return ErrDuplicateInvoice
	}
	return err
}

// FindIncomingInvoice looks up the incoming invoice for a payment hash.
// Returns nil without error when there is none: the hash belongs to an
// external recipient.
func (svc *SatstashService) FindIncomingInvoice(ctx context.Context, rHash string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := svc.DB.NewSelect().
		Model(&invoice).
		Where("type = ? AND r_hash = ?", common.InvoiceTypeIncoming, rHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// AddOutgoingInvoice records the send attempt before anything touches the
// network, so a crash mid-payment leaves a row to reconcile against.
func (svc *SatstashService) AddOutgoingInvoice(ctx context.Context, userID int64, paymentRequest string, decodedPaymentRequest *lnrpc.PayReq, keysend bool, amount int64) (*models.Invoice, error) {
	invoice := models.Invoice{
		Type:                 common.InvoiceTypeOutgoing,
		UserID:               userID,
		Amount:               amount,
		Memo:                 decodedPaymentRequest.Description,
		PaymentRequest:       paymentRequest,
		DestinationPubkeyHex: decodedPaymentRequest.Destination,
		RHash:                decodedPaymentRequest.PaymentHash,
		Keysend:              keysend,
		State:                common.InvoiceStateInitialized,
		ExpiresAt:            bun.NullTime{Time: time.Unix(decodedPaymentRequest.Timestamp, 0).Add(time.Duration(decodedPaymentRequest.Expiry) * time.Second)},
	}
	if _, err := svc.DB.NewInsert().Model(&invoice).Exec(ctx); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (svc *SatstashService) markInvoiceError(ctx context.Context, invoice *models.Invoice, cause error) {
	invoice.State = common.InvoiceStateError
	invoice.ErrorMessage = cause.Error()
	if _, err := svc.DB.NewUpdate().Model(invoice).WherePK().Exec(ctx); err != nil {
		svc.Logger.Errorf("Failed to mark invoice as errored invoice_id:%v error:%v", invoice.ID, err)
	}
}
