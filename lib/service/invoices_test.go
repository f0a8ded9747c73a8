package service_test

import (
	"context"
	"testing"

	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/satstash/satstash/lib/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIncomingInvoice(t *testing.T) {
	svc := newTestService(t, newLndMock())
	ctx := context.Background()
	user := createTestUser(t, svc)

	invoice, err := svc.AddIncomingInvoice(ctx, user.ID, 250, "beer")
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStateOpen, invoice.State)
	assert.Equal(t, int64(250), invoice.Amount)
	assert.NotEmpty(t, invoice.RHash)
	assert.NotEmpty(t, invoice.PaymentRequest)

	// the invoice directory must resolve the hash to the owner
	found, err := svc.FindIncomingInvoice(ctx, invoice.RHash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.UserID)
}

func TestFindIncomingInvoiceUnknownHash(t *testing.T) {
	svc := newTestService(t, newLndMock())

	found, err := svc.FindIncomingInvoice(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDuplicateInvoiceHashRejected(t *testing.T) {
	svc := newTestService(t, newLndMock())
	ctx := context.Background()
	user := createTestUser(t, svc)

	invoice, err := svc.AddIncomingInvoice(ctx, user.ID, 100, "first")
	require.NoError(t, err)

	duplicate := &models.Invoice{
		Type:   common.InvoiceTypeIncoming,
		UserID: user.ID,
		Amount: 100,
		State:  common.InvoiceStateInitialized,
	}
	_, err = svc.DB.NewInsert().Model(duplicate).Exec(ctx)
	require.NoError(t, err)

	duplicate.RHash = invoice.RHash
	duplicate.State = common.InvoiceStateOpen
	err = svc.RegisterIncomingInvoice(ctx, duplicate)
	assert.ErrorIs(t, err, service.ErrDuplicateInvoice)
}
