package service_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/satstash/satstash/db"
	"github.com/satstash/satstash/db/migrations"
	"github.com/satstash/satstash/db/models"
	"github.com/satstash/satstash/lib/logging"
	"github.com/satstash/satstash/lib/service"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
)

var testDBCounter int64

func newTestService(t *testing.T, lndMock *lndMock) *service.SatstashService {
	t.Helper()
	n := atomic.AddInt64(&testDBCounter, 1)
	c := &service.Config{
		DatabaseUri:           fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n),
		JWTSecret:             []byte("SECRET"),
		JWTAccessTokenExpiry:  3600,
		JWTRefreshTokenExpiry: 3600,
		MaxFeeAmount:          5000,
		PaymentTimeoutSeconds: 2,
		InvoiceExpirySeconds:  86400,
		RewardCatalog:         service.RewardCatalogMap{"welcome": 100, "backup": 50},
	}

	dbConn, err := db.Open(c)
	require.NoError(t, err)
	t.Cleanup(func() { dbConn.Close() })

	ctx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return &service.SatstashService{
		Config:      c,
		DB:          dbConn,
		LndClient:   lndMock,
		Logger:      logging.Logger(""),
		EventPubSub: service.NewPubsub(),
	}
}

func createTestUser(t *testing.T, svc *service.SatstashService) *models.User {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), "", "")
	require.NoError(t, err)
	return user
}

// fundUser runs the full incoming flow: issue an invoice and feed the
// settlement update through the reconciler.
func fundUser(t *testing.T, svc *service.SatstashService, userID int64, amount int64) {
	t.Helper()
	ctx := context.Background()
	invoice, err := svc.AddIncomingInvoice(ctx, userID, amount, "funding")
	require.NoError(t, err)

	rawHash, err := hex.DecodeString(invoice.RHash)
	require.NoError(t, err)
	err = svc.ProcessInvoiceUpdate(ctx, &lnrpc.Invoice{
		RHash:      rawHash,
		State:      lnrpc.Invoice_SETTLED,
		AmtPaidSat: amount,
		SettleDate: time.Now().Unix(),
	})
	require.NoError(t, err)

	balance, err := svc.CurrentUserBalance(ctx, userID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, balance, amount)
}

func assertLedgerBalanced(t *testing.T, svc *service.SatstashService) {
	t.Helper()
	require.NoError(t, svc.CheckLedgerBalance(context.Background()))
}

func userBalance(t *testing.T, svc *service.SatstashService, userID int64) int64 {
	t.Helper()
	balance, err := svc.CurrentUserBalance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

// waitFor polls until the condition holds or the test deadline expires.
func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
