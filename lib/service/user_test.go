package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserGeneratesCredentials(t *testing.T) {
	svc := newTestService(t, newLndMock())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, user.Login)
	assert.NotEmpty(t, user.Password)

	// the current account exists right away
	assert.Equal(t, int64(0), userBalance(t, svc, user.ID))
}

func TestGenerateToken(t *testing.T) {
	svc := newTestService(t, newLndMock())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secretpassword")
	require.NoError(t, err)

	accessToken, refreshToken, err := svc.GenerateToken(ctx, user.Login, "secretpassword", "")
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
	assert.NotEmpty(t, refreshToken)

	_, _, err = svc.GenerateToken(ctx, user.Login, "wrongpassword", "")
	assert.Error(t, err)

	// a refresh token mints a fresh pair
	newAccess, newRefresh, err := svc.GenerateToken(ctx, "", "", refreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	// an access token is not accepted in place of a refresh token
	_, _, err = svc.GenerateToken(ctx, "", "", accessToken)
	assert.Error(t, err)
}

func TestTransactionsView(t *testing.T) {
	svc := newTestService(t, newLndMock())
	ctx := context.Background()
	alice := createTestUser(t, svc)
	fundUser(t, svc, alice.ID, 300)
	require.NoError(t, svc.AddEarn(ctx, alice.ID, []string{"welcome"}))

	transactions, err := svc.TransactionsFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	// newest first
	assert.Equal(t, "Earn reward", transactions[0].Description)
	assert.Equal(t, int64(100), transactions[0].Amount)
	assert.Equal(t, "Payment received", transactions[1].Description)
	assert.Equal(t, int64(300), transactions[1].Amount)
}
