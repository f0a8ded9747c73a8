package service

import (
	"context"
	"fmt"

	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
	"github.com/satstash/satstash/lib/security"
	"github.com/satstash/satstash/lib/tokens"
	"github.com/uptrace/bun"
)

// CreateUser creates the user row and its current account in one
// transaction. Login and password are generated when not supplied; the
// plaintext password is only ever returned here, the row stores a bcrypt
// hash.
func (svc *SatstashService) CreateUser(ctx context.Context, login string, password string) (user *models.User, err error) {
	user = &models.User{}

	if login != "" {
		user.Login = login
	} else {
		randLoginBytes, err := randBytesFromStr(20, alphaNumBytes)
		if err != nil {
			return nil, err
		}
		user.Login = string(randLoginBytes)
	}

	if password == "" {
		randPasswordBytes, err := randBytesFromStr(20, alphaNumBytes)
		if err != nil {
			return nil, err
		}
		password = string(randPasswordBytes)
	}
	user.Password = security.HashPassword(password)

	err = svc.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
			return err
		}
		account := models.Account{UserID: user.ID, Type: common.AccountTypeCurrent}
		if _, err := tx.NewInsert().Model(&account).Exec(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// return the plain text password, not the hash
	user.Password = password
	return user, nil
}

func (svc *SatstashService) FindUser(ctx context.Context, userId int64) (*models.User, error) {
	var user models.User

	err := svc.DB.NewSelect().Model(&user).Where("id = ?", userId).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (svc *SatstashService) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User

	err := svc.DB.NewSelect().Model(&user).Where("login = ?", login).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GenerateToken issues an access/refresh token pair, either from login
// credentials or from a previously issued refresh token.
func (svc *SatstashService) GenerateToken(ctx context.Context, login, password, inRefreshToken string) (accessToken, refreshToken string, err error) {
	var user *models.User

	switch {
	case login != "" || password != "":
		{
			if user, err = svc.FindUserByLogin(ctx, login); err != nil {
				return "", "", fmt.Errorf("bad auth")
			}
			if !security.VerifyPassword(user.Password, password) {
				return "", "", fmt.Errorf("bad auth")
			}
		}
	case inRefreshToken != "":
		{
			userId, err := tokens.ParseRefreshClaims(svc.Config.JWTSecret, inRefreshToken)
			if err != nil {
				return "", "", fmt.Errorf("bad auth")
			}
			if user, err = svc.FindUser(ctx, userId); err != nil {
				return "", "", fmt.Errorf("bad auth")
			}
		}
	default:
		{
			return "", "", fmt.Errorf("login and password or refresh token is required")
		}
	}

	accessToken, err = tokens.GenerateAccessToken(svc.Config.JWTSecret, svc.Config.JWTAccessTokenExpiry, user)
	if err != nil {
		return "", "", err
	}

	refreshToken, err = tokens.GenerateRefreshToken(svc.Config.JWTSecret, svc.Config.JWTRefreshTokenExpiry, user)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}
