package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/satstash/satstash/common"
	"github.com/satstash/satstash/db/models"
)

// AddEarn credits onboarding rewards to the user. Each reward id is paid
// out at most once per user: a repeat request is a silent no-op, unknown
// reward ids are skipped with a warning. The credit is balanced against
// the rewards budget account.
func (svc *SatstashService) AddEarn(ctx context.Context, userID int64, rewardIDs []string) error {
	userAccount, err := svc.AccountFor(ctx, common.AccountTypeCurrent, userID)
	if err != nil {
		return err
	}
	rewardsAccount, err := svc.SystemAccount(ctx, common.AccountTypeRewards)
	if err != nil {
		return err
	}

	for _, rewardID := range rewardIDs {
		amount, ok := svc.Config.RewardCatalog[rewardID]
		if !ok {
			svc.Logger.Infof("Unknown reward id, skipping user_id:%v reward_id:%s", userID, rewardID)
			continue
		}

		issued, err := svc.rewardIssued(ctx, userID, rewardID)
		if err != nil {
			return err
		}
		if issued {
			continue
		}

		rHash := earnCorrelationHash(userID, rewardID)
		entries := []*models.LedgerEntry{
			{
				AccountID: userAccount.ID,
				UserID:    userID,
				Amount:    amount,
				RHash:     rHash,
				EntryType: common.EntryTypeOnboardingEarn,
				State:     common.EntryStateSettled,
				RewardID:  rewardID,
				Memo:      "Earn reward: " + rewardID,
			},
			{
				AccountID: rewardsAccount.ID,
				Amount:    -amount,
				RHash:     rHash,
				EntryType: common.EntryTypeOnboardingEarn,
				State:     common.EntryStateSettled,
			},
		}
		if err := svc.AppendBalanced(ctx, entries); err != nil {
			// the partial unique index on (user_id, reward_id) decides
			// races between concurrent earn requests
			if isUniqueViolation(err) {
				continue
			}
			return err
		}
		svc.publishNotification(NotificationEvent{
			UserID: userID,
			Type:   common.NotificationPaymentReceived,
			Amount: amount,
			Memo:   "Earn reward: " + rewardID,
			RHash:  rHash,
		})
	}
	return nil
}

func (svc *SatstashService) rewardIssued(ctx context.Context, userID int64, rewardID string) (bool, error) {
	count, err := svc.DB.NewSelect().
		Model((*models.LedgerEntry)(nil)).
		Where("user_id = ? AND reward_id = ?", userID, rewardID).
		Count(ctx)
	return count > 0, err
}

func earnCorrelationHash(userID int64, rewardID string) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("earn:%d:%s", userID, rewardID)))
	return hex.EncodeToString(digest[:])
}
