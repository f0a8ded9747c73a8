package service

import (
	"sync"

	"github.com/satstash/satstash/lnd"
	"github.com/satstash/satstash/rabbitmq"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

type SatstashService struct {
	Config         *Config
	DB             *bun.DB
	LndClient      lnd.LightningClientWrapper
	Logger         *lecho.Logger
	RabbitMQClient rabbitmq.Client
	EventPubSub    *Pubsub

	userLocks sync.Map
}

// lockUser serializes payments per payer. The lock is held across the
// balance read, the (possibly slow) node call and the ledger append so
// that two concurrent sends cannot both pass the balance check.
func (svc *SatstashService) lockUser(userID int64) func() {
	v, _ := svc.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
