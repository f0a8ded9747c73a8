package service

import (
	"sync"
)

// Pubsub is the in-process fanout for notification events. Topics are the
// user id (per-user streams) and the global notifications topic consumed
// by the webhook forwarder.
type Pubsub struct {
	mu     sync.RWMutex
	topics map[string]map[string]chan NotificationEvent
}

func NewPubsub() *Pubsub {
	return &Pubsub{
		topics: map[string]map[string]chan NotificationEvent{},
	}
}

func (ps *Pubsub) Subscribe(topic string, ch chan NotificationEvent) (subscriptionId string, err error) {
	id, err := randBytesFromStr(16, alphaNumBytes)
	if err != nil {
		return "", err
	}
	subscriptionId = string(id)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.topics[topic] == nil {
		ps.topics[topic] = map[string]chan NotificationEvent{}
	}
	ps.topics[topic][subscriptionId] = ch
	return subscriptionId, nil
}

func (ps *Pubsub) Unsubscribe(subscriptionId string, topic string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.topics[topic], subscriptionId)
	if len(ps.topics[topic]) == 0 {
		delete(ps.topics, topic)
	}
}

func (ps *Pubsub) Publish(topic string, event NotificationEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, ch := range ps.topics[topic] {
		ch <- event
	}
}
