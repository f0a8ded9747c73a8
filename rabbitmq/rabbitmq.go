package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client publishes wallet notification events to an exchange so external
// consumers (push notification workers, analytics) can react to them.
type Client interface {
	PublishNotification(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

type DefaultClient struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

type ClientOption func(client *DefaultClient)

func WithExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.exchange = exchange
	}
}

func Dial(uri string, options ...ClientOption) (*DefaultClient, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	client := &DefaultClient{
		conn:     conn,
		channel:  channel,
		exchange: "wallet_notifications",
	}
	for _, opt := range options {
		opt(client)
	}

	err = channel.ExchangeDeclare(
		client.exchange,
		"topic",
		// durable
		true,
		// auto-delete
		false,
		// internal
		false,
		// no-wait
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (client *DefaultClient) PublishNotification(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return client.channel.PublishWithContext(ctx,
		client.exchange,
		routingKey,
		// mandatory
		false,
		// immediate
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (client *DefaultClient) Close() error {
	if err := client.channel.Close(); err != nil {
		return err
	}
	return client.conn.Close()
}
