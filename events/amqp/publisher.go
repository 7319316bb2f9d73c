// Package amqp publishes posted interest to a RabbitMQ exchange so other
// services (statements, notifications) can follow the ledger without polling.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

// RoutingKeyAccrual is the routing key of InterestPosted messages.
const RoutingKeyAccrual = "interest.posted"

const publishTimeout = 5 * time.Second

// InterestPosted is the message body, one per posted interest transaction.
type InterestPosted struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Category      string    `json:"category"`
	Amount        string    `json:"amount"`
	Days          int       `json:"days"`
	AnnualRate    string    `json:"annual_rate"`
	Principal     string    `json:"principal"`
	PostedAt      time.Time `json:"posted_at"`
}

func NewInterestPosted(ev interest.AccrualEvent, tx generic.Transaction) InterestPosted {
	return InterestPosted{
		TransactionID: string(tx.ID),
		AccountID:     string(ev.AccountID),
		Category:      string(ev.Category),
		Amount:        ev.Amount.StringFixed(generic.CentPlaces),
		Days:          ev.Days,
		AnnualRate:    ev.Rate.String(),
		Principal:     ev.Principal.String(),
		PostedAt:      tx.Date.UTC(),
	}
}

// channel is the slice of *amqp091.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements interest.EventPublisher.
type Publisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	log      logrus.FieldLogger
}

var _ interest.EventPublisher = (*Publisher)(nil)

// Dial connects to url and declares a durable topic exchange.
func Dial(url, exchange string, log logrus.FieldLogger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p := newPublisher(ch, exchange, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, log logrus.FieldLogger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{channel: ch, exchange: exchange, log: log}
}

func (p *Publisher) PublishAccrual(ctx context.Context, ev interest.AccrualEvent, tx generic.Transaction) error {
	body, err := json.Marshal(NewInterestPosted(ev, tx))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,        // exchange
		RoutingKeyAccrual, // routing key
		false,             // mandatory
		false,             // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    string(tx.ID),
			Timestamp:    tx.Date,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"account_id":     ev.AccountID,
		"transaction_id": tx.ID,
		"exchange":       p.exchange,
	}).Debug("published interest event")
	return nil
}

func (p *Publisher) Close() error {
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
