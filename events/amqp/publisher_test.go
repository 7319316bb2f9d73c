package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp091.Publishing
	err           error
	closed        bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func sample() (interest.AccrualEvent, generic.Transaction) {
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	ev := interest.AccrualEvent{
		AccountID: "maya",
		Category:  generic.CategorySavings,
		Amount:    generic.MustParseDecimal("3.71"),
		Days:      30,
		Rate:      generic.MustParseDecimal("0.045"),
		Principal: generic.MustParseDecimal("1000"),
	}
	tx := generic.Transaction{ID: "tx-1", AccountID: "maya", Date: at}
	return ev, tx
}

func TestPublishAccrual(t *testing.T) {
	log, _ := test.NewNullLogger()
	ch := &fakeChannel{}
	p := newPublisher(ch, "savings", log)

	ev, tx := sample()
	require.NoError(t, p.PublishAccrual(context.Background(), ev, tx))

	assert.Equal(t, "savings", ch.exchange)
	assert.Equal(t, RoutingKeyAccrual, ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "tx-1", ch.msg.MessageId)

	var body InterestPosted
	require.NoError(t, json.Unmarshal(ch.msg.Body, &body))
	assert.Equal(t, "maya", body.AccountID)
	assert.Equal(t, "savings", body.Category)
	assert.Equal(t, "3.71", body.Amount)
	assert.Equal(t, 30, body.Days)
	assert.Equal(t, "0.045", body.AnnualRate)
}

func TestPublishAccrual_Error(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "savings", nil)

	ev, tx := sample()
	err := p.PublishAccrual(context.Background(), ev, tx)
	assert.ErrorContains(t, err, "channel closed")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
