package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

const DefaultExchange = "syllabridge.jobs"

// AMQPPublisher sends job events to a durable topic exchange, one routing
// key per state.
type AMQPPublisher struct {
	log      *logger.Logger
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPPublisher(log *logger.Logger, url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	p := &AMQPPublisher{log: log.With("service", "AMQPJobPublisher"), conn: conn, exchange: exchange}
	if _, err := p.channel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.log.Info("AMQP publisher ready", "exchange", exchange)
	return p, nil
}

// channel reopens the channel after a broker-side close.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(ev.State),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.JobID.String(),
			Timestamp:    ev.At,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}
