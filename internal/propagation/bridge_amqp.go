package propagation

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPBridge рассылает изменения через fanout-обменник RabbitMQ. Каждый
// экземпляр слушает свою эксклюзивную автоудаляемую очередь.
type AMQPBridge struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      zerolog.Logger
}

func DialAMQP(url, exchange string, log zerolog.Logger) (*AMQPBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare %q: %w", exchange, err)
	}

	return &AMQPBridge{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		log:      log,
	}, nil
}

func (b *AMQPBridge) Publish(ctx context.Context, c Change) error {
	body, err := encodeChange(c)
	if err != nil {
		return err
	}
	return b.channel.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

func (b *AMQPBridge) Subscribe(ctx context.Context, handle func(Change)) error {
	// Отдельный канал под потребителя, публикация идёт через b.channel.
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // имя генерирует брокер
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("amqp queue bind: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	b.log.Info().Str("exchange", b.exchange).Str("queue", q.Name).Msg("amqp bridge subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp deliveries channel closed")
			}
			b.handleDelivery(d.Body, handle)
		}
	}
}

func (b *AMQPBridge) handleDelivery(body []byte, handle func(Change)) {
	c, err := decodeChange(body)
	if err != nil {
		b.log.Warn().Err(err).Msg("amqp bridge: skip malformed message")
		return
	}
	handle(c)
}

func (b *AMQPBridge) Close() error {
	if b == nil {
		return nil
	}
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			b.log.Warn().Err(err).Msg("amqp channel close")
		}
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
