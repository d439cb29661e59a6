package queue

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
)

const retryHeader = "x-retry-count"

// AMQPQueue maps topics onto durable RabbitMQ queues on the default exchange.
type AMQPQueue struct {
	conn      *amqp.Connection
	publishMu sync.Mutex
	publishCh *amqp.Channel
	logger    logger.Logger
	wg        sync.WaitGroup

	MaxRetries int
}

func DialAMQP(url string, log logger.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{conn: conn, publishCh: ch, logger: log, MaxRetries: 3}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retryCount int) error {
	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	if err := declare(q.publishCh, topic); err != nil {
		return err
	}
	return q.publishCh.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retryCount)},
		Body:         body,
	})
}

// Subscribe consumes topic on its own channel. A failed delivery is republished with an
// incremented retry header until MaxRetries, then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer ch.Close()
		for d := range msgs {
			q.handleDelivery(topic, d, handler)
		}
	}()
	return nil
}

func (q *AMQPQueue) handleDelivery(topic string, d amqp.Delivery, handler func(body []byte) error) {
	err := handler(d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retryCount := headerInt(d.Headers, retryHeader)
	fields := map[string]interface{}{
		"topic":   topic,
		"attempt": retryCount + 1,
		"error":   err,
	}
	if retryCount >= q.MaxRetries {
		q.logger.Error("Job permanently failed", fields)
		d.Ack(false)
		return
	}

	q.logger.Warn("Job failed, requeueing", fields)
	if pubErr := q.publish(topic, d.Body, retryCount+1); pubErr != nil {
		q.logger.Error("Failed to requeue job", map[string]interface{}{"topic": topic, "error": pubErr})
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func headerInt(headers amqp.Table, key string) int {
	switch v := headers[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	default:
		return 0
	}
}

// Close stops consumers and closes the connection.
func (q *AMQPQueue) Close() error {
	q.publishMu.Lock()
	q.publishCh.Close()
	q.publishMu.Unlock()

	err := q.conn.Close()
	q.wg.Wait()
	return err
}

var _ Queue = (*AMQPQueue)(nil)
