// internal/infrastructure/messaging/rabbitmq/consumer.go
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"golang.org/x/sync/errgroup"
)

// Consumer serves reserve, fulfill and release requests from RabbitMQ and
// answers on each message's ReplyTo queue.
type Consumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	config     config.MessagingConfig
	dispatcher *Dispatcher
	log        logrus.FieldLogger
}

// NewConsumer dials the broker and opens a channel
func NewConsumer(cfg *config.Config, dispatcher *Dispatcher, log logrus.FieldLogger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.Messaging.RabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.Qos(cfg.Messaging.PrefetchCount, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set RabbitMQ prefetch: %w", err)
	}

	return &Consumer{
		conn:       conn,
		ch:         ch,
		config:     cfg.Messaging,
		dispatcher: dispatcher,
		log:        log,
	}, nil
}

// Run consumes the command queues until ctx is cancelled or a delivery
// channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	queues := map[Command]string{
		CommandReserve: c.config.ReserveQueue,
		CommandFulfill: c.config.FulfillQueue,
		CommandRelease: c.config.ReleaseQueue,
	}

	g, ctx := errgroup.WithContext(ctx)
	for command, queue := range queues {
		if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}

		deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to consume queue %s: %w", queue, err)
		}

		command, queue := command, queue
		g.Go(func() error {
			return c.serve(ctx, command, queue, deliveries)
		})
	}

	c.log.WithField("queues", queues).Info("RabbitMQ consumer started")
	return g.Wait()
}

func (c *Consumer) serve(ctx context.Context, command Command, queue string, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			c.handle(ctx, command, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, command Command, d amqp.Delivery) {
	reply := c.dispatcher.Handle(ctx, command, d.Body)

	entry := c.log.WithFields(logrus.Fields{
		"command":        command,
		"correlation_id": d.CorrelationId,
		"ok":             reply.OK,
	})
	if !reply.OK {
		entry = entry.WithField("code", reply.Code)
	}
	entry.Debug("Inventory command handled")

	// The command is committed at this point; redelivery would repeat it.
	if d.ReplyTo != "" {
		if err := c.publishReply(ctx, d, reply); err != nil {
			c.log.WithError(err).WithField("reply_to", d.ReplyTo).Error("Failed to publish reply")
		}
	}

	if err := d.Ack(false); err != nil {
		c.log.WithError(err).Warn("Failed to ack delivery")
	}
}

func (c *Consumer) publishReply(ctx context.Context, d amqp.Delivery, reply Reply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}

	return c.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Body:          body,
	})
}

// Close closes the channel and connection
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
