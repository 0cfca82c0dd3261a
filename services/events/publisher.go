package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/tracing"
)

const (
	// ExchangeCrmstack fans conversation and sync events out to every
	// downstream consumer (notification service, analytics, UI push).
	ExchangeCrmstack   = "crmstack-events"
	ExchangeDeadLetter = "crmstack-dead-letter"

	QueueConversationEvents = "crmstack-conversation-events"
	DLQConversationEvents   = QueueConversationEvents + "-dlq"

	RoutingKeyDeadLetter = "dead-letter"

	DefaultMessageTTL       = 240 * time.Hour
	DefaultMaxRetries       = 3
	DefaultPublishTimeout   = 5 * time.Second
	DefaultReconnectBackoff = time.Second
	MaxReconnectBackoff     = 30 * time.Second
)

type RabbitMQPublisher struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
	confirms        chan amqp091.Confirmation
	url             string
	log             logger.Logger
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger) (interfaces.EventsPublisher, error) {
	publisher := &RabbitMQPublisher{
		url: rabbitmqURL,
		log: log,
	}

	if err := publisher.connect(); err != nil {
		return nil, err
	}

	return publisher, nil
}

func (r *RabbitMQPublisher) PublishConversationEvent(ctx context.Context, event dto.ConversationEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishConversationEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, event.ConversationID)
	span.LogKV("eventType", event.Type)

	return r.publishWithRetry(ctx, event)
}

func (r *RabbitMQPublisher) PublishSyncCompletedEvent(ctx context.Context, event dto.SyncCompletedEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishSyncCompletedEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("triggeredBy", event.TriggeredBy)

	return r.publishWithRetry(ctx, event)
}

func (r *RabbitMQPublisher) publishWithRetry(ctx context.Context, message interface{}) error {
	for attempt := 0; attempt < DefaultMaxRetries; attempt++ {
		err := r.publishWithConfirm(ctx, message)
		if err == nil {
			return nil
		}

		r.log.Warnf("Publish attempt %d failed: %v", attempt+1, err)
		if attempt < DefaultMaxRetries-1 {
			time.Sleep(time.Millisecond * 100 * time.Duration(attempt+1))
		}
	}

	return errors.New("failed to publish message after all retries")
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, message interface{}) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureConnectionAndChannel(); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	err = r.publishChannel.Publish(
		ExchangeCrmstack,
		"", // fanout ignores routing keys
		true,
		false,
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         jsonBody,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	select {
	case confirm := <-r.confirms:
		if !confirm.Ack {
			return errors.New("event was not confirmed by server")
		}
	case <-time.After(DefaultPublishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	if err := r.setupExchangesAndQueues(); err != nil {
		return errors.Wrap(err, "failed to setup exchanges and queues")
	}

	if err := r.setupPublishChannel(); err != nil {
		return errors.Wrap(err, "failed to setup publish channel")
	}

	go r.handleReconnection()

	return nil
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open publish channel")
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return errors.Wrap(err, "failed to enable publisher confirms")
	}

	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) setupExchangesAndQueues() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open channel for exchange setup")
	}
	defer channel.Close()

	err = channel.ExchangeDeclare(ExchangeDeadLetter, "direct", true, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "failed to declare dead letter exchange")
	}

	err = channel.ExchangeDeclare(ExchangeCrmstack, "fanout", true, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "failed to declare crmstack exchange")
	}

	_, err = channel.QueueDeclare(DLQConversationEvents, true, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to declare DLQ %s", DLQConversationEvents)
	}
	err = channel.QueueBind(DLQConversationEvents, RoutingKeyDeadLetter, ExchangeDeadLetter, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to bind DLQ %s", DLQConversationEvents)
	}

	args := map[string]interface{}{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		"x-message-ttl":             int64(DefaultMessageTTL.Milliseconds()),
	}
	_, err = channel.QueueDeclare(QueueConversationEvents, true, false, false, false, args)
	if err != nil {
		return errors.Wrapf(err, "failed to declare queue %s", QueueConversationEvents)
	}
	err = channel.QueueBind(QueueConversationEvents, "", ExchangeCrmstack, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to bind queue %s", QueueConversationEvents)
	}

	return nil
}

func (r *RabbitMQPublisher) ensureConnectionAndChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return errors.Wrap(err, "failed to establish connection")
		}
	}

	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return errors.Wrap(err, "failed to establish channel")
		}
	}

	return nil
}

func (r *RabbitMQPublisher) handleReconnection() {
	backoff := DefaultReconnectBackoff

	for {
		notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
		err := <-notifyClose
		r.log.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", err)

		for {
			err := r.connect()
			if err == nil {
				r.log.Info("Successfully reconnected to RabbitMQ")
				break
			}

			r.log.Errorf("Failed to reconnect: %v, retrying in %v", err, backoff)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > MaxReconnectBackoff {
				backoff = MaxReconnectBackoff
			}
		}

		backoff = DefaultReconnectBackoff
	}
}

func (r *RabbitMQPublisher) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	if r.publishChannel != nil {
		err = r.publishChannel.Close()
		if err != nil {
			r.log.Errorf("Error closing publish channel: %v", err)
		}
	}

	if r.connection != nil {
		if closeErr := r.connection.Close(); closeErr != nil {
			r.log.Errorf("Error closing connection: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}

	return err
}
