package service

import (
	"context"

	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventHandler receives decoded session events in publish order.
type EventHandler func(ctx context.Context, event events.BaseEvent)

type IConsumerService interface {
	Consume(ctx context.Context, handler EventHandler) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	logger    logger.ILogger
}

func NewConsumerService(pubSub *gochannel.GoChannel, topicName string, log logger.ILogger) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		logger:    log,
	}
}

// Consume subscribes to the session topic and hands each event to handler
// on a single goroutine until ctx is done.
func (cs *consumerService) Consume(ctx context.Context, handler EventHandler) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg, handler)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message, handler EventHandler) {
	event, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("Consumer", "Failed to decode event", map[string]interface{}{
			"message_uuid": msg.UUID,
			"error":        err.Error(),
		})
		// Ack invalid messages to prevent redelivery
		msg.Ack()
		return
	}

	handler(ctx, event)
	msg.Ack()
}
