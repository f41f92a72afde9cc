package service

import (
	"context"
	"sync"
	"time"

	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/pubsub"
	"ai-dashboard-client/internal/supervisor"
	"ai-dashboard-client/pkg/events"
	"ai-dashboard-client/pkg/store"
)

const (
	bridgeQueueSize      = 512
	bridgePublishTimeout = 5 * time.Second
)

// EventPublisher forwards events off the process, e.g. to NATS.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventBridgeService copies session events off the event loop onto the
// in-process bus and, when configured, onto an external publisher.
type EventBridgeService struct {
	session   ISessionService
	publisher IPublisherService
	forward   EventPublisher
	clock     clock.Clock
	logger    logger.ILogger

	mu     sync.RWMutex
	closed bool
	queue  chan events.Event
	done   chan struct{}
	unsubs []pubsub.Unsubscribe
}

func NewEventBridgeService(session ISessionService, publisher IPublisherService, forward EventPublisher, clk clock.Clock, log logger.ILogger) *EventBridgeService {
	return &EventBridgeService{
		session:   session,
		publisher: publisher,
		forward:   forward,
		clock:     clk,
		logger:    log,
		queue:     make(chan events.Event, bridgeQueueSize),
		done:      make(chan struct{}),
	}
}

var transcriptEventTypes = map[store.ChangeKind]string{
	store.ChangePendingCleared: events.TypePendingCleared,
	store.ChangeHistoryLoaded:  events.TypeHistoryLoaded,
	store.ChangeCleared:        events.TypeTranscriptCleared,
	store.ChangeSideChannel:    events.TypeSideChannelUpdated,
}

func (b *EventBridgeService) Start() {
	b.unsubs = append(b.unsubs,
		b.session.SubscribeTranscript(b.onTranscript),
		b.session.OnConversationChange(func(id string) {
			b.enqueue(events.NewConversationChangedEvent(id, b.clock.Now()))
		}),
		b.session.SubscribeConnection(supervisor.EventStateChanged, func(e supervisor.Event) {
			b.enqueue(events.NewConnectionStateEvent(e.From.String(), e.To.String(), b.clock.Now()))
		}),
		b.session.SubscribeConnection(supervisor.EventReady, func(e supervisor.Event) {
			b.enqueue(events.NewConnectionReadyEvent(e.ConnectionID, b.clock.Now()))
		}),
		b.session.SubscribeConnection(supervisor.EventAuthFailed, func(e supervisor.Event) {
			b.enqueue(events.NewAuthFailedEvent(e.Code, e.Reason, b.clock.Now()))
		}),
		b.session.SubscribeConnection(supervisor.EventRetryScheduled, func(e supervisor.Event) {
			b.enqueue(events.NewRetryScheduledEvent(e.Attempt, e.Delay, b.clock.Now()))
		}),
		b.session.SubscribeConnection(supervisor.EventRetriesExhausted, func(e supervisor.Event) {
			b.enqueue(events.NewRetriesExhaustedEvent(e.Attempt, b.clock.Now()))
		}),
	)

	go b.run()
}

// Close stops accepting events and waits for the queue to drain.
func (b *EventBridgeService) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, unsub := range b.unsubs {
		unsub()
	}
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}

func (b *EventBridgeService) onTranscript(c store.Change) {
	now := b.clock.Now()
	switch c.Kind {
	case store.ChangeCommitted:
		m := c.Message
		b.enqueue(events.NewMessageCommittedEvent(m.ID, string(m.Type), m.Text, m.ResponderID, now))
	case store.ChangePending:
		p := c.Pending
		b.enqueue(events.NewPendingUpdatedEvent(p.ExchangeID, p.PartialText, p.Responder, now))
	default:
		if t, ok := transcriptEventTypes[c.Kind]; ok {
			b.enqueue(events.NewTranscriptEvent(t, now))
		}
	}
}

// enqueue runs on the event loop and never blocks it.
func (b *EventBridgeService) enqueue(e events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- e:
	default:
		b.logger.Warn("EventBridge", "Event queue full, dropping event", map[string]interface{}{"type": e.EventType()})
	}
}

func (b *EventBridgeService) run() {
	defer close(b.done)
	for e := range b.queue {
		b.deliver(e)
	}
}

func (b *EventBridgeService) deliver(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), bridgePublishTimeout)
	defer cancel()

	payload, err := events.Marshal(e)
	if err != nil {
		b.logger.Error("EventBridge", "Failed to encode event", map[string]interface{}{"type": e.EventType(), "error": err.Error()})
		return
	}
	if err := b.publisher.Publish(ctx, payload); err != nil {
		b.logger.Error("EventBridge", "Failed to publish event", map[string]interface{}{"type": e.EventType(), "error": err.Error()})
	}

	if b.forward == nil {
		return
	}
	if err := b.forward.Publish(ctx, e); err != nil {
		b.logger.Warn("EventBridge", "Failed to forward event", map[string]interface{}{"type": e.EventType(), "error": err.Error()})
	}
}
