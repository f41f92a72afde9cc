package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"ai-dashboard-client/internal/config"
	"ai-dashboard-client/internal/history"
	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/repository/contract"
	"ai-dashboard-client/internal/repository/file"
	"ai-dashboard-client/internal/repository/memory"
	redisRepo "ai-dashboard-client/internal/repository/redis"
	"ai-dashboard-client/internal/service"
	"ai-dashboard-client/internal/supervisor"
	"ai-dashboard-client/internal/websocket"

	pktNats "ai-dashboard-client/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Logger logger.ILogger

	SessionService   service.ISessionService
	EventBridge      *service.EventBridgeService
	ConsumerService  service.IConsumerService
	PublisherService service.IPublisherService

	pubSub  *gochannel.GoChannel
	rdb     *redis.Client
	natsPub *pktNats.Publisher
}

type Option func(*options)

type options struct {
	store     contract.ISessionStore
	logger    logger.ILogger
	wire      logger.ILogger
	clock     clock.Clock
	transport supervisor.Transport
}

// WithSessionStore overrides the store selected by configuration.
func WithSessionStore(store contract.ISessionStore) Option {
	return func(o *options) { o.store = store }
}

func WithLogger(log logger.ILogger) Option {
	return func(o *options) { o.logger = log }
}

func WithWireLogger(log logger.ILogger) Option {
	return func(o *options) { o.wire = log }
}

func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

func WithTransport(t supervisor.Transport) Option {
	return func(o *options) { o.transport = t }
}

func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Core Facades
	sysLogger := o.logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	}
	wireLogger := o.wire
	if wireLogger == nil {
		wireLogger = logger.NewIsolatedLogger(cfg.App.WireLogFilePath)
	}
	clk := o.clock
	if clk == nil {
		clk = clock.Real()
	}

	c := &Container{Logger: sysLogger}

	// 2. Session Storage
	store := o.store
	if store == nil {
		var err error
		store, err = c.newSessionStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	// 3. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	c.pubSub = gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 64,
			// Renderers must see events in publish order.
			BlockPublishUntilSubscriberAck: true,
		},
		watermillLogger,
	)
	c.PublisherService = service.NewPublisherService(cfg.Events.Topic, c.pubSub)
	c.ConsumerService = service.NewConsumerService(c.pubSub, cfg.Events.Topic, sysLogger)

	// NATS forwarding is optional
	var forward service.EventPublisher
	if cfg.Events.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.Events.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			c.natsPub = natsPub
			forward = natsPub
		}
	}

	// 4. Services
	transport := o.transport
	if transport == nil {
		transport = websocket.NewDialer(cfg.Reconnect.HandshakeTimeout, sysLogger, wireLogger)
	}

	c.SessionService = service.NewSessionService(service.SessionOptions{
		Gateway:   cfg.Gateway,
		Reconnect: cfg.Reconnect,
		Exchange:  cfg.Exchange,
		Transport: transport,
		Store:     store,
		History:   history.NewClient(cfg.Gateway.APIBaseURL, cfg.Gateway.Token),
		Clock:     clk,
		Logger:    sysLogger,
	})

	c.EventBridge = service.NewEventBridgeService(c.SessionService, c.PublisherService, forward, clk, sysLogger)
	c.EventBridge.Start()

	return c, nil
}

func (c *Container) newSessionStore(cfg config.StoreConfig) (contract.ISessionStore, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewSessionRepository(cfg.Key), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.RedisURL}
		}
		c.rdb = redis.NewClient(opt)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			c.rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return redisRepo.NewSessionRepository(c.rdb, cfg.Key), nil
	default:
		return file.NewSessionRepository(cfg.FilePath, cfg.Key), nil
	}
}

// Close shuts the session down and releases every connection the
// container opened.
func (c *Container) Close() error {
	err := c.SessionService.Close()
	c.EventBridge.Close()
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	c.pubSub.Close()
	c.Logger.Sync()
	return err
}
