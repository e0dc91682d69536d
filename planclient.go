// Package planclient wires the planner API client: session storage, the
// refreshing HTTP client, session events and the planner services.
package planclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/planclient/adapters/events"
	"github.com/layer-3/planclient/client"
	"github.com/layer-3/planclient/config"
	"github.com/layer-3/planclient/service"
	"github.com/layer-3/planclient/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
)

// Options carries dependencies that do not come from configuration
type Options struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	HTTPClient *http.Client
}

// Planner bundles everything a planner front end needs
type Planner struct {
	Client     *client.Client
	Tokens     *tokenstore.Store
	Auth       *service.AuthService
	Activities *service.ActivityService
	Tasks      *service.TaskService
	Notes      *service.NoteService
	AI         *service.AIService

	subscriber message.Subscriber
	log        *slog.Logger
	closers    []func() error
}

// Open builds a Planner from c. Session events go through Redis streams when
// redis.url is set and through an in-process channel otherwise.
func Open(ctx context.Context, c config.Config, opts Options) (*Planner, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Planner{log: log}

	backend, closeStore, err := config.NewStoreBackend(ctx, c)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeStore)
	p.Tokens = tokenstore.New(backend, tokenstore.WithPrefix(c.Store.Prefix), tokenstore.WithLogger(log))

	publisher, err := p.openEvents(ctx, c)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	var metrics *client.Metrics
	if opts.Registerer != nil {
		metrics = client.NewMetrics(opts.Registerer)
	}

	p.Client, err = client.New(p.Tokens, client.Config{
		BaseURL:        c.API.BaseURL,
		Timeout:        c.API.Timeout,
		RefreshTimeout: c.API.RefreshTimeout,
		HTTPClient:     opts.HTTPClient,
		Logger:         log,
		Publisher:      publisher,
		Metrics:        metrics,
	})
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	p.Auth = service.NewAuthService(p.Client, publisher, log)
	p.Activities = service.NewActivityService(p.Client)
	p.Tasks = service.NewTaskService(p.Client)
	p.Notes = service.NewNoteService(p.Client)
	p.AI = service.NewAIService(p.Client, log)
	return p, nil
}

func (p *Planner) openEvents(ctx context.Context, c config.Config) (*events.WatermillPublisher, error) {
	logger := watermill.NewStdLogger(false, false)

	if c.Redis.URL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
		p.subscriber = pubSub
		p.closers = append(p.closers, pubSub.Close)
		return events.NewWatermillPublisher(pubSub), nil
	}

	redisClient, err := config.NewRedisClient(ctx, c.Redis.URL)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, redisClient.Close)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}
	p.closers = append(p.closers, publisher.Close)

	// No consumer group: every process gets every event
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: redisClient}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}
	p.subscriber = subscriber
	p.closers = append(p.closers, subscriber.Close)

	return events.NewWatermillPublisher(publisher), nil
}

// OnUnauthenticated calls handle whenever the session is dropped because it
// could not be recovered, until ctx is done.
func (p *Planner) OnUnauthenticated(ctx context.Context, handle func(events.UnauthenticatedEvent)) error {
	return events.SubscribeUnauthenticated(ctx, p.subscriber, p.log, handle)
}

// Close releases event and storage resources in reverse order of creation
func (p *Planner) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
