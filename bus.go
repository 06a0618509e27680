// Package typebus is an in-process, typed publish/subscribe dispatcher.
// Callers publish a strongly-typed message value and every callback
// registered for that exact message type is invoked synchronously, optionally
// filtered by a target object or target type.
//
// The bus resolves a message type to its handler registry through one of
// three interchangeable strategies (see the resolver package): map-backed
// (default, space-optimized), sparse (array-indexed, speed-optimized), and
// shared (one registry per type across every bus on the same store).
package typebus

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coachpo/typebus/config"
	"github.com/coachpo/typebus/errs"
	"github.com/coachpo/typebus/handler"
	"github.com/coachpo/typebus/resolver"
)

// Bus owns one resolver strategy and serializes registry creation under a
// single lock. Registry calls themselves happen outside the critical section;
// registries are safe for concurrent subscribe, unsubscribe, and publish.
type Bus struct {
	mu       sync.Mutex
	strategy resolver.Strategy

	async *dispatcher
	met   *busMetrics

	closeOnce sync.Once

	published      atomic.Uint64
	asyncPublished atomic.Uint64
	asyncDropped   atomic.Uint64
	subscriptions  atomic.Int64
}

// Option configures a Bus during construction.
type Option func(*busOptions)

type busOptions struct {
	strategy resolver.Strategy
	async    *config.AsyncConfig
}

// WithStrategy selects the resolver strategy; the default is a map strategy
// on the process-wide identity registry.
func WithStrategy(s resolver.Strategy) Option {
	return func(o *busOptions) {
		o.strategy = s
	}
}

// WithAsync enables the asynchronous dispatch path sized by cfg. A zero
// queue size falls back to the default queue depth.
func WithAsync(cfg config.AsyncConfig) Option {
	return func(o *busOptions) {
		o.async = &cfg
	}
}

// New constructs a bus. Without options it resolves through a fresh map
// strategy and dispatches synchronously only.
func New(opts ...Option) *Bus {
	var options busOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	b := new(Bus)
	b.strategy = options.strategy
	if b.strategy == nil {
		b.strategy = resolver.NewMap(nil)
	}
	b.met = newBusMetrics()
	if options.async != nil {
		b.async = newDispatcher(*options.async)
	}
	return b
}

// FromConfig builds a bus from a parsed configuration document.
func FromConfig(cfg config.Config) (*Bus, error) {
	if strings.TrimSpace(cfg.Strategy) == "" {
		cfg.Strategy = config.StrategyMap
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var strategy resolver.Strategy
	switch cfg.Strategy {
	case config.StrategyMap:
		strategy = resolver.NewMap(nil)
	case config.StrategySparse:
		strategy = resolver.NewSparse(nil)
	case config.StrategyShared:
		strategy = resolver.NewShared(nil)
	default:
		return nil, errs.New("bus/config", errs.CodeInvalid,
			errs.WithMessage("unknown strategy "+cfg.Strategy))
	}

	opts := []Option{WithStrategy(strategy)}
	if cfg.Async.QueueSize > 0 {
		opts = append(opts, WithAsync(cfg.Async))
	}
	return New(opts...), nil
}

// HandlerOf returns the handler registry for message type M, creating it on
// first use. Creation for a given type happens-before any later publish or
// subscribe on that type, enforced by the bus lock.
func HandlerOf[M any](b *Bus) *handler.Registry[M] {
	b.mu.Lock()
	h := resolver.HandlerOf[M](b.strategy)
	b.mu.Unlock()
	return h
}

// Publish delivers m synchronously to every callback subscribed to M, in
// registration order, on the caller's goroutine.
func Publish[M any](b *Bus, m M) {
	start := time.Now()
	h := HandlerOf[M](b)
	fanout := h.Len()
	h.Publish(m)
	b.published.Add(1)
	b.met.observePublish(context.Background(), typeName[M](), fanout, time.Since(start))
}

// PublishToTarget delivers m only to callbacks subscribed against exactly
// this target.
func PublishToTarget[M any](b *Bus, m M, target any) {
	start := time.Now()
	h := HandlerOf[M](b)
	fanout := h.Len()
	h.PublishToTarget(m, target)
	b.published.Add(1)
	b.met.observePublish(context.Background(), typeName[M](), fanout, time.Since(start))
}

// PublishToType delivers m only to callbacks whose subscription target has
// dynamic type T.
func PublishToType[M any, T any](b *Bus, m M) {
	start := time.Now()
	h := HandlerOf[M](b)
	fanout := h.Len()
	h.PublishToType(m, reflect.TypeFor[T]())
	b.published.Add(1)
	b.met.observePublish(context.Background(), typeName[M](), fanout, time.Since(start))
}

// Subscribe registers fn for every published M and returns its subscription
// token.
func Subscribe[M any](b *Bus, fn func(M)) handler.Subscription {
	id := HandlerOf[M](b).Subscribe(fn)
	if id != "" {
		b.subscriptions.Add(1)
		b.met.subscriberDelta(context.Background(), typeName[M](), 1)
	}
	return id
}

// SubscribeTo registers fn bound to target so that target-filtered publishes
// can select it.
func SubscribeTo[M any](b *Bus, target any, fn func(M)) handler.Subscription {
	id := HandlerOf[M](b).SubscribeTo(target, fn)
	if id != "" {
		b.subscriptions.Add(1)
		b.met.subscriberDelta(context.Background(), typeName[M](), 1)
	}
	return id
}

// Unsubscribe removes the subscription for M; unknown tokens are a no-op.
func Unsubscribe[M any](b *Bus, id handler.Subscription) {
	if HandlerOf[M](b).Unsubscribe(id) {
		b.subscriptions.Add(-1)
		b.met.subscriberDelta(context.Background(), typeName[M](), -1)
	}
}

// PublishAsync enqueues m for delivery on the bus's async workers. It returns
// an error when async dispatch is not configured, the queue stays saturated
// past the configured wait, or ctx is done first.
func PublishAsync[M any](ctx context.Context, b *Bus, m M) error {
	if b.async == nil {
		return errs.New("bus/async", errs.CodeInvalid,
			errs.WithMessage("async dispatch not configured"))
	}
	h := HandlerOf[M](b)
	if err := b.async.submit(ctx, func() { h.Publish(m) }); err != nil {
		b.asyncDropped.Add(1)
		b.met.observeDropped(context.Background(), typeName[M]())
		return err
	}
	b.asyncPublished.Add(1)
	return nil
}

// Close releases strategy state and stops the async dispatcher. Closing is
// mandatory for buses on the sparse strategy to return their per-type slots;
// it is a cheap no-op for the map and shared strategies. Close is idempotent.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.async != nil {
			b.async.close()
		}
		b.mu.Lock()
		err = b.strategy.Close()
		b.mu.Unlock()
	})
	return err
}

func typeName[M any]() string {
	return reflect.TypeFor[M]().String()
}
