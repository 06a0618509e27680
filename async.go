package typebus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/coachpo/typebus/config"
	"github.com/coachpo/typebus/errs"
)

const (
	defaultQueueSize   = 64
	defaultEnqueueWait = 100 * time.Millisecond

	enqueueBackoffInitial = time.Millisecond
	enqueueBackoffMax     = 20 * time.Millisecond
)

type task func()

// dispatcher drains a bounded queue onto a capped worker pool. Tasks still
// queued when the dispatcher closes are dropped.
type dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue   chan task
	workers *concpool.Pool
	limiter *rate.Limiter
	wait    time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newDispatcher(cfg config.AsyncConfig) *dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	wait := cfg.EnqueueWait.Std()
	if wait <= 0 {
		wait = defaultEnqueueWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := new(dispatcher)
	d.ctx = ctx
	d.cancel = cancel
	d.queue = make(chan task, queueSize)
	d.workers = concpool.New().WithMaxGoroutines(cfg.Workers.Resolve())
	d.wait = wait
	d.done = make(chan struct{})
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			d.workers.Wait()
			return
		case t := <-d.queue:
			if d.limiter != nil {
				if err := d.limiter.Wait(d.ctx); err != nil {
					d.workers.Wait()
					return
				}
			}
			d.workers.Go(t)
		}
	}
}

// submit enqueues t, retrying a saturated queue with exponential backoff
// until the configured wait elapses.
func (d *dispatcher) submit(ctx context.Context, t task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.ctx.Done():
		return errs.New("bus/async", errs.CodeClosed, errs.WithMessage("dispatcher closed"))
	case d.queue <- t:
		return nil
	default:
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = enqueueBackoffInitial
	backoffCfg.MaxInterval = enqueueBackoffMax
	deadline := time.Now().Add(d.wait)

	for {
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop || time.Now().Add(sleep).After(deadline) {
			log.Printf("typebus: async queue full; rejecting publish after %s", d.wait)
			return errs.New("bus/async", errs.CodeUnavailable, errs.WithMessage("async queue full"))
		}
		select {
		case <-d.ctx.Done():
			return errs.New("bus/async", errs.CodeClosed, errs.WithMessage("dispatcher closed"))
		case <-ctx.Done():
			return fmt.Errorf("enqueue context: %w", ctx.Err())
		case d.queue <- t:
			return nil
		case <-time.After(sleep):
		}
	}
}

// close stops intake, waits for in-flight deliveries, and drops anything
// still queued.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
	})
}
