package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sonaged-backend/internal/intake"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull = errors.New("conversation queue is full")
	ErrStopped   = errors.New("dispatcher stopped")
)

// Handler processes one normalized event. *intake.Engine satisfies it.
type Handler interface {
	Handle(ctx context.Context, in intake.Inbound) ([]intake.Reply, error)
}

// ReplyFunc delivers replies back over the transport the event came from.
type ReplyFunc func(ctx context.Context, replies []intake.Reply) error

type Options struct {
	// QueueSize bounds pending events per identity.
	QueueSize int
	// JobTimeout bounds one Handle call plus reply delivery.
	JobTimeout time.Duration
}

type job struct {
	in    intake.Inbound
	reply ReplyFunc
}

// Dispatcher hands events from transports to the handler. Every identity
// gets its own mailbox drained by a single goroutine, so events of one
// conversation run in arrival order and never concurrently, while other
// conversations keep moving. A mailbox goroutine exits once its queue is empty.
type Dispatcher struct {
	handler Handler
	opts    Options
	base    context.Context

	mu        sync.Mutex
	mailboxes map[string]chan job
	stopped   bool
	wg        sync.WaitGroup
}

func New(ctx context.Context, handler Handler, opts Options) *Dispatcher {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	return &Dispatcher{
		handler:   handler,
		opts:      opts,
		base:      ctx,
		mailboxes: make(map[string]chan job),
	}
}

// Submit enqueues an event without blocking.
func (d *Dispatcher) Submit(in intake.Inbound, reply ReplyFunc) error {
	if in.Identity == "" {
		return errors.New("event without conversation identity")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrStopped
	}

	mb, ok := d.mailboxes[in.Identity]
	if !ok {
		mb = make(chan job, d.opts.QueueSize)
		d.mailboxes[in.Identity] = mb
		d.wg.Add(1)
		go d.drain(in.Identity, mb)
	}

	select {
	case mb <- job{in: in, reply: reply}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, in.Identity)
	}
}

// Stop rejects new events and waits for queued ones to finish or ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of identities with queued or running events.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

func (d *Dispatcher) drain(identity string, mb chan job) {
	defer d.wg.Done()

	for {
		// The empty check and the delete happen under the lock Submit takes,
		// so no event can land in a mailbox that is going away.
		d.mu.Lock()
		select {
		case j := <-mb:
			d.mu.Unlock()
			d.process(j)
		default:
			delete(d.mailboxes, identity)
			d.mu.Unlock()
			return
		}
	}
}

func (d *Dispatcher) process(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("identity", j.in.Identity).Msg("❌ Intake handler panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(d.base, d.opts.JobTimeout)
	defer cancel()

	replies, err := d.handler.Handle(ctx, j.in)
	if err != nil {
		log.Error().Err(err).Str("identity", j.in.Identity).Str("channel", j.in.Channel).Msg("❌ Intake event failed")
	}

	if len(replies) == 0 || j.reply == nil {
		return
	}
	if err := j.reply(ctx, replies); err != nil {
		log.Warn().Err(err).Str("identity", j.in.Identity).Str("channel", j.in.Channel).Msg("⚠️  Failed to deliver reply")
	}
}
