package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
)

// Delivery status values reported to API callers.
const (
	StatusSent    = "sent"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

var errDispatcherClosed = errors.New("dispatcher closed")

// Delivery is the eventual outcome of one dispatched message.
type Delivery struct {
	done chan struct{}
	err  error
}

func newDelivery() *Delivery {
	return &Delivery{done: make(chan struct{})}
}

func failedDelivery(err error) *Delivery {
	d := newDelivery()
	d.resolve(err)
	return d
}

func (d *Delivery) resolve(err error) {
	if err != nil {
		err = fmt.Errorf("%w: %v", apierr.ErrMailDeliveryFailed, err)
	}
	d.err = err
	close(d.done)
}

// Done is closed once the outcome is known.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the delivery resolves or ctx ends. A ctx error means the
// outcome is still unknown.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status waits up to wait and reports sent, failed or pending.
func (d *Delivery) Status(wait time.Duration) (string, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-d.done:
	case <-timer.C:
		return StatusPending, nil
	}
	if d.err != nil {
		return StatusFailed, d.err
	}
	return StatusSent, nil
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type job struct {
	msg      Message
	delivery *Delivery
}

// Dispatcher sends messages on background workers so request handlers never
// block on the relay.
type Dispatcher struct {
	sender  Sender
	cfg     DispatcherConfig
	logger  *zap.Logger
	queue   chan job
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan job, cfg.QueueSize),
		baseCtx: ctx,
		cancel:  cancel,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Dispatch queues msg and returns immediately. A full queue or a closed
// dispatcher resolves the delivery as failed right away.
func (d *Dispatcher) Dispatch(msg Message) *Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return d.fail(msg, errDispatcherClosed)
	}

	delivery := newDelivery()
	select {
	case d.queue <- job{msg: msg, delivery: delivery}:
		return delivery
	default:
		return d.fail(msg, errors.New("mail queue is full"))
	}
}

func (d *Dispatcher) fail(msg Message, err error) *Delivery {
	d.logger.Error("Mail delivery failed",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Error(err))
	return failedDelivery(err)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for j := range d.queue {
		ctx, cancel := context.WithTimeout(d.baseCtx, d.cfg.SendTimeout)
		err := d.sender.Send(ctx, j.msg)
		cancel()

		if err != nil {
			d.logger.Error("Mail delivery failed",
				zap.String("to", j.msg.To),
				zap.String("subject", j.msg.Subject),
				zap.Error(err))
		}
		j.delivery.resolve(err)
	}
}

// Close stops intake and waits for queued messages to be sent. When ctx ends
// first, in-flight sends are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
