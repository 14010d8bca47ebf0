// Package mailer renders transactional emails and delivers them in the
// background.
package mailer

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
)

// Dispatcher queues messages and delivers them on a single worker, so that
// request handlers never wait on the email provider.
type Dispatcher struct {
	sender Sender
	log    logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

func NewDispatcher(sender Sender, size int, log logging.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		sender: sender,
		log:    log.With("module", "mailer"),
		queue:  make(chan Message, size),
		done:   make(chan struct{}),
	}
}

// Enqueue schedules msg without blocking. It reports false when the queue
// is full or closed; the message is then dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn(ctx, "mail queue closed, dropping email", "to", msg.To, "subject", msg.Subject)
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.log.Warn(ctx, "mail queue full, dropping email", "to", msg.To, "subject", msg.Subject)
		return false
	}
}

// Run delivers queued messages until Close has been called and the queue
// is drained, or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if err := d.sender.Send(ctx, msg); err != nil {
		d.log.Error(ctx, "email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}
	d.log.Debug(ctx, "email sent", "to", msg.To, "subject", msg.Subject)
}

// Close stops accepting messages. Pending ones are still delivered by Run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}

// Wait blocks until Run has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
