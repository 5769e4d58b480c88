package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/repeater/internal/repeater"
)

// Poster delivers an event to an HTTP endpoint.
type Poster interface {
	Post(ctx context.Context, event Event) error
}

// Dispatcher fans transmission events out to the broker and the webhook.
// Each delivery runs on its own goroutine so the control loop never waits
// on the network.
type Dispatcher struct {
	publisher Publisher // nil when MQTT is disabled
	webhook   Poster    // nil when the tripwire is disabled
	log       zerolog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Either sink may be nil.
func NewDispatcher(publisher Publisher, webhook Poster, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, webhook: webhook, log: log}
}

// TransmissionComplete dispatches ev without blocking.
func (d *Dispatcher) TransmissionComplete(ev repeater.TransmissionEvent) {
	event := FromTransmission(ev)

	if d.publisher != nil {
		d.goDetached(func() {
			if err := d.publisher.Publish(event); err != nil {
				d.log.Warn().Err(err).Msg("mqtt publish failed")
			}
		})
	}
	if d.webhook != nil {
		d.goDetached(func() {
			if err := d.webhook.Post(context.Background(), event); err != nil {
				d.log.Warn().Err(err).Msg("tripwire failed")
				return
			}
			d.log.Debug().Msg("tripwire sent")
		})
	}
}

func (d *Dispatcher) goDetached(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// System publishes a lifecycle event synchronously.
func (d *Dispatcher) System(ev SystemEvent) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.log.Warn().Err(err).Str("event", ev.Event).Msg("mqtt system publish failed")
	}
}

// Wait blocks until in-flight deliveries finish or timeout elapses. It
// reports whether everything finished.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close closes the publisher, if any.
func (d *Dispatcher) Close() error {
	if d.publisher == nil {
		return nil
	}
	return d.publisher.Close()
}
