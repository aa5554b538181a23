package mmi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/ringchan"
)

const pairingEventBuffer = 16

// background runs the fire-and-forget calls some prompts start, bounded by
// the lifetime of the proxy.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	done   []<-chan struct{}
	logger *logrus.Entry
}

func newBackground(logger *logrus.Entry) *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel, logger: logger}
}

// Go runs fn on a named goroutine; its error is logged.
func (b *background) Go(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = append(b.done, groutine.Go(b.ctx, name, func(ctx context.Context) {
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.WithError(err).WithField("task", name).Warn("Background call failed")
		}
	}))
}

// Close cancels every running call and waits for it to return.
func (b *background) Close() {
	b.cancel()
	b.mu.Lock()
	done := b.done
	b.done = nil
	b.mu.Unlock()
	for _, d := range done {
		<-d
	}
}

// pairingEvents buffers the DUT pairing events from the start of a test so a
// later prompt can look for the one it must confirm.
type pairingEvents struct {
	stream pandora.PairingEventStream
	ring   *ringchan.Ring[*pandora.PairingEvent]
	done   <-chan struct{}
	cancel context.CancelFunc
}

func openPairingEvents(ctx context.Context, dev *pandora.Device, logger *logrus.Entry) (*pairingEvents, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := dev.Security.OnPairing(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open pairing events: %w", err)
	}
	ring := ringchan.New[*pandora.PairingEvent](pairingEventBuffer)
	done := groutine.Go(streamCtx, "mmi-pairing-reader", func(context.Context) {
		defer ring.Close()
		for {
			ev, err := stream.Recv()
			if err != nil {
				return
			}
			logger.WithField("event", ev.String()).Debug("Pairing event")
			if ring.Push(ev) {
				logger.Warn("Pairing event buffer full, oldest event dropped")
			}
		}
	})
	return &pairingEvents{stream: stream, ring: ring, done: done, cancel: cancel}, nil
}

// ConfirmNumeric confirms the first numeric comparison from addr showing value.
// Other events are skipped; the values seen are reported when none matches.
func (e *pairingEvents) ConfirmNumeric(ctx context.Context, addr pandora.Address, value uint32) error {
	var received []uint32
	for {
		ev, ok, err := e.ring.Recv(ctx)
		if err != nil {
			return fmt.Errorf("mismatched passcode: expected %06d, received %v: %w", value, received, err)
		}
		if !ok {
			return fmt.Errorf("mismatched passcode: expected %06d, received %v: %w", value, received, pandora.ErrStreamClosed)
		}
		if ev.Method == pandora.MethodNumericComparison && ev.Address == addr && ev.NumericComparison == value {
			return e.stream.Send(pandora.ConfirmAnswer(ev, true))
		}
		received = append(received, ev.NumericComparison)
	}
}

func (e *pairingEvents) Close() error {
	err := e.stream.Close()
	e.cancel()
	<-e.done
	return err
}
