package pairing

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pandora"
)

const (
	eventQueueSize  = 8
	answerQueueSize = 8
)

// EventStream wraps the OnPairing stream of one device. A reader goroutine
// queues incoming events for Next and a writer goroutine sends answers, so
// answering never blocks the caller on the device.
type EventStream struct {
	Side   Side
	Device *pandora.Device

	stream  pandora.PairingEventStream
	events  chan *pandora.PairingEvent
	answers chan *pandora.PairingEventAnswer
	stop    chan struct{}
	logger  *logrus.Entry

	readerDone <-chan struct{}
	writerDone <-chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

func openEventStream(ctx context.Context, side Side, dev *pandora.Device, logger *logrus.Entry) (*EventStream, error) {
	stream, err := dev.Security.OnPairing(ctx)
	if err != nil {
		return nil, err
	}

	s := &EventStream{
		Side:    side,
		Device:  dev,
		stream:  stream,
		events:  make(chan *pandora.PairingEvent, eventQueueSize),
		answers: make(chan *pandora.PairingEventAnswer, answerQueueSize),
		stop:    make(chan struct{}),
		logger:  logger.WithField("side", side.String()),
	}
	s.readerDone = groutine.Go(ctx, side.String()+"-pairing-reader", s.readLoop)
	s.writerDone = groutine.Go(ctx, side.String()+"-pairing-writer", s.writeLoop)
	return s, nil
}

func (s *EventStream) readLoop(ctx context.Context) {
	defer close(s.events)
	log := s.logger.WithField("goroutine", groutine.GetName(ctx))
	for {
		ev, err := s.stream.Recv()
		if err != nil {
			log.WithError(err).Debug("Pairing stream ended")
			s.setErr(err)
			return
		}
		log.WithField("event", ev.String()).Debug("Pairing event")
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		}
	}
}

func (s *EventStream) writeLoop(ctx context.Context) {
	log := s.logger.WithField("goroutine", groutine.GetName(ctx))
	for {
		select {
		case a := <-s.answers:
			s.send(log, a)
		case <-s.stop:
			// flush answers queued before Close
			for {
				select {
				case a := <-s.answers:
					s.send(log, a)
				default:
					return
				}
			}
		}
	}
}

func (s *EventStream) send(log *logrus.Entry, a *pandora.PairingEventAnswer) {
	if err := s.stream.Send(a); err != nil {
		log.WithError(err).Warn("Failed to send pairing answer")
		s.setErr(err)
	}
}

func (s *EventStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the first stream error, if any.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Next returns the next pairing event of the device.
func (s *EventStream) Next(ctx context.Context) (*pandora.PairingEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			if err := s.Err(); err != nil && !errors.Is(err, pandora.ErrStreamClosed) {
				return nil, err
			}
			return nil, pandora.ErrStreamClosed
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Answer queues an answer without waiting for the device to receive it.
func (s *EventStream) Answer(a *pandora.PairingEventAnswer) error {
	select {
	case <-s.stop:
		return pandora.ErrStreamClosed
	default:
	}
	select {
	case s.answers <- a:
		return nil
	default:
		return ErrAnswerQueueFull
	}
}

// Confirm answers a just-works or numeric-comparison event.
func (s *EventStream) Confirm(ev *pandora.PairingEvent, confirm bool) error {
	s.logger.WithFields(logrus.Fields{"event": ev.String(), "confirm": confirm}).Debug("Confirming pairing")
	return s.Answer(pandora.ConfirmAnswer(ev, confirm))
}

// Close stops the stream after flushing queued answers and waits for both goroutines.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.writerDone
		err = s.stream.Close()
		<-s.readerDone
	})
	return err
}
