package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/pandora"
)

// Session binds a DUT and a reference device to the roles of one pairing test.
type Session struct {
	DUT   *pandora.Device
	Ref   *pandora.Device
	Roles Roles

	logger  *logrus.Entry
	streams map[Side]*EventStream
	cancel  context.CancelFunc
}

// NewSession creates a session. Prepare must be called before pairing.
func NewSession(dut, ref *pandora.Device, roles Roles, logger *logrus.Entry) *Session {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		DUT:     dut,
		Ref:     ref,
		Roles:   roles,
		logger:  logger.WithField("roles", roles.String()),
		streams: make(map[Side]*EventStream, 2),
	}
}

// Device returns the device playing side.
func (s *Session) Device(side Side) *pandora.Device {
	if side == DUT {
		return s.DUT
	}
	return s.Ref
}

// Log returns the session logger.
func (s *Session) Log() *logrus.Entry {
	return s.logger
}

// Prepare opens the OnPairing stream of both devices. The streams live until
// Close or until ctx ends.
func (s *Session) Prepare(ctx context.Context) error {
	if len(s.streams) > 0 {
		return errors.New("session already prepared")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, side := range []Side{DUT, Ref} {
		es, err := openEventStream(streamCtx, side, s.Device(side), s.logger)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("%s: open pairing stream: %w", side, err)
		}
		s.streams[side] = es
	}
	return nil
}

// Events returns the pairing event stream of side.
func (s *Session) Events(side Side) *EventStream {
	return s.streams[side]
}

// InitiatorStream is the stream of the pairing initiator.
func (s *Session) InitiatorStream() *EventStream {
	return s.streams[s.Roles.PairingInitiator]
}

// ResponderStream is the stream of the pairing responder.
func (s *Session) ResponderStream() *EventStream {
	return s.streams[s.Roles.PairingResponder()]
}

// Close closes both pairing streams.
func (s *Session) Close() error {
	var errs []error
	for _, side := range []Side{DUT, Ref} {
		if es := s.streams[side]; es != nil {
			if err := es.Close(); err != nil && !errors.Is(err, pandora.ErrStreamClosed) {
				errs = append(errs, fmt.Errorf("%s: %w", side, err))
			}
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.streams = make(map[Side]*EventStream, 2)
	return errors.Join(errs...)
}
