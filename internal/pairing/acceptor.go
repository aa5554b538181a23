package pairing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/pandora"
)

const (
	// DefaultPin answers legacy PIN code requests.
	DefaultPin = "123456"
	// DefaultPasskey is entered on both sides when neither displays a passkey.
	DefaultPasskey uint32 = 123456
)

// Acceptor answers the pairing events of both devices of a session until the
// pairing is accepted on both sides.
type Acceptor interface {
	Accept(ctx context.Context, s *Session) error
}

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func(ctx context.Context, s *Session) error

func (f AcceptorFunc) Accept(ctx context.Context, s *Session) error { return f(ctx, s) }

// AcceptorFor returns the acceptor answering the events of model on transport t.
func AcceptorFor(t Transport, model Model) Acceptor {
	_, le := t.(LE)
	switch model {
	case NumericComparison:
		return NumericComparisonAcceptor{ResponderFirst: le}
	case NumericComparisonAutoConfirm:
		return DisplayOnlyAcceptor{}
	case PasskeyEntry:
		return PasskeyEntryAcceptor{}
	default:
		return JustWorksAcceptor{}
	}
}

// next reads the next event of es and logs it.
func next(ctx context.Context, es *EventStream) (*pandora.PairingEvent, error) {
	ev, err := es.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: wait pairing event: %w", es.Side, err)
	}
	es.logger.WithField("event", ev.String()).Info("Pairing event received")
	return ev, nil
}

// nextSkippingJustWorks confirms a leading just-works consent request on es
// and returns the event after it.
func nextSkippingJustWorks(ctx context.Context, es *EventStream) (*pandora.PairingEvent, error) {
	ev, err := next(ctx, es)
	if err != nil {
		return nil, err
	}
	if ev.Method != pandora.MethodJustWorks {
		return ev, nil
	}
	if err := es.Confirm(ev, true); err != nil {
		return nil, err
	}
	return next(ctx, es)
}

// NumericComparisonAcceptor confirms when both devices display the same value
// and rejects otherwise.
type NumericComparisonAcceptor struct {
	// ResponderFirst reads the responder event first, confirming a leading
	// just-works request. LE responders ask for consent before comparing.
	ResponderFirst bool
}

func (a NumericComparisonAcceptor) Accept(ctx context.Context, s *Session) error {
	initStream, respStream := s.InitiatorStream(), s.ResponderStream()

	var initEv, respEv *pandora.PairingEvent
	var err error
	if a.ResponderFirst {
		if respEv, err = nextSkippingJustWorks(ctx, respStream); err != nil {
			return err
		}
		if initEv, err = next(ctx, initStream); err != nil {
			return err
		}
	} else {
		if initEv, err = next(ctx, initStream); err != nil {
			return err
		}
		if respEv, err = next(ctx, respStream); err != nil {
			return err
		}
	}

	if err := expectMethod(initStream.Side, initEv, pandora.MethodNumericComparison); err != nil {
		return err
	}
	if err := expectMethod(respStream.Side, respEv, pandora.MethodNumericComparison); err != nil {
		return err
	}

	confirm := initEv.NumericComparison == respEv.NumericComparison
	s.Log().WithFields(logrus.Fields{
		"initiator": initEv.NumericComparison,
		"responder": respEv.NumericComparison,
		"confirm":   confirm,
	}).Info("Comparing numeric values")

	if err := initStream.Confirm(initEv, confirm); err != nil {
		return err
	}
	return respStream.Confirm(respEv, confirm)
}

// DisplayOnlyAcceptor answers BR/EDR pairing against a display-only reference.
// The DUT compares a value while the display-only side reports just works.
type DisplayOnlyAcceptor struct{}

func (DisplayOnlyAcceptor) Accept(ctx context.Context, s *Session) error {
	initStream, respStream := s.InitiatorStream(), s.ResponderStream()

	initEv, err := next(ctx, initStream)
	if err != nil {
		return err
	}
	respEv, err := next(ctx, respStream)
	if err != nil {
		return err
	}

	if s.Roles.PairingInitiator == DUT {
		if err := expectMethod(initStream.Side, initEv, pandora.MethodNumericComparison); err != nil {
			return err
		}
		if err := expectMethod(respStream.Side, respEv, pandora.MethodJustWorks); err != nil {
			return err
		}
	} else if err := expectMethod(initStream.Side, initEv, pandora.MethodJustWorks); err != nil {
		return err
	}

	if err := initStream.Confirm(initEv, true); err != nil {
		return err
	}
	return respStream.Confirm(respEv, true)
}

// PasskeyEntryAcceptor types the passkey one device displays into the device
// requesting it. When both request a passkey, DefaultPasskey is entered on both.
type PasskeyEntryAcceptor struct{}

func (PasskeyEntryAcceptor) Accept(ctx context.Context, s *Session) error {
	initStream, respStream := s.InitiatorStream(), s.ResponderStream()

	respEv, err := nextSkippingJustWorks(ctx, respStream)
	if err != nil {
		return err
	}
	initEv, err := next(ctx, initStream)
	if err != nil {
		return err
	}

	answer := func(es *EventStream, ev *pandora.PairingEvent, passkey uint32) error {
		es.logger.WithField("passkey", fmt.Sprintf("%06d", passkey)).Info("Entering passkey")
		return es.Answer(pandora.PasskeyAnswer(ev, passkey))
	}

	switch {
	case initEv.Method == pandora.MethodPasskeyEntryRequest && respEv.Method == pandora.MethodPasskeyEntryRequest:
		if err := answer(initStream, initEv, DefaultPasskey); err != nil {
			return err
		}
		return answer(respStream, respEv, DefaultPasskey)
	case initEv.Method == pandora.MethodPasskeyEntryRequest:
		if err := expectMethod(respStream.Side, respEv, pandora.MethodPasskeyEntryNotification); err != nil {
			return err
		}
		return answer(initStream, initEv, respEv.Passkey)
	case respEv.Method == pandora.MethodPasskeyEntryRequest:
		if err := expectMethod(initStream.Side, initEv, pandora.MethodPasskeyEntryNotification); err != nil {
			return err
		}
		return answer(respStream, respEv, initEv.Passkey)
	default:
		return &MethodError{Side: initStream.Side, Got: initEv.Method, Want: pandora.MethodPasskeyEntryRequest}
	}
}

// PinAcceptor answers legacy BR/EDR PIN code requests on both devices.
type PinAcceptor struct {
	Pin string
}

func (a PinAcceptor) Accept(ctx context.Context, s *Session) error {
	pin := a.Pin
	if pin == "" {
		pin = DefaultPin
	}
	for _, es := range []*EventStream{s.InitiatorStream(), s.ResponderStream()} {
		ev, err := next(ctx, es)
		if err != nil {
			return err
		}
		if err := expectMethod(es.Side, ev, pandora.MethodPinCodeRequest); err != nil {
			return err
		}
		if err := es.Answer(pandora.PinAnswer(ev, []byte(pin))); err != nil {
			return err
		}
	}
	return nil
}

// JustWorksAcceptor confirms the consent requests of both devices. A DUT that
// opened the link and responds to pairing asks for consent twice.
type JustWorksAcceptor struct{}

func (JustWorksAcceptor) Accept(ctx context.Context, s *Session) error {
	dutStream, refStream := s.Events(DUT), s.Events(Ref)

	confirmNext := func(es *EventStream) error {
		ev, err := next(ctx, es)
		if err != nil {
			return err
		}
		return es.Confirm(ev, true)
	}

	if err := confirmNext(dutStream); err != nil {
		return err
	}
	if s.Roles.PairingResponder() == DUT && s.Roles.ACLInitiator == DUT {
		if err := confirmNext(dutStream); err != nil {
			return err
		}
	}
	return confirmNext(refStream)
}

// RefJustWorksAcceptor confirms the reference device's just-works request only.
// The DUT accepts on its own.
type RefJustWorksAcceptor struct{}

func (RefJustWorksAcceptor) Accept(ctx context.Context, s *Session) error {
	refStream := s.Events(Ref)
	ev, err := next(ctx, refStream)
	if err != nil {
		return err
	}
	if err := expectMethod(Ref, ev, pandora.MethodJustWorks); err != nil {
		return err
	}
	return refStream.Confirm(ev, true)
}
