package rfcomm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pandora"
)

// Defaults of a multiplexer session.
const (
	DefaultResponseTimeout = 10 * time.Second
	DefaultMaxFrameSize    = 127
	DefaultCredits         = 7
	frameQueueSize         = 8
)

// ErrRejected reports a DM answer: the peer refused the data link.
var ErrRejected = errors.New("rfcomm: connection rejected")

// Mux is the initiator side of an RFCOMM session over one L2CAP channel.
type Mux struct {
	// ResponseTimeout bounds the wait for each answer of the peer.
	ResponseTimeout time.Duration

	l2cap  pandora.L2CAP
	ch     *pandora.Channel
	stream pandora.ChannelStream
	logger *logrus.Entry

	frames chan Frame
	stop   chan struct{}
	done   <-chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

// Dial starts receiving on ch, an L2CAP channel the device opened on the
// RFCOMM PSM. Call Start before opening data links.
func Dial(ctx context.Context, l2cap pandora.L2CAP, ch *pandora.Channel, logger *logrus.Entry) (*Mux, error) {
	stream, err := l2cap.Receive(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("rfcomm: receive: %w", err)
	}
	m := &Mux{
		ResponseTimeout: DefaultResponseTimeout,
		l2cap:           l2cap,
		ch:              ch,
		stream:          stream,
		logger:          logger.WithField("proto", "rfcomm"),
		frames:          make(chan Frame, frameQueueSize),
		stop:            make(chan struct{}),
	}
	m.done = groutine.Go(ctx, "rfcomm-reader", m.readLoop)
	return m, nil
}

func (m *Mux) readLoop(ctx context.Context) {
	defer close(m.frames)
	log := m.logger.WithField("goroutine", groutine.GetName(ctx))
	for {
		sdu, err := m.stream.Recv()
		if err != nil {
			m.setErr(err)
			return
		}
		f, err := Parse(sdu)
		if err != nil {
			log.WithError(err).Warn("Dropping frame")
			continue
		}
		log.WithField("frame", f.String()).Debug("Received")
		select {
		case m.frames <- f:
		case <-m.stop:
			return
		}
	}
}

func (m *Mux) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
	}
}

func (m *Mux) send(ctx context.Context, f Frame) error {
	m.logger.WithField("frame", f.String()).Debug("Sending")
	if err := m.l2cap.Send(ctx, m.ch, f.Marshal()); err != nil {
		return fmt.Errorf("rfcomm: send %s: %w", f, err)
	}
	return nil
}

// await returns the first frame accepted by match, dropping the others.
func (m *Mux) await(ctx context.Context, what string, match func(Frame) bool) (Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ResponseTimeout)
	defer cancel()
	for {
		select {
		case f, ok := <-m.frames:
			if !ok {
				m.mu.Lock()
				err := m.err
				m.mu.Unlock()
				if err == nil {
					err = pandora.ErrStreamClosed
				}
				return Frame{}, fmt.Errorf("rfcomm: channel closed waiting for %s: %w", what, err)
			}
			if match(f) {
				return f, nil
			}
			m.logger.WithField("frame", f.String()).Debug("Ignoring frame")
		case <-ctx.Done():
			return Frame{}, fmt.Errorf("rfcomm: waiting for %s: %w", what, ctx.Err())
		}
	}
}

// establish sends SABM on dlci and waits for UA or DM.
func (m *Mux) establish(ctx context.Context, dlci uint8) error {
	if err := m.send(ctx, Frame{DLCI: dlci, CR: true, Type: SABM, PF: true}); err != nil {
		return err
	}
	f, err := m.await(ctx, fmt.Sprintf("SABM(dlci=%d) answer", dlci), func(f Frame) bool {
		return f.DLCI == dlci && (f.Type == UA || f.Type == DM)
	})
	if err != nil {
		return err
	}
	if f.Type == DM {
		return fmt.Errorf("dlci %d: %w", dlci, ErrRejected)
	}
	return nil
}

// Start opens the multiplexer control channel.
func (m *Mux) Start(ctx context.Context) error {
	return m.establish(ctx, 0)
}

// OpenDLC negotiates parameters for server channel and opens its data link.
// A refusal of the peer wraps ErrRejected.
func (m *Mux) OpenDLC(ctx context.Context, channel uint8) error {
	dlci := DLCI(channel)
	pn := ParameterNegotiation(dlci, DefaultMaxFrameSize, DefaultCredits)
	if err := m.send(ctx, Frame{DLCI: 0, CR: true, Type: UIH, Info: pn.Marshal()}); err != nil {
		return err
	}
	f, err := m.await(ctx, "parameter negotiation", func(f Frame) bool {
		if f.Type == DM && f.DLCI == dlci {
			return true
		}
		if f.Type != UIH || f.DLCI != 0 {
			return false
		}
		mcc, err := ParseMCC(f.Info)
		return err == nil && mcc.Type == MCCParameterNegotiation && !mcc.Command
	})
	if err != nil {
		return err
	}
	if f.Type == DM {
		return fmt.Errorf("channel %d: %w", channel, ErrRejected)
	}

	if err := m.establish(ctx, dlci); err != nil {
		return fmt.Errorf("channel %d: %w", channel, err)
	}
	m.logger.WithField("channel", channel).Info("RFCOMM data link open")
	return nil
}

// Close stops receiving. The L2CAP channel itself stays with its device.
func (m *Mux) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		_ = m.stream.Close()
		<-m.done
	})
	return nil
}
