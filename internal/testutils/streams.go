//go:build test

package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/btharness/internal/pandora"
)

// FakePairingStream is an in-memory OnPairing stream. Tests Emit events and read
// the answers the code under test sends back.
type FakePairingStream struct {
	events  chan *pandora.PairingEvent
	answers chan *pandora.PairingEventAnswer
	done    chan struct{}
	once    sync.Once
}

func NewFakePairingStream() *FakePairingStream {
	return &FakePairingStream{
		events:  make(chan *pandora.PairingEvent, 16),
		answers: make(chan *pandora.PairingEventAnswer, 16),
		done:    make(chan struct{}),
	}
}

// Emit queues an event for Recv. The Raw field is filled from the method when empty.
func (s *FakePairingStream) Emit(ev *pandora.PairingEvent) *pandora.PairingEvent {
	if ev.Raw == nil {
		ev.Raw = []byte(ev.String())
	}
	s.events <- ev
	return ev
}

// Answer waits for the next answer, failing with ok=false after timeout.
func (s *FakePairingStream) Answer(timeout time.Duration) (*pandora.PairingEventAnswer, bool) {
	select {
	case a := <-s.answers:
		return a, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Pending returns the number of answers not read yet.
func (s *FakePairingStream) Pending() int {
	return len(s.answers)
}

func (s *FakePairingStream) Recv() (*pandora.PairingEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return nil, pandora.ErrStreamClosed
	}
}

func (s *FakePairingStream) Send(answer *pandora.PairingEventAnswer) error {
	select {
	case <-s.done:
		return pandora.ErrStreamClosed
	default:
	}
	s.answers <- answer
	return nil
}

func (s *FakePairingStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close was called.
func (s *FakePairingStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// FakeAdvertiseStream delivers the connections pushed with Accept.
type FakeAdvertiseStream struct {
	conns chan *pandora.Connection
	done  chan struct{}
	once  sync.Once
}

func NewFakeAdvertiseStream() *FakeAdvertiseStream {
	return &FakeAdvertiseStream{conns: make(chan *pandora.Connection, 4), done: make(chan struct{})}
}

func (s *FakeAdvertiseStream) Accept(conn *pandora.Connection) {
	s.conns <- conn
}

func (s *FakeAdvertiseStream) Recv() (*pandora.AdvertiseResponse, error) {
	select {
	case c := <-s.conns:
		return &pandora.AdvertiseResponse{Connection: c}, nil
	case <-s.done:
		return nil, pandora.ErrStreamClosed
	}
}

func (s *FakeAdvertiseStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *FakeAdvertiseStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// FakeScanStream replays a fixed list of reports and then blocks until closed.
type FakeScanStream struct {
	reports chan *pandora.ScanningResponse
	done    chan struct{}
	once    sync.Once
}

func NewFakeScanStream(reports ...*pandora.ScanningResponse) *FakeScanStream {
	s := &FakeScanStream{reports: make(chan *pandora.ScanningResponse, len(reports)+1), done: make(chan struct{})}
	for _, r := range reports {
		s.reports <- r
	}
	return s
}

func (s *FakeScanStream) Recv() (*pandora.ScanningResponse, error) {
	select {
	case r := <-s.reports:
		return r, nil
	case <-s.done:
		return nil, pandora.ErrStreamClosed
	}
}

func (s *FakeScanStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *FakeScanStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// FakeChannelStream delivers the SDUs pushed with Push.
type FakeChannelStream struct {
	sdus chan []byte
	done chan struct{}
	once sync.Once
}

func NewFakeChannelStream() *FakeChannelStream {
	return &FakeChannelStream{sdus: make(chan []byte, 16), done: make(chan struct{})}
}

func (s *FakeChannelStream) Push(sdu []byte) {
	s.sdus <- sdu
}

func (s *FakeChannelStream) Recv() ([]byte, error) {
	select {
	case b := <-s.sdus:
		return b, nil
	case <-s.done:
		return nil, pandora.ErrStreamClosed
	}
}

func (s *FakeChannelStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *FakeChannelStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// FakeAudioStream records the frames it receives.
type FakeAudioStream struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *FakeAudioStream) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

func (s *FakeAudioStream) CloseAndRecv() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *FakeAudioStream) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

func (s *FakeAudioStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WaitFor polls cond until it holds or the context ends.
func WaitFor(ctx context.Context, cond func() bool) bool {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}
