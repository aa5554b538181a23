// Package audio generates the test tone streamed to audio sinks.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pandora"
)

// Options describe the generated signal.
type Options struct {
	Frequency     float64       `default:"440"`
	Amplitude     float64       `default:"0.8"`
	SampleRate    int           `default:"44100"`
	FrameDuration time.Duration `default:"100ms"`
	Duration      time.Duration `default:"4s"`
}

// DefaultOptions returns a 440 Hz tone at 0.8 amplitude, 44.1 kHz, 0.1 s frames, 4 s long.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// Sine returns one frame of s16le mono samples.
func Sine(o Options) []int16 {
	n := int(float64(o.SampleRate) * o.FrameDuration.Seconds())
	out := make([]int16, n)
	for i := range out {
		v := o.Amplitude * math.Sin(2*math.Pi*float64(i)*(o.Frequency/float64(o.SampleRate)))
		out[i] = int16(v * 32767)
	}
	return out
}

// StereoFrame interleaves mono samples into a little-endian stereo frame with
// the signal on the left channel and silence on the right.
func StereoFrame(mono []int16) []byte {
	frame := make([]byte, len(mono)*4)
	for i, s := range mono {
		binary.LittleEndian.PutUint16(frame[i*4:], uint16(s))
	}
	return frame
}

// Frames returns how many frames make up the configured duration.
func (o Options) Frames() int {
	if o.FrameDuration <= 0 {
		return 0
	}
	return int(o.Duration / o.FrameDuration)
}

// Sink receives the frames of a signal in order.
type Sink interface {
	Send(frame []byte) error
	CloseAndRecv() error
}

// Signal streams a generated tone into a sink on its own goroutine.
type Signal struct {
	opts   Options
	logger *logrus.Entry

	mu   sync.Mutex
	done <-chan struct{}
	sent int
	err  error
}

// NewSignal creates a signal; a nil logger uses the standard logger.
func NewSignal(opts Options, logger *logrus.Logger) *Signal {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Signal{opts: opts, logger: logger.WithField("component", "audio")}
}

// Start begins streaming to the sink opened by open. The stream is opened on the
// streaming goroutine, so Start never blocks. Calling Start while a stream runs fails.
func (s *Signal) Start(ctx context.Context, open func(ctx context.Context) (Sink, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return errors.New("audio: signal already streaming")
		}
	}
	s.sent, s.err = 0, nil
	s.done = groutine.Go(ctx, "audio-signal", func(ctx context.Context) {
		err := s.run(ctx, open)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if err != nil {
			s.logger.WithError(err).Warn("Audio stream ended early")
		}
	})
	return nil
}

func (s *Signal) run(ctx context.Context, open func(ctx context.Context) (Sink, error)) error {
	sink, err := open(ctx)
	if err != nil {
		return fmt.Errorf("audio: open stream: %w", err)
	}
	frame := StereoFrame(Sine(s.opts))
	for i := 0; i < s.opts.Frames(); i++ {
		if err := ctx.Err(); err != nil {
			_ = sink.CloseAndRecv()
			return err
		}
		if err := sink.Send(frame); err != nil {
			return fmt.Errorf("audio: send frame %d: %w", i, err)
		}
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
	}
	if err := sink.CloseAndRecv(); err != nil {
		return fmt.Errorf("audio: close stream: %w", err)
	}
	s.logger.WithField("frames", s.opts.Frames()).Debug("Audio stream complete")
	return nil
}

// Wait blocks until the stream ends and returns its error.
func (s *Signal) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Sent returns the number of frames delivered so far.
func (s *Signal) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// A2DPSink opens an A2DP playback stream on source.
func A2DPSink(a2dp pandora.A2DP, source *pandora.Source) func(ctx context.Context) (Sink, error) {
	return func(ctx context.Context) (Sink, error) {
		return a2dp.PlaybackAudio(ctx, source)
	}
}

// HAPSink opens a hearing-aid playback stream on source.
func HAPSink(hap pandora.HAP, source *pandora.Source) func(ctx context.Context) (Sink, error) {
	return func(ctx context.Context) (Sink, error) {
		return hap.HaPlaybackAudio(ctx, source)
	}
}
