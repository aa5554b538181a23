// Package a2dp tests A2DP source streaming and codec reconfiguration from the
// DUT towards two Bumble sinks.
//
// The first reference device must expose an SBC sink. The second must expose
// both SBC and AAC sinks so that AAC is negotiated on connection.
package a2dp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/adb"
	"github.com/srg/btharness/internal/audio"
	"github.com/srg/btharness/internal/harness"
	"github.com/srg/btharness/internal/link"
	"github.com/srg/btharness/internal/pandora"
)

// Android flags the class overrides.
const (
	FlagAVRCPConnectA2DPWithDelay = "com.android.bluetooth.flags.avrcp_connect_a2dp_with_delay"
)

// AVCTPPSM is the PSM of the AVCTP control channel.
const AVCTPPSM uint16 = 0x17

// AutoconnectTimeout bounds the wait for the DUT to open AVDTP on its own.
const AutoconnectTimeout = 10 * time.Second

func init() {
	harness.AddClass("A2dpTest", func() harness.Class { return New() })
}

// Class is the A2DP test class.
type Class struct {
	harness.BaseClass

	// Audio describes the tone streamed by connect_and_stream.
	Audio audio.Options
	// ADB reaches the DUT shell for flag overrides.
	ADB func(serial string, logger *logrus.Logger) *adb.Device
}

// New returns the class with the default tone and the host adb binary.
func New() *Class {
	return &Class{
		BaseClass: harness.BaseClass{ClassName: "A2dpTest"},
		Audio:     audio.DefaultOptions(),
		ADB:       adb.New,
	}
}

// SetupClass checks that both references are Bumble devices.
func (c *Class) SetupClass(ctx context.Context, tb *harness.Testbed) error {
	for i := 0; i < 2; i++ {
		ref, err := tb.Devices.Ref(i)
		if err != nil {
			return err
		}
		if !ref.IsBumble() {
			return fmt.Errorf("%s: test requires Bumble reference devices", ref.Name)
		}
	}
	return nil
}

// refPairing makes a reference accept pairing without user interaction.
var refPairing = pandora.OverrideRequest{
	IOCapability: pandora.NoInputNoOutput,
	Pairing:      pandora.PairingConfig{Bonding: true, IdentityAddress: pandora.PublicAddress},
}

// SetupTest resets the devices, then configures both references. A factory
// reset drops any runtime override.
func (c *Class) SetupTest(ctx context.Context, t *harness.T) error {
	if err := harness.ResetDevices(ctx, t); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		ref, err := t.Testbed().Devices.Ref(i)
		if err != nil {
			return err
		}
		err = ref.BumbleConfig.Override(ctx, refPairing)
		if err != nil && !errors.Is(err, pandora.ErrUnsupported) {
			return fmt.Errorf("%s: configure: %w", ref.Name, err)
		}
	}
	return nil
}

func (c *Class) Tests() []harness.Test {
	return []harness.Test{
		{Name: "connect_and_stream", Run: c.connectAndStream},
		{Name: "avdtp_autoconnect_when_only_avctp_connected", Run: c.avdtpAutoconnect},
		{Name: "reconfigure_codec_success", Run: c.reconfigureSuccess},
		{Name: "reconfigure_codec_error_unsupported", Run: c.reconfigureUnsupported},
		{Name: "reconfigure_codec_aac_error", Run: c.reconfigureAACError},
	}
}

// stream is an open AVDTP stream between the DUT and one reference.
type stream struct {
	link   link.Pair
	source *pandora.Source
	sink   *pandora.Sink
}

// openStream pairs the DUT with ref, opens an A2DP source from the DUT and
// waits for the matching sink on ref.
func openStream(ctx context.Context, t *harness.T, ref *pandora.Device) stream {
	dut := t.DUT()
	p, err := link.PairClassic(ctx, dut, ref, pandora.Level2)
	t.NoError(err, "DUT MUST pair with %s", ref.Name)

	source, err := dut.A2DP.OpenSource(ctx, p.Initiator)
	t.NoError(err, "DUT MUST open an A2DP source")
	sink, err := ref.A2DP.WaitSink(ctx, p.Responder)
	t.NoError(err, "%s MUST accept the AVDTP stream", ref.Name)

	// an open or streaming sink is fine here
	_, err = ref.A2DP.IsSuspended(ctx, sink)
	t.NoError(err, "%s MUST report the stream state", ref.Name)
	return stream{link: p, source: source, sink: sink}
}

func (c *Class) connectAndStream(ctx context.Context, t *harness.T) {
	dut, ref := t.DUT(), t.Ref(0)
	s := openStream(ctx, t, ref)

	t.NoError(dut.A2DP.Start(ctx, s.source), "DUT MUST start streaming")
	signal := audio.NewSignal(c.Audio, t.Testbed().Logger)
	t.NoError(signal.Start(ctx, audio.A2DPSink(dut.A2DP, s.source)))

	suspended, err := ref.A2DP.IsSuspended(ctx, s.sink)
	t.NoError(err)
	t.Require().False(suspended, "%s MUST be streaming after Start", ref.Name)
	t.NoError(signal.Wait(ctx), "audio MUST be delivered")

	t.NoError(dut.A2DP.Suspend(ctx, s.source), "DUT MUST suspend the stream")
	suspended, err = ref.A2DP.IsSuspended(ctx, s.sink)
	t.NoError(err)
	t.Require().True(suspended, "%s MUST be back in the open state after Suspend", ref.Name)
}

// avdtpAutoconnect checks that the DUT opens AVDTP by itself when the peer
// only connects AVCTP.
func (c *Class) avdtpAutoconnect(ctx context.Context, t *harness.T) {
	dut, ref := t.DUT(), t.Ref(0)
	if dut.Kind != pandora.KindAndroid || dut.Serial == "" {
		t.Skip("DUT flag override needs an Android DUT with an adb serial")
	}
	err := c.ADB(dut.Serial, t.Testbed().Logger).OverrideFlag(ctx, FlagAVRCPConnectA2DPWithDelay, true)
	t.NoError(err, "flag %s MUST be enabled", FlagAVRCPConnectA2DPWithDelay)

	p, err := link.PairClassic(ctx, ref, dut, pandora.Level2)
	t.NoError(err, "%s MUST pair with the DUT", ref.Name)

	t.NoError(ref.L2CAP.Connect(ctx, p.Initiator, AVCTPPSM), "%s MUST open AVCTP", ref.Name)
	t.Log().Info("AVCTP connected, waiting for AVDTP")

	waitCtx, cancel := context.WithTimeout(ctx, AutoconnectTimeout)
	defer cancel()
	_, err = ref.A2DP.WaitSink(waitCtx, p.Initiator)
	t.NoError(err, "DUT MUST connect AVDTP within %s", AutoconnectTimeout)
}

// requireCodec fails the test unless the active codec of conn is want.
func requireCodec(ctx context.Context, t *harness.T, conn *pandora.Connection, want pandora.Codec) {
	cfg, err := t.DUT().A2DP.GetConfiguration(ctx, conn)
	t.NoError(err, "DUT MUST report its codec configuration")
	t.Log().WithField("codec", cfg.Codec).Info("Current codec configuration")
	t.Require().Equal(want, cfg.Codec)
}

// reconfigure switches the codec of the stream to the second reference and
// reports whether the DUT accepted the configuration.
func reconfigure(ctx context.Context, t *harness.T, cfg pandora.Configuration) (stream, bool) {
	s := openStream(ctx, t, t.Ref(1))
	requireCodec(ctx, t, s.link.Initiator, pandora.CodecAAC)

	t.Log().WithFields(logrus.Fields{
		"codec":       cfg.Codec,
		"sampling_hz": cfg.Parameters.SamplingFrequencyHz,
		"bit_depth":   cfg.Parameters.BitDepth,
	}).Info("Switching codec")
	ok, err := t.DUT().A2DP.SetConfiguration(ctx, s.link.Initiator, cfg)
	t.NoError(err)
	return s, ok
}

func (c *Class) reconfigureSuccess(ctx context.Context, t *harness.T) {
	s, ok := reconfigure(ctx, t, pandora.Configuration{
		Codec: pandora.CodecSBC,
		Parameters: pandora.CodecParameters{
			SamplingFrequencyHz: 44100,
			BitDepth:            16,
			ChannelMode:         pandora.ChannelModeStereo,
		},
	})
	t.Require().True(ok, "DUT MUST accept SBC 44.1 kHz 16 bit stereo")
	requireCodec(ctx, t, s.link.Initiator, pandora.CodecSBC)
}

// unsupported are stream parameters no reference sink accepts.
var unsupported = pandora.CodecParameters{
	SamplingFrequencyHz: 176400,
	BitDepth:            24,
	ChannelMode:         pandora.ChannelModeStereo,
}

func (c *Class) reconfigureUnsupported(ctx context.Context, t *harness.T) {
	s, ok := reconfigure(ctx, t, pandora.Configuration{Codec: pandora.CodecSBC, Parameters: unsupported})
	t.Require().False(ok, "DUT MUST reject SBC 176.4 kHz 24 bit")
	requireCodec(ctx, t, s.link.Initiator, pandora.CodecAAC)
}

func (c *Class) reconfigureAACError(ctx context.Context, t *harness.T) {
	s, ok := reconfigure(ctx, t, pandora.Configuration{Codec: pandora.CodecAAC, Parameters: unsupported})
	t.Require().False(ok, "DUT MUST reject AAC 176.4 kHz 24 bit")
	requireCodec(ctx, t, s.link.Initiator, pandora.CodecAAC)
}
