package mmi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/btharness/internal/pandora"
)

// DefaultReadyDelay is how long write prompts wait for the DUT to finish its
// own subscriptions and reads after the profile connects.
const DefaultReadyDelay = 4 * time.Second

const readTimeout = 30 * time.Second

// Values written when PTS asks for an arbitrary setting.
const (
	vcpTestVolume  = 42
	vcpTestOffset  = 42
	vcpTestGain    = 42
	vcpMaxGainPlus = 101
)

// VCPProxy answers the prompts of the Volume Control Profile client tests,
// including the Audio Input Control Service ones.
type VCPProxy struct {
	*Proxy

	env Env
	bg  *background

	// ReadyDelay is the pause before write prompts.
	ReadyDelay time.Duration

	mu     sync.Mutex
	conn   *pandora.Connection
	events *pairingEvents
}

// NewVCPProxy creates the VCP proxy.
func NewVCPProxy(env Env) *VCPProxy {
	v := &VCPProxy{
		Proxy:      NewProxy("VCP", env.Logger),
		env:        env,
		ReadyDelay: DefaultReadyDelay,
	}
	v.bg = newBackground(v.Log())
	v.OnTestStarted(v.testStarted)
	v.OnClose(v.close)

	v.AssertDescription("IUT_INITIATE_CONNECTION", `
		Please initiate a GATT connection to the PTS.

		Description: Verify that
		the Implementation Under Test (IUT) can initiate a GATT connect request
		to the PTS.`, v.connect)
	v.MatchDescription("_mmi_2004", `
		Please confirm that 6 digit number is matched with (?P<passkey>[0-9]*).`, v.confirmPasskey)
	v.MatchDescription("IUT_INITIATE_DISCOVER_CHARACTERISTIC", `
		Please take action to discover the
		(Volume (Control Point|State|Flags|Offset Control Point)|Offset State|Audio Input (State|Type|Status|Control Point|Description)|Gain Setting Properties)
		characteristic from the (Volume( Offset)?|Audio Input) Control. Discover the primary service if needed.
		Description: Verify that the Implementation Under Test \(IUT\) can send
		Discover All Characteristics command.`, v.discoverCharacteristic)
	v.MatchDescription("IUT_READ_CHARACTERISTIC", `
		Please send Read Request to read (?P<name>(Volume State|Volume Flags|Offset State|Audio Input (State|Status|Type)|Gain Setting Properties)) characteristic with handle
		= (?P<handle>(0x[0-9A-Fa-f]{4})).`, v.readCharacteristic)
	v.MatchDescription("USER_CONFIRM_SUPPORTED_CHARACTERISTIC", `
		Please verify that for each supported characteristic, attribute
		handle/UUID pair\(s\) is returned to the (.*)\.(?P<body>.*)`, answer(OK))
	v.MatchDescription("IUT_CONFIG_NOTIFICATION", `
		Please write to Client Characteristic Configuration Descriptor of
		(?P<name>(Volume State|Offset State|Audio Input State)) characteristic to enable notification.(.*)`, answer(OK))
	v.MatchDescription("IUT_SEND_WRITE_REQUEST", `
		Please send write request to handle 0x([0-9A-Fa-f]{4}) with following value.
		(?P<chr_name>(Volume Control Point|Volume Offset Control Point|Audio Input Control Point)):
			Op Code: (?P<op_code>((<WildCard: Exists>)|(\[[0-9] \(0x0[0-9]\)\]\s([\w]*\s){1,4})))(.*)`, v.writeRequest)
	v.AssertDescription("_mmi_20501", `
		Please start general inquiry. Click 'Yes' If IUT does discovers PTS
		otherwise click 'No'.`, answer(OK))
	v.AssertDescription("IUT_WRITE_GAIN_SETTING_MAX", `
		Please write to Audio Input Control Point with the Set Gain Setting Op
		Code value of 0x01, the Gain Setting parameters set to a random value
		greater than 100 and the Change Counter parameter set.`, v.afterReady(func(ctx context.Context, conn *pandora.Connection) error {
		return v.env.DUT.VCP.SetGainSetting(ctx, conn, vcpMaxGainPlus)
	}))
	v.AssertDescription("IUT_WRITE_UNMUTE_OPCODE", `
		Please write to Audio Input Control Point with the Unmute Op Code.`,
		v.afterReady(func(ctx context.Context, conn *pandora.Connection) error {
			return v.env.DUT.VCP.SetMute(ctx, conn, pandora.NotMuted)
		}))
	v.AssertDescription("IUT_WRITE_MUTE_OPCODE", `
		Please write to Audio Input Control Point with the Mute Op Code.`,
		v.afterReady(func(ctx context.Context, conn *pandora.Connection) error {
			return v.env.DUT.VCP.SetMute(ctx, conn, pandora.Muted)
		}))
	v.AssertDescription("IUT_WRITE_SET_MANUAL_GAIN_MODE_OPCODE", `
		Please write to Audio Input Control Point with the Set Manual Op Code.`,
		v.afterReady(func(ctx context.Context, conn *pandora.Connection) error {
			return v.env.DUT.VCP.SetGainMode(ctx, conn, pandora.GainModeManual)
		}))
	v.AssertDescription("IUT_WRITE_SET_AUTOMATIC_GAIN_MODE_OPCODE", `
		Please write to Audio Input Control Point with the Set Automatic Op
		Code.`, v.afterReady(func(ctx context.Context, conn *pandora.Connection) error {
		return v.env.DUT.VCP.SetGainMode(ctx, conn, pandora.GainModeAutomatic)
	}))
	return v
}

func (v *VCPProxy) testStarted(ctx context.Context, _ Interaction) (string, error) {
	if err := v.env.Rootcanal.SelectPTSDongle(ctx, DongleLairdBL654); err != nil {
		return "", err
	}
	events, err := openPairingEvents(ctx, v.env.DUT, v.Log())
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	v.events = events
	v.mu.Unlock()
	return OK, nil
}

func (v *VCPProxy) close() error {
	v.bg.Close()
	v.mu.Lock()
	events := v.events
	v.events = nil
	v.mu.Unlock()
	if events != nil {
		return events.Close()
	}
	return nil
}

// Connection returns the connection to PTS made by the GATT connect prompt.
func (v *VCPProxy) Connection() *pandora.Connection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn
}

func (v *VCPProxy) connection() (*pandora.Connection, error) {
	if c := v.Connection(); c != nil {
		return c, nil
	}
	return nil, errNotConnected
}

func (v *VCPProxy) connect(ctx context.Context, in Interaction, _ Args) (string, error) {
	if err := v.env.DUT.SecurityStorage.DeleteBond(ctx, in.PTSAddress, pandora.PublicAddress); err != nil {
		return "", fmt.Errorf("delete bond: %w", err)
	}
	conn, err := connectPTS(ctx, v.env.DUT, in.PTSAddress)
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()

	v.bg.Go("vcp-secure", func(ctx context.Context) error {
		return v.env.DUT.Security.Secure(ctx, conn, pandora.LELevel3)
	})
	v.bg.Go("vcp-wait-connect", func(ctx context.Context) error {
		return v.env.DUT.VCP.WaitConnect(ctx, conn)
	})
	return OK, nil
}

func (v *VCPProxy) confirmPasskey(ctx context.Context, in Interaction, args Args) (string, error) {
	v.mu.Lock()
	events := v.events
	v.mu.Unlock()
	return confirmPasskey(ctx, events, in, args)
}

// discoverCharacteristic clears the DUT GATT cache. The DUT discovers as soon
// as the link is encrypted, before PTS asks, so the cache forces a new discovery.
func (v *VCPProxy) discoverCharacteristic(ctx context.Context, _ Interaction, _ Args) (string, error) {
	conn, err := v.connection()
	if err != nil {
		return "", err
	}
	return OK, v.env.DUT.GATT.ClearCache(ctx, conn)
}

// readCharacteristic issues a GATT read. The DUT reads these values on its own
// after connecting; PTS only needs to see a read.
func (v *VCPProxy) readCharacteristic(ctx context.Context, _ Interaction, args Args) (string, error) {
	conn, err := v.connection()
	if err != nil {
		return "", err
	}
	handle, err := args.Uint("handle", 16)
	if err != nil {
		return "", err
	}
	readCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	if _, err := v.env.DUT.GATT.ReadCharacteristicFromHandle(readCtx, conn, handle); err != nil {
		v.Log().WithError(err).WithField("handle", handle).Warn("Characteristic read failed")
	}
	return OK, nil
}

func (v *VCPProxy) waitReady(ctx context.Context) error {
	if v.ReadyDelay <= 0 {
		return nil
	}
	t := time.NewTimer(v.ReadyDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *VCPProxy) afterReady(write func(ctx context.Context, conn *pandora.Connection) error) Handler {
	return func(ctx context.Context, _ Interaction, _ Args) (string, error) {
		conn, err := v.connection()
		if err != nil {
			return "", err
		}
		if err := v.waitReady(ctx); err != nil {
			return "", err
		}
		if err := write(ctx, conn); err != nil {
			return "", err
		}
		return OK, nil
	}
}

// writeRequest decodes the op code PTS asks for and issues the matching VCP call.
func (v *VCPProxy) writeRequest(ctx context.Context, _ Interaction, args Args) (string, error) {
	conn, err := v.connection()
	if err != nil {
		return "", err
	}
	if err := v.waitReady(ctx); err != nil {
		return "", err
	}

	vcp := v.env.DUT.VCP
	op := args["op_code"]
	wildcard := strings.Contains(op, "<WildCard: Exists>")

	switch args["chr_name"] {
	case "Volume Control Point":
		switch {
		case strings.Contains(op, "Set Absolute Volume"), wildcard:
			err = vcp.SetDeviceVolume(ctx, conn, vcpTestVolume)
		case strings.Contains(op, "Unmute"):
			// The DUT cannot be asked to unmute its volume.
			return No, nil
		}
	case "Volume Offset Control Point":
		if strings.Contains(op, "Set Volume Offset") || wildcard {
			err = vcp.SetVolumeOffset(ctx, conn, vcpTestOffset)
		}
	case "Audio Input Control Point":
		switch {
		case strings.Contains(op, "[1 (0x01)] Set Gain Setting"):
			err = vcp.SetGainSetting(ctx, conn, vcpTestGain)
		case strings.Contains(op, "[2 (0x02)] Unmute"):
			err = vcp.SetMute(ctx, conn, pandora.NotMuted)
		case strings.Contains(op, "[3 (0x03)] Mute"):
			err = vcp.SetMute(ctx, conn, pandora.Muted)
		case strings.Contains(op, "[4 (0x04)] Set Manual Gain Mode"):
			err = vcp.SetGainMode(ctx, conn, pandora.GainModeManual)
		case strings.Contains(op, "[5 (0x05)] Set Automatic Gain Mode"):
			err = vcp.SetGainMode(ctx, conn, pandora.GainModeAutomatic)
		case wildcard:
			err = vcp.SetMute(ctx, conn, pandora.NotMuted)
		default:
			return "", fmt.Errorf("unhandled op code for %s: %q", args["chr_name"], op)
		}
	default:
		return No, nil
	}
	if err != nil {
		return "", err
	}
	return OK, nil
}
