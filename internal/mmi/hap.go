package mmi

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/audio"
	"github.com/srg/btharness/internal/pandora"
)

var errNotConnected = errors.New("no connection to PTS")

// HAPProxy answers the prompts of the Hearing Access Profile client tests.
type HAPProxy struct {
	*Proxy

	env   Env
	bg    *background
	audio *audio.Signal

	mu      sync.Mutex
	conn    *pandora.Connection
	presets []pandora.PresetRecord
	events  *pairingEvents
}

// NewHAPProxy creates the HAP proxy.
func NewHAPProxy(env Env) *HAPProxy {
	h := &HAPProxy{
		Proxy: NewProxy("HAP", env.Logger),
		env:   env,
		audio: audio.NewSignal(audio.DefaultOptions(), env.Logger),
	}
	h.bg = newBackground(h.Log())
	h.OnTestStarted(h.testStarted)
	h.OnClose(h.close)

	h.AssertDescription("MMI_IUT_MTU_EXCHANGE", `
		Please send exchange MTU command to the PTS with MTU size greater than
		49.`, h.exchangeMTU)
	h.MatchDescription("ORDER_IUT_SEND_PRESET_WRITE_NAME", `
		Please write preset name to index: (?P<index>[0-9]*) with random string.`, h.writePresetName)
	h.AssertDescription("IUT_ORDER_WRITE_READ_ALL_PRESET", `
		Please write Read Preset opcode with index 0x01 and num presets to 0xff.`, h.readAllPresets)
	h.AssertDescription("IUT_CONFIRM_READY_TO_RECEIVE_preset_list", `
		Please click OK when IUT is ready to receive Preset Changed message.`, h.waitPresetList)
	h.AssertDescription("IUT_CONFIRM_NEW_PRESET_RECORD", `
		Please confirm that new preset record was added to IUT's internal list.`, answer(OK))
	h.MatchDescription("IUT_READ_PRESET_INDEX", `
		Please write Read Preset Index opcode with index: (?P<index>[0-9]*), numPresets: (?P<num_presets>[0-9]*).`,
		h.readPresetIndex)
	h.AssertDescription("IUT_CONFIGURE_TO_STREAMING_STATE", `
		Please configure to Streaming state.`, h.startStreaming)
	h.MatchDescription("IUT_ORDER_WRITE_SET_ACTIVE_PRESET_INDEX_SYNC_LOCALLY", `
		Please write Set Active Preset Synchronized Locally opcode with index: (?P<index>[0-9]*).`, h.setActivePreset)
	h.AssertDescription("IUT_ORDER_WRITE_SET_NEXT_PRESET_INDEX_SYNC_LOCALLY", `
		Please write Set Next Preset Synchronized Locally opcode`, h.setNextPreset)
	h.AssertDescription("IUT_ORDER_WRITE_SET_PREVIOUS_PRESET_INDEX_SYNC_LOCALLY", `
		Please write Set Previous Preset Synchronized Locally opcode.`, h.setPreviousPreset)
	h.MatchDescription("IUT_ORDER_WRITE_SET_ACTIVE_PRESET_INDEX_DO_NOT_EXPECT_TO_RECEIVE", `
		Please write Set Active Preset opcode with index: (?P<index>[0-9]*). Do not expect to
		receive the message`, h.setActivePreset)
	h.AssertDescription("IUT_CONFIRM_READY_TO_RECEIVE_PRESET_CHANGED", `
		Please click OK when IUT is ready to receive Preset Changed message.`, answer(OK))
	h.MatchDescription("IUT_ORDER_WRITE_SET_ACTIVE_PRESET_INDEX", `
		Please write Set Active Preset opcode with index: (?P<index>[0-9]*).`, h.setActivePreset)
	h.MatchDescription("_mmi_2004", `
		Please confirm that 6 digit number is matched with (?P<passkey>[0-9]+).`, h.confirmPasskey)
	h.AssertDescription("_mmi_20100", `
		Please initiate a GATT connection to the PTS.

		Description: Verify that
		the Implementation Under Test (IUT) can initiate a GATT connect request
		to the PTS.`, h.connect)
	h.MatchDescription("_mmi_20103", `
		Please take action to discover the (Active Preset Index|Hearing Aid Features) characteristic
		from the Hearing Access. Discover the primary service if needed.
		Description: Verify that the Implementation Under Test \(IUT\) can send
		Discover All Characteristics command.`, answer(OK))
	h.MatchDescription("_mmi_20106", `
		Please write to Client Characteristic Configuration Descriptor
		of (?P<characteristic_name>(ASE Control Point|Sink Audio Stream Endpoint|Active Preset Index))
		characteristic to enable (?P<type>(notification|indication)).`, answer(OK))
	h.MatchDescription("_mmi_20107", `
		Please send Read Request to read (?P<characteristic_name>.*) characteristic with handle = (?P<handle>\S*).`,
		h.readCharacteristic)
	h.AssertDescription("_mmi_20206", `
		Please verify that for each supported characteristic, attribute
		handle/UUID pair(s) is returned to the upper tester.Hearing Aid
		Features: Attribute Handle = 0x00D4
		Characteristic Properties = 0x12
		Handle = 0x00D5
		UUID = 0x2BDA

		Hearing Aid Preset Control Point:
		Attribute Handle = 0x00D1
		Characteristic Properties = 0x38
		Handle =
		0x00D2
		UUID = 0x2BDB

		Active Preset Index: Attribute Handle = 0x00D7
		Characteristic Properties = 0x12
		Handle = 0x00D8
		UUID = 0x2BDC`, answer(OK))
	return h
}

// answer is a handler that only acknowledges the prompt.
func answer(s string) Handler {
	return func(context.Context, Interaction, Args) (string, error) { return s, nil }
}

func (h *HAPProxy) testStarted(ctx context.Context, _ Interaction) (string, error) {
	if err := h.env.Rootcanal.SelectPTSDongle(ctx, DongleLairdBL654); err != nil {
		return "", err
	}
	events, err := openPairingEvents(ctx, h.env.DUT, h.Log())
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.events = events
	h.mu.Unlock()
	return OK, nil
}

func (h *HAPProxy) close() error {
	h.bg.Close()
	_ = h.audio.Wait(context.Background())
	h.mu.Lock()
	events := h.events
	h.events = nil
	h.mu.Unlock()
	if events != nil {
		return events.Close()
	}
	return nil
}

// Connection returns the connection to PTS made by the GATT connect prompt.
func (h *HAPProxy) Connection() *pandora.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *HAPProxy) connection() (*pandora.Connection, error) {
	if c := h.Connection(); c != nil {
		return c, nil
	}
	return nil, errNotConnected
}

// waitPresets waits for the DUT to report its preset list, which it reads after pairing.
func (h *HAPProxy) waitPresets(ctx context.Context) ([]pandora.PresetRecord, error) {
	presets, err := h.env.DUT.HAP.WaitPresetChanged(ctx)
	if err != nil {
		return nil, err
	}
	if len(presets) == 0 {
		return nil, errors.New("empty preset list")
	}
	h.mu.Lock()
	h.presets = presets
	h.mu.Unlock()
	return presets, nil
}

func (h *HAPProxy) logPreset(msg string, p pandora.PresetRecord) {
	h.Log().WithFields(logrus.Fields{
		"index":     p.Index,
		"name":      p.Name,
		"writable":  p.Writable,
		"available": p.Available,
	}).Info(msg)
}

func (h *HAPProxy) exchangeMTU(ctx context.Context, _ Interaction, _ Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	return OK, h.env.DUT.GATT.ExchangeMTU(ctx, conn, 512)
}

func randomPresetName() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 10)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

func (h *HAPProxy) writePresetName(ctx context.Context, _ Interaction, args Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	index, err := args.Uint("index", 10)
	if err != nil {
		return "", err
	}

	// The prompt repeats; only the first one waits for the initial preset list.
	h.mu.Lock()
	known := len(h.presets) > 0
	h.mu.Unlock()
	if !known {
		if _, err := h.waitPresets(ctx); err != nil {
			return "", err
		}
	}

	if err := h.env.DUT.HAP.WritePresetName(ctx, conn, index, randomPresetName()); err != nil {
		return "", err
	}
	return OK, nil
}

func (h *HAPProxy) readAllPresets(ctx context.Context, _ Interaction, _ Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	if _, err := h.waitPresets(ctx); err != nil {
		return "", err
	}
	records, err := h.env.DUT.HAP.GetAllPresetRecords(ctx, conn)
	if err != nil {
		return "", err
	}
	for _, p := range records {
		h.logPreset("Received preset record", p)
	}
	return OK, nil
}

func (h *HAPProxy) waitPresetList(ctx context.Context, _ Interaction, _ Args) (string, error) {
	if _, err := h.waitPresets(ctx); err != nil {
		return "", err
	}
	return OK, nil
}

func (h *HAPProxy) readPresetIndex(ctx context.Context, _ Interaction, args Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	index, err := args.Uint("index", 10)
	if err != nil {
		return "", err
	}
	if _, err := h.waitPresets(ctx); err != nil {
		return "", err
	}
	record, err := h.env.DUT.HAP.GetPresetRecord(ctx, conn, index)
	if err != nil {
		return "", err
	}
	h.logPreset("Received preset record", *record)
	return OK, nil
}

func (h *HAPProxy) startStreaming(ctx context.Context, _ Interaction, _ Args) (string, error) {
	// The stream outlives the prompt; it is bounded by the proxy.
	if err := h.audio.Start(h.bg.ctx, audio.HAPSink(h.env.DUT.HAP, nil)); err != nil {
		return "", err
	}
	return OK, nil
}

func (h *HAPProxy) setActivePreset(ctx context.Context, _ Interaction, args Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	index, err := args.Uint("index", 10)
	if err != nil {
		return "", err
	}
	return OK, h.env.DUT.HAP.SetActivePreset(ctx, conn, index)
}

func (h *HAPProxy) setNextPreset(ctx context.Context, _ Interaction, _ Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	return OK, h.env.DUT.HAP.SetNextPreset(ctx, conn)
}

func (h *HAPProxy) setPreviousPreset(ctx context.Context, _ Interaction, _ Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	return OK, h.env.DUT.HAP.SetPreviousPreset(ctx, conn)
}

func (h *HAPProxy) confirmPasskey(ctx context.Context, in Interaction, args Args) (string, error) {
	return confirmPasskey(ctx, h.eventStream(), in, args)
}

func (h *HAPProxy) eventStream() *pairingEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

func confirmPasskey(ctx context.Context, events *pairingEvents, in Interaction, args Args) (string, error) {
	if events == nil {
		return "", errors.New("pairing events not open, test not started")
	}
	passkey, err := args.Uint("passkey", 10)
	if err != nil {
		return "", err
	}
	if err := events.ConfirmNumeric(ctx, in.PTSAddress, passkey); err != nil {
		return "", err
	}
	return OK, nil
}

// connectPTS opens an LE connection from the DUT to the PTS public address.
func connectPTS(ctx context.Context, dut *pandora.Device, pts pandora.Address) (*pandora.Connection, error) {
	conn, err := dut.Host.ConnectLE(ctx, pandora.ConnectLERequest{
		OwnAddressType: pandora.RandomAddress,
		Address:        pts,
		AddressType:    pandora.PublicAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to PTS %s: %w", pts, err)
	}
	return conn, nil
}

func (h *HAPProxy) connect(ctx context.Context, in Interaction, _ Args) (string, error) {
	conn, err := connectPTS(ctx, h.env.DUT, in.PTSAddress)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()

	// PTS drives pairing after the prompt is answered.
	h.bg.Go("hap-secure", func(ctx context.Context) error {
		return h.env.DUT.Security.Secure(ctx, conn, pandora.LELevel3)
	})
	return OK, nil
}

func (h *HAPProxy) readCharacteristic(ctx context.Context, _ Interaction, args Args) (string, error) {
	conn, err := h.connection()
	if err != nil {
		return "", err
	}
	handle, err := args.Uint("handle", 16)
	if err != nil {
		return "", err
	}
	if _, err := h.env.DUT.GATT.ReadCharacteristicFromHandle(ctx, conn, handle); err != nil {
		return "", err
	}
	return OK, nil
}
