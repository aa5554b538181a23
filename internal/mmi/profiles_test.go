//go:build test

package mmi

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/testutils"
)

const ptsAddress = "00:1B:DC:F2:1D:29"

type recordingRootcanal struct {
	dongles []Dongle
}

func (r *recordingRootcanal) SelectPTSDongle(_ context.Context, d Dongle) error {
	r.dongles = append(r.dongles, d)
	return nil
}

type ProfilesTestSuite struct {
	suite.Suite
	helper    *testutils.TestHelper
	tb        *testutils.Testbed
	rootcanal *recordingRootcanal
	pairing   *testutils.FakePairingStream
	conn      *pandora.Connection
	pts       pandora.Address
	ignore    goleak.Option
}

func (s *ProfilesTestSuite) SetupTest() {
	s.ignore = goleak.IgnoreCurrent()
	s.helper = testutils.NewTestHelper(s.T())
	s.tb = s.helper.NewTestbed()
	s.rootcanal = &recordingRootcanal{}
	s.pairing = testutils.NewFakePairingStream()
	s.conn = pandora.NewConnection([]byte("dut-pts"))
	s.pts = pandora.MustParseAddress(ptsAddress)
}

func (s *ProfilesTestSuite) TearDownTest() {
	goleak.VerifyNone(s.T(), s.ignore)
}

func (s *ProfilesTestSuite) env() Env {
	return Env{DUT: s.tb.DUT, Rootcanal: s.rootcanal, Logger: s.helper.Logger}
}

func (s *ProfilesTestSuite) interact(p *Proxy, id, description string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Interact(ctx, Interaction{Profile: p.Name(), Test: "T", ID: id, Description: description, PTSAddress: s.pts})
}

func (s *ProfilesTestSuite) start(p *Proxy) {
	s.tb.DUTMocks.Security.On("OnPairing").Return(s.pairing, nil).Once()
	got, err := p.TestStarted(context.Background(), Interaction{Profile: p.Name(), Test: "T", PTSAddress: s.pts})
	s.Require().NoError(err)
	s.Equal(OK, got)
	s.Equal([]Dongle{DongleLairdBL654}, s.rootcanal.dongles, "test start MUST select the PTS dongle")
}

func (s *ProfilesTestSuite) expectConnect() {
	s.tb.DUTMocks.Host.On("ConnectLE", pandora.ConnectLERequest{
		OwnAddressType: pandora.RandomAddress,
		Address:        s.pts,
		AddressType:    pandora.PublicAddress,
	}).Return(s.conn, nil).Once()
	s.tb.DUTMocks.Security.On("Secure", s.conn, pandora.LELevel3).Return(nil).Once()
}

const gattConnectPrompt = `Please initiate a GATT connection to the PTS.

Description: Verify that
the Implementation Under Test (IUT) can initiate a GATT connect request
to the PTS.`

func (s *ProfilesTestSuite) TestHAP_ConnectAndConfirmPasskey() {
	// GOAL: Verify the HAP proxy connects to PTS, secures in the background and confirms the right passkey
	//
	// TEST SCENARIO: test started → GATT connect prompt → two comparison events, second matches → confirm sent
	h := NewHAPProxy(s.env())
	s.start(h.Proxy)
	s.expectConnect()

	got, err := s.interact(h.Proxy, "20100", gattConnectPrompt)
	s.Require().NoError(err)
	s.Equal(OK, got)
	s.True(h.Connection().Equal(s.conn))

	s.pairing.Emit(&pandora.PairingEvent{Address: s.pts, Method: pandora.MethodNumericComparison, NumericComparison: 111111})
	match := s.pairing.Emit(&pandora.PairingEvent{Address: s.pts, Method: pandora.MethodNumericComparison, NumericComparison: 654321})

	got, err = s.interact(h.Proxy, "2004", "Please confirm that 6 digit number is matched with 654321.")
	s.Require().NoError(err)
	s.Equal(OK, got)

	ans, ok := s.pairing.Answer(time.Second)
	s.Require().True(ok, "a confirmation MUST be sent")
	s.Same(match, ans.Event, "answer MUST echo the matching event")
	s.True(ans.Confirm)
	s.Zero(s.pairing.Pending(), "non-matching events MUST NOT be answered")

	s.Require().NoError(h.Close())
	s.True(s.pairing.Closed(), "closing the proxy MUST close the pairing stream")
	s.tb.AssertExpectations(s.T())
}

func (s *ProfilesTestSuite) TestHAP_PasskeyMismatchTimesOut() {
	h := NewHAPProxy(s.env())
	s.start(h.Proxy)
	s.pairing.Emit(&pandora.PairingEvent{Address: s.pts, Method: pandora.MethodNumericComparison, NumericComparison: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.Interact(ctx, Interaction{ID: "2004", Description: "Please confirm that 6 digit number is matched with 000002.", PTSAddress: s.pts})

	s.Require().Error(err)
	s.Contains(err.Error(), "mismatched passcode")
	s.Contains(err.Error(), "[1]")
	s.NoError(h.Close())
}

func (s *ProfilesTestSuite) TestHAP_PromptsRequireConnection() {
	h := NewHAPProxy(s.env())
	defer h.Close()

	_, err := s.interact(h.Proxy, "MMI_IUT_MTU_EXCHANGE", "Please send exchange MTU command to the PTS with MTU size greater than 49.")

	s.ErrorIs(err, errNotConnected)
}

func (s *ProfilesTestSuite) TestHAP_PresetPrompts() {
	h := NewHAPProxy(s.env())
	s.start(h.Proxy)
	s.expectConnect()
	_, err := s.interact(h.Proxy, "20100", gattConnectPrompt)
	s.Require().NoError(err)

	presets := []pandora.PresetRecord{{Index: 1, Name: "foo preset", Writable: true, Available: true}}
	hap := s.tb.DUTMocks.HAP
	gatt := s.tb.DUTMocks.GATT
	lower10 := regexp.MustCompile(`^[a-z]{10}$`)

	gatt.On("ExchangeMTU", s.conn, 512).Return(nil).Once()
	hap.On("WaitPresetChanged").Return(presets, nil).Times(3)
	hap.On("WritePresetName", s.conn, uint32(1), mock.MatchedBy(lower10.MatchString)).Return(nil).Twice()
	hap.On("GetAllPresetRecords", s.conn).Return(presets, nil).Once()
	hap.On("GetPresetRecord", s.conn, uint32(1)).Return(&presets[0], nil).Once()
	hap.On("SetActivePreset", s.conn, uint32(5)).Return(nil).Twice()
	hap.On("SetNextPreset", s.conn).Return(nil).Once()
	hap.On("SetPreviousPreset", s.conn).Return(nil).Once()
	gatt.On("ReadCharacteristicFromHandle", s.conn, uint32(0xD5)).Return([]byte{0x12}, nil).Once()

	prompts := []struct{ id, text string }{
		{"MMI_IUT_MTU_EXCHANGE", "Please send exchange MTU command to the PTS with MTU size greater than\n49."},
		// the first write waits for the preset list, the second one does not
		{"ORDER_IUT_SEND_PRESET_WRITE_NAME", "Please write preset name to index: 1 with random string."},
		{"ORDER_IUT_SEND_PRESET_WRITE_NAME", "Please write preset name to index: 1 with random string."},
		{"IUT_ORDER_WRITE_READ_ALL_PRESET", "Please write Read Preset opcode with index 0x01 and num presets to 0xff."},
		{"IUT_READ_PRESET_INDEX", "Please write Read Preset Index opcode with index: 1, numPresets: 1."},
		{"IUT_ORDER_WRITE_SET_ACTIVE_PRESET_INDEX", "Please write Set Active Preset opcode with index: 5."},
		{"IUT_ORDER_WRITE_SET_ACTIVE_PRESET_INDEX_DO_NOT_EXPECT_TO_RECEIVE", "Please write Set Active Preset opcode with index: 5. Do not expect to receive the message"},
		{"IUT_ORDER_WRITE_SET_NEXT_PRESET_INDEX_SYNC_LOCALLY", "Please write Set Next Preset Synchronized Locally opcode"},
		{"IUT_ORDER_WRITE_SET_PREVIOUS_PRESET_INDEX_SYNC_LOCALLY", "Please write Set Previous Preset Synchronized Locally opcode."},
		{"IUT_CONFIRM_NEW_PRESET_RECORD", "Please confirm that new preset record was added to IUT's internal list."},
		{"20107", "Please send Read Request to read Hearing Aid Features characteristic with handle = 0x00D5."},
		{"20106", "Please write to Client Characteristic Configuration Descriptor of Active Preset Index characteristic to enable notification."},
	}
	for _, p := range prompts {
		got, err := s.interact(h.Proxy, p.id, p.text)
		s.Require().NoError(err, p.id)
		s.Equal(OK, got, p.id)
	}

	s.Require().NoError(h.Close())
	s.tb.AssertExpectations(s.T())
}

func (s *ProfilesTestSuite) TestHAP_Streaming() {
	h := NewHAPProxy(s.env())
	stream := &testutils.FakeAudioStream{}
	s.tb.DUTMocks.HAP.On("HaPlaybackAudio", (*pandora.Source)(nil)).Return(stream, nil).Once()

	got, err := s.interact(h.Proxy, "IUT_CONFIGURE_TO_STREAMING_STATE", "Please configure to Streaming state.")
	s.Require().NoError(err)
	s.Equal(OK, got)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.True(testutils.WaitFor(ctx, stream.IsClosed), "stream MUST complete")
	s.Len(stream.Frames(), 40, "4 s of audio MUST be sent")
	s.NoError(h.Close())
}

func (s *ProfilesTestSuite) TestVCP_ConnectDeletesBondAndWaitsForProfile() {
	v := NewVCPProxy(s.env())
	v.ReadyDelay = 0
	s.start(v.Proxy)
	s.tb.DUTMocks.SecurityStorage.On("DeleteBond", s.pts, pandora.PublicAddress).Return(nil).Once()
	s.expectConnect()
	s.tb.DUTMocks.VCP.On("WaitConnect", s.conn).Return(nil).Once()

	got, err := s.interact(v.Proxy, "IUT_INITIATE_CONNECTION", gattConnectPrompt)
	s.Require().NoError(err)
	s.Equal(OK, got)

	s.Require().NoError(v.Close())
	s.tb.AssertExpectations(s.T())
}

func (s *ProfilesTestSuite) TestVCP_WriteRequests() {
	v := NewVCPProxy(s.env())
	v.ReadyDelay = 0
	s.start(v.Proxy)
	s.tb.DUTMocks.SecurityStorage.On("DeleteBond", s.pts, pandora.PublicAddress).Return(nil).Once()
	s.expectConnect()
	s.tb.DUTMocks.VCP.On("WaitConnect", s.conn).Return(nil).Once()
	_, err := s.interact(v.Proxy, "IUT_INITIATE_CONNECTION", gattConnectPrompt)
	s.Require().NoError(err)

	vcp := s.tb.DUTMocks.VCP
	vcp.On("SetDeviceVolume", s.conn, uint32(42)).Return(nil).Twice()
	vcp.On("SetVolumeOffset", s.conn, int32(42)).Return(nil).Once()
	vcp.On("SetGainSetting", s.conn, int32(42)).Return(nil).Once()
	vcp.On("SetGainSetting", s.conn, int32(101)).Return(nil).Once()
	vcp.On("SetMute", s.conn, pandora.Muted).Return(nil).Twice()
	vcp.On("SetMute", s.conn, pandora.NotMuted).Return(nil).Times(3)
	vcp.On("SetGainMode", s.conn, pandora.GainModeManual).Return(nil).Twice()
	vcp.On("SetGainMode", s.conn, pandora.GainModeAutomatic).Return(nil).Twice()
	s.tb.DUTMocks.GATT.On("ClearCache", s.conn).Return(nil).Once()
	s.tb.DUTMocks.GATT.On("ReadCharacteristicFromHandle", s.conn, uint32(0x3A)).Return(nil, nil).Once()

	write := func(chr, op string) string {
		return "Please send write request to handle 0x0042 with following value.\n" + chr + ":\n    Op Code: " + op + " Change Counter: <WildCard: Exists>"
	}
	prompts := []struct{ id, text, want string }{
		{"IUT_SEND_WRITE_REQUEST", write("Volume Control Point", "[4 (0x04)] Set Absolute Volume"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Volume Control Point", "<WildCard: Exists>"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Volume Control Point", "[5 (0x05)] Unmute"), No},
		{"IUT_SEND_WRITE_REQUEST", write("Volume Offset Control Point", "[1 (0x01)] Set Volume Offset"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Audio Input Control Point", "[1 (0x01)] Set Gain Setting"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Audio Input Control Point", "[2 (0x02)] Unmute"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Audio Input Control Point", "[3 (0x03)] Mute"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Audio Input Control Point", "[4 (0x04)] Set Manual Gain Mode"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Audio Input Control Point", "[5 (0x05)] Set Automatic Gain Mode"), OK},
		{"IUT_SEND_WRITE_REQUEST", write("Audio Input Control Point", "<WildCard: Exists>"), OK},
		{"IUT_WRITE_GAIN_SETTING_MAX", "Please write to Audio Input Control Point with the Set Gain Setting Op Code value of 0x01, the Gain Setting parameters set to a random value greater than 100 and the Change Counter parameter set.", OK},
		{"IUT_WRITE_UNMUTE_OPCODE", "Please write to Audio Input Control Point with the Unmute Op Code.", OK},
		{"IUT_WRITE_MUTE_OPCODE", "Please write to Audio Input Control Point with the Mute Op Code.", OK},
		{"IUT_WRITE_SET_MANUAL_GAIN_MODE_OPCODE", "Please write to Audio Input Control Point with the Set Manual Op Code.", OK},
		{"IUT_WRITE_SET_AUTOMATIC_GAIN_MODE_OPCODE", "Please write to Audio Input Control Point with the Set Automatic Op Code.", OK},
		{"IUT_INITIATE_DISCOVER_CHARACTERISTIC", "Please take action to discover the Audio Input Control Point characteristic from the Audio Input Control. Discover the primary service if needed. Description: Verify that the Implementation Under Test (IUT) can send Discover All Characteristics command.", OK},
		{"IUT_READ_CHARACTERISTIC", "Please send Read Request to read Audio Input State characteristic with handle = 0x003A.", OK},
		{"IUT_CONFIG_NOTIFICATION", "Please write to Client Characteristic Configuration Descriptor of Volume State characteristic to enable notification.", OK},
		{"20501", "Please start general inquiry. Click 'Yes' If IUT does discovers PTS otherwise click 'No'.", OK},
	}
	for _, p := range prompts {
		got, err := s.interact(v.Proxy, p.id, p.text)
		s.Require().NoError(err, p.text)
		s.Equal(p.want, got, p.text)
	}

	s.Require().NoError(v.Close())
	s.tb.AssertExpectations(s.T())
}

func (s *ProfilesTestSuite) TestVCP_ReadyDelayHonoursContext() {
	v := NewVCPProxy(s.env())
	v.ReadyDelay = time.Hour
	s.start(v.Proxy)
	s.tb.DUTMocks.SecurityStorage.On("DeleteBond", s.pts, pandora.PublicAddress).Return(nil).Once()
	s.expectConnect()
	s.tb.DUTMocks.VCP.On("WaitConnect", s.conn).Return(nil).Once()
	_, err := s.interact(v.Proxy, "IUT_INITIATE_CONNECTION", gattConnectPrompt)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = v.Interact(ctx, Interaction{ID: "IUT_WRITE_MUTE_OPCODE", Description: "Please write to Audio Input Control Point with the Mute Op Code."})

	s.ErrorIs(err, context.DeadlineExceeded)
	s.tb.DUTMocks.VCP.AssertNotCalled(s.T(), "SetMute", mock.Anything, mock.Anything)
	s.NoError(v.Close())
}

func (s *ProfilesTestSuite) TestDispatcher_AICSRoutesToVCP() {
	d := NewDispatcher(s.tb.DUT, s.rootcanal, s.helper.Logger)
	s.tb.DUTMocks.Security.On("OnPairing").Return(s.pairing, nil).Once()

	_, err := d.TestStarted(context.Background(), Interaction{Profile: "AICS", Test: "AICS/CL/T-1"})
	s.Require().NoError(err)

	got, err := d.Interact(context.Background(), Interaction{
		Profile:     "AICS",
		ID:          "20501",
		Description: "Please start general inquiry. Click 'Yes' If IUT does discovers PTS otherwise click 'No'.",
	})
	s.Require().NoError(err)
	s.Equal(OK, got)
	s.NoError(d.Close())
}

func TestProfilesTestSuite(t *testing.T) {
	suite.Run(t, new(ProfilesTestSuite))
}
