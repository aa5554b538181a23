//go:build test

package hap

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/btharness/internal/harness"
	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/testutils"
)

var (
	dutConn = pandora.NewConnection([]byte("dut-ha"))
	refConn = pandora.NewConnection([]byte("ha-dut"))
	haAddr  = pandora.MustParseAddress("C0:00:00:00:00:02")
)

func TestFeatures_RoundTrip(t *testing.T) {
	assert.Equal(t, byte(0x21), ServerFeatures.Byte(), "monaural with writable presets MUST encode as 0x21")
	assert.Equal(t, ServerFeatures, ParseFeatures(0x21))
	assert.Equal(t, Features{Type: Banded, PresetSync: true, IndependentPresets: true, DynamicPresets: true}, ParseFeatures(0x1E))
	assert.Equal(t, "reserved(3)", HearingAidType(3).String())
}

func TestSortedPresets(t *testing.T) {
	var idx []uint32
	for _, p := range sortedPresets() {
		idx = append(idx, p.Index)
	}
	assert.Equal(t, []uint32{1, 5, 7, 50}, idx)
	assert.Equal(t, "[Lorem ipsum dolor sit amet, consectetu]", LongNamePreset.Name)
	assert.Equal(t, uint32(1), ServerPresets[0].Index, "server order MUST not be changed by sorting")
}

type HapTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	tb     *testutils.Testbed
	class  *Class
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *HapTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.tb = s.helper.NewTestbed()
	s.class = New()
	s.class.PollInterval = time.Millisecond
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 10*time.Second)
}

func (s *HapTestSuite) TearDownTest() {
	s.cancel()
}

func (s *HapTestSuite) run(name string) harness.Result {
	s.tb.ExpectReset()
	r := harness.NewRunner(&harness.Testbed{Devices: s.tb.Devices, Logger: s.helper.Logger})
	r.Filter = regexp.MustCompile(`^HapTest\.` + name + `$`)
	report := r.Run(s.ctx, []harness.Class{s.class})
	s.Require().Len(report.Results, 1)
	return report.Results[0]
}

// expectConnect expects the advertise, scan, connect and secure steps of a HAP connection.
func (s *HapTestSuite) expectConnect() *testutils.FakeAdvertiseStream {
	adv := testutils.NewFakeAdvertiseStream()
	adv.Accept(refConn)
	scan := testutils.NewFakeScanStream(
		&pandora.ScanningResponse{Address: pandora.MustParseAddress("C0:FF:EE:00:00:00"), Data: pandora.DataTypes{IncompleteServiceClassUUIDs16: []string{"180F"}}},
		&pandora.ScanningResponse{Address: haAddr, AddressType: pandora.RandomAddress, Data: pandora.DataTypes{IncompleteServiceClassUUIDs16: []string{"1854"}}},
	)
	s.tb.RefMocks.Host.On("Advertise", mock.MatchedBy(func(req pandora.AdvertiseRequest) bool {
		return req.Legacy && req.Connectable && req.Data.CompleteLocalName == CompleteLocalName &&
			len(req.Data.IncompleteServiceClassUUIDs16) == 1 && req.Data.IncompleteServiceClassUUIDs16[0] == "1854"
	})).Return(adv, nil).Once()
	s.tb.DUTMocks.Host.On("Scan", pandora.ScanRequest{OwnAddressType: pandora.RandomAddress}).Return(scan, nil).Once()
	s.tb.DUTMocks.Host.On("ConnectLE", pandora.ConnectLERequest{
		OwnAddressType: pandora.RandomAddress, Address: haAddr, AddressType: pandora.RandomAddress,
	}).Return(dutConn, nil).Once()
	s.tb.DUTMocks.GATT.On("ExchangeMTU", dutConn, MTU).Return(nil).Once()
	s.tb.DUTMocks.Security.On("Secure", dutConn, pandora.LELevel3).Return(nil).Once()
	s.tb.RefMocks.Security.On("WaitSecurity", refConn, pandora.LELevel3).Return(nil).Once()
	s.tb.DUTMocks.HAP.On("WaitPeripheral", dutConn).Return(nil).Once()
	return adv
}

func (s *HapTestSuite) TestGetFeatures() {
	// GOAL: Verify the DUT reports the hearing aid features the server exposes
	//
	// TEST SCENARIO: advertise HAS → DUT scans, connects, MTU 512, LE_LEVEL3 → GetFeatures 0x21
	adv := s.expectConnect()
	s.tb.DUTMocks.HAP.On("GetFeatures", dutConn).Return(byte(0x21), nil).Once()

	res := s.run("get_features")
	s.Equal(harness.StatusPass, res.Status, "messages: %v", res.Messages)
	s.True(adv.Closed(), "advertising MUST stop after the connection")
	s.tb.AssertExpectations(s.T())
}

func (s *HapTestSuite) TestGetFeatures_Mismatch() {
	s.expectConnect()
	s.tb.DUTMocks.HAP.On("GetFeatures", dutConn).Return(byte(0x20), nil).Once()

	res := s.run("get_features")
	s.Require().Equal(harness.StatusFail, res.Status)
	s.Contains(res.Messages[0], "hearing aid features mismatch")
}

func (s *HapTestSuite) TestGetPreset() {
	s.expectConnect()
	s.tb.DUTMocks.HAP.On("GetAllPresetRecords", dutConn).Return(sortedPresets(), nil).Once()

	res := s.run("get_preset")
	s.Equal(harness.StatusPass, res.Status, "messages: %v", res.Messages)
	s.tb.AssertExpectations(s.T())
}

func (s *HapTestSuite) TestGetPreset_OrderMatters() {
	// GOAL: Verify presets listed out of index order fail the comparison
	//
	// TEST SCENARIO: DUT returns the server presets in insertion order → failure with a diff
	s.expectConnect()
	s.tb.DUTMocks.HAP.On("GetAllPresetRecords", dutConn).Return(ServerPresets, nil).Once()

	res := s.run("get_preset")
	s.Require().Equal(harness.StatusFail, res.Status)
	s.Contains(res.Messages[0], "-server +dut")
}

func (s *HapTestSuite) TestGetActivePreset() {
	s.expectConnect()
	active := FooPreset
	s.tb.DUTMocks.HAP.On("GetActivePresetRecord", dutConn).Return(&active, nil).Once()

	res := s.run("get_active_preset")
	s.Equal(harness.StatusPass, res.Status, "messages: %v", res.Messages)
}

func (s *HapTestSuite) TestVerifyNoCrash() {
	s.expectConnect()
	s.tb.DUTMocks.HAP.On("GetAllPresetRecords", dutConn).Return(sortedPresets(), nil).Times(PollCount)

	res := s.run("verify_no_crash")
	s.Equal(harness.StatusPass, res.Status, "messages: %v", res.Messages)
	s.tb.AssertExpectations(s.T())
}

func (s *HapTestSuite) TestSetupClass() {
	tb := &harness.Testbed{Devices: pandora.NewDevices(s.tb.Ref, s.tb.DUT), Logger: s.helper.Logger}
	err := s.class.SetupClass(s.ctx, tb)
	s.Require().Error(err)
	s.Contains(err.Error(), "does not support HAP")

	s.NoError(s.class.SetupClass(s.ctx, &harness.Testbed{Devices: s.tb.Devices, Logger: s.helper.Logger}))
}

func TestHapTestSuite(t *testing.T) {
	suite.Run(t, new(HapTestSuite))
}
