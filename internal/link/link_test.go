//go:build test

package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srg/btharness/internal/gattuuid"
	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/testutils"
)

var (
	dutConn = pandora.NewConnection([]byte("dut-conn"))
	refConn = pandora.NewConnection([]byte("ref-conn"))
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPairClassic(t *testing.T) {
	// GOAL: Verify each side connects then secures, both sides concurrently
	//
	// TEST SCENARIO: DUT connects and secures LEVEL2 → ref waits for both → tokens returned per side
	tb := testutils.NewTestHelper(t).NewTestbed()
	tb.DUTMocks.Host.On("Connect", tb.Ref.Address()).Return(dutConn, nil).Once()
	tb.DUTMocks.Security.On("Secure", dutConn, pandora.Level2).Return(nil).Once()
	tb.RefMocks.Host.On("WaitConnection", tb.DUT.Address()).Return(refConn, nil).Once()
	tb.RefMocks.Security.On("WaitSecurity", refConn, pandora.Level2).Return(nil).Once()

	p, err := PairClassic(testContext(t), tb.DUT, tb.Ref, pandora.Level2)
	require.NoError(t, err)
	assert.Same(t, dutConn, p.Initiator)
	assert.Same(t, refConn, p.Responder)
	tb.AssertExpectations(t)
}

func TestPairClassic_SecureFailure(t *testing.T) {
	tb := testutils.NewTestHelper(t).NewTestbed()
	tb.DUTMocks.Host.On("Connect", tb.Ref.Address()).Return(dutConn, nil).Once()
	tb.DUTMocks.Security.On("Secure", dutConn, pandora.Level2).Return(pandora.ErrPairingFailure).Once()
	tb.RefMocks.Host.On("WaitConnection", tb.DUT.Address()).Return(refConn, nil).Once()
	tb.RefMocks.Security.On("WaitSecurity", refConn, pandora.Level2).Return(nil).Maybe()

	_, err := PairClassic(testContext(t), tb.DUT, tb.Ref, pandora.Level2)
	require.Error(t, err)
	assert.ErrorIs(t, err, pandora.ErrPairingFailure)
	assert.Contains(t, err.Error(), "dut: secure LEVEL2")
}

func TestScanFor_SkipsUnrelatedReports(t *testing.T) {
	// GOAL: Verify the scanner stops at the first matching report and closes the scan
	//
	// TEST SCENARIO: unrelated report → HAS advertiser → scan closed
	tb := testutils.NewTestHelper(t).NewTestbed()
	want := &pandora.ScanningResponse{
		Address: pandora.MustParseAddress("C0:00:00:00:00:02"),
		Data:    pandora.DataTypes{IncompleteServiceClassUUIDs16: []string{"1854"}},
	}
	scan := testutils.NewFakeScanStream(
		&pandora.ScanningResponse{Data: pandora.DataTypes{IncompleteServiceClassUUIDs16: []string{"180F"}}},
		want,
	)
	tb.DUTMocks.Host.On("Scan", pandora.ScanRequest{OwnAddressType: pandora.RandomAddress}).Return(scan, nil).Once()

	got, err := ScanFor(testContext(t), tb.DUT, WithServiceUUID16(gattuuid.HearingAccessService))
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.True(t, scan.Closed(), "scan MUST stop once a report matched")
}

func TestScanFor_ContextEnds(t *testing.T) {
	tb := testutils.NewTestHelper(t).NewTestbed()
	scan := testutils.NewFakeScanStream()
	tb.DUTMocks.Host.On("Scan", pandora.ScanRequest{OwnAddressType: pandora.RandomAddress}).Return(scan, nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ScanFor(ctx, tb.DUT, WithManufacturerData([]byte("seed")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, scan.Closed())
}

func TestMatchers(t *testing.T) {
	r := &pandora.ScanningResponse{Data: pandora.DataTypes{
		ManufacturerSpecificData:      []byte("xx pause cafe yy"),
		IncompleteServiceClassUUIDs16: []string{"0x1844", "1854"},
	}}
	assert.True(t, WithManufacturerData([]byte("pause cafe"))(r))
	assert.False(t, WithManufacturerData([]byte("other"))(r))
	assert.True(t, WithServiceUUID16(gattuuid.VolumeControlService)(r))
	assert.False(t, WithServiceUUID16(gattuuid.AudioInputControlService)(r))
}

func TestConnectAdvertiser(t *testing.T) {
	tb := testutils.NewTestHelper(t).NewTestbed()
	req := pandora.ConnectLERequest{OwnAddressType: pandora.RandomAddress, Address: tb.Ref.Address()}
	adv := testutils.NewFakeAdvertiseStream()
	adv.Accept(refConn)
	tb.DUTMocks.Host.On("ConnectLE", req).Return(dutConn, nil).Once()

	p, err := ConnectAdvertiser(testContext(t), tb.DUT, tb.Ref, adv, req)
	require.NoError(t, err)
	assert.Same(t, dutConn, p.Initiator)
	assert.Same(t, refConn, p.Responder)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, adv.Closed(), "a connected advertise stream MUST stay open for the caller")
}

func TestConnectAdvertiser_CancelledContextUnblocksAdvertiser(t *testing.T) {
	tb := testutils.NewTestHelper(t).NewTestbed()
	req := pandora.ConnectLERequest{OwnAddressType: pandora.RandomAddress, Address: tb.Ref.Address()}
	adv := testutils.NewFakeAdvertiseStream()
	ctx, cancel := context.WithCancel(testContext(t))
	tb.DUTMocks.Host.On("ConnectLE", req).Return(dutConn, nil).Once().Run(func(mock.Arguments) { cancel() })

	_, err := ConnectAdvertiser(ctx, tb.DUT, tb.Ref, adv, req)
	require.Error(t, err, "no connection MUST be reported when ctx ends first")
	assert.True(t, adv.Closed())
}

func TestConnectAdvertiser_ConnectFailureUnblocksAdvertiser(t *testing.T) {
	// GOAL: Verify a failed connect does not leave the advertiser side waiting forever
	//
	// TEST SCENARIO: ConnectLE fails → advertise stream closed → error returned
	tb := testutils.NewTestHelper(t).NewTestbed()
	req := pandora.ConnectLERequest{OwnAddressType: pandora.RandomAddress, Address: tb.Ref.Address()}
	adv := testutils.NewFakeAdvertiseStream()
	tb.DUTMocks.Host.On("ConnectLE", req).Return(nil, errors.New("page timeout")).Once()

	_, err := ConnectAdvertiser(testContext(t), tb.DUT, tb.Ref, adv, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page timeout")
	assert.True(t, adv.Closed(), "advertise stream MUST be closed to unblock Recv")
}
