//go:build test

package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/srg/btharness/internal/pandora"
)

// DUTAddress and RefAddress are the addresses of the devices built by NewTestbed.
const (
	DUTAddress = "DA:00:00:00:00:01"
	RefAddress = "2E:F0:00:00:00:02"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Testbed is an Android DUT and one Bumble reference, both backed by mocks.
type Testbed struct {
	DUT      *pandora.Device
	Ref      *pandora.Device
	DUTMocks *MockServices
	RefMocks *MockServices
	Devices  *pandora.Devices

	// ExtraMocks back the references added with AddRef, in order.
	ExtraMocks []*MockServices

	logger *logrus.Logger
}

// NewTestbed builds a two-device testbed.
func (h *TestHelper) NewTestbed() *Testbed {
	dut, dutMocks := NewDeviceBuilder("dut").
		WithKind(pandora.KindAndroid).
		WithAddress(DUTAddress).
		WithSerial("emulator-5554").
		WithLogger(h.Logger).
		Build()
	ref, refMocks := NewDeviceBuilder("ref").
		WithKind(pandora.KindBumble).
		WithAddress(RefAddress).
		WithLogger(h.Logger).
		Build()
	return &Testbed{
		DUT:      dut,
		Ref:      ref,
		DUTMocks: dutMocks,
		RefMocks: refMocks,
		Devices:  pandora.NewDevices(dut, ref),
		logger:   h.Logger,
	}
}

// AddRef appends a Bumble reference device to the testbed.
func (tb *Testbed) AddRef(name, addr string) (*pandora.Device, *MockServices) {
	dev, mocks := NewDeviceBuilder(name).
		WithKind(pandora.KindBumble).
		WithAddress(addr).
		WithLogger(tb.logger).
		Build()
	tb.ExtraMocks = append(tb.ExtraMocks, mocks)
	tb.Devices = pandora.NewDevices(append(tb.Devices.All(), dev)...)
	return dev, mocks
}

// ExpectReset expects one factory reset of every device, each keeping its
// address, and the DUT log marker written by harness.ResetDevices.
func (tb *Testbed) ExpectReset() {
	all := append([]*MockServices{tb.DUTMocks, tb.RefMocks}, tb.ExtraMocks...)
	for i, dev := range tb.Devices.All() {
		all[i].Host.On("FactoryReset").Return(nil).Once()
		all[i].Host.On("ReadLocalAddress").Return(dev.Address(), nil).Once()
	}
	tb.DUTMocks.OS.On("Log", mock.Anything).Return(nil).Once()
}

// AssertExpectations checks the mocks of every device.
func (tb *Testbed) AssertExpectations(t *testing.T) {
	tb.DUTMocks.AssertExpectations(t)
	tb.RefMocks.AssertExpectations(t)
	for _, m := range tb.ExtraMocks {
		m.AssertExpectations(t)
	}
}
