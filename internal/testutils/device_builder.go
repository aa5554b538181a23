//go:build test

package testutils

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/pandora"
)

// DeviceBuilder builds a pandora.Device backed by service mocks
type DeviceBuilder struct {
	name    string
	kind    pandora.Kind
	address pandora.Address
	serial  string
	logger  *logrus.Logger
}

// NewDeviceBuilder creates a new builder
func NewDeviceBuilder(name string) *DeviceBuilder {
	return &DeviceBuilder{name: name, kind: pandora.KindBumble}
}

func (b *DeviceBuilder) WithKind(kind pandora.Kind) *DeviceBuilder {
	b.kind = kind
	return b
}

func (b *DeviceBuilder) WithAddress(addr string) *DeviceBuilder {
	b.address = pandora.MustParseAddress(addr)
	return b
}

func (b *DeviceBuilder) WithSerial(serial string) *DeviceBuilder {
	b.serial = serial
	return b
}

func (b *DeviceBuilder) WithLogger(logger *logrus.Logger) *DeviceBuilder {
	b.logger = logger
	return b
}

// Build returns the device and the mocks behind its service clients.
func (b *DeviceBuilder) Build() (*pandora.Device, *MockServices) {
	mocks := NewMockServices()
	dev := pandora.NewDevice(b.name, b.kind, mocks.Services(), nil, b.logger)
	dev.Serial = b.serial
	dev.SetAddress(b.address)
	return dev, mocks
}
