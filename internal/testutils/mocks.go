//go:build test

package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/srg/btharness/internal/pandora"
)

// Mock service clients. Expectations are set without the context argument:
//
//	svc.Host.On("Connect", addr).Return(conn, nil)

type MockHost struct{ mock.Mock }

func (m *MockHost) FactoryReset(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockHost) Reset(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockHost) ReadLocalAddress(ctx context.Context) (pandora.Address, error) {
	args := m.Called()
	return args.Get(0).(pandora.Address), args.Error(1)
}

func (m *MockHost) Connect(ctx context.Context, addr pandora.Address) (*pandora.Connection, error) {
	args := m.Called(addr)
	return connectionArg(args, 0), args.Error(1)
}

func (m *MockHost) WaitConnection(ctx context.Context, addr pandora.Address) (*pandora.Connection, error) {
	args := m.Called(addr)
	return connectionArg(args, 0), args.Error(1)
}

func (m *MockHost) ConnectLE(ctx context.Context, req pandora.ConnectLERequest) (*pandora.Connection, error) {
	args := m.Called(req)
	return connectionArg(args, 0), args.Error(1)
}

func (m *MockHost) Disconnect(ctx context.Context, conn *pandora.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *MockHost) Advertise(ctx context.Context, req pandora.AdvertiseRequest) (pandora.AdvertiseStream, error) {
	args := m.Called(req)
	if s, ok := args.Get(0).(pandora.AdvertiseStream); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockHost) Scan(ctx context.Context, req pandora.ScanRequest) (pandora.ScanStream, error) {
	args := m.Called(req)
	if s, ok := args.Get(0).(pandora.ScanStream); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSecurity struct{ mock.Mock }

func (m *MockSecurity) OnPairing(ctx context.Context) (pandora.PairingEventStream, error) {
	args := m.Called()
	if s, ok := args.Get(0).(pandora.PairingEventStream); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSecurity) Secure(ctx context.Context, conn *pandora.Connection, level pandora.SecurityLevel) error {
	return m.Called(conn, level).Error(0)
}

func (m *MockSecurity) WaitSecurity(ctx context.Context, conn *pandora.Connection, level pandora.SecurityLevel) error {
	return m.Called(conn, level).Error(0)
}

type MockSecurityStorage struct{ mock.Mock }

func (m *MockSecurityStorage) IsBonded(ctx context.Context, addr pandora.Address, addrType pandora.OwnAddressType) (bool, error) {
	args := m.Called(addr, addrType)
	return args.Bool(0), args.Error(1)
}

func (m *MockSecurityStorage) DeleteBond(ctx context.Context, addr pandora.Address, addrType pandora.OwnAddressType) error {
	return m.Called(addr, addrType).Error(0)
}

type MockA2DP struct{ mock.Mock }

func (m *MockA2DP) OpenSource(ctx context.Context, conn *pandora.Connection) (*pandora.Source, error) {
	args := m.Called(conn)
	src, _ := args.Get(0).(*pandora.Source)
	return src, args.Error(1)
}

func (m *MockA2DP) WaitSink(ctx context.Context, conn *pandora.Connection) (*pandora.Sink, error) {
	args := m.Called(conn)
	sink, _ := args.Get(0).(*pandora.Sink)
	return sink, args.Error(1)
}

func (m *MockA2DP) Start(ctx context.Context, source *pandora.Source) error {
	return m.Called(source).Error(0)
}

func (m *MockA2DP) Suspend(ctx context.Context, source *pandora.Source) error {
	return m.Called(source).Error(0)
}

func (m *MockA2DP) IsSuspended(ctx context.Context, sink *pandora.Sink) (bool, error) {
	args := m.Called(sink)
	return args.Bool(0), args.Error(1)
}

func (m *MockA2DP) GetConfiguration(ctx context.Context, conn *pandora.Connection) (*pandora.Configuration, error) {
	args := m.Called(conn)
	cfg, _ := args.Get(0).(*pandora.Configuration)
	return cfg, args.Error(1)
}

func (m *MockA2DP) SetConfiguration(ctx context.Context, conn *pandora.Connection, cfg pandora.Configuration) (bool, error) {
	args := m.Called(conn, cfg)
	return args.Bool(0), args.Error(1)
}

func (m *MockA2DP) PlaybackAudio(ctx context.Context, source *pandora.Source) (pandora.AudioStream, error) {
	args := m.Called(source)
	if s, ok := args.Get(0).(pandora.AudioStream); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockGATT struct{ mock.Mock }

func (m *MockGATT) ExchangeMTU(ctx context.Context, conn *pandora.Connection, mtu int) error {
	return m.Called(conn, mtu).Error(0)
}

func (m *MockGATT) DiscoverServices(ctx context.Context, conn *pandora.Connection) ([]pandora.GattService, error) {
	args := m.Called(conn)
	services, _ := args.Get(0).([]pandora.GattService)
	return services, args.Error(1)
}

func (m *MockGATT) ReadCharacteristicFromHandle(ctx context.Context, conn *pandora.Connection, handle uint32) ([]byte, error) {
	args := m.Called(conn, handle)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockGATT) ClearCache(ctx context.Context, conn *pandora.Connection) error {
	return m.Called(conn).Error(0)
}

type MockHAP struct{ mock.Mock }

func (m *MockHAP) GetFeatures(ctx context.Context, conn *pandora.Connection) (byte, error) {
	args := m.Called(conn)
	return args.Get(0).(byte), args.Error(1)
}

func (m *MockHAP) WaitPeripheral(ctx context.Context, conn *pandora.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *MockHAP) GetAllPresetRecords(ctx context.Context, conn *pandora.Connection) ([]pandora.PresetRecord, error) {
	args := m.Called(conn)
	records, _ := args.Get(0).([]pandora.PresetRecord)
	return records, args.Error(1)
}

func (m *MockHAP) GetPresetRecord(ctx context.Context, conn *pandora.Connection, index uint32) (*pandora.PresetRecord, error) {
	args := m.Called(conn, index)
	rec, _ := args.Get(0).(*pandora.PresetRecord)
	return rec, args.Error(1)
}

func (m *MockHAP) GetActivePresetRecord(ctx context.Context, conn *pandora.Connection) (*pandora.PresetRecord, error) {
	args := m.Called(conn)
	rec, _ := args.Get(0).(*pandora.PresetRecord)
	return rec, args.Error(1)
}

func (m *MockHAP) SetActivePreset(ctx context.Context, conn *pandora.Connection, index uint32) error {
	return m.Called(conn, index).Error(0)
}

func (m *MockHAP) SetNextPreset(ctx context.Context, conn *pandora.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *MockHAP) SetPreviousPreset(ctx context.Context, conn *pandora.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *MockHAP) WritePresetName(ctx context.Context, conn *pandora.Connection, index uint32, name string) error {
	return m.Called(conn, index, name).Error(0)
}

func (m *MockHAP) WaitPresetChanged(ctx context.Context) ([]pandora.PresetRecord, error) {
	args := m.Called()
	records, _ := args.Get(0).([]pandora.PresetRecord)
	return records, args.Error(1)
}

func (m *MockHAP) HaPlaybackAudio(ctx context.Context, source *pandora.Source) (pandora.AudioStream, error) {
	args := m.Called(source)
	if s, ok := args.Get(0).(pandora.AudioStream); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockVCP struct{ mock.Mock }

func (m *MockVCP) WaitConnect(ctx context.Context, conn *pandora.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *MockVCP) SetDeviceVolume(ctx context.Context, conn *pandora.Connection, volume uint32) error {
	return m.Called(conn, volume).Error(0)
}

func (m *MockVCP) SetVolumeOffset(ctx context.Context, conn *pandora.Connection, offset int32) error {
	return m.Called(conn, offset).Error(0)
}

func (m *MockVCP) SetGainSetting(ctx context.Context, conn *pandora.Connection, gain int32) error {
	return m.Called(conn, gain).Error(0)
}

func (m *MockVCP) SetMute(ctx context.Context, conn *pandora.Connection, mute uint32) error {
	return m.Called(conn, mute).Error(0)
}

func (m *MockVCP) SetGainMode(ctx context.Context, conn *pandora.Connection, mode uint32) error {
	return m.Called(conn, mode).Error(0)
}

type MockL2CAP struct{ mock.Mock }

func (m *MockL2CAP) Connect(ctx context.Context, conn *pandora.Connection, psm uint16) error {
	return m.Called(conn, psm).Error(0)
}

func (m *MockL2CAP) Open(ctx context.Context, conn *pandora.Connection, psm uint16) (*pandora.Channel, error) {
	args := m.Called(conn, psm)
	ch, _ := args.Get(0).(*pandora.Channel)
	return ch, args.Error(1)
}

func (m *MockL2CAP) Send(ctx context.Context, ch *pandora.Channel, data []byte) error {
	return m.Called(ch, data).Error(0)
}

func (m *MockL2CAP) Receive(ctx context.Context, ch *pandora.Channel) (pandora.ChannelStream, error) {
	args := m.Called(ch)
	if s, ok := args.Get(0).(pandora.ChannelStream); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockRFCOMM struct{ mock.Mock }

func (m *MockRFCOMM) StartServer(ctx context.Context, name, uuid string) error {
	return m.Called(name, uuid).Error(0)
}

func (m *MockRFCOMM) ConnectToServer(ctx context.Context, addr pandora.Address, uuid string) error {
	return m.Called(addr, uuid).Error(0)
}

type MockOS struct{ mock.Mock }

func (m *MockOS) Log(ctx context.Context, text string) error {
	return m.Called(text).Error(0)
}

type MockBumbleConfig struct{ mock.Mock }

func (m *MockBumbleConfig) Override(ctx context.Context, req pandora.OverrideRequest) error {
	return m.Called(req).Error(0)
}

// MockServices bundles one mock per Pandora service.
type MockServices struct {
	Host            *MockHost
	Security        *MockSecurity
	SecurityStorage *MockSecurityStorage
	A2DP            *MockA2DP
	GATT            *MockGATT
	HAP             *MockHAP
	VCP             *MockVCP
	L2CAP           *MockL2CAP
	RFCOMM          *MockRFCOMM
	OS              *MockOS
	BumbleConfig    *MockBumbleConfig
}

// NewMockServices creates a fresh set of service mocks.
func NewMockServices() *MockServices {
	return &MockServices{
		Host:            &MockHost{},
		Security:        &MockSecurity{},
		SecurityStorage: &MockSecurityStorage{},
		A2DP:            &MockA2DP{},
		GATT:            &MockGATT{},
		HAP:             &MockHAP{},
		VCP:             &MockVCP{},
		L2CAP:           &MockL2CAP{},
		RFCOMM:          &MockRFCOMM{},
		OS:              &MockOS{},
		BumbleConfig:    &MockBumbleConfig{},
	}
}

// Services exposes the mocks as pandora service clients.
func (m *MockServices) Services() pandora.Services {
	return pandora.Services{
		Host:            m.Host,
		Security:        m.Security,
		SecurityStorage: m.SecurityStorage,
		A2DP:            m.A2DP,
		GATT:            m.GATT,
		HAP:             m.HAP,
		VCP:             m.VCP,
		L2CAP:           m.L2CAP,
		RFCOMM:          m.RFCOMM,
		OS:              m.OS,
		BumbleConfig:    m.BumbleConfig,
	}
}

// AssertExpectations asserts the expectations of every mock.
func (m *MockServices) AssertExpectations(t mock.TestingT) {
	m.Host.AssertExpectations(t)
	m.Security.AssertExpectations(t)
	m.SecurityStorage.AssertExpectations(t)
	m.A2DP.AssertExpectations(t)
	m.GATT.AssertExpectations(t)
	m.HAP.AssertExpectations(t)
	m.VCP.AssertExpectations(t)
	m.L2CAP.AssertExpectations(t)
	m.RFCOMM.AssertExpectations(t)
	m.OS.AssertExpectations(t)
	m.BumbleConfig.AssertExpectations(t)
}

func connectionArg(args mock.Arguments, i int) *pandora.Connection {
	conn, _ := args.Get(i).(*pandora.Connection)
	return conn
}
