package pandora

import "context"

// AdvertiseStream delivers connections made to an advertising set. Close stops advertising.
type AdvertiseStream interface {
	Recv() (*AdvertiseResponse, error)
	Close() error
}

// ScanStream delivers advertising reports. Close stops scanning.
type ScanStream interface {
	Recv() (*ScanningResponse, error)
	Close() error
}

// PairingEventStream is the bidirectional OnPairing stream of a device.
type PairingEventStream interface {
	Recv() (*PairingEvent, error)
	Send(answer *PairingEventAnswer) error
	Close() error
}

// AudioStream is a client stream of raw PCM frames.
type AudioStream interface {
	Send(frame []byte) error
	CloseAndRecv() error
}

// Host controls the device's host stack.
type Host interface {
	FactoryReset(ctx context.Context) error
	Reset(ctx context.Context) error
	ReadLocalAddress(ctx context.Context) (Address, error)
	Connect(ctx context.Context, addr Address) (*Connection, error)
	WaitConnection(ctx context.Context, addr Address) (*Connection, error)
	ConnectLE(ctx context.Context, req ConnectLERequest) (*Connection, error)
	Disconnect(ctx context.Context, conn *Connection) error
	Advertise(ctx context.Context, req AdvertiseRequest) (AdvertiseStream, error)
	Scan(ctx context.Context, req ScanRequest) (ScanStream, error)
}

// Security drives pairing and link security.
type Security interface {
	OnPairing(ctx context.Context) (PairingEventStream, error)
	Secure(ctx context.Context, conn *Connection, level SecurityLevel) error
	WaitSecurity(ctx context.Context, conn *Connection, level SecurityLevel) error
}

// SecurityStorage manages stored bonds.
type SecurityStorage interface {
	IsBonded(ctx context.Context, addr Address, addrType OwnAddressType) (bool, error)
	DeleteBond(ctx context.Context, addr Address, addrType OwnAddressType) error
}

// A2DP drives the Advanced Audio Distribution Profile.
type A2DP interface {
	OpenSource(ctx context.Context, conn *Connection) (*Source, error)
	WaitSink(ctx context.Context, conn *Connection) (*Sink, error)
	Start(ctx context.Context, source *Source) error
	Suspend(ctx context.Context, source *Source) error
	IsSuspended(ctx context.Context, sink *Sink) (bool, error)
	GetConfiguration(ctx context.Context, conn *Connection) (*Configuration, error)
	SetConfiguration(ctx context.Context, conn *Connection, cfg Configuration) (bool, error)
	PlaybackAudio(ctx context.Context, source *Source) (AudioStream, error)
}

// GATT is the experimental GATT client service.
type GATT interface {
	ExchangeMTU(ctx context.Context, conn *Connection, mtu int) error
	DiscoverServices(ctx context.Context, conn *Connection) ([]GattService, error)
	ReadCharacteristicFromHandle(ctx context.Context, conn *Connection, handle uint32) ([]byte, error)
	ClearCache(ctx context.Context, conn *Connection) error
}

// HAP is the experimental Hearing Access Profile client service.
type HAP interface {
	GetFeatures(ctx context.Context, conn *Connection) (byte, error)
	WaitPeripheral(ctx context.Context, conn *Connection) error
	GetAllPresetRecords(ctx context.Context, conn *Connection) ([]PresetRecord, error)
	GetPresetRecord(ctx context.Context, conn *Connection, index uint32) (*PresetRecord, error)
	GetActivePresetRecord(ctx context.Context, conn *Connection) (*PresetRecord, error)
	SetActivePreset(ctx context.Context, conn *Connection, index uint32) error
	SetNextPreset(ctx context.Context, conn *Connection) error
	SetPreviousPreset(ctx context.Context, conn *Connection) error
	WritePresetName(ctx context.Context, conn *Connection, index uint32, name string) error
	WaitPresetChanged(ctx context.Context) ([]PresetRecord, error)
	HaPlaybackAudio(ctx context.Context, source *Source) (AudioStream, error)
}

// VCP is the experimental Volume Control Profile client service.
type VCP interface {
	WaitConnect(ctx context.Context, conn *Connection) error
	SetDeviceVolume(ctx context.Context, conn *Connection, volume uint32) error
	SetVolumeOffset(ctx context.Context, conn *Connection, offset int32) error
	SetGainSetting(ctx context.Context, conn *Connection, gain int32) error
	SetMute(ctx context.Context, conn *Connection, mute uint32) error
	SetGainMode(ctx context.Context, conn *Connection, mode uint32) error
}

// ChannelStream delivers the SDUs received on an L2CAP channel. Close stops
// receiving.
type ChannelStream interface {
	Recv() ([]byte, error)
	Close() error
}

// L2CAP opens connection-oriented channels. Connect only reports whether the
// peer accepted the channel; Open keeps it for Send and Receive.
type L2CAP interface {
	Connect(ctx context.Context, conn *Connection, psm uint16) error
	Open(ctx context.Context, conn *Connection, psm uint16) (*Channel, error)
	Send(ctx context.Context, ch *Channel, data []byte) error
	Receive(ctx context.Context, ch *Channel) (ChannelStream, error)
}

// RFCOMM manages RFCOMM servers and client channels.
type RFCOMM interface {
	StartServer(ctx context.Context, name, uuid string) error
	ConnectToServer(ctx context.Context, addr Address, uuid string) error
}

// OS exposes device OS helpers.
type OS interface {
	Log(ctx context.Context, text string) error
}

// BumbleConfig reconfigures Bumble reference devices at runtime.
type BumbleConfig interface {
	Override(ctx context.Context, req OverrideRequest) error
}

// Services groups the service clients of one device. Services a device does not
// implement still have clients; calling them fails with the server's error.
type Services struct {
	Host            Host
	Security        Security
	SecurityStorage SecurityStorage
	A2DP            A2DP
	GATT            GATT
	HAP             HAP
	VCP             VCP
	L2CAP           L2CAP
	RFCOMM          RFCOMM
	OS              OS
	BumbleConfig    BumbleConfig
}
