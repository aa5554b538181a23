package pandora

import (
	"bytes"
	"fmt"
)

// OwnAddressType selects the address a device uses for advertising, scanning or connecting.
type OwnAddressType int32

const (
	PublicAddress OwnAddressType = iota
	RandomAddress
	ResolvableOrPublicAddress
	ResolvableOrRandomAddress
)

func (t OwnAddressType) String() string {
	switch t {
	case PublicAddress:
		return "public"
	case RandomAddress:
		return "random"
	case ResolvableOrPublicAddress:
		return "resolvable_or_public"
	case ResolvableOrRandomAddress:
		return "resolvable_or_random"
	default:
		return fmt.Sprintf("own_address_type(%d)", int32(t))
	}
}

// Connection is an opaque connection token returned by a device. It must be handed back
// to the same device unchanged.
type Connection struct {
	cookie []byte
}

// NewConnection wraps the serialized connection token received from a device.
func NewConnection(raw []byte) *Connection {
	return &Connection{cookie: append([]byte(nil), raw...)}
}

// Raw returns the serialized token.
func (c *Connection) Raw() []byte {
	if c == nil {
		return nil
	}
	return c.cookie
}

// Equal reports whether both tokens identify the same connection.
func (c *Connection) Equal(o *Connection) bool {
	if c == nil || o == nil {
		return c == o
	}
	return bytes.Equal(c.cookie, o.cookie)
}

// Channel is an opaque L2CAP channel token, valid on the device that opened it.
type Channel struct {
	cookie []byte
}

// NewChannel wraps the channel token received from a device.
func NewChannel(raw []byte) *Channel {
	return &Channel{cookie: append([]byte(nil), raw...)}
}

// Raw returns the token.
func (c *Channel) Raw() []byte {
	if c == nil {
		return nil
	}
	return c.cookie
}

// SecurityLevel is either a ClassicLevel or an LELevel.
type SecurityLevel interface {
	isSecurityLevel()
	String() string
}

// ClassicLevel is a BR/EDR security level.
type ClassicLevel int32

const (
	Level0 ClassicLevel = iota
	Level1
	Level2
	Level3
	Level4
)

func (ClassicLevel) isSecurityLevel() {}

func (l ClassicLevel) String() string { return fmt.Sprintf("LEVEL%d", int32(l)) }

// LELevel is an LE security level.
type LELevel int32

const (
	LELevel1 LELevel = iota
	LELevel2
	LELevel3
	LELevel4
)

func (LELevel) isSecurityLevel() {}

func (l LELevel) String() string { return fmt.Sprintf("LE_LEVEL%d", int32(l)+1) }

// PairingMethod is the variant of a pairing event.
type PairingMethod string

const (
	MethodJustWorks                PairingMethod = "just_works"
	MethodNumericComparison        PairingMethod = "numeric_comparison"
	MethodPasskeyEntryRequest      PairingMethod = "passkey_entry_request"
	MethodPasskeyEntryNotification PairingMethod = "passkey_entry_notification"
	MethodPinCodeRequest           PairingMethod = "pin_code_request"
	MethodPinCodeNotification      PairingMethod = "pin_code_notification"
)

// PairingEvent is a user-interaction request emitted by a device during pairing.
type PairingEvent struct {
	Address           Address     // remote address, when the device reports one
	Connection        *Connection // remote connection, when the device reports one
	Method            PairingMethod
	NumericComparison uint32 // numeric_comparison
	Passkey           uint32 // passkey_entry_notification
	Pin               []byte // pin_code_notification

	// Raw is the serialized event as received; answers echo it back.
	Raw []byte
}

func (e *PairingEvent) String() string {
	switch e.Method {
	case MethodNumericComparison:
		return fmt.Sprintf("%s(%06d)", e.Method, e.NumericComparison)
	case MethodPasskeyEntryNotification:
		return fmt.Sprintf("%s(%06d)", e.Method, e.Passkey)
	default:
		return string(e.Method)
	}
}

// AnswerKind selects the answer oneof variant.
type AnswerKind int

const (
	AnswerConfirm AnswerKind = iota
	AnswerPasskey
	AnswerPin
)

// PairingEventAnswer answers exactly one PairingEvent.
type PairingEventAnswer struct {
	Event   *PairingEvent
	Kind    AnswerKind
	Confirm bool
	Passkey uint32
	Pin     []byte
}

// ConfirmAnswer accepts or rejects a just-works or numeric-comparison event.
func ConfirmAnswer(ev *PairingEvent, confirm bool) *PairingEventAnswer {
	return &PairingEventAnswer{Event: ev, Kind: AnswerConfirm, Confirm: confirm}
}

// PasskeyAnswer answers a passkey-entry request.
func PasskeyAnswer(ev *PairingEvent, passkey uint32) *PairingEventAnswer {
	return &PairingEventAnswer{Event: ev, Kind: AnswerPasskey, Passkey: passkey}
}

// PinAnswer answers a legacy PIN code request.
func PinAnswer(ev *PairingEvent, pin []byte) *PairingEventAnswer {
	return &PairingEventAnswer{Event: ev, Kind: AnswerPin, Pin: append([]byte(nil), pin...)}
}

// DataTypes is the subset of advertising data types the harness sets or inspects.
type DataTypes struct {
	CompleteLocalName             string
	IncompleteServiceClassUUIDs16 []string
	ManufacturerSpecificData      []byte
}

// AdvertiseRequest starts advertising on a device.
type AdvertiseRequest struct {
	Legacy         bool
	Connectable    bool
	OwnAddressType OwnAddressType
	Data           DataTypes
}

// AdvertiseResponse is emitted for every connection made to the advertising set.
type AdvertiseResponse struct {
	Connection *Connection
}

// ScanRequest starts scanning on a device.
type ScanRequest struct {
	Legacy         bool
	Passive        bool
	OwnAddressType OwnAddressType
}

// ScanningResponse is one advertising report.
type ScanningResponse struct {
	Address     Address
	AddressType OwnAddressType // PublicAddress or RandomAddress
	Legacy      bool
	Connectable bool
	RSSI        int32
	Data        DataTypes
}

// ConnectLERequest opens an LE connection to a peer.
type ConnectLERequest struct {
	OwnAddressType OwnAddressType
	Address        Address
	AddressType    OwnAddressType // peer address type, PublicAddress or RandomAddress
}

// ConnectLERequestFor builds a connect request targeting the advertiser of a scan report.
func ConnectLERequestFor(own OwnAddressType, report *ScanningResponse) ConnectLERequest {
	return ConnectLERequest{OwnAddressType: own, Address: report.Address, AddressType: report.AddressType}
}

// ServiceType distinguishes primary and secondary GATT services.
type ServiceType int32

const (
	PrimaryService ServiceType = iota
	SecondaryService
)

// GattCharacteristic is a discovered characteristic.
type GattCharacteristic struct {
	Handle     uint32
	UUID       string
	Properties uint32
}

// GattService is a discovered service including its included services.
type GattService struct {
	Handle           uint32
	UUID             string
	Type             ServiceType
	Characteristics  []GattCharacteristic
	IncludedServices []GattService
}

// Source is an A2DP source stream endpoint token.
type Source struct {
	cookie []byte
}

// NewSource wraps the serialized source token.
func NewSource(raw []byte) *Source { return &Source{cookie: append([]byte(nil), raw...)} }

// Raw returns the serialized token.
func (s *Source) Raw() []byte {
	if s == nil {
		return nil
	}
	return s.cookie
}

// Sink is an A2DP sink stream endpoint token.
type Sink struct {
	cookie []byte
}

// NewSink wraps the serialized sink token.
func NewSink(raw []byte) *Sink { return &Sink{cookie: append([]byte(nil), raw...)} }

// Raw returns the serialized token.
func (s *Sink) Raw() []byte {
	if s == nil {
		return nil
	}
	return s.cookie
}

// Codec identifies an A2DP codec.
type Codec string

const (
	CodecSBC     Codec = "sbc"
	CodecAAC     Codec = "mpeg_aac"
	CodecVendor  Codec = "vendor"
	CodecUnknown Codec = ""
)

// ChannelMode of an A2DP configuration.
type ChannelMode int32

const (
	ChannelModeUnknown ChannelMode = iota
	ChannelModeMono
	ChannelModeStereo
	ChannelModeDual
)

// CodecParameters are the negotiated stream parameters.
type CodecParameters struct {
	SamplingFrequencyHz uint32
	BitDepth            uint32
	ChannelMode         ChannelMode
}

// Configuration is an A2DP codec configuration.
type Configuration struct {
	Codec      Codec
	Parameters CodecParameters
}

// PresetRecord is a Hearing Access Service preset as seen by the DUT.
type PresetRecord struct {
	Index     uint32
	Name      string
	Writable  bool
	Available bool
}

// Mute values for the VCP/AICS mute field.
const (
	NotMuted uint32 = 0x00
	Muted    uint32 = 0x01
)

// Gain modes for the AICS gain mode field.
const (
	GainModeManual    uint32 = 0x02
	GainModeAutomatic uint32 = 0x03
)

// IOCapability is a pairing IO capability.
type IOCapability string

const (
	DisplayOnly     IOCapability = "display_output_only"
	DisplayYesNo    IOCapability = "display_output_and_yes_no_input"
	KeyboardOnly    IOCapability = "keyboard_input_only"
	NoInputNoOutput IOCapability = "no_output_no_input"
	KeyboardDisplay IOCapability = "display_output_and_keyboard_input"
)

// Valid reports whether c is a known IO capability.
func (c IOCapability) Valid() bool {
	switch c {
	case DisplayOnly, DisplayYesNo, KeyboardOnly, NoInputNoOutput, KeyboardDisplay:
		return true
	}
	return false
}

// PairingConfig is the pairing policy of a Bumble reference device.
type PairingConfig struct {
	SecureConnections bool
	MITM              bool
	Bonding           bool
	IdentityAddress   OwnAddressType
}

// KeyDistribution selects the key a Bumble reference distributes during
// pairing. The server accepts one key per direction, not a set.
type KeyDistribution int32

const (
	DistributeEncryptionKey KeyDistribution = iota
	DistributeIdentityKey
	DistributeSigningKey
	DistributeLinkKey
)

// OverrideRequest reconfigures the pairing delegate of a Bumble reference device.
type OverrideRequest struct {
	IOCapability             IOCapability
	Pairing                  PairingConfig
	InitiatorKeyDistribution KeyDistribution
	ResponderKeyDistribution KeyDistribution
}
