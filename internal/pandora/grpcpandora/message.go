package grpcpandora

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/srg/btharness/internal/pandora"
)

var deterministic = proto.MarshalOptions{Deterministic: true}

// msg is a thin field-by-name view over a dynamic message.
type msg struct {
	protoreflect.Message
}

func (s *schema) newMsg(name protoreflect.FullName) msg {
	return msg{dynamicpb.NewMessage(s.message(name))}
}

func newMsgOf(md protoreflect.MessageDescriptor) msg {
	return msg{dynamicpb.NewMessage(md)}
}

func (m msg) field(name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("grpcpandora: %s has no field %q", m.Descriptor().FullName(), name))
	}
	return fd
}

func (m msg) setBytes(name string, b []byte) msg {
	m.Set(m.field(name), protoreflect.ValueOfBytes(b))
	return m
}

func (m msg) setString(name, v string) msg {
	m.Set(m.field(name), protoreflect.ValueOfString(v))
	return m
}

func (m msg) setBool(name string, v bool) msg {
	m.Set(m.field(name), protoreflect.ValueOfBool(v))
	return m
}

func (m msg) setUint(name string, v uint32) msg {
	m.Set(m.field(name), protoreflect.ValueOfUint32(v))
	return m
}

func (m msg) setInt(name string, v int32) msg {
	m.Set(m.field(name), protoreflect.ValueOfInt32(v))
	return m
}

func (m msg) setEnum(name string, v int32) msg {
	m.Set(m.field(name), protoreflect.ValueOfEnum(protoreflect.EnumNumber(v)))
	return m
}

// mutable returns the sub-message stored in field name, allocating it if unset.
// Setting an empty sub-message selects an Empty oneof variant.
func (m msg) mutable(name string) msg {
	return msg{m.Mutable(m.field(name)).Message()}
}

// setRaw replaces the sub-message in field name with the serialized message raw.
func (m msg) setRaw(name string, raw []byte) error {
	sub := m.mutable(name)
	if err := proto.Unmarshal(raw, sub.Interface()); err != nil {
		return fmt.Errorf("invalid %s token: %w", sub.Descriptor().FullName(), err)
	}
	return nil
}

func (m msg) has(name string) bool {
	return m.Has(m.field(name))
}

func (m msg) bytes(name string) []byte {
	return m.Get(m.field(name)).Bytes()
}

func (m msg) str(name string) string {
	return m.Get(m.field(name)).String()
}

func (m msg) boolean(name string) bool {
	return m.Get(m.field(name)).Bool()
}

func (m msg) uint(name string) uint32 {
	return uint32(m.Get(m.field(name)).Uint())
}

func (m msg) int(name string) int32 {
	return int32(m.Get(m.field(name)).Int())
}

func (m msg) enum(name string) int32 {
	return int32(m.Get(m.field(name)).Enum())
}

func (m msg) sub(name string) msg {
	return msg{m.Get(m.field(name)).Message()}
}

func (m msg) list(name string) protoreflect.List {
	return m.Get(m.field(name)).List()
}

// raw serializes the sub-message in field name so it can be echoed back later.
func (m msg) raw(name string) ([]byte, error) {
	return deterministic.Marshal(m.sub(name).Interface())
}

// which returns the name of the populated field of a oneof, or "" when none is set.
func (m msg) which(oneof string) string {
	od := m.Descriptor().Oneofs().ByName(protoreflect.Name(oneof))
	if od == nil {
		panic(fmt.Sprintf("grpcpandora: %s has no oneof %q", m.Descriptor().FullName(), oneof))
	}
	fd := m.WhichOneof(od)
	if fd == nil {
		return ""
	}
	return string(fd.Name())
}

// result maps a response result oneof to an error. Variants listed in ok are successes.
func result(op string, m msg, ok ...string) error {
	variant := m.which("result")
	for _, v := range ok {
		if variant == v {
			return nil
		}
	}
	if variant == "" {
		variant = "empty_result"
	}
	return &pandora.ResultError{Op: op, Variant: variant}
}

func (s *schema) connectionMsg(conn *pandora.Connection) (msg, error) {
	m := s.newMsg("pandora.Connection")
	if conn == nil {
		return m, fmt.Errorf("nil connection")
	}
	if err := proto.Unmarshal(conn.Raw(), m.Interface()); err != nil {
		return m, fmt.Errorf("invalid connection token: %w", err)
	}
	return m, nil
}

// withConnection builds a request message carrying conn in its "connection" field.
func (s *schema) withConnection(name protoreflect.FullName, conn *pandora.Connection) (msg, error) {
	m := s.newMsg(name)
	if conn == nil {
		return m, fmt.Errorf("%s: nil connection", name)
	}
	if err := m.setRaw("connection", conn.Raw()); err != nil {
		return m, err
	}
	return m, nil
}

func connectionFrom(m msg, name string) (*pandora.Connection, error) {
	raw, err := m.raw(name)
	if err != nil {
		return nil, err
	}
	return pandora.NewConnection(raw), nil
}

// setAddressOneof sets the address variant matching addrType ("public" or "random").
func setAddressOneof(m msg, addr pandora.Address, addrType pandora.OwnAddressType) {
	switch addrType {
	case pandora.RandomAddress, pandora.ResolvableOrRandomAddress:
		m.setBytes("random", addr.Bytes())
	default:
		m.setBytes("public", addr.Bytes())
	}
}

func addressOneof(m msg) (pandora.Address, pandora.OwnAddressType, error) {
	switch v := m.which("address"); v {
	case "public", "public_identity":
		a, err := pandora.AddressFromBytes(m.bytes(v))
		return a, pandora.PublicAddress, err
	case "random", "random_static_identity":
		a, err := pandora.AddressFromBytes(m.bytes(v))
		return a, pandora.RandomAddress, err
	default:
		return pandora.Address{}, pandora.PublicAddress, fmt.Errorf("%s: no address", m.Descriptor().FullName())
	}
}

func setLevel(m msg, level pandora.SecurityLevel) error {
	switch l := level.(type) {
	case pandora.ClassicLevel:
		m.setEnum("classic", int32(l))
	case pandora.LELevel:
		m.setEnum("le", int32(l))
	default:
		return fmt.Errorf("unsupported security level %v", level)
	}
	return nil
}

func dataTypesFrom(m msg) pandora.DataTypes {
	dt := pandora.DataTypes{
		CompleteLocalName:        m.str("complete_local_name"),
		ManufacturerSpecificData: append([]byte(nil), m.bytes("manufacturer_specific_data")...),
	}
	l := m.list("incomplete_service_class_uuids16")
	for i := 0; i < l.Len(); i++ {
		dt.IncompleteServiceClassUUIDs16 = append(dt.IncompleteServiceClassUUIDs16, l.Get(i).String())
	}
	return dt
}

func setDataTypes(m msg, dt pandora.DataTypes) {
	if dt.CompleteLocalName != "" {
		m.setString("complete_local_name", dt.CompleteLocalName)
	}
	if len(dt.ManufacturerSpecificData) > 0 {
		m.setBytes("manufacturer_specific_data", dt.ManufacturerSpecificData)
	}
	if len(dt.IncompleteServiceClassUUIDs16) > 0 {
		l := m.Mutable(m.field("incomplete_service_class_uuids16")).List()
		for _, u := range dt.IncompleteServiceClassUUIDs16 {
			l.Append(protoreflect.ValueOfString(u))
		}
	}
}

// pairingEventFrom converts an OnPairing event, keeping its serialized form for answers.
func pairingEventFrom(m msg) (*pandora.PairingEvent, error) {
	raw, err := deterministic.Marshal(m.Interface())
	if err != nil {
		return nil, err
	}
	ev := &pandora.PairingEvent{Raw: raw}

	switch m.which("remote") {
	case "address":
		if ev.Address, err = pandora.AddressFromBytes(m.bytes("address")); err != nil {
			return nil, err
		}
	case "connection":
		if ev.Connection, err = connectionFrom(m, "connection"); err != nil {
			return nil, err
		}
	}

	method := m.which("method")
	if method == "" {
		return nil, fmt.Errorf("pairing event without method")
	}
	ev.Method = pandora.PairingMethod(method)
	switch ev.Method {
	case pandora.MethodNumericComparison:
		ev.NumericComparison = m.uint("numeric_comparison")
	case pandora.MethodPasskeyEntryNotification:
		ev.Passkey = m.uint("passkey_entry_notification")
	case pandora.MethodPinCodeNotification:
		ev.Pin = append([]byte(nil), m.bytes("pin_code_notification")...)
	}
	return ev, nil
}

func (s *schema) pairingAnswerMsg(a *pandora.PairingEventAnswer) (msg, error) {
	m := s.newMsg("pandora.PairingEventAnswer")
	if a == nil || a.Event == nil {
		return m, fmt.Errorf("pairing answer without event")
	}
	if err := m.setRaw("event", a.Event.Raw); err != nil {
		return m, err
	}
	switch a.Kind {
	case pandora.AnswerConfirm:
		m.setBool("confirm", a.Confirm)
	case pandora.AnswerPasskey:
		m.setUint("passkey", a.Passkey)
	case pandora.AnswerPin:
		m.setBytes("pin", a.Pin)
	default:
		return m, fmt.Errorf("unknown answer kind %d", a.Kind)
	}
	return m, nil
}

func presetFrom(m msg) pandora.PresetRecord {
	return pandora.PresetRecord{
		Index:     m.uint("index"),
		Name:      m.str("name"),
		Writable:  m.boolean("is_writable"),
		Available: m.boolean("is_available"),
	}
}

func presetsFrom(l protoreflect.List) []pandora.PresetRecord {
	out := make([]pandora.PresetRecord, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		out = append(out, presetFrom(msg{l.Get(i).Message()}))
	}
	return out
}

func gattServiceFrom(m msg) pandora.GattService {
	svc := pandora.GattService{
		Handle: m.uint("handle"),
		UUID:   m.str("uuid"),
		Type:   pandora.ServiceType(m.uint("type")),
	}
	chars := m.list("characteristics")
	for i := 0; i < chars.Len(); i++ {
		c := msg{chars.Get(i).Message()}
		svc.Characteristics = append(svc.Characteristics, pandora.GattCharacteristic{
			Handle:     c.uint("handle"),
			UUID:       c.str("uuid"),
			Properties: c.uint("properties"),
		})
	}
	included := m.list("included_services")
	for i := 0; i < included.Len(); i++ {
		svc.IncludedServices = append(svc.IncludedServices, gattServiceFrom(msg{included.Get(i).Message()}))
	}
	return svc
}

func configurationFrom(m msg) *pandora.Configuration {
	cfg := &pandora.Configuration{}
	switch m.sub("id").which("type") {
	case "sbc":
		cfg.Codec = pandora.CodecSBC
	case "mpeg_aac":
		cfg.Codec = pandora.CodecAAC
	case "vendor":
		cfg.Codec = pandora.CodecVendor
	}
	p := m.sub("parameters")
	cfg.Parameters = pandora.CodecParameters{
		SamplingFrequencyHz: p.uint("sampling_frequency_hz"),
		BitDepth:            p.uint("bit_depth"),
		ChannelMode:         pandora.ChannelMode(p.enum("channel_mode")),
	}
	return cfg
}

func setConfiguration(m msg, cfg pandora.Configuration) error {
	id := m.mutable("id")
	switch cfg.Codec {
	case pandora.CodecSBC:
		id.mutable("sbc")
	case pandora.CodecAAC:
		id.mutable("mpeg_aac")
	default:
		return fmt.Errorf("codec %q: %w", cfg.Codec, pandora.ErrUnsupported)
	}
	m.mutable("parameters").
		setUint("sampling_frequency_hz", cfg.Parameters.SamplingFrequencyHz).
		setUint("bit_depth", cfg.Parameters.BitDepth).
		setEnum("channel_mode", int32(cfg.Parameters.ChannelMode))
	return nil
}

var ioCapabilities = map[pandora.IOCapability]int32{
	pandora.DisplayOnly:     0,
	pandora.DisplayYesNo:    1,
	pandora.KeyboardOnly:    2,
	pandora.NoInputNoOutput: 3,
	pandora.KeyboardDisplay: 4,
}
