// Package rfcomm speaks the RFCOMM multiplexer protocol over an L2CAP channel
// opened on the RFCOMM PSM. It covers the session start and data link
// establishment, which is enough to tell whether a peer accepts a server
// channel.
package rfcomm

import (
	"errors"
	"fmt"
)

// Frame types, without the poll/final bit.
const (
	SABM byte = 0x2F
	UA   byte = 0x63
	DM   byte = 0x0F
	DISC byte = 0x43
	UIH  byte = 0xEF
)

const pfBit byte = 0x10

// Multiplexer control command types.
const (
	MCCParameterNegotiation byte = 0x20
)

// ErrMalformed reports a frame that cannot be decoded.
var ErrMalformed = errors.New("rfcomm: malformed frame")

// Frame is one RFCOMM frame.
type Frame struct {
	DLCI uint8
	CR   bool // command/response bit of the address field
	Type byte
	PF   bool // poll/final bit
	Info []byte
}

// DLCI returns the data link of server channel on the responder of the
// session, seen from the initiator.
func DLCI(channel uint8) uint8 {
	return channel << 1
}

func (f Frame) String() string {
	name := map[byte]string{SABM: "SABM", UA: "UA", DM: "DM", DISC: "DISC", UIH: "UIH"}[f.Type]
	if name == "" {
		name = fmt.Sprintf("0x%02x", f.Type)
	}
	return fmt.Sprintf("%s(dlci=%d, len=%d)", name, f.DLCI, len(f.Info))
}

// Marshal encodes the frame with its FCS.
func (f Frame) Marshal() []byte {
	addr := 0x01 | f.DLCI<<2
	if f.CR {
		addr |= 0x02
	}
	ctrl := f.Type
	if f.PF {
		ctrl |= pfBit
	}

	b := []byte{addr, ctrl}
	n := len(f.Info)
	if n <= 0x7F {
		b = append(b, byte(n<<1)|0x01)
	} else {
		b = append(b, byte(n<<1), byte(n>>7))
	}
	covered := len(b)
	if f.Type == UIH {
		covered = 2
	}
	fcs := fcs(b[:covered])
	b = append(b, f.Info...)
	return append(b, fcs)
}

// Parse decodes b and checks its FCS.
func Parse(b []byte) (Frame, error) {
	if len(b) < 4 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	f := Frame{
		DLCI: b[0] >> 2,
		CR:   b[0]&0x02 != 0,
		Type: b[1] &^ pfBit,
		PF:   b[1]&pfBit != 0,
	}
	n, hdr := int(b[2]>>1), 3
	if b[2]&0x01 == 0 {
		if len(b) < 5 {
			return Frame{}, fmt.Errorf("%w: truncated length", ErrMalformed)
		}
		n |= int(b[3]) << 7
		hdr = 4
	}
	if len(b) != hdr+n+1 {
		return Frame{}, fmt.Errorf("%w: length %d, got %d bytes", ErrMalformed, n, len(b))
	}
	covered := hdr
	if f.Type == UIH {
		covered = 2
	}
	if want := fcs(b[:covered]); b[len(b)-1] != want {
		return Frame{}, fmt.Errorf("%w: fcs 0x%02x, want 0x%02x", ErrMalformed, b[len(b)-1], want)
	}
	f.Info = append([]byte(nil), b[hdr:hdr+n]...)
	return f, nil
}

// fcs is the reflected CRC-8 (polynomial x^8+x^2+x+1) of the frame header.
func fcs(b []byte) byte {
	crc := byte(0xFF)
	for _, v := range b {
		crc ^= v
		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc = crc>>1 ^ 0xE0
			} else {
				crc >>= 1
			}
		}
	}
	return 0xFF - crc
}

// MCC is a multiplexer control message carried in a UIH frame on DLCI 0.
type MCC struct {
	Type    byte
	Command bool
	Value   []byte
}

// Marshal encodes the message as UIH information.
func (m MCC) Marshal() []byte {
	t := m.Type<<2 | 0x01
	if m.Command {
		t |= 0x02
	}
	return append([]byte{t, byte(len(m.Value)<<1) | 0x01}, m.Value...)
}

// ParseMCC decodes the information of a UIH frame on DLCI 0.
func ParseMCC(info []byte) (MCC, error) {
	if len(info) < 2 || info[1]&0x01 == 0 {
		return MCC{}, fmt.Errorf("%w: multiplexer command", ErrMalformed)
	}
	n := int(info[1] >> 1)
	if len(info) < 2+n {
		return MCC{}, fmt.Errorf("%w: multiplexer command length %d", ErrMalformed, n)
	}
	return MCC{
		Type:    info[0] >> 2,
		Command: info[0]&0x02 != 0,
		Value:   append([]byte(nil), info[2:2+n]...),
	}, nil
}

// ParameterNegotiation is the PN command value for dlci with credit based
// flow control.
func ParameterNegotiation(dlci uint8, maxFrameSize uint16, credits uint8) MCC {
	return MCC{
		Type:    MCCParameterNegotiation,
		Command: true,
		Value: []byte{
			dlci,
			0xF0, // credit based flow control
			7,    // priority
			0,    // acknowledgement timer, unused
			byte(maxFrameSize), byte(maxFrameSize >> 8),
			0, // retransmissions, unused
			credits,
		},
	}
}
