// Package gattuuid converts between 16-bit Bluetooth SIG UUIDs and full UUIDs.
package gattuuid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Base is the Bluetooth base UUID; 16-bit UUIDs live in its first group.
var Base = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// Services
const (
	AudioInputControlService          uint16 = 0x1843
	VolumeControlService              uint16 = 0x1844
	AudioStreamControlService         uint16 = 0x184E
	PublishedAudioCapabilitiesService uint16 = 0x1850
	HearingAccessService              uint16 = 0x1854
)

// Characteristics and descriptors
const (
	SinkASE                        uint16 = 0x2BC4
	ASEControlPoint                uint16 = 0x2BC6
	HearingAidFeatures             uint16 = 0x2BDA
	HearingAidPresetControlPoint   uint16 = 0x2BDB
	ActivePresetIndex              uint16 = 0x2BDC
	ClientCharacteristicConfigDesc uint16 = 0x2902
)

// From16 expands a 16-bit UUID.
func From16(v uint16) uuid.UUID {
	u := Base
	u[2] = byte(v >> 8)
	u[3] = byte(v)
	return u
}

// Short returns the 16-bit form of u when u is derived from the base UUID.
func Short(u uuid.UUID) (uint16, bool) {
	if u[0] != 0 || u[1] != 0 {
		return 0, false
	}
	for i := 4; i < 16; i++ {
		if u[i] != Base[i] {
			return 0, false
		}
	}
	return uint16(u[2])<<8 | uint16(u[3]), true
}

// Parse accepts a full UUID, or a 16-bit one with or without a 0x prefix.
func Parse(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if len(s) <= 6 {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid 16-bit uuid %q: %w", s, err)
		}
		return From16(uint16(v)), nil
	}
	return uuid.Parse(s)
}

// Equal reports whether both strings name the same UUID in any accepted form.
func Equal(a, b string) bool {
	ua, err := Parse(a)
	if err != nil {
		return false
	}
	ub, err := Parse(b)
	if err != nil {
		return false
	}
	return ua == ub
}

// Is reports whether s names the 16-bit UUID v.
func Is(s string, v uint16) bool {
	u, err := Parse(s)
	return err == nil && u == From16(v)
}

// String formats u in its shortest form: 0xXXXX for SIG UUIDs, canonical otherwise.
func String(u uuid.UUID) string {
	if v, ok := Short(u); ok {
		return fmt.Sprintf("0x%04X", v)
	}
	return strings.ToUpper(u.String())
}
