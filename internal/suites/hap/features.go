package hap

import "fmt"

// HearingAidType is the two low bits of the Hearing Aid Features value.
type HearingAidType uint8

const (
	Binaural HearingAidType = iota
	Monaural
	Banded
)

func (t HearingAidType) String() string {
	switch t {
	case Binaural:
		return "binaural"
	case Monaural:
		return "monaural"
	case Banded:
		return "banded"
	default:
		return fmt.Sprintf("reserved(%d)", uint8(t))
	}
}

// Features is the decoded Hearing Aid Features characteristic.
type Features struct {
	Type               HearingAidType
	PresetSync         bool // preset synchronization supported
	IndependentPresets bool // preset records differ between the two hearing aids
	DynamicPresets     bool // preset records may change
	WritablePresets    bool // writable preset records supported
}

// ParseFeatures decodes the characteristic value.
func ParseFeatures(b byte) Features {
	return Features{
		Type:               HearingAidType(b & 0x03),
		PresetSync:         b&(1<<2) != 0,
		IndependentPresets: b&(1<<3) != 0,
		DynamicPresets:     b&(1<<4) != 0,
		WritablePresets:    b&(1<<5) != 0,
	}
}

// Byte encodes f.
func (f Features) Byte() byte {
	b := byte(f.Type) & 0x03
	for i, set := range []bool{f.PresetSync, f.IndependentPresets, f.DynamicPresets, f.WritablePresets} {
		if set {
			b |= 1 << (2 + i)
		}
	}
	return b
}
