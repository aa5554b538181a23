package rfcomm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_KnownFrames(t *testing.T) {
	// GOAL: Verify frames encode byte for byte as seen in air traces
	//
	// TEST SCENARIO: SABM and UA on DLCI 0, UIH header-only FCS → exact bytes
	assert.Equal(t, []byte{0x03, 0x3F, 0x01, 0x1C}, Frame{CR: true, Type: SABM, PF: true}.Marshal(),
		"SABM on the control channel MUST encode with FCS 0x1C")
	assert.Equal(t, []byte{0x03, 0x73, 0x01, 0xD7}, Frame{CR: true, Type: UA, PF: true}.Marshal())
	assert.Equal(t, []byte{0x13, 0x3F, 0x01, 0x96}, Frame{DLCI: DLCI(2), CR: true, Type: SABM, PF: true}.Marshal(),
		"server channel 2 MUST map to DLCI 4")

	uih := Frame{CR: true, Type: UIH, Info: []byte{0xAA}}.Marshal()
	assert.Equal(t, byte(0x70), uih[len(uih)-1], "UIH FCS MUST cover address and control only")
}

func TestParse_ChecksFCSAndLength(t *testing.T) {
	f, err := Parse([]byte{0x13, 0x1F, 0x01, 0x00})
	require.ErrorIs(t, err, ErrMalformed, "a bad FCS MUST be rejected")
	assert.Zero(t, f.Type)

	dm := Frame{DLCI: 4, CR: true, Type: DM, PF: true}.Marshal()
	f, err = Parse(dm)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), f.DLCI)
	assert.Equal(t, DM, f.Type)
	assert.True(t, f.PF)

	_, err = Parse(dm[:3])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_TwoByteLength(t *testing.T) {
	info := bytes.Repeat([]byte{0x5A}, 300)
	f, err := Parse(Frame{DLCI: 4, Type: UIH, Info: info}.Marshal())
	require.NoError(t, err)
	assert.Equal(t, info, f.Info, "information longer than 127 bytes MUST use the two byte length")
}

func TestMCC_ParameterNegotiation(t *testing.T) {
	pn := ParameterNegotiation(DLCI(2), 127, 7).Marshal()
	assert.Equal(t, []byte{0x83, 0x11, 0x04, 0xF0, 0x07, 0x00, 0x7F, 0x00, 0x00, 0x07}, pn)

	m, err := ParseMCC(pn)
	require.NoError(t, err)
	assert.Equal(t, MCCParameterNegotiation, m.Type)
	assert.True(t, m.Command)
	assert.Len(t, m.Value, 8)

	_, err = ParseMCC([]byte{0x81, 0x11, 0x04})
	assert.ErrorIs(t, err, ErrMalformed, "a truncated command MUST be rejected")
}
