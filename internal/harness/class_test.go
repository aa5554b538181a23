//go:build test

package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/testutils"
)

func TestResetDevices(t *testing.T) {
	// GOAL: Verify the standard test setup resets every device and marks the DUT log
	//
	// TEST SCENARIO: both devices factory reset → DUT log gets "=== TEST: Class.test" → a log failure is tolerated
	h := testutils.NewTestHelper(t)
	tb := h.NewTestbed()
	for _, m := range []*testutils.MockServices{tb.DUTMocks, tb.RefMocks} {
		m.Host.On("FactoryReset").Return(nil).Once()
		m.Host.On("ReadLocalAddress").Return(pandora.MustParseAddress("00:00:00:00:00:01"), nil).Once()
	}
	tb.DUTMocks.OS.On("Log", "=== TEST: Pairing.general").Return(errors.New("unimplemented")).Once()

	ht := newT(context.Background(), "Pairing", "general", &Testbed{Devices: tb.Devices, Logger: h.Logger})
	require.NoError(t, ResetDevices(context.Background(), ht))
	tb.AssertExpectations(t)
	assert.False(t, ht.Failed())
}

func TestT_RefMissingAbortsClass(t *testing.T) {
	h := testutils.NewTestHelper(t)
	dut, _ := testutils.NewDeviceBuilder("dut").WithLogger(h.Logger).Build()
	ht := newT(context.Background(), "C", "t", &Testbed{Devices: pandora.NewDevices(dut), Logger: h.Logger})

	out := protect(context.Background(), "ref-missing", func(context.Context) { ht.Ref(0) })
	assert.NotEmpty(t, out.aborted, "missing reference MUST abort the class")
	assert.Same(t, dut, ht.DUT())
}
