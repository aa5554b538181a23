//go:build test

package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/testutils"
	"github.com/srg/btharness/pkg/config"
)

func TestServerRefConfig(t *testing.T) {
	ref, err := serverRefConfig(&config.LaunchConfig{
		IOCapability:      "display_output_and_yes_no_input",
		MITM:              true,
		Classic:           true,
		SSP:               true,
		SecureConnections: true,
	})
	require.NoError(t, err)
	assert.Equal(t, pandora.DisplayYesNo, ref.IOCapability)
	assert.True(t, ref.Bonding, "launched servers MUST bond")
	assert.True(t, ref.ClassicSC)

	server, ok := ref.ServerConfig().Get("server")
	require.True(t, ok)
	assert.NotNil(t, server)

	_, err = serverRefConfig(&config.LaunchConfig{IOCapability: "telepathy"})
	assert.Error(t, err, "unknown io capability MUST be rejected")
}

func TestOpenTestbed_NoDevices(t *testing.T) {
	_, err := openTestbed(context.Background(), config.DefaultConfig(), testutils.NewTestHelper(t).Logger)
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestWaitReady(t *testing.T) {
	// GOAL: Verify waitReady retries while the server is unavailable
	//
	// TEST SCENARIO: first address read unavailable, second succeeds → address refreshed
	helper := testutils.NewTestHelper(t)
	addr := pandora.MustParseAddress("2E:F0:00:00:00:09")
	dev, mocks := testutils.NewDeviceBuilder("ref").WithLogger(helper.Logger).Build()
	mocks.Host.On("ReadLocalAddress").Return(pandora.Address{}, pandora.ErrUnavailable).Once()
	mocks.Host.On("ReadLocalAddress").Return(addr, nil).Once()

	require.NoError(t, waitReady(context.Background(), dev, 5*time.Second))
	assert.Equal(t, addr, dev.Address())
	mocks.AssertExpectations(t)
}

func TestWaitReady_OtherErrorsFailFast(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	dev, mocks := testutils.NewDeviceBuilder("ref").WithLogger(helper.Logger).Build()
	mocks.Host.On("ReadLocalAddress").Return(pandora.Address{}, fmt.Errorf("boom")).Once()

	err := waitReady(context.Background(), dev, 5*time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, pandora.ErrUnavailable)
	mocks.AssertExpectations(t)
}

func TestWaitReady_Timeout(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	dev, mocks := testutils.NewDeviceBuilder("ref").WithLogger(helper.Logger).Build()
	mocks.Host.On("ReadLocalAddress").Return(pandora.Address{}, pandora.ErrUnavailable)

	err := waitReady(context.Background(), dev, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready after")
	assert.ErrorIs(t, err, pandora.ErrUnavailable)
}
