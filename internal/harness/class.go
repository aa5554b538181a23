package harness

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/pandora"
)

// Testbed is what classes run against.
type Testbed struct {
	Devices *pandora.Devices
	Logger  *logrus.Logger
}

// DUT returns the device under test.
func (tb *Testbed) DUT() *pandora.Device {
	return tb.Devices.DUT()
}

// Test is a single test of a class.
type Test struct {
	Name string
	// Timeout overrides the runner's per-test timeout when not zero.
	Timeout time.Duration
	Run     func(ctx context.Context, t *T)
}

// Class is a group of tests sharing setup.
type Class interface {
	Name() string
	SetupClass(ctx context.Context, tb *Testbed) error
	TeardownClass(ctx context.Context, tb *Testbed) error
	SetupTest(ctx context.Context, t *T) error
	TeardownTest(ctx context.Context, t *T) error
	Tests() []Test
}

// Disabler is implemented by classes excluded from default runs.
type Disabler interface {
	DisabledReason() string
}

// BaseClass provides no-op hooks. Embed it and override what the class needs.
type BaseClass struct {
	ClassName string
}

func (b BaseClass) Name() string { return b.ClassName }
func (BaseClass) SetupClass(context.Context, *Testbed) error { return nil }
func (BaseClass) TeardownClass(context.Context, *Testbed) error { return nil }
func (BaseClass) SetupTest(context.Context, *T) error { return nil }
func (BaseClass) TeardownTest(context.Context, *T) error { return nil }

// ResetDevices factory-resets every device of the testbed and writes a test
// marker to the DUT log. Classes call it from SetupTest.
func ResetDevices(ctx context.Context, t *T) error {
	tb := t.Testbed()
	if err := tb.Devices.ResetAll(ctx); err != nil {
		return err
	}
	marker := "=== TEST: " + t.FullName()
	if err := tb.DUT().OS.Log(ctx, marker); err != nil {
		t.Log().WithError(err).Debug("DUT log marker not written")
	}
	return nil
}
