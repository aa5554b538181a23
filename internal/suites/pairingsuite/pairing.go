// Package pairingsuite registers every class of the pairing catalog with the harness.
package pairingsuite

import (
	"context"

	"github.com/srg/btharness/internal/harness"
	"github.com/srg/btharness/internal/pairing"
)

func init() {
	for _, c := range pairing.Catalog() {
		harness.AddClass(c.Name, func() harness.Class { return NewClass(c) })
	}
}

// Class runs the scenarios of one catalog class, one test per scenario.
type Class struct {
	harness.BaseClass
	class *pairing.Class
}

// NewClass wraps a catalog class.
func NewClass(c *pairing.Class) *Class {
	return &Class{BaseClass: harness.BaseClass{ClassName: c.Name}, class: c}
}

// SetupClass checks the testbed has a reference device.
func (c *Class) SetupClass(ctx context.Context, tb *harness.Testbed) error {
	_, err := tb.Devices.Ref(0)
	return err
}

// SetupTest resets the devices, then applies the class pairing configuration
// to the reference. A factory reset drops any runtime override.
func (c *Class) SetupTest(ctx context.Context, t *harness.T) error {
	if err := harness.ResetDevices(ctx, t); err != nil {
		return err
	}
	ref, err := t.Testbed().Devices.Ref(0)
	if err != nil {
		return err
	}
	return c.class.Configure(ctx, ref)
}

func (c *Class) DisabledReason() string { return c.class.Disabled }

func (c *Class) Tests() []harness.Test {
	tests := make([]harness.Test, 0, len(c.class.Scenarios))
	for _, sc := range c.class.Scenarios {
		tests = append(tests, harness.Test{
			Name: sc.Name,
			Run: func(ctx context.Context, t *harness.T) {
				err := c.class.Run(ctx, sc, t.DUT(), t.Ref(0), t.Log())
				t.NoError(err, "%s MUST complete", sc.Name)
			},
		})
	}
	return tests
}
