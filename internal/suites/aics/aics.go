// Package aics checks that the DUT's GATT client exposes the Audio Input
// Control Service only as a service included by the Volume Control Service.
//
// The reference device must be launched with an AICS instance included by VCS.
package aics

import (
	"context"
	"fmt"

	"github.com/srg/btharness/internal/gattuuid"
	"github.com/srg/btharness/internal/harness"
	"github.com/srg/btharness/internal/link"
	"github.com/srg/btharness/internal/pandora"
)

func init() {
	harness.AddClass("AicsTest", func() harness.Class { return New() })
}

// Class is the AICS test class.
type Class struct {
	harness.BaseClass
}

func New() *Class {
	return &Class{BaseClass: harness.BaseClass{ClassName: "AicsTest"}}
}

func (c *Class) SetupClass(ctx context.Context, tb *harness.Testbed) error {
	ref, err := tb.Devices.Ref(0)
	if err != nil {
		return err
	}
	if !ref.IsBumble() {
		return fmt.Errorf("%s: test requires a Bumble reference device", ref.Name)
	}
	return nil
}

func (c *Class) SetupTest(ctx context.Context, t *harness.T) error {
	return harness.ResetDevices(ctx, t)
}

func (c *Class) Tests() []harness.Test {
	return []harness.Test{
		{Name: "do_not_discover_aics_as_primary_service", Run: c.notPrimary},
		{Name: "gatt_discover_aics_service", Run: c.includedByVCS},
	}
}

// discover connects the DUT to the reference's public address and returns the
// services the DUT discovers.
func discover(ctx context.Context, t *harness.T) []pandora.GattService {
	dut, ref := t.DUT(), t.Ref(0)

	adv, err := ref.Host.Advertise(ctx, pandora.AdvertiseRequest{Legacy: true, Connectable: true})
	t.NoError(err, "%s MUST advertise", ref.Name)
	defer adv.Close()

	p, err := link.ConnectAdvertiser(ctx, dut, ref, adv, pandora.ConnectLERequest{
		OwnAddressType: pandora.RandomAddress,
		Address:        ref.Address(),
		AddressType:    pandora.PublicAddress,
	})
	t.NoError(err, "DUT MUST connect to %s", ref.Name)

	services, err := dut.GATT.DiscoverServices(ctx, p.Initiator)
	t.NoError(err, "DUT MUST discover services")
	return services
}

func (c *Class) notPrimary(ctx context.Context, t *harness.T) {
	var primary []string
	for _, svc := range discover(ctx, t) {
		if svc.Type == pandora.PrimaryService {
			primary = append(primary, svc.UUID)
		}
	}
	t.Require().True(containsUUID(primary, gattuuid.VolumeControlService), "VCS MUST be a primary service, got %v", primary)
	t.Require().False(containsUUID(primary, gattuuid.AudioInputControlService), "AICS MUST NOT be a primary service, got %v", primary)
}

func (c *Class) includedByVCS(ctx context.Context, t *harness.T) {
	var vcs []pandora.GattService
	for _, svc := range discover(ctx, t) {
		if gattuuid.Is(svc.UUID, gattuuid.VolumeControlService) {
			vcs = append(vcs, svc)
		}
	}
	t.Require().Len(vcs, 1, "exactly one VCS instance MUST be discovered")

	var included []string
	for _, inc := range vcs[0].IncludedServices {
		included = append(included, inc.UUID)
	}
	t.Require().True(containsUUID(included, gattuuid.AudioInputControlService), "VCS MUST include AICS, got %v", included)
}

func containsUUID(uuids []string, want uint16) bool {
	for _, u := range uuids {
		if gattuuid.Is(u, want) {
			return true
		}
	}
	return false
}
