// Package hap tests the Hearing Access Profile client of the DUT against a
// Bumble hearing aid.
//
// The reference device must be launched with a Hearing Access Service
// advertising ServerFeatures and holding ServerPresets.
package hap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/srg/btharness/internal/gattuuid"
	"github.com/srg/btharness/internal/harness"
	"github.com/srg/btharness/internal/link"
	"github.com/srg/btharness/internal/pandora"
)

// CompleteLocalName is advertised by the hearing aid.
const CompleteLocalName = "Bumble"

// MTU requested by the DUT once connected.
const MTU = 512

const longName = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua."

// Presets of the reference hearing aid.
var (
	FooPreset         = pandora.PresetRecord{Index: 1, Name: "foo preset", Writable: true, Available: true}
	BarPreset         = pandora.PresetRecord{Index: 50, Name: "bar preset", Writable: true, Available: true}
	LongNamePreset    = pandora.PresetRecord{Index: 5, Name: "[" + longName[:38] + "]", Writable: true, Available: true}
	UnavailablePreset = pandora.PresetRecord{Index: 7, Name: "unavailable preset"}
)

// ServerPresets are the preset records the hearing aid exposes.
var ServerPresets = []pandora.PresetRecord{FooPreset, BarPreset, LongNamePreset, UnavailablePreset}

// ServerFeatures are the features the hearing aid exposes.
var ServerFeatures = Features{Type: Monaural, WritablePresets: true}

// Polling of verify_no_crash.
const (
	PollCount    = 10
	PollInterval = 300 * time.Millisecond
)

func init() {
	harness.AddClass("HapTest", func() harness.Class { return New() })
}

// Class is the HAP test class.
type Class struct {
	harness.BaseClass
	PollInterval time.Duration
}

// New returns the class with the default polling interval.
func New() *Class {
	return &Class{BaseClass: harness.BaseClass{ClassName: "HapTest"}, PollInterval: PollInterval}
}

func (c *Class) SetupClass(ctx context.Context, tb *harness.Testbed) error {
	if tb.DUT().IsBumble() {
		return fmt.Errorf("%s: Bumble DUT does not support HAP", tb.DUT().Name)
	}
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
		{Name: "get_features", Run: c.getFeatures},
		{Name: "get_preset", Run: c.getPreset},
		{Name: "get_active_preset", Run: c.getActivePreset},
		{Name: "verify_no_crash", Run: c.verifyNoCrash},
	}
}

// connect brings up a secured HAP connection from the DUT to the hearing aid
// and returns the DUT's connection token.
func connect(ctx context.Context, t *harness.T) *pandora.Connection {
	dut, ref := t.DUT(), t.Ref(0)

	adv, err := ref.Host.Advertise(ctx, pandora.AdvertiseRequest{
		Legacy:         true,
		Connectable:    true,
		OwnAddressType: pandora.RandomAddress,
		Data: pandora.DataTypes{
			CompleteLocalName:             CompleteLocalName,
			IncompleteServiceClassUUIDs16: []string{fmt.Sprintf("%04X", gattuuid.HearingAccessService)},
		},
	})
	t.NoError(err, "%s MUST advertise HAS", ref.Name)
	defer adv.Close()

	report, err := link.ScanFor(ctx, dut, link.WithServiceUUID16(gattuuid.HearingAccessService))
	t.NoError(err, "DUT MUST find the hearing aid")

	p, err := link.ConnectAdvertiser(ctx, dut, ref, adv, pandora.ConnectLERequestFor(pandora.RandomAddress, report))
	t.NoError(err, "DUT MUST connect to the hearing aid")

	t.NoError(dut.GATT.ExchangeMTU(ctx, p.Initiator, MTU))
	t.NoError(link.Secure(ctx, p, dut, ref, pandora.LELevel3), "link MUST reach LE_LEVEL3")
	t.NoError(dut.HAP.WaitPeripheral(ctx, p.Initiator), "DUT MUST discover the hearing aid")
	return p.Initiator
}

// sortedPresets returns the server presets in index order, as the DUT lists them.
func sortedPresets() []pandora.PresetRecord {
	out := append([]pandora.PresetRecord(nil), ServerPresets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// requireIdenticalPresets fails the test unless the DUT lists exactly the server presets, in order.
func requireIdenticalPresets(ctx context.Context, t *harness.T, conn *pandora.Connection) {
	got, err := t.DUT().HAP.GetAllPresetRecords(ctx, conn)
	t.NoError(err)
	if diff := cmp.Diff(sortedPresets(), got); diff != "" {
		t.Fatalf("preset records mismatch (-server +dut):\n%s", diff)
	}
}

func (c *Class) getFeatures(ctx context.Context, t *harness.T) {
	conn := connect(ctx, t)
	raw, err := t.DUT().HAP.GetFeatures(ctx, conn)
	t.NoError(err)
	if diff := cmp.Diff(ServerFeatures, ParseFeatures(raw)); diff != "" {
		t.Fatalf("hearing aid features mismatch (-server +dut):\n%s", diff)
	}
}

func (c *Class) getPreset(ctx context.Context, t *harness.T) {
	conn := connect(ctx, t)
	requireIdenticalPresets(ctx, t, conn)
}

func (c *Class) getActivePreset(ctx context.Context, t *harness.T) {
	conn := connect(ctx, t)
	active, err := t.DUT().HAP.GetActivePresetRecord(ctx, conn)
	t.NoError(err)
	t.Require().NotNil(active, "DUT MUST report an active preset")
	if diff := cmp.Diff(FooPreset, *active); diff != "" {
		t.Fatalf("active preset mismatch (-server +dut):\n%s", diff)
	}
}

// verifyNoCrash polls the preset list to check the DUT's HAP client stays up.
func (c *Class) verifyNoCrash(ctx context.Context, t *harness.T) {
	conn := connect(ctx, t)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for i := 0; i < PollCount; i++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatalf("polling interrupted after %d checks: %v", i, ctx.Err())
		}
		requireIdenticalPresets(ctx, t, conn)
	}
}
