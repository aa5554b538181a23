package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/btharness/internal/pandora"
)

// IO capabilities of an Android DUT.
const (
	DUTClassicIO = pandora.DisplayYesNo
	DUTLEIO      = pandora.KeyboardDisplay
)

// RefConfig is the configuration a reference device needs for a class.
type RefConfig struct {
	IOCapability      pandora.IOCapability
	SecureConnections bool
	MITM              bool
	Bonding           bool

	Classic   bool
	LE        bool
	SSP       bool
	ClassicSC bool
}

// OverrideRequest is the runtime pairing configuration applied to a Bumble reference.
func (r RefConfig) OverrideRequest() pandora.OverrideRequest {
	keys := r.keyDistribution()
	return pandora.OverrideRequest{
		IOCapability: r.IOCapability,
		Pairing: pandora.PairingConfig{
			SecureConnections: r.SecureConnections,
			MITM:              r.MITM,
			Bonding:           r.Bonding,
			IdentityAddress:   pandora.PublicAddress,
		},
		InitiatorKeyDistribution: keys,
		ResponderKeyDistribution: keys,
	}
}

// keyDistribution picks the one key the reference may distribute. Secure
// connections derive the LTK on both sides, so the identity key is sent
// instead; legacy pairing needs the encryption key.
func (r RefConfig) keyDistribution() pandora.KeyDistribution {
	if r.SecureConnections {
		return pandora.DistributeIdentityKey
	}
	return pandora.DistributeEncryptionKey
}

// ServerConfig is the Bumble device configuration a reference server is
// launched with. Keys keep a stable order when marshalled.
func (r RefConfig) ServerConfig() *orderedmap.OrderedMap[string, any] {
	server := orderedmap.New[string, any]()
	server.Set("io_capability", string(r.IOCapability))
	server.Set("pairing_sc_enable", r.SecureConnections)
	server.Set("pairing_mitm_enable", r.MITM)
	server.Set("pairing_bonding_enable", r.Bonding)

	cfg := orderedmap.New[string, any]()
	cfg.Set("classic_enabled", r.Classic)
	cfg.Set("le_enabled", r.LE)
	cfg.Set("classic_ssp_enabled", r.SSP)
	cfg.Set("classic_sc_enabled", r.ClassicSC)
	cfg.Set("server", server)
	return cfg
}

// Class is a group of pairing scenarios sharing a transport and a reference configuration.
type Class struct {
	Name      string
	Transport Transport
	Ref       RefConfig
	Model     Model
	Acceptor  Acceptor
	Scenarios []Scenario

	// Disabled is the reason the class is left out of default runs.
	Disabled string
}

// Configure applies the class reference configuration to ref. Only Bumble
// references can be reconfigured; others must be launched with ServerConfig.
func (c *Class) Configure(ctx context.Context, ref *pandora.Device) error {
	if !ref.IsBumble() {
		ref.Log().WithField("class", c.Name).Debug("Reference is not Bumble, skipping pairing override")
		return nil
	}
	if err := ref.BumbleConfig.Override(ctx, c.Ref.OverrideRequest()); err != nil {
		if errors.Is(err, pandora.ErrUnsupported) {
			ref.Log().Warn("Reference does not support runtime configuration")
			return nil
		}
		return fmt.Errorf("%s: configure %s: %w", ref.Name, c.Name, err)
	}
	return nil
}

// Scenario returns the scenario named name.
func (c *Class) Scenario(name string) (Scenario, bool) {
	for _, sc := range c.Scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Run runs sc between dut and ref. Devices are expected to be freshly reset.
func (c *Class) Run(ctx context.Context, sc Scenario, dut, ref *pandora.Device, logger *logrus.Entry) error {
	if logger == nil {
		logger = dut.Log()
	}
	s := NewSession(dut, ref, sc.Roles, logger.WithFields(logrus.Fields{
		"class":    c.Name,
		"scenario": sc.Name,
	}))
	if err := s.Prepare(ctx); err != nil {
		return err
	}
	runErr := sc.Run(ctx, s, c)
	if err := s.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func classicRef(io pandora.IOCapability, mitm bool) RefConfig {
	return RefConfig{IOCapability: io, MITM: mitm, Bonding: true, Classic: true, SSP: true}
}

func leRef(io pandora.IOCapability, sc bool) RefConfig {
	return RefConfig{IOCapability: io, SecureConnections: sc, MITM: true, Bonding: true, LE: true}
}

func leScenarios() []Scenario {
	return []Scenario{
		LEGeneralPairing(),
		DedicatedPairing(RefACLRefPairs),
		DedicatedPairing(RefACLDUTPairs),
		DedicatedPairing(DUTACLDUTPairs),
		DedicatedPairing(DUTACLRefPairs),
	}
}

// NewSSPClass builds a BR/EDR secure simple pairing class.
func NewSSPClass(name string, ref RefConfig) *Class {
	t := BREDR{}
	model := SSPAssociationModel(DUTClassicIO, ref.IOCapability)
	return &Class{
		Name:      name,
		Transport: t,
		Ref:       ref,
		Model:     model,
		Acceptor:  AcceptorFor(t, model),
		Scenarios: []Scenario{GeneralPairing()},
	}
}

// NewLEClass builds an LE pairing class with general and dedicated scenarios.
func NewLEClass(name string, ref RefConfig) *Class {
	t := LE{}
	model := AssociationModel(DUTLEIO, ref.IOCapability, ref.SecureConnections)
	return &Class{
		Name:      name,
		Transport: t,
		Ref:       ref,
		Model:     model,
		Acceptor:  AcceptorFor(t, model),
		Scenarios: leScenarios(),
	}
}

// NewLegacyClass builds the BR/EDR legacy PIN pairing class.
func NewLegacyClass() *Class {
	return &Class{
		Name:      "BREDRLegacy",
		Transport: BREDR{},
		// Only the IO capability differs from the Bumble server defaults. The
		// pairing flags repeat those defaults since Override replaces them all.
		Ref: RefConfig{
			IOCapability:      pandora.KeyboardOnly,
			SecureConnections: true,
			MITM:              true,
			Bonding:           true,
			Classic:           true,
		},
		Model:    PasskeyEntry,
		Acceptor: PinAcceptor{Pin: DefaultPin},
		Scenarios: []Scenario{
			DedicatedPairing(RefACLRefPairs),
			DedicatedPairing(RefACLDUTPairs),
			LegacyAutoPairing(),
			LegacyGeneralPairing(),
		},
	}
}

// NewTempBondingClass builds the class checking service access of a
// temporarily bonded reference.
func NewTempBondingClass() *Class {
	return &Class{
		Name:      "ServiceAccessTempBonding",
		Transport: BREDR{},
		Ref: RefConfig{
			IOCapability:      pandora.NoInputNoOutput,
			SecureConnections: true,
			Classic:           true,
			SSP:               true,
			ClassicSC:         true,
		},
		Model:    JustWorks,
		Acceptor: RefJustWorksAcceptor{},
		Scenarios: []Scenario{
			TempBondL2CAP("sdp_connect", PSMSDP, true),
			TempBondL2CAP("rfcomm_psm_connect", PSMRFCOMM, true),
			TempBondL2CAP("hid_control_rejected", PSMHIDControl, false),
			TempBondL2CAP("hid_interrupt_rejected", PSMHIDInterrupt, false),
			TempBondRFCOMMChannel("rfcomm_mx_secure_service_rejected", HFPRFCOMMChannel),
			TempBondRFCOMMServer(),
		},
	}
}

const excludedByDefault = "excluded from the default run"

func disabled(c *Class, reason string) *Class {
	c.Disabled = reason
	return c
}

// Catalog returns every pairing class in run order.
func Catalog() []*Class {
	return []*Class{
		NewLEClass("BLELegDisplayKbd", leRef(pandora.KeyboardDisplay, false)),
		NewLEClass("BLELegDisplayOnly", leRef(pandora.DisplayOnly, false)),
		NewLEClass("BLELegDisplayYesNo", leRef(pandora.DisplayYesNo, false)),
		NewLEClass("BLELegKbdOnly", leRef(pandora.KeyboardOnly, false)),
		disabled(NewLEClass("BLELegNoIO", leRef(pandora.NoInputNoOutput, false)), excludedByDefault),
		NewLEClass("BLESCDisplayKbd", leRef(pandora.KeyboardDisplay, true)),
		disabled(NewLEClass("BLESCDisplayOnly", leRef(pandora.DisplayOnly, true)), excludedByDefault),
		NewLEClass("BLESCDisplayYesNo", leRef(pandora.DisplayYesNo, true)),
		disabled(NewLEClass("BLESCKbdOnly", leRef(pandora.KeyboardOnly, true)), excludedByDefault),
		NewLEClass("BLESCNoIO", leRef(pandora.NoInputNoOutput, true)),
		NewSSPClass("BREDRDisplayYesNo", classicRef(pandora.DisplayYesNo, true)),
		NewSSPClass("BREDRDisplayOnly", classicRef(pandora.DisplayOnly, false)),
		disabled(NewSSPClass("BREDRKeyboardOnly", classicRef(pandora.KeyboardOnly, true)), excludedByDefault),
		NewSSPClass("BREDRNoIO", classicRef(pandora.NoInputNoOutput, false)),
		NewLegacyClass(),
		disabled(NewTempBondingClass(), excludedByDefault),
	}
}

// Lookup finds a class of the catalog by name.
func Lookup(name string) (*Class, bool) {
	for _, c := range Catalog() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
