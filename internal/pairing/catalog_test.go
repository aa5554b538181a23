package pairing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btharness/internal/pandora"
)

func TestCatalog_ClassesAreComplete(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Catalog() {
		assert.False(t, seen[c.Name], "class %s MUST be listed once", c.Name)
		seen[c.Name] = true
		assert.NotNil(t, c.Transport, "%s MUST have a transport", c.Name)
		assert.NotNil(t, c.Acceptor, "%s MUST have an acceptor", c.Name)
		assert.NotEmpty(t, c.Scenarios, "%s MUST have scenarios", c.Name)
		assert.True(t, c.Ref.IOCapability.Valid(), "%s MUST use a valid IO capability", c.Name)
	}

	for _, name := range []string{"BLESCDisplayKbd", "BREDRDisplayYesNo", "BREDRLegacy", "ServiceAccessTempBonding"} {
		assert.True(t, seen[name], "catalog MUST contain %s", name)
	}
}

func TestCatalog_ModelsFollowIOCapabilities(t *testing.T) {
	tests := map[string]Model{
		"BLESCDisplayKbd":   NumericComparison,
		"BLESCKbdOnly":      PasskeyEntry,
		"BLESCNoIO":         JustWorks,
		"BLELegDisplayOnly": PasskeyEntry,
		"BREDRDisplayYesNo": NumericComparison,
		"BREDRDisplayOnly":  NumericComparisonAutoConfirm,
		"BREDRNoIO":         JustWorks,
	}
	for name, want := range tests {
		c, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, c.Model, name)
	}
}

func TestCatalog_Disabled(t *testing.T) {
	disabledNames := []string{}
	for _, c := range Catalog() {
		if c.Disabled != "" {
			disabledNames = append(disabledNames, c.Name)
		}
	}
	assert.ElementsMatch(t, []string{
		"BLELegNoIO", "BLESCDisplayOnly", "BLESCKbdOnly", "BREDRKeyboardOnly", "ServiceAccessTempBonding",
	}, disabledNames)
}

func TestClass_Scenario(t *testing.T) {
	c := NewLegacyClass()
	sc, ok := c.Scenario("dedicated_pairing_ref_acl_dut_pairing")
	require.True(t, ok)
	assert.Equal(t, RefACLDUTPairs, sc.Roles)

	_, ok = c.Scenario("missing")
	assert.False(t, ok)

	names := []string{}
	for _, sc := range NewLEClass("x", leRef(pandora.KeyboardDisplay, true)).Scenarios {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{
		"general_pairing",
		"dedicated_pairing_ref_acl_ref_pairing",
		"dedicated_pairing_ref_acl_dut_pairing",
		"dedicated_pairing_dut_acl_dut_pairing",
		"dedicated_pairing_dut_acl_ref_pairing",
	}, names)
}

func TestLegacyClass_KeepsServerPairingDefaults(t *testing.T) {
	req := NewLegacyClass().Ref.OverrideRequest()
	assert.Equal(t, pandora.KeyboardOnly, req.IOCapability)
	assert.Equal(t, pandora.PairingConfig{
		SecureConnections: true,
		MITM:              true,
		Bonding:           true,
		IdentityAddress:   pandora.PublicAddress,
	}, req.Pairing, "legacy pairing MUST only change the IO capability of the server defaults")
}

func TestRefConfig_KeyDistribution(t *testing.T) {
	sc, _ := Lookup("BLESCNoIO")
	req := sc.Ref.OverrideRequest()
	assert.Equal(t, pandora.DistributeIdentityKey, req.InitiatorKeyDistribution,
		"secure connections MUST distribute the identity key")
	assert.Equal(t, pandora.DistributeIdentityKey, req.ResponderKeyDistribution)

	legacy, _ := Lookup("BLELegDisplayKbd")
	req = legacy.Ref.OverrideRequest()
	assert.Equal(t, pandora.DistributeEncryptionKey, req.InitiatorKeyDistribution,
		"legacy LE pairing MUST distribute the encryption key")
	assert.Equal(t, pandora.DistributeEncryptionKey, req.ResponderKeyDistribution)
}

func TestTempBondingClass_Scenarios(t *testing.T) {
	names := []string{}
	for _, sc := range NewTempBondingClass().Scenarios {
		assert.Equal(t, RefACLRefPairs, sc.Roles, sc.Name)
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{
		"sdp_connect",
		"rfcomm_psm_connect",
		"hid_control_rejected",
		"hid_interrupt_rejected",
		"rfcomm_mx_secure_service_rejected",
		"rfcomm_insecure_server",
	}, names)
}

func TestRefConfig_ServerConfig(t *testing.T) {
	c, ok := Lookup("BREDRDisplayYesNo")
	require.True(t, ok)

	out, err := json.Marshal(c.Ref.ServerConfig())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"classic_enabled": true,
		"le_enabled": false,
		"classic_ssp_enabled": true,
		"classic_sc_enabled": false,
		"server": {
			"io_capability": "display_output_and_yes_no_input",
			"pairing_sc_enable": false,
			"pairing_mitm_enable": true,
			"pairing_bonding_enable": true
		}
	}`, string(out))
	assert.Regexp(t, `^\{"classic_enabled"`, string(out), "keys MUST keep insertion order")

	req := c.Ref.OverrideRequest()
	assert.Equal(t, pandora.DisplayYesNo, req.IOCapability)
	assert.True(t, req.Pairing.MITM)
	assert.False(t, req.Pairing.SecureConnections)
}
