package pairing

import (
	"github.com/srg/btharness/internal/pandora"
)

// Model is a pairing association model.
type Model int

const (
	JustWorks Model = iota
	NumericComparison
	// NumericComparisonAutoConfirm is BR/EDR numeric comparison where the
	// display-only side confirms automatically and reports just works.
	NumericComparisonAutoConfirm
	PasskeyEntry
)

func (m Model) String() string {
	switch m {
	case JustWorks:
		return "just_works"
	case NumericComparison:
		return "numeric_comparison"
	case NumericComparisonAutoConfirm:
		return "numeric_comparison_auto_confirm"
	case PasskeyEntry:
		return "passkey_entry"
	default:
		return "unknown"
	}
}

func hasDisplayYesNo(c pandora.IOCapability) bool {
	return c == pandora.DisplayYesNo || c == pandora.KeyboardDisplay
}

// AssociationModel selects the LE pairing model for the initiator and responder
// IO capabilities. secureConnections enables numeric comparison.
func AssociationModel(initiator, responder pandora.IOCapability, secureConnections bool) Model {
	if initiator == pandora.NoInputNoOutput || responder == pandora.NoInputNoOutput {
		return JustWorks
	}
	if secureConnections && hasDisplayYesNo(initiator) && hasDisplayYesNo(responder) {
		return NumericComparison
	}
	noKeyboard := func(c pandora.IOCapability) bool {
		return c == pandora.DisplayOnly || c == pandora.DisplayYesNo
	}
	if noKeyboard(initiator) && noKeyboard(responder) {
		return JustWorks
	}
	return PasskeyEntry
}

// SSPAssociationModel selects the BR/EDR secure simple pairing model. BR/EDR
// has no keyboard-display capability; it pairs as display yes/no.
func SSPAssociationModel(initiator, responder pandora.IOCapability) Model {
	classic := func(c pandora.IOCapability) pandora.IOCapability {
		if c == pandora.KeyboardDisplay {
			return pandora.DisplayYesNo
		}
		return c
	}
	initiator, responder = classic(initiator), classic(responder)

	switch {
	case initiator == pandora.NoInputNoOutput || responder == pandora.NoInputNoOutput:
		return JustWorks
	case initiator == pandora.KeyboardOnly || responder == pandora.KeyboardOnly:
		return PasskeyEntry
	case initiator == pandora.DisplayYesNo && responder == pandora.DisplayYesNo:
		return NumericComparison
	case initiator == pandora.DisplayOnly && responder == pandora.DisplayOnly:
		return JustWorks
	default:
		return NumericComparisonAutoConfirm
	}
}
