package pairing

import (
	"fmt"
)

// Side names one of the two devices of a session.
type Side int

const (
	DUT Side = iota
	Ref
)

func (s Side) String() string {
	switch s {
	case DUT:
		return "dut"
	case Ref:
		return "ref"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == DUT {
		return Ref
	}
	return DUT
}

// Roles assigns the initiator of each pairing step. Responders are the other side.
type Roles struct {
	ACLInitiator     Side
	PairingInitiator Side
	ServiceInitiator Side
}

func (r Roles) ACLResponder() Side     { return r.ACLInitiator.Other() }
func (r Roles) PairingResponder() Side { return r.PairingInitiator.Other() }
func (r Roles) ServiceResponder() Side { return r.ServiceInitiator.Other() }

func (r Roles) String() string {
	return fmt.Sprintf("acl:%s pairing:%s service:%s", r.ACLInitiator, r.PairingInitiator, r.ServiceInitiator)
}

// Dedicated pairing role combinations: who opens the ACL link and who starts pairing.
var (
	RefACLRefPairs = Roles{ACLInitiator: Ref, PairingInitiator: Ref, ServiceInitiator: Ref}
	RefACLDUTPairs = Roles{ACLInitiator: Ref, PairingInitiator: DUT, ServiceInitiator: Ref}
	DUTACLDUTPairs = Roles{ACLInitiator: DUT, PairingInitiator: DUT, ServiceInitiator: DUT}
	DUTACLRefPairs = Roles{ACLInitiator: DUT, PairingInitiator: Ref, ServiceInitiator: DUT}
)
