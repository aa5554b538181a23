package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/btharness/internal/gattuuid"
	"github.com/srg/btharness/internal/link"
	"github.com/srg/btharness/internal/pandora"
)

const (
	// ClassicServicePSM is opened by the service initiator to trigger BR/EDR security.
	ClassicServicePSM uint16 = 0x13

	// ProtectedServiceUUID and ProtectedCharacteristicUUID name the reference
	// device's encrypted GATT characteristic.
	ProtectedServiceUUID        = "50DB505C-8AC4-4738-8448-3B1D9CC09CC5"
	ProtectedCharacteristicUUID = "552957FB-CF1F-4A31-9535-E78847E1A714"
)

// advertisingSeed tags the responder's advertisements so the scanner can find them.
var advertisingSeed = []byte("pause cafe")

// Link holds the connection token each side received for the ACL link.
type Link struct {
	roles     Roles
	Initiator *pandora.Connection // held by the ACL initiator
	Responder *pandora.Connection // held by the ACL responder
}

// Conn returns the connection token held by side.
func (l *Link) Conn(side Side) *pandora.Connection {
	if side == l.roles.ACLInitiator {
		return l.Initiator
	}
	return l.Responder
}

// Transport performs the steps of a pairing procedure on one radio.
type Transport interface {
	Name() string
	// ConnectACL opens the ACL link from the ACL initiator to the responder.
	ConnectACL(ctx context.Context, s *Session) (*Link, error)
	// Pair raises security from the pairing initiator while the responder waits for it.
	Pair(ctx context.Context, s *Session, l *Link) error
	// AccessService makes the service initiator use a service that requires security.
	AccessService(ctx context.Context, s *Session, l *Link) error
}

// BREDR is the classic transport.
type BREDR struct{}

func (BREDR) Name() string { return "BR/EDR" }

func (BREDR) ConnectACL(ctx context.Context, s *Session) (*Link, error) {
	p, err := link.ConnectClassic(ctx, s.Device(s.Roles.ACLInitiator), s.Device(s.Roles.ACLResponder()))
	if err != nil {
		return nil, err
	}
	s.Log().Info("ACL connected")
	return &Link{roles: s.Roles, Initiator: p.Initiator, Responder: p.Responder}, nil
}

func (BREDR) Pair(ctx context.Context, s *Session, l *Link) error {
	return pair(ctx, s, l, pandora.Level2)
}

func (BREDR) AccessService(ctx context.Context, s *Session, l *Link) error {
	initiator := s.Roles.ServiceInitiator
	dev := s.Device(initiator)
	if err := dev.L2CAP.Connect(ctx, l.Conn(initiator), ClassicServicePSM); err != nil {
		return fmt.Errorf("%s: l2cap connect psm 0x%x: %w", dev.Name, ClassicServicePSM, err)
	}
	return nil
}

// LE is the low energy transport. The ACL responder advertises and the
// initiator scans for it.
type LE struct {
	// ScanBuffer bounds the advertising reports queued while scanning. Older
	// reports are dropped when the scanner falls behind.
	ScanBuffer int
}

func (LE) Name() string { return "LE" }

func (t LE) ConnectACL(ctx context.Context, s *Session) (*Link, error) {
	initiator := s.Device(s.Roles.ACLInitiator)
	responder := s.Device(s.Roles.ACLResponder())

	adv, err := responder.Host.Advertise(ctx, pandora.AdvertiseRequest{
		Legacy:         true,
		Connectable:    true,
		OwnAddressType: pandora.RandomAddress,
		Data:           pandora.DataTypes{ManufacturerSpecificData: advertisingSeed},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: advertise: %w", responder.Name, err)
	}
	defer adv.Close()

	scanner := link.Scanner{
		Request: pandora.ScanRequest{OwnAddressType: pandora.RandomAddress},
		Buffer:  t.ScanBuffer,
	}
	report, err := scanner.Find(ctx, initiator, link.WithManufacturerData(advertisingSeed))
	if err != nil {
		return nil, err
	}

	p, err := link.ConnectAdvertiser(ctx, initiator, responder, adv, pandora.ConnectLERequestFor(pandora.RandomAddress, report))
	if err != nil {
		return nil, err
	}
	s.Log().WithField("peer", report.Address.String()).Info("LE ACL connected")
	return &Link{roles: s.Roles, Initiator: p.Initiator, Responder: p.Responder}, nil
}

func (LE) Pair(ctx context.Context, s *Session, l *Link) error {
	return pair(ctx, s, l, pandora.LELevel3)
}

// AccessService reads the reference device's protected characteristic from the
// DUT. Only a DUT service initiator is supported.
func (LE) AccessService(ctx context.Context, s *Session, l *Link) error {
	if s.Roles.ServiceInitiator != DUT || s.Roles.ACLInitiator != DUT {
		return fmt.Errorf("LE service access from %s: %w", s.Roles, ErrRoleMismatch)
	}
	dut := s.DUT
	conn := l.Conn(DUT)

	services, err := dut.GATT.DiscoverServices(ctx, conn)
	if err != nil {
		return fmt.Errorf("%s: discover services: %w", dut.Name, err)
	}
	found := false
	for _, svc := range services {
		for _, ch := range svc.Characteristics {
			if !gattuuid.Equal(ch.UUID, ProtectedCharacteristicUUID) {
				continue
			}
			found = true
			if _, err := dut.GATT.ReadCharacteristicFromHandle(ctx, conn, ch.Handle); err != nil {
				return fmt.Errorf("%s: read characteristic 0x%04x: %w", dut.Name, ch.Handle, err)
			}
		}
	}
	if !found {
		return fmt.Errorf("%s: characteristic %s not found", dut.Name, ProtectedCharacteristicUUID)
	}
	return nil
}

// pair runs Secure on the pairing initiator and WaitSecurity on the responder.
func pair(ctx context.Context, s *Session, l *Link, level pandora.SecurityLevel) error {
	initSide := s.Roles.PairingInitiator
	respSide := s.Roles.PairingResponder()
	p := link.Pair{Initiator: l.Conn(initSide), Responder: l.Conn(respSide)}
	if err := link.Secure(ctx, p, s.Device(initSide), s.Device(respSide), level); err != nil {
		return err
	}
	s.Log().WithField("level", level.String()).Info("Link secured")
	return nil
}

// IsSecurityFailure reports whether err is a pairing or authentication failure
// reported by a device.
func IsSecurityFailure(err error) bool {
	return errors.Is(err, pandora.ErrPairingFailure) ||
		errors.Is(err, pandora.ErrAuthenticationFailure) ||
		errors.Is(err, pandora.ErrEncryptionFailure)
}
