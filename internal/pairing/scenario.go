package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/rfcomm"
)

const (
	// PairingTimeout bounds the pairing steps once both devices accepted.
	PairingTimeout = 10 * time.Second
	// ShortTimeout bounds service access in general LE and legacy pairing.
	ShortTimeout = 5 * time.Second
)

// Scenario is one pairing test case of a Class.
type Scenario struct {
	Name  string
	Roles Roles
	Run   func(ctx context.Context, s *Session, c *Class) error
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// acceptThenWait starts tasks, answers pairing events with acceptor and then
// waits up to timeout for the tasks to complete.
func acceptThenWait(ctx context.Context, s *Session, acceptor Acceptor, timeout time.Duration, tasks ...task) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(taskCtx)
	for _, t := range tasks {
		g.Go(func() error {
			if err := t.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}
	waited := make(chan error, 1)
	done := groutine.Go(ctx, "pairing-tasks", func(context.Context) {
		waited <- g.Wait()
	})
	defer func() {
		cancel()
		<-done
	}()

	if err := acceptor.Accept(gctx, s); err != nil {
		cancel()
		// a failed task is the cause when it cancelled the acceptor
		if werr := <-waited; werr != nil && !errors.Is(werr, context.Canceled) {
			return werr
		}
		return fmt.Errorf("accept pairing: %w", err)
	}
	s.Log().Debug("Pairing accepted on both sides")

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-waited:
		return err
	case <-timer.C:
		cancel()
		<-waited
		return fmt.Errorf("pairing tasks not done after %s: %w", timeout, ErrTimeout)
	}
}

func pairingTask(c *Class, s *Session, link *Link) task {
	return task{name: "pairing", run: func(ctx context.Context) error {
		return c.Transport.Pair(ctx, s, link)
	}}
}

func serviceTask(c *Class, s *Session, link *Link) task {
	return task{name: "service access", run: func(ctx context.Context) error {
		return c.Transport.AccessService(ctx, s, link)
	}}
}

// GeneralPairing makes the reference device open the link, access a service and
// pair at the same time.
func GeneralPairing() Scenario {
	return Scenario{
		Name:  "general_pairing",
		Roles: Roles{ACLInitiator: Ref, PairingInitiator: Ref, ServiceInitiator: Ref},
		Run: func(ctx context.Context, s *Session, c *Class) error {
			link, err := c.Transport.ConnectACL(ctx, s)
			if err != nil {
				return err
			}
			return acceptThenWait(ctx, s, c.Acceptor, PairingTimeout, serviceTask(c, s, link), pairingTask(c, s, link))
		},
	}
}

// LEGeneralPairing makes the DUT connect and read a protected characteristic,
// which triggers pairing.
func LEGeneralPairing() Scenario {
	return Scenario{
		Name:  "general_pairing",
		Roles: Roles{ACLInitiator: DUT, PairingInitiator: DUT, ServiceInitiator: DUT},
		Run: func(ctx context.Context, s *Session, c *Class) error {
			link, err := c.Transport.ConnectACL(ctx, s)
			if err != nil {
				return err
			}
			return acceptThenWait(ctx, s, c.Acceptor, ShortTimeout, serviceTask(c, s, link))
		},
	}
}

// DedicatedPairing pairs explicitly over a link opened by roles.ACLInitiator.
func DedicatedPairing(roles Roles) Scenario {
	return Scenario{
		Name:  fmt.Sprintf("dedicated_pairing_%s_acl_%s_pairing", roles.ACLInitiator, roles.PairingInitiator),
		Roles: roles,
		Run: func(ctx context.Context, s *Session, c *Class) error {
			link, err := c.Transport.ConnectACL(ctx, s)
			if err != nil {
				return err
			}
			return acceptThenWait(ctx, s, c.Acceptor, PairingTimeout, pairingTask(c, s, link))
		},
	}
}

// LegacyAutoPairing opens a link from the DUT, which pairs on its own with a
// legacy reference device.
func LegacyAutoPairing() Scenario {
	return Scenario{
		Name:  "dedicated_pairing_dut_acl_auto_pairing",
		Roles: DUTACLDUTPairs,
		Run: func(ctx context.Context, s *Session, c *Class) error {
			acl := task{name: "acl", run: func(ctx context.Context) error {
				_, err := c.Transport.ConnectACL(ctx, s)
				return err
			}}
			return acceptThenWait(ctx, s, c.Acceptor, PairingTimeout, acl)
		},
	}
}

// LegacyGeneralPairing makes the reference device access a service over a link it
// opened, with the DUT starting pairing.
func LegacyGeneralPairing() Scenario {
	return Scenario{
		Name:  "general_pairing",
		Roles: RefACLDUTPairs,
		Run: func(ctx context.Context, s *Session, c *Class) error {
			link, err := c.Transport.ConnectACL(ctx, s)
			if err != nil {
				return err
			}
			return acceptThenWait(ctx, s, c.Acceptor, ShortTimeout, serviceTask(c, s, link))
		},
	}
}

// Temporary bonding: the reference device pairs without bonding and then tries
// to reach services the DUT protects differently.
const (
	PSMSDP          uint16 = 0x01
	PSMRFCOMM       uint16 = 0x03
	PSMHIDControl   uint16 = 0x11
	PSMHIDInterrupt uint16 = 0x13

	RFCOMMServerName = "test_rfcomm_server"
	RFCOMMServerUUID = "F6FB4732-A802-487D-A9FA-9664D5C91F13"

	// HFPRFCOMMChannel is the RFCOMM server channel of the DUT hands-free
	// audio gateway, a service that requires a bond.
	HFPRFCOMMChannel uint8 = 2
)

func tempBondSetup(ctx context.Context, s *Session, c *Class) (*Link, error) {
	link, err := c.Transport.ConnectACL(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := acceptThenWait(ctx, s, c.Acceptor, PairingTimeout, pairingTask(c, s, link)); err != nil {
		return nil, err
	}
	return link, nil
}

// TempBondL2CAP opens psm from the temporarily bonded reference device and
// checks the DUT allows or rejects it.
func TempBondL2CAP(name string, psm uint16, allowed bool) Scenario {
	return Scenario{
		Name:  name,
		Roles: RefACLRefPairs,
		Run: func(ctx context.Context, s *Session, c *Class) error {
			link, err := tempBondSetup(ctx, s, c)
			if err != nil {
				return err
			}
			err = s.Ref.L2CAP.Connect(ctx, link.Conn(Ref), psm)
			switch {
			case allowed && err != nil:
				return fmt.Errorf("l2cap psm 0x%02x must be allowed: %w", psm, err)
			case !allowed && err == nil:
				return fmt.Errorf("l2cap psm 0x%02x must be rejected", psm)
			case !allowed:
				var re *pandora.ResultError
				if !errors.As(err, &re) {
					return fmt.Errorf("l2cap psm 0x%02x: %w", psm, err)
				}
				s.Log().WithField("reason", re.Variant).Info("Connection rejected as expected")
			}
			return nil
		},
	}
}

// TempBondRFCOMMChannel starts an RFCOMM session from the temporarily bonded
// reference device and checks the DUT refuses a data link on server channel.
func TempBondRFCOMMChannel(name string, channel uint8) Scenario {
	return Scenario{
		Name:  name,
		Roles: RefACLRefPairs,
		Run: func(ctx context.Context, s *Session, c *Class) error {
			link, err := tempBondSetup(ctx, s, c)
			if err != nil {
				return err
			}
			ch, err := s.Ref.L2CAP.Open(ctx, link.Conn(Ref), PSMRFCOMM)
			if err != nil {
				return fmt.Errorf("%s: open rfcomm psm: %w", s.Ref.Name, err)
			}
			mux, err := rfcomm.Dial(ctx, s.Ref.L2CAP, ch, s.Log())
			if err != nil {
				return fmt.Errorf("%s: %w", s.Ref.Name, err)
			}
			defer mux.Close()
			if err := mux.Start(ctx); err != nil {
				return fmt.Errorf("%s: start rfcomm session: %w", s.Ref.Name, err)
			}

			err = mux.OpenDLC(ctx, channel)
			switch {
			case err == nil:
				return fmt.Errorf("rfcomm channel %d must be rejected", channel)
			case !errors.Is(err, rfcomm.ErrRejected):
				return err
			}
			s.Log().WithField("channel", channel).Info("RFCOMM data link rejected as expected")
			return nil
		},
	}
}

// TempBondRFCOMMServer connects the temporarily bonded reference device to an
// insecure RFCOMM server of the DUT.
func TempBondRFCOMMServer() Scenario {
	return Scenario{
		Name:  "rfcomm_insecure_server",
		Roles: RefACLRefPairs,
		Run: func(ctx context.Context, s *Session, c *Class) error {
			if _, err := tempBondSetup(ctx, s, c); err != nil {
				return err
			}
			if err := s.DUT.RFCOMM.StartServer(ctx, RFCOMMServerName, RFCOMMServerUUID); err != nil {
				return fmt.Errorf("%s: start rfcomm server: %w", s.DUT.Name, err)
			}
			if err := s.Ref.RFCOMM.ConnectToServer(ctx, s.DUT.Address(), RFCOMMServerUUID); err != nil {
				return fmt.Errorf("%s: connect rfcomm server: %w", s.Ref.Name, err)
			}
			return nil
		},
	}
}
