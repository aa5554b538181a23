// Package link holds the connection steps shared by pairing classes and
// profile suites: classic connect and pair, LE scan, LE connect to an
// advertiser and security elevation.
package link

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/srg/btharness/internal/gattuuid"
	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/ringchan"
)

// DefaultScanBuffer is the number of advertising reports queued while scanning.
const DefaultScanBuffer = 32

// Pair holds the connection token each side received for one ACL link.
type Pair struct {
	Initiator *pandora.Connection
	Responder *pandora.Connection
}

// ConnectClassic opens a BR/EDR ACL link from initiator while responder waits for it.
func ConnectClassic(ctx context.Context, initiator, responder *pandora.Device) (Pair, error) {
	var p Pair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := initiator.Host.Connect(gctx, responder.Address())
		if err != nil {
			return fmt.Errorf("%s: connect: %w", initiator.Name, err)
		}
		p.Initiator = conn
		return nil
	})
	g.Go(func() error {
		conn, err := responder.Host.WaitConnection(gctx, initiator.Address())
		if err != nil {
			return fmt.Errorf("%s: wait connection: %w", responder.Name, err)
		}
		p.Responder = conn
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pair{}, err
	}
	return p, nil
}

// PairClassic connects and secures a BR/EDR link. Each side runs its connect
// and security steps back to back, both sides concurrently.
func PairClassic(ctx context.Context, initiator, responder *pandora.Device, level pandora.ClassicLevel) (Pair, error) {
	var p Pair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := initiator.Host.Connect(gctx, responder.Address())
		if err != nil {
			return fmt.Errorf("%s: connect: %w", initiator.Name, err)
		}
		p.Initiator = conn
		if err := initiator.Security.Secure(gctx, conn, level); err != nil {
			return fmt.Errorf("%s: secure %s: %w", initiator.Name, level, err)
		}
		return nil
	})
	g.Go(func() error {
		conn, err := responder.Host.WaitConnection(gctx, initiator.Address())
		if err != nil {
			return fmt.Errorf("%s: wait connection: %w", responder.Name, err)
		}
		p.Responder = conn
		if err := responder.Security.WaitSecurity(gctx, conn, level); err != nil {
			return fmt.Errorf("%s: wait security %s: %w", responder.Name, level, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pair{}, err
	}
	return p, nil
}

// Secure raises the link to level from initiator while responder waits for it.
func Secure(ctx context.Context, p Pair, initiator, responder *pandora.Device, level pandora.SecurityLevel) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := initiator.Security.Secure(gctx, p.Initiator, level); err != nil {
			return fmt.Errorf("%s: secure %s: %w", initiator.Name, level, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := responder.Security.WaitSecurity(gctx, p.Responder, level); err != nil {
			return fmt.Errorf("%s: wait security %s: %w", responder.Name, level, err)
		}
		return nil
	})
	return g.Wait()
}

// Match selects advertising reports.
type Match func(r *pandora.ScanningResponse) bool

// WithManufacturerData matches reports whose manufacturer data contains seed.
func WithManufacturerData(seed []byte) Match {
	return func(r *pandora.ScanningResponse) bool {
		return bytes.Contains(r.Data.ManufacturerSpecificData, seed)
	}
}

// WithServiceUUID16 matches reports listing uuid among their incomplete 16-bit service UUIDs.
func WithServiceUUID16(uuid uint16) Match {
	return func(r *pandora.ScanningResponse) bool {
		for _, u := range r.Data.IncompleteServiceClassUUIDs16 {
			if gattuuid.Is(u, uuid) {
				return true
			}
		}
		return false
	}
}

// Scanner scans from a device until a report matches.
type Scanner struct {
	Request pandora.ScanRequest
	// Buffer bounds the reports queued while scanning. Older reports are
	// dropped when the scanner falls behind.
	Buffer int
}

// Find scans from dev and returns the first report accepted by match.
func (sc Scanner) Find(ctx context.Context, dev *pandora.Device, match Match) (*pandora.ScanningResponse, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan, err := dev.Host.Scan(scanCtx, sc.Request)
	if err != nil {
		return nil, fmt.Errorf("%s: scan: %w", dev.Name, err)
	}

	size := sc.Buffer
	if size <= 0 {
		size = DefaultScanBuffer
	}
	log := dev.Log()
	reports := ringchan.New[*pandora.ScanningResponse](size)
	recvErr := make(chan error, 1)
	done := groutine.Go(scanCtx, dev.Name+"-scan-reader", func(context.Context) {
		defer reports.Close()
		for {
			r, err := scan.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			if reports.Push(r) {
				log.Debug("Scan report dropped")
			}
		}
	})
	defer func() {
		_ = scan.Close()
		<-done
	}()

	for {
		r, ok, err := reports.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s: scan ended before the advertiser was found: %w", dev.Name, <-recvErr)
		}
		if match(r) {
			return r, nil
		}
	}
}

// ScanFor scans from dev with a random address until a report matches.
func ScanFor(ctx context.Context, dev *pandora.Device, match Match) (*pandora.ScanningResponse, error) {
	return Scanner{Request: pandora.ScanRequest{OwnAddressType: pandora.RandomAddress}}.Find(ctx, dev, match)
}

// ConnectAdvertiser connects initiator to responder, which is advertising on
// adv, and waits for the connection on both sides. adv is closed only when the
// connection fails; on success it stays with the caller.
func ConnectAdvertiser(ctx context.Context, initiator, responder *pandora.Device, adv pandora.AdvertiseStream, req pandora.ConnectLERequest) (Pair, error) {
	var p Pair
	failed, fail := context.WithCancel(ctx)
	defer fail()
	// unblocks adv.Recv when the connect side fails or ctx ends
	stop := context.AfterFunc(failed, func() { _ = adv.Close() })
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := initiator.Host.ConnectLE(gctx, req)
		if err != nil {
			fail()
			return fmt.Errorf("%s: connect le: %w", initiator.Name, err)
		}
		p.Initiator = conn
		return nil
	})
	g.Go(func() error {
		resp, err := adv.Recv()
		if err != nil {
			return fmt.Errorf("%s: wait advertise connection: %w", responder.Name, err)
		}
		p.Responder = resp.Connection
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pair{}, err
	}
	return p, nil
}
