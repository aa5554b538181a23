package mmi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Dongle is the controller model rootcanal emulates for PTS.
type Dongle string

const (
	DongleCSRRCK     Dongle = "csr_rck_pts_dongle"
	DongleLairdBL654 Dongle = "laird_bl654"
)

// Rootcanal selects the PTS dongle of a virtual controller setup.
type Rootcanal interface {
	SelectPTSDongle(ctx context.Context, dongle Dongle) error
}

// NopRootcanal is used when PTS runs on real hardware.
type NopRootcanal struct{}

func (NopRootcanal) SelectPTSDongle(context.Context, Dongle) error { return nil }

// RootcanalClient talks to the rootcanal control port. Each command is one
// text line; rootcanal answers with one line, "OK" on success.
type RootcanalClient struct {
	Addr   string
	Logger *logrus.Logger
}

const rootcanalTimeout = 5 * time.Second

// SelectPTSDongle switches the controller seen by PTS.
func (c *RootcanalClient) SelectPTSDongle(ctx context.Context, dongle Dongle) error {
	reply, err := c.command(ctx, "select_pts_dongle "+string(dongle))
	if err != nil {
		return fmt.Errorf("rootcanal: select dongle %s: %w", dongle, err)
	}
	if reply != OK {
		return fmt.Errorf("rootcanal: select dongle %s: %s", dongle, reply)
	}
	if c.Logger != nil {
		c.Logger.WithField("dongle", dongle).Debug("PTS dongle selected")
	}
	return nil
}

func (c *RootcanalClient) command(ctx context.Context, cmd string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rootcanalTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
