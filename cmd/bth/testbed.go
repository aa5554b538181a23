package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/adb"
	"github.com/srg/btharness/internal/groutine"
	"github.com/srg/btharness/internal/pairing"
	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/pandora/grpcpandora"
	"github.com/srg/btharness/pkg/config"
)

const (
	readyPollInterval = 200 * time.Millisecond
	serverStopTimeout = 5 * time.Second
)

// Testbed owns the devices of a command and what was started or changed for them.
type Testbed struct {
	Devices *pandora.Devices

	servers []*bumbleServer
	flags   []appliedFlag
	logger  *logrus.Logger
}

type appliedFlag struct {
	dev  *adb.Device
	flag string
}

// openDevices builds the testbed of a command. Tests replace it.
var openDevices = openTestbed

// openTestbed launches the configured Bumble servers, dials every device,
// applies the Android flag overrides and reads the device addresses.
// On error everything already set up is torn down.
func openTestbed(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *Testbed, err error) {
	if len(cfg.Devices) == 0 {
		return nil, ErrNoDevices
	}
	tb := &Testbed{logger: logger}
	defer func() {
		if err != nil {
			tb.Close(context.WithoutCancel(ctx))
		}
	}()

	var devs []*pandora.Device
	for _, dc := range cfg.Devices {
		log := logger.WithFields(logrus.Fields{"device": dc.Name, "target": dc.Target})

		readyTimeout := cfg.DialTimeout
		if dc.Launch != nil {
			srv, err := launchBumble(dc, logger)
			if err != nil {
				return nil, err
			}
			tb.servers = append(tb.servers, srv)
			readyTimeout = cfg.ResetTimeout
		}

		client, err := grpcpandora.Dial(ctx, dc.Target, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dc.Name, err)
		}
		dev := pandora.NewDevice(dc.Name, pandora.Kind(dc.Kind), client.Services(), client, logger)
		dev.Serial = dc.Serial
		devs = append(devs, dev)
		tb.Devices = pandora.NewDevices(devs...)

		for _, flag := range dc.Flags {
			a := adb.New(dc.Serial, logger)
			if err := a.OverrideFlag(ctx, flag, true); err != nil {
				return nil, fmt.Errorf("%s: %w", dc.Name, err)
			}
			tb.flags = append(tb.flags, appliedFlag{dev: a, flag: flag})
			log.WithField("flag", flag).Info("Bluetooth flag overridden")
		}

		if err := waitReady(ctx, dev, readyTimeout); err != nil {
			return nil, err
		}
		log.WithField("address", dev.Address()).Info("Device ready")
	}
	return tb, nil
}

// waitReady reads the device address until the server answers or timeout expires.
func waitReady(ctx context.Context, dev *pandora.Device, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		err := dev.RefreshAddress(ctx)
		if err == nil || !errors.Is(err, pandora.ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: not ready after %s: %w", dev.Name, timeout, err)
		case <-ticker.C:
		}
	}
}

// Close restores the flags, closes the device channels and stops the launched servers.
func (tb *Testbed) Close(ctx context.Context) {
	for _, f := range tb.flags {
		if err := f.dev.ClearFlag(ctx, f.flag); err != nil {
			tb.logger.WithError(err).WithField("flag", f.flag).Warn("Failed to clear flag override")
		}
	}
	tb.flags = nil
	if tb.Devices != nil {
		if err := tb.Devices.StopAll(); err != nil {
			tb.logger.WithError(err).Warn("Failed to close devices")
		}
	}
	for _, srv := range tb.servers {
		if err := srv.Stop(); err != nil {
			tb.logger.WithError(err).WithField("device", srv.name).Warn("Bumble server exited with error")
		}
	}
	tb.servers = nil
}

// serverRefConfig is the pairing configuration a launched Bumble server starts with.
func serverRefConfig(l *config.LaunchConfig) (pairing.RefConfig, error) {
	capability := pandora.IOCapability(l.IOCapability)
	if !capability.Valid() {
		return pairing.RefConfig{}, fmt.Errorf("invalid io_capability %q", l.IOCapability)
	}
	return pairing.RefConfig{
		IOCapability:      capability,
		SecureConnections: l.SecureConnections,
		MITM:              l.MITM,
		Bonding:           true,
		Classic:           l.Classic,
		LE:                l.LE,
		SSP:               l.SSP,
		ClassicSC:         l.SecureConnections,
	}, nil
}

// bumbleServer is a Bumble Pandora server process started for one device.
type bumbleServer struct {
	name       string
	cmd        *exec.Cmd
	configPath string
	output     io.Closer
	done       <-chan struct{}
	err        error
}

// launchBumble writes the server configuration to a temporary file and starts
// the launch command with --transport and --config appended.
func launchBumble(dc config.DeviceConfig, logger *logrus.Logger) (*bumbleServer, error) {
	ref, err := serverRefConfig(dc.Launch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dc.Name, err)
	}
	data, err := json.MarshalIndent(ref.ServerConfig(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%s: encode server config: %w", dc.Name, err)
	}
	f, err := os.CreateTemp("", "bumble-"+dc.Name+"-*.json")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dc.Name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%s: write server config: %w", dc.Name, err)
	}
	f.Close()

	args := append([]string{}, dc.Launch.Command[1:]...)
	args = append(args, "--transport", dc.Launch.Transport, "--config", f.Name())
	cmd := exec.Command(dc.Launch.Command[0], args...)
	out := logger.WithField("device", dc.Name).WriterLevel(logrus.DebugLevel)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		out.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%s: start bumble server: %w", dc.Name, err)
	}
	logger.WithFields(logrus.Fields{"device": dc.Name, "pid": cmd.Process.Pid}).Info("Bumble server started")

	srv := &bumbleServer{name: dc.Name, cmd: cmd, configPath: f.Name(), output: out}
	srv.done = groutine.Go(context.Background(), dc.Name+"-bumble-server", func(context.Context) {
		srv.err = cmd.Wait()
	})
	return srv, nil
}

// Stop interrupts the server and kills it when it does not exit in time.
func (s *bumbleServer) Stop() error {
	defer os.Remove(s.configPath)
	defer s.output.Close()

	_ = s.cmd.Process.Signal(os.Interrupt)
	select {
	case <-s.done:
	case <-time.After(serverStopTimeout):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
	var exitErr *exec.ExitError
	if errors.As(s.err, &exitErr) && !exitErr.Exited() {
		// terminated by our signal
		return nil
	}
	return s.err
}
