// Package adb runs shell commands on Android devices of the testbed.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner runs a host command and returns its combined output.
type Runner interface {
	Output(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

// LocalRunner runs commands on the host.
type LocalRunner struct{}

// Output starts a local command and returns its combined output.
func (LocalRunner) Output(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()
	return out.Bytes(), err
}

// Device is an Android device reachable through adb.
type Device struct {
	Serial string
	Runner Runner
	Logger *logrus.Logger
}

// New returns a device using the local adb binary.
func New(serial string, logger *logrus.Logger) *Device {
	if logger == nil {
		logger = logrus.New()
	}
	return &Device{Serial: serial, Runner: LocalRunner{}, Logger: logger}
}

// Shell runs args through "adb shell" and returns the trimmed output.
func (d *Device) Shell(ctx context.Context, args ...string) (string, error) {
	full := make([]string, 0, len(args)+3)
	if d.Serial != "" {
		full = append(full, "-s", d.Serial)
	}
	full = append(full, "shell")
	full = append(full, args...)

	log := d.Logger.WithFields(logrus.Fields{"serial": d.Serial, "cmd": strings.Join(args, " ")})
	log.Debug("adb shell")
	out, err := d.Runner.Output(ctx, "adb", full...)
	if err != nil {
		log.WithField("output", string(out)).Debug("adb shell failed")
		return "", fmt.Errorf("adb %s shell %s: %w", d.Serial, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// OverrideFlag sets an Android bluetooth flag through device_config.
func (d *Device) OverrideFlag(ctx context.Context, flag string, value bool) error {
	_, err := d.Shell(ctx, "device_config", "override", "bluetooth", flag, fmt.Sprint(value))
	return err
}

// ClearFlag removes a device_config override.
func (d *Device) ClearFlag(ctx context.Context, flag string) error {
	_, err := d.Shell(ctx, "device_config", "clear_override", "bluetooth", flag)
	return err
}
