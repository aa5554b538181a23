//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"

	"github.com/srg/btharness/internal/testutils"
	"github.com/srg/btharness/pkg/config"
)

// testbedYAML describes the devices built by testutils.NewTestbed.
const testbedYAML = `
log_level: debug
test_timeout: 5s
devices:
  - name: dut
    target: localhost:8999
    serial: emulator-5554
  - name: ref
    target: localhost:7999
`

// CommandTestSuite runs the commands against a mocked testbed.
// All cmd/bth test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Helper *testutils.TestHelper
	TB     *testutils.Testbed

	// ConfigPath is a testbed file matching TB.
	ConfigPath string
	// Opened is the configuration the last command opened its devices with.
	Opened *config.Config

	savedOpen func(context.Context, *config.Config, *logrus.Logger) (*Testbed, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.TB = s.Helper.NewTestbed()
	s.ConfigPath = s.WriteFile("testbed.yaml", testbedYAML)
	s.Opened = nil

	s.savedOpen = openDevices
	openDevices = func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Testbed, error) {
		s.Opened = cfg
		return &Testbed{Devices: s.TB.Devices, logger: logger}, nil
	}
	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	openDevices = s.savedOpen
}

// resetFlags restores the default value of every flag of cmd and its subcommands.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// WriteFile writes content to a file of the test's temporary directory and returns its path.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "test file MUST be written")
	return path
}

// ExecuteCommand runs the root command with args, returns stdout and error.
// Logs and progress go to a separate stderr buffer.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(&syncBuffer{})
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// ExecuteCommandWithInput is ExecuteCommand with stdin fed from input.
func (s *CommandTestSuite) ExecuteCommandWithInput(input string, args ...string) (string, error) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(&syncBuffer{})
	rootCmd.SetIn(bytes.NewBufferString(input))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}
