package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/btharness/internal/pandora"
)

// Command-level errors
var (
	// ErrTestsFailed is returned by run when at least one test failed or errored.
	// The report has already been printed when it is returned.
	ErrTestsFailed = errors.New("tests failed")
	// ErrNoDevices indicates the testbed file describes no device.
	ErrNoDevices = errors.New("testbed has no devices")
)

// FormatUserError turns err into a single line fit for the terminal, adding a
// hint for the failures users can fix themselves.
func FormatUserError(err error) string {
	var pathErr *os.PathError
	switch {
	case errors.Is(err, pandora.ErrUnavailable):
		return fmt.Sprintf("%s (is the Pandora server running and reachable?)", err)
	case errors.Is(err, ErrNoDevices):
		return fmt.Sprintf("%s (add a devices section to the testbed file)", err)
	case errors.As(err, &pathErr) && errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("%s not found (use --config to point at the testbed file)", pathErr.Path)
	default:
		return err.Error()
	}
}
