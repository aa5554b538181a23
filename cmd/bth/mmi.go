package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/btharness/internal/mmi"
	"github.com/srg/btharness/internal/pandora"
)

// mmiCmd represents the mmi command
var mmiCmd = &cobra.Command{
	Use:   "mmi",
	Short: "Answer PTS MMI prompts for the DUT",
	Long: `Answer PTS prompts on behalf of the DUT, the first device of the testbed.

Prompts are read from stdin as one JSON object per line:

  {"event": "test_started", "profile": "HAP", "test": "HAP/HAUC/BV-01-C"}
  {"profile": "HAP", "id": "IUT_INITIATE_CONNECTION", "description": "..."}

Each prompt gets one JSON line on stdout, {"answer": "OK"} or {"error": "..."}.
Input ends the session.`,
	Args: cobra.NoArgs,
	RunE: runMMI,
}

const (
	mmiEventTestStarted = "test_started"
	mmiEventInteract    = "interact"

	maxPromptSize = 1 << 20
)

type mmiRequest struct {
	Event       string `json:"event"`
	Profile     string `json:"profile"`
	Test        string `json:"test"`
	ID          string `json:"id"`
	Description string `json:"description"`
	PTSAddress  string `json:"pts_address"`
}

type mmiResponse struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// promptHandler is implemented by mmi.Dispatcher.
type promptHandler interface {
	TestStarted(ctx context.Context, in mmi.Interaction) (string, error)
	Interact(ctx context.Context, in mmi.Interaction) (string, error)
}

// configuredDongle selects the testbed's dongle whatever a proxy asks for.
type configuredDongle struct {
	mmi.Rootcanal
	dongle mmi.Dongle
}

func (c configuredDongle) SelectPTSDongle(ctx context.Context, _ mmi.Dongle) error {
	return c.Rootcanal.SelectPTSDongle(ctx, c.dongle)
}

func runMMI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	var ptsAddr pandora.Address
	if cfg.MMI.PTSAddress != "" {
		if ptsAddr, err = pandora.ParseAddress(cfg.MMI.PTSAddress); err != nil {
			return fmt.Errorf("mmi.pts_address: %w", err)
		}
	}
	cmd.SilenceUsage = true

	// Only the DUT takes part in PTS sessions
	dutOnly := *cfg
	dutOnly.Devices = cfg.Devices[:min(1, len(cfg.Devices))]
	tb, err := openDevices(cmd.Context(), &dutOnly, logger)
	if err != nil {
		return err
	}
	defer tb.Close(context.WithoutCancel(cmd.Context()))

	var rootcanal mmi.Rootcanal = mmi.NopRootcanal{}
	if cfg.MMI.Rootcanal != "" {
		rootcanal = configuredDongle{
			Rootcanal: &mmi.RootcanalClient{Addr: cfg.MMI.Rootcanal, Logger: logger},
			dongle:    mmi.Dongle(cfg.MMI.Dongle),
		}
	}
	dispatcher := mmi.NewDispatcher(tb.Devices.DUT(), rootcanal, logger)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close MMI proxies")
		}
	}()

	return serveMMI(cmd.Context(), dispatcher, cmd.InOrStdin(), cmd.OutOrStdout(), ptsAddr, logger)
}

// serveMMI answers the prompts read from in until in ends or ctx is done.
// A prompt that fails gets an error line; the session goes on.
func serveMMI(ctx context.Context, h promptHandler, in io.Reader, out io.Writer, ptsAddr pandora.Address, logger *logrus.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPromptSize)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp mmiResponse
		answer, err := handlePrompt(ctx, h, line, ptsAddr)
		if err != nil {
			logger.WithError(err).Warn("MMI prompt failed")
			resp.Error = err.Error()
		} else {
			resp.Answer = answer
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write answer: %w", err)
		}
	}
	return scanner.Err()
}

func handlePrompt(ctx context.Context, h promptHandler, line []byte, ptsAddr pandora.Address) (string, error) {
	var req mmiRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return "", fmt.Errorf("invalid prompt: %w", err)
	}
	in := mmi.Interaction{
		Profile:     req.Profile,
		Test:        req.Test,
		ID:          req.ID,
		Description: req.Description,
		PTSAddress:  ptsAddr,
	}
	if req.PTSAddress != "" {
		addr, err := pandora.ParseAddress(req.PTSAddress)
		if err != nil {
			return "", fmt.Errorf("invalid pts_address: %w", err)
		}
		in.PTSAddress = addr
	}

	switch req.Event {
	case mmiEventTestStarted:
		return h.TestStarted(ctx, in)
	case mmiEventInteract, "":
		return h.Interact(ctx, in)
	default:
		return "", fmt.Errorf("unknown event %q", req.Event)
	}
}
