//go:build test

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/btharness/internal/mmi"
	"github.com/srg/btharness/internal/pandora"
)

type mockPromptHandler struct {
	mock.Mock
}

func (m *mockPromptHandler) TestStarted(ctx context.Context, in mmi.Interaction) (string, error) {
	args := m.Called(in)
	return args.String(0), args.Error(1)
}

func (m *mockPromptHandler) Interact(ctx context.Context, in mmi.Interaction) (string, error) {
	args := m.Called(in)
	return args.String(0), args.Error(1)
}

type MMICommandTestSuite struct {
	CommandTestSuite
}

func decodeAnswers(s *suite.Suite, out string) []mmiResponse {
	var answers []mmiResponse
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var r mmiResponse
		s.Require().NoError(dec.Decode(&r), "every answer MUST be a JSON line")
		answers = append(answers, r)
	}
	return answers
}

func (s *MMICommandTestSuite) TestServe_RoutesEvents() {
	// GOAL: Verify prompts are routed by event and answered in order
	//
	// TEST SCENARIO: test_started, interact, failing interact → three answer lines, the last one an error
	pts := pandora.MustParseAddress("00:1B:DC:F2:1D:9A")
	h := &mockPromptHandler{}
	h.On("TestStarted", mmi.Interaction{Profile: "HAP", Test: "HAP/HAUC/BV-01-C", PTSAddress: pts}).Return("OK", nil).Once()
	h.On("Interact", mmi.Interaction{Profile: "HAP", ID: "IUT_INITIATE_CONNECTION", Description: "Connect", PTSAddress: pts}).Return("OK", nil).Once()
	h.On("Interact", mmi.Interaction{Profile: "HAP", ID: "UNKNOWN", PTSAddress: pts}).Return("", errors.New("no handler")).Once()

	input := strings.Join([]string{
		`{"event":"test_started","profile":"HAP","test":"HAP/HAUC/BV-01-C"}`,
		``,
		`{"profile":"HAP","id":"IUT_INITIATE_CONNECTION","description":"Connect"}`,
		`{"event":"interact","profile":"HAP","id":"UNKNOWN"}`,
	}, "\n")
	var out bytes.Buffer
	err := serveMMI(context.Background(), h, strings.NewReader(input), &out, pts, s.Helper.Logger)
	s.Require().NoError(err)

	answers := decodeAnswers(&s.Suite, out.String())
	s.Require().Len(answers, 3, "blank lines MUST be ignored")
	s.Equal(mmiResponse{Answer: "OK"}, answers[0])
	s.Equal(mmiResponse{Answer: "OK"}, answers[1])
	s.Equal(mmiResponse{Error: "no handler"}, answers[2])
	h.AssertExpectations(s.T())
}

func (s *MMICommandTestSuite) TestServe_PromptAddressOverridesDefault() {
	h := &mockPromptHandler{}
	pts := pandora.MustParseAddress("00:1B:DC:F2:1D:9B")
	h.On("Interact", mmi.Interaction{Profile: "VCP", ID: "X", PTSAddress: pts}).Return("OK", nil).Once()

	var out bytes.Buffer
	err := serveMMI(context.Background(), h, strings.NewReader(`{"profile":"VCP","id":"X","pts_address":"00:1B:DC:F2:1D:9B"}`), &out, pandora.Address{}, logrus.New())
	s.Require().NoError(err)
	s.Equal([]mmiResponse{{Answer: "OK"}}, decodeAnswers(&s.Suite, out.String()))
}

func (s *MMICommandTestSuite) TestServe_InvalidPrompts() {
	// GOAL: Verify malformed prompts get an error answer and do not end the session
	//
	// TEST SCENARIO: invalid JSON, unknown event, invalid address → three error answers
	input := "not json\n" +
		`{"event":"reboot","profile":"HAP"}` + "\n" +
		`{"profile":"HAP","id":"X","pts_address":"zz"}` + "\n"
	var out bytes.Buffer
	err := serveMMI(context.Background(), &mockPromptHandler{}, strings.NewReader(input), &out, pandora.Address{}, s.Helper.Logger)
	s.Require().NoError(err)

	answers := decodeAnswers(&s.Suite, out.String())
	s.Require().Len(answers, 3)
	s.Contains(answers[0].Error, "invalid prompt")
	s.Contains(answers[1].Error, `unknown event "reboot"`)
	s.Contains(answers[2].Error, "invalid pts_address")
}

func (s *MMICommandTestSuite) TestCommand_UnknownProfile() {
	// GOAL: Verify the mmi command opens the DUT only and answers through the dispatcher
	//
	// TEST SCENARIO: prompt for a profile without proxy → error answer naming the profile
	out, err := s.ExecuteCommandWithInput(`{"profile":"GMAP","id":"X"}`+"\n", "mmi", "-c", s.ConfigPath)
	s.Require().NoError(err)

	s.Require().NotNil(s.Opened)
	s.Len(s.Opened.Devices, 1, "only the DUT MUST be opened")

	answers := decodeAnswers(&s.Suite, out)
	s.Require().Len(answers, 1)
	s.Contains(answers[0].Error, "unknown profile")
	s.Contains(answers[0].Error, "GMAP")
}

func TestMMICommandTestSuite(t *testing.T) {
	suite.Run(t, new(MMICommandTestSuite))
}
