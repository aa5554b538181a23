//go:build test

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/btharness/internal/harness"
)

type ReportCommandTestSuite struct {
	CommandTestSuite
}

func (s *ReportCommandTestSuite) writeReport(name string, results ...harness.Result) string {
	r := &harness.Report{Started: time.Unix(0, 0).UTC(), Finished: time.Unix(1, 0).UTC(), Results: results}
	var buf bytes.Buffer
	s.Require().NoError(r.WriteJSON(&buf))
	return s.WriteFile(name, buf.String())
}

func (s *ReportCommandTestSuite) TestDiff_StatusChange() {
	// GOAL: Verify report diff shows the tests whose status changed
	//
	// TEST SCENARIO: get_features pass → fail between runs → diff names it with both statuses
	before := s.writeReport("before.json",
		harness.Result{Class: "HapTest", Test: "get_features", Status: harness.StatusPass},
		harness.Result{Class: "HapTest", Test: "get_preset", Status: harness.StatusPass},
	)
	after := s.writeReport("after.json",
		harness.Result{Class: "HapTest", Test: "get_features", Status: harness.StatusFail, Duration: time.Second},
		harness.Result{Class: "HapTest", Test: "get_preset", Status: harness.StatusPass, Duration: time.Second},
	)

	out, err := s.ExecuteCommand("report", "diff", before, after)
	s.Require().NoError(err)
	s.Contains(out, "HapTest.get_features")
	s.Contains(out, "pass")
	s.Contains(out, "fail")
	s.NotContains(out, "No status changes")

	_, err = s.ExecuteCommand("report", "diff", "--exit-code", before, after)
	s.Error(err, "--exit-code MUST turn a difference into an error")
}

func (s *ReportCommandTestSuite) TestDiff_NoChange() {
	res := harness.Result{Class: "AicsTest", Test: "gatt_discover_aics_service", Status: harness.StatusPass}
	before := s.writeReport("before.json", res)
	res.Duration = 3 * time.Second
	after := s.writeReport("after.json", res)

	out, err := s.ExecuteCommand("report", "diff", "--exit-code", before, after)
	s.Require().NoError(err, "durations MUST NOT count as changes")
	s.Contains(out, "No status changes")
}

func (s *ReportCommandTestSuite) TestShow() {
	path := s.writeReport("run.json",
		harness.Result{Class: "A2dpTest", Test: "connect_and_stream", Status: harness.StatusSkip, Messages: []string{"no sink"}},
	)
	out, err := s.ExecuteCommand("report", "show", path)
	s.Require().NoError(err)
	s.Contains(out, "SKIP")
	s.Contains(out, "A2dpTest.connect_and_stream")
	s.Contains(out, "no sink")
}

func (s *ReportCommandTestSuite) TestShow_InvalidReport() {
	path := s.WriteFile("bad.json", "{not json")
	_, err := s.ExecuteCommand("report", "show", path)
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid report")
}

func TestReportCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ReportCommandTestSuite))
}
