package harness

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/btharness/internal/pandora"
)

type fakeClass struct {
	BaseClass
	tests         []Test
	disabled      string
	setupClassErr error
	setupTestErr  error
	calls         []string
}

func (c *fakeClass) SetupClass(context.Context, *Testbed) error {
	c.calls = append(c.calls, "setup_class")
	return c.setupClassErr
}

func (c *fakeClass) TeardownClass(context.Context, *Testbed) error {
	c.calls = append(c.calls, "teardown_class")
	return nil
}

func (c *fakeClass) SetupTest(_ context.Context, t *T) error {
	c.calls = append(c.calls, "setup:"+t.Name())
	return c.setupTestErr
}

func (c *fakeClass) TeardownTest(_ context.Context, t *T) error {
	c.calls = append(c.calls, "teardown:"+t.Name())
	return nil
}

func (c *fakeClass) Tests() []Test          { return c.tests }
func (c *fakeClass) DisabledReason() string { return c.disabled }

type RunnerTestSuite struct {
	suite.Suite
	runner *Runner
}

func (s *RunnerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.runner = NewRunner(&Testbed{Devices: pandora.NewDevices(), Logger: logger})
}

func (s *RunnerTestSuite) byName(report *Report) map[string]Result {
	m := map[string]Result{}
	for _, r := range report.Results {
		m[r.Name()] = r
	}
	return m
}

func (s *RunnerTestSuite) TestRun_Outcomes() {
	// GOAL: Verify every way a test body can end maps to the right status
	//
	// TEST SCENARIO: pass, assert failure, require failure, skip, panic → statuses and messages recorded
	c := &fakeClass{BaseClass: BaseClass{ClassName: "Outcomes"}, tests: []Test{
		{Name: "pass", Run: func(ctx context.Context, t *T) {}},
		{Name: "assert", Run: func(ctx context.Context, t *T) {
			t.Assert().Equal(1, 2, "values MUST match")
			t.Log().Info("still running")
		}},
		{Name: "require", Run: func(ctx context.Context, t *T) {
			t.NoError(errors.New("boom"))
			panic("not reached")
		}},
		{Name: "skip", Run: func(ctx context.Context, t *T) { t.Skip("not supported") }},
		{Name: "panic", Run: func(ctx context.Context, t *T) { panic("kaboom") }},
	}}

	report := s.runner.Run(context.Background(), []Class{c})
	got := s.byName(report)

	s.Equal(StatusPass, got["Outcomes.pass"].Status)
	s.Equal(StatusFail, got["Outcomes.assert"].Status)
	s.Contains(got["Outcomes.assert"].Messages[0], "values MUST match")
	s.Equal(StatusFail, got["Outcomes.require"].Status)
	s.Contains(got["Outcomes.require"].Messages[0], "boom")
	s.Equal(StatusSkip, got["Outcomes.skip"].Status)
	s.Equal([]string{"not supported"}, got["Outcomes.skip"].Messages)
	s.Equal(StatusError, got["Outcomes.panic"].Status)
	s.Contains(got["Outcomes.panic"].Messages[0], "kaboom")
	s.False(report.Passed())

	s.Equal("setup_class", c.calls[0])
	s.Equal("teardown_class", c.calls[len(c.calls)-1])
	s.Contains(c.calls, "teardown:panic", "teardown MUST run after a panic")

	st, ok := s.runner.Status("Outcomes.pass")
	s.True(ok)
	s.Equal(StatusPass, st)
}

func (s *RunnerTestSuite) TestRun_AbortClassSkipsRemainingTests() {
	ran := false
	c := &fakeClass{BaseClass: BaseClass{ClassName: "Abort"}, tests: []Test{
		{Name: "first", Run: func(ctx context.Context, t *T) { t.AbortClass("no reference device") }},
		{Name: "second", Run: func(ctx context.Context, t *T) { ran = true }},
	}}

	got := s.byName(s.runner.Run(context.Background(), []Class{c}))
	s.Equal(StatusSkip, got["Abort.first"].Status)
	s.Equal(StatusSkip, got["Abort.second"].Status)
	s.Contains(got["Abort.second"].Messages[0], "no reference device")
	s.False(ran, "tests after an abort MUST NOT run")
}

func (s *RunnerTestSuite) TestRun_Timeout() {
	c := &fakeClass{BaseClass: BaseClass{ClassName: "Slow"}, tests: []Test{
		{Name: "blocks", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context, t *T) {
			<-ctx.Done()
		}},
	}}

	got := s.byName(s.runner.Run(context.Background(), []Class{c}))
	s.Equal(StatusFail, got["Slow.blocks"].Status)
	s.Contains(got["Slow.blocks"].Messages[0], "timed out")
	s.Contains(c.calls, "teardown:blocks", "teardown MUST run after a timeout")
}

func (s *RunnerTestSuite) TestRun_SetupFailures() {
	classErr := &fakeClass{BaseClass: BaseClass{ClassName: "ClassSetup"}, setupClassErr: errors.New("no adb"),
		tests: []Test{{Name: "a", Run: func(ctx context.Context, t *T) {}}}}
	testErr := &fakeClass{BaseClass: BaseClass{ClassName: "TestSetup"}, setupTestErr: errors.New("reset failed"),
		tests: []Test{{Name: "a", Run: func(ctx context.Context, t *T) { t.Fatalf("body MUST NOT run") }}}}

	got := s.byName(s.runner.Run(context.Background(), []Class{classErr, testErr}))
	s.Equal(StatusError, got["ClassSetup.a"].Status)
	s.Contains(got["ClassSetup.a"].Messages[0], "no adb")
	s.NotContains(classErr.calls, "teardown_class", "teardown MUST NOT run after a failed setup")

	s.Equal(StatusError, got["TestSetup.a"].Status)
	s.Equal([]string{"setup: reset failed"}, got["TestSetup.a"].Messages)
	s.Contains(testErr.calls, "teardown:a")
}

func (s *RunnerTestSuite) TestRun_DisabledAndFilter() {
	disabled := &fakeClass{BaseClass: BaseClass{ClassName: "Off"}, disabled: "flaky",
		tests: []Test{{Name: "a", Run: func(ctx context.Context, t *T) {}}}}
	filtered := &fakeClass{BaseClass: BaseClass{ClassName: "On"}, tests: []Test{
		{Name: "keep", Run: func(ctx context.Context, t *T) {}},
		{Name: "drop", Run: func(ctx context.Context, t *T) {}},
	}}
	s.runner.Filter = regexp.MustCompile(`^(Off\.a|On\.keep)$`)

	report := s.runner.Run(context.Background(), []Class{disabled, filtered})
	got := s.byName(report)
	s.Len(report.Results, 2)
	s.Equal(StatusSkip, got["Off.a"].Status)
	s.Equal([]string{"disabled: flaky"}, got["Off.a"].Messages)
	s.Empty(disabled.calls, "disabled class MUST NOT be set up")
	s.Equal(StatusPass, got["On.keep"].Status)

	s.runner.IncludeDisabled = true
	got = s.byName(s.runner.Run(context.Background(), []Class{disabled}))
	s.Equal(StatusPass, got["Off.a"].Status)
}

func (s *RunnerTestSuite) TestRun_InterruptedRunSkips() {
	ctx, cancel := context.WithCancel(context.Background())
	var progress []string
	s.runner.Progress = func(name string, st Status) { progress = append(progress, name+"="+string(st)) }
	c := &fakeClass{BaseClass: BaseClass{ClassName: "Int"}, tests: []Test{
		{Name: "first", Run: func(ctx context.Context, t *T) { cancel() }},
		{Name: "second", Run: func(ctx context.Context, t *T) {}},
	}}

	got := s.byName(s.runner.Run(ctx, []Class{c}))
	s.Equal(StatusPass, got["Int.first"].Status)
	s.Equal(StatusSkip, got["Int.second"].Status)
	s.Equal([]string{"Int.first=running", "Int.first=pass", "Int.second=skip"}, progress)
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}

func TestRegistry(t *testing.T) {
	registryMu.Lock()
	saved := registry
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
	registry = orderedmap.New[string, func() Class]()

	mk := func(name string, tests ...string) func() Class {
		return func() Class {
			c := &fakeClass{BaseClass: BaseClass{ClassName: name}}
			for _, n := range tests {
				c.tests = append(c.tests, Test{Name: n})
			}
			return c
		}
	}
	AddClass("B", mk("B", "x"))
	AddClass("A", mk("A", "y", "z"))
	assert.Panics(t, func() { AddClass("A", mk("A")) }, "duplicate registration MUST panic")

	var names []string
	for _, c := range Classes() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"B", "A"}, names, "classes MUST keep registration order")

	selected, re, err := Select(`\.z$`)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "A", selected[0].Name())
	assert.True(t, re.MatchString("A.z"))

	_, _, err = Select("(")
	assert.Error(t, err)
}

func sampleReport() *Report {
	return &Report{Results: []Result{
		{Class: "A2DP", Test: "connect_and_stream", Status: StatusPass, Duration: 1500 * time.Millisecond},
		{Class: "A2DP", Test: "reconfigure", Status: StatusFail, Duration: time.Second, Messages: []string{"codec mismatch\nmore"}},
		{Class: "HAP", Test: "get_features", Status: StatusSkip},
	}}
}

func TestReport_WriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteTable(&buf, false))

	out := buf.String()
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "A2DP.reconfigure")
	assert.Contains(t, out, "codec mismatch ...", "multi-line messages MUST be shortened")
	assert.True(t, strings.HasSuffix(out, "3 tests: 1 passed, 1 failed, 0 errors, 1 skipped\n"))
	assert.NotContains(t, out, "\x1b[", "uncolored output MUST NOT contain escapes")

	buf.Reset()
	require.NoError(t, sampleReport().WriteTable(&buf, true))
	assert.Contains(t, buf.String(), "\x1b[", "colored output MUST contain escapes")
}

func TestReport_JSONRoundTripAndDiff(t *testing.T) {
	var buf bytes.Buffer
	before := sampleReport()
	require.NoError(t, before.WriteJSON(&buf))
	decoded, err := ReadReport(&buf)
	require.NoError(t, err)

	diff, err := DiffReports(before, decoded, false)
	require.NoError(t, err)
	assert.Empty(t, diff, "identical reports MUST NOT differ")

	after := sampleReport()
	after.Results[1].Status = StatusPass
	after.Results = after.Results[:2]
	diff, err = DiffReports(before, after, false)
	require.NoError(t, err)
	assert.Contains(t, diff, `-  "A2DP.reconfigure": "fail"`)
	assert.Contains(t, diff, `+  "A2DP.reconfigure": "pass"`)
	assert.Contains(t, diff, `-  "HAP.get_features": "skip"`)

	_, err = ReadReport(strings.NewReader("{"))
	assert.Error(t, err)
}
