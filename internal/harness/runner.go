package harness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/groutine"
)

// DefaultTestTimeout bounds a test including its setup and teardown.
const DefaultTestTimeout = 3 * time.Minute

// Runner executes classes against a testbed.
type Runner struct {
	Testbed *Testbed
	// Filter selects tests by "Class.test" name. Nil runs every test.
	Filter *regexp.Regexp
	// TestTimeout is used for tests without their own timeout.
	TestTimeout time.Duration
	// IncludeDisabled runs classes that report a disabled reason.
	IncludeDisabled bool
	// Progress, if set, is called when a test starts and when it ends.
	Progress func(name string, status Status)

	status *hashmap.Map[string, Status]
}

// NewRunner creates a runner with the default test timeout.
func NewRunner(tb *Testbed) *Runner {
	if tb.Logger == nil {
		tb.Logger = logrus.New()
	}
	return &Runner{
		Testbed:     tb,
		TestTimeout: DefaultTestTimeout,
		status:      hashmap.New[string, Status](),
	}
}

// Status returns the current status of the test "Class.test". Tests not started
// yet report false.
func (r *Runner) Status(name string) (Status, bool) {
	return r.status.Get(name)
}

func (r *Runner) setStatus(name string, st Status) {
	r.status.Set(name, st)
	if r.Progress != nil {
		r.Progress(name, st)
	}
}

// Run executes classes in order and returns their results. It stops early only
// when ctx is cancelled; remaining tests are then reported as skipped.
func (r *Runner) Run(ctx context.Context, classes []Class) *Report {
	report := &Report{Started: time.Now()}
	for _, c := range classes {
		report.Results = append(report.Results, r.runClass(ctx, c)...)
	}
	report.Finished = time.Now()
	return report
}

func (r *Runner) selectedTests(c Class) []Test {
	var tests []Test
	for _, test := range c.Tests() {
		if r.Filter == nil || r.Filter.MatchString(c.Name()+"."+test.Name) {
			tests = append(tests, test)
		}
	}
	return tests
}

func (r *Runner) runClass(ctx context.Context, c Class) []Result {
	tests := r.selectedTests(c)
	if len(tests) == 0 {
		return nil
	}
	log := r.Testbed.Logger.WithField("class", c.Name())

	skipAll := func(reason string) []Result {
		results := make([]Result, 0, len(tests))
		for _, test := range tests {
			res := Result{Class: c.Name(), Test: test.Name, Status: StatusSkip, Messages: []string{reason}}
			r.setStatus(res.Name(), res.Status)
			results = append(results, res)
		}
		return results
	}

	if d, ok := c.(Disabler); ok && d.DisabledReason() != "" && !r.IncludeDisabled {
		log.WithField("reason", d.DisabledReason()).Info("Class disabled")
		return skipAll("disabled: " + d.DisabledReason())
	}
	if ctx.Err() != nil {
		return skipAll("run interrupted")
	}

	log.Info("Setting up class")
	if err := c.SetupClass(ctx, r.Testbed); err != nil {
		log.WithError(err).Error("Class setup failed")
		results := skipAll("class setup failed: " + err.Error())
		for i := range results {
			results[i].Status = StatusError
			r.setStatus(results[i].Name(), StatusError)
		}
		return results
	}
	defer func() {
		if err := c.TeardownClass(context.WithoutCancel(ctx), r.Testbed); err != nil {
			log.WithError(err).Warn("Class teardown failed")
		}
	}()

	results := make([]Result, 0, len(tests))
	aborted := ""
	for _, test := range tests {
		if aborted == "" && ctx.Err() != nil {
			aborted = "run interrupted"
		}
		if aborted != "" {
			res := Result{Class: c.Name(), Test: test.Name, Status: StatusSkip, Messages: []string{aborted}}
			r.setStatus(res.Name(), res.Status)
			results = append(results, res)
			continue
		}
		res, abort := r.runTest(ctx, c, test)
		if abort != "" {
			aborted = "class aborted: " + abort
		}
		results = append(results, res)
	}
	return results
}

// outcome of one test body or hook execution
type outcome struct {
	skipped string
	aborted string
	panic   string
}

// protect runs fn on a named goroutine, converting the panics used by T into an outcome.
func protect(ctx context.Context, name string, fn func(ctx context.Context)) outcome {
	var out outcome
	done := groutine.Go(ctx, name, func(ctx context.Context) {
		defer func() {
			switch v := recover().(type) {
			case nil, failNow:
			case skipNow:
				out.skipped = v.reason
			case abortClass:
				out.aborted = v.reason
			default:
				out.panic = fmt.Sprintf("panic: %v\n%s", v, debug.Stack())
			}
		}()
		fn(ctx)
	})
	<-done
	return out
}

func (r *Runner) runTest(parent context.Context, c Class, test Test) (Result, string) {
	timeout := test.Timeout
	if timeout == 0 {
		timeout = r.TestTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	res := Result{Class: c.Name(), Test: test.Name}
	t := newT(ctx, c.Name(), test.Name, r.Testbed)
	r.setStatus(res.Name(), StatusRunning)
	t.Log().Info("Test started")
	start := time.Now()

	var out outcome
	setupFailed := false
	setup := protect(ctx, res.Name()+"/setup", func(ctx context.Context) {
		if err := c.SetupTest(ctx, t); err != nil {
			setupFailed = true
			t.Errorf("setup: %v", err)
		}
	})
	if setup != (outcome{}) {
		out = setup
	} else if !setupFailed {
		out = protect(ctx, res.Name(), func(ctx context.Context) {
			test.Run(ctx, t)
		})
	}

	// teardown runs even after a timeout
	teardownCtx, teardownCancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer teardownCancel()
	teardown := protect(teardownCtx, res.Name()+"/teardown", func(ctx context.Context) {
		if err := c.TeardownTest(ctx, t); err != nil {
			t.Errorf("teardown: %v", err)
		}
	})
	if out.panic == "" {
		out.panic = teardown.panic
	}

	failed, messages := t.snapshot()
	res.Duration = time.Since(start)
	res.Messages = messages
	switch {
	case out.panic != "":
		res.Status = StatusError
		res.Messages = append(res.Messages, out.panic)
	case setupFailed:
		res.Status = StatusError
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil:
		res.Status = StatusFail
		res.Messages = append(res.Messages, fmt.Sprintf("timed out after %s", timeout))
	case failed:
		res.Status = StatusFail
	case out.skipped != "":
		res.Status = StatusSkip
		res.Messages = append(res.Messages, out.skipped)
	case out.aborted != "":
		res.Status = StatusSkip
		res.Messages = append(res.Messages, "aborted: "+out.aborted)
	default:
		res.Status = StatusPass
	}

	r.setStatus(res.Name(), res.Status)
	t.Log().WithFields(logrus.Fields{"status": res.Status, "duration": res.Duration.Round(time.Millisecond)}).Info("Test finished")
	return res, out.aborted
}
