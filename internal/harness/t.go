package harness

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btharness/internal/pandora"
)

// Panic values used to unwind a test body.
type (
	failNow    struct{}
	skipNow    struct{ reason string }
	abortClass struct{ reason string }
)

// T is the handle a test body receives. It satisfies require.TestingT.
type T struct {
	class string
	name  string
	ctx   context.Context
	tb    *Testbed
	log   *logrus.Entry

	mu       sync.Mutex
	failed   bool
	messages []string
}

func newT(ctx context.Context, class, name string, tb *Testbed) *T {
	return &T{
		class: class,
		name:  name,
		ctx:   ctx,
		tb:    tb,
		log:   tb.Logger.WithFields(logrus.Fields{"class": class, "test": name}),
	}
}

// Name is the test name.
func (t *T) Name() string { return t.name }

// FullName is "Class.test".
func (t *T) FullName() string { return t.class + "." + t.name }

// Context is cancelled when the test times out or the run is interrupted.
func (t *T) Context() context.Context { return t.ctx }

// Testbed returns the devices the test runs against.
func (t *T) Testbed() *Testbed { return t.tb }

// DUT returns the device under test.
func (t *T) DUT() *pandora.Device { return t.tb.DUT() }

// Ref returns the i-th reference device or aborts the class when it is missing.
func (t *T) Ref(i int) *pandora.Device {
	ref, err := t.tb.Devices.Ref(i)
	if err != nil {
		t.AbortClass(err.Error())
	}
	return ref
}

// Log returns the test logger.
func (t *T) Log() *logrus.Entry { return t.log }

// Errorf records a failure and continues.
func (t *T) Errorf(format string, args ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	t.mu.Lock()
	t.failed = true
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	t.log.Error(msg)
}

// FailNow marks the test failed and stops it.
func (t *T) FailNow() {
	t.mu.Lock()
	t.failed = true
	t.mu.Unlock()
	panic(failNow{})
}

// Fatalf is Errorf followed by FailNow.
func (t *T) Fatalf(format string, args ...interface{}) {
	t.Errorf(format, args...)
	t.FailNow()
}

// NoError fails the test now when err is not nil.
func (t *T) NoError(err error, msgAndArgs ...interface{}) {
	require.NoError(t, err, msgAndArgs...)
}

// Skip stops the test and records it as skipped.
func (t *T) Skip(reason string) {
	panic(skipNow{reason: reason})
}

// AbortClass stops the test and skips the remaining tests of the class.
func (t *T) AbortClass(reason string) {
	panic(abortClass{reason: reason})
}

// Require returns assertions bound to t that stop the test on failure.
func (t *T) Require() *require.Assertions { return require.New(t) }

// Assert returns assertions bound to t that record failures and continue.
func (t *T) Assert() *assert.Assertions { return assert.New(t) }

// Failed reports whether the test has failed.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

func (t *T) snapshot() (bool, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed, append([]string(nil), t.messages...)
}
