// Package harness runs classes of Bluetooth tests against a testbed of Pandora
// devices and reports their results.
//
// Classes register themselves from init with AddClass. A Runner executes them in
// registration order: SetupClass once, then SetupTest, the test body and
// TeardownTest for every test, then TeardownClass. Test bodies receive a *T that
// satisfies testify's require.TestingT, so assertions fail the test the usual way.
package harness
