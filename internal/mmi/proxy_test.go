package mmi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ProxyTestSuite struct {
	suite.Suite
	proxy *Proxy
	calls []Args
}

func (s *ProxyTestSuite) SetupTest() {
	s.proxy = NewProxy("TEST", nil)
	s.calls = nil
}

func (s *ProxyTestSuite) record(answer string) Handler {
	return func(_ context.Context, _ Interaction, args Args) (string, error) {
		s.calls = append(s.calls, args)
		return answer, nil
	}
}

func (s *ProxyTestSuite) TestAssertDescription_NormalizesWhitespace() {
	// GOAL: Verify exact descriptions match regardless of line breaks and indentation
	//
	// TEST SCENARIO: registered text is indented over two lines → PTS sends it on one line → handler runs
	s.proxy.AssertDescription("IUT_DO_IT", `
		Please do the
		thing.`, s.record(OK))

	got, err := s.proxy.Interact(context.Background(), Interaction{ID: "IUT_DO_IT", Description: "Please do the thing.\n"})

	s.Require().NoError(err)
	s.Equal(OK, got)
	s.Len(s.calls, 1, "handler MUST run once")
}

func (s *ProxyTestSuite) TestAssertDescription_MismatchCarriesDiff() {
	s.proxy.AssertDescription("IUT_DO_IT", "Please do the thing.", s.record(OK))

	_, err := s.proxy.Interact(context.Background(), Interaction{ID: "IUT_DO_IT", Description: "Please do another thing."})

	s.Require().Error(err)
	s.ErrorIs(err, ErrDescriptionMismatch)
	var mismatch *DescriptionMismatchError
	s.Require().ErrorAs(err, &mismatch)
	s.Contains(mismatch.Diff, "-Please do the thing.")
	s.Contains(mismatch.Diff, "+Please do another thing.")
	s.Contains(mismatch.Diff, "--- registered")
	s.Empty(s.calls, "handler MUST NOT run on mismatch")
}

func (s *ProxyTestSuite) TestMatchDescription_NamedGroupsBecomeArgs() {
	s.proxy.MatchDescription("IUT_READ", `
		Please read (?P<name>.*) characteristic with handle
		= (?P<handle>\S*).`, s.record(OK))

	_, err := s.proxy.Interact(context.Background(), Interaction{
		ID:          "IUT_READ",
		Description: "Please read Volume State characteristic with handle = 0x00D5.",
	})

	s.Require().NoError(err)
	s.Require().Len(s.calls, 1)
	s.Equal("Volume State", s.calls[0]["name"])
	s.Equal("0x00D5", s.calls[0]["handle"])

	handle, err := s.calls[0].Uint("handle", 16)
	s.Require().NoError(err)
	s.Equal(uint32(0xD5), handle)
}

func (s *ProxyTestSuite) TestMatchDescription_MustMatchWholeText() {
	s.proxy.MatchDescription("IUT_INDEX", `index: (?P<index>[0-9]*)`, s.record(OK))

	_, err := s.proxy.Interact(context.Background(), Interaction{ID: "IUT_INDEX", Description: "index: 4 and more"})

	s.ErrorIs(err, ErrDescriptionMismatch, "trailing text MUST NOT match")
}

func (s *ProxyTestSuite) TestNumericIDs() {
	s.proxy.AssertDescription("_mmi_20103", "Discover.", s.record(Yes))

	got, err := s.proxy.Interact(context.Background(), Interaction{ID: "20103", Description: "Discover."})

	s.Require().NoError(err)
	s.Equal(Yes, got)
}

func (s *ProxyTestSuite) TestUnimplemented() {
	_, err := s.proxy.Interact(context.Background(), Interaction{ID: "42", Description: "?"})

	s.ErrorIs(err, ErrUnimplemented)
	s.Contains(err.Error(), "_mmi_42")
}

func (s *ProxyTestSuite) TestHandlerErrorAndPanic() {
	boom := errors.New("boom")
	s.proxy.AssertDescription("FAILS", "x", func(context.Context, Interaction, Args) (string, error) { return "", boom })
	s.proxy.AssertDescription("PANICS", "y", func(context.Context, Interaction, Args) (string, error) { panic("bad") })

	_, err := s.proxy.Interact(context.Background(), Interaction{ID: "FAILS", Description: "x"})
	s.ErrorIs(err, boom)

	_, err = s.proxy.Interact(context.Background(), Interaction{ID: "PANICS", Description: "y"})
	s.Require().Error(err, "panic MUST be converted to an error")
	s.Contains(err.Error(), "handler panic: bad")
}

func (s *ProxyTestSuite) TestHandlersKeepRegistrationOrder() {
	s.proxy.AssertDescription("B", "b", s.record(OK))
	s.proxy.AssertDescription("A", "a", s.record(OK))
	s.proxy.MatchDescription("C", "c", s.record(OK))

	s.Equal([]string{"B", "A", "C"}, s.proxy.Handlers())
	s.Panics(func() { s.proxy.AssertDescription("A", "again", s.record(OK)) }, "duplicate handler MUST panic")
}

func (s *ProxyTestSuite) TestHooks() {
	got, err := s.proxy.TestStarted(context.Background(), Interaction{})
	s.Require().NoError(err)
	s.Equal(OK, got, "missing hook MUST answer OK")
	s.NoError(s.proxy.Close())

	closed := false
	s.proxy.OnTestStarted(func(context.Context, Interaction) (string, error) { return No, nil })
	s.proxy.OnClose(func() error { closed = true; return nil })

	got, err = s.proxy.TestStarted(context.Background(), Interaction{})
	s.Require().NoError(err)
	s.Equal(No, got)
	s.NoError(s.proxy.Close())
	s.True(closed)
}

func TestProxyTestSuite(t *testing.T) {
	suite.Run(t, new(ProxyTestSuite))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("\n  a\t\tb\n\n c  "))
	assert.Empty(t, Normalize(" \n\t "))
}

func TestArgs_Uint(t *testing.T) {
	args := Args{"index": "7", "handle": "0X00d2", "bad": "x"}

	v, err := args.Uint("index", 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	v, err = args.Uint("handle", 16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xD2), v)

	_, err = args.Uint("bad", 10)
	assert.Error(t, err)
	_, err = args.Uint("missing", 10)
	assert.Error(t, err)
}
