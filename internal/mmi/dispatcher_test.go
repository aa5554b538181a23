package mmi

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFactory struct {
	built  int
	closed int
}

func (f *countingFactory) build(env Env) *Proxy {
	f.built++
	p := NewProxy("ECHO", env.Logger)
	p.AssertDescription("IUT_ECHO", "echo", answer(OK))
	p.OnClose(func() error { f.closed++; return nil })
	return p
}

func TestDispatcher_ProxyLifecycle(t *testing.T) {
	// GOAL: Verify proxies are created lazily, reused between prompts and replaced on test start
	//
	// TEST SCENARIO: prompt → prompt → test started → prompt; the second proxy replaces the first
	f := &countingFactory{}
	d := NewDispatcher(nil, nil, nil)
	d.Register("echo", f.build)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := d.Interact(ctx, Interaction{Profile: "ECHO", ID: "IUT_ECHO", Description: "echo"})
		require.NoError(t, err)
		assert.Equal(t, OK, got)
	}
	assert.Equal(t, 1, f.built, "proxy MUST be reused between prompts")

	_, err := d.TestStarted(ctx, Interaction{Profile: "echo", Test: "ECHO/T-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.built, "test start MUST build a fresh proxy")
	assert.Equal(t, 1, f.closed, "previous proxy MUST be closed")

	require.NoError(t, d.Close())
	assert.Equal(t, 2, f.closed)
}

func TestDispatcher_AliasAndUnknown(t *testing.T) {
	f := &countingFactory{}
	d := NewDispatcher(nil, nil, nil)
	d.Register("ECHO", f.build)
	d.Alias("PARROT", "ECHO")

	_, err := d.Interact(context.Background(), Interaction{Profile: "PARROT", ID: "IUT_ECHO", Description: "echo"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.built)

	_, err = d.Interact(context.Background(), Interaction{Profile: "A2DP", ID: "1"})
	assert.ErrorIs(t, err, ErrUnknownProfile)

	assert.ElementsMatch(t, []string{"HAP", "VCP", "ECHO", "AICS", "PARROT"}, d.Profiles())
}

func TestRootcanalClient_SelectPTSDongle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- strings.TrimSpace(line)
		_, _ = conn.Write([]byte("OK\n"))
	}()

	rc := &RootcanalClient{Addr: ln.Addr().String()}
	require.NoError(t, rc.SelectPTSDongle(context.Background(), DongleLairdBL654))
	assert.Equal(t, "select_pts_dongle laird_bl654", <-received)
}

func TestRootcanalClient_Rejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadString('\n')
		_, _ = conn.Write([]byte("unknown dongle\n"))
	}()

	rc := &RootcanalClient{Addr: ln.Addr().String()}
	err = rc.SelectPTSDongle(context.Background(), DongleCSRRCK)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dongle")
}
