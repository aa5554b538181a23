package grpcpandora

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/srg/btharness/internal/pandora"
)

const a2dpService = "pandora.A2DP"

type a2dpClient struct {
	c *Client
}

func (a *a2dpClient) OpenSource(ctx context.Context, conn *pandora.Connection) (*pandora.Source, error) {
	req, err := a.c.schema.withConnection("pandora.OpenSourceRequest", conn)
	if err != nil {
		return nil, err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "OpenSource", req)
	if err != nil {
		return nil, err
	}
	if err := result("A2DP.OpenSource", resp, "source"); err != nil {
		return nil, err
	}
	raw, err := resp.raw("source")
	if err != nil {
		return nil, err
	}
	return pandora.NewSource(raw), nil
}

func (a *a2dpClient) WaitSink(ctx context.Context, conn *pandora.Connection) (*pandora.Sink, error) {
	req, err := a.c.schema.withConnection("pandora.WaitSinkRequest", conn)
	if err != nil {
		return nil, err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "WaitSink", req)
	if err != nil {
		return nil, err
	}
	if err := result("A2DP.WaitSink", resp, "sink"); err != nil {
		return nil, err
	}
	raw, err := resp.raw("sink")
	if err != nil {
		return nil, err
	}
	return pandora.NewSink(raw), nil
}

func (a *a2dpClient) sourceTarget(name protoreflect.FullName, source *pandora.Source) (msg, error) {
	req := a.c.schema.newMsg(name)
	if source == nil {
		return req, fmt.Errorf("%s: nil source", name)
	}
	return req, req.setRaw("source", source.Raw())
}

func (a *a2dpClient) Start(ctx context.Context, source *pandora.Source) error {
	req, err := a.sourceTarget("pandora.StartRequest", source)
	if err != nil {
		return err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "Start", req)
	if err != nil {
		return err
	}
	return result("A2DP.Start", resp, "started", "already_started")
}

func (a *a2dpClient) Suspend(ctx context.Context, source *pandora.Source) error {
	req, err := a.sourceTarget("pandora.SuspendRequest", source)
	if err != nil {
		return err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "Suspend", req)
	if err != nil {
		return err
	}
	return result("A2DP.Suspend", resp, "suspended", "already_suspended")
}

func (a *a2dpClient) IsSuspended(ctx context.Context, sink *pandora.Sink) (bool, error) {
	req := a.c.schema.newMsg("pandora.IsSuspendedRequest")
	if sink == nil {
		return false, fmt.Errorf("IsSuspended: nil sink")
	}
	if err := req.setRaw("sink", sink.Raw()); err != nil {
		return false, err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "IsSuspended", req)
	if err != nil {
		return false, err
	}
	return resp.boolean("value"), nil
}

func (a *a2dpClient) GetConfiguration(ctx context.Context, conn *pandora.Connection) (*pandora.Configuration, error) {
	req, err := a.c.schema.withConnection("pandora.GetConfigurationRequest", conn)
	if err != nil {
		return nil, err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "GetConfiguration", req)
	if err != nil {
		return nil, err
	}
	return configurationFrom(resp.sub("configuration")), nil
}

func (a *a2dpClient) SetConfiguration(ctx context.Context, conn *pandora.Connection, cfg pandora.Configuration) (bool, error) {
	req, err := a.c.schema.withConnection("pandora.SetConfigurationRequest", conn)
	if err != nil {
		return false, err
	}
	if err := setConfiguration(req.mutable("configuration"), cfg); err != nil {
		return false, err
	}
	resp, err := a.c.invoke(ctx, a2dpService, "SetConfiguration", req)
	if err != nil {
		return false, err
	}
	return resp.boolean("success"), nil
}

func (a *a2dpClient) PlaybackAudio(ctx context.Context, source *pandora.Source) (pandora.AudioStream, error) {
	if source == nil {
		return nil, fmt.Errorf("PlaybackAudio: nil source")
	}
	s, err := a.c.openAudioStream(ctx, a2dpService, "PlaybackAudio", func(data []byte) (msg, error) {
		m := a.c.schema.newMsg("pandora.PlaybackAudioRequest").setBytes("data", data)
		return m, m.setRaw("source", source.Raw())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
