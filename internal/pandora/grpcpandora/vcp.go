package grpcpandora

import (
	"context"

	"github.com/srg/btharness/internal/pandora"
)

const vcpService = "pandora.VCP"

type vcpClient struct {
	c *Client
}

// set invokes a VCP setter whose request carries the connection and one scalar field.
func (v *vcpClient) set(ctx context.Context, method string, conn *pandora.Connection, fill func(msg)) error {
	req, err := v.c.schema.withConnection(pandoraMessage(method+"Request"), conn)
	if err != nil {
		return err
	}
	if fill != nil {
		fill(req)
	}
	_, err = v.c.invoke(ctx, vcpService, method, req)
	return err
}

func (v *vcpClient) WaitConnect(ctx context.Context, conn *pandora.Connection) error {
	return v.set(ctx, "WaitConnect", conn, nil)
}

func (v *vcpClient) SetDeviceVolume(ctx context.Context, conn *pandora.Connection, volume uint32) error {
	return v.set(ctx, "SetDeviceVolume", conn, func(m msg) { m.setUint("volume", volume) })
}

func (v *vcpClient) SetVolumeOffset(ctx context.Context, conn *pandora.Connection, offset int32) error {
	return v.set(ctx, "SetVolumeOffset", conn, func(m msg) { m.setInt("offset", offset) })
}

func (v *vcpClient) SetGainSetting(ctx context.Context, conn *pandora.Connection, gain int32) error {
	return v.set(ctx, "SetGainSetting", conn, func(m msg) { m.setInt("gain_setting", gain) })
}

func (v *vcpClient) SetMute(ctx context.Context, conn *pandora.Connection, mute uint32) error {
	return v.set(ctx, "SetMute", conn, func(m msg) { m.setUint("mute", mute) })
}

func (v *vcpClient) SetGainMode(ctx context.Context, conn *pandora.Connection, mode uint32) error {
	return v.set(ctx, "SetGainMode", conn, func(m msg) { m.setUint("gain_mode", mode) })
}
