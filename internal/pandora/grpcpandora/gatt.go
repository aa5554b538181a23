package grpcpandora

import (
	"context"
	"fmt"

	"github.com/srg/btharness/internal/pandora"
)

const gattService = "pandora.GATT"

// attSuccess is AttStatusCode.SUCCESS.
const attSuccess = 0

type gattClient struct {
	c *Client
}

func (g *gattClient) ExchangeMTU(ctx context.Context, conn *pandora.Connection, mtu int) error {
	req, err := g.c.schema.withConnection("pandora.ExchangeMTURequest", conn)
	if err != nil {
		return err
	}
	req.setInt("mtu", int32(mtu))
	_, err = g.c.invoke(ctx, gattService, "ExchangeMTU", req)
	return err
}

func (g *gattClient) DiscoverServices(ctx context.Context, conn *pandora.Connection) ([]pandora.GattService, error) {
	req, err := g.c.schema.withConnection("pandora.DiscoverServicesRequest", conn)
	if err != nil {
		return nil, err
	}
	resp, err := g.c.invoke(ctx, gattService, "DiscoverServices", req)
	if err != nil {
		return nil, err
	}
	l := resp.list("services")
	services := make([]pandora.GattService, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		services = append(services, gattServiceFrom(msg{l.Get(i).Message()}))
	}
	return services, nil
}

func (g *gattClient) ReadCharacteristicFromHandle(ctx context.Context, conn *pandora.Connection, handle uint32) ([]byte, error) {
	req, err := g.c.schema.withConnection("pandora.ReadCharacteristicRequest", conn)
	if err != nil {
		return nil, err
	}
	req.setUint("handle", handle)
	resp, err := g.c.invoke(ctx, gattService, "ReadCharacteristicFromHandle", req)
	if err != nil {
		return nil, err
	}
	if status := resp.enum("status"); status != attSuccess {
		return nil, fmt.Errorf("GATT.ReadCharacteristicFromHandle(0x%04x): att status %d", handle, status)
	}
	return append([]byte(nil), resp.sub("value").bytes("value")...), nil
}

func (g *gattClient) ClearCache(ctx context.Context, conn *pandora.Connection) error {
	req, err := g.c.schema.withConnection("pandora.ClearCacheRequest", conn)
	if err != nil {
		return err
	}
	_, err = g.c.invoke(ctx, gattService, "ClearCache", req)
	return err
}
