package grpcpandora

import (
	"context"

	"google.golang.org/grpc"

	"github.com/srg/btharness/internal/pandora"
)

const hostService = "pandora.Host"

type hostClient struct {
	c *Client
}

func (h *hostClient) call(ctx context.Context, method string, req msg, opts ...grpc.CallOption) (msg, error) {
	return h.c.invoke(ctx, hostService, method, req, opts...)
}

func (h *hostClient) empty(ctx context.Context, method string, opts ...grpc.CallOption) (msg, error) {
	req, err := h.c.request(hostService, method)
	if err != nil {
		return msg{}, err
	}
	return h.call(ctx, method, req, opts...)
}

func (h *hostClient) FactoryReset(ctx context.Context) error {
	_, err := h.empty(ctx, "FactoryReset")
	return err
}

func (h *hostClient) Reset(ctx context.Context) error {
	_, err := h.empty(ctx, "Reset")
	return err
}

// ReadLocalAddress waits for the server to be ready, so it can be used to detect
// that a server restarted after FactoryReset.
func (h *hostClient) ReadLocalAddress(ctx context.Context) (pandora.Address, error) {
	resp, err := h.empty(ctx, "ReadLocalAddress", grpc.WaitForReady(true))
	if err != nil {
		return pandora.Address{}, err
	}
	return pandora.AddressFromBytes(resp.bytes("address"))
}

func (h *hostClient) Connect(ctx context.Context, addr pandora.Address) (*pandora.Connection, error) {
	req := h.c.schema.newMsg("pandora.ConnectRequest").setBytes("address", addr.Bytes())
	resp, err := h.call(ctx, "Connect", req)
	if err != nil {
		return nil, err
	}
	if err := result("Host.Connect", resp, "connection"); err != nil {
		return nil, err
	}
	return connectionFrom(resp, "connection")
}

func (h *hostClient) WaitConnection(ctx context.Context, addr pandora.Address) (*pandora.Connection, error) {
	req := h.c.schema.newMsg("pandora.WaitConnectionRequest").setBytes("address", addr.Bytes())
	resp, err := h.call(ctx, "WaitConnection", req)
	if err != nil {
		return nil, err
	}
	if err := result("Host.WaitConnection", resp, "connection"); err != nil {
		return nil, err
	}
	return connectionFrom(resp, "connection")
}

func (h *hostClient) ConnectLE(ctx context.Context, r pandora.ConnectLERequest) (*pandora.Connection, error) {
	req := h.c.schema.newMsg("pandora.ConnectLERequest").setEnum("own_address_type", int32(r.OwnAddressType))
	setAddressOneof(req, r.Address, r.AddressType)
	resp, err := h.call(ctx, "ConnectLE", req)
	if err != nil {
		return nil, err
	}
	if err := result("Host.ConnectLE", resp, "connection"); err != nil {
		return nil, err
	}
	return connectionFrom(resp, "connection")
}

func (h *hostClient) Disconnect(ctx context.Context, conn *pandora.Connection) error {
	req, err := h.c.schema.withConnection("pandora.DisconnectRequest", conn)
	if err != nil {
		return err
	}
	_, err = h.call(ctx, "Disconnect", req)
	return err
}

func (h *hostClient) Advertise(ctx context.Context, r pandora.AdvertiseRequest) (pandora.AdvertiseStream, error) {
	req := h.c.schema.newMsg("pandora.AdvertiseRequest").
		setBool("legacy", r.Legacy).
		setBool("connectable", r.Connectable).
		setEnum("own_address_type", int32(r.OwnAddressType))
	setDataTypes(req.mutable("data"), r.Data)

	s, err := h.c.openServerStream(ctx, hostService, "Advertise", req)
	if err != nil {
		return nil, err
	}
	return &advertiseStream{s}, nil
}

func (h *hostClient) Scan(ctx context.Context, r pandora.ScanRequest) (pandora.ScanStream, error) {
	req := h.c.schema.newMsg("pandora.ScanRequest").
		setBool("legacy", r.Legacy).
		setBool("passive", r.Passive).
		setEnum("own_address_type", int32(r.OwnAddressType))

	s, err := h.c.openServerStream(ctx, hostService, "Scan", req)
	if err != nil {
		return nil, err
	}
	return &scanStream{s}, nil
}
