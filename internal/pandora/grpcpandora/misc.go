package grpcpandora

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/srg/btharness/internal/pandora"
)

const (
	l2capService        = "pandora.L2CAP"
	rfcommService       = "pandora.RFCOMM"
	osService           = "pandora.Os"
	bumbleConfigService = "bumble.pandora.BumbleConfig"
)

func pandoraMessage(name string) protoreflect.FullName {
	return protoreflect.FullName("pandora." + name)
}

type l2capClient struct {
	c *Client
}

// Connect opens a classic L2CAP channel on psm. A refused channel is reported as
// a ResultError with the server's reason as variant.
func (l *l2capClient) Connect(ctx context.Context, conn *pandora.Connection, psm uint16) error {
	_, err := l.Open(ctx, conn, psm)
	return err
}

// Open is Connect returning the channel token for Send and Receive.
func (l *l2capClient) Open(ctx context.Context, conn *pandora.Connection, psm uint16) (*pandora.Channel, error) {
	req, err := l.c.schema.withConnection("pandora.ConnectChannelRequest", conn)
	if err != nil {
		return nil, err
	}
	req.setUint("psm", uint32(psm))
	resp, err := l.c.invoke(ctx, l2capService, "Connect", req)
	if err != nil {
		return nil, err
	}
	if resp.which("result") == "error" {
		return nil, &pandora.ResultError{Op: fmt.Sprintf("L2CAP.Connect(0x%04x)", psm), Variant: resp.str("error")}
	}
	if err := result("L2CAP.Connect", resp, "channel"); err != nil {
		return nil, err
	}
	raw, err := resp.raw("channel")
	if err != nil {
		return nil, err
	}
	return pandora.NewChannel(raw), nil
}

func (l *l2capClient) Send(ctx context.Context, ch *pandora.Channel, data []byte) error {
	req := l.c.schema.newMsg("pandora.SendRequest")
	if err := req.setRaw("channel", ch.Raw()); err != nil {
		return err
	}
	req.setBytes("data", data)
	resp, err := l.c.invoke(ctx, l2capService, "Send", req)
	if err != nil {
		return err
	}
	if resp.which("result") == "error" {
		return &pandora.ResultError{Op: "L2CAP.Send", Variant: resp.str("error")}
	}
	return result("L2CAP.Send", resp, "success")
}

func (l *l2capClient) Receive(ctx context.Context, ch *pandora.Channel) (pandora.ChannelStream, error) {
	req := l.c.schema.newMsg("pandora.ReceiveRequest")
	if err := req.setRaw("channel", ch.Raw()); err != nil {
		return nil, err
	}
	s, err := l.c.openServerStream(ctx, l2capService, "Receive", req)
	if err != nil {
		return nil, err
	}
	return &channelStream{s}, nil
}

type rfcommClient struct {
	c *Client
}

func (r *rfcommClient) StartServer(ctx context.Context, name, uuid string) error {
	req := r.c.schema.newMsg("pandora.StartServerRequest").setString("name", name).setString("uuid", uuid)
	_, err := r.c.invoke(ctx, rfcommService, "StartServer", req)
	return err
}

func (r *rfcommClient) ConnectToServer(ctx context.Context, addr pandora.Address, uuid string) error {
	req := r.c.schema.newMsg("pandora.ConnectionRequest").setBytes("address", addr.Bytes()).setString("uuid", uuid)
	_, err := r.c.invoke(ctx, rfcommService, "ConnectToServer", req)
	return err
}

type osClient struct {
	c *Client
}

func (o *osClient) Log(ctx context.Context, text string) error {
	req := o.c.schema.newMsg("pandora.LogRequest").setString("text", text)
	_, err := o.c.invoke(ctx, osService, "Log", req)
	return err
}

type bumbleConfigClient struct {
	c *Client
}

func (b *bumbleConfigClient) Override(ctx context.Context, r pandora.OverrideRequest) error {
	io, ok := ioCapabilities[r.IOCapability]
	if !ok {
		return fmt.Errorf("unknown io capability %q", r.IOCapability)
	}
	req := b.c.schema.newMsg("bumble.pandora.OverrideRequest").
		setEnum("io_capability", io).
		setEnum("initiator_key_distribution", int32(r.InitiatorKeyDistribution)).
		setEnum("responder_key_distribution", int32(r.ResponderKeyDistribution))
	req.mutable("pairing_config").
		setBool("sc", r.Pairing.SecureConnections).
		setBool("mitm", r.Pairing.MITM).
		setBool("bonding", r.Pairing.Bonding).
		setEnum("identity_address_type", int32(r.Pairing.IdentityAddress))
	_, err := b.c.invoke(ctx, bumbleConfigService, "Override", req)
	return err
}
