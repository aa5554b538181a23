package grpcpandora

import (
	"context"

	"github.com/srg/btharness/internal/pandora"
)

const (
	securityService        = "pandora.Security"
	securityStorageService = "pandora.SecurityStorage"
)

type securityClient struct {
	c *Client
}

// OnPairing opens the pairing event stream. Events are delivered only while the
// stream is open; the stream ends when ctx is cancelled or Close is called.
func (s *securityClient) OnPairing(ctx context.Context) (pandora.PairingEventStream, error) {
	cs, md, cancel, err := s.c.stream(ctx, securityService, "OnPairing")
	if err != nil {
		return nil, err
	}
	return &pairingStream{client: s.c, ctx: ctx, cs: cs, md: md, cancel: cancel}, nil
}

func (s *securityClient) Secure(ctx context.Context, conn *pandora.Connection, level pandora.SecurityLevel) error {
	req, err := s.c.schema.withConnection("pandora.SecureRequest", conn)
	if err != nil {
		return err
	}
	if err := setLevel(req, level); err != nil {
		return err
	}
	resp, err := s.c.invoke(ctx, securityService, "Secure", req)
	if err != nil {
		return err
	}
	return result("Security.Secure", resp, "success")
}

func (s *securityClient) WaitSecurity(ctx context.Context, conn *pandora.Connection, level pandora.SecurityLevel) error {
	req, err := s.c.schema.withConnection("pandora.WaitSecurityRequest", conn)
	if err != nil {
		return err
	}
	if err := setLevel(req, level); err != nil {
		return err
	}
	resp, err := s.c.invoke(ctx, securityService, "WaitSecurity", req)
	if err != nil {
		return err
	}
	return result("Security.WaitSecurity", resp, "success")
}

type securityStorageClient struct {
	c *Client
}

func (s *securityStorageClient) IsBonded(ctx context.Context, addr pandora.Address, addrType pandora.OwnAddressType) (bool, error) {
	req := s.c.schema.newMsg("pandora.IsBondedRequest")
	setAddressOneof(req, addr, addrType)
	resp, err := s.c.invoke(ctx, securityStorageService, "IsBonded", req)
	if err != nil {
		return false, err
	}
	return resp.boolean("value"), nil
}

func (s *securityStorageClient) DeleteBond(ctx context.Context, addr pandora.Address, addrType pandora.OwnAddressType) error {
	req := s.c.schema.newMsg("pandora.DeleteBondRequest")
	setAddressOneof(req, addr, addrType)
	_, err := s.c.invoke(ctx, securityStorageService, "DeleteBond", req)
	return err
}
