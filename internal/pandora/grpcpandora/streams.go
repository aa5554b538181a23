package grpcpandora

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/srg/btharness/internal/pandora"
)

// serverStream is the common part of the server-streaming wrappers.
type serverStream struct {
	client *Client
	ctx    context.Context
	cs     grpc.ClientStream
	md     protoreflect.MethodDescriptor
	cancel context.CancelFunc
	once   sync.Once
}

func (s *serverStream) next() (msg, error) {
	return s.client.recv(s.ctx, s.cs, s.md)
}

// Close cancels the call, which makes the server stop the underlying procedure.
func (s *serverStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// openServerStream sends req and half-closes the sending side.
func (c *Client) openServerStream(ctx context.Context, service, method string, req msg) (*serverStream, error) {
	cs, md, cancel, err := c.stream(ctx, service, method)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req.Interface()); err != nil {
		cancel()
		return nil, c.wrapError(ctx, service+"/"+method, err)
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, c.wrapError(ctx, service+"/"+method, err)
	}
	return &serverStream{client: c, ctx: ctx, cs: cs, md: md, cancel: cancel}, nil
}

type advertiseStream struct {
	*serverStream
}

func (s *advertiseStream) Recv() (*pandora.AdvertiseResponse, error) {
	m, err := s.next()
	if err != nil {
		return nil, err
	}
	conn, err := connectionFrom(m, "connection")
	if err != nil {
		return nil, err
	}
	return &pandora.AdvertiseResponse{Connection: conn}, nil
}

type scanStream struct {
	*serverStream
}

func (s *scanStream) Recv() (*pandora.ScanningResponse, error) {
	m, err := s.next()
	if err != nil {
		return nil, err
	}
	addr, addrType, err := addressOneof(m)
	if err != nil {
		return nil, err
	}
	return &pandora.ScanningResponse{
		Address:     addr,
		AddressType: addrType,
		Legacy:      m.boolean("legacy"),
		Connectable: m.boolean("connectable"),
		RSSI:        m.int("rssi"),
		Data:        dataTypesFrom(m.sub("data")),
	}, nil
}

type channelStream struct {
	*serverStream
}

func (s *channelStream) Recv() ([]byte, error) {
	m, err := s.next()
	if err != nil {
		return nil, err
	}
	return m.bytes("data"), nil
}

// pairingStream is the bidirectional OnPairing call. Recv and Send may be used
// from different goroutines; concurrent Sends are serialized.
type pairingStream struct {
	client *Client
	ctx    context.Context
	cs     grpc.ClientStream
	md     protoreflect.MethodDescriptor
	cancel context.CancelFunc
	sendMu sync.Mutex
	once   sync.Once
}

func (s *pairingStream) Recv() (*pandora.PairingEvent, error) {
	m, err := s.client.recv(s.ctx, s.cs, s.md)
	if err != nil {
		return nil, err
	}
	return pairingEventFrom(m)
}

func (s *pairingStream) Send(answer *pandora.PairingEventAnswer) error {
	m, err := s.client.schema.pairingAnswerMsg(answer)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.cs.SendMsg(m.Interface()); err != nil {
		return s.client.wrapError(s.ctx, string(s.md.FullName()), err)
	}
	return nil
}

func (s *pairingStream) Close() error {
	s.once.Do(func() {
		s.sendMu.Lock()
		_ = s.cs.CloseSend()
		s.sendMu.Unlock()
		s.cancel()
	})
	return nil
}

// audioStream is a client-streaming playback call.
type audioStream struct {
	client *Client
	ctx    context.Context
	cs     grpc.ClientStream
	md     protoreflect.MethodDescriptor
	cancel context.CancelFunc
	frame  func(data []byte) (msg, error)
}

func (s *audioStream) Send(data []byte) error {
	m, err := s.frame(data)
	if err != nil {
		return err
	}
	if err := s.cs.SendMsg(m.Interface()); err != nil {
		return s.client.wrapError(s.ctx, string(s.md.FullName()), err)
	}
	return nil
}

func (s *audioStream) CloseAndRecv() error {
	defer s.cancel()
	if err := s.cs.CloseSend(); err != nil {
		return s.client.wrapError(s.ctx, string(s.md.FullName()), err)
	}
	resp := newMsgOf(s.md.Output())
	if err := s.cs.RecvMsg(resp.Interface()); err != nil {
		return s.client.wrapError(s.ctx, string(s.md.FullName()), err)
	}
	return nil
}

func (c *Client) openAudioStream(ctx context.Context, service, method string, frame func([]byte) (msg, error)) (*audioStream, error) {
	cs, md, cancel, err := c.stream(ctx, service, method)
	if err != nil {
		return nil, err
	}
	return &audioStream{client: c, ctx: ctx, cs: cs, md: md, cancel: cancel, frame: frame}, nil
}
