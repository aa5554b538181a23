// Package grpcpandora implements the pandora service interfaces over gRPC.
//
// The Pandora interface definitions are embedded and compiled at start-up, so
// requests and responses are dynamic messages and no generated stubs are needed.
package grpcpandora

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/srg/btharness/internal/pandora"
)

// Client is a connection to one Pandora server.
type Client struct {
	conn   *grpc.ClientConn
	schema *schema
	target string
	logger *logrus.Logger
}

// Dial creates a client for the Pandora server at target (host:port). The
// connection is established lazily by the first call.
func Dial(ctx context.Context, target string, logger *logrus.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s, err := loadSchema(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}

	logger.WithField("target", target).Debug("Pandora client created")
	return &Client{conn: conn, schema: s, target: target, logger: logger}, nil
}

// Target returns the server address the client was created for.
func (c *Client) Target() string {
	return c.target
}

// Close tears down the underlying channel.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Services returns the client of every Pandora service exposed by the server.
func (c *Client) Services() pandora.Services {
	return pandora.Services{
		Host:            &hostClient{c},
		Security:        &securityClient{c},
		SecurityStorage: &securityStorageClient{c},
		A2DP:            &a2dpClient{c},
		GATT:            &gattClient{c},
		HAP:             &hapClient{c},
		VCP:             &vcpClient{c},
		L2CAP:           &l2capClient{c},
		RFCOMM:          &rfcommClient{c},
		OS:              &osClient{c},
		BumbleConfig:    &bumbleConfigClient{c},
	}
}

// invoke performs a unary call and returns the response message.
func (c *Client) invoke(ctx context.Context, service, method string, req msg, opts ...grpc.CallOption) (msg, error) {
	md, err := c.schema.method(service, method)
	if err != nil {
		return msg{}, err
	}
	resp := newMsgOf(md.Output())

	c.logger.WithFields(logrus.Fields{
		"target": c.target,
		"rpc":    service + "/" + method,
	}).Trace("Invoking")

	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, req.Interface(), resp.Interface(), opts...); err != nil {
		return msg{}, c.wrapError(ctx, service+"/"+method, err)
	}
	return resp, nil
}

// request returns an empty input message of a method.
func (c *Client) request(service, method string) (msg, error) {
	md, err := c.schema.method(service, method)
	if err != nil {
		return msg{}, err
	}
	return newMsgOf(md.Input()), nil
}

// stream opens a streaming call. The returned cancel function ends the call.
func (c *Client) stream(ctx context.Context, service, method string) (grpc.ClientStream, protoreflect.MethodDescriptor, context.CancelFunc, error) {
	md, err := c.schema.method(service, method)
	if err != nil {
		return nil, nil, nil, err
	}
	desc := &grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: md.IsStreamingServer(),
		ClientStreams: md.IsStreamingClient(),
	}
	sctx, cancel := context.WithCancel(ctx)
	cs, err := c.conn.NewStream(sctx, desc, "/"+service+"/"+method)
	if err != nil {
		cancel()
		return nil, nil, nil, c.wrapError(ctx, service+"/"+method, err)
	}
	return cs, md, cancel, nil
}

// wrapError maps gRPC status errors onto pandora errors.
func (c *Client) wrapError(ctx context.Context, rpc string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", rpc, err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("%s: %w: %s", rpc, pandora.ErrUnavailable, st.Message())
	case codes.Unimplemented:
		return fmt.Errorf("%s: %w: %s", rpc, pandora.ErrUnsupported, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%s: %w", rpc, context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", rpc, context.DeadlineExceeded)
	default:
		return fmt.Errorf("%s: %s: %s", rpc, st.Code(), st.Message())
	}
}

// recv reads the next message of a server stream.
func (c *Client) recv(ctx context.Context, cs grpc.ClientStream, md protoreflect.MethodDescriptor) (msg, error) {
	resp := newMsgOf(md.Output())
	if err := cs.RecvMsg(resp.Interface()); err != nil {
		if errors.Is(err, io.EOF) {
			return msg{}, pandora.ErrStreamClosed
		}
		return msg{}, c.wrapError(ctx, string(md.FullName()), err)
	}
	return resp, nil
}
