package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCClient streams tree frames to a display over one client stream, JSON encoded.
type GRPCClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	addr         string
	tlsConfig    *tls.Config
	token        string
	method       string
	conn         *grpc.ClientConn
	stream       grpc.ClientStream
	streamCancel context.CancelFunc
}

func NewGRPCClient(addr string, tlsCfg *tls.Config, token, method string, logger *slog.Logger) *GRPCClient {
	return &GRPCClient{
		logger:    logger,
		addr:      addr,
		tlsConfig: tlsCfg,
		token:     token,
		method:    method,
	}
}

func (c *GRPCClient) SendTree(ctx context.Context, f TreeFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(); err != nil {
		return err
	}
	if c.stream == nil {
		if err := c.openStreamLocked(ctx); err != nil {
			return err
		}
	}
	if err := c.stream.SendMsg(&f); err != nil {
		c.logger.Warn("grpc tree send failed, reopening stream", "error", err)
		c.closeStreamLocked()
		if err2 := c.openStreamLocked(ctx); err2 != nil {
			return fmt.Errorf("reopen tree stream: %w", err2)
		}
		if err2 := c.stream.SendMsg(&f); err2 != nil {
			return fmt.Errorf("send tree frame: %w", err2)
		}
	}
	return nil
}

func (c *GRPCClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		_ = c.stream.CloseSend()
		// wait for the display to acknowledge, bounded by ctx
		done := make(chan struct{})
		go func(s grpc.ClientStream) {
			_ = s.RecvMsg(&struct{}{})
			close(done)
		}(c.stream)
		select {
		case <-done:
		case <-ctx.Done():
		}
		c.closeStreamLocked()
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *GRPCClient) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(
		c.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Info("grpc display client created", "addr", c.addr)
	return nil
}

// openStreamLocked opens the client stream. The stream outlives the send call, so it gets
// its own context; only the send deadline is taken from ctx.
func (c *GRPCClient) openStreamLocked(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("grpc conn is nil")
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	if c.token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+c.token)
	}

	type result struct {
		s   grpc.ClientStream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, c.method)
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			cancel()
			return fmt.Errorf("open tree stream: %w", r.err)
		}
		c.stream = r.s
		c.streamCancel = cancel
		return nil
	case <-ctx.Done():
		cancel()
		return fmt.Errorf("open tree stream: %w", ctx.Err())
	}
}

func (c *GRPCClient) closeStreamLocked() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	c.stream = nil
}
