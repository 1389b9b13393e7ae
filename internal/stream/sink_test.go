package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"nhooyr.io/websocket"

	"profwatch/internal/config"
	"profwatch/internal/model"
)

const testMethod = "/profwatch.display.v1.DisplayService/StreamTree"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrame(epoch uint64) TreeFrame {
	return TreeFrame{
		SessionID: "s1",
		Flavor:    "memory",
		Epoch:     epoch,
		Added:     []string{"/a"},
		Nodes:     []NodeFrame{{Path: "/", ID: "root"}, {Path: "/a", Depth: 1, ID: "a", Name: "FuncA"}},
	}
}

type streamCall struct {
	method string
	auth   []string
}

func TestGRPCClient_StreamsFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	calls := make(chan streamCall, 1)
	frames := make(chan TreeFrame, 4)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, ss grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(ss)
		md, _ := metadata.FromIncomingContext(ss.Context())
		calls <- streamCall{method: method, auth: md.Get("authorization")}
		for {
			var f TreeFrame
			if err := ss.RecvMsg(&f); err != nil {
				if errors.Is(err, io.EOF) {
					return ss.SendMsg(&struct{}{})
				}
				return err
			}
			frames <- f
		}
	}))
	go func() { _ = srv.Serve(ln) }()
	defer srv.Stop()

	c := NewGRPCClient(ln.Addr().String(), nil, "secret", testMethod, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.SendTree(ctx, testFrame(1)))
	require.NoError(t, c.SendTree(ctx, testFrame(2)))

	call := <-calls
	require.Equal(t, testMethod, call.method)
	require.Equal(t, []string{"Bearer secret"}, call.auth)
	for _, epoch := range []uint64{1, 2} {
		select {
		case f := <-frames:
			require.Equal(t, epoch, f.Epoch)
			require.Equal(t, "FuncA", f.Nodes[1].Name)
		case <-ctx.Done():
			t.Fatal("frame not received")
		}
	}

	require.NoError(t, c.Close(ctx))
}

func TestWebSocketClient_WritesEnvelopes(t *testing.T) {
	msgs := make(chan []byte, 4)
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			msgs <- data
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewWebSocketClient(url, "secret", nil, time.Second, 20*time.Millisecond, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.SendTree(ctx, testFrame(3)))
	require.Equal(t, "Bearer secret", <-auth)

	var env struct {
		Type    model.FrameType `json:"type"`
		Payload TreeFrame       `json:"payload"`
	}
	select {
	case data := <-msgs:
		require.NoError(t, json.Unmarshal(data, &env))
	case <-ctx.Done():
		t.Fatal("message not received")
	}
	require.Equal(t, model.FrameTypeTree, env.Type)
	require.EqualValues(t, 3, env.Payload.Epoch)

	// pings keep flowing while idle
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, c.SendTree(ctx, testFrame(4)))
	<-msgs

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, s.SendTree(context.Background(), testFrame(7)))
	require.NoError(t, s.SendTree(context.Background(), TreeFrame{SessionID: "s1", Reset: true}))
	require.NoError(t, s.Close(context.Background()))

	out := buf.String()
	require.Contains(t, out, "call tree updated")
	require.Contains(t, out, "epoch=7")
	require.Contains(t, out, "call tree reset")
}

func TestNewSinkFromConfig(t *testing.T) {
	cfg := config.Default()

	s, err := NewSinkFromConfig(cfg, nil, discardLogger())
	require.NoError(t, err)
	require.IsType(t, &LogSink{}, s)

	cfg.SinkMode = config.SinkModeGRPC
	s, err = NewSinkFromConfig(cfg, nil, discardLogger())
	require.NoError(t, err)
	require.IsType(t, &GRPCClient{}, s)

	cfg.SinkMode = config.SinkModeWebSocket
	s, err = NewSinkFromConfig(cfg, nil, discardLogger())
	require.NoError(t, err)
	require.IsType(t, &WebSocketClient{}, s)

	cfg.SinkMode = "carrier-pigeon"
	_, err = NewSinkFromConfig(cfg, nil, discardLogger())
	require.Error(t, err)
}
