package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"profwatch/internal/calltree"
	"profwatch/internal/model"
	"profwatch/internal/protocol"
)

func TestPrintTree(t *testing.T) {
	schema := protocol.MustSchema(model.FlavorMemory)
	tree := calltree.New()
	b := tree.Begin()
	for _, line := range []string{"0;root;Frame;10;0;1;0;0;1;", "1;a;LoadMesh;4;4;1.5;1.5;0;1;"} {
		rec, err := protocol.ParseRecord(line, schema)
		require.NoError(t, err)
		require.NoError(t, b.Apply(rec))
	}
	_, err := b.Finish()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printTree(&buf, tree, schema.MetricNames()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "TOTAL_COUNT")
	require.True(t, strings.HasPrefix(lines[2], "  LoadMesh"))
	require.Contains(t, lines[2], "1.5")
}

func TestServeReplayAndDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.txt")
	require.NoError(t, os.WriteFile(path, []byte("0;root;Frame;\n1;a;A;\n\n\n0;root;Frame;\n1;b;B;\n\n\n"), 0o600))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	replayListen = ln.Addr().String()
	require.NoError(t, ln.Close())
	replayFile = path
	replayInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- replay(ctx, discard()) }()

	dumpAddr = replayListen
	dumpFlavor = "cpu"
	dumpSnapshots = 2
	dumpTimeout = 5 * time.Second

	var buf bytes.Buffer
	require.Eventually(t, func() bool {
		buf.Reset()
		return dump(ctx, &buf) == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.Contains(t, buf.String(), "  B")
	require.NotContains(t, buf.String(), "  A")

	cancel()
	require.NoError(t, <-done)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
