package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"profwatch/internal/calltree"
	"profwatch/internal/model"
	"profwatch/internal/session"
)

var (
	dumpAddr      string
	dumpFlavor    string
	dumpSnapshots int
	dumpTimeout   time.Duration

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Apply a few snapshots from one profiler port and print the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return dump(ctx, cmd.OutOrStdout())
		},
	}
)

func init() {
	dumpCmd.Flags().StringVar(&dumpAddr, "addr", "127.0.0.1:5000", "Profiler address")
	dumpCmd.Flags().StringVar(&dumpFlavor, "flavor", string(model.FlavorMemory), "Report flavor (memory, cpu)")
	dumpCmd.Flags().IntVarP(&dumpSnapshots, "snapshots", "n", 1, "Snapshots to apply before printing")
	dumpCmd.Flags().DurationVar(&dumpTimeout, "timeout", 10*time.Second, "Read timeout per line")
}

func dump(ctx context.Context, out io.Writer) error {
	flavor, err := model.ParseFlavor(dumpFlavor)
	if err != nil {
		return err
	}
	if dumpSnapshots < 1 {
		return fmt.Errorf("--snapshots must be at least 1")
	}

	s, err := session.New(session.Options{
		Flavor:      flavor,
		ReadTimeout: dumpTimeout,
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		return err
	}
	if err := s.Connect(ctx, dumpAddr); err != nil {
		return err
	}
	defer func() { _ = s.Disconnect(context.Background()) }()

	for i := 0; i < dumpSnapshots; i++ {
		p, err := s.TryPull()
		if err != nil {
			return err
		}
		res, err := p.Wait(ctx)
		if err != nil {
			return err
		}
		if res.Err != nil {
			return fmt.Errorf("snapshot %d: %w", i+1, res.Err)
		}
	}

	var werr error
	s.View(func(t *calltree.Tree) {
		werr = printTree(out, t, s.Schema().MetricNames())
	})
	return werr
}

func printTree(out io.Writer, t *calltree.Tree, metricNames []string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tID\t%s\n", strings.ToUpper(strings.Join(metricNames, "\t")))
	t.Walk(func(n calltree.Node, level int) bool {
		vals := make([]string, len(n.Metrics))
		for i, m := range n.Metrics {
			vals[i] = strconv.FormatFloat(m.Value, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\n", strings.Repeat("  ", level), n.Name, n.ID, strings.Join(vals, "\t"))
		return true
	})
	return tw.Flush()
}
