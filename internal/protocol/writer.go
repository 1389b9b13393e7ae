package protocol

import (
	"bufio"
	"errors"
	"io"
)

// Terminator ends a snapshot: together with the newline of the last record it yields two
// empty lines.
const Terminator = "\n\n"

// WriteSnapshot writes records followed by the snapshot terminator, the way an
// instrumented process flushes its report.
func WriteSnapshot(w io.Writer, schema Schema, records []Record) error {
	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = rec.Format(schema)
	}
	return WriteLines(w, lines)
}

// WriteLines writes already formatted record lines as one snapshot.
func WriteLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString(Terminator); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadSnapshots splits a recorded stream into snapshots. A trailing snapshot without
// terminator is kept.
func ReadSnapshots(r io.Reader) ([][]string, error) {
	rd := NewReader(r, 0)
	var (
		out     [][]string
		current []string
	)
	for {
		line, err := rd.Next()
		switch {
		case err == nil:
			current = append(current, line)
		case errors.Is(err, ErrEndOfSnapshot):
			out = append(out, current)
			current = nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			if len(current) > 0 {
				out = append(out, current)
			}
			return out, nil
		default:
			return nil, err
		}
	}
}
