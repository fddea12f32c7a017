package telemetry

import (
	"bufio"
	"fmt"
	"io"
)

// WriteCSV writes export rows, one per line.
func WriteCSV(w io.Writer, rows []string) (err error) {
	bw := bufio.NewWriter(w)
	for i, row := range rows {
		if _, err = bw.WriteString(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
		if err = bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
