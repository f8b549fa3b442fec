package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStatus renders a node status snapshot in the requested format.
func formatStatus(status nodeStatus, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatStatusJSON(status)
	case formatTable:
		return formatStatusTable(status), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatStatusTable(status nodeStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Address:\t%s\n", status.Addr)
	fmt.Fprintf(w, "Sink:\t%t\n", status.Sink)
	fmt.Fprintf(w, "Queue Length:\t%d\n", status.QueueLength)
	fmt.Fprintf(w, "Routing Table Size:\t%d\n", status.RoutingTableSize)

	_ = w.Flush()
	return buf.String()
}

func formatStatusJSON(status nodeStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal status to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
