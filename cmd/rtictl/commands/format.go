package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dantte-lp/lf-rti/internal/debugapi"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatStatus(view *debugapi.StatusView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatStatusJSON(view)
	case formatTable:
		return formatStatusTable(view), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatStatusJSON(view *debugapi.StatusView) (string, error) {
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal status: %w", err)
	}
	return string(b) + "\n", nil
}

func formatStatusTable(view *debugapi.StatusView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "federation: %s  (%d federates)\n\n", view.FederationID, view.Size)

	w := tabwriter.NewWriter(&sb, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tCOMPLETED\tNEXT_EVENT\tSTOP_REQ\tCLOCK_SYNC")
	for _, fed := range view.Federates {
		fmt.Fprintf(w, "%d\t%s\t(%d,%d)\t(%d,%d)\t%t\t%t\n",
			fed.ID, fed.State,
			fed.Completed, fed.CompletedStep,
			fed.NextEvent, fed.NextEventStep,
			fed.RequestedStop, fed.ClockSyncActive)
	}
	_ = w.Flush()
	return sb.String()
}
