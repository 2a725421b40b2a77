package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/lf-rti/internal/debugapi"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show federation-wide status and per-federate tags",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			view, err := fetchStatus(serverAddr)
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}

			out, err := formatStatus(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format status: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func fetchStatus(addr string) (*debugapi.StatusView, error) {
	resp, err := httpClient.Get("http://" + addr + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, addr)
	}

	var view debugapi.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &view, nil
}
