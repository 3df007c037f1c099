package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collector and gateway readiness",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	for _, svc := range []struct {
		name string
		url  string
	}{
		{"collector", collectorURL + "/readyz"},
		{"gateway", gatewayURL + "/readyz"},
	} {
		body, status, err := fetch(client, svc.url)
		if err != nil {
			fmt.Printf("%-10s unreachable: %v\n", svc.name, err)
			continue
		}

		state := "ready"
		if status != http.StatusOK {
			state = fmt.Sprintf("not ready (%d)", status)
		}
		fmt.Printf("%-10s %s\n", svc.name, state)

		var pretty map[string]any
		if err := json.Unmarshal(body, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "  ", "  ")
			fmt.Printf("  %s\n", out)
		}
	}
	return nil
}

func fetch(client *http.Client, url string) ([]byte, int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, nil
	}
	return body, resp.StatusCode, nil
}
