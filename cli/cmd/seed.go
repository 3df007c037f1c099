package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/traceway-systems/traceway-edge/cli/internal/seeder"
)

var (
	seedService string
	seedCount   int
	seedBatches int
	seedPromote []string
)

var seedCmd = &cobra.Command{
	Use:   "seed [traces|logs|metrics|all]",
	Short: "Send synthetic telemetry to the collector",
	Long: `Generate fake OTLP payloads and POST them to the collector's HTTP
ingestion endpoints. Useful for smoke-testing a pipeline end to end.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"traces", "logs", "metrics", "all"},
	RunE:      runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedService, "service", "twedge-seeder", "service.name resource attribute")
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "records per batch")
	seedCmd.Flags().IntVar(&seedBatches, "batches", 1, "number of batches per signal")
	seedCmd.Flags().StringSliceVar(&seedPromote, "promote", []string{"service.name"}, "log attributes to promote to stream labels")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	signals := []string{args[0]}
	if args[0] == "all" {
		signals = []string{"traces", "logs", "metrics"}
	}

	opts := seeder.Options{
		Service:       seedService,
		Count:         seedCount,
		PromoteLabels: seedPromote,
	}
	client := &http.Client{Timeout: 30 * time.Second}

	for _, signal := range signals {
		for i := 0; i < seedBatches; i++ {
			var payload proto.Message
			switch signal {
			case "traces":
				payload = seeder.Traces(opts)
			case "logs":
				payload = seeder.Logs(opts)
			case "metrics":
				payload = seeder.Metrics(opts)
			default:
				return fmt.Errorf("unknown signal %q", signal)
			}

			if err := post(client, collectorURL+"/v1/"+signal, payload); err != nil {
				return fmt.Errorf("seed %s batch %d: %w", signal, i+1, err)
			}
		}
		fmt.Printf("sent %d %s batch(es) of %d records to %s\n", seedBatches, signal, seedCount, collectorURL)
	}
	return nil
}

func post(client *http.Client, url string, payload proto.Message) error {
	body, err := protojson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
