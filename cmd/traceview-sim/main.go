package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/traceview/pkg/client"
	"github.com/rmax-ai/traceview/pkg/ingest"
	"github.com/rmax-ai/traceview/pkg/simulation"
)

type options struct {
	scenarioFile string
	apiURL       string
	jsonOutput   bool
	outputFile   string
	redisAddr    string
	redisChannel string
}

func main() {
	var opts options
	flag.StringVar(&opts.scenarioFile, "scenario", "", "Path to scenario YAML or JSON file")
	flag.StringVar(&opts.apiURL, "api", "http://127.0.0.1:8095", "Base URL of traceview-d API")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	flag.StringVar(&opts.outputFile, "out", "", "Write output to file instead of stdout")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "Publish batches to Redis instead of the HTTP API")
	flag.StringVar(&opts.redisChannel, "redis-channel", ingest.DefaultChannel, "Redis channel the daemon subscribes to")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := run(ctx, opts, logger)
	if err != nil {
		logger.Error("simulation_failed", "error", err)
		os.Exit(1)
	}

	if err := writeReport(os.Stdout, result, opts.jsonOutput, opts.outputFile); err != nil {
		logger.Error("report_failed", "error", err)
		os.Exit(1)
	}

	if !result.Success {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) (simulation.SimulationResult, error) {
	scenario := defaultScenario()
	if opts.scenarioFile != "" {
		var err error
		if scenario, err = simulation.LoadScenario(opts.scenarioFile); err != nil {
			return simulation.SimulationResult{}, err
		}
	} else {
		fmt.Fprintln(os.Stderr, "No scenario file provided, running default demo scenario...")
	}

	api := client.NewClient(opts.apiURL)
	sink := simulation.ClientSink(api)
	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		defer rdb.Close()
		sink = simulation.RedisSink(rdb, opts.redisChannel)
	}

	return simulation.RunScenario(ctx, scenario, sink, api, logger)
}

func defaultScenario() simulation.Scenario {
	return simulation.Scenario{
		Name:        "Default Demo",
		Description: "A worker pool fed by a few clients",
		Seed:        1,
		Batches:     10,
		Interval:    100 * time.Millisecond,
		Reset:       true,
		Actors: []simulation.ActorPopulation{
			{Name: "Worker", Count: 8, Kind: "actor", FanOut: 1},
			{Name: "Client", Count: 3, Kind: "actor", FanOut: 2, Targets: []string{"Worker"}},
		},
		Passives: []simulation.PassivePopulation{
			{Kind: "promise", Count: 6, URI: "file:///demo/pool.ns", Line: 12, Column: 7, Owner: "Client", Uses: 2},
		},
		Invariants: []simulation.Invariant{
			{Metric: "promoted_activity_groups", Condition: ">=", Value: 1},
		},
	}
}

func writeReport(stdout io.Writer, res simulation.SimulationResult, jsonFmt bool, filePath string) error {
	var output []byte

	if jsonFmt {
		var err error
		if output, err = json.MarshalIndent(res, "", "  "); err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
	} else {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "\n--- Simulation Report: %s ---\n", res.ScenarioName)
		fmt.Fprintf(&buf, "Seed: %d | Duration: %s | Batches: %d\n", res.Seed, res.Duration, res.BatchesPushed)
		fmt.Fprintf(&buf, "Generated: %d activities | %d passive entities | %d messages\n",
			res.Generated.Activities, res.Generated.PassiveEntities, res.Generated.Messages())
		fmt.Fprintf(&buf, "Daemon: %d activities | %d passive entities | %d messages | %d promoted groups\n",
			res.Stats.Activities, res.Stats.PassiveEntities, res.Stats.MessagesIngested,
			res.Stats.PromotedActivityGroups+res.Stats.PromotedPassiveGroups)

		if len(res.Invariants) > 0 {
			buf.WriteString("\nInvariants:\n")
			for _, inv := range res.Invariants {
				status := "FAIL"
				if inv.Passed {
					status = "PASS"
				}
				fmt.Fprintf(&buf, "[%s] %s: Expected %s, Got %s\n", status, inv.Metric, inv.Expected, inv.Actual)
			}
		}
		output = buf.Bytes()
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0o644); err != nil {
			return fmt.Errorf("failed to write report to %s: %w", filePath, err)
		}
		fmt.Fprintf(stdout, "Report written to %s\n", filePath)
		return nil
	}
	_, err := fmt.Fprintln(stdout, string(output))
	return err
}
