package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/traceview/pkg/client"
	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/ingest"
	"github.com/rmax-ai/traceview/pkg/trace"
)

// Sink delivers one generated batch to the daemon.
type Sink func(ctx context.Context, u trace.Update) error

// ClientSink pushes batches over the HTTP API.
func ClientSink(c *client.Client) Sink {
	return func(ctx context.Context, u trace.Update) error {
		_, err := c.PushTrace(ctx, u)
		return err
	}
}

// RedisSink publishes batches on the daemon's ingestion channel.
func RedisSink(rdb *redis.Client, channel string) Sink {
	return func(ctx context.Context, u trace.Update) error {
		return ingest.Publish(ctx, rdb, channel, u)
	}
}

// settleTimeout bounds how long RunScenario waits for asynchronous sinks.
const settleTimeout = 10 * time.Second

// RunScenario generates the scenario, delivers every batch through sink and
// checks the invariants against the daemon stats fetched with c.
func RunScenario(ctx context.Context, s Scenario, sink Sink, c *client.Client, logger *slog.Logger) (SimulationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := SimulationResult{ScenarioName: s.Name, Seed: s.Seed}

	updates, totals, err := Generate(s)
	if err != nil {
		return res, err
	}
	res.Generated = totals
	logger.Info("scenario_starting", "scenario", s.Name, "seed", s.Seed, "batches", len(updates), "messages", totals.Messages())

	var baseline graph.Stats
	if s.Reset {
		if _, err := c.Reset(ctx); err != nil {
			return res, fmt.Errorf("failed to reset session: %w", err)
		}
	} else if baseline, err = c.GetStats(ctx); err != nil {
		return res, fmt.Errorf("failed to read stats: %w", err)
	}

	start := time.Now()
	for i, u := range updates {
		if i > 0 && s.Interval > 0 {
			select {
			case <-time.After(s.Interval):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
		if err := sink(ctx, u); err != nil {
			return res, fmt.Errorf("batch %d: %w", i, err)
		}
		res.BatchesPushed++
		logger.Debug("batch_pushed", "batch", i, "events", u.Len())
	}

	stats, err := waitSettled(ctx, c, baseline.MessagesIngested+totals.Messages())
	if err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	res.Stats = stats

	evaluateInvariants(&res, s.Invariants)
	res.Success = true
	for _, inv := range res.Invariants {
		if !inv.Passed {
			res.Success = false
			break
		}
	}
	logger.Info("scenario_completed", "scenario", s.Name, "success", res.Success, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// waitSettled polls the stats until want messages have been ingested.
func waitSettled(ctx context.Context, c *client.Client, want int) (graph.Stats, error) {
	deadline := time.Now().Add(settleTimeout)
	for {
		stats, err := c.GetStats(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to read stats: %w", err)
		}
		if stats.MessagesIngested >= want || time.Now().After(deadline) {
			return stats, nil
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}
}

func statMetric(s graph.Stats, metric string) (float64, bool) {
	values := map[string]int{
		"activities":               s.Activities,
		"passive_entities":         s.PassiveEntities,
		"activity_groups":          s.ActivityGroups,
		"passive_groups":           s.PassiveGroups,
		"promoted_activity_groups": s.PromotedActivityGroups,
		"promoted_passive_groups":  s.PromotedPassiveGroups,
		"message_pairs":            s.MessagePairs,
		"messages_ingested":        s.MessagesIngested,
		"max_message_sends":        s.MaxMessageSends,
	}
	v, ok := values[metric]
	return float64(v), ok
}

func evaluateInvariants(res *SimulationResult, invariants []Invariant) {
	for _, inv := range invariants {
		expected := fmt.Sprintf("%s %g", inv.Condition, inv.Value)
		actual, ok := statMetric(res.Stats, inv.Metric)
		if !ok {
			res.Invariants = append(res.Invariants, InvariantResult{
				Metric: inv.Metric, Expected: expected, Actual: "N/A", Passed: false,
			})
			continue
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		res.Invariants = append(res.Invariants, InvariantResult{
			Metric:   inv.Metric,
			Expected: expected,
			Actual:   fmt.Sprintf("%g", actual),
			Passed:   passed,
		})
	}
}
