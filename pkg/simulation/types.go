package simulation

import (
	"time"

	"github.com/rmax-ai/traceview/pkg/graph"
)

// SimulationResult captures the final state of the simulation for reporting
type SimulationResult struct {
	ScenarioName  string            `json:"scenario_name"`
	Seed          int64             `json:"seed"`
	Duration      time.Duration     `json:"duration"`
	BatchesPushed int               `json:"batches_pushed"`
	Generated     Totals            `json:"generated"`
	Stats         graph.Stats       `json:"stats"`
	Invariants    []InvariantResult `json:"invariants"`
	Success       bool              `json:"success"`
}

// Totals counts the events a scenario generated.
type Totals struct {
	Activities      int `json:"activities"`
	PassiveEntities int `json:"passive_entities"`
	SendOps         int `json:"send_ops"`
	ReceiveOps      int `json:"receive_ops"`
}

// Messages is the number of message records the engine should ingest.
func (t Totals) Messages() int { return t.SendOps + t.ReceiveOps }

type InvariantResult struct {
	Metric   string `json:"metric"`
	Expected string `json:"expected"` // e.g. ">= 2"
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Scenario describes a synthetic actor program. All entities are created
// in the first batch by a root "main" actor; every batch then carries
// messages and passive-entity operations.
type Scenario struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description" yaml:"description"`
	Seed        int64               `json:"seed" yaml:"seed"` // Deterministic seed
	Batches     int                 `json:"batches" yaml:"batches" validate:"gte=0"`
	Interval    time.Duration       `json:"interval" yaml:"interval"` // pause between pushes
	Actors      []ActorPopulation   `json:"actors" yaml:"actors" validate:"required,min=1,dive"`
	Passives    []PassivePopulation `json:"passives,omitempty" yaml:"passives,omitempty" validate:"dive"`
	Invariants  []Invariant         `json:"invariants,omitempty" yaml:"invariants,omitempty" validate:"dive"`
	Reset       bool                `json:"reset" yaml:"reset"` // reset the daemon session first
}

// ActorPopulation is Count activities sharing Name. Each member sends
// FanOut messages per batch to random members of the Targets populations
// (its own population when Targets is empty).
type ActorPopulation struct {
	Name    string   `json:"name" yaml:"name" validate:"required"`
	Count   int      `json:"count" yaml:"count" validate:"gt=0"`
	Kind    string   `json:"kind" yaml:"kind" validate:"omitempty,oneof=actor thread"` // actor (default) or thread
	FanOut  int      `json:"fan_out" yaml:"fan_out" validate:"gte=0"`
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// PassivePopulation is Count passive entities created at one source
// location by members of the Owner population. Each batch performs Uses
// operations, each a send to the entity and a receive back from it.
type PassivePopulation struct {
	Kind   string `json:"kind" yaml:"kind" validate:"oneof=promise lock"`
	Count  int    `json:"count" yaml:"count" validate:"gt=0"`
	URI    string `json:"uri" yaml:"uri"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
	Owner  string `json:"owner" yaml:"owner" validate:"required"`
	Uses   int    `json:"uses" yaml:"uses" validate:"gte=0"`
}

// Invariant is checked against the daemon stats after the run.
type Invariant struct {
	Metric    string  `json:"metric" yaml:"metric" validate:"required"` // e.g. "messages_ingested", "promoted_activity_groups"
	Condition string  `json:"condition" yaml:"condition" validate:"oneof=> >= < <= =="`
	Value     float64 `json:"value" yaml:"value"`
}
