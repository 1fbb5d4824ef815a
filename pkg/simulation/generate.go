package simulation

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/traceview/pkg/trace"
)

// RootName is the name of the activity that creates every population.
const RootName = "main"

// LoadScenario reads a scenario from a YAML (.yaml, .yml) or JSON file.
func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read scenario file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return s, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return s, s.Validate()
}

var scenarioValidate = validator.New()

// Validate checks field ranges, then population names and references.
func (s Scenario) Validate() error {
	if err := scenarioValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	names := make(map[string]bool, len(s.Actors))
	for i, a := range s.Actors {
		if names[a.Name] {
			return fmt.Errorf("actors[%d]: duplicate population %q", i, a.Name)
		}
		names[a.Name] = true
	}
	for _, a := range s.Actors {
		for _, t := range a.Targets {
			if !names[t] {
				return fmt.Errorf("actors %s: unknown target population %q", a.Name, t)
			}
		}
	}
	for i, p := range s.Passives {
		if !names[p.Owner] {
			return fmt.Errorf("passives[%d]: unknown owner population %q", i, p.Owner)
		}
	}
	return nil
}

// Generate produces the trace batches of a scenario. The output depends
// only on the scenario, including its seed.
func Generate(s Scenario) ([]trace.Update, Totals, error) {
	if err := s.Validate(); err != nil {
		return nil, Totals{}, err
	}
	g := &generator{
		rng:     rand.New(rand.NewSource(s.Seed)),
		members: make(map[string][]trace.ID),
		nextID:  1,
	}

	batches := s.Batches
	if batches == 0 {
		batches = 1
	}
	updates := make([]trace.Update, batches)

	first := &updates[0]
	root := g.id()
	first.Activities = append(first.Activities, trace.Activity{
		ID: root, Name: RootName, Type: trace.ActivityActor, Running: true,
	})
	for _, a := range s.Actors {
		typ := trace.ActivityActor
		if a.Kind == "thread" {
			typ = trace.ActivityThread
		}
		for i := 0; i < a.Count; i++ {
			id := g.id()
			g.members[a.Name] = append(g.members[a.Name], id)
			first.Activities = append(first.Activities, trace.Activity{
				ID: id, Name: a.Name, Type: typ, Running: true, CreationActivity: trace.Ref(root),
			})
		}
	}

	entities := make([][]trace.ID, len(s.Passives))
	for pi, p := range s.Passives {
		origin := trace.SourceCoordinate{URI: p.URI, StartLine: p.Line, StartColumn: p.Column, CharLength: len(p.Kind)}
		for i := 0; i < p.Count; i++ {
			id := g.id()
			entities[pi] = append(entities[pi], id)
			first.PassiveEntities = append(first.PassiveEntities, trace.PassiveEntity{
				ID: id, Type: passiveType(p.Kind), Origin: origin, CreationActivity: g.pick(p.Owner),
			})
		}
	}

	for b := range updates {
		u := &updates[b]
		for _, a := range s.Actors {
			for _, sender := range g.members[a.Name] {
				for k := 0; k < a.FanOut; k++ {
					target := a.Name
					if len(a.Targets) > 0 {
						target = a.Targets[g.rng.Intn(len(a.Targets))]
					}
					u.SendOps = append(u.SendOps, trace.SendOp{
						Type: trace.SendActorMessage, CreationActivity: sender, Target: g.pick(target),
					})
				}
			}
		}
		for pi, p := range s.Passives {
			send, receive := passiveOps(p.Kind)
			for k := 0; k < p.Uses; k++ {
				owner := g.pick(p.Owner)
				entity := entities[pi][g.rng.Intn(len(entities[pi]))]
				u.SendOps = append(u.SendOps, trace.SendOp{Type: send, CreationActivity: owner, Target: entity})
				u.ReceiveOps = append(u.ReceiveOps, trace.ReceiveOp{Type: receive, CreationActivity: owner, Source: entity})
			}
		}
	}

	var totals Totals
	for _, u := range updates {
		totals.Activities += len(u.Activities)
		totals.PassiveEntities += len(u.PassiveEntities)
		totals.SendOps += len(u.SendOps)
		totals.ReceiveOps += len(u.ReceiveOps)
	}
	return updates, totals, nil
}

type generator struct {
	rng     *rand.Rand
	members map[string][]trace.ID
	nextID  trace.ID
}

func (g *generator) id() trace.ID {
	id := g.nextID
	g.nextID++
	return id
}

func (g *generator) pick(population string) trace.ID {
	m := g.members[population]
	return m[g.rng.Intn(len(m))]
}

func passiveType(kind string) trace.PassiveEntityType {
	if kind == "lock" {
		return trace.PassiveLock
	}
	return trace.PassivePromise
}

func passiveOps(kind string) (trace.SendOpType, trace.ReceiveOpType) {
	if kind == "lock" {
		return trace.SendLockAcquire, trace.ReceiveLockRelease
	}
	return trace.SendPromiseResolve, trace.ReceivePromiseValue
}
