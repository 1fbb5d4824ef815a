package simulation

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/traceview/pkg/api"
	"github.com/rmax-ai/traceview/pkg/client"
	"github.com/rmax-ai/traceview/pkg/engine"
	"github.com/rmax-ai/traceview/pkg/ingest"
	"github.com/rmax-ai/traceview/pkg/trace"
)

func loadWorkers(t *testing.T) Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "workers.yaml"))
	require.NoError(t, err)
	return s
}

func TestLoadScenario_YAML(t *testing.T) {
	s := loadWorkers(t)
	assert.Equal(t, "workers-and-locks", s.Name)
	assert.Equal(t, int64(42), s.Seed)
	assert.Equal(t, 3, s.Batches)
	require.Len(t, s.Actors, 2)
	assert.Equal(t, []string{"Worker"}, s.Actors[1].Targets)
	require.Len(t, s.Passives, 1)
	assert.Equal(t, "lock", s.Passives[0].Kind)
	assert.Len(t, s.Invariants, 3)
}

func TestLoadScenario_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"j","seed":1,"actors":[{"name":"A","count":2,"fan_out":1}]}`), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "j", s.Name)
	assert.Equal(t, 1, s.Actors[0].FanOut)
}

func TestScenario_Validate(t *testing.T) {
	valid := func() Scenario {
		return Scenario{
			Actors:   []ActorPopulation{{Name: "A", Count: 2}},
			Passives: []PassivePopulation{{Kind: "promise", Count: 1, Owner: "A"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"no actors", func(s *Scenario) { s.Actors = nil }},
		{"missing name", func(s *Scenario) { s.Actors[0].Name = "" }},
		{"duplicate", func(s *Scenario) { s.Actors = append(s.Actors, ActorPopulation{Name: "A", Count: 1}) }},
		{"zero count", func(s *Scenario) { s.Actors[0].Count = 0 }},
		{"negative fan out", func(s *Scenario) { s.Actors[0].FanOut = -1 }},
		{"bad kind", func(s *Scenario) { s.Actors[0].Kind = "fiber" }},
		{"unknown target", func(s *Scenario) { s.Actors[0].Targets = []string{"B"} }},
		{"bad passive kind", func(s *Scenario) { s.Passives[0].Kind = "mutex" }},
		{"unknown owner", func(s *Scenario) { s.Passives[0].Owner = "B" }},
		{"negative batches", func(s *Scenario) { s.Batches = -1 }},
		{"negative uses", func(s *Scenario) { s.Passives[0].Uses = -1 }},
		{"bad condition", func(s *Scenario) {
			s.Invariants = []Invariant{{Metric: "activities", Condition: "!=", Value: 1}}
		}},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	s := loadWorkers(t)

	a, ta, err := Generate(s)
	require.NoError(t, err)
	b, tb, err := Generate(s)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different traces (-first +second):\n%s", diff)
	}
	assert.Equal(t, ta, tb)

	s.Seed = 43
	c, _, err := Generate(s)
	require.NoError(t, err)
	assert.False(t, cmp.Equal(a, c), "different seeds should pick different targets")
}

func TestGenerate_Shape(t *testing.T) {
	updates, totals, err := Generate(loadWorkers(t))
	require.NoError(t, err)
	require.Len(t, updates, 3)

	// 1 root + 6 workers + 2 clients, all in the first batch
	assert.Equal(t, 9, totals.Activities)
	assert.Len(t, updates[0].Activities, 9)
	assert.Empty(t, updates[1].Activities)
	assert.Equal(t, RootName, updates[0].Activities[0].Name)

	assert.Equal(t, 5, totals.PassiveEntities)
	for _, pe := range updates[0].PassiveEntities {
		assert.Equal(t, "file:///app/pool.ns:10:5:4", pe.Origin.LocationID())
		assert.Equal(t, trace.PassiveLock, pe.Type)
	}

	// per batch: 6*2 + 2*1 actor messages + 3 lock acquires; 3 releases
	assert.Equal(t, 3*(12+2+3), totals.SendOps)
	assert.Equal(t, 3*3, totals.ReceiveOps)
	assert.Equal(t, 60, totals.Messages())
}

func TestGenerate_ConservesMessages(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		s := loadWorkers(t)
		s.Seed = seed

		updates, totals, err := Generate(s)
		require.NoError(t, err)

		sess, err := engine.NewSession(trace.ActorRuntimeMetaModel(), nil)
		require.NoError(t, err)
		for _, u := range updates {
			_, err := sess.Apply(context.Background(), u)
			require.NoError(t, err)
		}

		links, err := sess.Links()
		require.NoError(t, err)
		sum := 0
		for _, l := range links {
			if !l.Creation {
				sum += l.MessageCount
			}
		}
		assert.Equal(t, totals.Messages(), sum, "seed %d", seed)
		assert.Equal(t, totals.Messages(), sess.Info().Stats.MessagesIngested)
	}
}

func newDaemon(t *testing.T) (*client.Client, *engine.Session) {
	t.Helper()
	sess, err := engine.NewSession(trace.ActorRuntimeMetaModel(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(api.NewServer(sess, "", nil).Handler())
	t.Cleanup(ts.Close)
	return client.NewClient(ts.URL), sess
}

func TestRunScenario_HTTP(t *testing.T) {
	c, sess := newDaemon(t)
	s := loadWorkers(t)
	s.Reset = true

	res, err := RunScenario(context.Background(), s, ClientSink(c), c, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.BatchesPushed)
	assert.True(t, res.Success, "%+v", res.Invariants)
	assert.Equal(t, 60, res.Stats.MessagesIngested)
	assert.Equal(t, 3, sess.Info().Batches)
}

func TestRunScenario_FailedInvariant(t *testing.T) {
	c, _ := newDaemon(t)
	s := loadWorkers(t)
	s.Invariants = []Invariant{
		{Metric: "activities", Condition: ">", Value: 100},
		{Metric: "bogus", Condition: ">", Value: 0},
	}

	res, err := RunScenario(context.Background(), s, ClientSink(c), c, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Invariants, 2)
	assert.Equal(t, "9", res.Invariants[0].Actual)
	assert.Equal(t, "N/A", res.Invariants[1].Actual)
}

func TestRunScenario_Redis(t *testing.T) {
	c, sess := newDaemon(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := ingest.NewRedisSubscriber(rdb, "sim", sess, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)
	<-sub.Ready()

	res, err := RunScenario(ctx, loadWorkers(t), RedisSink(rdb, "sim"), c, nil)
	require.NoError(t, err)
	assert.True(t, res.Success, "%+v", res.Invariants)
	assert.Equal(t, 9, res.Stats.Activities)
}
