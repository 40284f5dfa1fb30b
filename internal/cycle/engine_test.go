package cycle

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/kiln/internal/baton"
	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/generator"
	"github.com/dyluth/kiln/internal/history"
	"github.com/dyluth/kiln/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testAnalysis = "Analysis: keep 160-180 °C at 60-70 bar during night shifts."
	testStrategy = `{"time":"night","temperature":"180°C","pressure":"65 bar"}`
)

// stubGenerator answers per purpose and records every request it receives.
type stubGenerator struct {
	mu       sync.Mutex
	requests []generator.Request
	replies  map[generator.Purpose]func(ctx context.Context) (*generator.Response, error)
}

func newStub() *stubGenerator {
	return &stubGenerator{replies: map[generator.Purpose]func(ctx context.Context) (*generator.Response, error){}}
}

func (s *stubGenerator) reply(p generator.Purpose, text string) *stubGenerator {
	s.replies[p] = func(context.Context) (*generator.Response, error) {
		return &generator.Response{Text: text, Model: "stub"}, nil
	}
	return s
}

func (s *stubGenerator) fail(p generator.Purpose, err error) *stubGenerator {
	s.replies[p] = func(context.Context) (*generator.Response, error) { return nil, err }
	return s
}

func (s *stubGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fn := s.replies[req.Purpose]
	s.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no reply configured")
	}
	return fn(ctx)
}

func (s *stubGenerator) calls(p generator.Purpose) []generator.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []generator.Request
	for _, r := range s.requests {
		if r.Purpose == p {
			out = append(out, r)
		}
	}
	return out
}

func testHistory() []history.Record {
	return []history.Record{
		history.Record(`{"time":"day","temperature":"200°C","pressure":"80 bar","plastic_waste":"17 %","yield":0.78}`),
		history.Record(`{"time":"night","temperature":"175°C","pressure":"65 bar","plastic_waste":"9 %","yield":0.92}`),
	}
}

func testOptions() Options {
	return Options{
		Goal:           config.DefaultGoal,
		Production:     config.DefaultProductionData(),
		History:        testHistory(),
		YieldThreshold: 0.9,
		WordLimit:      100,
	}
}

func TestRun_ConcreteScenario(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stub := newStub().
		reply(generator.PurposeGoal, "  "+testAnalysis+"\n").
		reply(generator.PurposeStrategy, testStrategy)

	opts := testOptions()
	opts.Debug = true

	var out bytes.Buffer
	result, err := New(opts, stub, zap.NewNop(), WithOutput(&out)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, result.State)
	assert.Equal(t, []State{
		StateWaitGoal, StateGoalRunning, StateWaitStrategy,
		StateStrategyRunning, StateWaitEnact, StateTerminated,
	}, result.Transitions)

	snap := result.Snapshot
	require.NotNil(t, snap.Goal)
	assert.Equal(t, config.DefaultGoal, *snap.Goal)
	require.NotNil(t, snap.HistoricalAnalysis)
	assert.Equal(t, testAnalysis, *snap.HistoricalAnalysis)
	require.Len(t, snap.PreviousStrategies, 1)
	assert.Equal(t, testStrategy, snap.PreviousStrategies[0].Raw)
	require.True(t, snap.PreviousStrategies[0].Valid())
	assert.Equal(t, "night", snap.PreviousStrategies[0].Adjustment.Time)
	assert.Equal(t, "180°C", snap.PreviousStrategies[0].Adjustment.Temperature)
	assert.Equal(t, "65 bar", snap.PreviousStrategies[0].Adjustment.Pressure)

	var dump bytes.Buffer
	require.NoError(t, WriteDump(&dump, snap))

	output := out.String()
	assert.Contains(t, output, "----------\n1. Goal Management Layer: Strategy -> "+testAnalysis+"\n")
	assert.Contains(t, output, "----------\n2. Strategy Management Layer: Generated strategy -> \n"+testStrategy+"\n----------\n")
	assert.True(t, bytes.HasSuffix(out.Bytes(), dump.Bytes()), "debug dump closes the output")
}

func TestRun_OneBatonAtATime(t *testing.T) {
	ring := baton.NewRing()

	type holding struct {
		purpose        generator.Purpose
		armed          int
		enactmentArmed bool
	}
	var (
		mu   sync.Mutex
		held []holding
	)
	stub := newStub()
	for purpose, text := range map[generator.Purpose]string{
		generator.PurposeGoal:     testAnalysis,
		generator.PurposeStrategy: testStrategy,
	} {
		purpose, text := purpose, text
		stub.replies[purpose] = func(context.Context) (*generator.Response, error) {
			mu.Lock()
			held = append(held, holding{purpose, ring.ArmedCount(), ring.EnactmentReady.Armed()})
			mu.Unlock()
			return &generator.Response{Text: text, Model: "stub"}, nil
		}
	}

	engine := New(testOptions(), stub, nil, WithOutput(&bytes.Buffer{}))
	engine.newRing = func() *baton.Ring { return ring }

	var maxArmed atomic.Int32
	stop := make(chan struct{})
	sampled := make(chan struct{})
	go func() {
		defer close(sampled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := int32(ring.ArmedCount()); n > maxArmed.Load() {
				maxArmed.Store(n)
			}
			runtime.Gosched()
		}
	}()

	result, err := engine.Run(context.Background())
	close(stop)
	<-sampled
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, result.State)

	// A running stage holds the baton, so no signal is armed.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, held, 2)
	for _, h := range held {
		assert.Zero(t, h.armed, "signals armed while %s stage runs", h.purpose)
		assert.False(t, h.enactmentArmed)
	}

	assert.LessOrEqual(t, maxArmed.Load(), int32(1), "more than one signal armed at once")
	assert.Zero(t, ring.ArmedCount(), "enactment consumed the last baton and re-armed nothing")
}

func TestRun_ExactlyOneCycle(t *testing.T) {
	stub := newStub().
		reply(generator.PurposeGoal, testAnalysis).
		reply(generator.PurposeStrategy, testStrategy)

	result, err := New(testOptions(), stub, nil, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)

	// Nothing may run after termination.
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, stub.calls(generator.PurposeGoal), 1)
	assert.Len(t, stub.calls(generator.PurposeStrategy), 1)
	assert.Len(t, result.Snapshot.PreviousStrategies, 1)
}

func TestRun_StrategyPromptCarriesAnalysis(t *testing.T) {
	stub := newStub().
		reply(generator.PurposeGoal, testAnalysis).
		reply(generator.PurposeStrategy, testStrategy)

	_, err := New(testOptions(), stub, nil, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)

	goalReqs := stub.calls(generator.PurposeGoal)
	require.Len(t, goalReqs, 1)
	assert.Equal(t, generator.GoalSystemPrompt, goalReqs[0].System)
	assert.Contains(t, goalReqs[0].Prompt,
		`{"time":"night","temperature":"175°C","pressure":"65 bar","plastic_waste":"9 %","yield":0.92}`,
		"records keep their file key order")
	assert.Contains(t, goalReqs[0].Prompt, "The goal is '"+config.DefaultGoal+"'.")

	strategyReqs := stub.calls(generator.PurposeStrategy)
	require.Len(t, strategyReqs, 1)
	assert.Equal(t, generator.StrategySystemPrompt, strategyReqs[0].System)
	assert.Contains(t, strategyReqs[0].Prompt, "optimal ranges: "+testAnalysis+".")
	assert.Contains(t, strategyReqs[0].Prompt, `"temperature":"200 °C"`)
	assert.Contains(t, strategyReqs[0].Prompt, "Previous strategies as reference: [].")
}

func TestRun_EmptyHistory(t *testing.T) {
	stub := newStub().reply(generator.PurposeStrategy, testStrategy)

	core, logs := observer.New(zap.InfoLevel)
	opts := testOptions()
	opts.History = nil

	result, err := New(opts, stub, zap.New(core), WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, result.State)
	assert.Empty(t, stub.calls(generator.PurposeGoal))
	assert.Nil(t, result.Snapshot.HistoricalAnalysis)
	assert.NotNil(t, result.Snapshot.Goal)
	assert.Equal(t, 1, logs.FilterMessage("No historical data, skipping analysis").Len())

	strategyReqs := stub.calls(generator.PurposeStrategy)
	require.Len(t, strategyReqs, 1)
	assert.Contains(t, strategyReqs[0].Prompt, "optimal ranges: null.")
}

func TestRun_GoalFailure(t *testing.T) {
	stub := newStub().
		fail(generator.PurposeGoal, errors.New("rate limited")).
		reply(generator.PurposeStrategy, testStrategy)

	var out bytes.Buffer
	result, err := New(testOptions(), stub, nil, WithOutput(&out)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, result.State)
	assert.Nil(t, result.Snapshot.HistoricalAnalysis)
	assert.Len(t, result.Snapshot.PreviousStrategies, 1)
	assert.Contains(t, out.String(), "1. Goal Management Layer: Error occurred -> rate limited")
}

func TestRun_StrategyFailure(t *testing.T) {
	stub := newStub().
		reply(generator.PurposeGoal, testAnalysis).
		fail(generator.PurposeStrategy, errors.New("boom"))

	core, logs := observer.New(zap.InfoLevel)
	var out bytes.Buffer
	result, err := New(testOptions(), stub, zap.New(core), WithOutput(&out)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, result.State)
	assert.Empty(t, result.Snapshot.PreviousStrategies)
	assert.Contains(t, out.String(), "2. Strategy Management Layer: Error occurred -> boom")
	assert.Equal(t, 1, logs.FilterMessage("Strategy generation failed").Len())
}

func TestRun_InvalidStrategy(t *testing.T) {
	const prose = "Lower the temperature a little at night."

	t.Run("kept with parse error by default", func(t *testing.T) {
		stub := newStub().reply(generator.PurposeGoal, testAnalysis).reply(generator.PurposeStrategy, prose)

		result, err := New(testOptions(), stub, nil, WithOutput(&bytes.Buffer{})).Run(context.Background())
		require.NoError(t, err)

		require.Len(t, result.Snapshot.PreviousStrategies, 1)
		rec := result.Snapshot.PreviousStrategies[0]
		assert.Equal(t, prose, rec.Raw)
		assert.False(t, rec.Valid())
		assert.NotEmpty(t, rec.ParseError)
	})

	t.Run("dropped when valid strategies are required", func(t *testing.T) {
		stub := newStub().reply(generator.PurposeGoal, testAnalysis).reply(generator.PurposeStrategy, prose)
		opts := testOptions()
		opts.RequireValidStrategy = true

		result, err := New(opts, stub, nil, WithOutput(&bytes.Buffer{})).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StateTerminated, result.State)
		assert.Empty(t, result.Snapshot.PreviousStrategies)
	})
}

func TestRun_Delays(t *testing.T) {
	stub := newStub().reply(generator.PurposeGoal, testAnalysis).reply(generator.PurposeStrategy, testStrategy)
	opts := testOptions()
	opts.GoalDelay = 30 * time.Millisecond
	opts.StrategyDelay = 30 * time.Millisecond

	start := time.Now()
	_, err := New(opts, stub, nil, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRun_ExternalCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	stub := newStub()
	stub.replies[generator.PurposeGoal] = func(ctx context.Context) (*generator.Response, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	done := make(chan struct{})
	var result *Result
	var err error
	go func() {
		defer close(done)
		result, err = New(testOptions(), stub, nil, WithOutput(&out)).Run(ctx)
	}()

	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateGoalRunning, result.State)
	assert.Empty(t, stub.calls(generator.PurposeStrategy))
	assert.NotContains(t, out.String(), "Error occurred")
}

func TestRun_MirrorsArtefacts(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "line-3")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	stub := newStub().reply(generator.PurposeGoal, testAnalysis).reply(generator.PurposeStrategy, testStrategy)

	ctx := context.Background()
	result, err := New(testOptions(), stub, nil, WithOutput(&bytes.Buffer{}), WithRecorder(client)).Run(ctx)
	require.NoError(t, err)

	artefacts, err := client.ListCycleArtefacts(ctx, result.CycleID)
	require.NoError(t, err)

	var kinds []blackboard.Kind
	for _, a := range artefacts {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []blackboard.Kind{
		blackboard.KindGoal, blackboard.KindAnalysis, blackboard.KindStrategy, blackboard.KindTerminal,
	}, kinds)

	assert.Equal(t, testAnalysis, artefacts[1].Payload)
	assert.Equal(t, testStrategy, artefacts[2].Payload)
	assert.Contains(t, artefacts[3].Payload, `"historical_analysis":"`+testAnalysis+`"`)
}

type failingRecorder struct{}

func (failingRecorder) CreateArtefact(context.Context, *blackboard.Artefact) error {
	return errors.New("redis down")
}

func TestRun_RecorderFailureIsIgnored(t *testing.T) {
	stub := newStub().reply(generator.PurposeGoal, testAnalysis).reply(generator.PurposeStrategy, testStrategy)
	core, logs := observer.New(zap.WarnLevel)

	result, err := New(testOptions(), stub, zap.New(core), WithOutput(&bytes.Buffer{}), WithRecorder(failingRecorder{})).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, result.State)
	assert.Equal(t, 4, logs.FilterMessage("Failed to mirror artefact").Len())
}

func TestRun_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	stub := newStub().fail(generator.PurposeGoal, errors.New("boom")).reply(generator.PurposeStrategy, testStrategy)

	_, err := New(testOptions(), stub, nil, WithOutput(&bytes.Buffer{}), WithTracer(provider.Tracer("test"))).
		Run(context.Background())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, map[string]int{
		"cycle.run":      1,
		"cycle.goal":     1,
		"cycle.strategy": 1,
		"cycle.enact":    1,
	}, names)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Debug = true
	cfg.Strategy.RequireValid = true

	opts := OptionsFromConfig(cfg, testHistory())
	assert.Equal(t, config.DefaultGoal, opts.Goal)
	assert.Equal(t, config.DefaultProductionData(), opts.Production)
	assert.Len(t, opts.History, 2)
	assert.Equal(t, 0.9, opts.YieldThreshold)
	assert.Equal(t, 100, opts.WordLimit)
	assert.Equal(t, time.Second, opts.GoalDelay)
	assert.Equal(t, 5*time.Second, opts.StrategyDelay)
	assert.True(t, opts.Debug)
	assert.True(t, opts.RequireValidStrategy)
}
