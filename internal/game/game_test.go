package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tatianab/hustle/internal/engine"
	"github.com/tatianab/hustle/internal/market"
	"github.com/tatianab/hustle/internal/models"
	"github.com/tatianab/hustle/internal/store"
)

type seq struct {
	vals []float64
	i    int
}

func (s *seq) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

var errNarrator = errors.New("narrator is down")

type fakeNarrator struct {
	mu      sync.Mutex
	turns   []int
	names   []string
	fail    bool
	block   chan struct{}
	entered chan struct{}
	// gates holds back the first request for a turn until closed.
	gates map[int]chan struct{}
	held  chan int
}

func (f *fakeNarrator) RequestScenario(ctx context.Context, req models.ScenarioRequest) (models.Scenario, error) {
	turn := req.State.CurrentTurn
	f.mu.Lock()
	f.turns = append(f.turns, turn)
	f.names = append(f.names, req.State.Profile.Name)
	fail, block, entered := f.fail, f.block, f.entered
	if gate, ok := f.gates[turn]; ok {
		delete(f.gates, turn)
		block = gate
		if f.held != nil {
			f.held <- turn
		}
	}
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.Scenario{}, ctx.Err()
		}
	}
	if fail {
		return models.Scenario{}, errNarrator
	}
	return models.Scenario{
		Title:       fmt.Sprintf("Turn %d", turn),
		Description: fmt.Sprintf("%s, week %d", req.State.Profile.Name, turn),
		Lesson:      "Cut your coat according to your cloth.",
		Choices: []models.Choice{
			{Text: "Buy suya", Consequence: "Tasty.", Impact: models.Impact{Cash: -1000, Happiness: 5}},
			{Text: "Buy a Benz", Consequence: "Sapa has entered the chat.", Impact: models.Impact{Cash: -1_000_000_000}},
		},
	}, nil
}

// hold gates the next request for turn and returns the gate to close.
func (f *fakeNarrator) hold(turn int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = map[int]chan struct{}{}
	}
	if f.held == nil {
		f.held = make(chan int, 4)
	}
	gate := make(chan struct{})
	f.gates[turn] = gate
	return gate
}

func (f *fakeNarrator) calls() ([]int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.turns...), append([]string(nil), f.names...)
}

func (f *fakeNarrator) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

type fakeAnalyst struct {
	mu    sync.Mutex
	calls int
	err   error
	req   models.ReportRequest
}

func (f *fakeAnalyst) RequestReport(ctx context.Context, req models.ReportRequest) (models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.req = req
	if f.err != nil {
		return models.Report{}, f.err
	}
	return models.Report{Grade: "C", Verdict: "Could be worse.", Insights: []string{"Save more"}}, nil
}

func (f *fakeAnalyst) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	c        *Controller
	narrator *fakeNarrator
	analyst  *fakeAnalyst
	store    *store.MemoryStore
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		narrator: &fakeNarrator{},
		analyst:  &fakeAnalyst{},
		store:    store.NewMemoryStore(),
	}
	opts := Options{
		Rules:        models.DefaultRules(),
		Narrator:     f.narrator,
		Analyst:      f.analyst,
		Store:        f.store,
		Rand:         &seq{vals: []float64{0.5}},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		PrefetchWait: 5 * time.Second,
		AutoTriggers: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	f.c = c
	return f
}

func ada() Setup {
	return Setup{Name: "Ada", Job: "Digital Hustler", City: "Lagos", Challenge: "sapa-max", MaritalStatus: "single"}
}

func TestStartLoadsFirstScenario(t *testing.T) {
	f := newFixture(t, nil)
	v, err := f.c.Start(context.Background(), ada())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if v.Phase != models.PhasePlaying || v.RunID == "" {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Scenario == nil || v.Scenario.Title != "Turn 1" {
		t.Fatalf("expected turn 1 scenario, got %+v", v.Scenario)
	}
	if v.State.Cash != 10000 || v.State.Salary != 150000 {
		t.Fatalf("unexpected starting state %+v", v.State)
	}
	if _, err := f.store.Load(context.Background()); err != nil {
		t.Fatalf("run should be saved after start: %v", err)
	}
	if _, err := f.c.Start(context.Background(), ada()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartRejectsBadSetup(t *testing.T) {
	f := newFixture(t, nil)
	s := ada()
	s.Job = "Astronaut"
	if _, err := f.c.Start(context.Background(), s); !errors.Is(err, ErrSetup) {
		t.Fatalf("expected ErrSetup, got %v", err)
	}
	if f.c.View().Phase != models.PhaseNotStarted {
		t.Fatalf("bad setup should not start a run")
	}
}

func TestSubmitUsesPrefetchedScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.c.Submit(ctx, Turn{Selections: []int{0}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Entry.Turn != 1 || res.Entry.Title != "Turn 1" || res.Entry.NetCash != -1000 {
		t.Fatalf("unexpected entry %+v", res.Entry)
	}
	if res.Lesson == "" {
		t.Fatalf("lesson should be reported with the turn")
	}
	v := res.View
	if v.State.CurrentTurn != 2 || v.State.Cash != 9000 {
		t.Fatalf("unexpected state after turn %+v", v.State)
	}
	if v.Scenario == nil || v.Scenario.Title != "Turn 2" {
		t.Fatalf("expected turn 2 scenario, got %+v", v.Scenario)
	}
	if len(v.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(v.History))
	}

	f.narrator.mu.Lock()
	turns := append([]int(nil), f.narrator.turns...)
	f.narrator.mu.Unlock()
	if len(turns) < 2 || turns[0] != 1 || turns[1] != 2 {
		t.Fatalf("expected fetches for turns 1 then 2, got %v", turns)
	}
	for _, turn := range turns {
		if turn > 3 {
			t.Fatalf("fetched too far ahead: %v", turns)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *Controller) prefetchedTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next == nil || c.next.gen != c.gen {
		return 0
	}
	return c.next.forTurn
}

func TestRestartIgnoresOutstandingPrefetch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gate := f.narrator.hold(2)
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.narrator.held

	if err := f.c.Restart(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	bola := ada()
	bola.Name = "Bola"
	begin := time.Now()
	v, err := f.c.Start(ctx, bola)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if took := time.Since(begin); took > time.Second {
		t.Fatalf("second start waited %v on the old run's prefetch", took)
	}
	if v.Scenario == nil || v.Scenario.Description != "Bola, week 1" {
		t.Fatalf("expected Bola's first scenario, got %+v", v.Scenario)
	}

	close(gate)
	waitFor(t, "new run prefetch", func() bool { return f.c.prefetchedTurn() == 2 })

	res, err := f.c.Submit(ctx, Turn{Selections: []int{0}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sc := res.View.Scenario; sc == nil || sc.Description != "Bola, week 2" {
		t.Fatalf("stale prefetch from the old run was used: %+v", sc)
	}
	turns, names := f.narrator.calls()
	want := []string{"Ada:1", "Ada:2", "Bola:1", "Bola:2"}
	if len(turns) < len(want) {
		t.Fatalf("expected at least %d narrator calls, got %v %v", len(want), turns, names)
	}
	for i, w := range want {
		if got := fmt.Sprintf("%s:%d", names[i], turns[i]); got != w {
			t.Fatalf("call %d got %s want %s (all: %v %v)", i, got, w, turns, names)
		}
	}
}

func TestPrefetchDroppedWhileOutstanding(t *testing.T) {
	wait := 200 * time.Millisecond
	f := newFixture(t, func(o *Options) { o.PrefetchWait = wait })
	ctx := context.Background()
	gate := f.narrator.hold(2)
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.narrator.held

	begin := time.Now()
	res, err := f.c.Submit(ctx, Turn{Selections: []int{0}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	took := time.Since(begin)
	if took < wait || took > 3*time.Second {
		t.Fatalf("submit should wait about %v for the prefetch, took %v", wait, took)
	}
	if sc := res.View.Scenario; sc == nil || sc.Title != "Turn 2" {
		t.Fatalf("expected a direct fetch for turn 2, got %+v", sc)
	}
	// The turn 3 prefetch was dropped because turn 2's is still outstanding.
	if turns, _ := f.narrator.calls(); len(turns) != 3 || turns[2] != 2 {
		t.Fatalf("expected calls [1 2 2], got %v", turns)
	}

	close(gate)
	waitFor(t, "turn 3 prefetch", func() bool { return f.c.prefetchedTurn() == 3 })
	if turns, _ := f.narrator.calls(); len(turns) != 4 || turns[3] != 3 {
		t.Fatalf("late turn 2 result should be discarded and turn 3 fetched once, got %v", turns)
	}

	begin = time.Now()
	res, err = f.c.Submit(ctx, Turn{Selections: []int{0}})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if took := time.Since(begin); took > wait {
		t.Fatalf("prefetched turn should not wait, took %v", took)
	}
	if sc := res.View.Scenario; sc == nil || sc.Title != "Turn 3" {
		t.Fatalf("expected prefetched turn 3, got %+v", sc)
	}
}

func TestSubmitErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{0}}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := f.c.View()
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{7}}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	after := f.c.View()
	if after.State != before.State || len(after.History) != 0 {
		t.Fatalf("rejected submission changed the run")
	}
}

func TestScenarioFailureAndRetry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.narrator.setFail(true)

	v, err := f.c.Start(ctx, ada())
	if !errors.Is(err, errNarrator) {
		t.Fatalf("expected narrator error, got %v", err)
	}
	if v.Phase != models.PhasePlaying || v.Scenario != nil || v.ScenarioError == "" {
		t.Fatalf("run should be started without a scenario: %+v", v)
	}
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{0}}); !errors.Is(err, ErrNoScenario) {
		t.Fatalf("expected ErrNoScenario, got %v", err)
	}

	f.narrator.setFail(false)
	v, err = f.c.RetryScenario(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if v.Scenario == nil || v.Scenario.Title != "Turn 1" || v.ScenarioError != "" {
		t.Fatalf("retry should load turn 1: %+v", v)
	}
}

func TestTurnInFlight(t *testing.T) {
	f := newFixture(t, nil)
	f.narrator.block = make(chan struct{})
	f.narrator.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.c.Start(context.Background(), ada())
		done <- err
	}()
	<-f.narrator.entered

	if _, err := f.c.Submit(context.Background(), Turn{Selections: []int{0}}); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}
	if err := f.c.Restart(context.Background()); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight from restart, got %v", err)
	}

	close(f.narrator.block)
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestBankruptcyCallsAnalystOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.c.Submit(ctx, Turn{Selections: []int{1}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Reason != models.EndBankrupt {
		t.Fatalf("expected bankruptcy, got %+v", res.Outcome)
	}
	if res.View.Phase != models.PhaseTerminated {
		t.Fatalf("expected terminated phase, got %s", res.View.Phase)
	}
	if res.View.Report == nil || res.View.Report.Grade != "C" {
		t.Fatalf("expected analyst report, got %+v", res.View.Report)
	}
	if f.analyst.req.Reason != models.EndBankrupt {
		t.Fatalf("analyst got reason %q", f.analyst.req.Reason)
	}
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{0}}); !errors.Is(err, ErrRunOver) {
		t.Fatalf("expected ErrRunOver, got %v", err)
	}
	if _, err := f.c.RetryScenario(ctx); !errors.Is(err, ErrRunOver) {
		t.Fatalf("expected ErrRunOver from retry, got %v", err)
	}
	if n := f.analyst.count(); n != 1 {
		t.Fatalf("analyst called %d times, want 1", n)
	}
}

func TestAnalystFailureFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.analyst.err = errors.New("model overloaded")
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.c.Submit(ctx, Turn{Selections: []int{1}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := DefaultReport(models.EndBankrupt)
	if res.View.Report == nil || res.View.Report.Grade != want.Grade || res.View.Report.Verdict != want.Verdict {
		t.Fatalf("expected default report, got %+v", res.View.Report)
	}
}

func TestCompletion(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Rules.MaxTurns = 2 })
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{0}}); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := f.c.Submit(ctx, Turn{Selections: []int{0}})
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Reason != models.EndCompleted {
		t.Fatalf("expected completion, got %+v", res.Outcome)
	}
	if res.View.State.CurrentTurn != 2 {
		t.Fatalf("completed run should stay on its last turn, got %d", res.View.State.CurrentTurn)
	}
	if f.analyst.count() != 1 {
		t.Fatalf("analyst should run once on completion")
	}
}

func TestResumeAndRestart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{0}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	runID := f.c.View().RunID

	other := newFixture(t, func(o *Options) { o.Store = f.store })
	ok, err := other.c.HasSavedRun(ctx)
	if err != nil || !ok {
		t.Fatalf("expected saved run, got %v %v", ok, err)
	}
	v, err := other.c.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if v.RunID != runID || v.State.CurrentTurn != 2 || v.State.Cash != 9000 || len(v.History) != 1 {
		t.Fatalf("resumed view does not match saved run: %+v", v)
	}
	if v.Scenario == nil || v.Scenario.Title != "Turn 2" {
		t.Fatalf("saved scenario should be restored, got %+v", v.Scenario)
	}

	if err := other.c.Restart(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if other.c.View().Phase != models.PhaseNotStarted {
		t.Fatalf("restart should drop the run")
	}
	if ok, _ := other.c.HasSavedRun(ctx); ok {
		t.Fatalf("restart should clear the saved run")
	}
	if _, err := other.c.Resume(ctx); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestAutoLiquidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.c.Submit(ctx, Turn{
		Selections: []int{0},
		Actions:    []engine.Action{{Kind: engine.ActionBuy, AssetID: "mtn-ng", Amount: 2800}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Liquidations != nil {
		t.Fatalf("nothing should liquidate without triggers")
	}
	if len(res.View.Holdings) != 1 || res.View.Holdings[0].Units != 10 {
		t.Fatalf("expected 10 units held, got %+v", res.View.Holdings)
	}

	level := int64(1)
	if err := f.c.SetTrigger(ctx, "mtn-ng", market.TakeProfit, &level); err != nil {
		t.Fatalf("set trigger: %v", err)
	}
	if err := f.c.SetTrigger(ctx, "zenith", market.StopLoss, &level); !errors.Is(err, market.ErrNoHolding) {
		t.Fatalf("expected ErrNoHolding, got %v", err)
	}

	cash := res.View.State.Cash
	res, err = f.c.Submit(ctx, Turn{Selections: []int{0}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	liq := res.Liquidations
	if liq == nil || len(liq.Events) != 1 || liq.Events[0].Decision != string(market.TakeProfit) {
		t.Fatalf("expected one take-profit liquidation, got %+v", liq)
	}
	if len(res.View.Holdings) != 0 {
		t.Fatalf("holding should be sold, got %+v", res.View.Holdings)
	}
	if got, want := res.View.State.Cash, cash-1000+liq.NetCash; got != want {
		t.Fatalf("cash got %d want %d", got, want)
	}
	hist := res.View.History
	if len(hist) != 3 || hist[2].Title != "Auto-liquidation" {
		t.Fatalf("expected liquidation ledger entry, got %+v", hist)
	}
}

func TestNotify(t *testing.T) {
	var mu sync.Mutex
	var events []EventType
	f := newFixture(t, func(o *Options) {
		o.Notify = func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e.Type)
		}
	})
	ctx := context.Background()
	if _, err := f.c.Start(ctx, ada()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.c.Submit(ctx, Turn{Selections: []int{1}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	seen := map[EventType]bool{}
	for _, e := range events {
		seen[e] = true
	}
	for _, want := range []EventType{EventStarted, EventScenarioReady, EventRunOver} {
		if !seen[want] {
			t.Errorf("missing %s event in %v", want, events)
		}
	}
}
