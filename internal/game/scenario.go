package game

import (
	"context"
	"time"

	"github.com/tatianab/hustle/internal/metrics"
	"github.com/tatianab/hustle/internal/models"
)

// ensureScenario loads the scenario for the current turn if none is loaded:
// a ready prefetch is swapped in, an outstanding one for the same run and
// turn is awaited for up to PrefetchWait, and otherwise the narrator is asked
// directly. The caller
// holds the resolution guard.
func (c *Controller) ensureScenario(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != models.PhasePlaying {
		c.mu.Unlock()
		return nil
	}
	if c.current != nil {
		c.kickPrefetchLocked()
		c.mu.Unlock()
		return nil
	}
	if c.takePrefetchedLocked() {
		c.mu.Unlock()
		return nil
	}
	// Only a prefetch for this run and turn is worth waiting for.
	done := c.prefetchDone
	inflight := c.prefetching.Load() && done != nil &&
		c.prefetchGen == c.gen && c.prefetchTurn == c.state.CurrentTurn
	c.mu.Unlock()

	if inflight {
		timer := time.NewTimer(c.opts.PrefetchWait)
		select {
		case <-done:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()

		c.mu.Lock()
		if c.takePrefetchedLocked() {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
	}
	metrics.Prefetch.WithLabelValues("miss").Inc()

	c.mu.Lock()
	gen := c.gen
	req := c.scenarioRequestLocked(c.state.CurrentTurn)
	c.mu.Unlock()

	sc, err := c.fetch(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.phase != models.PhasePlaying {
		return nil
	}
	if err != nil {
		c.scenarioErr = err
		c.notifyLocked(EventScenarioError)
		return err
	}
	c.current = &sc
	c.scenarioErr = nil
	if c.next != nil && c.next.forTurn <= c.state.CurrentTurn {
		c.next = nil
	}
	c.notifyLocked(EventScenarioReady)
	c.kickPrefetchLocked()
	return nil
}

// takePrefetchedLocked swaps in the prefetched scenario if it belongs to the
// current turn of the current run.
func (c *Controller) takePrefetchedLocked() bool {
	p := c.next
	if p == nil {
		return false
	}
	if p.gen != c.gen || p.forTurn != c.state.CurrentTurn {
		if p.forTurn < c.state.CurrentTurn || p.gen != c.gen {
			c.next = nil
		}
		return false
	}
	sc := p.scenario
	c.current = &sc
	c.next = nil
	c.scenarioErr = nil
	metrics.Prefetch.WithLabelValues("hit").Inc()
	c.notifyLocked(EventScenarioReady)
	c.kickPrefetchLocked()
	return true
}

// kickPrefetchLocked starts fetching the following turn's scenario in the
// background. A request while one is outstanding is dropped, not queued.
func (c *Controller) kickPrefetchLocked() {
	forTurn := c.state.CurrentTurn + 1
	if c.phase != models.PhasePlaying || forTurn > c.rules.MaxTurns {
		return
	}
	if c.next != nil && c.next.gen == c.gen && c.next.forTurn == forTurn {
		return
	}
	if !c.prefetching.CompareAndSwap(false, true) {
		metrics.Prefetch.WithLabelValues("dropped").Inc()
		return
	}
	req := c.scenarioRequestLocked(forTurn)
	done := make(chan struct{})
	c.prefetchDone = done
	c.prefetchGen = c.gen
	c.prefetchTurn = forTurn
	go c.runPrefetch(c.gen, forTurn, req, done)
}

// runPrefetch is never cancelled; a result that no longer fits the run is
// discarded when it lands.
func (c *Controller) runPrefetch(gen uint64, forTurn int, req models.ScenarioRequest, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	sc, err := c.fetch(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetching.Store(false)
	close(done)

	if err != nil {
		metrics.Prefetch.WithLabelValues("failed").Inc()
		c.logger.Warn("prefetch failed", "for_turn", forTurn, "error", err)
		return
	}
	fresh := gen == c.gen && c.phase == models.PhasePlaying &&
		(forTurn == c.state.CurrentTurn+1 || (forTurn == c.state.CurrentTurn && c.current == nil))
	if !fresh {
		metrics.Prefetch.WithLabelValues("stale").Inc()
		c.logger.Debug("stale prefetch discarded", "for_turn", forTurn, "turn", c.state.CurrentTurn)
		c.kickPrefetchLocked()
		return
	}
	c.next = &prefetched{gen: gen, forTurn: forTurn, scenario: sc}
}

func (c *Controller) fetch(ctx context.Context, req models.ScenarioRequest) (models.Scenario, error) {
	start := time.Now()
	sc, err := c.opts.Narrator.RequestScenario(ctx, req)
	metrics.NarratorLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NarratorFailures.Inc()
	}
	return sc, err
}

func (c *Controller) scenarioRequestLocked(forTurn int) models.ScenarioRequest {
	st := c.state
	st.CurrentTurn = forTurn
	n := c.rules.NarratorHistory
	avoid := c.history.RecentTitles(n)
	if c.current != nil && forTurn > c.state.CurrentTurn {
		avoid = append(avoid, c.current.Title)
	}
	return models.ScenarioRequest{
		State:       st,
		Recent:      c.history.Recent(n),
		AvoidTitles: avoid,
		MaxTurns:    c.rules.MaxTurns,
		Assets:      c.catalog.List(""),
	}
}
