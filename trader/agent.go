// Package trader runs the refresh cycle that keeps broker state aligned
// with the parameter store: it reloads strategy rows, reconciles their
// lifecycle, rebuilds or tears down grids and routes fills back into the
// planner.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridbot/broker"
	"gridbot/grid"
	"gridbot/logger"
	"gridbot/notify"
	"gridbot/strategy"
)

// ParamSource hands out the raw strategy rows. *store.Store satisfies it.
type ParamSource interface {
	Load(ctx context.Context) ([]strategy.Params, error)
}

// Agent owns the periodic refresh. All decision work, refreshes and fill
// reactions alike, runs under one mutex; the flow is single-threaded by
// design even though events arrive from multiple goroutines.
type Agent struct {
	broker   broker.Broker
	source   ParamSource
	tracker  *strategy.Tracker
	planner  *grid.Planner
	notifier notify.Notifier
	refresh  time.Duration

	mu        sync.Mutex
	connKnown bool
	connected bool
}

func NewAgent(b broker.Broker, source ParamSource, tracker *strategy.Tracker, planner *grid.Planner, notifier notify.Notifier, refresh time.Duration) *Agent {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	a := &Agent{
		broker:   b,
		source:   source,
		tracker:  tracker,
		planner:  planner,
		notifier: notifier,
		refresh:  refresh,
	}
	b.OnFill(a.handleFill)
	return a
}

// Run refreshes immediately, then on every tick until the context ends.
func (a *Agent) Run(ctx context.Context) {
	logger.Infof("🔄 Agent started, refreshing every %s", a.refresh)
	a.Refresh(ctx)
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("Agent stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			a.Refresh(ctx)
		}
	}
}

// Refresh runs one full cycle: connection check, parameter reload,
// lifecycle reconciliation and action dispatch.
func (a *Agent) Refresh(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.broker.Connected() {
		if !a.connKnown || a.connected {
			msg := "Disconnected from the broker gateway!!!"
			logger.Errorf("🚫 %s", msg)
			a.notifier.Send(msg)
		}
		a.connKnown, a.connected = true, false
		return
	}
	if a.connKnown && !a.connected {
		msg := "Connection with the broker gateway reestablished!!!"
		logger.Infof("✅ %s", msg)
		a.notifier.Send(msg)
		// Resting orders may have been torn down while the link was gone.
		// Start clean: cancel whatever survived and let every active row
		// come back as NEW.
		a.planner.CancelAllOrders(ctx)
		a.tracker.Reset()
	}
	a.connKnown, a.connected = true, true

	rows, err := a.source.Load(ctx)
	if err != nil {
		logger.Errorf("Error loading strategy parameters: %v", err)
		return
	}
	snaps, errs := strategy.ParseAll(rows)
	for i, parseErr := range errs {
		msg := fmt.Sprintf("Strategy configuration row %d rejected: %v", i, parseErr)
		logger.Errorf("🚫 %s", msg)
		a.notifier.Send(msg)
	}

	noPrice := a.prepare(ctx, snaps)

	for _, s := range a.tracker.Apply(snaps) {
		switch s.Action {
		case strategy.ActionNew, strategy.ActionStart:
			if noPrice[s.StrategyID] {
				logger.Warnf("⚠️  Could not obtain the price for strategy %d, grid not built", s.StrategyID)
				continue
			}
			logger.Infof("On contract %d, strategy %d %s", s.Contract.ID, s.StrategyID, s.Action)
			a.planner.PostGrid(ctx, s)
		case strategy.ActionStop, strategy.ActionDeleted:
			logger.Infof("Strategy %d %s", s.StrategyID, s.Action)
			a.planner.CancelStrategyOrders(ctx, s.StrategyID)
		case strategy.ActionContinue:
			// Working fine, nothing to report.
		default:
			logger.Warnf("⚠️  Unrecognized action %q for strategy %d", s.Action, s.StrategyID)
		}
	}
}

// prepare qualifies each snapshot's contract and resolves its market
// price. An anchor price of zero means "start the grid at the market".
// Returns the set of strategies whose price could not be obtained.
func (a *Agent) prepare(ctx context.Context, snaps []*strategy.Snapshot) map[uint8]bool {
	noPrice := make(map[uint8]bool)
	for _, s := range snaps {
		if _, err := a.broker.QualifyContract(ctx, &s.Contract); err != nil {
			logger.Errorf("Could not qualify contract %s for strategy %d: %v", s.Contract.DisplaySymbol(), s.StrategyID, err)
			noPrice[s.StrategyID] = true
			continue
		}
		price, err := a.broker.MarketPrice(ctx, s.Contract)
		if err != nil {
			logger.Warnf("⚠️  Error obtaining price of contract %s(%d): %v", s.Contract.DisplaySymbol(), s.Contract.ID, err)
			noPrice[s.StrategyID] = true
			continue
		}
		s.MarketPrice = price
		if s.InitialPrice == 0 {
			s.InitialPrice = price
		}
	}
	return noPrice
}

// handleFill funnels broker executions into the planner under the agent
// mutex, so fill reactions never interleave with a refresh.
func (a *Agent) handleFill(f broker.Fill) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.planner.OnFill(context.Background(), f)
}

// CancelAll cancels every resting order carrying this client's id.
func (a *Agent) CancelAll(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.planner.CancelAllOrders(ctx)
}
