// Package grid plans and maintains the order ladder for each strategy:
// initial grid placement around the anchor price, reaction orders on fills,
// and cancellation when a strategy stops or disappears.
package grid

import (
	"context"
	"fmt"
	"time"

	"gridbot/broker"
	"gridbot/logger"
	"gridbot/notify"
	"gridbot/orderid"
	"gridbot/strategy"
)

// Admitter is the risk gate consulted before every submission.
type Admitter interface {
	CanOperate(ctx context.Context, order broker.OrderRequest, strategyID uint8) bool
}

// StrategyProvider resolves a strategy id from a fill back to its tracked
// snapshot. *strategy.Tracker satisfies it.
type StrategyProvider interface {
	Get(id uint8) *strategy.Snapshot
}

// Config bounds the planner's waiting behaviour.
type Config struct {
	// ConfirmationMaxAge is how fresh an operator confirmation must be when
	// the market price sits outside the grid range.
	ConfirmationMaxAge time.Duration
	// CancelTimeout bounds the wait for one cancellation to be confirmed.
	CancelTimeout time.Duration
	// PollInterval is the pause between open-order polls while waiting.
	PollInterval time.Duration
}

// Planner builds grids and reacts to fills for tracked strategies.
type Planner struct {
	broker     broker.Broker
	codec      *orderid.Codec
	admit      Admitter
	strategies StrategyProvider
	notifier   notify.Notifier
	cfg        Config

	now   func() time.Time
	sleep func(time.Duration)
}

func NewPlanner(b broker.Broker, codec *orderid.Codec, admit Admitter, strategies StrategyProvider, notifier notify.Notifier, cfg Config) *Planner {
	if cfg.ConfirmationMaxAge <= 0 {
		cfg.ConfirmationMaxAge = 5 * time.Minute
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Planner{
		broker:     b,
		codec:      codec,
		admit:      admit,
		strategies: strategies,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// hugeRangeMax stands in for "no upper bound" when the strategy carries
// sell levels that cover the upside.
const hugeRangeMax = 9_999_999_999

// CanPostGrid decides whether a grid may be (re)built right now. When the
// market price sits at or beyond the side of the grid that has no resting
// levels, launching needs a fresh operator confirmation: the grid would
// start life unable to trade back toward its anchor.
func (p *Planner) CanPostGrid(s *strategy.Snapshot) bool {
	rangeMin := 0.0
	if s.BuyOrders == 0 {
		rangeMin = s.InitialPrice - s.Step
	}
	rangeMax := float64(hugeRangeMax)
	if s.SellOrders == 0 {
		rangeMax = s.InitialPrice + s.Step
	}
	if s.MarketPrice > rangeMin && s.MarketPrice < rangeMax {
		return true
	}
	if s.Confirmed == nil {
		p.cancelled(s, "there is no confirmation")
		return false
	}
	if p.now().Sub(*s.Confirmed) >= p.cfg.ConfirmationMaxAge {
		p.cancelled(s, "the confirmation is expired")
		return false
	}
	return true
}

func (p *Planner) cancelled(s *strategy.Snapshot, reason string) {
	msg := fmt.Sprintf("Canceled strategy %d because %s.", s.StrategyID, reason)
	logger.Errorf("🚫 %s", msg)
	p.notifier.Send(msg)
}

// PostGrid places the initial ladder: BuyOrders levels below the anchor
// price, then SellOrders levels above it, one step apart. Each level is
// vetted independently; a rejected level is skipped, the rest of the ladder
// still goes in.
func (p *Planner) PostGrid(ctx context.Context, s *strategy.Snapshot) bool {
	if !p.CanPostGrid(s) {
		return false
	}
	logger.Infof("🔄 Building grid for strategy %d around %v %s", s.StrategyID, s.InitialPrice, s.Contract.Currency)
	for ordinal := 1; ordinal <= s.BuyOrders; ordinal++ {
		p.PostOrder(ctx, s, orderid.Buy, s.InitialPrice-s.Step*float64(ordinal))
	}
	for ordinal := 1; ordinal <= s.SellOrders; ordinal++ {
		p.PostOrder(ctx, s, orderid.Sell, s.InitialPrice+s.Step*float64(ordinal))
	}
	logger.Infof("✅ Grid orders created for strategy %d", s.StrategyID)
	return true
}

// PostOrder vets and submits one limit order for the strategy at the given
// price. Returns false when the order was not placed, whatever the reason.
func (p *Planner) PostOrder(ctx context.Context, s *strategy.Snapshot, side orderid.Side, price float64) bool {
	if price <= 0 {
		logger.Errorf("Skipping %s for strategy %d: computed price %v is not positive", side, s.StrategyID, price)
		return false
	}

	ref := p.codec.Pack(s.Contract.ID, s.StrategyID, side, 0).String()
	req := broker.OrderRequest{
		Contract:    s.Contract,
		Side:        side,
		Quantity:    s.OrderQty,
		LimitPrice:  price,
		TimeInForce: s.TimeInForce,
		OrderType:   s.OrderType,
		OutsideRTH:  s.OutsideRTH,
		AuxPrice:    s.OrderAuxPrice,
		Ref:         ref,
	}
	if s.DisplaySize != nil {
		if float64(*s.DisplaySize) >= s.OrderQty {
			logger.Errorf("Display size %d must be lower than order quantity %v.", *s.DisplaySize, s.OrderQty)
			return false
		}
		req.DisplaySize = s.DisplaySize
		req.Hidden = *s.DisplaySize == 0
	}

	if !p.admit.CanOperate(ctx, req, s.StrategyID) {
		logger.Infof("Risk not acceptable. Order %s %s @ %v was not inserted", side, s.Contract.DisplaySymbol(), price)
		return false
	}
	if err := p.broker.PlaceOrder(ctx, req); err != nil {
		logger.Errorf("Error inserting %s %s @ %v: %v", side, s.Contract.DisplaySymbol(), price, err)
		return false
	}
	msg := fmt.Sprintf("Order %s: %s %v %s @ %v", ref, side, s.OrderQty, s.Contract.DisplaySymbol(), price)
	logger.Infof("📍 %s", msg)
	p.notifier.Send(msg)
	return true
}

// CancelStrategyOrders cancels every resting order belonging to the given
// strategy of this client. An unconfirmed cancellation does not abort the
// batch, but it does make the whole call return false.
func (p *Planner) CancelStrategyOrders(ctx context.Context, strategyID uint8) bool {
	open, err := p.broker.OpenOrders(ctx)
	if err != nil {
		logger.Errorf("Error listing orders to cancel for strategy %d: %v", strategyID, err)
		return false
	}
	count := 0
	failed := false
	for _, o := range open {
		if !p.codec.IsChildOfStrategy(o.Ref, strategyID) {
			continue
		}
		if !p.cancelOrder(ctx, o.Ref) {
			logger.Warnf("⚠️  Cancellation of order %s not confirmed in time", o.Ref)
			failed = true
		}
		count++
	}
	logger.Infof("✅ %d pending orders of strategy %d have been canceled", count, strategyID)
	return !failed
}

// CancelAllOrders cancels every resting order carrying this client's id,
// whatever the strategy. Used on shutdown and reconnection resets. Like
// CancelStrategyOrders, it keeps going past unconfirmed cancellations and
// reports them through the return value.
func (p *Planner) CancelAllOrders(ctx context.Context) bool {
	open, err := p.broker.OpenOrders(ctx)
	if err != nil {
		logger.Errorf("Error listing orders to cancel: %v", err)
		return false
	}
	count := 0
	failed := false
	for _, o := range open {
		if !p.codec.IsChildOfClient(o.Ref) {
			continue
		}
		if !p.cancelOrder(ctx, o.Ref) {
			logger.Warnf("⚠️  Cancellation of order %s not confirmed in time", o.Ref)
			failed = true
		}
		count++
	}
	logger.Infof("✅ %d pending orders of the client have been canceled", count)
	return !failed
}

// cancelOrder requests a cancellation and polls until the order is gone or
// the timeout runs out. Returns true only when disappearance was observed.
func (p *Planner) cancelOrder(ctx context.Context, ref string) bool {
	if err := p.broker.CancelOrder(ctx, ref); err != nil {
		logger.Errorf("Error canceling order %s: %v", ref, err)
		return false
	}
	remaining := p.cfg.CancelTimeout
	for remaining > 0 {
		if !p.orderExists(ctx, ref) {
			return true
		}
		p.sleep(p.cfg.PollInterval)
		remaining -= p.cfg.PollInterval
	}
	return false
}

func (p *Planner) orderExists(ctx context.Context, ref string) bool {
	open, err := p.broker.OpenOrders(ctx)
	if err != nil {
		// Cannot tell; treat as still resting so the poll keeps trying.
		return true
	}
	for _, o := range open {
		if o.Ref == ref {
			return true
		}
	}
	return false
}

// OnFill reacts to a complete execution of one of our grid orders by
// posting the opposite order one step away: a filled SELL begets a BUY one
// step below the fill price, a filled BUY begets a SELL one step above.
// Partial fills wait; strategies that are stopped, deleted or inactive stay
// silent.
func (p *Planner) OnFill(ctx context.Context, fill broker.Fill) {
	if fill.Remaining != 0 {
		return
	}
	f := orderid.Decode(fill.Ref)
	if f == nil || f.ClientID != p.codec.ClientID() {
		msg := fmt.Sprintf("Executed unknown order at price %v", fill.Price)
		logger.Infof("%s", msg)
		p.notifier.Send(msg)
		return
	}
	s := p.strategies.Get(f.StrategyID)
	if !s.Tradeable() {
		return
	}

	msg := fmt.Sprintf("Executed order %d type %s of strategy %d at price %v", f.Number, f.Side, f.StrategyID, fill.Price)
	logger.Infof("✅ %s", msg)
	p.notifier.Send(msg)

	switch fill.Side {
	case orderid.Sell:
		p.PostOrder(ctx, s, orderid.Buy, fill.Price-s.Step)
	case orderid.Buy:
		p.PostOrder(ctx, s, orderid.Sell, fill.Price+s.Step)
	}
}
