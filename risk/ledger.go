// Package risk rebuilds a full exposure picture from live broker state on
// every admission check and decides whether a candidate order may be sent.
// Nothing is cached between checks; a stale ledger is worse than a slow one.
package risk

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gridbot/broker"
	"gridbot/logger"
	"gridbot/notify"
	"gridbot/orderid"
)

// OthersBucket collects open orders whose reference does not decode to one
// of our identifiers. They still count toward contract and global exposure.
const OthersBucket = "others"

// Limits are the nominal-exposure caps enforced at admission time.
type Limits struct {
	MaxOrder    float64
	MaxContract float64
	MaxGlobal   float64
	// MaxStrategy is tracked in reports but not yet enforced. The
	// per-strategy entries exist so the cap can be turned on without
	// reshaping the ledger.
	MaxStrategy float64
	// WarningPercentage triggers an alert when exposure passes this share
	// of a cap without breaching it.
	WarningPercentage float64
}

// View is the slice of the broker the ledger reads. *broker.Paper and the
// Binance adapter both satisfy it.
type View interface {
	OpenOrders(ctx context.Context) ([]broker.OpenOrder, error)
	Positions(ctx context.Context) ([]broker.Position, error)
}

// Ledger gates order submission. CanOperate is the single entry point: it
// rebuilds the exposure report, applies the caps and answers yes or no.
// Any failure while rebuilding answers no.
type Ledger struct {
	limits   Limits
	view     View
	notifier notify.Notifier

	mu   sync.RWMutex
	last *Report
}

func NewLedger(limits Limits, view View, notifier notify.Notifier) *Ledger {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Ledger{limits: limits, view: view, notifier: notifier}
}

// CanOperate decides whether the candidate order may be submitted for the
// given strategy. The decision fails closed: any error or panic while
// reading broker state or computing exposure rejects the order.
func (l *Ledger) CanOperate(ctx context.Context, order broker.OrderRequest, strategyID uint8) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("risk check panicked, rejecting order: %v", r)
			l.notifier.Send(fmt.Sprintf("Risk check failed (%v). Order rejected.", r))
			ok = false
		}
	}()

	report, err := l.build(ctx, &order, strategyID)
	if err != nil {
		logger.Errorf("risk check could not read broker state, rejecting order: %v", err)
		l.notifier.Send(fmt.Sprintf("Risk check failed (%v). Order rejected.", err))
		return false
	}
	l.mu.Lock()
	l.last = report
	l.mu.Unlock()

	sign := order.Side.Sign()
	mult := order.Contract.EffectiveMultiplier()
	nominal := sign * order.Quantity * mult * order.LimitPrice

	entry := report.Contracts[contractKey(order.Contract)]
	directionalQty := entry.Virtual.Long.Quantity
	directionalNominal := entry.Virtual.Long.Nominal
	if order.Side == orderid.Sell {
		directionalQty = entry.Virtual.Short.Quantity
		directionalNominal = entry.Virtual.Short.Nominal
	}

	// An order that reduces or flips directional exposure is always
	// admitted; the caps only guard against growing a position.
	increases := (order.Side == orderid.Buy && directionalQty > 0) ||
		(order.Side == orderid.Sell && directionalQty < 0)
	if !increases {
		return true
	}

	prefix := fmt.Sprintf("Order to %s %v %s @ %v",
		order.Side, order.Quantity, order.Contract.DisplaySymbol(), order.LimitPrice)

	if abs(nominal) > l.limits.MaxOrder {
		l.critical("%s exceeds the single-order limit of %v. ORDER REJECTED", prefix, l.limits.MaxOrder)
		return false
	}
	if report.Total.Max.Nominal > l.limits.MaxGlobal {
		l.critical("%s would take total exposure to %v, over the global limit of %v. ORDER REJECTED",
			prefix, report.Total.Max.Nominal, l.limits.MaxGlobal)
		return false
	}
	if abs(directionalNominal) > l.limits.MaxContract {
		l.critical("%s would take %s exposure to %v, over the contract limit of %v. ORDER REJECTED",
			prefix, order.Contract.DisplaySymbol(), abs(directionalNominal), l.limits.MaxContract)
		return false
	}

	warnAt := l.limits.WarningPercentage / 100
	if warnAt > 0 {
		if report.Total.Max.Nominal > l.limits.MaxGlobal*warnAt {
			l.warning("Total exposure %v is over %v%% of the global limit %v",
				report.Total.Max.Nominal, l.limits.WarningPercentage, l.limits.MaxGlobal)
		}
		if abs(directionalNominal) > l.limits.MaxContract*warnAt {
			l.warning("%s exposure %v is over %v%% of the contract limit %v",
				order.Contract.DisplaySymbol(), abs(directionalNominal), l.limits.WarningPercentage, l.limits.MaxContract)
		}
	}
	return true
}

// GetRisks returns the report from the most recent admission check, or an
// empty report before the first one.
func (l *Ledger) GetRisks() *Report {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return newReport()
	}
	return l.last
}

// build assembles a fresh report from open orders, the candidate order and
// broker positions.
func (l *Ledger) build(ctx context.Context, cand *broker.OrderRequest, strategyID uint8) (*Report, error) {
	report := newReport()

	open, err := l.view.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	for _, o := range open {
		key := OthersBucket
		if f := orderid.Decode(o.Ref); f != nil {
			key = strconv.Itoa(int(f.StrategyID))
		}
		report.apply(o.Contract, key, o.Side, o.Quantity, o.LimitPrice)
	}
	if cand != nil {
		report.apply(cand.Contract, strconv.Itoa(int(strategyID)), cand.Side, cand.Quantity, cand.LimitPrice)
	}

	positions, err := l.view.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	for _, p := range positions {
		e := report.entry(report.Contracts, contractKey(p.Contract))
		e.ContractID = contractKey(p.Contract)
		e.Symbol = p.Contract.DisplaySymbol()
		e.Position.Quantity += p.Quantity
		e.Position.Nominal += p.MarketValue
	}

	report.finalize()
	return report, nil
}

// apply accumulates one order (resting or candidate) into the per-contract
// and per-strategy entries.
func (r *Report) apply(c broker.Contract, strategyKey string, side orderid.Side, qty, price float64) {
	sign := side.Sign()
	delta := Amount{
		Quantity:   sign * qty,
		Multiplied: sign * qty * c.EffectiveMultiplier(),
		Nominal:    sign * qty * c.EffectiveMultiplier() * price,
	}

	ck := contractKey(c)
	ce := r.entry(r.Contracts, ck)
	ce.ContractID = ck
	ce.Symbol = c.DisplaySymbol()
	ce.noteStrategy(strategyKey)

	se := r.entry(r.Strategies, strategyKey)
	se.ContractID = ck
	se.Symbol = c.DisplaySymbol()
	se.noteStrategy(strategyKey)

	for _, e := range []*Entry{ce, se} {
		if side == orderid.Sell {
			e.Orders.Sell.add(delta)
		} else {
			e.Orders.Buy.add(delta)
		}
	}
}

func (l *Ledger) critical(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Errorf("🚫 %s", msg)
	l.notifier.Send(msg)
}

func (l *Ledger) warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Warnf("⚠️ %s", msg)
	l.notifier.Send(msg)
}

func contractKey(c broker.Contract) string {
	return strconv.FormatUint(uint64(c.ID), 10)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
