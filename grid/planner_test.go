package grid

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/broker"
	"gridbot/notify"
	"gridbot/orderid"
	"gridbot/strategy"
)

type admitAll struct{}

func (admitAll) CanOperate(context.Context, broker.OrderRequest, uint8) bool { return true }

type admitNone struct{}

func (admitNone) CanOperate(context.Context, broker.OrderRequest, uint8) bool { return false }

func testSnapshot() *strategy.Snapshot {
	return &strategy.Snapshot{
		StrategyID:   7,
		Active:       true,
		Type:         "grid",
		InitialPrice: 100,
		Step:         2,
		OrderQty:     1,
		BuyOrders:    3,
		SellOrders:   2,
		OutsideRTH:   true,
		TimeInForce:  "GTC",
		OrderType:    "LMT",
		Contract:     broker.Contract{ID: 42, Symbol: "AAPL", Mode: broker.ModeStock, Exchange: "SMART", Currency: "USD"},
		MarketPrice:  100,
		Action:       strategy.ActionNew,
	}
}

// tickingClock returns a clock that advances one millisecond per call, so
// every packed ref in a test is unique regardless of wall-clock speed.
func tickingClock() func() time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ms int64
	return func() time.Time {
		ms++
		return base.Add(time.Duration(ms) * time.Millisecond)
	}
}

func newTestPlanner(p *broker.Paper, admit Admitter, snaps ...*strategy.Snapshot) (*Planner, *strategy.Tracker) {
	tracker := strategy.NewTracker()
	tracker.Apply(snaps)
	planner := NewPlanner(p, orderid.NewCodecWithNow(1, tickingClock()), admit, tracker, notify.Nop{}, Config{})
	planner.sleep = func(time.Duration) {}
	return planner, tracker
}

func openPrices(t *testing.T, p *broker.Paper, side orderid.Side) []float64 {
	t.Helper()
	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	var prices []float64
	for _, o := range open {
		if o.Side == side {
			prices = append(prices, o.LimitPrice)
		}
	}
	sort.Float64s(prices)
	return prices
}

func TestPostGridBuildsLadder(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)

	require.True(t, planner.PostGrid(context.Background(), s))

	assert.Equal(t, []float64{94, 96, 98}, openPrices(t, p, orderid.Buy))
	assert.Equal(t, []float64{102, 104}, openPrices(t, p, orderid.Sell))
}

func TestPostGridSkipsRejectedLevels(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitNone{}, s)

	// The ladder still counts as posted; every level was vetted and every
	// level was declined.
	require.True(t, planner.PostGrid(context.Background(), s))

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCanPostGridInsideRangeNeedsNoConfirmation(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	s.Confirmed = nil
	planner, _ := newTestPlanner(p, admitAll{}, s)

	assert.True(t, planner.CanPostGrid(s))
}

func TestCanPostGridOutsideRangeRequiresFreshConfirmation(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	s.BuyOrders = 0
	s.SellOrders = 2
	s.MarketPrice = 97 // at or below initialPrice-step with no buy levels

	planner, _ := newTestPlanner(p, admitAll{}, s)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	planner.now = func() time.Time { return now }

	assert.False(t, planner.CanPostGrid(s), "no confirmation at all")

	fresh := now.Add(-time.Minute)
	s.Confirmed = &fresh
	assert.True(t, planner.CanPostGrid(s), "confirmation inside the window")

	stale := now.Add(-10 * time.Minute)
	s.Confirmed = &stale
	assert.False(t, planner.CanPostGrid(s), "confirmation older than the window")
}

func TestCanPostGridBoundaryCountsAsOutside(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	s.SellOrders = 0
	s.BuyOrders = 3
	s.MarketPrice = 102 // exactly initialPrice+step
	planner, _ := newTestPlanner(p, admitAll{}, s)

	assert.False(t, planner.CanPostGrid(s))
}

func TestPostOrderRejectsOversizedDisplaySize(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	disp := 1 // equal to OrderQty, must be strictly lower
	s.DisplaySize = &disp
	planner, _ := newTestPlanner(p, admitAll{}, s)

	assert.False(t, planner.PostOrder(context.Background(), s, orderid.Buy, 98))
	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPostOrderRejectsNonPositivePrice(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)

	assert.False(t, planner.PostOrder(context.Background(), s, orderid.Buy, -2))
}

func TestOnFillPostsOppositeOrderOneStepAway(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)
	codec := orderid.NewCodec(1)

	fill := broker.Fill{
		Ref:       codec.Pack(s.Contract.ID, s.StrategyID, orderid.Sell, 5).String(),
		Contract:  s.Contract,
		Side:      orderid.Sell,
		Quantity:  1,
		Price:     104,
		Remaining: 0,
	}
	planner.OnFill(context.Background(), fill)

	assert.Equal(t, []float64{102}, openPrices(t, p, orderid.Buy))

	fill.Side = orderid.Buy
	fill.Ref = codec.Pack(s.Contract.ID, s.StrategyID, orderid.Buy, 6).String()
	fill.Price = 96
	planner.OnFill(context.Background(), fill)

	assert.Equal(t, []float64{98}, openPrices(t, p, orderid.Sell))
}

func TestOnFillIgnoresPartialFills(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)
	codec := orderid.NewCodec(1)

	fill := broker.Fill{
		Ref:       codec.Pack(s.Contract.ID, s.StrategyID, orderid.Sell, 5).String(),
		Side:      orderid.Sell,
		Price:     104,
		Remaining: 0.5,
	}
	planner.OnFill(context.Background(), fill)

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOnFillIgnoresStoppedStrategies(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)
	s.Action = strategy.ActionStop // tracker keeps the same pointer
	codec := orderid.NewCodec(1)

	fill := broker.Fill{
		Ref:       codec.Pack(s.Contract.ID, s.StrategyID, orderid.Sell, 5).String(),
		Side:      orderid.Sell,
		Price:     104,
		Remaining: 0,
	}
	planner.OnFill(context.Background(), fill)

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOnFillIgnoresForeignReferences(t *testing.T) {
	p := broker.NewPaper()
	planner, _ := newTestPlanner(p, admitAll{}, testSnapshot())

	planner.OnFill(context.Background(), broker.Fill{Ref: "manual-ticket", Price: 104})

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCancelStrategyOrdersMatchesOnlyThatStrategy(t *testing.T) {
	p := broker.NewPaper()
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)
	require.True(t, planner.PostGrid(context.Background(), s))

	// A second strategy's order must survive.
	other := orderid.NewCodec(1).Pack(s.Contract.ID, 9, orderid.Buy, 0).String()
	require.NoError(t, p.PlaceOrder(context.Background(), broker.OrderRequest{
		Contract: s.Contract, Side: orderid.Buy, Quantity: 1, LimitPrice: 90, Ref: other,
	}))

	require.True(t, planner.CancelStrategyOrders(context.Background(), s.StrategyID))

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, other, open[0].Ref)
}

func TestCancelOrderPollsUntilTimeout(t *testing.T) {
	p := broker.NewPaper()
	p.RetainOnCancel = true
	s := testSnapshot()
	s.BuyOrders = 1
	s.SellOrders = 0
	s.MarketPrice = 99
	planner, _ := newTestPlanner(p, admitAll{}, s)

	sleeps := 0
	planner.sleep = func(d time.Duration) {
		assert.Equal(t, time.Second, d)
		sleeps++
	}

	require.True(t, planner.PostOrder(context.Background(), s, orderid.Buy, 98))

	// The order never disappears, so the poll runs the full window (ten
	// one-second pauses for the default ten-second timeout) and the batch
	// reports the unconfirmed cancellation.
	assert.False(t, planner.CancelStrategyOrders(context.Background(), s.StrategyID))
	assert.Equal(t, 10, sleeps)

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestCancelBatchReportsTimeoutButFinishes(t *testing.T) {
	p := broker.NewPaper()
	p.RetainOnCancel = true
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)

	sleeps := 0
	planner.sleep = func(time.Duration) { sleeps++ }

	require.True(t, planner.PostOrder(context.Background(), s, orderid.Buy, 98))
	require.True(t, planner.PostOrder(context.Background(), s, orderid.Buy, 96))

	// Both cancellations time out; the second is still attempted (two full
	// polling windows) and the batch comes back false.
	assert.False(t, planner.CancelStrategyOrders(context.Background(), s.StrategyID))
	assert.Equal(t, 20, sleeps)
}

func TestCancelAllReportsTimeout(t *testing.T) {
	p := broker.NewPaper()
	p.RetainOnCancel = true
	s := testSnapshot()
	planner, _ := newTestPlanner(p, admitAll{}, s)

	require.True(t, planner.PostOrder(context.Background(), s, orderid.Buy, 98))
	assert.False(t, planner.CancelAllOrders(context.Background()))
}
