package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"gridbot/logger"
)

// Paper is an in-memory Broker for dry-run mode and tests. Orders rest
// until cancelled or explicitly filled via Fill/PartialFill.
type Paper struct {
	mu        sync.Mutex
	orders    map[string]OpenOrder // ref -> order
	positions map[uint32]Position  // contractID -> position
	prices    map[string]float64   // symbol -> last price
	fillFns   []func(Fill)
	connected bool

	// RetainOnCancel keeps orders resting after CancelOrder, letting tests
	// exercise cancellation-confirmation timeouts.
	RetainOnCancel bool
}

// NewPaper creates an empty, connected paper broker.
func NewPaper() *Paper {
	return &Paper{
		orders:    make(map[string]OpenOrder),
		positions: make(map[uint32]Position),
		prices:    make(map[string]float64),
		connected: true,
	}
}

func (p *Paper) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SetConnected toggles the simulated gateway link.
func (p *Paper) SetConnected(up bool) {
	p.mu.Lock()
	p.connected = up
	p.mu.Unlock()
}

// QualifyContract assigns a stable 32-bit id derived from the display
// symbol, standing in for the venue's numeric contract id.
func (p *Paper) QualifyContract(_ context.Context, c *Contract) (uint32, error) {
	if c == nil || c.Symbol == "" {
		return 0, fmt.Errorf("paper: cannot qualify empty contract")
	}
	h := fnv.New32a()
	h.Write([]byte(c.DisplaySymbol()))
	c.ID = h.Sum32()
	return c.ID, nil
}

// SetPrice sets the simulated last price for a symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

func (p *Paper) MarketPrice(_ context.Context, c Contract) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[c.DisplaySymbol()]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", c.DisplaySymbol())
	}
	return price, nil
}

func (p *Paper) PlaceOrder(_ context.Context, req OrderRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return fmt.Errorf("paper: not connected")
	}
	if req.Ref == "" {
		return fmt.Errorf("paper: order without reference")
	}
	p.orders[req.Ref] = OpenOrder{
		Ref:        req.Ref,
		Contract:   req.Contract,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	}
	return nil
}

func (p *Paper) CancelOrder(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RetainOnCancel {
		return nil
	}
	delete(p.orders, ref)
	return nil
}

func (p *Paper) OpenOrders(_ context.Context) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OpenOrder, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o)
	}
	return out, nil
}

func (p *Paper) Positions(_ context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

// SetPosition replaces the simulated position on a contract.
func (p *Paper) SetPosition(c Contract, quantity, marketValue float64) {
	p.mu.Lock()
	p.positions[c.ID] = Position{Contract: c, Quantity: quantity, MarketValue: marketValue}
	p.mu.Unlock()
}

func (p *Paper) OnFill(fn func(Fill)) {
	p.mu.Lock()
	p.fillFns = append(p.fillFns, fn)
	p.mu.Unlock()
}

// Fill fully executes a resting order at its limit price, updates the
// position and notifies fill subscribers.
func (p *Paper) Fill(ref string) error {
	p.mu.Lock()
	o, ok := p.orders[ref]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("paper: no resting order %s", ref)
	}
	delete(p.orders, ref)

	sign := o.Side.Sign()
	pos := p.positions[o.Contract.ID]
	pos.Contract = o.Contract
	pos.Quantity += sign * o.Quantity
	pos.MarketValue += sign * o.Quantity * o.Contract.EffectiveMultiplier() * o.LimitPrice
	p.positions[o.Contract.ID] = pos

	fns := append([]func(Fill){}, p.fillFns...)
	p.mu.Unlock()

	fill := Fill{
		Ref:       o.Ref,
		Contract:  o.Contract,
		Side:      o.Side,
		Quantity:  o.Quantity,
		Price:     o.LimitPrice,
		Remaining: 0,
		ExecID:    uuid.NewString(),
	}
	logger.Infof("📄 Paper fill: %s %s %.4f %s @ %.4f", fill.ExecID[:8], fill.Side, fill.Quantity, fill.Contract.DisplaySymbol(), fill.Price)
	for _, fn := range fns {
		fn(fill)
	}
	return nil
}
