// Package broker defines the gateway-facing types and the narrow interface
// the decision core consumes. Concrete implementations live alongside it:
// a Binance futures adapter and an in-memory paper broker.
package broker

import (
	"context"

	"gridbot/orderid"
)

// Contract modes, mirroring the configuration source.
const (
	ModeStock  = "STOCK"
	ModeFuture = "FUTURE"
)

// Contract identifies a tradable instrument. ID is the numeric contract
// identifier resolved by QualifyContract and packed into order references.
type Contract struct {
	ID            uint32
	Symbol        string
	LocalSymbol   string
	Mode          string
	Exchange      string
	Currency      string
	LastTradeDate string
	Multiplier    float64
}

// DisplaySymbol prefers the venue-local symbol when one is set.
func (c Contract) DisplaySymbol() string {
	if c.LocalSymbol != "" {
		return c.LocalSymbol
	}
	return c.Symbol
}

// EffectiveMultiplier is the contract multiplier for derivatives, 1 otherwise.
func (c Contract) EffectiveMultiplier() float64 {
	if c.Mode == ModeFuture && c.Multiplier > 0 {
		return c.Multiplier
	}
	return 1
}

// OrderRequest is a candidate order before submission. Ref carries the
// packed 113-bit identifier as a decimal string.
type OrderRequest struct {
	Contract    Contract
	Side        orderid.Side
	Quantity    float64
	LimitPrice  float64
	TimeInForce string
	OrderType   string
	OutsideRTH  bool
	AuxPrice    *float64
	DisplaySize *int
	Hidden      bool
	Ref         string
}

// OpenOrder is a resting order as reported by the gateway.
type OpenOrder struct {
	Ref        string
	Contract   Contract
	Side       orderid.Side
	Quantity   float64
	LimitPrice float64
}

// Position is a broker-reported position with its signed quantity and
// current market value.
type Position struct {
	Contract    Contract
	Quantity    float64
	MarketValue float64
}

// Fill reports an execution against one of our orders.
type Fill struct {
	Ref       string
	Contract  Contract
	Side      orderid.Side
	Quantity  float64
	Price     float64
	Remaining float64
	ExecID    string
}

// Broker is the gateway collaborator. Implementations must be safe for
// the single-flow agent loop; they are not required to support concurrent
// callers.
type Broker interface {
	Connected() bool
	QualifyContract(ctx context.Context, c *Contract) (uint32, error)
	MarketPrice(ctx context.Context, c Contract) (float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) error
	CancelOrder(ctx context.Context, ref string) error
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
	Positions(ctx context.Context) ([]Position, error)
	OnFill(fn func(Fill))
}
