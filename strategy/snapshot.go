// Package strategy holds the per-strategy configuration snapshot, the
// parser that turns raw configuration rows into snapshots, and the
// lifecycle reconciler that tags each snapshot with an action per refresh
// cycle.
package strategy

import (
	"time"

	"gridbot/broker"
)

// Action is the lifecycle decision attached to a snapshot each cycle.
type Action string

const (
	ActionNew      Action = "NEW"
	ActionStart    Action = "START"
	ActionStop     Action = "STOP"
	ActionContinue Action = "CONTINUE"
	ActionDeleted  Action = "DELETED"
)

// Snapshot is one accepted strategy configuration. The tracker mutates
// Action once per refresh; everything else is fixed at parse time.
type Snapshot struct {
	StrategyID   uint8   `json:"strategy_id"`
	Active       bool    `json:"active"`
	Type         string  `json:"type"`
	InitialPrice float64 `json:"initial_price"`
	Step         float64 `json:"step"`
	OrderQty     float64 `json:"order_qty"`
	BuyOrders    int     `json:"buy_orders"`
	SellOrders   int     `json:"sell_orders"`
	MaxLongRisk  float64 `json:"max_long_risk"`
	MaxShortRisk float64 `json:"max_short_risk"`

	// Optional tuning, nil when the row left them blank
	RefPrice      *float64 `json:"ref_price,omitempty"`
	OrderAuxPrice *float64 `json:"order_aux_price,omitempty"`
	StopStep      *float64 `json:"stop_step,omitempty"`
	CloseStep     *float64 `json:"close_step,omitempty"`
	DisplaySize   *int     `json:"display_size,omitempty"`

	// Order construction parameters with per-strategy overrides
	OutsideRTH  bool   `json:"outside_rth"`
	TimeInForce string `json:"time_in_force"`
	OrderType   string `json:"order_type"`

	// Launch confirmation, nil when the operator has not confirmed
	Confirmed *time.Time `json:"confirmed,omitempty"`

	Contract    broker.Contract `json:"contract"`
	MarketPrice float64         `json:"market_price"`

	Action Action `json:"action"`
}

// Tradeable reports whether the snapshot is in a state that should keep
// reacting to fills.
func (s *Snapshot) Tradeable() bool {
	return s != nil && s.Active && s.Action != ActionStop && s.Action != ActionDeleted
}
