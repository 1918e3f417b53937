package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gridbot/broker"
)

// Params is one raw configuration row as read from the parameter store.
// Everything is a string at this stage; Parse applies typing and
// validation. Blank optional fields stay blank.
type Params struct {
	StrategyID   string `json:"strategyId"`
	StrategyType string `json:"strategyType"`
	Active       string `json:"active"`
	Mode         string `json:"mode"`
	Symbol       string `json:"symbol"`
	Exchange     string `json:"exchange"`
	Currency     string `json:"currency"`

	FutureLastDate    string `json:"futureLastDate"`
	FutureLocalSymbol string `json:"futureLocalSymbol"`
	FutureMultiplier  string `json:"futureMultiplier"`

	InitialPrice string `json:"initialPrice"`
	Step         string `json:"step"`
	OrderQty     string `json:"orderQty"`
	BuyOrders    string `json:"buyOrders"`
	SellOrders   string `json:"sellOrders"`
	MaxLongRisk  string `json:"maxLongRisk"`
	MaxShortRisk string `json:"maxShortRisk"`

	RefPrice      string `json:"refPrice"`
	OrderAuxPrice string `json:"orderAuxPrice"`
	StopStep      string `json:"stopStep"`
	CloseStep     string `json:"closeStep"`
	DisplaySize   string `json:"displaySize"`

	OutsideRTH  string `json:"outsideRth"`
	TimeInForce string `json:"timeInForce"`
	OrderType   string `json:"orderType"`

	Confirmed string `json:"confirmed"` // unix seconds, blank when unconfirmed
}

// Parse validates a raw row and produces a snapshot. A row that fails any
// check is rejected whole; the caller drops it for this cycle rather than
// applying it partially.
func Parse(p Params) (*Snapshot, error) {
	if strings.TrimSpace(p.StrategyID) == "" {
		return nil, fmt.Errorf("strategy identifier is missing")
	}
	id, err := strconv.Atoi(strings.TrimSpace(p.StrategyID))
	if err != nil || id < 0 || id > 255 {
		return nil, fmt.Errorf("invalid strategy identifier %q", p.StrategyID)
	}
	if strings.TrimSpace(p.StrategyType) == "" {
		return nil, fmt.Errorf("strategy %d: type is missing", id)
	}

	s := &Snapshot{
		StrategyID:  uint8(id),
		Type:        strings.TrimSpace(p.StrategyType),
		Active:      parseBool(p.Active),
		OutsideRTH:  true,
		TimeInForce: "GTC",
		OrderType:   "LMT",
	}

	if s.InitialPrice, err = parseFloat(p.InitialPrice); err != nil {
		return nil, fmt.Errorf("strategy %d: initialPrice: %w", id, err)
	}
	if s.Step, err = parseFloat(p.Step); err != nil {
		return nil, fmt.Errorf("strategy %d: step: %w", id, err)
	}
	if s.OrderQty, err = parseFloat(p.OrderQty); err != nil {
		return nil, fmt.Errorf("strategy %d: orderQty: %w", id, err)
	}
	if s.BuyOrders, err = parseInt(p.BuyOrders); err != nil {
		return nil, fmt.Errorf("strategy %d: buyOrders: %w", id, err)
	}
	if s.SellOrders, err = parseInt(p.SellOrders); err != nil {
		return nil, fmt.Errorf("strategy %d: sellOrders: %w", id, err)
	}
	if s.MaxLongRisk, err = parseFloat(p.MaxLongRisk); err != nil {
		return nil, fmt.Errorf("strategy %d: maxLongRisk: %w", id, err)
	}
	if s.MaxShortRisk, err = parseFloat(p.MaxShortRisk); err != nil {
		return nil, fmt.Errorf("strategy %d: maxShortRisk: %w", id, err)
	}

	// Negative numerics are configuration errors, not market opinions.
	for name, v := range map[string]float64{
		"initialPrice": s.InitialPrice,
		"orderQty":     s.OrderQty,
		"step":         s.Step,
		"buyOrders":    float64(s.BuyOrders),
		"sellOrders":   float64(s.SellOrders),
		"maxLongRisk":  s.MaxLongRisk,
		"maxShortRisk": s.MaxShortRisk,
	} {
		if v < 0 {
			return nil, fmt.Errorf("strategy %d: parameter %q cannot be negative", id, name)
		}
	}

	// Optional fields: blank is fine, garbage is not.
	if s.RefPrice, err = parseOptFloat(p.RefPrice); err != nil {
		return nil, fmt.Errorf("strategy %d: refPrice: %w", id, err)
	}
	if s.OrderAuxPrice, err = parseOptFloat(p.OrderAuxPrice); err != nil {
		return nil, fmt.Errorf("strategy %d: orderAuxPrice: %w", id, err)
	}
	if s.StopStep, err = parseOptFloat(p.StopStep); err != nil {
		return nil, fmt.Errorf("strategy %d: stopStep: %w", id, err)
	}
	if s.CloseStep, err = parseOptFloat(p.CloseStep); err != nil {
		return nil, fmt.Errorf("strategy %d: closeStep: %w", id, err)
	}
	if s.DisplaySize, err = parseOptInt(p.DisplaySize); err != nil {
		return nil, fmt.Errorf("strategy %d: displaySize: %w", id, err)
	}

	if strings.TrimSpace(p.OutsideRTH) != "" {
		s.OutsideRTH = parseBool(p.OutsideRTH)
	}
	if v := strings.TrimSpace(p.TimeInForce); v != "" {
		s.TimeInForce = v
	}
	if v := strings.TrimSpace(p.OrderType); v != "" {
		s.OrderType = v
	}
	if v := strings.TrimSpace(p.Confirmed); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("strategy %d: confirmed: %w", id, err)
		}
		t := time.Unix(secs, 0)
		s.Confirmed = &t
	}

	contract, err := buildContract(id, p)
	if err != nil {
		return nil, err
	}
	s.Contract = contract
	return s, nil
}

func buildContract(id int, p Params) (broker.Contract, error) {
	mode := strings.ToUpper(strings.TrimSpace(p.Mode))
	symbol := strings.TrimSpace(p.Symbol)
	exchange := strings.TrimSpace(p.Exchange)
	currency := strings.TrimSpace(p.Currency)
	switch {
	case mode == "":
		return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing", id, "mode")
	case symbol == "":
		return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing", id, "symbol")
	case exchange == "":
		return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing", id, "exchange")
	case currency == "":
		return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing", id, "currency")
	}

	c := broker.Contract{
		Symbol:   symbol,
		Mode:     mode,
		Exchange: exchange,
		Currency: currency,
	}
	switch mode {
	case broker.ModeStock:
		return c, nil
	case broker.ModeFuture:
		c.LastTradeDate = strings.TrimSpace(p.FutureLastDate)
		c.LocalSymbol = strings.TrimSpace(p.FutureLocalSymbol)
		if c.LastTradeDate == "" {
			return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing", id, "futureLastDate")
		}
		if c.LocalSymbol == "" {
			return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing", id, "futureLocalSymbol")
		}
		mult, err := parseFloat(p.FutureMultiplier)
		if err != nil || mult <= 0 {
			return broker.Contract{}, fmt.Errorf("strategy %d: parameter %q is missing or invalid", id, "futureMultiplier")
		}
		c.Multiplier = mult
		return c, nil
	default:
		return broker.Contract{}, fmt.Errorf("strategy %d: unknown mode %q", id, mode)
	}
}

// ParseAll types every row and drops the rejects, logging is left to the
// caller via the returned errors (keyed by row index).
func ParseAll(rows []Params) ([]*Snapshot, map[int]error) {
	var out []*Snapshot
	errs := make(map[int]error)
	for i, row := range rows {
		s, err := Parse(row)
		if err != nil {
			errs[i] = err
			continue
		}
		out = append(out, s)
	}
	return out, errs
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "si", "sí", "1", "x", "on":
		return true
	}
	return false
}

func parseFloat(v string) (float64, error) {
	v = strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
	if v == "" {
		return 0, fmt.Errorf("value is missing")
	}
	return strconv.ParseFloat(v, 64)
}

func parseInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("value is missing")
	}
	return strconv.Atoi(v)
}

func parseOptFloat(v string) (*float64, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	f, err := parseFloat(v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseOptInt(v string) (*int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	n, err := parseInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
