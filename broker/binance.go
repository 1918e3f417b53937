package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"gridbot/logger"
	"gridbot/orderid"
)

// Binance adapts the USD-M futures API to the Broker interface. The packed
// order identifier rides in newClientOrderId, so resting orders can be
// attributed after a restart without local state.
//
// Binance has no numeric contract id; the 32-bit id is derived from the
// symbol with FNV-1a, which is stable across runs.
type Binance struct {
	client *futures.Client

	mu        sync.Mutex
	contracts map[uint32]Contract // qualified contracts by derived id
	fillFns   []func(Fill)
	stopWs    chan struct{}
}

func NewBinance(apiKey, secretKey string) *Binance {
	return &Binance{
		client:    futures.NewClient(apiKey, secretKey),
		contracts: make(map[uint32]Contract),
	}
}

// SetBaseURL points the client at a different endpoint. Tests aim it at an
// httptest server.
func (b *Binance) SetBaseURL(url string) {
	b.client.BaseURL = url
}

func symbolID(symbol string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return h.Sum32()
}

func (b *Binance) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.NewPingService().Do(ctx) == nil
}

// QualifyContract checks the symbol is listed and trading, then assigns
// the derived contract id and remembers the contract for later lookups.
func (b *Binance) QualifyContract(ctx context.Context, c *Contract) (uint32, error) {
	if c == nil || c.DisplaySymbol() == "" {
		return 0, fmt.Errorf("binance: cannot qualify empty contract")
	}
	symbol := c.DisplaySymbol()

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: exchange info: %w", err)
	}
	found := false
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			if s.Status != "TRADING" {
				return 0, fmt.Errorf("binance: symbol %s is not trading (status %s)", symbol, s.Status)
			}
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("binance: unknown symbol %s", symbol)
	}

	c.ID = symbolID(symbol)
	b.mu.Lock()
	b.contracts[c.ID] = *c
	b.mu.Unlock()
	return c.ID, nil
}

func (b *Binance) contractForSymbol(symbol string) Contract {
	id := symbolID(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.contracts[id]; ok {
		return c
	}
	return Contract{ID: id, Symbol: symbol, Mode: ModeFuture, Multiplier: 1}
}

func (b *Binance) MarketPrice(ctx context.Context, c Contract) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(c.DisplaySymbol()).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: ticker price for %s: %w", c.DisplaySymbol(), err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance: no price for %s", c.DisplaySymbol())
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: bad price %q for %s: %w", prices[0].Price, c.DisplaySymbol(), err)
	}
	return price, nil
}

func sideFromBinance(s futures.SideType) orderid.Side {
	if s == futures.SideTypeSell {
		return orderid.Sell
	}
	return orderid.Buy
}

func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest) error {
	if req.Ref == "" {
		return fmt.Errorf("binance: order without reference")
	}
	if req.OrderType != "" && req.OrderType != "LMT" {
		return fmt.Errorf("binance: unsupported order type %q", req.OrderType)
	}
	if req.TimeInForce != "" && req.TimeInForce != "GTC" {
		logger.Warnf("⚠️  Time in force %q not supported on Binance futures, using GTC", req.TimeInForce)
	}
	if req.DisplaySize != nil || req.Hidden || req.AuxPrice != nil {
		logger.Debugf("Iceberg/aux order attributes ignored on Binance futures")
	}

	side := futures.SideTypeBuy
	if req.Side == orderid.Sell {
		side = futures.SideTypeSell
	}
	_, err := b.client.NewCreateOrderService().
		Symbol(req.Contract.DisplaySymbol()).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64)).
		Price(strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)).
		NewClientOrderID(req.Ref).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: create order: %w", err)
	}
	return nil
}

// CancelOrder cancels by the packed reference. The symbol is required by
// the API, so the order is located among the open orders first.
func (b *Binance) CancelOrder(ctx context.Context, ref string) error {
	orders, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: list open orders: %w", err)
	}
	for _, o := range orders {
		if o.ClientOrderID != ref {
			continue
		}
		if _, err := b.client.NewCancelOrderService().
			Symbol(o.Symbol).
			OrigClientOrderID(ref).
			Do(ctx); err != nil {
			return fmt.Errorf("binance: cancel order %s: %w", ref, err)
		}
		return nil
	}
	// Already gone counts as cancelled.
	return nil
}

func (b *Binance) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	orders, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: list open orders: %w", err)
	}
	out := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		price, _ := strconv.ParseFloat(o.Price, 64)
		side := sideFromBinance(o.Side)
		out = append(out, OpenOrder{
			Ref:        o.ClientOrderID,
			Contract:   b.contractForSymbol(o.Symbol),
			Side:       side,
			Quantity:   qty,
			LimitPrice: price,
		})
	}
	return out, nil
}

func (b *Binance) Positions(ctx context.Context) ([]Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: position risk: %w", err)
	}
	var out []Position
	for _, r := range risks {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
		out = append(out, Position{
			Contract:    b.contractForSymbol(r.Symbol),
			Quantity:    qty,
			MarketValue: qty * mark,
		})
	}
	return out, nil
}

func (b *Binance) OnFill(fn func(Fill)) {
	b.mu.Lock()
	b.fillFns = append(b.fillFns, fn)
	b.mu.Unlock()
}

// StartUserStream opens the user-data websocket and routes order-trade
// updates to fill subscribers. The listen key is refreshed every half hour
// until the context ends.
func (b *Binance) StartUserStream(ctx context.Context) error {
	listenKey, err := b.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: start user stream: %w", err)
	}
	_, stopC, err := futures.WsUserDataServe(listenKey, b.handleUserData, func(err error) {
		logger.Errorf("Binance user stream error: %v", err)
	})
	if err != nil {
		return fmt.Errorf("binance: user data websocket: %w", err)
	}
	b.mu.Lock()
	b.stopWs = stopC
	b.mu.Unlock()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(stopC)
				return
			case <-ticker.C:
				if err := b.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
					logger.Warnf("⚠️  Binance listen key keepalive failed: %v", err)
				}
			}
		}
	}()
	logger.Infof("✅ Binance user data stream connected")
	return nil
}

func (b *Binance) handleUserData(event *futures.WsUserDataEvent) {
	if event.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return
	}
	u := event.OrderTradeUpdate
	if u.Status != futures.OrderStatusTypeFilled && u.Status != futures.OrderStatusTypePartiallyFilled {
		return
	}
	orig, _ := strconv.ParseFloat(u.OriginalQty, 64)
	filled, _ := strconv.ParseFloat(u.AccumulatedFilledQty, 64)
	lastQty, _ := strconv.ParseFloat(u.LastFilledQty, 64)
	lastPrice, _ := strconv.ParseFloat(u.LastFilledPrice, 64)

	fill := Fill{
		Ref:       u.ClientOrderID,
		Contract:  b.contractForSymbol(u.Symbol),
		Side:      sideFromBinance(u.Side),
		Quantity:  lastQty,
		Price:     lastPrice,
		Remaining: orig - filled,
		ExecID:    strconv.FormatInt(u.TradeID, 10),
	}

	b.mu.Lock()
	fns := append([]func(Fill){}, b.fillFns...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(fill)
	}
}
