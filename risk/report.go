package risk

// Amount carries the three measures tracked for every bucket: raw quantity,
// quantity after the contract multiplier, and nominal (quantity × multiplier
// × price).
type Amount struct {
	Quantity   float64 `json:"quantity"`
	Multiplied float64 `json:"multiplied"`
	Nominal    float64 `json:"nominal"`
}

func (a *Amount) add(b Amount) {
	a.Quantity += b.Quantity
	a.Multiplied += b.Multiplied
	a.Nominal += b.Nominal
}

// OrderSums aggregates resting orders by side. Buy values are >= 0, sell
// values <= 0 by sign convention; Net is their sum.
type OrderSums struct {
	Buy  Amount `json:"buy"`
	Sell Amount `json:"sell"`
	Net  Amount `json:"net"`
}

// PositionSums is the broker-reported net position on a contract.
type PositionSums struct {
	Quantity float64 `json:"quantity"`
	Nominal  float64 `json:"nominal"`
}

// amount spreads the position over the Amount fields. The broker reports no
// multiplied figure, so the raw quantity stands in for it.
func (p PositionSums) amount() Amount {
	return Amount{Quantity: p.Quantity, Multiplied: p.Quantity, Nominal: p.Nominal}
}

// Virtual is the hypothetical exposure if resting orders filled: Long is
// position plus buys, Short is position plus sells, Net is position plus
// both, and Max takes max(|long|, |short|) independently per field.
type Virtual struct {
	Long  Amount `json:"long"`
	Short Amount `json:"short"`
	Net   Amount `json:"net"`
	Max   Amount `json:"max"`
}

// Entry is the exposure record for one contract or one strategy.
type Entry struct {
	ContractID string       `json:"contract_id"`
	Symbol     string       `json:"symbol"`
	Strategies []string     `json:"strategies"`
	Orders     OrderSums    `json:"orders"`
	Position   PositionSums `json:"position"`
	Virtual    Virtual      `json:"virtual"`
}

func (e *Entry) noteStrategy(key string) {
	for _, s := range e.Strategies {
		if s == key {
			return
		}
	}
	e.Strategies = append(e.Strategies, key)
}

// finalize recomputes the derived order nets and virtual exposure from the
// accumulated buy/sell/position figures.
func (e *Entry) finalize() {
	e.Orders.Net = Amount{}
	e.Orders.Net.add(e.Orders.Buy)
	e.Orders.Net.add(e.Orders.Sell)

	pos := e.Position.amount()

	e.Virtual.Long = pos
	e.Virtual.Long.add(e.Orders.Buy)
	e.Virtual.Short = pos
	e.Virtual.Short.add(e.Orders.Sell)
	e.Virtual.Net = pos
	e.Virtual.Net.add(e.Orders.Buy)
	e.Virtual.Net.add(e.Orders.Sell)
	e.Virtual.Max = Amount{
		Quantity:   absMax(e.Virtual.Long.Quantity, e.Virtual.Short.Quantity),
		Multiplied: absMax(e.Virtual.Long.Multiplied, e.Virtual.Short.Multiplied),
		Nominal:    absMax(e.Virtual.Long.Nominal, e.Virtual.Short.Nominal),
	}
}

// Totals aggregates virtual exposure across all per-contract entries.
// Max is the sum of the per-contract maxima, not a max recomputed over the
// summed long/short legs. Summing already-maxed values can overstate
// exposure that nets across contracts; that is the accepted accounting
// rule here, do not "fix" it.
type Totals struct {
	Long  Amount `json:"long"`
	Short Amount `json:"short"`
	Net   Amount `json:"net"`
	Max   Amount `json:"max"`
}

// Report is one complete exposure snapshot. It is built fresh on every
// admission check and handed out as a value owned by the caller.
type Report struct {
	Contracts  map[string]*Entry `json:"contract"`
	Strategies map[string]*Entry `json:"strategy"`
	Total      Totals            `json:"total"`
}

func newReport() *Report {
	return &Report{
		Contracts:  make(map[string]*Entry),
		Strategies: make(map[string]*Entry),
	}
}

func (r *Report) entry(m map[string]*Entry, key string) *Entry {
	e, ok := m[key]
	if !ok {
		e = &Entry{}
		m[key] = e
	}
	return e
}

// finalize derives virtual values for every entry and rolls the
// per-contract entries up into the totals.
func (r *Report) finalize() {
	for _, e := range r.Contracts {
		e.finalize()
	}
	for _, e := range r.Strategies {
		e.finalize()
	}
	r.Total = Totals{}
	for _, e := range r.Contracts {
		r.Total.Long.add(e.Virtual.Long)
		r.Total.Short.add(e.Virtual.Short)
		r.Total.Net.add(e.Virtual.Net)
		r.Total.Max.add(e.Virtual.Max)
	}
}

func absMax(a, b float64) float64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}
