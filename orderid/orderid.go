// Package orderid packs client, contract, strategy, side and an order number
// into a single 113-bit identifier that rides in the broker's free-form
// order-reference field. The identifier binds every resting order back to the
// client instance and strategy that placed it.
package orderid

import (
	"math/big"
	"strings"
	"time"
)

// Side is the order direction encoded in bit 64 of the identifier.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Sell {
		return Buy
	}
	return Sell
}

// Bit layout, least-significant first:
//
//	bits [0:64)    number     (defaults to epoch milliseconds)
//	bit  [64]      side       (0=BUY, 1=SELL)
//	bits [65:73)   strategyId
//	bits [73:105)  contractId
//	bits [105:113) clientId
//
// The low word holds the number; everything else lives in the high word, so
// no cross-word arithmetic is needed.
const (
	sideShift     = 0
	strategyShift = 1
	contractShift = 9
	clientShift   = 41

	strategyMask = 0xff
	contractMask = 0xffffffff
	clientMask   = 0xff
)

// ID is a 113-bit order identifier split into two machine words.
// Native integers are too narrow for the full value; only String/Parse go
// through big.Int, field access is plain shifting.
type ID struct {
	hi uint64 // bits [64:113)
	lo uint64 // bits [0:64)
}

// Fields is the unpacked form of an ID.
type Fields struct {
	Number     uint64
	Side       Side
	StrategyID uint8
	ContractID uint32
	ClientID   uint8
}

// Codec packs and unpacks order identifiers for one client instance.
type Codec struct {
	clientID uint8
	now      func() time.Time
}

// NewCodec creates a codec bound to a client id. Over-wide client ids are
// truncated to 8 bits, same as every other field on pack.
func NewCodec(clientID int) *Codec {
	return &Codec{clientID: uint8(clientID & clientMask), now: time.Now}
}

// NewCodecWithNow creates a codec bound to a client id with an injectable
// clock, used when the number sentinel's timestamp must be deterministic.
func NewCodecWithNow(clientID int, now func() time.Time) *Codec {
	return &Codec{clientID: uint8(clientID & clientMask), now: now}
}

// ClientID returns the client id this codec packs into identifiers.
func (c *Codec) ClientID() uint8 { return c.clientID }

// Pack builds an identifier from the codec's client id and the given fields.
// Each value is masked to its field width, so out-of-range inputs wrap
// silently rather than fail. number==0 means "use the current epoch
// milliseconds"; two orders packed within the same millisecond can collide,
// there is no uniqueness guarantee. The sentinel also means an explicit
// number of 0 cannot be represented: it always packs as a timestamp.
func (c *Codec) Pack(contractID uint32, strategyID uint8, side Side, number uint64) ID {
	if number == 0 {
		number = uint64(c.now().UnixMilli())
	}
	var sideBit uint64
	if side == Sell {
		sideBit = 1
	}
	hi := sideBit<<sideShift |
		(uint64(strategyID)&strategyMask)<<strategyShift |
		(uint64(contractID)&contractMask)<<contractShift |
		(uint64(c.clientID)&clientMask)<<clientShift
	return ID{hi: hi, lo: number}
}

// PackFields rebuilds an identifier from previously unpacked fields,
// preserving the embedded client id rather than the codec's own.
func (c *Codec) PackFields(f Fields) ID {
	var sideBit uint64
	if f.Side == Sell {
		sideBit = 1
	}
	hi := sideBit<<sideShift |
		(uint64(f.StrategyID)&strategyMask)<<strategyShift |
		(uint64(f.ContractID)&contractMask)<<contractShift |
		(uint64(f.ClientID)&clientMask)<<clientShift
	return ID{hi: hi, lo: f.Number}
}

// Unpack splits an identifier into its fields.
func (id ID) Unpack() Fields {
	f := Fields{
		Number:     id.lo,
		Side:       Buy,
		StrategyID: uint8(id.hi >> strategyShift & strategyMask),
		ContractID: uint32(id.hi >> contractShift & contractMask),
		ClientID:   uint8(id.hi >> clientShift & clientMask),
	}
	if id.hi>>sideShift&1 == 1 {
		f.Side = Sell
	}
	return f
}

// String renders the identifier as the decimal integer carried on the wire.
func (id ID) String() string {
	v := new(big.Int).SetUint64(id.hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(id.lo))
	return v.String()
}

// Parse decodes a wire reference back into an ID. Returns false for
// anything that is not a non-negative integer; callers treat that as
// "not one of ours".
func Parse(ref string) (ID, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ID{}, false
	}
	v, ok := new(big.Int).SetString(ref, 10)
	if !ok || v.Sign() < 0 {
		return ID{}, false
	}
	var id ID
	id.lo = new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(v, 64)
	// Bits beyond the 113-bit layout are dropped; field masks bound every
	// accessor anyway.
	id.hi = new(big.Int).And(hi, new(big.Int).SetUint64(^uint64(0))).Uint64()
	return id, true
}

// Decode parses a wire reference and unpacks it in one step.
// Returns nil when the reference cannot be decoded.
func Decode(ref string) *Fields {
	id, ok := Parse(ref)
	if !ok {
		return nil
	}
	f := id.Unpack()
	return &f
}

// IsChildOfClient reports whether ref decodes to an identifier owned by
// this codec's client. Decode failures are "no".
func (c *Codec) IsChildOfClient(ref string) bool {
	f := Decode(ref)
	return f != nil && f.ClientID == c.clientID
}

// IsChildOfStrategy reports whether ref belongs to this client and the
// given strategy.
func (c *Codec) IsChildOfStrategy(ref string, strategyID uint8) bool {
	f := Decode(ref)
	return f != nil && f.ClientID == c.clientID && f.StrategyID == strategyID
}
