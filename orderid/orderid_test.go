package orderid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		want := Fields{
			Number:     rng.Uint64(),
			Side:       Buy,
			StrategyID: uint8(rng.Intn(256)),
			ContractID: rng.Uint32(),
			ClientID:   uint8(rng.Intn(256)),
		}
		if rng.Intn(2) == 1 {
			want.Side = Sell
		}
		if want.Number == 0 {
			want.Number = 1 // zero means "stamp with current time"
		}

		codec := NewCodec(int(want.ClientID))
		id := codec.Pack(want.ContractID, want.StrategyID, want.Side, want.Number)
		assert.Equal(t, want, id.Unpack())
	}
}

func TestWireRoundTrip(t *testing.T) {
	codec := NewCodec(7)
	id := codec.Pack(495512572, 3, Sell, 1695046874123)

	parsed, ok := Parse(id.String())
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	f := Decode(id.String())
	require.NotNil(t, f)
	assert.Equal(t, uint8(7), f.ClientID)
	assert.Equal(t, uint32(495512572), f.ContractID)
	assert.Equal(t, uint8(3), f.StrategyID)
	assert.Equal(t, Sell, f.Side)
	assert.Equal(t, uint64(1695046874123), f.Number)
}

func TestPackMasksOverwideClientID(t *testing.T) {
	// 300 does not fit in 8 bits; pack must truncate to 300 mod 256 = 44.
	codec := NewCodec(300)
	id := codec.Pack(1, 1, Buy, 99)
	assert.Equal(t, uint8(44), id.Unpack().ClientID)
}

func TestPackDefaultsNumberToTimestamp(t *testing.T) {
	codec := NewCodec(1)
	id := codec.Pack(10, 2, Buy, 0)
	f := id.Unpack()
	// Epoch milliseconds are well above any plausible explicit number here.
	assert.Greater(t, f.Number, uint64(1_600_000_000_000))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, ref := range []string{"", "abc", "12x4", "-5", "  ", "1.5"} {
		assert.Nil(t, Decode(ref), "ref=%q", ref)
	}
}

func TestChildChecks(t *testing.T) {
	codec := NewCodec(9)
	ref := codec.Pack(123, 4, Buy, 55).String()

	assert.True(t, codec.IsChildOfClient(ref))
	assert.True(t, codec.IsChildOfStrategy(ref, 4))
	assert.False(t, codec.IsChildOfStrategy(ref, 5))
	assert.False(t, NewCodec(10).IsChildOfClient(ref))
	assert.False(t, codec.IsChildOfClient("not-an-id"))
}

func TestSideHelpers(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, float64(1), Buy.Sign())
	assert.Equal(t, float64(-1), Sell.Sign())
}
