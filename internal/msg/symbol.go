package msg

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/uswork-ny/godzilla-community/internal/location"
)

// Subscription kinds.
const (
	SubDepth      = "depth"
	SubTrade      = "trade"
	SubTicker     = "ticker"
	SubIndexPrice = "index_price"
	SubBar        = "bar"
	SubOrder      = "order"
)

// SymbolID identifies a symbol on an exchange.
func SymbolID(symbol, exchange string) uint32 {
	return location.Hash32(symbol) ^ location.Hash32(exchange)
}

// SubscriptionKey hashes a subscription. Order subscriptions only depend on
// the owner, the strategy id that placed the orders.
func SubscriptionKey(symbol, kind string, instType InstrumentType, exchange string, owner uint64) uint32 {
	ownerHash := location.Hash32(strconv.FormatUint(owner, 10))
	if kind == SubOrder {
		return ownerHash
	}
	return location.Hash32(symbol) ^
		location.Hash32(kind) ^
		location.Hash32(strconv.Itoa(int(instType))) ^
		location.Hash32(exchange) ^
		ownerHash
}

// DefaultMultipliers weight notional by quote currency suffix.
var DefaultMultipliers = map[string]float64{
	"_btc": 30000,
	"_eth": 3000,
	"_xt":  3,
	"_bnb": 400,
}

// Multiplier returns the weight for symbol, 1 when no suffix matches.
func Multiplier(symbol string, multipliers map[string]float64) decimal.Decimal {
	lower := strings.ToLower(symbol)
	for suffix, m := range multipliers {
		if strings.HasSuffix(lower, suffix) {
			return decimal.NewFromFloat(m)
		}
	}
	return decimal.NewFromInt(1)
}

// Notional is price*volume weighted by the symbol's multiplier.
func Notional(symbol string, price, volume float64, multipliers map[string]float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(volume)).Mul(Multiplier(symbol, multipliers))
}
