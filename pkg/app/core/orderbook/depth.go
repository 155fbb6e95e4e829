package orderbook

import (
	"slices"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// PriceLevel aggregates every resting limit and margin order at one price
type PriceLevel struct {
	Price   asset.Price `json:"price"`
	ForSale asset.Asset `json:"for_sale"`
	Orders  int         `json:"orders"`
}

// Depth returns the price levels of orders selling sell for receive, best
// first, stopping after maxLevels levels (0 = all).
// Limit and margin orders at equal prices share a level.
func (b *Book) Depth(sell, receive asset.Symbol, maxLevels int) []PriceLevel {
	var levels []PriceLevel
	add := func(o BookOrder) {
		for i := range levels {
			if levels[i].Price.Equal(o.Price()) {
				levels[i].ForSale = levels[i].ForSale.Add(o.AmountForSale())
				levels[i].Orders++
				return
			}
		}
		levels = append(levels, PriceLevel{Price: o.Price(), ForSale: o.AmountForSale(), Orders: 1})
	}
	b.LimitsByPrice(sell, receive, func(o LimitOrder) bool {
		add(o)
		return true
	})
	b.margins.Index(byPrice).Ascend(MarginOrder{SellPrice: asset.MaxPrice(sell, receive)}, func(o MarginOrder) bool {
		if o.SellPrice.Base.Symbol != sell || o.SellPrice.Quote.Symbol != receive {
			return false
		}
		add(o)
		return true
	})
	slices.SortStableFunc(levels, func(x, y PriceLevel) int { return y.Price.Cmp(x.Price) })
	if maxLevels > 0 && len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}

// BestPrices returns the best price on each side of a market; ok is false
// for an empty side
func (b *Book) BestPrices(base, quote asset.Symbol) (ask, bid asset.Price, askOK, bidOK bool) {
	if o, ok := b.BestLimit(base, quote); ok {
		ask, askOK = o.SellPrice, true
	}
	if o, ok := b.BestLimit(quote, base); ok {
		bid, bidOK = o.SellPrice, true
	}
	return ask, bid, askOK, bidOK
}
