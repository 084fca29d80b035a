package book

import (
	"sort"
	"sync"
	"time"

	"main/internal/schema"
)

// level holds the resting orders at one price. Arrival order is priority
// order; total tracks the sum of unfilled quantities.
type level struct {
	price  float64
	total  int64
	orders []*schema.Order
}

// QuoteFunc receives the cached best bid/ask after a book mutation.
type QuoteFunc func(symbol string, bid, ask float64)

// Book is the limit order book for a single symbol. One mutex covers both
// side maps, the cached bests and the sequence number; all mutations and
// queries serialize on it. Matching is not performed here — the book is a
// pure data structure driven by the matching engine.
type Book struct {
	symbol string

	mu       sync.Mutex
	bids     map[float64]*level
	asks     map[float64]*level
	bidKeys  []float64 // descending, bidKeys[0] is the best bid
	askKeys  []float64 // ascending, askKeys[0] is the best ask
	bestBid  float64
	bestAsk  float64
	lastPx   float64
	seq      uint64
	onQuote  QuoteFunc
	nowNanos func() int64
}

// New creates an empty book for the given symbol.
func New(symbol string) *Book {
	return &Book{
		symbol:   symbol,
		bids:     make(map[float64]*level),
		asks:     make(map[float64]*level),
		nowNanos: func() int64 { return time.Now().UnixNano() },
	}
}

// Symbol returns the symbol this book serves.
func (b *Book) Symbol() string { return b.symbol }

// SetQuoteCallback registers a callback invoked with the cached bests after
// every mutation. Set once before the book is shared; not safe to swap later.
func (b *Book) SetQuoteCallback(fn QuoteFunc) { b.onQuote = fn }

// Add inserts an order at the tail of its price level, creating the level
// if absent. Each add advances the book sequence number; the order keeps its
// own id and is stamped with an acceptance timestamp when it does not carry
// one. Crossing prices are
// accepted as-is; resolving the cross is the matching engine's job.
func (b *Book) Add(o schema.Order) {
	b.mu.Lock()
	b.seq++
	if o.SubmitNs == 0 {
		o.SubmitNs = b.nowNanos()
	}
	cp := o
	b.insert(&cp)
	b.updateBests()
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	b.notify(bid, ask)
}

// AddLiquidity inserts a synthetic resting limit order and returns its id.
// Used by the market data feed to seed and evolve its books.
func (b *Book) AddLiquidity(side schema.Side, price float64, qty int64, trader string) uint64 {
	b.mu.Lock()
	b.seq++
	o := &schema.Order{
		ID:       b.seq,
		Symbol:   b.symbol,
		Side:     side,
		Type:     schema.OrderTypeLimit,
		Price:    price,
		Quantity: qty,
		SubmitNs: b.nowNanos(),
		TraderID: trader,
	}
	b.insert(o)
	b.updateBests()
	id, bid, ask := o.ID, b.bestBid, b.bestAsk
	b.mu.Unlock()

	b.notify(bid, ask)
	return id
}

// Cancel removes the order with the given id, deleting its level when it
// empties. Unknown ids are a silent no-op, which makes cancel idempotent.
// The removed order is returned for callers that track ownership.
func (b *Book) Cancel(id uint64) (schema.Order, bool) {
	b.mu.Lock()
	o, ok := b.remove(id)
	var removed schema.Order
	if ok {
		b.updateBests()
		removed = *o
		removed.Status = schema.OrderStatusCancelled
	}
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	if ok {
		b.notify(bid, ask)
	}
	return removed, ok
}

// Modify re-prices an order as an atomic cancel-then-add. The order keeps
// its id but is stamped with a fresh timestamp and joins the tail of its new
// level: a modify always forfeits queue priority. Returns false when the id
// is not resting in the book.
func (b *Book) Modify(id uint64, newPrice float64, newQty int64) bool {
	b.mu.Lock()
	o, ok := b.remove(id)
	if ok {
		o.Price = newPrice
		o.Quantity = newQty
		if o.Filled >= newQty {
			// Shrunk to or below the filled quantity: nothing left to rest.
			o.Filled = newQty
			o.Status = schema.OrderStatusFilled
		} else {
			o.SubmitNs = b.nowNanos()
			b.seq++
			b.insert(o)
		}
		b.updateBests()
	}
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	if ok {
		b.notify(bid, ask)
	}
	return ok
}

// Front returns a copy of the highest-priority resting order on the given
// side: the front of the best level.
func (b *Book) Front(side schema.Side) (schema.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lv := b.bestLevel(side)
	if lv == nil || len(lv.orders) == 0 {
		return schema.Order{}, false
	}
	return *lv.orders[0], true
}

// ReduceFront fills qty against the front order of the given side's best
// level, removing the order and its level when exhausted. Returns a copy of
// the order after the fill. The caller is responsible for qty not exceeding
// the order's remaining quantity.
func (b *Book) ReduceFront(side schema.Side, qty int64) (schema.Order, bool) {
	b.mu.Lock()
	lv := b.bestLevel(side)
	if lv == nil || len(lv.orders) == 0 {
		b.mu.Unlock()
		return schema.Order{}, false
	}
	o := lv.orders[0]
	o.Filled += qty
	lv.total -= qty
	if o.Remaining() <= 0 {
		o.Status = schema.OrderStatusFilled
		lv.orders = lv.orders[1:]
		if len(lv.orders) == 0 {
			b.removeLevel(side, lv.price)
		}
	} else {
		o.Status = schema.OrderStatusPartial
	}
	b.updateBests()
	out := *o
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	b.notify(bid, ask)
	return out, true
}

// RemoveCrossing drops resting orders on the side opposite to an incoming
// order of the given side and price, as far as that order would cross.
// The market data feed uses it to keep its synthetic books uncrossed after
// injecting liquidity at a new price. Returns the quantity removed.
func (b *Book) RemoveCrossing(side schema.Side, price float64) int64 {
	b.mu.Lock()
	var removed int64
	opp := side.Opposite()
	for {
		lv := b.bestLevel(opp)
		if lv == nil {
			break
		}
		if opp == schema.SideSell && lv.price > price {
			break
		}
		if opp == schema.SideBuy && lv.price < price {
			break
		}
		for _, o := range lv.orders {
			removed += o.Remaining()
		}
		b.removeLevel(opp, lv.price)
	}
	if removed > 0 {
		b.updateBests()
	}
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	if removed > 0 {
		b.notify(bid, ask)
	}
	return removed
}

// BestBid returns the highest resting buy price, 0 when the side is empty.
func (b *Book) BestBid() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestBid
}

// BestAsk returns the lowest resting sell price, 0 when the side is empty.
func (b *Book) BestAsk() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestAsk
}

// MidPrice returns the arithmetic mean of the bests when both sides are
// populated, falling back to the last trade price otherwise.
func (b *Book) MidPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bestBid > 0 && b.bestAsk > 0 {
		return (b.bestBid + b.bestAsk) / 2
	}
	return b.lastPx
}

// Spread returns best ask minus best bid, 0 unless both sides are present.
func (b *Book) Spread() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bestBid > 0 && b.bestAsk > 0 {
		return b.bestAsk - b.bestBid
	}
	return 0
}

// LastPrice returns the most recent trade price, 0 before any trade.
func (b *Book) LastPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPx
}

// SetLastPrice records the most recent trade price.
func (b *Book) SetLastPrice(price float64) {
	b.mu.Lock()
	b.lastPx = price
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	b.notify(bid, ask)
}

// BidLevels returns up to depth aggregated bid levels, best first.
func (b *Book) BidLevels(depth int) []schema.PriceLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels(schema.SideBuy, depth)
}

// AskLevels returns up to depth aggregated ask levels, best first.
func (b *Book) AskLevels(depth int) []schema.PriceLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels(schema.SideSell, depth)
}

// Snapshot captures bests, mid, spread and the top depth levels per side.
func (b *Book) Snapshot(depth int) schema.BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	mid := b.lastPx
	if b.bestBid > 0 && b.bestAsk > 0 {
		mid = (b.bestBid + b.bestAsk) / 2
	}
	spread := 0.0
	if b.bestBid > 0 && b.bestAsk > 0 {
		spread = b.bestAsk - b.bestBid
	}
	return schema.BookSnapshot{
		Symbol:      b.symbol,
		TimestampNs: b.nowNanos(),
		BestBid:     b.bestBid,
		BestAsk:     b.bestAsk,
		MidPrice:    mid,
		Spread:      spread,
		Bids:        b.levels(schema.SideBuy, depth),
		Asks:        b.levels(schema.SideSell, depth),
	}
}

// Clear drops all resting orders on both sides.
func (b *Book) Clear() {
	b.mu.Lock()
	b.bids = make(map[float64]*level)
	b.asks = make(map[float64]*level)
	b.bidKeys = b.bidKeys[:0]
	b.askKeys = b.askKeys[:0]
	b.updateBests()
	bid, ask := b.bestBid, b.bestAsk
	b.mu.Unlock()

	b.notify(bid, ask)
}

// TrimDepth drops levels beyond maxLevels per side, worst prices first.
// Keeps synthetic feed books bounded; resting order ids on trimmed levels
// simply disappear, as if their owners lost interest.
func (b *Book) TrimDepth(maxLevels int) {
	if maxLevels <= 0 {
		return
	}
	b.mu.Lock()
	for _, s := range []schema.Side{schema.SideBuy, schema.SideSell} {
		side, keys := b.sideOf(s)
		for len(*keys) > maxLevels {
			worst := (*keys)[len(*keys)-1]
			delete(side, worst)
			*keys = (*keys)[:len(*keys)-1]
		}
	}
	b.updateBests()
	b.mu.Unlock()
}

// OrderCount returns the number of resting orders across both sides.
func (b *Book) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, lv := range b.bids {
		n += len(lv.orders)
	}
	for _, lv := range b.asks {
		n += len(lv.orders)
	}
	return n
}

func (b *Book) insert(o *schema.Order) {
	side, keys := b.sideOf(o.Side)
	lv, ok := side[o.Price]
	if !ok {
		lv = &level{price: o.Price}
		side[o.Price] = lv
		b.insertKey(keys, o.Price, o.Side)
	}
	lv.orders = append(lv.orders, o)
	lv.total += o.Remaining()
}

func (b *Book) remove(id uint64) (*schema.Order, bool) {
	if o, ok := b.removeFromSide(schema.SideBuy, id); ok {
		return o, true
	}
	return b.removeFromSide(schema.SideSell, id)
}

func (b *Book) removeFromSide(s schema.Side, id uint64) (*schema.Order, bool) {
	side, _ := b.sideOf(s)
	for price, lv := range side {
		for i, o := range lv.orders {
			if o.ID != id {
				continue
			}
			lv.total -= o.Remaining()
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			if len(lv.orders) == 0 {
				b.removeLevel(s, price)
			}
			return o, true
		}
	}
	return nil, false
}

func (b *Book) sideOf(s schema.Side) (map[float64]*level, *[]float64) {
	if s == schema.SideBuy {
		return b.bids, &b.bidKeys
	}
	return b.asks, &b.askKeys
}

func (b *Book) bestLevel(s schema.Side) *level {
	side, keys := b.sideOf(s)
	if len(*keys) == 0 {
		return nil
	}
	return side[(*keys)[0]]
}

// insertKey keeps bidKeys descending and askKeys ascending.
func (b *Book) insertKey(keys *[]float64, price float64, s schema.Side) {
	ks := *keys
	i := sort.Search(len(ks), func(i int) bool {
		if s == schema.SideBuy {
			return ks[i] < price
		}
		return ks[i] > price
	})
	ks = append(ks, 0)
	copy(ks[i+1:], ks[i:])
	ks[i] = price
	*keys = ks
}

func (b *Book) removeLevel(s schema.Side, price float64) {
	side, keys := b.sideOf(s)
	delete(side, price)
	ks := *keys
	for i, k := range ks {
		if k == price {
			*keys = append(ks[:i], ks[i+1:]...)
			return
		}
	}
}

func (b *Book) levels(s schema.Side, depth int) []schema.PriceLevel {
	side, keys := b.sideOf(s)
	n := len(*keys)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]schema.PriceLevel, 0, n)
	for _, price := range (*keys)[:n] {
		lv := side[price]
		out = append(out, schema.PriceLevel{Price: lv.price, Quantity: lv.total})
	}
	return out
}

func (b *Book) updateBests() {
	if len(b.bidKeys) > 0 {
		b.bestBid = b.bidKeys[0]
	} else {
		b.bestBid = 0
	}
	if len(b.askKeys) > 0 {
		b.bestAsk = b.askKeys[0]
	} else {
		b.bestAsk = 0
	}
}

func (b *Book) notify(bid, ask float64) {
	if b.onQuote != nil {
		b.onQuote(b.symbol, bid, ask)
	}
}
