package mdg

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/schema"
)

// MarketMakerID is the pseudo-trader behind all synthetic liquidity.
const MarketMakerID = "MARKET_MAKER"

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultInjectProb   = 0.3
	baseSigma           = 0.001
	bootstrapQty        = 1000
	bootstrapAskOffset  = 0.01
	minInjectSize       = 100
	maxInjectSize       = 1000
	maxBookLevels       = 50
)

// PriceFunc receives the top of book for one symbol. It is invoked
// synchronously from the feed tick and must not block.
type PriceFunc func(symbol string, bid, ask float64)

// OrderFunc receives each synthetic order the feed injects.
type OrderFunc func(schema.Order)

// Config controls the synthetic feed.
type Config struct {
	// TickInterval is the generator period, default 100ms.
	TickInterval time.Duration
	// VolatilityMultiplier scales the per-tick increment sigma, default 1.
	VolatilityMultiplier float64
	// InjectProbability is the per-symbol chance of injecting a synthetic
	// limit order each tick, default 0.3.
	InjectProbability float64
	// Seed fixes the random source; 0 derives one from the clock.
	Seed int64
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.VolatilityMultiplier <= 0 {
		c.VolatilityMultiplier = 1
	}
	if c.InjectProbability <= 0 {
		c.InjectProbability = defaultInjectProb
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Feed evolves one synthetic book per symbol on a periodic ticker: each
// tick samples a zero-mean normal price increment per symbol, occasionally
// injects a resting order at the new price and publishes the top of book.
type Feed struct {
	cfg Config

	mu      sync.Mutex
	books   map[string]*book.Book
	symbols []string
	started bool

	onPrice PriceFunc
	onOrder OrderFunc

	rng  *rand.Rand
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewFeed creates a feed with no symbols.
func NewFeed(cfg Config) *Feed {
	cfg = cfg.withDefaults()
	return &Feed{
		cfg:   cfg,
		books: make(map[string]*book.Book),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		stop:  make(chan struct{}),
	}
}

// SetPriceCallback registers the top-of-book sink. Set once before Start.
func (f *Feed) SetPriceCallback(fn PriceFunc) { f.onPrice = fn }

// SetOrderCallback registers the synthetic order sink. Set once before Start.
func (f *Feed) SetOrderCallback(fn OrderFunc) { f.onOrder = fn }

// AddSymbol creates the symbol's book and seeds it with a market-maker bid
// at the initial price and an ask one cent above, so best bid/ask are
// non-zero before the first tick.
func (f *Feed) AddSymbol(symbol string, initialPrice float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[symbol]; ok {
		return
	}
	b := book.New(symbol)
	b.AddLiquidity(schema.SideBuy, initialPrice, bootstrapQty, MarketMakerID)
	b.AddLiquidity(schema.SideSell, initialPrice+bootstrapAskOffset, bootstrapQty, MarketMakerID)
	f.books[symbol] = b
	f.symbols = append(f.symbols, symbol)
}

// Book returns the synthetic book for a symbol, nil when unknown.
func (f *Feed) Book(symbol string) *book.Book {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[symbol]
}

// Symbols returns the registered symbols in registration order.
func (f *Feed) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// BestBid returns the synthetic best bid for a symbol.
func (f *Feed) BestBid(symbol string) float64 {
	if b := f.Book(symbol); b != nil {
		return b.BestBid()
	}
	return 0
}

// BestAsk returns the synthetic best ask for a symbol.
func (f *Feed) BestAsk(symbol string) float64 {
	if b := f.Book(symbol); b != nil {
		return b.BestAsk()
	}
	return 0
}

// MidPrice returns the synthetic mid for a symbol.
func (f *Feed) MidPrice(symbol string) float64 {
	if b := f.Book(symbol); b != nil {
		return b.MidPrice()
	}
	return 0
}

// Spread returns the synthetic spread for a symbol.
func (f *Feed) Spread(symbol string) float64 {
	if b := f.Book(symbol); b != nil {
		return b.Spread()
	}
	return 0
}

// Start launches the tick loop. Stop or ctx cancellation ends it.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	f.wg.Add(1)
	go f.run(ctx)
	logs.Infof("market data feed started, interval %s", f.cfg.TickInterval)
}

// Stop ends the tick loop and joins it. Idempotent.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	f.mu.Unlock()

	close(f.stop)
	f.wg.Wait()
	logs.Info("market data feed stopped")
}

func (f *Feed) run(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-ticker.C:
			f.tick()
		}
	}
}

// tick advances every symbol once. Exercised directly by tests.
func (f *Feed) tick() {
	for _, symbol := range f.Symbols() {
		b := f.Book(symbol)
		if b == nil {
			continue
		}
		f.advance(b)
		if f.onPrice != nil {
			f.onPrice(symbol, b.BestBid(), b.BestAsk())
		}
	}
}

func (f *Feed) advance(b *book.Book) {
	mid := b.MidPrice()
	if mid <= 0 {
		return
	}
	delta := f.rng.NormFloat64() * baseSigma * f.cfg.VolatilityMultiplier
	price := mid * (1 + delta)

	if f.rng.Float64() >= f.cfg.InjectProbability {
		return
	}

	side := schema.SideBuy
	if f.rng.Intn(2) == 1 {
		side = schema.SideSell
	}
	size := minInjectSize + f.rng.Int63n(maxInjectSize-minInjectSize+1)

	// The injected order consumes whatever it crosses, so the book stays
	// uncrossed and the top tracks the random walk.
	b.RemoveCrossing(side, price)
	id := b.AddLiquidity(side, price, size, MarketMakerID)
	b.TrimDepth(maxBookLevels)

	// The walk can sweep a side empty; the pseudo market maker always
	// replenishes it so strategies keep seeing a two-sided market.
	if b.BestAsk() == 0 {
		b.AddLiquidity(schema.SideSell, price+bootstrapAskOffset, bootstrapQty, MarketMakerID)
	}
	if b.BestBid() == 0 {
		b.AddLiquidity(schema.SideBuy, price-bootstrapAskOffset, bootstrapQty, MarketMakerID)
	}

	if f.onOrder != nil {
		f.onOrder(schema.Order{
			ID:       id,
			Symbol:   b.Symbol(),
			Side:     side,
			Type:     schema.OrderTypeLimit,
			Price:    price,
			Quantity: size,
			TraderID: MarketMakerID,
		})
	}
}
