package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/schema"
)

var (
	ErrStopped       = errors.New("matching engine stopped")
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrInvalidOrder  = errors.New("invalid order")
)

// ExecutionFunc receives each execution as it is emitted.
type ExecutionFunc func(schema.Execution)

// OrderStatusFunc receives order lifecycle transitions: acceptance, full
// fill, cancel and market-order residual discard.
type OrderStatusFunc func(schema.Order)

// Stats are the engine counters. They advance only on successful operations.
type Stats struct {
	OrdersSubmitted uint64
	Executions      uint64
	NotionalVolume  float64
}

// tracked is the engine's view of an accepted, still-live order. It is
// authoritative for ownership checks once the order has left the intake
// queue and rests in a book.
type tracked struct {
	symbol string
	trader string
	queued bool
}

type opKind uint8

const (
	opSubmit opKind = iota
	opCancel
	opModify
)

// item is one entry on the intake queue. Submissions carry an order;
// cancel/modify of already-resting orders ride the same queue so that every
// book mutation happens on the single matching worker, in intake order.
type item struct {
	op    opKind
	order *schema.Order
	id    uint64
	price float64
	qty   int64
}

// Engine matches orders for a set of symbols under continuous double
// auction semantics. Submissions land on a single FIFO intake queue drained
// by one worker goroutine; that strict ordering is the engine's primary
// correctness guarantee. Trades print at the resting (maker) order's price.
type Engine struct {
	mu      sync.Mutex // guards queue, orders, books map, stopped
	cond    *sync.Cond
	queue   []*item
	books   map[string]*book.Book
	orders  map[uint64]*tracked
	stopped bool

	nextOrderID atomic.Uint64
	nextExecID  atomic.Uint64

	onExecution ExecutionFunc
	onStatus    OrderStatusFunc

	statsMu sync.Mutex
	stats   Stats

	wg       sync.WaitGroup
	nowNanos func() int64
}

// NewEngine creates an engine with no symbols registered.
func NewEngine() *Engine {
	e := &Engine{
		books:    make(map[string]*book.Book),
		orders:   make(map[uint64]*tracked),
		nowNanos: func() int64 { return time.Now().UnixNano() },
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// SetExecutionCallback registers the execution sink. Set once before Start.
func (e *Engine) SetExecutionCallback(fn ExecutionFunc) { e.onExecution = fn }

// SetOrderStatusCallback registers the order status sink. Set once before Start.
func (e *Engine) SetOrderStatusCallback(fn OrderStatusFunc) { e.onStatus = fn }

// AddSymbol registers a symbol, creating its book. Idempotent.
func (e *Engine) AddSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; !ok {
		e.books[symbol] = book.New(symbol)
	}
}

// Book returns the order book for a symbol, nil when unregistered.
func (e *Engine) Book(symbol string) *book.Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.books[symbol]
}

// Symbols returns the registered symbols.
func (e *Engine) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

// Start launches the matching worker. The worker drains the intake queue in
// strict FIFO order until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.run()
	go func() {
		<-ctx.Done()
		e.Stop()
	}()
	logs.Info("matching engine started")
}

// Stop wakes the worker, lets it drain the queue and joins it. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
	logs.Info("matching engine stopped")
}

// Submit validates an order, assigns its id and enqueues it for the
// matching worker. Returns id 0 with an error when validation fails; no
// callback fires for rejected orders.
func (e *Engine) Submit(o schema.Order) (uint64, error) {
	if err := e.validate(o); err != nil {
		return 0, err
	}

	o.ID = e.nextOrderID.Add(1)
	o.SubmitNs = e.nowNanos()
	o.Filled = 0
	o.Status = schema.OrderStatusPending

	cp := o
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return 0, ErrStopped
	}
	e.queue = append(e.queue, &item{op: opSubmit, order: &cp})
	e.orders[o.ID] = &tracked{symbol: o.Symbol, trader: o.TraderID, queued: true}
	e.cond.Signal()
	e.mu.Unlock()

	e.statsMu.Lock()
	e.stats.OrdersSubmitted++
	e.statsMu.Unlock()

	e.notifyStatus(o)
	return o.ID, nil
}

// Cancel removes an order owned by trader. An order still sitting on the
// intake queue is spliced out in place; a resting order is cancelled on the
// matching worker, in intake order. Returns false on unknown id or
// ownership mismatch, with no state change.
func (e *Engine) Cancel(id uint64, trader string) bool {
	e.mu.Lock()
	t, ok := e.orders[id]
	if !ok || t.trader != trader || e.stopped {
		e.mu.Unlock()
		return false
	}
	delete(e.orders, id)
	if t.queued {
		removed := e.spliceQueued(id)
		e.mu.Unlock()
		if removed != nil {
			removed.Status = schema.OrderStatusCancelled
			e.notifyStatus(*removed)
		}
		return true
	}
	e.queue = append(e.queue, &item{op: opCancel, id: id})
	e.cond.Signal()
	e.mu.Unlock()
	return true
}

// Modify re-prices an order owned by trader. A queued order is updated in
// place keeping its queue slot; a resting order re-queues in its book and
// forfeits time priority, applied on the matching worker in intake order.
// Returns false on unknown id, ownership mismatch or invalid parameters.
func (e *Engine) Modify(id uint64, newPrice float64, newQty int64, trader string) bool {
	if newQty <= 0 || newPrice <= 0 {
		return false
	}
	e.mu.Lock()
	t, ok := e.orders[id]
	if !ok || t.trader != trader || e.stopped {
		e.mu.Unlock()
		return false
	}
	if t.queued {
		for _, q := range e.queue {
			if q.op == opSubmit && q.order.ID == id {
				q.order.Price = newPrice
				q.order.Quantity = newQty
				break
			}
		}
		e.mu.Unlock()
		return true
	}
	e.queue = append(e.queue, &item{op: opModify, id: id, price: newPrice, qty: newQty})
	e.cond.Signal()
	e.mu.Unlock()
	return true
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *Engine) validate(o schema.Order) error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if e.Book(o.Symbol) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, o.Symbol)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if o.Side != schema.SideBuy && o.Side != schema.SideSell {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, o.Side)
	}
	switch o.Type {
	case schema.OrderTypeMarket:
	case schema.OrderTypeLimit, schema.OrderTypeStop, schema.OrderTypeStopLimit:
		if o.Price <= 0 {
			return fmt.Errorf("%w: price must be positive for %s orders", ErrInvalidOrder, o.Type)
		}
	default:
		return fmt.Errorf("%w: type %d", ErrInvalidOrder, o.Type)
	}
	return nil
}

// spliceQueued removes the queued submission with the given id, preserving
// the relative order of everything else. Caller holds e.mu.
func (e *Engine) spliceQueued(id uint64) *schema.Order {
	for i, q := range e.queue {
		if q.op == opSubmit && q.order.ID == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return q.order
		}
	}
	return nil
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if len(e.queue) == 0 && e.stopped {
			e.mu.Unlock()
			return
		}
		it := e.queue[0]
		e.queue = e.queue[1:]
		var b *book.Book
		if it.op == opSubmit {
			if t, ok := e.orders[it.order.ID]; ok {
				t.queued = false
			}
			b = e.books[it.order.Symbol]
		}
		e.mu.Unlock()

		switch it.op {
		case opSubmit:
			e.process(b, it.order)
		case opCancel:
			e.applyCancel(it.id)
		case opModify:
			e.applyModify(it.id, it.price, it.qty)
		}
	}
}

func (e *Engine) process(b *book.Book, o *schema.Order) {
	if o.Type == schema.OrderTypeMarket {
		e.matchMarket(b, o)
		return
	}
	b.Add(*o)
	e.matchBook(b)
}

// applyCancel removes a resting order on the worker. The order may already
// have filled since the cancel was accepted; that is a silent no-op, the
// same idempotence the book itself guarantees.
func (e *Engine) applyCancel(id uint64) {
	for _, b := range e.allBooks() {
		if removed, ok := b.Cancel(id); ok {
			e.notifyStatus(removed)
			return
		}
	}
}

func (e *Engine) applyModify(id uint64, price float64, qty int64) {
	for _, b := range e.allBooks() {
		if b.Modify(id, price, qty) {
			// The new price may cross; resolve immediately.
			e.matchBook(b)
			return
		}
	}
}

func (e *Engine) allBooks() []*book.Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*book.Book, 0, len(e.books))
	for _, b := range e.books {
		out = append(out, b)
	}
	return out
}

// matchBook runs the continuous double auction pass: while the book is
// crossed, trade the front orders of the two best levels at the resting
// (earlier-timestamped) order's price. Running it on an uncrossed book
// changes nothing.
func (e *Engine) matchBook(b *book.Book) {
	for {
		bid, okBid := b.Front(schema.SideBuy)
		ask, okAsk := b.Front(schema.SideSell)
		if !okBid || !okAsk || bid.Price < ask.Price {
			return
		}
		qty := min(bid.Remaining(), ask.Remaining())
		maker, taker := ask, bid
		if bid.SubmitNs < ask.SubmitNs || (bid.SubmitNs == ask.SubmitNs && bid.ID < ask.ID) {
			maker, taker = bid, ask
		}
		price := maker.Price

		bidAfter, _ := b.ReduceFront(schema.SideBuy, qty)
		askAfter, _ := b.ReduceFront(schema.SideSell, qty)

		e.emitTrade(b, taker, maker, price, qty)
		e.retire(bidAfter)
		e.retire(askAfter)
	}
}

// matchMarket walks the opposite side from the best price until the market
// order is exhausted or the side empties. The unfilled residual of a market
// order is discarded rather than booked.
func (e *Engine) matchMarket(b *book.Book, o *schema.Order) {
	opp := o.Side.Opposite()
	for o.Remaining() > 0 {
		front, ok := b.Front(opp)
		if !ok {
			break
		}
		qty := min(o.Remaining(), front.Remaining())
		price := front.Price

		after, _ := b.ReduceFront(opp, qty)
		o.Filled += qty
		if o.Remaining() == 0 {
			o.Status = schema.OrderStatusFilled
		} else {
			o.Status = schema.OrderStatusPartial
		}

		e.emitTrade(b, *o, after, price, qty)
		e.retire(after)
	}

	if o.Remaining() > 0 {
		if o.Filled == 0 {
			o.Status = schema.OrderStatusCancelled
		}
		logs.Debugf("market order %d on %s: residual %d discarded", o.ID, o.Symbol, o.Remaining())
	}
	e.mu.Lock()
	delete(e.orders, o.ID)
	e.mu.Unlock()
	e.notifyStatus(*o)
}

// emitTrade records one match: an execution for the aggressor and one for
// the maker, drawing both ids from the shared monotonic counter.
func (e *Engine) emitTrade(b *book.Book, taker, maker schema.Order, price float64, qty int64) {
	ts := e.nowNanos()
	b.SetLastPrice(price)

	e.statsMu.Lock()
	e.stats.Executions += 2
	e.stats.NotionalVolume += price * float64(qty)
	e.statsMu.Unlock()

	for _, leg := range []struct {
		o     schema.Order
		taker bool
	}{{taker, true}, {maker, false}} {
		exec := schema.Execution{
			ID:          e.nextExecID.Add(1),
			OrderID:     leg.o.ID,
			Symbol:      leg.o.Symbol,
			Side:        leg.o.Side,
			Price:       price,
			Quantity:    qty,
			Taker:       leg.taker,
			TimestampNs: ts,
			TraderID:    leg.o.TraderID,
		}
		if e.onExecution != nil {
			e.onExecution(exec)
		}
	}
}

// retire drops fully filled orders from the live table and reports them.
func (e *Engine) retire(o schema.Order) {
	if o.ID == 0 || o.Status != schema.OrderStatusFilled {
		return
	}
	e.mu.Lock()
	delete(e.orders, o.ID)
	e.mu.Unlock()
	e.notifyStatus(o)
}

func (e *Engine) notifyStatus(o schema.Order) {
	if o.ID == 0 {
		return
	}
	if e.onStatus != nil {
		e.onStatus(o)
	}
}
