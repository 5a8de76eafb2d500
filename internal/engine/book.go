package engine

import (
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/google/btree"
)

// OrderBookEntry represents a single order resting on the book.
type OrderBookEntry struct {
	Price int64
	Seq   uint64 // arrival order within the day, starting at 1
	Order *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64 `json:"price"`
	TotalQuantity int64 `json:"total_quantity"`
	OrderCount    int   `json:"order_count"`
}

// bidLess defines ordering for the bid side: price descending, then
// arrival ascending.
func bidLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Seq < b.Seq
}

// askLess defines ordering for the ask side: price ascending, then
// arrival ascending.
func askLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Seq < b.Seq
}

// OrderBook holds one instrument's unmatched orders for the current day.
// Within a price both sides keep insertion order, which is what exact-price
// matching walks.
type OrderBook struct {
	symbol string
	mu     sync.RWMutex
	bids   *btree.BTreeG[OrderBookEntry]
	asks   *btree.BTreeG[OrderBookEntry]
	index  map[string]OrderBookEntry // order_id → entry
	seq    uint64
}

const degree = 32

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   btree.NewG[OrderBookEntry](degree, bidLess),
		asks:   btree.NewG[OrderBookEntry](degree, askLess),
		index:  make(map[string]OrderBookEntry),
	}
}

// RLock acquires the read lock on the order book.
func (ob *OrderBook) RLock() {
	ob.mu.RLock()
}

// RUnlock releases the read lock on the order book.
func (ob *OrderBook) RUnlock() {
	ob.mu.RUnlock()
}

// Insert rests an order on its side of the book behind every order already
// resting at the same price.
func (ob *OrderBook) Insert(order *domain.Order) OrderBookEntry {
	ob.seq++
	entry := OrderBookEntry{Price: order.Price, Seq: ob.seq, Order: order}
	ob.side(order.Side).ReplaceOrInsert(entry)
	ob.index[order.OrderID] = entry
	return entry
}

// Remove deletes an order from the book by order ID.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	ob.side(entry.Order.Side).Delete(entry)
}

// FirstAt returns the earliest order resting on side at exactly price.
func (ob *OrderBook) FirstAt(side domain.OrderSide, price int64) (OrderBookEntry, bool) {
	var found OrderBookEntry
	var ok bool
	// Seq 0 sorts before every real entry at this price on both sides.
	ob.side(side).AscendGreaterOrEqual(OrderBookEntry{Price: price}, func(e OrderBookEntry) bool {
		if e.Price == price {
			found, ok = e, true
		}
		return false
	})
	return found, ok
}

// Reset empties both sides for a new trading day.
func (ob *OrderBook) Reset() {
	ob.bids.Clear(false)
	ob.asks.Clear(false)
	ob.index = make(map[string]OrderBookEntry)
	ob.seq = 0
}

func (ob *OrderBook) side(s domain.OrderSide) *btree.BTreeG[OrderBookEntry] {
	if s == domain.OrderSideBid {
		return ob.bids
	}
	return ob.asks
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price == entry.Price {
			levels[len(levels)-1].TotalQuantity += entry.Order.RemainingQuantity
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// WalkAsks iterates asks in order (lowest price first). The callback
// returns true to continue, false to stop.
func (ob *OrderBook) WalkAsks(fn func(OrderBookEntry) bool) {
	ob.asks.Ascend(fn)
}

// WalkBids iterates bids in order (highest price first). The callback
// returns true to continue, false to stop.
func (ob *OrderBook) WalkBids(fn func(OrderBookEntry) bool) {
	ob.bids.Ascend(fn)
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// BookDepth is a read-only view of both sides of a book.
type BookDepth struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// Depth returns up to n levels per side under the read lock.
func (ob *OrderBook) Depth(n int) BookDepth {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return BookDepth{
		Symbol: ob.symbol,
		Bids:   ob.TopBids(n),
		Asks:   ob.TopAsks(n),
	}
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}

// ResetAll empties every book. Called at the start of each day.
func (bm *BookManager) ResetAll() {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	for _, book := range bm.books {
		book.mu.Lock()
		book.Reset()
		book.mu.Unlock()
	}
}
