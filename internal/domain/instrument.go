package domain

import "sync"

// PricePoint is an instrument's price after a session closed.
type PricePoint struct {
	Day     int   `json:"day"`
	Session int   `json:"session"`
	Price   int64 `json:"price"`
	Volume  int64 `json:"volume"`
}

// Quote pairs a symbol with its current price.
type Quote struct {
	Symbol string `json:"symbol"`
	Price  int64  `json:"price"`
}

// Instrument is a traded stock: its current price, the fills of the running
// session and the price history. Price only moves in RecomputePrice, which
// the controller calls once per session.
type Instrument struct {
	Symbol string

	mu         sync.RWMutex
	price      int64
	offerPrice int64
	unissued   int64
	tape       []Fill
	history    []PricePoint
}

// NewInstrument creates an instrument at the given opening price. issuance
// is the volume still to be sold by the issuer at the opening price.
func NewInstrument(symbol string, price, issuance int64) *Instrument {
	return &Instrument{
		Symbol:     symbol,
		price:      price,
		offerPrice: price,
		unissued:   issuance,
	}
}

// Price returns the price in effect for the current session.
func (i *Instrument) Price() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.price
}

// RecordFill appends a fill to the session tape.
func (i *Instrument) RecordFill(price, quantity int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tape = append(i.tape, Fill{Price: price, Quantity: quantity})
}

// RecomputePrice closes the session: the new price is the volume-weighted
// average of the tape, or the previous price when nothing traded. The tape
// is cleared and the result appended to the history.
func (i *Instrument) RecomputePrice(day, session int) int64 {
	i.mu.Lock()
	defer i.mu.Unlock()

	var sumPriceQty, sumQty int64
	for _, f := range i.tape {
		sumPriceQty += f.Price * f.Quantity
		sumQty += f.Quantity
	}
	if sumQty > 0 {
		if vwap := sumPriceQty / sumQty; vwap > 0 {
			i.price = vwap
		}
	}
	i.tape = i.tape[:0]
	i.history = append(i.history, PricePoint{
		Day:     day,
		Session: session,
		Price:   i.price,
		Volume:  sumQty,
	})
	return i.price
}

// Tape returns a copy of the running session's fills.
func (i *Instrument) Tape() []Fill {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Fill, len(i.tape))
	copy(out, i.tape)
	return out
}

// History returns a copy of the session close prices so far.
func (i *Instrument) History() []PricePoint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]PricePoint, len(i.history))
	copy(out, i.history)
	return out
}

// OfferPrice is the price primary issuance is sold at.
func (i *Instrument) OfferPrice() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.offerPrice
}

// Unissued returns the volume the issuer has not sold yet.
func (i *Instrument) Unissued() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.unissued
}

// Issue records that quantity shares were sold by the issuer.
func (i *Instrument) Issue(quantity int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.unissued -= quantity
	if i.unissued < 0 {
		i.unissued = 0
	}
}

// InstrumentRegistry keeps the instruments of a run in registration order.
// Safe for concurrent use.
type InstrumentRegistry struct {
	mu          sync.RWMutex
	order       []*Instrument
	instruments map[string]*Instrument
}

// NewInstrumentRegistry creates an empty InstrumentRegistry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		instruments: make(map[string]*Instrument),
	}
}

// Register adds an instrument. Registering a symbol twice keeps the first.
func (r *InstrumentRegistry) Register(inst *Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[inst.Symbol]; ok {
		return
	}
	r.instruments[inst.Symbol] = inst
	r.order = append(r.order, inst)
}

// Get returns the instrument for symbol or ErrInstrumentNotFound.
func (r *InstrumentRegistry) Get(symbol string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[symbol]
	if !ok {
		return nil, ErrInstrumentNotFound
	}
	return inst, nil
}

// Exists returns true if the symbol has been registered.
func (r *InstrumentRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instruments[symbol]
	return ok
}

// All returns the instruments in registration order.
func (r *InstrumentRegistry) All() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instrument, len(r.order))
	copy(out, r.order)
	return out
}

// Symbols returns the registered symbols in registration order.
func (r *InstrumentRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	for i, inst := range r.order {
		out[i] = inst.Symbol
	}
	return out
}

// Quotes returns the current price of every instrument in registration order.
func (r *InstrumentRegistry) Quotes() []Quote {
	all := r.All()
	out := make([]Quote, len(all))
	for i, inst := range all {
		out[i] = Quote{Symbol: inst.Symbol, Price: inst.Price()}
	}
	return out
}
