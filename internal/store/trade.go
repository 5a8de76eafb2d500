package store

import (
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// TradeStore is a thread-safe in-memory store for trade records,
// keyed by symbol. Trades are append-only and chronological.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string][]domain.TradeRecord // symbol → trades (chronological)
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string][]domain.TradeRecord),
	}
}

// Append adds a trade to its symbol's chronological list.
func (s *TradeStore) Append(t domain.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[t.Symbol] = append(s.trades[t.Symbol], t)
}

// GetBySymbol returns all trades for a symbol in chronological order.
// Returns an empty slice if no trades exist for the symbol.
func (s *TradeStore) GetBySymbol(symbol string) []domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to avoid callers mutating the internal slice.
	result := make([]domain.TradeRecord, len(s.trades[symbol]))
	copy(result, s.trades[symbol])
	return result
}

// GetBySymbolAndDay returns the trades of one symbol on one day.
func (s *TradeStore) GetBySymbolAndDay(symbol string, day int) []domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.TradeRecord{}
	for _, t := range s.trades[symbol] {
		if t.Day == day {
			result = append(result, t)
		}
	}
	return result
}

// MemoryRecorder keeps every record of a run in memory. It backs the
// observer API.
type MemoryRecorder struct {
	Trades *TradeStore

	mu        sync.RWMutex
	stocks    []domain.StockSnapshot
	sessions  []domain.SessionSnapshot
	decisions []domain.DailyDecision
	forum     []domain.ForumPost
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{Trades: NewTradeStore()}
}

// RecordTrade appends t to the trade store.
func (r *MemoryRecorder) RecordTrade(t domain.TradeRecord) error {
	r.Trades.Append(t)
	return nil
}

// RecordStockSnapshot keeps the session close prices.
func (r *MemoryRecorder) RecordStockSnapshot(s domain.StockSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stocks = append(r.stocks, s)
	return nil
}

// RecordSessionSnapshot keeps a participant's turn snapshot.
func (r *MemoryRecorder) RecordSessionSnapshot(s domain.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

// RecordDailyDecision keeps a participant's daily decision.
func (r *MemoryRecorder) RecordDailyDecision(d domain.DailyDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return nil
}

// RecordForumPost keeps a forum post.
func (r *MemoryRecorder) RecordForumPost(p domain.ForumPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forum = append(r.forum, p)
	return nil
}

// StockSnapshots returns every stock snapshot in recording order.
func (r *MemoryRecorder) StockSnapshots() []domain.StockSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.StockSnapshot(nil), r.stocks...)
}

// SessionSnapshots returns the snapshots taken for one participant.
func (r *MemoryRecorder) SessionSnapshots(participantID int) []domain.SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.SessionSnapshot{}
	for _, s := range r.sessions {
		if s.ParticipantID == participantID {
			out = append(out, s)
		}
	}
	return out
}

// DailyDecisions returns the decisions recorded for one participant.
func (r *MemoryRecorder) DailyDecisions(participantID int) []domain.DailyDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.DailyDecision{}
	for _, d := range r.decisions {
		if d.ParticipantID == participantID {
			out = append(out, d)
		}
	}
	return out
}

// ForumPosts returns the posts made on day.
func (r *MemoryRecorder) ForumPosts(day int) []domain.ForumPost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.ForumPost{}
	for _, p := range r.forum {
		if p.Day == day {
			out = append(out, p)
		}
	}
	return out
}
