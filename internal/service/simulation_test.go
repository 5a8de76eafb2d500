package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/decision"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/store"
)

// turnKey identifies one participant's turn.
type turnKey struct {
	id, day, session int
}

// scriptedDecider answers from fixed tables and does nothing otherwise.
type scriptedDecider struct {
	intents  map[turnKey]domain.Intent
	loans    map[int]domain.LoanDecision // by participant id, day 1 only
	messages map[int]string

	mu          sync.Mutex
	forumSeen   map[int][]domain.ForumPost // by participant id, at loan time
	estimateErr error
}

func newScriptedDecider() *scriptedDecider {
	return &scriptedDecider{
		intents:   make(map[turnKey]domain.Intent),
		loans:     make(map[int]domain.LoanDecision),
		messages:  make(map[int]string),
		forumSeen: make(map[int][]domain.ForumPost),
	}
}

func (d *scriptedDecider) LoanDecision(_ context.Context, st decision.State) (domain.LoanDecision, error) {
	d.mu.Lock()
	d.forumSeen[st.ParticipantID] = st.Forum
	d.mu.Unlock()
	if l, ok := d.loans[st.ParticipantID]; ok && st.Day == 1 {
		return l, nil
	}
	return domain.NoLoan{}, nil
}

func (d *scriptedDecider) OrderIntent(_ context.Context, st decision.State) (domain.Intent, error) {
	if i, ok := d.intents[turnKey{st.ParticipantID, st.Day, st.Session}]; ok {
		return i, nil
	}
	return domain.NoAction{}, nil
}

func (d *scriptedDecider) Estimate(_ context.Context, _ decision.State) (domain.Estimate, error) {
	return domain.Estimate{Buy: map[string]bool{"A": true}}, d.estimateErr
}

func (d *scriptedDecider) Message(_ context.Context, st decision.State) (string, error) {
	return d.messages[st.ParticipantID], nil
}

type testMarket struct {
	sim          *Simulation
	policy       *domain.MarketPolicy
	instruments  *domain.InstrumentRegistry
	participants *store.ParticipantStore
	books        *engine.BookManager
	recorder     *store.MemoryRecorder
	decider      *scriptedDecider
}

func newTestPolicy() *domain.MarketPolicy {
	return &domain.MarketPolicy{
		LoanTerms:     []int{1, 2},
		LoanRates:     []decimal.Decimal{decimal.RequireFromString("0.12"), decimal.RequireFromString("0.24")},
		RepaymentDays: map[int]bool{},
		MaxLoanRatio:  decimal.NewFromInt(1),
	}
}

// newTestMarket wires a simulation over instruments A (100) and B (40, with
// 100 shares of primary issuance).
func newTestMarket(t *testing.T, days, sessions int) *testMarket {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	policy := newTestPolicy()
	instruments := domain.NewInstrumentRegistry()
	instruments.Register(domain.NewInstrument("A", 100, 0))
	instruments.Register(domain.NewInstrument("B", 40, 100))
	participants := store.NewParticipantStore()
	books := engine.NewBookManager()
	matcher := engine.NewMatcher(books, participants, instruments, policy, logger)
	recorder := store.NewMemoryRecorder()
	decider := newScriptedDecider()

	sim := NewSimulation(
		SimulationParams{Days: days, Sessions: sessions, Concurrency: 4, BookDepth: 5, HistorySize: 10},
		policy, instruments, participants, matcher, decider, recorder,
		rand.New(rand.NewPCG(1, 2)), logger,
	)
	return &testMarket{
		sim:          sim,
		policy:       policy,
		instruments:  instruments,
		participants: participants,
		books:        books,
		recorder:     recorder,
		decider:      decider,
	}
}

func (m *testMarket) add(t *testing.T, id int, cash int64, holdings map[string]int64) *domain.Participant {
	t.Helper()
	p := domain.NewParticipant(id, cash, holdings)
	if err := m.participants.Create(p); err != nil {
		t.Fatalf("create participant %d: %v", id, err)
	}
	return p
}

func TestSimulation_Run_NoParticipants(t *testing.T) {
	m := newTestMarket(t, 1, 1)

	err := m.sim.Run(context.Background())
	if !errors.Is(err, domain.ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
}

func TestSimulation_Run_SingleTrade(t *testing.T) {
	m := newTestMarket(t, 1, 1)
	p1 := m.add(t, 1, 1000, nil)
	p2 := m.add(t, 2, 0, map[string]int64{"A": 5})
	m.decider.intents[turnKey{1, 1, 1}] = domain.BuyOrder{Symbol: "A", Quantity: 5, Price: 100}
	m.decider.intents[turnKey{2, 1, 1}] = domain.SellOrder{Symbol: "A", Quantity: 5, Price: 100}

	if err := m.sim.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trades := m.recorder.Trades.GetBySymbol("A")
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Day != 1 || tr.Session != 1 || tr.Quantity != 5 || tr.Price != 100 {
		t.Errorf("unexpected trade %+v", tr)
	}
	if tr.Buyer != domain.ParticipantParty(1) || tr.Seller != domain.ParticipantParty(2) {
		t.Errorf("expected buyer 1 and seller 2, got %s and %s", tr.Buyer, tr.Seller)
	}

	if p1.Cash() != 500 || p1.Holding("A") != 5 {
		t.Errorf("participant 1: cash %d, A %d", p1.Cash(), p1.Holding("A"))
	}
	if p2.Cash() != 500 || p2.Holding("A") != 0 {
		t.Errorf("participant 2: cash %d, A %d", p2.Cash(), p2.Holding("A"))
	}

	book := m.books.GetOrCreate("A")
	if book.BidCount() != 0 || book.AskCount() != 0 {
		t.Errorf("expected empty book, got %d bids and %d asks", book.BidCount(), book.AskCount())
	}

	snaps := m.recorder.StockSnapshots()
	if len(snaps) != 1 || snaps[0].Prices["A"] != 100 || snaps[0].Prices["B"] != 40 {
		t.Errorf("unexpected stock snapshots %+v", snaps)
	}
	if st := m.sim.Status(); st.Phase != PhaseFinished || st.ActiveParticipants != 2 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSimulation_Run_RecordsEverySession(t *testing.T) {
	m := newTestMarket(t, 2, 3)
	m.add(t, 1, 1000, nil)
	m.add(t, 2, 1000, nil)

	if err := m.sim.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(m.recorder.StockSnapshots()); got != 6 {
		t.Errorf("expected 6 stock snapshots, got %d", got)
	}
	for _, id := range []int{1, 2} {
		snaps := m.recorder.SessionSnapshots(id)
		if len(snaps) != 6 {
			t.Errorf("participant %d: expected 6 session snapshots, got %d", id, len(snaps))
		}
		for _, s := range snaps {
			if s.Action != domain.ActionNone {
				t.Errorf("participant %d: expected no action, got %q", id, s.Action)
			}
		}
		decisions := m.recorder.DailyDecisions(id)
		if len(decisions) != 2 {
			t.Fatalf("participant %d: expected 2 daily decisions, got %d", id, len(decisions))
		}
		if !decisions[0].Estimate.Buy["A"] {
			t.Errorf("participant %d: estimate not recorded", id)
		}
	}
	a, _ := m.instruments.Get("A")
	if got := len(a.History()); got != 6 {
		t.Errorf("expected 6 history points, got %d", got)
	}
}

func TestSimulation_Run_PartialFillCarriesOver(t *testing.T) {
	m := newTestMarket(t, 1, 2)
	p1 := m.add(t, 1, 10000, nil)
	m.add(t, 2, 0, map[string]int64{"A": 3})
	m.add(t, 3, 0, map[string]int64{"A": 4})
	m.decider.intents[turnKey{1, 1, 1}] = domain.BuyOrder{Symbol: "A", Quantity: 10, Price: 100}
	m.decider.intents[turnKey{2, 1, 2}] = domain.SellOrder{Symbol: "A", Quantity: 3, Price: 100}
	m.decider.intents[turnKey{3, 1, 2}] = domain.SellOrder{Symbol: "A", Quantity: 4, Price: 100}

	if err := m.sim.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p1.Holding("A") != 7 {
		t.Errorf("expected 7 A, got %d", p1.Holding("A"))
	}
	book := m.books.GetOrCreate("A")
	depth := book.Depth(1)
	if len(depth.Bids) != 1 || depth.Bids[0].TotalQuantity != 3 {
		t.Errorf("expected 3 shares left on the bid, got %+v", depth.Bids)
	}
}

func TestSimulation_Run_LoanDecision(t *testing.T) {
	m := newTestMarket(t, 1, 1)
	p1 := m.add(t, 1, 1000, nil)
	m.decider.loans[1] = domain.LoanRequest{Type: 1, Amount: 400}

	if err := m.sim.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p1.Cash() != 1400 || p1.OutstandingLoans() != 400 {
		t.Errorf("expected cash 1400 and 400 owed, got %d and %d", p1.Cash(), p1.OutstandingLoans())
	}
	decisions := m.recorder.DailyDecisions(1)
	if len(decisions) != 1 {
		t.Fatalf("expected 1 daily decision, got %d", len(decisions))
	}
	d := decisions[0]
	if !d.TookLoan || d.LoanType != 1 || d.LoanAmount != 400 {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestSimulation_Run_LoanOverLimitRejected(t *testing.T) {
	m := newTestMarket(t, 1, 1)
	p1 := m.add(t, 1, 1000, nil)
	m.decider.loans[1] = domain.LoanRequest{Type: 0, Amount: 5000}

	if err := m.sim.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p1.Cash() != 1000 {
		t.Errorf("expected untouched cash, got %d", p1.Cash())
	}
	if d := m.recorder.DailyDecisions(1); len(d) != 1 || d[0].TookLoan {
		t.Errorf("unexpected decisions %+v", d)
	}
}

func TestSimulation_RunDay_RepaysAndChargesInterest(t *testing.T) {
	m := newTestMarket(t, 3, 1)
	m.policy.RepaymentDays = map[int]bool{2: true}
	p1 := m.add(t, 1, 1000, nil)
	if _, err := p1.ApplyLoan(0, 1, 500, m.policy, m.instruments.Quotes()); err != nil {
		t.Fatalf("apply loan: %v", err)
	}
	if _, err := p1.ApplyLoan(0, 0, 100, m.policy, m.instruments.Quotes()); err != nil {
		t.Fatalf("apply loan: %v", err)
	}

	ctx := context.Background()
	if err := m.sim.RunDay(ctx, 1); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	// day 1: the type 0 loan is repaid
	if p1.Cash() != 1500 || p1.OutstandingLoans() != 500 {
		t.Fatalf("after day 1: cash %d, owed %d", p1.Cash(), p1.OutstandingLoans())
	}

	if err := m.sim.RunDay(ctx, 2); err != nil {
		t.Fatalf("day 2: %v", err)
	}
	// day 2: principal 500 repaid before interest, so none is charged
	if p1.Cash() != 1000 || p1.OutstandingLoans() != 0 {
		t.Fatalf("after day 2: cash %d, owed %d", p1.Cash(), p1.OutstandingLoans())
	}
}

func TestSimulation_RunDay_InterestOnRepaymentDay(t *testing.T) {
	m := newTestMarket(t, 1, 1)
	m.policy.LoanTerms = []int{30, 60}
	m.policy.RepaymentDays = map[int]bool{1: true}
	p1 := m.add(t, 1, 10000, nil)
	if _, err := p1.ApplyLoan(0, 0, 10000, m.policy, m.instruments.Quotes()); err != nil {
		t.Fatalf("apply loan: %v", err)
	}

	if err := m.sim.RunDay(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10000 × 0.12 / 12
	if p1.Cash() != 19900 {
		t.Errorf("expected cash 19900, got %d", p1.Cash())
	}
}

func TestSimulation_RunDay_Bankruptcy(t *testing.T) {
	tests := []struct {
		name      string
		price     int64 // price of A during liquidation
		wantQuit  bool
		wantCash  int64
		wantHeldA int64
	}{
		{name: "liquidation clears debt", price: 100, wantQuit: false, wantCash: 0, wantHeldA: 1},
		{name: "liquidation falls short", price: 10, wantQuit: true, wantCash: -800, wantHeldA: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMarket(t, 1, 1)
			m.policy.MaxLoanRatio = decimal.NewFromInt(10)
			m.instruments = domain.NewInstrumentRegistry()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			m.instruments.Register(domain.NewInstrument("A", tt.price, 0))
			matcher := engine.NewMatcher(m.books, m.participants, m.instruments, m.policy, logger)
			m.sim = NewSimulation(SimulationParams{Days: 1, Sessions: 1}, m.policy, m.instruments,
				m.participants, matcher, m.decider, m.recorder, rand.New(rand.NewPCG(1, 2)), logger)

			p1 := m.add(t, 1, 100, map[string]int64{"A": 10})
			m.add(t, 2, 1000, nil)
			if _, err := p1.ApplyLoan(0, 0, 1000, m.policy, m.instruments.Quotes()); err != nil {
				t.Fatalf("apply loan: %v", err)
			}
			// spend the loan so repaying it drives cash to -900
			if err := p1.SettleBuy("C", 1, 1000, 0); err != nil {
				t.Fatalf("settle buy: %v", err)
			}

			if err := m.sim.RunDay(context.Background(), 1); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if p1.Quit() != tt.wantQuit {
				t.Errorf("expected quit=%v, got %v", tt.wantQuit, p1.Quit())
			}
			if p1.Cash() != tt.wantCash || p1.Holding("A") != tt.wantHeldA {
				t.Errorf("expected cash %d and %d A, got %d and %d",
					tt.wantCash, tt.wantHeldA, p1.Cash(), p1.Holding("A"))
			}
			_, err := m.participants.GetActive(1)
			if tt.wantQuit && !errors.Is(err, domain.ErrParticipantInactive) {
				t.Errorf("expected ErrParticipantInactive, got %v", err)
			}
			if !tt.wantQuit && err != nil {
				t.Errorf("expected participant to stay active, got %v", err)
			}
			if tt.wantQuit && len(m.recorder.SessionSnapshots(1)) != 0 {
				t.Error("retired participant still took a turn")
			}
		})
	}
}

func TestSimulation_RunDay_EventChangesRatesAndBroadcasts(t *testing.T) {
	m := newTestMarket(t, 1, 1)
	m.policy.Events = []domain.MarketEvent{{
		Day:     1,
		Rates:   []decimal.Decimal{decimal.RequireFromString("0.06"), decimal.RequireFromString("0.09")},
		Message: "rates cut",
	}}
	m.add(t, 1, 1000, nil)
	m.decider.messages[1] = "holding"

	if err := m.sim.RunDay(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !m.policy.LoanRates[0].Equal(decimal.RequireFromString("0.06")) {
		t.Errorf("expected rate 0.06, got %s", m.policy.LoanRates[0])
	}

	seen := m.decider.forumSeen[1]
	if len(seen) != 1 || !seen[0].Broadcast || seen[0].Message != "rates cut" {
		t.Errorf("expected the broadcast in the day's forum, got %+v", seen)
	}

	posts := m.recorder.ForumPosts(1)
	if len(posts) != 2 {
		t.Fatalf("expected 2 recorded posts, got %d", len(posts))
	}

	// tomorrow's forum holds only today's participant posts
	forum := m.sim.Forum()
	if len(forum) != 1 || forum[0].ParticipantID != 1 || forum[0].Message != "holding" {
		t.Errorf("unexpected forum %+v", forum)
	}
}

func TestSimulation_RunDay_PrimaryIssuance(t *testing.T) {
	m := newTestMarket(t, 2, 1)
	p1 := m.add(t, 1, 1000, nil)
	m.decider.intents[turnKey{1, 1, 1}] = domain.BuyOrder{Symbol: "B", Quantity: 10, Price: 40}

	ctx := context.Background()
	if err := m.sim.RunDay(ctx, 1); err != nil {
		t.Fatalf("day 1: %v", err)
	}

	if p1.Holding("B") != 10 || p1.Cash() != 600 {
		t.Errorf("expected 10 B and cash 600, got %d and %d", p1.Holding("B"), p1.Cash())
	}
	trades := m.recorder.Trades.GetBySymbol("B")
	if len(trades) != 1 || !trades[0].Seller.Issuer {
		t.Fatalf("expected one trade against the issuer, got %+v", trades)
	}
	b, _ := m.instruments.Get("B")
	if b.Unissued() != 90 {
		t.Errorf("expected 90 unissued, got %d", b.Unissued())
	}

	if err := m.sim.RunDay(ctx, 2); err != nil {
		t.Fatalf("day 2: %v", err)
	}
	depth := m.books.GetOrCreate("B").Depth(1)
	if len(depth.Asks) != 1 || depth.Asks[0].TotalQuantity != 90 || depth.Asks[0].Price != 40 {
		t.Errorf("expected 90 re-posted at 40, got %+v", depth.Asks)
	}
}

func TestSimulation_RunDay_BooksResetDaily(t *testing.T) {
	m := newTestMarket(t, 2, 1)
	m.add(t, 1, 1000, nil)
	m.decider.intents[turnKey{1, 1, 1}] = domain.BuyOrder{Symbol: "A", Quantity: 1, Price: 90}

	ctx := context.Background()
	if err := m.sim.RunDay(ctx, 1); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if got := m.books.GetOrCreate("A").BidCount(); got != 1 {
		t.Fatalf("expected resting bid, got %d", got)
	}
	if err := m.sim.RunDay(ctx, 2); err != nil {
		t.Fatalf("day 2: %v", err)
	}
	if got := m.books.GetOrCreate("A").BidCount(); got != 0 {
		t.Errorf("expected book reset, got %d bids", got)
	}
}

func TestSimulation_Run_DeciderErrorsAreNoOps(t *testing.T) {
	m := newTestMarket(t, 1, 1)
	m.add(t, 1, 1000, nil)
	m.decider.estimateErr = errors.New("unavailable")

	if err := m.sim.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := m.recorder.DailyDecisions(1); len(d) != 1 {
		t.Errorf("expected the daily decision to be recorded, got %d", len(d))
	}
}

func TestSimulation_Run_Cancelled(t *testing.T) {
	m := newTestMarket(t, 5, 3)
	m.add(t, 1, 1000, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.sim.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(m.recorder.StockSnapshots()) != 0 {
		t.Error("expected no session to run")
	}
}

// seededRun builds a populated market driven by the random decider, the way
// the binary wires one, and runs it to completion.
func seededRun(t *testing.T, seed uint64, concurrency int) *store.MemoryRecorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rng := rand.New(rand.NewPCG(seed, seed))

	policy := newTestPolicy()
	instruments := newTestRegistry()
	participants := store.NewParticipantStore()
	e := Endowment{MinProperty: 1_000_000, MaxProperty: 5_000_000}
	if err := Populate(participants, instruments, 64, e, rng); err != nil {
		t.Fatalf("populate: %v", err)
	}
	matcher := engine.NewMatcher(engine.NewBookManager(), participants, instruments, policy, logger)
	recorder := store.NewMemoryRecorder()

	sim := NewSimulation(
		SimulationParams{Days: 3, Sessions: 3, Concurrency: concurrency, BookDepth: 5, HistorySize: 10},
		policy, instruments, participants, matcher, decision.NewRandom(seed), recorder, rng, logger,
	)
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return recorder
}

func TestSimulation_Run_SameSeedSameRecords(t *testing.T) {
	trades := func(r *store.MemoryRecorder) []domain.TradeRecord {
		out := append(r.Trades.GetBySymbol("A"), r.Trades.GetBySymbol("B")...)
		for i := range out {
			out[i].TradeID = ""
		}
		return out
	}

	want := seededRun(t, 7, 1)
	for i := 0; i < 3; i++ {
		got := seededRun(t, 7, 8)
		for id := 1; id <= 64; id++ {
			if !reflect.DeepEqual(got.DailyDecisions(id), want.DailyDecisions(id)) {
				t.Fatalf("run %d: participant %d decisions differ", i, id)
			}
		}
		if !reflect.DeepEqual(trades(got), trades(want)) {
			t.Fatalf("run %d: trades differ", i)
		}
		if !reflect.DeepEqual(got.StockSnapshots(), want.StockSnapshots()) {
			t.Fatalf("run %d: prices differ", i)
		}
	}
}

// orderRecorder notes the order in which participants are asked to act.
type orderRecorder struct {
	*scriptedDecider
	turns map[turnKey][]int // keyed by day and session, id unused
}

func (d *orderRecorder) OrderIntent(ctx context.Context, st decision.State) (domain.Intent, error) {
	k := turnKey{day: st.Day, session: st.Session}
	d.turns[k] = append(d.turns[k], st.ParticipantID)
	return d.scriptedDecider.OrderIntent(ctx, st)
}

func TestSimulation_RunDay_TurnOrderReshuffledEverySession(t *testing.T) {
	m := newTestMarket(t, 2, 6)
	for id := 1; id <= 6; id++ {
		m.add(t, id, 1000, nil)
	}
	rec := &orderRecorder{scriptedDecider: m.decider, turns: make(map[turnKey][]int)}
	m.sim.decider = rec

	ctx := context.Background()
	if err := m.sim.RunDay(ctx, 1); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	m.participants.Retire(4)
	if err := m.sim.RunDay(ctx, 2); err != nil {
		t.Fatalf("day 2: %v", err)
	}

	rosters := map[int][]int{1: {1, 2, 3, 4, 5, 6}, 2: {1, 2, 3, 5, 6}}
	for day, roster := range rosters {
		distinct := map[string]bool{}
		for session := 1; session <= 6; session++ {
			order := rec.turns[turnKey{day: day, session: session}]
			sorted := slices.Sorted(slices.Values(order))
			if !slices.Equal(sorted, roster) {
				t.Fatalf("day %d session %d: order %v is not a permutation of %v", day, session, order, roster)
			}
			distinct[fmt.Sprint(order)] = true
		}
		if len(distinct) < 2 {
			t.Errorf("day %d: turn order never changed across sessions", day)
		}
	}
}
