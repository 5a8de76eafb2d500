package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/marketsim/internal/decision"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/store"
)

// Phase names the step of the day the simulation is in.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDayStart     Phase = "day_start"
	PhaseLoan         Phase = "loan_repayment"
	PhaseRepayment    Phase = "interest_payment"
	PhaseBankruptcy   Phase = "bankruptcy"
	PhaseEvent        Phase = "event"
	PhaseLoanDecision Phase = "loan_decision"
	PhaseSession      Phase = "session"
	PhaseEstimate     Phase = "estimate"
	PhaseForum        Phase = "forum"
	PhaseDayEnd       Phase = "day_end"
	PhaseFinished     Phase = "finished"
)

// Status is a point-in-time view of the run's progress.
type Status struct {
	RunID              string    `json:"run_id"`
	Phase              Phase     `json:"phase"`
	Day                int       `json:"day"`
	Session            int       `json:"session"`
	Days               int       `json:"days"`
	Sessions           int       `json:"sessions"`
	ActiveParticipants int       `json:"active_participants"`
	StartedAt          time.Time `json:"started_at"`
}

// SimulationParams shapes a run.
type SimulationParams struct {
	Days        int
	Sessions    int
	Concurrency int // parallel decision requests
	BookDepth   int // levels per side shown to deciders
	HistorySize int // past session prices shown to deciders
}

// Simulation is the day/session controller. It owns time, the roster, the
// instruments and the policy, and drives every participant through the
// phases of each trading day. Matching and balance changes happen strictly
// one at a time in turn order.
type Simulation struct {
	params       SimulationParams
	policy       *domain.MarketPolicy
	instruments  *domain.InstrumentRegistry
	participants *store.ParticipantStore
	books        *engine.BookManager
	matcher      *engine.Matcher
	decider      decision.Decider
	recorder     store.Recorder
	rng          *rand.Rand
	logger       *slog.Logger

	mu     sync.RWMutex
	status Status
	forum  []domain.ForumPost // read by today's decisions
}

// NewSimulation creates a controller. The rng orders the turns of every
// session.
func NewSimulation(
	params SimulationParams,
	policy *domain.MarketPolicy,
	instruments *domain.InstrumentRegistry,
	participants *store.ParticipantStore,
	matcher *engine.Matcher,
	decider decision.Decider,
	recorder store.Recorder,
	rng *rand.Rand,
	logger *slog.Logger,
) *Simulation {
	if params.Concurrency < 1 {
		params.Concurrency = 1
	}
	return &Simulation{
		params:       params,
		policy:       policy,
		instruments:  instruments,
		participants: participants,
		books:        matcher.Books(),
		matcher:      matcher,
		decider:      decider,
		recorder:     recorder,
		rng:          rng,
		logger:       logger,
		status: Status{
			RunID:    uuid.New().String(),
			Phase:    PhaseIdle,
			Days:     params.Days,
			Sessions: params.Sessions,
		},
	}
}

// Status returns the current progress.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.ActiveParticipants = s.participants.ActiveCount()
	return st
}

// Forum returns the posts today's decisions read.
func (s *Simulation) Forum() []domain.ForumPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ForumPost(nil), s.forum...)
}

func (s *Simulation) setPhase(phase Phase, day, session int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Phase = phase
	s.status.Day = day
	s.status.Session = session
}

// Run plays every configured day. It stops between sessions when ctx is
// cancelled and returns ctx.Err().
func (s *Simulation) Run(ctx context.Context) error {
	if s.participants.ActiveCount() == 0 {
		return domain.ErrNoParticipants
	}

	s.mu.Lock()
	s.status.StartedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("simulation started",
		slog.String("run_id", s.status.RunID),
		slog.Int("days", s.params.Days),
		slog.Int("sessions", s.params.Sessions),
		slog.Int("participants", s.participants.ActiveCount()),
	)

	for day := 1; day <= s.params.Days; day++ {
		if err := s.RunDay(ctx, day); err != nil {
			return err
		}
	}

	s.setPhase(PhaseFinished, s.params.Days, s.params.Sessions)
	s.logger.Info("simulation finished",
		slog.String("run_id", s.status.RunID),
		slog.Int("active_participants", s.participants.ActiveCount()),
	)
	return nil
}

// RunDay plays one trading day through all of its phases.
func (s *Simulation) RunDay(ctx context.Context, day int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("day started", slog.Int("day", day))

	s.setPhase(PhaseDayStart, day, 0)
	s.startDay(day)

	s.setPhase(PhaseLoan, day, 0)
	s.repayLoans(day)

	if s.policy.IsRepaymentDay(day) {
		s.setPhase(PhaseRepayment, day, 0)
		s.payInterest(day)
	}

	s.setPhase(PhaseBankruptcy, day, 0)
	s.resolveBankruptcies(day)

	s.setPhase(PhaseEvent, day, 0)
	s.applyEvents(day)

	if s.participants.ActiveCount() == 0 {
		s.logger.Warn("no active participants left", slog.Int("day", day))
		s.setPhase(PhaseDayEnd, day, 0)
		return nil
	}

	s.setPhase(PhaseLoanDecision, day, 0)
	decisions, err := s.loanDecisions(ctx, day)
	if err != nil {
		return err
	}

	for session := 1; session <= s.params.Sessions; session++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.setPhase(PhaseSession, day, session)
		s.runSession(ctx, day, session)
	}

	s.setPhase(PhaseEstimate, day, s.params.Sessions)
	if err := s.estimates(ctx, day, decisions); err != nil {
		return err
	}

	s.setPhase(PhaseForum, day, s.params.Sessions)
	if err := s.postForum(ctx, day); err != nil {
		return err
	}

	s.setPhase(PhaseDayEnd, day, s.params.Sessions)
	return nil
}

// startDay resets the books, re-posts unsold primary issuance and clears
// yesterday's notes.
func (s *Simulation) startDay(day int) {
	s.books.ResetAll()

	for _, inst := range s.instruments.All() {
		remaining := inst.Unissued()
		if remaining <= 0 {
			continue
		}
		order := &domain.Order{
			Owner:    domain.IssuerParty,
			Side:     domain.OrderSideAsk,
			Symbol:   inst.Symbol,
			Price:    inst.OfferPrice(),
			Quantity: remaining,
			Day:      day,
		}
		if _, err := s.matcher.Submit(order); err != nil {
			s.logger.Error("failed to post issuance",
				slog.String("symbol", inst.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, p := range s.participants.Active() {
		p.ClearNotes()
	}
}

func (s *Simulation) repayLoans(day int) {
	for _, p := range s.participants.Active() {
		for _, l := range p.RepayDueLoans(day) {
			s.logger.Info("loan repaid",
				slog.Int("participant_id", p.ID),
				slog.Int("day", day),
				slog.Int64("amount", l.Amount),
			)
		}
	}
}

func (s *Simulation) payInterest(day int) {
	for _, p := range s.participants.Active() {
		if paid := p.PayInterest(s.policy); paid > 0 {
			s.logger.Info("interest paid",
				slog.Int("participant_id", p.ID),
				slog.Int("day", day),
				slog.Int64("amount", paid),
			)
		}
	}
}

// resolveBankruptcies sweeps a snapshot of the roster, then retires the
// participants that could not cover their debt.
func (s *Simulation) resolveBankruptcies(day int) {
	quotes := s.instruments.Quotes()
	var quitters []int
	for _, p := range s.participants.Active() {
		if !p.Bankrupt() {
			continue
		}
		if p.ResolveBankruptcy(quotes) {
			quitters = append(quitters, p.ID)
		}
	}
	for _, id := range quitters {
		s.participants.Retire(id)
		s.logger.Info("participant quit",
			slog.Int("participant_id", id),
			slog.Int("day", day),
		)
	}
}

func (s *Simulation) applyEvents(day int) {
	for _, ev := range s.policy.ApplyEvents(day) {
		post := domain.ForumPost{
			Day:           day,
			ParticipantID: domain.IssuerParty.ParticipantID,
			Broadcast:     true,
			Message:       ev.Message,
		}
		s.mu.Lock()
		s.forum = append(s.forum, post)
		s.mu.Unlock()
		s.record("forum post", s.recorder.RecordForumPost(post))
		s.logger.Info("market event",
			slog.Int("day", day),
			slog.String("message", ev.Message),
		)
	}
}

// loanDecisions asks every active participant whether to borrow, then
// applies the answers in roster order.
func (s *Simulation) loanDecisions(ctx context.Context, day int) (map[int]*domain.DailyDecision, error) {
	roster := s.participants.Active()
	states := make([]decision.State, len(roster))
	for i, p := range roster {
		states[i] = s.state(p, day, 0)
	}

	answers := make([]domain.LoanDecision, len(roster))
	err := s.fanOut(ctx, len(roster), func(ctx context.Context, i int) {
		d, err := s.decider.LoanDecision(ctx, states[i])
		if err != nil {
			s.logger.Warn("loan decision failed",
				slog.Int("participant_id", roster[i].ID),
				slog.String("error", err.Error()),
			)
			d = domain.NoLoan{}
		}
		answers[i] = d
	})
	if err != nil {
		return nil, err
	}

	quotes := s.instruments.Quotes()
	decisions := make(map[int]*domain.DailyDecision, len(roster))
	for i, p := range roster {
		dd := &domain.DailyDecision{ParticipantID: p.ID, Day: day}
		decisions[p.ID] = dd

		req, ok := answers[i].(domain.LoanRequest)
		if !ok {
			continue
		}
		loan, err := p.ApplyLoan(day, req.Type, req.Amount, s.policy, quotes)
		if err != nil {
			s.logger.Warn("loan rejected",
				slog.Int("participant_id", p.ID),
				slog.Int64("amount", req.Amount),
				slog.String("error", err.Error()),
			)
			continue
		}
		dd.TookLoan = true
		dd.LoanType = loan.Type
		dd.LoanAmount = loan.Amount
	}
	return decisions, nil
}

// runSession gives every participant one turn in a fresh random order,
// then closes the session's prices.
func (s *Simulation) runSession(ctx context.Context, day, session int) {
	roster := s.participants.Active()
	s.rng.Shuffle(len(roster), func(i, j int) {
		roster[i], roster[j] = roster[j], roster[i]
	})

	for _, p := range roster {
		if p.Quit() {
			continue
		}
		s.takeTurn(ctx, p, day, session)
	}

	snap := domain.StockSnapshot{Day: day, Session: session, Prices: make(map[string]int64)}
	for _, inst := range s.instruments.All() {
		snap.Prices[inst.Symbol] = inst.RecomputePrice(day, session)
	}
	s.record("stock snapshot", s.recorder.RecordStockSnapshot(snap))
}

func (s *Simulation) takeTurn(ctx context.Context, p *domain.Participant, day, session int) {
	st := s.state(p, day, session)

	intent, err := s.decider.OrderIntent(ctx, st)
	if err != nil {
		s.logger.Warn("order decision failed",
			slog.Int("participant_id", p.ID),
			slog.String("error", err.Error()),
		)
		intent = domain.NoAction{}
	}

	quotes := st.Quotes
	action, symbol, qty, price := domain.DescribeIntent(intent)
	s.record("session snapshot", s.recorder.RecordSessionSnapshot(domain.SessionSnapshot{
		ParticipantID: p.ID,
		Day:           day,
		Session:       session,
		Property:      st.Property,
		Cash:          st.Cash,
		HoldingValues: p.HoldingValues(quotes),
		Action:        action,
		Symbol:        symbol,
		Quantity:      qty,
		Price:         price,
	}))

	order, ok := domain.ToOrder(intent, domain.ParticipantParty(p.ID), day, session)
	if !ok {
		return
	}
	trades, err := s.matcher.Submit(order)
	for _, t := range trades {
		s.record("trade", s.recorder.RecordTrade(t))
	}
	if err != nil {
		s.logger.Warn("order dropped",
			slog.Int("participant_id", p.ID),
			slog.String("symbol", order.Symbol),
			slog.Bool("settlement", engine.IsSettlementFailure(err)),
			slog.String("error", err.Error()),
		)
	}
}

// estimates collects next-day intentions and emits the daily records.
func (s *Simulation) estimates(ctx context.Context, day int, decisions map[int]*domain.DailyDecision) error {
	roster := s.participants.Active()
	states := make([]decision.State, len(roster))
	for i, p := range roster {
		states[i] = s.state(p, day, 0)
	}

	answers := make([]domain.Estimate, len(roster))
	err := s.fanOut(ctx, len(roster), func(ctx context.Context, i int) {
		est, err := s.decider.Estimate(ctx, states[i])
		if err != nil {
			s.logger.Warn("estimate failed",
				slog.Int("participant_id", roster[i].ID),
				slog.String("error", err.Error()),
			)
		}
		answers[i] = est
	})
	if err != nil {
		return err
	}

	for i, p := range roster {
		dd, ok := decisions[p.ID]
		if !ok {
			dd = &domain.DailyDecision{ParticipantID: p.ID, Day: day}
		}
		dd.Estimate = answers[i]
		s.record("daily decision", s.recorder.RecordDailyDecision(*dd))
	}
	return nil
}

// postForum collects today's posts; they replace the forum for tomorrow.
func (s *Simulation) postForum(ctx context.Context, day int) error {
	roster := s.participants.Active()
	states := make([]decision.State, len(roster))
	for i, p := range roster {
		states[i] = s.state(p, day, 0)
	}

	messages := make([]string, len(roster))
	err := s.fanOut(ctx, len(roster), func(ctx context.Context, i int) {
		msg, err := s.decider.Message(ctx, states[i])
		if err != nil {
			s.logger.Warn("forum message failed",
				slog.Int("participant_id", roster[i].ID),
				slog.String("error", err.Error()),
			)
			return
		}
		messages[i] = msg
	})
	if err != nil {
		return err
	}

	posts := make([]domain.ForumPost, 0, len(roster))
	for i, p := range roster {
		if messages[i] == "" {
			continue
		}
		post := domain.ForumPost{Day: day, ParticipantID: p.ID, Message: messages[i]}
		posts = append(posts, post)
		s.record("forum post", s.recorder.RecordForumPost(post))
	}

	s.mu.Lock()
	s.forum = posts
	s.mu.Unlock()
	return nil
}

// fanOut runs fn for 0..n-1 with at most Concurrency calls in flight. fn
// handles its own failures; only cancellation of ctx is returned.
func (s *Simulation) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// state builds what participant p sees right now.
func (s *Simulation) state(p *domain.Participant, day, session int) decision.State {
	quotes := s.instruments.Quotes()
	snap := p.Snapshot()
	property := p.Property(quotes)

	st := decision.State{
		ParticipantID: p.ID,
		Day:           day,
		Session:       session,
		Cash:          snap.Cash,
		Holdings:      snap.Holdings,
		Loans:         snap.Loans,
		Property:      property,
		MaxLoan:       s.policy.MaxLoan(property, p.OutstandingLoans()),
		LoanTerms:     s.policy.LoanTerms,
		LoanRates:     s.policy.LoanRates,
		Quotes:        quotes,
		History:       make(map[string][]domain.PricePoint),
		Forum:         s.Forum(),
		Notes:         snap.Notes,
	}
	for _, inst := range s.instruments.All() {
		hist := inst.History()
		if n := s.params.HistorySize; n > 0 && len(hist) > n {
			hist = hist[len(hist)-n:]
		}
		st.History[inst.Symbol] = hist
		if s.params.BookDepth > 0 {
			st.Books = append(st.Books, s.books.GetOrCreate(inst.Symbol).Depth(s.params.BookDepth))
		}
	}
	return st
}

func (s *Simulation) record(what string, err error) {
	if err != nil {
		s.logger.Error("failed to record "+what, slog.String("error", err.Error()))
	}
}
