package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/efreitasn/marketsim/internal/domain"
)

var runCounterKey = []byte("m:run")

// PebbleRecorder writes every record of a run to a pebble database as JSON.
// Each open starts a new run, numbered from 1, and every key carries that
// number so later runs never overwrite earlier ones. Within a run keys sort
// by day and session so a prefix scan replays a day in order:
//
//	r<run>/t:<day>:<session>:<seq>  trades
//	r<run>/k:<day>:<session>        stock snapshots
//	r<run>/s:<day>:<session>:<id>   session snapshots
//	r<run>/d:<day>:<id>             daily decisions
//	r<run>/f:<day>:<seq>            forum posts
type PebbleRecorder struct {
	db  *pebble.DB
	run uint64
	seq atomic.Uint64
}

// OpenPebbleRecorder opens or creates the database at path and starts a new
// run in it. Pebble's own log lines go to logger.
func OpenPebbleRecorder(path string, logger *slog.Logger) (*PebbleRecorder, error) {
	db, err := pebble.Open(path, &pebble.Options{Logger: pebbleLogger{logger.With(slog.String("component", "pebble"))}})
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}

	last, err := lastRun(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	run := last + 1
	if err := db.Set(runCounterKey, []byte(strconv.FormatUint(run, 10)), pebble.Sync); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to save run counter: %w", err)
	}
	return &PebbleRecorder{db: db, run: run}, nil
}

func lastRun(db *pebble.DB) (uint64, error) {
	v, closer, err := db.Get(runCounterKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load run counter: %w", err)
	}
	defer closer.Close()

	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt run counter %q: %w", v, err)
	}
	return n, nil
}

// Run returns the number of the run this recorder writes.
func (r *PebbleRecorder) Run() uint64 {
	return r.run
}

// Close flushes and closes the database.
func (r *PebbleRecorder) Close() error {
	if err := r.db.Flush(); err != nil {
		return err
	}
	return r.db.Close()
}

func dayPrefix(run uint64, kind byte, day int) []byte {
	return []byte(fmt.Sprintf("r%06d/%c:%06d:", run, kind, day))
}

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func (r *PebbleRecorder) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	key = fmt.Sprintf("r%06d/%s", r.run, key)
	if err := r.db.Set([]byte(key), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

// RecordTrade stores a trade after the others of its session.
func (r *PebbleRecorder) RecordTrade(t domain.TradeRecord) error {
	return r.put(fmt.Sprintf("t:%06d:%02d:%012d", t.Day, t.Session, r.seq.Add(1)), t)
}

// RecordStockSnapshot stores the close prices of a session.
func (r *PebbleRecorder) RecordStockSnapshot(s domain.StockSnapshot) error {
	return r.put(fmt.Sprintf("k:%06d:%02d", s.Day, s.Session), s)
}

// RecordSessionSnapshot stores a participant's position at its turn.
func (r *PebbleRecorder) RecordSessionSnapshot(s domain.SessionSnapshot) error {
	return r.put(fmt.Sprintf("s:%06d:%02d:%06d", s.Day, s.Session, s.ParticipantID), s)
}

// RecordDailyDecision stores a participant's loan and estimate for a day.
func (r *PebbleRecorder) RecordDailyDecision(d domain.DailyDecision) error {
	return r.put(fmt.Sprintf("d:%06d:%06d", d.Day, d.ParticipantID), d)
}

// RecordForumPost stores a post after the others of its day.
func (r *PebbleRecorder) RecordForumPost(p domain.ForumPost) error {
	return r.put(fmt.Sprintf("f:%06d:%012d", p.Day, r.seq.Add(1)), p)
}

// scan decodes every value under prefix in key order.
func scan[T any](db *pebble.DB, prefix []byte) ([]T, error) {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	out := []T{}
	for iter.First(); iter.Valid(); iter.Next() {
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", iter.Key(), err)
		}
		out = append(out, v)
	}
	return out, iter.Error()
}

// TradesByDay loads the trades of a day of run in execution order.
func (r *PebbleRecorder) TradesByDay(run uint64, day int) ([]domain.TradeRecord, error) {
	return scan[domain.TradeRecord](r.db, dayPrefix(run, 't', day))
}

// StockSnapshotsByDay loads a day's session close prices.
func (r *PebbleRecorder) StockSnapshotsByDay(run uint64, day int) ([]domain.StockSnapshot, error) {
	return scan[domain.StockSnapshot](r.db, dayPrefix(run, 'k', day))
}

// SessionSnapshotsByDay loads a day's participant snapshots.
func (r *PebbleRecorder) SessionSnapshotsByDay(run uint64, day int) ([]domain.SessionSnapshot, error) {
	return scan[domain.SessionSnapshot](r.db, dayPrefix(run, 's', day))
}

// DailyDecisionsByDay loads a day's decisions ordered by participant.
func (r *PebbleRecorder) DailyDecisionsByDay(run uint64, day int) ([]domain.DailyDecision, error) {
	return scan[domain.DailyDecision](r.db, dayPrefix(run, 'd', day))
}

// ForumPostsByDay loads a day's forum posts in posting order.
func (r *PebbleRecorder) ForumPostsByDay(run uint64, day int) ([]domain.ForumPost, error) {
	return scan[domain.ForumPost](r.db, dayPrefix(run, 'f', day))
}

// pebbleLogger sends pebble's printf-style logging through slog.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Fatalf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
