package store

import (
	"errors"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Recorder receives the records a run produces. Implementations must be
// safe for concurrent use; the simulation logs returned errors and keeps
// going.
type Recorder interface {
	RecordTrade(t domain.TradeRecord) error
	RecordStockSnapshot(s domain.StockSnapshot) error
	RecordSessionSnapshot(s domain.SessionSnapshot) error
	RecordDailyDecision(d domain.DailyDecision) error
	RecordForumPost(p domain.ForumPost) error
}

// Fanout forwards every record to each recorder in turn. All recorders are
// called even when one fails; the errors are joined.
type Fanout []Recorder

// RecordTrade forwards t to every recorder.
func (f Fanout) RecordTrade(t domain.TradeRecord) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordTrade(t))
	}
	return errors.Join(errs...)
}

// RecordStockSnapshot forwards s to every recorder.
func (f Fanout) RecordStockSnapshot(s domain.StockSnapshot) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordStockSnapshot(s))
	}
	return errors.Join(errs...)
}

// RecordSessionSnapshot forwards s to every recorder.
func (f Fanout) RecordSessionSnapshot(s domain.SessionSnapshot) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordSessionSnapshot(s))
	}
	return errors.Join(errs...)
}

// RecordDailyDecision forwards d to every recorder.
func (f Fanout) RecordDailyDecision(d domain.DailyDecision) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordDailyDecision(d))
	}
	return errors.Join(errs...)
}

// RecordForumPost forwards p to every recorder.
func (f Fanout) RecordForumPost(p domain.ForumPost) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordForumPost(p))
	}
	return errors.Join(errs...)
}
