package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
)

// Recorder appends execution events to one SQLite file per calendar date,
// history_YYYYMMDD.db under its directory. Each append opens the day's file,
// writes one row and closes it again, so a crash between appends never
// leaves a partially written day and restarts append to the same file.
type Recorder struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// NewRecorder creates the history directory if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &trading.PersistenceError{Op: "mkdir", Err: err}
	}
	return &Recorder{
		dir:    dir,
		now:    time.Now,
		logger: log.With().Str("component", "history_recorder").Logger(),
	}, nil
}

// fileFor returns the day file path for the given time.
func (r *Recorder) fileFor(t time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("history_%s.db", t.Format("20060102")))
}

func (r *Recorder) open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		closeDB(db)
		return nil, err
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// Append stores one observed execution event with its apply outcome. It
// satisfies the trading history sink contract.
func (r *Recorder) Append(ev trading.ExecutionEvent, outcome string) error {
	now := r.now()
	rec := Record{
		OrderID:     ev.OrderID,
		Account:     ev.Account,
		Code:        ev.Code,
		Name:        ev.Name,
		Side:        string(trading.SideFromOrderType(ev.OrderType)),
		OrderType:   ev.OrderType,
		OrderQty:    ev.OrderQty,
		OrderPrice:  ev.OrderPrice,
		FilledQty:   ev.FilledQty,
		FilledPrice: ev.FilledPrice,
		Status:      string(ev.Status),
		TradeTime:   ev.TradeTime,
		TradeNo:     ev.TradeNo,
		Outcome:     outcome,
		ProcessedAt: now,
	}

	db, err := r.open(r.fileFor(now))
	if err != nil {
		return &trading.PersistenceError{Op: "open", Err: err}
	}
	defer closeDB(db)

	if err := db.Create(&rec).Error; err != nil {
		return &trading.PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// ForDate returns all records of one calendar date in processing order. A
// date with no file yields an empty slice, not an error.
func (r *Recorder) ForDate(date time.Time) ([]Record, error) {
	path := r.fileFor(date)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := r.open(path)
	if err != nil {
		return nil, &trading.PersistenceError{Op: "open", Err: err}
	}
	defer closeDB(db)

	var records []Record
	if err := db.Order("id ASC").Find(&records).Error; err != nil {
		return nil, &trading.PersistenceError{Op: "read", Err: err}
	}
	return records, nil
}
