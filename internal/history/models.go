// Package history persists every observed execution event to day-partitioned
// SQLite files and computes summaries over them. Persistence is best effort:
// the trading pipeline never blocks or rolls back on a failed append.
package history

import (
	"time"

	"gorm.io/gorm"
)

// Record is one observed execution event as stored. Outcome is the effect
// the event had on live order state; duplicates and stale events are kept
// for audit with their outcome marking them inert.
type Record struct {
	gorm.Model  `json:"-"`
	OrderID     string    `gorm:"index" json:"order_id"`
	Account     string    `json:"account"`
	Code        string    `gorm:"index" json:"code"`
	Name        string    `json:"name"`
	Side        string    `json:"side"`
	OrderType   string    `json:"order_type"`
	OrderQty    int64     `json:"order_qty"`
	OrderPrice  int64     `json:"order_price"`
	FilledQty   int64     `json:"filled_qty"`
	FilledPrice int64     `json:"filled_price"`
	Status      string    `json:"status"`
	TradeTime   string    `json:"trade_time"`
	TradeNo     string    `json:"trade_no"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}
