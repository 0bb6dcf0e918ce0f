package trading

import (
	"sort"
	"sync"
	"time"
)

// BalanceSnapshot is the per-account, per-code balance read model. It is fed
// only by balance pushes and is never owned or mutated by the OrderStore.
type BalanceSnapshot struct {
	Account      string    `json:"account"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	HeldQty      int64     `json:"held_qty"`
	OrderableQty int64     `json:"orderable_qty"`
	CurrentPrice int64     `json:"current_price"`
	PnlPct       float64   `json:"pnl_pct"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BalanceBook holds the latest BalanceSnapshot per (account, code).
type BalanceBook struct {
	mu    sync.RWMutex
	snaps map[string]*BalanceSnapshot
	now   func() time.Time
}

// NewBalanceBook creates an empty balance book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		snaps: make(map[string]*BalanceSnapshot),
		now:   time.Now,
	}
}

func balanceKey(account, code string) string {
	return account + "/" + code
}

// Apply overwrites the snapshot for the event's account and code and returns
// a copy of the result.
func (b *BalanceBook) Apply(ev BalanceEvent) BalanceSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := &BalanceSnapshot{
		Account:      ev.Account,
		Code:         ev.Code,
		Name:         ev.Name,
		HeldQty:      ev.HeldQty,
		OrderableQty: ev.OrderableQty,
		CurrentPrice: ev.CurrentPrice,
		PnlPct:       ev.PnlPct,
		UpdatedAt:    b.now(),
	}
	b.snaps[balanceKey(ev.Account, ev.Code)] = snap
	return *snap
}

// Get returns the snapshot for one account and code.
func (b *BalanceBook) Get(account, code string) (BalanceSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.snaps[balanceKey(account, code)]
	if !ok {
		return BalanceSnapshot{}, false
	}
	return *snap, true
}

// List returns all snapshots sorted by account and code.
func (b *BalanceBook) List() []BalanceSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BalanceSnapshot, 0, len(b.snaps))
	for _, snap := range b.snaps {
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].Code < out[j].Code
	})
	return out
}
