// Package stock keeps product stock levels consistent across the primary
// store and the real-time cache that POS terminals read from.
package stock

import (
	"context"
	"errors"
	"log"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/notify"
	"warungpos/backend/internal/store"
)

// ErrConflict is returned by a Realtime implementation when the cached
// value changed under a compare-and-swap and retries ran out.
var ErrConflict = errors.New("stock: concurrent update conflict")

// Realtime is the low-latency stock view. Adjust applies delta atomically
// with compare-and-swap semantics, seeding the key from seed when absent,
// and returns the resulting quantity. A delta that would take the value
// below zero returns store.ErrInsufficientStock without writing.
type Realtime interface {
	Adjust(ctx context.Context, productID string, delta, seed int) (int, error)
	Set(ctx context.Context, productID string, qty int) error
}

// Ledger coordinates stock mutations. The primary store stays
// authoritative; the real-time view is kept in step and repaired from the
// primary whenever it diverges or is unavailable.
type Ledger struct {
	repo     store.Repository
	realtime Realtime
	notifier notify.Notifier
}

func NewLedger(repo store.Repository, realtime Realtime, notifier notify.Notifier) *Ledger {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Ledger{repo: repo, realtime: realtime, notifier: notifier}
}

// Adjust applies delta to a product's stock. The write goes through the
// real-time store's compare-and-swap first so two terminals cannot both
// claim the same unit; the primary store is then set to the agreed value.
// When no real-time store is configured, or it fails, the primary store's
// own guarded update is used and the cache is repaired best effort.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int) (int, error) {
	p, err := l.repo.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	qty, err := l.adjustRealtime(ctx, p, delta)
	if err != nil {
		return 0, err
	}
	l.emit(ctx, productID, qty)
	return qty, nil
}

func (l *Ledger) adjustRealtime(ctx context.Context, p domain.Product, delta int) (int, error) {
	if l.realtime == nil {
		return l.repo.AdjustStock(ctx, p.ID, delta)
	}
	qty, err := l.realtime.Adjust(ctx, p.ID, delta, p.Stok)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return 0, err
		}
		log.Printf("[stock] WARN: realtime adjust for %s failed, falling back to primary: %v", p.ID, err)
		qty, err = l.repo.AdjustStock(ctx, p.ID, delta)
		if err != nil {
			return 0, err
		}
		if setErr := l.realtime.Set(ctx, p.ID, qty); setErr != nil {
			log.Printf("[stock] WARN: realtime repair for %s failed: %v", p.ID, setErr)
		}
		return qty, nil
	}
	// The realtime store already committed; a failed mirror sync must not
	// report the mutation as failed, or callers would re-reserve a unit
	// the authoritative store has given out.
	if err := l.repo.SetStock(ctx, p.ID, qty); err != nil {
		log.Printf("[stock] WARN: primary sync for %s failed: %v", p.ID, err)
	}
	return qty, nil
}

// Set overwrites a product's stock level in both stores. Used by the
// explicit inventory correction endpoint.
func (l *Ledger) Set(ctx context.Context, productID string, qty int) (int, error) {
	if qty < 0 {
		return 0, store.ErrInsufficientStock
	}
	if err := l.repo.SetStock(ctx, productID, qty); err != nil {
		return 0, err
	}
	if l.realtime != nil {
		if err := l.realtime.Set(ctx, productID, qty); err != nil {
			log.Printf("[stock] WARN: realtime set for %s failed: %v", productID, err)
		}
	}
	l.emit(ctx, productID, qty)
	return qty, nil
}

func (l *Ledger) emit(ctx context.Context, productID string, qty int) {
	if err := l.notifier.StockUpdated(ctx, productID, qty); err != nil {
		log.Printf("[stock] WARN: stock notification for %s failed: %v", productID, err)
	}
}
