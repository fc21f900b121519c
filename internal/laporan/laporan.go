// Package laporan maintains the monthly sales ledger documents: daily
// buckets, weekly rollups, profit details and the payment-method breakdown.
package laporan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

const dateLayout = "2006-01-02"

type Aggregator struct {
	repo store.Repository
}

func NewAggregator(repo store.Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// MonthBounds returns the inclusive period of the calendar month containing
// t: day one at midnight through the last instant of the last day.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}

// WeekOfMonth maps a day of month to its week bucket, 1 through 5.
func WeekOfMonth(day int) int {
	return (day + 6) / 7
}

// sameDay compares a persisted bucket date against an ISO date. Older
// documents stored full timestamps instead of bare dates, so both forms
// must match.
func sameDay(stored, isoDate string) bool {
	if stored == isoDate {
		return true
	}
	if len(stored) >= len(dateLayout) && stored[:len(dateLayout)] == isoDate {
		return true
	}
	if ts, err := time.Parse(time.RFC3339, stored); err == nil {
		return ts.Format(dateLayout) == isoDate
	}
	return false
}

// PostTransaction folds one completed sale into the month's ledger
// document, creating the document on first use. Callers invoke it once per
// transaction entering the completed state; duplicate deliveries are not
// deduplicated here.
//
// Two first postings of a new month can race past the lookup and each build
// a fresh document. The store rejects the second insert with ErrDuplicate,
// and we refetch the winner's document and fold into that one instead.
func (a *Aggregator) PostTransaction(ctx context.Context, t domain.Transaction) error {
	isoDate := t.CreatedAt.Format(dateLayout)
	for attempt := 0; ; attempt++ {
		doc, err := a.repo.GetLaporanByDate(ctx, isoDate)
		created := false
		if errors.Is(err, store.ErrNotFound) {
			doc, err = a.newDocument(ctx, t.CreatedAt)
			created = true
		}
		if err != nil {
			return fmt.Errorf("resolve laporan for %s: %w", isoDate, err)
		}

		a.fold(ctx, &doc, t, isoDate)

		err = a.repo.SaveLaporan(ctx, doc)
		if created && errors.Is(err, store.ErrDuplicate) && attempt == 0 {
			continue
		}
		if err != nil {
			return fmt.Errorf("save laporan %s: %w", doc.ID, err)
		}
		return nil
	}
}

// fold applies one transaction to a document in place.
func (a *Aggregator) fold(ctx context.Context, doc *domain.Laporan, t domain.Transaction, isoDate string) {
	dayIdx := -1
	for i := range doc.Days {
		if sameDay(doc.Days[i].Date, isoDate) {
			dayIdx = i
			break
		}
	}
	if dayIdx < 0 {
		doc.Days = append(doc.Days, domain.DailyBucket{Date: isoDate})
		dayIdx = len(doc.Days) - 1
	}

	day := &doc.Days[dayIdx]
	day.Transactions = append(day.Transactions, domain.TransactionSummary{
		TransactionID: t.ID,
		OrderID:       t.OrderID,
		Total:         t.Total,
		Method:        t.PaymentMethod,
		At:            t.CreatedAt,
	})
	day.Total += t.Total

	for _, item := range t.Items {
		cost := a.resolvePurchaseCost(ctx, item)
		subtotal := item.UnitPrice * int64(item.Qty)
		doc.ProfitDetails = append(doc.ProfitDetails, domain.ProfitDetail{
			TransactionID: t.ID,
			ProductID:     item.ProductID,
			ProductName:   item.Name,
			HargaJual:     item.UnitPrice,
			HargaBeli:     cost,
			Qty:           item.Qty,
			Subtotal:      subtotal,
			Profit:        (item.UnitPrice - cost) * int64(item.Qty),
		})
	}

	methodIdx := -1
	for i := range doc.PaymentTotals {
		if doc.PaymentTotals[i].Method == t.PaymentMethod {
			methodIdx = i
			break
		}
	}
	if methodIdx < 0 {
		doc.PaymentTotals = append(doc.PaymentTotals, domain.PaymentMethodTotal{Method: t.PaymentMethod})
		methodIdx = len(doc.PaymentTotals) - 1
	}
	doc.PaymentTotals[methodIdx].Total += t.Total

	// Gross profit is recomputed from the full detail list rather than
	// carried incrementally, so a partial earlier write cannot skew it.
	var gross int64
	for _, d := range doc.ProfitDetails {
		gross += d.Profit
	}
	doc.GrossProfit = gross
	doc.NetProfit = gross - doc.OperationalCost - doc.Pengeluaran
}

// newDocument seeds a fresh monthly document. The operational-cost and
// expenditure figures are point-in-time snapshots taken here and never
// refreshed for the life of the document.
func (a *Aggregator) newDocument(ctx context.Context, at time.Time) (domain.Laporan, error) {
	start, end := MonthBounds(at)
	doc := domain.Laporan{
		ID:          xid.New("lap"),
		PeriodStart: start,
		PeriodEnd:   end,
	}
	cost, err := a.repo.LatestOperationalCost(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Laporan{}, err
	}
	doc.OperationalCost = cost.Total

	products, err := a.repo.ListProducts(ctx)
	if err != nil {
		return domain.Laporan{}, err
	}
	var pengeluaran int64
	for _, p := range products {
		pengeluaran += p.HargaBeli * int64(p.Stok)
	}
	doc.Pengeluaran = pengeluaran
	return doc, nil
}

// resolvePurchaseCost looks up the current purchase cost of a line item's
// product by id, then product code, then name. First hit wins; a product
// that cannot be resolved at all costs zero.
func (a *Aggregator) resolvePurchaseCost(ctx context.Context, item domain.TransactionItem) int64 {
	if item.ProductID != "" {
		if p, err := a.repo.GetProduct(ctx, item.ProductID); err == nil {
			return p.HargaBeli
		}
		if p, err := a.repo.GetProductByKode(ctx, item.ProductID); err == nil {
			return p.HargaBeli
		}
	}
	if item.Name != "" {
		if p, err := a.repo.GetProductByName(ctx, item.Name); err == nil {
			return p.HargaBeli
		}
	}
	return 0
}

// RollupWeekly folds daily buckets of the document covering at into weekly
// buckets, week-of-month = ceil(day/7). A day already present in its weekly
// bucket is skipped, so reruns are no-ops.
func (a *Aggregator) RollupWeekly(ctx context.Context, at time.Time) error {
	isoDate := at.Format(dateLayout)
	doc, err := a.repo.GetLaporanByDate(ctx, isoDate)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve laporan for rollup: %w", err)
	}

	changed := false
	for _, day := range doc.Days {
		dayDate, err := time.Parse(dateLayout, day.Date[:min(len(day.Date), len(dateLayout))])
		if err != nil {
			continue
		}
		week := WeekOfMonth(dayDate.Day())

		weekIdx := -1
		for i := range doc.Weeks {
			if doc.Weeks[i].Week == week {
				weekIdx = i
				break
			}
		}
		if weekIdx < 0 {
			doc.Weeks = append(doc.Weeks, domain.WeeklyBucket{Week: week})
			weekIdx = len(doc.Weeks) - 1
		}

		already := false
		for _, d := range doc.Weeks[weekIdx].Days {
			if sameDay(d, day.Date[:min(len(day.Date), len(dateLayout))]) {
				already = true
				break
			}
		}
		if already {
			continue
		}
		doc.Weeks[weekIdx].Days = append(doc.Weeks[weekIdx].Days, day.Date)
		doc.Weeks[weekIdx].Total += day.Total
		changed = true
	}

	if !changed {
		return nil
	}
	if err := a.repo.SaveLaporan(ctx, doc); err != nil {
		return fmt.Errorf("save laporan %s after rollup: %w", doc.ID, err)
	}
	return nil
}
