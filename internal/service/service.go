// Package service implements the business operations behind the HTTP API:
// product management, sale intake, payment reconciliation, reporting and
// cashier administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/gateway"
	"warungpos/backend/internal/laporan"
	"warungpos/backend/internal/pricing"
	"warungpos/backend/internal/stock"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	stock   *stock.Ledger
	laporan *laporan.Aggregator
	tokens  gateway.TokenProvider
	now     func() time.Time
}

func New(repo store.Repository, stockLedger *stock.Ledger, aggregator *laporan.Aggregator, tokens gateway.TokenProvider) *Service {
	return &Service{
		repo:    repo,
		stock:   stockLedger,
		laporan: aggregator,
		tokens:  tokens,
		now:     time.Now,
	}
}

// bestEffort runs a non-critical side effect. Failures are logged and never
// propagated to the caller.
func bestEffort(label string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("[service] WARN: %s failed: %v", label, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action, entityID, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	log.Printf("[service] audit action=%s entity=%s actor=%s detail=%s", action, entityID, actor.Username, detail)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListLowStock returns products at or below their minimum stock threshold,
// for the restock view.
func (s *Service) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := products[:0:0]
	for _, p := range products {
		if p.Stok <= p.StokMinimum {
			low = append(low, p)
		}
	}
	return low, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Kode = strings.ToUpper(strings.TrimSpace(req.Kode))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Kode == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if req.HargaBeli < 0 || req.HargaJual < 1 || req.Stok < 0 || req.StokMinimum < 0 {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product := domain.Product{
		ID:          xid.New("brg"),
		Kode:        req.Kode,
		Name:        req.Name,
		Category:    req.Category,
		HargaBeli:   req.HargaBeli,
		HargaJual:   req.HargaJual,
		HargaFinal:  pricing.FinalPrice(req.HargaJual, settings),
		Stok:        req.Stok,
		StokMinimum: req.StokMinimum,
		Status:      domain.ProductStatusPending,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", created.ID, fmt.Sprintf("kode=%s,harga_jual=%d,stok=%d", created.Kode, created.HargaJual, created.Stok))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	repriceNeeded := false
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.HargaBeli != nil {
		existing.HargaBeli = *req.HargaBeli
	}
	if req.HargaJual != nil {
		existing.HargaJual = *req.HargaJual
		repriceNeeded = true
	}
	if req.Stok != nil {
		existing.Stok = *req.Stok
	}
	if req.StokMinimum != nil {
		existing.StokMinimum = *req.StokMinimum
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if status != domain.ProductStatusPending && status != domain.ProductStatusPublished {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		existing.Status = status
	}
	if existing.Name == "" || existing.HargaJual < 1 || existing.HargaBeli < 0 || existing.Stok < 0 {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if repriceNeeded {
		settings, err := s.repo.GetSettings(ctx)
		if err != nil {
			return domain.Product{}, err
		}
		existing.HargaFinal = pricing.FinalPrice(existing.HargaJual, settings)
	}
	saved, err := s.repo.UpdateProduct(ctx, existing)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", saved.ID, fmt.Sprintf("harga_jual=%d,status=%s", saved.HargaJual, saved.Status))
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", id, "")
	return nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.TaxPct < 0 || settings.DiscountPct < 0 || settings.ServiceChargePct < 0 {
		return domain.Settings{}, store.ErrInvalidTransaction
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	s.logAudit(ctx, "settings_update", "global", fmt.Sprintf("pajak=%.2f,diskon=%.2f,service=%.2f", settings.TaxPct, settings.DiscountPct, settings.ServiceChargePct))
	return settings, nil
}

// RepriceAll recomputes every product's final price against the current
// settings and persists the results. This is the only path that touches
// final prices in bulk; reads never trigger it.
func (s *Service) RepriceAll(ctx context.Context) (int, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, p := range pricing.Reprice(products, settings) {
		if _, err := s.repo.UpdateProduct(ctx, p); err != nil {
			return updated, fmt.Errorf("reprice %s: %w", p.ID, err)
		}
		updated++
	}
	s.logAudit(ctx, "reprice_all", "global", fmt.Sprintf("updated=%d", updated))
	return updated, nil
}

func (s *Service) AdjustStock(ctx context.Context, productID string, delta int) (domain.StockAdjustResponse, error) {
	if delta == 0 {
		return domain.StockAdjustResponse{}, store.ErrInvalidTransaction
	}
	qty, err := s.stock.Adjust(ctx, productID, delta)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	s.logAudit(ctx, "stock_adjust", productID, fmt.Sprintf("delta=%d,stok=%d", delta, qty))
	return domain.StockAdjustResponse{ProductID: productID, Stok: qty}, nil
}

func (s *Service) SetStock(ctx context.Context, productID string, qty int) (domain.StockAdjustResponse, error) {
	stok, err := s.stock.Set(ctx, productID, qty)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	s.logAudit(ctx, "stock_set", productID, fmt.Sprintf("stok=%d", stok))
	return domain.StockAdjustResponse{ProductID: productID, Stok: stok}, nil
}

// CreateSale snapshots prices, reserves stock, assigns a cashier and writes
// the pending transaction. Stock already reserved is released again when a
// later step fails.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidTransaction
	}
	items := make([]domain.TransactionItem, 0, len(req.Items))
	var total int64
	for _, line := range req.Items {
		if line.Qty < 1 || strings.TrimSpace(line.ProductID) == "" {
			return domain.SaleResponse{}, store.ErrInvalidTransaction
		}
		p, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if p.Status != domain.ProductStatusPublished {
			return domain.SaleResponse{}, store.ErrInvalidTransaction
		}
		unit := p.HargaFinal
		if unit == 0 {
			unit = p.HargaJual
		}
		items = append(items, domain.TransactionItem{
			ProductID: p.ID,
			Name:      p.Name,
			Qty:       line.Qty,
			UnitPrice: unit,
			Subtotal:  unit * int64(line.Qty),
		})
		total += unit * int64(line.Qty)
	}

	reserved := make([]domain.TransactionItem, 0, len(items))
	release := func() {
		for _, it := range reserved {
			it := it
			bestEffort("release reserved stock "+it.ProductID, func() error {
				_, err := s.stock.Adjust(ctx, it.ProductID, it.Qty)
				return err
			})
		}
	}
	for _, it := range items {
		if _, err := s.stock.Adjust(ctx, it.ProductID, -it.Qty); err != nil {
			release()
			return domain.SaleResponse{}, err
		}
		reserved = append(reserved, it)
	}

	kasir, err := s.SelectCashier(ctx)
	if err != nil {
		release()
		return domain.SaleResponse{}, err
	}

	tx := domain.Transaction{
		ID:            xid.New("trx"),
		OrderID:       "ORD-" + uuid.NewString(),
		Items:         items,
		Total:         total,
		PaymentMethod: domain.PaymentMethodUnset,
		Status:        domain.TxStatusPending,
		KasirUsername: kasir.Username,
		CreatedAt:     s.now(),
	}
	if s.tokens != nil {
		token, err := s.tokens.PaymentToken(tx.OrderID, tx.Total, strings.TrimSpace(req.CustomerName))
		if err != nil {
			log.Printf("[service] WARN: snap token for %s failed: %v", tx.OrderID, err)
		} else {
			tx.SnapToken = token
		}
	}

	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		release()
		return domain.SaleResponse{}, err
	}
	s.logAudit(ctx, "sale_create", created.ID, fmt.Sprintf("order=%s,total=%d,kasir=%s", created.OrderID, created.Total, created.KasirUsername))
	return domain.SaleResponse{
		TransactionID: created.ID,
		OrderID:       created.OrderID,
		Items:         created.Items,
		Total:         created.Total,
		Status:        created.Status,
		Kasir:         created.KasirUsername,
		SnapToken:     created.SnapToken,
		CreatedAt:     created.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "transaction_delete", id, "")
	return nil
}

func isTerminal(status string) bool {
	switch status {
	case domain.TxStatusSelesai, domain.TxStatusDibatalkan, domain.TxStatusExpire:
		return true
	default:
		return false
	}
}

// OverrideStatus sets a transaction's status directly. Any transition is
// allowed, including out of terminal states, and no ledger or stock side
// effects run. This is the admin escape hatch, not the reconciler.
func (s *Service) OverrideStatus(ctx context.Context, id, status string) (domain.Transaction, error) {
	status = strings.TrimSpace(status)
	if !domain.ValidTransactionStatus(status) {
		return domain.Transaction{}, store.ErrInvalidTransaction
	}
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	prev := tx.Status
	tx.Status = status
	if err := s.repo.UpdateTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	s.logAudit(ctx, "transaction_override", tx.ID, fmt.Sprintf("from=%s,to=%s", prev, status))
	return tx, nil
}

// CancelTransaction cancels a pending transaction and restores the stock
// its line items reserved.
func (s *Service) CancelTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Status != domain.TxStatusPending {
		return domain.Transaction{}, store.ErrInvalidTransaction
	}
	tx.Status = domain.TxStatusDibatalkan
	if err := s.repo.UpdateTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	s.restoreStock(ctx, tx)
	s.logAudit(ctx, "transaction_cancel", tx.ID, "order="+tx.OrderID)
	return tx, nil
}

// restoreStock reverses the reservation of every line item. Products that
// no longer exist are skipped; nothing here fails the caller.
func (s *Service) restoreStock(ctx context.Context, tx domain.Transaction) {
	for _, item := range tx.Items {
		_, err := s.stock.Adjust(ctx, item.ProductID, item.Qty)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Printf("[service] WARN: stock reversal for %s skipped, product %s gone", tx.ID, item.ProductID)
		case err != nil:
			log.Printf("[service] WARN: stock reversal for %s product %s failed: %v", tx.ID, item.ProductID, err)
		}
	}
}

// nextStatus maps a gateway notification to the transaction status it
// requests. An unrecognized transaction_status keeps the current state.
func nextStatus(n gateway.Notification, current string) string {
	switch n.TransactionStatus {
	case "capture":
		if n.FraudStatus == "accept" {
			return domain.TxStatusSelesai
		}
		return domain.TxStatusPending
	case "settlement":
		return domain.TxStatusSelesai
	case "cancel", "deny":
		return domain.TxStatusDibatalkan
	case "expire":
		return domain.TxStatusExpire
	case "pending":
		return domain.TxStatusPending
	default:
		return current
	}
}

// HandlePaymentNotification reconciles a gateway callback against the local
// transaction record. The returned message is always delivered with HTTP
// 200; only a failure to persist the transaction itself surfaces as an
// error. Unknown order ids are acknowledged so the gateway does not
// retry-storm.
func (s *Service) HandlePaymentNotification(ctx context.Context, n gateway.Notification) (string, error) {
	orderID := strings.TrimSpace(n.OrderID)
	if orderID == "" {
		return "order_id kosong, notifikasi diabaikan", nil
	}
	tx, err := s.repo.GetTransactionByOrderID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] payment notification for unknown order %s ignored", orderID)
		return fmt.Sprintf("transaksi %s belum tercatat, notifikasi diabaikan", orderID), nil
	}
	if err != nil {
		return "", err
	}

	prev := tx.Status
	next := nextStatus(n, prev)
	if isTerminal(prev) {
		// The reconciler never moves a transaction out of a terminal
		// state; a late or duplicate callback only refreshes metadata.
		next = prev
	}

	if n.PaymentType != "" {
		tx.PaymentType = n.PaymentType
	}
	if va := n.VANumberUsed(); va != "" {
		tx.VANumber = va
	}
	if label := gateway.NormalizePayment(n).Label(); label != "" {
		if tx.PaymentMethod == "" || tx.PaymentMethod == domain.PaymentMethodUnset {
			tx.PaymentMethod = label
		}
	}
	tx.Status = next

	if err := s.repo.UpdateTransaction(ctx, tx); err != nil {
		return "", err
	}

	if prev != next {
		switch next {
		case domain.TxStatusSelesai:
			bestEffort("laporan posting for "+tx.ID, func() error {
				return s.laporan.PostTransaction(ctx, tx)
			})
		case domain.TxStatusDibatalkan, domain.TxStatusExpire:
			s.restoreStock(ctx, tx)
		}
	}
	return fmt.Sprintf("transaksi %s diperbarui ke status %s", orderID, next), nil
}

// SelectCashier picks the next active cashier round-robin. The counter is
// persistent and shared, so multiple server instances rotate through the
// same sequence.
func (s *Service) SelectCashier(ctx context.Context) (domain.UserAccount, error) {
	all, err := s.repo.ListUsersByRole(ctx, domain.RoleKasir)
	if err != nil {
		return domain.UserAccount{}, err
	}
	active := all[:0:0]
	for _, u := range all {
		if u.Active {
			active = append(active, u)
		}
	}
	if len(active) == 0 {
		return domain.UserAccount{}, store.ErrNoActiveCashier
	}
	n, err := s.repo.NextCounter(ctx, domain.RoundRobinKasirCounter)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return active[int((n-1)%int64(len(active)))], nil
}

func (s *Service) CreateKasir(ctx context.Context, req domain.KasirCreateRequest) (domain.KasirUser, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Name == "" || len(req.Password) < 8 {
		return domain.KasirUser{}, store.ErrInvalidTransaction
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.KasirUser{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		Username:  req.Username,
		Name:      req.Name,
		Password:  string(hash),
		Role:      domain.RoleKasir,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.KasirUser{}, err
	}
	s.logAudit(ctx, "kasir_create", account.Username, "")
	return kasirView(account), nil
}

func (s *Service) ListKasir(ctx context.Context) ([]domain.KasirUser, error) {
	accounts, err := s.repo.ListUsersByRole(ctx, domain.RoleKasir)
	if err != nil {
		return nil, err
	}
	out := make([]domain.KasirUser, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, kasirView(a))
	}
	return out, nil
}

func (s *Service) SetKasirActive(ctx context.Context, username string, active bool) (domain.KasirUser, error) {
	account, err := s.repo.GetUser(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return domain.KasirUser{}, err
	}
	if account.Role != domain.RoleKasir {
		return domain.KasirUser{}, store.ErrInvalidTransaction
	}
	account.Active = active
	if err := s.repo.UpdateUser(ctx, account); err != nil {
		return domain.KasirUser{}, err
	}
	s.logAudit(ctx, "kasir_set_active", account.Username, fmt.Sprintf("active=%t", active))
	return kasirView(account), nil
}

func kasirView(a domain.UserAccount) domain.KasirUser {
	return domain.KasirUser{
		Username:  a.Username,
		Name:      a.Name,
		Role:      a.Role,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

func (s *Service) CreateOperationalCost(ctx context.Context, req domain.OperationalCostRequest) (domain.OperationalCost, error) {
	if req.Total < 0 {
		return domain.OperationalCost{}, store.ErrInvalidTransaction
	}
	cost := domain.OperationalCost{
		ID:        xid.New("cost"),
		Total:     req.Total,
		CreatedAt: s.now(),
	}
	created, err := s.repo.CreateOperationalCost(ctx, cost)
	if err != nil {
		return domain.OperationalCost{}, err
	}
	s.logAudit(ctx, "operational_cost_create", created.ID, fmt.Sprintf("total=%d", created.Total))
	return created, nil
}

func (s *Service) LatestOperationalCost(ctx context.Context) (domain.OperationalCost, error) {
	return s.repo.LatestOperationalCost(ctx)
}

func (s *Service) ListLaporan(ctx context.Context) ([]domain.Laporan, error) {
	return s.repo.ListLaporan(ctx)
}

func (s *Service) LaporanByDate(ctx context.Context, isoDate string) (domain.Laporan, error) {
	if _, err := time.Parse("2006-01-02", isoDate); err != nil {
		return domain.Laporan{}, store.ErrInvalidTransaction
	}
	return s.repo.GetLaporanByDate(ctx, isoDate)
}

// RunDailyRollup folds daily buckets into weekly ones for the current
// ledger document. Invoked by the scheduler.
func (s *Service) RunDailyRollup(ctx context.Context) error {
	return s.laporan.RollupWeekly(ctx, s.now())
}
