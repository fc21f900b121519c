package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/gateway"
	"warungpos/backend/internal/laporan"
	"warungpos/backend/internal/stock"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/store/memory"
)

type fakeTokens struct {
	fail bool
}

func (f fakeTokens) PaymentToken(orderID string, _ int64, _ string) (string, error) {
	if f.fail {
		return "", errors.New("gateway unreachable")
	}
	return "snap-" + orderID, nil
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	products := []domain.Product{
		{ID: "brg-a", Kode: "MKN-001", Name: "Nasi Goreng", HargaBeli: 12000, HargaJual: 22000, HargaFinal: 22000, Stok: 10, Status: domain.ProductStatusPublished},
		{ID: "brg-b", Kode: "MNM-001", Name: "Es Teh", HargaBeli: 2000, HargaJual: 6000, HargaFinal: 6000, Stok: 50, Status: domain.ProductStatusPublished},
		{ID: "brg-c", Kode: "CML-001", Name: "Pisang Goreng", HargaBeli: 5000, HargaJual: 12000, HargaFinal: 12000, Stok: 5, Status: domain.ProductStatusPending},
	}
	for _, p := range products {
		if _, err := repo.CreateProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	for _, username := range []string{"kasir1", "kasir2"} {
		err := repo.CreateUser(ctx, domain.UserAccount{
			Username: username, Name: username, Password: "x", Role: domain.RoleKasir, Active: true, CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("seed kasir: %v", err)
		}
	}
	ledger := stock.NewLedger(repo, nil, nil)
	svc := New(repo, ledger, laporan.NewAggregator(repo), fakeTokens{})
	return svc, repo
}

func sellOne(t *testing.T, svc *Service, productID string, qty int) domain.SaleResponse {
	t.Helper()
	resp, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: productID, Qty: qty}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return resp
}

func TestCreateSale(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	resp := sellOne(t, svc, "brg-a", 2)
	if resp.Status != domain.TxStatusPending {
		t.Fatalf("status = %s, want pending", resp.Status)
	}
	if resp.Total != 44000 {
		t.Fatalf("total = %d, want 44000", resp.Total)
	}
	if resp.SnapToken != "snap-"+resp.OrderID {
		t.Fatalf("snap token = %q", resp.SnapToken)
	}
	if resp.Kasir == "" {
		t.Fatal("no cashier assigned")
	}
	p, _ := repo.GetProduct(ctx, "brg-a")
	if p.Stok != 8 {
		t.Fatalf("stock after sale = %d, want 8", p.Stok)
	}
	tx, err := repo.GetTransactionByOrderID(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("lookup by order id: %v", err)
	}
	if tx.PaymentMethod != domain.PaymentMethodUnset {
		t.Fatalf("payment method = %q, want placeholder", tx.PaymentMethod)
	}
}

func TestCreateSaleRejectsUnpublishedProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ProductID: "brg-c", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("err = %v, want ErrInvalidTransaction", err)
	}
}

func TestCreateSaleInsufficientStockReleasesReservation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleItemRequest{
		{ProductID: "brg-a", Qty: 2},
		{ProductID: "brg-b", Qty: 100},
	}})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	// The first line's reservation must have been released again.
	p, _ := repo.GetProduct(ctx, "brg-a")
	if p.Stok != 10 {
		t.Fatalf("stock = %d, want 10", p.Stok)
	}
}

func TestCreateSaleSurvivesTokenFailure(t *testing.T) {
	svc, repo := newTestService(t)
	svc.tokens = fakeTokens{fail: true}
	resp := sellOne(t, svc, "brg-b", 1)
	if resp.SnapToken != "" {
		t.Fatalf("snap token = %q, want empty", resp.SnapToken)
	}
	if _, err := repo.GetTransaction(context.Background(), resp.TransactionID); err != nil {
		t.Fatalf("transaction missing: %v", err)
	}
}

func TestSelectCashierRoundRobin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var got []string
	for i := 0; i < 4; i++ {
		kasir, err := svc.SelectCashier(ctx)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		got = append(got, kasir.Username)
	}
	want := []string{"kasir1", "kasir2", "kasir1", "kasir2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}
}

func TestSelectCashierNoActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, username := range []string{"kasir1", "kasir2"} {
		if _, err := svc.SetKasirActive(ctx, username, false); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
	}
	if _, err := svc.SelectCashier(ctx); !errors.Is(err, store.ErrNoActiveCashier) {
		t.Fatalf("err = %v, want ErrNoActiveCashier", err)
	}
}

func notifyStatus(orderID, txStatus, fraud string) gateway.Notification {
	return gateway.Notification{OrderID: orderID, TransactionStatus: txStatus, FraudStatus: fraud}
}

func TestNotificationSettlementCompletesAndPostsLedger(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp := sellOne(t, svc, "brg-a", 2)

	n := notifyStatus(resp.OrderID, "settlement", "")
	n.PaymentType = "bank_transfer"
	n.VANumbers = []gateway.VANumber{{Bank: "bca", VANumber: "12345"}}
	msg, err := svc.HandlePaymentNotification(ctx, n)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if msg == "" {
		t.Fatal("expected informational message")
	}
	tx, _ := repo.GetTransaction(ctx, resp.TransactionID)
	if tx.Status != domain.TxStatusSelesai {
		t.Fatalf("status = %s, want selesai", tx.Status)
	}
	if tx.PaymentMethod != "Transfer Bank (BCA)" {
		t.Fatalf("method = %q", tx.PaymentMethod)
	}
	if tx.VANumber != "12345" {
		t.Fatalf("va = %q", tx.VANumber)
	}

	doc, err := repo.GetLaporanByDate(ctx, tx.CreatedAt.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("laporan missing: %v", err)
	}
	if len(doc.Days) != 1 || doc.Days[0].Total != 44000 {
		t.Fatalf("daily bucket = %+v", doc.Days)
	}
	if len(doc.ProfitDetails) != 1 || doc.ProfitDetails[0].Qty != 2 {
		t.Fatalf("profit details = %+v", doc.ProfitDetails)
	}
}

func TestNotificationCaptureFraudHandling(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	accepted := sellOne(t, svc, "brg-b", 1)
	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(accepted.OrderID, "capture", "accept")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tx, _ := repo.GetTransaction(ctx, accepted.TransactionID)
	if tx.Status != domain.TxStatusSelesai {
		t.Fatalf("capture+accept status = %s, want selesai", tx.Status)
	}

	challenged := sellOne(t, svc, "brg-b", 1)
	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(challenged.OrderID, "capture", "challenge")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tx, _ = repo.GetTransaction(ctx, challenged.TransactionID)
	if tx.Status != domain.TxStatusPending {
		t.Fatalf("capture+challenge status = %s, want pending", tx.Status)
	}
}

func TestNotificationCancelRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp := sellOne(t, svc, "brg-a", 3)

	p, _ := repo.GetProduct(ctx, "brg-a")
	if p.Stok != 7 {
		t.Fatalf("stock after sale = %d", p.Stok)
	}
	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(resp.OrderID, "cancel", "")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tx, _ := repo.GetTransaction(ctx, resp.TransactionID)
	if tx.Status != domain.TxStatusDibatalkan {
		t.Fatalf("status = %s, want dibatalkan", tx.Status)
	}
	p, _ = repo.GetProduct(ctx, "brg-a")
	if p.Stok != 10 {
		t.Fatalf("stock after cancel = %d, want 10", p.Stok)
	}
}

func TestNotificationExpireRestoresStockAndSkipsMissingProduct(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp, err := svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleItemRequest{
		{ProductID: "brg-a", Qty: 2},
		{ProductID: "brg-b", Qty: 4},
	}})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	// One of the products disappears before the expiry callback.
	if err := repo.DeleteProduct(ctx, "brg-a"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(resp.OrderID, "expire", "")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tx, _ := repo.GetTransaction(ctx, resp.TransactionID)
	if tx.Status != domain.TxStatusExpire {
		t.Fatalf("status = %s, want expire", tx.Status)
	}
	// The surviving line is restored even though the other was skipped.
	p, _ := repo.GetProduct(ctx, "brg-b")
	if p.Stok != 50 {
		t.Fatalf("stock = %d, want 50", p.Stok)
	}
}

func TestNotificationUnknownOrderAcknowledged(t *testing.T) {
	svc, _ := newTestService(t)
	msg, err := svc.HandlePaymentNotification(context.Background(), notifyStatus("ORD-tidak-ada", "settlement", ""))
	if err != nil {
		t.Fatalf("err = %v, want nil for unknown order", err)
	}
	if msg == "" {
		t.Fatal("expected informational message")
	}
}

func TestNotificationNeverLeavesTerminalState(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp := sellOne(t, svc, "brg-b", 1)

	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(resp.OrderID, "settlement", "")); err != nil {
		t.Fatalf("settlement: %v", err)
	}
	// A late pending callback must not regress a completed transaction.
	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(resp.OrderID, "pending", "")); err != nil {
		t.Fatalf("late pending: %v", err)
	}
	tx, _ := repo.GetTransaction(ctx, resp.TransactionID)
	if tx.Status != domain.TxStatusSelesai {
		t.Fatalf("status = %s, want selesai", tx.Status)
	}
	// And a duplicate cancel after completion must not restore stock.
	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(resp.OrderID, "cancel", "")); err != nil {
		t.Fatalf("late cancel: %v", err)
	}
	p, _ := repo.GetProduct(ctx, "brg-b")
	if p.Stok != 49 {
		t.Fatalf("stock = %d, want 49", p.Stok)
	}
}

func TestNotificationKeepsMethodSetByAnotherPath(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp := sellOne(t, svc, "brg-b", 1)

	tx, _ := repo.GetTransaction(ctx, resp.TransactionID)
	tx.PaymentMethod = "Tunai"
	if err := repo.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("update: %v", err)
	}

	n := notifyStatus(resp.OrderID, "settlement", "")
	n.PaymentType = "gopay"
	if _, err := svc.HandlePaymentNotification(ctx, n); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tx, _ = repo.GetTransaction(ctx, resp.TransactionID)
	if tx.PaymentMethod != "Tunai" {
		t.Fatalf("method clobbered: %q", tx.PaymentMethod)
	}
}

func TestOverrideStatusHasNoSideEffects(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp := sellOne(t, svc, "brg-a", 2)

	// Force a terminal state and back out of it; stock must not move.
	if _, err := svc.OverrideStatus(ctx, resp.TransactionID, domain.TxStatusDibatalkan); err != nil {
		t.Fatalf("override: %v", err)
	}
	p, _ := repo.GetProduct(ctx, "brg-a")
	if p.Stok != 8 {
		t.Fatalf("stock = %d, override must not restore", p.Stok)
	}
	if _, err := svc.OverrideStatus(ctx, resp.TransactionID, domain.TxStatusPending); err != nil {
		t.Fatalf("override back: %v", err)
	}
	if _, err := svc.OverrideStatus(ctx, resp.TransactionID, "hilang"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("invalid status err = %v", err)
	}
}

func TestCancelTransactionRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	resp := sellOne(t, svc, "brg-a", 3)

	tx, err := svc.CancelTransaction(ctx, resp.TransactionID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tx.Status != domain.TxStatusDibatalkan {
		t.Fatalf("status = %s", tx.Status)
	}
	p, _ := repo.GetProduct(ctx, "brg-a")
	if p.Stok != 10 {
		t.Fatalf("stock = %d, want 10", p.Stok)
	}
	// Cancelling again is rejected, preventing a double restore.
	if _, err := svc.CancelTransaction(ctx, resp.TransactionID); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("second cancel err = %v", err)
	}
}

func TestRepriceAll(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	if _, err := svc.UpdateSettings(ctx, domain.Settings{DiscountPct: 10, TaxPct: 10, ServiceChargePct: 5}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	updated, err := svc.RepriceAll(ctx)
	if err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if updated != 3 {
		t.Fatalf("updated = %d, want 3", updated)
	}
	p, _ := repo.GetProduct(ctx, "brg-b")
	// 6000 -> 5400 -> 5940 -> 6237.
	if p.HargaFinal != 6237 {
		t.Fatalf("harga final = %d, want 6237", p.HargaFinal)
	}
}

func TestListLowStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	min := 10
	if _, err := svc.UpdateProduct(ctx, "brg-a", domain.ProductUpdateRequest{StokMinimum: &min}); err != nil {
		t.Fatalf("set minimum: %v", err)
	}
	low, err := svc.ListLowStock(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	// brg-a sits exactly at its minimum; brg-c has no minimum but stok 5 > 0.
	if len(low) != 1 || low[0].ID != "brg-a" {
		t.Fatalf("low stock = %+v", low)
	}
	if _, err := repo.AdjustStock(ctx, "brg-a", 1); err != nil {
		t.Fatalf("restock: %v", err)
	}
	low, _ = svc.ListLowStock(ctx)
	if len(low) != 0 {
		t.Fatalf("low stock after restock = %+v", low)
	}
}

func TestCreateKasirValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateKasir(ctx, domain.KasirCreateRequest{Username: "kasir3", Name: "Kasir Tiga", Password: "pendek"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("short password err = %v", err)
	}
	created, err := svc.CreateKasir(ctx, domain.KasirCreateRequest{Username: "Kasir3", Name: "Kasir Tiga", Password: "rahasia-panjang"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Username != "kasir3" || !created.Active {
		t.Fatalf("created = %+v", created)
	}
	if _, err := svc.CreateKasir(ctx, domain.KasirCreateRequest{Username: "kasir3", Name: "Dobel", Password: "rahasia-panjang"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate err = %v", err)
	}
}

func TestEndToEndSettlementScenario(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	// 1 item, qty 2 at the product's final price.
	resp := sellOne(t, svc, "brg-a", 2)
	if _, err := svc.HandlePaymentNotification(ctx, notifyStatus(resp.OrderID, "settlement", "")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tx, _ := repo.GetTransaction(ctx, resp.TransactionID)
	if tx.Status != domain.TxStatusSelesai {
		t.Fatalf("status = %s", tx.Status)
	}
	doc, err := repo.GetLaporanByDate(ctx, tx.CreatedAt.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("laporan: %v", err)
	}
	if doc.Days[0].Total != resp.Total {
		t.Fatalf("daily total = %d, want %d", doc.Days[0].Total, resp.Total)
	}
	if len(doc.ProfitDetails) != 1 || doc.ProfitDetails[0].Qty != 2 {
		t.Fatalf("profit line = %+v", doc.ProfitDetails)
	}
}
