package domain

import "time"

// Product is a sellable item (barang). HargaFinal is derived from HargaJual
// and the current global settings; it is recomputed only by the explicit
// batch reprice operation, never implicitly on reads.
type Product struct {
	ID          string `json:"id"`
	Kode        string `json:"kode"`
	Name        string `json:"nama"`
	Category    string `json:"kategori"`
	HargaBeli   int64  `json:"harga_beli"`
	HargaJual   int64  `json:"harga_jual"`
	HargaFinal  int64  `json:"harga_final"`
	Stok        int    `json:"stok"`
	StokMinimum int    `json:"stok_minimum"`
	Status      string `json:"status"`
}

type ProductCreateRequest struct {
	Kode        string `json:"kode"`
	Name        string `json:"nama"`
	Category    string `json:"kategori"`
	HargaBeli   int64  `json:"harga_beli"`
	HargaJual   int64  `json:"harga_jual"`
	Stok        int    `json:"stok"`
	StokMinimum int    `json:"stok_minimum"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"nama,omitempty"`
	Category    *string `json:"kategori,omitempty"`
	HargaBeli   *int64  `json:"harga_beli,omitempty"`
	HargaJual   *int64  `json:"harga_jual,omitempty"`
	Stok        *int    `json:"stok,omitempty"`
	StokMinimum *int    `json:"stok_minimum,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// Settings holds the global percentages applied by the pricing engine.
type Settings struct {
	TaxPct           float64 `json:"pajak_pct"`
	DiscountPct      float64 `json:"diskon_pct"`
	ServiceChargePct float64 `json:"service_charge_pct"`
}

// TransactionItem is a line item with a unit-price snapshot taken at sale
// time. Snapshots are never recomputed from current product settings.
type TransactionItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"nama"`
	Qty       int    `json:"jumlah"`
	UnitPrice int64  `json:"harga_satuan"`
	Subtotal  int64  `json:"subtotal"`
}

type Transaction struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"order_id"`
	Items         []TransactionItem `json:"items"`
	Total         int64             `json:"total"`
	PaymentMethod string            `json:"metode_pembayaran"`
	PaymentType   string            `json:"payment_type,omitempty"`
	VANumber      string            `json:"va_number,omitempty"`
	SnapToken     string            `json:"snap_token,omitempty"`
	Status        string            `json:"status"`
	KasirUsername string            `json:"kasir"`
	CreatedAt     time.Time         `json:"created_at"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"jumlah"`
}

type SaleRequest struct {
	Items        []SaleItemRequest `json:"items"`
	CustomerName string            `json:"nama_pembeli"`
}

type SaleResponse struct {
	TransactionID string            `json:"transaction_id"`
	OrderID       string            `json:"order_id"`
	Items         []TransactionItem `json:"items"`
	Total         int64             `json:"total"`
	Status        string            `json:"status"`
	Kasir         string            `json:"kasir"`
	SnapToken     string            `json:"snap_token,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

type StatusOverrideRequest struct {
	Status string `json:"status"`
}

type StockAdjustRequest struct {
	Qty int `json:"jumlah"`
}

type StockAdjustResponse struct {
	ProductID string `json:"product_id"`
	Stok      int    `json:"stok"`
}

// TransactionSummary is the per-transaction entry stored inside a daily
// bucket of the laporan document.
type TransactionSummary struct {
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	Total         int64     `json:"total"`
	Method        string    `json:"metode_pembayaran"`
	At            time.Time `json:"waktu"`
}

// DailyBucket groups the transactions of one calendar date. Date is stored
// as an ISO "2006-01-02" string, but readers must also tolerate full
// timestamp strings persisted by older writers.
type DailyBucket struct {
	Date         string               `json:"tanggal"`
	Transactions []TransactionSummary `json:"transaksi"`
	Total        int64                `json:"total_harian"`
}

type WeeklyBucket struct {
	Week  int      `json:"minggu_ke"`
	Days  []string `json:"hari"`
	Total int64    `json:"total_mingguan"`
}

// ProfitDetail is one HPP line: profit = (harga jual - harga beli) * qty.
type ProfitDetail struct {
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"nama_produk"`
	HargaJual     int64  `json:"harga_jual"`
	HargaBeli     int64  `json:"harga_beli"`
	Qty           int    `json:"jumlah"`
	Subtotal      int64  `json:"subtotal"`
	Profit        int64  `json:"laba"`
}

type PaymentMethodTotal struct {
	Method string `json:"metode"`
	Total  int64  `json:"total"`
}

// Laporan is the monthly sales ledger document. Exactly one document covers
// any given date. OperationalCost and Pengeluaran are snapshots taken when
// the document is first created for its month.
type Laporan struct {
	ID              string               `json:"id"`
	PeriodStart     time.Time            `json:"periode_awal"`
	PeriodEnd       time.Time            `json:"periode_akhir"`
	Days            []DailyBucket        `json:"harian"`
	Weeks           []WeeklyBucket       `json:"mingguan"`
	ProfitDetails   []ProfitDetail       `json:"detail_laba"`
	PaymentTotals   []PaymentMethodTotal `json:"per_metode"`
	OperationalCost int64                `json:"biaya_operasional"`
	Pengeluaran     int64                `json:"pengeluaran"`
	GrossProfit     int64                `json:"laba_kotor"`
	NetProfit       int64                `json:"laba_bersih"`
}

// OperationalCost (biaya operasional) is referenced by the laporan at
// creation time; the most recently created document wins.
type OperationalCost struct {
	ID        string    `json:"id"`
	Total     int64     `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

type OperationalCostRequest struct {
	Total int64 `json:"total"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type KasirCreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"nama"`
	Password string `json:"password"`
}

type KasirUser struct {
	Username  string    `json:"username"`
	Name      string    `json:"nama"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type KasirActiveRequest struct {
	Active bool `json:"active"`
}

// UserAccount is an internal persistence model for auth credentials.
// Kasir accounts double as the round-robin candidate pool when Active.
type UserAccount struct {
	Username  string
	Name      string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TxStatusPending    = "pending"
	TxStatusSelesai    = "selesai"
	TxStatusDibatalkan = "dibatalkan"
	TxStatusExpire     = "expire"
)

// PaymentMethodUnset is the placeholder a new transaction carries until the
// gateway reconciler normalizes the real method. Normalization only
// overwrites the method when it still equals this placeholder (or is empty).
const PaymentMethodUnset = "Belum dipilih"

const (
	ProductStatusPending   = "pending"
	ProductStatusPublished = "published"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleChef    = "chef"
	RoleKasir   = "kasir"
)

// RoundRobinKasirCounter keys the persistent counter backing cashier
// assignment. The counter only ever increases.
const RoundRobinKasirCounter = "round_robin_kasir"

// ValidTransactionStatus reports whether s is one of the four lifecycle
// states. Used by the manual override path, which otherwise allows any
// transition, including out of terminal states.
func ValidTransactionStatus(s string) bool {
	switch s {
	case TxStatusPending, TxStatusSelesai, TxStatusDibatalkan, TxStatusExpire:
		return true
	default:
		return false
	}
}
