package store

import (
	"context"
	"errors"

	"warungpos/backend/internal/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrInsufficientStock is returned when a decrement would take stock
	// below zero.
	ErrInsufficientStock = errors.New("store: insufficient stock")
	// ErrInvalidTransaction is returned for malformed transaction writes.
	ErrInvalidTransaction = errors.New("store: invalid transaction")
	// ErrNoActiveCashier is returned when round-robin assignment finds an
	// empty candidate pool.
	ErrNoActiveCashier = errors.New("store: no active cashier")
)

// Repository is the primary persistence surface. Both the postgres and the
// in-memory implementation satisfy it.
type Repository interface {
	// Products.
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	GetProductByKode(ctx context.Context, kode string) (domain.Product, error)
	GetProductByName(ctx context.Context, name string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// AdjustStock applies delta to the stored stock level and returns the
	// resulting quantity. A negative delta that would underflow returns
	// ErrInsufficientStock and leaves the row untouched.
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
	// SetStock overwrites the stock level, reconciling against the
	// real-time store's view.
	SetStock(ctx context.Context, id string, qty int) error

	// Global pricing settings.
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error

	// Transactions.
	CreateTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	GetTransactionByOrderID(ctx context.Context, orderID string) (domain.Transaction, error)
	UpdateTransaction(ctx context.Context, t domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)

	// Monthly sales ledger documents.
	GetLaporanByDate(ctx context.Context, isoDate string) (domain.Laporan, error)
	ListLaporan(ctx context.Context) ([]domain.Laporan, error)
	SaveLaporan(ctx context.Context, l domain.Laporan) error

	// Operational costs.
	CreateOperationalCost(ctx context.Context, c domain.OperationalCost) (domain.OperationalCost, error)
	LatestOperationalCost(ctx context.Context) (domain.OperationalCost, error)

	// Users and cashier pool.
	CreateUser(ctx context.Context, u domain.UserAccount) error
	GetUser(ctx context.Context, username string) (domain.UserAccount, error)
	UpdateUser(ctx context.Context, u domain.UserAccount) error
	ListUsersByRole(ctx context.Context, role string) ([]domain.UserAccount, error)

	// NextCounter atomically increments the named persistent counter and
	// returns the post-increment value. The first call for a key returns 1.
	NextCounter(ctx context.Context, key string) (int64, error)
}
