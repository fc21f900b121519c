// Package postgres implements the Repository on PostgreSQL through
// database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			kode TEXT NOT NULL UNIQUE,
			nama TEXT NOT NULL,
			kategori TEXT NOT NULL DEFAULT '',
			harga_beli BIGINT NOT NULL DEFAULT 0,
			harga_jual BIGINT NOT NULL DEFAULT 0,
			harga_final BIGINT NOT NULL DEFAULT 0,
			stok INTEGER NOT NULL DEFAULT 0,
			stok_minimum INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending'
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			pajak_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			diskon_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			service_charge_pct DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			items JSONB NOT NULL DEFAULT '[]',
			total BIGINT NOT NULL DEFAULT 0,
			metode_pembayaran TEXT NOT NULL DEFAULT '',
			payment_type TEXT NOT NULL DEFAULT '',
			va_number TEXT NOT NULL DEFAULT '',
			snap_token TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			kasir TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS laporan (
			id TEXT PRIMARY KEY,
			periode_awal TIMESTAMPTZ NOT NULL,
			periode_akhir TIMESTAMPTZ NOT NULL,
			doc JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operational_costs (
			id TEXT PRIMARY KEY,
			total BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			nama TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			key TEXT PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0
		)`,
		// One ledger document per period start. Racing first posters of a
		// new month both insert; the loser gets a unique violation and
		// refetches the winner's document.
		`CREATE UNIQUE INDEX IF NOT EXISTS laporan_periode_awal_idx
			ON laporan ((periode_awal::date))`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const productColumns = `id, kode, nama, kategori, harga_beli, harga_jual, harga_final, stok, stok_minimum, status`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Kode, &p.Name, &p.Category, &p.HargaBeli, &p.HargaJual, &p.HargaFinal, &p.Stok, &p.StokMinimum, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Kode, p.Name, p.Category, p.HargaBeli, p.HargaJual, p.HargaFinal, p.Stok, p.StokMinimum, p.Status)
	if isUniqueViolation(err) {
		return domain.Product{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET kode=$2, nama=$3, kategori=$4, harga_beli=$5, harga_jual=$6, harga_final=$7, stok=$8, stok_minimum=$9, status=$10 WHERE id=$1`,
		p.ID, p.Kode, p.Name, p.Category, p.HargaBeli, p.HargaJual, p.HargaFinal, p.Stok, p.StokMinimum, p.Status)
	if isUniqueViolation(err) {
		return domain.Product{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (s *Store) GetProductByKode(ctx context.Context, kode string) (domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE kode=$1`, kode))
}

func (s *Store) GetProductByName(ctx context.Context, name string) (domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE lower(nama)=lower($1)`, name))
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY kode`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	var stok int
	err := s.db.QueryRowContext(ctx,
		`UPDATE products SET stok = stok + $2 WHERE id=$1 AND stok + $2 >= 0 RETURNING stok`,
		id, delta).Scan(&stok)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing row from an underflow.
		var exists bool
		if probeErr := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, id).Scan(&exists); probeErr != nil {
			return 0, fmt.Errorf("adjust stock: %w", probeErr)
		}
		if !exists {
			return 0, store.ErrNotFound
		}
		return 0, store.ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return stok, nil
}

func (s *Store) SetStock(ctx context.Context, id string, qty int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET stok=$2 WHERE id=$1`, id, qty)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var out domain.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT pajak_pct, diskon_pct, service_charge_pct FROM settings WHERE id=1`).
		Scan(&out.TaxPct, &out.DiscountPct, &out.ServiceChargePct)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return out, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, pajak_pct, diskon_pct, service_charge_pct) VALUES (1,$1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET pajak_pct=EXCLUDED.pajak_pct, diskon_pct=EXCLUDED.diskon_pct, service_charge_pct=EXCLUDED.service_charge_pct`,
		settings.TaxPct, settings.DiscountPct, settings.ServiceChargePct)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if t.ID == "" || t.OrderID == "" {
		return domain.Transaction{}, store.ErrInvalidTransaction
	}
	items, err := json.Marshal(t.Items)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("marshal items: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, order_id, items, total, metode_pembayaran, payment_type, va_number, snap_token, status, kasir, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.OrderID, items, t.Total, t.PaymentMethod, t.PaymentType, t.VANumber, t.SnapToken, t.Status, t.KasirUsername, t.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Transaction{}, store.ErrDuplicate
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var t domain.Transaction
	var items []byte
	err := row.Scan(&t.ID, &t.OrderID, &items, &t.Total, &t.PaymentMethod, &t.PaymentType, &t.VANumber, &t.SnapToken, &t.Status, &t.KasirUsername, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal items: %w", err)
	}
	return t, nil
}

const transactionColumns = `id, order_id, items, total, metode_pembayaran, payment_type, va_number, snap_token, status, kasir, created_at`

func (s *Store) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
}

func (s *Store) GetTransactionByOrderID(ctx context.Context, orderID string) (domain.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE order_id=$1`, orderID))
}

func (s *Store) UpdateTransaction(ctx context.Context, t domain.Transaction) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET items=$2, total=$3, metode_pembayaran=$4, payment_type=$5, va_number=$6, snap_token=$7, status=$8, kasir=$9 WHERE id=$1`,
		t.ID, items, t.Total, t.PaymentMethod, t.PaymentType, t.VANumber, t.SnapToken, t.Status, t.KasirUsername)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetLaporanByDate(ctx context.Context, isoDate string) (domain.Laporan, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM laporan WHERE $1::date BETWEEN periode_awal::date AND periode_akhir::date`,
		isoDate).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Laporan{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Laporan{}, fmt.Errorf("get laporan: %w", err)
	}
	var l domain.Laporan
	if err := json.Unmarshal(doc, &l); err != nil {
		return domain.Laporan{}, fmt.Errorf("unmarshal laporan: %w", err)
	}
	return l, nil
}

func (s *Store) ListLaporan(ctx context.Context) ([]domain.Laporan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM laporan ORDER BY periode_awal DESC`)
	if err != nil {
		return nil, fmt.Errorf("list laporan: %w", err)
	}
	defer rows.Close()
	var out []domain.Laporan
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan laporan: %w", err)
		}
		var l domain.Laporan
		if err := json.Unmarshal(doc, &l); err != nil {
			return nil, fmt.Errorf("unmarshal laporan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) SaveLaporan(ctx context.Context, l domain.Laporan) error {
	if l.ID == "" {
		return store.ErrInvalidTransaction
	}
	doc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal laporan: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO laporan (id, periode_awal, periode_akhir, doc) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc`,
		l.ID, l.PeriodStart, l.PeriodEnd, doc)
	if isUniqueViolation(err) {
		// Period index hit: another document already covers this month.
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("save laporan: %w", err)
	}
	return nil
}

func (s *Store) CreateOperationalCost(ctx context.Context, c domain.OperationalCost) (domain.OperationalCost, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operational_costs (id, total, created_at) VALUES ($1,$2,$3)`,
		c.ID, c.Total, c.CreatedAt)
	if err != nil {
		return domain.OperationalCost{}, fmt.Errorf("insert operational cost: %w", err)
	}
	return c, nil
}

func (s *Store) LatestOperationalCost(ctx context.Context) (domain.OperationalCost, error) {
	var c domain.OperationalCost
	err := s.db.QueryRowContext(ctx,
		`SELECT id, total, created_at FROM operational_costs ORDER BY created_at DESC LIMIT 1`).
		Scan(&c.ID, &c.Total, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OperationalCost{}, store.ErrNotFound
	}
	if err != nil {
		return domain.OperationalCost{}, fmt.Errorf("latest operational cost: %w", err)
	}
	return c, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, nama, password, role, active, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.Username, u.Name, u.Password, u.Role, u.Active, u.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT username, nama, password, role, active, created_at FROM users WHERE username=$1`, username).
		Scan(&u.Username, &u.Name, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserAccount{}, store.ErrNotFound
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u domain.UserAccount) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET nama=$2, password=$3, role=$4, active=$5 WHERE username=$1`,
		u.Username, u.Name, u.Password, u.Role, u.Active)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsersByRole(ctx context.Context, role string) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, nama, password, role, active, created_at FROM users WHERE role=$1 ORDER BY username`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Name, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) NextCounter(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (key, value) VALUES ($1, 1)
		 ON CONFLICT (key) DO UPDATE SET value = counters.value + 1
		 RETURNING value`, key).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next counter: %w", err)
	}
	return value, nil
}
