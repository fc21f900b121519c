// Package memory provides an in-process Repository used for local
// development and tests. It mirrors the behavior of the postgres store,
// including error semantics.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	settings     domain.Settings
	transactions map[string]domain.Transaction
	orderIndex   map[string]string
	laporan      map[string]domain.Laporan
	costs        []domain.OperationalCost
	users        map[string]domain.UserAccount
	counters     map[string]int64
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		transactions: make(map[string]domain.Transaction),
		orderIndex:   make(map[string]string),
		laporan:      make(map[string]domain.Laporan),
		users:        make(map[string]domain.UserAccount),
		counters:     make(map[string]int64),
	}
}

// NewSeeded returns a store pre-filled with a small warung catalog and the
// default accounts, for running the server without postgres.
func NewSeeded() *Store {
	s := New()
	now := time.Now()
	seed := []domain.Product{
		{ID: "brg-seed-1", Kode: "MKN-001", Name: "Nasi Goreng Spesial", Category: "makanan", HargaBeli: 12000, HargaJual: 22000, HargaFinal: 22000, Stok: 40, StokMinimum: 5, Status: domain.ProductStatusPublished},
		{ID: "brg-seed-2", Kode: "MKN-002", Name: "Ayam Bakar Madu", Category: "makanan", HargaBeli: 15000, HargaJual: 28000, HargaFinal: 28000, Stok: 25, StokMinimum: 5, Status: domain.ProductStatusPublished},
		{ID: "brg-seed-3", Kode: "MNM-001", Name: "Es Teh Manis", Category: "minuman", HargaBeli: 2000, HargaJual: 6000, HargaFinal: 6000, Stok: 100, StokMinimum: 10, Status: domain.ProductStatusPublished},
		{ID: "brg-seed-4", Kode: "MNM-002", Name: "Kopi Susu Gula Aren", Category: "minuman", HargaBeli: 6000, HargaJual: 15000, HargaFinal: 15000, Stok: 60, StokMinimum: 10, Status: domain.ProductStatusPublished},
		{ID: "brg-seed-5", Kode: "CML-001", Name: "Pisang Goreng Keju", Category: "camilan", HargaBeli: 5000, HargaJual: 12000, HargaFinal: 12000, Stok: 30, StokMinimum: 5, Status: domain.ProductStatusPending},
	}
	for _, p := range seed {
		s.products[p.ID] = p
	}
	s.seedUser("admin", "Administrator", envOr("SEED_ADMIN_PASSWORD", "admin12345"), domain.RoleAdmin, now)
	s.seedUser("manager", "Manajer Toko", envOr("SEED_MANAGER_PASSWORD", "manager12345"), domain.RoleManager, now)
	s.seedUser("kasir1", "Kasir Satu", envOr("SEED_KASIR_PASSWORD", "kasir12345"), domain.RoleKasir, now)
	s.seedUser("kasir2", "Kasir Dua", envOr("SEED_KASIR_PASSWORD", "kasir12345"), domain.RoleKasir, now)
	return s
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	log.Printf("[memory] WARN: %s not set, seeding default credential for local use only", key)
	return fallback
}

func (s *Store) seedUser(username, name, password, role string, at time.Time) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[memory] WARN: seeding user %s failed: %v", username, err)
		return
	}
	s.users[username] = domain.UserAccount{
		Username:  username,
		Name:      name,
		Password:  string(hash),
		Role:      role,
		Active:    true,
		CreatedAt: at,
	}
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.Kode == p.Kode {
			return domain.Product{}, store.ErrDuplicate
		}
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return domain.Product{}, store.ErrNotFound
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProductByKode(_ context.Context, kode string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.Kode == kode {
			return p, nil
		}
	}
	return domain.Product{}, store.ErrNotFound
}

func (s *Store) GetProductByName(_ context.Context, name string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return domain.Product{}, store.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kode < out[j].Kode })
	return out, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	next := p.Stok + delta
	if next < 0 {
		return 0, store.ErrInsufficientStock
	}
	p.Stok = next
	s.products[id] = p
	return next, nil
}

func (s *Store) SetStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Stok = qty
	s.products[id] = p
	return nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t domain.Transaction) (domain.Transaction, error) {
	if t.ID == "" || t.OrderID == "" {
		return domain.Transaction{}, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orderIndex[t.OrderID]; ok {
		return domain.Transaction{}, store.ErrDuplicate
	}
	s.transactions[t.ID] = t
	s.orderIndex[t.OrderID] = t.ID
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetTransactionByOrderID(_ context.Context, orderID string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.orderIndex[orderID]
	if !ok {
		return domain.Transaction{}, store.ErrNotFound
	}
	return s.transactions[id], nil
}

func (s *Store) UpdateTransaction(_ context.Context, t domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; !ok {
		return store.ErrNotFound
	}
	s.transactions[t.ID] = t
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.transactions, id)
	delete(s.orderIndex, t.OrderID)
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetLaporanByDate(_ context.Context, isoDate string) (domain.Laporan, error) {
	day, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return domain.Laporan{}, store.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.laporan {
		if !day.Before(truncateDay(l.PeriodStart)) && !day.After(truncateDay(l.PeriodEnd)) {
			return l, nil
		}
	}
	return domain.Laporan{}, store.ErrNotFound
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Store) ListLaporan(_ context.Context) ([]domain.Laporan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Laporan, 0, len(s.laporan))
	for _, l := range s.laporan {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, nil
}

func (s *Store) SaveLaporan(_ context.Context, l domain.Laporan) error {
	if l.ID == "" {
		return store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// One document per period: a new id whose start date collides with an
	// existing document lost a creation race and must be rejected.
	start := truncateDay(l.PeriodStart)
	for id, existing := range s.laporan {
		if id != l.ID && truncateDay(existing.PeriodStart).Equal(start) {
			return store.ErrDuplicate
		}
	}
	s.laporan[l.ID] = l
	return nil
}

func (s *Store) CreateOperationalCost(_ context.Context, c domain.OperationalCost) (domain.OperationalCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costs = append(s.costs, c)
	return c, nil
}

func (s *Store) LatestOperationalCost(_ context.Context) (domain.OperationalCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.costs) == 0 {
		return domain.OperationalCost{}, store.ErrNotFound
	}
	latest := s.costs[0]
	for _, c := range s.costs[1:] {
		if c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return latest, nil
}

func (s *Store) CreateUser(_ context.Context, u domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return store.ErrDuplicate
	}
	s.users[u.Username] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; !ok {
		return store.ErrNotFound
	}
	s.users[u.Username] = u
	return nil
}

func (s *Store) ListUsersByRole(_ context.Context, role string) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0)
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) NextCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}
