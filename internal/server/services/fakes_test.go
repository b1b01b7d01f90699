package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/cache"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/carts"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/categories"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/products"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/users"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "hashed:" + pw, nil }
func (plainHasher) Compare(hash, pw string) error {
	if hash != "hashed:"+pw {
		return auth.ErrPasswordMismatch
	}
	return nil
}

type countingHasher struct {
	plainHasher
	hashes, compares int
}

func (h *countingHasher) Hash(pw string) (string, error) {
	h.hashes++
	return h.plainHasher.Hash(pw)
}

func (h *countingHasher) Compare(hash, pw string) error {
	h.compares++
	return h.plainHasher.Compare(hash, pw)
}

type sentMail struct {
	To, Subject, HTML string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

type published struct {
	Subject string
	Event   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Subject: subject, Event: event})
	return p.err
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Subject)
	}
	return out
}

// memUsers is an in-memory users.Repository.
type memUsers struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	order  []string
	nextID int
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*models.User{}}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Roles = append([]models.Role(nil), u.Roles...)
	if u.Otp.Code != nil {
		code := *u.Otp.Code
		c.Otp.Code = &code
	}
	if u.Otp.ExpiresAt != nil {
		exp := *u.Otp.ExpiresAt
		c.Otp.ExpiresAt = &exp
	}
	return &c
}

func (r *memUsers) find(email string) *models.User {
	for _, id := range r.order {
		if u := r.byID[id]; strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (r *memUsers) get(id string) (*models.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (r *memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.find(user.Email) != nil {
		return nil, common.ErrorConflict
	}
	r.nextID++
	u := cloneUser(user)
	u.ID = fmt.Sprintf("u%d", r.nextID)
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now()
	r.byID[u.ID] = u
	r.order = append(r.order, u.ID)
	return cloneUser(u), nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u := r.find(email)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return cloneUser(u), nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

func (r *memUsers) List(context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *cloneUser(r.byID[id]))
	}
	return out, nil
}

func (r *memUsers) update(id string, fn func(u *models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return err
	}
	fn(u)
	return nil
}

func (r *memUsers) SetOtp(_ context.Context, id string, state models.OtpState) error {
	return r.update(id, func(u *models.User) { u.Otp = cloneUser(&models.User{Otp: state}).Otp })
}

func (r *memUsers) ClearOtp(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) { u.Otp = models.OtpState{} })
}

func (r *memUsers) IncrementOtpAttempts(_ context.Context, id string, max int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return 0, err
	}
	if u.Otp.Code == nil || u.Otp.AttemptsUsed >= max {
		return 0, common.ErrorNotFound
	}
	u.Otp.AttemptsUsed++
	return u.Otp.AttemptsUsed, nil
}

func (r *memUsers) MarkOtpVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) { u.Otp.Verified = true })
}

func (r *memUsers) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) {
		u.EmailVerified = true
		u.Otp = models.OtpState{}
	})
}

func (r *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return r.update(id, func(u *models.User) {
		u.PasswordHash = hash
		u.Otp = models.OtpState{}
	})
}

func (r *memUsers) GetRoles(_ context.Context, id string) ([]models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return append([]models.Role(nil), u.Roles...), nil
}

func (r *memUsers) AddRole(_ context.Context, id string, role models.Role) error {
	return r.update(id, func(u *models.User) {
		for _, have := range u.Roles {
			if have == role {
				return
			}
		}
		u.Roles = append(u.Roles, role)
	})
}

func (r *memUsers) RemoveRole(_ context.Context, id string, role models.Role) (bool, error) {
	removed := false
	err := r.update(id, func(u *models.User) {
		kept := u.Roles[:0]
		for _, have := range u.Roles {
			if have == role {
				removed = true
				continue
			}
			kept = append(kept, have)
		}
		u.Roles = kept
	})
	return removed, err
}

// memProducts is an in-memory products.Repository.
type memProducts struct {
	mu     sync.Mutex
	byID   map[string]*models.Product
	nextID int
	err    error
}

func newMemProducts() *memProducts {
	return &memProducts{byID: map[string]*models.Product{}}
}

func (r *memProducts) put(p models.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.byID[p.ID] = &cp
}

func (r *memProducts) Create(_ context.Context, p *models.Product) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.nextID++
	cp := *p
	cp.ID = fmt.Sprintf("p%d", r.nextID)
	r.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memProducts) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProducts) GetForCart(ctx context.Context, id string) (*models.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *memProducts) list(keep func(p *models.Product) bool) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Product
	for _, p := range r.byID {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memProducts) ListActive(context.Context) ([]models.Product, error) {
	return r.list(func(p *models.Product) bool { return p.IsActive })
}

func (r *memProducts) ListActiveByCategory(_ context.Context, categoryID string) ([]models.Product, error) {
	return r.list(func(p *models.Product) bool { return p.IsActive && p.CategoryID == categoryID })
}

func (r *memProducts) update(id string, fn func(p *models.Product)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	p, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(p)
	return nil
}

func (r *memProducts) Update(_ context.Context, p *models.Product) error {
	return r.update(p.ID, func(cur *models.Product) { *cur = *p })
}

func (r *memProducts) SetActive(_ context.Context, id string, active bool) error {
	return r.update(id, func(p *models.Product) { p.IsActive = active })
}

func (r *memProducts) SetImageKey(_ context.Context, id, key string) error {
	return r.update(id, func(p *models.Product) { p.ImageKey = key })
}

func (r *memProducts) CountByCategory(_ context.Context, categoryID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, p := range r.byID {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

// memCategories is an in-memory categories.Repository.
type memCategories struct {
	mu     sync.Mutex
	byID   map[string]*models.Category
	nextID int
	err    error
}

func newMemCategories() *memCategories {
	return &memCategories{byID: map[string]*models.Category{}}
}

func (r *memCategories) put(c models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := c
	r.byID[c.ID] = &cp
}

func (r *memCategories) Create(_ context.Context, c *models.Category) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.nextID++
	cp := *c
	cp.ID = fmt.Sprintf("c%d", r.nextID)
	r.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memCategories) GetByID(_ context.Context, id string) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCategories) NameTaken(_ context.Context, name, exceptID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for id, c := range r.byID {
		if id != exceptID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCategories) List(_ context.Context, includeInactive bool) ([]models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Category
	for _, c := range r.byID {
		if c.IsActive || includeInactive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memCategories) update(id string, fn func(c *models.Category)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	c, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(c)
	return nil
}

func (r *memCategories) Update(_ context.Context, c *models.Category) error {
	return r.update(c.ID, func(cur *models.Category) { *cur = *c })
}

func (r *memCategories) SetActive(_ context.Context, id string, active bool) error {
	return r.update(id, func(c *models.Category) { c.IsActive = active })
}

func (r *memCategories) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.byID, id)
	return nil
}

// memCarts is an in-memory carts.Repository. Product names come from
// products, the way the SQL join does it.
type memCarts struct {
	mu       sync.Mutex
	byUser   map[string]string
	lines    map[string][]models.CartLine
	nextID   int
	products *memProducts
	err      error
}

func newMemCarts(p *memProducts) *memCarts {
	return &memCarts{byUser: map[string]string{}, lines: map[string][]models.CartLine{}, products: p}
}

func (r *memCarts) GetOrCreate(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	if id, ok := r.byUser[userID]; ok {
		return id, nil
	}
	r.nextID++
	id := fmt.Sprintf("cart%d", r.nextID)
	r.byUser[userID] = id
	return id, nil
}

func (r *memCarts) FindID(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	id, ok := r.byUser[userID]
	if !ok {
		return "", common.ErrorNotFound
	}
	return id, nil
}

func (r *memCarts) index(cartID, productID string) int {
	for i, l := range r.lines[cartID] {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (r *memCarts) GetLine(_ context.Context, cartID, productID string) (*models.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	i := r.index(cartID, productID)
	if i < 0 {
		return nil, common.ErrorNotFound
	}
	l := r.lines[cartID][i]
	return &l, nil
}

func (r *memCarts) MergeLine(_ context.Context, cartID, productID string, quantity int, price int64, stock int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, false, r.err
	}
	i := r.index(cartID, productID)
	if i < 0 {
		if quantity > stock {
			return 0, false, nil
		}
		r.nextID++
		r.lines[cartID] = append(r.lines[cartID], models.CartLine{
			ID: fmt.Sprintf("line%d", r.nextID), CartID: cartID, ProductID: productID,
			Quantity: quantity, UnitPriceCents: price, AddedAt: time.Now(),
		})
		return quantity, true, nil
	}
	l := &r.lines[cartID][i]
	merged := l.Quantity + quantity
	if merged > stock {
		return 0, false, nil
	}
	l.Quantity = merged
	l.UnitPriceCents = price
	return merged, true, nil
}

func (r *memCarts) SetLine(_ context.Context, cartID, productID string, quantity int, price int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	i := r.index(cartID, productID)
	if i < 0 {
		return common.ErrorNotFound
	}
	r.lines[cartID][i].Quantity = quantity
	r.lines[cartID][i].UnitPriceCents = price
	return nil
}

func (r *memCarts) DeleteLine(_ context.Context, cartID, productID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	i := r.index(cartID, productID)
	if i < 0 {
		return false, nil
	}
	r.lines[cartID] = append(r.lines[cartID][:i], r.lines[cartID][i+1:]...)
	return true, nil
}

func (r *memCarts) DeleteLines(_ context.Context, cartID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := len(r.lines[cartID])
	delete(r.lines, cartID)
	return int64(n), nil
}

func (r *memCarts) Lines(ctx context.Context, cartID string) ([]models.CartLine, error) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return nil, r.err
	}
	out := append([]models.CartLine(nil), r.lines[cartID]...)
	r.mu.Unlock()

	for i := range out {
		if p, err := r.products.GetByID(ctx, out[i].ProductID); err == nil {
			out[i].ProductName = p.Name
		}
	}
	return out, nil
}

func (r *memCarts) Touch(context.Context, string) error {
	return r.err
}

type fakeRepoManager struct {
	users      *memUsers
	products   *memProducts
	categories *memCategories
	carts      *memCarts
}

func newFakeRepoManager() *fakeRepoManager {
	p := newMemProducts()
	return &fakeRepoManager{
		users:      newMemUsers(),
		products:   p,
		categories: newMemCategories(),
		carts:      newMemCarts(p),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.users }
func (m *fakeRepoManager) Carts(dbx.DBTX) carts.Repository             { return m.carts }
func (m *fakeRepoManager) Products(dbx.DBTX) products.Repository       { return m.products }
func (m *fakeRepoManager) Categories(dbx.DBTX) categories.Repository   { return m.categories }

// fakeCache is a map-backed cache.ProductCache that counts hits.
type fakeCache struct {
	mu      sync.Mutex
	items   map[string]models.Product
	hits    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]models.Product{}}
}

func (c *fakeCache) Get(_ context.Context, id string) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	if !ok {
		return nil, cache.ErrMiss
	}
	c.hits++
	return &p, nil
}

func (c *fakeCache) Set(_ context.Context, p *models.Product, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.ID] = *p
	return nil
}

func (c *fakeCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.items, id)
	return nil
}

type fakeImages struct {
	putErr error
}

func (f *fakeImages) PresignPut(_ context.Context, key, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	return "https://s3.test/put/" + key, nil
}

func (f *fakeImages) PresignGet(_ context.Context, key string) (string, error) {
	return "https://s3.test/get/" + key, nil
}
