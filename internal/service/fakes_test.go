package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"prs/internal/model"
	"prs/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memStore backs every fake repository. Rows are stored and returned by value.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	users     map[uint]model.User
	vendors   map[uint]model.Vendor
	products  map[uint]model.Product
	requests  map[uint]model.Request
	lineItems map[uint]model.LineItem
	audits    []model.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[uint]model.User),
		vendors:   make(map[uint]model.Vendor),
		products:  make(map[uint]model.Product),
		requests:  make(map[uint]model.Request),
		lineItems: make(map[uint]model.LineItem),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func sameID(a, b *uint) bool {
	return a != nil && b != nil && *a == *b
}

// --- transactions ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- requests ---

type fakeRequestRepo struct{ s *memStore }

func (r fakeRequestRepo) Create(_ context.Context, req *model.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.requests {
		if existing.RequestNumber == req.RequestNumber {
			return repository.ErrDuplicate
		}
	}
	req.ID = r.s.id()
	row := *req
	row.User = nil
	row.LineItems = nil
	r.s.requests[req.ID] = row
	return nil
}

func (r fakeRequestRepo) FindByID(_ context.Context, id uint) (*model.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r fakeRequestRepo) FindByIDWithRelations(ctx context.Context, id uint) (*model.Request, error) {
	req, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, _ := fakeLineItemRepo(r).ListByRequest(ctx, id)
	req.LineItems = items
	return req, nil
}

func (r fakeRequestRepo) FindByIDForUpdate(ctx context.Context, id uint) (*model.Request, error) {
	return r.FindByID(ctx, id)
}

func (r fakeRequestRepo) Exists(_ context.Context, id uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.requests[id]
	return ok, nil
}

func (r fakeRequestRepo) List(_ context.Context) ([]model.Request, error) {
	return r.filter(func(model.Request) bool { return true }), nil
}

func (r fakeRequestRepo) ListByStatusExcludingUser(_ context.Context, status model.RequestStatus, userID uint) ([]model.Request, error) {
	return r.filter(func(req model.Request) bool {
		return req.Status == status && req.UserID != userID
	}), nil
}

func (r fakeRequestRepo) ListIDsByProduct(_ context.Context, productID uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uint
	for _, item := range r.s.lineItems {
		if item.ProductID == nil || *item.ProductID != productID || item.RequestID == nil {
			continue
		}
		ids = append(ids, *item.RequestID)
	}
	return uniqueIDs(ids...), nil
}

func (r fakeRequestRepo) filter(keep func(model.Request) bool) []model.Request {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Request{}
	for _, req := range r.s.requests {
		if keep(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r fakeRequestRepo) Update(_ context.Context, req *model.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.requests[req.ID]
	if !ok || row.Version != req.Version {
		return repository.ErrStaleVersion
	}
	row.Description = req.Description
	row.Justification = req.Justification
	row.DateNeeded = req.DateNeeded
	row.DeliveryMode = req.DeliveryMode
	row.Version++
	r.s.requests[req.ID] = row
	req.Version++
	return nil
}

func (r fakeRequestRepo) UpdateTotal(_ context.Context, id uint, total decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.Total = total
	row.Version++
	r.s.requests[id] = row
	return nil
}

func (r fakeRequestRepo) UpdateStatus(_ context.Context, req *model.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.requests[req.ID]
	if !ok || row.Version != req.Version {
		return repository.ErrStaleVersion
	}
	row.Status = req.Status
	row.ReasonForRejection = req.ReasonForRejection
	row.Version++
	r.s.requests[req.ID] = row
	req.Version++
	return nil
}

func (r fakeRequestRepo) Delete(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[id]; !ok {
		return repository.ErrNotFound
	}
	for itemID, item := range r.s.lineItems {
		if item.RequestID != nil && *item.RequestID == id {
			delete(r.s.lineItems, itemID)
		}
	}
	delete(r.s.requests, id)
	return nil
}

func (r fakeRequestRepo) CountByNumberPrefix(_ context.Context, prefix string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, req := range r.s.requests {
		if strings.HasPrefix(req.RequestNumber, prefix) {
			n++
		}
	}
	return n, nil
}

func (r fakeRequestRepo) LockNumberPrefix(context.Context, string) error { return nil }

// --- line items ---

type fakeLineItemRepo struct{ s *memStore }

func (r fakeLineItemRepo) duplicate(item *model.LineItem) bool {
	for _, existing := range r.s.lineItems {
		if existing.ID != item.ID && sameID(existing.RequestID, item.RequestID) && sameID(existing.ProductID, item.ProductID) {
			return true
		}
	}
	return false
}

func (r fakeLineItemRepo) Create(_ context.Context, item *model.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.duplicate(item) {
		return repository.ErrDuplicate
	}
	item.ID = r.s.id()
	row := *item
	row.Product = nil
	row.Request = nil
	r.s.lineItems[item.ID] = row
	return nil
}

func (r fakeLineItemRepo) Update(_ context.Context, item *model.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lineItems[item.ID]; !ok {
		return repository.ErrNotFound
	}
	if r.duplicate(item) {
		return repository.ErrDuplicate
	}
	r.s.lineItems[item.ID] = model.LineItem{
		ID:        item.ID,
		RequestID: item.RequestID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	}
	return nil
}

func (r fakeLineItemRepo) Delete(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lineItems[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.lineItems, id)
	return nil
}

func (r fakeLineItemRepo) withProduct(item model.LineItem) model.LineItem {
	if item.ProductID != nil {
		if p, ok := r.s.products[*item.ProductID]; ok {
			item.Product = &p
		}
	}
	return item
}

func (r fakeLineItemRepo) FindByID(_ context.Context, id uint) (*model.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.lineItems[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	item = r.withProduct(item)
	return &item, nil
}

func (r fakeLineItemRepo) List(_ context.Context) ([]model.LineItem, error) {
	return r.filter(func(model.LineItem) bool { return true }), nil
}

func (r fakeLineItemRepo) ListByRequest(_ context.Context, requestID uint) ([]model.LineItem, error) {
	return r.filter(func(item model.LineItem) bool {
		return item.RequestID != nil && *item.RequestID == requestID
	}), nil
}

func (r fakeLineItemRepo) filter(keep func(model.LineItem) bool) []model.LineItem {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.LineItem{}
	for _, item := range r.s.lineItems {
		if keep(item) {
			out = append(out, r.withProduct(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r fakeLineItemRepo) CountByRequest(ctx context.Context, requestID uint) (int64, error) {
	items, _ := r.ListByRequest(ctx, requestID)
	return int64(len(items)), nil
}

// --- catalogue ---

type fakeProductRepo struct{ s *memStore }

func (r fakeProductRepo) Create(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.products {
		if existing.VendorID == p.VendorID && existing.PartNumber == p.PartNumber {
			return repository.ErrDuplicate
		}
	}
	p.ID = r.s.id()
	row := *p
	row.Vendor = nil
	r.s.products[p.ID] = row
	return nil
}

func (r fakeProductRepo) Update(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row := *p
	row.Vendor = nil
	r.s.products[p.ID] = row
	return nil
}

func (r fakeProductRepo) Delete(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrNotFound
	}
	for _, item := range r.s.lineItems {
		if item.ProductID != nil && *item.ProductID == id {
			return repository.ErrInUse
		}
	}
	delete(r.s.products, id)
	return nil
}

func (r fakeProductRepo) FindByID(_ context.Context, id uint) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r fakeProductRepo) FindByIDs(_ context.Context, ids []uint) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r fakeProductRepo) List(_ context.Context) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Product{}
	for _, p := range r.s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeVendorRepo struct{ s *memStore }

func (r fakeVendorRepo) Create(_ context.Context, v *model.Vendor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.vendors {
		if existing.Code == v.Code {
			return repository.ErrDuplicate
		}
	}
	v.ID = r.s.id()
	r.s.vendors[v.ID] = *v
	return nil
}

func (r fakeVendorRepo) FindByID(_ context.Context, id uint) (*model.Vendor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vendors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r fakeVendorRepo) List(_ context.Context) ([]model.Vendor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Vendor{}
	for _, v := range r.s.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- users and audit ---

type fakeUserRepo struct{ s *memStore }

func (r fakeUserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = time.Now()
	r.s.users[u.ID] = *u
	return nil
}

func (r fakeUserRepo) FindByID(_ context.Context, id uint) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r fakeUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.User{}
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type fakeAuditRepo struct{ s *memStore }

func (r fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = r.s.id()
	entry.CreatedAt = time.Now()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r fakeAuditRepo) ListByEntity(_ context.Context, entityType string, entityID uint) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.AuditLog{}
	for _, l := range r.s.audits {
		if l.EntityType == entityType && l.EntityID == entityID {
			if l.UserID != nil {
				if u, ok := r.s.users[*l.UserID]; ok {
					l.User = &u
				}
			}
			out = append(out, l)
		}
	}
	return out, nil
}

// --- notifier ---

type publishedEvent struct {
	Name string
	Data map[string]interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) Publish(event string, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{Name: event, Data: data})
}

func (n *recordingNotifier) named(name string) []publishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []publishedEvent
	for _, e := range n.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// --- wiring ---

var testNow = time.Date(2025, 2, 28, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	store     *memStore
	notifier  *recordingNotifier
	requests  RequestService
	lineItems LineItemService
	products  ProductService
	totals    TotalService
	audit     AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	log := zaptest.NewLogger(t)
	notifier := &recordingNotifier{}
	locks := NewRequestLocks()
	tx := fakeTxManager{}

	requestRepo := fakeRequestRepo{store}
	lineItemRepo := fakeLineItemRepo{store}
	productRepo := fakeProductRepo{store}
	auditRepo := fakeAuditRepo{store}

	totals := NewTotalService(requestRepo, lineItemRepo, productRepo, log)
	numbering := NewNumberingService(requestRepo, tx, func() time.Time { return testNow }, 5, log)

	return &testEnv{
		store:    store,
		notifier: notifier,
		totals:   totals,
		requests: NewRequestService(RequestServiceDeps{
			RequestRepo:          requestRepo,
			LineItemRepo:         lineItemRepo,
			UserRepo:             fakeUserRepo{store},
			AuditRepo:            auditRepo,
			TxManager:            tx,
			Numbering:            numbering,
			Locks:                locks,
			Notifier:             notifier,
			AutoApproveThreshold: decimal.NewFromInt(50),
			Now:                  func() time.Time { return testNow },
			Log:                  log,
		}),
		lineItems: NewLineItemService(lineItemRepo, requestRepo, productRepo, auditRepo, tx, totals, locks, notifier, log),
		products:  NewProductService(productRepo, fakeVendorRepo{store}, requestRepo, auditRepo, tx, totals, locks, notifier, log),
		audit:     NewAuditService(auditRepo, requestRepo),
	}
}

func (e *testEnv) seedUser(t *testing.T, username string, admin bool) uint {
	t.Helper()
	u := &model.User{Username: username, FirstName: username, LastName: "Test", Email: username + "@example.com", Admin: admin}
	require.NoError(t, fakeUserRepo{e.store}.Create(context.Background(), u))
	return u.ID
}

func (e *testEnv) seedProduct(t *testing.T, name, price string) uint {
	t.Helper()
	e.store.mu.Lock()
	vendorID := e.store.id()
	e.store.vendors[vendorID] = model.Vendor{ID: vendorID, Code: "V" + name, Name: name + " Supply"}
	e.store.mu.Unlock()

	p := &model.Product{VendorID: vendorID, PartNumber: "P-" + name, Name: name, Price: decimal.RequireFromString(price)}
	require.NoError(t, fakeProductRepo{e.store}.Create(context.Background(), p))
	return p.ID
}

func (e *testEnv) newRequest(t *testing.T, userID uint) *model.Request {
	t.Helper()
	req, err := e.requests.CreateRequest(context.Background(), userID, CreateRequestDTO{
		Description:   "Office supplies",
		Justification: "Quarterly restock",
		DateNeeded:    testNow.AddDate(0, 0, 14),
		DeliveryMode:  "Pickup",
	})
	require.NoError(t, err)
	return req
}

func (e *testEnv) addItem(t *testing.T, userID, requestID, productID uint, qty int) *model.LineItem {
	t.Helper()
	item, err := e.lineItems.CreateLineItem(context.Background(), userID, CreateLineItemDTO{
		RequestID: &requestID,
		ProductID: &productID,
		Quantity:  qty,
	})
	require.NoError(t, err)
	return item
}

func (e *testEnv) request(t *testing.T, id uint) model.Request {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	req, ok := e.store.requests[id]
	require.True(t, ok, "request %d missing", id)
	return req
}

func uintPtr(v uint) *uint { return &v }
