package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu       sync.Mutex
	products map[int64]models.Product
	lines    map[string]map[int64]int
	failOn   int64
}

func newMemoryRepo(products ...models.Product) *memoryRepo {
	r := &memoryRepo{products: map[int64]models.Product{}, lines: map[string]map[int64]int{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memoryRepo) ListLines(ctx context.Context, owner string) ([]models.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.CartLine
	for pid, qty := range r.lines[owner] {
		out = append(out, models.CartLine{OwnerID: owner, ProductID: pid, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, owner string, now time.Time) ([]models.CartItem, error) {
	lines, _ := r.ListLines(ctx, owner)
	var out []models.CartItem
	for _, l := range lines {
		p := r.products[l.ProductID]
		price := p.EffectivePrice(now)
		out = append(out, models.CartItem{CartLine: l, Product: p, UnitPrice: price, Subtotal: price.Mul(decimal.NewFromInt(int64(l.Quantity)))})
	}
	return out, nil
}

func (r *memoryRepo) UpsertLine(ctx context.Context, owner string, productID int64, quantity int) (*models.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if productID == r.failOn {
		return nil, errors.New("connection reset")
	}
	if _, ok := r.products[productID]; !ok {
		return nil, database.ErrProductNotFound
	}
	if r.lines[owner] == nil {
		r.lines[owner] = map[int64]int{}
	}
	r.lines[owner][productID] += quantity
	return &models.CartLine{OwnerID: owner, ProductID: productID, Quantity: r.lines[owner][productID]}, nil
}

func (r *memoryRepo) SetQuantity(ctx context.Context, owner string, productID int64, quantity int) (*models.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lines[owner][productID]; !ok {
		return nil, database.ErrCartLineNotFound
	}
	r.lines[owner][productID] = quantity
	return &models.CartLine{OwnerID: owner, ProductID: productID, Quantity: quantity}, nil
}

func (r *memoryRepo) DeleteLine(ctx context.Context, owner string, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lines[owner][productID]; !ok {
		return database.ErrCartLineNotFound
	}
	delete(r.lines[owner], productID)
	return nil
}

func (r *memoryRepo) Clear(ctx context.Context, owner string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.lines[owner]))
	delete(r.lines, owner)
	return n, nil
}

var (
	buyer = identity.Identity{Subject: "auth0|buyer", Email: "buyer@example.com", Name: "Buyer"}
	chair = models.Product{ID: 1, Name: "Chair", Price: decimal.NewFromInt(500), StockQuantity: 10}
	table = models.Product{ID: 2, Name: "Table", Price: decimal.NewFromInt(1200), StockQuantity: 10}
)

func newTestService(repo Repository) (*Service, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewService(repo, logger), hook
}

func TestAddLineMergesQuantity(t *testing.T) {
	repo := newMemoryRepo(chair)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddLine(ctx, buyer, chair.ID, 1)
	require.NoError(t, err)
	line, err := svc.AddLine(ctx, buyer, chair.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)

	view, err := svc.GetCart(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(1000)))
}

func TestAddLineValidates(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(chair))

	_, err := svc.AddLine(context.Background(), buyer, chair.ID, 0)
	assert.ErrorIs(t, err, database.ErrValidation)
}

func TestAnonymousOperations(t *testing.T) {
	repo := newMemoryRepo(chair)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.GetCart(ctx, identity.Anonymous)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	_, err = svc.AddLine(ctx, identity.Anonymous, chair.ID, 1)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	line, err := svc.UpdateLine(ctx, identity.Anonymous, chair.ID, 3)
	assert.NoError(t, err)
	assert.Nil(t, line)

	assert.NoError(t, svc.RemoveLine(ctx, identity.Anonymous, chair.ID))

	n, err := svc.ClearCart(ctx, identity.Anonymous)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.lines)
}

func TestMergeOnLoginEmptyIsNoop(t *testing.T) {
	repo := newMemoryRepo(chair)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddLine(ctx, buyer, chair.ID, 2)
	require.NoError(t, err)

	result, err := svc.MergeOnLogin(ctx, buyer, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Merged)

	lines, err := repo.ListLines(ctx, buyer.Subject)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestMergeOnLoginTwiceDoubleCounts(t *testing.T) {
	repo := newMemoryRepo(chair)
	svc, _ := newTestService(repo)
	ctx := context.Background()
	snapshot := []Line{{ProductID: chair.ID, Quantity: 2}}

	_, err := svc.MergeOnLogin(ctx, buyer, snapshot)
	require.NoError(t, err)
	_, err = svc.MergeOnLogin(ctx, buyer, snapshot)
	require.NoError(t, err)

	lines, err := repo.ListLines(ctx, buyer.Subject)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)
}

func TestMergeOnLoginSkipsMissingProducts(t *testing.T) {
	repo := newMemoryRepo(chair, table)
	svc, hook := newTestService(repo)
	ctx := context.Background()

	result, err := svc.MergeOnLogin(ctx, buyer, []Line{
		{ProductID: chair.ID, Quantity: 1},
		{ProductID: 99, Quantity: 1},
		{ProductID: table.ID, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Merged)
	assert.Equal(t, []int64{99}, result.Skipped)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["product_id"] == int64(99) {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the missing product")
}

func TestMergeOnLoginAnonymous(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(chair))

	_, err := svc.MergeOnLogin(context.Background(), identity.Anonymous, []Line{{ProductID: chair.ID, Quantity: 1}})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestReconcileClearsEphemeral(t *testing.T) {
	repo := newMemoryRepo(chair)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	guest := NewEphemeralCart([]Line{{ProductID: chair.ID, Quantity: 1}, {ProductID: chair.ID, Quantity: 1}})
	lines, err := guest.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1, "ephemeral cart keeps one line per product")

	result, err := Reconcile(ctx, guest, NewPersistedCart(repo, buyer.Subject), logger)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merged)

	lines, err = guest.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	persisted, err := NewPersistedCart(repo, buyer.Subject).Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: chair.ID, Quantity: 2}}, persisted)
}

func TestReconcileKeepsEphemeralOnFailure(t *testing.T) {
	repo := newMemoryRepo(chair, table)
	repo.failOn = table.ID
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	guest := NewEphemeralCart([]Line{{ProductID: chair.ID, Quantity: 1}, {ProductID: table.ID, Quantity: 1}})

	_, err := Reconcile(ctx, guest, NewPersistedCart(repo, buyer.Subject), logger)
	require.Error(t, err)

	lines, err := guest.Lines(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}
