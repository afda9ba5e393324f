package cart

import (
	"context"
	"sync"

	"github.com/safar/storefront/internal/database"
)

// Line is one product and quantity held by a cart.
type Line struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gte=1"`
}

// CartSource is one representation of a cart. Add merges quantities for a product already present.
type CartSource interface {
	Lines(ctx context.Context) ([]Line, error)
	Add(ctx context.Context, productID int64, quantity int) error
	Clear(ctx context.Context) error
}

// PersistedCart is the server-held cart of one signed-in owner.
type PersistedCart struct {
	repo  Repository
	owner string
}

func NewPersistedCart(repo Repository, owner string) *PersistedCart {
	return &PersistedCart{repo: repo, owner: owner}
}

func (c *PersistedCart) Lines(ctx context.Context) ([]Line, error) {
	stored, err := c.repo.ListLines(ctx, c.owner)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(stored))
	for _, l := range stored {
		lines = append(lines, Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines, nil
}

func (c *PersistedCart) Add(ctx context.Context, productID int64, quantity int) error {
	_, err := c.repo.UpsertLine(ctx, c.owner, productID, quantity)
	return err
}

func (c *PersistedCart) Clear(ctx context.Context) error {
	_, err := c.repo.Clear(ctx, c.owner)
	return err
}

// EphemeralCart is a guest cart held by the client and handed over as a snapshot.
// It has no durability; the snapshot is gone once cleared.
type EphemeralCart struct {
	mu    sync.Mutex
	lines []Line
}

func NewEphemeralCart(lines []Line) *EphemeralCart {
	c := &EphemeralCart{}
	for _, l := range lines {
		c.add(l.ProductID, l.Quantity)
	}
	return c
}

func (c *EphemeralCart) Lines(ctx context.Context) ([]Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out, nil
}

func (c *EphemeralCart) Add(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 || quantity < 1 {
		return database.ErrValidation
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.add(productID, quantity)
	return nil
}

func (c *EphemeralCart) add(productID int64, quantity int) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Quantity += quantity
			return
		}
	}
	c.lines = append(c.lines, Line{ProductID: productID, Quantity: quantity})
}

func (c *EphemeralCart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = nil
	return nil
}
