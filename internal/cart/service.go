// Package cart presents one logical cart whether or not the caller is signed in,
// and folds a guest cart into the server cart when the guest signs in.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrAuthenticationRequired tells the caller to keep the cart on the client instead.
var ErrAuthenticationRequired = errors.New("authentication required")

type View struct {
	Items []models.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

type MergeResult struct {
	Merged  int     `json:"merged"`
	Skipped []int64 `json:"skipped_product_ids"`
}

type Service struct {
	repo Repository
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewService(repo Repository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// GetCart returns the signed-in owner's lines priced at the current effective price.
// Guests hold their cart locally and get ErrAuthenticationRequired.
func (s *Service) GetCart(ctx context.Context, id identity.Identity) (*View, error) {
	if !id.IsAuthenticated() {
		return nil, ErrAuthenticationRequired
	}

	items, err := s.repo.ListItems(ctx, id.Subject, s.now())
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}

	return &View{Items: items, Total: total}, nil
}

func (s *Service) AddLine(ctx context.Context, id identity.Identity, productID int64, quantity int) (*models.CartLine, error) {
	if !id.IsAuthenticated() {
		return nil, ErrAuthenticationRequired
	}
	if err := checkLine(productID, quantity); err != nil {
		return nil, err
	}

	return s.repo.UpsertLine(ctx, id.Subject, productID, quantity)
}

// UpdateLine sets the quantity of an existing line. For guests it acknowledges without doing anything.
func (s *Service) UpdateLine(ctx context.Context, id identity.Identity, productID int64, quantity int) (*models.CartLine, error) {
	if !id.IsAuthenticated() {
		return nil, nil
	}
	if err := checkLine(productID, quantity); err != nil {
		return nil, err
	}

	return s.repo.SetQuantity(ctx, id.Subject, productID, quantity)
}

func (s *Service) RemoveLine(ctx context.Context, id identity.Identity, productID int64) error {
	if !id.IsAuthenticated() {
		return nil
	}

	return s.repo.DeleteLine(ctx, id.Subject, productID)
}

// MergeOnLogin adds every guest line to the server cart with the same merge rule as AddLine.
// Calling it twice with the same snapshot counts the quantities twice; the client must
// drop its snapshot once this returns.
func (s *Service) MergeOnLogin(ctx context.Context, id identity.Identity, guestLines []Line) (*MergeResult, error) {
	if !id.IsAuthenticated() {
		return nil, ErrAuthenticationRequired
	}

	return Reconcile(ctx, NewEphemeralCart(guestLines), NewPersistedCart(s.repo, id.Subject), s.log.WithField("owner", id.Subject))
}

func (s *Service) ClearCart(ctx context.Context, id identity.Identity) (int64, error) {
	if !id.IsAuthenticated() {
		return 0, nil
	}

	return s.repo.Clear(ctx, id.Subject)
}

// Reconcile moves every line of the ephemeral cart into the persisted one and then clears the
// ephemeral cart. Lines whose product no longer exists are skipped and logged; any other
// failure stops the merge and leaves the ephemeral cart intact.
func Reconcile(ctx context.Context, ephemeral, persisted CartSource, log logrus.FieldLogger) (*MergeResult, error) {
	lines, err := ephemeral.Lines(ctx)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Skipped: []int64{}}
	for _, line := range lines {
		if err := checkLine(line.ProductID, line.Quantity); err != nil {
			log.WithFields(logrus.Fields{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			}).Warn("skipping malformed guest cart line")
			result.Skipped = append(result.Skipped, line.ProductID)
			continue
		}

		err := persisted.Add(ctx, line.ProductID, line.Quantity)
		switch {
		case err == nil:
			result.Merged++
		case errors.Is(err, database.ErrProductNotFound):
			log.WithField("product_id", line.ProductID).Warn("skipping guest cart line for missing product")
			result.Skipped = append(result.Skipped, line.ProductID)
		default:
			return nil, fmt.Errorf("merge product %d: %w", line.ProductID, err)
		}
	}

	if err := ephemeral.Clear(ctx); err != nil {
		return nil, err
	}

	if len(lines) > 0 {
		log.WithFields(logrus.Fields{
			"merged":  result.Merged,
			"skipped": len(result.Skipped),
		}).Info("guest cart merged")
	}

	return result, nil
}

func checkLine(productID int64, quantity int) error {
	if productID <= 0 {
		return fmt.Errorf("%w: product id must be positive", database.ErrValidation)
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", database.ErrValidation)
	}
	return nil
}
