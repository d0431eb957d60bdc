package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"warungpos/internal/config"
	"warungpos/internal/domain"
	"warungpos/internal/notify"
	"warungpos/internal/permission"
	"warungpos/internal/snapshot"
	"warungpos/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	branches store.BranchRepository
	snaps    snapshot.Store
	notifier notify.Notifier
	policy   config.Policy
	logger   zerolog.Logger
}

func New(repo store.Repository, branches store.BranchRepository, snaps snapshot.Store, notifier notify.Notifier, policy config.Policy, logger zerolog.Logger) *Service {
	if snaps == nil {
		snaps = snapshot.Noop{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Service{
		repo:     repo,
		branches: branches,
		snaps:    snaps,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}
}

// LoadState restores both stores from their snapshot keys. Missing snapshots
// are not an error: the seeded in-memory state stays in effect.
func (s *Service) LoadState(ctx context.Context) error {
	payload, found, err := s.snaps.Load(ctx, snapshot.KeyPOS)
	if err != nil {
		return fmt.Errorf("load %s: %w", snapshot.KeyPOS, err)
	}
	if found {
		if err := s.repo.Restore(ctx, payload); err != nil {
			return fmt.Errorf("restore %s: %w", snapshot.KeyPOS, err)
		}
	}

	payload, found, err = s.snaps.Load(ctx, snapshot.KeyBranch)
	if err != nil {
		return fmt.Errorf("load %s: %w", snapshot.KeyBranch, err)
	}
	if found {
		if err := s.branches.Restore(ctx, payload); err != nil {
			return fmt.Errorf("restore %s: %w", snapshot.KeyBranch, err)
		}
	}

	return nil
}

// requireActor resolves the request actor and checks one permission. All
// gated operations funnel through here.
func (s *Service) requireActor(ctx context.Context, perm permission.Permission) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no authenticated user", permission.ErrDenied)
	}
	if err := permission.Require(actor, perm); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

// persist writes the POS snapshot after a successful mutation. Failures are
// logged, never surfaced: memory stays authoritative.
func (s *Service) persist(ctx context.Context) {
	payload, err := s.repo.Snapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", snapshot.KeyPOS).Msg("snapshot build failed")
		return
	}
	if err := s.snaps.Save(ctx, snapshot.KeyPOS, payload); err != nil {
		s.logger.Warn().Err(err).Str("key", snapshot.KeyPOS).Msg("snapshot save failed")
	}
}

func (s *Service) persistBranches(ctx context.Context) {
	payload, err := s.branches.Snapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", snapshot.KeyBranch).Msg("snapshot build failed")
		return
	}
	if err := s.snaps.Save(ctx, snapshot.KeyBranch, payload); err != nil {
		s.logger.Warn().Err(err).Str("key", snapshot.KeyBranch).Msg("snapshot save failed")
	}
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	if includeInactive {
		if _, err := s.requireActor(ctx, permission.ManageInventory); err != nil {
			return nil, err
		}
	}
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) LookupBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	if _, err := s.requireActor(ctx, permission.ProcessTransaction); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx, permission.ManageInventory)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: name and category are required", store.ErrValidation)
	}
	if req.PriceCents < 1 || req.CostCents < 0 || req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive, cost and stock non-negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		CostCents:  req.CostCents,
		Stock:      req.Stock,
		Barcode:    req.Barcode,
		Active:     true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("product", created.ID).Int64("price", created.PriceCents).Msg("product created")
	s.persist(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx, permission.ManageInventory)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, fmt.Errorf("%w: category cannot be empty", store.ErrValidation)
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrValidation)
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: cost cannot be negative", store.ErrValidation)
		}
		updated.CostCents = *req.CostCents
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if saved.PriceCents != existing.PriceCents {
		if err := s.repo.RecordPriceChange(ctx, domain.PriceChange{
			ProductID:     saved.ID,
			ProductName:   saved.Name,
			OldPriceCents: existing.PriceCents,
			NewPriceCents: saved.PriceCents,
			ChangedBy:     actor.Username,
			ChangedAt:     nowUTC(),
		}); err != nil {
			s.logger.Warn().Err(err).Str("product", saved.ID).Msg("price change audit failed")
		}
	}

	s.logger.Info().Str("actor", actor.Username).Str("product", saved.ID).Msg("product updated")
	s.persist(ctx)
	return *saved, nil
}

// ListPriceChanges returns the catalog price audit trail, newest first.
func (s *Service) ListPriceChanges(ctx context.Context, limit int) ([]domain.PriceChange, error) {
	if _, err := s.requireActor(ctx, permission.ViewReports); err != nil {
		return nil, err
	}
	return s.repo.ListPriceChanges(ctx, limit)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, err := s.requireActor(ctx, permission.ManageInventory)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logger.Info().Str("actor", actor.Username).Str("product", id).Msg("product deleted")
	s.persist(ctx)
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx, permission.ManageInventory)
	if err != nil {
		return domain.Product{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}

	var updated *domain.Product
	if req.SetTo != nil {
		updated, err = s.repo.SetStock(ctx, req.ProductID, *req.SetTo)
	} else {
		if req.Delta == 0 {
			return domain.Product{}, fmt.Errorf("%w: delta cannot be zero", store.ErrValidation)
		}
		updated, err = s.repo.AdjustStock(ctx, req.ProductID, req.Delta, s.policy.AllowNegativeStock)
	}
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("product", updated.ID).Int("stock", updated.Stock).Str("reason", req.Reason).Msg("stock adjusted")
	s.warnLowStock(ctx, actor.Username, *updated)
	s.persist(ctx)
	return *updated, nil
}

func (s *Service) ToggleFavorite(ctx context.Context, productID string) (bool, error) {
	actor, err := s.requireActor(ctx, permission.ProductFavorites)
	if err != nil {
		return false, err
	}
	marked, err := s.repo.ToggleFavorite(ctx, actor.Username, strings.TrimSpace(productID))
	if err != nil {
		return false, err
	}
	s.persist(ctx)
	return marked, nil
}

func (s *Service) ListFavorites(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx, permission.ProductFavorites)
	if err != nil {
		return nil, err
	}
	ids, err := s.repo.ListFavorites(ctx, actor.Username)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		product, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			// Favorite may point at a product deleted since.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		products = append(products, *product)
	}
	return products, nil
}

func (s *Service) warnLowStock(ctx context.Context, actor string, product domain.Product) {
	if s.policy.LowStockThreshold < 1 || product.Stock > s.policy.LowStockThreshold {
		return
	}
	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventLowStock,
		Actor:   actor,
		Subject: product.ID,
		Detail:  map[string]any{"name": product.Name, "stock": product.Stock, "threshold": s.policy.LowStockThreshold},
	})
}

func (s *Service) GetCart(ctx context.Context) (domain.Cart, domain.CartTotals, error) {
	actor, err := s.requireActor(ctx, permission.ProcessTransaction)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	cart, err := s.repo.GetCart(ctx, actor.Username)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	return *cart, s.cartTotals(*cart), nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.AddToCartRequest) (domain.Cart, domain.CartTotals, error) {
	actor, err := s.requireActor(ctx, permission.ProcessTransaction)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	if req.Qty < 1 {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: qty must be positive", store.ErrValidation)
	}

	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	if !product.Active {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, product.ID)
	}

	cart, err := s.repo.GetCart(ctx, actor.Username)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}

	idx := cartLineIndex(cart, product.ID)
	lineQty := req.Qty
	if idx >= 0 {
		lineQty += cart.Items[idx].Qty
	}
	if lineQty > product.Stock && !s.policy.AllowNegativeStock {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: %s has %d left, cart wants %d", store.ErrInsufficientStock, product.Name, product.Stock, lineQty)
	}

	if idx >= 0 {
		setLineQty(&cart.Items[idx], lineQty)
	} else {
		// The line carries a value copy of the product taken now; later
		// catalog changes never affect it.
		item := domain.CartItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			UnitPriceCents: product.PriceCents,
			Qty:            req.Qty,
		}
		recomputeLine(&item)
		cart.Items = append(cart.Items, item)
	}

	saved, err := s.repo.SaveCart(ctx, *cart)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	s.persist(ctx)
	return *saved, s.cartTotals(*saved), nil
}

func (s *Service) UpdateCartItem(ctx context.Context, req domain.UpdateCartItemRequest) (domain.Cart, domain.CartTotals, error) {
	actor, err := s.requireActor(ctx, permission.ProcessTransaction)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	if req.Qty < 0 {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: qty cannot be negative", store.ErrValidation)
	}

	cart, err := s.repo.GetCart(ctx, actor.Username)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}

	idx := cartLineIndex(cart, req.ProductID)
	if idx < 0 {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: %s not in cart", store.ErrNotFound, req.ProductID)
	}

	if req.Qty == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		if req.Qty > cart.Items[idx].Qty && !s.policy.AllowNegativeStock {
			product, err := s.repo.GetProduct(ctx, cart.Items[idx].ProductID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return domain.Cart{}, domain.CartTotals{}, err
			}
			if product != nil && req.Qty > product.Stock {
				return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: %s has %d left, cart wants %d", store.ErrInsufficientStock, product.Name, product.Stock, req.Qty)
			}
		}
		setLineQty(&cart.Items[idx], req.Qty)
	}

	saved, err := s.repo.SaveCart(ctx, *cart)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	s.persist(ctx)
	return *saved, s.cartTotals(*saved), nil
}

func (s *Service) ClearCart(ctx context.Context) error {
	actor, err := s.requireActor(ctx, permission.ProcessTransaction)
	if err != nil {
		return err
	}
	if err := s.repo.ClearCart(ctx, actor.Username); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

func (s *Service) ApplyItemDiscount(ctx context.Context, req domain.ItemDiscountRequest) (domain.Cart, domain.CartTotals, error) {
	actor, err := s.requireActor(ctx, permission.ApplyItemDiscount)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}

	cart, err := s.repo.GetCart(ctx, actor.Username)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	idx := cartLineIndex(cart, req.ProductID)
	if idx < 0 {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: %s not in cart", store.ErrNotFound, req.ProductID)
	}
	item := &cart.Items[idx]

	lineBase := int64(item.Qty) * item.EffectiveUnitPriceCents()
	var amount int64
	switch req.Type {
	case domain.DiscountPercentage:
		if req.Value <= 0 || req.Value > s.policy.MaxDiscountPercent {
			return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: discount percent must be within 0..%v", store.ErrValidation, s.policy.MaxDiscountPercent)
		}
		amount = int64(math.Round(float64(lineBase) * req.Value / 100))
	case domain.DiscountAmount:
		amount = int64(math.Round(req.Value))
		if amount < 1 || amount > s.policy.MaxDiscountAmountCents {
			return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: discount amount must be within 0..%d", store.ErrValidation, s.policy.MaxDiscountAmountCents)
		}
		if amount > lineBase {
			return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: discount exceeds line total", store.ErrValidation)
		}
	default:
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: unknown discount type %q", store.ErrValidation, req.Type)
	}

	item.Discount = &domain.Discount{Type: req.Type, Value: req.Value, AmountCents: amount}
	recomputeLine(item)

	saved, err := s.repo.SaveCart(ctx, *cart)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	s.logger.Info().Str("actor", actor.Username).Str("product", req.ProductID).Int64("amount", amount).Msg("item discount applied")
	s.persist(ctx)
	return *saved, s.cartTotals(*saved), nil
}

func (s *Service) OverridePrice(ctx context.Context, req domain.PriceOverrideRequest) (domain.Cart, domain.CartTotals, error) {
	actor, err := s.requireActor(ctx, permission.OverridePrice)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	if req.NewPriceCents < 1 {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: override price must be positive", store.ErrValidation)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if s.policy.RequireOverrideReason && req.Reason == "" {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: override reason required", store.ErrValidation)
	}

	cart, err := s.repo.GetCart(ctx, actor.Username)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	idx := cartLineIndex(cart, req.ProductID)
	if idx < 0 {
		return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: %s not in cart", store.ErrNotFound, req.ProductID)
	}
	item := &cart.Items[idx]

	if s.policy.MaxPriceOverridePercent > 0 {
		deviation := math.Abs(float64(req.NewPriceCents-item.UnitPriceCents)) / float64(item.UnitPriceCents) * 100
		if deviation > s.policy.MaxPriceOverridePercent {
			return domain.Cart{}, domain.CartTotals{}, fmt.Errorf("%w: override deviates %.1f%%, limit is %.1f%%", store.ErrValidation, deviation, s.policy.MaxPriceOverridePercent)
		}
	}

	// An existing discount keeps the amount it was granted with; the
	// override changes the base price only.
	item.PriceOverride = &domain.PriceOverride{
		OriginalPriceCents: item.UnitPriceCents,
		NewPriceCents:      req.NewPriceCents,
		Reason:             req.Reason,
	}
	recomputeLine(item)

	saved, err := s.repo.SaveCart(ctx, *cart)
	if err != nil {
		return domain.Cart{}, domain.CartTotals{}, err
	}
	s.logger.Info().Str("actor", actor.Username).Str("product", req.ProductID).Int64("new_price", req.NewPriceCents).Str("reason", req.Reason).Msg("price override applied")
	s.persist(ctx)
	return *saved, s.cartTotals(*saved), nil
}

func cartLineIndex(cart *domain.Cart, productID string) int {
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// setLineQty changes the quantity and rescales a percentage discount from
// the new line base. Fixed amounts stay as granted, and nothing but a qty
// change ever rescales a discount.
func setLineQty(item *domain.CartItem, qty int) {
	item.Qty = qty
	if item.Discount != nil && item.Discount.Type == domain.DiscountPercentage {
		lineBase := int64(qty) * item.EffectiveUnitPriceCents()
		item.Discount.AmountCents = int64(math.Round(float64(lineBase) * item.Discount.Value / 100))
	}
	recomputeLine(item)
}

// recomputeLine refreshes the derived fields from the current qty, discount
// amount and override. The discount amount itself is never touched here.
func recomputeLine(item *domain.CartItem) {
	item.SubtotalCents = int64(item.Qty) * item.UnitPriceCents
	final := int64(item.Qty) * item.EffectiveUnitPriceCents()
	if item.Discount != nil {
		final -= item.Discount.AmountCents
	}
	if final < 0 {
		final = 0
	}
	item.FinalPriceCents = final
}

func (s *Service) cartTotals(cart domain.Cart) domain.CartTotals {
	totals := domain.CartTotals{}
	for _, item := range cart.Items {
		totals.SubtotalCents += int64(item.Qty) * item.EffectiveUnitPriceCents()
		if item.Discount != nil {
			totals.DiscountCents += item.Discount.AmountCents
		}
		totals.ItemCount += item.Qty
	}
	taxBase := totals.SubtotalCents - totals.DiscountCents
	if taxBase < 0 {
		taxBase = 0
	}
	totals.TaxCents = int64(math.Round(float64(taxBase) * s.policy.TaxRatePercent / 100))
	totals.TotalCents = taxBase + totals.TaxCents
	return totals
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
