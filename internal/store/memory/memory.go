package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungpos/internal/domain"
	"warungpos/internal/store"
	"warungpos/internal/xid"
)

type Store struct {
	mu                   sync.RWMutex
	products             map[string]domain.Product
	favoritesByUser      map[string]map[string]struct{}
	cartsByCashier       map[string]*domain.Cart
	transactionsByID     map[string]*domain.Transaction
	shiftsByID           map[string]domain.Shift
	activeShiftByCashier map[string]string
	customersByID        map[string]domain.Customer
	rewardsByID          map[string]domain.Reward
	usersByUsername      map[string]domain.UserAccount
	priceChanges         []domain.PriceChange
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults
// are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username    string
		password    string
		role        string
		cashierRole string
	}{
		{"admin", adminPwd, "admin", ""},
		{"cashier", cashierPwd, "cashier", "junior"},
		{"supervisor", cashierPwd, "cashier", "supervisor"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:    u.username,
			Password:    string(hash),
			Role:        u.role,
			CashierRole: u.cashierRole,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:             make(map[string]domain.Product),
		favoritesByUser:      make(map[string]map[string]struct{}),
		cartsByCashier:       make(map[string]*domain.Cart),
		transactionsByID:     make(map[string]*domain.Transaction),
		shiftsByID:           make(map[string]domain.Shift),
		activeShiftByCashier: make(map[string]string),
		customersByID:        make(map[string]domain.Customer),
		rewardsByID:          make(map[string]domain.Reward),
		usersByUsername:      seedUsers(),
	}
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-mie-01", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500, CostCents: 2700, Stock: 120, Barcode: "8991001010011", Active: true, CreatedAt: now},
		{ID: "prd-telur-01", Name: "Telur 10 Butir", Category: "grocery", PriceCents: 26500, CostCents: 23000, Stock: 60, Barcode: "8991001010028", Active: true, CreatedAt: now},
		{ID: "prd-susu-01", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900, CostCents: 13600, Stock: 80, Barcode: "8991001010035", Active: true, CreatedAt: now},
		{ID: "prd-roti-01", Name: "Roti Tawar", Category: "bakery", PriceCents: 17800, CostCents: 12400, Stock: 40, Barcode: "8991001010042", Active: true, CreatedAt: now},
		{ID: "prd-kopi-01", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600, CostCents: 1700, Stock: 200, Barcode: "8991001010059", Active: true, CreatedAt: now},
		{ID: "prd-gula-01", Name: "Gula 1kg", Category: "grocery", PriceCents: 17400, CostCents: 15300, Stock: 90, Barcode: "8991001010066", Active: true, CreatedAt: now},
		{ID: "prd-teh-01", Name: "Teh Celup", Category: "beverage", PriceCents: 9800, CostCents: 7200, Stock: 110, Barcode: "8991001010073", Active: true, CreatedAt: now},
		{ID: "prd-air-01", Name: "Air Mineral 600ml", Category: "beverage", PriceCents: 3900, CostCents: 3200, Stock: 240, Barcode: "8991001010080", Active: true, CreatedAt: now},
		{ID: "prd-keripik-01", Name: "Keripik Singkong", Category: "snack", PriceCents: 12800, CostCents: 8100, Stock: 70, Barcode: "8991001010097", Active: true, CreatedAt: now},
		{ID: "prd-coklat-01", Name: "Coklat Batang", Category: "snack", PriceCents: 8600, CostCents: 5600, Stock: 85, Barcode: "8991001010103", Active: true, CreatedAt: now},
		{ID: "prd-sabun-01", Name: "Sabun Mandi", Category: "household", PriceCents: 7400, CostCents: 5000, Stock: 95, Barcode: "8991001010110", Active: true, CreatedAt: now},
		{ID: "prd-shampoo-01", Name: "Shampoo Sachet", Category: "household", PriceCents: 3200, CostCents: 2100, Stock: 160, Barcode: "8991001010127", Active: true, CreatedAt: now},
	}

	rewards := []domain.Reward{
		{ID: "rwd-disc5", Name: "Diskon 5%", PointsCost: 50, Type: domain.RewardTypeDiscount, Percent: 5},
		{ID: "rwd-disc10", Name: "Diskon 10%", PointsCost: 120, Type: domain.RewardTypeDiscount, Percent: 10},
		{ID: "rwd-cashback", Name: "Cashback Rp10.000", PointsCost: 100, Type: domain.RewardTypeCashback, ValueCents: 10000},
		{ID: "rwd-kopi", Name: "Kopi Sachet Gratis", PointsCost: 30, Type: domain.RewardTypeFreeItem, ProductID: "prd-kopi-01"},
	}

	s := New()
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, r := range rewards {
		s.rewardsByID[r.ID] = r
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeInactive && !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	for _, p := range s.products {
		if p.Barcode == barcode {
			copyProduct := p
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.Stock < 0 || product.CostCents < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	if product.Barcode != "" {
		for _, p := range s.products {
			if p.Barcode == product.Barcode {
				return nil, fmt.Errorf("%w: barcode %s already registered", store.ErrValidation, product.Barcode)
			}
		}
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Barcode != "" {
		for _, p := range s.products {
			if p.ID != product.ID && p.Barcode == product.Barcode {
				return nil, fmt.Errorf("%w: barcode %s already registered", store.ErrValidation, product.Barcode)
			}
		}
	}
	// Stock is adjusted through AdjustStock/SetStock only.
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

// DeleteProduct removes the product from the catalog. Carts and ledger
// entries hold value copies, so removal never reaches into them.
func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	for _, favorites := range s.favoritesByUser {
		delete(favorites, id)
	}
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int, allowNegative bool) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	next := product.Stock + delta
	if next < 0 && !allowNegative {
		return nil, store.ErrInsufficientStock
	}
	product.Stock = next
	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) SetStock(_ context.Context, id string, qty int) (*domain.Product, error) {
	if qty < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock = qty
	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) ToggleFavorite(_ context.Context, username string, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return false, store.ErrNotFound
	}
	favorites, ok := s.favoritesByUser[username]
	if !ok {
		favorites = make(map[string]struct{})
		s.favoritesByUser[username] = favorites
	}
	if _, marked := favorites[productID]; marked {
		delete(favorites, productID)
		return false, nil
	}
	favorites[productID] = struct{}{}
	return true, nil
}

func (s *Store) ListFavorites(_ context.Context, username string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	favorites := s.favoritesByUser[username]
	result := make([]string, 0, len(favorites))
	for id := range favorites {
		result = append(result, id)
	}
	slices.Sort(result)
	return result, nil
}

func (s *Store) RecordPriceChange(_ context.Context, change domain.PriceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.ID == "" {
		change.ID = xid.New("pch")
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	s.priceChanges = append(s.priceChanges, change)
	return nil
}

// ListPriceChanges returns audit entries newest first.
func (s *Store) ListPriceChanges(_ context.Context, limit int) ([]domain.PriceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PriceChange, 0, len(s.priceChanges))
	for i := len(s.priceChanges) - 1; i >= 0; i-- {
		result = append(result, s.priceChanges[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetCart(_ context.Context, cashier string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.cartsByCashier[cashier]
	if !exists {
		return &domain.Cart{CashierUsername: cashier, Items: []domain.CartItem{}}, nil
	}
	return cloneCart(cart), nil
}

func (s *Store) SaveCart(_ context.Context, cart domain.Cart) (*domain.Cart, error) {
	if cart.CashierUsername == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart.UpdatedAt = time.Now().UTC()
	saved := cloneCart(&cart)
	s.cartsByCashier[cart.CashierUsername] = saved
	return cloneCart(saved), nil
}

func (s *Store) ClearCart(_ context.Context, cashier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cartsByCashier, cashier)
	return nil
}

// SettleCheckout is the all-or-nothing settlement step. Every line is
// validated against current stock before any write happens; on success the
// stock deduction, ledger append, shift fold, customer update and cart clear
// land together under the one lock.
func (s *Store) SettleCheckout(_ context.Context, tx domain.Transaction, allowNegative bool) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrValidation)
	}
	if tx.CashierUsername == "" || tx.PaymentMethod == "" {
		return nil, store.ErrValidation
	}

	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrValidation
		}
		product, exists := s.products[item.ProductID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: product %s unavailable", store.ErrValidation, item.ProductID)
		}
		if product.Stock-item.Qty < 0 && !allowNegative {
			return nil, fmt.Errorf("%w: %s has %d left, cart wants %d", store.ErrInsufficientStock, product.Name, product.Stock, item.Qty)
		}
	}
	if tx.CustomerID != "" {
		if _, exists := s.customersByID[tx.CustomerID]; !exists {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, tx.CustomerID)
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Status = domain.TxStatusCompleted

	for _, item := range tx.Items {
		product := s.products[item.ProductID]
		product.Stock -= item.Qty
		s.products[item.ProductID] = product
	}

	if shiftID, active := s.activeShiftByCashier[tx.CashierUsername]; active {
		shift := s.shiftsByID[shiftID]
		tx.ShiftID = shiftID
		shift.TotalSalesCents += tx.TotalCents
		shift.TotalTransactions++
		shift.TotalDiscountCents += tx.DiscountCents
		shift.TotalTaxCents += tx.TaxCents
		if shift.SalesByMethodCents == nil {
			shift.SalesByMethodCents = map[string]int64{}
		}
		shift.SalesByMethodCents[tx.PaymentMethod] += tx.TotalCents
		if tx.PaymentMethod == domain.PaymentCash {
			shift.ExpectedCashCents += tx.TotalCents
		}
		s.shiftsByID[shiftID] = shift
	}

	if tx.CustomerID != "" {
		customer := s.customersByID[tx.CustomerID]
		customer.TotalSpentCents += tx.TotalCents
		customer.VisitCount++
		customer.LoyaltyPoints += int(tx.TotalCents / 10000)
		visitedAt := tx.CreatedAt
		customer.LastVisitAt = &visitedAt
		customer.Segment = segmentFor(customer)
		s.customersByID[tx.CustomerID] = customer
	}

	delete(s.cartsByCashier, tx.CashierUsername)

	txCopy := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = txCopy
	return cloneTransaction(txCopy), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) VoidTransaction(_ context.Context, id string, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: cannot void a %s transaction", store.ErrIllegalTransition, tx.Status)
	}

	for _, item := range tx.Items {
		product, exists := s.products[item.ProductID]
		if !exists {
			continue
		}
		product.Stock += item.Qty
		s.products[item.ProductID] = product
	}

	tx.Status = domain.TxStatusVoided
	tx.VoidReason = reason
	tx.VoidedAt = &at

	if tx.ShiftID != "" {
		if shift, exists := s.shiftsByID[tx.ShiftID]; exists && shift.Status == domain.ShiftStatusActive {
			shift.TotalSalesCents -= tx.TotalCents
			shift.TotalTransactions--
			shift.TotalDiscountCents -= tx.DiscountCents
			shift.TotalTaxCents -= tx.TaxCents
			shift.VoidedTransactions++
			if shift.SalesByMethodCents != nil {
				shift.SalesByMethodCents[tx.PaymentMethod] -= tx.TotalCents
			}
			if tx.PaymentMethod == domain.PaymentCash {
				shift.ExpectedCashCents -= tx.TotalCents
			}
			s.shiftsByID[tx.ShiftID] = shift
		}
	}

	return cloneTransaction(tx), nil
}

func (s *Store) RefundTransaction(_ context.Context, id string, amountCents int64, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status == domain.TxStatusVoided || tx.Status == domain.TxStatusRefunded {
		return nil, fmt.Errorf("%w: cannot refund a %s transaction", store.ErrIllegalTransition, tx.Status)
	}
	if amountCents < 1 {
		return nil, store.ErrValidation
	}
	if amountCents > tx.TotalCents {
		return nil, fmt.Errorf("%w: refund exceeds transaction total %d", store.ErrValidation, tx.TotalCents)
	}

	// A refund is terminal whether partial or full. The transaction can
	// never be refunded again or voided afterwards.
	tx.RefundAmountCents = amountCents
	tx.RefundReason = reason
	tx.RefundedAt = &at
	tx.Status = domain.TxStatusRefunded

	if tx.ShiftID != "" {
		if shift, exists := s.shiftsByID[tx.ShiftID]; exists && shift.Status == domain.ShiftStatusActive {
			shift.RefundedAmountCents += amountCents
			if tx.PaymentMethod == domain.PaymentCash {
				shift.ExpectedCashCents -= amountCents
			}
			s.shiftsByID[tx.ShiftID] = shift
		}
	}

	return cloneTransaction(tx), nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.CashierUsername) == "" {
		return nil, store.ErrValidation
	}
	if shift.StartingCashCents < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeShiftByCashier[shift.CashierUsername]; exists {
		return nil, fmt.Errorf("%w: shift already active for %s", store.ErrIllegalTransition, shift.CashierUsername)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusActive
	shift.ExpectedCashCents = shift.StartingCashCents
	shift.SalesByMethodCents = map[string]int64{}
	shift.ClosedAt = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByCashier[shift.CashierUsername] = shift.ID
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context, cashier string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByCashier[cashier]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusActive {
		return nil, store.ErrNotFound
	}
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) CloseActiveShift(_ context.Context, cashier string, actualCashCents int64, notes string, at time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, exists := s.activeShiftByCashier[cashier]
	if !exists {
		return nil, fmt.Errorf("%w: no active shift for %s", store.ErrIllegalTransition, cashier)
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusActive {
		return nil, fmt.Errorf("%w: no active shift for %s", store.ErrIllegalTransition, cashier)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.ActualCashCents = actualCashCents
	shift.CashDifferenceCents = actualCashCents - shift.ExpectedCashCents
	shift.Notes = notes
	shift.ClosedAt = &at

	delete(s.activeShiftByCashier, cashier)
	s.shiftsByID[shiftID] = shift
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		result = append(result, cloneShift(shift))
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if a.StartedAt.Equal(b.StartedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.StartedAt.After(b.StartedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.Phone != "" {
		for _, existing := range s.customersByID {
			if existing.Phone == customer.Phone {
				return nil, fmt.Errorf("%w: phone %s already registered", store.ErrValidation, customer.Phone)
			}
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.Segment = domain.SegmentNew

	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}
	for _, customer := range s.customersByID {
		if customer.Phone == phone {
			copyCustomer := customer
			return &copyCustomer, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AdjustLoyaltyPoints(_ context.Context, id string, delta int) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	next := customer.LoyaltyPoints + delta
	if next < 0 {
		return nil, fmt.Errorf("%w: points balance cannot go below zero", store.ErrValidation)
	}
	customer.LoyaltyPoints = next
	s.customersByID[id] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) AdjustCredit(_ context.Context, id string, deltaCents int64) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	next := customer.CreditBalanceCents + deltaCents
	if next < 0 {
		return nil, fmt.Errorf("%w: credit balance cannot go below zero", store.ErrValidation)
	}
	customer.CreditBalanceCents = next
	s.customersByID[id] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) ListRewards(_ context.Context) ([]domain.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rewards := make([]domain.Reward, 0, len(s.rewardsByID))
	for _, reward := range s.rewardsByID {
		rewards = append(rewards, reward)
	}
	slices.SortFunc(rewards, func(a, b domain.Reward) int {
		if a.PointsCost == b.PointsCost {
			return cmpString(a.ID, b.ID)
		}
		if a.PointsCost < b.PointsCost {
			return -1
		}
		return 1
	})
	return rewards, nil
}

func (s *Store) GetReward(_ context.Context, id string) (*domain.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reward, exists := s.rewardsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyReward := reward
	return &copyReward, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// snapshotState is the wire shape for Snapshot/Restore. Everything the store
// holds lands in one JSON document.
type snapshotState struct {
	Products             []domain.Product     `json:"products"`
	Favorites            map[string][]string  `json:"favorites"`
	Carts                []domain.Cart        `json:"carts"`
	Transactions         []domain.Transaction `json:"transactions"`
	Shifts               []domain.Shift       `json:"shifts"`
	ActiveShiftByCashier map[string]string    `json:"active_shift_by_cashier"`
	Customers            []domain.Customer    `json:"customers"`
	Rewards              []domain.Reward      `json:"rewards"`
	Users                []domain.UserAccount `json:"users"`
	PriceChanges         []domain.PriceChange `json:"price_changes,omitempty"`
}

func (s *Store) Snapshot(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := snapshotState{
		Products:             make([]domain.Product, 0, len(s.products)),
		Favorites:            make(map[string][]string, len(s.favoritesByUser)),
		Carts:                make([]domain.Cart, 0, len(s.cartsByCashier)),
		Transactions:         make([]domain.Transaction, 0, len(s.transactionsByID)),
		Shifts:               make([]domain.Shift, 0, len(s.shiftsByID)),
		ActiveShiftByCashier: make(map[string]string, len(s.activeShiftByCashier)),
		Customers:            make([]domain.Customer, 0, len(s.customersByID)),
		Rewards:              make([]domain.Reward, 0, len(s.rewardsByID)),
		Users:                make([]domain.UserAccount, 0, len(s.usersByUsername)),
	}
	for _, p := range s.products {
		state.Products = append(state.Products, p)
	}
	for username, favorites := range s.favoritesByUser {
		ids := make([]string, 0, len(favorites))
		for id := range favorites {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		state.Favorites[username] = ids
	}
	for _, cart := range s.cartsByCashier {
		state.Carts = append(state.Carts, *cloneCart(cart))
	}
	for _, tx := range s.transactionsByID {
		state.Transactions = append(state.Transactions, *cloneTransaction(tx))
	}
	for _, shift := range s.shiftsByID {
		state.Shifts = append(state.Shifts, cloneShift(shift))
	}
	for cashier, shiftID := range s.activeShiftByCashier {
		state.ActiveShiftByCashier[cashier] = shiftID
	}
	for _, customer := range s.customersByID {
		state.Customers = append(state.Customers, customer)
	}
	for _, reward := range s.rewardsByID {
		state.Rewards = append(state.Rewards, reward)
	}
	for _, user := range s.usersByUsername {
		state.Users = append(state.Users, user)
	}
	state.PriceChanges = append(state.PriceChanges, s.priceChanges...)

	return json.Marshal(state)
}

func (s *Store) Restore(_ context.Context, payload []byte) error {
	var state snapshotState
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[string]domain.Product, len(state.Products))
	for _, p := range state.Products {
		s.products[p.ID] = p
	}
	s.favoritesByUser = make(map[string]map[string]struct{}, len(state.Favorites))
	for username, ids := range state.Favorites {
		favorites := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			favorites[id] = struct{}{}
		}
		s.favoritesByUser[username] = favorites
	}
	s.cartsByCashier = make(map[string]*domain.Cart, len(state.Carts))
	for i := range state.Carts {
		cart := state.Carts[i]
		s.cartsByCashier[cart.CashierUsername] = cloneCart(&cart)
	}
	s.transactionsByID = make(map[string]*domain.Transaction, len(state.Transactions))
	for i := range state.Transactions {
		tx := state.Transactions[i]
		s.transactionsByID[tx.ID] = cloneTransaction(&tx)
	}
	s.shiftsByID = make(map[string]domain.Shift, len(state.Shifts))
	for _, shift := range state.Shifts {
		s.shiftsByID[shift.ID] = cloneShift(shift)
	}
	s.activeShiftByCashier = make(map[string]string, len(state.ActiveShiftByCashier))
	for cashier, shiftID := range state.ActiveShiftByCashier {
		s.activeShiftByCashier[cashier] = shiftID
	}
	s.customersByID = make(map[string]domain.Customer, len(state.Customers))
	for _, customer := range state.Customers {
		s.customersByID[customer.ID] = customer
	}
	s.rewardsByID = make(map[string]domain.Reward, len(state.Rewards))
	for _, reward := range state.Rewards {
		s.rewardsByID[reward.ID] = reward
	}
	if len(state.Users) > 0 {
		s.usersByUsername = make(map[string]domain.UserAccount, len(state.Users))
		for _, user := range state.Users {
			s.usersByUsername[user.Username] = user
		}
	}
	s.priceChanges = append([]domain.PriceChange(nil), state.PriceChanges...)

	return nil
}

// segmentFor derives the customer segment from the spend and visit history.
func segmentFor(c domain.Customer) string {
	switch {
	case c.VisitCount >= 10 && c.TotalSpentCents >= 1000000:
		return domain.SegmentVIP
	case c.VisitCount >= 3:
		return domain.SegmentRegular
	default:
		return domain.SegmentNew
	}
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.TransactionLine, len(src.Items))
	copy(dupItems, src.Items)
	for i := range dupItems {
		if dupItems[i].Discount != nil {
			discount := *dupItems[i].Discount
			dupItems[i].Discount = &discount
		}
		if dupItems[i].PriceOverride != nil {
			override := *dupItems[i].PriceOverride
			dupItems[i].PriceOverride = &override
		}
	}
	dup.Items = dupItems
	return &dup
}

func cloneCart(src *domain.Cart) *domain.Cart {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.CartItem, len(src.Items))
	copy(items, src.Items)
	for i := range items {
		if items[i].Discount != nil {
			discount := *items[i].Discount
			items[i].Discount = &discount
		}
		if items[i].PriceOverride != nil {
			override := *items[i].PriceOverride
			items[i].PriceOverride = &override
		}
	}
	dup.Items = items
	return &dup
}

func cloneShift(src domain.Shift) domain.Shift {
	dup := src
	if src.SalesByMethodCents != nil {
		byMethod := make(map[string]int64, len(src.SalesByMethodCents))
		for method, cents := range src.SalesByMethodCents {
			byMethod[method] = cents
		}
		dup.SalesByMethodCents = byMethod
	}
	return dup
}
