package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warungpos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrInsufficientStock is a validation failure: errors.Is matches both it
	// and ErrValidation.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrValidation)
)

// Repository is the single-branch state store: catalog, per-cashier working
// carts, the transaction ledger, shifts, customers and auth accounts. All
// mutating methods are atomic with respect to each other.
type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int, allowNegative bool) (*domain.Product, error)
	SetStock(ctx context.Context, id string, qty int) (*domain.Product, error)
	ToggleFavorite(ctx context.Context, username string, productID string) (bool, error)
	ListFavorites(ctx context.Context, username string) ([]string, error)
	RecordPriceChange(ctx context.Context, change domain.PriceChange) error
	ListPriceChanges(ctx context.Context, limit int) ([]domain.PriceChange, error)

	GetCart(ctx context.Context, cashier string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	ClearCart(ctx context.Context, cashier string) error

	// SettleCheckout validates stock for every line, then deducts stock,
	// appends the transaction, folds it into the cashier's active shift,
	// updates the linked customer and clears the cart, all under one lock.
	// Nothing is written when any line fails validation.
	SettleCheckout(ctx context.Context, tx domain.Transaction, allowNegative bool) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	VoidTransaction(ctx context.Context, id string, reason string, at time.Time) (*domain.Transaction, error)
	RefundTransaction(ctx context.Context, id string, amountCents int64, reason string, at time.Time) (*domain.Transaction, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, cashier string) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, cashier string, actualCashCents int64, notes string, at time.Time) (*domain.Shift, error)
	ListShifts(ctx context.Context, limit int) ([]domain.Shift, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	AdjustLoyaltyPoints(ctx context.Context, id string, delta int) (*domain.Customer, error)
	AdjustCredit(ctx context.Context, id string, deltaCents int64) (*domain.Customer, error)
	ListRewards(ctx context.Context) ([]domain.Reward, error)
	GetReward(ctx context.Context, id string) (*domain.Reward, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, payload []byte) error
}

// BranchRepository is the multi-branch state store, persisted under its own
// snapshot key and never mixed with Repository state.
type BranchRepository interface {
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	DeleteBranch(ctx context.Context, id string) error
	ListBranches(ctx context.Context) ([]domain.Branch, error)

	SetBranchStock(ctx context.Context, branchID string, productID string, qty int) error
	GetBranchStock(ctx context.Context, branchID string) (map[string]int, error)

	CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, branchID string, status string, limit int) ([]domain.Transfer, error)
	ApproveTransfer(ctx context.Context, id string, approvedBy string, at time.Time) (*domain.Transfer, error)
	CompleteTransfer(ctx context.Context, id string, completedBy string, at time.Time) (*domain.Transfer, error)
	CancelTransfer(ctx context.Context, id string, reason string, at time.Time) (*domain.Transfer, error)

	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, payload []byte) error
}
