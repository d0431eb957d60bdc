package domain

import "time"

// Actor is the authenticated user attached to a request context. Role is
// either "admin" or "cashier"; cashiers additionally carry a CashierRole that
// resolves against the static permission table, and may carry explicit
// per-user permission grants that win over the role table.
type Actor struct {
	Username    string
	Role        string
	CashierRole string
	Permissions []string
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	CostCents  int64     `json:"cost_cents"`
	Stock      int       `json:"stock"`
	Barcode    string    `json:"barcode"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	CostCents  int64  `json:"cost_cents"`
	Stock      int    `json:"stock"`
	Barcode    string `json:"barcode"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	CostCents  *int64  `json:"cost_cents,omitempty"`
	Barcode    *string `json:"barcode,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// PriceChange is an audit record appended whenever a product's sale price is
// edited through the catalog.
type PriceChange struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	// SetTo, when non-nil, wins over Delta and sets the absolute quantity.
	SetTo  *int   `json:"set_to,omitempty"`
	Reason string `json:"reason"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountAmount     DiscountType = "amount"
)

// Discount is a per-line reduction. AmountCents is fixed at application time
// and is not recomputed when the line later changes.
type Discount struct {
	Type        DiscountType `json:"type"`
	Value       float64      `json:"value"`
	AmountCents int64        `json:"amount_cents"`
}

type PriceOverride struct {
	OriginalPriceCents int64  `json:"original_price_cents"`
	NewPriceCents      int64  `json:"new_price_cents"`
	Reason             string `json:"reason"`
}

// CartItem carries a value copy of the product taken at add time, so later
// catalog edits or deletes never reach back into an open cart.
type CartItem struct {
	ProductID       string         `json:"product_id"`
	ProductName     string         `json:"product_name"`
	UnitPriceCents  int64          `json:"unit_price_cents"`
	Qty             int            `json:"qty"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	Discount        *Discount      `json:"discount,omitempty"`
	PriceOverride   *PriceOverride `json:"price_override,omitempty"`
	FinalPriceCents int64          `json:"final_price_cents"`
}

// EffectiveUnitPriceCents is the override price when one is set, otherwise
// the unit price copied from the catalog at add time.
func (i CartItem) EffectiveUnitPriceCents() int64 {
	if i.PriceOverride != nil {
		return i.PriceOverride.NewPriceCents
	}
	return i.UnitPriceCents
}

type Cart struct {
	CashierUsername string     `json:"cashier_username"`
	Items           []CartItem `json:"items"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CartTotals are derived on demand from the item list and never stored.
type CartTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
	ItemCount     int   `json:"item_count"`
}

type AddToCartRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type UpdateCartItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ItemDiscountRequest struct {
	ProductID string       `json:"product_id"`
	Type      DiscountType `json:"type"`
	Value     float64      `json:"value"`
}

type PriceOverrideRequest struct {
	ProductID     string `json:"product_id"`
	NewPriceCents int64  `json:"new_price_cents"`
	Reason        string `json:"reason"`
}

type TransactionLine struct {
	ProductID       string         `json:"product_id"`
	ProductName     string         `json:"product_name"`
	Qty             int            `json:"qty"`
	UnitPriceCents  int64          `json:"unit_price_cents"`
	Discount        *Discount      `json:"discount,omitempty"`
	PriceOverride   *PriceOverride `json:"price_override,omitempty"`
	FinalPriceCents int64          `json:"final_price_cents"`
}

const (
	TxStatusCompleted = "completed"
	TxStatusVoided    = "voided"
	TxStatusRefunded  = "refunded"
)

// Transaction is an immutable snapshot of a settled cart. Status moves only
// completed->voided or completed->refunded; both are terminal.
type Transaction struct {
	ID                string            `json:"id"`
	CashierUsername   string            `json:"cashier_username"`
	CustomerID        string            `json:"customer_id,omitempty"`
	ShiftID           string            `json:"shift_id,omitempty"`
	PaymentMethod     string            `json:"payment_method"`
	SubtotalCents     int64             `json:"subtotal_cents"`
	DiscountCents     int64             `json:"discount_cents"`
	TaxCents          int64             `json:"tax_cents"`
	TotalCents        int64             `json:"total_cents"`
	Status            string            `json:"status"`
	VoidReason        string            `json:"void_reason,omitempty"`
	VoidedAt          *time.Time        `json:"voided_at,omitempty"`
	RefundAmountCents int64             `json:"refund_amount_cents,omitempty"`
	RefundReason      string            `json:"refund_reason,omitempty"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []TransactionLine `json:"items"`
}

type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method"`
	CustomerID    string `json:"customer_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type VoidTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type RefundRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Reason        string `json:"reason"`
}

const (
	ShiftStatusActive = "active"
	ShiftStatusClosed = "closed"
)

// Shift accumulates settlement aggregates for one cashier between StartShift
// and EndShift. A closed shift is frozen permanently.
type Shift struct {
	ID                  string           `json:"id"`
	CashierUsername     string           `json:"cashier_username"`
	Status              string           `json:"status"`
	StartingCashCents   int64            `json:"starting_cash_cents"`
	TotalSalesCents     int64            `json:"total_sales_cents"`
	TotalTransactions   int              `json:"total_transactions"`
	SalesByMethodCents  map[string]int64 `json:"sales_by_method_cents"`
	TotalDiscountCents  int64            `json:"total_discount_cents"`
	TotalTaxCents       int64            `json:"total_tax_cents"`
	ExpectedCashCents   int64            `json:"expected_cash_cents"`
	VoidedTransactions  int              `json:"voided_transactions"`
	RefundedAmountCents int64            `json:"refunded_amount_cents"`
	ActualCashCents     int64            `json:"actual_cash_cents"`
	CashDifferenceCents int64            `json:"cash_difference_cents"`
	Notes               string           `json:"notes,omitempty"`
	StartedAt           time.Time        `json:"started_at"`
	ClosedAt            *time.Time       `json:"closed_at,omitempty"`
}

type ShiftStartRequest struct {
	StartingCashCents int64 `json:"starting_cash_cents"`
}

type ShiftEndRequest struct {
	ActualCashCents int64  `json:"actual_cash_cents"`
	Notes           string `json:"notes"`
}

const (
	SegmentNew      = "new"
	SegmentRegular  = "regular"
	SegmentVIP      = "vip"
	SegmentInactive = "inactive"
)

type Customer struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	LoyaltyPoints      int        `json:"loyalty_points"`
	CreditBalanceCents int64      `json:"credit_balance_cents"`
	TotalSpentCents    int64      `json:"total_spent_cents"`
	VisitCount         int        `json:"visit_count"`
	Segment            string     `json:"segment"`
	CreatedAt          time.Time  `json:"created_at"`
	LastVisitAt        *time.Time `json:"last_visit_at,omitempty"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

const (
	RewardTypeDiscount = "discount"
	RewardTypeCashback = "cashback"
	RewardTypeFreeItem = "free_item"
)

type Reward struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	PointsCost int     `json:"points_cost"`
	Type       string  `json:"type"`
	ValueCents int64   `json:"value_cents,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
	ProductID  string  `json:"product_id,omitempty"`
}

// RewardEffect tells the caller what to apply after a successful redemption.
// The ledger deducts points; applying the effect to a cart is the caller's
// responsibility.
type RewardEffect struct {
	Type       string  `json:"type"`
	ValueCents int64   `json:"value_cents,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
	ProductID  string  `json:"product_id,omitempty"`
}

type RedeemRewardRequest struct {
	CustomerID string `json:"customer_id"`
	RewardID   string `json:"reward_id"`
}

type CreditRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
}

const (
	BranchStatusActive      = "active"
	BranchStatusInactive    = "inactive"
	BranchStatusMaintenance = "maintenance"
)

type BranchSettings struct {
	TaxRatePercent     float64 `json:"tax_rate_percent"`
	AllowNegativeStock bool    `json:"allow_negative_stock"`
	ReceiptFooter      string  `json:"receipt_footer,omitempty"`
}

type Branch struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Address   string         `json:"address"`
	Phone     string         `json:"phone"`
	Status    string         `json:"status"`
	OpensAt   string         `json:"opens_at"`
	ClosesAt  string         `json:"closes_at"`
	Settings  BranchSettings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
}

type BranchCreateRequest struct {
	Name     string         `json:"name"`
	Address  string         `json:"address"`
	Phone    string         `json:"phone"`
	OpensAt  string         `json:"opens_at"`
	ClosesAt string         `json:"closes_at"`
	Settings BranchSettings `json:"settings"`
}

type BranchUpdateRequest struct {
	Name     *string         `json:"name,omitempty"`
	Address  *string         `json:"address,omitempty"`
	Phone    *string         `json:"phone,omitempty"`
	Status   *string         `json:"status,omitempty"`
	OpensAt  *string         `json:"opens_at,omitempty"`
	ClosesAt *string         `json:"closes_at,omitempty"`
	Settings *BranchSettings `json:"settings,omitempty"`
}

const (
	TransferStatusPending   = "pending"
	TransferStatusInTransit = "in_transit"
	TransferStatusCompleted = "completed"
	TransferStatusCancelled = "cancelled"
)

// Transfer moves stock of one product between branches through an ordered
// state machine: pending -> in_transit -> completed, with cancellation
// allowed from pending or in_transit only.
type Transfer struct {
	ID           string     `json:"id"`
	FromBranchID string     `json:"from_branch_id"`
	ToBranchID   string     `json:"to_branch_id"`
	ProductID    string     `json:"product_id"`
	ProductName  string     `json:"product_name"`
	Qty          int        `json:"qty"`
	Status       string     `json:"status"`
	RequestedBy  string     `json:"requested_by"`
	RequestedAt  time.Time  `json:"requested_at"`
	ApprovedBy   string     `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	CompletedBy  string     `json:"completed_by,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

type TransferCreateRequest struct {
	FromBranchID string `json:"from_branch_id"`
	ToBranchID   string `json:"to_branch_id"`
	ProductID    string `json:"product_id"`
	Qty          int    `json:"qty"`
	Notes        string `json:"notes,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	CashierRole string `json:"cashier_role,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	CashierRole string   `json:"cashier_role"`
	Permissions []string `json:"permissions,omitempty"`
}

type CashierUser struct {
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	CashierRole string    `json:"cashier_role,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is the persistence model for auth credentials. Password holds
// a bcrypt hash once the account has passed through the store.
type UserAccount struct {
	Username    string
	Password    string
	Role        string
	CashierRole string
	Permissions []string
	Active      bool
	CreatedAt   time.Time
}

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentQRIS    = "qris"
	PaymentEWallet = "ewallet"
)
