package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"warungpos/internal/config"
	"warungpos/internal/domain"
	"warungpos/internal/notify"
	"warungpos/internal/permission"
	"warungpos/internal/store"
	"warungpos/internal/store/memory"
)

func testPolicy() config.Policy {
	return config.Policy{
		TaxRatePercent:          10,
		MaxDiscountPercent:      50,
		MaxDiscountAmountCents:  100000,
		MaxPriceOverridePercent: 30,
		RequireOverrideReason:   true,
		LowStockThreshold:       10,
	}
}

func newTestService() *Service {
	return New(memory.NewSeeded(), memory.NewBranchStore(), nil, notify.Noop{}, testPolicy(), zerolog.Nop())
}

func actorCtx(username, cashierRole string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username:    username,
		Role:        "cashier",
		CashierRole: cashierRole,
	})
}

func TestJuniorCannotApplyDiscount(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("kasir", permission.RoleJunior)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}

	_, _, err := svc.ApplyItemDiscount(ctx, domain.ItemDiscountRequest{
		ProductID: "prd-mie-01",
		Type:      domain.DiscountPercentage,
		Value:     5,
	})
	if !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial, got %v", err)
	}
}

func TestSeniorDiscountRespectsPolicyCaps(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("kasir", permission.RoleSenior)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}

	_, _, err := svc.ApplyItemDiscount(ctx, domain.ItemDiscountRequest{
		ProductID: "prd-mie-01",
		Type:      domain.DiscountPercentage,
		Value:     60,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for 60%%, got %v", err)
	}

	cart, totals, err := svc.ApplyItemDiscount(ctx, domain.ItemDiscountRequest{
		ProductID: "prd-mie-01",
		Type:      domain.DiscountPercentage,
		Value:     10,
	})
	if err != nil {
		t.Fatalf("10%% discount failed: %v", err)
	}
	// 2 * 3500 = 7000, 10% = 700
	if cart.Items[0].Discount == nil || cart.Items[0].Discount.AmountCents != 700 {
		t.Fatalf("expected discount amount 700, got %+v", cart.Items[0].Discount)
	}
	if totals.DiscountCents != 700 {
		t.Fatalf("expected totals discount 700, got %d", totals.DiscountCents)
	}
}

func TestOverrideRequiresReasonAndStaysWithinCap(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("spv", permission.RoleSupervisor)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-susu-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}

	_, _, err := svc.OverridePrice(ctx, domain.PriceOverrideRequest{
		ProductID:     "prd-susu-01",
		NewPriceCents: 17000,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	// 18900 -> 9000 is a 52% drop, over the 30% cap.
	_, _, err = svc.OverridePrice(ctx, domain.PriceOverrideRequest{
		ProductID:     "prd-susu-01",
		NewPriceCents: 9000,
		Reason:        "kemasan penyok",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error beyond cap, got %v", err)
	}

	cart, _, err := svc.OverridePrice(ctx, domain.PriceOverrideRequest{
		ProductID:     "prd-susu-01",
		NewPriceCents: 17000,
		Reason:        "kemasan penyok",
	})
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	item := cart.Items[0]
	if item.PriceOverride == nil || item.PriceOverride.NewPriceCents != 17000 {
		t.Fatalf("expected override to 17000, got %+v", item.PriceOverride)
	}
	if item.PriceOverride.OriginalPriceCents != 18900 {
		t.Fatalf("expected original price 18900, got %d", item.PriceOverride.OriginalPriceCents)
	}
	if item.FinalPriceCents != 17000 {
		t.Fatalf("expected final price 17000, got %d", item.FinalPriceCents)
	}
}

func TestFixedDiscountSurvivesLaterOverride(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("spv", permission.RoleSupervisor)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-susu-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, _, err := svc.ApplyItemDiscount(ctx, domain.ItemDiscountRequest{
		ProductID: "prd-susu-01",
		Type:      domain.DiscountAmount,
		Value:     500,
	}); err != nil {
		t.Fatalf("discount failed: %v", err)
	}

	cart, _, err := svc.OverridePrice(ctx, domain.PriceOverrideRequest{
		ProductID:     "prd-susu-01",
		NewPriceCents: 17000,
		Reason:        "harga promo toko",
	})
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	item := cart.Items[0]
	if item.Discount.AmountCents != 500 {
		t.Fatalf("expected discount to stay at 500, got %d", item.Discount.AmountCents)
	}
	if item.FinalPriceCents != 16500 {
		t.Fatalf("expected final price 16500, got %d", item.FinalPriceCents)
	}
}

func TestPercentageDiscountSurvivesLaterOverride(t *testing.T) {
	svc := newTestService()
	mgr := actorCtx("mgr", permission.RoleManager)

	parcel, err := svc.CreateProduct(mgr, domain.ProductCreateRequest{
		Name: "Parcel Snack", Category: "snack", PriceCents: 10000, CostCents: 7000, Stock: 20, Barcode: "8991001019998",
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if _, _, err := svc.AddToCart(mgr, domain.AddToCartRequest{ProductID: parcel.ID, Qty: 3}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, _, err := svc.ApplyItemDiscount(mgr, domain.ItemDiscountRequest{
		ProductID: parcel.ID,
		Type:      domain.DiscountPercentage,
		Value:     10,
	}); err != nil {
		t.Fatalf("discount failed: %v", err)
	}

	// 10% of 3 x 10000 was granted as 3000; overriding the price to 8000
	// keeps that amount, so the line lands at 24000 - 3000.
	cart, _, err := svc.OverridePrice(mgr, domain.PriceOverrideRequest{
		ProductID:     parcel.ID,
		NewPriceCents: 8000,
		Reason:        "harga promo toko",
	})
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	item := cart.Items[0]
	if item.Discount.AmountCents != 3000 {
		t.Fatalf("expected discount to stay at 3000, got %d", item.Discount.AmountCents)
	}
	if item.FinalPriceCents != 21000 {
		t.Fatalf("expected final price 21000, got %d", item.FinalPriceCents)
	}
}

func TestPercentageDiscountScalesWithQty(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("kasir", permission.RoleSenior)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, _, err := svc.ApplyItemDiscount(ctx, domain.ItemDiscountRequest{
		ProductID: "prd-mie-01",
		Type:      domain.DiscountPercentage,
		Value:     10,
	}); err != nil {
		t.Fatalf("discount failed: %v", err)
	}

	cart, _, err := svc.UpdateCartItem(ctx, domain.UpdateCartItemRequest{ProductID: "prd-mie-01", Qty: 4})
	if err != nil {
		t.Fatalf("qty update failed: %v", err)
	}
	// 4 * 3500 = 14000, 10% = 1400
	if cart.Items[0].Discount.AmountCents != 1400 {
		t.Fatalf("expected rescaled discount 1400, got %d", cart.Items[0].Discount.AmountCents)
	}
}

func TestCheckoutSettlesAndClearsCart(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("spv", permission.RoleSupervisor)

	if _, err := svc.StartShift(ctx, domain.ShiftStartRequest{StartingCashCents: 50000}); err != nil {
		t.Fatalf("start shift failed: %v", err)
	}
	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 3}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}

	tx, err := svc.Checkout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	// 3 * 3500 = 10500 subtotal, 10% tax = 1050
	if tx.SubtotalCents != 10500 || tx.TaxCents != 1050 || tx.TotalCents != 11550 {
		t.Fatalf("unexpected totals: %+v", tx)
	}
	if tx.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed status, got %s", tx.Status)
	}
	if tx.ShiftID == "" {
		t.Fatalf("expected transaction to be bound to the open shift")
	}

	product, err := svc.GetProduct(ctx, "prd-mie-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Stock != 117 {
		t.Fatalf("expected stock 117 after checkout, got %d", product.Stock)
	}

	cart, totals, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart.Items) != 0 || totals.ItemCount != 0 {
		t.Fatalf("expected cart to be cleared, got %d items", len(cart.Items))
	}

	shift, found, err := svc.ActiveShift(ctx)
	if err != nil || !found {
		t.Fatalf("expected active shift, err=%v", err)
	}
	if shift.TotalSalesCents != 11550 || shift.TotalTransactions != 1 {
		t.Fatalf("unexpected shift aggregates: %+v", shift)
	}
}

func TestAddToCartRejectsBeyondStock(t *testing.T) {
	svc := newTestService()
	kasir := actorCtx("kasir", permission.RoleJunior)
	mgr := actorCtx("mgr", permission.RoleManager)

	five := 5
	if _, err := svc.AdjustStock(mgr, domain.StockAdjustRequest{ProductID: "prd-roti-01", SetTo: &five, Reason: "stok opname"}); err != nil {
		t.Fatalf("set stock failed: %v", err)
	}

	_, _, err := svc.AddToCart(kasir, domain.AddToCartRequest{ProductID: "prd-roti-01", Qty: 10})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	cart, _, err := svc.GetCart(kasir)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("rejected add must leave the cart unchanged, got %d items", len(cart.Items))
	}

	// Merging onto an existing line counts against stock too.
	if _, _, err := svc.AddToCart(kasir, domain.AddToCartRequest{ProductID: "prd-roti-01", Qty: 3}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, _, err := svc.AddToCart(kasir, domain.AddToCartRequest{ProductID: "prd-roti-01", Qty: 3}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on merge, got %v", err)
	}
	cart, _, _ = svc.GetCart(kasir)
	if len(cart.Items) != 1 || cart.Items[0].Qty != 3 {
		t.Fatalf("line qty should stay 3, got %+v", cart.Items)
	}

	if _, _, err := svc.UpdateCartItem(kasir, domain.UpdateCartItemRequest{ProductID: "prd-roti-01", Qty: 5}); err != nil {
		t.Fatalf("update within stock failed: %v", err)
	}
	if _, _, err := svc.UpdateCartItem(kasir, domain.UpdateCartItemRequest{ProductID: "prd-roti-01", Qty: 6}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on qty increase, got %v", err)
	}
}

func TestCheckoutAllOrNothing(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("kasir", permission.RoleJunior)
	mgr := actorCtx("mgr", permission.RoleManager)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-roti-01", Qty: 30}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	// Stock drops after the cart was built; settlement must reject the
	// whole cart, not just the short line.
	five := 5
	if _, err := svc.AdjustStock(mgr, domain.StockAdjustRequest{ProductID: "prd-roti-01", SetTo: &five, Reason: "stok opname"}); err != nil {
		t.Fatalf("set stock failed: %v", err)
	}

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentQRIS})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	mie, _ := svc.GetProduct(ctx, "prd-mie-01")
	roti, _ := svc.GetProduct(ctx, "prd-roti-01")
	if mie.Stock != 120 || roti.Stock != 5 {
		t.Fatalf("expected stock untouched, got mie=%d roti=%d", mie.Stock, roti.Stock)
	}

	cart, _, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected cart to survive failed checkout, got %d items", len(cart.Items))
	}
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("kasir", permission.RoleJunior)

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	_, err := svc.Checkout(ctx, domain.CheckoutRequest{PaymentMethod: "cek"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVoidRequiresSupervisorAndReason(t *testing.T) {
	svc := newTestService()
	junior := actorCtx("kasir", permission.RoleJunior)
	supervisor := actorCtx("spv", permission.RoleSupervisor)

	if _, _, err := svc.AddToCart(junior, domain.AddToCartRequest{ProductID: "prd-kopi-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	tx, err := svc.Checkout(junior, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.VoidTransaction(junior, domain.VoidTransactionRequest{TransactionID: tx.ID, Reason: "salah input"})
	if !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial for junior, got %v", err)
	}

	_, err = svc.VoidTransaction(supervisor, domain.VoidTransactionRequest{TransactionID: tx.ID})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	voided, err := svc.VoidTransaction(supervisor, domain.VoidTransactionRequest{TransactionID: tx.ID, Reason: "salah input"})
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Status != domain.TxStatusVoided {
		t.Fatalf("expected voided status, got %s", voided.Status)
	}

	_, err = svc.RefundTransaction(supervisor, domain.RefundRequest{TransactionID: tx.ID, AmountCents: 100, Reason: "x"})
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition refunding a voided transaction, got %v", err)
	}
}

func TestShiftStartPermissionAndDoubleStart(t *testing.T) {
	svc := newTestService()
	junior := actorCtx("kasir", permission.RoleJunior)
	supervisor := actorCtx("spv", permission.RoleSupervisor)

	if _, err := svc.StartShift(junior, domain.ShiftStartRequest{StartingCashCents: 10000}); !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial for junior, got %v", err)
	}

	if _, err := svc.StartShift(supervisor, domain.ShiftStartRequest{StartingCashCents: 10000}); err != nil {
		t.Fatalf("start shift failed: %v", err)
	}
	if _, err := svc.StartShift(supervisor, domain.ShiftStartRequest{StartingCashCents: 10000}); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition on double start, got %v", err)
	}

	shift, err := svc.EndShift(supervisor, domain.ShiftEndRequest{ActualCashCents: 10000})
	if err != nil {
		t.Fatalf("end shift failed: %v", err)
	}
	if shift.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected closed shift, got %s", shift.Status)
	}
}

func TestTransferApprovalPermissions(t *testing.T) {
	svc := newTestService()
	manager := actorCtx("mgr", permission.RoleManager)
	supervisor := actorCtx("spv", permission.RoleSupervisor)

	pusat, err := svc.CreateBranch(manager, domain.BranchCreateRequest{Name: "Toko Pusat"})
	if err != nil {
		t.Fatalf("create branch failed: %v", err)
	}
	timur, err := svc.CreateBranch(manager, domain.BranchCreateRequest{Name: "Cabang Timur"})
	if err != nil {
		t.Fatalf("create branch failed: %v", err)
	}
	if err := svc.SetBranchStock(manager, pusat.ID, "prd-mie-01", 50); err != nil {
		t.Fatalf("set branch stock failed: %v", err)
	}

	if _, err := svc.RequestTransfer(supervisor, domain.TransferCreateRequest{
		FromBranchID: pusat.ID, ToBranchID: timur.ID, ProductID: "prd-mie-01", Qty: 20,
	}); !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial for supervisor request, got %v", err)
	}

	transfer, err := svc.RequestTransfer(manager, domain.TransferCreateRequest{
		FromBranchID: pusat.ID, ToBranchID: timur.ID, ProductID: "prd-mie-01", Qty: 20,
	})
	if err != nil {
		t.Fatalf("request transfer failed: %v", err)
	}
	if transfer.ProductName != "Mie Goreng Instan" {
		t.Fatalf("expected product name resolved from catalog, got %q", transfer.ProductName)
	}

	if _, err := svc.ApproveTransfer(supervisor, transfer.ID); !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial for supervisor approve, got %v", err)
	}

	approved, err := svc.ApproveTransfer(manager, transfer.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.TransferStatusInTransit {
		t.Fatalf("expected in_transit, got %s", approved.Status)
	}

	stock, err := svc.GetBranchStock(manager, pusat.ID)
	if err != nil {
		t.Fatalf("get branch stock failed: %v", err)
	}
	if stock["prd-mie-01"] != 30 {
		t.Fatalf("expected source stock 30 after approval, got %d", stock["prd-mie-01"])
	}
}

func TestRedeemRewardDeductsPointsAndCreditsCashback(t *testing.T) {
	svc := newTestService()
	ctx := actorCtx("kasir", permission.RoleJunior)

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Budi", Phone: "0812-1111-2222"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}
	if _, err := svc.repo.AdjustLoyaltyPoints(ctx, customer.ID, 120); err != nil {
		t.Fatalf("grant points failed: %v", err)
	}

	effect, err := svc.RedeemReward(ctx, domain.RedeemRewardRequest{CustomerID: customer.ID, RewardID: "rwd-cashback"})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if effect.Type != domain.RewardTypeCashback || effect.ValueCents != 10000 {
		t.Fatalf("unexpected effect: %+v", effect)
	}

	after, err := svc.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if after.LoyaltyPoints != 20 {
		t.Fatalf("expected 20 points left, got %d", after.LoyaltyPoints)
	}
	if after.CreditBalanceCents != 10000 {
		t.Fatalf("expected 10000 credit, got %d", after.CreditBalanceCents)
	}

	_, err = svc.RedeemReward(ctx, domain.RedeemRewardRequest{CustomerID: customer.ID, RewardID: "rwd-disc10"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for insufficient points, got %v", err)
	}
}

func TestCreditRequiresManager(t *testing.T) {
	svc := newTestService()
	junior := actorCtx("kasir", permission.RoleJunior)
	manager := actorCtx("mgr", permission.RoleManager)

	customer, err := svc.CreateCustomer(junior, domain.CustomerCreateRequest{Name: "Sari", Phone: "0813-2222-3333"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	if _, err := svc.AddCredit(junior, domain.CreditRequest{CustomerID: customer.ID, AmountCents: 5000}); !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial, got %v", err)
	}

	updated, err := svc.AddCredit(manager, domain.CreditRequest{CustomerID: customer.ID, AmountCents: 5000})
	if err != nil {
		t.Fatalf("add credit failed: %v", err)
	}
	if updated.CreditBalanceCents != 5000 {
		t.Fatalf("expected 5000 credit, got %d", updated.CreditBalanceCents)
	}

	if _, err := svc.UseCredit(manager, domain.CreditRequest{CustomerID: customer.ID, AmountCents: 9000}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error going below zero, got %v", err)
	}
}

func TestExplicitGrantLetsJuniorVoid(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{
		Username:    "kasir",
		Role:        "cashier",
		CashierRole: permission.RoleJunior,
		Permissions: []string{string(permission.VoidTransaction)},
	})

	if _, _, err := svc.AddToCart(ctx, domain.AddToCartRequest{ProductID: "prd-air-01", Qty: 1}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	tx, err := svc.Checkout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	voided, err := svc.VoidTransaction(ctx, domain.VoidTransactionRequest{TransactionID: tx.ID, Reason: "batal"})
	if err != nil {
		t.Fatalf("expected explicit grant to allow void, got %v", err)
	}
	if voided.Status != domain.TxStatusVoided {
		t.Fatalf("expected voided status, got %s", voided.Status)
	}
}

func TestExportTransactionsCSV(t *testing.T) {
	svc := newTestService()
	junior := actorCtx("kasir", permission.RoleJunior)
	supervisor := actorCtx("spv", permission.RoleSupervisor)

	if _, _, err := svc.AddToCart(junior, domain.AddToCartRequest{ProductID: "prd-mie-01", Qty: 2}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	if _, err := svc.Checkout(junior, domain.CheckoutRequest{PaymentMethod: domain.PaymentCard}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportTransactionsCSV(junior, &buf, 0); !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial for junior export, got %v", err)
	}

	buf.Reset()
	if err := svc.ExportTransactionsCSV(supervisor, &buf, 0); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], domain.PaymentCard) {
		t.Fatalf("expected card payment in row, got %q", lines[1])
	}
}

func TestLowStockNotification(t *testing.T) {
	captured := make([]notify.Event, 0, 2)
	recorder := notifyFunc(func(_ context.Context, event notify.Event) {
		captured = append(captured, event)
	})
	svc := New(memory.NewSeeded(), memory.NewBranchStore(), nil, recorder, testPolicy(), zerolog.Nop())
	ctx := actorCtx("mgr", permission.RoleManager)

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: "prd-mie-01", Delta: -112, Reason: "stok opname"}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	found := false
	for _, event := range captured {
		if event.Kind == notify.EventLowStock && event.Subject == "prd-mie-01" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected low stock event, got %+v", captured)
	}
}

func TestPriceEditLeavesAuditTrail(t *testing.T) {
	svc := newTestService()
	mgr := actorCtx("mgr", permission.RoleManager)

	newPrice := int64(4000)
	if _, err := svc.UpdateProduct(mgr, "prd-mie-01", domain.ProductUpdateRequest{PriceCents: &newPrice}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	junior := actorCtx("kasir", permission.RoleJunior)
	if _, err := svc.ListPriceChanges(junior, 0); !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected permission denial for junior, got %v", err)
	}

	changes, err := svc.ListPriceChanges(mgr, 0)
	if err != nil {
		t.Fatalf("list price changes failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(changes))
	}
	entry := changes[0]
	if entry.ProductID != "prd-mie-01" || entry.OldPriceCents != 3500 || entry.NewPriceCents != 4000 || entry.ChangedBy != "mgr" {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}

	// Editing non-price fields must not add entries.
	name := "Mie Goreng Jumbo"
	if _, err := svc.UpdateProduct(mgr, "prd-mie-01", domain.ProductUpdateRequest{Name: &name}); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	changes, err = svc.ListPriceChanges(mgr, 0)
	if err != nil {
		t.Fatalf("list price changes failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected audit trail unchanged, got %d entries", len(changes))
	}
}

type notifyFunc func(ctx context.Context, event notify.Event)

func (f notifyFunc) Notify(ctx context.Context, event notify.Event) { f(ctx, event) }
