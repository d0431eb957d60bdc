package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"warungpos/internal/domain"
	"warungpos/internal/store"
)

func testTx(cashier string, lines ...domain.TransactionLine) domain.Transaction {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.FinalPriceCents
	}
	return domain.Transaction{
		CashierUsername: cashier,
		PaymentMethod:   domain.PaymentCash,
		Items:           lines,
		SubtotalCents:   subtotal,
		TotalCents:      subtotal,
	}
}

func line(productID string, qty int, unitCents int64) domain.TransactionLine {
	return domain.TransactionLine{
		ProductID:       productID,
		Qty:             qty,
		UnitPriceCents:  unitCents,
		FinalPriceCents: int64(qty) * unitCents,
	}
}

func TestSettleCheckoutDeductsStockAndClearsCart(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.SaveCart(ctx, domain.Cart{CashierUsername: "cashier", Items: []domain.CartItem{{ProductID: "prd-mie-01", Qty: 3}}}); err != nil {
		t.Fatalf("save cart: %v", err)
	}

	tx, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-mie-01", 3, 3500)), false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if tx.Status != domain.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", tx.Status)
	}

	product, err := s.GetProduct(ctx, "prd-mie-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 117 {
		t.Fatalf("stock = %d, want 117", product.Stock)
	}

	cart, err := s.GetCart(ctx, "cashier")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("cart should be empty after settlement, has %d items", len(cart.Items))
	}
}

func TestSettleCheckoutAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.SetStock(ctx, "prd-roti-01", 1); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	// First line would succeed alone; second line fails. Nothing may land.
	_, err := s.SettleCheckout(ctx, testTx("cashier",
		line("prd-mie-01", 2, 3500),
		line("prd-roti-01", 5, 17800),
	), false)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("insufficient stock should also match ErrValidation, got %v", err)
	}

	mie, _ := s.GetProduct(ctx, "prd-mie-01")
	if mie.Stock != 120 {
		t.Fatalf("mie stock = %d, want untouched 120", mie.Stock)
	}
	txs, _ := s.ListTransactions(ctx, 0)
	if len(txs) != 0 {
		t.Fatalf("ledger should be empty, has %d entries", len(txs))
	}
}

func TestSettleCheckoutNegativeStockAllowed(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.SetStock(ctx, "prd-air-01", 1); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if _, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-air-01", 4, 3900)), true); err != nil {
		t.Fatalf("settle with negative stock allowed: %v", err)
	}
	air, _ := s.GetProduct(ctx, "prd-air-01")
	if air.Stock != -3 {
		t.Fatalf("stock = %d, want -3", air.Stock)
	}
}

func TestVoidRestoresStockAndFreezesStatus(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	tx, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-kopi-01", 10, 2600)), false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	voided, err := s.VoidTransaction(ctx, tx.ID, "wrong order", time.Now().UTC())
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.TxStatusVoided {
		t.Fatalf("status = %s, want voided", voided.Status)
	}

	kopi, _ := s.GetProduct(ctx, "prd-kopi-01")
	if kopi.Stock != 200 {
		t.Fatalf("stock = %d, want restored 200", kopi.Stock)
	}

	if _, err := s.VoidTransaction(ctx, tx.ID, "again", time.Now().UTC()); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("double void should be illegal, got %v", err)
	}
	if _, err := s.RefundTransaction(ctx, tx.ID, 100, "too late", time.Now().UTC()); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("refund after void should be illegal, got %v", err)
	}
}

func TestRefundIsTerminalEvenWhenPartial(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.CreateShift(ctx, domain.Shift{CashierUsername: "cashier", StartingCashCents: 100000}); err != nil {
		t.Fatalf("create shift: %v", err)
	}
	tx, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-susu-01", 2, 18900)), false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := s.RefundTransaction(ctx, tx.ID, 40000, "too much", time.Now().UTC()); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("over-refund should fail validation, got %v", err)
	}

	refunded, err := s.RefundTransaction(ctx, tx.ID, 18900, "one carton damaged", time.Now().UTC())
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if refunded.Status != domain.TxStatusRefunded {
		t.Fatalf("status = %s, want refunded after a partial amount", refunded.Status)
	}
	if refunded.RefundAmountCents != 18900 {
		t.Fatalf("refund amount = %d, want 18900", refunded.RefundAmountCents)
	}

	if _, err := s.RefundTransaction(ctx, tx.ID, 100, "again", time.Now().UTC()); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("second refund should be illegal, got %v", err)
	}
	if _, err := s.VoidTransaction(ctx, tx.ID, "undo it all", time.Now().UTC()); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("void after refund should be illegal, got %v", err)
	}

	// The shift keeps the sale and records the refund once, no double
	// reversal through a later void.
	active, err := s.GetActiveShift(ctx, "cashier")
	if err != nil {
		t.Fatalf("get active shift: %v", err)
	}
	if active.TotalSalesCents != 37800 || active.RefundedAmountCents != 18900 {
		t.Fatalf("shift = sales %d refunded %d, want 37800/18900", active.TotalSalesCents, active.RefundedAmountCents)
	}
	if active.ExpectedCashCents != 100000+37800-18900 {
		t.Fatalf("expected cash = %d, want %d", active.ExpectedCashCents, 100000+37800-18900)
	}
}

func TestShiftLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	shift, err := s.CreateShift(ctx, domain.Shift{CashierUsername: "cashier", StartingCashCents: 50000})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{CashierUsername: "cashier", StartingCashCents: 0}); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("double shift start should be illegal, got %v", err)
	}

	tx, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-gula-01", 2, 17400)), false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if tx.ShiftID != shift.ID {
		t.Fatalf("transaction shift = %q, want %q", tx.ShiftID, shift.ID)
	}

	active, err := s.GetActiveShift(ctx, "cashier")
	if err != nil {
		t.Fatalf("get active shift: %v", err)
	}
	if active.TotalSalesCents != 34800 || active.TotalTransactions != 1 {
		t.Fatalf("aggregates = %d/%d, want 34800/1", active.TotalSalesCents, active.TotalTransactions)
	}
	if active.ExpectedCashCents != 50000+34800 {
		t.Fatalf("expected cash = %d, want %d", active.ExpectedCashCents, 50000+34800)
	}

	closed, err := s.CloseActiveShift(ctx, "cashier", 84000, "drawer short", time.Now().UTC())
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.CashDifferenceCents != 84000-84800 {
		t.Fatalf("cash difference = %d, want -800", closed.CashDifferenceCents)
	}
	if _, err := s.CloseActiveShift(ctx, "cashier", 0, "", time.Now().UTC()); !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("closing without an active shift should be illegal, got %v", err)
	}
}

func TestVoidAdjustsActiveShiftAggregates(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.CreateShift(ctx, domain.Shift{CashierUsername: "cashier", StartingCashCents: 0}); err != nil {
		t.Fatalf("create shift: %v", err)
	}
	tx, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-teh-01", 1, 9800)), false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := s.VoidTransaction(ctx, tx.ID, "mispick", time.Now().UTC()); err != nil {
		t.Fatalf("void: %v", err)
	}

	active, err := s.GetActiveShift(ctx, "cashier")
	if err != nil {
		t.Fatalf("get active shift: %v", err)
	}
	if active.TotalSalesCents != 0 || active.VoidedTransactions != 1 || active.ExpectedCashCents != 0 {
		t.Fatalf("shift after void = sales %d voids %d expected %d", active.TotalSalesCents, active.VoidedTransactions, active.ExpectedCashCents)
	}
}

func TestCustomerLedgerUpdatesOnSettlement(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Budi", Phone: "0812000111"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	tx := testTx("cashier", line("prd-roti-01", 2, 17800))
	tx.CustomerID = customer.ID
	if _, err := s.SettleCheckout(ctx, tx, false); err != nil {
		t.Fatalf("settle: %v", err)
	}

	updated, err := s.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if updated.TotalSpentCents != 35600 || updated.VisitCount != 1 {
		t.Fatalf("ledger = spent %d visits %d", updated.TotalSpentCents, updated.VisitCount)
	}
	if updated.LoyaltyPoints != 3 {
		t.Fatalf("points = %d, want 3 for 35600 cents", updated.LoyaltyPoints)
	}
}

func TestLoyaltyAndCreditFloors(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Sari"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	if _, err := s.AdjustLoyaltyPoints(ctx, customer.ID, -1); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("points below zero should fail validation, got %v", err)
	}
	if _, err := s.AdjustCredit(ctx, customer.ID, 5000); err != nil {
		t.Fatalf("add credit: %v", err)
	}
	if _, err := s.AdjustCredit(ctx, customer.ID, -6000); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("credit below zero should fail validation, got %v", err)
	}
}

func TestDeleteProductLeavesCartCopyIntact(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.SaveCart(ctx, domain.Cart{
		CashierUsername: "cashier",
		Items:           []domain.CartItem{{ProductID: "prd-coklat-01", ProductName: "Coklat Batang", UnitPriceCents: 8600, Qty: 1}},
	}); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	if err := s.DeleteProduct(ctx, "prd-coklat-01"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	cart, _ := s.GetCart(ctx, "cashier")
	if len(cart.Items) != 1 || cart.Items[0].UnitPriceCents != 8600 {
		t.Fatalf("cart copy should survive catalog delete: %+v", cart.Items)
	}
	if _, err := s.GetProduct(ctx, "prd-coklat-01"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted product should be gone, got %v", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if _, err := s.CreateShift(ctx, domain.Shift{CashierUsername: "cashier", StartingCashCents: 10000}); err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.SettleCheckout(ctx, testTx("cashier", line("prd-mie-01", 1, 3500)), false); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := s.ToggleFavorite(ctx, "cashier", "prd-kopi-01"); err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}

	payload, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := New()
	if err := restored.Restore(ctx, payload); err != nil {
		t.Fatalf("restore: %v", err)
	}

	mie, err := restored.GetProduct(ctx, "prd-mie-01")
	if err != nil {
		t.Fatalf("get product after restore: %v", err)
	}
	if mie.Stock != 119 {
		t.Fatalf("restored stock = %d, want 119", mie.Stock)
	}
	if _, err := restored.GetActiveShift(ctx, "cashier"); err != nil {
		t.Fatalf("active shift should survive restore: %v", err)
	}
	favorites, _ := restored.ListFavorites(ctx, "cashier")
	if len(favorites) != 1 || favorites[0] != "prd-kopi-01" {
		t.Fatalf("favorites after restore = %v", favorites)
	}
	txs, _ := restored.ListTransactions(ctx, 0)
	if len(txs) != 1 {
		t.Fatalf("ledger after restore has %d entries, want 1", len(txs))
	}
}

func TestUpdateProductKeepsBarcodeUnique(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	roti, err := s.GetProduct(ctx, "prd-roti-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}

	dup := *roti
	dup.Barcode = "8991001010011" // prd-mie-01
	if _, err := s.UpdateProduct(ctx, dup); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("duplicate barcode on update should fail validation, got %v", err)
	}

	same := *roti
	same.Name = "Roti Tawar Gandum"
	if _, err := s.UpdateProduct(ctx, same); err != nil {
		t.Fatalf("keeping own barcode should pass, got %v", err)
	}
}

func TestBarcodeLookup(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	product, err := s.GetProductByBarcode(ctx, "8991001010059")
	if err != nil {
		t.Fatalf("barcode lookup: %v", err)
	}
	if product.ID != "prd-kopi-01" {
		t.Fatalf("barcode resolved to %s", product.ID)
	}
	if _, err := s.GetProductByBarcode(ctx, "0000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown barcode should be not found, got %v", err)
	}
}
