package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"warungpos/internal/domain"
	"warungpos/internal/notify"
	"warungpos/internal/permission"
	"warungpos/internal/store"
)

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEWallet:
		return true
	}
	return false
}

// Checkout settles the actor's cart into a transaction. The store applies
// stock, shift, customer and cart effects atomically; a failed line leaves
// everything untouched.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	actor, err := s.requireActor(ctx, permission.ProcessTransaction)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return domain.Transaction{}, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, req.PaymentMethod)
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if req.Notes != "" {
		if err := permission.Require(actor, permission.TransactionNotes); err != nil {
			return domain.Transaction{}, err
		}
	}

	cart, err := s.repo.GetCart(ctx, actor.Username)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(cart.Items) == 0 {
		return domain.Transaction{}, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	totals := s.cartTotals(*cart)
	tx := domain.Transaction{
		CashierUsername: actor.Username,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		PaymentMethod:   req.PaymentMethod,
		SubtotalCents:   totals.SubtotalCents,
		DiscountCents:   totals.DiscountCents,
		TaxCents:        totals.TaxCents,
		TotalCents:      totals.TotalCents,
		Notes:           req.Notes,
		Items:           make([]domain.TransactionLine, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		tx.Items = append(tx.Items, domain.TransactionLine{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Qty:             item.Qty,
			UnitPriceCents:  item.EffectiveUnitPriceCents(),
			Discount:        item.Discount,
			PriceOverride:   item.PriceOverride,
			FinalPriceCents: item.FinalPriceCents,
		})
	}

	settled, err := s.repo.SettleCheckout(ctx, tx, s.policy.AllowNegativeStock)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventCheckoutCompleted,
		Actor:   actor.Username,
		Subject: settled.ID,
		Detail:  map[string]any{"total_cents": settled.TotalCents, "payment_method": settled.PaymentMethod, "items": len(settled.Items)},
	})
	for _, line := range settled.Items {
		if product, err := s.repo.GetProduct(ctx, line.ProductID); err == nil {
			s.warnLowStock(ctx, actor.Username, *product)
		}
	}
	s.persist(ctx)
	return *settled, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if _, err := s.requireActor(ctx, permission.ViewTransactionHistory); err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if _, err := s.requireActor(ctx, permission.ViewTransactionHistory); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, limit)
}

func (s *Service) VoidTransaction(ctx context.Context, req domain.VoidTransactionRequest) (domain.Transaction, error) {
	actor, err := s.requireActor(ctx, permission.VoidTransaction)
	if err != nil {
		return domain.Transaction{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.Transaction{}, fmt.Errorf("%w: void reason required", store.ErrValidation)
	}

	voided, err := s.repo.VoidTransaction(ctx, strings.TrimSpace(req.TransactionID), req.Reason, nowUTC())
	if err != nil {
		return domain.Transaction{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventTransactionVoided,
		Actor:   actor.Username,
		Subject: voided.ID,
		Detail:  map[string]any{"total_cents": voided.TotalCents, "reason": req.Reason},
	})
	s.persist(ctx)
	return *voided, nil
}

func (s *Service) RefundTransaction(ctx context.Context, req domain.RefundRequest) (domain.Transaction, error) {
	actor, err := s.requireActor(ctx, permission.ProcessRefund)
	if err != nil {
		return domain.Transaction{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.Transaction{}, fmt.Errorf("%w: refund reason required", store.ErrValidation)
	}

	refunded, err := s.repo.RefundTransaction(ctx, strings.TrimSpace(req.TransactionID), req.AmountCents, req.Reason, nowUTC())
	if err != nil {
		return domain.Transaction{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventRefundIssued,
		Actor:   actor.Username,
		Subject: refunded.ID,
		Detail:  map[string]any{"amount_cents": req.AmountCents, "reason": req.Reason, "status": refunded.Status},
	})
	s.persist(ctx)
	return *refunded, nil
}

func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.Shift, error) {
	actor, err := s.requireActor(ctx, permission.ManageShift)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.StartingCashCents < 0 {
		return domain.Shift{}, fmt.Errorf("%w: starting cash cannot be negative", store.ErrValidation)
	}

	shift, err := s.repo.CreateShift(ctx, domain.Shift{
		CashierUsername:   actor.Username,
		StartingCashCents: req.StartingCashCents,
		StartedAt:         nowUTC(),
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventShiftStarted,
		Actor:   actor.Username,
		Subject: shift.ID,
		Detail:  map[string]any{"starting_cash_cents": shift.StartingCashCents},
	})
	s.persist(ctx)
	return *shift, nil
}

func (s *Service) EndShift(ctx context.Context, req domain.ShiftEndRequest) (domain.Shift, error) {
	actor, err := s.requireActor(ctx, permission.ManageShift)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.ActualCashCents < 0 {
		return domain.Shift{}, fmt.Errorf("%w: counted cash cannot be negative", store.ErrValidation)
	}

	shift, err := s.repo.CloseActiveShift(ctx, actor.Username, req.ActualCashCents, strings.TrimSpace(req.Notes), nowUTC())
	if err != nil {
		return domain.Shift{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventShiftClosed,
		Actor:   actor.Username,
		Subject: shift.ID,
		Detail:  map[string]any{"total_sales_cents": shift.TotalSalesCents, "cash_difference_cents": shift.CashDifferenceCents},
	})
	s.persist(ctx)
	return *shift, nil
}

// ActiveShift reports the actor's open shift, or found=false when none.
func (s *Service) ActiveShift(ctx context.Context) (domain.Shift, bool, error) {
	actor, err := s.requireActor(ctx, permission.ProcessTransaction)
	if err != nil {
		return domain.Shift{}, false, err
	}
	shift, err := s.repo.GetActiveShift(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Shift{}, false, nil
		}
		return domain.Shift{}, false, err
	}
	return *shift, true, nil
}

func (s *Service) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if _, err := s.requireActor(ctx, permission.ViewReports); err != nil {
		return nil, err
	}
	return s.repo.ListShifts(ctx, limit)
}

// ExportTransactionsCSV streams the ledger in spreadsheet form, newest first.
func (s *Service) ExportTransactionsCSV(ctx context.Context, w io.Writer, limit int) error {
	if _, err := s.requireActor(ctx, permission.ViewReports); err != nil {
		return err
	}
	transactions, err := s.repo.ListTransactions(ctx, limit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "created_at", "cashier", "status", "payment_method", "subtotal_cents", "discount_cents", "tax_cents", "total_cents", "refund_amount_cents", "items"}); err != nil {
		return err
	}
	for _, tx := range transactions {
		record := []string{
			tx.ID,
			tx.CreatedAt.Format(time.RFC3339),
			tx.CashierUsername,
			tx.Status,
			tx.PaymentMethod,
			strconv.FormatInt(tx.SubtotalCents, 10),
			strconv.FormatInt(tx.DiscountCents, 10),
			strconv.FormatInt(tx.TaxCents, 10),
			strconv.FormatInt(tx.TotalCents, 10),
			strconv.FormatInt(tx.RefundAmountCents, 10),
			strconv.Itoa(len(tx.Items)),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportShiftsCSV streams closed and open shifts for reconciliation.
func (s *Service) ExportShiftsCSV(ctx context.Context, w io.Writer, limit int) error {
	if _, err := s.requireActor(ctx, permission.ViewReports); err != nil {
		return err
	}
	shifts, err := s.repo.ListShifts(ctx, limit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "cashier", "status", "started_at", "closed_at", "starting_cash_cents", "total_sales_cents", "total_transactions", "expected_cash_cents", "actual_cash_cents", "cash_difference_cents"}); err != nil {
		return err
	}
	for _, shift := range shifts {
		closedAt := ""
		if shift.ClosedAt != nil {
			closedAt = shift.ClosedAt.Format(time.RFC3339)
		}
		record := []string{
			shift.ID,
			shift.CashierUsername,
			shift.Status,
			shift.StartedAt.Format(time.RFC3339),
			closedAt,
			strconv.FormatInt(shift.StartingCashCents, 10),
			strconv.FormatInt(shift.TotalSalesCents, 10),
			strconv.Itoa(shift.TotalTransactions),
			strconv.FormatInt(shift.ExpectedCashCents, 10),
			strconv.FormatInt(shift.ActualCashCents, 10),
			strconv.FormatInt(shift.CashDifferenceCents, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
