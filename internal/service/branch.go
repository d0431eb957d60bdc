package service

import (
	"context"
	"fmt"
	"strings"

	"warungpos/internal/domain"
	"warungpos/internal/notify"
	"warungpos/internal/permission"
	"warungpos/internal/store"
)

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	if _, err := s.requireActor(ctx, permission.ProcessTransaction); err != nil {
		return nil, err
	}
	return s.branches.ListBranches(ctx)
}

func (s *Service) GetBranch(ctx context.Context, id string) (domain.Branch, error) {
	if _, err := s.requireActor(ctx, permission.ProcessTransaction); err != nil {
		return domain.Branch{}, err
	}
	branch, err := s.branches.GetBranch(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Branch{}, err
	}
	return *branch, nil
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	actor, err := s.requireActor(ctx, permission.ManageBranches)
	if err != nil {
		return domain.Branch{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Branch{}, fmt.Errorf("%w: branch name is required", store.ErrValidation)
	}

	created, err := s.branches.CreateBranch(ctx, domain.Branch{
		Name:     req.Name,
		Address:  strings.TrimSpace(req.Address),
		Phone:    strings.TrimSpace(req.Phone),
		OpensAt:  req.OpensAt,
		ClosesAt: req.ClosesAt,
		Settings: req.Settings,
	})
	if err != nil {
		return domain.Branch{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("branch", created.ID).Msg("branch created")
	s.persistBranches(ctx)
	return *created, nil
}

func (s *Service) UpdateBranch(ctx context.Context, id string, req domain.BranchUpdateRequest) (domain.Branch, error) {
	actor, err := s.requireActor(ctx, permission.ManageBranches)
	if err != nil {
		return domain.Branch{}, err
	}

	existing, err := s.branches.GetBranch(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Branch{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Branch{}, fmt.Errorf("%w: branch name cannot be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}
	if req.OpensAt != nil {
		updated.OpensAt = *req.OpensAt
	}
	if req.ClosesAt != nil {
		updated.ClosesAt = *req.ClosesAt
	}
	if req.Settings != nil {
		updated.Settings = *req.Settings
	}

	saved, err := s.branches.UpdateBranch(ctx, updated)
	if err != nil {
		return domain.Branch{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("branch", saved.ID).Msg("branch updated")
	s.persistBranches(ctx)
	return *saved, nil
}

func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	actor, err := s.requireActor(ctx, permission.ManageBranches)
	if err != nil {
		return err
	}
	if err := s.branches.DeleteBranch(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logger.Info().Str("actor", actor.Username).Str("branch", id).Msg("branch deleted")
	s.persistBranches(ctx)
	return nil
}

func (s *Service) SetBranchStock(ctx context.Context, branchID, productID string, qty int) error {
	actor, err := s.requireActor(ctx, permission.ManageBranches)
	if err != nil {
		return err
	}
	if qty < 0 {
		return fmt.Errorf("%w: branch stock cannot be negative", store.ErrValidation)
	}
	if err := s.branches.SetBranchStock(ctx, strings.TrimSpace(branchID), strings.TrimSpace(productID), qty); err != nil {
		return err
	}
	s.logger.Info().Str("actor", actor.Username).Str("branch", branchID).Str("product", productID).Int("qty", qty).Msg("branch stock set")
	s.persistBranches(ctx)
	return nil
}

func (s *Service) GetBranchStock(ctx context.Context, branchID string) (map[string]int, error) {
	if _, err := s.requireActor(ctx, permission.ProcessTransaction); err != nil {
		return nil, err
	}
	return s.branches.GetBranchStock(ctx, strings.TrimSpace(branchID))
}

// RequestTransfer opens a pending stock movement between branches. Stock
// moves only at approval and completion.
func (s *Service) RequestTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.Transfer, error) {
	actor, err := s.requireActor(ctx, permission.ManageInventory)
	if err != nil {
		return domain.Transfer{}, err
	}
	if req.Qty < 1 {
		return domain.Transfer{}, fmt.Errorf("%w: transfer qty must be positive", store.ErrValidation)
	}

	productName := strings.TrimSpace(req.ProductID)
	if product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID)); err == nil {
		productName = product.Name
	}

	created, err := s.branches.CreateTransfer(ctx, domain.Transfer{
		FromBranchID: strings.TrimSpace(req.FromBranchID),
		ToBranchID:   strings.TrimSpace(req.ToBranchID),
		ProductID:    strings.TrimSpace(req.ProductID),
		ProductName:  productName,
		Qty:          req.Qty,
		RequestedBy:  actor.Username,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventTransferRequested,
		Actor:   actor.Username,
		Subject: created.ID,
		Detail:  map[string]any{"from": created.FromBranchID, "to": created.ToBranchID, "product": created.ProductID, "qty": created.Qty},
	})
	s.persistBranches(ctx)
	return *created, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	if _, err := s.requireActor(ctx, permission.ProcessTransaction); err != nil {
		return domain.Transfer{}, err
	}
	transfer, err := s.branches.GetTransfer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transfer{}, err
	}
	return *transfer, nil
}

func (s *Service) ListTransfers(ctx context.Context, branchID, status string, limit int) ([]domain.Transfer, error) {
	if _, err := s.requireActor(ctx, permission.ProcessTransaction); err != nil {
		return nil, err
	}
	return s.branches.ListTransfers(ctx, strings.TrimSpace(branchID), strings.TrimSpace(status), limit)
}

// ApproveTransfer deducts source stock and puts the movement in transit.
func (s *Service) ApproveTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	actor, err := s.requireActor(ctx, permission.ApproveTransfer)
	if err != nil {
		return domain.Transfer{}, err
	}

	approved, err := s.branches.ApproveTransfer(ctx, strings.TrimSpace(id), actor.Username, nowUTC())
	if err != nil {
		return domain.Transfer{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventTransferApproved,
		Actor:   actor.Username,
		Subject: approved.ID,
		Detail:  map[string]any{"from": approved.FromBranchID, "product": approved.ProductID, "qty": approved.Qty},
	})
	s.persistBranches(ctx)
	return *approved, nil
}

// CompleteTransfer credits the destination branch once goods arrive.
func (s *Service) CompleteTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	actor, err := s.requireActor(ctx, permission.ManageInventory)
	if err != nil {
		return domain.Transfer{}, err
	}

	completed, err := s.branches.CompleteTransfer(ctx, strings.TrimSpace(id), actor.Username, nowUTC())
	if err != nil {
		return domain.Transfer{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventTransferCompleted,
		Actor:   actor.Username,
		Subject: completed.ID,
		Detail:  map[string]any{"to": completed.ToBranchID, "product": completed.ProductID, "qty": completed.Qty},
	})
	s.persistBranches(ctx)
	return *completed, nil
}

// CancelTransfer abandons a pending or in-transit movement. Stock already
// deducted from the source is restored by the store.
func (s *Service) CancelTransfer(ctx context.Context, id, reason string) (domain.Transfer, error) {
	actor, err := s.requireActor(ctx, permission.ApproveTransfer)
	if err != nil {
		return domain.Transfer{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Transfer{}, fmt.Errorf("%w: cancel reason required", store.ErrValidation)
	}

	cancelled, err := s.branches.CancelTransfer(ctx, strings.TrimSpace(id), reason, nowUTC())
	if err != nil {
		return domain.Transfer{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventTransferCancelled,
		Actor:   actor.Username,
		Subject: cancelled.ID,
		Detail:  map[string]any{"reason": reason},
	})
	s.persistBranches(ctx)
	return *cancelled, nil
}
