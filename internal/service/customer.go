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

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.requireActor(ctx, permission.AccessCustomerData)
	if err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return domain.Customer{}, fmt.Errorf("%w: name and phone are required", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{Name: req.Name, Phone: req.Phone})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("customer", created.ID).Msg("customer created")
	s.persist(ctx)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	if _, err := s.requireActor(ctx, permission.AccessCustomerData); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) FindCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	if _, err := s.requireActor(ctx, permission.AccessCustomerData); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.FindCustomerByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if _, err := s.requireActor(ctx, permission.AccessCustomerData); err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) ListRewards(ctx context.Context) ([]domain.Reward, error) {
	if _, err := s.requireActor(ctx, permission.AccessCustomerData); err != nil {
		return nil, err
	}
	return s.repo.ListRewards(ctx)
}

// RedeemReward deducts the reward's point cost and hands back the effect to
// apply at the register. Cashback rewards are credited to the customer's
// store credit immediately.
func (s *Service) RedeemReward(ctx context.Context, req domain.RedeemRewardRequest) (domain.RewardEffect, error) {
	actor, err := s.requireActor(ctx, permission.AccessCustomerData)
	if err != nil {
		return domain.RewardEffect{}, err
	}

	reward, err := s.repo.GetReward(ctx, strings.TrimSpace(req.RewardID))
	if err != nil {
		return domain.RewardEffect{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.RewardEffect{}, err
	}
	if customer.LoyaltyPoints < reward.PointsCost {
		return domain.RewardEffect{}, fmt.Errorf("%w: %s has %d points, reward costs %d", store.ErrValidation, customer.ID, customer.LoyaltyPoints, reward.PointsCost)
	}

	if _, err := s.repo.AdjustLoyaltyPoints(ctx, customer.ID, -reward.PointsCost); err != nil {
		return domain.RewardEffect{}, err
	}
	if reward.Type == domain.RewardTypeCashback && reward.ValueCents > 0 {
		if _, err := s.repo.AdjustCredit(ctx, customer.ID, reward.ValueCents); err != nil {
			// Points are already gone; put them back before reporting.
			if _, restoreErr := s.repo.AdjustLoyaltyPoints(ctx, customer.ID, reward.PointsCost); restoreErr != nil {
				s.logger.Error().Err(restoreErr).Str("customer", customer.ID).Msg("point restore failed after cashback error")
			}
			return domain.RewardEffect{}, err
		}
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:    notify.EventRewardRedeemed,
		Actor:   actor.Username,
		Subject: customer.ID,
		Detail:  map[string]any{"reward": reward.ID, "points_cost": reward.PointsCost, "type": reward.Type},
	})
	s.persist(ctx)

	return domain.RewardEffect{
		Type:       reward.Type,
		ValueCents: reward.ValueCents,
		Percent:    reward.Percent,
		ProductID:  reward.ProductID,
	}, nil
}

func (s *Service) AddCredit(ctx context.Context, req domain.CreditRequest) (domain.Customer, error) {
	actor, err := s.requireActor(ctx, permission.CustomerCredit)
	if err != nil {
		return domain.Customer{}, err
	}
	if req.AmountCents < 1 {
		return domain.Customer{}, fmt.Errorf("%w: credit amount must be positive", store.ErrValidation)
	}

	customer, err := s.repo.AdjustCredit(ctx, strings.TrimSpace(req.CustomerID), req.AmountCents)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("customer", customer.ID).Int64("amount", req.AmountCents).Msg("credit added")
	s.persist(ctx)
	return *customer, nil
}

func (s *Service) UseCredit(ctx context.Context, req domain.CreditRequest) (domain.Customer, error) {
	actor, err := s.requireActor(ctx, permission.CustomerCredit)
	if err != nil {
		return domain.Customer{}, err
	}
	if req.AmountCents < 1 {
		return domain.Customer{}, fmt.Errorf("%w: credit amount must be positive", store.ErrValidation)
	}

	customer, err := s.repo.AdjustCredit(ctx, strings.TrimSpace(req.CustomerID), -req.AmountCents)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logger.Info().Str("actor", actor.Username).Str("customer", customer.ID).Int64("amount", req.AmountCents).Msg("credit used")
	s.persist(ctx)
	return *customer, nil
}
