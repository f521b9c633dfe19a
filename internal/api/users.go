package api

import (
	"context"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
)

type OnboardRequest struct {
	FirstName string
	LastName  string
	Email     string
	ChatId    string
}

// OnboardUser opens an exchange sub-account for the user, records them and
// queues wallet provisioning.
func (s *LedgerService) OnboardUser(ctx context.Context, req OnboardRequest) (*models.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FirstName == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: first name and email are required", ErrInvalidRequest)
	}

	subAccount, err := s.gateway.CreateSubAccount(ctx, req.Email, req.FirstName, req.LastName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-account: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.CreateUserParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		SubUserId: subAccount.Id,
		ChatId:    req.ChatId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	_, err = s.queue.Enqueue(ctx, queue.CreateWallet, models.WalletProvisioningJob{
		UserId:    user.Id,
		SubUserId: user.SubUserId,
		Email:     user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue wallet provisioning: %w", err)
	}

	zap.L().Info("User onboarded",
		zap.String("user_id", user.Id),
		zap.String("sub_user_id", user.SubUserId),
		zap.String("email", user.Email))
	return user, nil
}
