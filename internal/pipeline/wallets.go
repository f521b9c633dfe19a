package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WalletProvisioning creates a wallet per supported currency for a newly
// onboarded user and requests a deposit address for each.
type WalletProvisioning struct{ *Deps }

func (s *WalletProvisioning) Queue() string { return queue.CreateWallet }

func (s *WalletProvisioning) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.WalletProvisioningJob](payload)
	if err != nil {
		return nil, err
	}

	user, err := s.Store.GetUserById(ctx, job.UserId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrUnknownUser, job.UserId)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	errs := make([]error, len(s.Currencies))
	var g errgroup.Group
	g.SetLimit(4)
	for i, currency := range s.Currencies {
		g.Go(func() error {
			if err := s.provision(ctx, user, job.SubUserId, currency); err != nil {
				errs[i] = fmt.Errorf("%s: %w", currency.Symbol, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to provision wallets for user %s: %w", user.Id, err)
	}

	zap.L().Info("Wallets provisioned",
		zap.String("user_id", user.Id),
		zap.Int("currencies", len(s.Currencies)))
	return nil, nil
}

func (s *WalletProvisioning) provision(ctx context.Context, user *models.User, subUserId string, currency models.Currency) error {
	remote, err := s.Exchange.FetchCurrencyWallet(ctx, subUserId, currency.Symbol)
	if err != nil {
		return err
	}

	wallet, created, err := s.Store.CreateWalletIfAbsent(ctx, store.CreateWalletParams{
		UserId:           user.Id,
		Currency:         currency.Symbol,
		ExternalWalletId: remote.Id,
		Scale:            currency.Scale,
	})
	if err != nil {
		return err
	}

	if !created && (len(wallet.Addresses) > 0 || wallet.InProgress) {
		zap.L().Debug("Wallet already addressed",
			zap.String("wallet_id", wallet.Id),
			zap.String("currency", wallet.Currency))
		return nil
	}

	address, err := s.Exchange.CreatePaymentAddress(ctx, subUserId, currency.Symbol, currency.Network)
	if err != nil {
		return err
	}

	// Some currencies answer with the address straight away.
	if address.Address != "" {
		network := address.Network
		if network == "" {
			network = currency.Network
		}
		added, err := s.Store.AddWalletAddress(ctx, store.AddWalletAddressParams{
			WalletId:       wallet.Id,
			Network:        strings.ToLower(network),
			Address:        address.Address,
			DestinationTag: address.DestinationTag,
		})
		if err != nil {
			return err
		}
		if added {
			s.notify(ctx, user.ChatId, notifier.AddressAssigned(address.Address, currency.Symbol))
		}
		return nil
	}

	return s.Store.SetWalletInProgress(ctx, wallet.Id, true)
}

// AddressAssignment stores an address delivered by wallet.address.generated
type AddressAssignment struct{ *Deps }

func (s *AddressAssignment) Queue() string { return queue.AssignWalletAddress }

func (s *AddressAssignment) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.AddressGeneratedJob](payload)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveUser(ctx, job.User.Id)
	if err != nil {
		return nil, err
	}

	wallet, err := s.Store.GetWallet(ctx, user.Id, job.Currency)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s wallet for user %s", ErrPrerequisitePending, job.Currency, user.Id)
		}
		return nil, err
	}

	added, err := s.Store.AddWalletAddress(ctx, store.AddWalletAddressParams{
		WalletId:       wallet.Id,
		Network:        strings.ToLower(job.Network),
		Address:        job.Address,
		DestinationTag: job.DestinationTag,
	})
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, fmt.Errorf("%w: address %s already assigned", store.ErrDuplicateEvent, job.Address)
	}

	zap.L().Info("Wallet address assigned",
		zap.String("user_id", user.Id),
		zap.String("wallet_id", wallet.Id),
		zap.String("currency", job.Currency),
		zap.String("network", job.Network))

	s.notify(ctx, user.ChatId, notifier.AddressAssigned(job.Address, job.Currency))
	return nil, nil
}
