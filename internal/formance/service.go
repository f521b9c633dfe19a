package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

const defaultScale int32 = 6

// Service mirrors committed balance movements onto a Formance Stack ledger.
// The local SQLite ledger stays authoritative; this is an audit copy.
type Service struct {
	client *v3.Formance
	ledger string
	scales map[string]int32
}

// NewService connects to the stack and creates the ledger if it doesn't
// already exist. Amounts are posted at each currency's configured scale.
func NewService(ctx context.Context, cfg models.FormanceConfig, currencies []models.Currency) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("journal mirror requires FORMANCE_STACK_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "swap-settlement"
	}

	zap.L().Info("Connecting journal mirror",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client, ledger: cfg.LedgerName, scales: scaleIndex(currencies)}

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance journal initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

func scaleIndex(currencies []models.Currency) map[string]int32 {
	scales := make(map[string]int32, len(currencies))
	for _, c := range currencies {
		scales[strings.ToLower(c.Symbol)] = c.Scale
	}
	return scales
}

func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "swap-settlement",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// Ping checks that the ledger is reachable
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.client.Ledger.V2.GetLedger(ctx, operations.V2GetLedgerRequest{Ledger: s.ledger})
	if err != nil {
		return fmt.Errorf("failed to reach formance ledger %s: %w", s.ledger, err)
	}
	return nil
}

// ---------- helpers ----------

func (s *Service) scaleFor(currency string) int32 {
	if p, ok := s.scales[strings.ToLower(currency)]; ok {
		return p
	}
	return defaultScale
}

// formanceAsset returns the Formance UMN notation, e.g. "TRX/6".
func formanceAsset(currency string, scale int32) string {
	return fmt.Sprintf("%s/%d", strings.ToUpper(currency), scale)
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

func strPtr(s string) *string { return &s }
