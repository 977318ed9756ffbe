package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/fitauth/internal/metrics"
	"github.com/hitoshi/fitauth/internal/model"
)

// SessionIssuer は既存ユーザーのログインを処理する。ローカルへの書き込みは行わない。
type SessionIssuer struct {
	idp      IdentityProvider
	profiles ProfileFinder
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewSessionIssuer はSessionIssuerを生成する。
func NewSessionIssuer(idp IdentityProvider, profiles ProfileFinder, logger *slog.Logger, collector metrics.MetricsCollector) *SessionIssuer {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &SessionIssuer{idp: idp, profiles: profiles, logger: logger, metrics: collector}
}

// Login はIdPでパスワード認証を行い、identity_idに対応するプロフィールとセッションを返す。
// IdP上では有効だがローカルにプロフィールがない場合はmodel.ErrMissingProfileを返す。
func (s *SessionIssuer) Login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	res, err := s.login(ctx, email, password)
	s.metrics.RecordLogin(loginOutcome(err))
	return res, err
}

func (s *SessionIssuer) login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	session, identityID, err := s.idp.PasswordLogin(ctx, email, password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			return nil, fmt.Errorf("failed to login: %w", err)
		}
		return nil, fmt.Errorf("failed to login: %w", ensureKind(err, model.ErrIdentityProvider))
	}

	profile, err := s.profiles.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", ensureKind(err, model.ErrStorage))
	}
	if profile == nil {
		s.logger.Warn("identity has no local profile",
			slog.String("identity_id", identityID),
		)
		return nil, fmt.Errorf("identity %s: %w", identityID, model.ErrMissingProfile)
	}

	return &model.AuthResult{Profile: profile, Session: session}, nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, model.ErrMissingProfile):
		return "missing_profile"
	case errors.Is(err, model.ErrIdentityProvider):
		return "provider_error"
	default:
		return "storage_error"
	}
}
