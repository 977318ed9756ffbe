package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/fitauth/internal/metrics"
	"github.com/hitoshi/fitauth/internal/model"
	"github.com/hitoshi/fitauth/internal/repository"
)

// 孤立Identityが発生した段階。
const (
	stageCreateProfile = "create_profile"
	stageIssueSession  = "issue_session"
)

// Provisioner は外部IdPとローカルストアを協調させてユーザー登録を行う。
//
// IdPでIdentityを作成した後にローカルの書き込みやセッション発行が失敗した場合、
// IdP上のIdentityは削除せずに残す（孤立Identity）。補償処理は行わず、
// 警告ログとメトリクスで記録する。
type Provisioner struct {
	idp      IdentityProvider
	profiles repository.ProfileRepository
	hasher   PasswordHasher
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewProvisioner はProvisionerを生成する。
func NewProvisioner(
	idp IdentityProvider,
	profiles repository.ProfileRepository,
	hasher PasswordHasher,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Provisioner {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Provisioner{
		idp:      idp,
		profiles: profiles,
		hasher:   hasher,
		logger:   logger,
		metrics:  collector,
	}
}

// Register は新規ユーザーを登録し、プロフィールとセッションを返す。
//
//  1. メールアドレスの事前確認（参考情報。並行登録では両方が通過しうる）
//  2. IdPでIdentityを作成
//  3. Identityのidでプロフィールとロール別レコードを作成（一意制約が最終判定）
//  4. 同じ認証情報でパスワードログインしセッションを取得
//
// 失敗は自動リトライしない。
func (p *Provisioner) Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
	res, err := p.register(ctx, in)
	p.metrics.RecordRegistration(registrationOutcome(err))
	return res, err
}

func (p *Provisioner) register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", model.ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = model.RoleNone
	}
	fields, err := model.ResolveRoleFields(role, in.RoleFields)
	if err != nil {
		return nil, err
	}

	existing, err := p.profiles.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing profile: %w", ensureKind(err, model.ErrStorage))
	}
	if existing != nil {
		return nil, fmt.Errorf("email %s: %w", in.Email, model.ErrConflict)
	}

	hash, err := p.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to hash password: %w", ensureKind(err, model.ErrStorage))
	}

	identityID, err := p.idp.CreateIdentity(ctx, in.Email, in.Password, model.Metadata{
		FullName: in.Name,
		Phone:    in.Phone,
		Role:     role,
	})
	if err != nil {
		p.logger.Error("identity creation failed",
			slog.String("email", in.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create identity: %w", ensureKind(err, model.ErrIdentityProvider))
	}

	profile, err := p.profiles.CreateWithRole(ctx, model.NewProfile{
		ID:           identityID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
		Role:         role,
		RoleFields:   fields,
	})
	if err != nil {
		p.recordOrphan(identityID, in.Email, stageCreateProfile, err)
		if errors.Is(err, model.ErrIntegrityViolation) {
			return nil, fmt.Errorf("failed to create profile: %w: %w", model.ErrConflict, err)
		}
		return nil, fmt.Errorf("failed to create profile: %w", ensureKind(err, model.ErrStorage))
	}

	session, _, err := p.idp.PasswordLogin(ctx, in.Email, in.Password)
	if err != nil {
		p.recordOrphan(identityID, in.Email, stageIssueSession, err)
		if errors.Is(err, model.ErrInvalidCredentials) {
			return nil, fmt.Errorf("failed to issue session: %w", err)
		}
		return nil, fmt.Errorf("failed to issue session: %w", ensureKind(err, model.ErrIdentityProvider))
	}

	p.logger.Info("user registered",
		slog.String("identity_id", profile.ID),
		slog.String("role", string(profile.Role)),
	)

	return &model.AuthResult{Profile: profile, Session: session}, nil
}

// recordOrphan はIdP上に作成済みのIdentityが補償されずに残ったことを記録する。
func (p *Provisioner) recordOrphan(identityID, email, stage string, cause error) {
	p.logger.Warn("identity orphaned",
		slog.String("identity_id", identityID),
		slog.String("email", email),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	p.metrics.RecordOrphanedIdentity(stage)
}

func registrationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrIdentityProvider):
		return "provider_error"
	case errors.Is(err, model.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "storage_error"
	}
}
