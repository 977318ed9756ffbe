// Package user はプロフィール参照と退会のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/fitauth/internal/model"
	"github.com/hitoshi/fitauth/internal/repository"
)

// Service はユーザー管理のサービス層。
type Service struct {
	profiles repository.ProfileRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profiles repository.ProfileRepository) *Service {
	return &Service{profiles: profiles}
}

// RoleProfile は指定プロフィールのロール別レコードを返す。ロールがnoneの場合はnil。
func (s *Service) RoleProfile(ctx context.Context, profileID string) (model.RoleFields, error) {
	fields, err := s.profiles.FindRoleProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("ロール別レコードの取得に失敗しました: %w", err)
	}
	return fields, nil
}

// Withdraw はローカルのプロフィールとロール別レコードを削除する。
// IdP上のIdentityは削除しない。
func (s *Service) Withdraw(ctx context.Context, profileID string) error {
	slog.Info("退会処理を開始します",
		slog.String("profile_id", profileID),
	)

	if err := s.profiles.DeleteByID(ctx, profileID); err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}

	slog.Warn("local profile deleted; identity remains at provider",
		slog.String("identity_id", profileID),
	)
	return nil
}
