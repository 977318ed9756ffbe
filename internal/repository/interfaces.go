// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/fitauth/internal/model"
)

// ProfileRepository はプロフィールとロール別レコードの永続化インターフェース。
type ProfileRepository interface {
	// FindByEmail は指定メールアドレスのプロフィールを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// CreateWithRole はプロフィールとロール別レコードを同一トランザクションで作成する。
	// 一意制約違反の場合はmodel.ErrIntegrityViolation、その他の失敗はmodel.ErrStorageをラップして返す。
	CreateWithRole(ctx context.Context, p model.NewProfile) (*model.Profile, error)

	// FindRoleProfile は指定IDのロール別レコードを取得する。
	// ロールがnone、またはプロフィールが存在しない場合はnilを返す。
	FindRoleProfile(ctx context.Context, id string) (model.RoleFields, error)

	// DeleteByID はロール別レコードとプロフィールを同一トランザクションで削除する。
	// ストレージエンジンのCASCADEには依存しない。
	DeleteByID(ctx context.Context, id string) error
}

// DBHealthChecker はデータベースの死活確認インターフェース。
type DBHealthChecker interface {
	PingContext(ctx context.Context) error
}

// compile-time interface check
var _ DBHealthChecker = (*sql.DB)(nil)
