// Package auth はユーザー登録、ログイン、トークン検証を提供する。
// 外部IdPでのIdentity作成とローカルのプロフィール作成を協調させる。
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/fitauth/internal/model"
)

// IdentityProvider は外部IdPのインターフェース。
type IdentityProvider interface {
	// CreateIdentity はIdPにIdentityを作成し、identity_idを返す。
	CreateIdentity(ctx context.Context, email, password string, meta model.Metadata) (string, error)
	// PasswordLogin はパスワードグラントでログインし、セッションとidentity_idを返す。
	PasswordLogin(ctx context.Context, email, password string) (*model.Session, string, error)
}

// ProfileFinder はIDによるプロフィール検索のインターフェース。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// ensureKind はerrがkindを含まない場合にkindでラップする。
func ensureKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
