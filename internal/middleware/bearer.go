// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/fitauth/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// profileContextKey はリクエストコンテキストに認証済みプロフィールを格納するためのキー。
var profileContextKey = contextKey("profile")

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
// auth.TokenVerifierが実装する。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Profile, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 解決したプロフィールをリクエストコンテキストに注入するミドルウェアを返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			profile, err := verifier.Verify(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, model.ErrMissingClaim):
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingClaimError())
				return
			case errors.Is(err, model.ErrInvalidToken):
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			case errors.Is(err, model.ErrMissingProfile):
				WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError())
				return
			default:
				slog.Error("failed to verify token",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusInternalServerError, model.NewStorageError())
				return
			}

			setLoggedUserID(r.Context(), profile.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithProfile(r.Context(), profile)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。スキーム名は大文字小文字を区別しない。
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ProfileFromContext はリクエストコンテキストから認証済みプロフィールを取得する。
// Bearer認証ミドルウェアを通過したリクエストでのみ有効。
func ProfileFromContext(ctx context.Context) (*model.Profile, error) {
	profile, ok := ctx.Value(profileContextKey).(*model.Profile)
	if !ok || profile == nil {
		return nil, fmt.Errorf("profile not found in context")
	}
	return profile, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	profile, err := ProfileFromContext(ctx)
	if err != nil {
		return "", err
	}
	return profile.ID, nil
}

// ContextWithProfile はコンテキストにプロフィールを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithProfile(ctx context.Context, profile *model.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey, profile)
}
