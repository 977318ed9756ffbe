// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ドメインエラー。サービス層はこれらをラップして返し、呼び出し側はerrors.Isで判定する。
var (
	// ErrConflict はメールアドレスが既に登録済みであることを表す。
	ErrConflict = errors.New("email already registered")
	// ErrIdentityProvider はIdPに到達できない、または想定外のステータスを返したことを表す。
	ErrIdentityProvider = errors.New("identity provider error")
	// ErrInvalidCredentials はIdPがパスワード認証を拒否したことを表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken はトークンの構造・署名・有効期限が不正であることを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingClaim はトークンに利用可能なsubjectが含まれないことを表す。
	ErrMissingClaim = errors.New("token subject claim missing")
	// ErrMissingProfile はIdentityは有効だがローカルのプロフィールが存在しないことを表す。
	ErrMissingProfile = errors.New("profile not found")
	// ErrIntegrityViolation はストレージの一意制約違反を表す。
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrStorage はその他の永続化エラーを表す。
	ErrStorage = errors.New("storage error")
	// ErrInvalidInput は境界での入力検証エラーを表す。
	ErrInvalidInput = errors.New("invalid input")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeIdentityProvider       = "IDENTITY_PROVIDER_ERROR"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodeMissingClaim           = "MISSING_CLAIM"
	ErrCodeProfileNotFound        = "PROFILE_NOT_FOUND"
	ErrCodeStorage                = "STORAGE_ERROR"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "Email already registered",
		Category: "auth",
		Action:   "別のメールアドレスで登録するか、ログインしてください。",
	}
}

// NewIdentityProviderError は認証基盤エラーを生成する。
// IdPのレスポンス本文は含めない。
func NewIdentityProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityProvider,
		Message:  "Identity provider request failed",
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidCredentialsError は認証情報不正エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Incorrect email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewInvalidTokenError はトークン不正エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewMissingClaimError はトークンのsubject欠落エラーを生成する。
func NewMissingClaimError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingClaim,
		Message:  "Invalid token payload",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found for user",
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewStorageError は永続化エラーを生成する。
func NewStorageError() *APIError {
	return &APIError{
		Code:     ErrCodeStorage,
		Message:  "Internal server error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は認証ヘッダー欠落エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Missing token",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
