// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/fitauth/internal/middleware"
	"github.com/hitoshi/fitauth/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// Registrar はユーザー登録のインターフェース。auth.Provisionerが実装する。
type Registrar interface {
	Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error)
}

// LoginService はログインのインターフェース。auth.SessionIssuerが実装する。
type LoginService interface {
	Login(ctx context.Context, email, password string) (*model.AuthResult, error)
}

// ProfileService は認証済みユーザーのプロフィール操作のインターフェース。user.Serviceが実装する。
type ProfileService interface {
	RoleProfile(ctx context.Context, id string) (model.RoleFields, error)
	Withdraw(ctx context.Context, id string) error
}

// AuthHandler は登録・ログイン・プロフィール参照のHTTPハンドラー。
type AuthHandler struct {
	registrar Registrar
	login     LoginService
	profiles  ProfileService
	validate  *validator.Validate
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(registrar Registrar, login LoginService, profiles ProfileService) *AuthHandler {
	return &AuthHandler{
		registrar: registrar,
		login:     login,
		profiles:  profiles,
		validate:  newValidator(),
	}
}

// Register は新規ユーザーを登録する。
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, err := req.toRegisterInput()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.registrar.Register(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusCreated, msgRegistered, toAuthResponse(res))
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, msgSuccess, toAuthResponse(res))
}

// Me は認証済みユーザーのプロフィールとロール別レコードを返す。
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := middleware.ProfileFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	fields, err := h.profiles.RoleProfile(r.Context(), profile.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, msgSuccess, toMeResponse(profile, fields))
}

// DeleteMe は認証済みユーザーのプロフィールとロール別レコードを削除する。
// IdP上のIdentityは削除しない。
// DELETE /api/v1/auth/me
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.profiles.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, msgDeleted, nil)
}

// decode はJSONボディを読み取り検証する。失敗時はレスポンスを書き込みfalseを返す。
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity,
			model.NewValidationError("Request body must be valid JSON"))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			middleware.WriteInternalServerError(w)
			return false
		}
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity,
			model.NewValidationError(validationMessage(err)))
		return false
	}
	return true
}
