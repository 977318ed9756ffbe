package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fitauth/internal/middleware"
	"github.com/hitoshi/fitauth/internal/model"
)

// 成功時のメッセージ。
const (
	msgSuccess    = "Success"
	msgRegistered = "User registered successfully"
	msgDeleted    = "Profile deleted"
)

// profileResponse はプロフィールのAPIレスポンス。パスワードとハッシュは含めない。
type profileResponse struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
	UserType *string `json:"user_type"`
	IsActive bool    `json:"is_active"`
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	TokenType    string  `json:"token_type"`
	RefreshToken *string `json:"refresh_token"`
}

type authResponse struct {
	Token   tokenResponse   `json:"token"`
	Profile profileResponse `json:"profile"`
}

type trainerResponse struct {
	Bio            string   `json:"bio"`
	Certifications []string `json:"certifications"`
	YearsExp       int      `json:"years_exp"`
	OrganizationID *string  `json:"organization_id"`
}

type clientResponse struct {
	FitnessGoal string `json:"fitness_goal"`
}

// meResponse は認証済みユーザーのプロフィールとロール別レコード。
type meResponse struct {
	profileResponse
	Trainer *trainerResponse `json:"trainer,omitempty"`
	Client  *clientResponse  `json:"client,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toProfileResponse(p *model.Profile) profileResponse {
	var userType *string
	if p.Role != "" && p.Role != model.RoleNone {
		userType = optional(string(p.Role))
	}
	return profileResponse{
		ID:       p.ID,
		Name:     optional(p.Name),
		Email:    p.Email,
		Phone:    optional(p.Phone),
		UserType: userType,
		IsActive: p.Active,
	}
}

func toAuthResponse(res *model.AuthResult) authResponse {
	tokenType := res.Session.TokenType
	if tokenType == "" {
		tokenType = model.TokenTypeBearer
	}
	return authResponse{
		Token: tokenResponse{
			AccessToken:  res.Session.AccessToken,
			TokenType:    tokenType,
			RefreshToken: optional(res.Session.RefreshToken),
		},
		Profile: toProfileResponse(res.Profile),
	}
}

func toMeResponse(p *model.Profile, fields model.RoleFields) meResponse {
	out := meResponse{profileResponse: toProfileResponse(p)}
	switch f := fields.(type) {
	case model.TrainerFields:
		out.Trainer = &trainerResponse{
			Bio:            f.Bio,
			Certifications: f.Certifications,
			YearsExp:       f.YearsExp,
			OrganizationID: optional(f.OrganizationRef),
		}
	case model.ClientFields:
		out.Client = &clientResponse{FitnessGoal: f.FitnessGoal}
	}
	return out
}

// mapDomainError はドメインエラーをHTTPステータスとAPIErrorに変換する。
func mapDomainError(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusUnprocessableEntity, model.NewValidationError(err.Error())
	case errors.Is(err, model.ErrConflict):
		return http.StatusBadRequest, model.NewEmailAlreadyRegisteredError()
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusBadRequest, model.NewInvalidCredentialsError()
	case errors.Is(err, model.ErrMissingProfile):
		return http.StatusNotFound, model.NewProfileNotFoundError()
	case errors.Is(err, model.ErrMissingClaim):
		return http.StatusUnauthorized, model.NewMissingClaimError()
	case errors.Is(err, model.ErrInvalidToken):
		return http.StatusUnauthorized, model.NewInvalidTokenError()
	case errors.Is(err, model.ErrIdentityProvider):
		return http.StatusBadGateway, model.NewIdentityProviderError()
	default:
		return http.StatusInternalServerError, model.NewStorageError()
	}
}

// handleServiceError はサービス層のエラーを統一フォーマットで返す。
// 5xxの詳細はログのみに記録する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}
